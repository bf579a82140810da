package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type typedEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func (e typedEvent) EventType() string { return e.Type }

func newTestClient(t *testing.T) *pubsub.Client {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "roastd-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	return client
}

func TestPublisherDeliversJSON(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := newTestClient(t)
	topic, err := client.CreateTopic(ctx, "roast-events")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "roast-events-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	pub := New(client)
	id, err := pub.Publish(ctx, "roast-events", typedEvent{Type: "roast.completed", SessionID: "abc"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	received := make(chan *pubsub.Message, 1)
	rctx, stop := context.WithCancel(ctx)
	go func() {
		_ = sub.Receive(rctx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case received <- msg:
			default:
			}
			stop()
		})
	}()

	var msg *pubsub.Message
	select {
	case msg = <-received:
	case <-ctx.Done():
		t.Fatal("message was not delivered")
	}
	var got typedEvent
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	require.Equal(t, "abc", got.SessionID)
	require.Equal(t, "roast.completed", msg.Attributes["event_type"])

	topic.Stop()
	require.NoError(t, pub.Close())
}

func TestPublisherValidatesInput(t *testing.T) {
	t.Parallel()

	_, err := (&Publisher{}).Publish(context.Background(), "t", "x")
	require.ErrorContains(t, err, "not configured")

	pub := New(newTestClient(t))
	_, err = pub.Publish(context.Background(), "", "x")
	require.ErrorContains(t, err, "topic is required")
	_, err = pub.Publish(context.Background(), "t", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
	require.NoError(t, pub.Close())

	_, err = Dial(context.Background(), "")
	require.Error(t, err)
}

func TestAttributeCarrier(t *testing.T) {
	t.Parallel()

	c := attributeCarrier{}
	c.Set("traceparent", "00-abc-def-01")
	require.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}
