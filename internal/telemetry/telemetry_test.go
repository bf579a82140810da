package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "roastd"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))

	fields := otel.GetTextMapPropagator().Fields()
	require.Contains(t, fields, "traceparent")
	require.Contains(t, fields, "baggage")
}

func TestInitWithEndpoint(t *testing.T) {
	ctx := context.Background()
	shutdown, err := Init(ctx, Config{
		Endpoint:    "127.0.0.1:4318",
		Insecure:    true,
		ServiceName: "roastd",
		Version:     "test",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(ctx)
	cancel()
	// Nothing is listening; a cancelled context keeps the final flush from blocking.
	_ = shutdown(ctx)
}
