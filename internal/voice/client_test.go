package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/convai/conversation/get_signed_url", r.URL.Path)
		assert.Equal(t, "agent 7", r.URL.Query().Get("agent_id"))
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))
		_ = json.NewEncoder(w).Encode(map[string]string{"signed_url": "wss://voice.example/abc"})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "secret", AgentID: "agent 7", BaseURL: srv.URL + "/"}, srv.Client())
	got, err := c.SignedURL(context.Background())
	require.NoError(t, err)
	require.Equal(t, "wss://voice.example/abc", got)
}

func TestSignedURLUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", AgentID: "a", BaseURL: srv.URL}, nil)
	_, err := c.SignedURL(context.Background())
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, http.StatusUnauthorized, upstream.StatusCode)
	require.Equal(t, "bad key", upstream.Body)
}

func TestSignedURLEmptyPayload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{APIKey: "k", AgentID: "a", BaseURL: srv.URL}, nil).SignedURL(context.Background())
	require.ErrorContains(t, err, "empty signed url")
}

func TestSignedURLNotConfigured(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{APIKey: "k"}, nil)
	require.False(t, c.Configured())
	_, err := c.SignedURL(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestContextUpdateValidate(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, ContextUpdate{ConversationID: "c"}.Validate(), ErrEmptyContext)
	require.ErrorIs(t, ContextUpdate{Variables: json.RawMessage("null")}.Validate(), ErrEmptyContext)
	require.NoError(t, ContextUpdate{Message: "user scrolled"}.Validate())

	vars := ContextUpdate{Variables: json.RawMessage(`{"rating":3}`)}
	require.NoError(t, vars.Validate())
	require.JSONEq(t, `{"rating":3}`, string(vars.Effective()))

	both := ContextUpdate{Variables: json.RawMessage(`{"a":1}`), Context: json.RawMessage(`"page two"`)}
	require.Equal(t, `"page two"`, string(both.Effective()))
}
