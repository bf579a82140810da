package voice

import (
	"encoding/json"
	"errors"
)

// ErrEmptyContext is returned when an update carries nothing to log.
var ErrEmptyContext = errors.New("either 'variables' or 'message/context' required")

// ContextUpdate is what the voice agent front end reports mid-conversation.
type ContextUpdate struct {
	ConversationID string          `json:"conversationId,omitempty"`
	Variables      json.RawMessage `json:"variables,omitempty"`
	Message        string          `json:"message,omitempty"`
	Context        json.RawMessage `json:"context,omitempty"`
}

// Validate requires at least one of variables, message or context.
func (u ContextUpdate) Validate() error {
	if isEmptyJSON(u.Variables) && u.Message == "" && isEmptyJSON(u.Context) {
		return ErrEmptyContext
	}
	return nil
}

// Effective returns context, or variables when no context was sent.
func (u ContextUpdate) Effective() json.RawMessage {
	if !isEmptyJSON(u.Context) {
		return u.Context
	}
	return u.Variables
}

func isEmptyJSON(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", `""`, "false", "0":
		return true
	default:
		return false
	}
}
