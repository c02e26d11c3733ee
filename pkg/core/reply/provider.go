// Package reply provides assistant-reply collaborators for call
// sessions.
package reply

import (
	"context"
)

// Provider is the interface for assistant-reply services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Reply sends one user message in the given conversation and
	// returns the assistant's answer.
	Reply(ctx context.Context, conversationID, message string) (string, error)
}
