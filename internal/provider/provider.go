// Package provider defines the interface for message delivery backends.
package provider

import (
	"context"

	"github.com/shineum/sendwire/internal/email"
)

// Provider is the interface that delivery backends must implement.
// Each provider turns a parsed message into a sending API payload and hands
// it to its destination.
type Provider interface {
	// Send delivers a message through this provider.
	// It returns an error if the payload cannot be built or delivered.
	Send(ctx context.Context, msg *email.Message) error

	// Name returns the human-readable name of this provider.
	Name() string
}
