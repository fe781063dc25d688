// Package transport defines the interface for email delivery backends.
package transport

import (
	"context"

	"github.com/shineum/mail-bridge/internal/email"
)

// Transport is the interface that email delivery backends must implement.
// A single Transport is shared by every request, so implementations must be
// safe for concurrent use.
type Transport interface {
	// Verify checks that the backend is reachable and accepts the configured
	// credentials. It is called once at startup.
	Verify(ctx context.Context) error

	// Send delivers one message and reports which recipients were accepted.
	// It performs no retry.
	Send(ctx context.Context, msg *email.Message) (*email.Result, error)

	// Name returns the human-readable name of this transport.
	Name() string
}
