package interfaces

import (
	"context"
	"multisig-observer/src/models"
)

// -----------------------------------------------------------------------------
// IConnectivity reports network reachability.
// -----------------------------------------------------------------------------

type IConnectivity interface {

	// IsOnline reports the last known connectivity state.
	IsOnline() bool

	// -----------------------------------------------------------------------------

	// WhenOnline calls fn once, the next time connectivity comes back (or
	// promptly if already online). The returned cancel func deregisters fn
	// and is safe to call more than once.
	WhenOnline(fn func()) (cancel func())
}

// -----------------------------------------------------------------------------
// IStreamTransport opens server-push connections.
// -----------------------------------------------------------------------------

type IStreamTransport interface {
	// Connect starts connecting in the background and returns at once.
	// Failures to connect are reported on the connection's Errors channel.
	Connect(ctx context.Context, url string) IStreamConnection
}

// -----------------------------------------------------------------------------

type IStreamConnection interface {
	// Opened is closed once the server accepted the stream.
	Opened() <-chan struct{}

	Messages() <-chan models.MStreamMessage

	Errors() <-chan models.MStreamError

	// Close tears the connection down. Idempotent.
	Close() error
}
