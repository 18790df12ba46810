package transport

import (
	"context"
	"errors"

	"github.com/stratosonde/groundstation/internal/telemetry"
)

// ErrUnavailable is returned when a transport cannot be opened: the serial
// device does not exist or is held by another process, or the UDP bind
// address is already in use. It is fatal at startup; the pipeline surfaces
// it once instead of retrying silently.
var ErrUnavailable = errors.New("transport unavailable")

// Source produces a sequence of delimited text frames from one link. The
// rest of the pipeline never branches on the transport kind; both variants
// satisfy this contract.
type Source interface {
	// Frames opens the link and returns a channel of raw frames. The
	// channel is closed when the context is cancelled, the link dries up,
	// or Close is called. Frames must be delivered in arrival order.
	Frames(ctx context.Context) (<-chan telemetry.RawFrame, error)

	// Close releases the underlying device or socket. Safe to call more
	// than once.
	Close() error

	// ID identifies the source in logs and on RawFrame.Source.
	ID() string
}
