// Package camera provides frame sources for the capture pipeline. A Source
// wraps one camera connection and yields decoded luminance frames;
// reconnect and backoff on stream failure are the source's responsibility.
package camera

import (
	"context"

	"github.com/vigilcam/sentry.vision/internal/vision"
)

// Source is a per-camera frame supplier. Implementations are owned
// exclusively by one supervisor goroutine and are not safe for concurrent
// use. Open must be called once before Read; a Source that cannot be opened
// is fatal to that camera only.
type Source interface {
	// Open establishes the camera connection.
	Open(ctx context.Context) error

	// Read returns the next decoded frame. A read failure is transient:
	// the caller logs, backs off briefly and calls Read again, while the
	// source reconnects internally as needed.
	Read(ctx context.Context) (*vision.Frame, error)

	// Close releases the connection. Safe to call after a failed Open.
	Close() error
}
