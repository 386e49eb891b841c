// Package notify delivers motion alerts and finished clips to a chat
// channel. Delivery is strictly best-effort: a failed or slow notification
// is logged and dropped, never propagated into the recording pipeline.
package notify

import (
	"github.com/vigilcam/sentry.vision/internal/recorder"
	"github.com/vigilcam/sentry.vision/internal/vision"
)

// Notifier is the event sink the camera supervisor calls. Implementations
// must return promptly; anything slow happens on the notifier's own
// goroutines.
type Notifier interface {
	// SendAlert delivers a motion snapshot with a caption.
	SendAlert(cameraID string, snapshot *vision.Frame, caption string)

	// SendClip delivers a finalized recording with a caption.
	SendClip(cameraID string, h *recorder.Handle, caption string)
}

// Noop is the notifier used when no channel is configured.
type Noop struct{}

func (Noop) SendAlert(string, *vision.Frame, string)   {}
func (Noop) SendClip(string, *recorder.Handle, string) {}
