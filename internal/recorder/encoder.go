package recorder

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"github.com/icza/mjpeg"

	"github.com/vigilcam/sentry.vision/internal/vision"
)

// Encoder writes frames to a single sequential video file. Implementations
// are used from the sink's consumer goroutine only.
type Encoder interface {
	WriteFrame(f *vision.Frame) error
	Close() error
}

// EncoderFactory opens an encoder for the given output path and geometry.
// The sink calls it once per recording with the first frame's dimensions.
type EncoderFactory func(path string, width, height, fps int) (Encoder, error)

// OpenError reports an encoder that could not be created: disk full,
// unsupported codec, bad path. It is local to one recording attempt and
// recoverable; the camera pipeline keeps running.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("failed to open encoder for %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// aviEncoder encodes frames as JPEG into an MJPEG AVI container.
type aviEncoder struct {
	aw      mjpeg.AviWriter
	quality int
	buf     bytes.Buffer
}

// NewAVIEncoderFactory returns the production encoder factory, writing
// MJPEG AVI files at the given JPEG quality (1-100).
func NewAVIEncoderFactory(quality int) EncoderFactory {
	return func(path string, width, height, fps int) (Encoder, error) {
		aw, err := mjpeg.New(path, int32(width), int32(height), int32(fps))
		if err != nil {
			return nil, &OpenError{Path: path, Err: err}
		}
		return &aviEncoder{aw: aw, quality: quality}, nil
	}
}

func (e *aviEncoder) WriteFrame(f *vision.Frame) error {
	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, f.Gray(), &jpeg.Options{Quality: e.quality}); err != nil {
		return fmt.Errorf("jpeg encode: %w", err)
	}
	if err := e.aw.AddFrame(e.buf.Bytes()); err != nil {
		return fmt.Errorf("avi write: %w", err)
	}
	return nil
}

func (e *aviEncoder) Close() error {
	return e.aw.Close()
}
