package camera

import (
	"context"
	"fmt"
	"time"

	"github.com/vigilcam/sentry.vision/internal/vision"
)

// SyntheticSource generates frames procedurally, paced at the configured
// frame rate. It backs dev mode (no camera hardware) and the pipeline tests,
// in the same spirit as replaying fixtures instead of opening a serial port.
type SyntheticSource struct {
	width  int
	height int
	fps    int

	// Render fills the frame for the given frame index. Nil renders a
	// flat mid-gray scene.
	Render func(i int, f *vision.Frame)

	// Unpaced disables frame-rate pacing; tests use this to run the
	// capture loop as fast as possible.
	Unpaced bool

	opened bool
	index  int
}

// NewSyntheticSource creates a paced procedural source.
func NewSyntheticSource(width, height, fps int) *SyntheticSource {
	return &SyntheticSource{width: width, height: height, fps: fps}
}

// Open marks the source ready.
func (s *SyntheticSource) Open(ctx context.Context) error {
	if s.width <= 0 || s.height <= 0 || s.fps <= 0 {
		return fmt.Errorf("synthetic source: invalid geometry %dx%d@%d", s.width, s.height, s.fps)
	}
	s.opened = true
	return nil
}

// Read produces the next frame, sleeping one frame period unless Unpaced.
func (s *SyntheticSource) Read(ctx context.Context) (*vision.Frame, error) {
	if !s.opened {
		return nil, fmt.Errorf("synthetic source: not opened")
	}
	if !s.Unpaced {
		t := time.NewTimer(time.Second / time.Duration(s.fps))
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	f := vision.NewFrame(s.width, s.height, time.Now())
	if s.Render != nil {
		s.Render(s.index, f)
	} else {
		for i := range f.Pix {
			f.Pix[i] = 128
		}
	}
	s.index++
	return f, nil
}

// Close marks the source closed.
func (s *SyntheticSource) Close() error {
	s.opened = false
	return nil
}

// MovingBlock returns a Render function that sweeps a bright square across a
// flat background, useful for exercising the detector in dev mode.
func MovingBlock(size int) func(i int, f *vision.Frame) {
	return func(i int, f *vision.Frame) {
		for p := range f.Pix {
			f.Pix[p] = 40
		}
		x0 := (i * 2) % (f.Width - size)
		y0 := (f.Height - size) / 2
		for y := y0; y < y0+size; y++ {
			for x := x0; x < x0+size; x++ {
				f.Pix[y*f.Width+x] = 230
			}
		}
	}
}
