// Package vision implements the per-camera motion classifier: an adaptive
// per-pixel background model, ROI masking, blob extraction and temporal
// debouncing. The classifier consumes decoded luminance frames and produces a
// confirmed-motion signal; it owns no goroutines and is mutated only by the
// camera supervisor that holds it.
package vision

import (
	"image"
	"time"
)

// Frame is a decoded 8-bit luminance frame. Ownership transfers by copy when
// a frame crosses the recorder buffer boundary; within the capture loop the
// same backing slice may be reused by the source.
type Frame struct {
	Pix       []uint8 // row-major gray8, len = Width*Height
	Width     int
	Height    int
	Timestamp time.Time
}

// NewFrame allocates a zeroed frame.
func NewFrame(width, height int, ts time.Time) *Frame {
	return &Frame{
		Pix:       make([]uint8, width*height),
		Width:     width,
		Height:    height,
		Timestamp: ts,
	}
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	pix := make([]uint8, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{Pix: pix, Width: f.Width, Height: f.Height, Timestamp: f.Timestamp}
}

// Gray wraps the frame as an image.Gray sharing the same backing pixels.
func (f *Frame) Gray() *image.Gray {
	return &image.Gray{
		Pix:    f.Pix,
		Stride: f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Rect is a pixel-space rectangle, half-open on the right and bottom edges.
type Rect struct {
	X1, Y1, X2, Y2 int
}

// ROIRect converts fractional ROI coordinates to pixel coordinates for the
// given frame dimensions.
func ROIRect(roi [4]float64, width, height int) Rect {
	return Rect{
		X1: int(roi[0] * float64(width)),
		Y1: int(roi[1] * float64(height)),
		X2: int(roi[2] * float64(width)),
		Y2: int(roi[3] * float64(height)),
	}
}
