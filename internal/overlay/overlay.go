// Package overlay renders the wall-clock timestamp onto frames before they
// reach motion classification and recording. The renderer is a pure
// per-frame transform with no state beyond its configuration.
package overlay

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/vigilcam/sentry.vision/internal/vision"
)

// margin keeps the text clear of the frame border, in pixels.
const margin = 6

// Renderer draws a timestamp into a configurable frame corner.
type Renderer struct {
	position string // top-left, top-right, bottom-left, bottom-right
	format   string // Go time layout
	face     font.Face
}

// New builds a renderer. position and format are assumed validated by the
// config loader.
func New(position, format string) *Renderer {
	return &Renderer{
		position: position,
		format:   format,
		face:     basicfont.Face7x13,
	}
}

// Annotate draws the frame's own timestamp onto its pixels and returns the
// same frame. Luminance-only output: white text over a dark underlay band
// so the stamp stays readable on bright scenes.
func (r *Renderer) Annotate(f *vision.Frame) *vision.Frame {
	text := f.Timestamp.Format(r.format)
	img := f.Gray()

	width := font.MeasureString(r.face, text).Ceil()
	metrics := r.face.Metrics()
	ascent := metrics.Ascent.Ceil()
	descent := metrics.Descent.Ceil()

	x, y := r.anchor(f.Width, f.Height, width, ascent, descent)

	// Underlay band.
	for yy := y - ascent; yy < y+descent; yy++ {
		if yy < 0 || yy >= f.Height {
			continue
		}
		for xx := x - 2; xx < x+width+2; xx++ {
			if xx < 0 || xx >= f.Width {
				continue
			}
			p := yy*f.Width + xx
			f.Pix[p] = f.Pix[p] / 3
		}
	}

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Gray{Y: 255}),
		Face: r.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
	return f
}

// anchor returns the baseline origin for the configured corner.
func (r *Renderer) anchor(frameW, frameH, textW, ascent, descent int) (x, y int) {
	switch r.position {
	case "top-left":
		return margin, margin + ascent
	case "top-right":
		return frameW - textW - margin, margin + ascent
	case "bottom-left":
		return margin, frameH - margin - descent
	default: // bottom-right
		return frameW - textW - margin, frameH - margin - descent
	}
}
