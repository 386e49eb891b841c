package vision

// graceFrames is the number of consecutive non-qualifying frames tolerated
// before the motion streak resets. A short gap from a dropped or noisy frame
// must not break an otherwise continuous detection.
const graceFrames = 5

// ClassifierConfig holds the per-camera detection parameters. All
// comparisons are strict as configured; values are validated at config load
// and never adjusted here.
type ClassifierConfig struct {
	// ROI is the fractional region of interest [x1, y1, x2, y2].
	ROI [4]float64

	// AreaThreshold is the minimum component area, in pixels, for a blob
	// to qualify as motion.
	AreaThreshold float64

	// MinMotionFrames is the consecutive qualifying frames required before
	// Detect reports confirmed motion.
	MinMotionFrames int

	// HistoryWindow overrides the background model memory. Zero selects
	// DefaultHistoryWindow.
	HistoryWindow int

	// Areas overrides the component extractor. Nil selects ComponentAreas.
	Areas AreaFunc
}

// Classifier is a stateful per-camera motion detector: background model, ROI
// mask and temporal debounce. It is owned exclusively by one supervisor and
// is not safe for concurrent use.
type Classifier struct {
	cfg   ClassifierConfig
	bg    *BackgroundModel
	areas AreaFunc

	// Scratch buffers, sized on first frame.
	blurred []uint8
	fgMask  []uint8
	scratch []uint8

	motionFrames   int
	noMotionFrames int
}

// NewClassifier builds a classifier from validated configuration.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	c := &Classifier{
		cfg:   cfg,
		bg:    NewBackgroundModel(cfg.HistoryWindow),
		areas: cfg.Areas,
	}
	if c.areas == nil {
		c.areas = ComponentAreas
	}
	return c
}

// Detect consumes one frame and reports whether motion is confirmed, i.e.
// has persisted for at least MinMotionFrames consecutive qualifying frames.
// Up to graceFrames consecutive non-qualifying frames are tolerated without
// resetting the streak; one more zeroes it.
func (c *Classifier) Detect(f *Frame) bool {
	qualifying := c.frameQualifies(f)

	if qualifying {
		c.motionFrames++
		c.noMotionFrames = 0
	} else {
		c.noMotionFrames++
		if c.noMotionFrames > graceFrames {
			c.motionFrames = 0
		}
	}

	return c.motionFrames >= c.cfg.MinMotionFrames
}

// frameQualifies runs the image pipeline for one frame: blur, background
// subtraction, ROI intersection, morphological cleanup, component areas.
func (c *Classifier) frameQualifies(f *Frame) bool {
	n := f.Width * f.Height
	if len(c.fgMask) != n {
		c.blurred = make([]uint8, n)
		c.fgMask = make([]uint8, n)
		c.scratch = make([]uint8, n)
	}

	boxBlur(f.Pix, c.blurred, c.scratch, f.Width, f.Height)
	c.bg.Apply(c.blurred, f.Width, f.Height, c.fgMask)
	if !c.bg.Settled() {
		return false
	}

	maskOutsideRect(c.fgMask, f.Width, f.Height, ROIRect(c.cfg.ROI, f.Width, f.Height))
	closeAndDilate(c.fgMask, c.scratch, f.Width, f.Height)

	for _, area := range c.areas(c.fgMask, f.Width, f.Height) {
		if area >= c.cfg.AreaThreshold {
			return true
		}
	}
	return false
}

// maskOutsideRect zeroes every mask pixel outside r.
func maskOutsideRect(mask []uint8, width, height int, r Rect) {
	for y := 0; y < height; y++ {
		row := y * width
		if y < r.Y1 || y >= r.Y2 {
			for x := 0; x < width; x++ {
				mask[row+x] = 0
			}
			continue
		}
		for x := 0; x < r.X1; x++ {
			mask[row+x] = 0
		}
		for x := r.X2; x < width; x++ {
			mask[row+x] = 0
		}
	}
}

// Reset clears the debounce counters without rebuilding the background model.
func (c *Classifier) Reset() {
	c.motionFrames = 0
	c.noMotionFrames = 0
}

// Background exposes the model for stats reporting.
func (c *Classifier) Background() *BackgroundModel { return c.bg }
