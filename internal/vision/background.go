package vision

import (
	"gonum.org/v1/gonum/stat"
)

// Background model tuning. HistoryWindow bounds the effective memory of the
// exponentially-weighted statistics; VarianceThreshold is the squared-distance
// multiplier that separates foreground from background, in units of the
// per-pixel variance.
const (
	DefaultHistoryWindow     = 500
	defaultVarianceThreshold = 16.0
	initialVariance          = 225.0 // (15 gray levels)^2 before any evidence
	minVariance              = 4.0
	maxVariance              = 4096.0
)

// BackgroundModel maintains exponentially-weighted per-pixel mean and
// variance estimates and classifies each incoming pixel as background or
// foreground. The grid is sized lazily from the first frame; a resolution
// change resets the model.
type BackgroundModel struct {
	width  int
	height int
	mean   []float32
	vari   []float32

	frames        int
	historyWindow int
	varThreshold  float32
}

// NewBackgroundModel creates an empty model. historyWindow <= 0 selects
// DefaultHistoryWindow.
func NewBackgroundModel(historyWindow int) *BackgroundModel {
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	return &BackgroundModel{
		historyWindow: historyWindow,
		varThreshold:  defaultVarianceThreshold,
	}
}

func (bm *BackgroundModel) resize(width, height int) {
	bm.width = width
	bm.height = height
	bm.mean = make([]float32, width*height)
	bm.vari = make([]float32, width*height)
	bm.frames = 0
}

// Apply updates the model with one luminance frame and writes a binary
// foreground mask (0 or 255) into fg, which must be len(pix). The first
// frame seeds the model and produces an empty mask.
//
// The learning rate ramps during warmup (alpha = 1/frames until the history
// window fills, then 1/historyWindow), so the model converges quickly at
// startup and adapts slowly thereafter. All pixels update, foreground
// included; a stopped object is absorbed into the background within roughly
// one history window, matching the adaptive-subtractor behaviour the rest of
// the pipeline is tuned for.
func (bm *BackgroundModel) Apply(pix []uint8, width, height int, fg []uint8) {
	if width != bm.width || height != bm.height {
		bm.resize(width, height)
	}

	bm.frames++
	seeding := bm.frames == 1

	alpha := float32(1.0) / float32(bm.frames)
	if bm.frames > bm.historyWindow {
		alpha = 1.0 / float32(bm.historyWindow)
	}

	for i, p := range pix {
		x := float32(p)
		if seeding {
			bm.mean[i] = x
			bm.vari[i] = initialVariance
			fg[i] = 0
			continue
		}

		d := x - bm.mean[i]
		if d*d > bm.varThreshold*bm.vari[i] {
			fg[i] = 255
		} else {
			fg[i] = 0
		}

		bm.mean[i] += alpha * d
		v := bm.vari[i] + alpha*(d*d-bm.vari[i])
		if v < minVariance {
			v = minVariance
		} else if v > maxVariance {
			v = maxVariance
		}
		bm.vari[i] = v
	}
}

// Frames returns the number of frames absorbed into the model.
func (bm *BackgroundModel) Frames() int { return bm.frames }

// Settled reports whether the model has seen enough frames to trust its
// variance estimates. Used by callers that want to suppress detections
// during warmup.
func (bm *BackgroundModel) Settled() bool {
	return bm.frames >= bm.historyWindow/10
}

// SettleStats returns the mean and standard deviation of the per-pixel
// variance estimates. High spread indicates a scene with mixed static and
// busy regions (foliage, road) and is exposed through the stats API for
// threshold tuning.
func (bm *BackgroundModel) SettleStats() (mean, stddev float64) {
	if len(bm.vari) == 0 {
		return 0, 0
	}
	sample := make([]float64, len(bm.vari))
	for i, v := range bm.vari {
		sample[i] = float64(v)
	}
	return stat.MeanStdDev(sample, nil)
}

// Reset discards all learned statistics.
func (bm *BackgroundModel) Reset() {
	if bm.width > 0 {
		bm.resize(bm.width, bm.height)
	}
}
