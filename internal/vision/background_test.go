package vision

import (
	"testing"
)

func applyFlat(bm *BackgroundModel, w, h int, level uint8, n int) []uint8 {
	pix := make([]uint8, w*h)
	for i := range pix {
		pix[i] = level
	}
	fg := make([]uint8, w*h)
	for i := 0; i < n; i++ {
		bm.Apply(pix, w, h, fg)
	}
	return fg
}

func countForeground(fg []uint8) int {
	n := 0
	for _, v := range fg {
		if v != 0 {
			n++
		}
	}
	return n
}

func TestBackgroundStaticSceneIsQuiet(t *testing.T) {
	bm := NewBackgroundModel(100)
	fg := applyFlat(bm, 8, 8, 60, 50)
	if n := countForeground(fg); n != 0 {
		t.Errorf("static scene produced %d foreground pixels", n)
	}
}

func TestBackgroundStepChangeIsForeground(t *testing.T) {
	const w, h = 8, 8
	bm := NewBackgroundModel(100)
	applyFlat(bm, w, h, 60, 50)

	pix := make([]uint8, w*h)
	for i := range pix {
		pix[i] = 60
	}
	pix[0] = 250
	fg := make([]uint8, w*h)
	bm.Apply(pix, w, h, fg)

	if fg[0] == 0 {
		t.Error("step change not flagged as foreground")
	}
	if n := countForeground(fg); n != 1 {
		t.Errorf("foreground pixels = %d, want 1", n)
	}
}

func TestBackgroundAbsorbsStoppedObject(t *testing.T) {
	const w, h = 4, 4
	bm := NewBackgroundModel(50)
	applyFlat(bm, w, h, 40, 60)

	// A persistent level change is absorbed within roughly one history
	// window as the EW mean converges on the new value.
	fg := applyFlat(bm, w, h, 200, 300)
	if n := countForeground(fg); n != 0 {
		t.Errorf("stopped object still foreground after 300 frames: %d pixels", n)
	}
}

func TestBackgroundResizeResetsModel(t *testing.T) {
	bm := NewBackgroundModel(100)
	applyFlat(bm, 8, 8, 60, 20)
	if bm.Frames() != 20 {
		t.Fatalf("frames = %d, want 20", bm.Frames())
	}

	applyFlat(bm, 16, 16, 60, 1)
	if bm.Frames() != 1 {
		t.Errorf("resolution change did not reset the model: frames = %d", bm.Frames())
	}
}

func TestBackgroundFirstFrameSeedsQuietly(t *testing.T) {
	const w, h = 4, 4
	bm := NewBackgroundModel(100)
	pix := make([]uint8, w*h)
	for i := range pix {
		pix[i] = 123
	}
	fg := make([]uint8, w*h)
	for i := range fg {
		fg[i] = 255 // stale contents must be overwritten
	}
	bm.Apply(pix, w, h, fg)
	if n := countForeground(fg); n != 0 {
		t.Errorf("seeding frame produced %d foreground pixels", n)
	}
}

func TestSettleStats(t *testing.T) {
	bm := NewBackgroundModel(100)
	if mean, stddev := bm.SettleStats(); mean != 0 || stddev != 0 {
		t.Errorf("empty model stats = %v/%v, want 0/0", mean, stddev)
	}

	applyFlat(bm, 8, 8, 60, 50)
	mean, _ := bm.SettleStats()
	if mean <= 0 {
		t.Errorf("variance mean = %v, want > 0", mean)
	}
	if mean > initialVariance {
		t.Errorf("variance mean %v did not decay below seed value %v", mean, initialVariance)
	}
}
