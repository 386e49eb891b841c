package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilcam/sentry.vision/internal/camera"
	"github.com/vigilcam/sentry.vision/internal/config"
	"github.com/vigilcam/sentry.vision/internal/monitoring"
	"github.com/vigilcam/sentry.vision/internal/recorder"
	"github.com/vigilcam/sentry.vision/internal/vision"
)

// fakeClock is a manually advanced time source shared by a test and the
// supervisor under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeEncoder counts writes and closes.
type fakeEncoder struct {
	mu     sync.Mutex
	writes int
	closed bool
}

func (e *fakeEncoder) WriteFrame(*vision.Frame) error {
	e.mu.Lock()
	e.writes++
	e.mu.Unlock()
	return nil
}

func (e *fakeEncoder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

func (e *fakeEncoder) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// encoderTracker is an EncoderFactory that records every encoder it opens
// and can fail the first n opens.
type encoderTracker struct {
	mu       sync.Mutex
	opened   []*fakeEncoder
	failNext int
}

func (t *encoderTracker) factory(path string, width, height, fps int) (recorder.Encoder, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failNext > 0 {
		t.failNext--
		return nil, &recorder.OpenError{Path: path, Err: errors.New("disk full")}
	}
	enc := &fakeEncoder{}
	t.opened = append(t.opened, enc)
	return enc, nil
}

func (t *encoderTracker) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.opened)
}

func (t *encoderTracker) last() *fakeEncoder {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.opened) == 0 {
		return nil
	}
	return t.opened[len(t.opened)-1]
}

// captureNotifier records dispatched alerts and clips.
type captureNotifier struct {
	mu     sync.Mutex
	alerts []string
	clips  []*recorder.Handle
}

func (n *captureNotifier) SendAlert(cameraID string, snapshot *vision.Frame, caption string) {
	n.mu.Lock()
	n.alerts = append(n.alerts, caption)
	n.mu.Unlock()
}

func (n *captureNotifier) SendClip(cameraID string, h *recorder.Handle, caption string) {
	n.mu.Lock()
	n.clips = append(n.clips, h)
	n.mu.Unlock()
}

func (n *captureNotifier) counts() (alerts, clips int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts), len(n.clips)
}

// captureLog records appended recording entries.
type captureLog struct {
	mu      sync.Mutex
	entries []*recorder.Handle
}

func (l *captureLog) Append(h *recorder.Handle, cameraName string) error {
	l.mu.Lock()
	l.entries = append(l.entries, h)
	l.mu.Unlock()
	return nil
}

func (l *captureLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func testCamera(id string) config.Camera {
	return config.Camera{
		ID:               id,
		Name:             "Test " + id,
		URL:              "0",
		ROI:              [4]float64{0, 0, 1, 1},
		MotionThreshold:  1,
		MinMotionFrames:  2,
		MinRecordingTime: "3s",
		CooldownTime:     "1s",
	}
}

// harness wires a supervisor with fakes for direct state machine tests.
type harness struct {
	sup      *Supervisor
	clk      *fakeClock
	enc      *encoderTracker
	notifier *captureNotifier
	log      *captureLog
	sink     *recorder.Sink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clk:      newFakeClock(),
		enc:      &encoderTracker{},
		notifier: &captureNotifier{},
		log:      &captureLog{},
	}
	h.sink = recorder.NewSink("cam1", t.TempDir(), 10, 16, h.enc.factory)
	h.sup = New(testCamera("cam1"), Deps{
		Sink:     h.sink,
		Notifier: h.notifier,
		Log:      h.log,
		Now:      h.clk.Now,
	})
	return h
}

func (h *harness) frame() *vision.Frame {
	return vision.NewFrame(8, 8, h.clk.Now())
}

// step feeds one frame with the given motion verdict, then advances the
// clock by the frame interval.
func (h *harness) step(motion bool, interval time.Duration) {
	h.sup.processFrame(h.frame(), motion)
	h.clk.Advance(interval)
}

func TestNoMotionNeverRecords(t *testing.T) {
	monitoring.ResetMetrics()
	h := newHarness(t)

	for i := 0; i < 50; i++ {
		h.step(false, 100*time.Millisecond)
	}

	assert.Equal(t, 0, h.enc.openCount())
	assert.False(t, h.sink.IsActive())
	alerts, clips := h.notifier.counts()
	assert.Zero(t, alerts)
	assert.Zero(t, clips)
	assert.Zero(t, h.log.count())
}

func TestConfirmedMotionStartsRecordingAndAlerts(t *testing.T) {
	monitoring.ResetMetrics()
	h := newHarness(t)

	h.step(true, 100*time.Millisecond)

	require.Equal(t, 1, h.enc.openCount())
	assert.True(t, h.sink.IsActive())

	alerts, clips := h.notifier.counts()
	assert.Equal(t, 1, alerts)
	assert.Zero(t, clips)

	st := h.sup.Status()
	assert.True(t, st.Recording)
	assert.Equal(t, 1, st.MotionCount)
	require.NotNil(t, st.MotionStart)
}

func TestCooldownBridgesShortGap(t *testing.T) {
	monitoring.ResetMetrics()
	h := newHarness(t)

	h.step(true, 100*time.Millisecond)
	// 0.8s gap, inside the 1s cooldown.
	for i := 0; i < 8; i++ {
		h.step(false, 100*time.Millisecond)
	}
	h.step(true, 100*time.Millisecond)

	// Still one recording, no second encoder open.
	assert.Equal(t, 1, h.enc.openCount())
	assert.True(t, h.sink.IsActive())
	_, clips := h.notifier.counts()
	assert.Zero(t, clips)
}

func TestMinimumDurationHoldsRecordingOpen(t *testing.T) {
	monitoring.ResetMetrics()
	h := newHarness(t)

	start := h.clk.Now()
	h.step(true, 100*time.Millisecond)
	// Idle immediately. Cooldown (1s) expires well before the 3s floor;
	// the recording must stay open until the floor is met.
	for i := 0; i < 35; i++ {
		h.step(false, 100*time.Millisecond)
		if h.clk.Now().Sub(start) < 3*time.Second {
			assert.True(t, h.sink.IsActive(), "stopped before minimum duration at step %d", i)
		}
	}

	assert.False(t, h.sink.IsActive())
	_, clips := h.notifier.counts()
	assert.Equal(t, 1, clips)
	assert.Equal(t, 1, h.log.count())
	assert.True(t, h.enc.last().isClosed())

	st := h.sup.Status()
	assert.False(t, st.Recording)
	assert.Zero(t, st.MotionCount)
}

func TestLongEventStopsAfterCooldownOnly(t *testing.T) {
	monitoring.ResetMetrics()
	h := newHarness(t)

	// 4s of motion, past the 3s floor.
	for i := 0; i < 40; i++ {
		h.step(true, 100*time.Millisecond)
	}
	require.True(t, h.sink.IsActive())

	// Floor already met: only the cooldown delays the stop.
	for i := 0; i < 10; i++ {
		h.step(false, 100*time.Millisecond)
	}
	assert.True(t, h.sink.IsActive(), "stopped inside cooldown")

	h.step(false, 100*time.Millisecond)
	assert.False(t, h.sink.IsActive())
	assert.Equal(t, 1, h.log.count())
}

func TestEncoderOpenFailureRetriesNextFrame(t *testing.T) {
	monitoring.ResetMetrics()
	h := newHarness(t)
	h.enc.failNext = 1

	h.step(true, 100*time.Millisecond)
	assert.False(t, h.sink.IsActive())
	assert.False(t, h.sup.Status().Recording)

	// Next confirmed frame retries and succeeds.
	h.step(true, 100*time.Millisecond)
	assert.True(t, h.sink.IsActive())
	assert.Equal(t, 1, h.enc.openCount())
}

func TestRunPipelineEndToEnd(t *testing.T) {
	monitoring.ResetMetrics()
	clk := newFakeClock()
	enc := &encoderTracker{}
	notifier := &captureNotifier{}
	log := &captureLog{}
	sink := recorder.NewSink("cam1", t.TempDir(), 10, 16, enc.factory)

	// 10 quiet frames, 5 motion frames, then quiet long enough for the
	// cooldown and floor to expire.
	script := make([]bool, 0, 80)
	for i := 0; i < 10; i++ {
		script = append(script, false)
	}
	for i := 0; i < 5; i++ {
		script = append(script, true)
	}
	for i := 0; i < 65; i++ {
		script = append(script, false)
	}

	src := newScriptSource(clk, 100*time.Millisecond, len(script))
	cl := vision.NewClassifier(vision.ClassifierConfig{
		ROI:             [4]float64{0, 0, 1, 1},
		AreaThreshold:   1,
		MinMotionFrames: 2,
		HistoryWindow:   10,
		Areas:           scriptAreas(script),
	})
	sup := New(testCamera("cam1"), Deps{
		Source:     src,
		Sink:       sink,
		Notifier:   notifier,
		Log:        log,
		Classifier: cl,
		Now:        clk.Now,
	})

	ctrl := NewController(sup)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl.Start(ctx)
	select {
	case <-src.exhausted:
	case <-time.After(5 * time.Second):
		t.Fatal("source never drained")
	}
	ctrl.Stop()

	assert.Equal(t, 1, enc.openCount())
	assert.True(t, enc.last().isClosed())
	assert.False(t, sink.IsActive())
	alerts, clips := notifier.counts()
	assert.Equal(t, 1, alerts)
	assert.Equal(t, 1, clips)
	assert.Equal(t, 1, log.count())

	require.NotNil(t, sup.LatestFrame())

	snap := monitoring.MetricsFor("cam1").Snapshot()
	assert.Equal(t, int64(len(script)), snap.FramesProcessed)
	assert.Equal(t, int64(1), snap.RecordingsStarted)
	assert.Equal(t, int64(1), snap.RecordingsCompleted)
}

func TestControllerShutdownForceStopsActiveRecording(t *testing.T) {
	monitoring.ResetMetrics()
	clk := newFakeClock()
	enc := &encoderTracker{}
	log := &captureLog{}
	sink := recorder.NewSink("cam1", t.TempDir(), 10, 16, enc.factory)

	// Motion right up to the end of the script: the recording is still
	// active when the controller shuts down.
	script := make([]bool, 20)
	for i := range script {
		script[i] = true
	}

	src := newScriptSource(clk, 100*time.Millisecond, len(script))
	cl := vision.NewClassifier(vision.ClassifierConfig{
		ROI:             [4]float64{0, 0, 1, 1},
		AreaThreshold:   1,
		MinMotionFrames: 2,
		HistoryWindow:   10,
		Areas:           scriptAreas(script),
	})
	sup := New(testCamera("cam1"), Deps{
		Source:     src,
		Sink:       sink,
		Log:        log,
		Classifier: cl,
		Now:        clk.Now,
	})

	ctrl := NewController(sup)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl.Start(ctx)
	select {
	case <-src.exhausted:
	case <-time.After(5 * time.Second):
		t.Fatal("source never drained")
	}
	ctrl.Stop()

	require.Equal(t, 1, enc.openCount())
	assert.True(t, enc.last().isClosed(), "encoder not finalized on shutdown")
	assert.False(t, sink.IsActive())
	assert.Equal(t, 1, log.count())
}

func TestSourceOpenFailureIsFatalToCamera(t *testing.T) {
	monitoring.ResetMetrics()
	sink := recorder.NewSink("cam1", t.TempDir(), 10, 16, (&encoderTracker{}).factory)
	sup := New(testCamera("cam1"), Deps{
		Source: &failingSource{},
		Sink:   sink,
	})

	err := sup.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source open")
}

// scriptSource serves a fixed number of flat frames, advancing the shared
// fake clock per frame, then blocks until the context is cancelled. The
// exhausted channel closes once the last frame has been served.
type scriptSource struct {
	clk       *fakeClock
	interval  time.Duration
	total     int
	served    int
	exhausted chan struct{}
}

func newScriptSource(clk *fakeClock, interval time.Duration, total int) *scriptSource {
	return &scriptSource{clk: clk, interval: interval, total: total, exhausted: make(chan struct{})}
}

func (s *scriptSource) Open(ctx context.Context) error { return nil }
func (s *scriptSource) Close() error                   { return nil }

func (s *scriptSource) Read(ctx context.Context) (*vision.Frame, error) {
	if s.served >= s.total {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f := vision.NewFrame(8, 8, s.clk.Now())
	s.served++
	s.clk.Advance(s.interval)
	if s.served == s.total {
		close(s.exhausted)
	}
	return f, nil
}

var _ camera.Source = (*scriptSource)(nil)

type failingSource struct{}

func (s *failingSource) Open(ctx context.Context) error { return errors.New("no such device") }
func (s *failingSource) Read(ctx context.Context) (*vision.Frame, error) {
	return nil, errors.New("not open")
}
func (s *failingSource) Close() error { return nil }

// scriptAreas returns an area function reporting one large component on the
// frames whose script entry is true.
func scriptAreas(script []bool) vision.AreaFunc {
	i := 0
	return func(mask []uint8, width, height int) []float64 {
		v := false
		if i < len(script) {
			v = script[i]
		}
		i++
		if v {
			return []float64{1 << 20}
		}
		return nil
	}
}
