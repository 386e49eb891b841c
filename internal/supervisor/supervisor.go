// Package supervisor runs one concurrent pipeline per camera: capture,
// motion classification and the recording state machine. Each supervisor
// exclusively owns its source, classifier and sink; cameras never share
// mutable state or block on each other.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vigilcam/sentry.vision/internal/camera"
	"github.com/vigilcam/sentry.vision/internal/config"
	"github.com/vigilcam/sentry.vision/internal/monitoring"
	"github.com/vigilcam/sentry.vision/internal/notify"
	"github.com/vigilcam/sentry.vision/internal/recorder"
	"github.com/vigilcam/sentry.vision/internal/vision"
)

// readRetryBackoff is the pause after a transient frame-read failure before
// the capture loop tries again.
const readRetryBackoff = time.Second

// RecordingLog receives one entry per finalized clip. Implementations are
// external collaborators (database, JSONL file); append failures are logged
// and never affect the recording lifecycle.
type RecordingLog interface {
	Append(h *recorder.Handle, cameraName string) error
}

// Deps are the collaborators a supervisor drives. Source and Sink are
// required; the rest default to no-ops.
type Deps struct {
	Source   camera.Source
	Sink     *recorder.Sink
	Notifier notify.Notifier
	Log      RecordingLog

	// Annotate is the optional overlay transform applied to each frame
	// before classification and recording.
	Annotate func(*vision.Frame) *vision.Frame

	// Classifier overrides the one built from the camera config, for
	// callers that need a custom history window or area function.
	Classifier *vision.Classifier

	// Now overrides the clock. Tests drive the state machine with a
	// synthetic timeline.
	Now func() time.Time
}

// cameraState is the per-camera recording state. Mutated only inside
// processFrame on the supervisor goroutine; Status reads take stateMu.
type cameraState struct {
	recording     bool
	motionStart   time.Time
	lastMotion    time.Time
	motionCount   int
	cooldownUntil time.Time
}

// Supervisor orchestrates one camera.
type Supervisor struct {
	cfg        config.Camera
	source     camera.Source
	classifier *vision.Classifier
	sink       *recorder.Sink
	notifier   notify.Notifier
	log        RecordingLog
	annotate   func(*vision.Frame) *vision.Frame

	minRecording time.Duration
	cooldown     time.Duration

	stateMu sync.Mutex
	state   cameraState

	latestMu sync.RWMutex
	latest   *vision.Frame

	metrics *monitoring.PipelineMetrics
	now     func() time.Time
}

// New builds a supervisor from validated camera configuration.
func New(cfg config.Camera, deps Deps) *Supervisor {
	cl := deps.Classifier
	if cl == nil {
		cl = vision.NewClassifier(vision.ClassifierConfig{
			ROI:             cfg.ROI,
			AreaThreshold:   cfg.MotionThreshold,
			MinMotionFrames: cfg.MinMotionFrames,
		})
	}
	s := &Supervisor{
		cfg:        cfg,
		source:     deps.Source,
		classifier: cl,
		sink:         deps.Sink,
		notifier:     deps.Notifier,
		log:          deps.Log,
		annotate:     deps.Annotate,
		minRecording: cfg.MinRecording(),
		cooldown:     cfg.Cooldown(),
		metrics:      monitoring.MetricsFor(cfg.ID),
		now:          deps.Now,
	}
	if s.notifier == nil {
		s.notifier = notify.Noop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Run executes the capture loop until ctx is cancelled. A source that cannot
// be opened at all is fatal to this camera and returned to the controller;
// transient read failures are logged and retried after a short backoff.
// On exit any still-active recording is force-stopped so no encoder leaks.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.source.Open(ctx); err != nil {
		return fmt.Errorf("camera %s: source open: %w", s.cfg.ID, err)
	}
	defer s.source.Close()
	defer s.shutdownRecording()

	monitoring.Logf("camera %s: capture loop started", s.cfg.ID)

	for ctx.Err() == nil {
		f, err := s.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.metrics.ReadFailures.Add(1)
			monitoring.Logf("camera %s: frame read failed, retrying: %v", s.cfg.ID, err)
			if !sleepCtx(ctx, readRetryBackoff) {
				break
			}
			continue
		}

		if s.annotate != nil {
			f = s.annotate(f)
		}
		s.setLatest(f)
		s.metrics.FramesProcessed.Add(1)

		confirmed := s.classifier.Detect(f)
		s.processFrame(f, confirmed)
	}

	monitoring.Logf("camera %s: capture loop stopped", s.cfg.ID)
	return nil
}

// processFrame is the recording state machine transition for one classified
// frame. Two externally distinguishable states, IDLE and RECORDING; the
// classifier's debounce is the single confirmation gate, so the first
// confirmed frame while idle starts the recording.
func (s *Supervisor) processFrame(f *vision.Frame, motion bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	now := s.now()

	if motion {
		s.state.motionCount++
		s.state.lastMotion = now
		s.metrics.MotionFrames.Add(1)

		if !s.state.recording {
			s.startRecording(f, now)
		} else {
			s.sink.AddFrame(f)
		}
		return
	}

	if !s.state.recording {
		// Streak bookkeeping below confirmation lives in the classifier.
		return
	}

	idle := now.Sub(s.state.lastMotion)
	s.state.cooldownUntil = s.state.lastMotion.Add(s.cooldown)

	// Cooldown first: brief lapses stay inside the clip.
	if idle <= s.cooldown {
		s.sink.AddFrame(f)
		return
	}

	// Then the duration floor, measured from motionStart, not the most
	// recent motion. The clip keeps filling until it reaches the floor.
	if now.Sub(s.state.motionStart) < s.minRecording {
		s.sink.AddFrame(f)
		return
	}

	s.stopRecording()
}

// startRecording opens the sink with the current frame. An encoder open
// failure is local to this attempt: it is logged and the state machine stays
// in IDLE so the next confirmed frame retries.
func (s *Supervisor) startRecording(f *vision.Frame, now time.Time) {
	if err := s.sink.Start(f); err != nil {
		monitoring.Logf("camera %s: failed to start recording: %v", s.cfg.ID, err)
		return
	}

	s.state.recording = true
	s.state.motionStart = now
	s.state.cooldownUntil = time.Time{}
	monitoring.Logf("camera %s: recording started", s.cfg.ID)

	s.notifier.SendAlert(s.cfg.ID, f,
		fmt.Sprintf("Motion detected: %s\n%s", s.cfg.Name, now.Format("2006-01-02 15:04:05")))
}

// stopRecording finalizes the clip, resets the state machine to IDLE, and
// dispatches the clip downstream. Caller holds stateMu.
func (s *Supervisor) stopRecording() {
	h := s.sink.Stop()
	s.state.recording = false
	s.state.motionCount = 0

	if h == nil {
		return
	}
	monitoring.Logf("camera %s: recording saved: %s (%.1fs)",
		s.cfg.ID, h.Path, h.Duration.Seconds())

	s.notifier.SendClip(s.cfg.ID, h,
		fmt.Sprintf("Motion clip: %s (%.1fs)", s.cfg.Name, h.Duration.Seconds()))

	if s.log != nil {
		if err := s.log.Append(h, s.cfg.Name); err != nil {
			monitoring.Logf("camera %s: recording log append failed: %v", s.cfg.ID, err)
		}
	}
}

// shutdownRecording force-stops an active recording during teardown.
func (s *Supervisor) shutdownRecording() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state.recording {
		s.stopRecording()
	}
}

func (s *Supervisor) setLatest(f *vision.Frame) {
	s.latestMu.Lock()
	s.latest = f
	s.latestMu.Unlock()
}

// LatestFrame returns a copy of the most recent frame, or nil before the
// first frame arrives. Used by the snapshot and live-view handlers.
func (s *Supervisor) LatestFrame() *vision.Frame {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	if s.latest == nil {
		return nil
	}
	return s.latest.Clone()
}

// Status is a point-in-time view of the camera for the dashboard.
type Status struct {
	CameraID      string     `json:"camera_id"`
	Name          string     `json:"name"`
	Recording     bool       `json:"recording"`
	MotionCount   int        `json:"motion_count"`
	MotionStart   *time.Time `json:"motion_start,omitempty"`
	LastMotion    *time.Time `json:"last_motion,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`

	BackgroundFrames   int     `json:"background_frames"`
	BackgroundVariance float64 `json:"background_variance"`
}

// Status snapshots the supervisor state.
func (s *Supervisor) Status() Status {
	s.stateMu.Lock()
	st := s.state
	s.stateMu.Unlock()

	out := Status{
		CameraID:    s.cfg.ID,
		Name:        s.cfg.Name,
		Recording:   st.recording,
		MotionCount: st.motionCount,
	}
	if !st.motionStart.IsZero() {
		t := st.motionStart
		out.MotionStart = &t
	}
	if !st.lastMotion.IsZero() {
		t := st.lastMotion
		out.LastMotion = &t
	}
	if !st.cooldownUntil.IsZero() {
		t := st.cooldownUntil
		out.CooldownUntil = &t
	}

	bg := s.classifier.Background()
	out.BackgroundFrames = bg.Frames()
	out.BackgroundVariance, _ = bg.SettleStats()
	return out
}

// ID returns the camera identifier.
func (s *Supervisor) ID() string { return s.cfg.ID }

// Name returns the display name.
func (s *Supervisor) Name() string { return s.cfg.Name }

// sleepCtx sleeps for d or until ctx is done, reporting whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
