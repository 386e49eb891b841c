// Package recorder owns the encoder lifecycle for motion clips: a bounded
// frame buffer between the capture loop and a per-recording consumer
// goroutine, with drop-on-full backpressure and a bounded drain on stop.
package recorder

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/vigilcam/sentry.vision/internal/monitoring"
	"github.com/vigilcam/sentry.vision/internal/vision"
)

// DefaultBufferSize is the frame buffer capacity between producer and
// consumer. Bounded memory takes priority over completeness: a full buffer
// drops incoming frames rather than blocking the capture loop.
const DefaultBufferSize = 100

// drainTimeout bounds how long Stop waits for the consumer to flush the
// buffer and close the encoder. A stuck encoder must not hang the
// supervisor indefinitely.
const drainTimeout = 5 * time.Second

// Handle identifies a finalized recording.
type Handle struct {
	ID        string        `json:"id"`
	CameraID  string        `json:"camera_id"`
	Path      string        `json:"path"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
}

// Sink accepts frames while a recording is active and writes them to a
// sequential video file on its own goroutine. Start, AddFrame and Stop are
// called from the owning supervisor goroutine; only the internal buffer and
// the done channel are shared with the consumer.
type Sink struct {
	cameraID   string
	outputDir  string
	fps        int
	bufferSize int
	newEncoder EncoderFactory

	active    bool
	buf       chan *vision.Frame
	quit      chan struct{}
	done      chan struct{}
	path      string
	startTime time.Time
	lastDur   time.Duration

	metrics *monitoring.PipelineMetrics
	now     func() time.Time
}

// NewSink builds a sink for one camera. bufferSize <= 0 selects
// DefaultBufferSize.
func NewSink(cameraID, outputDir string, fps, bufferSize int, factory EncoderFactory) *Sink {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Sink{
		cameraID:   cameraID,
		outputDir:  outputDir,
		fps:        fps,
		bufferSize: bufferSize,
		newEncoder: factory,
		metrics:    monitoring.MetricsFor(cameraID),
		now:        time.Now,
	}
}

// Start opens an encoder sized to the first frame and begins the consumer
// loop. It is idempotent: calling it while active is a no-op. The first
// frame is accepted immediately.
func (s *Sink) Start(first *vision.Frame) error {
	if s.active {
		return nil
	}

	s.startTime = s.now()
	s.path = filepath.Join(s.outputDir,
		fmt.Sprintf("%s_%s.avi", s.cameraID, s.startTime.Format("20060102_150405")))

	enc, err := s.newEncoder(s.path, first.Width, first.Height, s.fps)
	if err != nil {
		return err
	}

	s.buf = make(chan *vision.Frame, s.bufferSize)
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	s.active = true
	s.metrics.RecordingsStarted.Add(1)

	go s.consume(enc, s.buf, s.quit, s.done)

	s.AddFrame(first)
	return nil
}

// AddFrame enqueues a copy of the frame for encoding. If the buffer is full
// the frame is dropped; the drop is counted but never fatal, and frames
// already buffered are untouched.
func (s *Sink) AddFrame(f *vision.Frame) {
	if !s.active {
		return
	}
	select {
	case s.buf <- f.Clone():
	default:
		s.metrics.FramesDropped.Add(1)
	}
}

// consume dequeues frames and writes them to the encoder in arrival order.
// After stop is signalled it drains whatever is buffered, then closes the
// encoder. A single bad frame is skipped, not fatal to the clip.
func (s *Sink) consume(enc Encoder, buf chan *vision.Frame, quit, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := enc.Close(); err != nil {
			monitoring.Logf("camera %s: encoder close failed: %v", s.cameraID, err)
		}
	}()

	write := func(f *vision.Frame) {
		if err := enc.WriteFrame(f); err != nil {
			s.metrics.EncodeFailures.Add(1)
			monitoring.Logf("camera %s: frame encode failed, skipping: %v", s.cameraID, err)
		}
	}

	for {
		select {
		case f := <-buf:
			write(f)
		case <-quit:
			for {
				select {
				case f := <-buf:
					write(f)
				default:
					return
				}
			}
		}
	}
}

// Stop finalizes the active recording and returns its handle, or nil if
// nothing was recording. It blocks until the consumer has drained the buffer
// and closed the encoder, up to drainTimeout.
func (s *Sink) Stop() *Handle {
	if !s.active {
		return nil
	}
	s.active = false
	close(s.quit)

	select {
	case <-s.done:
	case <-time.After(drainTimeout):
		monitoring.Logf("camera %s: recording drain timed out after %s", s.cameraID, drainTimeout)
	}

	s.lastDur = s.now().Sub(s.startTime)
	s.metrics.RecordingsCompleted.Add(1)

	return &Handle{
		ID:        uuid.NewString(),
		CameraID:  s.cameraID,
		Path:      s.path,
		StartTime: s.startTime,
		Duration:  s.lastDur,
	}
}

// IsActive reports whether a recording is in progress.
func (s *Sink) IsActive() bool { return s.active }

// LastDuration returns the wall-clock span of the most recently finalized
// recording. Wall clock, not frame count over fps: dropped frames must not
// skew the reported duration.
func (s *Sink) LastDuration() time.Duration { return s.lastDur }
