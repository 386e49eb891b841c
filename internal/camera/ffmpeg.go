package camera

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/vigilcam/sentry.vision/internal/monitoring"
	"github.com/vigilcam/sentry.vision/internal/vision"
)

// Reconnect backoff bounds for a dead decoder process.
const (
	reconnectBackoffMin = 250 * time.Millisecond
	reconnectBackoffMax = 5 * time.Second
)

// FFmpegSource decodes an RTSP URL or a local V4L2 device index to raw gray8
// frames through an ffmpeg child process. Frames arrive on stdout already
// scaled to the configured resolution, so the pipeline never resizes.
type FFmpegSource struct {
	cameraID string
	url      string
	width    int
	height   int
	fps      int

	cmd      *exec.Cmd
	stdout   io.ReadCloser
	frameBuf []uint8

	failures int
	backoff  time.Duration
}

// NewFFmpegSource builds a source for the given stream URL. A url that is
// all digits selects the local video device with that index.
func NewFFmpegSource(cameraID, url string, width, height, fps int) *FFmpegSource {
	return &FFmpegSource{
		cameraID: cameraID,
		url:      url,
		width:    width,
		height:   height,
		fps:      fps,
		frameBuf: make([]uint8, width*height),
		backoff:  reconnectBackoffMin,
	}
}

// Open starts the decoder process. Failure here is fatal to the camera;
// failures after a successful Open are handled by Read's reconnect path.
func (s *FFmpegSource) Open(ctx context.Context) error {
	if err := s.spawn(ctx); err != nil {
		return fmt.Errorf("camera %s: failed to open stream %s: %w", s.cameraID, s.url, err)
	}
	return nil
}

func (s *FFmpegSource) spawn(ctx context.Context) error {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if isDeviceIndex(s.url) {
		args = append(args, "-f", "v4l2", "-i", "/dev/video"+s.url)
	} else {
		args = append(args, "-rtsp_transport", "tcp", "-i", s.url)
	}
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"-s", fmt.Sprintf("%dx%d", s.width, s.height),
		"-r", strconv.Itoa(s.fps),
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	s.cmd = cmd
	s.stdout = stdout
	return nil
}

// Read returns the next frame. If the decoder has died, Read waits out the
// current backoff and respawns it; the backoff doubles per consecutive
// failure up to reconnectBackoffMax and resets on the first good frame.
func (s *FFmpegSource) Read(ctx context.Context) (*vision.Frame, error) {
	if s.cmd == nil {
		if err := s.reconnect(ctx); err != nil {
			return nil, err
		}
	}

	if _, err := io.ReadFull(s.stdout, s.frameBuf); err != nil {
		s.teardown()
		s.failures++
		return nil, fmt.Errorf("camera %s: frame read failed (attempt %d): %w", s.cameraID, s.failures, err)
	}

	s.failures = 0
	s.backoff = reconnectBackoffMin

	f := vision.NewFrame(s.width, s.height, time.Now())
	copy(f.Pix, s.frameBuf)
	return f, nil
}

func (s *FFmpegSource) reconnect(ctx context.Context) error {
	monitoring.Logf("camera %s: reconnecting in %s", s.cameraID, s.backoff)
	t := time.NewTimer(s.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	s.backoff *= 2
	if s.backoff > reconnectBackoffMax {
		s.backoff = reconnectBackoffMax
	}

	if err := s.spawn(ctx); err != nil {
		return fmt.Errorf("camera %s: reconnect failed: %w", s.cameraID, err)
	}
	return nil
}

func (s *FFmpegSource) teardown() {
	if s.stdout != nil {
		s.stdout.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
	s.cmd = nil
	s.stdout = nil
}

// Close stops the decoder process.
func (s *FFmpegSource) Close() error {
	s.teardown()
	return nil
}

func isDeviceIndex(url string) bool {
	if url == "" {
		return false
	}
	for _, r := range url {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
