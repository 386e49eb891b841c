// Package config loads and validates the surveillance system configuration.
//
// The schema is a single JSON document covering cameras, recording output,
// the timestamp overlay and the optional Telegram notifier. Configuration
// errors are rejected eagerly at load time, before any camera starts; the
// pipeline never sees a malformed ROI or a non-positive duration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path checked when no -config flag is given.
const DefaultConfigPath = "config/sentry.json"

// Camera holds the per-camera tuning parameters. ROI coordinates are
// fractional (0-1) relative to the frame size.
type Camera struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// URL is the stream source: an RTSP URL or a V4L2 device index.
	URL string `json:"url"`

	// ROI is [x1, y1, x2, y2] with x1<x2 and y1<y2, all in 0-1.
	ROI [4]float64 `json:"roi"`

	// MotionThreshold is the minimum contour area, in pixels, for a
	// foreground blob to qualify as motion.
	MotionThreshold float64 `json:"motion_threshold"`

	// MinMotionFrames is the consecutive qualifying frames required
	// before motion is confirmed.
	MinMotionFrames int `json:"min_motion_frames"`

	// MinRecordingTime and CooldownTime are duration strings like "5s".
	MinRecordingTime string `json:"min_recording_time"`
	CooldownTime     string `json:"cooldown_time"`
}

// MinRecording returns the parsed minimum recording duration.
// Validate must have succeeded first.
func (c *Camera) MinRecording() time.Duration {
	d, _ := time.ParseDuration(c.MinRecordingTime)
	return d
}

// Cooldown returns the parsed cooldown duration.
// Validate must have succeeded first.
func (c *Camera) Cooldown() time.Duration {
	d, _ := time.ParseDuration(c.CooldownTime)
	return d
}

// Recording holds encoder output settings shared by all cameras.
type Recording struct {
	OutputDir  string `json:"output_dir"`
	TempDir    string `json:"temp_dir"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FPS        int    `json:"fps"`
	Codec      string `json:"codec"` // encoder identifier, e.g. "mjpeg"
	Quality    int    `json:"quality,omitempty"`
	BufferSize int    `json:"buffer_size,omitempty"` // frames; default 100
}

// Overlay configures the timestamp renderer.
type Overlay struct {
	Enabled  bool   `json:"enabled"`
	Position string `json:"position,omitempty"` // top-left, top-right, bottom-left, bottom-right
	Format   string `json:"format,omitempty"`   // Go time layout
}

// Telegram configures the notifier. A nil Telegram section disables alerts.
type Telegram struct {
	BotToken       string `json:"bot_token"`
	ChatID         int64  `json:"chat_id"`
	SendSnapshot   bool   `json:"send_snapshot"`
	SendVideo      bool   `json:"send_video"`
	MaxVideoSizeMB int64  `json:"max_video_size_mb,omitempty"`
}

// System holds process-level settings.
type System struct {
	DBPath string `json:"db_path,omitempty"`
	LogDir string `json:"log_dir,omitempty"`
	Listen string `json:"listen,omitempty"`
}

// Config is the root configuration document.
type Config struct {
	Cameras   []Camera  `json:"cameras"`
	Recording Recording `json:"recording"`
	Overlay   Overlay   `json:"overlay"`
	Telegram  *Telegram `json:"telegram,omitempty"`
	System    System    `json:"system"`
}

// Load reads, parses and validates a config file. The file must have a
// .json extension and be under 1MB; partial documents pick up defaults
// via applyDefaults before validation.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Recording.OutputDir == "" {
		c.Recording.OutputDir = "recordings"
	}
	if c.Recording.TempDir == "" {
		c.Recording.TempDir = "tmp"
	}
	if c.Recording.Width == 0 {
		c.Recording.Width = 1280
	}
	if c.Recording.Height == 0 {
		c.Recording.Height = 720
	}
	if c.Recording.FPS == 0 {
		c.Recording.FPS = 15
	}
	if c.Recording.Codec == "" {
		c.Recording.Codec = "mjpeg"
	}
	if c.Recording.Quality == 0 {
		c.Recording.Quality = 80
	}
	if c.Recording.BufferSize == 0 {
		c.Recording.BufferSize = 100
	}
	if c.Overlay.Position == "" {
		c.Overlay.Position = "bottom-right"
	}
	if c.Overlay.Format == "" {
		c.Overlay.Format = "2006-01-02 15:04:05"
	}
	if c.System.DBPath == "" {
		c.System.DBPath = "sentry.db"
	}
	if c.System.LogDir == "" {
		c.System.LogDir = "logs"
	}
	if c.System.Listen == "" {
		c.System.Listen = ":8080"
	}
	if c.Telegram != nil && c.Telegram.MaxVideoSizeMB == 0 {
		c.Telegram.MaxVideoSizeMB = 50
	}
	for i := range c.Cameras {
		cam := &c.Cameras[i]
		if cam.Name == "" {
			cam.Name = cam.ID
		}
		if cam.MotionThreshold == 0 {
			cam.MotionThreshold = 500
		}
		if cam.MinMotionFrames == 0 {
			cam.MinMotionFrames = 10
		}
		if cam.MinRecordingTime == "" {
			cam.MinRecordingTime = "10s"
		}
		if cam.CooldownTime == "" {
			cam.CooldownTime = "5s"
		}
	}
}

// Validate rejects malformed configuration. Values are never silently
// clamped; every problem is reported with the offending camera ID.
func (c *Config) Validate() error {
	if len(c.Cameras) == 0 {
		return fmt.Errorf("no cameras configured")
	}
	seen := make(map[string]bool, len(c.Cameras))
	for i := range c.Cameras {
		cam := &c.Cameras[i]
		if cam.ID == "" {
			return fmt.Errorf("camera %d: missing id", i)
		}
		if seen[cam.ID] {
			return fmt.Errorf("camera %q: duplicate id", cam.ID)
		}
		seen[cam.ID] = true
		if cam.URL == "" {
			return fmt.Errorf("camera %q: missing url", cam.ID)
		}
		if err := validateROI(cam.ROI); err != nil {
			return fmt.Errorf("camera %q: %w", cam.ID, err)
		}
		if cam.MotionThreshold <= 0 {
			return fmt.Errorf("camera %q: motion_threshold must be positive, got %v", cam.ID, cam.MotionThreshold)
		}
		if cam.MinMotionFrames <= 0 {
			return fmt.Errorf("camera %q: min_motion_frames must be positive, got %d", cam.ID, cam.MinMotionFrames)
		}
		if err := validateDuration("min_recording_time", cam.MinRecordingTime); err != nil {
			return fmt.Errorf("camera %q: %w", cam.ID, err)
		}
		if err := validateDuration("cooldown_time", cam.CooldownTime); err != nil {
			return fmt.Errorf("camera %q: %w", cam.ID, err)
		}
	}

	if c.Recording.Width <= 0 || c.Recording.Height <= 0 {
		return fmt.Errorf("recording resolution must be positive, got %dx%d", c.Recording.Width, c.Recording.Height)
	}
	if c.Recording.FPS <= 0 {
		return fmt.Errorf("recording fps must be positive, got %d", c.Recording.FPS)
	}
	if c.Recording.Codec != "mjpeg" {
		return fmt.Errorf("unsupported codec %q (only mjpeg is supported)", c.Recording.Codec)
	}
	if c.Recording.Quality < 1 || c.Recording.Quality > 100 {
		return fmt.Errorf("recording quality must be 1-100, got %d", c.Recording.Quality)
	}
	if c.Recording.BufferSize <= 0 {
		return fmt.Errorf("recording buffer_size must be positive, got %d", c.Recording.BufferSize)
	}

	switch c.Overlay.Position {
	case "top-left", "top-right", "bottom-left", "bottom-right":
	default:
		return fmt.Errorf("unknown overlay position %q", c.Overlay.Position)
	}

	if c.Telegram != nil {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram: missing bot_token")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram: missing chat_id")
		}
	}
	return nil
}

func validateROI(roi [4]float64) error {
	for i, v := range roi {
		if v < 0 || v > 1 {
			return fmt.Errorf("roi[%d] = %v out of range [0,1]", i, v)
		}
	}
	if roi[0] >= roi[2] {
		return fmt.Errorf("roi x1 (%v) must be less than x2 (%v)", roi[0], roi[2])
	}
	if roi[1] >= roi[3] {
		return fmt.Errorf("roi y1 (%v) must be less than y2 (%v)", roi[1], roi[3])
	}
	return nil
}

func validateDuration(name, s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", name, s, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, s)
	}
	return nil
}

// BootstrapDirs creates the output, temp and log directories. Called once at
// startup before any camera opens.
func (c *Config) BootstrapDirs() error {
	for _, dir := range []string{c.Recording.OutputDir, c.Recording.TempDir, c.System.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
