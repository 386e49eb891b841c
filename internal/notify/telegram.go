package notify

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vigilcam/sentry.vision/internal/config"
	"github.com/vigilcam/sentry.vision/internal/monitoring"
	"github.com/vigilcam/sentry.vision/internal/recorder"
	"github.com/vigilcam/sentry.vision/internal/vision"
)

const snapshotQuality = 85

// sender is the slice of the Telegram bot API the notifier uses; tests
// substitute a recorder.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// compressFn shrinks an oversize clip, returning the compressed path and
// whether the result came in under maxSize. Tests substitute a stub.
type compressFn func(path string, maxSize int64) (string, bool)

// Telegram delivers alerts to a Telegram chat. Sends run on short-lived
// goroutines so the supervisor is never blocked on the network.
type Telegram struct {
	bot          sender
	chatID       int64
	sendSnapshot bool
	sendVideo    bool
	maxVideoSize int64
	compress     compressFn
}

// NewTelegram connects the bot. Construction failure disables notifications
// for the process; the caller falls back to Noop.
func NewTelegram(cfg *config.Telegram) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}
	return &Telegram{
		bot:          bot,
		chatID:       cfg.ChatID,
		sendSnapshot: cfg.SendSnapshot,
		sendVideo:    cfg.SendVideo,
		maxVideoSize: cfg.MaxVideoSizeMB * 1024 * 1024,
		compress:     ffmpegCompress,
	}, nil
}

// SendAlert encodes the snapshot as JPEG and posts it with the caption.
func (t *Telegram) SendAlert(cameraID string, snapshot *vision.Frame, caption string) {
	if !t.sendSnapshot || snapshot == nil {
		return
	}
	frame := snapshot.Clone()
	go func() {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, frame.Gray(), &jpeg.Options{Quality: snapshotQuality}); err != nil {
			t.fail(cameraID, "snapshot encode", err)
			return
		}
		photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FileBytes{
			Name:  fmt.Sprintf("motion_%s.jpg", cameraID),
			Bytes: buf.Bytes(),
		})
		photo.Caption = caption
		if _, err := t.bot.Send(photo); err != nil {
			t.fail(cameraID, "alert send", err)
		}
	}()
}

// SendClip uploads the finished recording. An oversize clip is re-encoded
// first; if that still exceeds the limit it goes out as a document, which
// Telegram accepts without transcoding limits.
func (t *Telegram) SendClip(cameraID string, h *recorder.Handle, caption string) {
	if !t.sendVideo || h == nil {
		return
	}
	go func() {
		fi, err := os.Stat(h.Path)
		if err != nil {
			t.fail(cameraID, "clip stat", err)
			return
		}

		path := h.Path
		asVideo := fi.Size() <= t.maxVideoSize
		if !asVideo && t.compress != nil {
			if compressed, ok := t.compress(path, t.maxVideoSize); ok {
				path = compressed
				asVideo = true
			} else {
				monitoring.Logf("camera %s: clip too large, sending as document", cameraID)
			}
		}

		var msg tgbotapi.Chattable
		if asVideo {
			video := tgbotapi.NewVideo(t.chatID, tgbotapi.FilePath(path))
			video.Caption = caption
			video.SupportsStreaming = true
			msg = video
		} else {
			doc := tgbotapi.NewDocument(t.chatID, tgbotapi.FilePath(path))
			doc.Caption = caption
			msg = doc
		}
		if _, err := t.bot.Send(msg); err != nil {
			t.fail(cameraID, "clip send", err)
		}
	}()
}

// ffmpegCompress re-encodes the clip with x264 into the temp directory and
// reports success only when the result fits under maxSize.
func ffmpegCompress(path string, maxSize int64) (string, bool) {
	out := filepath.Join(os.TempDir(), "compressed_"+filepath.Base(path))
	cmd := exec.Command("ffmpeg", "-y", "-i", path,
		"-vcodec", "libx264", "-crf", "28", "-preset", "fast", out)
	if err := cmd.Run(); err != nil {
		monitoring.Logf("failed to compress clip %s: %v", path, err)
		return "", false
	}
	fi, err := os.Stat(out)
	if err != nil || fi.Size() > maxSize {
		return "", false
	}
	return out, true
}

func (t *Telegram) fail(cameraID, what string, err error) {
	monitoring.MetricsFor(cameraID).AlertFailures.Add(1)
	monitoring.Logf("camera %s: telegram %s failed: %v", cameraID, what, err)
}
