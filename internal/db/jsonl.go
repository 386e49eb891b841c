package db

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// JSONLLog is the append-only recordings log, one JSON object per line.
// It survives database loss and is trivially greppable in the field; the
// SQLite table is the queryable view of the same events.
type JSONLLog struct {
	path string
	mu   sync.Mutex
}

// LogEntry is one finalized-clip line in the log.
type LogEntry struct {
	CameraID        string    `json:"camera_id"`
	CameraName      string    `json:"camera_name"`
	VideoPath       string    `json:"video_path"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds float64   `json:"duration"`
}

// NewJSONLLog creates a log writer targeting path. The file is created on
// first append.
func NewJSONLLog(path string) *JSONLLog {
	return &JSONLLog{path: path}
}

// Append writes one entry. Open-append-close per call: the log is written at
// most once per finalized clip, and an open handle held across a crash is
// not worth the durability risk.
func (l *JSONLLog) Append(e LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open recording log: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(e); err != nil {
		return fmt.Errorf("failed to append recording log entry: %w", err)
	}
	return nil
}
