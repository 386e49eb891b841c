package monitoring

import (
	"sync"
	"sync/atomic"
)

// PipelineMetrics tracks per-camera pipeline counters. All counters are
// monotonic and safe for concurrent use; Snapshot returns a point-in-time
// copy for the stats API.
type PipelineMetrics struct {
	FramesProcessed     atomic.Int64
	FramesDropped       atomic.Int64
	ReadFailures        atomic.Int64
	MotionFrames        atomic.Int64
	RecordingsStarted   atomic.Int64
	RecordingsCompleted atomic.Int64
	EncodeFailures      atomic.Int64
	AlertFailures       atomic.Int64
}

// MetricsSnapshot is a plain-value copy of PipelineMetrics suitable for JSON.
type MetricsSnapshot struct {
	FramesProcessed     int64 `json:"frames_processed"`
	FramesDropped       int64 `json:"frames_dropped"`
	ReadFailures        int64 `json:"read_failures"`
	MotionFrames        int64 `json:"motion_frames"`
	RecordingsStarted   int64 `json:"recordings_started"`
	RecordingsCompleted int64 `json:"recordings_completed"`
	EncodeFailures      int64 `json:"encode_failures"`
	AlertFailures       int64 `json:"alert_failures"`
}

// Snapshot returns a point-in-time copy of all counters.
func (m *PipelineMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		FramesProcessed:     m.FramesProcessed.Load(),
		FramesDropped:       m.FramesDropped.Load(),
		ReadFailures:        m.ReadFailures.Load(),
		MotionFrames:        m.MotionFrames.Load(),
		RecordingsStarted:   m.RecordingsStarted.Load(),
		RecordingsCompleted: m.RecordingsCompleted.Load(),
		EncodeFailures:      m.EncodeFailures.Load(),
		AlertFailures:       m.AlertFailures.Load(),
	}
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*PipelineMetrics)
)

// MetricsFor returns the metrics instance for the given camera, creating it
// on first use. Follows the sensor-registry pattern so handlers can look up
// counters without holding a reference to the supervisor.
func MetricsFor(cameraID string) *PipelineMetrics {
	registryMu.RLock()
	m, ok := registry[cameraID]
	registryMu.RUnlock()
	if ok {
		return m
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if m, ok = registry[cameraID]; ok {
		return m
	}
	m = &PipelineMetrics{}
	registry[cameraID] = m
	return m
}

// AllMetrics returns a snapshot for every registered camera.
func AllMetrics() map[string]MetricsSnapshot {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make(map[string]MetricsSnapshot, len(registry))
	for id, m := range registry {
		out[id] = m.Snapshot()
	}
	return out
}

// ResetMetrics clears the registry. Intended for tests.
func ResetMetrics() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]*PipelineMetrics)
}
