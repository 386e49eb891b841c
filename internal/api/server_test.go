package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilcam/sentry.vision/internal/camera"
	"github.com/vigilcam/sentry.vision/internal/config"
	"github.com/vigilcam/sentry.vision/internal/db"
	"github.com/vigilcam/sentry.vision/internal/monitoring"
	"github.com/vigilcam/sentry.vision/internal/recorder"
	"github.com/vigilcam/sentry.vision/internal/supervisor"
)

type testEnv struct {
	srv           *Server
	db            *db.DB
	recordingsDir string
	ctrl          *supervisor.Controller
}

// newTestEnv wires a server over a real SQLite database and one camera whose
// synthetic source produces flat frames. The motion threshold is set high
// enough that nothing ever records.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	monitoring.ResetMetrics()

	dir := t.TempDir()
	database, err := db.Open(filepath.Join(dir, "recordings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	recordingsDir := filepath.Join(dir, "recordings")
	require.NoError(t, os.MkdirAll(recordingsDir, 0o755))

	src := camera.NewSyntheticSource(16, 16, 50)
	sup := supervisor.New(config.Camera{
		ID:               "cam1",
		Name:             "Front Door",
		URL:              "0",
		ROI:              [4]float64{0, 0, 1, 1},
		MotionThreshold:  1 << 20,
		MinMotionFrames:  5,
		MinRecordingTime: "1s",
		CooldownTime:     "1s",
	}, supervisor.Deps{
		Source: src,
		Sink:   recorder.NewSink("cam1", recordingsDir, 10, 16, recorder.NewAVIEncoderFactory(80)),
	})

	ctrl := supervisor.NewController(sup)
	return &testEnv{
		srv:           NewServer(ctrl, database, recordingsDir),
		db:            database,
		recordingsDir: recordingsDir,
		ctrl:          ctrl,
	}
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	e.srv.ServeMux().ServeHTTP(w, req)
	return w
}

func insertRecording(t *testing.T, e *testEnv, id, cameraID, path string, start time.Time) {
	t.Helper()
	require.NoError(t, e.db.InsertRecording(context.Background(), db.Recording{
		ID:         id,
		CameraID:   cameraID,
		CameraName: "Front Door",
		Path:       path,
		StartTime:  start,
		Duration:   12 * time.Second,
	}))
}

func TestListCameras(t *testing.T) {
	e := newTestEnv(t)

	w := e.get(t, "/api/cameras")
	require.Equal(t, http.StatusOK, w.Code)

	var statuses []supervisor.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, "cam1", statuses[0].CameraID)
	assert.Equal(t, "Front Door", statuses[0].Name)
	assert.False(t, statuses[0].Recording)
}

func TestListRecordingsEmptyAndFiltered(t *testing.T) {
	e := newTestEnv(t)

	w := e.get(t, "/api/recordings")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))

	day1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)
	insertRecording(t, e, "a", "cam1", "/v/a.avi", day1)
	insertRecording(t, e, "b", "cam2", "/v/b.avi", day2)

	w = e.get(t, "/api/recordings?camera=cam2")
	require.Equal(t, http.StatusOK, w.Code)
	var recs []db.Recording
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "b", recs[0].ID)

	w = e.get(t, "/api/recordings?day=2024-06-01")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].ID)

	w = e.get(t, "/api/recordings?day=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.get(t, "/api/recordings?limit=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchRecordingsByTimeRange(t *testing.T) {
	e := newTestEnv(t)

	insertRecording(t, e, "a", "cam1", "/v/a.avi", time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	insertRecording(t, e, "b", "cam1", "/v/b.avi", time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	insertRecording(t, e, "c", "cam2", "/v/c.avi", time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC))

	var recs []db.Recording
	w := e.get(t, "/api/search?start=2024-06-01T10:00:00Z&end=2024-06-01T13:00:00Z")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "b", recs[0].ID)

	// Open-ended range plus camera filter.
	w = e.get(t, "/api/search?start=2024-06-01T10:00:00Z&camera=cam2")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "c", recs[0].ID)

	w = e.get(t, "/api/search?start=not-a-time")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.get(t, "/api/search?end=2024-05-31T00:00:00Z")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestRecordingDownload(t *testing.T) {
	e := newTestEnv(t)

	name := "cam1_20240601_100000.avi"
	path := filepath.Join(e.recordingsDir, name)
	require.NoError(t, os.WriteFile(path, []byte("avi-bytes"), 0o644))

	w := e.get(t, "/api/recordings/"+name)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "avi-bytes", w.Body.String())
	assert.Equal(t, "video/x-msvideo", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), name)
}

func TestRecordingDownloadRejectsBadNames(t *testing.T) {
	e := newTestEnv(t)

	for _, name := range []string{"notes.txt", "clip", ".hidden.avi"} {
		w := e.get(t, "/api/recordings/"+name)
		assert.Equal(t, http.StatusBadRequest, w.Code, "name %q accepted", name)
	}

	w := e.get(t, "/api/recordings/missing_20240601_100000.avi")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordingDelete(t *testing.T) {
	e := newTestEnv(t)

	name := "cam1_20240601_100000.avi"
	path := filepath.Join(e.recordingsDir, name)
	require.NoError(t, os.WriteFile(path, []byte("avi-bytes"), 0o644))
	insertRecording(t, e, "a", "cam1", path, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))

	req := httptest.NewRequest(http.MethodDelete, "/api/recordings/"+name, nil)
	w := httptest.NewRecorder()
	e.srv.ServeMux().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	recs, err := e.db.ListRecordings(context.Background(), db.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, recs)

	// Deleting again reports not found.
	req = httptest.NewRequest(http.MethodDelete, "/api/recordings/"+name, nil)
	w = httptest.NewRecorder()
	e.srv.ServeMux().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStats(t *testing.T) {
	e := newTestEnv(t)

	insertRecording(t, e, "a", "cam1", "/v/a.avi", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	insertRecording(t, e, "b", "cam1", "/v/b.avi", time.Date(2024, 6, 1, 22, 30, 0, 0, time.UTC))

	w := e.get(t, "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var resp statsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Recordings)
	assert.Equal(t, 2, resp.Recordings.TotalRecordings)
	assert.Equal(t, 1, resp.Recordings.PerHour[10])
	assert.Equal(t, 1, resp.Recordings.PerHour[22])
	assert.Equal(t, 2, resp.Recordings.PerCamera["cam1"])
}

func TestSnapshotBeforeFirstFrame(t *testing.T) {
	e := newTestEnv(t)

	w := e.get(t, "/api/snapshot/cam1")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = e.get(t, "/api/snapshot/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSnapshotAndLiveStream(t *testing.T) {
	e := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.ctrl.Start(ctx)
	defer e.ctrl.Stop()

	// Wait for the first captured frame.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if w := e.get(t, "/api/snapshot/cam1"); w.Code == http.StatusOK {
			assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
			assert.NotEmpty(t, w.Body.Bytes())
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("snapshot never became available")
		}
		time.Sleep(20 * time.Millisecond)
	}

	ts := httptest.NewServer(e.srv.ServeMux())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/live/cam1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	msgType, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)
	// JPEG SOI marker.
	require.GreaterOrEqual(t, len(frame), 2)
	assert.Equal(t, []byte{0xff, 0xd8}, frame[:2])
}

func TestActivityChart(t *testing.T) {
	e := newTestEnv(t)

	insertRecording(t, e, "a", "cam1", "/v/a.avi", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))

	w := e.get(t, "/charts/activity")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Motion Activity")
}
