package api

import (
	"bytes"
	"image/jpeg"
	"net/http"
	"path"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vigilcam/sentry.vision/internal/monitoring"
	"github.com/vigilcam/sentry.vision/internal/supervisor"
)

// liveFrameInterval paces the websocket push. The dashboard preview does not
// need full camera frame rate.
const liveFrameInterval = 200 * time.Millisecond

const snapshotJPEGQuality = 80

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local dashboard, same-host by default.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// cameraFromPath resolves the trailing path element to a supervisor.
func (s *Server) cameraFromPath(urlPath string) *supervisor.Supervisor {
	return s.ctrl.Supervisor(path.Base(urlPath))
}

// snapshot serves the most recent frame of a camera as JPEG:
// GET /api/snapshot/{camera}.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sup := s.cameraFromPath(r.URL.Path)
	if sup == nil {
		s.writeJSONError(w, http.StatusNotFound, "Unknown camera")
		return
	}
	f := sup.LatestFrame()
	if f == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "No frame captured yet")
		return
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Gray(), &jpeg.Options{Quality: snapshotJPEGQuality}); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to encode snapshot")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(buf.Bytes())
}

// liveStream upgrades to a websocket and pushes JPEG frames for one camera
// until the client disconnects: GET /ws/live/{camera}.
func (s *Server) liveStream(w http.ResponseWriter, r *http.Request) {
	sup := s.cameraFromPath(r.URL.Path)
	if sup == nil {
		s.writeJSONError(w, http.StatusNotFound, "Unknown camera")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("api: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Reader goroutine: its only job is to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(liveFrameInterval)
	defer ticker.Stop()

	var buf bytes.Buffer
	var lastSent time.Time
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		f := sup.LatestFrame()
		if f == nil || !f.Timestamp.After(lastSent) {
			continue
		}
		lastSent = f.Timestamp

		buf.Reset()
		if err := jpeg.Encode(&buf, f.Gray(), &jpeg.Options{Quality: snapshotJPEGQuality}); err != nil {
			monitoring.Logf("api: live frame encode failed: %v", err)
			continue
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
			return
		}
	}
}
