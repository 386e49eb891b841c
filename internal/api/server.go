// Package api serves the dashboard: recording metadata, camera status, live
// frames and clip download/delete. Read-only except for clip deletion.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vigilcam/sentry.vision/internal/db"
	"github.com/vigilcam/sentry.vision/internal/monitoring"
	"github.com/vigilcam/sentry.vision/internal/security"
	"github.com/vigilcam/sentry.vision/internal/supervisor"
)

// ANSI escape codes for request log colouring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the surveillance pipeline over HTTP.
type Server struct {
	ctrl          *supervisor.Controller
	db            *db.DB
	recordingsDir string
}

// NewServer builds the API server. recordingsDir is the directory clips are
// written to; downloads are confined to it.
func NewServer(ctrl *supervisor.Controller, db *db.DB, recordingsDir string) *Server {
	return &Server{
		ctrl:          ctrl,
		db:            db,
		recordingsDir: recordingsDir,
	}
}

// ServeMux routes the API surface.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cameras", s.listCameras)
	mux.HandleFunc("/api/recordings", s.listRecordings)
	mux.HandleFunc("/api/recordings/", s.recordingFile)
	mux.HandleFunc("/api/search", s.searchRecordings)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/snapshot/", s.snapshot)
	mux.HandleFunc("/ws/live/", s.liveStream)
	mux.HandleFunc("/charts/activity", s.activityChart)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Write([]byte("sentry.vision surveillance server"))
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write response")
	}
}

// listCameras reports the live status of every configured camera.
func (s *Server) listCameras(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sups := s.ctrl.Supervisors()
	statuses := make([]supervisor.Status, len(sups))
	for i, sup := range sups {
		statuses[i] = sup.Status()
	}
	s.writeJSON(w, statuses)
}

// listRecordings returns recording metadata, newest first. Query params:
// camera, day (2006-01-02, UTC) and limit.
func (s *Server) listRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	filter := db.ListFilter{
		CameraID: r.URL.Query().Get("camera"),
	}
	if day := r.URL.Query().Get("day"); day != "" {
		if _, err := time.Parse("2006-01-02", day); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'day' parameter, expected YYYY-MM-DD")
			return
		}
		filter.Day = day
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		filter.Limit = parsed
	}

	recs, err := s.db.ListRecordings(r.Context(), filter)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list recordings: %v", err))
		return
	}
	if recs == nil {
		recs = []db.Recording{}
	}
	s.writeJSON(w, recs)
}

// searchRecordings returns recordings whose start falls inside a time range:
// /api/search?start=2024-06-01T00:00:00Z&end=2024-06-02T00:00:00Z. Either
// bound may be omitted; an optional camera param narrows further.
func (s *Server) searchRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	filter := db.ListFilter{
		CameraID: r.URL.Query().Get("camera"),
	}
	if start := r.URL.Query().Get("start"); start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'start' parameter, expected RFC3339")
			return
		}
		filter.Start = t
	}
	if end := r.URL.Query().Get("end"); end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'end' parameter, expected RFC3339")
			return
		}
		filter.End = t
	}

	recs, err := s.db.ListRecordings(r.Context(), filter)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to search recordings: %v", err))
		return
	}
	if recs == nil {
		recs = []db.Recording{}
	}
	s.writeJSON(w, recs)
}

// recordingFile serves or deletes one clip by bare filename:
// GET /api/recordings/cam1_20240601_120000.avi streams the file,
// DELETE removes the file and its metadata row.
func (s *Server) recordingFile(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(r.URL.Path)
	if err := security.ValidateRecordingName(name); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid recording name: %v", err))
		return
	}

	path := filepath.Join(s.recordingsDir, name)
	if err := security.ValidatePathWithinDirectory(path, s.recordingsDir); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Recording path outside recordings directory")
		return
	}

	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "video/x-msvideo")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		http.ServeFile(w, r, path)

	case http.MethodDelete:
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				s.writeJSONError(w, http.StatusNotFound, "Recording not found")
			} else {
				s.writeJSONError(w, http.StatusInternalServerError,
					fmt.Sprintf("Failed to delete recording: %v", err))
			}
			return
		}
		if _, err := s.db.DeleteRecordingByPath(r.Context(), path); err != nil {
			monitoring.Logf("api: failed to delete metadata for %s: %v", name, err)
		}
		s.writeJSON(w, map[string]string{"deleted": name})

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// statsResponse bundles persisted aggregates with live pipeline counters.
type statsResponse struct {
	Recordings *db.Stats                             `json:"recordings"`
	Pipeline   map[string]monitoring.MetricsSnapshot `json:"pipeline"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := s.db.Stats(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to aggregate stats: %v", err))
		return
	}
	s.writeJSON(w, statsResponse{
		Recordings: stats,
		Pipeline:   monitoring.AllMetrics(),
	})
}

// LoggingMiddleware logs method, path, status, and duration per request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %.1fms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}
