package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/vigilcam/sentry.vision/internal/api"
	"github.com/vigilcam/sentry.vision/internal/camera"
	"github.com/vigilcam/sentry.vision/internal/config"
	"github.com/vigilcam/sentry.vision/internal/db"
	"github.com/vigilcam/sentry.vision/internal/notify"
	"github.com/vigilcam/sentry.vision/internal/overlay"
	"github.com/vigilcam/sentry.vision/internal/recorder"
	"github.com/vigilcam/sentry.vision/internal/supervisor"
	"github.com/vigilcam/sentry.vision/internal/vision"
)

var (
	configPath = flag.String("config", "config.json", "Path to config file")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	devMode    = flag.Bool("dev", false, "Run with synthetic cameras instead of real sources")
)

// recordingLog fans each finalized clip out to SQLite and the append-only
// JSONL file. Both sinks are best-effort relative to each other: a database
// failure does not suppress the JSONL line.
type recordingLog struct {
	db    *db.DB
	jsonl *db.JSONLLog
}

func (l *recordingLog) Append(h *recorder.Handle, cameraName string) error {
	var firstErr error
	if err := l.db.InsertRecording(context.Background(), db.Recording{
		ID:         h.ID,
		CameraID:   h.CameraID,
		CameraName: cameraName,
		Path:       h.Path,
		StartTime:  h.StartTime,
		Duration:   h.Duration,
	}); err != nil {
		firstErr = err
	}
	if err := l.jsonl.Append(db.LogEntry{
		CameraID:        h.CameraID,
		CameraName:      cameraName,
		VideoPath:       h.Path,
		Timestamp:       h.StartTime,
		DurationSeconds: h.Duration.Seconds(),
	}); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// buildSupervisors wires one supervisor per configured camera. In dev mode
// every source is synthetic with a moving block, so the whole pipeline can be
// exercised without camera hardware.
func buildSupervisors(cfg *config.Config, notifier notify.Notifier, log supervisor.RecordingLog, dev bool) []*supervisor.Supervisor {
	var annotate func(*vision.Frame) *vision.Frame
	if cfg.Overlay.Enabled {
		annotate = overlay.New(cfg.Overlay.Position, cfg.Overlay.Format).Annotate
	}

	sups := make([]*supervisor.Supervisor, 0, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		var src camera.Source
		if dev {
			syn := camera.NewSyntheticSource(cfg.Recording.Width, cfg.Recording.Height, cfg.Recording.FPS)
			syn.Render = camera.MovingBlock(cfg.Recording.Width / 8)
			src = syn
		} else {
			src = camera.NewFFmpegSource(cam.ID, cam.URL,
				cfg.Recording.Width, cfg.Recording.Height, cfg.Recording.FPS)
		}

		sink := recorder.NewSink(cam.ID, cfg.Recording.OutputDir,
			cfg.Recording.FPS, cfg.Recording.BufferSize,
			recorder.NewAVIEncoderFactory(cfg.Recording.Quality))

		sups = append(sups, supervisor.New(cam, supervisor.Deps{
			Source:   src,
			Sink:     sink,
			Notifier: notifier,
			Log:      log,
			Annotate: annotate,
		}))
	}
	return sups
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.BootstrapDirs(); err != nil {
		log.Fatalf("failed to create directories: %v", err)
	}

	addr := cfg.System.Listen
	if *listen != "" {
		addr = *listen
	}

	database, err := db.Open(cfg.System.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Telegram != nil && !*devMode {
		tg, err := notify.NewTelegram(cfg.Telegram)
		if err != nil {
			log.Fatalf("failed to connect to Telegram: %v", err)
		}
		notifier = tg
	}

	recLog := &recordingLog{
		db:    database,
		jsonl: db.NewJSONLLog(filepath.Join(cfg.System.LogDir, "recordings.jsonl")),
	}

	ctrl := supervisor.NewController(buildSupervisors(cfg, notifier, recLog, *devMode)...)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// camera pipelines
	ctrl.Start(ctx)

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(ctrl, database, cfg.Recording.OutputDir).ServeMux()
		server := &http.Server{
			Addr:    addr,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("dashboard listening on %s", addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	<-ctx.Done()
	ctrl.Stop()
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
