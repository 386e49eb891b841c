// motion-report renders offline PNG charts from the recordings database:
// a recordings-per-hour histogram and a clip-duration series. Useful for
// tuning thresholds and cooldowns after a few days of capture.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/vigilcam/sentry.vision/internal/db"
)

var (
	dbPath  = flag.String("db", "recordings.db", "Path to recordings database")
	outDir  = flag.String("out", "plots", "Output directory for PNG charts")
	cameraF = flag.String("camera", "", "Restrict duration chart to one camera ID")
	limit   = flag.Int("limit", 1000, "Maximum recordings for the duration chart")
)

func main() {
	flag.Parse()

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	ctx := context.Background()
	if err := plotHourHistogram(ctx, database); err != nil {
		log.Fatalf("hour histogram: %v", err)
	}
	if err := plotDurations(ctx, database); err != nil {
		log.Fatalf("duration chart: %v", err)
	}
}

func plotHourHistogram(ctx context.Context, database *db.DB) error {
	stats, err := database.Stats(ctx)
	if err != nil {
		return err
	}

	values := make(plotter.Values, 24)
	for h, n := range stats.PerHour {
		values[h] = float64(n)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Recordings by hour (UTC), total=%d", stats.TotalRecordings)
	p.X.Label.Text = "hour of day"
	p.Y.Label.Text = "recordings"

	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return err
	}
	p.Add(bars)

	labels := make([]string, 24)
	for h := range labels {
		labels[h] = fmt.Sprintf("%02d", h)
	}
	p.NominalX(labels...)

	out := filepath.Join(*outDir, "activity_by_hour.png")
	if err := p.Save(10*vg.Inch, 4*vg.Inch, out); err != nil {
		return err
	}
	log.Printf("wrote %s", out)
	return nil
}

func plotDurations(ctx context.Context, database *db.DB) error {
	recs, err := database.ListRecordings(ctx, db.ListFilter{
		CameraID: *cameraF,
		Limit:    *limit,
	})
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		log.Printf("no recordings, skipping duration chart")
		return nil
	}

	// ListRecordings is newest-first; plot oldest-first.
	pts := make(plotter.XYs, len(recs))
	durs := make([]float64, len(recs))
	for i, r := range recs {
		j := len(recs) - 1 - i
		pts[j] = plotter.XY{X: float64(j), Y: r.Duration.Seconds()}
		durs[j] = r.Duration.Seconds()
	}
	mean, stddev := stat.MeanStdDev(durs, nil)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Clip durations (n=%d, mean=%.1fs, stddev=%.1fs)",
		len(recs), mean, stddev)
	p.X.Label.Text = "recording (oldest first)"
	p.Y.Label.Text = "seconds"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	p.Add(line)

	out := filepath.Join(*outDir, "clip_durations.png")
	if err := p.Save(10*vg.Inch, 4*vg.Inch, out); err != nil {
		return err
	}
	log.Printf("wrote %s", out)
	return nil
}
