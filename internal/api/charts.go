package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// activityChart renders an HTML bar chart of recordings per hour of day
// (UTC) across the whole recordings table. Debugging and at-a-glance use;
// the structured numbers are on /api/stats.
func (s *Server) activityChart(w http.ResponseWriter, r *http.Request) {
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

	hours := make([]string, 24)
	data := make([]opts.BarData, 24)
	for h := 0; h < 24; h++ {
		hours[h] = fmt.Sprintf("%02d:00", h)
		data[h] = opts.BarData{Value: stats.PerHour[h]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Motion Activity", Theme: "dark", Width: "900px", Height: "500px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Motion Activity by Hour",
			Subtitle: fmt.Sprintf("recordings=%d total=%.0fs (UTC)", stats.TotalRecordings, stats.TotalDuration),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "hour"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "recordings"}),
	)
	bar.SetXAxis(hours)
	bar.AddSeries("recordings", data)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
