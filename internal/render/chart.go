package render

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"uav-deconflict/internal/deconflict"
)

// ThresholdSeries is the series name of the horizontal separation minimum.
const ThresholdSeries = "min separation"

// SeparationChart renders an HTML line chart of horizontal distance over time
// for every intruder, with the configured minimum drawn across the shared
// time span.
func SeparationChart(w io.Writer, title string, series []deconflict.SeparationSeries, cfg deconflict.Config) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1000px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("min_sep_xy_m=%g dt_s=%g", cfg.MinSepXYM, cfg.DtS)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "distance (m)", NameLocation: "middle", NameGap: 40}),
	)

	tMin, tMax, seen := 0.0, 0.0, false
	for _, s := range series {
		data := make([]opts.LineData, 0, len(s.Samples))
		for _, smp := range s.Samples {
			data = append(data, opts.LineData{Value: []interface{}{smp.Time, smp.Distance}})
			if !seen || smp.Time < tMin {
				tMin = smp.Time
			}
			if !seen || smp.Time > tMax {
				tMax = smp.Time
			}
			seen = true
		}
		line.AddSeries(s.OtherID, data)
	}
	if seen {
		line.AddSeries(ThresholdSeries, []opts.LineData{
			{Value: []interface{}{tMin, cfg.MinSepXYM}},
			{Value: []interface{}{tMax, cfg.MinSepXYM}},
		})
	}
	return line.Render(w)
}

// SaveSeparationChart writes the chart to dir/name.html and returns the path.
func SaveSeparationChart(dir, name string, series []deconflict.SeparationSeries, cfg deconflict.Config) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(name)+".html")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := SeparationChart(f, name, series, cfg); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("render chart: %w", err)
	}
	return path, f.Close()
}

// FileName maps a scenario name to a safe file stem.
func FileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "scenario"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
