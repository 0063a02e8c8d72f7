// Package chart renders the evaluation images registered next to each model:
// the hindcast of predictions against actual generation and the feature
// importance ranking, plus the standalone forecast chart of a run.
package chart

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/tigerroll/gridcast/internal/domain/entity"
	"github.com/tigerroll/gridcast/internal/hindcast"
)

const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 4 * vg.Inch

	// logFloor replaces non-positive values on logarithmic axes. Wind output
	// of calm hours is 0, which a log scale cannot place.
	logFloor = 0.1
)

// HindcastFileName derives the artifact file name of a source's hindcast
// image.
func HindcastFileName(source string) string {
	return fmt.Sprintf("%s_hindcast.png", source)
}

// ImportanceFileName is the artifact file name of the feature importance
// image.
const ImportanceFileName = "feature_importance.png"

// SaveHindcast renders predicted and actual generation of one source as two
// time series lines. Wind charts use a logarithmic value axis since output
// spans orders of magnitude; solar charts stay linear and anchored at zero.
func SaveHindcast(path, source string, rows []hindcast.Row) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: predicted vs actual generation", source)
	p.X.Label.Text = "time"
	p.Y.Label.Text = "generation (MW)"
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02 15:04"}
	p.Add(plotter.NewGrid())

	logScale := source == entity.SourceWind
	if logScale {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	} else {
		p.Y.Min = 0
	}

	predicted := make(plotter.XYs, len(rows))
	actual := make(plotter.XYs, len(rows))
	for i, row := range rows {
		x := float64(row.Timestamp.Unix())
		predicted[i].X = x
		predicted[i].Y = axisValue(row.Predicted, logScale)
		actual[i].X = x
		actual[i].Y = axisValue(row.Actual, logScale)
	}

	predictedLine, err := plotter.NewLine(predicted)
	if err != nil {
		return fmt.Errorf("failed to build predicted line: %w", err)
	}
	actualLine, err := plotter.NewLine(actual)
	if err != nil {
		return fmt.Errorf("failed to build actual line: %w", err)
	}
	actualLine.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(predictedLine, actualLine)
	p.Legend.Add("predicted", predictedLine)
	p.Legend.Add("actual", actualLine)
	p.Legend.Top = true

	return save(p, path)
}

// SaveImportance renders the split-gain feature importance as a horizontal
// bar chart, largest gain on top.
func SaveImportance(path string, importance map[string]float64) error {
	type entry struct {
		name string
		gain float64
	}
	entries := make([]entry, 0, len(importance))
	for name, gain := range importance {
		entries = append(entries, entry{name, gain})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].gain != entries[j].gain {
			return entries[i].gain < entries[j].gain
		}
		return entries[i].name < entries[j].name
	})

	values := make(plotter.Values, len(entries))
	labels := make([]string, len(entries))
	for i, e := range entries {
		values[i] = e.gain
		labels[i] = e.name
	}

	p := plot.New()
	p.Title.Text = "Feature importance (split gain)"
	p.X.Label.Text = "total gain"

	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return fmt.Errorf("failed to build importance bars: %w", err)
	}
	bars.Horizontal = true
	p.Add(bars)
	p.NominalY(labels...)

	return save(p, path)
}

// SaveForecast renders one source's predicted generation over the forecast
// horizon.
func SaveForecast(path, source string, times []time.Time, values []float64) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: forecast generation", source)
	p.X.Label.Text = "time"
	p.Y.Label.Text = "generation (MW)"
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02 15:04"}
	p.Y.Min = 0
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(times))
	for i := range times {
		xys[i].X = float64(times[i].Unix())
		xys[i].Y = values[i]
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("failed to build forecast line: %w", err)
	}
	p.Add(line)
	p.Legend.Add("predicted", line)
	p.Legend.Top = true

	return save(p, path)
}

func axisValue(v float64, logScale bool) float64 {
	if logScale && v < logFloor {
		return logFloor
	}
	return v
}

func save(p *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create chart directory: %w", err)
	}
	if err := p.Save(chartWidth, chartHeight, path); err != nil {
		return fmt.Errorf("failed to save chart %s: %w", path, err)
	}
	return nil
}
