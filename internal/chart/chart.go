// Package chart writes PNG plots of a parsed dump.
package chart

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/verte-zerg/dt5202fix/internal/model"
	"github.com/verte-zerg/dt5202fix/internal/outlier"
)

// File names written by WriteAll.
const (
	TrgIDFile    = "trgid.png"
	TSFile       = "ts.png"
	ChannelsFile = "channels.png"
)

const channelBins = 64

var (
	seriesColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	fenceColor   = color.RGBA{R: 127, G: 127, B: 127, A: 255}
	outlierColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// WriteAll renders the trigger-ID and timestamp sequences with their IQR fences and a
// histogram of channel values into dir. It returns the written paths.
func WriteAll(dir string, t *model.FrameTable, report outlier.Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plot dir: %w", err)
	}
	var written []string

	trgPath := filepath.Join(dir, TrgIDFile)
	if err := sequencePlot("Trigger ID", "TrgID", outlier.TrgIDSequence(t), report.TrgIDIQR, trgPath); err != nil {
		return written, err
	}
	written = append(written, trgPath)

	tsPath := filepath.Join(dir, TSFile)
	if err := sequencePlot("Timestamp", "TS", outlier.TimestampSequence(t), report.TSIQR, tsPath); err != nil {
		return written, err
	}
	written = append(written, tsPath)

	if len(t.Readings) > 0 {
		chPath := filepath.Join(dir, ChannelsFile)
		if err := channelHistogram(t.Readings, chPath); err != nil {
			return written, err
		}
		written = append(written, chPath)
	}
	return written, nil
}

func sequencePlot(title, yLabel string, seq outlier.Sequence, flagged outlier.Result, path string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = yLabel

	pts := make(plotter.XYs, 0, len(seq.Values))
	var outPts plotter.XYs
	for i, v := range seq.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		pt := plotter.XY{X: float64(seq.Frames[i]), Y: v}
		pts = append(pts, pt)
		if flagged.Contains(seq.Frames[i]) {
			outPts = append(outPts, pt)
		}
	}
	if len(pts) > 0 {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build %s line: %w", yLabel, err)
		}
		line.Color = seriesColor
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(yLabel, line)
	}

	if flagged.HasFence && len(pts) > 0 {
		x0, x1 := pts[0].X, pts[len(pts)-1].X
		drawn := 0
		for _, bound := range []float64{flagged.Fence.Lower, flagged.Fence.Upper} {
			// An Inf in the sample makes the fence infinite.
			if math.IsNaN(bound) || math.IsInf(bound, 0) {
				continue
			}
			drawn++
			fence, err := plotter.NewLine(plotter.XYs{{X: x0, Y: bound}, {X: x1, Y: bound}})
			if err != nil {
				return fmt.Errorf("failed to build fence: %w", err)
			}
			fence.Color = fenceColor
			fence.Width = vg.Points(1)
			fence.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
			p.Add(fence)
		}
		if drawn > 0 {
			p.Legend.Add(fmt.Sprintf("IQR fence (k=%g)", flagged.Threshold), fenceLegend())
		}
	}

	if len(outPts) > 0 {
		sc, err := plotter.NewScatter(outPts)
		if err != nil {
			return fmt.Errorf("failed to build outliers: %w", err)
		}
		sc.GlyphStyle.Color = outlierColor
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add(fmt.Sprintf("outliers (%d)", len(outPts)), sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func channelHistogram(readings []model.ChannelReading, path string) error {
	values := make(plotter.Values, len(readings))
	for i, r := range readings {
		values[i] = float64(r.Value)
	}
	p := plot.New()
	p.Title.Text = "Channel values"
	p.X.Label.Text = "ADC"
	p.Y.Label.Text = "Readings"

	hist, err := plotter.NewHist(values, channelBins)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	hist.FillColor = seriesColor
	p.Add(hist)

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func fenceLegend() plot.Thumbnailer {
	return &plotter.Line{LineStyle: draw.LineStyle{
		Color:  fenceColor,
		Width:  vg.Points(1),
		Dashes: []vg.Length{vg.Points(4), vg.Points(3)},
	}}
}
