package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/verte-zerg/dt5202fix/internal/model"
	"github.com/verte-zerg/dt5202fix/internal/outlier"
)

// Series represents a named data series for plotting.
type Series struct {
	Name   string
	Values []float64
	// Marks are positions in Values drawn as solid cells, e.g. outliers.
	Marks []int
}

// PlotOptions controls the size and colouring of a text plot.
type PlotOptions struct {
	Title string
	// Width is the plot area in cells; 0 fits the terminal.
	Width  int
	Height int
	Color  bool
}

type valueRange struct {
	min float64
	max float64
}

type lineStyle struct {
	name   string
	period int
	on     int
}

const (
	defaultPlotHeight   = 10
	minPlotWidth        = 10
	axisLabelTop        = "max"
	axisLabelMid        = "mid"
	axisLabelBottom     = "min"
	axisSeparator       = " │ "
	scaleNote           = "Scaled per series; see min/max below."
	colorReset          = "\x1b[0m"
	markCell            = '⣿'
	terminalWidthBackup = 80
)

var lineStyles = []lineStyle{
	{name: "solid", period: 1, on: 1},
	{name: "dashed", period: 6, on: 3},
	{name: "dotted", period: 4, on: 1},
}

var colorPalette = []string{
	"\x1b[36m", // cyan
	"\x1b[35m", // magenta
	"\x1b[33m", // yellow
	"\x1b[32m", // green
}

const markColor = "\x1b[31m"

// RenderSequences plots the trigger-ID and timestamp sequences of a run with their IQR
// outliers marked.
func RenderSequences(w io.Writer, t *model.FrameTable, report outlier.Report, opts PlotOptions) error {
	if opts.Title == "" {
		opts.Title = "Sequences"
	}
	return Plot(w, []Series{
		sequenceSeries("TrgID", outlier.TrgIDSequence(t), report.TrgIDIQR),
		sequenceSeries("TS", outlier.TimestampSequence(t), report.TSIQR),
	}, opts)
}

func sequenceSeries(name string, seq outlier.Sequence, flagged outlier.Result) Series {
	s := Series{Name: name, Values: seq.Values}
	for i, frame := range seq.Frames {
		if flagged.Contains(frame) {
			s.Marks = append(s.Marks, i)
		}
	}
	return s
}

// Plot renders a braille line plot of the series, each scaled to its own range.
func Plot(w io.Writer, series []Series, opts PlotOptions) error {
	series = nonEmpty(series)
	if len(series) == 0 {
		return nil
	}
	height := opts.Height
	if height <= 0 {
		height = defaultPlotHeight
	}
	width := opts.Width
	if width <= 0 {
		width = PlotWidthFor(terminalWidth())
	}
	width = max(width, minPlotWidth)

	ranges := make([]valueRange, len(series))
	layers := make([][][]uint8, len(series))
	marked := makeMarkGrid(height, width)
	for si, s := range series {
		ranges[si] = seriesRange(s.Values)
		layers[si] = makeCells(height, width)
		drawSeries(layers[si], resampleSeries(s.Values, width), ranges[si], lineStyles[si%len(lineStyles)], height)
		for _, m := range s.Marks {
			if m < 0 || m >= len(s.Values) {
				continue
			}
			x := m * width / len(s.Values)
			y := valueToRow(s.Values[m], ranges[si].min, ranges[si].max, height*4) / 4
			marked[y][x] = true
		}
	}

	useColor := shouldUseColor(w, opts.Color)
	var b strings.Builder
	if opts.Title != "" {
		b.WriteString(opts.Title + "\n")
	}
	b.WriteString(scaleNote + "\n")
	for i, s := range series {
		fmt.Fprintf(&b, "%s: min=%g max=%g", s.Name, ranges[i].min, ranges[i].max)
		if len(s.Marks) > 0 {
			fmt.Fprintf(&b, " marked=%d", len(s.Marks))
		}
		b.WriteByte('\n')
	}
	labels := axisLabels(height)
	labelWidth := runewidth.StringWidth(axisLabelTop)
	for y := 0; y < height; y++ {
		b.WriteString(runewidth.FillLeft(labels[y], labelWidth))
		b.WriteString(axisSeparator)
		for x := 0; x < width; x++ {
			if marked[y][x] {
				writeCell(&b, markCell, markColor, useColor)
				continue
			}
			mask, layer := composeCell(layers, x, y)
			color := ""
			if layer >= 0 {
				color = colorPalette[layer%len(colorPalette)]
			}
			writeCell(&b, brailleFromMask(mask), color, useColor)
		}
		b.WriteByte('\n')
	}
	b.WriteString(legend(series, useColor) + "\n\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func drawSeries(cells [][]uint8, values []float64, r valueRange, style lineStyle, height int) {
	prevX, prevY := -1, -1
	for x, v := range values {
		px := x * 2
		py := valueToRow(v, r.min, r.max, height*4)
		if prevX < 0 {
			if style.shouldPlot(px) {
				setBrailleDot(cells, px, py)
			}
		} else {
			drawLine(prevX, prevY, px, py, func(dx, dy int) {
				if style.shouldPlot(dx) {
					setBrailleDot(cells, dx, dy)
				}
			})
		}
		prevX, prevY = px, py
	}
}

func writeCell(b *strings.Builder, ch rune, color string, useColor bool) {
	if useColor && color != "" {
		b.WriteString(color)
		b.WriteRune(ch)
		b.WriteString(colorReset)
		return
	}
	b.WriteRune(ch)
}

func nonEmpty(series []Series) []Series {
	out := make([]Series, 0, len(series))
	for _, s := range series {
		if len(s.Values) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// PlotWidthFor computes a plot width that fits within the total available width.
func PlotWidthFor(totalWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	axisWidth := runewidth.StringWidth(axisLabelTop) + runewidth.StringWidth(axisSeparator)
	return max(totalWidth-axisWidth, minPlotWidth)
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func shouldUseColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

func axisLabels(height int) []string {
	labels := make([]string, height)
	if height <= 0 {
		return labels
	}
	labels[0] = axisLabelTop
	if height > 2 {
		labels[height/2] = axisLabelMid
	}
	if height > 1 {
		labels[height-1] = axisLabelBottom
	}
	return labels
}

func makeCells(height, width int) [][]uint8 {
	cells := make([][]uint8, height)
	for y := range cells {
		cells[y] = make([]uint8, width)
	}
	return cells
}

func makeMarkGrid(height, width int) [][]bool {
	grid := make([][]bool, height)
	for y := range grid {
		grid[y] = make([]bool, width)
	}
	return grid
}

func composeCell(layers [][][]uint8, x, y int) (uint8, int) {
	var mask uint8
	layer := -1
	for i, cells := range layers {
		if cells[y][x] == 0 {
			continue
		}
		if layer == -1 {
			layer = i
		}
		mask |= cells[y][x]
	}
	return mask, layer
}

func (ls lineStyle) shouldPlot(x int) bool {
	if ls.period <= 1 {
		return true
	}
	if x < 0 {
		x = -x
	}
	return x%ls.period < ls.on
}

// resampleSeries fits values to width points: bucket means when shrinking, linear
// interpolation when stretching.
func resampleSeries(values []float64, width int) []float64 {
	if len(values) == 0 || width <= 0 {
		return nil
	}
	out := make([]float64, width)
	switch {
	case len(values) == width:
		copy(out, values)
	case len(values) > width:
		for i := range out {
			start := i * len(values) / width
			end := max((i+1)*len(values)/width, start+1)
			var sum float64
			for _, v := range values[start:end] {
				sum += v
			}
			out[i] = sum / float64(end-start)
		}
	case len(values) == 1 || width == 1:
		for i := range out {
			out[i] = values[0]
		}
	default:
		for i := range out {
			pos := float64(i) * float64(len(values)-1) / float64(width-1)
			idx := int(pos)
			if idx >= len(values)-1 {
				out[i] = values[len(values)-1]
				continue
			}
			frac := pos - float64(idx)
			out[i] = values[idx]*(1-frac) + values[idx+1]*frac
		}
	}
	return out
}

// seriesRange returns the finite min and max of values, widened when flat.
func seriesRange(values []float64) valueRange {
	r := valueRange{min: math.Inf(1), max: math.Inf(-1)}
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		r.min = math.Min(r.min, v)
		r.max = math.Max(r.max, v)
	}
	if math.IsInf(r.min, 1) {
		return valueRange{min: -1, max: 1}
	}
	if math.Abs(r.max-r.min) < 1e-9 {
		r.min--
		r.max++
	}
	return r
}

func valueToRow(v, minVal, maxVal float64, height int) int {
	if height <= 1 || math.IsNaN(v) {
		return 0
	}
	pos := (v - minVal) / (maxVal - minVal)
	row := int(math.Round((1 - pos) * float64(height-1)))
	return min(max(row, 0), height-1)
}

func legend(series []Series, useColor bool) string {
	parts := make([]string, 0, len(series)+1)
	for i, s := range series {
		label := fmt.Sprintf("%c %s (%s)", brailleFromMask(0x01), s.Name, lineStyles[i%len(lineStyles)].name)
		if useColor {
			label = colorPalette[i%len(colorPalette)] + label + colorReset
		}
		parts = append(parts, label)
	}
	parts = append(parts, fmt.Sprintf("%c outlier", markCell))
	return "Legend: " + strings.Join(parts, "  ")
}

// drawLine walks the Bresenham line from (x0,y0) to (x1,y1).
func drawLine(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := abs(x1 - x0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -abs(y1 - y0)
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func setBrailleDot(cells [][]uint8, x, y int) {
	if x < 0 || y < 0 {
		return
	}
	cy, cx := y/4, x/2
	if cy >= len(cells) || cx >= len(cells[cy]) {
		return
	}
	cells[cy][cx] |= brailleDots[x%2][y%4]
}

// brailleDots maps a dot's column and row inside a cell to its bit.
var brailleDots = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

func brailleFromMask(mask uint8) rune {
	return rune(0x2800 + int(mask))
}
