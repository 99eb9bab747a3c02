// Package stats contains run statistics and their text rendering.
package stats

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/verte-zerg/dt5202fix/internal/fixer"
	"github.com/verte-zerg/dt5202fix/internal/model"
	"github.com/verte-zerg/dt5202fix/internal/outlier"
	"github.com/verte-zerg/dt5202fix/internal/validity"
)

const sparkChars = " .:-=+*#%@"

// RunView is what the end-of-run summary shows.
type RunView struct {
	Summary      model.RunSummary
	Report       outlier.Report
	Policy       validity.Policy
	Multiplicity Multiplicity
	TrgIDs       Description
	Timestamps   Description
	ReadElapsed  time.Duration
	WriteElapsed time.Duration
}

// NewRunView derives the summary data from a fixer result.
func NewRunView(res *fixer.Result) RunView {
	t := &res.Parse.Table
	return RunView{
		Summary:      res.Summary,
		Report:       res.Report,
		Policy:       res.Policy,
		Multiplicity: TrgIDMultiplicity(t),
		TrgIDs:       Describe(outlier.TrgIDSequence(t).Values),
		Timestamps:   Describe(outlier.TimestampSequence(t).Values),
		ReadElapsed:  res.ReadElapsed,
		WriteElapsed: res.WriteElapsed,
	}
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderRunSummary prints the end-of-run summary.
func RenderRunSummary(w io.Writer, v RunView) error {
	s := v.Summary
	lines := []string{
		"Summary",
		fmt.Sprintf("Input: %s (%s, %s lines)", s.InputPath, humanize.Bytes(uint64(s.InputBytes)), humanize.Comma(int64(s.InputLines))),
		fmt.Sprintf("File head: %s", headState(s.HeaderFound, s.HeaderClosed)),
		fmt.Sprintf("Frames: %s (intact %s, corrupt %s)",
			humanize.Comma(int64(s.Frames)), humanize.Comma(int64(s.IntactFrames)), humanize.Comma(int64(s.Frames-s.IntactFrames))),
		fmt.Sprintf("Zero-channel frames: %s", humanize.Comma(int64(s.ZeroChannelFrames))),
		fmt.Sprintf("Abnormal-channel frames: %s", humanize.Comma(int64(s.AbnormalFrames))),
		fmt.Sprintf("Channel readings: %s", humanize.Comma(int64(s.ChannelReadings))),
		fmt.Sprintf("TrgID: %s", v.Multiplicity),
		fmt.Sprintf("TrgID values: %s", v.TrgIDs),
		fmt.Sprintf("TS values: %s", v.Timestamps),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if err := RenderOutlierTable(w, v.Report, v.Policy); err != nil {
		return err
	}

	valid := fmt.Sprintf("Valid frames: %s of %s", humanize.Comma(int64(s.ValidFrames)), humanize.Comma(int64(s.Frames)))
	if _, err := fmt.Fprintln(w, valid); err != nil {
		return err
	}
	if s.OutputPath != "" {
		if _, err := fmt.Fprintf(w, "Output: %s (%s lines)\n", s.OutputPath, humanize.Comma(int64(s.LinesWritten))); err != nil {
			return err
		}
	}
	timing := fmt.Sprintf("Read: %s", v.ReadElapsed.Round(time.Millisecond))
	if v.WriteElapsed > 0 {
		timing += fmt.Sprintf("  Write: %s", v.WriteElapsed.Round(time.Millisecond))
	}
	if _, err := fmt.Fprintln(w, timing); err != nil {
		return err
	}
	return nil
}

// RenderOutlierTable prints both methods for both quantities with a pass/warn status.
func RenderOutlierTable(w io.Writer, report outlier.Report, policy validity.Policy) error {
	headers := []string{"Quantity", "Method", "Outliers", "Bounds", "Excludes", "Status"}
	rows := make([][]string, 0, 4)
	for _, r := range report.All() {
		status := "ok"
		if len(r.Indices) > 0 {
			status = "warn"
		}
		excludes := policy.ExcludeIQR
		if r.Method == outlier.MethodDiff {
			excludes = policy.ExcludeDiff
		}
		rows = append(rows, []string{
			string(r.Quantity),
			string(r.Method),
			humanize.Comma(int64(len(r.Indices))),
			bounds(r),
			yesNo(excludes),
			status,
		})
	}
	if _, err := fmt.Fprintln(w, "Outliers"); err != nil {
		return err
	}
	for _, line := range formatTable(headers, rows, 2, 5) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderHistory prints past runs as a table followed by a valid-fraction sparkline.
func RenderHistory(w io.Writer, runs []model.RunSummary, window int) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found.")
		return err
	}
	headers := []string{"Run", "Ended", "Input", "Frames", "Valid", "Rejected", "Size"}
	rows := make([][]string, 0, len(runs))
	fractions := make([]float64, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.RunID),
			r.EndedAt.Local().Format("2006-01-02 15:04"),
			r.InputPath,
			humanize.Comma(int64(r.Frames)),
			humanize.Comma(int64(r.ValidFrames)),
			humanize.Comma(int64(r.Frames - r.ValidFrames)),
			humanize.Bytes(uint64(r.InputBytes)),
		})
		fractions = append(fractions, ValidFraction(r))
	}
	for _, line := range formatTable(headers, rows, 3, 4, 5, 6) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if len(fractions) > 1 {
		if _, err := fmt.Fprintf(w, "Valid fraction: %s\n", Sparkline(MovingAverage(fractions, window))); err != nil {
			return err
		}
	}
	return nil
}

// RenderRejects prints the rejected frames of one run.
func RenderRejects(w io.Writer, rejects []model.RejectedFrame) error {
	if len(rejects) == 0 {
		_, err := fmt.Fprintln(w, "No rejected frames.")
		return err
	}
	headers := []string{"Frame", "Board", "TrgID", "TS", "CH", "Abnormal", "Reasons"}
	rows := make([][]string, 0, len(rejects))
	for _, rf := range rejects {
		rows = append(rows, []string{
			fmt.Sprintf("%d", rf.Frame),
			fmt.Sprintf("%d", rf.Board),
			fmt.Sprintf("%d", rf.TrgID),
			fmt.Sprintf("%.3f", rf.Timestamp),
			fmt.Sprintf("%d", rf.Channels),
			fmt.Sprintf("%d", rf.Abnormal),
			validity.Reason(rf.Reasons).String(),
		})
	}
	for _, line := range formatTable(headers, rows, 0, 1, 2, 3, 4, 5) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	for _, rc := range TopReasons(rejects, 3) {
		if _, err := fmt.Fprintf(w, "%s: %d\n", rc.Reason, rc.Count); err != nil {
			return err
		}
	}
	return nil
}

// ValidFraction returns the share of valid frames of a run.
func ValidFraction(r model.RunSummary) float64 {
	if r.Frames == 0 {
		return 0
	}
	return float64(r.ValidFrames) / float64(r.Frames)
}

func bounds(r outlier.Result) string {
	if r.Method == outlier.MethodDiff {
		return fmt.Sprintf("step > %g", r.Threshold)
	}
	if !r.HasFence {
		return "-"
	}
	return fmt.Sprintf("[%g, %g]", r.Fence.Lower, r.Fence.Upper)
}

func headState(found, closed bool) string {
	switch {
	case closed:
		return "closed"
	case found:
		return "not closed (body skipped)"
	default:
		return "not found (body skipped)"
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
