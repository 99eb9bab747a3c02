package stats

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/verte-zerg/dt5202fix/internal/model"
	"github.com/verte-zerg/dt5202fix/internal/outlier"
	"github.com/verte-zerg/dt5202fix/internal/validity"
)

func TestTrgIDMultiplicity(t *testing.T) {
	tbl := &model.FrameTable{
		TrgIDs:   []int64{1, 1, 2, 3, 3, 3, 4, 4, 4, 4, 9},
		HasTrgID: []bool{true, true, true, true, true, true, true, true, true, true, false},
		Intact:   make([]bool, 11),
	}
	got := TrgIDMultiplicity(tbl)
	want := Multiplicity{Unique: 4, Once: 1, Twice: 1, Three: 1, More: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("multiplicity mismatch (-want +got):\n%s", diff)
	}
}

func TestDescribe(t *testing.T) {
	got := Describe([]float64{2, 4, math.NaN(), 4, 4, 5, 5, 7, 9})
	want := Description{N: 8, Min: 2, Max: 9, Mean: 5, StdDev: math.Sqrt(32.0 / 7)}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Fatalf("description mismatch (-want +got):\n%s", diff)
	}
	if Describe(nil).String() != "none" {
		t.Fatalf("empty sample should describe as none")
	}
	if one := Describe([]float64{3}); one.StdDev != 0 || one.N != 1 {
		t.Fatalf("single value: %+v", one)
	}
}

func TestRenderRunSummary(t *testing.T) {
	view := RunView{
		Summary: model.RunSummary{
			InputPath:      "run.txt",
			InputBytes:     2048,
			InputLines:     1234,
			HeaderClosed:   true,
			Frames:         10,
			IntactFrames:   9,
			ValidFrames:    8,
			AbnormalFrames: 1,
			OutputPath:     "fixed.txt",
			LinesWritten:   1000,
		},
		Report: outlier.Report{
			TrgIDDiff: outlier.Result{Quantity: outlier.QuantityTrgID, Method: outlier.MethodDiff, Indices: []int{4}, Threshold: 1e6},
			TrgIDIQR:  outlier.Result{Quantity: outlier.QuantityTrgID, Method: outlier.MethodIQR, Indices: []int{4}, HasFence: true, Fence: outlier.Fence{Lower: -1, Upper: 7}},
			TSDiff:    outlier.Result{Quantity: outlier.QuantityTimestamp, Method: outlier.MethodDiff, Threshold: 1e9},
			TSIQR:     outlier.Result{Quantity: outlier.QuantityTimestamp, Method: outlier.MethodIQR},
		},
		Policy:      validity.DefaultPolicy(),
		ReadElapsed: 1500 * time.Millisecond,
	}
	var buf bytes.Buffer
	if err := RenderRunSummary(&buf, view); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Input: run.txt (2.0 kB, 1,234 lines)",
		"Frames: 10 (intact 9, corrupt 1)",
		"Abnormal-channel frames: 1",
		"[-1, 7]",
		"step > 1e+06",
		"Valid frames: 8 of 10",
		"Output: fixed.txt (1,000 lines)",
		"Read: 1.5s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in summary:\n%s", want, out)
		}
	}
	var warn, ok int
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasSuffix(line, "warn"):
			warn++
		case strings.HasSuffix(line, " ok"):
			ok++
		}
	}
	if warn != 2 || ok != 2 {
		t.Fatalf("expected 2 warn and 2 ok rows, got %d/%d:\n%s", warn, ok, out)
	}
}

func TestRenderHistory(t *testing.T) {
	runs := []model.RunSummary{
		{RunID: "0123456789abcdef", EndedAt: time.Now(), InputPath: "a.txt", Frames: 10, ValidFrames: 10},
		{RunID: "fedcba9876543210", EndedAt: time.Now(), InputPath: "a.txt", Frames: 10, ValidFrames: 5},
	}
	var buf bytes.Buffer
	if err := RenderHistory(&buf, runs, 1); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "01234567 ") || strings.Contains(out, "0123456789") {
		t.Fatalf("expected short run ids:\n%s", out)
	}
	if !strings.Contains(out, "Valid fraction: @ ") {
		t.Fatalf("expected sparkline:\n%s", out)
	}
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{1, 2, 3, 4}, 2)
	if diff := cmp.Diff([]float64{1, 1.5, 2.5, 3.5}, got); diff != "" {
		t.Fatalf("moving average mismatch (-want +got):\n%s", diff)
	}
}

func TestHeadState(t *testing.T) {
	cases := []struct {
		found, closed bool
		want          string
	}{
		{true, true, "closed"},
		{true, false, "not closed (body skipped)"},
		{false, false, "not found (body skipped)"},
	}
	for _, tc := range cases {
		if got := headState(tc.found, tc.closed); got != tc.want {
			t.Fatalf("headState(%v, %v) = %q, want %q", tc.found, tc.closed, got, tc.want)
		}
	}
}
