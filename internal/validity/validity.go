// Package validity combines frame intactness, channel anomalies and outlier membership.
package validity

import (
	"fmt"
	"strings"

	"github.com/verte-zerg/dt5202fix/internal/model"
	"github.com/verte-zerg/dt5202fix/internal/outlier"
)

// Reason is a bit set of why a frame is suspect.
type Reason uint8

const (
	ReasonIncomplete Reason = 1 << iota
	ReasonAbnormalChannel
	ReasonTrgIDIQR
	ReasonTSIQR
	ReasonTrgIDDiff
	ReasonTSDiff
)

var reasonNames = []struct {
	r    Reason
	name string
}{
	{ReasonIncomplete, "incomplete"},
	{ReasonAbnormalChannel, "abnormal-ch"},
	{ReasonTrgIDIQR, "trgid-iqr"},
	{ReasonTSIQR, "ts-iqr"},
	{ReasonTrgIDDiff, "trgid-diff"},
	{ReasonTSDiff, "ts-diff"},
}

// String lists the set reasons, comma separated.
func (r Reason) String() string {
	if r == 0 {
		return "-"
	}
	var parts []string
	for _, rn := range reasonNames {
		if r&rn.r != 0 {
			parts = append(parts, rn.name)
		}
	}
	return strings.Join(parts, ",")
}

// Policy selects which outlier methods exclude frames. Intactness and channel anomalies
// always exclude.
type Policy struct {
	ExcludeIQR  bool
	ExcludeDiff bool
}

// DefaultPolicy excludes IQR outliers only; difference outliers are reported but kept.
func DefaultPolicy() Policy {
	return Policy{ExcludeIQR: true}
}

// ParsePolicy reads a list of excluding methods ("iqr", "diff", or "none").
func ParsePolicy(methods []string) (Policy, error) {
	var p Policy
	for _, m := range methods {
		switch strings.ToLower(strings.TrimSpace(m)) {
		case "":
		case string(outlier.MethodIQR):
			p.ExcludeIQR = true
		case string(outlier.MethodDiff):
			p.ExcludeDiff = true
		case "none":
		default:
			return Policy{}, fmt.Errorf("unknown outlier method %q (want iqr, diff or none)", m)
		}
	}
	return p, nil
}

// Mask returns the reasons that make a frame invalid under p.
func (p Policy) Mask() Reason {
	mask := ReasonIncomplete | ReasonAbnormalChannel
	if p.ExcludeIQR {
		mask |= ReasonTrgIDIQR | ReasonTSIQR
	}
	if p.ExcludeDiff {
		mask |= ReasonTrgIDDiff | ReasonTSDiff
	}
	return mask
}

// Verdicts is the per-frame outcome.
type Verdicts struct {
	Valid   []bool
	Reasons []Reason
}

// ValidCount returns the number of valid frames.
func (v Verdicts) ValidCount() int {
	n := 0
	for _, ok := range v.Valid {
		if ok {
			n++
		}
	}
	return n
}

// Classify decides every frame. A frame's verdict depends only on its own row and the
// whole-run outlier sets.
func Classify(t *model.FrameTable, report outlier.Report, p Policy) Verdicts {
	n := t.Len()
	v := Verdicts{Valid: make([]bool, n), Reasons: make([]Reason, n)}
	mark := func(res outlier.Result, r Reason) {
		for _, i := range res.Indices {
			if i >= 0 && i < n {
				v.Reasons[i] |= r
			}
		}
	}
	mark(report.TrgIDIQR, ReasonTrgIDIQR)
	mark(report.TSIQR, ReasonTSIQR)
	mark(report.TrgIDDiff, ReasonTrgIDDiff)
	mark(report.TSDiff, ReasonTSDiff)

	mask := p.Mask()
	for i := 0; i < n; i++ {
		if !t.Intact[i] {
			v.Reasons[i] |= ReasonIncomplete
		}
		if t.AbnormalCounts[i] != 0 {
			v.Reasons[i] |= ReasonAbnormalChannel
		}
		v.Valid[i] = v.Reasons[i]&mask == 0
	}
	return v
}
