// Package outlier flags trigger-ID and timestamp outliers with two independent methods.
package outlier

import (
	"math"
	"sort"

	"github.com/verte-zerg/dt5202fix/internal/model"
)

// Method names an outlier detection method.
type Method string

const (
	MethodDiff Method = "diff"
	MethodIQR  Method = "iqr"
)

// Quantity names a per-frame sequence.
type Quantity string

const (
	QuantityTrgID     Quantity = "TrgID"
	QuantityTimestamp Quantity = "TS"
)

// Default thresholds.
const (
	DefaultTrgIDDiffThreshold = 1_000_000
	DefaultTSDiffThreshold    = 1_000_000_000
	DefaultIQRMultiplier      = 1.5
)

// Config holds detector thresholds.
type Config struct {
	TrgIDDiffThreshold float64
	TSDiffThreshold    float64
	IQRMultiplier      float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		TrgIDDiffThreshold: DefaultTrgIDDiffThreshold,
		TSDiffThreshold:    DefaultTSDiffThreshold,
		IQRMultiplier:      DefaultIQRMultiplier,
	}
}

// Sequence is the observed values of one quantity, each with its frame index.
// Frames that never carried the field are not part of the sequence.
type Sequence struct {
	Frames []int
	Values []float64
}

// TrgIDSequence extracts the observed trigger IDs.
func TrgIDSequence(t *model.FrameTable) Sequence {
	var seq Sequence
	for i := 0; i < t.Len(); i++ {
		if t.HasTrgID[i] {
			seq.Frames = append(seq.Frames, i)
			seq.Values = append(seq.Values, float64(t.TrgIDs[i]))
		}
	}
	return seq
}

// TimestampSequence extracts the observed timestamps.
func TimestampSequence(t *model.FrameTable) Sequence {
	var seq Sequence
	for i := 0; i < t.Len(); i++ {
		if t.HasTimestamp[i] {
			seq.Frames = append(seq.Frames, i)
			seq.Values = append(seq.Values, t.Timestamps[i])
		}
	}
	return seq
}

// SequenceOf wraps plain values whose frame index is their position.
func SequenceOf(values []float64) Sequence {
	frames := make([]int, len(values))
	for i := range frames {
		frames[i] = i
	}
	return Sequence{Frames: frames, Values: values}
}

// Fence is the IQR outlier fence of a sample.
type Fence struct {
	Q1    float64
	Q3    float64
	IQR   float64
	Lower float64
	Upper float64
}

// Outside reports whether v lies strictly outside the fence.
func (f Fence) Outside(v float64) bool {
	return v < f.Lower || v > f.Upper
}

// Percentile returns the p-th percentile (0-100) of sorted values, interpolating linearly
// between closest ranks. sorted must be non-empty and ascending.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	if lo < 0 {
		return sorted[0]
	}
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

// NewFence computes the fence [Q1-k*IQR, Q3+k*IQR]. NaN values are ignored.
// ok is false when no finite value remains.
func NewFence(values []float64, k float64) (Fence, bool) {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return Fence{}, false
	}
	sort.Float64s(sorted)
	q1 := Percentile(sorted, 25)
	q3 := Percentile(sorted, 75)
	iqr := q3 - q1
	return Fence{
		Q1:    q1,
		Q3:    q3,
		IQR:   iqr,
		Lower: q1 - k*iqr,
		Upper: q3 + k*iqr,
	}, true
}

// DiffOutliers flags the later frame of every successive pair whose difference exceeds
// threshold. A jump between positions k and k+1 flags the frame at position k+1.
func DiffOutliers(seq Sequence, threshold float64) []int {
	var out []int
	for i := 0; i+1 < len(seq.Values); i++ {
		if seq.Values[i+1]-seq.Values[i] > threshold {
			out = append(out, seq.Frames[i+1])
		}
	}
	return out
}

// IQROutliers flags frames whose value falls strictly outside the fence. NaN values are
// always flagged.
func IQROutliers(seq Sequence, k float64) ([]int, Fence, bool) {
	fence, ok := NewFence(seq.Values, k)
	var out []int
	for i, v := range seq.Values {
		if math.IsNaN(v) || (ok && fence.Outside(v)) {
			out = append(out, seq.Frames[i])
		}
	}
	return out, fence, ok
}

// Result is one outlier set.
type Result struct {
	Quantity  Quantity
	Method    Method
	Indices   []int
	Threshold float64
	Fence     Fence
	HasFence  bool
}

// Contains reports whether frame i is in the set.
func (r Result) Contains(i int) bool {
	j := sort.SearchInts(r.Indices, i)
	return j < len(r.Indices) && r.Indices[j] == i
}

// Report holds all four outlier sets of a run.
type Report struct {
	TrgIDDiff Result
	TrgIDIQR  Result
	TSDiff    Result
	TSIQR     Result
}

// All returns the sets in reporting order.
func (r Report) All() []Result {
	return []Result{r.TrgIDDiff, r.TrgIDIQR, r.TSDiff, r.TSIQR}
}

// Detect runs both methods over both quantities.
func Detect(t *model.FrameTable, cfg Config) Report {
	trg := TrgIDSequence(t)
	ts := TimestampSequence(t)
	return Report{
		TrgIDDiff: diffResult(QuantityTrgID, trg, cfg.TrgIDDiffThreshold),
		TrgIDIQR:  iqrResult(QuantityTrgID, trg, cfg.IQRMultiplier),
		TSDiff:    diffResult(QuantityTimestamp, ts, cfg.TSDiffThreshold),
		TSIQR:     iqrResult(QuantityTimestamp, ts, cfg.IQRMultiplier),
	}
}

func diffResult(q Quantity, seq Sequence, threshold float64) Result {
	return Result{
		Quantity:  q,
		Method:    MethodDiff,
		Indices:   DiffOutliers(seq, threshold),
		Threshold: threshold,
	}
}

func iqrResult(q Quantity, seq Sequence, k float64) Result {
	indices, fence, ok := IQROutliers(seq, k)
	return Result{
		Quantity:  q,
		Method:    MethodIQR,
		Indices:   indices,
		Threshold: k,
		Fence:     fence,
		HasFence:  ok,
	}
}
