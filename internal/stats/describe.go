package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/verte-zerg/dt5202fix/internal/model"
)

// Description summarizes a sample.
type Description struct {
	N      int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// Describe computes descriptive statistics, ignoring NaN values.
func Describe(values []float64) Description {
	x := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			x = append(x, v)
		}
	}
	if len(x) == 0 {
		return Description{}
	}
	d := Description{
		N:    len(x),
		Min:  floats.Min(x),
		Max:  floats.Max(x),
		Mean: stat.Mean(x, nil),
	}
	if len(x) > 1 {
		d.StdDev = stat.StdDev(x, nil)
	}
	return d
}

func (d Description) String() string {
	if d.N == 0 {
		return "none"
	}
	return fmt.Sprintf("n=%d min=%g max=%g mean=%.4g sd=%.4g", d.N, d.Min, d.Max, d.Mean, d.StdDev)
}

// Multiplicity counts how often trigger IDs repeat.
type Multiplicity struct {
	Unique int
	Once   int
	Twice  int
	Three  int
	More   int
}

// TrgIDMultiplicity buckets the observed trigger IDs by occurrence count.
func TrgIDMultiplicity(t *model.FrameTable) Multiplicity {
	counts := make(map[int64]int)
	for i := 0; i < t.Len(); i++ {
		if t.HasTrgID[i] {
			counts[t.TrgIDs[i]]++
		}
	}
	m := Multiplicity{Unique: len(counts)}
	for _, n := range counts {
		switch n {
		case 1:
			m.Once++
		case 2:
			m.Twice++
		case 3:
			m.Three++
		default:
			m.More++
		}
	}
	return m
}

func (m Multiplicity) String() string {
	return fmt.Sprintf("unique %d, once %d, twice %d, three times %d, more %d", m.Unique, m.Once, m.Twice, m.Three, m.More)
}
