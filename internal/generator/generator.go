// Package generator writes synthetic DT5202 dumps with injected faults.
package generator

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/verte-zerg/dt5202fix/internal/dump"
)

// Faults are per-frame probabilities (0-1) of each corruption.
type Faults struct {
	MissingField    float64
	AbnormalChannel float64
	TrgIDJump       float64
	// Truncate cuts the last frame before its divider.
	Truncate bool
}

// Options shapes a generated dump.
type Options struct {
	Frames     int
	Channels   int
	Board      int
	StartTrgID int64
	// TSStep is the mean timestamp increment in microseconds.
	TSStep float64
	Faults Faults
}

// DefaultOptions returns a small clean dump layout.
func DefaultOptions() Options {
	return Options{Frames: 1000, Channels: 64, Board: 0, StartTrgID: 1, TSStep: 100}
}

// Truth records which faults were injected, by frame index.
type Truth struct {
	Frames   int
	Broken   []int
	Abnormal []int
	Jumps    []int
}

// Generator produces randomized dumps.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded returns a deterministic Generator.
func NewSeeded(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// jumpSize is added to the trigger counter on an injected jump.
const jumpSize = 50_000_000

// chLine is the position of the channel-section opener among the field lines.
const chLine = 3

// Write emits a dump to w and reports the injected faults.
func (g *Generator) Write(w io.Writer, opts Options) (Truth, error) {
	if opts.Frames < 0 || opts.Channels < 0 {
		return Truth{}, fmt.Errorf("frames and channels must be >= 0")
	}
	bw := bufio.NewWriter(w)
	truth := Truth{Frames: opts.Frames}

	header := []string{
		dump.HeaderDelimiter,
		"// File_Format_Version  3.3",
		"// Janus_Release 3.6.0",
		"// Acquisition Mode: Spectroscopy",
		"// Energy Histogram Channels: 4096",
		fmt.Sprintf("// Run start time: %s", time.Unix(0, 0).UTC().Format(time.ANSIC)),
		dump.HeaderDelimiter,
	}
	for _, line := range header {
		if _, err := fmt.Fprintln(bw, line); err != nil {
			return truth, err
		}
	}

	trgID := opts.StartTrgID
	ts := 0.0
	for i := 0; i < opts.Frames; i++ {
		if g.hit(opts.Faults.TrgIDJump) && i > 0 {
			trgID += jumpSize
			truth.Jumps = append(truth.Jumps, i)
		}
		ts += opts.TSStep * (0.5 + g.rnd.Float64())

		lines := []string{
			fmt.Sprintf("Board %02d", opts.Board),
			fmt.Sprintf("TrgID=%d", trgID),
			fmt.Sprintf("TS=%.3f us", ts),
			"CH  LG  HG",
		}
		missing := -1
		if g.hit(opts.Faults.MissingField) {
			missing = g.rnd.Intn(len(lines))
			truth.Broken = append(truth.Broken, i)
		}
		// Channel lines without a CH opener are never read, so no anomaly shows there.
		abnormal := g.hit(opts.Faults.AbnormalChannel) && opts.Channels > 0 && missing != chLine
		badChannel := -1
		if abnormal {
			truth.Abnormal = append(truth.Abnormal, i)
			badChannel = g.rnd.Intn(opts.Channels)
		}

		for j, line := range lines {
			if j == missing {
				continue
			}
			if _, err := fmt.Fprintln(bw, line); err != nil {
				return truth, err
			}
		}
		for c := 0; c < opts.Channels; c++ {
			v := 1 + g.rnd.Intn(dump.DefaultChannelMax)
			if c == badChannel {
				v = g.abnormalValue()
			}
			if _, err := fmt.Fprintf(bw, "%02d %d\n", c, v); err != nil {
				return truth, err
			}
		}
		last := i == opts.Frames-1
		if last && opts.Faults.Truncate {
			if len(truth.Broken) == 0 || truth.Broken[len(truth.Broken)-1] != i {
				truth.Broken = append(truth.Broken, i)
			}
			break
		}
		if _, err := fmt.Fprintln(bw, dump.FrameDivider); err != nil {
			return truth, err
		}
		trgID++
	}
	return truth, bw.Flush()
}

func (g *Generator) hit(p float64) bool {
	return p > 0 && g.rnd.Float64() < p
}

func (g *Generator) abnormalValue() int {
	if g.rnd.Intn(2) == 0 {
		return 0
	}
	return dump.DefaultChannelMax + 1 + g.rnd.Intn(100)
}
