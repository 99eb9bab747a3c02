// Package rewrite is the second pass: it copies the input while dropping invalid frames.
package rewrite

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/verte-zerg/dt5202fix/internal/dump"
)

const ctxCheckEvery = 4096

// Options configures Rewrite.
type Options struct {
	// Progress, when set, is called after every input line with the running line count.
	Progress func(lines int)
}

// Stats counts what the rewrite emitted.
type Stats struct {
	LinesRead     int
	LinesWritten  int
	FramesKept    int
	FramesDropped int
	// Orphans are body lines after the last known frame; they are never written.
	Orphans int
}

// Rewrite streams r to w. The header is echoed with the provenance comment inserted after
// the opening delimiter. Body lines are written only while valid[current] holds, and a
// divider advances current after it has been handled.
func Rewrite(ctx context.Context, r io.Reader, w io.Writer, valid []bool, opts Options) (Stats, error) {
	var st Stats
	bw := bufio.NewWriterSize(w, 64*1024)
	lr := dump.NewLineReader(r)

	var header dump.HeaderSkipper
	provenanceWritten := false
	current := 0
	frameOpen := false

	write := func(s string) error {
		if _, err := bw.WriteString(s); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		st.LinesWritten++
		return nil
	}

	for {
		line, err := lr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return st, fmt.Errorf("failed to read input: %w", err)
		}
		st.LinesRead++
		if st.LinesRead%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return st, err
			}
		}
		if opts.Progress != nil {
			opts.Progress(st.LinesRead)
		}

		switch header.Observe(line) {
		case dump.HeaderPreamble, dump.HeaderClose:
			if err := write(line); err != nil {
				return st, err
			}
		case dump.HeaderOpen:
			if err := write(line); err != nil {
				return st, err
			}
			if err := write(dump.ProvenanceLine + lineEnding(line)); err != nil {
				return st, err
			}
			provenanceWritten = true
		case dump.HeaderMeta:
			if provenanceWritten && strings.TrimSpace(line) == dump.ProvenanceLine {
				continue
			}
			if err := write(line); err != nil {
				return st, err
			}
		case dump.HeaderBody:
			if current >= len(valid) {
				st.Orphans++
				continue
			}
			frameOpen = true
			if valid[current] {
				if err := write(line); err != nil {
					return st, err
				}
			}
			if dump.ClassifyLine(line) == dump.LineDivider {
				st.countFrame(valid[current])
				current++
				frameOpen = false
			}
		}
	}
	if frameOpen && current < len(valid) {
		st.countFrame(valid[current])
	}
	if err := bw.Flush(); err != nil {
		return st, fmt.Errorf("failed to flush output: %w", err)
	}
	return st, nil
}

func (s *Stats) countFrame(kept bool) {
	if kept {
		s.FramesKept++
	} else {
		s.FramesDropped++
	}
}

// lineEnding returns the end-of-line sequence of line.
func lineEnding(line string) string {
	if strings.HasSuffix(line, "\r\n") {
		return "\r\n"
	}
	return "\n"
}
