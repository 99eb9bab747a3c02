// Package dump reads DT5202 text dumps: header handling, frame parsing and diagnostics.
package dump

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/verte-zerg/dt5202fix/internal/model"
)

// Valid sensor readings lie in (DefaultChannelMin, DefaultChannelMax].
const (
	DefaultChannelMin = 0
	DefaultChannelMax = 4095
)

const ctxCheckEvery = 4096

// Options configures a Parser.
type Options struct {
	// Progress, when set, is called after every line with the running line count.
	Progress func(lines int)

	ChannelMin int
	ChannelMax int
	Logger     *zerolog.Logger
}

// Result is the outcome of pass 1.
type Result struct {
	Table        model.FrameTable
	HeaderFound  bool
	HeaderClosed bool
	HeaderLines  []string
	Lines        int
	Bytes        int64
	Diagnostics  []Diagnostic
}

// Count returns how many diagnostics wrap target.
func (r *Result) Count(target error) int {
	n := 0
	for _, d := range r.Diagnostics {
		if errors.Is(d, target) {
			n++
		}
	}
	return n
}

// frameState is the in-progress frame, reset on every close.
type frameState struct {
	boardFound     bool
	trgIDFound     bool
	tsFound        bool
	chSectionFound bool

	board     int
	trgID     int64
	timestamp float64
	channels  int
	abnormal  int
}

func (s *frameState) started() bool {
	return s.boardFound || s.trgIDFound || s.tsFound || s.chSectionFound
}

func (s *frameState) complete() bool {
	return s.boardFound && s.trgIDFound && s.tsFound && s.chSectionFound
}

func (s *frameState) missing() []string {
	var out []string
	if !s.trgIDFound {
		out = append(out, trgIDMarker)
	}
	if !s.tsFound {
		out = append(out, timestampMarker)
	}
	if !s.boardFound {
		out = append(out, boardMarker)
	}
	if !s.chSectionFound {
		out = append(out, chSectionMarker)
	}
	return out
}

// Parser is the pass-1 state machine. Feed it raw lines in order, then call Finish.
type Parser struct {
	opts   Options
	log    zerolog.Logger
	header HeaderSkipper
	state  frameState
	result Result
}

// NewParser returns a Parser. Zero channel bounds fall back to the sensor defaults.
func NewParser(opts Options) *Parser {
	if opts.ChannelMax == 0 {
		opts.ChannelMax = DefaultChannelMax
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Parser{opts: opts, log: log}
}

// Parse runs pass 1 over r.
func Parse(ctx context.Context, r io.Reader, opts Options) (Result, error) {
	p := NewParser(opts)
	lr := NewLineReader(r)
	for {
		line, err := lr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, err
		}
		if lr.Line()%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		p.Feed(line)
	}
	return p.Finish(), nil
}

// Feed consumes one raw line.
func (p *Parser) Feed(line string) {
	p.result.Lines++
	p.result.Bytes += int64(len(line))
	if p.opts.Progress != nil {
		p.opts.Progress(p.result.Lines)
	}

	switch p.header.Observe(line) {
	case HeaderPreamble, HeaderOpen, HeaderClose:
		return
	case HeaderMeta:
		text := TrimEOL(line)
		p.result.HeaderLines = append(p.result.HeaderLines, text)
		p.log.Debug().Str("head", text).Msg("file head")
		return
	}
	p.parseBody(line)
}

func (p *Parser) parseBody(line string) {
	switch ClassifyLine(line) {
	case LineBoard:
		fields := strings.Fields(line)
		if len(fields) < 2 {
			p.fieldError(boardMarker, line)
			return
		}
		v, err := strconv.Atoi(fields[1])
		if err != nil {
			p.fieldError(boardMarker, line)
			return
		}
		p.state.board = v
		p.state.boardFound = true
	case LineTrgID:
		v, err := strconv.ParseInt(strings.TrimSpace(afterEquals(line)), 10, 64)
		if err != nil {
			p.fieldError(trgIDMarker, line)
			return
		}
		p.state.trgID = v
		p.state.trgIDFound = true
	case LineTimestamp:
		fields := strings.Fields(afterEquals(line))
		if len(fields) == 0 {
			p.fieldError(timestampMarker, line)
			return
		}
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			p.fieldError(timestampMarker, line)
			return
		}
		p.state.timestamp = v
		p.state.tsFound = true
	case LineChannelSection:
		p.state.chSectionFound = true
	case LineDivider:
		p.closeFrame(false)
	default:
		if p.state.chSectionFound {
			p.channelLine(line)
		}
	}
}

// channelLine counts every line of the channel section, readable or not, so a frame with
// only garbage there is not reported as having zero channels.
func (p *Parser) channelLine(line string) {
	p.state.channels++
	fields := strings.Fields(line)
	var v int
	var err error
	if len(fields) < 2 {
		err = ErrChannelParse
	} else {
		v, err = strconv.Atoi(fields[1])
	}
	if err != nil {
		d := Diagnostic{Err: ErrChannelParse, Line: p.result.Lines, Frame: p.result.Table.Len(), Text: TrimEOL(line)}
		p.result.Diagnostics = append(p.result.Diagnostics, d)
		p.log.Warn().Int("line", d.Line).Int("frame", d.Frame).Str("text", d.Text).Msg(ErrChannelParse.Error())
		return
	}
	if v <= p.opts.ChannelMin || v > p.opts.ChannelMax {
		p.state.abnormal++
	}
	p.result.Table.Readings = append(p.result.Table.Readings, model.ChannelReading{Frame: p.result.Table.Len(), Value: v})
}

func (p *Parser) fieldError(field, line string) {
	d := Diagnostic{Err: ErrFieldParse, Line: p.result.Lines, Frame: p.result.Table.Len(), Missing: []string{field}, Text: TrimEOL(line)}
	p.result.Diagnostics = append(p.result.Diagnostics, d)
	p.log.Warn().Int("line", d.Line).Int("frame", d.Frame).Str("field", field).Str("text", d.Text).Msg(ErrFieldParse.Error())
}

// closeFrame appends the in-progress frame to the table. Forced closes are never intact.
func (p *Parser) closeFrame(forced bool) {
	s := p.state
	intact := !forced && s.complete()
	t := &p.result.Table
	frame := t.Len()

	t.Boards = append(t.Boards, s.board)
	t.TrgIDs = append(t.TrgIDs, s.trgID)
	t.Timestamps = append(t.Timestamps, s.timestamp)
	t.ChannelCounts = append(t.ChannelCounts, s.channels)
	t.AbnormalCounts = append(t.AbnormalCounts, s.abnormal)
	t.Intact = append(t.Intact, intact)
	t.HasBoard = append(t.HasBoard, s.boardFound)
	t.HasTrgID = append(t.HasTrgID, s.trgIDFound)
	t.HasTimestamp = append(t.HasTimestamp, s.tsFound)
	t.HasChannels = append(t.HasChannels, s.chSectionFound)

	if !intact {
		d := Diagnostic{Err: ErrIncompleteFrame, Line: p.result.Lines, Frame: frame, Missing: s.missing()}
		p.result.Diagnostics = append(p.result.Diagnostics, d)
		ev := p.log.Warn().Int("line", d.Line).Int("frame", frame).Strs("missing", d.Missing)
		if forced {
			ev.Msg("last data frame incomplete")
		} else {
			ev.Msg(ErrIncompleteFrame.Error())
		}
	}
	p.state = frameState{}
}

// Finish force-closes a truncated trailing frame and returns the result.
func (p *Parser) Finish() Result {
	if p.state.started() {
		p.closeFrame(true)
	}
	p.result.HeaderFound = p.header.Found()
	p.result.HeaderClosed = p.header.Closed()
	if !p.result.HeaderClosed {
		d := Diagnostic{Err: ErrHeaderIncomplete, Line: p.result.Lines, Frame: -1}
		p.result.Diagnostics = append(p.result.Diagnostics, d)
		p.log.Warn().Bool("found", p.result.HeaderFound).Msg(ErrHeaderIncomplete.Error())
	}
	return p.result
}

// LineKind is the role of a body line. Markers are tested in a fixed order and the first
// match wins, so a divider only closes a frame when it carries no field marker.
type LineKind int

const (
	LineChannel LineKind = iota
	LineBoard
	LineTrgID
	LineTimestamp
	LineChannelSection
	LineDivider
)

// ClassifyLine returns the role of a body line.
func ClassifyLine(line string) LineKind {
	switch {
	case strings.Contains(line, boardMarker):
		return LineBoard
	case strings.Contains(line, trgIDMarker):
		return LineTrgID
	case strings.Contains(line, timestampMarker):
		return LineTimestamp
	case strings.Contains(line, chSectionMarker):
		return LineChannelSection
	case strings.Contains(line, FrameDivider):
		return LineDivider
	}
	return LineChannel
}

func afterEquals(line string) string {
	parts := strings.Split(line, "=")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
