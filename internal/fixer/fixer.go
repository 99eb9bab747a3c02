// Package fixer runs the two passes over a dump: parse and classify, then rewrite.
package fixer

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/verte-zerg/dt5202fix/internal/dump"
	"github.com/verte-zerg/dt5202fix/internal/model"
	"github.com/verte-zerg/dt5202fix/internal/outlier"
	"github.com/verte-zerg/dt5202fix/internal/rewrite"
	"github.com/verte-zerg/dt5202fix/internal/validity"
)

// progressSteps is how many progress messages a pass logs.
const progressSteps = 10

// Result is everything a run produced.
type Result struct {
	Summary  model.RunSummary
	Parse    dump.Result
	Report   outlier.Report
	Verdicts validity.Verdicts
	Policy   validity.Policy
	Rewrite  rewrite.Stats
	Rejected []model.RejectedFrame

	ReadElapsed  time.Duration
	WriteElapsed time.Duration
}

// Fixer runs fix passes with one configuration.
type Fixer struct {
	cfg    model.Config
	log    zerolog.Logger
	now    func() time.Time
	newID  func() string
	policy validity.Policy
}

// New returns a Fixer. A nil logger discards output.
func New(cfg model.Config, log *zerolog.Logger) *Fixer {
	l := zerolog.Nop()
	if log != nil {
		l = *log
	}
	return &Fixer{
		cfg:    cfg,
		log:    l,
		now:    time.Now,
		newID:  uuid.NewString,
		policy: validity.Policy{ExcludeIQR: cfg.ExcludeIQR, ExcludeDiff: cfg.ExcludeDiff},
	}
}

// DetectConfig returns the outlier thresholds of cfg, with defaults for unset values.
func DetectConfig(cfg model.Config) outlier.Config {
	out := outlier.DefaultConfig()
	if cfg.IQRMultiplier > 0 {
		out.IQRMultiplier = cfg.IQRMultiplier
	}
	if cfg.TrgIDDiffThreshold > 0 {
		out.TrgIDDiffThreshold = cfg.TrgIDDiffThreshold
	}
	if cfg.TSDiffThreshold > 0 {
		out.TSDiffThreshold = cfg.TSDiffThreshold
	}
	return out
}

// Analyze runs pass 1 and classifies every frame. It never writes.
func (f *Fixer) Analyze(ctx context.Context) (*Result, error) {
	started := f.now()
	lines, size, err := countInput(f.cfg.InputPath)
	if err != nil {
		return nil, err
	}
	f.log.Info().
		Str("input", f.cfg.InputPath).
		Int("lines", lines).
		Int64("bytes", size).
		Msg("reading data file")

	in, err := os.Open(f.cfg.InputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer func() {
		if cerr := in.Close(); cerr != nil {
			f.log.Warn().Err(cerr).Msg("failed to close input")
		}
	}()

	parsed, err := dump.Parse(ctx, in, dump.Options{
		Progress:   f.progress("read", lines),
		ChannelMin: dump.DefaultChannelMin,
		ChannelMax: f.cfg.ChannelMax,
		Logger:     &f.log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	report := outlier.Detect(&parsed.Table, DetectConfig(f.cfg))
	verdicts := validity.Classify(&parsed.Table, report, f.policy)
	readElapsed := f.now().Sub(started)

	res := &Result{
		Parse:       parsed,
		Report:      report,
		Verdicts:    verdicts,
		Policy:      f.policy,
		ReadElapsed: readElapsed,
	}
	res.Summary = f.summarize(started, parsed, report, verdicts)
	res.Rejected = rejected(res.Summary.RunID, &parsed.Table, verdicts, f.policy)

	f.log.Info().
		Int("frames", res.Summary.Frames).
		Int("intact", res.Summary.IntactFrames).
		Int("valid", res.Summary.ValidFrames).
		Dur("elapsed", readElapsed).
		Msg("read finished")
	return res, nil
}

// Run analyzes the input and, when an output path is set, writes the valid frames.
func (f *Fixer) Run(ctx context.Context) (*Result, error) {
	res, err := f.Analyze(ctx)
	if err != nil {
		return nil, err
	}
	if f.cfg.WriteEnabled() {
		if err := f.write(ctx, res); err != nil {
			return nil, err
		}
	}
	res.Summary.EndedAt = f.now()
	res.Summary.DurationMs = res.Summary.EndedAt.Sub(res.Summary.StartedAt).Milliseconds()
	return res, nil
}

func (f *Fixer) write(ctx context.Context, res *Result) error {
	started := f.now()
	in, err := os.Open(f.cfg.InputPath)
	if err != nil {
		return fmt.Errorf("failed to reopen input: %w", err)
	}
	defer func() {
		if cerr := in.Close(); cerr != nil {
			f.log.Warn().Err(cerr).Msg("failed to close input")
		}
	}()

	f.log.Info().Str("output", f.cfg.OutputPath).Msg("writing fixed data file")
	err = rewrite.WriteFile(f.cfg.OutputPath, func(w io.Writer) error {
		st, err := rewrite.Rewrite(ctx, in, w, res.Verdicts.Valid, rewrite.Options{
			Progress: f.progress("write", res.Summary.InputLines),
		})
		res.Rewrite = st
		return err
	})
	if err != nil {
		return err
	}
	res.WriteElapsed = f.now().Sub(started)
	res.Summary.OutputPath = f.cfg.OutputPath
	res.Summary.LinesWritten = res.Rewrite.LinesWritten
	f.log.Info().
		Int("lines", res.Rewrite.LinesWritten).
		Int("kept", res.Rewrite.FramesKept).
		Int("dropped", res.Rewrite.FramesDropped).
		Dur("elapsed", res.WriteElapsed).
		Msg("write finished")
	return nil
}

func (f *Fixer) summarize(started time.Time, parsed dump.Result, report outlier.Report, v validity.Verdicts) model.RunSummary {
	t := &parsed.Table
	s := model.RunSummary{
		RunID:             f.newID(),
		StartedAt:         started,
		EndedAt:           f.now(),
		InputPath:         f.cfg.InputPath,
		InputBytes:        parsed.Bytes,
		InputLines:        parsed.Lines,
		HeaderFound:       parsed.HeaderFound,
		HeaderClosed:      parsed.HeaderClosed,
		Frames:            t.Len(),
		ValidFrames:       v.ValidCount(),
		ChannelReadings:   len(t.Readings),
		TrgIDDiffOutliers: len(report.TrgIDDiff.Indices),
		TrgIDIQROutliers:  len(report.TrgIDIQR.Indices),
		TSDiffOutliers:    len(report.TSDiff.Indices),
		TSIQROutliers:     len(report.TSIQR.Indices),
	}
	for i := 0; i < t.Len(); i++ {
		if t.Intact[i] {
			s.IntactFrames++
		}
		if t.ChannelCounts[i] == 0 {
			s.ZeroChannelFrames++
		}
		if t.AbnormalCounts[i] > 0 {
			s.AbnormalFrames++
		}
	}
	s.DurationMs = s.EndedAt.Sub(started).Milliseconds()
	return s
}

// Reclassify re-runs detection and classification on the already parsed table.
// Output statistics are left untouched.
func (r *Result) Reclassify(cfg outlier.Config, p validity.Policy) {
	t := &r.Parse.Table
	r.Report = outlier.Detect(t, cfg)
	r.Verdicts = validity.Classify(t, r.Report, p)
	r.Policy = p
	r.Summary.ValidFrames = r.Verdicts.ValidCount()
	r.Summary.TrgIDDiffOutliers = len(r.Report.TrgIDDiff.Indices)
	r.Summary.TrgIDIQROutliers = len(r.Report.TrgIDIQR.Indices)
	r.Summary.TSDiffOutliers = len(r.Report.TSDiff.Indices)
	r.Summary.TSIQROutliers = len(r.Report.TSIQR.Indices)
	r.Rejected = rejected(r.Summary.RunID, t, r.Verdicts, p)
}

func rejected(runID string, t *model.FrameTable, v validity.Verdicts, p validity.Policy) []model.RejectedFrame {
	mask := p.Mask()
	var out []model.RejectedFrame
	for i, ok := range v.Valid {
		if ok {
			continue
		}
		fr := t.Frame(i)
		out = append(out, model.RejectedFrame{
			RunID:     runID,
			Frame:     i,
			Board:     fr.Board,
			TrgID:     fr.TrgID,
			Timestamp: fr.Timestamp,
			Channels:  fr.Channels,
			Abnormal:  fr.Abnormal,
			Intact:    fr.Intact,
			Reasons:   uint8(v.Reasons[i]),
			Cause:     uint8(v.Reasons[i] & mask),
		})
	}
	return out
}

// progress returns a callback logging every tenth of total lines.
func (f *Fixer) progress(phase string, total int) func(int) {
	step := total / progressSteps
	if step == 0 {
		return nil
	}
	return func(lines int) {
		if lines%step != 0 {
			return
		}
		f.log.Debug().Str("phase", phase).Int("pct", lines/step*progressSteps).Int("lines", lines).Msg("progress")
	}
}

func countInput(path string) (int, int64, error) {
	in, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open input: %w", err)
	}
	defer func() {
		_ = in.Close()
	}()
	lines, size, err := dump.CountLines(in)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count input lines: %w", err)
	}
	return lines, size, nil
}
