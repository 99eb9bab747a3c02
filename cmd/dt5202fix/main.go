// Package main provides the CLI entrypoint for dt5202fix.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/dt5202fix/internal/chart"
	"github.com/verte-zerg/dt5202fix/internal/config"
	"github.com/verte-zerg/dt5202fix/internal/dump"
	"github.com/verte-zerg/dt5202fix/internal/fixer"
	"github.com/verte-zerg/dt5202fix/internal/generator"
	"github.com/verte-zerg/dt5202fix/internal/inspectui"
	"github.com/verte-zerg/dt5202fix/internal/logging"
	"github.com/verte-zerg/dt5202fix/internal/model"
	"github.com/verte-zerg/dt5202fix/internal/outlier"
	"github.com/verte-zerg/dt5202fix/internal/rewrite"
	"github.com/verte-zerg/dt5202fix/internal/stats"
	"github.com/verte-zerg/dt5202fix/internal/store"
	"github.com/verte-zerg/dt5202fix/internal/validity"
)

const (
	defaultHistoryWindow = 5
	defaultGenFrames     = 1000
	defaultGenChannels   = 64
)

var defaultExclude = []string{"iqr"}

var (
	fixInput      string
	fixOutput     string
	fixExclude    []string
	fixIQRK       float64
	fixTrgIDDiff  float64
	fixTSDiff     float64
	fixChannelMax int
	fixNoHistory  bool
	fixPlotDir    string
	verbose       bool

	historyLast    int
	historySince   string
	historyRejects string
	historyWindow  int

	plotOut string

	genOut      string
	genFrames   int
	genChannels int
	genSeed     int64
	genMissing  float64
	genAbnormal float64
	genJump     float64
	genTruncate bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dt5202fix",
		Short:         "Validate and fix DT5202 text data dumps",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runFixCmd,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&fixInput, "input", "", "data file to read")
	pf.StringSliceVar(&fixExclude, "exclude", defaultExclude, "outlier methods that reject frames (iqr, diff, none)")
	pf.Float64Var(&fixIQRK, "iqr-k", outlier.DefaultIQRMultiplier, "IQR fence multiplier")
	pf.Float64Var(&fixTrgIDDiff, "trgid-diff", outlier.DefaultTrgIDDiffThreshold, "trigger ID jump threshold")
	pf.Float64Var(&fixTSDiff, "ts-diff", outlier.DefaultTSDiffThreshold, "timestamp jump threshold")
	pf.IntVar(&fixChannelMax, "channel-max", dump.DefaultChannelMax, "largest normal channel value")
	pf.BoolVar(&verbose, "verbose", false, "log debug output (header lines, progress)")

	rootCmd.Flags().StringVar(&fixOutput, "output", "", "fixed data file to write (omit for a read-only check)")
	rootCmd.Flags().BoolVar(&fixNoHistory, "no-history", false, "do not record the run in the history database")
	rootCmd.Flags().StringVar(&fixPlotDir, "plot-dir", "", "write PNG plots of the sequences to this directory")

	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newPlotCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func runFixCmd(cmd *cobra.Command, _ []string) error {
	cfg, paths, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := fixer.New(cfg, &log).Run(ctx)
	if err != nil {
		return err
	}
	if err := stats.RenderRunSummary(cmd.OutOrStdout(), stats.NewRunView(res)); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if cfg.PlotDir != "" {
		if err := writePlots(cmd.OutOrStdout(), cfg.PlotDir, res); err != nil {
			return err
		}
	}
	if cfg.RecordHistory {
		if err := recordRun(ctx, paths.DB, res); err != nil {
			log.Warn().Err(err).Str("db", paths.DB).Msg("failed to record run history")
		}
	}
	return nil
}

// loadSettings merges the config file under the command-line flags.
func loadSettings(cmd *cobra.Command) (model.Config, config.Paths, error) {
	paths, err := config.ResolvePaths()
	if err != nil {
		return model.Config{}, config.Paths{}, err
	}
	fileCfg, err := config.LoadConfig(paths.Config)
	if err != nil {
		return model.Config{}, paths, fmt.Errorf("failed to load config: %w", err)
	}
	applyStringSliceConfig(cmd, "exclude", &fixExclude, fileCfg.Detect.Exclude)
	applyFloatConfig(cmd, "iqr-k", &fixIQRK, fileCfg.Detect.IQRK)
	applyFloatConfig(cmd, "trgid-diff", &fixTrgIDDiff, fileCfg.Detect.TrgIDDiff)
	applyFloatConfig(cmd, "ts-diff", &fixTSDiff, fileCfg.Detect.TSDiff)
	applyIntConfig(cmd, "channel-max", &fixChannelMax, fileCfg.Channels.Max)
	applyStringConfig(cmd, "plot-dir", &fixPlotDir, fileCfg.Plot.Dir)
	if fileCfg.History.Enabled != nil && !flagChanged(cmd, "no-history") {
		fixNoHistory = !*fileCfg.History.Enabled
	}

	policy, err := validity.ParsePolicy(fixExclude)
	if err != nil {
		return model.Config{}, paths, err
	}
	cfg := model.Config{
		InputPath:          fixInput,
		OutputPath:         fixOutput,
		ExcludeIQR:         policy.ExcludeIQR,
		ExcludeDiff:        policy.ExcludeDiff,
		IQRMultiplier:      fixIQRK,
		TrgIDDiffThreshold: fixTrgIDDiff,
		TSDiffThreshold:    fixTSDiff,
		ChannelMax:         fixChannelMax,
		RecordHistory:      !fixNoHistory,
		PlotDir:            fixPlotDir,
	}
	if err := validateConfig(cfg); err != nil {
		return model.Config{}, paths, err
	}
	return cfg, paths, nil
}

func newLogger() (zerolog.Logger, error) {
	opts, err := logging.FromEnv(logging.DefaultOptions(logging.ProfileRuntime))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("failed to read log settings: %w", err)
	}
	if verbose {
		opts.Level = zerolog.DebugLevel
	}
	return logging.New(os.Stderr, opts), nil
}

func writePlots(w io.Writer, dir string, res *fixer.Result) error {
	written, err := chart.WriteAll(dir, &res.Parse.Table, res.Report)
	if err != nil {
		return fmt.Errorf("failed to write plots: %w", err)
	}
	for _, path := range written {
		if _, err := fmt.Fprintf(w, "Plot: %s\n", path); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func recordRun(ctx context.Context, dbPath string, res *fixer.Result) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()
	if err := st.InsertRun(ctx, res.Summary, res.Rejected); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Browse an analyzed data file interactively",
		Args:  cobra.NoArgs,
		RunE:  runInspectCmd,
	}
}

func runInspectCmd(cmd *cobra.Command, _ []string) error {
	res, cfg, err := analyzeOnly(cmd)
	if err != nil {
		return err
	}
	ui := inspectui.NewModel(res, fixer.DetectConfig(cfg))
	program := tea.NewProgram(ui, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run inspect TUI: %w", err)
	}
	return nil
}

func newPlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Write PNG plots of the trigger ID and timestamp sequences",
		Args:  cobra.NoArgs,
		RunE:  runPlotCmd,
	}
	cmd.Flags().StringVar(&plotOut, "out", "", "output directory")
	return cmd
}

func runPlotCmd(cmd *cobra.Command, _ []string) error {
	if strings.TrimSpace(plotOut) == "" {
		return fmt.Errorf("--out is required")
	}
	res, _, err := analyzeOnly(cmd)
	if err != nil {
		return err
	}
	return writePlots(cmd.OutOrStdout(), plotOut, res)
}

// analyzeOnly runs pass 1 with the shared detection flags and never writes.
func analyzeOnly(cmd *cobra.Command) (*fixer.Result, model.Config, error) {
	cfg, _, err := loadSettings(cmd)
	if err != nil {
		return nil, model.Config{}, err
	}
	cfg.OutputPath = ""
	log, err := newLogger()
	if err != nil {
		return nil, model.Config{}, err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	res, err := fixer.New(cfg, &log).Analyze(ctx)
	if err != nil {
		return nil, model.Config{}, err
	}
	return res, cfg, nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N runs")
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&historyRejects, "rejects", "", "list rejected frames of the run with this id prefix")
	cmd.Flags().IntVar(&historyWindow, "window", defaultHistoryWindow, "moving average window of the valid fraction")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	if historyLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}
	var sinceTime *time.Time
	if historySince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", historySince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}

	paths, err := config.ResolvePaths()
	if err != nil {
		return err
	}
	st, err := store.Open(paths.DB)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	if historyRejects != "" {
		id, err := st.FindRun(ctx, historyRejects)
		if err != nil {
			return err
		}
		rejects, err := st.ListRejects(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load rejects: %w", err)
		}
		return stats.RenderRejects(out, rejects)
	}

	report, err := stats.BuildHistoryReport(ctx, st, model.HistoryConfig{
		Input: fixInput,
		Since: sinceTime,
		Last:  historyLast,
	})
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	if err := stats.RenderHistory(out, report.Runs, historyWindow); err != nil {
		return err
	}
	if report.Latest == nil || len(report.Rejects) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(out, "\nLatest run %s rejected %d frames:\n", report.Latest.RunID, len(report.Rejects)); err != nil {
		return err
	}
	for _, rc := range stats.TopReasons(report.Rejects, 3) {
		if _, err := fmt.Fprintf(out, "  %s: %d\n", rc.Reason, rc.Count); err != nil {
			return err
		}
	}
	return nil
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic data file with injected faults",
		Args:  cobra.NoArgs,
		RunE:  runGenerateCmd,
	}
	cmd.Flags().StringVar(&genOut, "out", "", "output file")
	cmd.Flags().IntVar(&genFrames, "frames", defaultGenFrames, "number of frames")
	cmd.Flags().IntVar(&genChannels, "channels", defaultGenChannels, "channel lines per frame")
	cmd.Flags().Int64Var(&genSeed, "seed", 0, "random seed (0 uses the clock)")
	cmd.Flags().Float64Var(&genMissing, "missing", 0, "per-frame probability of a missing field line (0-1)")
	cmd.Flags().Float64Var(&genAbnormal, "abnormal", 0, "per-frame probability of an abnormal channel (0-1)")
	cmd.Flags().Float64Var(&genJump, "jump", 0, "per-frame probability of a trigger ID jump (0-1)")
	cmd.Flags().BoolVar(&genTruncate, "truncate", false, "cut the last frame before its divider")
	return cmd
}

func runGenerateCmd(_ *cobra.Command, _ []string) error {
	if strings.TrimSpace(genOut) == "" {
		return fmt.Errorf("--out is required")
	}
	faults := generator.Faults{
		MissingField:    genMissing,
		AbnormalChannel: genAbnormal,
		TrgIDJump:       genJump,
		Truncate:        genTruncate,
	}
	if err := validateFaults(faults); err != nil {
		return err
	}
	opts := generator.DefaultOptions()
	opts.Frames = genFrames
	opts.Channels = genChannels
	opts.Faults = faults

	gen := generator.New()
	if genSeed != 0 {
		gen = generator.NewSeeded(genSeed)
	}
	var truth generator.Truth
	err := rewrite.WriteFile(genOut, func(w io.Writer) error {
		var werr error
		truth, werr = gen.Write(w, opts)
		return werr
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", genOut, err)
	}
	logErrf("Wrote %s: %d frames, %d broken, %d abnormal, %d jumps\n",
		genOut, truth.Frames, len(truth.Broken), len(truth.Abnormal), len(truth.Jumps))
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	paths, err := config.ResolvePaths()
	if err != nil {
		return err
	}
	path := paths.Config
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if flagChanged(cmd, name) {
		return
	}
	*target = *value
}

func applyStringSliceConfig(cmd *cobra.Command, name string, target, value *[]string) {
	if value == nil {
		return
	}
	if flagChanged(cmd, name) {
		return
	}
	*target = append([]string(nil), (*value)...)
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if flagChanged(cmd, name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if flagChanged(cmd, name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# dt5202fix configuration
# Uncomment a value to enable it. CLI flags override config values.

[detect]
# exclude = ["iqr"]       # Outlier methods that reject frames: "iqr", "diff"
# iqr-k = %g             # IQR fence multiplier
# trgid-diff = %.0f    # Trigger ID jump threshold
# ts-diff = %.0f    # Timestamp jump threshold

[channels]
# max = %d               # Largest normal channel value

[history]
# enabled = true          # Record runs in the history database

[plot]
# dir = ""                # Write PNG plots of every run here
`,
		outlier.DefaultIQRMultiplier,
		float64(outlier.DefaultTrgIDDiffThreshold),
		float64(outlier.DefaultTSDiffThreshold),
		dump.DefaultChannelMax,
	)
}

func validateConfig(cfg model.Config) error {
	if strings.TrimSpace(cfg.InputPath) == "" {
		return fmt.Errorf("--input is required")
	}
	if cfg.OutputPath != "" && filepath.Clean(cfg.OutputPath) == filepath.Clean(cfg.InputPath) {
		return fmt.Errorf("--output must differ from --input")
	}
	if cfg.IQRMultiplier <= 0 {
		return fmt.Errorf("--iqr-k must be > 0")
	}
	if cfg.TrgIDDiffThreshold <= 0 {
		return fmt.Errorf("--trgid-diff must be > 0")
	}
	if cfg.TSDiffThreshold <= 0 {
		return fmt.Errorf("--ts-diff must be > 0")
	}
	if cfg.ChannelMax <= dump.DefaultChannelMin {
		return fmt.Errorf("--channel-max must be > %d", dump.DefaultChannelMin)
	}
	return nil
}

func validateFaults(f generator.Faults) error {
	probs := []struct {
		flag string
		p    float64
	}{
		{"--missing", f.MissingField},
		{"--abnormal", f.AbnormalChannel},
		{"--jump", f.TrgIDJump},
	}
	for _, pr := range probs {
		if pr.p < 0 || pr.p > 1 {
			return fmt.Errorf("%s must be between 0 and 1", pr.flag)
		}
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
