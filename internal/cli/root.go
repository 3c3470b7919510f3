// Package cli implements the mediaforge command line. Every command submits
// its work to the same engine the HTTP server uses and waits for the result.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/maauso/mediaforge/internal/bootstrap"
	"github.com/maauso/mediaforge/internal/config"
	"github.com/maauso/mediaforge/internal/engine"
	"github.com/maauso/mediaforge/internal/media"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitCLIError   = 1
	ExitInputError = 2
	ExitFailed     = 3
	ExitCancelled  = 4
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCode maps a job error onto a process exit code.
func exitCode(err error) int {
	switch media.KindOf(err) {
	case media.KindInvalidParams:
		return ExitCLIError
	case media.KindNotFound, media.KindUnsupportedFormat, media.KindCorrupt, media.KindDecodeFailed:
		return ExitInputError
	case media.KindCancelled:
		return ExitCancelled
	default:
		return ExitFailed
	}
}

// openFunc builds the engine for one command invocation. The returned close
// function drains the runner.
type openFunc func(ctx context.Context, cmd *cobra.Command, stderr io.Writer) (*engine.Engine, func(context.Context) error, error)

type app struct {
	stdout io.Writer
	stderr io.Writer
	tty    bool
	open   openFunc
}

// Execute runs the CLI with the provided context.
func Execute(ctx context.Context) error {
	a := &app{
		stdout: os.Stdout,
		stderr: os.Stderr,
		tty:    term.IsTerminal(int(os.Stdout.Fd())),
		open:   openEngine,
	}
	return newRootCmd(a).ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "mediaforge",
		Short:         "Inspect, thumbnail and compress media files",
		Long:          "mediaforge probes videos, extracts thumbnails and timelines, and re-encodes or estimates compressed sizes through ffmpeg.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	bindEngineFlags(root.PersistentFlags())
	root.PersistentFlags().Bool("json", false, "Print results as JSON (default when stdout is not a terminal)")

	root.AddCommand(newProbeCmd(a))
	root.AddCommand(newThumbnailCmd(a))
	root.AddCommand(newTimelineCmd(a))
	root.AddCommand(newCompressCmd(a))
	root.AddCommand(newEstimateCmd(a))
	root.AddCommand(newThreadsCmd(a))

	return root
}

func bindEngineFlags(fs *pflag.FlagSet) {
	fs.String("ffmpeg", "", "Path to ffmpeg (overrides FFMPEG_PATH)")
	fs.String("ffprobe", "", "Path to ffprobe (overrides FFPROBE_PATH)")
	fs.String("presets", "", "Preset catalog YAML file (overrides PRESETS_FILE)")
	fs.Int("workers", 0, "Concurrent jobs; 0 uses the number of CPUs")
	fs.String("log-level", "warn", "Log level: trace, debug, info, warn, error")
}

// openEngine loads the environment configuration, applies flag overrides and
// wires the engine with logs on stderr.
func openEngine(ctx context.Context, cmd *cobra.Command, stderr io.Writer) (*engine.Engine, func(context.Context) error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, sink, err := cfg.NewLogger(stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	deps, err := bootstrap.NewDependencies(ctx, cfg, logger, sink)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize dependencies: %w", err)
	}
	return deps.Engine, func(ctx context.Context) error {
		err := deps.Close(ctx)
		return errors.Join(err, sink.Close())
	}, nil
}

// applyFlagOverrides copies explicitly set flags over the environment values.
// The CLI never writes log files and never serves HTTP.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	if v, _ := fs.GetString("ffmpeg"); fs.Changed("ffmpeg") {
		cfg.FFmpegPath = v
	}
	if v, _ := fs.GetString("ffprobe"); fs.Changed("ffprobe") {
		cfg.FFprobePath = v
	}
	if v, _ := fs.GetString("presets"); fs.Changed("presets") {
		cfg.PresetsFile = v
	}
	if v, _ := fs.GetInt("workers"); fs.Changed("workers") {
		cfg.Workers = v
	}
	cfg.LogLevel, _ = fs.GetString("log-level")
	cfg.LogStdout = true
	cfg.LogDir = ""
	cfg.DatabasePath = ""
}

// withEngine opens the engine, runs fn and drains the runner afterwards.
func (a *app) withEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *engine.Engine) error) error {
	ctx := cmd.Context()
	eng, closeFn, err := a.open(ctx, cmd, a.stderr)
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	defer func() {
		if cerr := closeFn(context.WithoutCancel(ctx)); cerr != nil {
			fmt.Fprintf(a.stderr, "warning: %v\n", cerr)
		}
	}()
	return fn(ctx, eng)
}

// waitable is the part of job.Future the commands need.
type waitable[T any] interface {
	ID() string
	Wait(ctx context.Context) (T, error)
	Cancel() bool
}

// await waits for f. An interrupted wait cancels the job and still waits for
// it to settle so that partial outputs are not written after exit.
func await[T any](ctx context.Context, f waitable[T]) (T, error) {
	v, err := f.Wait(ctx)
	if err == nil || ctx.Err() == nil {
		return v, wrapJobError(err)
	}
	f.Cancel()
	v, err = f.Wait(context.WithoutCancel(ctx))
	if err == nil {
		return v, nil
	}
	return v, wrapJobError(err)
}

func wrapJobError(err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: exitCode(err), Err: err}
}

// submitError converts a rejected submission into an ExitError.
func submitError(err error) error {
	if media.KindOf(err) == media.KindInvalidParams {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	return &ExitError{Code: ExitFailed, Err: fmt.Errorf("submit job: %w", err)}
}
