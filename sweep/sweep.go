// Package sweep runs benchmark configurations across a grid of variable
// and thread counts, repeating each configuration for a number of trials.
// Stages run strictly in sequence so concurrent runs never skew timings.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/weiihann/allocbench/harness"
	"github.com/weiihann/allocbench/workload"
)

// Renderer persists the program for a configuration and returns its path.
type Renderer interface {
	WriteSource(dir string, cfg workload.Config) (string, error)
}

// Builder compiles a rendered program.
type Builder interface {
	Compile(ctx context.Context, src string) (harness.BuildOutcome, error)
}

// Executor runs a compiled program and returns its resource usage line.
type Executor interface {
	Execute(ctx context.Context, src string) (string, error)
}

// Sink receives each measurement as soon as it is taken.
type Sink interface {
	Emit(p Point) error
}

// Point is one measured trial.
type Point struct {
	RunID  string                `json:"run_id"`
	Config workload.Config       `json:"config"`
	Trial  int                   `json:"trial"`
	Time   harness.ExecutionTime `json:"time"`
}

// Options controls the grid and failure handling.
type Options struct {
	Variant    workload.Variant
	NumVars    []int
	NumThreads []int
	Trials     int

	// WorkDir holds one artifact directory per configuration under a
	// per-run directory.
	WorkDir       string
	KeepArtifacts bool

	CompileRetries int
	RetryInterval  time.Duration

	OnBuildFailure       Policy
	OnMeasurementFailure Policy
}

// Summary describes a finished (or aborted) sweep.
type Summary struct {
	RunID      string    `json:"run_id"`
	Compiles   int       `json:"compiles"`
	Executions int       `json:"executions"`
	Points     int       `json:"points"`
	Failures   []Failure `json:"failures,omitempty"`
}

// Controller drives render, compile, execute and parse for every
// configuration in the grid.
type Controller struct {
	opts     Options
	renderer Renderer
	builder  Builder
	executor Executor
	sink     Sink
	logger   *slog.Logger
	runID    string
}

// NewController creates a Controller with a fresh run ID.
func NewController(
	opts Options,
	renderer Renderer,
	builder Builder,
	executor Executor,
	sink Sink,
	logger *slog.Logger,
) *Controller {
	runID := uuid.NewString()

	return &Controller{
		opts:     opts,
		renderer: renderer,
		builder:  builder,
		executor: executor,
		sink:     sink,
		logger:   logger.With(slog.String("run_id", runID)),
		runID:    runID,
	}
}

// RunID identifies this sweep in emitted points and artifact paths.
func (c *Controller) RunID() string {
	return c.runID
}

// Run sweeps the grid. Failures handled by the skip policy are collected
// in the summary and returned together once the sweep completes; an
// abort policy failure or a cancelled context stops the sweep at once.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: c.runID}
	runDir := filepath.Join(c.opts.WorkDir, c.runID)

	c.logger.InfoContext(ctx, "starting sweep",
		slog.String("variant", string(c.opts.Variant)),
		slog.Any("num_vars", c.opts.NumVars),
		slog.Any("num_threads", c.opts.NumThreads),
		slog.Int("trials", c.opts.Trials),
		slog.String("run_dir", runDir),
	)

	if !c.opts.KeepArtifacts {
		defer c.removeRunDir(ctx, runDir)
	}

	for _, numVars := range c.opts.NumVars {
		for _, numThreads := range c.opts.NumThreads {
			if err := ctx.Err(); err != nil {
				return summary, fmt.Errorf("sweep interrupted: %w", err)
			}

			cfg := workload.Config{
				Variant:    c.opts.Variant,
				NumThreads: numThreads,
				NumVars:    numVars,
			}

			dir := filepath.Join(runDir, cfg.Slug())
			err := c.runConfig(ctx, dir, cfg, &summary)

			if !c.opts.KeepArtifacts {
				if rmErr := os.RemoveAll(dir); rmErr != nil {
					c.logger.WarnContext(ctx, "failed to remove artifacts",
						slog.String("dir", dir),
						slog.String("error", rmErr.Error()),
					)
				}
			}

			if err != nil {
				return summary, err
			}
		}
	}

	c.logger.InfoContext(ctx, "sweep complete",
		slog.Int("compiles", summary.Compiles),
		slog.Int("executions", summary.Executions),
		slog.Int("points", summary.Points),
		slog.Int("failures", len(summary.Failures)),
	)

	var skipped *multierror.Error
	for i := range summary.Failures {
		skipped = multierror.Append(skipped, &summary.Failures[i])
	}

	return summary, skipped.ErrorOrNil()
}

// removeRunDir drops the per-run directory once every configuration
// directory under it is gone.
func (c *Controller) removeRunDir(ctx context.Context, runDir string) {
	if err := os.Remove(runDir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.WarnContext(ctx, "failed to remove run directory",
			slog.String("dir", runDir),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Controller) runConfig(
	ctx context.Context,
	dir string,
	cfg workload.Config,
	summary *Summary,
) error {
	logger := c.logger.With(
		slog.Int("num_vars", cfg.NumVars),
		slog.Int("num_threads", cfg.NumThreads),
	)

	src, err := c.renderer.WriteSource(dir, cfg)
	if err != nil {
		return fmt.Errorf("render %s: %w", cfg, err)
	}

	outcome, err := c.compile(ctx, src, summary)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("sweep interrupted: %w", err)
		}

		f := Failure{Config: cfg, Stage: StageCompile, ExitCode: outcome.ExitCode, Err: err}
		if c.opts.OnBuildFailure != PolicySkip {
			return &f
		}

		logger.WarnContext(ctx, "skipping configuration", slog.String("error", err.Error()))
		summary.Failures = append(summary.Failures, f)

		return nil
	}

	for trial := 1; trial <= c.opts.Trials; trial++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sweep interrupted: %w", err)
		}

		p, f := c.measure(ctx, src, cfg, trial, summary)
		if f != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("sweep interrupted: %w", f.Err)
			}

			if c.opts.OnMeasurementFailure != PolicySkip {
				return f
			}

			logger.WarnContext(ctx, "skipping trial",
				slog.Int("trial", trial),
				slog.String("error", f.Err.Error()),
			)
			summary.Failures = append(summary.Failures, *f)

			continue
		}

		if err := c.sink.Emit(p); err != nil {
			return fmt.Errorf("emit %s trial %d: %w", cfg, trial, err)
		}

		summary.Points++
	}

	return nil
}

// compile builds src, retrying up to CompileRetries extra times, and
// returns the outcome of the last attempt.
func (c *Controller) compile(
	ctx context.Context,
	src string,
	summary *Summary,
) (harness.BuildOutcome, error) {
	var outcome harness.BuildOutcome

	op := func() error {
		summary.Compiles++

		var err error

		outcome, err = c.builder.Compile(ctx, src)
		if err == nil && !outcome.Success {
			err = fmt.Errorf("%w: %s: exit code %d", harness.ErrBuildFailed, src, outcome.ExitCode)
		}

		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}

		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(c.opts.RetryInterval),
			uint64(max(c.opts.CompileRetries, 0)),
		),
		ctx,
	)

	notify := func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "compile failed, retrying",
			slog.String("source", src),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	err := backoff.RetryNotify(op, policy, notify)

	return outcome, err
}

func (c *Controller) measure(
	ctx context.Context,
	src string,
	cfg workload.Config,
	trial int,
	summary *Summary,
) (Point, *Failure) {
	summary.Executions++

	raw, err := c.executor.Execute(ctx, src)
	if err != nil {
		return Point{}, &Failure{Config: cfg, Trial: trial, Stage: StageExecute, Err: err}
	}

	t, err := harness.ParseExecutionTime(raw)
	if err != nil {
		return Point{}, &Failure{Config: cfg, Trial: trial, Stage: StageParse, Err: err}
	}

	return Point{RunID: c.runID, Config: cfg, Trial: trial, Time: t}, nil
}
