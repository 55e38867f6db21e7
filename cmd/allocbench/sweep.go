package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/weiihann/allocbench/config"
	"github.com/weiihann/allocbench/harness"
	"github.com/weiihann/allocbench/report"
	"github.com/weiihann/allocbench/sweep"
	"github.com/weiihann/allocbench/workload"
)

func newSweepCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var (
		configPath string
		f          config.Config
	)

	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the benchmark grid",
		Long: `Render, compile and run one benchmark variant for every combination of
variable count and thread count, repeating each run for the configured number
of trials. Measurements are printed as they are taken.

Settings come from the defaults, then --config, then ALLOCBENCH_* environment
variables, then explicit flags.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			applyFlags(cmd.Flags(), &cfg, f)

			return runSweep(cmd.Context(), cmd.OutOrStdout(), logger, level, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "",
		"Path to a YAML sweep configuration")
	flags.StringVar(&f.Driver, "driver", defaults.Driver,
		"Build driver script (invoked as <driver> <source> --only_compile|--only_execute)")
	flags.StringSliceVar(&f.Env, "env", nil,
		"Extra KEY=VALUE environment for the driver")
	flags.StringVar(&f.Variant, "variant", defaults.Variant,
		"Benchmark template variant")
	flags.IntVar(&f.NumVars.Start, "vars-start", defaults.NumVars.Start,
		"First variable count")
	flags.IntVar(&f.NumVars.Stop, "vars-stop", defaults.NumVars.Stop,
		"Variable count upper bound (exclusive)")
	flags.IntVar(&f.NumVars.Step, "vars-step", defaults.NumVars.Step,
		"Variable count increment")
	flags.IntVar(&f.NumThreads.Start, "threads-start", defaults.NumThreads.Start,
		"First thread count")
	flags.IntVar(&f.NumThreads.Stop, "threads-stop", defaults.NumThreads.Stop,
		"Thread count upper bound (exclusive)")
	flags.IntVar(&f.NumThreads.Step, "threads-step", defaults.NumThreads.Step,
		"Thread count increment")
	flags.IntVar(&f.Trials, "trials", defaults.Trials,
		"Runs per configuration")
	flags.StringVar(&f.WorkDir, "work-dir", defaults.WorkDir,
		"Directory for generated sources and binaries")
	flags.BoolVar(&f.KeepArtifacts, "keep-artifacts", false,
		"Keep generated sources after each configuration")
	flags.DurationVar(&f.CompileTimeout, "compile-timeout", defaults.CompileTimeout,
		"Timeout per compile (0 = none)")
	flags.DurationVar(&f.RunTimeout, "run-timeout", defaults.RunTimeout,
		"Timeout per benchmark run (0 = none)")
	flags.IntVar(&f.CompileRetries, "compile-retries", 0,
		"Extra compile attempts before a build counts as failed")
	flags.DurationVar(&f.RetryInterval, "retry-interval", defaults.RetryInterval,
		"Wait between compile attempts")
	flags.StringVar(&f.OnBuildFailure, "on-build-failure", defaults.OnBuildFailure,
		"What to do when a configuration fails to build: abort or skip")
	flags.StringVar(&f.OnMeasurementFailure, "on-measurement-failure", defaults.OnMeasurementFailure,
		"What to do when a run fails or prints a malformed measurement: abort or skip")
	flags.StringVar(&f.Format, "format", defaults.Format,
		"Output format: text, json, table or json-document")
	flags.StringVar(&f.LogLevel, "log-level", defaults.LogLevel,
		"Log level: debug, info, warn, error")

	return cmd
}

// applyFlags copies explicitly set flags from f over cfg.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config, f config.Config) {
	set := map[string]func(){
		"driver":                 func() { cfg.Driver = f.Driver },
		"env":                    func() { cfg.Env = f.Env },
		"variant":                func() { cfg.Variant = f.Variant },
		"vars-start":             func() { cfg.NumVars.Start = f.NumVars.Start },
		"vars-stop":              func() { cfg.NumVars.Stop = f.NumVars.Stop },
		"vars-step":              func() { cfg.NumVars.Step = f.NumVars.Step },
		"threads-start":          func() { cfg.NumThreads.Start = f.NumThreads.Start },
		"threads-stop":           func() { cfg.NumThreads.Stop = f.NumThreads.Stop },
		"threads-step":           func() { cfg.NumThreads.Step = f.NumThreads.Step },
		"trials":                 func() { cfg.Trials = f.Trials },
		"work-dir":               func() { cfg.WorkDir = f.WorkDir },
		"keep-artifacts":         func() { cfg.KeepArtifacts = f.KeepArtifacts },
		"compile-timeout":        func() { cfg.CompileTimeout = f.CompileTimeout },
		"run-timeout":            func() { cfg.RunTimeout = f.RunTimeout },
		"compile-retries":        func() { cfg.CompileRetries = f.CompileRetries },
		"retry-interval":         func() { cfg.RetryInterval = f.RetryInterval },
		"on-build-failure":       func() { cfg.OnBuildFailure = f.OnBuildFailure },
		"on-measurement-failure": func() { cfg.OnMeasurementFailure = f.OnMeasurementFailure },
		"format":                 func() { cfg.Format = f.Format },
		"log-level":              func() { cfg.LogLevel = f.LogLevel },
	}

	flags.Visit(func(fl *pflag.Flag) {
		if apply, ok := set[fl.Name]; ok {
			apply()
		}
	})
}

func runSweep(
	ctx context.Context,
	out io.Writer,
	logger *slog.Logger,
	level *slog.LevelVar,
	cfg config.Config,
) error {
	opts, err := cfg.SweepOptions()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	lvl, _ := cfg.Level()
	level.Set(lvl)

	format, err := report.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	driver, err := filepath.Abs(cfg.Driver)
	if err != nil {
		return fmt.Errorf("resolve driver: %w", err)
	}

	if _, err := os.Stat(driver); err != nil {
		return fmt.Errorf("build driver: %w", err)
	}

	gen, err := workload.NewGenerator()
	if err != nil {
		return err
	}

	toolchain := harness.NewToolchain(
		driver, cfg.Env, cfg.CompileTimeout, cfg.RunTimeout, logger,
	)

	var (
		sink      sweep.Sink
		collector *report.Collector
	)

	if format.Streaming() {
		sink, err = report.NewStream(out, format)
		if err != nil {
			return err
		}
	} else {
		collector = &report.Collector{}
		sink = collector
	}

	controller := sweep.NewController(opts, gen, toolchain, toolchain, sink, logger)
	runID := controller.RunID()

	start := time.Now()
	summary, runErr := controller.Run(ctx)

	logger.InfoContext(ctx, "sweep finished",
		slog.String("run_id", runID),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("points", summary.Points),
		slog.Int("failures", len(summary.Failures)),
	)

	if collector != nil && (len(collector.Points) > 0 || len(summary.Failures) > 0) {
		if err := report.Write(out, format, collector.Points, summary); err != nil {
			return fmt.Errorf("generate report: %w", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("sweep %s: %w", runID, runErr)
	}

	return nil
}
