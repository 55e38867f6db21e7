// Package main provides the CLI entry point for allocbench, a benchmark
// sweep harness for the TypeART allocator.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(logger, level)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("allocbench failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	root := &cobra.Command{
		Use:   "allocbench",
		Short: "Allocator micro-benchmark sweep harness",
		Long: `Allocbench renders parameterized C++ benchmark programs, compiles and
runs them through the TypeART build driver, and reports the user, system and
wall time plus peak RSS of every trial. It also generates the allocator's
stack region offset table.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newSweepCmd(logger, level))
	root.AddCommand(newRenderCmd(logger))
	root.AddCommand(newConstantsCmd(logger))

	return root
}
