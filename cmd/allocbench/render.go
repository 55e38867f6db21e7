package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/weiihann/allocbench/workload"
)

func newRenderCmd(logger *slog.Logger) *cobra.Command {
	var (
		variant    string
		numVars    int
		numThreads int
		output     string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a single benchmark program",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := workload.ParseVariant(variant)
			if err != nil {
				return err
			}

			gen, err := workload.NewGenerator()
			if err != nil {
				return err
			}

			cfg := workload.Config{Variant: v, NumThreads: numThreads, NumVars: numVars}

			if output == "" || output == "-" {
				return gen.Generate(os.Stdout, cfg)
			}

			text, err := gen.Render(cfg)
			if err != nil {
				return err
			}

			if err := os.WriteFile(output, text, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}

			logger.InfoContext(cmd.Context(), "benchmark rendered",
				slog.String("variant", variant),
				slog.String("path", output),
			)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&variant, "variant", string(workload.HeapMTLoop),
		"Benchmark template variant")
	flags.IntVar(&numVars, "num-vars", 10000,
		"Number of variables allocated per thread")
	flags.IntVar(&numThreads, "num-threads", 0,
		"Number of worker threads (required by threaded variants)")
	flags.StringVarP(&output, "output", "o", "-",
		"Output file (- for stdout)")

	return cmd
}
