package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/weiihann/allocbench/constants"
)

func newConstantsCmd(logger *slog.Logger) *cobra.Command {
	var (
		prefix   string
		function string
		evaluate bool
	)

	cmd := &cobra.Command{
		Use:   "constants <output>",
		Short: "Generate the stack region offset table",
		Long: `Write the C++ translation unit declaring one stack region offset constant
per power-of-two allocation size from 4B to 512MB. By default each constant is
initialized with a call to the allocator's constexpr offset function; with
--evaluate the offsets are computed here from the default stack layout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formula := constants.CallFormula(function)
			if evaluate {
				formula = constants.DefaultStackLayout().Formula()
			}

			gen := constants.NewGenerator(formula)
			gen.Prefix = prefix

			if err := gen.WriteFile(args[0]); err != nil {
				return fmt.Errorf("write constants: %w", err)
			}

			logger.InfoContext(cmd.Context(), "constants written",
				slog.String("path", args[0]),
				slog.Int("entries", len(gen.Entries())),
			)

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&prefix, "prefix", constants.DefaultPrefix,
		"Identifier prefix of the generated constants")
	flags.StringVar(&function, "function", constants.DefaultFunction,
		"Offset function called in each initializer")
	flags.BoolVar(&evaluate, "evaluate", false,
		"Emit numeric offsets computed from the default stack layout")

	return cmd
}
