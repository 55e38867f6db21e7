package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// ErrBuildFailed is returned when the toolchain fails to compile a
// benchmark source.
var ErrBuildFailed = errors.New("build failed")

// BuildOutcome reports what happened during a compile-only invocation.
type BuildOutcome struct {
	Source   string
	Success  bool
	ExitCode int
	Output   string
	Duration time.Duration
}

// Compile runs the toolchain driver in compile-only mode against src.
// The binary lands wherever the driver puts it; Execute finds it from
// the same source path. The outcome is returned even on failure.
func (t *Toolchain) Compile(ctx context.Context, src string) (BuildOutcome, error) {
	ctx, cancel := withTimeout(ctx, t.CompileTimeout)
	defer cancel()

	cmd := t.command(ctx, src, "--only_compile")

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	t.Logger.DebugContext(ctx, "compiling benchmark",
		slog.String("source", src),
	)

	start := time.Now()
	err := cmd.Run()

	outcome := BuildOutcome{
		Source:   src,
		Success:  err == nil,
		ExitCode: exitCode(err),
		Output:   output.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome, fmt.Errorf("%w: %s: %w", ErrBuildFailed, src, ctxErr)
		}

		return outcome, fmt.Errorf(
			"%w: %s: %v\noutput: %s",
			ErrBuildFailed, src, err, outcome.Output,
		)
	}

	t.Logger.InfoContext(ctx, "benchmark compiled",
		slog.String("source", src),
		slog.Duration("build_time", outcome.Duration),
	)

	return outcome, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}
