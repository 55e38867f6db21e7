package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrNoMeasurement is returned when a timed run prints no resource
// usage line.
var ErrNoMeasurement = errors.New("no RSS line in program output")

// measurementMarker identifies the resource usage line in the merged
// output of a timed run.
const measurementMarker = "RSS"

// waitDelay bounds how long a killed driver may keep its output pipes
// open through orphaned children.
const waitDelay = 5 * time.Second

// Toolchain invokes the external build driver script. The driver takes
// a source path followed by a mode flag.
type Toolchain struct {
	Driver         string
	Env            []string
	CompileTimeout time.Duration
	RunTimeout     time.Duration
	Logger         *slog.Logger
}

// NewToolchain creates a Toolchain for the given driver script.
// Env is appended to the inherited environment. A zero timeout means
// the invocation is bounded only by the caller's context.
func NewToolchain(
	driver string,
	env []string,
	compileTimeout, runTimeout time.Duration,
	logger *slog.Logger,
) *Toolchain {
	return &Toolchain{
		Driver:         driver,
		Env:            env,
		CompileTimeout: compileTimeout,
		RunTimeout:     runTimeout,
		Logger:         logger.With(slog.String("driver", driver)),
	}
}

// Execute runs the previously compiled binary for src with timing
// enabled and returns the line of its merged output carrying the
// resource usage report.
func (t *Toolchain) Execute(ctx context.Context, src string) (string, error) {
	ctx, cancel := withTimeout(ctx, t.RunTimeout)
	defer cancel()

	cmd := t.command(ctx, src, "--only_execute", "--time")

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", fmt.Errorf("execute %s: %w", src, ctxErr)
	}

	line, found := findMeasurement(&output)
	if !found {
		if runErr != nil {
			return "", fmt.Errorf("execute %s: %w: %v", src, ErrNoMeasurement, runErr)
		}

		return "", fmt.Errorf("execute %s: %w", src, ErrNoMeasurement)
	}

	if runErr != nil {
		t.Logger.WarnContext(ctx, "benchmark exited with error",
			slog.String("source", src),
			slog.Int("exit_code", exitCode(runErr)),
		)
	}

	t.Logger.DebugContext(ctx, "benchmark finished",
		slog.String("source", src),
		slog.Duration("wall_time", elapsed),
	)

	return line, nil
}

func (t *Toolchain) command(ctx context.Context, src string, mode ...string) *exec.Cmd {
	args := make([]string, 0, len(mode)+1)
	args = append(args, src)
	args = append(args, mode...)

	cmd := exec.CommandContext(ctx, t.Driver, args...)
	cmd.WaitDelay = waitDelay

	if len(t.Env) > 0 {
		cmd.Env = append(os.Environ(), t.Env...)
	}

	return cmd
}

// findMeasurement returns the first line containing the marker. Lines
// are not length limited.
func findMeasurement(output *bytes.Buffer) (string, bool) {
	for {
		line, err := output.ReadString('\n')
		if strings.Contains(line, measurementMarker) {
			return strings.TrimSpace(line), true
		}

		// bytes.Buffer only reports io.EOF.
		if err != nil {
			return "", false
		}
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}

	return context.WithCancel(ctx)
}
