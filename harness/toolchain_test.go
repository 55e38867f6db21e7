package harness

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fakeDriver = `#!/bin/sh
src="$1"
case "$2" in
--only_compile)
	case "$src" in
	*broken*) echo "error: expected ';'" >&2; exit 3 ;;
	esac
	echo "compiled $src"
	;;
--only_execute)
	case "$src" in
	*hang*) exec sleep 10 ;;
	*silent*) echo "done" ;;
	*longline*) head -c 70000 /dev/zero | tr '\0' x; echo; echo "1.500000 user, 0.250000 sys, 3.000000 real, 2048k RSS" >&2 ;;
	*crash*) echo "0.01 user, 0.00 sys, 0.02 real, 900k RSS" >&2; exit 139 ;;
	*) echo "program output"; echo "1.500000 user, 0.250000 sys, 3.000000 real, 2048k RSS" >&2 ;;
	esac
	;;
*) exit 2 ;;
esac
`

func newTestToolchain(t *testing.T, runTimeout time.Duration) *Toolchain {
	t.Helper()

	driver := filepath.Join(t.TempDir(), "run.sh")
	if err := os.WriteFile(driver, []byte(fakeDriver), 0o755); err != nil {
		t.Fatalf("write driver: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewToolchain(driver, nil, time.Minute, runTimeout, logger)
}

func TestCompileSuccess(t *testing.T) {
	tc := newTestToolchain(t, 0)

	outcome, err := tc.Compile(context.Background(), "/tmp/ok/main.cpp")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !outcome.Success {
		t.Error("expected success outcome")
	}
	if outcome.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", outcome.ExitCode)
	}
	if !strings.Contains(outcome.Output, "compiled /tmp/ok/main.cpp") {
		t.Errorf("unexpected output %q", outcome.Output)
	}
}

func TestCompileFailureIsReported(t *testing.T) {
	tc := newTestToolchain(t, 0)

	outcome, err := tc.Compile(context.Background(), "/tmp/broken/main.cpp")
	if !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("error = %v, want ErrBuildFailed", err)
	}
	if outcome.Success {
		t.Error("expected failed outcome")
	}
	if outcome.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", outcome.ExitCode)
	}
	if !strings.Contains(outcome.Output, "expected ';'") {
		t.Errorf("compiler output not captured: %q", outcome.Output)
	}
}

func TestCompileMissingDriver(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tc := NewToolchain(filepath.Join(t.TempDir(), "nope.sh"), nil, 0, 0, logger)

	outcome, err := tc.Compile(context.Background(), "main.cpp")
	if !errors.Is(err, ErrBuildFailed) {
		t.Fatalf("error = %v, want ErrBuildFailed", err)
	}
	if outcome.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", outcome.ExitCode)
	}
}

func TestExecuteReturnsMeasurementLine(t *testing.T) {
	tc := newTestToolchain(t, 0)

	line, err := tc.Execute(context.Background(), "/tmp/ok/main.cpp")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := "1.500000 user, 0.250000 sys, 3.000000 real, 2048k RSS"
	if line != want {
		t.Errorf("line = %q, want %q", line, want)
	}
}

func TestExecuteNonZeroExitKeepsMeasurement(t *testing.T) {
	tc := newTestToolchain(t, 0)

	line, err := tc.Execute(context.Background(), "/tmp/crash/main.cpp")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.HasSuffix(line, "900k RSS") {
		t.Errorf("line = %q", line)
	}
}

func TestExecuteLongOutputLine(t *testing.T) {
	tc := newTestToolchain(t, 0)

	line, err := tc.Execute(context.Background(), "/tmp/longline/main.cpp")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := "1.500000 user, 0.250000 sys, 3.000000 real, 2048k RSS"
	if line != want {
		t.Errorf("line = %q, want %q", line, want)
	}
}

func TestFindMeasurement(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
		found  bool
	}{
		{"last line without newline", "out\n 1.0 user, 2.0 sys, 3.0 real, 4k RSS", "1.0 user, 2.0 sys, 3.0 real, 4k RSS", true},
		{"first match wins", "a RSS\nb RSS\n", "a RSS", true},
		{"long line first", strings.Repeat("y", 100000) + "\nx RSS\n", "x RSS", true},
		{"no marker", "hello\nworld\n", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := findMeasurement(bytes.NewBufferString(tt.output))
			if found != tt.found || got != tt.want {
				t.Errorf("findMeasurement() = %q, %v; want %q, %v", got, found, tt.want, tt.found)
			}
		})
	}
}

func TestExecuteWithoutMeasurement(t *testing.T) {
	tc := newTestToolchain(t, 0)

	_, err := tc.Execute(context.Background(), "/tmp/silent/main.cpp")
	if !errors.Is(err, ErrNoMeasurement) {
		t.Errorf("error = %v, want ErrNoMeasurement", err)
	}
}

func TestExecuteTimeout(t *testing.T) {
	tc := newTestToolchain(t, 200*time.Millisecond)

	start := time.Now()
	_, err := tc.Execute(context.Background(), "/tmp/hang/main.cpp")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}
