package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/weiihann/allocbench/config"
	"github.com/weiihann/allocbench/sweep"
)

const sweepDriver = `#!/bin/sh
case "$2" in
--only_compile) echo "compiled $1" ;;
--only_execute) echo "1.500000 user, 0.250000 sys, 3.000000 real, 2048k RSS" >&2 ;;
*) exit 2 ;;
esac
`

func TestApplyFlagsOnlyExplicit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cmd := newSweepCmd(logger, new(slog.LevelVar))

	if err := cmd.Flags().Parse([]string{"--trials", "2", "--variant", "stack_mt"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg := config.Default()
	cfg.Driver = "/from/file/run.sh"

	var f config.Config
	f.Trials = 2
	f.Variant = "stack_mt"
	f.Driver = "ignored"

	applyFlags(cmd.Flags(), &cfg, f)

	if cfg.Trials != 2 {
		t.Errorf("trials = %d, want 2", cfg.Trials)
	}
	if cfg.Variant != "stack_mt" {
		t.Errorf("variant = %q, want stack_mt", cfg.Variant)
	}
	if cfg.Driver != "/from/file/run.sh" {
		t.Errorf("driver = %q, unset flag must not override", cfg.Driver)
	}
}

func TestConstantsCommand(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "offsets.cpp")

	root := newRootCmd(logger, new(slog.LevelVar))
	root.SetArgs([]string{"constants", "--evaluate", path})

	if err := root.Execute(); err != nil {
		t.Fatalf("constants failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 30 {
		t.Fatalf("expected 30 lines, got %d", len(lines))
	}

	want := "extern const int64_t typeart_stack_region_offset_for_size_4 = 268443648;"
	if lines[2] != want {
		t.Errorf("first entry = %q, want %q", lines[2], want)
	}
}

func TestSweepRejectsBadConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	root := newRootCmd(logger, new(slog.LevelVar))
	root.SetArgs([]string{"sweep", "--trials", "0"})

	if err := root.Execute(); err == nil {
		t.Error("expected error for zero trials")
	}
}

func TestSweepDocumentFormat(t *testing.T) {
	dir := t.TempDir()
	driver := filepath.Join(dir, "run.sh")
	if err := os.WriteFile(driver, []byte(sweepDriver), 0o755); err != nil {
		t.Fatalf("write driver: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var out bytes.Buffer
	root := newRootCmd(logger, new(slog.LevelVar))
	root.SetOut(&out)
	root.SetArgs([]string{
		"sweep",
		"--driver", driver,
		"--work-dir", filepath.Join(dir, "work"),
		"--vars-start", "100", "--vars-stop", "300", "--vars-step", "100",
		"--threads-start", "1", "--threads-stop", "2", "--threads-step", "1",
		"--trials", "3",
		"--format", "json-document",
	})

	if err := root.Execute(); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	var doc struct {
		Summary sweep.Summary `json:"summary"`
		Points  []sweep.Point `json:"points"`
	}
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("output is not one JSON document: %v\n%s", err, out.String())
	}

	if doc.Summary.Compiles != 2 || doc.Summary.Executions != 6 {
		t.Errorf("summary = %+v, want 2 compiles and 6 executions", doc.Summary)
	}
	if len(doc.Points) != 6 {
		t.Fatalf("expected 6 points, got %d", len(doc.Points))
	}
	if doc.Summary.RunID == "" || doc.Points[0].RunID != doc.Summary.RunID {
		t.Errorf("run id mismatch: summary %q, point %q", doc.Summary.RunID, doc.Points[0].RunID)
	}
	if doc.Points[5].Config.NumVars != 200 || doc.Points[5].Trial != 3 {
		t.Errorf("unexpected last point %+v", doc.Points[5])
	}
}
