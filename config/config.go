// Package config loads sweep settings from defaults, an optional YAML
// file and ALLOCBENCH_* environment variables, in that order.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/weiihann/allocbench/sweep"
	"github.com/weiihann/allocbench/workload"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "ALLOCBENCH"

// Range is a half-open integer range [Start, Stop) walked by Step.
type Range struct {
	Start int `yaml:"start"`
	Stop  int `yaml:"stop"`
	Step  int `yaml:"step"`
}

// Values lists the range.
func (r Range) Values() []int {
	if r.Step <= 0 {
		return nil
	}

	var values []int
	for v := r.Start; v < r.Stop; v += r.Step {
		values = append(values, v)
	}

	return values
}

// Config holds every setting of a sweep.
type Config struct {
	Driver  string   `yaml:"driver" split_words:"true"`
	Env     []string `yaml:"env" split_words:"true"`
	Variant string   `yaml:"variant" split_words:"true"`

	NumVars    Range `yaml:"num_vars" split_words:"true"`
	NumThreads Range `yaml:"num_threads" split_words:"true"`
	Trials     int   `yaml:"trials" split_words:"true"`

	WorkDir       string `yaml:"work_dir" split_words:"true"`
	KeepArtifacts bool   `yaml:"keep_artifacts" split_words:"true"`

	CompileTimeout time.Duration `yaml:"compile_timeout" split_words:"true"`
	RunTimeout     time.Duration `yaml:"run_timeout" split_words:"true"`
	CompileRetries int           `yaml:"compile_retries" split_words:"true"`
	RetryInterval  time.Duration `yaml:"retry_interval" split_words:"true"`

	OnBuildFailure       string `yaml:"on_build_failure" split_words:"true"`
	OnMeasurementFailure string `yaml:"on_measurement_failure" split_words:"true"`

	Format   string `yaml:"format" split_words:"true"`
	LogLevel string `yaml:"log_level" split_words:"true"`
}

// Default reproduces the reference sweep: heap_mt_loop over 9 variable
// counts and 4 thread counts with 5 trials each.
func Default() Config {
	return Config{
		Driver:               filepath.Join("build", "scripts", "run.sh"),
		Variant:              string(workload.HeapMTLoop),
		NumVars:              Range{Start: 10000, Stop: 100000, Step: 10000},
		NumThreads:           Range{Start: 4, Stop: 17, Step: 4},
		Trials:               5,
		WorkDir:              filepath.Join(os.TempDir(), "allocbench"),
		CompileTimeout:       10 * time.Minute,
		RunTimeout:           10 * time.Minute,
		RetryInterval:        time.Second,
		OnBuildFailure:       string(sweep.PolicySkip),
		OnMeasurementFailure: string(sweep.PolicyAbort),
		Format:               "text",
		LogLevel:             "info",
	}
}

// Load applies the YAML file at path (if any) and the environment on top
// of the defaults. The result is not validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}

		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)

		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Driver == "" {
		return fmt.Errorf("driver must be set")
	}

	if _, err := workload.ParseVariant(c.Variant); err != nil {
		return err
	}

	if len(c.NumVars.Values()) == 0 {
		return fmt.Errorf("num_vars range %+v is empty", c.NumVars)
	}

	if len(c.NumThreads.Values()) == 0 {
		return fmt.Errorf("num_threads range %+v is empty", c.NumThreads)
	}

	if c.NumVars.Start <= 0 || c.NumThreads.Start <= 0 {
		return fmt.Errorf("num_vars and num_threads must start above zero")
	}

	if c.Trials <= 0 {
		return fmt.Errorf("trials must be positive, got %d", c.Trials)
	}

	if c.CompileRetries < 0 {
		return fmt.Errorf("compile_retries must not be negative, got %d", c.CompileRetries)
	}

	if _, err := sweep.ParsePolicy(c.OnBuildFailure); err != nil {
		return fmt.Errorf("on_build_failure: %w", err)
	}

	if _, err := sweep.ParsePolicy(c.OnMeasurementFailure); err != nil {
		return fmt.Errorf("on_measurement_failure: %w", err)
	}

	if _, err := c.Level(); err != nil {
		return err
	}

	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return level, fmt.Errorf("log_level: %w", err)
	}

	return level, nil
}

// SweepOptions converts a validated Config into controller options.
func (c Config) SweepOptions() (sweep.Options, error) {
	if err := c.Validate(); err != nil {
		return sweep.Options{}, err
	}

	variant, _ := workload.ParseVariant(c.Variant)
	onBuild, _ := sweep.ParsePolicy(c.OnBuildFailure)
	onMeasure, _ := sweep.ParsePolicy(c.OnMeasurementFailure)

	return sweep.Options{
		Variant:              variant,
		NumVars:              c.NumVars.Values(),
		NumThreads:           c.NumThreads.Values(),
		Trials:               c.Trials,
		WorkDir:              c.WorkDir,
		KeepArtifacts:        c.KeepArtifacts,
		CompileRetries:       c.CompileRetries,
		RetryInterval:        c.RetryInterval,
		OnBuildFailure:       onBuild,
		OnMeasurementFailure: onMeasure,
	}, nil
}
