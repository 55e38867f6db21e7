package harness

import (
	"errors"
	"testing"
)

func TestParseExecutionTime(t *testing.T) {
	input := "1.500000 user, 0.250000 sys, 3.000000 real, 2048k RSS"

	got, err := ParseExecutionTime(input)
	if err != nil {
		t.Fatalf("ParseExecutionTime failed: %v", err)
	}

	want := ExecutionTime{User: 1.5, Sys: 0.25, Real: 3.0, RSS: 2048}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestParseExecutionTimeTrailingText(t *testing.T) {
	input := "0.12 user, 0.03 sys, 0.20 real, 5120k RSS (max)\n"

	got, err := ParseExecutionTime(input)
	if err != nil {
		t.Fatalf("ParseExecutionTime failed: %v", err)
	}

	if got.RSS != 5120 {
		t.Errorf("rss = %d, want 5120", got.RSS)
	}
	if got.Real != 0.2 {
		t.Errorf("real = %v, want 0.2", got.Real)
	}
}

func TestParseExecutionTimeRoundTrip(t *testing.T) {
	samples := []ExecutionTime{
		{User: 0, Sys: 0, Real: 0, RSS: 0},
		{User: 1.5, Sys: 0.25, Real: 3, RSS: 2048},
		{User: 12.345678, Sys: 0.000001, Real: 99.5, RSS: 1 << 30},
		{User: 0.1, Sys: 0.2, Real: 0.3, RSS: 7},
	}

	for _, s := range samples {
		got, err := ParseExecutionTime(s.String())
		if err != nil {
			t.Fatalf("parse %q: %v", s.String(), err)
		}
		if got != s {
			t.Errorf("round trip of %q = %+v, want %+v", s.String(), got, s)
		}
	}
}

func TestParseExecutionTimeFailures(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", ErrMissingField},
		{"missing real and rss", "1.5 user 0.25 sys", ErrMissingField},
		{"missing comma", "1.5 user, 0.25 sys 3.0 real, 2048k RSS", ErrMissingField},
		{"no rss suffix", "1.5 user, 0.25 sys, 3.0 real, 2048k", ErrWrongSuffix},
		{"no k", "1.5 user, 0.25 sys, 3.0 real, 2048 RSS", ErrWrongSuffix},
		{"lowercase rss", "1.5 user, 0.25 sys, 3.0 real, 2048k rss", ErrWrongSuffix},
		{"word for number", "fast user, 0.25 sys, 3.0 real, 2048k RSS", ErrNonNumeric},
		{"integer time", "1 user, 0.25 sys, 3.0 real, 2048k RSS", ErrNonNumeric},
		{"lone dot", ". user, 0.25 sys, 3.0 real, 2048k RSS", ErrNonNumeric},
		{"negative", "1.5 user, -0.25 sys, 3.0 real, 2048k RSS", ErrNonNumeric},
		{"fractional rss", "1.5 user, 0.25 sys, 3.0 real, 20.48k RSS", ErrNonNumeric},
		{"not leading", "elapsed: 1.5 user, 0.25 sys, 3.0 real, 2048k RSS", ErrNonNumeric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExecutionTime(tt.input)
			if err == nil {
				t.Fatalf("expected error, got %+v", got)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, ErrMalformedMeasurement) {
				t.Errorf("error %v is not ErrMalformedMeasurement", err)
			}
			if got != (ExecutionTime{}) {
				t.Errorf("partial result returned: %+v", got)
			}
		})
	}
}

func TestMeasurementErrorField(t *testing.T) {
	_, err := ParseExecutionTime("1.5 user, 0.25 sys, x real, 2048k RSS")

	var merr *MeasurementError
	if !errors.As(err, &merr) {
		t.Fatalf("expected *MeasurementError, got %T", err)
	}
	if merr.Field != "real" {
		t.Errorf("field = %q, want real", merr.Field)
	}
}
