// Package harness drives the external build toolchain that compiles and
// runs generated allocator benchmarks, and decodes the resource usage
// line the timed programs report.
package harness

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/viant/parsly"
)

// ExecutionTime is one resource usage sample reported by a timed run.
type ExecutionTime struct {
	User float64 `json:"user"`
	Sys  float64 `json:"sys"`
	Real float64 `json:"real"`
	// RSS is the peak resident set size in kilobytes.
	RSS int64 `json:"rss_kb"`
}

// String renders t in the toolchain's report grammar. ParseExecutionTime
// is its inverse for values with at most six decimals.
func (t ExecutionTime) String() string {
	return fmt.Sprintf("%.6f user, %.6f sys, %.6f real, %dk RSS",
		t.User, t.Sys, t.Real, t.RSS)
}

var (
	// ErrMalformedMeasurement matches every error returned by
	// ParseExecutionTime.
	ErrMalformedMeasurement = errors.New("malformed measurement")

	ErrMissingField = errors.New("missing field")
	ErrNonNumeric   = errors.New("non-numeric field")
	ErrWrongSuffix  = errors.New("wrong suffix")
)

// MeasurementError describes why a line did not match the grammar.
type MeasurementError struct {
	Field string
	Text  string
	Err   error
}

func (e *MeasurementError) Error() string {
	return fmt.Sprintf("%s %q: %s: %v",
		ErrMalformedMeasurement, e.Text, e.Field, e.Err)
}

func (e *MeasurementError) Unwrap() error { return e.Err }

func (e *MeasurementError) Is(target error) bool {
	return target == ErrMalformedMeasurement
}

var timeFields = []struct {
	name  string
	token *parsly.Token
}{
	{"user", userToken},
	{"sys", sysToken},
	{"real", realToken},
}

// ParseExecutionTime decodes a line of the form
//
//	<float> user, <float> sys, <float> real, <int>k RSS
//
// matching from the start of text. Anything after "RSS" is ignored.
func ParseExecutionTime(text string) (ExecutionTime, error) {
	line := strings.TrimSpace(text)
	cursor := parsly.NewCursor("", []byte(line), 0)

	fail := func(field string, err error) (ExecutionTime, error) {
		return ExecutionTime{}, &MeasurementError{Field: field, Text: line, Err: err}
	}

	var values [3]float64

	for i, f := range timeFields {
		if i > 0 {
			if cursor.MatchOne(commaToken).Code != commaCode {
				return fail(f.name, fmt.Errorf("%w: expected ',' before %s", ErrMissingField, f.name))
			}
		}

		matched := cursor.MatchAfterOptional(whitespaceToken, valueToken)
		if matched.Code != valueCode {
			return fail(f.name, ErrMissingField)
		}

		raw := matched.Text(cursor)
		if !isDecimal(raw) {
			return fail(f.name, fmt.Errorf("%w: %q", ErrNonNumeric, raw))
		}

		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fail(f.name, fmt.Errorf("%w: %v", ErrNonNumeric, err))
		}

		values[i] = v

		if cursor.MatchAfterOptional(whitespaceToken, f.token).Code != f.token.Code {
			return fail(f.name, fmt.Errorf("%w: expected %q after %s", ErrMissingField, f.name, raw))
		}
	}

	if cursor.MatchOne(commaToken).Code != commaCode {
		return fail("rss", fmt.Errorf("%w: expected ',' before rss", ErrMissingField))
	}

	matched := cursor.MatchAfterOptional(whitespaceToken, valueToken)
	if matched.Code != valueCode {
		return fail("rss", ErrMissingField)
	}

	raw := matched.Text(cursor)
	digits, ok := strings.CutSuffix(raw, "k")
	if !ok {
		return fail("rss", fmt.Errorf("%w: %q does not end in 'k'", ErrWrongSuffix, raw))
	}

	if !isDigits(digits) {
		return fail("rss", fmt.Errorf("%w: %q", ErrNonNumeric, raw))
	}

	rss, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return fail("rss", fmt.Errorf("%w: %v", ErrNonNumeric, err))
	}

	if cursor.MatchAfterOptional(whitespaceToken, rssToken).Code != rssCode {
		return fail("rss", fmt.Errorf("%w: expected \"RSS\" after %s", ErrWrongSuffix, raw))
	}

	return ExecutionTime{
		User: values[0],
		Sys:  values[1],
		Real: values[2],
		RSS:  rss,
	}, nil
}

// isDecimal accepts digits with exactly one '.' and at least one digit.
func isDecimal(s string) bool {
	intPart, frac, ok := strings.Cut(s, ".")
	if !ok || intPart+frac == "" {
		return false
	}

	return (intPart == "" || isDigits(intPart)) && (frac == "" || isDigits(frac))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}

	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}

	return true
}
