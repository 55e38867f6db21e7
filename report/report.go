// Package report formats sweep measurements. Points are streamed as they
// arrive or collected and rendered as a markdown table at the end; no
// aggregation is performed.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/weiihann/allocbench/sweep"
)

// Format selects how points are written.
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	// FormatDocument collects every point and writes one JSON document
	// holding the summary and points when the sweep ends.
	FormatDocument Format = "json-document"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(name); f {
	case FormatText, FormatJSON, FormatTable, FormatDocument:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json, table or json-document)", name)
	}
}

// Streaming reports whether points of format f are written as they
// arrive rather than collected for a final report.
func (f Format) Streaming() bool {
	return f == FormatText || f == FormatJSON
}

// Write renders the collected points in a final-report format.
func Write(w io.Writer, format Format, points []sweep.Point, summary sweep.Summary) error {
	switch format {
	case FormatTable:
		return Generate(w, points, summary)
	case FormatDocument:
		return GenerateJSON(w, points, summary)
	default:
		return fmt.Errorf("format %q is not a final report", format)
	}
}

// Stream writes every point to w as soon as it is emitted. Text lines
// read "<num_vars> <num_threads> <trial> <measurement>"; JSON lines hold
// one point object each.
type Stream struct {
	w      io.Writer
	format Format
	enc    *json.Encoder
}

// NewStream creates a Stream for a streaming format.
func NewStream(w io.Writer, format Format) (*Stream, error) {
	s := &Stream{w: w, format: format}

	switch format {
	case FormatText:
	case FormatJSON:
		s.enc = json.NewEncoder(w)
	default:
		return nil, fmt.Errorf("format %q cannot be streamed", format)
	}

	return s, nil
}

func (s *Stream) Emit(p sweep.Point) error {
	if s.enc != nil {
		return s.enc.Encode(p)
	}

	_, err := fmt.Fprintf(s.w, "%d %d %d %s\n",
		p.Config.NumVars, p.Config.NumThreads, p.Trial, p.Time)

	return err
}

// Collector keeps every point for a final report.
type Collector struct {
	Points []sweep.Point
}

func (c *Collector) Emit(p sweep.Point) error {
	c.Points = append(c.Points, p)
	return nil
}

// Generate writes a markdown table of every point followed by the
// failures recorded in summary.
func Generate(w io.Writer, points []sweep.Point, summary sweep.Summary) error {
	if len(points) == 0 && len(summary.Failures) == 0 {
		return fmt.Errorf("no results to report")
	}

	fmt.Fprintln(w, "## Sweep Results")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Run `%s`: %d compiles, %d executions, %d measurements\n",
		summary.RunID, summary.Compiles, summary.Executions, len(points))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "| Variant | Vars | Threads | Trial | User | Sys "+
		"| Real | Peak RSS |")
	fmt.Fprintln(w, "|---------|------|---------|-------|------|-----"+
		"|------|----------|")

	for _, p := range points {
		fmt.Fprintf(w, "| %s | %d | %d | %d | %s | %s | %s | %s |\n",
			p.Config.Variant,
			p.Config.NumVars,
			p.Config.NumThreads,
			p.Trial,
			formatSeconds(p.Time.User),
			formatSeconds(p.Time.Sys),
			formatSeconds(p.Time.Real),
			formatBytes(uint64(p.Time.RSS)*1024),
		)
	}

	if len(summary.Failures) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Vars | Threads | Trial | Stage | Error |")
	fmt.Fprintln(w, "|------|---------|-------|-------|-------|")

	for _, f := range summary.Failures {
		trial := "-"
		if f.Trial > 0 {
			trial = fmt.Sprint(f.Trial)
		}

		fmt.Fprintf(w, "| %d | %d | %s | %s | %s |\n",
			f.Config.NumVars,
			f.Config.NumThreads,
			trial,
			f.Stage,
			firstLine(f.Err.Error()),
		)
	}

	return nil
}

// GenerateJSON writes the summary and points as one JSON document.
func GenerateJSON(w io.Writer, points []sweep.Point, summary sweep.Summary) error {
	if points == nil {
		points = []sweep.Point{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(struct {
		Summary sweep.Summary `json:"summary"`
		Points  []sweep.Point `json:"points"`
	}{summary, points})
}

func formatSeconds(s float64) string {
	if s < 1 {
		return fmt.Sprintf("%.0fms", s*1000)
	}

	return fmt.Sprintf("%.2fs", s)
}

func formatBytes(b uint64) string {
	if b == 0 {
		return "-"
	}

	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(b)
	unit := 0

	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}

	formatted := fmt.Sprintf("%.1f", size)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")

	return formatted + " " + units[unit]
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.ReplaceAll(line, "|", `\|`)
}
