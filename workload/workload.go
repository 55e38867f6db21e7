// Package workload renders the C++ benchmark programs exercised by the
// allocator sweep. Each program is produced from one of a fixed set of
// template variants with its parameters bound; rendering is
// deterministic so identical configurations produce identical sources.
package workload

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

//go:embed templates/*.cpp.tmpl
var templateFS embed.FS

// SourceFile is the name of the rendered program inside its artifact
// directory.
const SourceFile = "main.cpp"

// Template parameter names.
const (
	ParamNumVars    = "num_vars"
	ParamNumThreads = "num_threads"
)

var (
	ErrUnknownVariant = errors.New("unknown template variant")
	ErrMissingParam   = errors.New("missing template parameter")
)

// Variant names one benchmark skeleton: an allocation strategy (stack or
// heap) combined with an execution shape.
type Variant string

const (
	StackST     Variant = "stack_st"
	StackSTLoop Variant = "stack_st_loop"
	StackMT     Variant = "stack_mt"
	HeapST      Variant = "heap_st"
	HeapMT      Variant = "heap_mt"
	HeapMTLoop  Variant = "heap_mt_loop"
)

// Variants returns every known variant.
func Variants() []Variant {
	return []Variant{StackST, StackSTLoop, StackMT, HeapST, HeapMT, HeapMTLoop}
}

// ParseVariant resolves a variant by name.
func ParseVariant(name string) (Variant, error) {
	for _, v := range Variants() {
		if string(v) == name {
			return v, nil
		}
	}

	return "", fmt.Errorf("%w %q", ErrUnknownVariant, name)
}

// Threaded reports whether the variant spawns worker threads and
// therefore needs a thread count.
func (v Variant) Threaded() bool {
	return v == StackMT || v == HeapMT || v == HeapMTLoop
}

// Required lists the parameters the variant's template binds.
func (v Variant) Required() []string {
	if v.Threaded() {
		return []string{ParamNumVars, ParamNumThreads}
	}

	return []string{ParamNumVars}
}

func (v Variant) templateName() string {
	return string(v) + ".cpp.tmpl"
}

// Config is one benchmark configuration. A zero NumThreads means the
// binding is absent.
type Config struct {
	Variant    Variant `json:"variant"`
	NumThreads int     `json:"num_threads"`
	NumVars    int     `json:"num_vars"`
}

// Params returns the template bindings present in c.
func (c Config) Params() map[string]any {
	params := map[string]any{"variant": string(c.Variant)}
	if c.NumVars > 0 {
		params[ParamNumVars] = c.NumVars
	}
	if c.NumThreads > 0 {
		params[ParamNumThreads] = c.NumThreads
	}

	return params
}

// Slug is a filesystem-safe name unique to the configuration.
func (c Config) Slug() string {
	return fmt.Sprintf("%s_v%d_t%d", c.Variant, c.NumVars, c.NumThreads)
}

func (c Config) String() string {
	return fmt.Sprintf("%s(num_vars=%d, num_threads=%d)",
		c.Variant, c.NumVars, c.NumThreads)
}

// Generator renders benchmark sources from the embedded templates.
type Generator struct {
	templates *template.Template
}

// NewGenerator parses the embedded templates.
func NewGenerator() (*Generator, error) {
	tmpl, err := template.New("").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		ParseFS(templateFS, "templates/*.cpp.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	return &Generator{templates: tmpl}, nil
}

// Generate writes the program for cfg to w.
func (g *Generator) Generate(w io.Writer, cfg Config) error {
	tmpl := g.templates.Lookup(cfg.Variant.templateName())
	if tmpl == nil {
		return fmt.Errorf("%w %q", ErrUnknownVariant, cfg.Variant)
	}

	params := cfg.Params()
	for _, name := range cfg.Variant.Required() {
		if _, ok := params[name]; !ok {
			return fmt.Errorf("%w: %s needs %s", ErrMissingParam, cfg.Variant, name)
		}
	}

	if err := tmpl.Execute(w, params); err != nil {
		return fmt.Errorf("render %s: %w", cfg.Variant, err)
	}

	return nil
}

// Render returns the program text for cfg.
func (g *Generator) Render(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := g.Generate(&buf, cfg); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// WriteSource renders cfg into dir/main.cpp and returns the file path.
// The file is complete and closed when WriteSource returns.
func (g *Generator) WriteSource(dir string, cfg Config) (string, error) {
	text, err := g.Render(cfg)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create source dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, SourceFile)
	if err := os.WriteFile(path, text, 0o644); err != nil {
		return "", fmt.Errorf("write source %s: %w", path, err)
	}

	return path, nil
}
