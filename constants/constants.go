// Package constants generates the C++ translation unit holding the
// allocator's per-size stack region offsets.
package constants

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	MinExponent = 2
	MaxExponent = 29

	DefaultInclude   = `#include "runtime/allocator/Config.h"`
	DefaultNamespace = "using namespace typeart::runtime::allocator::config::stack;"
	DefaultPrefix    = "typeart_stack_region_offset_for_size"
	DefaultFunction  = "region_offset_for"
)

// OffsetFormula returns the C++ initializer for the offset of the given
// allocation size. It must be pure.
type OffsetFormula func(size uint64) string

// CallFormula emits a call to the named constexpr function with the size
// as its literal argument.
func CallFormula(function string) OffsetFormula {
	return func(size uint64) string {
		return fmt.Sprintf("%s(%d)", function, size)
	}
}

// Entry is one declaration in the table.
type Entry struct {
	Size   uint64
	Offset string
}

// Generator writes the offset table.
type Generator struct {
	Include   string
	Namespace string
	Prefix    string
	Formula   OffsetFormula
}

// NewGenerator returns a Generator with the allocator's header, namespace
// and identifier prefix, using formula for the initializers.
func NewGenerator(formula OffsetFormula) *Generator {
	return &Generator{
		Include:   DefaultInclude,
		Namespace: DefaultNamespace,
		Prefix:    DefaultPrefix,
		Formula:   formula,
	}
}

// Identifier is the constant name for size.
func Identifier(prefix string, size uint64) string {
	return fmt.Sprintf("%s_%d", prefix, size)
}

// Entries returns one entry per exponent in [MinExponent, MaxExponent],
// ascending.
func (g *Generator) Entries() []Entry {
	entries := make([]Entry, 0, MaxExponent-MinExponent+1)
	for e := MinExponent; e <= MaxExponent; e++ {
		size := uint64(1) << e
		entries = append(entries, Entry{Size: size, Offset: g.Formula(size)})
	}

	return entries
}

// Generate writes the table to w.
func (g *Generator) Generate(w io.Writer) error {
	if g.Formula == nil {
		return fmt.Errorf("no offset formula configured")
	}

	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, g.Include)
	fmt.Fprintln(bw, g.Namespace)

	for _, entry := range g.Entries() {
		fmt.Fprintf(bw, "extern const int64_t %s = %s;\n",
			Identifier(g.Prefix, entry.Size), entry.Offset)
	}

	return bw.Flush()
}

// WriteFile writes the table to path, replacing any previous file
// atomically.
func (g *Generator) WriteFile(path string) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if err := g.Generate(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("generate: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}

	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("rename to %s: %w", path, err)
	}

	return nil
}
