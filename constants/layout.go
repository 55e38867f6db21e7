package constants

import (
	"math/bits"
	"strconv"
)

// StackLayout mirrors the allocator's stack region configuration, so the
// offsets can be evaluated at generation time instead of by the C++
// compiler.
type StackLayout struct {
	PageSize          uint64
	ThreadCount       uint64
	StackSize         uint64
	MinAllocationSize uint64
}

// DefaultStackLayout matches the allocator's compiled-in configuration:
// 16 threads with 16MB stacks, 8B minimum allocations and 4KB pages.
func DefaultStackLayout() StackLayout {
	return StackLayout{
		PageSize:          4096,
		ThreadCount:       16,
		StackSize:         1 << 24,
		MinAllocationSize: 1 << 3,
	}
}

// GuardedRegionSize is the per-size-class region including its guard pages.
func (l StackLayout) GuardedRegionSize() uint64 {
	return l.ThreadCount*l.StackSize + 2*l.PageSize
}

// IndexFor returns the size class index of size. Sizes at or below the
// minimum allocation size share index 0.
func (l StackLayout) IndexFor(size uint64) uint64 {
	regionIdx := uint64(bits.Len64(size))
	if bits.OnesCount64(size) != 1 {
		regionIdx++
	}

	begin := uint64(bits.Len64(l.MinAllocationSize))
	if regionIdx < begin {
		return 0
	}

	return regionIdx - begin
}

// RegionOffset returns the byte offset of the region serving size.
func (l StackLayout) RegionOffset(size uint64) uint64 {
	return (l.IndexFor(size) + 1) * l.GuardedRegionSize()
}

// Formula emits RegionOffset as a decimal literal.
func (l StackLayout) Formula() OffsetFormula {
	return func(size uint64) string {
		return strconv.FormatUint(l.RegionOffset(size), 10)
	}
}
