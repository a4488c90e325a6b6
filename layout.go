package memdump

import (
	"fmt"
	"slices"
)

// Layout is the immutable address model of one snapshot: the ordered regions, the
// contiguous blocks built from them and the snapshot buffer offset of every extent.
// A Layout is never mutated after NewLayout, so lookups are safe from any goroutine.
type Layout struct {
	regions Regions
	offsets []uint64
	blocks  []Block
	size    uint64
}

// NewLayout builds a Layout from regions sorted ascending by start address.
func NewLayout(regions Regions) (*Layout, error) {
	if err := regions.validate(); err != nil {
		return nil, err
	}
	regions = slices.Clone(regions)

	l := &Layout{
		regions: regions,
		offsets: make([]uint64, len(regions)),
		blocks:  regions.blocks(),
	}
	for i, region := range regions {
		l.offsets[i] = l.size
		l.size += region.Size()
	}
	return l, nil
}

// Size is the number of bytes the snapshot buffer needs for all regions.
func (l *Layout) Size() uint64 {
	return l.size
}

func (l *Layout) Regions() Regions {
	return slices.Clone(l.regions)
}

func (l *Layout) Blocks() []Block {
	return slices.Clone(l.blocks)
}

func (l *Layout) NumRegions() int {
	return len(l.regions)
}

func (l *Layout) NumBlocks() int {
	return len(l.blocks)
}

// RegionOffset returns the snapshot buffer offset of the i-th region.
func (l *Layout) RegionOffset(i int) uint64 {
	return l.offsets[i]
}

// Block returns the block that owns addr.
func (l *Layout) Block(addr uint64) (Block, bool) {
	i := search(l.blocks, blockBounds, addr)
	if i < 0 {
		return Block{}, false
	}
	return l.blocks[i], true
}

// Region returns the region that owns addr and its snapshot buffer offset.
func (l *Layout) Region(addr uint64) (Region, uint64, bool) {
	i := search(l.regions, regionBounds, addr)
	if i < 0 {
		return Region{}, 0, false
	}
	return l.regions[i], l.offsets[i], true
}

// Resolve maps a virtual address to its snapshot buffer offset.
func (l *Layout) Resolve(addr uint64) (uint64, bool) {
	block, ok := l.Block(addr)
	if !ok {
		return 0, false
	}
	return block.Offset + (addr - block.Start), true
}

// ResolveOffset is Resolve for addresses already checked with Contains.
// It returns 0 for unmapped addresses.
func (l *Layout) ResolveOffset(addr uint64) uint64 {
	offset, _ := l.Resolve(addr)
	return offset
}

// Contains reports whether [addr, addr+length) lies inside one contiguous block,
// which allows the range to cross internal region boundaries but never a gap.
// Empty ranges and ranges that overflow the address space are rejected.
func (l *Layout) Contains(addr, length uint64) bool {
	_, ok := l.span(addr, length)
	return ok
}

func (l *Layout) span(addr, length uint64) (offset uint64, ok bool) {
	if length == 0 {
		return 0, false
	}
	block, ok := l.Block(addr)
	if !ok {
		return 0, false
	}
	// block.End > addr here, compare lengths instead of addr+length to avoid overflow
	if length > block.End-addr {
		return 0, false
	}
	return block.Offset + (addr - block.Start), true
}

func (l *Layout) String() string {
	return fmt.Sprintf("%d regions, %d blocks, %d bytes", len(l.regions), len(l.blocks), l.size)
}

func blockBounds(block Block) (uint64, uint64) {
	return block.Start, block.End
}

func regionBounds(region Region) (uint64, uint64) {
	return region.Start, region.End
}

// search finds the extent whose half-open [start, end) holds addr, or -1.
// extents must be sorted ascending and non-overlapping.
func search[E any](extents []E, bounds func(E) (uint64, uint64), addr uint64) int {
	low, high := 0, len(extents)-1
	for low <= high {
		mid := low + (high-low)/2
		start, end := bounds(extents[mid])
		switch {
		case addr < start:
			high = mid - 1
		case addr >= end:
			low = mid + 1
		default:
			return mid
		}
	}
	return -1
}
