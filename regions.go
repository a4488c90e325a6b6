// Copyright (C) 2025 kayon <kayon.hu@gmail.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package memdump

import "fmt"

type Regions []Region

func (regions Regions) Size() (size uint64) {
	for _, region := range regions {
		size += region.Size()
	}
	return
}

// Filter returns the regions accepted by keep, preserving order.
func (regions Regions) Filter(keep func(Region) bool) Regions {
	if keep == nil {
		return regions
	}
	filtered := make(Regions, 0, len(regions))
	for _, region := range regions {
		if keep(region) {
			filtered = append(filtered, region)
		}
	}
	return filtered
}

// Readable keeps regions that carry the read permission.
func Readable(region Region) bool {
	return region.Perms.Read()
}

func (regions Regions) validate() error {
	for i, region := range regions {
		if region.Start >= region.End {
			return fmt.Errorf("%w: region %d %08X-%08X is empty", ErrInvalidLayout, i, region.Start, region.End)
		}
		if i > 0 && regions[i-1].End > region.Start {
			return fmt.Errorf("%w: region %d at %08X overlaps or precedes %08X-%08X",
				ErrInvalidLayout, i, region.Start, regions[i-1].Start, regions[i-1].End)
		}
	}
	return nil
}

// Block is a maximal run of regions where every End equals the next Start.
// Names and permissions may differ inside a block, only adjacency matters.
type Block struct {
	// Seq is the block position in address order
	Seq    int
	Start  uint64
	End    uint64
	Offset uint64
	// First and Count select the block regions from the layout region list
	First int
	Count int
}

func (block Block) Size() uint64 {
	return block.End - block.Start
}

func (block Block) Pages() uint64 {
	return (block.Size() + memPageSize - 1) / memPageSize
}

func (block Block) String() string {
	return fmt.Sprintf("#%d %08X-%08X %d @%d", block.Seq, block.Start, block.End, block.Size(), block.Offset)
}

// blocks merges abutting regions, assigning buffer offsets by running sum in address order.
// regions must already be validated.
func (regions Regions) blocks() []Block {
	n := len(regions)
	if n == 0 {
		return nil
	}
	blocks := make([]Block, 0, n)

	var offset uint64
	for i := 0; i < n; {
		curr := Block{
			Seq:    len(blocks),
			Start:  regions[i].Start,
			End:    regions[i].End,
			Offset: offset,
			First:  i,
			Count:  1,
		}
		i++

		for i < n && regions[i].Start == curr.End {
			curr.End = regions[i].End
			curr.Count++
			i++
		}

		offset += curr.Size()
		blocks = append(blocks, curr)
	}
	return blocks
}
