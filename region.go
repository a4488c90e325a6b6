package memdump

import (
	"fmt"
)

const (
	memPageSize = 1 << 12

	defRegionsCaps = 1 << 11

	// AnonymousName labels mappings that have no pathname in the maps listing.
	AnonymousName = "[anonymous]"
)

// Region is one mapped virtual-address extent [Start, End).
type Region struct {
	Start  uint64
	End    uint64
	Perms  Permissions
	Offset uint64
	Name   string
}

func (region Region) Size() uint64 {
	return region.End - region.Start
}

// Has reports whether addr lies inside [Start, End).
func (region Region) Has(addr uint64) bool {
	return addr >= region.Start && addr < region.End
}

func (region Region) String() string {
	return fmt.Sprintf("%08X-%08X %s %08X %s", region.Start, region.End, region.Perms, region.Offset, region.Name)
}
