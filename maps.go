package memdump

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/kayon/memdump/utils"
)

// Maps is an open /proc/<pid>/maps listing.
type Maps struct {
	file *os.File
}

func OpenMaps(pid int) (*Maps, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLayoutUnavailable, err)
	}
	return &Maps{file: f}, nil
}

func (m *Maps) Close() error {
	return m.file.Close()
}

// Parse reads the listing from the beginning, so it can be called again after the layout changed.
func (m *Maps) Parse() (Regions, error) {
	if _, err := m.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLayoutUnavailable, err)
	}
	return ParseMaps(m.file)
}

// ParseMaps parses a maps listing, one "start-end perms offset [dev inode] [name]" row per line.
// Regions are returned in listing order, which the kernel keeps ascending by start address.
func ParseMaps(r io.Reader) (Regions, error) {
	bufScan := bufio.NewScanner(r)
	regions := make(Regions, 0, defRegionsCaps)
	var line int
	for bufScan.Scan() {
		line++
		row := bytes.TrimSpace(bufScan.Bytes())
		if len(row) == 0 {
			continue
		}
		region, ok := parseMapsRow(row)
		if !ok {
			return nil, fmt.Errorf("%w: malformed row %d: %q", ErrLayoutUnavailable, line, row)
		}
		regions = append(regions, region)
	}
	if err := bufScan.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLayoutUnavailable, err)
	}
	return regions, nil
}

func parseMapsRow(raw []byte) (region Region, ok bool) {
	addr, rest := nextField(raw)
	perms, rest := nextField(rest)
	offset, rest := nextField(rest)
	if len(perms) < 4 || len(offset) == 0 {
		return
	}

	dashIdx := bytes.IndexByte(addr, '-')
	if dashIdx < 1 {
		return
	}

	var err error
	if region.Start, err = strconv.ParseUint(utils.BytesToString(addr[:dashIdx]), 16, 64); err != nil {
		return
	}
	if region.End, err = strconv.ParseUint(utils.BytesToString(addr[dashIdx+1:]), 16, 64); err != nil {
		return
	}
	if region.Start >= region.End {
		return
	}
	if region.Offset, err = strconv.ParseUint(utils.BytesToString(offset), 16, 64); err != nil {
		return
	}
	region.Perms = ParsePermissions(perms)

	// dev and inode are optional, "fd:01 1234"
	if dev, tail := nextField(rest); bytes.IndexByte(dev, ':') > 0 {
		_, rest = nextField(tail)
	}

	// the pathname may contain spaces, keep everything that is left
	if name := bytes.TrimSpace(rest); len(name) > 0 {
		region.Name = string(name)
	} else {
		region.Name = AnonymousName
	}
	return region, true
}

func nextField(raw []byte) (field, rest []byte) {
	raw = bytes.TrimLeft(raw, " \t")
	i := bytes.IndexAny(raw, " \t")
	if i < 0 {
		return raw, nil
	}
	return raw[:i], raw[i:]
}
