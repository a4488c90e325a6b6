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

import (
	"fmt"
	"math"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// buffers below this size live on the Go heap
const arenaMmapThreshold = 1 << 20

// Arena is the flat snapshot buffer.
// Large arenas are anonymous private mappings, zero-filled by the kernel and
// only backed by physical pages once written.
type Arena struct {
	data []byte
	raw  []byte
}

func NewArena(size uint64) (*Arena, error) {
	if size > math.MaxInt {
		return nil, fmt.Errorf("arena size %d exceeds address space", size)
	}
	if size < arenaMmapThreshold {
		return &Arena{data: make([]byte, size)}, nil
	}

	// 匿名私有
	raw, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("arena mmap %d bytes: %w", size, err)
	}
	return newMappedArena(raw), nil
}

// mapArenaFile maps size bytes of f read-only.
func mapArenaFile(f *os.File, size int64) (*Arena, error) {
	if size == 0 {
		return &Arena{}, nil
	}
	if size > math.MaxInt {
		return nil, fmt.Errorf("file size %d exceeds address space", size)
	}
	raw, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	// inspection 以随机访问为主
	_ = unix.Madvise(raw, unix.MADV_RANDOM)
	return newMappedArena(raw), nil
}

func newMappedArena(raw []byte) *Arena {
	a := &Arena{data: raw, raw: raw}
	runtime.SetFinalizer(a, func(obj *Arena) {
		if len(obj.raw) > 0 {
			_ = unix.Munmap(obj.raw)
		}
	})
	return a
}

func (a *Arena) Bytes() []byte {
	return a.data
}

func (a *Arena) Len() int {
	return len(a.data)
}

// Slice returns the sub-slice [offset, offset+size) with its capacity capped,
// so a writer holding it can never reach a neighbouring block.
func (a *Arena) Slice(offset, size uint64) []byte {
	end := offset + size
	return a.data[offset:end:end]
}

func (a *Arena) Mapped() bool {
	return a.raw != nil
}

func (a *Arena) Destroy() (err error) {
	if len(a.raw) > 0 {
		err = unix.Munmap(a.raw)
		runtime.SetFinalizer(a, nil)
	}
	a.raw = nil
	a.data = nil
	return
}
