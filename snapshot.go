package memdump

import (
	"fmt"
	"time"
)

// CaptureStats reports how a snapshot was captured.
type CaptureStats struct {
	Workers   int
	Groups    int
	BytesRead uint64
	Elapsed   time.Duration
}

// Snapshot is a captured or reloaded address space: a Layout plus the flat buffer it indexes.
// The buffer holds Layout.Size() raw bytes, optionally followed by a fixed-size trailer.
// After capture a Snapshot is read-only and safe for concurrent queries.
type Snapshot struct {
	layout *Layout
	arena  *Arena
	closed bool

	PID   int
	Comm  string
	Stats CaptureStats
}

func newSnapshot(layout *Layout, arena *Arena) (*Snapshot, error) {
	if uint64(arena.Len()) < layout.Size() {
		return nil, fmt.Errorf("snapshot buffer holds %d bytes, layout needs %d", arena.Len(), layout.Size())
	}
	return &Snapshot{layout: layout, arena: arena}, nil
}

func (s *Snapshot) Layout() *Layout {
	return s.layout
}

// RawSize is the size of the captured memory without the trailer.
func (s *Snapshot) RawSize() uint64 {
	return s.layout.Size()
}

// Size is the size of the whole buffer including the trailer.
func (s *Snapshot) Size() uint64 {
	return uint64(s.arena.Len())
}

// Bytes exposes the raw captured memory. The slice must not be modified
// and is only valid until Close, which makes it nil.
func (s *Snapshot) Bytes() []byte {
	if s.closed {
		return nil
	}
	return s.arena.Bytes()[:s.layout.Size()]
}

// Registers returns the trailer appended after the raw memory, usually the register set.
func (s *Snapshot) Registers() []byte {
	if s.closed {
		return nil
	}
	return s.arena.Bytes()[s.layout.Size():]
}

// Read returns a copy of length bytes starting at the virtual address addr.
// The range may cross region boundaries inside a contiguous block but never a gap;
// rejected queries return an *OutOfBoundsError and leave the snapshot untouched.
func (s *Snapshot) Read(addr, length uint64) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	offset, ok := s.layout.span(addr, length)
	if !ok {
		return nil, &OutOfBoundsError{Address: addr, Length: length}
	}
	data := make([]byte, length)
	copy(data, s.arena.Slice(offset, length))
	return data, nil
}

// block returns the captured bytes of one contiguous block.
func (s *Snapshot) block(block Block) []byte {
	return s.arena.Slice(block.Offset, block.Size())
}

// Close releases the buffer. Queries after Close return ErrClosed or nothing.
func (s *Snapshot) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.arena.Destroy()
}

func (s *Snapshot) String() string {
	if s.closed {
		return fmt.Sprintf("pid %d (%s): closed", s.PID, s.Comm)
	}
	return fmt.Sprintf("pid %d (%s): %s, trailer %d bytes", s.PID, s.Comm, s.layout, len(s.Registers()))
}
