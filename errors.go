package memdump

import (
	"errors"
	"fmt"
)

var (
	// ErrLayoutUnavailable is returned when the maps listing cannot be opened, read or parsed.
	ErrLayoutUnavailable = errors.New("memory layout unavailable")
	// ErrDeviceUnavailable is returned when the process memory device cannot be opened.
	ErrDeviceUnavailable = errors.New("memory device unavailable")
	// ErrOutOfBounds is returned for reads that leave the mapped extents of a snapshot.
	ErrOutOfBounds = errors.New("out of bounds")
	// ErrCorruptArtifact is returned when a persisted snapshot cannot be reconstructed.
	ErrCorruptArtifact = errors.New("corrupt snapshot artifact")
	// ErrInvalidLayout is returned for region lists that are unordered, overlapping or empty-ranged.
	ErrInvalidLayout = errors.New("invalid memory layout")
	// ErrClosed is returned for queries against a snapshot after Close.
	ErrClosed = errors.New("snapshot closed")
)

// OutOfBoundsError describes a rejected inspection query.
type OutOfBoundsError struct {
	Address uint64
	Length  uint64
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("cannot read %d bytes from %#x: %s", e.Length, e.Address, ErrOutOfBounds)
}

func (e *OutOfBoundsError) Unwrap() error { return ErrOutOfBounds }
