package memdump

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// MemorySource is a randomly addressable view of a process address space.
// ReadAt must be safe for concurrent use with disjoint destination buffers.
// Like pread, it returns the number of bytes read before the first failure.
type MemorySource interface {
	ReadAt(p []byte, addr uint64) (n int, err error)
}

type SourceKind uint8

const (
	// SourceProcMem reads /proc/<pid>/mem with positioned reads.
	SourceProcMem SourceKind = iota
	// SourceVMReadv reads with process_vm_readv(2).
	SourceVMReadv
)

var sourceNames = [...]string{"mem", "vmreadv"}

func (kind SourceKind) String() string {
	if int(kind) < len(sourceNames) {
		return sourceNames[kind]
	}
	return fmt.Sprintf("SourceKind(%d)", kind)
}

func ParseSourceKind(s string) (SourceKind, error) {
	for i, name := range sourceNames {
		if s == name {
			return SourceKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown memory source %q", s)
}

// OpenSource opens the memory source of the given kind for pid.
func OpenSource(kind SourceKind, pid int) (MemorySource, io.Closer, error) {
	switch kind {
	case SourceVMReadv:
		r, err := OpenVMReader(pid)
		return r, r, err
	default:
		m, err := OpenProcMem(pid)
		return m, m, err
	}
}

// ProcMem is a shared /proc/<pid>/mem descriptor.
// Reads pass an explicit offset, so concurrent readers never race on the file position.
type ProcMem struct {
	file *os.File
	fd   int
}

func OpenProcMem(pid int) (*ProcMem, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/mem", pid))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	return &ProcMem{file: f, fd: int(f.Fd())}, nil
}

func (m *ProcMem) ReadAt(p []byte, addr uint64) (n int, err error) {
	// the kernel caps a single read at MAX_RW_COUNT, keep going while it makes progress
	for n < len(p) {
		var nn int
		nn, err = unix.Pread(m.fd, p[n:], int64(addr+uint64(n)))
		if nn <= 0 || err != nil {
			break
		}
		n += nn
	}
	if n < len(p) && err == nil {
		err = io.ErrUnexpectedEOF
	}
	return
}

func (m *ProcMem) Close() error {
	return m.file.Close()
}

// VMReader reads another process with process_vm_readv(2), without any descriptor.
type VMReader struct {
	pid int
}

func OpenVMReader(pid int) (*VMReader, error) {
	if err := unix.Kill(pid, 0); err != nil {
		return nil, fmt.Errorf("%w: pid %d: %w", ErrDeviceUnavailable, pid, err)
	}
	return &VMReader{pid: pid}, nil
}

func (r *VMReader) ReadAt(p []byte, addr uint64) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	reader := Region{Start: addr, End: addr + uint64(len(p))}.Pipe(r.pid)
	defer reader.Close()
	return io.ReadFull(reader, p)
}

func (r *VMReader) Close() error {
	return nil
}
