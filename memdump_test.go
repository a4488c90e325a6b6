package memdump

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"testing"

	"github.com/kayon/memdump/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func skipWithoutPtrace(t *testing.T, err error) {
	t.Helper()
	if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
		t.Skipf("ptrace not permitted: %v", err)
	}
}

func dumpOrSkip(t *testing.T, pid int, opts ...Option) *Snapshot {
	t.Helper()
	snap, err := Dump(pid, opts...)
	skipWithoutPtrace(t, err)
	require.NoError(t, err)
	t.Cleanup(func() { _ = snap.Close() })
	return snap
}

// startSleeper runs a child that lives until the test ends.
func startSleeper(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd.Process.Pid
}

func assertResumed(t *testing.T, pid int) {
	t.Helper()
	proc, err := process.New(pid)
	require.NoError(t, err)
	assert.NotEqual(t, process.State('t'), proc.State, "target is resumed")
}

func TestDump(t *testing.T) {
	pid := startSleeper(t)

	for _, kind := range []SourceKind{SourceProcMem, SourceVMReadv} {
		t.Run(kind.String(), func(t *testing.T) {
			snap := dumpOrSkip(t, pid,
				WithSource(kind),
				WithWorkers(3),
				WithRegionFilter(Readable),
			)

			assert.Equal(t, pid, snap.PID)
			assert.Equal(t, "sleep", snap.Comm)
			assert.Positive(t, snap.Layout().NumRegions())
			assert.Equal(t, uint64(process.RegistersSize), snap.Size()-snap.RawSize())
			assert.Positive(t, snap.Stats.BytesRead)

			for _, region := range snap.Layout().Regions() {
				require.True(t, region.Perms.Read(), region.String())
			}

			// the lowest file mapping at offset 0 is an ELF image
			first := snap.Layout().Regions()[0]
			if first.Offset == 0 && first.Name != AnonymousName {
				magic, err := snap.Read(first.Start, 4)
				require.NoError(t, err)
				assert.True(t, bytes.Equal([]byte("\x7fELF"), magic))
			}

			assertResumed(t, pid)
		})
	}
}

func TestDump_NoProcess(t *testing.T) {
	_, err := Dump(1 << 30)
	assert.ErrorIs(t, err, process.ErrNotFound)
}

func TestDump_DetachOnFailure(t *testing.T) {
	pid := startSleeper(t)

	t.Run("device", func(t *testing.T) {
		openSource = func(SourceKind, int) (MemorySource, io.Closer, error) {
			return nil, nil, fmt.Errorf("%w: denied", ErrDeviceUnavailable)
		}
		t.Cleanup(func() { openSource = OpenSource })

		snap, err := Dump(pid)
		skipWithoutPtrace(t, err)
		assert.ErrorIs(t, err, ErrDeviceUnavailable)
		assert.Nil(t, snap)
		assertResumed(t, pid)
	})

	t.Run("layout", func(t *testing.T) {
		openMaps = func(int) (*Maps, error) {
			return nil, fmt.Errorf("%w: denied", ErrLayoutUnavailable)
		}
		t.Cleanup(func() { openMaps = OpenMaps })

		snap, err := Dump(pid)
		skipWithoutPtrace(t, err)
		assert.ErrorIs(t, err, ErrLayoutUnavailable)
		assert.Nil(t, snap)
		assertResumed(t, pid)
	})
}

func TestDump_DetachError(t *testing.T) {
	pid := startSleeper(t)
	errDetach := errors.New("detach lost")
	detachTracee = func(tracee *process.Tracee) error {
		return errors.Join(tracee.Detach(), errDetach)
	}
	t.Cleanup(func() { detachTracee = (*process.Tracee).Detach })

	snap, err := Dump(pid, WithRegionFilter(Readable))
	skipWithoutPtrace(t, err)
	require.ErrorIs(t, err, errDetach)
	assert.Nil(t, snap, "snapshot is released when detach fails")
	assertResumed(t, pid)
}
