// Package memdump captures the address space of a running Linux process into a flat
// snapshot buffer plus a region layout, persists both, and serves bounded reads
// against virtual addresses once the process is gone.
//
// A capture attaches to the target with ptrace, parses /proc/<pid>/maps into a
// Layout, reads every contiguous block in parallel and detaches. Inspection only
// needs the Layout and the buffer, either live or reloaded with Load.
package memdump

import (
	"errors"
	"fmt"

	"github.com/kayon/memdump/process"
)

// replaced in tests to fail after the target is attached
var (
	openMaps     = OpenMaps
	openSource   = OpenSource
	detachTracee = (*process.Tracee).Detach
)

// Dump attaches to every thread of pid, captures its memory and detaches again.
// The target is stopped for the whole capture and always resumed before Dump returns,
// also when the layout or the memory device is unavailable.
// When the capture succeeds but detaching fails, the snapshot is released and only
// the error is returned.
//
// Dump locks the calling goroutine to its OS thread while attached.
func Dump(pid int, opts ...Option) (snap *Snapshot, err error) {
	o := applyOptions(opts)
	logger := o.logger.WithPID(pid)
	o.logger = logger

	var comm string
	if proc, perr := process.New(pid); perr == nil {
		comm = proc.Comm
	}

	tracee, err := process.Attach(pid)
	if err != nil {
		return nil, err
	}
	defer func() {
		if derr := detachTracee(tracee); derr != nil {
			logger.Warn("detach failed", "error", derr)
			err = errors.Join(err, derr)
			if snap != nil {
				_ = snap.Close()
				snap = nil
			}
		}
		logger.Debug("detached")
	}()
	logger.Debug("attached", "comm", comm, "threads", len(tracee.Threads()))

	maps, err := openMaps(pid)
	if err != nil {
		return nil, err
	}
	defer maps.Close()

	regions, err := maps.Parse()
	if err != nil {
		return nil, err
	}
	regions = regions.Filter(o.filter)

	layout, err := NewLayout(regions)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLayoutUnavailable, err)
	}

	src, closer, err := openSource(o.source, pid)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	if o.registers {
		if regs, rerr := tracee.Registers(); rerr != nil {
			logger.Warn("registers not captured", "error", rerr)
		} else {
			o.trailer = regs
		}
	}

	snap, err = capture(layout, src, o)
	if err != nil {
		return nil, err
	}
	snap.PID = pid
	snap.Comm = comm
	return snap, nil
}
