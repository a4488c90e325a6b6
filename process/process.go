package process

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

var (
	// ErrNotFound is returned when no process with the pid exists.
	ErrNotFound = errors.New("process not found")
	// ErrAttach is returned when the target cannot be stopped under ptrace.
	ErrAttach = errors.New("cannot attach to process")
)

type State byte

func (state State) String() string {
	return fmt.Sprintf("%c", state)
}

// Process describes a running process from /proc/<pid>.
type Process struct {
	PID int
	// the PID of the parent of this process
	PPID int
	// the process group ID of the process
	PGRP int
	// the filename of the executable, may be truncated by the kernel to 15 characters
	Comm string
	// complete command line for the process
	Command string
	// R running, S sleeping, D disk sleep, T stopped, t tracing stop, Z zombie
	State State
	// resident set size in pages
	RSS int
}

func New(pid int) (*Process, error) {
	proc := &Process{PID: pid}
	return proc, proc.Refresh()
}

// Refresh rereads /proc/<pid>/stat and cmdline.
func (proc *Process) Refresh() error {
	p, err := procfs.NewProc(proc.PID)
	if err != nil {
		return fmt.Errorf("%w: pid %d: %w", ErrNotFound, proc.PID, err)
	}
	stat, err := p.Stat()
	if err != nil {
		return fmt.Errorf("%w: pid %d: %w", ErrNotFound, proc.PID, err)
	}
	proc.PPID = stat.PPID
	proc.PGRP = stat.PGRP
	proc.Comm = stat.Comm
	proc.RSS = stat.RSS
	if len(stat.State) > 0 {
		proc.State = State(stat.State[0])
	}

	// kernel threads have no command line
	if cmdline, err := p.CmdLine(); err == nil && len(cmdline) > 0 {
		proc.Command = strings.Join(cmdline, " ")
	}
	return nil
}

func (proc *Process) Alive() bool {
	return Exists(proc.PID)
}

func (proc *Process) String() string {
	return fmt.Sprintf("[%d] %s", proc.PID, proc.Comm)
}

// Exists sends signal 0 to pid.
func Exists(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
