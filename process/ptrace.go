package process

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// thread listings are repeated until no new task shows up, at most this often
const maxAttachRounds = 64

var errThreadExited = errors.New("thread exited")

// Tracee is a process stopped under ptrace. Every thread of the target is attached,
// so the whole thread group stays stopped until Detach.
//
// ptrace requests are only accepted from the thread that attached, so Attach locks the
// calling goroutine to its OS thread. Registers and Detach must be called from that
// same goroutine; Detach unlocks it again.
type Tracee struct {
	pid  int
	tids []int
	// signals other than SIGSTOP that stopped a thread, delivered again after detach
	pending map[int]unix.Signal

	once      sync.Once
	detachErr error
}

// Attach stops pid with PTRACE_ATTACH and waits for the SIGSTOP stop, then attaches
// every other thread of the group, listing /proc/<pid>/task again until no thread
// spawned in the meantime is left running.
// A failed attach detaches everything before returning, so the target is never left suspended.
func Attach(pid int) (*Tracee, error) {
	runtime.LockOSThread()
	if err := unix.PtraceAttach(pid); err != nil {
		runtime.UnlockOSThread()
		if errors.Is(err, unix.ESRCH) {
			return nil, fmt.Errorf("%w: pid %d", ErrNotFound, pid)
		}
		return nil, fmt.Errorf("%w %d: %w", ErrAttach, pid, err)
	}

	t := &Tracee{pid: pid, tids: []int{pid}, pending: make(map[int]unix.Signal)}
	sig, err := t.waitStop(pid)
	if err == nil && sig != unix.SIGSTOP {
		err = fmt.Errorf("%w %d: stopped by unexpected signal %v", ErrAttach, pid, sig)
	}
	if err == nil {
		err = t.attachThreads()
	}
	if err != nil {
		_ = t.Detach()
		return nil, err
	}
	return t, nil
}

func (t *Tracee) PID() int {
	return t.pid
}

// Threads returns the ids of all attached tasks, the leader first.
func (t *Tracee) Threads() []int {
	return slices.Clone(t.tids)
}

func (t *Tracee) attachThreads() error {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return fmt.Errorf("%w %d: %w", ErrAttach, t.pid, err)
	}

	for range maxAttachRounds {
		threads, err := fs.AllThreads(t.pid)
		if err != nil {
			return fmt.Errorf("%w %d: list threads: %w", ErrAttach, t.pid, err)
		}

		var attached int
		for _, thread := range threads {
			tid := thread.PID
			if slices.Contains(t.tids, tid) {
				continue
			}
			if err = unix.PtraceAttach(tid); err != nil {
				if errors.Is(err, unix.ESRCH) {
					continue
				}
				return fmt.Errorf("%w %d: thread %d: %w", ErrAttach, t.pid, tid, err)
			}
			sig, err := t.waitStop(tid)
			if errors.Is(err, errThreadExited) {
				continue
			}
			t.tids = append(t.tids, tid)
			if err != nil {
				return err
			}
			if sig != unix.SIGSTOP {
				t.pending[tid] = sig
			}
			attached++
		}
		if attached == 0 {
			return nil
		}
	}
	return fmt.Errorf("%w %d: thread group keeps growing", ErrAttach, t.pid)
}

// waitStop waits until tid reports a ptrace stop and returns its signal.
func (t *Tracee) waitStop(tid int) (unix.Signal, error) {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(tid, &ws, unix.WALL, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("%w %d: wait %d: %w", ErrAttach, t.pid, tid, err)
		}
		switch {
		case ws.Exited(), ws.Signaled():
			if tid != t.pid {
				return 0, errThreadExited
			}
			return 0, fmt.Errorf("%w %d: process exited", ErrAttach, t.pid)
		case ws.Stopped():
			return ws.StopSignal(), nil
		}
	}
}

// Detach resumes every attached thread. Only the first call does anything, later calls
// return the first result.
func (t *Tracee) Detach() error {
	t.once.Do(func() {
		var errs []error
		for _, tid := range slices.Backward(t.tids) {
			if err := unix.PtraceDetach(tid); err != nil {
				if !errors.Is(err, unix.ESRCH) {
					errs = append(errs, fmt.Errorf("detach %d: %w", tid, err))
				}
				continue
			}
			if sig, ok := t.pending[tid]; ok {
				_ = unix.Tgkill(t.pid, tid, sig)
			}
		}
		t.detachErr = errors.Join(errs...)
		runtime.UnlockOSThread()
	})
	return t.detachErr
}
