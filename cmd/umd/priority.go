package main

import (
	"os"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"github.com/kayon/memdump"
)

// withNice runs fn with every thread of this process at the given nice value and
// restores the previous values afterwards. Nice values are per thread on Linux,
// threads spawned while fn runs inherit the value of the thread that created them.
// Failing to change the priority is not fatal.
func withNice(nice int, logger *memdump.Logger, fn func() error) error {
	if nice == 0 {
		return fn()
	}

	fs, err := procfs.NewDefaultFS()
	if err != nil {
		logger.Warn("nice skipped", "error", err)
		return fn()
	}
	threads, err := fs.AllThreads(os.Getpid())
	if err != nil {
		logger.Warn("nice skipped", "error", err)
		return fn()
	}

	previous := make(map[int]int, len(threads))
	for _, thread := range threads {
		// the raw syscall returns 20 - nice
		prio, err := unix.Getpriority(unix.PRIO_PROCESS, thread.PID)
		if err != nil {
			continue
		}
		if err = unix.Setpriority(unix.PRIO_PROCESS, thread.PID, nice); err != nil {
			logger.Warn("nice not applied", "tid", thread.PID, "nice", nice, "error", err)
			continue
		}
		previous[thread.PID] = 20 - prio
	}
	logger.Debug("nice applied", "nice", nice, "threads", len(previous))

	defer func() {
		for tid, old := range previous {
			_ = unix.Setpriority(unix.PRIO_PROCESS, tid, old)
		}
	}()
	return fn()
}
