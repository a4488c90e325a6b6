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
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Group is the run of blocks [First, First+Count) dumped by one worker.
type Group struct {
	First int
	Count int
}

// Partition splits blocks into min(workers, blocks) groups of blocks/workers blocks each.
// The remainder goes into one extra trailing group instead of being spread out.
// The result only depends on its arguments, so repeated captures of one layout
// touch the buffer in the same way.
func Partition(blocks, workers int) []Group {
	if blocks <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > blocks {
		workers = blocks
	}

	per := blocks / workers
	groups := make([]Group, 0, workers+1)
	for w := 0; w < workers; w++ {
		groups = append(groups, Group{First: w * per, Count: per})
	}
	if rem := blocks % workers; rem != 0 {
		groups = append(groups, Group{First: workers * per, Count: rem})
	}
	return groups
}

// blockTask is one block read: the source address and the exclusive buffer slice it fills.
type blockTask struct {
	block Block
	dst   []byte
}

// Capture reads every block of layout from src into a new snapshot buffer.
//
// Blocks are partitioned with Partition and every group runs on its own goroutine,
// at most WithWorkers of them at a time. Each worker owns disjoint buffer slices,
// the only shared state is the byte counter.
//
// Capture is best effort: a block that cannot be read completely keeps zeroes in its
// unread tail and the capture goes on. Such blocks are logged at debug level and
// show up as CaptureStats.BytesRead < Layout.Size().
func Capture(layout *Layout, src MemorySource, opts ...Option) (*Snapshot, error) {
	return capture(layout, src, applyOptions(opts))
}

func capture(layout *Layout, src MemorySource, o options) (*Snapshot, error) {
	st := time.Now()

	arena, err := NewArena(layout.Size() + uint64(len(o.trailer)))
	if err != nil {
		return nil, err
	}
	copy(arena.Slice(layout.Size(), uint64(len(o.trailer))), o.trailer)

	snap, err := newSnapshot(layout, arena)
	if err != nil {
		_ = arena.Destroy()
		return nil, err
	}

	workers := min(o.workers, layout.NumBlocks())
	groups := Partition(layout.NumBlocks(), workers)

	o.logger.Info("capture started",
		"regions", layout.NumRegions(),
		"blocks", layout.NumBlocks(),
		"bytes", layout.Size(),
		"workers", workers,
		"groups", len(groups),
	)

	var (
		wg    sync.WaitGroup
		total atomic.Uint64
		sem   = semaphore.NewWeighted(int64(max(workers, 1)))
		ctx   = context.Background()
	)

	for index, group := range groups {
		tasks := make([]blockTask, group.Count)
		for i := range tasks {
			block := layout.blocks[group.First+i]
			tasks[i] = blockTask{block: block, dst: snap.block(block)}
		}

		// Background is never canceled, Acquire only waits for a free worker
		_ = sem.Acquire(ctx, 1)
		wg.Add(1)
		go func() {
			defer sem.Release(1)
			defer wg.Done()
			total.Add(dumpGroup(index, tasks, src, o.logger))
		}()
	}

	wg.Wait()

	snap.Stats = CaptureStats{
		Workers:   workers,
		Groups:    len(groups),
		BytesRead: total.Load(),
		Elapsed:   time.Since(st),
	}

	o.logger.Info("capture finished",
		"read", snap.Stats.BytesRead,
		"missing", layout.Size()-snap.Stats.BytesRead,
		"elapsed", snap.Stats.Elapsed,
	)
	return snap, nil
}

func dumpGroup(index int, tasks []blockTask, src MemorySource, logger *Logger) (read uint64) {
	for _, task := range tasks {
		n, err := src.ReadAt(task.dst, task.block.Start)
		n = max(n, 0)
		read += uint64(n)

		// not retried, the mapping may have changed since the listing was parsed
		if n < len(task.dst) {
			logger.Debug("partial block read",
				"group", index,
				"block", task.block.Seq,
				"start", task.block.Start,
				"size", len(task.dst),
				"read", n,
				"error", err,
			)
		}
	}
	logger.Debug("group finished", "group", index, "blocks", len(tasks), "read", read)
	return
}
