package utils

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
	quarterProcs := float64(ParallelFactor) * .25
	if quarterProcs > 8 {
		ParallelFactor = int(quarterProcs)
	}
}

type (
	// MemberWorkFunc runs for each work item (member) of a group.
	MemberWorkFunc func(memberNum, workNum int) error
	// GroupWorkFunc runs to determine what work members should do, if any.
	GroupWorkFunc func(groupNum, groupSize, from, to int) MemberWorkFunc
)

// GroupWorkParallel splits totalSize work items into contiguous groups, one per worker, and
// runs them concurrently. Errors from every member are combined. Work items are addressed by
// index so callers writing into a pre-sized slice get deterministic output.
func GroupWorkParallel(ctx context.Context, totalSize int, groupWork GroupWorkFunc) error {
	if totalSize <= 0 {
		return nil
	}
	numGroups := ParallelFactor
	if numGroups > totalSize {
		numGroups = totalSize
	}
	groupSize := totalSize / numGroups
	extra := totalSize % numGroups

	var wait sync.WaitGroup
	var errMu sync.Mutex
	var bigError error
	storeError := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		bigError = multierr.Combine(bigError, err)
	}

	wait.Add(numGroups)
	for groupNum := 0; groupNum < numGroups; groupNum++ {
		from := groupSize * groupNum
		to := from + groupSize
		if groupNum == numGroups-1 {
			to += extra
		}
		thisGroup := groupNum
		utils.PanicCapturingGo(func() {
			defer wait.Done()
			memberWork := groupWork(thisGroup, to-from, from, to)
			if memberWork == nil {
				return
			}
			memberNum := 0
			for workNum := from; workNum < to; workNum++ {
				if ctx.Err() != nil {
					storeError(ctx.Err())
					return
				}
				if err := memberWork(memberNum, workNum); err != nil {
					storeError(fmt.Errorf("work item %d: %w", workNum, err))
				}
				memberNum++
			}
		})
	}
	wait.Wait()
	return bigError
}

// ParallelForEach calls f for every index in [0, n) across ParallelFactor workers.
func ParallelForEach(ctx context.Context, n int, f func(i int) error) error {
	return GroupWorkParallel(ctx, n, func(_, _, _, _ int) MemberWorkFunc {
		return func(_, workNum int) error {
			return f(workNum)
		}
	})
}
