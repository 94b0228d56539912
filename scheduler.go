package rocketfilter

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Scheduler is the parallel-task facility TreeBuilder uses to run its
// EntryEvaluator tasks (spec §2.6, §5). A configuration flag (DisableThreads
// on RunConfig) forces fully serial execution by swapping in a serialScheduler:
// every scheduled unit runs synchronously on the caller's goroutine.
type Scheduler interface {
	// Go schedules fn to run, possibly concurrently with other units
	// scheduled on the same Batch.
	Go(fn func() error)
	// Wait blocks until every fn scheduled on this Batch has returned, and
	// returns the first non-nil error encountered, if any. This is the
	// synchronisation barrier spec §5 requires at the end of the keep-phase
	// and again at the end of the remove-phase.
	Wait() error
}

// NewScheduler creates a fresh Batch. When parallel is true, tasks run on a
// bounded worker pool (golang.org/x/sync/errgroup, limited to GOMAXPROCS);
// when false, Go runs fn synchronously and Wait simply reports the
// accumulated error.
func NewScheduler(ctx context.Context, parallel bool) Scheduler {
	if !parallel {
		return &serialScheduler{}
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(max(1, runtime.GOMAXPROCS(0)))

	return &parallelScheduler{g: g}
}

type parallelScheduler struct {
	g *errgroup.Group
}

func (s *parallelScheduler) Go(fn func() error) {
	s.g.Go(fn)
}

func (s *parallelScheduler) Wait() error {
	return s.g.Wait()
}

// serialScheduler runs every task synchronously on the caller's goroutine,
// as spec §5's "disable-threads" escape hatch requires.
type serialScheduler struct {
	err error
}

func (s *serialScheduler) Go(fn func() error) {
	if s.err != nil {
		return
	}
	s.err = fn()
}

func (s *serialScheduler) Wait() error {
	return s.err
}
