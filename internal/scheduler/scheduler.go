// Package scheduler implements the single-worker task queue spec.md
// §5 requires: every aggregation pass, membership reaction, and
// data-change reaction is serialized through one worker goroutine so
// the LoadView never sees concurrent mutation from two passes at
// once. Placement and shedding, which also touch the LoadView, take a
// separate mutex (see internal/placement) rather than routing through
// this queue, matching spec.md §5's "single placement mutex" design.
//
// The recovery/request-ID/logging/metrics interceptor chain used for
// gRPC middleware elsewhere is ported here to per-task middleware:
// there is no gRPC server in this module, so the same panic-recovery
// and task-ID tagging behavior wraps task execution instead.
package scheduler

import (
	"context"
	"log"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"fleetload/internal/logger"
)

// Task is one unit of work submitted to the scheduler: an aggregation
// pass, a membership-change reaction, or a broker-data-change
// reaction.
type Task func(ctx context.Context)

// Scheduler runs submitted tasks one at a time, in submission order,
// on a single worker goroutine.
type Scheduler struct {
	base  *log.Logger
	queue chan queuedTask

	closeOnce sync.Once
	done      chan struct{}
}

type queuedTask struct {
	name string
	task Task
}

// New returns a scheduler backed by the given role-scoped logger
// (logger.Broker for aggregator/watcher work). backlog bounds how many
// submitted tasks may be queued before Submit blocks.
func New(base *log.Logger, backlog int) *Scheduler {
	if backlog <= 0 {
		backlog = 64
	}
	return &Scheduler{
		base:  base,
		queue: make(chan queuedTask, backlog),
		done:  make(chan struct{}),
	}
}

// Run drains the queue on the calling goroutine until ctx is
// cancelled or Stop is called. Intended to be run in its own
// goroutine from the composition root.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case qt := <-s.queue:
			s.runOne(ctx, qt)
		}
	}
}

// Submit enqueues a task for serial execution. It blocks if the
// backlog is full. name is used only for logging/tracing.
func (s *Scheduler) Submit(name string, task Task) {
	s.queue <- queuedTask{name: name, task: task}
}

// Stop signals Run to return once it has finished any task in flight.
func (s *Scheduler) Stop() {
	s.closeOnce.Do(func() { close(s.done) })
}

// runOne tags the task with a fresh task ID, recovers from a panicking
// task the way a gRPC recovery interceptor recovers from a panicking
// handler, and logs task start and finish the way a logging
// interceptor does for RPCs.
func (s *Scheduler) runOne(ctx context.Context, qt queuedTask) {
	taskID := uuid.New().String()
	taskCtx := context.WithValue(ctx, logger.TaskIDKey, taskID)
	log := logger.WithContext(taskCtx, s.base)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC recovered in task %q: %v\n%s", qt.name, r, string(debug.Stack()))
		}
	}()

	logger.Debug(log, "task started: %s", qt.name)
	qt.task(taskCtx)
	logger.Debug(log, "task finished: %s", qt.name)
}
