package scheduler

import (
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"fleetload/internal/logger"
)

func testLogger() *log.Logger {
	return log.New(logDiscard{}, "[TEST] ", 0)
}

type logDiscard struct{}

func (logDiscard) Write(p []byte) (int, error) { return len(p), nil }

func TestScheduler_RunsTasksInSubmissionOrder(t *testing.T) {
	s := New(testLogger(), 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)

	for i := 1; i <= 3; i++ {
		n := i
		s.Submit("task", func(context.Context) {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			wg.Done()
		})
	}

	wg.Wait()
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("order = %v, want [1 2 3]", order)
	}
}

func TestScheduler_RecoversFromPanic(t *testing.T) {
	s := New(testLogger(), 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	done := make(chan struct{})
	s.Submit("boom", func(context.Context) { panic("task exploded") })
	s.Submit("after", func(context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not continue after a panicking task")
	}
}

func TestScheduler_TaskSeesTaskID(t *testing.T) {
	s := New(testLogger(), 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	done := make(chan struct{})
	var sawID string
	s.Submit("tagged", func(taskCtx context.Context) {
		if id, ok := taskCtx.Value(logger.TaskIDKey).(string); ok {
			sawID = id
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	if sawID == "" {
		t.Fatal("task context did not carry a task ID")
	}
}
