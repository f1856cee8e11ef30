package watch

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"fleetload/internal/scheduler"
	"fleetload/internal/store"
	"fleetload/internal/store/memstore"
)

func testLog() *log.Logger { return log.New(io.Discard, "", 0) }

func TestMembershipWatcher_FiresOnInitialAndChange(t *testing.T) {
	st := memstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(testLog(), 8)
	go sched.Run(ctx)

	_ = st.ExistsOrCreate(ctx, "/loadbalance/brokers", nil, store.Persistent)

	seen := make(chan []string, 4)
	w := NewMembershipWatcher(st, sched, testLog(), "/loadbalance/brokers", func(_ context.Context, alive []string) {
		seen <- alive
	})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case alive := <-seen:
		if len(alive) != 0 {
			t.Fatalf("initial alive = %v, want none", alive)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial membership task")
	}

	_ = st.ExistsOrCreate(ctx, "/loadbalance/brokers/b1:8080", []byte("{}"), store.Ephemeral)

	select {
	case alive := <-seen:
		if len(alive) != 1 || alive[0] != "b1:8080" {
			t.Fatalf("alive = %v, want [b1:8080]", alive)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for membership-change task")
	}
}

func TestBrokerDataWatcher_FiresOnInitialAndChange(t *testing.T) {
	st := memstore.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(testLog(), 8)
	go sched.Run(ctx)

	_ = st.SetJSON(ctx, "/loadbalance/brokers/b1:8080", map[string]int{"numBundles": 1})

	seen := make(chan []byte, 4)
	w := NewBrokerDataWatcher(st, sched, testLog(), "b1:8080", "/loadbalance/brokers/b1:8080", func(_ context.Context, broker string, payload []byte) {
		if broker != "b1:8080" {
			t.Errorf("broker = %q, want b1:8080", broker)
		}
		seen <- payload
	})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-seen:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial data task")
	}

	if err := st.SetJSON(ctx, "/loadbalance/brokers/b1:8080", map[string]int{"numBundles": 2}); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	select {
	case <-seen:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for data-change task")
	}
}
