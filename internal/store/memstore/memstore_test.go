package memstore

import (
	"context"
	"testing"
	"time"

	"fleetload/internal/store"
)

func TestExistsOrCreate_IsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.ExistsOrCreate(ctx, "/loadbalance/brokers", nil, store.Persistent); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := s.ExistsOrCreate(ctx, "/loadbalance/brokers", []byte("ignored"), store.Persistent); err != nil {
		t.Fatalf("second create (should be swallowed): %v", err)
	}
}

func TestSetJSONGetJSON_RoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	type payload struct{ N int }

	if err := s.SetJSON(ctx, "/loadbalance/broker-time-average/b1", payload{N: 7}); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var out payload
	if err := s.GetJSON(ctx, "/loadbalance/broker-time-average/b1", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.N != 7 {
		t.Fatalf("out.N = %d, want 7", out.N)
	}
}

func TestGetJSON_MissingNodeReturnsErrNoNode(t *testing.T) {
	s := New()
	var out struct{}
	err := s.GetJSON(context.Background(), "/does/not/exist", &out)
	if err != store.ErrNoNode {
		t.Fatalf("err = %v, want ErrNoNode", err)
	}
}

func TestChildrenWithWatch_NotifiesOnNewChild(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = s.ExistsOrCreate(ctx, "/loadbalance/brokers", nil, store.Persistent)

	initial, updates, err := s.ChildrenWithWatch(ctx, "/loadbalance/brokers")
	if err != nil {
		t.Fatalf("ChildrenWithWatch: %v", err)
	}
	if len(initial) != 0 {
		t.Fatalf("initial children = %v, want none", initial)
	}

	if err := s.ExistsOrCreate(ctx, "/loadbalance/brokers/b1:8080", []byte("{}"), store.Ephemeral); err != nil {
		t.Fatalf("create child: %v", err)
	}

	select {
	case children := <-updates:
		if len(children) != 1 || children[0] != "b1:8080" {
			t.Fatalf("children = %v, want [b1:8080]", children)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for children watch notification")
	}
}

func TestDataWithWatch_NotifiesOnUpdate(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.SetJSON(ctx, "/loadbalance/brokers/b1:8080", map[string]int{"numBundles": 1}); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	_, updates, err := s.DataWithWatch(ctx, "/loadbalance/brokers/b1:8080")
	if err != nil {
		t.Fatalf("DataWithWatch: %v", err)
	}

	if err := s.SetJSON(ctx, "/loadbalance/brokers/b1:8080", map[string]int{"numBundles": 2}); err != nil {
		t.Fatalf("SetJSON update: %v", err)
	}

	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for data watch notification")
	}
}

func TestRemove_NotifiesChildrenWatchers(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = s.ExistsOrCreate(ctx, "/loadbalance/brokers", nil, store.Persistent)
	_ = s.ExistsOrCreate(ctx, "/loadbalance/brokers/b1:8080", []byte("{}"), store.Ephemeral)

	_, updates, err := s.ChildrenWithWatch(ctx, "/loadbalance/brokers")
	if err != nil {
		t.Fatalf("ChildrenWithWatch: %v", err)
	}

	s.Remove("/loadbalance/brokers/b1:8080")

	select {
	case children := <-updates:
		if len(children) != 0 {
			t.Fatalf("children after Remove = %v, want none", children)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for removal notification")
	}
}
