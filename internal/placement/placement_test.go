package placement

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"

	"fleetload/internal/config"
	"fleetload/internal/loadmodel"
	"fleetload/internal/nspolicy"
	"fleetload/internal/store/memstore"
)

func testLog() *log.Logger { return log.New(io.Discard, "", 0) }

func brokerWithUsage(usage float64, version string) *loadmodel.BrokerState {
	local := loadmodel.NewLocalBrokerData("http://x", "pulsar://x", version)
	local.Update(loadmodel.SystemResourceUsage{CPU: usage}, nil)
	return loadmodel.NewBrokerState(local)
}

func newPipeline(view *loadmodel.LoadView, filters []Filter, strategy PlacementStrategy) *Pipeline {
	prealloc := loadmodel.NewPreallocationIndex()
	st := memstore.New()
	cfg := config.Default()
	var mu sync.Mutex
	return New(view, prealloc, st, nspolicy.Unrestricted{}, filters, strategy, cfg, &mu, testLog())
}

// S1: two brokers, neither hosts the bundle, strategy prefers the
// lower maxResourceUsage.
func TestSelectBrokerForAssignment_S1FirstTimePlacement(t *testing.T) {
	view := loadmodel.NewLoadView()
	view.Brokers["A"] = brokerWithUsage(0.3, "v1")
	view.Brokers["B"] = brokerWithUsage(0.5, "v1")

	p := newPipeline(view, []Filter{VersionFilter{}}, LeastResourceUsage{})
	broker, err := p.SelectBrokerForAssignment(context.Background(), "ns1/0x00000000_0x80000000")
	if err != nil {
		t.Fatalf("SelectBrokerForAssignment: %v", err)
	}
	if broker != "A" {
		t.Fatalf("broker = %q, want A", broker)
	}
	if got, _ := p.prealloc.Lookup("ns1/0x00000000_0x80000000"); got != "A" {
		t.Fatalf("PreallocationIndex = %q, want A", got)
	}
}

// S2: filter pipeline keeps only the overloaded broker A; the overload
// guard retries on the full set and accepts B unconditionally.
func TestSelectBrokerForAssignment_S2OverloadFallback(t *testing.T) {
	view := loadmodel.NewLoadView()
	view.Brokers["A"] = brokerWithUsage(0.95, "v1")
	view.Brokers["B"] = brokerWithUsage(0.5, "v1")

	onlyA := onlyKeepFilter{keep: "A"}
	p := newPipeline(view, []Filter{onlyA}, LeastResourceUsage{})
	broker, err := p.SelectBrokerForAssignment(context.Background(), "ns1/0x0_0x1")
	if err != nil {
		t.Fatalf("SelectBrokerForAssignment: %v", err)
	}
	if broker != "B" {
		t.Fatalf("broker = %q, want B (overload guard should retry on full set)", broker)
	}
}

type onlyKeepFilter struct{ keep string }

func (onlyKeepFilter) Name() string { return "only-keep" }
func (f onlyKeepFilter) Apply(candidates []string, _ string, _ *loadmodel.BundleStats, _ *loadmodel.LoadView) ([]string, error) {
	for _, c := range candidates {
		if c == f.keep {
			return []string{c}, nil
		}
	}
	return nil, nil
}

func TestSelectBrokerForAssignment_IsIdempotent(t *testing.T) {
	view := loadmodel.NewLoadView()
	view.Brokers["A"] = brokerWithUsage(0.3, "v1")
	view.Brokers["B"] = brokerWithUsage(0.5, "v1")

	p := newPipeline(view, nil, LeastResourceUsage{})
	first, err := p.SelectBrokerForAssignment(context.Background(), "ns1/0x0_0x1")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := p.SelectBrokerForAssignment(context.Background(), "ns1/0x0_0x1")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if first != second {
		t.Fatalf("first=%q second=%q, want equal (idempotent placement)", first, second)
	}
}

func TestSelectBrokerForAssignment_NoBrokerAvailable(t *testing.T) {
	view := loadmodel.NewLoadView()
	p := newPipeline(view, nil, LeastResourceUsage{})
	if _, err := p.SelectBrokerForAssignment(context.Background(), "ns1/0x0_0x1"); err != ErrNoBrokerAvailable {
		t.Fatalf("err = %v, want ErrNoBrokerAvailable", err)
	}
}

func TestVersionFilter_ExcludesMinorityVersion(t *testing.T) {
	view := loadmodel.NewLoadView()
	view.Brokers["A"] = brokerWithUsage(0.1, "v1")
	view.Brokers["B"] = brokerWithUsage(0.1, "v1")
	view.Brokers["C"] = brokerWithUsage(0.1, "v2")

	kept, err := VersionFilter{}.Apply([]string{"A", "B", "C"}, "ns1/0x0_0x1", nil, view)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(kept) != 2 || kept[0] == "C" || kept[1] == "C" {
		t.Fatalf("kept = %v, want [A B] (C is the minority version)", kept)
	}
}

func TestRemoveMaxNamespaceCountTies(t *testing.T) {
	view := loadmodel.NewLoadView()
	view.RebuildNamespaceFanout("A", []string{"ns1/0x0_0x1", "ns1/0x1_0x2"})
	view.RebuildNamespaceFanout("B", []string{"ns1/0x2_0x3", "ns1/0x3_0x4"})
	view.RebuildNamespaceFanout("C", []string{})

	p := newPipeline(view, nil, LeastResourceUsage{})
	kept := p.removeMaxNamespaceCountTies([]string{"A", "B", "C"}, "ns1")
	if len(kept) != 1 || kept[0] != "C" {
		t.Fatalf("kept = %v, want [C] (A and B tie at max count 2)", kept)
	}
}
