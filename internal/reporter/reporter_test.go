package reporter

import (
	"context"
	"io"
	"log"
	"math"
	"testing"
	"time"

	"fleetload/internal/hostprobe"
	"fleetload/internal/loadmodel"
	"fleetload/internal/store/memstore"
)

func testLog() *log.Logger { return log.New(io.Discard, "", 0) }

type fakeBundleSource struct {
	stats map[string]loadmodel.NamespaceBundleStats
	err   error
}

func (f *fakeBundleSource) Snapshot(context.Context) (map[string]loadmodel.NamespaceBundleStats, error) {
	return f.stats, f.err
}

func TestPercentChange(t *testing.T) {
	cases := []struct {
		old, new_ float64
		want      float64
	}{
		{0, 0, 0},
		{0, 5, math.Inf(1)},
		{100, 110, 10},
		{100, 90, 10},
	}
	for _, c := range cases {
		if got := percentChange(c.old, c.new_); got != c.want {
			t.Errorf("percentChange(%v, %v) = %v, want %v", c.old, c.new_, got, c.want)
		}
	}
}

func TestReporter_FirstWriteAlwaysPublishes(t *testing.T) {
	st := memstore.New()
	probe := &hostprobe.Fake{Usage: loadmodel.SystemResourceUsage{CPU: 0.1}}
	source := &fakeBundleSource{stats: map[string]loadmodel.NamespaceBundleStats{"ns1/0x0_0x1": {MsgRateIn: 1}}}

	r := New("b1:8080", "http://b1", "pulsar://b1", "v1", probe, source, st, testLog(), time.Hour, 10)
	if err := r.WriteBrokerDataIfNeeded(context.Background()); err != nil {
		t.Fatalf("WriteBrokerDataIfNeeded: %v", err)
	}

	var published loadmodel.LocalBrokerData
	if err := st.GetJSON(context.Background(), "/loadbalance/brokers/b1:8080", &published); err != nil {
		t.Fatalf("expected first write to publish, GetJSON failed: %v", err)
	}
}

func TestReporter_SkipsPublishBelowThresholdAndInterval(t *testing.T) {
	st := memstore.New()
	probe := &hostprobe.Fake{Usage: loadmodel.SystemResourceUsage{CPU: 0.1}}
	source := &fakeBundleSource{stats: map[string]loadmodel.NamespaceBundleStats{"ns1/0x0_0x1": {MsgRateIn: 1}}}

	r := New("b1:8080", "http://b1", "pulsar://b1", "v1", probe, source, st, testLog(), time.Hour, 50)
	if err := r.WriteBrokerDataIfNeeded(context.Background()); err != nil {
		t.Fatalf("first write: %v", err)
	}

	// Tiny change, well under the 50% threshold, well under the 1h interval.
	source.stats = map[string]loadmodel.NamespaceBundleStats{"ns1/0x0_0x1": {MsgRateIn: 1.01}}
	before := r.lastPub
	if err := r.WriteBrokerDataIfNeeded(context.Background()); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if !r.lastPub.Equal(before) {
		t.Fatalf("expected no publish on a sub-threshold change")
	}
}

func TestReporter_PublishesOnLargeRateChange(t *testing.T) {
	st := memstore.New()
	probe := &hostprobe.Fake{Usage: loadmodel.SystemResourceUsage{CPU: 0.1}}
	source := &fakeBundleSource{stats: map[string]loadmodel.NamespaceBundleStats{"ns1/0x0_0x1": {MsgRateIn: 10}}}

	r := New("b1:8080", "http://b1", "pulsar://b1", "v1", probe, source, st, testLog(), time.Hour, 10)
	if err := r.WriteBrokerDataIfNeeded(context.Background()); err != nil {
		t.Fatalf("first write: %v", err)
	}
	firstPub := r.lastPub

	source.stats = map[string]loadmodel.NamespaceBundleStats{"ns1/0x0_0x1": {MsgRateIn: 1000}}
	if err := r.WriteBrokerDataIfNeeded(context.Background()); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if !r.lastPub.After(firstPub) {
		t.Fatalf("expected a publish on a large rate change")
	}
}

func TestReporter_ClearsDeltasAfterPublish(t *testing.T) {
	st := memstore.New()
	probe := &hostprobe.Fake{Usage: loadmodel.SystemResourceUsage{CPU: 0.1}}
	source := &fakeBundleSource{stats: map[string]loadmodel.NamespaceBundleStats{"ns1/0x0_0x1": {MsgRateIn: 1}}}

	r := New("b1:8080", "http://b1", "pulsar://b1", "v1", probe, source, st, testLog(), time.Hour, 10)
	if err := r.WriteBrokerDataIfNeeded(context.Background()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r.local.LastBundleGains != nil {
		t.Fatalf("expected deltas cleared after successful publish, got %v", r.local.LastBundleGains)
	}
}
