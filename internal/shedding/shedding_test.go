package shedding

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"fleetload/internal/adminclient"
	"fleetload/internal/config"
	"fleetload/internal/loadmodel"
)

func testLog() *log.Logger { return log.New(io.Discard, "", 0) }

func overloadedBroker(rate float64) *loadmodel.BrokerState {
	local := loadmodel.NewLocalBrokerData("http://x", "pulsar://x", "v1")
	local.Update(loadmodel.SystemResourceUsage{CPU: 0.95}, map[string]loadmodel.NamespaceBundleStats{
		"ns1/0x0_0x1": {MsgRateIn: rate},
	})
	return loadmodel.NewBrokerState(local)
}

func TestDoLoadShedding_SkipsWhenDisabled(t *testing.T) {
	view := loadmodel.NewLoadView()
	view.Brokers["A"] = overloadedBroker(100)
	view.Brokers["B"] = loadmodel.NewBrokerState(loadmodel.NewLocalBrokerData("u", "u", "v"))

	cfg := config.Default()
	cfg.SheddingEnabled = false
	admin := adminclient.NewFake()
	var mu sync.Mutex
	l := New(view, admin, []LoadSheddingStrategy{OverloadShedder{}}, cfg, &mu, testLog())

	l.DoLoadShedding(context.Background(), time.Now())
	if len(admin.Calls) != 0 {
		t.Fatalf("expected no unload calls while shedding disabled, got %v", admin.Calls)
	}
}

func TestDoLoadShedding_SkipsWithFewerThanTwoBrokers(t *testing.T) {
	view := loadmodel.NewLoadView()
	view.Brokers["A"] = overloadedBroker(100)

	cfg := config.Default()
	admin := adminclient.NewFake()
	var mu sync.Mutex
	l := New(view, admin, []LoadSheddingStrategy{OverloadShedder{}}, cfg, &mu, testLog())

	l.DoLoadShedding(context.Background(), time.Now())
	if len(admin.Calls) != 0 {
		t.Fatalf("expected no unload calls with <2 brokers, got %v", admin.Calls)
	}
}

func TestDoLoadShedding_FirstProductiveStrategyWins(t *testing.T) {
	view := loadmodel.NewLoadView()
	view.Brokers["A"] = overloadedBroker(100)
	view.Brokers["B"] = loadmodel.NewBrokerState(loadmodel.NewLocalBrokerData("u", "u", "v"))

	cfg := config.Default()
	admin := adminclient.NewFake()
	var mu sync.Mutex

	unproductive := stubStrategy{name: "unproductive"}
	productive := OverloadShedder{}
	neverCalled := recordingStrategy{name: "should-not-run"}

	l := New(view, admin, []LoadSheddingStrategy{unproductive, productive, &neverCalled}, cfg, &mu, testLog())
	l.DoLoadShedding(context.Background(), time.Now())

	if len(admin.Calls) != 1 {
		t.Fatalf("Calls = %v, want exactly 1 unload", admin.Calls)
	}
	if neverCalled.called {
		t.Fatalf("expected the third strategy to never run once the second was productive")
	}
}

type stubStrategy struct{ name string }

func (s stubStrategy) Name() string { return s.name }
func (stubStrategy) FindBundlesForUnloading(*loadmodel.LoadView, *config.Config, time.Time) []Candidate {
	return nil
}

type recordingStrategy struct {
	name   string
	called bool
}

func (s *recordingStrategy) Name() string { return s.name }
func (s *recordingStrategy) FindBundlesForUnloading(*loadmodel.LoadView, *config.Config, time.Time) []Candidate {
	s.called = true
	return nil
}

// S6: a shed bundle is not re-proposed until the grace period elapses.
func TestOverloadShedder_RespectsGracePeriod(t *testing.T) {
	view := loadmodel.NewLoadView()
	view.Brokers["A"] = overloadedBroker(100)
	cfg := config.Default()
	cfg.SheddingGracePeriodMinutes = 30

	t0 := time.Now()
	view.RecentlyUnloadedBundles["ns1/0x0_0x1"] = t0

	beforeGrace := t0.Add(29*time.Minute + 59*time.Second)
	found := OverloadShedder{}.FindBundlesForUnloading(view, cfg, beforeGrace)
	if len(found) != 0 {
		t.Fatalf("found = %v, want none (still within grace period)", found)
	}

	afterGrace := t0.Add(30*time.Minute + 1*time.Second)
	found = OverloadShedder{}.FindBundlesForUnloading(view, cfg, afterGrace)
	if len(found) != 1 || found[0].Bundle != "ns1/0x0_0x1" {
		t.Fatalf("found = %v, want [ns1/0x0_0x1] (grace period elapsed)", found)
	}
}

func TestDoLoadShedding_PrunesExpiredGraceEntries(t *testing.T) {
	view := loadmodel.NewLoadView()
	view.Brokers["A"] = loadmodel.NewBrokerState(loadmodel.NewLocalBrokerData("u", "u", "v"))
	view.Brokers["B"] = loadmodel.NewBrokerState(loadmodel.NewLocalBrokerData("u", "u", "v"))

	cfg := config.Default()
	cfg.SheddingGracePeriodMinutes = 1
	admin := adminclient.NewFake()
	var mu sync.Mutex

	view.RecentlyUnloadedBundles["stale"] = time.Now().Add(-time.Hour)
	l := New(view, admin, nil, cfg, &mu, testLog())
	l.DoLoadShedding(context.Background(), time.Now())

	if _, ok := view.RecentlyUnloadedBundles["stale"]; ok {
		t.Fatalf("expected expired grace-period entry to be pruned")
	}
}

func TestDoLoadShedding_ContinuesAfterAdminRPCFailure(t *testing.T) {
	view := loadmodel.NewLoadView()
	local := loadmodel.NewLocalBrokerData("u", "u", "v")
	local.Update(loadmodel.SystemResourceUsage{CPU: 0.95}, map[string]loadmodel.NamespaceBundleStats{
		"ns1/0x0_0x1": {MsgRateIn: 50},
	})
	view.Brokers["A"] = loadmodel.NewBrokerState(local)
	other := loadmodel.NewLocalBrokerData("u", "u", "v")
	other.Update(loadmodel.SystemResourceUsage{CPU: 0.95}, map[string]loadmodel.NamespaceBundleStats{
		"ns2/0x0_0x1": {MsgRateIn: 50},
	})
	view.Brokers["B"] = loadmodel.NewBrokerState(other)

	cfg := config.Default()
	admin := adminclient.NewFake()
	admin.FailFor["ns1/0x0_0x1"] = struct{}{}
	var mu sync.Mutex

	l := New(view, admin, []LoadSheddingStrategy{OverloadShedder{}}, cfg, &mu, testLog())
	l.DoLoadShedding(context.Background(), time.Now())

	if len(admin.Calls) != 2 {
		t.Fatalf("expected both candidates to be attempted despite one failing, got %v", admin.Calls)
	}
	if _, ok := view.RecentlyUnloadedBundles["ns1/0x0_0x1"]; ok {
		t.Fatalf("expected a failed unload to not be recorded as shed")
	}
	if _, ok := view.RecentlyUnloadedBundles["ns2/0x0_0x1"]; !ok {
		t.Fatalf("expected the successful unload to be recorded as shed")
	}
}
