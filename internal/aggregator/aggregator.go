// Package aggregator implements the three operations spec.md §4.3
// runs serially on the scheduler: reaping dead brokers, refreshing
// per-broker reports, and folding freshly reported bundle stats into
// the rolling windows.
//
// Grounded on the source's
// reapDeadBrokerPreallocations/updateAllBrokerData/updateBundleData,
// rewritten per spec.md §9's Open Question: updateBundleData here runs
// two explicit, non-conflated passes per broker instead of the
// source's mixed-iterator loop (see DESIGN.md).
package aggregator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"fleetload/internal/config"
	"fleetload/internal/loadmodel"
	"fleetload/internal/logger"
	"fleetload/internal/metrics"
	"fleetload/internal/store"
)

func bundleDataPath(bundle string) string {
	return "/loadbalance/bundle-data/" + bundle
}

func resourceQuotaPath(bundle string) string {
	return "/loadbalance/resource-quota/namespace/" + bundle
}

func brokerPath(advertised string) string {
	return "/loadbalance/brokers/" + advertised
}

// Aggregator owns the LoadView and PreallocationIndex and mutates them
// on every scheduler tick. mu is the single placement mutex shared
// with the placement package (spec.md §5): it is held only briefly,
// around each individual check/insert against view.Brokers or
// view.Bundles and around the reconciliation sections that touch
// PreallocationIndex or the namespace fanout — never for the whole
// pass, and never across a coordination-store read. Placement holds
// the same mutex for its entire call, so guarding every view.Brokers/
// view.Bundles access this way is what keeps the two from touching
// those maps at the same time.
type Aggregator struct {
	view     *loadmodel.LoadView
	prealloc *loadmodel.PreallocationIndex
	store    store.Store
	cfg      *config.Config
	mu       *sync.Mutex
	log      *log.Logger
}

// New returns an aggregator operating on the given (already
// constructed) LoadView and PreallocationIndex, sharing mu with
// whatever placement pipeline is wired into the same load manager.
func New(view *loadmodel.LoadView, prealloc *loadmodel.PreallocationIndex, st store.Store, cfg *config.Config, mu *sync.Mutex, log *log.Logger) *Aggregator {
	return &Aggregator{view: view, prealloc: prealloc, store: st, cfg: cfg, mu: mu, log: log}
}

// ReapDeadBrokers removes every broker in the LoadView not present in
// alive, purging its preallocations too (spec.md §4.3).
func (a *Aggregator) ReapDeadBrokers(ctx context.Context, alive []string) {
	start := time.Now()
	defer func() { metrics.AggregationPassDuration.WithLabelValues("reap").Observe(time.Since(start).Seconds()) }()

	aliveSet := make(map[string]struct{}, len(alive))
	for _, b := range alive {
		aliveSet[b] = struct{}{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for broker := range a.view.Brokers {
		if _, ok := aliveSet[broker]; ok {
			continue
		}
		a.view.RemoveBroker(broker)
		a.prealloc.DeleteBroker(broker)
		logger.Debug(a.log, "reaped dead broker %s", broker)
	}
	metrics.BrokersTracked.Set(float64(len(a.view.Brokers)))
}

// UpdateAllBrokerData reads each live broker's latest LocalBrokerData
// from the coordination store, replacing BrokerState.LocalData if the
// broker is already known or creating a fresh BrokerState otherwise,
// then drops BrokerStates for brokers no longer in membership (spec.md
// §4.3).
func (a *Aggregator) UpdateAllBrokerData(ctx context.Context, alive []string) error {
	start := time.Now()
	defer func() {
		metrics.AggregationPassDuration.WithLabelValues("broker_data").Observe(time.Since(start).Seconds())
	}()

	aliveSet := make(map[string]struct{}, len(alive))
	for _, b := range alive {
		aliveSet[b] = struct{}{}
	}

	var firstErr error
	for _, broker := range alive {
		var data loadmodel.LocalBrokerData
		if err := a.store.GetJSON(ctx, brokerPath(broker), &data); err != nil {
			logger.Warn(a.log, "reading broker data for %s: %v", broker, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("aggregator: reading %s: %w", broker, err)
			}
			continue
		}

		a.mu.Lock()
		if state, ok := a.view.Brokers[broker]; ok {
			state.LocalData = &data
		} else {
			a.view.Brokers[broker] = loadmodel.NewBrokerState(&data)
		}
		a.mu.Unlock()
	}

	a.mu.Lock()
	for broker := range a.view.Brokers {
		if _, ok := aliveSet[broker]; !ok {
			a.view.RemoveBroker(broker)
		}
	}
	metrics.BrokersTracked.Set(float64(len(a.view.Brokers)))
	a.mu.Unlock()

	return firstErr
}

// UpdateBundleData folds every hosted bundle's freshly reported sample
// into that bundle's rolling windows, hydrating bundles seen for the
// first time from persisted state, legacy quota, or defaults, then
// reconciles each broker's preallocations and time-average data
// (spec.md §4.3).
func (a *Aggregator) UpdateBundleData(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.AggregationPassDuration.WithLabelValues("bundle_data").Observe(time.Since(start).Seconds())
	}()

	defaultSample := loadmodel.NamespaceBundleStats{
		MsgRateIn:        a.cfg.DefaultMessageRate,
		MsgRateOut:       a.cfg.DefaultMessageRate,
		MsgThroughputIn:  a.cfg.DefaultMessageThroughput,
		MsgThroughputOut: a.cfg.DefaultMessageThroughput,
	}
	// defaults is only ever read by TimeAverageData.Reset as the
	// fallback for a bundle with no BundleData yet; it must never be
	// handed out as a live bundle's BundleStats (hydrateBundle builds a
	// fresh one per bundle instead), or every such bundle would alias
	// the same object and cross-contaminate each other's rolling
	// windows.
	defaults := loadmodel.NewDefaultBundleStats(a.cfg.NumShortSamples, a.cfg.NumLongSamples, defaultSample)

	a.mu.Lock()
	brokers := make(map[string]*loadmodel.BrokerState, len(a.view.Brokers))
	for broker, state := range a.view.Brokers {
		brokers[broker] = state
	}
	a.mu.Unlock()

	for broker, state := range brokers {
		for bundle, sample := range state.LocalData.LastStats {
			a.mu.Lock()
			bs, ok := a.view.Bundles[bundle]
			a.mu.Unlock()
			if !ok {
				bs = a.hydrateBundle(ctx, bundle, defaultSample)
				a.mu.Lock()
				a.view.Bundles[bundle] = bs
				a.mu.Unlock()
			}
			bs.Update(sample)
		}

		// Pass (a): settle preallocations that have now shown up in
		// this broker's reported bundles. Deliberately a separate,
		// explicit pass — see the package doc and DESIGN.md.
		a.mu.Lock()
		for bundle := range state.PreallocatedBundleData {
			if _, hosted := state.LocalData.Bundles[bundle]; hosted {
				delete(state.PreallocatedBundleData, bundle)
				a.prealloc.Delete(bundle)
			}
		}

		// Pass (b): recompute this broker's time-average data and
		// namespace fanout from its current bundle-key union.
		bundleKeys := state.PreallocatedAndHostedBundleKeys()
		state.TimeAverageData.Reset(bundleKeys, a.view.Bundles, defaults)
		a.view.RebuildNamespaceFanout(broker, bundleKeys)
		a.mu.Unlock()
	}

	a.mu.Lock()
	metrics.BundlesTracked.Set(float64(len(a.view.Bundles)))
	a.mu.Unlock()
}

// hydrateBundle materializes a bundle's BundleData the first time it
// is seen: persisted bundle-data, else legacy resource quota
// (saturated seed), else a fresh default-seeded record (spec.md §4.3,
// §6 "Legacy seeding"). Always returns a distinct *BundleStats — never
// a shared object — since the caller immediately feeds it a live
// sample and stores it in the LoadView for that bundle alone.
func (a *Aggregator) hydrateBundle(ctx context.Context, bundle string, defaultSample loadmodel.NamespaceBundleStats) *loadmodel.BundleStats {
	var persisted persistedBundleData
	if err := a.store.GetJSON(ctx, bundleDataPath(bundle), &persisted); err == nil {
		return persisted.toBundleStats(a.cfg.NumShortSamples, a.cfg.NumLongSamples)
	}

	var quota loadmodel.ResourceQuota
	if err := a.store.GetJSON(ctx, resourceQuotaPath(bundle), &quota); err == nil {
		logger.Debug(a.log, "seeding bundle %s from legacy resource quota", bundle)
		return loadmodel.NewBundleStatsFromQuota(a.cfg.NumShortSamples, a.cfg.NumLongSamples, quota)
	}

	return loadmodel.NewDefaultBundleStats(a.cfg.NumShortSamples, a.cfg.NumLongSamples, defaultSample)
}

// persistedBundleData is the wire shape of /loadbalance/bundle-data/<bundle>.
type persistedBundleData struct {
	ShortTerm loadmodel.NamespaceBundleStats `json:"shortTerm"`
	LongTerm  loadmodel.NamespaceBundleStats `json:"longTerm"`
}

func (p persistedBundleData) toBundleStats(numShort, numLong int) *loadmodel.BundleStats {
	bs := loadmodel.NewBundleStats(numShort, numLong)
	bs.ShortTerm.Update(p.ShortTerm)
	bs.LongTerm.Update(p.LongTerm)
	return bs
}
