// Package placement implements the leader-only placement pipeline
// from spec.md §4.4: selectBrokerForAssignment's ten steps, its
// pluggable Filter/PlacementStrategy capabilities, and the concrete
// filters/strategies spec.md and its source supplement.
//
// The pluggable-capability shape follows an ordered list of swappable
// strategy objects, generalized here from picking N members to
// filtering-then-scoring one broker.
package placement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetload/internal/config"
	"fleetload/internal/loadmodel"
	"fleetload/internal/logger"
	"fleetload/internal/metrics"
	"fleetload/internal/nspolicy"
	"fleetload/internal/store"
)

// ErrNoBrokerAvailable is the fatal error surfaced to the caller when
// even the full policy-compliant set is empty (spec.md §7, "Empty
// candidate set").
var ErrNoBrokerAvailable = errors.New("placement: no broker available for assignment")

// Filter narrows an ordered candidate set. A filter that cannot decide
// (e.g. missing data) should return an error rather than guess; the
// pipeline recovers by restoring the full policy-compliant set
// (spec.md §4.4 step 5, §7 "Filter error").
type Filter interface {
	Name() string
	Apply(candidates []string, bundle string, bundleData *loadmodel.BundleStats, view *loadmodel.LoadView) ([]string, error)
}

// PlacementStrategy scores a candidate set and returns exactly one
// broker from it (spec.md §4.4 step 7).
type PlacementStrategy interface {
	Name() string
	SelectBroker(candidates []string, bundle string, bundleData *loadmodel.BundleStats, view *loadmodel.LoadView) (string, error)
}

func bundleDataPath(bundle string) string {
	return "/loadbalance/bundle-data/" + bundle
}

// Pipeline runs selectBrokerForAssignment (spec.md §4.4). It holds the
// single placement mutex for the entire call, shared with the
// aggregator's brief reconciliation sections (spec.md §5).
type Pipeline struct {
	view     *loadmodel.LoadView
	prealloc *loadmodel.PreallocationIndex
	store    store.Store
	policies nspolicy.Policies
	filters  []Filter
	strategy PlacementStrategy
	cfg      *config.Config
	mu       *sync.Mutex
	log      *log.Logger
}

// New returns a placement pipeline sharing view/prealloc/mu with the
// aggregator wired into the same load manager.
func New(view *loadmodel.LoadView, prealloc *loadmodel.PreallocationIndex, st store.Store, policies nspolicy.Policies, filters []Filter, strategy PlacementStrategy, cfg *config.Config, mu *sync.Mutex, log *log.Logger) *Pipeline {
	return &Pipeline{
		view:     view,
		prealloc: prealloc,
		store:    st,
		policies: policies,
		filters:  filters,
		strategy: strategy,
		cfg:      cfg,
		mu:       mu,
		log:      log,
	}
}

// SelectBrokerForAssignment runs the full ten-step pipeline for one
// bundle and returns the chosen broker's advertised name.
func (p *Pipeline) SelectBrokerForAssignment(ctx context.Context, bundle string) (string, error) {
	callID := uuid.New().String()
	callCtx := context.WithValue(ctx, logger.TaskIDKey, callID)
	log := logger.WithContext(callCtx, p.log)

	start := time.Now()
	outcome := "no_broker"
	defer func() {
		metrics.PlacementsTotal.WithLabelValues(outcome).Inc()
		metrics.PlacementDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Step 1: idempotency.
	if broker, ok := p.prealloc.Lookup(bundle); ok {
		outcome = "preallocated"
		return broker, nil
	}

	// Step 2: materialize BundleData.
	bundleData := p.hydrateBundle(callCtx, bundle)

	namespace := loadmodel.NamespaceFromBundle(bundle)
	bundleRange := loadmodel.BundleRangeFromBundle(bundle)

	// Step 3: namespace/tenant policy candidate set.
	liveBrokers := p.liveBrokerNames()
	policyCompliant, err := p.policies.BrokersForNamespace(callCtx, namespace, liveBrokers)
	if err != nil {
		logger.Warn(log, "namespace policy lookup failed for %s, falling back to every live broker: %v", namespace, err)
		policyCompliant = liveBrokers
	}
	if len(policyCompliant) == 0 {
		return "", ErrNoBrokerAvailable
	}

	// Step 4: anti-affinity shaping.
	candidates := p.removeMaxNamespaceCountTies(policyCompliant, namespace)
	if len(candidates) == 0 {
		candidates = policyCompliant
	}

	// Step 5 & 6: filter pipeline, with restore-on-error/empty.
	candidates = p.runFilters(candidates, bundle, bundleData, policyCompliant, log)

	// Step 7: scoring.
	broker, err := p.strategy.SelectBroker(candidates, bundle, bundleData, p.view)
	if err != nil {
		logger.Warn(log, "strategy %s failed on %v: %v; retrying on full policy-compliant set", p.strategy.Name(), candidates, err)
		broker, err = p.strategy.SelectBroker(policyCompliant, bundle, bundleData, p.view)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoBrokerAvailable, err)
		}
	}

	// Step 8: overload guard, single retry, accept unconditionally.
	overloadThreshold := p.cfg.BrokerOverloadedThresholdPercentage / 100
	if state, ok := p.view.Brokers[broker]; ok && state.LocalData.MaxResourceUsage() > overloadThreshold {
		outcome = "overload_retry"
		retried, err := p.strategy.SelectBroker(policyCompliant, bundle, bundleData, p.view)
		if err == nil {
			broker = retried
		}
	} else {
		outcome = "scored"
	}

	// Step 9: record the preallocation.
	p.prealloc.Set(bundle, broker)
	if state, ok := p.view.Brokers[broker]; ok {
		state.PreallocatedBundleData[bundle] = bundleData
	}
	p.view.AddToNamespaceFanout(broker, namespace, bundleRange)

	logger.Info(log, "placed %s on %s (outcome=%s)", bundle, broker, outcome)
	return broker, nil
}

func (p *Pipeline) liveBrokerNames() []string {
	names := make([]string, 0, len(p.view.Brokers))
	for b := range p.view.Brokers {
		names = append(names, b)
	}
	sort.Strings(names)
	return names
}

// removeMaxNamespaceCountTies drops every broker tied for the maximum
// bundle count already held in namespace, keeping the rest (spec.md
// §4.4 step 4). Returns candidates unchanged if there are fewer than
// two; returns an empty set if every broker ties at the maximum, and
// the caller then restores the full set.
func (p *Pipeline) removeMaxNamespaceCountTies(candidates []string, namespace string) []string {
	if len(candidates) < 2 {
		return candidates
	}
	max := -1
	for _, b := range candidates {
		if n := p.view.NamespaceBundleCount(b, namespace); n > max {
			max = n
		}
	}
	kept := make([]string, 0, len(candidates))
	for _, b := range candidates {
		if p.view.NamespaceBundleCount(b, namespace) != max {
			kept = append(kept, b)
		}
	}
	return kept
}

// runFilters applies each configured filter in order, restoring
// fullSet whenever a filter errors or the set empties out (spec.md
// §4.4 steps 5-6, §7 "Filter error").
func (p *Pipeline) runFilters(candidates []string, bundle string, bundleData *loadmodel.BundleStats, fullSet []string, log *log.Logger) []string {
	current := candidates
	for _, f := range p.filters {
		next, err := f.Apply(current, bundle, bundleData, p.view)
		if err != nil {
			logger.Warn(log, "filter %s errored, restoring full policy-compliant set: %v", f.Name(), err)
			current = fullSet
			continue
		}
		current = next
	}
	if len(current) == 0 {
		current = fullSet
	}
	return current
}

// hydrateBundle materializes BundleData for placement's use, reusing
// the aggregator's view first, then persisted bundle-data from the
// store, and otherwise a record seeded with one sample of the default
// rates; the latter two are stored in the view (spec.md §4.4 step 2).
func (p *Pipeline) hydrateBundle(ctx context.Context, bundle string) *loadmodel.BundleStats {
	if bs, ok := p.view.Bundles[bundle]; ok {
		return bs
	}

	var persisted struct {
		ShortTerm loadmodel.NamespaceBundleStats `json:"shortTerm"`
		LongTerm  loadmodel.NamespaceBundleStats `json:"longTerm"`
	}
	if err := p.store.GetJSON(ctx, bundleDataPath(bundle), &persisted); err == nil {
		bs := loadmodel.NewBundleStats(p.cfg.NumShortSamples, p.cfg.NumLongSamples)
		bs.ShortTerm.Update(persisted.ShortTerm)
		bs.LongTerm.Update(persisted.LongTerm)
		p.view.Bundles[bundle] = bs
		return bs
	}

	bs := loadmodel.NewDefaultBundleStats(p.cfg.NumShortSamples, p.cfg.NumLongSamples, loadmodel.NamespaceBundleStats{
		MsgRateIn:        p.cfg.DefaultMessageRate,
		MsgRateOut:       p.cfg.DefaultMessageRate,
		MsgThroughputIn:  p.cfg.DefaultMessageThroughput,
		MsgThroughputOut: p.cfg.DefaultMessageThroughput,
	})
	p.view.Bundles[bundle] = bs
	return bs
}
