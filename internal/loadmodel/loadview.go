package loadmodel

import "time"

// LoadView is the aggregator's root: every broker's state, every
// bundle's rolling stats, and the shedder's cooldown map (spec.md §3).
//
// LoadView carries no internal locking of its own. Per spec.md §5 the
// aggregator runs every mutation serially on the single-worker
// scheduler, and a single external mutex (see internal/placement) is
// held by placement for its whole call and by the aggregator for the
// brief sections where it touches the same structures. Callers are
// responsible for
// holding that mutex; LoadView itself is a plain data structure.
type LoadView struct {
	Brokers map[string]*BrokerState
	Bundles map[string]*BundleStats

	// RecentlyUnloadedBundles maps a bundle to the time it was last
	// shed, pruned by the shedding loop once the grace period elapses.
	RecentlyUnloadedBundles map[string]time.Time

	// NamespaceFanout is brokerToNamespaceToBundleRange from spec.md §3:
	// broker -> namespace -> set of bundle ranges that broker hosts or
	// has been preallocated in that namespace. Used for anti-affinity.
	NamespaceFanout map[string]map[string]map[string]struct{}
}

// NewLoadView returns an empty load view.
func NewLoadView() *LoadView {
	return &LoadView{
		Brokers:                 make(map[string]*BrokerState),
		Bundles:                 make(map[string]*BundleStats),
		RecentlyUnloadedBundles: make(map[string]time.Time),
		NamespaceFanout:         make(map[string]map[string]map[string]struct{}),
	}
}

// RebuildNamespaceFanout recomputes NamespaceFanout[broker] from the
// union of hosted and preallocated bundle keys, per spec.md §4.3's
// "rebuild brokerToNamespaceToBundleRange[B]" step.
func (v *LoadView) RebuildNamespaceFanout(broker string, bundleKeys []string) {
	fanout := make(map[string]map[string]struct{})
	for _, bundle := range bundleKeys {
		ns := NamespaceFromBundle(bundle)
		rng := BundleRangeFromBundle(bundle)
		ranges, ok := fanout[ns]
		if !ok {
			ranges = make(map[string]struct{})
			fanout[ns] = ranges
		}
		ranges[rng] = struct{}{}
	}
	v.NamespaceFanout[broker] = fanout
}

// AddToNamespaceFanout records that broker now also hosts (or has been
// preallocated) bundleRange within namespace — used by placement after
// recording a new preallocation (spec.md §4.4 step 9).
func (v *LoadView) AddToNamespaceFanout(broker, namespace, bundleRange string) {
	perNamespace, ok := v.NamespaceFanout[broker]
	if !ok {
		perNamespace = make(map[string]map[string]struct{})
		v.NamespaceFanout[broker] = perNamespace
	}
	ranges, ok := perNamespace[namespace]
	if !ok {
		ranges = make(map[string]struct{})
		perNamespace[namespace] = ranges
	}
	ranges[bundleRange] = struct{}{}
}

// NamespaceBundleCount returns how many bundles of namespace the given
// broker currently hosts or has been preallocated, per the fanout map.
func (v *LoadView) NamespaceBundleCount(broker, namespace string) int {
	perNamespace, ok := v.NamespaceFanout[broker]
	if !ok {
		return 0
	}
	return len(perNamespace[namespace])
}

// RemoveBroker drops a broker's entire LoadView footprint — used by
// the aggregator when membership no longer includes it (spec.md §4.3
// reapDeadBrokers / updateAllBrokerData).
func (v *LoadView) RemoveBroker(broker string) {
	delete(v.Brokers, broker)
	delete(v.NamespaceFanout, broker)
}

// PreallocationIndex is the {bundle -> broker} cache shared between
// placement and the aggregator (spec.md §3/§9). It duplicates
// information already held in BrokerState.PreallocatedBundleData by
// design, for O(1) bundle-to-broker lookup during placement without
// touching any BrokerState. Treat it as a cache with the invariant
// from spec.md §3, not an authoritative record.
type PreallocationIndex struct {
	byBundle map[string]string
}

// NewPreallocationIndex returns an empty index.
func NewPreallocationIndex() *PreallocationIndex {
	return &PreallocationIndex{byBundle: make(map[string]string)}
}

// Lookup returns the broker a bundle is preallocated to, if any.
func (p *PreallocationIndex) Lookup(bundle string) (string, bool) {
	broker, ok := p.byBundle[bundle]
	return broker, ok
}

// Set records a new preallocation.
func (p *PreallocationIndex) Set(bundle, broker string) {
	p.byBundle[bundle] = broker
}

// Delete removes a preallocation, e.g. once it has settled into
// lastStats or its broker has died.
func (p *PreallocationIndex) Delete(bundle string) {
	delete(p.byBundle, bundle)
}

// DeleteBroker removes every preallocation pointing at broker — used
// when that broker drops out of membership.
func (p *PreallocationIndex) DeleteBroker(broker string) {
	for bundle, b := range p.byBundle {
		if b == broker {
			delete(p.byBundle, bundle)
		}
	}
}

// Len reports how many preallocations are currently outstanding.
func (p *PreallocationIndex) Len() int {
	return len(p.byBundle)
}
