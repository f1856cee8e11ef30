package loadmodel

// TimeAverageBrokerData is the aggregated short/long-window
// rate/throughput totals for one broker, recomputed on every
// aggregator pass from the BundleStats of every bundle it hosts or
// has been preallocated (spec.md §3/§4.3).
type TimeAverageBrokerData struct {
	ShortTerm NamespaceBundleStats
	LongTerm  NamespaceBundleStats
}

// Reset recomputes the broker's time-average data as the sum, over
// bundleKeys, of each bundle's per-window average — substituting
// defaultStats for any bundle not yet present in bundleData. bundleKeys
// is the union of a broker's lastStats and preallocatedBundleData keys
// per spec.md §4.3.
func (t *TimeAverageBrokerData) Reset(bundleKeys []string, bundleData map[string]*BundleStats, defaultStats *BundleStats) {
	var short, long NamespaceBundleStats
	for _, bundle := range bundleKeys {
		stats, ok := bundleData[bundle]
		if !ok || stats == nil {
			stats = defaultStats
		}
		short.MsgRateIn += stats.ShortTerm.MsgRateIn
		short.MsgRateOut += stats.ShortTerm.MsgRateOut
		short.MsgThroughputIn += stats.ShortTerm.MsgThroughputIn
		short.MsgThroughputOut += stats.ShortTerm.MsgThroughputOut

		long.MsgRateIn += stats.LongTerm.MsgRateIn
		long.MsgRateOut += stats.LongTerm.MsgRateOut
		long.MsgThroughputIn += stats.LongTerm.MsgThroughputIn
		long.MsgThroughputOut += stats.LongTerm.MsgThroughputOut
	}
	t.ShortTerm = short
	t.LongTerm = long
}

// BrokerState is one broker's entry in the LoadView: its latest
// published report, the bundles the leader has promised it but not
// yet observed it hosting, and its aggregated time-average data
// (spec.md §3).
type BrokerState struct {
	LocalData *LocalBrokerData

	// PreallocatedBundleData holds bundles preallocated to this broker
	// by placement but not yet observed in LocalData.LastStats.
	PreallocatedBundleData map[string]*BundleStats

	TimeAverageData *TimeAverageBrokerData
}

// NewBrokerState wraps a freshly observed LocalBrokerData report.
func NewBrokerState(localData *LocalBrokerData) *BrokerState {
	return &BrokerState{
		LocalData:               localData,
		PreallocatedBundleData:  make(map[string]*BundleStats),
		TimeAverageData:          &TimeAverageBrokerData{},
	}
}

// PreallocatedAndHostedBundleKeys returns the union of the broker's
// currently reported bundles and its pending preallocations — the set
// TimeAverageData.Reset sums over.
func (s *BrokerState) PreallocatedAndHostedBundleKeys() []string {
	seen := make(map[string]struct{}, len(s.LocalData.LastStats)+len(s.PreallocatedBundleData))
	keys := make([]string, 0, len(seen))
	for bundle := range s.LocalData.LastStats {
		if _, ok := seen[bundle]; !ok {
			seen[bundle] = struct{}{}
			keys = append(keys, bundle)
		}
	}
	for bundle := range s.PreallocatedBundleData {
		if _, ok := seen[bundle]; !ok {
			seen[bundle] = struct{}{}
			keys = append(keys, bundle)
		}
	}
	return keys
}
