package loadmodel

import "time"

// SystemResourceUsage is the host probe's sample of this machine's
// resource usage, expressed as fractions in [0,1] — NOT percentages.
// This matches the source's getMaxResourceUsage(), which the publish
// predicate and the overload guard both scale by 100 or compare
// against a threshold already divided by 100 (spec.md §4.1, §4.4 step
// 8). The core never samples hardware itself — it is handed a sample
// by the host-probe collaborator (spec.md §1, out of scope).
type SystemResourceUsage struct {
	CPU          float64
	Memory       float64
	BandwidthIn  float64
	BandwidthOut float64
}

// Max returns the maximum of the four usage fractions — the value the
// publish predicate and the overload guard both key off of.
func (u SystemResourceUsage) Max() float64 {
	max := u.CPU
	if u.Memory > max {
		max = u.Memory
	}
	if u.BandwidthIn > max {
		max = u.BandwidthIn
	}
	if u.BandwidthOut > max {
		max = u.BandwidthOut
	}
	return max
}

// LocalBrokerData is the JSON payload one broker publishes to
// /loadbalance/brokers/<advertised> (spec.md §6) and the struct the
// local reporter maintains in memory between publishes.
type LocalBrokerData struct {
	WebServiceURL    string
	BrokerServiceURL string
	BrokerVersion    string

	Usage SystemResourceUsage

	MsgRateIn         float64
	MsgRateOut        float64
	MsgThroughputIn   float64
	MsgThroughputOut  float64
	NumBundles        int

	// Bundles is the set of bundle identifiers this broker currently
	// hosts, as of the last UpdateLocalBrokerData call.
	Bundles map[string]struct{}

	// LastStats is this broker's most recently observed
	// NamespaceBundleStats sample per hosted bundle.
	LastStats map[string]NamespaceBundleStats

	// LastBundleGains / LastBundleLosses accumulate bundle IDs
	// gained/lost since the previous publish; cleared on publish
	// (spec.md §4.1 and the source's writeBrokerDataOnZooKeeper).
	LastBundleGains   []string
	LastBundleLosses  []string

	LastUpdate time.Time
}

// NewLocalBrokerData returns an empty record for a freshly started
// broker.
func NewLocalBrokerData(webServiceURL, brokerServiceURL, brokerVersion string) *LocalBrokerData {
	return &LocalBrokerData{
		WebServiceURL:    webServiceURL,
		BrokerServiceURL: brokerServiceURL,
		BrokerVersion:    brokerVersion,
		Bundles:          make(map[string]struct{}),
		LastStats:        make(map[string]NamespaceBundleStats),
	}
}

// MaxResourceUsage mirrors SystemResourceUsage.Max for the broker's
// latest sample — the quantity the publish predicate and the overload
// guard compare against thresholds.
func (d *LocalBrokerData) MaxResourceUsage() float64 {
	return d.Usage.Max()
}

// Update folds a new host-resource sample and bundle-stats snapshot
// into the broker's local data, recording gained/lost bundles and
// recomputing the aggregated rate/throughput totals (spec.md §4.1
// updateLocalBrokerData).
func (d *LocalBrokerData) Update(usage SystemResourceUsage, bundleStats map[string]NamespaceBundleStats) {
	for bundle := range bundleStats {
		if _, hosted := d.Bundles[bundle]; !hosted {
			d.LastBundleGains = append(d.LastBundleGains, bundle)
		}
	}
	for bundle := range d.Bundles {
		if _, stillHosted := bundleStats[bundle]; !stillHosted {
			d.LastBundleLosses = append(d.LastBundleLosses, bundle)
		}
	}

	d.Usage = usage

	var rateIn, rateOut, throughputIn, throughputOut float64
	for _, s := range bundleStats {
		rateIn += s.MsgRateIn
		rateOut += s.MsgRateOut
		throughputIn += s.MsgThroughputIn
		throughputOut += s.MsgThroughputOut
	}
	d.MsgRateIn = rateIn
	d.MsgRateOut = rateOut
	d.MsgThroughputIn = throughputIn
	d.MsgThroughputOut = throughputOut
	d.NumBundles = len(bundleStats)

	bundles := make(map[string]struct{}, len(bundleStats))
	for bundle := range bundleStats {
		bundles[bundle] = struct{}{}
	}
	d.Bundles = bundles
	d.LastStats = bundleStats
}

// Snapshot returns a deep-enough copy for publishing: the gain/loss
// slices and maps are copied so clearing them post-publish doesn't
// race with whoever still holds the published snapshot.
func (d *LocalBrokerData) Snapshot() *LocalBrokerData {
	clone := *d
	clone.Bundles = make(map[string]struct{}, len(d.Bundles))
	for b := range d.Bundles {
		clone.Bundles[b] = struct{}{}
	}
	clone.LastStats = make(map[string]NamespaceBundleStats, len(d.LastStats))
	for b, s := range d.LastStats {
		clone.LastStats[b] = s
	}
	clone.LastBundleGains = append([]string(nil), d.LastBundleGains...)
	clone.LastBundleLosses = append([]string(nil), d.LastBundleLosses...)
	return &clone
}

// ClearDeltas empties the gain/loss slices — called right after a
// successful publish (spec.md §4.1).
func (d *LocalBrokerData) ClearDeltas() {
	d.LastBundleGains = nil
	d.LastBundleLosses = nil
}
