package loadmodel

// NamespaceBundleStats is a single reported sample for one bundle, as
// published by the broker currently hosting it.
type NamespaceBundleStats struct {
	MsgRateIn         float64
	MsgRateOut        float64
	MsgThroughputIn   float64
	MsgThroughputOut  float64
}

// ResourceQuota is the legacy per-namespace seed used before BundleData
// existed on the coordination store (spec.md §6, "Legacy seeding").
type ResourceQuota struct {
	MsgRateIn    float64
	MsgRateOut   float64
	BandwidthIn  float64
	BandwidthOut float64
}

// WindowStats is a rolling average over a fixed-capacity window of
// samples. Below capacity it is a plain running mean; once saturated,
// each new sample displaces 1/capacity of the current average —
// "exponential-style displacement" per spec.md §3.
type WindowStats struct {
	MsgRateIn        float64
	MsgRateOut       float64
	MsgThroughputIn  float64
	MsgThroughputOut float64
	NumSamples       int

	capacity int
}

// NewWindowStats returns an empty window with the given sample capacity.
func NewWindowStats(capacity int) *WindowStats {
	return &WindowStats{capacity: capacity}
}

// NewSaturatedWindowStats seeds a window as if it had already observed
// capacity samples equal to the given quota-derived rates — used by the
// legacy resource-quota seeding path, which marks both windows
// "saturated" so the first real sample carries low weight.
func NewSaturatedWindowStats(capacity int, rateIn, rateOut, throughputIn, throughputOut float64) *WindowStats {
	return &WindowStats{
		MsgRateIn:        rateIn,
		MsgRateOut:       rateOut,
		MsgThroughputIn:  throughputIn,
		MsgThroughputOut: throughputOut,
		NumSamples:       capacity,
		capacity:         capacity,
	}
}

// Capacity returns the window's sample capacity (N_SHORT or N_LONG).
func (w *WindowStats) Capacity() int {
	return w.capacity
}

// Update folds a new sample into the rolling average.
func (w *WindowStats) Update(sample NamespaceBundleStats) {
	if w.NumSamples < w.capacity {
		n := float64(w.NumSamples)
		w.MsgRateIn = (w.MsgRateIn*n + sample.MsgRateIn) / (n + 1)
		w.MsgRateOut = (w.MsgRateOut*n + sample.MsgRateOut) / (n + 1)
		w.MsgThroughputIn = (w.MsgThroughputIn*n + sample.MsgThroughputIn) / (n + 1)
		w.MsgThroughputOut = (w.MsgThroughputOut*n + sample.MsgThroughputOut) / (n + 1)
		w.NumSamples++
		return
	}

	// Saturated: decay the existing average by 1/capacity and fold in
	// the new sample at that same weight.
	cap := float64(w.capacity)
	decay := (cap - 1) / cap
	weight := 1 / cap
	w.MsgRateIn = w.MsgRateIn*decay + sample.MsgRateIn*weight
	w.MsgRateOut = w.MsgRateOut*decay + sample.MsgRateOut*weight
	w.MsgThroughputIn = w.MsgThroughputIn*decay + sample.MsgThroughputIn*weight
	w.MsgThroughputOut = w.MsgThroughputOut*decay + sample.MsgThroughputOut*weight
}
