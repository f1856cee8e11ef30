package loadmodel

// BundleStats is the rolling-statistics record for one bundle: a
// short-term window of N_SHORT samples and a long-term window of
// N_LONG samples, fed from every NamespaceBundleStats sample reported
// by whichever broker currently hosts the bundle (spec.md §3).
type BundleStats struct {
	ShortTerm *WindowStats
	LongTerm  *WindowStats
}

// NewBundleStats creates an empty bundle record with no samples in
// either window. Hydration from persisted bundle-data starts from it;
// a bundle with no persisted state and no legacy quota goes through
// NewDefaultBundleStats instead.
func NewBundleStats(numShort, numLong int) *BundleStats {
	return &BundleStats{
		ShortTerm: NewWindowStats(numShort),
		LongTerm:  NewWindowStats(numLong),
	}
}

// NewDefaultBundleStats creates a bundle record pre-fed with one
// sample of default rates (DEFAULT_MESSAGE_RATE / DEFAULT_MESSAGE_THROUGHPUT),
// per spec.md §4.3's "initialize with defaults" fallback.
func NewDefaultBundleStats(numShort, numLong int, defaults NamespaceBundleStats) *BundleStats {
	bs := NewBundleStats(numShort, numLong)
	bs.Update(defaults)
	return bs
}

// NewBundleStatsFromQuota seeds both windows as saturated from a
// legacy ResourceQuota entry, per spec.md §6's legacy-seeding rule.
func NewBundleStatsFromQuota(numShort, numLong int, quota ResourceQuota) *BundleStats {
	return &BundleStats{
		ShortTerm: NewSaturatedWindowStats(numShort, quota.MsgRateIn, quota.MsgRateOut, quota.BandwidthIn, quota.BandwidthOut),
		LongTerm:  NewSaturatedWindowStats(numLong, quota.MsgRateIn, quota.MsgRateOut, quota.BandwidthIn, quota.BandwidthOut),
	}
}

// Update feeds a freshly reported sample into both windows.
func (b *BundleStats) Update(sample NamespaceBundleStats) {
	b.ShortTerm.Update(sample)
	b.LongTerm.Update(sample)
}
