// Package reporter implements the local reporter (spec.md §4.1): it
// samples the host probe, folds the result into LocalBrokerData, and
// decides when that data is worth publishing to the coordination
// store.
package reporter

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"fleetload/internal/hostprobe"
	"fleetload/internal/loadmodel"
	"fleetload/internal/logger"
	"fleetload/internal/metrics"
	"fleetload/internal/store"
)

// BundleStatsSource supplies the current per-bundle stats snapshot
// from the local serving layer (spec.md §4.1: "merges with current
// bundle-stats snapshot taken from the local serving layer"). The
// serving layer that actually tracks per-bundle message rates is out
// of scope for the core; this is the seam it plugs in through.
type BundleStatsSource interface {
	Snapshot(ctx context.Context) (map[string]loadmodel.NamespaceBundleStats, error)
}

// Reporter owns one broker's LocalBrokerData and decides when to
// publish it.
type Reporter struct {
	advertised string
	brokerPath string // /loadbalance/brokers/<advertised>

	probe  hostprobe.Probe
	source BundleStatsSource
	store  store.Store
	log    *log.Logger

	maxInterval      time.Duration
	thresholdPercent float64

	local    *loadmodel.LocalBrokerData
	lastData *loadmodel.LocalBrokerData
	lastPub  time.Time
}

// New returns a reporter for one broker, starting from an empty
// LocalBrokerData (spec.md §4.6 "update local data" at start).
func New(advertised, webServiceURL, brokerServiceURL, brokerVersion string, probe hostprobe.Probe, source BundleStatsSource, st store.Store, log *log.Logger, maxInterval time.Duration, thresholdPercent float64) *Reporter {
	local := loadmodel.NewLocalBrokerData(webServiceURL, brokerServiceURL, brokerVersion)
	return &Reporter{
		advertised:       advertised,
		brokerPath:       "/loadbalance/brokers/" + advertised,
		probe:            probe,
		source:           source,
		store:            st,
		log:              log,
		maxInterval:      maxInterval,
		thresholdPercent: thresholdPercent,
		local:            local,
		lastData:         local.Snapshot(),
	}
}

// UpdateLocalBrokerData samples the host probe and the local bundle
// stats, folding both into localData (spec.md §4.1).
func (r *Reporter) UpdateLocalBrokerData(ctx context.Context) error {
	usage, err := r.probe.Sample(ctx)
	if err != nil {
		return fmt.Errorf("reporter: sampling host probe: %w", err)
	}
	stats, err := r.source.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("reporter: sampling bundle stats: %w", err)
	}
	r.local.Update(usage, stats)
	return nil
}

// WriteBrokerDataIfNeeded runs UpdateLocalBrokerData, evaluates the
// publish predicate, and if it fires, publishes to the coordination
// store, clears the delta sets, and snapshots localData into lastData
// (spec.md §4.1).
func (r *Reporter) WriteBrokerDataIfNeeded(ctx context.Context) error {
	if err := r.UpdateLocalBrokerData(ctx); err != nil {
		return err
	}

	publish := r.shouldPublish()
	metrics.PublishDecisionsTotal.WithLabelValues(boolLabel(publish)).Inc()
	if !publish {
		return nil
	}

	snapshot := r.local.Snapshot()
	if err := r.publish(ctx, snapshot); err != nil {
		logger.Warn(r.log, "publish to %s failed (will retry next pass): %v", r.brokerPath, err)
		return nil
	}

	r.local.ClearDeltas()
	r.lastData = snapshot
	r.lastPub = time.Now()
	logger.Debug(r.log, "published broker data to %s", r.brokerPath)
	return nil
}

// publish writes the ephemeral broker znode, swallowing ErrNodeExists
// per spec.md §4.6's idempotent-creation rule by overwriting via
// SetJSON when the node is already there.
func (r *Reporter) publish(ctx context.Context, data *loadmodel.LocalBrokerData) error {
	if err := r.store.ExistsOrCreate(ctx, r.brokerPath, nil, store.Ephemeral); err != nil {
		return err
	}
	return r.store.SetJSON(ctx, r.brokerPath, data)
}

// shouldPublish implements the publish predicate from spec.md §4.1
// exactly: the max-interval ceiling, OR the max of four deltas
// exceeding thresholdPercent. The maxResourceUsage delta is an
// absolute difference in percentage points; the other three are
// percent-change.
func (r *Reporter) shouldPublish() bool {
	if r.lastPub.IsZero() {
		return true
	}
	if time.Since(r.lastPub) >= r.maxInterval {
		return true
	}

	usageDeltaPoints := math.Abs(r.lastData.MaxResourceUsage()-r.local.MaxResourceUsage()) * 100

	rateChange := percentChange(
		r.lastData.MsgRateIn+r.lastData.MsgRateOut,
		r.local.MsgRateIn+r.local.MsgRateOut,
	)
	throughputChange := percentChange(
		r.lastData.MsgThroughputIn+r.lastData.MsgThroughputOut,
		r.local.MsgThroughputIn+r.local.MsgThroughputOut,
	)
	bundlesChange := percentChange(float64(r.lastData.NumBundles), float64(r.local.NumBundles))

	max := usageDeltaPoints
	if rateChange > max {
		max = rateChange
	}
	if throughputChange > max {
		max = throughputChange
	}
	if bundlesChange > max {
		max = bundlesChange
	}

	return max > r.thresholdPercent
}

// percentChange implements spec.md §4.1's exact special cases:
// 100*|old-new|/old when old != 0; 0 when old == new == 0; +Inf
// otherwise (old == 0, new != 0).
func percentChange(old, new_ float64) float64 {
	if old == 0 {
		if new_ == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return 100 * math.Abs(old-new_) / old
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
