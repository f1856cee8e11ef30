// Package loadmanager is the lifecycle facade spec.md §4.7 and §6
// name: start, stop, disableBroker, updateLocalBrokerData,
// writeBrokerDataOnZooKeeper, writeBundleDataOnZooKeeper,
// selectBrokerForAssignment, doLoadShedding. It wires reporter, watch,
// and aggregator on every instance, and placement plus shedding only
// when this instance is the externally elected leader.
//
// Grounded on the source's start()/stop()/disableBroker() and the
// teacher's cmd/member/main.go composition-root shape: no business
// logic in main, all wiring lives in one constructor/lifecycle type.
package loadmanager

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"fleetload/internal/adminclient"
	"fleetload/internal/aggregator"
	"fleetload/internal/config"
	"fleetload/internal/hostprobe"
	"fleetload/internal/loadmodel"
	"fleetload/internal/logger"
	"fleetload/internal/nspolicy"
	"fleetload/internal/placement"
	"fleetload/internal/reporter"
	"fleetload/internal/scheduler"
	"fleetload/internal/shedding"
	"fleetload/internal/store"
	"fleetload/internal/watch"
)

// ErrNotImplemented is returned by DoNamespaceBundleSplit: the source
// keeps this operation on the interface as a documented no-op (spec.md
// §9's "Bundle-splitting hook"; see SPEC_FULL.md's SUPPLEMENTED
// FEATURES and DESIGN.md's Open Questions resolved).
var ErrNotImplemented = fmt.Errorf("loadmanager: doNamespaceBundleSplit is not implemented")

// Options configures a LoadManager at construction time.
type Options struct {
	Advertised       string
	WebServiceURL    string
	BrokerServiceURL string
	BrokerVersion    string

	Store    store.Store
	Probe    hostprobe.Probe
	Source   reporter.BundleStatsSource
	Policies nspolicy.Policies
	Admin    adminclient.Client
	Config   *config.Config
	Log      *log.Logger
	IsLeader func() bool
}

// LoadManager is the process-wide facade: one instance per broker
// process, wrapping every load-manager operation it exposes to the
// surrounding broker.
type LoadManager struct {
	opts Options

	view     *loadmodel.LoadView
	prealloc *loadmodel.PreallocationIndex
	mu       sync.Mutex

	sched    *scheduler.Scheduler
	agg      *aggregator.Aggregator
	rep      *reporter.Reporter
	pipeline *placement.Pipeline
	shed     *shedding.Loop

	membershipWatcher *watch.MembershipWatcher

	cancel context.CancelFunc
}

// New wires every component per SPEC_FULL.md's DOMAIN STACK and
// AMBIENT STACK sections. Placement and shedding are constructed
// regardless of leadership (spec.md's leader-election is external);
// IsLeader gates whether SelectBrokerForAssignment/DoLoadShedding are
// actually invoked by the surrounding broker.
func New(opts Options) *LoadManager {
	view := loadmodel.NewLoadView()
	prealloc := loadmodel.NewPreallocationIndex()

	lm := &LoadManager{
		opts:     opts,
		view:     view,
		prealloc: prealloc,
		sched:    scheduler.New(opts.Log, 256),
	}

	lm.agg = aggregator.New(view, prealloc, opts.Store, opts.Config, &lm.mu, opts.Log)
	lm.rep = reporter.New(
		opts.Advertised, opts.WebServiceURL, opts.BrokerServiceURL, opts.BrokerVersion,
		opts.Probe, opts.Source, opts.Store, opts.Log,
		time.Duration(opts.Config.ReportUpdateMaxIntervalMinutes)*time.Minute,
		opts.Config.ReportUpdateThresholdPercentage,
	)
	lm.pipeline = placement.New(
		view, prealloc, opts.Store, opts.Policies,
		[]placement.Filter{placement.VersionFilter{}},
		placement.LeastResourceUsage{},
		opts.Config, &lm.mu, opts.Log,
	)
	lm.shed = shedding.New(
		view, opts.Admin,
		[]shedding.LoadSheddingStrategy{shedding.OverloadShedder{}, shedding.UnderloadedBrokerShedder{}},
		opts.Config, &lm.mu, opts.Log,
	)

	return lm
}

func (lm *LoadManager) brokersPath() string     { return "/loadbalance/brokers" }
func (lm *LoadManager) brokerZnode() string     { return "/loadbalance/brokers/" + lm.opts.Advertised }
func (lm *LoadManager) timeAveragePath() string { return "/loadbalance/broker-time-average/" + lm.opts.Advertised }

// Start implements spec.md §4.7's start(): ensures the brokers
// container exists, publishes this broker's initial data, ensures its
// time-average blob exists, starts the scheduler and watchers, and
// submits one aggregation pass to the scheduler.
func (lm *LoadManager) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	lm.cancel = cancel

	if err := lm.opts.Store.ExistsOrCreate(runCtx, lm.brokersPath(), nil, store.Persistent); err != nil {
		return fmt.Errorf("loadmanager: start: ensuring %s: %w", lm.brokersPath(), err)
	}

	if err := lm.rep.WriteBrokerDataIfNeeded(runCtx); err != nil {
		return fmt.Errorf("loadmanager: start: publishing initial broker data: %w", err)
	}

	if err := lm.opts.Store.ExistsOrCreate(runCtx, lm.timeAveragePath(), []byte("{}"), store.Persistent); err != nil {
		return fmt.Errorf("loadmanager: start: ensuring %s: %w", lm.timeAveragePath(), err)
	}

	go lm.sched.Run(runCtx)

	lm.membershipWatcher = watch.NewMembershipWatcher(lm.opts.Store, lm.sched, lm.opts.Log, lm.brokersPath(), lm.onMembershipChange)
	if err := lm.membershipWatcher.Start(runCtx); err != nil {
		return fmt.Errorf("loadmanager: start: subscribing to membership: %w", err)
	}

	lm.sched.Submit("initial-aggregation", lm.runAggregationPass)
	logger.Info(lm.opts.Log, "load manager started as %s", lm.opts.Advertised)
	return nil
}

// onMembershipChange is submitted to the scheduler by the membership
// watcher on every change; it also wires a per-broker data watcher for
// any newly seen broker.
func (lm *LoadManager) onMembershipChange(ctx context.Context, alive []string) {
	known := make(map[string]struct{})
	for _, broker := range lm.currentMembership() {
		known[broker] = struct{}{}
	}

	lm.agg.ReapDeadBrokers(ctx, alive)
	if err := lm.agg.UpdateAllBrokerData(ctx, alive); err != nil {
		logger.Warn(lm.opts.Log, "updateAllBrokerData: %v", err)
	}
	lm.agg.UpdateBundleData(ctx)

	for _, broker := range alive {
		if broker == lm.opts.Advertised {
			continue
		}
		if _, seen := known[broker]; seen {
			continue
		}
		dw := watch.NewBrokerDataWatcher(lm.opts.Store, lm.sched, lm.opts.Log, broker, "/loadbalance/brokers/"+broker, lm.onBrokerDataChange)
		if err := dw.Start(ctx); err != nil {
			logger.Warn(lm.opts.Log, "subscribing to broker data for %s: %v", broker, err)
		}
	}
}

func (lm *LoadManager) onBrokerDataChange(ctx context.Context, broker string, _ []byte) {
	lm.runAggregationPass(ctx)
}

func (lm *LoadManager) runAggregationPass(ctx context.Context) {
	alive := lm.currentMembership()
	if err := lm.agg.UpdateAllBrokerData(ctx, alive); err != nil {
		logger.Warn(lm.opts.Log, "updateAllBrokerData: %v", err)
	}
	lm.agg.UpdateBundleData(ctx)
}

func (lm *LoadManager) currentMembership() []string {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	names := make([]string, 0, len(lm.view.Brokers))
	for b := range lm.view.Brokers {
		names = append(names, b)
	}
	return names
}

// Stop implements spec.md §4.7's stop(): cancels watchers and the
// scheduler. The ephemeral broker znode disappears with session loss;
// it is not explicitly deleted here (see DisableBroker for the
// voluntary-drain path).
func (lm *LoadManager) Stop() {
	if lm.cancel != nil {
		lm.cancel()
	}
	lm.sched.Stop()
	logger.Info(lm.opts.Log, "load manager stopped")
}

// DisableBroker implements spec.md §4.7's disableBroker(): explicitly
// deletes this broker's znode as a voluntary drain, rather than
// waiting for session loss.
func (lm *LoadManager) DisableBroker(ctx context.Context) error {
	if remover, ok := lm.opts.Store.(interface{ Remove(string) }); ok {
		remover.Remove(lm.brokerZnode())
		logger.Info(lm.opts.Log, "broker %s disabled (znode removed)", lm.opts.Advertised)
		return nil
	}
	return fmt.Errorf("loadmanager: disableBroker: store does not support explicit removal")
}

// UpdateLocalBrokerData exposes the local reporter's sampling step
// directly (spec.md §6).
func (lm *LoadManager) UpdateLocalBrokerData(ctx context.Context) error {
	return lm.rep.UpdateLocalBrokerData(ctx)
}

// WriteBrokerDataOnZooKeeper exposes the local reporter's
// publish-if-needed step (spec.md §6's writeBrokerDataOnZooKeeper).
func (lm *LoadManager) WriteBrokerDataOnZooKeeper(ctx context.Context) error {
	return lm.rep.WriteBrokerDataIfNeeded(ctx)
}

// WriteBundleDataOnZooKeeper persists every tracked bundle's current
// rolling-window state and every broker's time-average data back to
// the coordination store, so a successor leader starts with warm
// history (spec.md §2, §6's writeBundleDataOnZooKeeper).
func (lm *LoadManager) WriteBundleDataOnZooKeeper(ctx context.Context) error {
	lm.mu.Lock()
	type persisted struct {
		ShortTerm loadmodel.NamespaceBundleStats `json:"shortTerm"`
		LongTerm  loadmodel.NamespaceBundleStats `json:"longTerm"`
	}
	bundleSnapshot := make(map[string]persisted, len(lm.view.Bundles))
	for bundle, bs := range lm.view.Bundles {
		bundleSnapshot[bundle] = persisted{
			ShortTerm: loadmodel.NamespaceBundleStats{
				MsgRateIn: bs.ShortTerm.MsgRateIn, MsgRateOut: bs.ShortTerm.MsgRateOut,
				MsgThroughputIn: bs.ShortTerm.MsgThroughputIn, MsgThroughputOut: bs.ShortTerm.MsgThroughputOut,
			},
			LongTerm: loadmodel.NamespaceBundleStats{
				MsgRateIn: bs.LongTerm.MsgRateIn, MsgRateOut: bs.LongTerm.MsgRateOut,
				MsgThroughputIn: bs.LongTerm.MsgThroughputIn, MsgThroughputOut: bs.LongTerm.MsgThroughputOut,
			},
		}
	}
	timeAverages := make(map[string]*loadmodel.TimeAverageBrokerData, len(lm.view.Brokers))
	for broker, state := range lm.view.Brokers {
		timeAverages[broker] = state.TimeAverageData
	}
	lm.mu.Unlock()

	var firstErr error
	for bundle, data := range bundleSnapshot {
		if err := lm.opts.Store.SetJSON(ctx, "/loadbalance/bundle-data/"+bundle, data); err != nil {
			logger.Warn(lm.opts.Log, "persisting bundle data for %s: %v", bundle, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	for broker, avg := range timeAverages {
		if err := lm.opts.Store.SetJSON(ctx, "/loadbalance/broker-time-average/"+broker, avg); err != nil {
			logger.Warn(lm.opts.Log, "persisting time-average data for %s: %v", broker, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SelectBrokerForAssignment exposes the placement pipeline. Callers
// should only invoke this when opts.IsLeader() is true; the load
// manager itself does not gate on it, matching spec.md's framing of
// leadership as an externally-decided precondition.
func (lm *LoadManager) SelectBrokerForAssignment(ctx context.Context, bundle string) (string, error) {
	return lm.pipeline.SelectBrokerForAssignment(ctx, bundle)
}

// DoLoadShedding exposes the shedding loop, subject to the same
// leader precondition as SelectBrokerForAssignment.
func (lm *LoadManager) DoLoadShedding(ctx context.Context) {
	lm.shed.DoLoadShedding(ctx, time.Now())
}

// DoNamespaceBundleSplit is a stub: the source keeps this operation on
// the load-manager interface as a documented no-op (spec.md §9).
func (lm *LoadManager) DoNamespaceBundleSplit(ctx context.Context, bundle string) error {
	return ErrNotImplemented
}
