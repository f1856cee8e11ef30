// Package watch turns the coordination store's two long-lived
// subscriptions (spec.md §4.2) into scheduler tasks: a membership
// watcher on /loadbalance/brokers, and one broker-data watcher per
// known broker on /loadbalance/brokers/<broker>. Both funnel into the
// single-threaded scheduler so aggregation passes never interleave.
//
// This is grounded on the source's ZooKeeperCacheListener callback
// pattern, adapted from a callback interface to Go channels feeding
// scheduler.Submit.
package watch

import (
	"context"
	"log"

	"fleetload/internal/logger"
	"fleetload/internal/scheduler"
	"fleetload/internal/store"
)

// MembershipHandler reacts to a change in the live broker set.
type MembershipHandler func(ctx context.Context, alive []string)

// DataHandler reacts to a change in one broker's published data.
type DataHandler func(ctx context.Context, broker string, payload []byte)

// MembershipWatcher subscribes to /loadbalance/brokers and submits a
// scheduler task on every change.
type MembershipWatcher struct {
	store    store.Store
	sched    *scheduler.Scheduler
	log      *log.Logger
	path     string
	onChange MembershipHandler
}

// NewMembershipWatcher returns a watcher that has not yet subscribed;
// call Start to begin.
func NewMembershipWatcher(st store.Store, sched *scheduler.Scheduler, log *log.Logger, path string, onChange MembershipHandler) *MembershipWatcher {
	return &MembershipWatcher{store: st, sched: sched, log: log, path: path, onChange: onChange}
}

// Start subscribes and submits an initial task for the current
// membership, then one task per subsequent change, until ctx is
// cancelled.
func (w *MembershipWatcher) Start(ctx context.Context) error {
	initial, updates, err := w.store.ChildrenWithWatch(ctx, w.path)
	if err != nil {
		return err
	}
	w.submit(ctx, initial)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case children, ok := <-updates:
				if !ok {
					return
				}
				w.submit(ctx, children)
			}
		}
	}()
	return nil
}

func (w *MembershipWatcher) submit(ctx context.Context, alive []string) {
	logger.Debug(w.log, "membership changed: %d live brokers", len(alive))
	w.sched.Submit("membership-changed", func(taskCtx context.Context) {
		w.onChange(taskCtx, alive)
	})
}

// BrokerDataWatcher subscribes to one broker's znode and submits a
// scheduler task on every change.
type BrokerDataWatcher struct {
	store    store.Store
	sched    *scheduler.Scheduler
	log      *log.Logger
	broker   string
	path     string
	onChange DataHandler
}

// NewBrokerDataWatcher returns a watcher for a single broker's znode.
func NewBrokerDataWatcher(st store.Store, sched *scheduler.Scheduler, log *log.Logger, broker, path string, onChange DataHandler) *BrokerDataWatcher {
	return &BrokerDataWatcher{store: st, sched: sched, log: log, broker: broker, path: path, onChange: onChange}
}

// Start subscribes and submits a task for the current payload, then
// one per subsequent change, until ctx is cancelled.
func (w *BrokerDataWatcher) Start(ctx context.Context) error {
	initial, updates, err := w.store.DataWithWatch(ctx, w.path)
	if err != nil {
		return err
	}
	w.submit(ctx, initial)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-updates:
				if !ok {
					return
				}
				w.submit(ctx, payload)
			}
		}
	}()
	return nil
}

func (w *BrokerDataWatcher) submit(ctx context.Context, payload []byte) {
	logger.Debug(w.log, "broker data changed: %s", w.broker)
	w.sched.Submit("broker-data-changed:"+w.broker, func(taskCtx context.Context) {
		w.onChange(taskCtx, w.broker, payload)
	})
}
