// Package shedding implements the leader-only shedding loop from
// spec.md §4.5: grace-period pruning, ordered strategy invocation with
// first-productive-strategy-wins semantics, and the admin RPCs that
// carry out the chosen unloads.
package shedding

import (
	"context"
	"log"
	"sync"
	"time"

	"fleetload/internal/adminclient"
	"fleetload/internal/config"
	"fleetload/internal/loadmodel"
	"fleetload/internal/logger"
	"fleetload/internal/metrics"
)

// Candidate is one (bundle, source broker) pair a strategy proposes
// for unloading.
type Candidate struct {
	Bundle string
	Broker string
}

// LoadSheddingStrategy proposes bundles to unload. Implementations
// must consult view.RecentlyUnloadedBundles and not re-propose a
// bundle still within its grace period (spec.md §4.5).
type LoadSheddingStrategy interface {
	Name() string
	FindBundlesForUnloading(view *loadmodel.LoadView, cfg *config.Config, now time.Time) []Candidate
}

// Loop runs doLoadShedding (spec.md §4.5). It takes the placement
// mutex while snapshotting candidates from the LoadView and briefly
// while recording each completed unload; it never holds it across an
// admin RPC (spec.md §5).
type Loop struct {
	view       *loadmodel.LoadView
	admin      adminclient.Client
	strategies []LoadSheddingStrategy
	cfg        *config.Config
	mu         *sync.Mutex
	log        *log.Logger
}

// New returns a shedding loop sharing view/mu with the aggregator and
// placement pipeline wired into the same load manager.
func New(view *loadmodel.LoadView, admin adminclient.Client, strategies []LoadSheddingStrategy, cfg *config.Config, mu *sync.Mutex, log *log.Logger) *Loop {
	return &Loop{view: view, admin: admin, strategies: strategies, cfg: cfg, mu: mu, log: log}
}

// DoLoadShedding runs one shedding pass: unload-disabled check,
// grace-period pruning, then the first strategy to propose a non-empty
// candidate set wins (spec.md §4.5).
func (l *Loop) DoLoadShedding(ctx context.Context, now time.Time) {
	if !l.cfg.SheddingEnabled {
		return
	}

	l.mu.Lock()
	if len(l.view.Brokers) < 2 {
		l.mu.Unlock()
		return
	}

	l.pruneGracePeriod(now)

	var candidates []Candidate
	var winner string
	for _, strategy := range l.strategies {
		found := strategy.FindBundlesForUnloading(l.view, l.cfg, now)
		if len(found) > 0 {
			candidates = found
			winner = strategy.Name()
			break
		}
	}
	l.mu.Unlock()

	if len(candidates) == 0 {
		return
	}
	metrics.ShedDecisionsTotal.WithLabelValues(winner).Add(float64(len(candidates)))

	for _, c := range candidates {
		namespace := loadmodel.NamespaceFromBundle(c.Bundle)
		bundleRange := loadmodel.BundleRangeFromBundle(c.Bundle)

		if err := l.admin.UnloadNamespaceBundle(ctx, c.Broker, namespace, bundleRange); err != nil {
			metrics.ShedRPCFailuresTotal.Inc()
			logger.Warn(l.log, "unload %s on %s failed, continuing with next candidate: %v", c.Bundle, c.Broker, err)
			continue
		}

		l.mu.Lock()
		l.view.RecentlyUnloadedBundles[c.Bundle] = now
		l.mu.Unlock()
		logger.Info(l.log, "shed %s from %s via strategy %s", c.Bundle, c.Broker, winner)
	}
}

// pruneGracePeriod removes entries older than
// cfg.SheddingGracePeriodMinutes from RecentlyUnloadedBundles. Caller
// must hold l.mu.
func (l *Loop) pruneGracePeriod(now time.Time) {
	grace := time.Duration(l.cfg.SheddingGracePeriodMinutes) * time.Minute
	for bundle, unloadedAt := range l.view.RecentlyUnloadedBundles {
		if now.Sub(unloadedAt) >= grace {
			delete(l.view.RecentlyUnloadedBundles, bundle)
		}
	}
}
