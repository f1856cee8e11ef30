package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// --- Placement pipeline ---
	PlacementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placement_requests_total",
			Help: "Total number of selectBrokerForAssignment calls by outcome",
		},
		[]string{"outcome"}, // preallocated, scored, overload_retry, no_broker
	)
	PlacementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "placement_duration_seconds",
			Help:    "selectBrokerForAssignment latency, including time spent waiting on the placement mutex",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// --- Aggregator ---
	AggregationPassDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregation_pass_duration_seconds",
			Help:    "Duration of a single aggregator pass (reap + broker data + bundle data)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"}, // reap, broker_data, bundle_data
	)
	BrokersTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "load_view_brokers_tracked",
		Help: "Number of brokers currently present in the load view",
	})
	BundlesTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "load_view_bundles_tracked",
		Help: "Number of bundles currently present in the load view",
	})

	// --- Shedding ---
	ShedDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shedding_decisions_total",
			Help: "Total number of bundles selected for unloading by shedding strategy",
		},
		[]string{"strategy"},
	)
	ShedRPCFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shedding_admin_rpc_failures_total",
		Help: "Total number of failed unloadNamespaceBundle admin RPCs during shedding",
	})

	// --- Local reporter ---
	PublishDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reporter_publish_decisions_total",
			Help: "Publish predicate outcomes",
		},
		[]string{"published"}, // "true" / "false"
	)
)

// Init registers every collector with the default Prometheus registry.
// Safe to call once at process start.
func Init() {
	prometheus.MustRegister(
		PlacementsTotal,
		PlacementDuration,
		AggregationPassDuration,
		BrokersTracked,
		BundlesTracked,
		ShedDecisionsTotal,
		ShedRPCFailuresTotal,
		PublishDecisionsTotal,
	)
}
