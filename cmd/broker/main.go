// ===================================================================================
// FLEETLOAD – BROKER LOAD-MANAGER BOOTSTRAP
// ===================================================================================
//
// This file is the **infrastructure entry point** for one broker
// process's load-manager instance.
//
// From an architectural perspective, a broker process:
//
//   - Samples its own resource usage and publishes it to the
//     coordination store
//   - Aggregates every other broker's published data plus per-bundle
//     stats into a shared in-memory view
//   - When elected leader, places new bundles and sheds overloaded ones
//
// This file intentionally contains **no business logic**. Its sole
// responsibility is wiring together runtime components:
//
//   - Logging initialization
//   - Command-line configuration
//   - Prometheus metrics HTTP server
//   - Coordination-store and out-of-scope collaborator wiring
//   - Load-manager startup
//   - Graceful shutdown handling
//
// This file serves as the **composition root** of the broker process.
//
// ===================================================================================

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetload/internal/adminclient"
	"fleetload/internal/config"
	"fleetload/internal/hostprobe"
	"fleetload/internal/loadmodel"
	"fleetload/internal/logger"
	"fleetload/internal/metrics"
	"fleetload/internal/nspolicy"
	"fleetload/internal/store/memstore"
	"fleetload/loadmanager"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
)

func main() {

	// -------------------------------------------------------------------------------
	// LOGGING INITIALIZATION
	// -------------------------------------------------------------------------------
	//
	// Initializes the global logging subsystem before any other
	// component touches it.

	logger.Init("logs/fleetload.log")
	logger.SetLevel(logger.INFO)

	brokerLog := logger.Broker
	logger.Info(brokerLog, "broker load manager starting")

	// -------------------------------------------------------------------------------
	// COMMAND-LINE FLAGS
	// -------------------------------------------------------------------------------
	//
	// Each broker instance is configured via POSIX-style flags:
	//
	//   --config       : path to the KEY=VALUE config file
	//   --host         : advertised host:webPort identity
	//   --broker-url   : advertised pulsar://host:port service URL
	//   --broker-version : broker software version (version filter input)
	//   --leader       : whether this instance runs placement/shedding
	//   --metrics-addr : Prometheus /metrics listen address

	configPath := flag.String("config", "", "path to KEY=VALUE config file (defaults if empty)")
	host := flag.String("host", "localhost:8080", "advertised web-service host:port identity")
	brokerURL := flag.String("broker-url", "pulsar://localhost:6650", "advertised broker-service URL")
	brokerVersion := flag.String("broker-version", "dev", "broker software version, used by the version-affinity filter")
	isLeader := flag.Bool("leader", false, "run placement and shedding on this instance")
	metricsAddr := flag.String("metrics-addr", ":9091", "Prometheus metrics listen address")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal(brokerLog, "loading config %s: %v", *configPath, err)
		}
		cfg = loaded
	}

	// -------------------------------------------------------------------------------
	// PROMETHEUS METRICS INITIALIZATION
	// -------------------------------------------------------------------------------
	//
	// Registers every collector and exposes /metrics on a dedicated
	// HTTP server, decoupled from anything else the broker does.

	metrics.Init()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		logger.Info(brokerLog, "metrics endpoint listening on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			logger.Warn(brokerLog, "metrics server stopped: %v", err)
		}
	}()

	// -------------------------------------------------------------------------------
	// COLLABORATOR WIRING
	// -------------------------------------------------------------------------------
	//
	// The coordination store, host probe, bundle-stats source, admin
	// client, and namespace policy are all external collaborators per
	// spec.md §1: the load manager only holds interfaces for them. This
	// process wires in the in-memory store fake and no-op collaborators
	// until a real ZooKeeper/etcd client and serving-layer bundle-stats
	// feed are chosen for production deployment.

	st := memstore.New()
	probe := &hostprobe.Fake{}
	source := noopBundleStatsSource{}
	admin := adminclient.NewFake()
	policies := nspolicy.Unrestricted{}

	lm := loadmanager.New(loadmanager.Options{
		Advertised:       *host,
		WebServiceURL:    "http://" + *host,
		BrokerServiceURL: *brokerURL,
		BrokerVersion:    *brokerVersion,
		Store:            st,
		Probe:            probe,
		Source:           source,
		Policies:         policies,
		Admin:            admin,
		Config:           cfg,
		Log:              brokerLog,
		IsLeader:         func() bool { return *isLeader },
	})

	// -------------------------------------------------------------------------------
	// GRACEFUL SHUTDOWN HANDLING
	// -------------------------------------------------------------------------------

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	// -------------------------------------------------------------------------------
	// START THE LOAD MANAGER
	// -------------------------------------------------------------------------------

	// Start derives its own long-lived, cancelable context from what it
	// is given (stopped by lm.Stop below); it must not be a
	// timeout-bound context, or the scheduler and watchers would be
	// torn down as soon as that timeout elapsed.
	if err := lm.Start(context.Background()); err != nil {
		logger.Fatal(brokerLog, "load manager start failed: %v", err)
	}
	logger.Info(brokerLog, "broker %s running (leader=%v)", *host, *isLeader)

	go runPeriodicLoop(brokerLog, lm, cfg, *isLeader)

	// -------------------------------------------------------------------------------
	// BLOCK UNTIL SHUTDOWN SIGNAL
	// -------------------------------------------------------------------------------

	<-sig
	logger.Warn(brokerLog, "shutdown signal received, stopping broker process")
	lm.Stop()
}

// runPeriodicLoop periodically publishes this broker's own data (on
// every instance) and, on a leader instance only, runs one shedding
// pass. A real deployment would trigger selectBrokerForAssignment from
// the namespace-service RPC path, not from a timer; there is no such
// RPC surface in this module, so it is left uncalled here for a real
// caller to invoke through
// loadmanager.LoadManager.SelectBrokerForAssignment.
func runPeriodicLoop(brokerLog *log.Logger, lm *loadmanager.LoadManager, cfg *config.Config, isLeader bool) {
	ticker := time.NewTicker(time.Duration(cfg.ReportUpdateMaxIntervalMinutes) * time.Minute / 4)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := lm.WriteBrokerDataOnZooKeeper(ctx); err != nil {
			logger.Warn(brokerLog, "writeBrokerDataOnZooKeeper: %v", err)
		}
		if isLeader {
			lm.DoLoadShedding(ctx)
		}
		cancel()
	}
}

// noopBundleStatsSource stands in for the serving layer's per-bundle
// stats feed until a real one is wired in; it reports no bundles
// hosted, matching a freshly started broker with nothing assigned yet.
type noopBundleStatsSource struct{}

func (noopBundleStatsSource) Snapshot(context.Context) (map[string]loadmodel.NamespaceBundleStats, error) {
	return nil, nil
}
