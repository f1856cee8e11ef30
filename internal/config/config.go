// ===================================================================================
// FLEETLOAD – CONFIGURATION LOADER
// ===================================================================================
//
// This file provides low-level configuration parsing utilities for the fleet
// load manager.
//
// From a systems perspective:
//
// - Configuration is read from a plain-text file, one KEY=VALUE pair per line
// - The format is intentionally simple to avoid external dependencies
// - Validation is performed eagerly at startup to fail fast on misconfiguration
// - Unset keys fall back to defaults matching the source load manager
//
// Expected file format (blank lines and lines starting with '#' are ignored):
//
//	REPORT_UPDATE_MAX_INTERVAL_MINUTES=15
//	REPORT_UPDATE_THRESHOLD_PERCENTAGE=10
//	BROKER_OVERLOADED_THRESHOLD_PERCENTAGE=85
//	SHEDDING_GRACE_PERIOD_MINUTES=30
//	SHEDDING_ENABLED=true
//
// This package performs no caching and no runtime reloading.
// Configuration is assumed to be static for the lifetime of the process.
//
// ===================================================================================

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds every knob spec.md §6 names, plus the window sizes and
// default-bundle-stats constants from spec.md §3/§4.3.
type Config struct {
	// ReportUpdateMaxIntervalMinutes is the publish-ceiling: the local
	// reporter always publishes once this many minutes have elapsed
	// since the last publish, regardless of deltas.
	ReportUpdateMaxIntervalMinutes int

	// ReportUpdateThresholdPercentage is the publish predicate's change
	// threshold (see spec.md §4.1).
	ReportUpdateThresholdPercentage float64

	// BrokerOverloadedThresholdPercentage gates the placement overload
	// guard (spec.md §4.4 step 8).
	BrokerOverloadedThresholdPercentage float64

	// SheddingGracePeriodMinutes is how long a bundle stays in
	// recentlyUnloadedBundles after being shed.
	SheddingGracePeriodMinutes int

	// SheddingEnabled is the "unload disabled" switch from spec.md §4.5.
	SheddingEnabled bool

	// NumShortSamples / NumLongSamples are N_SHORT / N_LONG from spec.md §3.
	NumShortSamples int
	NumLongSamples  int

	// DefaultMessageRate / DefaultMessageThroughput seed BundleStats for
	// bundles never seen before (spec.md §4.3).
	DefaultMessageRate       float64
	DefaultMessageThroughput float64
}

// Default returns the configuration the source load manager ships with
// when no override file is present.
func Default() *Config {
	return &Config{
		ReportUpdateMaxIntervalMinutes:       15,
		ReportUpdateThresholdPercentage:      10,
		BrokerOverloadedThresholdPercentage:  85,
		SheddingGracePeriodMinutes:           30,
		SheddingEnabled:                      true,
		NumShortSamples:                      10,
		NumLongSamples:                       1000,
		DefaultMessageRate:                   50,
		DefaultMessageThroughput:             50000,
	}
}

// Load reads a KEY=VALUE configuration file, starting from Default()
// and overriding whichever keys are present. A missing file is not an
// error: Default() is returned unchanged, matching the "static
// configuration, eager fail-fast validation" design but letting a
// broker start with no override file at all.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("config: %s:%d: expected KEY=VALUE, got %q", path, lineNo, line)
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])

		if err := applyKey(cfg, key, val); err != nil {
			return nil, fmt.Errorf("config: %s:%d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	return cfg, validate(cfg)
}

func applyKey(cfg *Config, key, val string) error {
	switch key {
	case "REPORT_UPDATE_MAX_INTERVAL_MINUTES":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		cfg.ReportUpdateMaxIntervalMinutes = n
	case "REPORT_UPDATE_THRESHOLD_PERCENTAGE":
		n, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number: %w", key, err)
		}
		cfg.ReportUpdateThresholdPercentage = n
	case "BROKER_OVERLOADED_THRESHOLD_PERCENTAGE":
		n, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number: %w", key, err)
		}
		cfg.BrokerOverloadedThresholdPercentage = n
	case "SHEDDING_GRACE_PERIOD_MINUTES":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		cfg.SheddingGracePeriodMinutes = n
	case "SHEDDING_ENABLED":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%s must be a boolean: %w", key, err)
		}
		cfg.SheddingEnabled = b
	case "NUM_SHORT_SAMPLES":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		cfg.NumShortSamples = n
	case "NUM_LONG_SAMPLES":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		cfg.NumLongSamples = n
	case "DEFAULT_MESSAGE_RATE":
		n, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number: %w", key, err)
		}
		cfg.DefaultMessageRate = n
	case "DEFAULT_MESSAGE_THROUGHPUT":
		n, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number: %w", key, err)
		}
		cfg.DefaultMessageThroughput = n
	default:
		return fmt.Errorf("unknown configuration key %q", key)
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.ReportUpdateMaxIntervalMinutes <= 0 {
		return fmt.Errorf("REPORT_UPDATE_MAX_INTERVAL_MINUTES must be greater than 0")
	}
	if cfg.NumShortSamples <= 0 || cfg.NumLongSamples <= 0 {
		return fmt.Errorf("NUM_SHORT_SAMPLES and NUM_LONG_SAMPLES must be greater than 0")
	}
	if cfg.NumShortSamples > cfg.NumLongSamples {
		return fmt.Errorf("NUM_SHORT_SAMPLES must not exceed NUM_LONG_SAMPLES")
	}
	return nil
}
