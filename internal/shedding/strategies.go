package shedding

import (
	"time"

	"fleetload/internal/config"
	"fleetload/internal/loadmodel"
)

// OverloadShedder proposes one bundle per overloaded broker: the one
// with the highest combined message rate in the broker's last
// reported stats (LocalData.LastStats), on the theory
// that shedding its biggest contributor gives the broker the fastest
// relief. Grounded on the source's OverloadShedder.
type OverloadShedder struct{}

func (OverloadShedder) Name() string { return "overload-shedder" }

func (OverloadShedder) FindBundlesForUnloading(view *loadmodel.LoadView, cfg *config.Config, now time.Time) []Candidate {
	threshold := cfg.BrokerOverloadedThresholdPercentage / 100
	grace := time.Duration(cfg.SheddingGracePeriodMinutes) * time.Minute

	var candidates []Candidate
	for broker, state := range view.Brokers {
		if state.LocalData.MaxResourceUsage() <= threshold {
			continue
		}

		var pick string
		var pickRate float64
		for bundle, sample := range state.LocalData.LastStats {
			if unloadedAt, ok := view.RecentlyUnloadedBundles[bundle]; ok && now.Sub(unloadedAt) < grace {
				continue
			}
			rate := sample.MsgRateIn + sample.MsgRateOut
			if pick == "" || rate > pickRate {
				pick = bundle
				pickRate = rate
			}
		}
		if pick != "" {
			candidates = append(candidates, Candidate{Bundle: pick, Broker: broker})
		}
	}
	return candidates
}

// UnderloadedBrokerShedder proposes moving one bundle away from the
// most-loaded broker toward relieving fleet-wide imbalance whenever
// any broker sits well below the overload threshold while another
// exceeds it — the ThresholdShedder-equivalent named in
// SPEC_FULL.md's SUPPLEMENTED FEATURES, renamed to avoid the source's
// own class name.
type UnderloadedBrokerShedder struct {
	// UnderloadFraction is how far below overloadThreshold a broker
	// must sit to count as "underloaded" and justify shedding onto it.
	UnderloadFraction float64
}

func (UnderloadedBrokerShedder) Name() string { return "underloaded-broker-shedder" }

func (s UnderloadedBrokerShedder) FindBundlesForUnloading(view *loadmodel.LoadView, cfg *config.Config, now time.Time) []Candidate {
	overloadThreshold := cfg.BrokerOverloadedThresholdPercentage / 100
	underloadFraction := s.UnderloadFraction
	if underloadFraction == 0 {
		underloadFraction = 0.5
	}
	underloadThreshold := overloadThreshold * underloadFraction
	grace := time.Duration(cfg.SheddingGracePeriodMinutes) * time.Minute

	hasUnderloaded := false
	for _, state := range view.Brokers {
		if state.LocalData.MaxResourceUsage() < underloadThreshold {
			hasUnderloaded = true
			break
		}
	}
	if !hasUnderloaded {
		return nil
	}

	var mostLoadedBroker string
	var mostLoadedUsage float64
	for broker, state := range view.Brokers {
		usage := state.LocalData.MaxResourceUsage()
		if usage <= overloadThreshold {
			continue
		}
		if mostLoadedBroker == "" || usage > mostLoadedUsage {
			mostLoadedBroker = broker
			mostLoadedUsage = usage
		}
	}
	if mostLoadedBroker == "" {
		return nil
	}

	state := view.Brokers[mostLoadedBroker]
	var pick string
	var pickRate float64
	for bundle, sample := range state.LocalData.LastStats {
		if unloadedAt, ok := view.RecentlyUnloadedBundles[bundle]; ok && now.Sub(unloadedAt) < grace {
			continue
		}
		rate := sample.MsgRateIn + sample.MsgRateOut
		if pick == "" || rate > pickRate {
			pick = bundle
			pickRate = rate
		}
	}
	if pick == "" {
		return nil
	}
	return []Candidate{{Bundle: pick, Broker: mostLoadedBroker}}
}
