package placement

import (
	"fmt"

	"fleetload/internal/loadmodel"
)

// LeastResourceUsage picks the candidate with the lowest current
// maxResourceUsage — the default strategy spec.md §4.4 step 7 names.
type LeastResourceUsage struct{}

func (LeastResourceUsage) Name() string { return "least-resource-usage" }

func (LeastResourceUsage) SelectBroker(candidates []string, _ string, _ *loadmodel.BundleStats, view *loadmodel.LoadView) (string, error) {
	best := ""
	bestUsage := 0.0
	for i, broker := range candidates {
		state, ok := view.Brokers[broker]
		usage := 0.0
		if ok {
			usage = state.LocalData.MaxResourceUsage()
		}
		if i == 0 || usage < bestUsage {
			best = broker
			bestUsage = usage
		}
	}
	if best == "" {
		return "", fmt.Errorf("placement: no candidates to score")
	}
	return best, nil
}

// LeastMessageRate picks the candidate with the lowest summed
// long-term average message rate across its hosted+preallocated
// bundles — supplemented from the source's
// ModularLoadManagerStrategy.create(conf) factory switch, which offers
// more than one scoring strategy (see SPEC_FULL.md).
type LeastMessageRate struct{}

func (LeastMessageRate) Name() string { return "least-message-rate" }

func (LeastMessageRate) SelectBroker(candidates []string, _ string, _ *loadmodel.BundleStats, view *loadmodel.LoadView) (string, error) {
	best := ""
	bestRate := 0.0
	for i, broker := range candidates {
		state, ok := view.Brokers[broker]
		rate := 0.0
		if ok {
			rate = state.TimeAverageData.LongTerm.MsgRateIn + state.TimeAverageData.LongTerm.MsgRateOut
		}
		if i == 0 || rate < bestRate {
			best = broker
			bestRate = rate
		}
	}
	if best == "" {
		return "", fmt.Errorf("placement: no candidates to score")
	}
	return best, nil
}
