package placement

import (
	"sort"

	"fleetload/internal/loadmodel"
)

// VersionFilter excludes brokers whose reported version differs from
// the plurality (majority) version among the candidates (spec.md
// §4.4 step 5). Tie-break: first-seen version, iterating candidates in
// sorted broker-name order, wins — see DESIGN.md's Open Questions
// resolved section.
type VersionFilter struct{}

func (VersionFilter) Name() string { return "version" }

func (VersionFilter) Apply(candidates []string, _ string, _ *loadmodel.BundleStats, view *loadmodel.LoadView) ([]string, error) {
	if len(candidates) < 2 {
		return candidates, nil
	}

	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)

	counts := make(map[string]int, len(sorted))
	firstSeen := make(map[string]int, len(sorted))
	for i, broker := range sorted {
		state, ok := view.Brokers[broker]
		if !ok {
			continue
		}
		version := state.LocalData.BrokerVersion
		counts[version]++
		if _, seen := firstSeen[version]; !seen {
			firstSeen[version] = i
		}
	}

	majority := ""
	best := -1
	bestFirstSeen := len(sorted)
	for version, count := range counts {
		if count > best || (count == best && firstSeen[version] < bestFirstSeen) {
			majority = version
			best = count
			bestFirstSeen = firstSeen[version]
		}
	}

	kept := make([]string, 0, len(candidates))
	for _, broker := range candidates {
		state, ok := view.Brokers[broker]
		if !ok || state.LocalData.BrokerVersion == majority {
			kept = append(kept, broker)
		}
	}
	return kept, nil
}
