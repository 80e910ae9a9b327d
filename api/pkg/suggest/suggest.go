package suggest

import (
	"github.com/bakeops/bakeops/api/pkg/config"
	"github.com/bakeops/bakeops/api/pkg/types"
)

// Suggester proposes restock batches for a running simulation. Proposing is
// pure: implementations never mutate the state and never fail, they return
// an empty list when nothing qualifies. Acceptance is the caller's choice.
type Suggester interface {
	Name() types.SuggestionAlgorithm
	Propose(state *types.SimulationState, specs map[string]*types.BakeSpec) []*types.Proposal
}

// ForAlgorithm returns the suggesters the algorithm selects, in the order
// they should be consulted.
func ForAlgorithm(algorithm types.SuggestionAlgorithm, cfg config.Suggestions, hours types.BusinessHours) []Suggester {
	switch algorithm {
	case types.SuggestionAlgorithmPredictive:
		return []Suggester{NewPredictiveSuggester(cfg, hours)}
	case types.SuggestionAlgorithmReactive:
		return []Suggester{NewReactiveSuggester(cfg, hours)}
	case types.SuggestionAlgorithmBoth:
		return []Suggester{
			NewPredictiveSuggester(cfg, hours),
			NewReactiveSuggester(cfg, hours),
		}
	default:
		return nil
	}
}

// scheduledSupply sums the quantities of the item's placed batches that
// have not become available yet.
func scheduledSupply(state *types.SimulationState, itemGuid string) int {
	total := 0
	for _, b := range state.Batches {
		if b.ItemGUID != itemGuid || !b.Placed() {
			continue
		}
		total += b.Quantity
	}
	return total
}

// futureSupplyWithin sums the quantities of the item's placed batches whose
// availability falls inside (now, now+window].
func futureSupplyWithin(state *types.SimulationState, itemGuid string, now float64, window int) int {
	total := 0
	for _, b := range state.Batches {
		if b.ItemGUID != itemGuid || !b.Placed() {
			continue
		}
		at := float64(b.AvailableTime)
		if at > now && at <= now+float64(window) {
			total += b.Quantity
		}
	}
	return total
}
