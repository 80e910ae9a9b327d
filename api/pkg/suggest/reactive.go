package suggest

import (
	"fmt"
	"math"
	"sort"

	"github.com/bakeops/bakeops/api/pkg/config"
	"github.com/bakeops/bakeops/api/pkg/types"
)

// ReactiveSuggester ignores the forecast entirely and watches what actually
// sold in the trailing window. When the observed consumption rate would
// drain inventory plus near-term supply inside the depletion threshold, it
// proposes enough batches to hold a buffer of stock. Confidence grows with
// how many units the window observed.
type ReactiveSuggester struct {
	cfg   config.Suggestions
	hours types.BusinessHours
}

func NewReactiveSuggester(cfg config.Suggestions, hours types.BusinessHours) *ReactiveSuggester {
	return &ReactiveSuggester{cfg: cfg, hours: hours}
}

func (s *ReactiveSuggester) Name() types.SuggestionAlgorithm {
	return types.SuggestionAlgorithmReactive
}

func (s *ReactiveSuggester) Propose(state *types.SimulationState, specs map[string]*types.BakeSpec) []*types.Proposal {
	currentTime := state.CurrentTime
	windowMinutes := math.Min(float64(s.cfg.ReactiveWindowMinutes), currentTime-float64(s.hours.StartMinutes))
	if windowMinutes < 1 {
		windowMinutes = 1
	}
	windowStart := currentTime - float64(s.cfg.ReactiveWindowMinutes)

	observed := make(map[string]int)
	for _, event := range state.Events {
		if event.Type != types.EventOrderProcessed && event.Type != types.EventPurchase {
			continue
		}
		if event.Timestamp <= windowStart || event.Timestamp > currentTime {
			continue
		}
		observed[event.ItemGUID] += event.Quantity
	}

	guids := make([]string, 0, len(observed))
	for guid := range observed {
		guids = append(guids, guid)
	}
	sort.Strings(guids)

	var proposals []*types.Proposal
	for _, guid := range guids {
		spec := specs[guid]
		if spec == nil || !spec.Valid() {
			continue
		}

		observedUnits := observed[guid]
		if observedUnits < s.cfg.ReactiveMinObservedUnits {
			continue
		}
		consumptionRate := float64(observedUnits) / windowMinutes
		if consumptionRate < s.cfg.ReactiveMinRate {
			continue
		}

		currentInventory := state.ItemInventory(guid)
		minutesUntilShortage := (float64(currentInventory) + float64(futureSupplyWithin(state, guid, currentTime, s.cfg.ReactiveDepletionMinutes))) / consumptionRate
		if minutesUntilShortage > float64(s.cfg.ReactiveDepletionMinutes) {
			continue
		}

		projectedInventory := float64(currentInventory + futureSupplyWithin(state, guid, currentTime, s.cfg.ReactiveBufferMinutes))
		targetInventory := consumptionRate * float64(s.cfg.ReactiveBufferMinutes)
		shortfall := targetInventory - projectedInventory
		if shortfall < float64(spec.CapacityPerRack)*0.5 {
			continue
		}

		startF := math.Max(currentTime+10, float64(s.hours.StartMinutes))
		start := types.CeilToGrid(int(math.Ceil(startF)))
		if start+spec.BakeTimeMinutes+spec.CoolTimeMinutes > s.hours.EndMinutes {
			continue
		}

		confidence := int(math.Floor(math.Min(1, float64(observedUnits)/float64(s.cfg.ReactiveConfidenceTarget)) * 100))
		shortfallUnits := int(math.Ceil(shortfall))
		count := (shortfallUnits + spec.CapacityPerRack - 1) / spec.CapacityPerRack
		for i := 0; i < count; i++ {
			proposals = append(proposals, &types.Proposal{
				ItemGUID:      guid,
				DisplayName:   spec.DisplayName,
				Quantity:      spec.CapacityPerRack,
				StartTime:     start,
				EndTime:       start + spec.BakeTimeMinutes,
				AvailableTime: start + spec.BakeTimeMinutes + spec.CoolTimeMinutes,
				Reason: types.SuggestionReason{
					Algorithm:          types.SuggestionAlgorithmReactive,
					ConfidencePercent:  confidence,
					ProjectedShortfall: shortfallUnits,
					Message: fmt.Sprintf("selling %.1f units/min, stock runs dry in %.0f minutes",
						consumptionRate, minutesUntilShortage),
				},
			})
		}
	}
	return proposals
}
