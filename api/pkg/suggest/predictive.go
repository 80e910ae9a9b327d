package suggest

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/bakeops/bakeops/api/pkg/config"
	"github.com/bakeops/bakeops/api/pkg/types"
)

// PredictiveSuggester anchors on the intraday forecast: it compares demand
// processed so far against what the curve said should have happened, scales
// the remaining curve by that ratio, and proposes batches when projected
// demand outruns inventory plus everything already in the ovens. Confidence
// grows with how much of the day's expected demand has been observed.
type PredictiveSuggester struct {
	cfg   config.Suggestions
	hours types.BusinessHours
}

func NewPredictiveSuggester(cfg config.Suggestions, hours types.BusinessHours) *PredictiveSuggester {
	return &PredictiveSuggester{cfg: cfg, hours: hours}
}

func (s *PredictiveSuggester) Name() types.SuggestionAlgorithm {
	return types.SuggestionAlgorithmPredictive
}

func (s *PredictiveSuggester) Propose(state *types.SimulationState, specs map[string]*types.BakeSpec) []*types.Proposal {
	guids := make([]string, 0, len(state.TimeIntervalForecast))
	for guid := range state.TimeIntervalForecast {
		guids = append(guids, guid)
	}
	sort.Strings(guids)

	currentTime := state.CurrentTime
	var proposals []*types.Proposal
	for _, guid := range guids {
		curve := state.TimeIntervalForecast[guid]
		if len(curve) == 0 {
			continue
		}
		spec := specs[guid]
		if spec == nil || !spec.Valid() {
			continue
		}

		expected, remainingExpected := 0, 0
		for _, point := range curve {
			if float64(point.TimeInterval) <= currentTime {
				expected += point.Forecast
			} else {
				remainingExpected += point.Forecast
			}
		}

		actual := 0
		if processed := state.ProcessedOrdersByItem[guid]; processed != nil {
			actual = processed.TotalQuantity
		}

		consumptionRatio := 1.0
		switch {
		case expected > 0:
			consumptionRatio = float64(actual) / float64(expected)
		case actual > 0:
			consumptionRatio = 1.5
		}

		projectedRemainingDemand := float64(remainingExpected) * math.Max(1.0, consumptionRatio)
		futureInventory := state.ItemInventory(guid) + scheduledSupply(state, guid)

		shortfall := projectedRemainingDemand - float64(futureInventory)
		if shortfall < 0 {
			shortfall = 0
		}
		parMax := spec.ParMax
		if par, ok := state.ParConfig[guid]; ok {
			parMax = par.ParMax
		}
		if parMax > 0 && futureInventory < parMax {
			shortfall = math.Min(shortfall, float64(parMax-futureInventory))
		}

		confidence := int(math.Floor(math.Min(1, float64(expected)/float64(s.cfg.ConfidenceTargetUnits)) * 100))

		if shortfall <= float64(s.cfg.MinShortfallUnits) {
			continue
		}
		if confidence < s.cfg.MinConfidencePercent {
			log.Debug().
				Str("item_guid", guid).
				Int("confidence", confidence).
				Float64("shortfall", shortfall).
				Msg("predictive shortfall below confidence threshold")
			continue
		}

		// How soon the shortfall bites. The divisor is empirical: heavier
		// over-consumption pulls the restock closer.
		minutesUntilShortfall := 120.0
		if remainingExpected > 0 && consumptionRatio > 0 {
			minutesUntilShortfall = float64(remainingExpected) / math.Max(consumptionRatio*consumptionRatio, 0.01) / 10
			minutesUntilShortfall = math.Min(math.Max(minutesUntilShortfall, float64(s.cfg.PredictiveMinLeadMinutes)), float64(s.cfg.PredictiveMaxLeadMinutes))
		}
		targetAvailable := currentTime + minutesUntilShortfall

		startF := targetAvailable - float64(spec.BakeTimeMinutes+spec.CoolTimeMinutes)
		if earliest := currentTime + 20; startF < earliest {
			startF = earliest
		}
		start := types.CeilToGrid(int(math.Ceil(startF)))
		available := start + spec.BakeTimeMinutes + spec.CoolTimeMinutes
		if available > s.hours.EndMinutes-s.cfg.EndOfDayCutoffMinutes {
			continue
		}

		shortfallUnits := int(math.Ceil(shortfall))
		count := (shortfallUnits + spec.CapacityPerRack - 1) / spec.CapacityPerRack
		for i := 0; i < count; i++ {
			proposals = append(proposals, &types.Proposal{
				ItemGUID:      guid,
				DisplayName:   spec.DisplayName,
				Quantity:      spec.CapacityPerRack,
				StartTime:     start,
				EndTime:       start + spec.BakeTimeMinutes,
				AvailableTime: available,
				Reason: types.SuggestionReason{
					Algorithm:          types.SuggestionAlgorithmPredictive,
					ConfidencePercent:  confidence,
					ProjectedShortfall: shortfallUnits,
					Message: fmt.Sprintf("forecast projects a %d unit shortfall around %s",
						shortfallUnits, types.FormatClockF(targetAvailable)),
				},
			})
		}
	}
	return proposals
}
