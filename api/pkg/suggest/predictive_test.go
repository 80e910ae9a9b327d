package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakeops/bakeops/api/pkg/config"
	"github.com/bakeops/bakeops/api/pkg/types"
)

func testSuggestionsConfig() config.Suggestions {
	return config.Suggestions{
		ConfidenceTargetUnits:    50,
		MinShortfallUnits:        5,
		MinConfidencePercent:     50,
		PredictiveMinLeadMinutes: 60,
		PredictiveMaxLeadMinutes: 300,
		EndOfDayCutoffMinutes:    60,
		ReactiveWindowMinutes:    60,
		ReactiveMinObservedUnits: 10,
		ReactiveMinRate:          0.1,
		ReactiveDepletionMinutes: 90,
		ReactiveBufferMinutes:    180,
		ReactiveConfidenceTarget: 30,
	}
}

func testHours() types.BusinessHours {
	return types.BusinessHours{StartMinutes: 360, EndMinutes: 1020}
}

func croissantSpecs() map[string]*types.BakeSpec {
	return map[string]*types.BakeSpec{
		"croissant": {
			ItemGUID:        "croissant",
			DisplayName:     "Croissant",
			CapacityPerRack: 24,
			BakeTimeMinutes: 20,
			CoolTimeMinutes: 10,
			Active:          true,
		},
	}
}

func predictiveState(currentTime float64, curve []types.TimeIntervalForecast, actual int) *types.SimulationState {
	state := &types.SimulationState{
		CurrentTime:           currentTime,
		TimeIntervalForecast:  types.IntradayForecast{"croissant": curve},
		InventoryUnits:        map[string][]types.InventoryUnit{},
		ProcessedOrdersByItem: map[string]*types.ProcessedItemOrders{},
		ParConfig:             types.ParConfig{},
	}
	if actual > 0 {
		state.ProcessedOrdersByItem["croissant"] = &types.ProcessedItemOrders{
			ItemGUID:      "croissant",
			TotalQuantity: actual,
		}
	}
	return state
}

func TestPredictive_LowConfidenceSuppressesProposals(t *testing.T) {
	s := NewPredictiveSuggester(testSuggestionsConfig(), testHours())

	// 08:30 with only 10 of the day's units expected so far: a real
	// shortfall is projected but confidence is 20, under the threshold.
	state := predictiveState(510, []types.TimeIntervalForecast{
		{TimeInterval: 480, Forecast: 10},
		{TimeInterval: 600, Forecast: 60},
	}, 0)

	proposals := s.Propose(state, croissantSpecs())
	assert.Empty(t, proposals)
}

func TestPredictive_FullConfidenceProposals(t *testing.T) {
	s := NewPredictiveSuggester(testSuggestionsConfig(), testHours())

	// 09:30, expected 60 and actual 45: confidence 100, remaining demand
	// of 30 against no supply means two rack-sized proposals.
	state := predictiveState(570, []types.TimeIntervalForecast{
		{TimeInterval: 480, Forecast: 60},
		{TimeInterval: 720, Forecast: 30},
	}, 45)

	proposals := s.Propose(state, croissantSpecs())
	require.Len(t, proposals, 2)

	for _, p := range proposals {
		assert.Equal(t, "croissant", p.ItemGUID)
		assert.Equal(t, 24, p.Quantity)
		assert.Equal(t, 600, p.StartTime, "lead time clamps to 60 minutes")
		assert.Equal(t, 630, p.AvailableTime)
		assert.Equal(t, types.SuggestionAlgorithmPredictive, p.Reason.Algorithm)
		assert.Equal(t, 100, p.Reason.ConfidencePercent)
		assert.Equal(t, 30, p.Reason.ProjectedShortfall)
	}
	assert.Equal(t, proposals[0].StartTime, proposals[1].StartTime, "all proposals share one start")
}

func TestPredictive_ScheduledBatchesCountAsSupply(t *testing.T) {
	s := NewPredictiveSuggester(testSuggestionsConfig(), testHours())

	state := predictiveState(570, []types.TimeIntervalForecast{
		{TimeInterval: 480, Forecast: 60},
		{TimeInterval: 720, Forecast: 30},
	}, 45)
	oven := &types.Batch{
		ID:           "bat_active",
		ItemGUID:     "croissant",
		Quantity:     24,
		BakeTime:     20,
		CoolTime:     10,
		RackPosition: 1,
		Status:       types.BatchStatusBaking,
	}
	oven.SetStart(560)
	state.Batches = []*types.Batch{oven}

	// 30 projected minus 24 already in the oven leaves 6, one rack.
	proposals := s.Propose(state, croissantSpecs())
	require.Len(t, proposals, 1)
	assert.Equal(t, 6, proposals[0].Reason.ProjectedShortfall)

	second := &types.Batch{
		ID:           "bat_active2",
		ItemGUID:     "croissant",
		Quantity:     24,
		BakeTime:     20,
		CoolTime:     10,
		RackPosition: 2,
		Status:       types.BatchStatusScheduled,
	}
	second.SetStart(600)
	state.Batches = append(state.Batches, second)

	proposals = s.Propose(state, croissantSpecs())
	assert.Empty(t, proposals, "48 scheduled units cover the projection")
}

func TestPredictive_ParMaxCapsShortfall(t *testing.T) {
	s := NewPredictiveSuggester(testSuggestionsConfig(), testHours())

	state := predictiveState(570, []types.TimeIntervalForecast{
		{TimeInterval: 480, Forecast: 60},
		{TimeInterval: 720, Forecast: 30},
	}, 45)
	state.ParConfig["croissant"] = types.ParRange{ParMin: 0, ParMax: 20}

	proposals := s.Propose(state, croissantSpecs())
	require.Len(t, proposals, 1, "shortfall capped at parMax leaves one rack")
	assert.Equal(t, 20, proposals[0].Reason.ProjectedShortfall)
}

func TestPredictive_NoBatchesInsideClosingHour(t *testing.T) {
	s := NewPredictiveSuggester(testSuggestionsConfig(), testHours())

	// 15:00, remaining demand at 16:00. The lead clamp lands the batch
	// availability at 16:10, inside the last hour before close.
	state := predictiveState(900, []types.TimeIntervalForecast{
		{TimeInterval: 480, Forecast: 60},
		{TimeInterval: 960, Forecast: 30},
	}, 60)

	proposals := s.Propose(state, croissantSpecs())
	assert.Empty(t, proposals)
}

func TestPredictive_NoCurveNoProposals(t *testing.T) {
	s := NewPredictiveSuggester(testSuggestionsConfig(), testHours())

	state := &types.SimulationState{
		CurrentTime:           500,
		TimeIntervalForecast:  types.IntradayForecast{},
		InventoryUnits:        map[string][]types.InventoryUnit{},
		ProcessedOrdersByItem: map[string]*types.ProcessedItemOrders{},
	}
	assert.Empty(t, s.Propose(state, croissantSpecs()))
}
