package suggest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakeops/bakeops/api/pkg/types"
)

func reactiveState(currentTime float64, inventory int) *types.SimulationState {
	units := make([]types.InventoryUnit, inventory)
	for i := range units {
		units[i] = types.InventoryUnit{AvailableAt: 400, BatchID: "bat_seed"}
	}
	return &types.SimulationState{
		CurrentTime:           currentTime,
		InventoryUnits:        map[string][]types.InventoryUnit{"croissant": units},
		ProcessedOrdersByItem: map[string]*types.ProcessedItemOrders{},
		ParConfig:             types.ParConfig{},
	}
}

func processedEvent(at float64, quantity int) *types.Event {
	return &types.Event{
		Type:      types.EventOrderProcessed,
		Timestamp: at,
		ItemGUID:  "croissant",
		Quantity:  quantity,
	}
}

func availableAt(id string, rack, start, bake, cool, quantity int) *types.Batch {
	b := &types.Batch{
		ID:           id,
		ItemGUID:     "croissant",
		Quantity:     quantity,
		BakeTime:     bake,
		CoolTime:     cool,
		RackPosition: rack,
		Status:       types.BatchStatusScheduled,
	}
	b.SetStart(start)
	return b
}

func TestReactive_ProposesOnSustainedConsumption(t *testing.T) {
	s := NewReactiveSuggester(testSuggestionsConfig(), testHours())

	// 30 units sold in the last 40 minutes against 10 in stock and nothing
	// scheduled: stock runs out in 20 minutes at 0.5 units/min.
	state := reactiveState(600, 10)
	state.Events = []*types.Event{
		processedEvent(560, 10),
		processedEvent(570, 10),
		processedEvent(590, 10),
	}

	proposals := s.Propose(state, croissantSpecs())
	require.Len(t, proposals, 4, "target buffer of 90 units minus 10 on hand needs four racks")

	for _, p := range proposals {
		assert.Equal(t, 620, p.StartTime, "10 minute lead rounds up to the next slot")
		assert.Equal(t, types.SuggestionAlgorithmReactive, p.Reason.Algorithm)
		assert.Equal(t, 100, p.Reason.ConfidencePercent)
		assert.Equal(t, 80, p.Reason.ProjectedShortfall)
	}
}

func TestReactive_IgnoresEventsOutsideWindow(t *testing.T) {
	s := NewReactiveSuggester(testSuggestionsConfig(), testHours())

	state := reactiveState(600, 0)
	state.Events = []*types.Event{
		processedEvent(500, 20), // before the 60 minute window
		processedEvent(560, 5),
	}

	assert.Empty(t, s.Propose(state, croissantSpecs()),
		"only 5 observed units inside the window, under the minimum")
}

func TestReactive_CountsPurchases(t *testing.T) {
	s := NewReactiveSuggester(testSuggestionsConfig(), testHours())

	state := reactiveState(600, 0)
	state.Events = []*types.Event{
		{Type: types.EventPurchase, Timestamp: 590, ItemGUID: "croissant", Quantity: 30},
	}

	proposals := s.Propose(state, croissantSpecs())
	assert.NotEmpty(t, proposals, "manual purchases drive the reactive window too")
}

func TestReactive_RejectsWhenStockOutlastsThreshold(t *testing.T) {
	s := NewReactiveSuggester(testSuggestionsConfig(), testHours())

	state := reactiveState(600, 100)
	state.Events = []*types.Event{processedEvent(590, 30)}

	assert.Empty(t, s.Propose(state, croissantSpecs()),
		"100 units at 0.5/min lasts 200 minutes, over the 90 minute threshold")
}

func TestReactive_NearTermSupplyDefersProposal(t *testing.T) {
	s := NewReactiveSuggester(testSuggestionsConfig(), testHours())

	state := reactiveState(600, 10)
	state.Events = []*types.Event{processedEvent(590, 30)}
	state.Batches = []*types.Batch{
		availableAt("bat_soon", 1, 620, 20, 10, 40),
	}

	// 10 on hand plus 40 available at 650 cover 100 minutes of demand.
	assert.Empty(t, s.Propose(state, croissantSpecs()))
}

func TestReactive_SmallShortfallRejected(t *testing.T) {
	s := NewReactiveSuggester(testSuggestionsConfig(), testHours())

	state := reactiveState(600, 10)
	state.Events = []*types.Event{processedEvent(590, 30)}
	state.Batches = []*types.Batch{
		// Lands at 730: inside the 180 minute buffer window but outside
		// the 90 minute depletion check.
		availableAt("bat_later", 1, 700, 20, 10, 72),
	}

	assert.Empty(t, s.Propose(state, croissantSpecs()),
		"projected 82 against a target of 90 is less than half a rack short")
}

func TestReactive_NoProposalsPastClose(t *testing.T) {
	s := NewReactiveSuggester(testSuggestionsConfig(), testHours())

	state := reactiveState(1000, 0)
	state.Events = []*types.Event{processedEvent(990, 30)}

	assert.Empty(t, s.Propose(state, croissantSpecs()),
		"a batch started now would not cool before close")
}
