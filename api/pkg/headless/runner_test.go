package headless

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakeops/bakeops/api/pkg/config"
	"github.com/bakeops/bakeops/api/pkg/simulation"
	"github.com/bakeops/bakeops/api/pkg/store/memorystore"
	"github.com/bakeops/bakeops/api/pkg/types"
)

func headlessTestConfig() *config.ServerConfig {
	return &config.ServerConfig{
		BusinessHours: config.BusinessHours{StartMinutes: 360, EndMinutes: 1020},
		Ovens:         config.Ovens{OvenCount: 2, RacksPerOven: 6},
		Planner:       config.Planner{MaxSlotAdvances: 5},
		Suggestions: config.Suggestions{
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
		},
		Simulation: config.Simulation{
			DriverTick:         100 * time.Millisecond,
			CleanupInterval:    10 * time.Minute,
			TTL:                time.Hour,
			AdvanceConcurrency: 4,
			MirrorAttempts:     2,
		},
		Catering: config.Catering{MinLeadMinutes: 120, MaxStaggerMinutes: 120},
	}
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	db := memorystore.New()
	_, err := db.CreateBakeSpec(context.Background(), &types.BakeSpec{
		ItemGUID:        "croissant",
		DisplayName:     "Croissant",
		CapacityPerRack: 24,
		BakeTimeMinutes: 20,
		CoolTimeMinutes: 10,
		Oven:            1,
		Active:          true,
	})
	require.NoError(t, err)
	cfg := headlessTestConfig()
	mgr, err := simulation.NewManager(cfg, &simulation.ManagerParams{Store: db})
	require.NoError(t, err)
	return NewRunner(cfg, mgr)
}

func TestRun_PresetDayIsDeterministic(t *testing.T) {
	req := &types.HeadlessRunRequest{
		Date:         "2026-03-14",
		Mode:         types.SimulationModePreset,
		Algorithm:    types.SuggestionAlgorithmPredictive,
		IntervalMins: 60,
		ForecastParams: &types.ForecastParams{
			Forecast: types.DailyForecast{"croissant": 40},
		},
		PresetOrders: []*types.PresetOrder{
			{ItemGUID: "croissant", DisplayName: "Croissant", Quantity: 10, OrderTimeMinutes: 540},
			{ItemGUID: "croissant", DisplayName: "Croissant", Quantity: 30, OrderTimeMinutes: 700},
		},
	}

	report, err := newTestRunner(t).Run(context.Background(), req)
	require.NoError(t, err)

	// eleven hour-long jumps cover 06:00 to 17:00
	require.Len(t, report.Steps, 11)
	assert.Equal(t, "07:00", report.Steps[0].Time)
	assert.Equal(t, "17:00", report.Steps[len(report.Steps)-1].Time)

	// 40 forecast units fit in two full racks, both out of the oven long
	// before either order fires
	assert.Equal(t, 2, report.Totals.BatchesStarted)
	assert.Equal(t, 40, report.Totals.ItemsProcessed)
	assert.Equal(t, 0, report.Totals.ItemsMissed)
	assert.Equal(t, 8, report.Totals.FinalInventory)

	require.Len(t, report.Items, 1)
	assert.Equal(t, "croissant", report.Items[0].ItemGUID)
	assert.Equal(t, "Croissant", report.Items[0].DisplayName)
	assert.Equal(t, 40, report.Items[0].ItemsProcessed)
	assert.Equal(t, 8, report.Items[0].FinalInventory)

	again, err := newTestRunner(t).Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, report.Steps, again.Steps)
	assert.Equal(t, report.Items, again.Items)
	assert.Equal(t, report.Totals, again.Totals)
}

func TestRun_AutoAddRestocksAgainstTheCurve(t *testing.T) {
	// One planned rack of 24 is sold out by 06:35 while the curve still
	// promises 80 more units, so the predictive engine keeps proposing
	// restocks until supply covers the remaining demand.
	req := &types.HeadlessRunRequest{
		Date:           "2026-03-14",
		Mode:           types.SimulationModePreset,
		Algorithm:      types.SuggestionAlgorithmPredictive,
		IntervalMins:   60,
		AutoAdd:        true,
		MaxPerInterval: 2,
		MinConfidence:  50,
		ForecastParams: &types.ForecastParams{
			Forecast: types.DailyForecast{"croissant": 24},
			TimeIntervalForecast: types.IntradayForecast{
				"croissant": {
					{TimeInterval: 380, Forecast: 30},
					{TimeInterval: 600, Forecast: 40},
					{TimeInterval: 700, Forecast: 40},
				},
			},
		},
		PresetOrders: []*types.PresetOrder{
			{ItemGUID: "croissant", DisplayName: "Croissant", Quantity: 24, OrderTimeMinutes: 395},
			{ItemGUID: "croissant", DisplayName: "Croissant", Quantity: 40, OrderTimeMinutes: 605},
			{ItemGUID: "croissant", DisplayName: "Croissant", Quantity: 40, OrderTimeMinutes: 705},
		},
	}

	report, err := newTestRunner(t).Run(context.Background(), req)
	require.NoError(t, err)

	// the first consult sees an 80 unit shortfall: four rack proposals,
	// capped at two accepts per interval
	assert.Equal(t, 4, report.Steps[0].Proposals)
	assert.Equal(t, 2, report.Steps[0].Accepted)
	for _, step := range report.Steps {
		assert.LessOrEqual(t, step.Accepted, 2, "step %s", step.Time)
	}

	assert.Equal(t, 6, report.Totals.Proposals)
	assert.Equal(t, 4, report.Totals.Accepted)
	assert.Equal(t, 4, report.Totals.SuggestionsAccepted)

	// restocked supply covers every order of the day
	assert.Equal(t, 104, report.Totals.ItemsProcessed)
	assert.Equal(t, 0, report.Totals.ItemsMissed)
	assert.Equal(t, 5, report.Totals.BatchesStarted)
	assert.Equal(t, 96, report.Totals.PeakInventory)
	assert.Equal(t, 16, report.Totals.FinalInventory)
}

func TestRun_WithoutAutoAddOnlyCounts(t *testing.T) {
	req := &types.HeadlessRunRequest{
		Date:         "2026-03-14",
		Mode:         types.SimulationModePreset,
		IntervalMins: 60,
		ForecastParams: &types.ForecastParams{
			Forecast: types.DailyForecast{"croissant": 24},
			TimeIntervalForecast: types.IntradayForecast{
				"croissant": {
					{TimeInterval: 380, Forecast: 30},
					{TimeInterval: 600, Forecast: 40},
				},
			},
		},
		PresetOrders: []*types.PresetOrder{
			{ItemGUID: "croissant", DisplayName: "Croissant", Quantity: 24, OrderTimeMinutes: 395},
		},
	}

	report, err := newTestRunner(t).Run(context.Background(), req)
	require.NoError(t, err)

	assert.Greater(t, report.Totals.Proposals, 0)
	assert.Equal(t, 0, report.Totals.Accepted)
	assert.Equal(t, 0, report.Totals.SuggestionsAccepted)
	assert.Equal(t, 1, report.Totals.BatchesStarted, "nothing beyond the planned rack")
}

func TestRun_DefaultsAndValidation(t *testing.T) {
	runner := newTestRunner(t)
	ctx := context.Background()

	_, err := runner.Run(ctx, nil)
	assert.True(t, types.IsKind(err, types.ErrorKindInvalidInput), "nil request: %v", err)

	_, err = runner.Run(ctx, &types.HeadlessRunRequest{
		Date: "2026-03-14", Mode: types.SimulationModeManual, Algorithm: "turbo",
	})
	assert.True(t, types.IsKind(err, types.ErrorKindInvalidInput), "unknown algorithm: %v", err)

	_, err = runner.Run(ctx, &types.HeadlessRunRequest{
		Date: "2026-03-14", Mode: types.SimulationModeManual, MinConfidence: 150,
	})
	assert.True(t, types.IsKind(err, types.ErrorKindInvalidInput), "confidence out of range: %v", err)

	_, err = runner.Run(ctx, &types.HeadlessRunRequest{
		Date: "2026-03-14", Mode: types.SimulationModeManual,
	})
	assert.True(t, types.IsKind(err, types.ErrorKindNotFound), "no stored schedule: %v", err)

	// zero values fall back to one grid slot, two accepts and predictive
	report, err := runner.Run(ctx, &types.HeadlessRunRequest{
		Date:           "2026-03-14",
		Mode:           types.SimulationModeManual,
		Condensed:      true,
		ForecastParams: &types.ForecastParams{Forecast: types.DailyForecast{"croissant": 24}},
	})
	require.NoError(t, err)
	assert.Equal(t, types.GridMinutes, report.IntervalMins)
	assert.Equal(t, 2, report.MaxPerInterval)
	assert.Equal(t, types.SuggestionAlgorithmPredictive, report.Algorithm)
	assert.Nil(t, report.Steps, "condensed reports drop the step table")
	assert.Equal(t, types.SimulationModeManual, report.Mode)
}

func TestWriteReport(t *testing.T) {
	report := &types.HeadlessReport{
		SimulationID:   "sim_test",
		Date:           "2026-03-14",
		Mode:           types.SimulationModePreset,
		Algorithm:      types.SuggestionAlgorithmBoth,
		IntervalMins:   60,
		AutoAdd:        true,
		MaxPerInterval: 2,
		MinConfidence:  50,
		Steps: []types.HeadlessStep{
			{Time: "07:00", Proposals: 4, Accepted: 2, TotalInventory: 0, ItemsProcessed: 24, ActiveBatches: 2},
		},
		Items: []types.HeadlessItemSummary{
			{ItemGUID: "croissant", DisplayName: "Croissant", ItemsProcessed: 104, FinalInventory: 16},
		},
		Totals:   types.HeadlessTotals{BatchesStarted: 5, ItemsProcessed: 104, PeakInventory: 96, FinalInventory: 16, SuggestionsAccepted: 4},
		Duration: 1500 * time.Microsecond,
	}

	var buf bytes.Buffer
	WriteReport(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "Simulation sim_test")
	assert.Contains(t, out, "TIME")
	assert.Contains(t, out, "07:00")
	assert.Contains(t, out, "Croissant")
	assert.Contains(t, out, "104 processed")
	assert.Contains(t, out, "(4 from suggestions)")
	assert.Contains(t, out, "Ran in 2ms")

	// condensed rendering drops the step table
	report.Condensed = true
	report.Steps = nil
	buf.Reset()
	WriteReport(&buf, report)
	assert.False(t, strings.Contains(buf.String(), "07:00"))
}
