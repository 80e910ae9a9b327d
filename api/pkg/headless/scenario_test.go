package headless

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakeops/bakeops/api/pkg/types"
)

const scenarioYAML = `date: "2026-03-14"
mode: preset
algorithm: predictive
interval_minutes: 60
auto_add: true
max_per_interval: 2
min_confidence: 50

specs:
  - item_guid: croissant
    display_name: Croissant
    capacity_per_rack: 24
    bake_time_minutes: 20
    cool_time_minutes: 10
    oven: 1
    restock_threshold: 5
    par_min: 6
    par_max: 40
  - item_guid: rye-loaf
    capacity_per_rack: 12
    bake_time_minutes: 40
    cool_time_minutes: 20
    oven: 2

forecast:
  croissant: 120
  rye-loaf: 24

curve:
  croissant:
    - time: "06:20"
      units: 30
    - time: "10:00"
      units: 40

par:
  croissant:
    min: 6
    max: 40

orders:
  - item_guid: croissant
    display_name: Croissant
    quantity: 24
    time: "06:35"
  - item_guid: rye-loaf
    quantity: 6
    time: "11:40"
`

func writeScenarioFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_YAML(t *testing.T) {
	scenario, err := LoadScenario(writeScenarioFile(t, "day.yaml", scenarioYAML))
	require.NoError(t, err)

	assert.Equal(t, "2026-03-14", scenario.Date)
	assert.Equal(t, "preset", scenario.Mode)
	assert.Equal(t, 60, scenario.IntervalMins)
	assert.True(t, scenario.AutoAdd)
	require.Len(t, scenario.Specs, 2)
	require.Len(t, scenario.Orders, 2)

	specs := scenario.BakeSpecs()
	require.Len(t, specs, 2)
	assert.Equal(t, "croissant", specs[0].ItemGUID)
	assert.Equal(t, 5, specs[0].RestockThreshold)
	assert.True(t, specs[0].Active)
	// display name falls back to the guid
	assert.Equal(t, "rye-loaf", specs[1].DisplayName)
	assert.True(t, specs[1].Active)

	req, err := scenario.RunRequest()
	require.NoError(t, err)
	assert.Equal(t, types.SimulationModePreset, req.Mode)
	assert.Equal(t, types.SuggestionAlgorithmPredictive, req.Algorithm)
	assert.Equal(t, 60, req.IntervalMins)
	assert.Equal(t, 2, req.MaxPerInterval)
	assert.Equal(t, 50, req.MinConfidence)

	require.NotNil(t, req.ForecastParams)
	assert.Equal(t, types.DailyForecast{"croissant": 120, "rye-loaf": 24}, req.ForecastParams.Forecast)
	require.Len(t, req.ForecastParams.TimeIntervalForecast["croissant"], 2)
	assert.Equal(t, types.TimeIntervalForecast{TimeInterval: 380, Forecast: 30},
		req.ForecastParams.TimeIntervalForecast["croissant"][0])
	assert.Equal(t, types.ParRange{ParMin: 6, ParMax: 40}, req.ForecastParams.ParConfig["croissant"])

	require.Len(t, req.PresetOrders, 2)
	assert.Equal(t, 395, req.PresetOrders[0].OrderTimeMinutes)
	assert.Equal(t, "rye-loaf", req.PresetOrders[1].DisplayName)
	assert.Equal(t, 700, req.PresetOrders[1].OrderTimeMinutes)
}

func TestLoadScenario_JSON(t *testing.T) {
	content := `{
		"date": "2026-03-14",
		"mode": "manual",
		"specs": [
			{"item_guid": "croissant", "capacity_per_rack": 24, "bake_time_minutes": 20, "cool_time_minutes": 10}
		],
		"forecast": {"croissant": 40}
	}`
	scenario, err := LoadScenario(writeScenarioFile(t, "day.json", content))
	require.NoError(t, err)

	assert.Equal(t, "manual", scenario.Mode)
	req, err := scenario.RunRequest()
	require.NoError(t, err)
	require.NotNil(t, req.ForecastParams)
	assert.Equal(t, 40, req.ForecastParams.Forecast["croissant"])
	assert.Nil(t, req.PresetOrders)
}

func TestLoadScenario_Errors(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadScenario(writeScenarioFile(t, "bad.yaml", "{{{"))
	require.Error(t, err)

	_, err = LoadScenario(writeScenarioFile(t, "nodate.yaml", `
specs:
  - item_guid: croissant
    capacity_per_rack: 24
    bake_time_minutes: 20
`))
	require.ErrorContains(t, err, "date is required")

	_, err = LoadScenario(writeScenarioFile(t, "nospecs.yaml", `date: "2026-03-14"`))
	require.ErrorContains(t, err, "at least one bake spec")

	_, err = LoadScenario(writeScenarioFile(t, "badcap.yaml", `
date: "2026-03-14"
specs:
  - item_guid: croissant
    bake_time_minutes: 20
`))
	require.ErrorContains(t, err, "positive capacity")

	_, err = LoadScenario(writeScenarioFile(t, "badtime.yaml", `
date: "2026-03-14"
specs:
  - item_guid: croissant
    capacity_per_rack: 24
    bake_time_minutes: 20
orders:
  - item_guid: croissant
    quantity: 5
    time: noon
`))
	require.ErrorContains(t, err, "order 0")
}
