package headless

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bakeops/bakeops/api/pkg/types"
)

// Scenario is a self-contained headless day loaded from a YAML or JSON
// file: the bake specs to register, the forecast, the order tape and the
// run options. Clock fields are HH:MM strings.
type Scenario struct {
	Date         string `yaml:"date" json:"date"`
	Mode         string `yaml:"mode" json:"mode"`
	Algorithm    string `yaml:"algorithm" json:"algorithm"`
	IntervalMins int    `yaml:"interval_minutes" json:"interval_minutes"`

	Specs []ScenarioSpec `yaml:"specs" json:"specs"`

	Forecast      map[string]int                  `yaml:"forecast" json:"forecast"`
	Curve         map[string][]ScenarioCurvePoint `yaml:"curve" json:"curve"`
	Par           map[string]ScenarioParRange     `yaml:"par" json:"par"`
	ForecastScale float64                         `yaml:"forecast_scale" json:"forecast_scale"`

	Orders []ScenarioOrder `yaml:"orders" json:"orders"`

	AutoAdd        bool `yaml:"auto_add" json:"auto_add"`
	MaxPerInterval int  `yaml:"max_per_interval" json:"max_per_interval"`
	MinConfidence  int  `yaml:"min_confidence" json:"min_confidence"`
	Condensed      bool `yaml:"condensed" json:"condensed"`
}

// ScenarioSpec is a bake spec as written in a scenario file. Loaded specs
// are always registered active.
type ScenarioSpec struct {
	ItemGUID         string `yaml:"item_guid" json:"item_guid"`
	DisplayName      string `yaml:"display_name" json:"display_name"`
	CapacityPerRack  int    `yaml:"capacity_per_rack" json:"capacity_per_rack"`
	BakeTimeMinutes  int    `yaml:"bake_time_minutes" json:"bake_time_minutes"`
	CoolTimeMinutes  int    `yaml:"cool_time_minutes" json:"cool_time_minutes"`
	Oven             int    `yaml:"oven" json:"oven"`
	RestockThreshold int    `yaml:"restock_threshold" json:"restock_threshold"`
	ParMin           int    `yaml:"par_min" json:"par_min"`
	ParMax           int    `yaml:"par_max" json:"par_max"`
}

// ScenarioCurvePoint is one intraday demand point: the units expected in
// the grid interval starting at Time.
type ScenarioCurvePoint struct {
	Time  string `yaml:"time" json:"time"`
	Units int    `yaml:"units" json:"units"`
}

// ScenarioParRange is the PAR band for one item.
type ScenarioParRange struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// ScenarioOrder is one order on the preset tape, replayed at Time.
type ScenarioOrder struct {
	ItemGUID    string `yaml:"item_guid" json:"item_guid"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	Quantity    int    `yaml:"quantity" json:"quantity"`
	Time        string `yaml:"time" json:"time"`
}

// LoadScenario reads and validates a scenario file. Files ending in .json
// are parsed as JSON, everything else as YAML.
func LoadScenario(filename string) (*Scenario, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	var scenario Scenario
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		if err := json.Unmarshal(data, &scenario); err != nil {
			return nil, fmt.Errorf("failed to parse JSON scenario %s: %w", filename, err)
		}
	default:
		if err := yaml.Unmarshal(data, &scenario); err != nil {
			return nil, fmt.Errorf("failed to parse YAML scenario %s: %w", filename, err)
		}
	}

	if err := scenario.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", filename, err)
	}
	return &scenario, nil
}

func (s *Scenario) validate() error {
	if s.Date == "" {
		return fmt.Errorf("date is required")
	}
	if len(s.Specs) == 0 {
		return fmt.Errorf("at least one bake spec is required")
	}
	for i, spec := range s.Specs {
		if spec.ItemGUID == "" {
			return fmt.Errorf("spec %d needs an item_guid", i)
		}
		if spec.CapacityPerRack <= 0 || spec.BakeTimeMinutes <= 0 {
			return fmt.Errorf("spec %s needs a positive capacity and bake time", spec.ItemGUID)
		}
	}
	for guid, points := range s.Curve {
		for _, point := range points {
			if _, err := types.ParseClock(point.Time); err != nil {
				return fmt.Errorf("curve for %s: %w", guid, err)
			}
		}
	}
	for i, order := range s.Orders {
		if order.ItemGUID == "" {
			return fmt.Errorf("order %d needs an item_guid", i)
		}
		if _, err := types.ParseClock(order.Time); err != nil {
			return fmt.Errorf("order %d: %w", i, err)
		}
	}
	return nil
}

// BakeSpecs converts the scenario's specs for registration with a store.
func (s *Scenario) BakeSpecs() []*types.BakeSpec {
	specs := make([]*types.BakeSpec, 0, len(s.Specs))
	for _, spec := range s.Specs {
		displayName := spec.DisplayName
		if displayName == "" {
			displayName = spec.ItemGUID
		}
		specs = append(specs, &types.BakeSpec{
			ItemGUID:         spec.ItemGUID,
			DisplayName:      displayName,
			CapacityPerRack:  spec.CapacityPerRack,
			BakeTimeMinutes:  spec.BakeTimeMinutes,
			CoolTimeMinutes:  spec.CoolTimeMinutes,
			Oven:             spec.Oven,
			RestockThreshold: spec.RestockThreshold,
			ParMin:           spec.ParMin,
			ParMax:           spec.ParMax,
			Active:           true,
		})
	}
	return specs
}

// RunRequest converts the scenario into the headless run it describes.
func (s *Scenario) RunRequest() (*types.HeadlessRunRequest, error) {
	req := &types.HeadlessRunRequest{
		Date:           s.Date,
		Mode:           types.SimulationMode(s.Mode),
		Algorithm:      types.SuggestionAlgorithm(s.Algorithm),
		IntervalMins:   s.IntervalMins,
		AutoAdd:        s.AutoAdd,
		MaxPerInterval: s.MaxPerInterval,
		MinConfidence:  s.MinConfidence,
		Condensed:      s.Condensed,
	}

	if len(s.Forecast) > 0 || len(s.Curve) > 0 || len(s.Par) > 0 {
		params := &types.ForecastParams{ForecastScale: s.ForecastScale}
		if len(s.Forecast) > 0 {
			params.Forecast = types.DailyForecast(s.Forecast)
		}
		if len(s.Curve) > 0 {
			params.TimeIntervalForecast = make(types.IntradayForecast, len(s.Curve))
			for guid, points := range s.Curve {
				curve := make([]types.TimeIntervalForecast, 0, len(points))
				for _, point := range points {
					interval, err := types.ParseClock(point.Time)
					if err != nil {
						return nil, fmt.Errorf("curve for %s: %w", guid, err)
					}
					curve = append(curve, types.TimeIntervalForecast{
						TimeInterval: interval,
						Forecast:     point.Units,
					})
				}
				params.TimeIntervalForecast[guid] = curve
			}
		}
		if len(s.Par) > 0 {
			params.ParConfig = make(types.ParConfig, len(s.Par))
			for guid, par := range s.Par {
				params.ParConfig[guid] = types.ParRange{ParMin: par.Min, ParMax: par.Max}
			}
		}
		req.ForecastParams = params
	}

	for _, order := range s.Orders {
		minutes, err := types.ParseClock(order.Time)
		if err != nil {
			return nil, err
		}
		displayName := order.DisplayName
		if displayName == "" {
			displayName = order.ItemGUID
		}
		req.PresetOrders = append(req.PresetOrders, &types.PresetOrder{
			ItemGUID:         order.ItemGUID,
			DisplayName:      displayName,
			Quantity:         order.Quantity,
			OrderTimeMinutes: minutes,
		})
	}
	return req, nil
}
