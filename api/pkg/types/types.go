package types

import (
	"time"

	"gorm.io/datatypes"
)

// BakeSpec describes how one menu item is produced: how many units fit on a
// rack, how long it bakes and cools, which oven it is allowed in, and the
// PAR inventory targets the planner schedules against. Specs are read-only
// to the production core and immutable for the duration of a simulation.
type BakeSpec struct {
	ItemGUID           string    `json:"item_guid" gorm:"primaryKey;column:item_guid"`
	DisplayName        string    `json:"display_name"`
	CapacityPerRack    int       `json:"capacity_per_rack"`
	BakeTimeMinutes    int       `json:"bake_time_minutes"`
	CoolTimeMinutes    int       `json:"cool_time_minutes"`
	Oven               int       `json:"oven"` // 1 or 2; 0 means either oven
	FreshWindowMinutes int       `json:"fresh_window_minutes"`
	RestockThreshold   int       `json:"restock_threshold"`
	ParMin             int       `json:"par_min"`
	ParMax             int       `json:"par_max"` // 0 means unset
	Active             bool      `json:"active"`
	Created            time.Time `json:"created"`
	Updated            time.Time `json:"updated"`
}

func (BakeSpec) TableName() string {
	return "bake_specs"
}

// Valid reports whether the spec carries the fields scheduling needs.
func (s *BakeSpec) Valid() bool {
	return s.CapacityPerRack > 0 && s.BakeTimeMinutes > 0 && s.CoolTimeMinutes >= 0
}

// Batch is one scheduled oven use: one rack, one item, one grid-aligned
// start, for BakeTime minutes. Times are minutes since midnight.
type Batch struct {
	ID              string      `json:"id"`
	ItemGUID        string      `json:"item_guid"`
	DisplayName     string      `json:"display_name"`
	Quantity        int         `json:"quantity"`
	BakeTime        int         `json:"bake_time"`
	CoolTime        int         `json:"cool_time"`
	Oven            int         `json:"oven"`          // resolved 1..OvenCount once placed
	RackPosition    int         `json:"rack_position"` // 1..TotalRacks; 0 means unplaced
	StartTime       int         `json:"start_time"`
	EndTime         int         `json:"end_time"`
	AvailableTime   int         `json:"available_time"`
	Status          BatchStatus `json:"status"`
	IsCatering      bool        `json:"is_catering,omitempty"`
	CateringOrderID string      `json:"catering_order_id,omitempty"`
}

// Placed reports whether the batch has been assigned a rack.
func (b *Batch) Placed() bool {
	return b.RackPosition > 0
}

// SetStart moves the batch to a new start time, keeping the derived
// end/available times consistent.
func (b *Batch) SetStart(startTime int) {
	b.StartTime = startTime
	b.EndTime = startTime + b.BakeTime
	b.AvailableTime = b.EndTime + b.CoolTime
}

// Overlaps applies the half-open interval test to two batches. Only
// meaningful for batches on the same rack.
func (b *Batch) Overlaps(other *Batch) bool {
	return b.StartTime < other.EndTime && other.StartTime < b.EndTime
}

// TimeIntervalForecast is one point of an intraday demand curve: the grid
// interval (minutes since midnight) and the units expected in it.
type TimeIntervalForecast struct {
	TimeInterval int `json:"time_interval"`
	Forecast     int `json:"forecast"`
}

// DailyForecast maps item guid to the total units forecast for the day.
type DailyForecast map[string]int

// IntradayForecast maps item guid to its intraday demand curve, sorted by
// time interval.
type IntradayForecast map[string][]TimeIntervalForecast

// ParRange is the PAR inventory band for one item.
type ParRange struct {
	ParMin int `json:"par_min"`
	ParMax int `json:"par_max"`
}

// ParConfig maps item guid to the PAR band the schedule was planned with.
type ParConfig map[string]ParRange

// ScheduleParameters records how a schedule was generated.
type ScheduleParameters struct {
	GeneratedAt   time.Time `json:"generated_at"`
	ForecastScale float64   `json:"forecast_scale,omitempty"`
}

// Schedule is the persisted production plan for one date: the placed (and
// unplaced) batches plus the forecast and PAR configuration they were
// derived from. One row per date, upserted by date.
type Schedule struct {
	ID                   string                                 `json:"id" gorm:"primaryKey"`
	Name                 string                                 `json:"name"`
	Date                 string                                 `json:"date" gorm:"uniqueIndex"`
	Batches              datatypes.JSONSlice[Batch]             `json:"batches"`
	Forecast             datatypes.JSONType[DailyForecast]      `json:"forecast"`
	TimeIntervalForecast datatypes.JSONType[IntradayForecast]   `json:"time_interval_forecast"`
	ParConfig            datatypes.JSONType[ParConfig]          `json:"par_config"`
	Parameters           datatypes.JSONType[ScheduleParameters] `json:"parameters"`
	Created              time.Time                              `json:"created"`
	Updated              time.Time                              `json:"updated"`
}

func (Schedule) TableName() string {
	return "abs_schedules"
}

// ScheduleSummary is returned alongside a generated schedule.
type ScheduleSummary struct {
	Date            string              `json:"date"`
	TotalBatches    int                 `json:"total_batches"`
	PlacedBatches   int                 `json:"placed_batches"`
	UnplacedBatches int                 `json:"unplaced_batches"`
	BatchesByItem   map[string]int      `json:"batches_by_item"`
	RejectedItems   []RejectedSpecError `json:"rejected_items,omitempty"`
}

// RejectedSpecError names an item the planner refused to schedule.
type RejectedSpecError struct {
	ItemGUID string `json:"item_guid"`
	Reason   string `json:"reason"`
}

// PresetOrder is one historical order line, replayed at OrderTimeMinutes
// during a preset-mode simulation. Persisted in order_history keyed by date.
type PresetOrder struct {
	ID               string    `json:"-" gorm:"primaryKey"`
	Date             string    `json:"-" gorm:"index"`
	OrderID          string    `json:"order_id"`
	ItemGUID         string    `json:"item_guid" gorm:"column:item_guid"`
	DisplayName      string    `json:"display_name"`
	Quantity         int       `json:"quantity"`
	OrderTimeMinutes int       `json:"order_time_minutes"`
	Created          time.Time `json:"-"`
}

func (PresetOrder) TableName() string {
	return "order_history"
}

// Key identifies one order line for exactly-once processing.
func (o *PresetOrder) Key() string {
	return o.OrderID + ":" + o.ItemGUID
}

// BusinessHours is the open window batches must fit inside, in minutes
// since midnight. Both bounds lie on the 20-minute grid.
type BusinessHours struct {
	StartMinutes int `json:"start_minutes"`
	EndMinutes   int `json:"end_minutes"`
}

// OvenConfig is the fixed rack topology: OvenCount ovens of RacksPerOven
// racks each, racks numbered 1..TotalRacks across ovens in order.
type OvenConfig struct {
	OvenCount    int `json:"oven_count"`
	RacksPerOven int `json:"racks_per_oven"`
}

func (o OvenConfig) TotalRacks() int {
	return o.OvenCount * o.RacksPerOven
}

// OvenForRack derives the oven number a rack belongs to.
func (o OvenConfig) OvenForRack(rack int) int {
	if rack <= 0 || o.RacksPerOven <= 0 {
		return 0
	}
	return (rack + o.RacksPerOven - 1) / o.RacksPerOven
}

// RackSatisfiesOven reports whether a rack may host an item whose spec pins
// it to the given oven (0 = any oven).
func (o OvenConfig) RackSatisfiesOven(rack, specOven int) bool {
	if specOven == 0 {
		return true
	}
	return o.OvenForRack(rack) == specOven
}
