package types

// ForecastParams carries caller-supplied demand data when no stored
// schedule should be used. Times inside TimeIntervalForecast are grid
// minutes since midnight.
type ForecastParams struct {
	ForecastScale        float64          `json:"forecast_scale,omitempty"`
	Forecast             DailyForecast    `json:"forecast"`
	TimeIntervalForecast IntradayForecast `json:"time_interval_forecast,omitempty"`
	ParConfig            ParConfig        `json:"par_config,omitempty"`
}

// ScheduleGenerateRequest asks the planner for a schedule for one date.
type ScheduleGenerateRequest struct {
	Date           string          `json:"date"`
	ForecastParams *ForecastParams `json:"forecast_params"`
}

// ScheduleGenerateResponse returns the persisted schedule plus a summary of
// what was and was not placed.
type ScheduleGenerateResponse struct {
	Schedule *Schedule        `json:"schedule"`
	Summary  *ScheduleSummary `json:"summary"`
}

// StartSimulationRequest starts a simulation for a date. When
// ForecastParams is nil the stored schedule for the date is used; preset
// mode with no inline orders falls back to the stored order history.
type StartSimulationRequest struct {
	Date                string          `json:"date"`
	Mode                SimulationMode  `json:"mode"`
	SpeedMultiplier     float64         `json:"speed_multiplier"`
	ForecastParams      *ForecastParams `json:"forecast_params,omitempty"`
	PresetOrders        []*PresetOrder  `json:"preset_orders,omitempty"`
	AutoApproveCatering bool            `json:"auto_approve_catering"`
}

// AddBatchRequest adds a batch during a simulation. StartTime is HH:MM and
// is rounded up to the next free grid slot. Quantity 0 means a full rack.
type AddBatchRequest struct {
	ItemGUID  string `json:"item_guid"`
	StartTime string `json:"start_time"`
	Quantity  int    `json:"quantity,omitempty"`
}

// MoveBatchRequest moves a scheduled batch. NewStartTime is HH:MM and is
// rounded to the nearest grid slot.
type MoveBatchRequest struct {
	NewStartTime string `json:"new_start_time"`
	NewRack      int    `json:"new_rack"`
}

// BatchMutationResponse is returned by the add, move and delete batch
// operations.
type BatchMutationResponse struct {
	Batch            *Batch   `json:"batch,omitempty"`
	Batches          []*Batch `json:"batches"`
	CompletedBatches []*Batch `json:"completed_batches"`
	RecentEvents     []*Event `json:"recent_events"`
}

// PurchaseItem is one line of a manual point-of-sale purchase.
type PurchaseItem struct {
	ItemGUID string `json:"item_guid"`
	Quantity int    `json:"quantity"`
}

// PurchaseRequest deducts inventory in manual mode.
type PurchaseRequest struct {
	Items []PurchaseItem `json:"items"`
}

// PurchaseResponse reports the inventory after a purchase.
type PurchaseResponse struct {
	Purchased      []PurchaseItem `json:"purchased"`
	Inventory      map[string]int `json:"inventory"`
	TotalInventory int            `json:"total_inventory"`
}

// CreateCateringOrderRequest asks for a catering allocation.
// RequiredAvailableTime is HH:MM and must be at least two hours after the
// simulation's current time.
type CreateCateringOrderRequest struct {
	Items                 []CateringItem `json:"items"`
	RequiredAvailableTime string         `json:"required_available_time"`
	AutoApprove           bool           `json:"auto_approve"`
}

// AutoApproveCateringRequest toggles automatic approval of future catering
// orders on a simulation.
type AutoApproveCateringRequest struct {
	Enabled bool `json:"enabled"`
}

// HeadlessRunRequest runs a whole simulated day synchronously, consulting a
// suggestion algorithm every IntervalMinutes of simulated time.
type HeadlessRunRequest struct {
	Date           string              `json:"date"`
	Mode           SimulationMode      `json:"mode"`
	Algorithm      SuggestionAlgorithm `json:"algorithm"`
	IntervalMins   int                 `json:"interval_minutes"`
	AutoAdd        bool                `json:"auto_add"`
	MaxPerInterval int                 `json:"max_per_interval"`
	MinConfidence  int                 `json:"min_confidence"`
	Condensed      bool                `json:"condensed"`
	ForecastParams *ForecastParams     `json:"forecast_params,omitempty"`
	PresetOrders   []*PresetOrder      `json:"preset_orders,omitempty"`
}
