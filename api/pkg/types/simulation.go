package types

import (
	"time"
)

// InventoryUnit is one produced unit of an item. Units are kept per item in
// ascending availableAt order so consumption is oldest-first.
type InventoryUnit struct {
	AvailableAt float64 `json:"available_at"`
	BatchID     string  `json:"batch_id"`
}

// SimulationStats are the running counters a simulation accumulates. They
// are monotonic except TotalInventory, which tracks the live unit count.
type SimulationStats struct {
	BatchesStarted      int `json:"batches_started"`
	BatchesPulled       int `json:"batches_pulled"`
	BatchesAvailable    int `json:"batches_available"`
	ItemsProcessed      int `json:"items_processed"`
	ItemsMissed         int `json:"items_missed"`
	TotalInventory      int `json:"total_inventory"`
	PeakInventory       int `json:"peak_inventory"`
	SuggestionsAccepted int `json:"suggestions_accepted"`
	StoreErrors         int `json:"store_errors"`
}

// ProcessedItemOrders aggregates fulfilled demand for one item.
type ProcessedItemOrders struct {
	ItemGUID      string `json:"item_guid"`
	DisplayName   string `json:"display_name"`
	OrderCount    int    `json:"order_count"`
	TotalQuantity int    `json:"total_quantity"`
}

// MissedOrder records a preset order the inventory could not cover. The
// inventory is left untouched on a miss, so AvailableInventory is what was
// on hand when the order fired.
type MissedOrder struct {
	OrderID            string  `json:"order_id"`
	ItemGUID           string  `json:"item_guid"`
	DisplayName        string  `json:"display_name"`
	RequestedQuantity  int     `json:"requested_quantity"`
	AvailableInventory int     `json:"available_inventory"`
	Timestamp          float64 `json:"timestamp"`
}

// Event is one entry in a simulation's append-only event log. Timestamp is
// simulated minutes since midnight; Clock is the same instant as HH:MM.
type Event struct {
	ID              string    `json:"id"`
	Type            EventType `json:"type"`
	Timestamp       float64   `json:"timestamp"`
	Clock           string    `json:"clock"`
	Message         string    `json:"message"`
	ItemGUID        string    `json:"item_guid,omitempty"`
	BatchID         string    `json:"batch_id,omitempty"`
	OrderID         string    `json:"order_id,omitempty"`
	CateringOrderID string    `json:"catering_order_id,omitempty"`
	Quantity        int       `json:"quantity,omitempty"`
}

// CateringItem is one line of a catering order.
type CateringItem struct {
	ItemGUID string `json:"item_guid"`
	Quantity int    `json:"quantity"`
}

// MovedBatch remembers where a batch sat before the catering allocator
// displaced it, so a rejection can put it back.
type MovedBatch struct {
	BatchID      string `json:"batch_id"`
	OldRack      int    `json:"old_rack"`
	OldStartTime int    `json:"old_start_time"`
}

// CateringOrder is a multi-item promise with a required availability time.
// CreatedBatches and MovedBatches carry everything needed to reverse the
// allocation while the order is still pending.
type CateringOrder struct {
	ID                    string         `json:"id"`
	Items                 []CateringItem `json:"items"`
	RequiredAvailableTime int            `json:"required_available_time"`
	OrderPlacedAt         float64        `json:"order_placed_at"`
	Status                CateringStatus `json:"status"`
	CreatedBatches        []string       `json:"created_batches"`
	MovedBatches          []MovedBatch   `json:"moved_batches"`
}

// SuggestionReason explains why a suggester proposed a batch.
type SuggestionReason struct {
	Algorithm          SuggestionAlgorithm `json:"algorithm"`
	ConfidencePercent  int                 `json:"confidence_percent"`
	Message            string              `json:"message"`
	ProjectedShortfall int                 `json:"projected_shortfall"`
}

// Proposal is a candidate batch a suggestion engine wants added. The rack
// is left to the allocator at acceptance time.
type Proposal struct {
	ItemGUID      string           `json:"item_guid"`
	DisplayName   string           `json:"display_name"`
	Quantity      int              `json:"quantity"`
	StartTime     int              `json:"start_time"`
	EndTime       int              `json:"end_time"`
	AvailableTime int              `json:"available_time"`
	Reason        SuggestionReason `json:"reason"`
}

// SimulationState is the authoritative state of one simulation. It is owned
// by a single writer; everything handed out crosses as a snapshot.
type SimulationState struct {
	ID              string           `json:"id"`
	ScheduleID      string           `json:"schedule_id"`
	Date            string           `json:"date"`
	Mode            SimulationMode   `json:"mode"`
	Status          SimulationStatus `json:"status"`
	SpeedMultiplier float64          `json:"speed_multiplier"`

	StartedAtReal  time.Time     `json:"started_at_real"`
	PausedDuration time.Duration `json:"paused_duration"`
	PausedAt       *time.Time    `json:"paused_at,omitempty"`
	CurrentTime    float64       `json:"current_time"`

	Batches          []*Batch `json:"batches"`
	CompletedBatches []*Batch `json:"completed_batches"`

	Inventory      map[string]int             `json:"inventory"`
	InventoryUnits map[string][]InventoryUnit `json:"inventory_units"`

	PresetOrders          []*PresetOrder                  `json:"preset_orders"`
	ProcessedOrderKeys    map[string]bool                 `json:"processed_order_keys"`
	ProcessedOrdersByItem map[string]*ProcessedItemOrders `json:"processed_orders_by_item"`
	MissedOrders          []*MissedOrder                  `json:"missed_orders"`

	Events         []*Event         `json:"events"`
	Stats          SimulationStats  `json:"stats"`
	CateringOrders []*CateringOrder `json:"catering_orders"`

	AutoApproveCatering bool `json:"auto_approve_catering"`
	Headless            bool `json:"headless"`

	Forecast             DailyForecast    `json:"forecast"`
	TimeIntervalForecast IntradayForecast `json:"time_interval_forecast"`
	ParConfig            ParConfig        `json:"par_config"`
	ForecastScale        float64          `json:"forecast_scale"`
}

// ItemInventory returns the live unit count for one item.
func (s *SimulationState) ItemInventory(itemGuid string) int {
	return len(s.InventoryUnits[itemGuid])
}

// FindBatch looks the batch up in the active list first, then completed.
func (s *SimulationState) FindBatch(batchID string) *Batch {
	for _, b := range s.Batches {
		if b.ID == batchID {
			return b
		}
	}
	for _, b := range s.CompletedBatches {
		if b.ID == batchID {
			return b
		}
	}
	return nil
}

// AllBatches returns active followed by completed batches. Placement checks
// must see both so a finished batch still blocks its historical slot.
func (s *SimulationState) AllBatches() []*Batch {
	all := make([]*Batch, 0, len(s.Batches)+len(s.CompletedBatches))
	all = append(all, s.Batches...)
	all = append(all, s.CompletedBatches...)
	return all
}

// RecentEvents returns the last n events, oldest first.
func (s *SimulationState) RecentEvents(n int) []*Event {
	if len(s.Events) <= n {
		return s.Events
	}
	return s.Events[len(s.Events)-n:]
}

// SimulationSnapshot is the broadcast wire shape published on every driver
// tick and returned by the status command.
type SimulationSnapshot struct {
	ID                    string                          `json:"id"`
	Date                  string                          `json:"date"`
	Mode                  SimulationMode                  `json:"mode"`
	Status                SimulationStatus                `json:"status"`
	CurrentTime           string                          `json:"current_time"`
	CurrentTimeMinutes    float64                         `json:"current_time_minutes"`
	SpeedMultiplier       float64                         `json:"speed_multiplier"`
	Stats                 SimulationStats                 `json:"stats"`
	Inventory             map[string]int                  `json:"inventory"`
	InventoryUnits        map[string][]InventoryUnit      `json:"inventory_units"`
	Batches               []*Batch                        `json:"batches"`
	CompletedBatches      []*Batch                        `json:"completed_batches"`
	Forecast              DailyForecast                   `json:"forecast"`
	TimeIntervalForecast  IntradayForecast                `json:"time_interval_forecast"`
	ParConfig             ParConfig                       `json:"par_config"`
	PresetOrders          []*PresetOrder                  `json:"preset_orders"`
	RecentEvents          []*Event                        `json:"recent_events"`
	MissedOrders          []*MissedOrder                  `json:"missed_orders"`
	ProcessedOrdersByItem map[string]*ProcessedItemOrders `json:"processed_orders_by_item"`
	CateringOrders        []*CateringOrder                `json:"catering_orders"`
	AutoApproveCatering   bool                            `json:"auto_approve_catering"`
}

// InventoryUpdate is the lightweight frame pushed after a manual purchase.
type InventoryUpdate struct {
	Inventory      map[string]int `json:"inventory"`
	TotalInventory int            `json:"total_inventory"`
}

// SimulationSummary is the list-endpoint row.
type SimulationSummary struct {
	ID              string           `json:"id"`
	Date            string           `json:"date"`
	Mode            SimulationMode   `json:"mode"`
	Status          SimulationStatus `json:"status"`
	CurrentTime     string           `json:"current_time"`
	SpeedMultiplier float64          `json:"speed_multiplier"`
	TotalInventory  int              `json:"total_inventory"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
}

// WebsocketEventType tags frames on the simulation broadcast channel.
type WebsocketEventType string

const (
	WebsocketEventSimulationUpdate WebsocketEventType = "simulation_update"
	WebsocketEventInventoryUpdate  WebsocketEventType = "inventory_update"
)

// WebsocketEvent is the envelope for every frame pushed to simulation
// subscribers.
type WebsocketEvent struct {
	Type            WebsocketEventType  `json:"type"`
	SimulationID    string              `json:"simulation_id"`
	Snapshot        *SimulationSnapshot `json:"snapshot,omitempty"`
	InventoryUpdate *InventoryUpdate    `json:"inventory_update,omitempty"`
}

// HeadlessStep is one sampled row of a headless run, taken every
// intervalMinutes of simulated time.
type HeadlessStep struct {
	Time           string `json:"time"`
	Proposals      int    `json:"proposals"`
	Accepted       int    `json:"accepted"`
	TotalInventory int    `json:"total_inventory"`
	ItemsProcessed int    `json:"items_processed"`
	ItemsMissed    int    `json:"items_missed"`
	ActiveBatches  int    `json:"active_batches"`
}

// HeadlessItemSummary is the per-item outcome of a headless run.
type HeadlessItemSummary struct {
	ItemGUID       string `json:"item_guid"`
	DisplayName    string `json:"display_name"`
	ItemsProcessed int    `json:"items_processed"`
	ItemsMissed    int    `json:"items_missed"`
	FinalInventory int    `json:"final_inventory"`
}

// HeadlessTotals aggregates a whole headless run.
type HeadlessTotals struct {
	Proposals           int `json:"proposals"`
	Accepted            int `json:"accepted"`
	BatchesStarted      int `json:"batches_started"`
	BatchesPulled       int `json:"batches_pulled"`
	BatchesAvailable    int `json:"batches_available"`
	ItemsProcessed      int `json:"items_processed"`
	ItemsMissed         int `json:"items_missed"`
	PeakInventory       int `json:"peak_inventory"`
	FinalInventory      int `json:"final_inventory"`
	SuggestionsAccepted int `json:"suggestions_accepted"`
	StoreErrors         int `json:"store_errors"`
}

// HeadlessReport is the result of a full headless run, either condensed
// (totals + items only) or with the per-interval step table.
type HeadlessReport struct {
	SimulationID   string                `json:"simulation_id"`
	Date           string                `json:"date"`
	Mode           SimulationMode        `json:"mode"`
	Algorithm      SuggestionAlgorithm   `json:"algorithm"`
	IntervalMins   int                   `json:"interval_minutes"`
	AutoAdd        bool                  `json:"auto_add"`
	MaxPerInterval int                   `json:"max_per_interval"`
	MinConfidence  int                   `json:"min_confidence"`
	Condensed      bool                  `json:"condensed"`
	Steps          []HeadlessStep        `json:"steps,omitempty"`
	Items          []HeadlessItemSummary `json:"items"`
	Totals         HeadlessTotals        `json:"totals"`
	Duration       time.Duration         `json:"duration"`
}
