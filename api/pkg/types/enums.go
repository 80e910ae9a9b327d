package types

import (
	"fmt"
)

type BatchStatus string

const (
	BatchStatusScheduled BatchStatus = "scheduled"
	BatchStatusBaking    BatchStatus = "baking"
	BatchStatusPulling   BatchStatus = "pulling"
	BatchStatusAvailable BatchStatus = "available"
)

type SimulationMode string

const (
	SimulationModeNone   SimulationMode = ""
	SimulationModeManual SimulationMode = "manual"
	SimulationModePreset SimulationMode = "preset"
)

func ValidateSimulationMode(mode string, acceptEmpty bool) (SimulationMode, error) {
	switch mode {
	case string(SimulationModeManual):
		return SimulationModeManual, nil
	case string(SimulationModePreset):
		return SimulationModePreset, nil
	default:
		if acceptEmpty && mode == string(SimulationModeNone) {
			return SimulationModeNone, nil
		}
		return SimulationModeNone, fmt.Errorf("invalid simulation mode: %s", mode)
	}
}

type SimulationStatus string

const (
	SimulationStatusRunning   SimulationStatus = "running"
	SimulationStatusPaused    SimulationStatus = "paused"
	SimulationStatusStopped   SimulationStatus = "stopped"
	SimulationStatusCompleted SimulationStatus = "completed"
)

// Active reports whether the simulation still accepts operator actions.
func (s SimulationStatus) Active() bool {
	return s == SimulationStatusRunning || s == SimulationStatusPaused
}

type CateringStatus string

const (
	CateringStatusPending  CateringStatus = "pending"
	CateringStatusApproved CateringStatus = "approved"
	CateringStatusRejected CateringStatus = "rejected"
)

type SuggestionAlgorithm string

const (
	SuggestionAlgorithmNone       SuggestionAlgorithm = ""
	SuggestionAlgorithmPredictive SuggestionAlgorithm = "predictive"
	SuggestionAlgorithmReactive   SuggestionAlgorithm = "reactive"
	SuggestionAlgorithmBoth       SuggestionAlgorithm = "both"
)

func ValidateSuggestionAlgorithm(algorithm string, acceptBoth bool) (SuggestionAlgorithm, error) {
	switch algorithm {
	case string(SuggestionAlgorithmPredictive):
		return SuggestionAlgorithmPredictive, nil
	case string(SuggestionAlgorithmReactive):
		return SuggestionAlgorithmReactive, nil
	case string(SuggestionAlgorithmBoth):
		if acceptBoth {
			return SuggestionAlgorithmBoth, nil
		}
		return SuggestionAlgorithmNone, fmt.Errorf("algorithm %q is only valid for headless runs", algorithm)
	default:
		return SuggestionAlgorithmNone, fmt.Errorf("invalid suggestion algorithm: %s", algorithm)
	}
}

type EventType string

const (
	EventBatchStarted        EventType = "batch_started"
	EventBatchPulled         EventType = "batch_pulled"
	EventBatchAvailable      EventType = "batch_available"
	EventBatchAdded          EventType = "batch_added"
	EventBatchMoved          EventType = "batch_moved"
	EventBatchDeleted        EventType = "batch_deleted"
	EventBatchAddError       EventType = "batch_add_error"
	EventBatchMoveError      EventType = "batch_move_error"
	EventBatchDeleteError    EventType = "batch_delete_error"
	EventOrderProcessed      EventType = "order_processed"
	EventOrderMissed         EventType = "order_missed"
	EventPurchase            EventType = "purchase"
	EventSimulationCompleted EventType = "simulation_completed"
	EventCateringCreated     EventType = "catering_created"
	EventCateringApproved    EventType = "catering_approved"
	EventCateringRejected    EventType = "catering_rejected"
	EventCateringStoreError  EventType = "catering_store_error"
	EventSuggestionAccepted  EventType = "suggestion_accepted"
)
