package system

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	SchedulePrefix      = "sch_"
	SimulationPrefix    = "sim_"
	BatchPrefix         = "bat_"
	CateringOrderPrefix = "cat_"
	EventPrefix         = "evt_"
	OrderPrefix         = "ord_"
)

func GenerateUUID() string {
	return uuid.New().String()
}

// IDs are lowercased ULIDs so they sort by creation time.
func newID() string {
	return strings.ToLower(ulid.Make().String())
}

func GenerateScheduleID() string {
	return fmt.Sprintf("%s%s", SchedulePrefix, newID())
}

func GenerateSimulationID() string {
	return fmt.Sprintf("%s%s", SimulationPrefix, newID())
}

func GenerateBatchID() string {
	return fmt.Sprintf("%s%s", BatchPrefix, newID())
}

func GenerateCateringOrderID() string {
	return fmt.Sprintf("%s%s", CateringOrderPrefix, newID())
}

func GenerateEventID() string {
	return fmt.Sprintf("%s%s", EventPrefix, newID())
}

func GenerateOrderID() string {
	return fmt.Sprintf("%s%s", OrderPrefix, newID())
}
