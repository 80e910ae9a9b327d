package scheduler

import (
	"github.com/rs/zerolog/log"

	"github.com/bakeops/bakeops/api/pkg/types"
)

// Placement is a rack and a grid-aligned start time a batch can occupy.
type Placement struct {
	Rack      int
	StartTime int
}

// RackAllocator is the pure placement primitive shared by the planner, the
// simulation mutations and the catering allocator. It never mutates the
// batches it is given.
type RackAllocator interface {
	FindSlotAt(spec *types.BakeSpec, batches []*types.Batch, desiredStart int) (*Placement, error)
	FindEarliestSlot(spec *types.BakeSpec, batches []*types.Batch, notBefore int) (*Placement, error)
	ConflictsAt(batches []*types.Batch, rack, startTime, endTime int, excludeBatchID string) bool
	EligibleRacks(specOven int) []int
	Hours() types.BusinessHours
	Ovens() types.OvenConfig
}

type allocator struct {
	hours           types.BusinessHours
	ovens           types.OvenConfig
	maxSlotAdvances int
}

// NewRackAllocator creates an allocator for the given business window and
// rack topology. maxSlotAdvances bounds how many later grid slots
// FindSlotAt probes before giving up.
func NewRackAllocator(hours types.BusinessHours, ovens types.OvenConfig, maxSlotAdvances int) *allocator {
	if maxSlotAdvances <= 0 {
		maxSlotAdvances = 5
	}
	return &allocator{
		hours:           hours,
		ovens:           ovens,
		maxSlotAdvances: maxSlotAdvances,
	}
}

func (a *allocator) Hours() types.BusinessHours {
	return a.hours
}

func (a *allocator) Ovens() types.OvenConfig {
	return a.ovens
}

// EligibleRacks lists racks that satisfy the spec's oven affinity in
// ascending order, so the lowest rack wins ties.
func (a *allocator) EligibleRacks(specOven int) []int {
	racks := make([]int, 0, a.ovens.TotalRacks())
	for rack := 1; rack <= a.ovens.TotalRacks(); rack++ {
		if a.ovens.RackSatisfiesOven(rack, specOven) {
			racks = append(racks, rack)
		}
	}
	return racks
}

// rackEnd is the end time of the latest placed batch on a rack, or zero
// when the rack is empty.
func rackEnd(batches []*types.Batch, rack int) int {
	end := 0
	for _, b := range batches {
		if b.RackPosition != rack {
			continue
		}
		if b.EndTime > end {
			end = b.EndTime
		}
	}
	return end
}

// FindSlotAt places at the desired start, rounded up to the grid. A rack
// takes the batch when its latest occupant ends at or before the slot. When
// every eligible rack is busy the slot advances by one grid step, up to
// maxSlotAdvances times.
func (a *allocator) FindSlotAt(spec *types.BakeSpec, batches []*types.Batch, desiredStart int) (*Placement, error) {
	racks := a.EligibleRacks(spec.Oven)
	if len(racks) == 0 {
		return nil, types.NewOvenMismatch("no racks satisfy oven %d", spec.Oven)
	}

	start := types.CeilToGrid(desiredStart)
	if start < a.hours.StartMinutes {
		start = a.hours.StartMinutes
	}

	for advance := 0; advance <= a.maxSlotAdvances; advance++ {
		if start+spec.BakeTimeMinutes > a.hours.EndMinutes {
			return nil, types.NewNoSlotBeforeClose(
				"batch of %s starting %s would end after close",
				spec.ItemGUID, types.FormatClock(start),
			)
		}
		for _, rack := range racks {
			if rackEnd(batches, rack) <= start {
				log.Trace().
					Str("item_guid", spec.ItemGUID).
					Int("rack", rack).
					Str("start", types.FormatClock(start)).
					Msg("allocating slot")
				return &Placement{Rack: rack, StartTime: start}, nil
			}
		}
		start += types.GridMinutes
	}

	return nil, types.NewRackConflict(
		"no rack free for %s near %s",
		spec.ItemGUID, types.FormatClock(types.CeilToGrid(desiredStart)),
	)
}

// FindEarliestSlot picks the instant the first eligible rack frees up, no
// earlier than notBefore, and returns the lowest rack free at it.
func (a *allocator) FindEarliestSlot(spec *types.BakeSpec, batches []*types.Batch, notBefore int) (*Placement, error) {
	racks := a.EligibleRacks(spec.Oven)
	if len(racks) == 0 {
		return nil, types.NewOvenMismatch("no racks satisfy oven %d", spec.Oven)
	}

	if notBefore < a.hours.StartMinutes {
		notBefore = a.hours.StartMinutes
	}

	earliest := -1
	for _, rack := range racks {
		end := rackEnd(batches, rack)
		if end < notBefore {
			end = notBefore
		}
		candidate := types.CeilToGrid(end)
		if earliest == -1 || candidate < earliest {
			earliest = candidate
		}
	}

	if earliest+spec.BakeTimeMinutes > a.hours.EndMinutes {
		return nil, types.NewNoSlotBeforeClose(
			"no slot for %s before close", spec.ItemGUID,
		)
	}

	for _, rack := range racks {
		if rackEnd(batches, rack) <= earliest {
			return &Placement{Rack: rack, StartTime: earliest}, nil
		}
	}

	// Unreachable: the rack whose end produced the minimum is free at it.
	return nil, types.NewRackConflict("no rack free for %s at %s", spec.ItemGUID, types.FormatClock(earliest))
}

// ConflictsAt reports whether any placed batch on the rack overlaps the
// half-open interval [startTime, endTime).
func (a *allocator) ConflictsAt(batches []*types.Batch, rack, startTime, endTime int, excludeBatchID string) bool {
	for _, b := range batches {
		if b.ID == excludeBatchID {
			continue
		}
		if b.RackPosition != rack {
			continue
		}
		if startTime < b.EndTime && b.StartTime < endTime {
			return true
		}
	}
	return false
}
