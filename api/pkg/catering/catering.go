package catering

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/bakeops/bakeops/api/pkg/config"
	"github.com/bakeops/bakeops/api/pkg/scheduler"
	"github.com/bakeops/bakeops/api/pkg/system"
	"github.com/bakeops/bakeops/api/pkg/types"
)

// Allocator plans rack time for catering orders inside a simulation. An
// order is allocated as a whole or not at all: when any batch cannot be
// placed, every move already made is undone and the batch list is exactly
// what it was before the attempt.
//
// The caller owns the simulation's writer lock and all mirroring; the
// allocator only touches in-memory state.
type Allocator struct {
	cfg  config.Catering
	rack scheduler.RackAllocator
}

func NewAllocator(cfg config.Catering, rack scheduler.RackAllocator) *Allocator {
	return &Allocator{cfg: cfg, rack: rack}
}

// reservation is rack time claimed for the order being allocated. Targets
// are reserved before their occupants are relocated, so a displaced batch
// can never land back inside the window being freed.
type reservation struct {
	rack  int
	start int
	end   int
}

func overlapsReserved(reserved []reservation, rack, start, end int) bool {
	for _, r := range reserved {
		if r.rack == rack && start < r.end && r.start < end {
			return true
		}
	}
	return false
}

// Allocate places batches covering every item by the required pickup time.
// First pass: free slots at the required start, staggering earlier in grid
// steps. Second pass: displace scheduled batches out of the needed window.
// On success the created batches are inserted into the simulation and the
// order is appended; on failure the state is left untouched.
func (a *Allocator) Allocate(state *types.SimulationState, specs map[string]*types.BakeSpec, items []types.CateringItem, requiredAvailableTime int, autoApprove bool) (*types.CateringOrder, error) {
	if len(items) == 0 {
		return nil, types.NewInvalidInput("catering order needs at least one item")
	}
	pickup := types.RoundToGrid(requiredAvailableTime)
	if float64(pickup) < state.CurrentTime+float64(a.cfg.MinLeadMinutes) {
		return nil, types.NewInvalidInput(
			"pickup %s is less than %d minutes out",
			types.FormatClock(pickup), a.cfg.MinLeadMinutes,
		)
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, types.NewInvalidInput("quantity for %s must be positive", item.ItemGUID)
		}
		spec := specs[item.ItemGUID]
		if spec == nil || !spec.Valid() {
			return nil, types.NewInvalidInput("no usable bake spec for %s", item.ItemGUID)
		}
	}

	type pendingBatch struct {
		spec          *types.BakeSpec
		requiredStart int
	}
	var pendings []pendingBatch
	for _, item := range items {
		spec := specs[item.ItemGUID]
		needed := (item.Quantity + spec.CapacityPerRack - 1) / spec.CapacityPerRack
		requiredStart := types.FloorToGrid(pickup - spec.BakeTimeMinutes - spec.CoolTimeMinutes)
		for i := 0; i < needed; i++ {
			pendings = append(pendings, pendingBatch{spec: spec, requiredStart: requiredStart})
		}
	}

	var (
		created  []*types.Batch
		moved    []types.MovedBatch
		reserved []reservation
	)
	fail := func(err error) (*types.CateringOrder, error) {
		a.undoMoves(state, moved)
		return nil, err
	}

	for _, pending := range pendings {
		batch, ok := a.tryPlace(state, created, &reserved, pending.spec, pending.requiredStart)
		if !ok {
			batch, ok = a.placeWithMoves(state, specs, created, &reserved, &moved, pending.spec, pending.requiredStart)
		}
		if !ok {
			return fail(types.NewCannotFulfil(
				"no rack time for %s by %s",
				pending.spec.ItemGUID, types.FormatClock(pickup),
			))
		}
		created = append(created, batch)
	}

	for _, batch := range created {
		if batch.AvailableTime > pickup {
			return fail(types.NewCannotFulfil(
				"batch of %s would only be ready at %s",
				batch.ItemGUID, types.FormatClock(batch.AvailableTime),
			))
		}
	}

	order := &types.CateringOrder{
		ID:                    system.GenerateCateringOrderID(),
		Items:                 items,
		RequiredAvailableTime: pickup,
		OrderPlacedAt:         state.CurrentTime,
		Status:                types.CateringStatusPending,
		MovedBatches:          moved,
	}
	if autoApprove || state.AutoApproveCatering {
		order.Status = types.CateringStatusApproved
	}
	for _, batch := range created {
		batch.CateringOrderID = order.ID
		order.CreatedBatches = append(order.CreatedBatches, batch.ID)
		state.Batches = append(state.Batches, batch)
	}
	sort.SliceStable(state.Batches, func(i, j int) bool {
		return state.Batches[i].StartTime < state.Batches[j].StartTime
	})
	state.CateringOrders = append(state.CateringOrders, order)

	log.Info().
		Str("catering_order_id", order.ID).
		Str("pickup", types.FormatClock(pickup)).
		Int("created_batches", len(order.CreatedBatches)).
		Int("moved_batches", len(order.MovedBatches)).
		Str("status", string(order.Status)).
		Msg("allocated catering order")

	return order, nil
}

// Approve commits a pending order. The caller mirrors the created batches
// to the store afterwards.
func (a *Allocator) Approve(state *types.SimulationState, orderID string) (*types.CateringOrder, error) {
	order := findOrder(state, orderID)
	if order == nil {
		return nil, types.NewNotFound("catering order %s not found", orderID)
	}
	if order.Status != types.CateringStatusPending {
		return nil, types.NewInvalidState("catering order %s is already %s", orderID, order.Status)
	}
	order.Status = types.CateringStatusApproved
	return order, nil
}

// Reject unwinds a pending order: its batches are removed and every batch
// it displaced goes back to where it was.
func (a *Allocator) Reject(state *types.SimulationState, orderID string) (*types.CateringOrder, error) {
	order := findOrder(state, orderID)
	if order == nil {
		return nil, types.NewNotFound("catering order %s not found", orderID)
	}
	if order.Status != types.CateringStatusPending {
		return nil, types.NewInvalidState("catering order %s is already %s", orderID, order.Status)
	}

	createdSet := make(map[string]bool, len(order.CreatedBatches))
	for _, id := range order.CreatedBatches {
		createdSet[id] = true
	}
	state.Batches = removeBatches(state.Batches, createdSet)
	state.CompletedBatches = removeBatches(state.CompletedBatches, createdSet)

	for i := len(order.MovedBatches) - 1; i >= 0; i-- {
		m := order.MovedBatches[i]
		batch := state.FindBatch(m.BatchID)
		if batch == nil {
			continue
		}
		if batch.Status != types.BatchStatusScheduled {
			log.Warn().
				Str("batch_id", batch.ID).
				Str("status", string(batch.Status)).
				Msg("displaced batch already baking, leaving it where it is")
			continue
		}
		batch.RackPosition = m.OldRack
		batch.Oven = a.rack.Ovens().OvenForRack(m.OldRack)
		batch.SetStart(m.OldStartTime)
	}

	order.Status = types.CateringStatusRejected
	return order, nil
}

// tryPlace looks for a free slot without disturbing anything: the required
// start first, then earlier grid slots up to the stagger limit.
func (a *Allocator) tryPlace(state *types.SimulationState, created []*types.Batch, reserved *[]reservation, spec *types.BakeSpec, requiredStart int) (*types.Batch, bool) {
	hours := a.rack.Hours()
	limit := requiredStart - a.cfg.MaxStaggerMinutes
	existing := append(state.AllBatches(), created...)

	for slot := requiredStart; slot >= limit; slot -= types.GridMinutes {
		if slot < hours.StartMinutes || float64(slot) <= state.CurrentTime {
			break
		}
		if slot+spec.BakeTimeMinutes > hours.EndMinutes {
			continue
		}
		for _, rack := range a.rack.EligibleRacks(spec.Oven) {
			if overlapsReserved(*reserved, rack, slot, slot+spec.BakeTimeMinutes) {
				continue
			}
			if a.rack.ConflictsAt(existing, rack, slot, slot+spec.BakeTimeMinutes, "") {
				continue
			}
			*reserved = append(*reserved, reservation{rack: rack, start: slot, end: slot + spec.BakeTimeMinutes})
			return a.newCateringBatch(spec, rack, slot), true
		}
	}
	return nil, false
}

// placeWithMoves frees a slot by displacing the scheduled batches occupying
// it. The target is reserved before any occupant moves; a target is only
// committed when every one of its occupants found a new home.
func (a *Allocator) placeWithMoves(state *types.SimulationState, specs map[string]*types.BakeSpec, created []*types.Batch, reserved *[]reservation, moved *[]types.MovedBatch, spec *types.BakeSpec, requiredStart int) (*types.Batch, bool) {
	hours := a.rack.Hours()
	limit := requiredStart - a.cfg.MaxStaggerMinutes

	for slot := requiredStart; slot >= limit; slot -= types.GridMinutes {
		if slot < hours.StartMinutes || float64(slot) <= state.CurrentTime {
			break
		}
		end := slot + spec.BakeTimeMinutes
		if end > hours.EndMinutes {
			continue
		}
		for _, rack := range a.rack.EligibleRacks(spec.Oven) {
			if overlapsReserved(*reserved, rack, slot, end) {
				continue
			}
			blockers, movable := a.blockersAt(state, rack, slot, end)
			if !movable || len(blockers) == 0 {
				continue
			}

			*reserved = append(*reserved, reservation{rack: rack, start: slot, end: end})
			movedHere, ok := a.relocateAll(state, specs, created, *reserved, blockers)
			if !ok {
				*reserved = (*reserved)[:len(*reserved)-1]
				continue
			}
			*moved = append(*moved, movedHere...)
			return a.newCateringBatch(spec, rack, slot), true
		}
	}
	return nil, false
}

// blockersAt lists the batches occupying the interval on the rack. The
// interval is only freeable when every occupant is an ordinary scheduled
// batch; baking batches and other catering promises stay where they are.
func (a *Allocator) blockersAt(state *types.SimulationState, rack, start, end int) ([]*types.Batch, bool) {
	var blockers []*types.Batch
	for _, b := range state.AllBatches() {
		if b.RackPosition != rack {
			continue
		}
		if start >= b.EndTime || b.StartTime >= end {
			continue
		}
		if b.Status != types.BatchStatusScheduled || b.IsCatering {
			return nil, false
		}
		blockers = append(blockers, b)
	}
	return blockers, true
}

// relocateAll moves every blocker, latest start first. If any blocker has
// nowhere to go the ones already moved are put back.
func (a *Allocator) relocateAll(state *types.SimulationState, specs map[string]*types.BakeSpec, created []*types.Batch, reserved []reservation, blockers []*types.Batch) ([]types.MovedBatch, bool) {
	sort.SliceStable(blockers, func(i, j int) bool {
		return blockers[i].StartTime > blockers[j].StartTime
	})

	var movedHere []types.MovedBatch
	for _, blocker := range blockers {
		m, ok := a.relocate(state, specs, created, reserved, blocker)
		if !ok {
			a.undoMoves(state, movedHere)
			return nil, false
		}
		movedHere = append(movedHere, m)
	}
	return movedHere, true
}

// relocate searches outward from the batch's own start (+20, -20, +40, -40
// and so on) for a rack and slot within business hours that respects oven
// affinity, the order's reservations and every other batch.
func (a *Allocator) relocate(state *types.SimulationState, specs map[string]*types.BakeSpec, created []*types.Batch, reserved []reservation, batch *types.Batch) (types.MovedBatch, bool) {
	specOven := 0
	if spec := specs[batch.ItemGUID]; spec != nil {
		specOven = spec.Oven
	}
	hours := a.rack.Hours()
	existing := append(state.AllBatches(), created...)

	maxOffset := hours.EndMinutes - hours.StartMinutes
	for offset := types.GridMinutes; offset <= maxOffset; offset += types.GridMinutes {
		for _, newStart := range []int{batch.StartTime + offset, batch.StartTime - offset} {
			if newStart < hours.StartMinutes || newStart+batch.BakeTime > hours.EndMinutes {
				continue
			}
			if float64(newStart) <= state.CurrentTime {
				continue
			}
			for _, rack := range a.rack.EligibleRacks(specOven) {
				if overlapsReserved(reserved, rack, newStart, newStart+batch.BakeTime) {
					continue
				}
				if a.rack.ConflictsAt(existing, rack, newStart, newStart+batch.BakeTime, batch.ID) {
					continue
				}
				old := types.MovedBatch{
					BatchID:      batch.ID,
					OldRack:      batch.RackPosition,
					OldStartTime: batch.StartTime,
				}
				batch.RackPosition = rack
				batch.Oven = a.rack.Ovens().OvenForRack(rack)
				batch.SetStart(newStart)
				log.Debug().
					Str("batch_id", batch.ID).
					Int("old_rack", old.OldRack).
					Str("old_start", types.FormatClock(old.OldStartTime)).
					Int("new_rack", rack).
					Str("new_start", types.FormatClock(newStart)).
					Msg("displaced batch for catering")
				return old, true
			}
		}
	}
	return types.MovedBatch{}, false
}

func (a *Allocator) undoMoves(state *types.SimulationState, moves []types.MovedBatch) {
	for i := len(moves) - 1; i >= 0; i-- {
		m := moves[i]
		batch := state.FindBatch(m.BatchID)
		if batch == nil {
			continue
		}
		batch.RackPosition = m.OldRack
		batch.Oven = a.rack.Ovens().OvenForRack(m.OldRack)
		batch.SetStart(m.OldStartTime)
	}
}

func (a *Allocator) newCateringBatch(spec *types.BakeSpec, rack, start int) *types.Batch {
	batch := &types.Batch{
		ID:           system.GenerateBatchID(),
		ItemGUID:     spec.ItemGUID,
		DisplayName:  spec.DisplayName,
		Quantity:     spec.CapacityPerRack,
		BakeTime:     spec.BakeTimeMinutes,
		CoolTime:     spec.CoolTimeMinutes,
		Oven:         a.rack.Ovens().OvenForRack(rack),
		RackPosition: rack,
		Status:       types.BatchStatusScheduled,
		IsCatering:   true,
	}
	batch.SetStart(start)
	return batch
}

func findOrder(state *types.SimulationState, orderID string) *types.CateringOrder {
	for _, order := range state.CateringOrders {
		if order.ID == orderID {
			return order
		}
	}
	return nil
}

func removeBatches(batches []*types.Batch, ids map[string]bool) []*types.Batch {
	kept := batches[:0]
	for _, b := range batches {
		if !ids[b.ID] {
			kept = append(kept, b)
		}
	}
	return kept
}
