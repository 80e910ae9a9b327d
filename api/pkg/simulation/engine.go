package simulation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"k8s.io/utils/clock"

	"github.com/bakeops/bakeops/api/pkg/catering"
	"github.com/bakeops/bakeops/api/pkg/config"
	"github.com/bakeops/bakeops/api/pkg/pubsub"
	"github.com/bakeops/bakeops/api/pkg/scheduler"
	"github.com/bakeops/bakeops/api/pkg/store"
	"github.com/bakeops/bakeops/api/pkg/suggest"
	"github.com/bakeops/bakeops/api/pkg/system"
	"github.com/bakeops/bakeops/api/pkg/types"
)

// recentEventCount is how many trailing events ride along on snapshots and
// batch mutation responses.
const recentEventCount = 5

// Engine owns one simulation. All state lives behind a single mutex: the
// driver advances the clock through Tick, operator actions mutate through
// the exported methods, and everything handed out is a copy, so callers
// can never observe a half-applied transition.
type Engine struct {
	cfg        *config.ServerConfig
	store      store.Store
	pub        pubsub.Publisher
	rack       scheduler.RackAllocator
	catering   *catering.Allocator
	clock      clock.PassiveClock
	specs      map[string]*types.BakeSpec
	id         string
	scheduleID string
	headless   bool

	mu         sync.Mutex
	state      *types.SimulationState
	finishedAt time.Time
}

type EngineParams struct {
	Store     store.Store
	Publisher pubsub.Publisher
	Allocator scheduler.RackAllocator
	Clock     clock.PassiveClock
	State     *types.SimulationState
	Specs     map[string]*types.BakeSpec
}

func NewEngine(serverConfig *config.ServerConfig, params EngineParams) (*Engine, error) {
	if serverConfig == nil {
		return nil, fmt.Errorf("server config is required")
	}
	if params.State == nil {
		return nil, fmt.Errorf("simulation state is required")
	}
	if len(params.Specs) == 0 {
		return nil, fmt.Errorf("bake specs are required")
	}
	rack := params.Allocator
	if rack == nil {
		rack = scheduler.NewRackAllocator(
			serverConfig.BusinessHours.ToTypes(),
			serverConfig.Ovens.ToTypes(),
			serverConfig.Planner.MaxSlotAdvances,
		)
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	pub := params.Publisher
	if pub == nil {
		pub = pubsub.NewNoop()
	}
	return &Engine{
		cfg:        serverConfig,
		store:      params.Store,
		pub:        pub,
		rack:       rack,
		catering:   catering.NewAllocator(serverConfig.Catering, rack),
		clock:      clk,
		specs:      params.Specs,
		id:         params.State.ID,
		scheduleID: params.State.ScheduleID,
		headless:   params.State.Headless,
		state:      params.State,
	}, nil
}

func (e *Engine) ID() string {
	return e.id
}

// IsHeadless reports whether this engine is stepped synchronously instead
// of being driven by the wall clock.
func (e *Engine) IsHeadless() bool {
	return e.headless
}

func (e *Engine) Status() types.SimulationStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Status
}

// Expired reports whether this simulation is finished and has outlived the
// TTL. The TTL is anchored at creation, so a stopped simulation never sits
// in the registry longer than its age allows.
func (e *Engine) Expired(now time.Time, ttl time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.state.Status.Active() && now.Sub(e.state.StartedAtReal) > ttl
}

// Finished returns when the simulation completed or was stopped, and whether
// it has finished at all.
func (e *Engine) Finished() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finishedAt, !e.state.Status.Active()
}

// Tick advances the simulation to where the wall clock says it should be
// and broadcasts a snapshot. Called by the driver on every tick; does
// nothing unless the simulation is running.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	if e.state.Status != types.SimulationStatusRunning {
		e.mu.Unlock()
		return
	}
	e.advanceLocked(simulatedNow(e.state, e.clock.Now(), e.cfg.BusinessHours.StartMinutes))
	frame := e.frameLocked()
	e.mu.Unlock()
	e.publish(ctx, frame)
}

// AdvanceTo moves simulated time forward to target minutes since midnight.
// Headless runs step the clock with this instead of Tick.
func (e *Engine) AdvanceTo(target float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status != types.SimulationStatusRunning {
		return
	}
	e.advanceLocked(target)
}

// advanceLocked is the heart of the simulation: it moves the clock to
// target and fires every transition the covered window contains. Calling
// it again with the same target changes nothing.
func (e *Engine) advanceLocked(target float64) {
	endMinutes := float64(e.cfg.BusinessHours.EndMinutes)
	if target > endMinutes {
		target = endMinutes
	}
	if target < e.state.CurrentTime {
		return
	}
	e.state.CurrentTime = target

	e.transitionBatchesLocked(target)
	e.refreshInventoryLocked()
	if e.state.Mode == types.SimulationModePreset {
		e.processPresetOrdersLocked(target)
		e.refreshInventoryLocked()
	}

	if target >= endMinutes && e.state.Status == types.SimulationStatusRunning {
		e.state.Status = types.SimulationStatusCompleted
		e.finishedAt = e.clock.Now()
		e.recordEventLocked(&types.Event{
			Type:      types.EventSimulationCompleted,
			Timestamp: target,
			Message:   "business day complete",
		})
		log.Info().
			Str("simulation_id", e.id).
			Int("items_processed", e.state.Stats.ItemsProcessed).
			Int("items_missed", e.state.Stats.ItemsMissed).
			Msg("simulation completed")
	}
}

// transitionBatchesLocked walks every active batch through whatever status
// changes its timestamps call for. A large jump can carry one batch through
// several transitions, so the checks chain rather than branch.
func (e *Engine) transitionBatchesLocked(now float64) {
	var finished []*types.Batch
	for _, b := range e.state.Batches {
		if !b.Placed() {
			continue
		}
		if b.Status == types.BatchStatusScheduled && float64(b.StartTime) <= now {
			b.Status = types.BatchStatusBaking
			e.state.Stats.BatchesStarted++
			e.recordEventLocked(&types.Event{
				Type:      types.EventBatchStarted,
				Timestamp: float64(b.StartTime),
				BatchID:   b.ID,
				ItemGUID:  b.ItemGUID,
				Quantity:  b.Quantity,
				Message:   fmt.Sprintf("%s x%d into oven %d rack %d", b.DisplayName, b.Quantity, b.Oven, b.RackPosition),
			})
		}
		if b.Status == types.BatchStatusBaking && float64(b.EndTime) <= now {
			b.Status = types.BatchStatusPulling
			e.state.Stats.BatchesPulled++
			e.recordEventLocked(&types.Event{
				Type:      types.EventBatchPulled,
				Timestamp: float64(b.EndTime),
				BatchID:   b.ID,
				ItemGUID:  b.ItemGUID,
				Quantity:  b.Quantity,
				Message:   fmt.Sprintf("%s pulled from oven %d, cooling", b.DisplayName, b.Oven),
			})
		}
		if b.Status == types.BatchStatusPulling && float64(b.AvailableTime) <= now {
			b.Status = types.BatchStatusAvailable
			e.state.Stats.BatchesAvailable++
			units := e.state.InventoryUnits[b.ItemGUID]
			for i := 0; i < b.Quantity; i++ {
				units = append(units, types.InventoryUnit{
					AvailableAt: float64(b.AvailableTime),
					BatchID:     b.ID,
				})
			}
			sort.SliceStable(units, func(i, j int) bool {
				return units[i].AvailableAt < units[j].AvailableAt
			})
			e.state.InventoryUnits[b.ItemGUID] = units
			e.recordEventLocked(&types.Event{
				Type:      types.EventBatchAvailable,
				Timestamp: float64(b.AvailableTime),
				BatchID:   b.ID,
				ItemGUID:  b.ItemGUID,
				Quantity:  b.Quantity,
				Message:   fmt.Sprintf("%d %s ready for sale", b.Quantity, b.DisplayName),
			})
			finished = append(finished, b)
		}
	}
	if len(finished) == 0 {
		return
	}
	done := make(map[string]bool, len(finished))
	for _, b := range finished {
		done[b.ID] = true
	}
	active := e.state.Batches[:0]
	for _, b := range e.state.Batches {
		if !done[b.ID] {
			active = append(active, b)
		}
	}
	e.state.Batches = active
	e.state.CompletedBatches = append(e.state.CompletedBatches, finished...)
}

// processPresetOrdersLocked fires every preset order whose time has come,
// exactly once. An order is either covered in full from inventory or
// recorded as a miss; there is no partial fulfilment.
func (e *Engine) processPresetOrdersLocked(now float64) {
	for _, o := range e.state.PresetOrders {
		if float64(o.OrderTimeMinutes) > now {
			// orders are sorted by time
			break
		}
		key := o.Key()
		if e.state.ProcessedOrderKeys[key] {
			continue
		}
		e.state.ProcessedOrderKeys[key] = true

		at := float64(o.OrderTimeMinutes)
		units := e.state.InventoryUnits[o.ItemGUID]
		if len(units) < o.Quantity {
			e.state.MissedOrders = append(e.state.MissedOrders, &types.MissedOrder{
				OrderID:            o.OrderID,
				ItemGUID:           o.ItemGUID,
				DisplayName:        o.DisplayName,
				RequestedQuantity:  o.Quantity,
				AvailableInventory: len(units),
				Timestamp:          at,
			})
			e.state.Stats.ItemsMissed += o.Quantity
			e.recordEventLocked(&types.Event{
				Type:      types.EventOrderMissed,
				Timestamp: at,
				OrderID:   o.OrderID,
				ItemGUID:  o.ItemGUID,
				Quantity:  o.Quantity,
				Message:   fmt.Sprintf("order %s wanted %d %s, only %d on hand", o.OrderID, o.Quantity, o.DisplayName, len(units)),
			})
			continue
		}
		e.state.InventoryUnits[o.ItemGUID] = units[o.Quantity:]
		e.creditProcessedLocked(o.ItemGUID, o.DisplayName, o.Quantity)
		e.recordEventLocked(&types.Event{
			Type:      types.EventOrderProcessed,
			Timestamp: at,
			OrderID:   o.OrderID,
			ItemGUID:  o.ItemGUID,
			Quantity:  o.Quantity,
			Message:   fmt.Sprintf("order %s took %d %s", o.OrderID, o.Quantity, o.DisplayName),
		})
	}
}

func (e *Engine) creditProcessedLocked(itemGuid, displayName string, quantity int) {
	e.state.Stats.ItemsProcessed += quantity
	agg := e.state.ProcessedOrdersByItem[itemGuid]
	if agg == nil {
		agg = &types.ProcessedItemOrders{ItemGUID: itemGuid, DisplayName: displayName}
		e.state.ProcessedOrdersByItem[itemGuid] = agg
	}
	agg.OrderCount++
	agg.TotalQuantity += quantity
}

// refreshInventoryLocked rebuilds the per-item counts from the unit lists
// and tracks the peak.
func (e *Engine) refreshInventoryLocked() {
	total := 0
	inv := make(map[string]int, len(e.state.InventoryUnits))
	for guid, units := range e.state.InventoryUnits {
		inv[guid] = len(units)
		total += len(units)
	}
	e.state.Inventory = inv
	e.state.Stats.TotalInventory = total
	if total > e.state.Stats.PeakInventory {
		e.state.Stats.PeakInventory = total
	}
}

// Pause freezes the simulated clock. The wall time spent paused is credited
// back on resume so the simulation picks up exactly where it stopped.
func (e *Engine) Pause(_ context.Context) (*types.SimulationSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status != types.SimulationStatusRunning {
		return nil, types.NewInvalidState("simulation %s is %s, cannot pause", e.id, e.state.Status)
	}
	// settle the clock before freezing it
	e.advanceLocked(simulatedNow(e.state, e.clock.Now(), e.cfg.BusinessHours.StartMinutes))
	if e.state.Status == types.SimulationStatusRunning {
		now := e.clock.Now()
		e.state.PausedAt = &now
		e.state.Status = types.SimulationStatusPaused
		log.Debug().Str("simulation_id", e.id).Msg("simulation paused")
	}
	return e.snapshotLocked(), nil
}

func (e *Engine) Resume(_ context.Context) (*types.SimulationSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status != types.SimulationStatusPaused {
		return nil, types.NewInvalidState("simulation %s is %s, cannot resume", e.id, e.state.Status)
	}
	e.state.PausedDuration += e.clock.Now().Sub(*e.state.PausedAt)
	e.state.PausedAt = nil
	e.state.Status = types.SimulationStatusRunning
	log.Debug().Str("simulation_id", e.id).Msg("simulation resumed")
	return e.snapshotLocked(), nil
}

func (e *Engine) Stop(ctx context.Context) (*types.SimulationSnapshot, error) {
	e.mu.Lock()
	if !e.state.Status.Active() {
		e.mu.Unlock()
		return nil, types.NewInvalidState("simulation %s is already %s", e.id, e.state.Status)
	}
	if e.state.PausedAt != nil {
		e.state.PausedDuration += e.clock.Now().Sub(*e.state.PausedAt)
		e.state.PausedAt = nil
	}
	e.state.Status = types.SimulationStatusStopped
	e.finishedAt = e.clock.Now()
	snapshot := e.snapshotLocked()
	frame := e.frameLocked()
	e.mu.Unlock()
	e.publish(ctx, frame)
	log.Info().Str("simulation_id", e.id).Msg("simulation stopped")
	return snapshot, nil
}

// AddBatch places a new batch at the requested start, rounded up to the
// next grid slot and nudged later if the racks are busy.
func (e *Engine) AddBatch(ctx context.Context, req *types.AddBatchRequest) (*types.BatchMutationResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Status.Active() {
		return nil, types.NewInvalidState("simulation %s is %s", e.id, e.state.Status)
	}
	spec := e.specs[req.ItemGUID]
	if spec == nil || !spec.Valid() {
		return nil, types.NewInvalidInput("no usable bake spec for %s", req.ItemGUID)
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = spec.CapacityPerRack
	}
	if quantity < 0 || quantity > spec.CapacityPerRack {
		return nil, types.NewInvalidInput("quantity %d outside 1..%d for %s", quantity, spec.CapacityPerRack, req.ItemGUID)
	}
	desired, err := types.ParseClock(req.StartTime)
	if err != nil {
		return nil, err
	}
	desired = types.CeilToGrid(desired)
	if float64(desired) <= e.state.CurrentTime {
		return nil, types.NewInvalidInput("start time %s has already passed", types.FormatClock(desired))
	}
	placement, err := e.rack.FindSlotAt(spec, e.state.AllBatches(), desired)
	if err != nil {
		return nil, err
	}

	batch := &types.Batch{
		ID:           system.GenerateBatchID(),
		ItemGUID:     spec.ItemGUID,
		DisplayName:  spec.DisplayName,
		Quantity:     quantity,
		BakeTime:     spec.BakeTimeMinutes,
		CoolTime:     spec.CoolTimeMinutes,
		Oven:         e.rack.Ovens().OvenForRack(placement.Rack),
		RackPosition: placement.Rack,
		Status:       types.BatchStatusScheduled,
	}
	batch.SetStart(placement.StartTime)
	e.state.Batches = append(e.state.Batches, batch)
	e.sortBatchesLocked()
	e.recordEventLocked(&types.Event{
		Type:      types.EventBatchAdded,
		Timestamp: e.state.CurrentTime,
		BatchID:   batch.ID,
		ItemGUID:  batch.ItemGUID,
		Quantity:  batch.Quantity,
		Message:   fmt.Sprintf("added %s x%d at %s on rack %d", batch.DisplayName, batch.Quantity, types.FormatClock(batch.StartTime), batch.RackPosition),
	})
	e.mirrorBatchUpsert(*batch, types.EventBatchAddError)
	return e.mutationResponseLocked(batch), nil
}

// MoveBatch reslots a scheduled batch. The new start is rounded to the
// nearest grid line; batches that have begun baking stay put.
func (e *Engine) MoveBatch(ctx context.Context, batchID string, req *types.MoveBatchRequest) (*types.BatchMutationResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Status.Active() {
		return nil, types.NewInvalidState("simulation %s is %s", e.id, e.state.Status)
	}
	batch := e.state.FindBatch(batchID)
	if batch == nil {
		return nil, types.NewNotFound("batch %s not found", batchID)
	}
	if batch.Status != types.BatchStatusScheduled {
		return nil, types.NewInvalidState("batch %s is already %s", batchID, batch.Status)
	}
	newStart, err := types.ParseClock(req.NewStartTime)
	if err != nil {
		return nil, err
	}
	newStart = types.RoundToGrid(newStart)
	rack := req.NewRack
	if rack == 0 {
		rack = batch.RackPosition
	}
	ovens := e.rack.Ovens()
	if rack < 1 || rack > ovens.TotalRacks() {
		return nil, types.NewInvalidInput("rack %d outside 1..%d", rack, ovens.TotalRacks())
	}
	if spec := e.specs[batch.ItemGUID]; spec != nil && !ovens.RackSatisfiesOven(rack, spec.Oven) {
		return nil, types.NewOvenMismatch("%s must bake in oven %d", batch.DisplayName, spec.Oven)
	}
	hours := e.rack.Hours()
	if newStart < hours.StartMinutes {
		return nil, types.NewInvalidInput("start %s is before opening", types.FormatClock(newStart))
	}
	if float64(newStart) <= e.state.CurrentTime {
		return nil, types.NewInvalidInput("start time %s has already passed", types.FormatClock(newStart))
	}
	if newStart+batch.BakeTime > hours.EndMinutes {
		return nil, types.NewNoSlotBeforeClose("batch would still be baking at close")
	}
	if e.rack.ConflictsAt(e.state.AllBatches(), rack, newStart, newStart+batch.BakeTime, batch.ID) {
		return nil, types.NewRackConflict("rack %d is busy at %s", rack, types.FormatClock(newStart))
	}

	batch.RackPosition = rack
	batch.Oven = ovens.OvenForRack(rack)
	batch.SetStart(newStart)
	e.sortBatchesLocked()
	e.recordEventLocked(&types.Event{
		Type:      types.EventBatchMoved,
		Timestamp: e.state.CurrentTime,
		BatchID:   batch.ID,
		ItemGUID:  batch.ItemGUID,
		Quantity:  batch.Quantity,
		Message:   fmt.Sprintf("moved %s to rack %d at %s", batch.DisplayName, rack, types.FormatClock(newStart)),
	})
	e.mirrorBatchUpsert(*batch, types.EventBatchMoveError)
	return e.mutationResponseLocked(batch), nil
}

// DeleteBatch removes a batch from the plan. Inventory already produced by
// the batch stays on the shelf.
func (e *Engine) DeleteBatch(ctx context.Context, batchID string) (*types.BatchMutationResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Status.Active() {
		return nil, types.NewInvalidState("simulation %s is %s", e.id, e.state.Status)
	}
	batch := e.state.FindBatch(batchID)
	if batch == nil {
		return nil, types.NewNotFound("batch %s not found", batchID)
	}
	ids := map[string]bool{batchID: true}
	e.state.Batches = removeBatchesByID(e.state.Batches, ids)
	e.state.CompletedBatches = removeBatchesByID(e.state.CompletedBatches, ids)
	e.recordEventLocked(&types.Event{
		Type:      types.EventBatchDeleted,
		Timestamp: e.state.CurrentTime,
		BatchID:   batch.ID,
		ItemGUID:  batch.ItemGUID,
		Quantity:  batch.Quantity,
		Message:   fmt.Sprintf("deleted batch of %s", batch.DisplayName),
	})
	e.mirrorBatchDelete(batchID)
	return e.mutationResponseLocked(batch), nil
}

// ProcessPurchase deducts inventory for a point-of-sale purchase. The whole
// purchase is validated before any unit moves.
func (e *Engine) ProcessPurchase(ctx context.Context, req *types.PurchaseRequest) (*types.PurchaseResponse, error) {
	e.mu.Lock()
	if !e.state.Status.Active() {
		e.mu.Unlock()
		return nil, types.NewInvalidState("simulation %s is %s", e.id, e.state.Status)
	}
	if len(req.Items) == 0 {
		e.mu.Unlock()
		return nil, types.NewInvalidInput("purchase needs at least one item")
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			e.mu.Unlock()
			return nil, types.NewInvalidInput("quantity for %s must be positive", item.ItemGUID)
		}
		if available := len(e.state.InventoryUnits[item.ItemGUID]); available < item.Quantity {
			e.mu.Unlock()
			return nil, types.NewInvalidInput("only %d units of %s available", available, item.ItemGUID)
		}
	}

	for _, item := range req.Items {
		units := e.state.InventoryUnits[item.ItemGUID]
		e.state.InventoryUnits[item.ItemGUID] = units[item.Quantity:]
		displayName := item.ItemGUID
		if spec := e.specs[item.ItemGUID]; spec != nil {
			displayName = spec.DisplayName
		}
		e.creditProcessedLocked(item.ItemGUID, displayName, item.Quantity)
		e.recordEventLocked(&types.Event{
			Type:      types.EventPurchase,
			Timestamp: e.state.CurrentTime,
			ItemGUID:  item.ItemGUID,
			Quantity:  item.Quantity,
			Message:   fmt.Sprintf("sold %d %s", item.Quantity, displayName),
		})
	}
	e.refreshInventoryLocked()

	resp := &types.PurchaseResponse{
		Purchased:      req.Items,
		Inventory:      copyInventory(e.state.Inventory),
		TotalInventory: e.state.Stats.TotalInventory,
	}
	frame, err := json.Marshal(&types.WebsocketEvent{
		Type:         types.WebsocketEventInventoryUpdate,
		SimulationID: e.id,
		InventoryUpdate: &types.InventoryUpdate{
			Inventory:      copyInventory(e.state.Inventory),
			TotalInventory: e.state.Stats.TotalInventory,
		},
	})
	e.mu.Unlock()
	if err != nil {
		log.Error().Err(err).Str("simulation_id", e.id).Msg("failed to marshal inventory update")
	} else {
		e.publish(ctx, frame)
	}
	return resp, nil
}

// Suggestions asks the given algorithm what it would bake next.
func (e *Engine) Suggestions(algorithm types.SuggestionAlgorithm) ([]*types.Proposal, error) {
	suggesters := suggest.ForAlgorithm(algorithm, e.cfg.Suggestions, e.cfg.BusinessHours.ToTypes())
	if len(suggesters) == 0 {
		return nil, types.NewInvalidInput("unknown suggestion algorithm %q", algorithm)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Status.Active() {
		return nil, types.NewInvalidState("simulation %s is %s", e.id, e.state.Status)
	}
	proposals := []*types.Proposal{}
	for _, s := range suggesters {
		proposals = append(proposals, s.Propose(e.state, e.specs)...)
	}
	return proposals, nil
}

// AcceptProposal turns a suggestion into a real batch.
func (e *Engine) AcceptProposal(ctx context.Context, proposal *types.Proposal) (*types.Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Status.Active() {
		return nil, types.NewInvalidState("simulation %s is %s", e.id, e.state.Status)
	}
	spec := e.specs[proposal.ItemGUID]
	if spec == nil || !spec.Valid() {
		return nil, types.NewInvalidInput("no usable bake spec for %s", proposal.ItemGUID)
	}
	placement, err := e.rack.FindSlotAt(spec, e.state.AllBatches(), proposal.StartTime)
	if err != nil {
		return nil, err
	}

	batch := &types.Batch{
		ID:           system.GenerateBatchID(),
		ItemGUID:     spec.ItemGUID,
		DisplayName:  spec.DisplayName,
		Quantity:     proposal.Quantity,
		BakeTime:     spec.BakeTimeMinutes,
		CoolTime:     spec.CoolTimeMinutes,
		Oven:         e.rack.Ovens().OvenForRack(placement.Rack),
		RackPosition: placement.Rack,
		Status:       types.BatchStatusScheduled,
	}
	batch.SetStart(placement.StartTime)
	e.state.Batches = append(e.state.Batches, batch)
	e.sortBatchesLocked()
	e.state.Stats.SuggestionsAccepted++
	e.recordEventLocked(&types.Event{
		Type:      types.EventSuggestionAccepted,
		Timestamp: e.state.CurrentTime,
		BatchID:   batch.ID,
		ItemGUID:  batch.ItemGUID,
		Quantity:  batch.Quantity,
		Message:   fmt.Sprintf("%s: added %s x%d at %s", proposal.Reason.Algorithm, batch.DisplayName, batch.Quantity, types.FormatClock(batch.StartTime)),
	})
	e.mirrorBatchUpsert(*batch, types.EventBatchAddError)
	copied := *batch
	return &copied, nil
}

// CreateCateringOrder allocates rack time for a catering order inside this
// simulation. Approved orders are mirrored to the stored schedule.
func (e *Engine) CreateCateringOrder(ctx context.Context, req *types.CreateCateringOrderRequest) (*types.CateringOrder, error) {
	pickup, err := types.ParseClock(req.RequiredAvailableTime)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Status.Active() {
		return nil, types.NewInvalidState("simulation %s is %s", e.id, e.state.Status)
	}
	order, err := e.catering.Allocate(e.state, e.specs, req.Items, pickup, req.AutoApprove)
	if err != nil {
		return nil, err
	}
	totalUnits := 0
	for _, item := range order.Items {
		totalUnits += item.Quantity
	}
	e.recordEventLocked(&types.Event{
		Type:            types.EventCateringCreated,
		Timestamp:       e.state.CurrentTime,
		CateringOrderID: order.ID,
		Quantity:        totalUnits,
		Message:         fmt.Sprintf("catering order for %d units by %s (%s)", totalUnits, types.FormatClock(order.RequiredAvailableTime), order.Status),
	})
	if order.Status == types.CateringStatusApproved {
		e.mirrorCateringLocked(order)
	}
	copied := *order
	return &copied, nil
}

func (e *Engine) ApproveCateringOrder(ctx context.Context, orderID string) (*types.CateringOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Status.Active() {
		return nil, types.NewInvalidState("simulation %s is %s", e.id, e.state.Status)
	}
	order, err := e.catering.Approve(e.state, orderID)
	if err != nil {
		return nil, err
	}
	e.recordEventLocked(&types.Event{
		Type:            types.EventCateringApproved,
		Timestamp:       e.state.CurrentTime,
		CateringOrderID: order.ID,
		Message:         fmt.Sprintf("catering order %s approved", order.ID),
	})
	e.mirrorCateringLocked(order)
	copied := *order
	return &copied, nil
}

func (e *Engine) RejectCateringOrder(ctx context.Context, orderID string) (*types.CateringOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Status.Active() {
		return nil, types.NewInvalidState("simulation %s is %s", e.id, e.state.Status)
	}
	order, err := e.catering.Reject(e.state, orderID)
	if err != nil {
		return nil, err
	}
	e.recordEventLocked(&types.Event{
		Type:            types.EventCateringRejected,
		Timestamp:       e.state.CurrentTime,
		CateringOrderID: order.ID,
		Message:         fmt.Sprintf("catering order %s rejected, displaced batches restored", order.ID),
	})
	// put the stored schedule back in step with the restored batches
	for _, m := range order.MovedBatches {
		if batch := e.state.FindBatch(m.BatchID); batch != nil {
			e.mirrorBatchUpsert(*batch, types.EventCateringStoreError)
		}
	}
	copied := *order
	return &copied, nil
}

// mirrorCateringLocked pushes an approved order's created and displaced
// batches to the stored schedule.
func (e *Engine) mirrorCateringLocked(order *types.CateringOrder) {
	for _, id := range order.CreatedBatches {
		if batch := e.state.FindBatch(id); batch != nil {
			e.mirrorBatchUpsert(*batch, types.EventCateringStoreError)
		}
	}
	for _, m := range order.MovedBatches {
		if batch := e.state.FindBatch(m.BatchID); batch != nil {
			e.mirrorBatchUpsert(*batch, types.EventCateringStoreError)
		}
	}
}

// SetAutoApproveCatering toggles automatic approval for orders created
// after this call.
func (e *Engine) SetAutoApproveCatering(enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.AutoApproveCatering = enabled
	return enabled
}

func (e *Engine) Snapshot() *types.SimulationSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) Summary() *types.SimulationSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	summary := &types.SimulationSummary{
		ID:              e.id,
		Date:            e.state.Date,
		Mode:            e.state.Mode,
		Status:          e.state.Status,
		CurrentTime:     types.FormatClockF(e.state.CurrentTime),
		SpeedMultiplier: e.state.SpeedMultiplier,
		TotalInventory:  e.state.Stats.TotalInventory,
		StartedAt:       e.state.StartedAtReal,
	}
	if !e.state.Status.Active() {
		finishedAt := e.finishedAt
		summary.FinishedAt = &finishedAt
	}
	return summary
}

// snapshotLocked copies everything a reader could hold onto after the lock
// is released. Append-only slices (events, missed orders, preset orders)
// are shared; anything mutated in place is copied.
func (e *Engine) snapshotLocked() *types.SimulationSnapshot {
	s := e.state
	units := make(map[string][]types.InventoryUnit, len(s.InventoryUnits))
	for guid, v := range s.InventoryUnits {
		cp := make([]types.InventoryUnit, len(v))
		copy(cp, v)
		units[guid] = cp
	}
	processed := make(map[string]*types.ProcessedItemOrders, len(s.ProcessedOrdersByItem))
	for guid, v := range s.ProcessedOrdersByItem {
		cp := *v
		processed[guid] = &cp
	}
	orders := make([]*types.CateringOrder, len(s.CateringOrders))
	for i, o := range s.CateringOrders {
		cp := *o
		orders[i] = &cp
	}
	return &types.SimulationSnapshot{
		ID:                    s.ID,
		Date:                  s.Date,
		Mode:                  s.Mode,
		Status:                s.Status,
		CurrentTime:           types.FormatClockF(s.CurrentTime),
		CurrentTimeMinutes:    s.CurrentTime,
		SpeedMultiplier:       s.SpeedMultiplier,
		Stats:                 s.Stats,
		Inventory:             copyInventory(s.Inventory),
		InventoryUnits:        units,
		Batches:               copyBatches(s.Batches),
		CompletedBatches:      copyBatches(s.CompletedBatches),
		Forecast:              s.Forecast,
		TimeIntervalForecast:  s.TimeIntervalForecast,
		ParConfig:             s.ParConfig,
		PresetOrders:          s.PresetOrders,
		RecentEvents:          s.RecentEvents(recentEventCount),
		MissedOrders:          s.MissedOrders,
		ProcessedOrdersByItem: processed,
		CateringOrders:        orders,
		AutoApproveCatering:   s.AutoApproveCatering,
	}
}

func (e *Engine) mutationResponseLocked(batch *types.Batch) *types.BatchMutationResponse {
	copied := *batch
	return &types.BatchMutationResponse{
		Batch:            &copied,
		Batches:          copyBatches(e.state.Batches),
		CompletedBatches: copyBatches(e.state.CompletedBatches),
		RecentEvents:     e.state.RecentEvents(recentEventCount),
	}
}

// frameLocked marshals a broadcast frame while the state is still locked,
// so the bytes can be published without holding the lock.
func (e *Engine) frameLocked() []byte {
	frame, err := json.Marshal(&types.WebsocketEvent{
		Type:         types.WebsocketEventSimulationUpdate,
		SimulationID: e.id,
		Snapshot:     e.snapshotLocked(),
	})
	if err != nil {
		log.Error().Err(err).Str("simulation_id", e.id).Msg("failed to marshal simulation snapshot")
		return nil
	}
	return frame
}

func (e *Engine) publish(ctx context.Context, frame []byte) {
	if frame == nil {
		return
	}
	if err := e.pub.Publish(ctx, pubsub.GetSimulationQueue(e.id), frame); err != nil {
		log.Warn().Err(err).Str("simulation_id", e.id).Msg("failed to publish simulation update")
	}
}

func (e *Engine) recordEventLocked(ev *types.Event) {
	ev.ID = system.GenerateEventID()
	if ev.Clock == "" {
		ev.Clock = types.FormatClockF(ev.Timestamp)
	}
	e.state.Events = append(e.state.Events, ev)
}

func (e *Engine) sortBatchesLocked() {
	sort.SliceStable(e.state.Batches, func(i, j int) bool {
		a, b := e.state.Batches[i], e.state.Batches[j]
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.RackPosition < b.RackPosition
	})
}

func copyBatches(batches []*types.Batch) []*types.Batch {
	out := make([]*types.Batch, len(batches))
	for i, b := range batches {
		cp := *b
		out[i] = &cp
	}
	return out
}

func copyInventory(inv map[string]int) map[string]int {
	out := make(map[string]int, len(inv))
	for k, v := range inv {
		out[k] = v
	}
	return out
}

func removeBatchesByID(batches []*types.Batch, ids map[string]bool) []*types.Batch {
	out := batches[:0]
	for _, b := range batches {
		if !ids[b.ID] {
			out = append(out, b)
		}
	}
	return out
}
