package simulation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
	"k8s.io/utils/clock"

	"github.com/bakeops/bakeops/api/pkg/config"
	"github.com/bakeops/bakeops/api/pkg/pubsub"
	"github.com/bakeops/bakeops/api/pkg/scheduler"
	"github.com/bakeops/bakeops/api/pkg/store"
	"github.com/bakeops/bakeops/api/pkg/system"
	"github.com/bakeops/bakeops/api/pkg/types"
)

// defaultSpeedMultiplier is used when a start request leaves the speed
// unset: one real second is one simulated minute.
const defaultSpeedMultiplier = 60

// Manager keeps the live simulations, advances the running ones on a fixed
// driver tick and evicts finished ones after a grace period.
type Manager struct {
	cfg     *config.ServerConfig
	store   store.Store
	pub     pubsub.Publisher
	planner *scheduler.Planner
	rack    scheduler.RackAllocator
	clock   clock.PassiveClock
	engines *xsync.MapOf[string, *Engine]
	cron    gocron.Scheduler
}

type ManagerParams struct {
	Store     store.Store
	Publisher pubsub.Publisher
	Planner   *scheduler.Planner
	Allocator scheduler.RackAllocator
	Clock     clock.PassiveClock
}

func NewManager(serverConfig *config.ServerConfig, params *ManagerParams) (*Manager, error) {
	if serverConfig == nil {
		return nil, fmt.Errorf("server config is required")
	}
	if params == nil || params.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	rack := params.Allocator
	if rack == nil {
		rack = scheduler.NewRackAllocator(
			serverConfig.BusinessHours.ToTypes(),
			serverConfig.Ovens.ToTypes(),
			serverConfig.Planner.MaxSlotAdvances,
		)
	}
	planner := params.Planner
	if planner == nil {
		var err error
		planner, err = scheduler.NewPlanner(serverConfig, &scheduler.PlannerParams{
			Store:     params.Store,
			Allocator: rack,
		})
		if err != nil {
			return nil, err
		}
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Manager{
		cfg:     serverConfig,
		store:   params.Store,
		pub:     params.Publisher,
		planner: planner,
		rack:    rack,
		clock:   clk,
		engines: xsync.NewMapOf[string, *Engine](),
	}, nil
}

// Start launches the driver loop and the cleanup job. Both stop when the
// context is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create cleanup scheduler: %w", err)
	}
	_, err = cron.NewJob(
		gocron.DurationJob(m.cfg.Simulation.CleanupInterval),
		gocron.NewTask(m.sweepExpired),
		gocron.WithName("simulation-sweeper"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule simulation sweeper: %w", err)
	}
	cron.Start()
	m.cron = cron

	go m.driveSimulations(ctx)
	return nil
}

func (m *Manager) Stop() error {
	if m.cron != nil {
		return m.cron.Shutdown()
	}
	return nil
}

func (m *Manager) driveSimulations(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Simulation.DriverTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tickAll(ctx)
		}
	}
}

func (m *Manager) tickAll(ctx context.Context) {
	var running []*Engine
	m.engines.Range(func(_ string, e *Engine) bool {
		if !e.IsHeadless() && e.Status() == types.SimulationStatusRunning {
			running = append(running, e)
		}
		return true
	})
	if len(running) == 0 {
		return
	}
	_ = system.ForEachConcurrently(running, m.cfg.Simulation.AdvanceConcurrency, func(e *Engine, _ int) error {
		e.Tick(ctx)
		return nil
	})
}

// sweepExpired drops finished simulations that have outlived the TTL.
func (m *Manager) sweepExpired() {
	now := m.clock.Now()
	m.engines.Range(func(id string, e *Engine) bool {
		if e.Expired(now, m.cfg.Simulation.TTL) {
			m.engines.Delete(id)
			log.Info().Str("simulation_id", id).Msg("evicted finished simulation")
		}
		return true
	})
}

// StartSimulation seeds a simulation for the requested date and registers
// it with the driver.
func (m *Manager) StartSimulation(ctx context.Context, req *types.StartSimulationRequest) (*Engine, error) {
	engine, err := m.buildEngine(ctx, req, false)
	if err != nil {
		return nil, err
	}
	m.engines.Store(engine.ID(), engine)
	log.Info().
		Str("simulation_id", engine.ID()).
		Str("date", req.Date).
		Str("mode", string(req.Mode)).
		Msg("started simulation")
	return engine, nil
}

// StartHeadless seeds a simulation that is stepped synchronously by the
// caller: it is never registered with the driver, never broadcasts and
// never mirrors batch changes back to the stored schedule.
func (m *Manager) StartHeadless(ctx context.Context, req *types.StartSimulationRequest) (*Engine, error) {
	return m.buildEngine(ctx, req, true)
}

func (m *Manager) buildEngine(ctx context.Context, req *types.StartSimulationRequest, headless bool) (*Engine, error) {
	if req == nil {
		return nil, types.NewInvalidInput("start request is required")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return nil, types.NewInvalidInput("invalid date %q, expected YYYY-MM-DD", req.Date)
	}
	mode, err := types.ValidateSimulationMode(string(req.Mode), false)
	if err != nil {
		return nil, types.NewInvalidInput("%s", err)
	}
	speed := req.SpeedMultiplier
	if speed <= 0 {
		speed = defaultSpeedMultiplier
	}

	schedule, err := m.resolveSchedule(ctx, req)
	if err != nil {
		return nil, err
	}
	specs, err := m.loadSpecs(ctx)
	if err != nil {
		return nil, err
	}
	presetOrders, err := m.resolvePresetOrders(ctx, req, mode)
	if err != nil {
		return nil, err
	}

	state := &types.SimulationState{
		ID:                    system.GenerateSimulationID(),
		ScheduleID:            schedule.ID,
		Date:                  req.Date,
		Mode:                  mode,
		Status:                types.SimulationStatusRunning,
		SpeedMultiplier:       speed,
		StartedAtReal:         m.clock.Now(),
		CurrentTime:           float64(m.cfg.BusinessHours.StartMinutes),
		Batches:               seedBatches(schedule),
		Inventory:             map[string]int{},
		InventoryUnits:        map[string][]types.InventoryUnit{},
		PresetOrders:          presetOrders,
		ProcessedOrderKeys:    map[string]bool{},
		ProcessedOrdersByItem: map[string]*types.ProcessedItemOrders{},
		AutoApproveCatering:   req.AutoApproveCatering,
		Headless:              headless,
		Forecast:              schedule.Forecast.Data(),
		TimeIntervalForecast:  schedule.TimeIntervalForecast.Data(),
		ParConfig:             schedule.ParConfig.Data(),
		ForecastScale:         schedule.Parameters.Data().ForecastScale,
	}

	engineStore := m.store
	var publisher pubsub.Publisher = m.pub
	if headless {
		// what-if runs must leave the stored schedule alone
		engineStore = nil
		publisher = nil
	}
	return NewEngine(m.cfg, EngineParams{
		Store:     engineStore,
		Publisher: publisher,
		Allocator: m.rack,
		Clock:     m.clock,
		State:     state,
		Specs:     specs,
	})
}

// resolveSchedule loads the stored schedule for the date, or plans a fresh
// one when the request carries its own forecast.
func (m *Manager) resolveSchedule(ctx context.Context, req *types.StartSimulationRequest) (*types.Schedule, error) {
	if req.ForecastParams != nil {
		schedule, _, err := m.planner.GenerateSchedule(ctx, &types.ScheduleGenerateRequest{
			Date:           req.Date,
			ForecastParams: req.ForecastParams,
		})
		return schedule, err
	}
	schedule, err := m.store.GetScheduleByDate(ctx, req.Date)
	if errors.Is(err, store.ErrNotFound) {
		return nil, types.NewNotFound("no schedule for %s, generate one first", req.Date)
	}
	if err != nil {
		return nil, types.NewStoreIO("failed to load schedule for %s: %v", req.Date, err)
	}
	return schedule, nil
}

func (m *Manager) loadSpecs(ctx context.Context) (map[string]*types.BakeSpec, error) {
	specs, err := m.store.ListBakeSpecs(ctx, store.ListBakeSpecsQuery{OnlyActive: true})
	if err != nil {
		return nil, types.NewStoreIO("failed to list bake specs: %v", err)
	}
	byGUID := make(map[string]*types.BakeSpec, len(specs))
	for _, spec := range specs {
		byGUID[spec.ItemGUID] = spec
	}
	return byGUID, nil
}

func (m *Manager) resolvePresetOrders(ctx context.Context, req *types.StartSimulationRequest, mode types.SimulationMode) ([]*types.PresetOrder, error) {
	if mode != types.SimulationModePreset {
		return nil, nil
	}
	orders := req.PresetOrders
	if len(orders) == 0 {
		stored, err := m.store.ListOrderHistory(ctx, store.ListOrderHistoryQuery{Date: req.Date})
		if err != nil {
			return nil, types.NewStoreIO("failed to load order history for %s: %v", req.Date, err)
		}
		orders = stored
	}
	for _, o := range orders {
		if o.OrderID == "" {
			o.OrderID = system.GenerateOrderID()
		}
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].OrderTimeMinutes < orders[j].OrderTimeMinutes
	})
	return orders, nil
}

// seedBatches copies the schedule's placed batches into live state.
// Unplaced rows have no rack and would never transition, so they stay
// behind in the schedule.
func seedBatches(schedule *types.Schedule) []*types.Batch {
	var batches []*types.Batch
	for _, b := range schedule.Batches {
		if !b.Placed() {
			continue
		}
		batch := b
		batch.Status = types.BatchStatusScheduled
		batches = append(batches, &batch)
	}
	sort.SliceStable(batches, func(i, j int) bool {
		if batches[i].StartTime != batches[j].StartTime {
			return batches[i].StartTime < batches[j].StartTime
		}
		return batches[i].RackPosition < batches[j].RackPosition
	})
	return batches
}

func (m *Manager) GetEngine(id string) (*Engine, error) {
	engine, ok := m.engines.Load(id)
	if !ok {
		return nil, types.NewNotFound("simulation %s not found", id)
	}
	return engine, nil
}

func (m *Manager) ListSimulations() []*types.SimulationSummary {
	summaries := []*types.SimulationSummary{}
	m.engines.Range(func(_ string, e *Engine) bool {
		summaries = append(summaries, e.Summary())
		return true
	})
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})
	return summaries
}
