package scheduler

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"

	"github.com/bakeops/bakeops/api/pkg/config"
	"github.com/bakeops/bakeops/api/pkg/store"
	"github.com/bakeops/bakeops/api/pkg/system"
	"github.com/bakeops/bakeops/api/pkg/types"
)

// Planner turns a daily forecast plus the active bake specs into a schedule
// of batches on racks, persisted by date.
type Planner struct {
	cfg       *config.ServerConfig
	store     store.Store
	allocator RackAllocator
}

type PlannerParams struct {
	Store     store.Store
	Allocator RackAllocator
}

func NewPlanner(serverConfig *config.ServerConfig, params *PlannerParams) (*Planner, error) {
	if serverConfig == nil {
		return nil, fmt.Errorf("server config is required")
	}
	if params == nil || params.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	allocator := params.Allocator
	if allocator == nil {
		allocator = NewRackAllocator(
			serverConfig.BusinessHours.ToTypes(),
			serverConfig.Ovens.ToTypes(),
			serverConfig.Planner.MaxSlotAdvances,
		)
	}
	return &Planner{
		cfg:       serverConfig,
		store:     params.Store,
		allocator: allocator,
	}, nil
}

// plannedBatch is a batch the forecast demands, before placement. A
// desiredStart of -1 means the batch has no demand interval of its own and
// is placed sequentially.
type plannedBatch struct {
	batch        *types.Batch
	spec         *types.BakeSpec
	desiredStart int
}

// GenerateSchedule derives batch counts from the daily forecast, schedules
// them PAR-aware against the intraday curves, places them on racks and
// persists the result. Items whose spec is missing or unusable are reported
// in the summary, not fatal. Batches that cannot be placed stay unplaced.
func (p *Planner) GenerateSchedule(ctx context.Context, req *types.ScheduleGenerateRequest) (*types.Schedule, *types.ScheduleSummary, error) {
	if req == nil || req.Date == "" {
		return nil, nil, types.NewInvalidInput("date is required")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return nil, nil, types.NewInvalidInput("invalid date %q, want YYYY-MM-DD", req.Date)
	}
	params := req.ForecastParams
	if params == nil {
		return nil, nil, types.NewInvalidInput("forecast params are required")
	}

	specs, err := p.store.ListBakeSpecs(ctx, store.ListBakeSpecsQuery{OnlyActive: true})
	if err != nil {
		return nil, nil, types.NewStoreIO("listing bake specs: %v", err)
	}
	specByGUID := make(map[string]*types.BakeSpec, len(specs))
	for _, spec := range specs {
		specByGUID[spec.ItemGUID] = spec
	}

	forecast := scaleDailyForecast(params.Forecast, params.ForecastScale)
	intraday := scaleIntradayForecast(params.TimeIntervalForecast, params.ForecastScale)

	required, sequential, rejected := p.deriveBatches(forecast, intraday, params.ParConfig, specByGUID)
	placed, unplaced := p.placeBatches(required, sequential)

	all := make([]types.Batch, 0, len(placed)+len(unplaced))
	for _, b := range placed {
		all = append(all, *b)
	}
	for _, b := range unplaced {
		all = append(all, *b)
	}

	schedule := &types.Schedule{
		Date:                 req.Date,
		Batches:              datatypes.NewJSONSlice(all),
		Forecast:             datatypes.NewJSONType(forecast),
		TimeIntervalForecast: datatypes.NewJSONType(intraday),
		ParConfig:            datatypes.NewJSONType(params.ParConfig),
		Parameters: datatypes.NewJSONType(types.ScheduleParameters{
			GeneratedAt:   time.Now(),
			ForecastScale: params.ForecastScale,
		}),
	}
	saved, err := p.store.UpsertSchedule(ctx, schedule)
	if err != nil {
		return nil, nil, types.NewStoreIO("persisting schedule for %s: %v", req.Date, err)
	}

	summary := &types.ScheduleSummary{
		Date:            req.Date,
		TotalBatches:    len(all),
		PlacedBatches:   len(placed),
		UnplacedBatches: len(unplaced),
		BatchesByItem:   make(map[string]int),
		RejectedItems:   rejected,
	}
	for i := range all {
		summary.BatchesByItem[all[i].ItemGUID]++
	}

	log.Info().
		Str("schedule_id", saved.ID).
		Str("date", req.Date).
		Int("total_batches", summary.TotalBatches).
		Int("placed", summary.PlacedBatches).
		Int("unplaced", summary.UnplacedBatches).
		Int("rejected_items", len(rejected)).
		Msg("generated schedule")

	return saved, summary, nil
}

// deriveBatches runs batch-count derivation and PAR-aware scheduling per
// item. Items with an intraday curve yield batches with desired starts;
// the rest (and any batches beyond what the curve requires) go to the
// sequential pool.
func (p *Planner) deriveBatches(
	forecast types.DailyForecast,
	intraday types.IntradayForecast,
	parConfig types.ParConfig,
	specByGUID map[string]*types.BakeSpec,
) (required []*plannedBatch, sequential []*plannedBatch, rejected []types.RejectedSpecError) {
	guids := make([]string, 0, len(forecast))
	for guid := range forecast {
		guids = append(guids, guid)
	}
	sort.Strings(guids)

	for _, guid := range guids {
		demand := forecast[guid]
		if demand <= 0 {
			continue
		}
		spec := specByGUID[guid]
		if spec == nil {
			rejected = append(rejected, types.RejectedSpecError{
				ItemGUID: guid,
				Reason:   "no active bake spec",
			})
			continue
		}
		if !spec.Valid() {
			rejected = append(rejected, types.RejectedSpecError{
				ItemGUID: guid,
				Reason:   "bake spec is missing capacity or bake time",
			})
			continue
		}

		parMin, parMax := spec.ParMin, spec.ParMax
		if par, ok := parConfig[guid]; ok {
			parMin, parMax = par.ParMin, par.ParMax
		}

		target := demand + max(spec.RestockThreshold, parMin)
		batchCount := (target + spec.CapacityPerRack - 1) / spec.CapacityPerRack
		if batchCount <= 0 {
			continue
		}

		curve := intraday[guid]
		if len(curve) == 0 {
			for i := 0; i < batchCount; i++ {
				sequential = append(sequential, p.newPlannedBatch(spec))
			}
			continue
		}

		starts := p.requiredStarts(spec, curve, parMin, parMax, batchCount)
		for _, start := range starts {
			pb := p.newPlannedBatch(spec)
			pb.desiredStart = start
			required = append(required, pb)
		}
		for i := len(starts); i < batchCount; i++ {
			sequential = append(sequential, p.newPlannedBatch(spec))
		}
	}
	return required, sequential, rejected
}

// requiredStarts walks the item's intraday curve and decides when batches
// must become available so projected inventory never drops below parMin.
// A second pass delays batches whose arrival would overshoot parMax, by
// half the PAR band, without missing their demand interval.
func (p *Planner) requiredStarts(spec *types.BakeSpec, curve []types.TimeIntervalForecast, parMin, parMax, batchCount int) []int {
	points := make([]types.TimeIntervalForecast, len(curve))
	copy(points, curve)
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].TimeInterval < points[j].TimeInterval
	})
	hours := p.allocator.Hours()

	type requirement struct {
		start    int
		interval int
	}
	var requirements []requirement
	cumulativeDemand := 0
	cumulativeSupply := 0
	for _, point := range points {
		cumulativeDemand += point.Forecast
		for len(requirements) < batchCount && cumulativeSupply < cumulativeDemand+parMin {
			start := point.TimeInterval - spec.BakeTimeMinutes - spec.CoolTimeMinutes
			if start < hours.StartMinutes {
				start = hours.StartMinutes
			}
			requirements = append(requirements, requirement{
				start:    types.CeilToGrid(start),
				interval: point.TimeInterval,
			})
			cumulativeSupply += spec.CapacityPerRack
		}
	}

	// Waste exposure. A batch triggered early to protect parMin may land
	// while inventory is still high. When its arrival would overshoot
	// parMax, push its start later by half the PAR band, but never so late
	// that raw demand consumes units the batch has not delivered yet.
	if parMax > parMin {
		delay := (parMax - parMin) / 2
		demandBefore := func(interval int) int {
			total := 0
			for _, point := range points {
				if point.TimeInterval < interval {
					total += point.Forecast
				}
			}
			return total
		}
		neededBy := func(supplyBefore int) int {
			cumulative := 0
			for _, point := range points {
				cumulative += point.Forecast
				if cumulative > supplyBefore {
					return point.TimeInterval
				}
			}
			return points[len(points)-1].TimeInterval
		}
		supply := 0
		for i := range requirements {
			onHand := supply - demandBefore(requirements[i].interval)
			if onHand < 0 {
				onHand = 0
			}
			if onHand+spec.CapacityPerRack > parMax {
				bound := types.FloorToGrid(neededBy(supply) - spec.BakeTimeMinutes - spec.CoolTimeMinutes)
				delayed := types.CeilToGrid(requirements[i].start + delay)
				if delayed > bound {
					delayed = bound
				}
				if delayed > requirements[i].start {
					requirements[i].start = delayed
				}
			}
			supply += spec.CapacityPerRack
		}
	}

	starts := make([]int, len(requirements))
	for i, r := range requirements {
		starts[i] = r.start
	}
	return starts
}

// placeBatches puts demand-anchored batches on racks near their desired
// starts, then fills the sequential pool into the earliest free slots.
// Batches the allocator cannot fit stay unplaced.
func (p *Planner) placeBatches(required, sequential []*plannedBatch) (placed []*types.Batch, unplaced []*types.Batch) {
	sort.SliceStable(required, func(i, j int) bool {
		if required[i].desiredStart != required[j].desiredStart {
			return required[i].desiredStart < required[j].desiredStart
		}
		return required[i].batch.ItemGUID < required[j].batch.ItemGUID
	})
	for _, pb := range required {
		placement, err := p.allocator.FindSlotAt(pb.spec, placed, pb.desiredStart)
		if err != nil {
			log.Warn().
				Str("item_guid", pb.batch.ItemGUID).
				Str("desired_start", types.FormatClock(pb.desiredStart)).
				Err(err).
				Msg("batch could not be placed")
			unplaced = append(unplaced, pb.batch)
			continue
		}
		applyPlacement(pb.batch, placement, p.allocator.Ovens())
		placed = append(placed, pb.batch)
	}

	sort.SliceStable(sequential, func(i, j int) bool {
		if sequential[i].batch.BakeTime != sequential[j].batch.BakeTime {
			return sequential[i].batch.BakeTime < sequential[j].batch.BakeTime
		}
		if sequential[i].batch.Quantity != sequential[j].batch.Quantity {
			return sequential[i].batch.Quantity > sequential[j].batch.Quantity
		}
		return sequential[i].batch.ItemGUID < sequential[j].batch.ItemGUID
	})
	for _, pb := range sequential {
		placement, err := p.allocator.FindEarliestSlot(pb.spec, placed, p.allocator.Hours().StartMinutes)
		if err != nil {
			log.Warn().
				Str("item_guid", pb.batch.ItemGUID).
				Err(err).
				Msg("batch could not be placed")
			unplaced = append(unplaced, pb.batch)
			continue
		}
		applyPlacement(pb.batch, placement, p.allocator.Ovens())
		placed = append(placed, pb.batch)
	}

	sort.SliceStable(placed, func(i, j int) bool {
		if placed[i].StartTime != placed[j].StartTime {
			return placed[i].StartTime < placed[j].StartTime
		}
		return placed[i].RackPosition < placed[j].RackPosition
	})
	return placed, unplaced
}

func (p *Planner) newPlannedBatch(spec *types.BakeSpec) *plannedBatch {
	return &plannedBatch{
		batch: &types.Batch{
			ID:          system.GenerateBatchID(),
			ItemGUID:    spec.ItemGUID,
			DisplayName: spec.DisplayName,
			Quantity:    spec.CapacityPerRack,
			BakeTime:    spec.BakeTimeMinutes,
			CoolTime:    spec.CoolTimeMinutes,
			Oven:        spec.Oven,
			Status:      types.BatchStatusScheduled,
		},
		spec:         spec,
		desiredStart: -1,
	}
}

func applyPlacement(batch *types.Batch, placement *Placement, ovens types.OvenConfig) {
	batch.RackPosition = placement.Rack
	batch.Oven = ovens.OvenForRack(placement.Rack)
	batch.SetStart(placement.StartTime)
}

func scaleDailyForecast(forecast types.DailyForecast, scale float64) types.DailyForecast {
	scaled := make(types.DailyForecast, len(forecast))
	for guid, units := range forecast {
		scaled[guid] = scaleUnits(units, scale)
	}
	return scaled
}

func scaleIntradayForecast(intraday types.IntradayForecast, scale float64) types.IntradayForecast {
	scaled := make(types.IntradayForecast, len(intraday))
	for guid, curve := range intraday {
		points := make([]types.TimeIntervalForecast, len(curve))
		for i, point := range curve {
			points[i] = types.TimeIntervalForecast{
				TimeInterval: point.TimeInterval,
				Forecast:     scaleUnits(point.Forecast, scale),
			}
		}
		scaled[guid] = points
	}
	return scaled
}

func scaleUnits(units int, scale float64) int {
	if scale <= 0 || scale == 1 {
		return units
	}
	return int(math.Round(float64(units) * scale))
}
