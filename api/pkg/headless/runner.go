package headless

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bakeops/bakeops/api/pkg/config"
	"github.com/bakeops/bakeops/api/pkg/simulation"
	"github.com/bakeops/bakeops/api/pkg/types"
)

// Default step when a run does not name one: one grid slot of simulated time.
const defaultIntervalMins = types.GridMinutes

// defaultMaxPerInterval caps how many proposals one step may accept when the
// request leaves the limit unset.
const defaultMaxPerInterval = 2

// Runner drives a whole simulated day synchronously. It steps a private
// engine that is never registered with the driver, so wall-clock pacing,
// broadcasting and schedule mirroring are all out of the picture: the same
// request always produces the same rows.
type Runner struct {
	cfg     *config.ServerConfig
	manager *simulation.Manager
}

func NewRunner(cfg *config.ServerConfig, manager *simulation.Manager) *Runner {
	return &Runner{cfg: cfg, manager: manager}
}

// Run steps a fresh simulation from opening to close in interval-sized
// jumps, consulting the requested suggestion algorithm after every jump and,
// with AutoAdd set, feeding qualifying proposals straight back in.
func (r *Runner) Run(ctx context.Context, req *types.HeadlessRunRequest) (*types.HeadlessReport, error) {
	if req == nil {
		return nil, types.NewInvalidInput("headless run request is required")
	}
	rawAlgorithm := req.Algorithm
	if rawAlgorithm == types.SuggestionAlgorithmNone {
		rawAlgorithm = types.SuggestionAlgorithmPredictive
	}
	algorithm, err := types.ValidateSuggestionAlgorithm(string(rawAlgorithm), true)
	if err != nil {
		return nil, types.NewInvalidInput("%s", err)
	}
	interval := req.IntervalMins
	if interval <= 0 {
		interval = defaultIntervalMins
	}
	maxPerInterval := req.MaxPerInterval
	if maxPerInterval <= 0 {
		maxPerInterval = defaultMaxPerInterval
	}
	if req.MinConfidence < 0 || req.MinConfidence > 100 {
		return nil, types.NewInvalidInput("min confidence %d outside 0..100", req.MinConfidence)
	}

	engine, err := r.manager.StartHeadless(ctx, &types.StartSimulationRequest{
		Date:           req.Date,
		Mode:           req.Mode,
		ForecastParams: req.ForecastParams,
		PresetOrders:   req.PresetOrders,
	})
	if err != nil {
		return nil, err
	}

	started := time.Now()
	endMinutes := r.cfg.BusinessHours.EndMinutes
	var steps []types.HeadlessStep
	totalProposals, totalAccepted := 0, 0

	for t := r.cfg.BusinessHours.StartMinutes + interval; ; t += interval {
		if t > endMinutes {
			t = endMinutes
		}
		engine.AdvanceTo(float64(t))

		proposed, accepted := 0, 0
		// the final jump completes the day, and a completed simulation
		// takes no more batches
		if engine.Status() == types.SimulationStatusRunning {
			proposals, err := engine.Suggestions(algorithm)
			if err != nil {
				return nil, err
			}
			proposed = len(proposals)
			if req.AutoAdd {
				accepted = r.acceptProposals(ctx, engine, proposals, req.MinConfidence, maxPerInterval)
			}
		}
		totalProposals += proposed
		totalAccepted += accepted

		snapshot := engine.Snapshot()
		steps = append(steps, types.HeadlessStep{
			Time:           snapshot.CurrentTime,
			Proposals:      proposed,
			Accepted:       accepted,
			TotalInventory: snapshot.Stats.TotalInventory,
			ItemsProcessed: snapshot.Stats.ItemsProcessed,
			ItemsMissed:    snapshot.Stats.ItemsMissed,
			ActiveBatches:  len(snapshot.Batches),
		})
		if t >= endMinutes {
			break
		}
	}

	final := engine.Snapshot()
	report := &types.HeadlessReport{
		SimulationID:   final.ID,
		Date:           final.Date,
		Mode:           final.Mode,
		Algorithm:      algorithm,
		IntervalMins:   interval,
		AutoAdd:        req.AutoAdd,
		MaxPerInterval: maxPerInterval,
		MinConfidence:  req.MinConfidence,
		Condensed:      req.Condensed,
		Items:          itemSummaries(final),
		Totals: types.HeadlessTotals{
			Proposals:           totalProposals,
			Accepted:            totalAccepted,
			BatchesStarted:      final.Stats.BatchesStarted,
			BatchesPulled:       final.Stats.BatchesPulled,
			BatchesAvailable:    final.Stats.BatchesAvailable,
			ItemsProcessed:      final.Stats.ItemsProcessed,
			ItemsMissed:         final.Stats.ItemsMissed,
			PeakInventory:       final.Stats.PeakInventory,
			FinalInventory:      final.Stats.TotalInventory,
			SuggestionsAccepted: final.Stats.SuggestionsAccepted,
			StoreErrors:         final.Stats.StoreErrors,
		},
		Duration: time.Since(started),
	}
	if !req.Condensed {
		report.Steps = steps
	}

	log.Info().
		Str("simulation_id", final.ID).
		Str("date", final.Date).
		Str("algorithm", string(algorithm)).
		Int("proposals", totalProposals).
		Int("accepted", totalAccepted).
		Int("items_processed", report.Totals.ItemsProcessed).
		Int("items_missed", report.Totals.ItemsMissed).
		Dur("took", report.Duration).
		Msg("headless run finished")
	return report, nil
}

// acceptProposals feeds proposals back into the engine in the order the
// suggesters emitted them, skipping anything under the confidence floor.
// Proposals the racks cannot take are skipped, not fatal.
func (r *Runner) acceptProposals(ctx context.Context, engine *simulation.Engine, proposals []*types.Proposal, minConfidence, limit int) int {
	accepted := 0
	for _, p := range proposals {
		if accepted >= limit {
			break
		}
		if p.Reason.ConfidencePercent < minConfidence {
			continue
		}
		if _, err := engine.AcceptProposal(ctx, p); err != nil {
			log.Debug().
				Err(err).
				Str("item_guid", p.ItemGUID).
				Int("start_time", p.StartTime).
				Msg("headless run skipped a proposal")
			continue
		}
		accepted++
	}
	return accepted
}

// itemSummaries rolls the final snapshot up per item: everything that was
// baked, sold, ordered or missed gets a row, sorted by item guid.
func itemSummaries(snapshot *types.SimulationSnapshot) []types.HeadlessItemSummary {
	display := map[string]string{}
	missed := map[string]int{}
	note := func(guid, name string) {
		if guid == "" {
			return
		}
		if _, ok := display[guid]; !ok || display[guid] == "" {
			display[guid] = name
		}
	}

	for guid := range snapshot.Inventory {
		note(guid, "")
	}
	for guid, processed := range snapshot.ProcessedOrdersByItem {
		note(guid, processed.DisplayName)
	}
	for _, m := range snapshot.MissedOrders {
		note(m.ItemGUID, m.DisplayName)
		missed[m.ItemGUID] += m.RequestedQuantity
	}
	for _, b := range snapshot.Batches {
		note(b.ItemGUID, b.DisplayName)
	}
	for _, b := range snapshot.CompletedBatches {
		note(b.ItemGUID, b.DisplayName)
	}

	guids := make([]string, 0, len(display))
	for guid := range display {
		guids = append(guids, guid)
	}
	sort.Strings(guids)

	items := make([]types.HeadlessItemSummary, 0, len(guids))
	for _, guid := range guids {
		name := display[guid]
		if name == "" {
			name = guid
		}
		processed := 0
		if p := snapshot.ProcessedOrdersByItem[guid]; p != nil {
			processed = p.TotalQuantity
		}
		items = append(items, types.HeadlessItemSummary{
			ItemGUID:       guid,
			DisplayName:    name,
			ItemsProcessed: processed,
			ItemsMissed:    missed[guid],
			FinalInventory: snapshot.Inventory[guid],
		})
	}
	return items
}
