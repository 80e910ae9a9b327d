package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakeops/bakeops/api/pkg/config"
	"github.com/bakeops/bakeops/api/pkg/headless"
	"github.com/bakeops/bakeops/api/pkg/pubsub"
	"github.com/bakeops/bakeops/api/pkg/scheduler"
	"github.com/bakeops/bakeops/api/pkg/simulation"
	"github.com/bakeops/bakeops/api/pkg/store/memorystore"
	"github.com/bakeops/bakeops/api/pkg/types"
)

func serverTestConfig() *config.ServerConfig {
	return &config.ServerConfig{
		BusinessHours: config.BusinessHours{StartMinutes: 360, EndMinutes: 1020},
		Ovens:         config.Ovens{OvenCount: 2, RacksPerOven: 6},
		Planner:       config.Planner{MaxSlotAdvances: 5},
		Suggestions: config.Suggestions{
			ConfidenceTargetUnits:    50,
			MinShortfallUnits:        5,
			MinConfidencePercent:     50,
			PredictiveMinLeadMinutes: 60,
			PredictiveMaxLeadMinutes: 300,
			EndOfDayCutoffMinutes:    60,
			ReactiveWindowMinutes:    60,
			ReactiveMinObservedUnits: 10,
			ReactiveMinRate:          0.1,
			ReactiveDepletionMinutes: 90,
			ReactiveBufferMinutes:    180,
			ReactiveConfidenceTarget: 30,
		},
		Simulation: config.Simulation{
			DriverTick:         100 * time.Millisecond,
			CleanupInterval:    10 * time.Minute,
			TTL:                time.Hour,
			AdvanceConcurrency: 4,
			MirrorAttempts:     2,
		},
		Catering:  config.Catering{MinLeadMinutes: 120, MaxStaggerMinutes: 120},
		WebServer: config.WebServer{Host: "127.0.0.1", Port: 8080},
	}
}

// newTestServer wires a full API server against the in-memory store with a
// single active croissant spec, routes registered and ready for ServeHTTP.
func newTestServer(t *testing.T) *BakeOpsAPIServer {
	t.Helper()

	db := memorystore.New()
	_, err := db.CreateBakeSpec(context.Background(), &types.BakeSpec{
		ItemGUID:        "croissant",
		DisplayName:     "Croissant",
		CapacityPerRack: 24,
		BakeTimeMinutes: 20,
		CoolTimeMinutes: 10,
		Oven:            1,
		Active:          true,
	})
	require.NoError(t, err)

	cfg := serverTestConfig()
	planner, err := scheduler.NewPlanner(cfg, &scheduler.PlannerParams{Store: db})
	require.NoError(t, err)
	manager, err := simulation.NewManager(cfg, &simulation.ManagerParams{Store: db})
	require.NoError(t, err)
	runner := headless.NewRunner(cfg, manager)

	srv, err := NewServer(cfg, db, pubsub.NewInMemory(), planner, manager, runner)
	require.NoError(t, err)
	srv.registerRoutes()
	return srv
}

// request serves one request through the full router, middleware included.
// A string body is sent verbatim, anything else is marshalled as JSON.
func request(t *testing.T, srv *BakeOpsAPIServer, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	switch v := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(v)
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "body: %s", rec.Body.String())
	return out
}

func startTestSimulation(t *testing.T, srv *BakeOpsAPIServer, date string) *types.SimulationSnapshot {
	t.Helper()
	rec := request(t, srv, http.MethodPost, "/api/v1/simulations", &types.StartSimulationRequest{
		Date: date,
		Mode: types.SimulationModeManual,
		ForecastParams: &types.ForecastParams{
			Forecast: types.DailyForecast{"croissant": 24},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[*types.SimulationSnapshot](t, rec)
}

func TestNewServer_RequiresListenAddress(t *testing.T) {
	cfg := serverTestConfig()
	cfg.WebServer.Host = ""
	_, err := NewServer(cfg, memorystore.New(), pubsub.NewInMemory(), nil, nil, nil)
	require.Error(t, err)

	cfg = serverTestConfig()
	cfg.WebServer.Port = 0
	_, err = NewServer(cfg, memorystore.New(), pubsub.NewInMemory(), nil, nil, nil)
	require.Error(t, err)
}

func TestGenerateAndFetchSchedule(t *testing.T) {
	srv := newTestServer(t)

	rec := request(t, srv, http.MethodPost, "/api/v1/schedules/generate", &types.ScheduleGenerateRequest{
		Date: "2026-03-14",
		ForecastParams: &types.ForecastParams{
			Forecast: types.DailyForecast{"croissant": 40},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[*types.ScheduleGenerateResponse](t, rec)
	require.NotNil(t, resp.Schedule)
	require.NotNil(t, resp.Summary)
	assert.Equal(t, "2026-03-14", resp.Schedule.Date)
	assert.Equal(t, 2, resp.Summary.TotalBatches)
	assert.Equal(t, 2, resp.Summary.PlacedBatches)
	assert.Equal(t, 0, resp.Summary.UnplacedBatches)
	assert.Equal(t, 2, resp.Summary.BatchesByItem["croissant"])
	assert.Len(t, resp.Schedule.Batches, 2)

	rec = request(t, srv, http.MethodGet, "/api/v1/schedules/2026-03-14", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fetched := decodeBody[*types.Schedule](t, rec)
	assert.Equal(t, resp.Schedule.ID, fetched.ID)
	assert.Len(t, fetched.Batches, 2)

	rec = request(t, srv, http.MethodGet, "/api/v1/schedules/2030-01-01", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateSchedule_BadBody(t *testing.T) {
	srv := newTestServer(t)

	rec := request(t, srv, http.MethodPost, "/api/v1/schedules/generate", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownAPIPathReturns404(t *testing.T) {
	srv := newTestServer(t)

	rec := request(t, srv, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSimulationLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	snap := startTestSimulation(t, srv, "2026-03-14")
	assert.True(t, strings.HasPrefix(snap.ID, "sim_"), snap.ID)
	assert.Equal(t, types.SimulationStatusRunning, snap.Status)
	assert.Equal(t, types.SimulationModeManual, snap.Mode)
	assert.Equal(t, "2026-03-14", snap.Date)

	rec := request(t, srv, http.MethodGet, "/api/v1/simulations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summaries := decodeBody[[]*types.SimulationSummary](t, rec)
	require.Len(t, summaries, 1)
	assert.Equal(t, snap.ID, summaries[0].ID)

	rec = request(t, srv, http.MethodGet, "/api/v1/simulations/"+snap.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, snap.ID, decodeBody[*types.SimulationSnapshot](t, rec).ID)

	rec = request(t, srv, http.MethodGet, "/api/v1/simulations/sim_missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "sim_missing")

	rec = request(t, srv, http.MethodPost, "/api/v1/simulations/"+snap.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.SimulationStatusPaused, decodeBody[*types.SimulationSnapshot](t, rec).Status)

	// pausing twice is a state error
	rec = request(t, srv, http.MethodPost, "/api/v1/simulations/"+snap.ID+"/pause", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = request(t, srv, http.MethodPost, "/api/v1/simulations/"+snap.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.SimulationStatusRunning, decodeBody[*types.SimulationSnapshot](t, rec).Status)

	rec = request(t, srv, http.MethodPost, "/api/v1/simulations/"+snap.ID+"/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.SimulationStatusStopped, decodeBody[*types.SimulationSnapshot](t, rec).Status)

	rec = request(t, srv, http.MethodPost, "/api/v1/simulations/"+snap.ID+"/resume", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartSimulation_Validation(t *testing.T) {
	srv := newTestServer(t)

	rec := request(t, srv, http.MethodPost, "/api/v1/simulations", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = request(t, srv, http.MethodPost, "/api/v1/simulations", &types.StartSimulationRequest{
		Date: "14/03/2026",
		Mode: types.SimulationModeManual,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// no inline forecast and no stored schedule for the date
	rec = request(t, srv, http.MethodPost, "/api/v1/simulations", &types.StartSimulationRequest{
		Date: "2026-03-15",
		Mode: types.SimulationModeManual,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchMutationsOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	snap := startTestSimulation(t, srv, "2026-03-14")
	base := "/api/v1/simulations/" + snap.ID + "/batches"

	rec := request(t, srv, http.MethodPost, base, &types.AddBatchRequest{
		ItemGUID:  "croissant",
		StartTime: "07:00",
		Quantity:  10,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	added := decodeBody[*types.BatchMutationResponse](t, rec)
	require.NotNil(t, added.Batch)
	assert.Equal(t, "croissant", added.Batch.ItemGUID)
	assert.Equal(t, 10, added.Batch.Quantity)
	assert.Equal(t, 420, added.Batch.StartTime)
	assert.Equal(t, types.BatchStatusScheduled, added.Batch.Status)

	rec = request(t, srv, http.MethodPost, base, &types.AddBatchRequest{ItemGUID: "croissant", StartTime: "late"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = request(t, srv, http.MethodPost, base, &types.AddBatchRequest{ItemGUID: "bagel", StartTime: "07:00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = request(t, srv, http.MethodPost, base, &types.AddBatchRequest{ItemGUID: "croissant", StartTime: "05:00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// move the added batch an hour later on its own rack
	rec = request(t, srv, http.MethodPut, base+"/"+added.Batch.ID, &types.MoveBatchRequest{NewStartTime: "08:00"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decodeBody[*types.BatchMutationResponse](t, rec)
	require.NotNil(t, moved.Batch)
	assert.Equal(t, 480, moved.Batch.StartTime)

	// an oven 1 item cannot bake on an oven 2 rack
	rec = request(t, srv, http.MethodPut, base+"/"+added.Batch.ID, &types.MoveBatchRequest{NewStartTime: "08:00", NewRack: 7})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// still baking at close
	rec = request(t, srv, http.MethodPut, base+"/"+added.Batch.ID, &types.MoveBatchRequest{NewStartTime: "17:00"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// a second batch cannot move onto the first one's rack slot
	rec = request(t, srv, http.MethodPost, base, &types.AddBatchRequest{ItemGUID: "croissant", StartTime: "08:00"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decodeBody[*types.BatchMutationResponse](t, rec)
	require.NotNil(t, second.Batch)

	rec = request(t, srv, http.MethodPut, base+"/"+second.Batch.ID, &types.MoveBatchRequest{
		NewStartTime: "08:00",
		NewRack:      moved.Batch.RackPosition,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = request(t, srv, http.MethodPut, base+"/batch_missing", &types.MoveBatchRequest{NewStartTime: "09:00"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = request(t, srv, http.MethodDelete, base+"/"+added.Batch.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = request(t, srv, http.MethodDelete, base+"/"+added.Batch.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSuggestionModeValidation(t *testing.T) {
	srv := newTestServer(t)
	snap := startTestSimulation(t, srv, "2026-03-14")
	base := "/api/v1/simulations/" + snap.ID + "/suggestions"

	rec := request(t, srv, http.MethodGet, base+"?mode=both", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = request(t, srv, http.MethodGet, base+"?mode=turbo", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// empty mode defaults to predictive
	rec = request(t, srv, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeBody[[]*types.Proposal](t, rec)

	rec = request(t, srv, http.MethodGet, base+"?mode=reactive", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPurchaseValidationOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	snap := startTestSimulation(t, srv, "2026-03-14")
	path := "/api/v1/simulations/" + snap.ID + "/purchase"

	rec := request(t, srv, http.MethodPost, path, &types.PurchaseRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least one item")

	// nothing has baked yet, so there is nothing to sell
	rec = request(t, srv, http.MethodPost, path, &types.PurchaseRequest{
		Items: []types.PurchaseItem{{ItemGUID: "croissant", Quantity: 5}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "only 0 units")
}

func TestCateringOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	snap := startTestSimulation(t, srv, "2026-03-14")
	base := "/api/v1/simulations/" + snap.ID + "/catering"

	rec := request(t, srv, http.MethodPost, base, &types.CreateCateringOrderRequest{
		RequiredAvailableTime: "nope",
		Items:                 []types.CateringItem{{ItemGUID: "croissant", Quantity: 10}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// inside the minimum lead window
	rec = request(t, srv, http.MethodPost, base, &types.CreateCateringOrderRequest{
		RequiredAvailableTime: "06:20",
		Items:                 []types.CateringItem{{ItemGUID: "croissant", Quantity: 10}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "120 minutes")

	// more batches than the stagger window has rack time for
	rec = request(t, srv, http.MethodPost, base, &types.CreateCateringOrderRequest{
		RequiredAvailableTime: "12:00",
		Items:                 []types.CateringItem{{ItemGUID: "croissant", Quantity: 24 * 90}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "no rack time")

	rec = request(t, srv, http.MethodPost, base, &types.CreateCateringOrderRequest{
		RequiredAvailableTime: "12:00",
		Items:                 []types.CateringItem{{ItemGUID: "croissant", Quantity: 10}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	order := decodeBody[*types.CateringOrder](t, rec)
	assert.Equal(t, types.CateringStatusPending, order.Status)
	assert.Equal(t, 720, order.RequiredAvailableTime)
	require.Len(t, order.CreatedBatches, 1)

	rec = request(t, srv, http.MethodPost, base+"/"+order.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.CateringStatusApproved, decodeBody[*types.CateringOrder](t, rec).Status)

	rec = request(t, srv, http.MethodPost, base+"/"+order.ID+"/approve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = request(t, srv, http.MethodPost, base+"/cat_missing/reject", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = request(t, srv, http.MethodPut, base+"/auto-approve", &types.AutoApproveCateringRequest{Enabled: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[*types.AutoApproveCateringRequest](t, rec).Enabled)

	// with auto-approve on, new orders skip the pending state
	rec = request(t, srv, http.MethodPost, base, &types.CreateCateringOrderRequest{
		RequiredAvailableTime: "13:00",
		Items:                 []types.CateringItem{{ItemGUID: "croissant", Quantity: 5}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, types.CateringStatusApproved, decodeBody[*types.CateringOrder](t, rec).Status)
}

func TestHeadlessRunOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	rec := request(t, srv, http.MethodPost, "/api/v1/headless/run", &types.HeadlessRunRequest{
		Date:         "2026-03-14",
		Mode:         types.SimulationModePreset,
		Algorithm:    types.SuggestionAlgorithmPredictive,
		IntervalMins: 60,
		ForecastParams: &types.ForecastParams{
			Forecast: types.DailyForecast{"croissant": 40},
		},
		PresetOrders: []*types.PresetOrder{
			{ItemGUID: "croissant", DisplayName: "Croissant", Quantity: 10, OrderTimeMinutes: 540},
			{ItemGUID: "croissant", DisplayName: "Croissant", Quantity: 30, OrderTimeMinutes: 700},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decodeBody[*types.HeadlessReport](t, rec)
	assert.Len(t, report.Steps, 11)
	assert.Equal(t, 2, report.Totals.BatchesStarted)
	assert.Equal(t, 40, report.Totals.ItemsProcessed)
	assert.Equal(t, 0, report.Totals.ItemsMissed)
	assert.Equal(t, 8, report.Totals.FinalInventory)

	rec = request(t, srv, http.MethodPost, "/api/v1/headless/run", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = request(t, srv, http.MethodPost, "/api/v1/headless/run", &types.HeadlessRunRequest{
		Date:      "2026-03-14",
		Mode:      types.SimulationModePreset,
		Algorithm: "turbo",
		ForecastParams: &types.ForecastParams{
			Forecast: types.DailyForecast{"croissant": 40},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSpecsOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	_, err := srv.Store.CreateBakeSpec(context.Background(), &types.BakeSpec{
		ItemGUID:        "rye-loaf",
		DisplayName:     "Rye Loaf",
		CapacityPerRack: 12,
		BakeTimeMinutes: 40,
		CoolTimeMinutes: 20,
		Oven:            2,
		Active:          false,
	})
	require.NoError(t, err)

	rec := request(t, srv, http.MethodGet, "/api/v1/specs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	specs := decodeBody[[]*types.BakeSpec](t, rec)
	require.Len(t, specs, 1)
	assert.Equal(t, "croissant", specs[0].ItemGUID)
}
