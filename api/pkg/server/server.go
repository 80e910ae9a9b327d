package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/bakeops/bakeops/api/pkg/config"
	"github.com/bakeops/bakeops/api/pkg/headless"
	"github.com/bakeops/bakeops/api/pkg/pubsub"
	"github.com/bakeops/bakeops/api/pkg/scheduler"
	"github.com/bakeops/bakeops/api/pkg/simulation"
	"github.com/bakeops/bakeops/api/pkg/store"
	"github.com/bakeops/bakeops/api/pkg/system"
)

const APIPrefix = "/api/v1"

// BakeOpsAPIServer is the HTTP + WebSocket surface over the production
// core: schedules, simulations and their mutations, suggestions, catering
// and headless runs.
type BakeOpsAPIServer struct {
	Cfg     *config.ServerConfig
	Store   store.Store
	pubsub  pubsub.PubSub
	planner *scheduler.Planner
	manager *simulation.Manager
	runner  *headless.Runner
	router  *mux.Router
}

func NewServer(
	cfg *config.ServerConfig,
	db store.Store,
	ps pubsub.PubSub,
	planner *scheduler.Planner,
	manager *simulation.Manager,
	runner *headless.Runner,
) (*BakeOpsAPIServer, error) {
	if cfg.WebServer.Host == "" {
		return nil, fmt.Errorf("server host is required")
	}

	if cfg.WebServer.Port == 0 {
		return nil, fmt.Errorf("server port is required")
	}

	apiServer := &BakeOpsAPIServer{
		Cfg:     cfg,
		Store:   db,
		pubsub:  ps,
		planner: planner,
		manager: manager,
		runner:  runner,
	}
	return apiServer, nil
}

func (apiServer *BakeOpsAPIServer) ListenAndServe(_ context.Context) error {
	apiRouter := apiServer.registerRoutes()

	apiServer.startSimulationWebSocketServer(
		apiRouter,
		"/ws/simulations",
	)

	srv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", apiServer.Cfg.WebServer.Host, apiServer.Cfg.WebServer.Port),
		// WriteTimeout and ReadTimeout set to 0 (no timeout): snapshot
		// broadcasts ride long-lived WebSocket upgrades.
		// Note: ReadHeaderTimeout is kept to prevent slowloris attacks
		WriteTimeout:      0,
		ReadTimeout:       0,
		ReadHeaderTimeout: time.Second * 60,
		IdleTimeout:       time.Minute * 60,
		Handler:           apiServer.router,
	}
	return srv.ListenAndServe()
}

func (apiServer *BakeOpsAPIServer) registerRoutes() *mux.Router {
	router := mux.NewRouter()
	router.Use(ErrorLoggingMiddleware)

	// any route that lives under /api/v1
	subRouter := router.PathPrefix(APIPrefix).Subrouter()

	subRouter.HandleFunc("/schedules/generate", system.Wrapper(apiServer.generateSchedule)).Methods(http.MethodPost)
	subRouter.HandleFunc("/schedules/{date}", system.Wrapper(apiServer.getScheduleByDate)).Methods(http.MethodGet)

	subRouter.HandleFunc("/simulations", system.Wrapper(apiServer.startSimulation)).Methods(http.MethodPost)
	subRouter.HandleFunc("/simulations", system.DefaultWrapper(apiServer.listSimulations)).Methods(http.MethodGet)
	subRouter.HandleFunc("/simulations/{id}", system.Wrapper(apiServer.getSimulation)).Methods(http.MethodGet)
	subRouter.HandleFunc("/simulations/{id}/pause", system.Wrapper(apiServer.pauseSimulation)).Methods(http.MethodPost)
	subRouter.HandleFunc("/simulations/{id}/resume", system.Wrapper(apiServer.resumeSimulation)).Methods(http.MethodPost)
	subRouter.HandleFunc("/simulations/{id}/stop", system.Wrapper(apiServer.stopSimulation)).Methods(http.MethodPost)

	subRouter.HandleFunc("/simulations/{id}/batches", system.Wrapper(apiServer.addBatch)).Methods(http.MethodPost)
	subRouter.HandleFunc("/simulations/{id}/batches/{batch_id}", system.Wrapper(apiServer.moveBatch)).Methods(http.MethodPut)
	subRouter.HandleFunc("/simulations/{id}/batches/{batch_id}", system.Wrapper(apiServer.deleteBatch)).Methods(http.MethodDelete)
	subRouter.HandleFunc("/simulations/{id}/suggestions", system.Wrapper(apiServer.getSuggestions)).Methods(http.MethodGet)
	subRouter.HandleFunc("/simulations/{id}/purchase", system.Wrapper(apiServer.processPurchase)).Methods(http.MethodPost)

	subRouter.HandleFunc("/simulations/{id}/catering", system.Wrapper(apiServer.createCateringOrder)).Methods(http.MethodPost)
	subRouter.HandleFunc("/simulations/{id}/catering/auto-approve", system.Wrapper(apiServer.setAutoApproveCatering)).Methods(http.MethodPut)
	subRouter.HandleFunc("/simulations/{id}/catering/{order_id}/approve", system.Wrapper(apiServer.approveCateringOrder)).Methods(http.MethodPost)
	subRouter.HandleFunc("/simulations/{id}/catering/{order_id}/reject", system.Wrapper(apiServer.rejectCateringOrder)).Methods(http.MethodPost)

	subRouter.HandleFunc("/headless/run", system.Wrapper(apiServer.runHeadless)).Methods(http.MethodPost)
	subRouter.HandleFunc("/specs", system.Wrapper(apiServer.listSpecs)).Methods(http.MethodGet)

	// Set a custom NotFoundHandler for /api/v1/ routes to log unknown paths
	subRouter.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Error().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Msg("unknown API path")
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	apiServer.router = router
	return subRouter
}
