package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bakeops/bakeops/api/pkg/system"
	"github.com/bakeops/bakeops/api/pkg/types"
)

// startSimulation godoc
// @Summary Start a simulation
// @Description Start a real-time simulation of a bakery day in manual or preset mode
// @Tags    simulations
// @Success 200 {object} types.SimulationSnapshot
// @Router /api/v1/simulations [post]
func (s *BakeOpsAPIServer) startSimulation(_ http.ResponseWriter, r *http.Request) (*types.SimulationSnapshot, *system.HTTPError) {
	var req types.StartSimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, system.NewHTTPError400(fmt.Sprintf("failed to decode request body, error: %s", err))
	}

	engine, err := s.manager.StartSimulation(r.Context(), &req)
	if err != nil {
		return nil, httpError(err)
	}

	return engine.Snapshot(), nil
}

// listSimulations godoc
// @Summary List simulations
// @Description List the live simulations, newest first
// @Tags    simulations
// @Success 200 {array} types.SimulationSummary
// @Router /api/v1/simulations [get]
func (s *BakeOpsAPIServer) listSimulations(_ http.ResponseWriter, _ *http.Request) ([]*types.SimulationSummary, error) {
	return s.manager.ListSimulations(), nil
}

// getSimulation godoc
// @Summary Get a simulation snapshot
// @Description Get the current snapshot of one simulation
// @Tags    simulations
// @Success 200 {object} types.SimulationSnapshot
// @Router /api/v1/simulations/{id} [get]
func (s *BakeOpsAPIServer) getSimulation(_ http.ResponseWriter, r *http.Request) (*types.SimulationSnapshot, *system.HTTPError) {
	engine, httpErr := s.simulationFromRequest(r)
	if httpErr != nil {
		return nil, httpErr
	}
	return engine.Snapshot(), nil
}

// pauseSimulation godoc
// @Summary Pause a simulation
// @Description Freeze simulated time; resuming continues from the same instant
// @Tags    simulations
// @Success 200 {object} types.SimulationSnapshot
// @Router /api/v1/simulations/{id}/pause [post]
func (s *BakeOpsAPIServer) pauseSimulation(_ http.ResponseWriter, r *http.Request) (*types.SimulationSnapshot, *system.HTTPError) {
	engine, httpErr := s.simulationFromRequest(r)
	if httpErr != nil {
		return nil, httpErr
	}

	snapshot, err := engine.Pause(r.Context())
	if err != nil {
		return nil, httpError(err)
	}
	return snapshot, nil
}

// resumeSimulation godoc
// @Summary Resume a paused simulation
// @Tags    simulations
// @Success 200 {object} types.SimulationSnapshot
// @Router /api/v1/simulations/{id}/resume [post]
func (s *BakeOpsAPIServer) resumeSimulation(_ http.ResponseWriter, r *http.Request) (*types.SimulationSnapshot, *system.HTTPError) {
	engine, httpErr := s.simulationFromRequest(r)
	if httpErr != nil {
		return nil, httpErr
	}

	snapshot, err := engine.Resume(r.Context())
	if err != nil {
		return nil, httpError(err)
	}
	return snapshot, nil
}

// stopSimulation godoc
// @Summary Stop a simulation
// @Description Stop a simulation; no further transitions happen after this
// @Tags    simulations
// @Success 200 {object} types.SimulationSnapshot
// @Router /api/v1/simulations/{id}/stop [post]
func (s *BakeOpsAPIServer) stopSimulation(_ http.ResponseWriter, r *http.Request) (*types.SimulationSnapshot, *system.HTTPError) {
	engine, httpErr := s.simulationFromRequest(r)
	if httpErr != nil {
		return nil, httpErr
	}

	snapshot, err := engine.Stop(r.Context())
	if err != nil {
		return nil, httpError(err)
	}
	return snapshot, nil
}
