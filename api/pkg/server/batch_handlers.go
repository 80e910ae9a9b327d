package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bakeops/bakeops/api/pkg/system"
	"github.com/bakeops/bakeops/api/pkg/types"
)

// addBatch godoc
// @Summary Add a batch to a running simulation
// @Description Place a new batch at the requested start time, rounded up to the next free grid slot
// @Tags    batches
// @Success 200 {object} types.BatchMutationResponse
// @Router /api/v1/simulations/{id}/batches [post]
func (s *BakeOpsAPIServer) addBatch(_ http.ResponseWriter, r *http.Request) (*types.BatchMutationResponse, *system.HTTPError) {
	engine, httpErr := s.simulationFromRequest(r)
	if httpErr != nil {
		return nil, httpErr
	}

	var req types.AddBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, system.NewHTTPError400(fmt.Sprintf("failed to decode request body, error: %s", err))
	}

	resp, err := engine.AddBatch(r.Context(), &req)
	if err != nil {
		return nil, httpError(err)
	}
	return resp, nil
}

// moveBatch godoc
// @Summary Move a scheduled batch
// @Description Move a batch to a new start time and/or rack; only scheduled batches can move
// @Tags    batches
// @Success 200 {object} types.BatchMutationResponse
// @Router /api/v1/simulations/{id}/batches/{batch_id} [put]
func (s *BakeOpsAPIServer) moveBatch(_ http.ResponseWriter, r *http.Request) (*types.BatchMutationResponse, *system.HTTPError) {
	engine, httpErr := s.simulationFromRequest(r)
	if httpErr != nil {
		return nil, httpErr
	}

	var req types.MoveBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, system.NewHTTPError400(fmt.Sprintf("failed to decode request body, error: %s", err))
	}

	resp, err := engine.MoveBatch(r.Context(), mux.Vars(r)["batch_id"], &req)
	if err != nil {
		return nil, httpError(err)
	}
	return resp, nil
}

// deleteBatch godoc
// @Summary Delete a scheduled batch
// @Tags    batches
// @Success 200 {object} types.BatchMutationResponse
// @Router /api/v1/simulations/{id}/batches/{batch_id} [delete]
func (s *BakeOpsAPIServer) deleteBatch(_ http.ResponseWriter, r *http.Request) (*types.BatchMutationResponse, *system.HTTPError) {
	engine, httpErr := s.simulationFromRequest(r)
	if httpErr != nil {
		return nil, httpErr
	}

	resp, err := engine.DeleteBatch(r.Context(), mux.Vars(r)["batch_id"])
	if err != nil {
		return nil, httpError(err)
	}
	return resp, nil
}

// getSuggestions godoc
// @Summary Suggest restock batches
// @Description Run the predictive or reactive suggestion engine against the current state
// @Tags    batches
// @Param   mode query string false "predictive (default) or reactive"
// @Success 200 {array} types.Proposal
// @Router /api/v1/simulations/{id}/suggestions [get]
func (s *BakeOpsAPIServer) getSuggestions(_ http.ResponseWriter, r *http.Request) ([]*types.Proposal, *system.HTTPError) {
	engine, httpErr := s.simulationFromRequest(r)
	if httpErr != nil {
		return nil, httpErr
	}

	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = string(types.SuggestionAlgorithmPredictive)
	}
	algorithm, err := types.ValidateSuggestionAlgorithm(mode, false)
	if err != nil {
		return nil, system.NewHTTPError400(err.Error())
	}

	proposals, err := engine.Suggestions(algorithm)
	if err != nil {
		return nil, httpError(err)
	}
	return proposals, nil
}

// processPurchase godoc
// @Summary Record a point-of-sale purchase
// @Description Deduct purchased items from inventory, oldest units first (manual mode only)
// @Tags    purchases
// @Success 200 {object} types.PurchaseResponse
// @Router /api/v1/simulations/{id}/purchase [post]
func (s *BakeOpsAPIServer) processPurchase(_ http.ResponseWriter, r *http.Request) (*types.PurchaseResponse, *system.HTTPError) {
	engine, httpErr := s.simulationFromRequest(r)
	if httpErr != nil {
		return nil, httpErr
	}

	var req types.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, system.NewHTTPError400(fmt.Sprintf("failed to decode request body, error: %s", err))
	}

	resp, err := engine.ProcessPurchase(r.Context(), &req)
	if err != nil {
		return nil, httpError(err)
	}
	return resp, nil
}
