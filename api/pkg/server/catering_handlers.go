package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bakeops/bakeops/api/pkg/system"
	"github.com/bakeops/bakeops/api/pkg/types"
)

// createCateringOrder godoc
// @Summary Create a catering order
// @Description Atomically allocate rack time so every requested item is available by the required time
// @Tags    catering
// @Success 200 {object} types.CateringOrder
// @Router /api/v1/simulations/{id}/catering [post]
func (s *BakeOpsAPIServer) createCateringOrder(_ http.ResponseWriter, r *http.Request) (*types.CateringOrder, *system.HTTPError) {
	engine, httpErr := s.simulationFromRequest(r)
	if httpErr != nil {
		return nil, httpErr
	}

	var req types.CreateCateringOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, system.NewHTTPError400(fmt.Sprintf("failed to decode request body, error: %s", err))
	}

	order, err := engine.CreateCateringOrder(r.Context(), &req)
	if err != nil {
		return nil, httpError(err)
	}
	return order, nil
}

// approveCateringOrder godoc
// @Summary Approve a pending catering order
// @Tags    catering
// @Success 200 {object} types.CateringOrder
// @Router /api/v1/simulations/{id}/catering/{order_id}/approve [post]
func (s *BakeOpsAPIServer) approveCateringOrder(_ http.ResponseWriter, r *http.Request) (*types.CateringOrder, *system.HTTPError) {
	engine, httpErr := s.simulationFromRequest(r)
	if httpErr != nil {
		return nil, httpErr
	}

	order, err := engine.ApproveCateringOrder(r.Context(), mux.Vars(r)["order_id"])
	if err != nil {
		return nil, httpError(err)
	}
	return order, nil
}

// rejectCateringOrder godoc
// @Summary Reject a pending catering order
// @Description Remove the order's batches and restore any batches it displaced
// @Tags    catering
// @Success 200 {object} types.CateringOrder
// @Router /api/v1/simulations/{id}/catering/{order_id}/reject [post]
func (s *BakeOpsAPIServer) rejectCateringOrder(_ http.ResponseWriter, r *http.Request) (*types.CateringOrder, *system.HTTPError) {
	engine, httpErr := s.simulationFromRequest(r)
	if httpErr != nil {
		return nil, httpErr
	}

	order, err := engine.RejectCateringOrder(r.Context(), mux.Vars(r)["order_id"])
	if err != nil {
		return nil, httpError(err)
	}
	return order, nil
}

// setAutoApproveCatering godoc
// @Summary Toggle auto-approval of catering orders
// @Tags    catering
// @Success 200 {object} types.AutoApproveCateringRequest
// @Router /api/v1/simulations/{id}/catering/auto-approve [put]
func (s *BakeOpsAPIServer) setAutoApproveCatering(_ http.ResponseWriter, r *http.Request) (*types.AutoApproveCateringRequest, *system.HTTPError) {
	engine, httpErr := s.simulationFromRequest(r)
	if httpErr != nil {
		return nil, httpErr
	}

	var req types.AutoApproveCateringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, system.NewHTTPError400(fmt.Sprintf("failed to decode request body, error: %s", err))
	}

	enabled := engine.SetAutoApproveCatering(req.Enabled)
	return &types.AutoApproveCateringRequest{Enabled: enabled}, nil
}
