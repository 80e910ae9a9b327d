package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bakeops/bakeops/api/pkg/store"
	"github.com/bakeops/bakeops/api/pkg/system"
	"github.com/bakeops/bakeops/api/pkg/types"
)

// generateSchedule godoc
// @Summary Generate a production schedule
// @Description Turn a forecast into a persisted schedule of rack/time batches for one date
// @Tags    schedules
// @Success 200 {object} types.ScheduleGenerateResponse
// @Router /api/v1/schedules/generate [post]
func (s *BakeOpsAPIServer) generateSchedule(_ http.ResponseWriter, r *http.Request) (*types.ScheduleGenerateResponse, *system.HTTPError) {
	var req types.ScheduleGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, system.NewHTTPError400(fmt.Sprintf("failed to decode request body, error: %s", err))
	}

	schedule, summary, err := s.planner.GenerateSchedule(r.Context(), &req)
	if err != nil {
		return nil, httpError(err)
	}

	return &types.ScheduleGenerateResponse{
		Schedule: schedule,
		Summary:  summary,
	}, nil
}

// getScheduleByDate godoc
// @Summary Get the schedule for a date
// @Description Get the stored schedule for a YYYY-MM-DD date
// @Tags    schedules
// @Success 200 {object} types.Schedule
// @Router /api/v1/schedules/{date} [get]
func (s *BakeOpsAPIServer) getScheduleByDate(_ http.ResponseWriter, r *http.Request) (*types.Schedule, *system.HTTPError) {
	date := mux.Vars(r)["date"]

	schedule, err := s.Store.GetScheduleByDate(r.Context(), date)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, system.NewHTTPError404(fmt.Sprintf("no schedule for %s", date))
		}
		return nil, system.NewHTTPError500(err.Error())
	}

	return schedule, nil
}
