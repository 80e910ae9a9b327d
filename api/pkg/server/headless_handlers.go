package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bakeops/bakeops/api/pkg/system"
	"github.com/bakeops/bakeops/api/pkg/types"
)

// runHeadless godoc
// @Summary Run a whole simulated day synchronously
// @Description Step a simulation from opening to close without wall-clock pacing, consulting a suggestion algorithm at every interval
// @Tags    headless
// @Success 200 {object} types.HeadlessReport
// @Router /api/v1/headless/run [post]
func (s *BakeOpsAPIServer) runHeadless(_ http.ResponseWriter, r *http.Request) (*types.HeadlessReport, *system.HTTPError) {
	var req types.HeadlessRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, system.NewHTTPError400(fmt.Sprintf("failed to decode request body, error: %s", err))
	}

	report, err := s.runner.Run(r.Context(), &req)
	if err != nil {
		return nil, httpError(err)
	}
	return report, nil
}
