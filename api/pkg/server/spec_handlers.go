package server

import (
	"net/http"

	"github.com/bakeops/bakeops/api/pkg/store"
	"github.com/bakeops/bakeops/api/pkg/system"
	"github.com/bakeops/bakeops/api/pkg/types"
)

// listSpecs godoc
// @Summary List active bake specs
// @Tags    specs
// @Success 200 {array} types.BakeSpec
// @Router /api/v1/specs [get]
func (s *BakeOpsAPIServer) listSpecs(_ http.ResponseWriter, r *http.Request) ([]*types.BakeSpec, *system.HTTPError) {
	specs, err := s.Store.ListBakeSpecs(r.Context(), store.ListBakeSpecsQuery{OnlyActive: true})
	if err != nil {
		return nil, system.NewHTTPError500(err.Error())
	}
	return specs, nil
}
