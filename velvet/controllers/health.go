package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"velvet/velvet/utils/types"

	"golang.org/x/sync/errgroup"
)

// HealthChecker is anything that can report "healthy" or another status.
type HealthChecker interface {
	Health(ctx context.Context) string
}

type HealthController struct {
	checks map[string]HealthChecker
}

func NewHealthController(checks map[string]HealthChecker) *HealthController {
	return &HealthController{checks: checks}
}

// Check probes every dependency concurrently. The overall status is
// "healthy" only when every dependency is.
func (h *HealthController) Check(ctx context.Context) types.HealthResponse {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]string, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, c := i, h.checks[name]
		g.Go(func() error {
			results[i] = c.Health(gctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := types.HealthResponse{Status: "healthy", Services: map[string]string{}}
	for i, name := range names {
		resp.Services[name] = results[i]
		if results[i] != "healthy" {
			resp.Status = "degraded"
		}
	}
	return resp
}

func (h *HealthController) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(h.Check(r.Context()))
}
