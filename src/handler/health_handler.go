package handler

import (
	"context"
	"net/http"

	"perpagent/src/health"
)

type healthSource interface {
	Compute(ctx context.Context) *health.Report
}

// HealthHandler serves GET /api/health.
func HealthHandler(agg healthSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, agg.Compute(r.Context()))
	}
}
