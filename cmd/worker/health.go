package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/felixgeelhaar/saffron/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/saffron/pkg/observability"
)

type statsSource interface {
	GetStats() outbox.Stats
}

type healthChecker interface {
	Check(ctx context.Context) observability.OverallHealth
}

// healthRouter serves /healthz (relay liveness and counters) and /readyz
// (dependency checks, 503 when unhealthy).
func healthRouter(relay statsSource, checks healthChecker) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		s := relay.GetStats()
		status := http.StatusOK
		if !s.IsRunning {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{
			"running":           s.IsRunning,
			"published":         s.PublishedCount,
			"failed":            s.FailedCount,
			"dead":              s.DeadCount,
			"deferred":          s.DeferredCount,
			"broker":            s.BrokerState,
			"lag_seconds":       s.LagSeconds,
			"last_processed_at": s.LastProcessedAt,
			"last_error":        s.LastError,
		})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		health := checks.Check(ctx)
		status := http.StatusOK
		if health.Status == observability.HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, health)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
