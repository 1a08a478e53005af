package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/saffron/internal/billing/application"
	"github.com/felixgeelhaar/saffron/internal/billing/domain"
)

// EntitlementQueries answers access questions.
type EntitlementQueries interface {
	HasFeature(ctx context.Context, userID uuid.UUID, feature domain.Feature) (application.Decision, error)
	CheckQuota(ctx context.Context, userID uuid.UUID, limitName string) (application.Quota, error)
}

// QueryHandler serves the entitlement query API.
type QueryHandler struct {
	queries EntitlementQueries
	logger  *slog.Logger
}

// NewQueryHandler creates a query handler.
func NewQueryHandler(queries EntitlementQueries, logger *slog.Logger) *QueryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryHandler{queries: queries, logger: logger}
}

// GetFeature handles GET /api/v1/users/{userID}/features/{feature}.
// Store errors answer 503 with a denying decision.
func (h *QueryHandler) GetFeature(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	feature, err := domain.ParseFeature(chi.URLParam(r, "feature"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	decision, err := h.queries.HasFeature(r.Context(), userID, feature)
	if err != nil {
		h.logger.Error("feature check failed", "user_id", userID, "feature", feature, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, decision)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// GetQuota handles GET /api/v1/users/{userID}/quotas/{limit}.
func (h *QueryHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	quota, err := h.queries.CheckQuota(r.Context(), userID, chi.URLParam(r, "limit"))
	switch {
	case errors.Is(err, domain.ErrUnknownLimit):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.Error("quota check failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, quota)
	default:
		writeJSON(w, http.StatusOK, quota)
	}
}
