package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/schola-erp/schola/internal/platform/httpx"
)

// EventLister reads back recorded auth events.
type EventLister interface {
	ListRecentEvents(ctx context.Context, limit int) ([]Event, error)
}

// AuditHandler exposes the auth event trail to system operators.
type AuditHandler struct {
	lister EventLister
	logger *slog.Logger
}

func NewAuditHandler(lister EventLister, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{lister: lister, logger: logger}
}

// MountRoutes registers audit endpoints.
func (h *AuditHandler) MountRoutes(r chi.Router) {
	r.Get("/events", h.listEvents)
}

func (h *AuditHandler) listEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			httpx.Detail(w, http.StatusUnprocessableEntity, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	events, err := h.lister.ListRecentEvents(r.Context(), limit)
	if err != nil {
		h.logger.Error("list auth events", slog.Any("error", err))
		httpx.Detail(w, http.StatusInternalServerError, "could not load events")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}
