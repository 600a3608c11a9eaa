package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"idforge/internal/background"
	"idforge/pkg/platform/httputil"
)

// Service defines the background operations the handler needs.
type Service interface {
	Current(ctx context.Context) background.Image
	Refresh(ctx context.Context) background.Image
}

// Handler serves the background image endpoints.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/background", h.handleCurrent)
	r.Post("/api/background/refresh", h.handleRefresh)
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.svc.Current(r.Context()))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	img := h.svc.Refresh(r.Context())
	h.logger.InfoContext(r.Context(), "background refreshed", "fallback", img.Fallback)
	httputil.WriteJSON(w, http.StatusOK, img)
}
