package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"idforge/internal/flags"
	"idforge/internal/iconcache"
	"idforge/pkg/platform/httputil"
)

// Service defines the flag operations the handler needs.
type Service interface {
	Icon(ctx context.Context, code string) (flags.Icon, iconcache.Status, error)
	Stats() flags.CacheStats
	Clear()
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/flags/cache", h.handleStats)
	r.Delete("/api/flags/cache", h.handleClear)
	r.Get("/api/flags/{code}", h.handleIcon)
}

func (h *Handler) handleIcon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	icon, status, err := h.svc.Icon(ctx, chi.URLParam(r, "code"))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", icon.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(icon.Data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Cache", string(status))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(icon.Data); err != nil {
		h.logger.DebugContext(ctx, "write flag response", "code", icon.Code, "error", err)
	}
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.svc.Stats())
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	h.svc.Clear()
	h.logger.InfoContext(r.Context(), "flag cache cleared")
	w.WriteHeader(http.StatusNoContent)
}
