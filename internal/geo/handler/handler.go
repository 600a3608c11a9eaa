package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"idforge/internal/geo"
	"idforge/pkg/platform/httputil"
	"idforge/pkg/platform/middleware/metadata"
)

// Detector resolves an IP to location info.
type Detector interface {
	Detect(ctx context.Context, ip string) geo.Info
}

type Handler struct {
	detector Detector
	logger   *slog.Logger
}

func New(detector Detector, logger *slog.Logger) *Handler {
	return &Handler{detector: detector, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/geo", h.handleDetect)
}

// handleDetect reports the caller's country. Non-routable client addresses are
// sent as "" so the lookup locates the egress address instead.
func (h *Handler) handleDetect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info := h.detector.Detect(ctx, metadata.GetPublicIP(ctx))
	httputil.WriteJSON(w, http.StatusOK, info)
}
