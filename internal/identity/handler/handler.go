package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"idforge/internal/identity"
	"idforge/internal/platform/middleware"
	"idforge/pkg/platform/httputil"
	"idforge/pkg/platform/middleware/metadata"
	"idforge/pkg/platform/sentinel"
)

const maxBodyBytes = 16 << 10

// Service defines the identity operations the handler needs.
type Service interface {
	Generate(ctx context.Context, country, ip string) (identity.Generated, error)
	Save(ctx context.Context, ident identity.Identity) (identity.Identity, error)
	List(ctx context.Context) ([]identity.Identity, error)
	Delete(ctx context.Context, id string) error
	SetFavorite(ctx context.Context, id string, favorite bool) error
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/identity", h.handleGenerate)
	r.Route("/api/identities", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleSave)
		r.Delete("/{id}", h.handleDelete)
		r.Put("/{id}/favorite", h.handleFavorite(true))
		r.Delete("/{id}/favorite", h.handleFavorite(false))
	})
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	generated, err := h.svc.Generate(ctx, r.URL.Query().Get("country"), metadata.GetPublicIP(ctx))
	if err != nil {
		h.fail(ctx, w, "generate identity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, generated)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context())
	if err != nil {
		h.fail(r.Context(), w, "list identities", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req identity.Identity
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid save identity request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, fmt.Errorf("invalid request body: %w", sentinel.ErrInvalidInput))
		return
	}
	saved, err := h.svc.Save(ctx, req)
	if err != nil {
		h.fail(ctx, w, "save identity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, saved)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(r.Context(), w, "delete identity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFavorite(favorite bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.svc.SetFavorite(r.Context(), chi.URLParam(r, "id"), favorite); err != nil {
			h.fail(r.Context(), w, "set favorite", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// fail logs at warn for client errors and error otherwise, then writes the
// mapped response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	attrs := []any{"request_id", middleware.GetRequestID(ctx), "error", err.Error()}
	if errors.Is(err, sentinel.ErrInvalidInput) || errors.Is(err, sentinel.ErrNotFound) {
		h.logger.WarnContext(ctx, op+" rejected", attrs...)
	} else {
		h.logger.ErrorContext(ctx, op+" failed", attrs...)
	}
	httputil.WriteError(w, err)
}
