// Package handler exposes the key registry over HTTP: current-key lookup
// and rotation. Both require an issuer token; the rotate response is the
// only place the private seed ever appears.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"certledger/internal/keys/service"
	"certledger/internal/platform/middleware"
	"certledger/pkg/platform/httputil"
	"certledger/pkg/requestcontext"
)

type Handler struct {
	logger *slog.Logger
	keys   *service.Service
	auth   *middleware.IssuerAuthenticator
}

func New(keys *service.Service, auth *middleware.IssuerAuthenticator, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, keys: keys, auth: auth}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireIssuer(h.auth, h.logger))
		r.Get("/api/keys/current", h.handleCurrent)
		r.Post("/api/keys/rotate", h.handleRotate)
	})
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key, err := h.keys.Current(ctx, requestcontext.IssuerID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"keyId":     key.ID,
		"publicKey": key.PublicKey,
		"keyType":   key.KeyType,
		"createdAt": key.CreatedAt.UTC().Format(time.RFC3339),
	})
}

type rotateRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRotate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// An empty body means rotation without a stated reason.
	var req rotateRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	result, err := h.keys.Rotate(ctx, requestcontext.IssuerID(ctx), req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	// The seed exists server-side only inside this response.
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"keyId":          result.Key.ID,
		"publicKey":      result.Key.PublicKey,
		"keyType":        result.Key.KeyType,
		"privateKeySeed": result.PrivateKeySeed,
		"createdAt":      result.Key.CreatedAt.UTC().Format(time.RFC3339),
	})
}
