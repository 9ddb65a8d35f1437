// Package inviteapi implements the invitee-facing invite endpoints.
// Tokens are scoped to their invitee: the service answers "not found"
// for anyone else's token, and these handlers preserve that.
package inviteapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foldershare/folderd/internal/components/api"
	"github.com/foldershare/folderd/internal/components/folders"
	"github.com/foldershare/folderd/internal/platform/logutil"
)

// CurrentUser resolves the authenticated user ID from the request
// context, or errors when the request carries no valid session.
type CurrentUser func(context.Context) (string, error)

// AcceptResponse is the body returned after a successful accept.
type AcceptResponse struct {
	FolderID    string   `json:"folderId"`
	Permissions []string `json:"permissions"`
	Roles       []string `json:"roles,omitempty"`
}

// Handler handles invite accept and decline endpoints.
type Handler struct {
	service     *folders.Service
	currentUser CurrentUser
	log         *slog.Logger
}

// NewHandler creates a new invite handler.
func NewHandler(service *folders.Service, currentUser CurrentUser, log *slog.Logger) *Handler {
	return &Handler{
		service:     service,
		currentUser: currentUser,
		log:         logutil.NoopIfNil(log),
	}
}

// Routes mounts the invite endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/{token}/accept", h.HandleAccept)
	r.Post("/{token}/decline", h.HandleDecline)
}

// HandleAccept handles POST /api/invites/{token}/accept.
func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	userID, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	token := chi.URLParam(r, "token")
	result, err := h.service.AcceptInvite(r.Context(), userID, token)
	if err != nil {
		if !errors.Is(err, folders.ErrNotFound) && !errors.Is(err, folders.ErrAlreadyAccepted) {
			h.log.Error("accept invite failed", "user_id", userID, "error", err)
		}
		api.WriteDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AcceptResponse{
		FolderID:    result.FolderID,
		Permissions: result.Permissions,
		Roles:       result.Roles,
	})
}

// HandleDecline handles POST /api/invites/{token}/decline.
func (h *Handler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	userID, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	token := chi.URLParam(r, "token")
	if err := h.service.DeclineInvite(r.Context(), userID, token); err != nil {
		if !errors.Is(err, folders.ErrNotFound) && !errors.Is(err, folders.ErrAlreadyAccepted) {
			h.log.Error("decline invite failed", "user_id", userID, "error", err)
		}
		api.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
