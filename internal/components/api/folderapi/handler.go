// Package folderapi implements session-gated folder endpoints. All
// endpoints resolve the acting user through the injected CurrentUser
// resolver; the service layer owns every authorization decision.
package folderapi

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

// FolderView is the public view of a folder.
type FolderView struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"ownerId"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Visibility    string         `json:"visibility"`
	IconID        string         `json:"iconId,omitempty"`
	Settings      map[string]any `json:"settings,omitempty"`
	Collaborators int            `json:"collaborators"`
	Bookmarks     int            `json:"bookmarks"`
	UpdatedAt     int64          `json:"updatedAt"`
}

// CreateFolderRequest is the body of POST /api/folders.
type CreateFolderRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Visibility  string         `json:"visibility"`
	Password    string         `json:"password"`
	IconID      string         `json:"iconId"`
	Settings    map[string]any `json:"settings"`
}

// UpdateFolderRequest is the body of PATCH /api/folders/{folderID}.
// Absent fields are untouched.
type UpdateFolderRequest struct {
	Name            *string        `json:"name"`
	Description     *string        `json:"description"`
	Visibility      *string        `json:"visibility"`
	Password        *string        `json:"password"`
	RemovePassword  bool           `json:"removePassword"`
	AccountPassword string         `json:"accountPassword"`
	IconID          *string        `json:"iconId"`
	Settings        map[string]any `json:"settings"`
}

// UpdateFolderResponse reports the fields an update changed.
type UpdateFolderResponse struct {
	FolderID string   `json:"folderId"`
	Changed  []string `json:"changed"`
}

// AddBookmarkRequest is the body of POST /api/folders/{folderID}/bookmarks.
type AddBookmarkRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// BookmarkView is the public view of a bookmark.
type BookmarkView struct {
	ID        string `json:"id"`
	FolderID  string `json:"folderId"`
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	AddedBy   string `json:"addedBy"`
	CreatedAt int64  `json:"createdAt"`
}

// CreateInviteRequest is the body of POST /api/folders/{folderID}/invites.
type CreateInviteRequest struct {
	InviteeID   string   `json:"inviteeId"`
	Permissions []string `json:"permissions"`
	Roles       []string `json:"roles"`
}

// CreateInviteResponse returns the issued invite token to the inviter.
type CreateInviteResponse struct {
	Token     string `json:"token"`
	FolderID  string `json:"folderId"`
	InviteeID string `json:"inviteeId"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

// Handler handles folder CRUD and invite issuance endpoints.
type Handler struct {
	service     *folders.Service
	currentUser CurrentUser
	log         *slog.Logger
}

// NewHandler creates a new folder handler.
func NewHandler(service *folders.Service, currentUser CurrentUser, log *slog.Logger) *Handler {
	return &Handler{
		service:     service,
		currentUser: currentUser,
		log:         logutil.NoopIfNil(log),
	}
}

// Routes mounts the folder endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.HandleCreate)
	r.Get("/{folderID}", h.HandleGet)
	r.Patch("/{folderID}", h.HandleUpdate)
	r.Post("/{folderID}/invites", h.HandleCreateInvite)
	r.Post("/{folderID}/bookmarks", h.HandleAddBookmark)
}

// HandleCreate handles POST /api/folders.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var req CreateFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	folder, err := h.service.CreateFolder(r.Context(), userID, &folders.CreateFolderRequest{
		Name:        req.Name,
		Description: req.Description,
		Visibility:  folders.Visibility(req.Visibility),
		Password:    req.Password,
		IconID:      req.IconID,
		Settings:    req.Settings,
	})
	if err != nil {
		h.logRejection("create folder", userID, err)
		api.WriteDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(FolderView{
		ID:          folder.ID,
		OwnerID:     folder.OwnerID,
		Name:        folder.Name,
		Description: folder.Description,
		Visibility:  folder.Visibility,
		IconID:      folder.IconID,
		UpdatedAt:   folder.UpdatedAt,
	})
}

// HandleGet handles GET /api/folders/{folderID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	folderID := chi.URLParam(r, "folderID")
	folder, err := h.service.GetFolder(r.Context(), userID, folderID)
	if errors.Is(err, folders.ErrPermissionDenied) {
		// Restricted folders are indistinguishable from missing ones.
		api.WriteNotFound(w, "folder not found")
		return
	}
	if err != nil {
		h.logRejection("get folder", userID, err)
		api.WriteDomainError(w, err)
		return
	}

	view := FolderView{
		ID:            folder.ID,
		OwnerID:       folder.OwnerID,
		Name:          folder.Name,
		Description:   folder.Description,
		Visibility:    folder.Visibility,
		IconID:        folder.IconID,
		Collaborators: len(folder.Collaborators),
		Bookmarks:     len(folder.Bookmarks),
		UpdatedAt:     folder.UpdatedAt,
	}
	if folder.Settings != "" {
		var raw map[string]any
		if err := json.Unmarshal([]byte(folder.Settings), &raw); err == nil {
			view.Settings = raw
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// HandleUpdate handles PATCH /api/folders/{folderID}. An update that
// changes nothing succeeds with 204 and no body.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var req UpdateFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	update := &folders.UpdateFolderRequest{
		Name:            req.Name,
		Description:     req.Description,
		Password:        req.Password,
		RemovePassword:  req.RemovePassword,
		AccountPassword: req.AccountPassword,
		IconID:          req.IconID,
		Settings:        req.Settings,
	}
	if req.Visibility != nil {
		visibility, err := folders.ParseVisibility(*req.Visibility)
		if err != nil {
			api.WriteBadRequest(w, api.ReasonInvalidField, err.Error())
			return
		}
		update.Visibility = &visibility
	}

	folderID := chi.URLParam(r, "folderID")
	result, err := h.service.UpdateFolder(r.Context(), userID, folderID, update)
	if err != nil {
		h.logRejection("update folder", userID, err)
		api.WriteDomainError(w, err)
		return
	}
	if result.NoOp {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UpdateFolderResponse{
		FolderID: result.FolderID,
		Changed:  result.Changed,
	})
}

// HandleCreateInvite handles POST /api/folders/{folderID}/invites.
func (h *Handler) HandleCreateInvite(w http.ResponseWriter, r *http.Request) {
	userID, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var req CreateInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	folderID := chi.URLParam(r, "folderID")
	inv, err := h.service.CreateInvite(r.Context(), userID, folderID, &folders.CreateInviteRequest{
		InviteeID:   req.InviteeID,
		Permissions: req.Permissions,
		Roles:       req.Roles,
	})
	if err != nil {
		h.logRejection("create invite", userID, err)
		api.WriteDomainError(w, err)
		return
	}

	resp := CreateInviteResponse{
		Token:     inv.Token,
		FolderID:  inv.FolderID,
		InviteeID: inv.InviteeID,
	}
	if !inv.ExpiresAt.IsZero() {
		resp.ExpiresAt = inv.ExpiresAt.Unix()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// HandleAddBookmark handles POST /api/folders/{folderID}/bookmarks.
func (h *Handler) HandleAddBookmark(w http.ResponseWriter, r *http.Request) {
	userID, err := h.currentUser(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var req AddBookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	folderID := chi.URLParam(r, "folderID")
	bookmark, err := h.service.AddBookmark(r.Context(), userID, folderID, &folders.AddBookmarkRequest{
		URL:   req.URL,
		Title: req.Title,
	})
	if err != nil {
		h.logRejection("add bookmark", userID, err)
		api.WriteDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(BookmarkView{
		ID:        bookmark.ID,
		FolderID:  bookmark.FolderID,
		URL:       bookmark.URL,
		Title:     bookmark.Title,
		AddedBy:   bookmark.AddedBy,
		CreatedAt: bookmark.CreatedAt,
	})
}

// logRejection logs server-side failures at error level and expected
// business rejections at debug, keeping logs quiet under normal use.
func (h *Handler) logRejection(op, userID string, err error) {
	if errors.Is(err, folders.ErrNotFound) || errors.Is(err, folders.ErrPermissionDenied) ||
		errors.Is(err, folders.ErrFeatureDisabled) || errors.Is(err, folders.ErrInvalidRequest) {
		h.log.Debug(op+" rejected", "user_id", userID, "error", err)
		return
	}
	h.log.Error(op+" failed", "user_id", userID, "error", err)
}
