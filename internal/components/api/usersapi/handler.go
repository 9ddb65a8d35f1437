// Package usersapi implements account registration. Everything else in
// the API authenticates against the accounts created here.
package usersapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/foldershare/folderd/internal/components/api"
	"github.com/foldershare/folderd/internal/platform/logutil"
	"github.com/foldershare/folderd/internal/store"
)

// RegisterRequest is the body of POST /api/users.
type RegisterRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

// RegisterResponse is the public view of a created account.
type RegisterResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// Handler handles account registration.
type Handler struct {
	users      store.UserStore
	log        *slog.Logger
	bcryptCost int
	now        func() time.Time
}

// NewHandler creates a new users handler.
func NewHandler(users store.UserStore, bcryptCost int, log *slog.Logger) *Handler {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Handler{
		users:      users,
		log:        logutil.NoopIfNil(log),
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// HandleRegister handles POST /api/users.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		api.WriteBadRequest(w, api.ReasonInvalidField, "email and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.bcryptCost)
	if err != nil {
		h.log.Error("failed to hash password", "error", err)
		api.WriteInternalError(w, "failed to create account")
		return
	}

	user := &store.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		CreatedAt:    h.now().Unix(),
	}
	if err := h.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			api.WriteError(w, http.StatusConflict, api.ReasonConflict, "email already registered")
			return
		}
		h.log.Error("failed to create user", "error", err)
		api.WriteInternalError(w, "failed to create account")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(RegisterResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
	})
}
