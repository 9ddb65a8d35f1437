// Package api provides common HTTP API utilities including error handling.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/foldershare/folderd/internal/components/folders"
	"github.com/foldershare/folderd/internal/components/folders/settings"
	"github.com/foldershare/folderd/internal/components/folders/uac"
)

// Deterministic reason codes for stable error classification.
// These codes should remain stable across versions for client compatibility.
const (
	// Authentication and authorization
	ReasonUnauthenticated    = "unauthenticated"
	ReasonUnauthorized       = "unauthorized"
	ReasonInvalidCredentials = "invalid_credentials"

	// Request validation
	ReasonBadRequest      = "bad_request"
	ReasonInvalidField    = "invalid_field"
	ReasonNotFound        = "not_found"
	ReasonConflict        = "conflict"
	ReasonInvalidSettings = "invalid_settings"

	// Folder policy
	ReasonFeatureDisabled    = "feature_disabled"
	ReasonInviteExpired      = "invite_expired"
	ReasonCollaboratorLimit  = "collaborator_limit"
	ReasonBookmarkLimit      = "bookmark_limit"
	ReasonVisibilityConflict = "visibility_conflict"

	// Server errors
	ReasonInternalError = "internal_error"
)

// ErrorEnvelope is the standard error response format.
// All error responses should use this structure for consistency.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code       string   `json:"code"`        // HTTP status text (e.g., "forbidden")
	ReasonCode string   `json:"reason_code"` // Deterministic reason code
	Message    string   `json:"message"`     // Human-readable message
	Details    []string `json:"details,omitempty"`
}

// WriteError writes a standardized JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, reasonCode, message string) {
	writeEnvelope(w, statusCode, reasonCode, message, nil)
}

func writeEnvelope(w http.ResponseWriter, statusCode int, reasonCode, message string, details []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	envelope := ErrorEnvelope{
		Error: ErrorDetail{
			Code:       http.StatusText(statusCode),
			ReasonCode: reasonCode,
			Message:    message,
			Details:    details,
		},
	}

	json.NewEncoder(w).Encode(envelope)
}

// WriteUnauthorized writes a 401 Unauthorized error.
func WriteUnauthorized(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusUnauthorized, reasonCode, message)
}

// WriteBadRequest writes a 400 Bad Request error.
func WriteBadRequest(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusBadRequest, reasonCode, message)
}

// WriteNotFound writes a 404 Not Found error.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ReasonNotFound, message)
}

// WriteInternalError writes a 500 Internal Server Error.
// Be careful not to leak sensitive information in the message.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ReasonInternalError, message)
}

// WriteDomainError maps a folder-flow error onto the envelope. Unknown
// errors become an opaque 500; the caller is expected to have logged
// them already.
func WriteDomainError(w http.ResponseWriter, err error) {
	var invalid *settings.InvalidSettingError
	switch {
	case errors.Is(err, folders.ErrNotFound):
		WriteNotFound(w, "folder or invite not found")
	case errors.Is(err, folders.ErrFeatureDisabled):
		WriteError(w, http.StatusForbidden, ReasonFeatureDisabled, err.Error())
	case errors.Is(err, folders.ErrInvalidPassword):
		WriteError(w, http.StatusForbidden, ReasonInvalidCredentials, "account password verification failed")
	case errors.Is(err, folders.ErrPermissionDenied):
		// Covers suspensions too via error matching.
		WriteError(w, http.StatusForbidden, ReasonUnauthorized, err.Error())
	case errors.Is(err, folders.ErrAlreadyAccepted):
		WriteError(w, http.StatusConflict, ReasonConflict, "invite already accepted")
	case errors.Is(err, folders.ErrInviteExpired):
		WriteError(w, http.StatusGone, ReasonInviteExpired, "invite expired")
	case errors.Is(err, folders.ErrCollaboratorLimit):
		WriteError(w, http.StatusConflict, ReasonCollaboratorLimit, err.Error())
	case errors.Is(err, folders.ErrBookmarkLimit):
		WriteError(w, http.StatusConflict, ReasonBookmarkLimit, err.Error())
	case errors.Is(err, folders.ErrCannotPrivatize):
		WriteError(w, http.StatusConflict, ReasonVisibilityConflict, err.Error())
	case errors.Is(err, folders.ErrInvalidVisibility),
		errors.Is(err, folders.ErrInvalidRole),
		errors.Is(err, folders.ErrInvalidRequest),
		errors.Is(err, uac.ErrInvalidCapability),
		errors.Is(err, uac.ErrDuplicateCapability):
		WriteBadRequest(w, ReasonInvalidField, err.Error())
	case errors.As(err, &invalid):
		writeEnvelope(w, http.StatusUnprocessableEntity, ReasonInvalidSettings,
			"settings validation failed", invalid.Messages)
	default:
		WriteInternalError(w, "internal error")
	}
}
