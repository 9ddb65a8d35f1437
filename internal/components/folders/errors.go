package folders

import (
	"errors"
	"fmt"
	"time"
)

// Business-rule rejections surfaced by the folder flows. These propagate
// unchanged from the pipeline to the caller; none is retried.
var (
	ErrNotFound          = errors.New("folder not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrFeatureDisabled   = errors.New("feature disabled by folder owner")
	ErrAlreadyAccepted   = errors.New("invite already accepted")
	ErrInviteExpired     = errors.New("invite expired")
	ErrInvalidPassword   = errors.New("invalid account password")
	ErrCollaboratorLimit = errors.New("collaborator limit exceeded")
	ErrBookmarkLimit     = errors.New("bookmark limit exceeded")
	ErrCannotPrivatize   = errors.New("cannot restrict visibility while collaborators exist")
	ErrInvalidVisibility = errors.New("invalid visibility")
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidRequest    = errors.New("invalid request")
)

// ErrNoOpMutation signals that an update changed nothing. It is a
// distinguished non-error outcome: the pipeline aborts the remaining
// handlers, nothing is persisted, and callers treat it as "succeeded,
// nothing to do" (typically a no-content response).
var ErrNoOpMutation = errors.New("no fields changed")

// SuspendedError reports an active suspension. It matches
// ErrPermissionDenied for classification while carrying the expiry.
type SuspendedError struct {
	// Until is the suspension expiry; zero means indefinite.
	Until time.Time
}

func (e *SuspendedError) Error() string {
	if e.Until.IsZero() {
		return "collaborator is suspended"
	}
	return fmt.Sprintf("collaborator is suspended until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *SuspendedError) Is(target error) bool {
	return target == ErrPermissionDenied
}
