// Package folders implements the folder mutation flows: accepting a
// collaboration invite and updating a folder's attributes. Both are
// assembled from reusable constraint and effect handlers executed by the
// pipeline package against a single projection-loaded entity.
package folders

import (
	"fmt"
	"strings"
	"time"

	"github.com/foldershare/folderd/internal/components/folders/uac"
	"github.com/foldershare/folderd/internal/store"
)

// Visibility is a folder's visibility level.
type Visibility string

const (
	VisibilityPublic            Visibility = store.VisibilityPublic
	VisibilityPrivate           Visibility = store.VisibilityPrivate
	VisibilityPasswordProtected Visibility = store.VisibilityPasswordProtected
	VisibilityCollaboratorsOnly Visibility = store.VisibilityCollaboratorsOnly
)

// ParseVisibility validates a visibility string.
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case VisibilityPublic, VisibilityPrivate, VisibilityPasswordProtected, VisibilityCollaboratorsOnly:
		return Visibility(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidVisibility, s)
}

// restricted reports whether v excludes collaborators entirely.
// A folder with active collaborators cannot take a restricted visibility.
func (v Visibility) restricted() bool {
	return v == VisibilityPrivate || v == VisibilityPasswordProtected
}

// Logical field names of an update request. These are what change
// records, notifications, and activity entries speak in; they are
// distinct from storage column names.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldVisibility  = "visibility"
	FieldPassword    = "password"
	FieldIcon        = "icon"
	FieldSettings    = "settings"
)

// UpdateFolderRequest carries the fields an update attempts to change.
// Nil pointer fields are untouched.
type UpdateFolderRequest struct {
	Name        *string
	Description *string
	Visibility  *Visibility

	// Password sets a new folder password (visibility must be or become
	// password-protected). RemovePassword clears it instead.
	Password       *string
	RemovePassword bool

	// AccountPassword is the actor's own account password; required when
	// the update opens a non-public folder to the public by removing its
	// password.
	AccountPassword string

	IconID *string

	// Settings replaces the folder's raw settings tree. Nil leaves the
	// stored settings untouched; an empty map clears the overrides.
	Settings map[string]any
}

// AttemptedFields returns the logical field names the request touches.
// The required permission set is computed from this, not from a fixed
// superset.
func (r *UpdateFolderRequest) AttemptedFields() []string {
	var out []string
	if r.Name != nil {
		out = append(out, FieldName)
	}
	if r.Description != nil {
		out = append(out, FieldDescription)
	}
	if r.Visibility != nil {
		out = append(out, FieldVisibility)
	}
	if r.Password != nil || r.RemovePassword {
		out = append(out, FieldPassword)
	}
	if r.IconID != nil {
		out = append(out, FieldIcon)
	}
	if r.Settings != nil {
		out = append(out, FieldSettings)
	}
	return out
}

// requiredPermissions computes the capability set an actor must hold to
// apply the request. Every mutable folder attribute is guarded by
// update-folder; a request touching nothing requires nothing.
func requiredPermissions(attempted []string) uac.PermissionSet {
	if len(attempted) == 0 {
		return uac.PermissionSet{}
	}
	return uac.Of(uac.CapUpdateFolder)
}

// InvitePayload is the internal view of a stored invite.
type InvitePayload struct {
	Token       string
	FolderID    string
	InviterID   string
	InviteeID   string
	Permissions uac.PermissionSet
	Roles       []string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Accepted    bool
}

// invitePayloadFromRecord parses a stored invite row.
func invitePayloadFromRecord(rec *store.Invite) (InvitePayload, error) {
	perms, err := uac.FromExternal(splitList(rec.Permissions))
	if err != nil {
		return InvitePayload{}, fmt.Errorf("stored invite %s has bad permissions: %w", rec.Token, err)
	}
	return InvitePayload{
		Token:       rec.Token,
		FolderID:    rec.FolderID,
		InviterID:   rec.InviterID,
		InviteeID:   rec.InviteeID,
		Permissions: perms,
		Roles:       splitList(rec.Roles),
		IssuedAt:    time.Unix(rec.IssuedAt, 0),
		ExpiresAt:   time.Unix(rec.ExpiresAt, 0),
		Accepted:    rec.Status == store.InviteStatusAccepted,
	}, nil
}

// knownRoles is the closed vocabulary of roles an invite can attach.
var knownRoles = map[string]bool{
	"curator":     true,
	"moderator":   true,
	"contributor": true,
}

// RoleCache memoizes role-name validity per request. It is caller-owned
// and passed explicitly, never a process-wide map, so validation stays
// referentially transparent and testable in isolation.
type RoleCache map[string]bool

// Valid reports whether a role name is known, memoizing the answer.
func (c RoleCache) Valid(role string) bool {
	if v, ok := c[role]; ok {
		return v
	}
	v := knownRoles[role]
	c[role] = v
	return v
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func joinList(items []string) string {
	return strings.Join(items, ",")
}
