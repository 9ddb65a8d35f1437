// Package activity writes the immutable folder timeline. Each record
// snapshots who did what, with before/after values, so an entry can be
// rendered later even if the acting or affected accounts are gone.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/foldershare/folderd/internal/platform/logutil"
	"github.com/foldershare/folderd/internal/store"
)

// Action identifies what happened.
type Action string

const (
	ActionFolderCreated  Action = "folder.created"
	ActionFolderUpdated  Action = "folder.updated"
	ActionInviteCreated  Action = "invite.created"
	ActionInviteAccepted Action = "invite.accepted"
	ActionBookmarkAdded  Action = "bookmark.added"
)

// Entry is one timeline event before persistence.
type Entry struct {
	FolderID string
	ActorID  string
	Action   Action
	Field    string // changed field for folder.updated, else empty
	Before   any
	After    any
}

// snapshot is the stored JSON blob.
type snapshot struct {
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name"`
	Field     string `json:"field,omitempty"`
	Before    any    `json:"before,omitempty"`
	After     any    `json:"after,omitempty"`
}

// Recorder persists activity records. Like the notification dispatcher
// it runs in deferred tasks, bound to the base store.
type Recorder struct {
	store  store.ActivityStore
	users  store.UserStore
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder over the given stores.
func NewRecorder(st store.ActivityStore, users store.UserStore, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:  st,
		users:  users,
		logger: logutil.Component(logger, "activity"),
		now:    time.Now,
	}
}

// Record persists one timeline entry. The actor's display name is
// captured at write time; a missing account falls back to the bare id.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	actorName := e.ActorID
	if user, err := r.users.GetUser(ctx, e.ActorID); err == nil {
		actorName = user.DisplayName
	} else if !errors.Is(err, store.ErrNotFound) {
		r.logger.Warn("failed to resolve actor for activity record", "actor_id", e.ActorID, "error", err)
	}

	blob, err := json.Marshal(snapshot{
		ActorID:   e.ActorID,
		ActorName: actorName,
		Field:     e.Field,
		Before:    e.Before,
		After:     e.After,
	})
	if err != nil {
		return fmt.Errorf("failed to encode activity snapshot: %w", err)
	}

	rec := &store.ActivityRecord{
		ID:        uuid.New().String(),
		FolderID:  e.FolderID,
		ActorID:   e.ActorID,
		ActorName: actorName,
		Action:    string(e.Action),
		Field:     e.Field,
		Snapshot:  string(blob),
		CreatedAt: r.now().Unix(),
	}
	if err := r.store.CreateActivity(ctx, rec); err != nil {
		return fmt.Errorf("failed to store activity record: %w", err)
	}
	return nil
}
