// Package notifications queues per-user notifications produced by the
// folder flows. Delivery/rendering is out of scope; records are stored
// for a delivery layer to pick up.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/foldershare/folderd/internal/platform/logutil"
	"github.com/foldershare/folderd/internal/store"
)

// Category identifies a notification category. Values match the folder
// settings schema keys so the owner's per-category toggles apply 1:1.
type Category string

const (
	CategoryNewCollaborator     Category = "new_collaborator"
	CategoryFolderUpdated       Category = "folder_updated"
	CategoryNewBookmarks        Category = "new_bookmarks"
	CategoryBookmarksRemoved    Category = "bookmarks_removed"
	CategoryCollaboratorExit    Category = "collaborator_exit"
	CategoryCollaboratorRemoved Category = "collaborator_removed"
	CategoryInviteDeclined      Category = "invite_declined"
)

// Notification is one queued notification before persistence.
type Notification struct {
	UserID   string // recipient
	FolderID string
	ActorID  string // who triggered it
	Category Category
	Field    string         // changed field for folder_updated, else empty
	Detail   map[string]any // rendered later; stored as JSON
}

// Dispatcher persists notifications. It is handed to deferred tasks, so
// it must be bound to the base store, not a transaction.
type Dispatcher struct {
	store  store.NotificationStore
	logger *slog.Logger
	now    func() time.Time
}

// NewDispatcher creates a dispatcher over the given store.
func NewDispatcher(st store.NotificationStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:  st,
		logger: logutil.Component(logger, "notifications"),
		now:    time.Now,
	}
}

// Dispatch persists one notification record.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Detail)
	if err != nil {
		return fmt.Errorf("failed to encode notification detail: %w", err)
	}

	rec := &store.Notification{
		ID:        uuid.New().String(),
		UserID:    n.UserID,
		FolderID:  n.FolderID,
		ActorID:   n.ActorID,
		Category:  string(n.Category),
		Field:     n.Field,
		Payload:   string(payload),
		CreatedAt: d.now().Unix(),
	}
	if err := d.store.CreateNotification(ctx, rec); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	d.logger.Debug("notification queued",
		"user_id", n.UserID,
		"folder_id", n.FolderID,
		"category", n.Category,
		"field", n.Field)
	return nil
}
