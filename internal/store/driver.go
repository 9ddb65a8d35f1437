// Package store provides persistence primitives and driver abstractions.
package store

import (
	"context"
	"errors"
)

// Common errors for store operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrClosed        = errors.New("store closed")
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	Store
	Transactor

	// Init initializes the driver (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (sqlite, memory).
	Name() string
}

// Store bundles all entity stores. A Driver implements it against its
// backing database; Transact yields a Store bound to one transaction.
type Store interface {
	FolderStore
	CollaboratorStore
	InviteStore
	BookmarkStore
	UserStore
	NotificationStore
	ActivityStore
}

// Transactor runs fn inside one transaction. The Store passed to fn is
// only valid for the duration of the call; returning an error rolls the
// transaction back.
type Transactor interface {
	Transact(ctx context.Context, fn func(tx Store) error) error
}

// FolderStore defines operations for folder persistence.
type FolderStore interface {
	CreateFolder(ctx context.Context, folder *Folder) error
	GetFolder(ctx context.Context, id string) (*Folder, error)

	// LoadFolder fetches one folder with only the given columns selected
	// and the given relations preloaded. The id column is always included.
	// Relation names: "collaborators", "bookmarks".
	LoadFolder(ctx context.Context, id string, fields, relations []string) (*Folder, error)

	// UpdateFolderFields persists only the given column values.
	UpdateFolderFields(ctx context.Context, id string, fields map[string]any) error
}

// CollaboratorStore defines operations for collaborator persistence.
type CollaboratorStore interface {
	CreateCollaborator(ctx context.Context, c *Collaborator) error
	GetCollaborator(ctx context.Context, folderID, userID string) (*Collaborator, error)
	ListCollaborators(ctx context.Context, folderID string) ([]*Collaborator, error)
	DeleteCollaborator(ctx context.Context, folderID, userID string) error
}

// InviteStore defines operations for invite persistence.
type InviteStore interface {
	CreateInvite(ctx context.Context, invite *Invite) error
	GetInvite(ctx context.Context, token string) (*Invite, error)
	UpdateInvite(ctx context.Context, invite *Invite) error
}

// BookmarkStore defines operations for bookmark persistence.
type BookmarkStore interface {
	CreateBookmark(ctx context.Context, b *Bookmark) error
	CountBookmarks(ctx context.Context, folderID string) (int64, error)
}

// UserStore defines read access to user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// NotificationStore defines operations for notification persistence.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, userID string) ([]*Notification, error)
}

// ActivityStore defines operations for activity-log persistence.
// Records are append-only; there is no update or delete.
type ActivityStore interface {
	CreateActivity(ctx context.Context, rec *ActivityRecord) error
	ListActivity(ctx context.Context, folderID string) ([]*ActivityRecord, error)
}
