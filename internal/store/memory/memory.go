// Package memory implements an in-memory persistence driver.
// It backs unit tests and dev mode; data is lost on restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/foldershare/folderd/internal/store"
)

func init() {
	store.Register("memory", NewDriver)
}

// Driver implements store.Driver entirely in memory.
//
// Transact does not provide rollback: effects in the folder flows are
// ordered so that all constraint checks run before any write, so a failed
// run writes nothing. This matches what the tests need from the driver.
type Driver struct {
	mu            sync.RWMutex
	folders       map[string]*store.Folder
	collaborators map[string]*store.Collaborator // keyed by id
	invites       map[string]*store.Invite       // keyed by token
	bookmarks     map[string]*store.Bookmark
	users         map[string]*store.User
	notifications map[string]*store.Notification
	activity      map[string]*store.ActivityRecord
}

// NewDriver creates a new in-memory driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	return &Driver{
		folders:       make(map[string]*store.Folder),
		collaborators: make(map[string]*store.Collaborator),
		invites:       make(map[string]*store.Invite),
		bookmarks:     make(map[string]*store.Bookmark),
		users:         make(map[string]*store.User),
		notifications: make(map[string]*store.Notification),
		activity:      make(map[string]*store.ActivityRecord),
	}, nil
}

// New returns an initialized in-memory driver for tests.
func New() *Driver {
	d, _ := NewDriver(&store.DriverConfig{Driver: "memory"})
	return d.(*Driver)
}

func (d *Driver) Name() string { return "memory" }

func (d *Driver) Init(ctx context.Context) error { return nil }

func (d *Driver) Close() error { return nil }

// Transact runs fn against the driver itself. The folder flows own
// exclusive access to their entity for the duration of a pipeline run,
// so no additional locking beyond the per-operation mutex is needed.
func (d *Driver) Transact(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(d)
}

// FolderStore implementation

func (d *Driver) CreateFolder(ctx context.Context, folder *store.Folder) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if folder.ID == "" {
		folder.ID = uuid.New().String()
	}
	if _, ok := d.folders[folder.ID]; ok {
		return store.ErrAlreadyExists
	}
	cp := *folder
	cp.Collaborators = nil
	cp.Bookmarks = nil
	d.folders[folder.ID] = &cp
	return nil
}

func (d *Driver) GetFolder(ctx context.Context, id string) (*store.Folder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	folder, ok := d.folders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *folder
	return &cp, nil
}

// LoadFolder honors the projection for real: columns outside the
// requested set stay at their zero value, so a handler that reads a field
// it never declared fails loudly in tests.
func (d *Driver) LoadFolder(ctx context.Context, id string, fields, relations []string) (*store.Folder, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	folder, ok := d.folders[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	want := map[string]bool{store.FolderFieldID: true}
	for _, f := range fields {
		want[f] = true
	}

	projected := &store.Folder{ID: folder.ID}
	if want[store.FolderFieldOwnerID] {
		projected.OwnerID = folder.OwnerID
	}
	if want[store.FolderFieldName] {
		projected.Name = folder.Name
	}
	if want[store.FolderFieldDescription] {
		projected.Description = folder.Description
	}
	if want[store.FolderFieldVisibility] {
		projected.Visibility = folder.Visibility
	}
	if want[store.FolderFieldPassword] {
		projected.PasswordHash = folder.PasswordHash
	}
	if want[store.FolderFieldIcon] {
		projected.IconID = folder.IconID
	}
	if want[store.FolderFieldSettings] {
		projected.Settings = folder.Settings
	}
	if want[store.FolderFieldUpdatedAt] {
		projected.UpdatedAt = folder.UpdatedAt
	}

	for _, rel := range relations {
		switch rel {
		case store.FolderRelCollaborators:
			projected.Collaborators = d.collaboratorsOf(id)
		case store.FolderRelBookmarks:
			projected.Bookmarks = d.bookmarksOf(id)
		}
	}

	return projected, nil
}

func (d *Driver) collaboratorsOf(folderID string) []store.Collaborator {
	var out []store.Collaborator
	for _, c := range d.collaborators {
		if c.FolderID == folderID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

func (d *Driver) bookmarksOf(folderID string) []store.Bookmark {
	var out []store.Bookmark
	for _, b := range d.bookmarks {
		if b.FolderID == folderID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

func (d *Driver) UpdateFolderFields(ctx context.Context, id string, fields map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	folder, ok := d.folders[id]
	if !ok {
		return store.ErrNotFound
	}
	for col, val := range fields {
		switch col {
		case store.FolderFieldName:
			folder.Name = val.(string)
		case store.FolderFieldDescription:
			folder.Description = val.(string)
		case store.FolderFieldVisibility:
			folder.Visibility = val.(string)
		case store.FolderFieldPassword:
			folder.PasswordHash = val.(string)
		case store.FolderFieldIcon:
			folder.IconID = val.(string)
		case store.FolderFieldSettings:
			folder.Settings = val.(string)
		case store.FolderFieldUpdatedAt:
			folder.UpdatedAt = val.(int64)
		}
	}
	return nil
}

// CollaboratorStore implementation

func (d *Driver) CreateCollaborator(ctx context.Context, c *store.Collaborator) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	for _, existing := range d.collaborators {
		if existing.FolderID == c.FolderID && existing.UserID == c.UserID {
			return store.ErrAlreadyExists
		}
	}
	cp := *c
	d.collaborators[c.ID] = &cp
	return nil
}

func (d *Driver) GetCollaborator(ctx context.Context, folderID, userID string) (*store.Collaborator, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, c := range d.collaborators {
		if c.FolderID == folderID && c.UserID == userID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (d *Driver) ListCollaborators(ctx context.Context, folderID string) ([]*store.Collaborator, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*store.Collaborator
	for _, c := range d.collaboratorsOf(folderID) {
		cp := c
		out = append(out, &cp)
	}
	return out, nil
}

func (d *Driver) DeleteCollaborator(ctx context.Context, folderID, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, c := range d.collaborators {
		if c.FolderID == folderID && c.UserID == userID {
			delete(d.collaborators, id)
			return nil
		}
	}
	return store.ErrNotFound
}

// InviteStore implementation

func (d *Driver) CreateInvite(ctx context.Context, invite *store.Invite) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if invite.Token == "" {
		invite.Token = strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	if invite.Status == "" {
		invite.Status = store.InviteStatusPending
	}
	if _, ok := d.invites[invite.Token]; ok {
		return store.ErrAlreadyExists
	}
	cp := *invite
	d.invites[invite.Token] = &cp
	return nil
}

func (d *Driver) GetInvite(ctx context.Context, token string) (*store.Invite, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	invite, ok := d.invites[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *invite
	return &cp, nil
}

func (d *Driver) UpdateInvite(ctx context.Context, invite *store.Invite) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.invites[invite.Token]; !ok {
		return store.ErrNotFound
	}
	cp := *invite
	d.invites[invite.Token] = &cp
	return nil
}

// BookmarkStore implementation

func (d *Driver) CreateBookmark(ctx context.Context, b *store.Bookmark) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	cp := *b
	d.bookmarks[b.ID] = &cp
	return nil
}

func (d *Driver) CountBookmarks(ctx context.Context, folderID string) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var count int64
	for _, b := range d.bookmarks {
		if b.FolderID == folderID {
			count++
		}
	}
	return count, nil
}

// UserStore implementation

func (d *Driver) CreateUser(ctx context.Context, u *store.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if _, ok := d.users[u.ID]; ok {
		return store.ErrAlreadyExists
	}
	for _, existing := range d.users {
		if existing.Email == u.Email {
			return store.ErrAlreadyExists
		}
	}
	cp := *u
	d.users[u.ID] = &cp
	return nil
}

func (d *Driver) GetUser(ctx context.Context, id string) (*store.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *Driver) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, u := range d.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

// NotificationStore implementation

func (d *Driver) CreateNotification(ctx context.Context, n *store.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	cp := *n
	d.notifications[n.ID] = &cp
	return nil
}

func (d *Driver) ListNotifications(ctx context.Context, userID string) ([]*store.Notification, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*store.Notification
	for _, n := range d.notifications {
		if n.UserID == userID {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// ActivityStore implementation

func (d *Driver) CreateActivity(ctx context.Context, rec *store.ActivityRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	cp := *rec
	d.activity[rec.ID] = &cp
	return nil
}

func (d *Driver) ListActivity(ctx context.Context, folderID string) ([]*store.ActivityRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*store.ActivityRecord
	for _, rec := range d.activity {
		if rec.FolderID == folderID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// Compile-time interface checks
var _ store.Driver = (*Driver)(nil)
var _ store.Store = (*Driver)(nil)
