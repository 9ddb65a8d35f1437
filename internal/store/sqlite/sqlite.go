// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"fmt"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/foldershare/folderd/internal/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements the store.Driver interface using SQLite via GORM.
type Driver struct {
	queries
	dataDir string
}

// queries implements store.Store against a *gorm.DB handle. The same
// implementation serves both the root connection and transactions.
type queries struct {
	db *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init initializes the SQLite database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, "folderd.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	// AutoMigrate creates/updates tables based on model structs
	if err := db.AutoMigrate(
		&store.Folder{},
		&store.Collaborator{},
		&store.Invite{},
		&store.Bookmark{},
		&store.User{},
		&store.Notification{},
		&store.ActivityRecord{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transact runs fn inside one transaction. Row-level locking on the
// folder row serializes concurrent mutations of the same folder.
func (d *Driver) Transact(ctx context.Context, fn func(tx store.Store) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&queries{db: tx})
	})
}

// relationPreloads maps external relation names to GORM association names.
var relationPreloads = map[string]string{
	store.FolderRelCollaborators: "Collaborators",
	store.FolderRelBookmarks:     "Bookmarks",
}

// FolderStore implementation

// CreateFolder creates a new folder.
func (q *queries) CreateFolder(ctx context.Context, folder *store.Folder) error {
	return q.db.WithContext(ctx).Create(folder).Error
}

// GetFolder retrieves a folder with all columns and no relations.
func (q *queries) GetFolder(ctx context.Context, id string) (*store.Folder, error) {
	var folder store.Folder
	result := q.db.WithContext(ctx).First(&folder, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &folder, nil
}

// LoadFolder retrieves a folder with only the requested columns selected
// and the requested relations preloaded. The id column is always part of
// the projection.
func (q *queries) LoadFolder(ctx context.Context, id string, fields, relations []string) (*store.Folder, error) {
	columns := make([]string, 0, len(fields)+1)
	seen := map[string]bool{}
	for _, f := range append([]string{store.FolderFieldID}, fields...) {
		if !seen[f] {
			seen[f] = true
			columns = append(columns, f)
		}
	}

	query := q.db.WithContext(ctx).Select(columns)
	for _, rel := range relations {
		name, ok := relationPreloads[rel]
		if !ok {
			return nil, fmt.Errorf("unknown folder relation %q", rel)
		}
		query = query.Preload(name)
	}

	var folder store.Folder
	result := query.First(&folder, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &folder, nil
}

// UpdateFolderFields persists only the given column values.
func (q *queries) UpdateFolderFields(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	result := q.db.WithContext(ctx).Model(&store.Folder{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CollaboratorStore implementation

func (q *queries) CreateCollaborator(ctx context.Context, c *store.Collaborator) error {
	return q.db.WithContext(ctx).Create(c).Error
}

func (q *queries) GetCollaborator(ctx context.Context, folderID, userID string) (*store.Collaborator, error) {
	var c store.Collaborator
	result := q.db.WithContext(ctx).First(&c, "folder_id = ? AND user_id = ?", folderID, userID)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &c, nil
}

func (q *queries) ListCollaborators(ctx context.Context, folderID string) ([]*store.Collaborator, error) {
	var collaborators []*store.Collaborator
	result := q.db.WithContext(ctx).Where("folder_id = ?", folderID).Find(&collaborators)
	if result.Error != nil {
		return nil, result.Error
	}
	return collaborators, nil
}

func (q *queries) DeleteCollaborator(ctx context.Context, folderID, userID string) error {
	result := q.db.WithContext(ctx).Delete(&store.Collaborator{}, "folder_id = ? AND user_id = ?", folderID, userID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// InviteStore implementation

func (q *queries) CreateInvite(ctx context.Context, invite *store.Invite) error {
	return q.db.WithContext(ctx).Create(invite).Error
}

func (q *queries) GetInvite(ctx context.Context, token string) (*store.Invite, error) {
	var invite store.Invite
	result := q.db.WithContext(ctx).First(&invite, "token = ?", token)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &invite, nil
}

func (q *queries) UpdateInvite(ctx context.Context, invite *store.Invite) error {
	return q.db.WithContext(ctx).Save(invite).Error
}

// BookmarkStore implementation

func (q *queries) CreateBookmark(ctx context.Context, b *store.Bookmark) error {
	return q.db.WithContext(ctx).Create(b).Error
}

func (q *queries) CountBookmarks(ctx context.Context, folderID string) (int64, error) {
	var count int64
	result := q.db.WithContext(ctx).Model(&store.Bookmark{}).Where("folder_id = ?", folderID).Count(&count)
	return count, result.Error
}

// UserStore implementation

func (q *queries) CreateUser(ctx context.Context, u *store.User) error {
	return q.db.WithContext(ctx).Create(u).Error
}

func (q *queries) GetUser(ctx context.Context, id string) (*store.User, error) {
	var u store.User
	result := q.db.WithContext(ctx).First(&u, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &u, nil
}

func (q *queries) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	var u store.User
	result := q.db.WithContext(ctx).First(&u, "email = ?", email)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &u, nil
}

// NotificationStore implementation

func (q *queries) CreateNotification(ctx context.Context, n *store.Notification) error {
	return q.db.WithContext(ctx).Create(n).Error
}

func (q *queries) ListNotifications(ctx context.Context, userID string) ([]*store.Notification, error) {
	var notifications []*store.Notification
	result := q.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&notifications)
	if result.Error != nil {
		return nil, result.Error
	}
	return notifications, nil
}

// ActivityStore implementation

func (q *queries) CreateActivity(ctx context.Context, rec *store.ActivityRecord) error {
	return q.db.WithContext(ctx).Create(rec).Error
}

func (q *queries) ListActivity(ctx context.Context, folderID string) ([]*store.ActivityRecord, error) {
	var records []*store.ActivityRecord
	result := q.db.WithContext(ctx).Where("folder_id = ?", folderID).Order("created_at DESC").Find(&records)
	if result.Error != nil {
		return nil, result.Error
	}
	return records, nil
}

// Compile-time interface checks
var _ store.Driver = (*Driver)(nil)
var _ store.Store = (*queries)(nil)
