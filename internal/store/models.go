package store

// Folder visibility values.
const (
	VisibilityPublic            = "public"
	VisibilityPrivate           = "private"
	VisibilityPasswordProtected = "password-protected"
	VisibilityCollaboratorsOnly = "collaborators-only"
)

// Folder column names usable in projection loads. These must match the
// GORM column naming of the Folder struct.
const (
	FolderFieldID          = "id"
	FolderFieldOwnerID     = "owner_id"
	FolderFieldName        = "name"
	FolderFieldDescription = "description"
	FolderFieldVisibility  = "visibility"
	FolderFieldPassword    = "password_hash"
	FolderFieldIcon        = "icon_id"
	FolderFieldSettings    = "settings"
	FolderFieldUpdatedAt   = "updated_at"
)

// Folder relation names usable in projection loads.
const (
	FolderRelCollaborators = "collaborators"
	FolderRelBookmarks     = "bookmarks"
)

// Folder is a shared bookmark folder.
type Folder struct {
	ID          string `json:"id" gorm:"primaryKey"`
	OwnerID     string `json:"owner_id" gorm:"index"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// Visibility is one of the Visibility* constants. A folder with
	// active collaborators cannot be private or password-protected.
	Visibility   string `json:"visibility"`
	PasswordHash string `json:"password_hash,omitempty"` // omitempty for redaction
	IconID       string `json:"icon_id"`
	// Settings holds the raw user-supplied settings JSON, verbatim.
	// Defaults are a read-time concept and are never stored.
	Settings  string `json:"settings"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`

	Collaborators []Collaborator `json:"collaborators,omitempty" gorm:"foreignKey:FolderID"`
	Bookmarks     []Bookmark     `json:"bookmarks,omitempty" gorm:"foreignKey:FolderID"`
}

// Collaborator relates a user to a folder with granted permissions.
type Collaborator struct {
	ID       string `json:"id" gorm:"primaryKey"`
	FolderID string `json:"folder_id" gorm:"index"`
	UserID   string `json:"user_id" gorm:"index"`
	// Permissions holds external permission tokens, comma-separated
	// (addBookmarks, updateFolder, ...). View access is implicit.
	Permissions string `json:"permissions"`
	Roles       string `json:"roles"` // comma-separated role names
	InvitedBy   string `json:"invited_by"`
	Suspended   bool   `json:"suspended"`
	// SuspendedUntil is a unix timestamp; 0 means indefinite.
	SuspendedUntil int64 `json:"suspended_until"`
	Muted          bool  `json:"muted"`
	MutedUntil     int64 `json:"muted_until"`
	CreatedAt      int64 `json:"created_at"`
}

// Invite statuses.
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusDeclined = "declined"
	InviteStatusRevoked  = "revoked"
)

// Invite is a pending collaboration invitation, keyed by an opaque token.
// It is consumed exactly once on acceptance.
type Invite struct {
	Token       string `json:"token" gorm:"primaryKey"`
	FolderID    string `json:"folder_id" gorm:"index"`
	InviterID   string `json:"inviter_id"`
	InviteeID   string `json:"invitee_id" gorm:"index"`
	Permissions string `json:"permissions"` // external tokens, comma-separated
	Roles       string `json:"roles"`       // comma-separated role names
	Status      string `json:"status"`      // pending, accepted, declined, revoked
	IssuedAt    int64  `json:"issued_at"`
	ExpiresAt   int64  `json:"expires_at"`
	AcceptedAt  int64  `json:"accepted_at"`
}

// Bookmark is a single bookmark inside a folder.
type Bookmark struct {
	ID        string `json:"id" gorm:"primaryKey"`
	FolderID  string `json:"folder_id" gorm:"index"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	AddedBy   string `json:"added_by"`
	CreatedAt int64  `json:"created_at"`
}

// User is a local account. Only the fields the folder flows need.
type User struct {
	ID           string `json:"id" gorm:"primaryKey"`
	Email        string `json:"email" gorm:"uniqueIndex"`
	DisplayName  string `json:"display_name"`
	PasswordHash string `json:"password_hash,omitempty"` // omitempty for redaction
	CreatedAt    int64  `json:"created_at"`
}

// Notification is a queued notification addressed to a user.
type Notification struct {
	ID        string `json:"id" gorm:"primaryKey"`
	UserID    string `json:"user_id" gorm:"index"`
	FolderID  string `json:"folder_id" gorm:"index"`
	ActorID   string `json:"actor_id"`
	Category  string `json:"category"`
	Field     string `json:"field,omitempty"`
	Payload   string `json:"payload"` // JSON detail blob
	ReadAt    int64  `json:"read_at"`
	CreatedAt int64  `json:"created_at"`
}

// ActivityRecord is one immutable timeline entry. The snapshot carries
// everything needed to render the entry later, even if the acting or
// affected accounts no longer exist.
type ActivityRecord struct {
	ID        string `json:"id" gorm:"primaryKey"`
	FolderID  string `json:"folder_id" gorm:"index"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name"`
	Action    string `json:"action"`
	Field     string `json:"field,omitempty"`
	Snapshot  string `json:"snapshot"` // JSON before/after blob
	CreatedAt int64  `json:"created_at"`
}
