package folders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/foldershare/folderd/internal/components/activity"
	"github.com/foldershare/folderd/internal/components/folders/pipeline"
	"github.com/foldershare/folderd/internal/components/folders/settings"
	"github.com/foldershare/folderd/internal/components/folders/uac"
	"github.com/foldershare/folderd/internal/components/notifications"
	"github.com/foldershare/folderd/internal/platform/logutil"
	"github.com/foldershare/folderd/internal/store"
)

// ServiceConfig tunes the folder service.
type ServiceConfig struct {
	// BcryptCost for folder passwords. Zero means bcrypt.DefaultCost.
	BcryptCost int
	// InviteTTL bounds invite validity. Zero means invites never expire.
	InviteTTL time.Duration
}

// Service implements the folder mutation flows. Each flow runs its
// constraint and effect handlers through one pipeline inside one store
// transaction, then drains deferred notification and activity tasks
// after commit.
type Service struct {
	store      store.Driver
	notify     *notifications.Dispatcher
	activities *activity.Recorder
	logger     *slog.Logger
	now        func() time.Time
	bcryptCost int
	inviteTTL  time.Duration
}

// NewService creates the folder service over an initialized driver.
func NewService(st store.Driver, logger *slog.Logger, cfg ServiceConfig) *Service {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		store:      st,
		notify:     notifications.NewDispatcher(st, logger),
		activities: activity.NewRecorder(st, st, logger),
		logger:     logutil.Component(logger, "folders"),
		now:        time.Now,
		bcryptCost: cost,
		inviteTTL:  cfg.InviteTTL,
	}
}

// UpdateResult reports what an update changed.
type UpdateResult struct {
	FolderID string
	// Changed lists the logical field names that actually changed, in
	// application order.
	Changed []string
	// NoOp is set when every requested value already matched the stored
	// state. Nothing was written and nothing will be notified.
	NoOp bool
}

// UpdateFolder applies a partial update as the given actor.
//
// Settings are validated before anything is loaded, so a malformed tree
// fails fast with every violation reported at once. The permission
// requirement is computed from the fields the request actually touches;
// an owner always passes.
func (s *Service) UpdateFolder(ctx context.Context, actorID, folderID string, req *UpdateFolderRequest) (*UpdateResult, error) {
	attempted := req.AttemptedFields()
	if len(attempted) == 0 {
		return &UpdateResult{FolderID: folderID, NoOp: true}, nil
	}
	if req.Visibility != nil {
		if _, err := ParseVisibility(string(*req.Visibility)); err != nil {
			return nil, err
		}
	}

	var newSettings *settings.Settings
	if req.Settings != nil {
		var err error
		newSettings, err = settings.New(req.Settings)
		if err != nil {
			return nil, err
		}
	}

	var (
		run   *pipeline.Run
		tasks []pipeline.DeferredTask
	)
	err := s.store.Transact(ctx, func(tx store.Store) error {
		handlers := []pipeline.Handler{
			ExistenceConstraint{},
			&MembershipConstraint{UserID: actorID},
			&NotSuspendedConstraint{UserID: actorID, Now: s.now},
		}
		if required := requiredPermissions(attempted); !required.IsEmpty() {
			handlers = append(handlers, &PermissionConstraint{UserID: actorID, Required: required})
		}
		if req.IconID != nil {
			handlers = append(handlers, &FeatureEnabledConstraint{Feature: settings.FeatureUpdateIcon})
		}
		if req.Password != nil || req.RemovePassword {
			handlers = append(handlers, &FeatureEnabledConstraint{Feature: settings.FeatureUpdatePassword})
		}
		if req.Password != nil {
			handlers = append(handlers, &ProtectedVisibilityConstraint{Request: req})
		}
		if req.Visibility != nil && *req.Visibility == VisibilityPublic {
			handlers = append(handlers, &PasswordConstraint{UserID: actorID, Request: req, Users: tx})
		}
		if req.Visibility != nil && req.Visibility.restricted() {
			handlers = append(handlers, &PrivatizeConstraint{Target: *req.Visibility})
		}
		handlers = append(handlers,
			&ApplyUpdateEffect{
				Request:     req,
				NewSettings: newSettings,
				Folders:     tx,
				Now:         s.now,
				BcryptCost:  s.bcryptCost,
			},
			&NotifyChangesEffect{ActorID: actorID, Dispatcher: s.notify},
			&LogActivityEffect{ActorID: actorID, Action: activity.ActionFolderUpdated, Recorder: s.activities},
		)

		var err error
		run, tasks, err = s.pipeline(tx, handlers).Run(ctx, folderID)
		return err
	})
	if errors.Is(err, ErrNoOpMutation) {
		return &UpdateResult{FolderID: folderID, NoOp: true}, nil
	}
	if err != nil {
		return nil, err
	}

	s.drain(ctx, "update folder", tasks)

	result := &UpdateResult{FolderID: folderID}
	for _, change := range run.Changes() {
		result.Changed = append(result.Changed, change.Field)
	}
	return result, nil
}

// AcceptResult reports an accepted invite.
type AcceptResult struct {
	FolderID    string
	Permissions []string // external tokens
	Roles       []string
}

// AcceptInvite consumes an invite token as the given actor. Tokens are
// scoped to their invitee: another user's token behaves as if it did
// not exist.
//
// The inviter must still be a member in good standing unless the folder
// settings waive those checks. An invite is consumed exactly once; a
// second accept fails with ErrAlreadyAccepted.
func (s *Service) AcceptInvite(ctx context.Context, actorID, token string) (*AcceptResult, error) {
	var (
		inv   InvitePayload
		tasks []pipeline.DeferredTask
	)
	err := s.store.Transact(ctx, func(tx store.Store) error {
		rec, err := tx.GetInvite(ctx, token)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load invite: %w", err)
		}
		if rec.InviteeID != actorID {
			// Do not reveal that a token exists for someone else.
			return ErrNotFound
		}
		inv, err = invitePayloadFromRecord(rec)
		if err != nil {
			return err
		}
		roles := RoleCache{}
		for _, role := range inv.Roles {
			if !roles.Valid(role) {
				return fmt.Errorf("%w: %q", ErrInvalidRole, role)
			}
		}

		handlers := []pipeline.Handler{
			ExistenceConstraint{},
			&NotAlreadyAcceptedConstraint{Invite: inv},
			&InviteNotExpiredConstraint{Invite: inv, Now: s.now},
			&MembershipConstraint{UserID: inv.InviterID, SkipFlag: settings.SkipInviterMembershipCheck},
			&NotSuspendedConstraint{UserID: inv.InviterID, Now: s.now, SkipFlag: settings.SkipInviterSuspensionCheck},
			CollaboratorLimitConstraint{},
			&CreateCollaboratorEffect{Invite: inv, Record: rec, Collaborators: tx, Invites: tx, Now: s.now},
			&NotifyInviteAcceptedEffect{Invite: inv, Dispatcher: s.notify},
			&LogActivityEffect{ActorID: actorID, Action: activity.ActionInviteAccepted, Recorder: s.activities},
		}

		_, tasks, err = s.pipeline(tx, handlers).Run(ctx, inv.FolderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.drain(ctx, "accept invite", tasks)

	return &AcceptResult{
		FolderID:    inv.FolderID,
		Permissions: inv.Permissions.ToExternal(),
		Roles:       inv.Roles,
	}, nil
}

// CreateFolderRequest carries the attributes of a new folder.
type CreateFolderRequest struct {
	Name        string
	Description string
	Visibility  Visibility
	Password    string
	IconID      string
	Settings    map[string]any
}

// CreateFolder creates a folder owned by the given actor.
func (s *Service) CreateFolder(ctx context.Context, ownerID string, req *CreateFolderRequest) (*store.Folder, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("folder name is required: %w", ErrInvalidRequest)
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = VisibilityPrivate
	} else if _, err := ParseVisibility(string(visibility)); err != nil {
		return nil, err
	}
	if visibility == VisibilityPasswordProtected && req.Password == "" {
		return nil, fmt.Errorf("password-protected folder needs a password: %w", ErrInvalidRequest)
	}
	if visibility != VisibilityPasswordProtected && req.Password != "" {
		return nil, fmt.Errorf("folder password requires password-protected visibility: %w", ErrInvalidRequest)
	}

	var rawSettings string
	if len(req.Settings) > 0 {
		parsed, err := settings.New(req.Settings)
		if err != nil {
			return nil, err
		}
		data, err := parsed.ToJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to serialize settings: %w", err)
		}
		rawSettings = string(data)
	}

	var passwordHash string
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash folder password: %w", err)
		}
		passwordHash = string(hash)
	}

	now := s.now().Unix()
	folder := &store.Folder{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		Name:         req.Name,
		Description:  req.Description,
		Visibility:   string(visibility),
		PasswordHash: passwordHash,
		IconID:       req.IconID,
		Settings:     rawSettings,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateFolder(ctx, folder); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}

	if err := s.activities.Record(ctx, activity.Entry{
		FolderID: folder.ID,
		ActorID:  ownerID,
		Action:   activity.ActionFolderCreated,
	}); err != nil {
		s.logger.Warn("failed to record folder creation", "folder_id", folder.ID, "error", err)
	}

	return folder, nil
}

// GetFolder loads a folder if the actor may view it. Restricted folders
// are visible only to the owner and collaborators; the password hash is
// never returned.
func (s *Service) GetFolder(ctx context.Context, actorID, folderID string) (*store.Folder, error) {
	fields := []string{
		store.FolderFieldOwnerID,
		store.FolderFieldName,
		store.FolderFieldDescription,
		store.FolderFieldVisibility,
		store.FolderFieldIcon,
		store.FolderFieldSettings,
		store.FolderFieldUpdatedAt,
	}
	relations := []string{store.FolderRelCollaborators, store.FolderRelBookmarks}
	folder, err := s.store.LoadFolder(ctx, folderID, fields, relations)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load folder: %w", err)
	}

	if folder.Visibility != store.VisibilityPublic &&
		folder.OwnerID != actorID && collaboratorOf(folder, actorID) == nil {
		return nil, fmt.Errorf("folder %s is not visible to %s: %w", folderID, actorID, ErrPermissionDenied)
	}

	return folder, nil
}

// CreateInviteRequest carries a new invite's terms.
type CreateInviteRequest struct {
	InviteeID   string
	Permissions []string // external tokens
	Roles       []string
}

// CreateInvite issues an invite token as the given actor. The actor
// needs the invite-user capability (implicit for the owner) and the
// folder's invites feature must be enabled.
func (s *Service) CreateInvite(ctx context.Context, actorID, folderID string, req *CreateInviteRequest) (*InvitePayload, error) {
	if req.InviteeID == "" {
		return nil, fmt.Errorf("invitee is required: %w", ErrInvalidRequest)
	}
	perms, err := uac.FromExternal(req.Permissions)
	if err != nil {
		return nil, err
	}
	roles := RoleCache{}
	for _, role := range req.Roles {
		if !roles.Valid(role) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
		}
	}

	issuedAt := s.now()
	inv := InvitePayload{
		Token:       uuid.New().String(),
		FolderID:    folderID,
		InviterID:   actorID,
		InviteeID:   req.InviteeID,
		Permissions: perms,
		Roles:       req.Roles,
		IssuedAt:    issuedAt,
	}
	if s.inviteTTL > 0 {
		inv.ExpiresAt = issuedAt.Add(s.inviteTTL)
	}

	var tasks []pipeline.DeferredTask
	err = s.store.Transact(ctx, func(tx store.Store) error {
		handlers := []pipeline.Handler{
			ExistenceConstraint{},
			&MembershipConstraint{UserID: actorID},
			&NotSuspendedConstraint{UserID: actorID, Now: s.now},
			&PermissionConstraint{UserID: actorID, Required: uac.Of(uac.CapInviteUser)},
			&FeatureEnabledConstraint{Feature: settings.FeatureInvites},
			&CreateInviteEffect{Invite: inv, Invites: tx},
			&LogActivityEffect{ActorID: actorID, Action: activity.ActionInviteCreated, Recorder: s.activities},
		}
		var err error
		_, tasks, err = s.pipeline(tx, handlers).Run(ctx, folderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.drain(ctx, "create invite", tasks)
	return &inv, nil
}

// DeclineInvite marks an invite declined and, settings permitting,
// notifies the inviter. Declining is terminal but not destructive: the
// row stays for the audit trail.
func (s *Service) DeclineInvite(ctx context.Context, actorID, token string) error {
	var inv InvitePayload
	var notifyInviter bool
	err := s.store.Transact(ctx, func(tx store.Store) error {
		rec, err := tx.GetInvite(ctx, token)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load invite: %w", err)
		}
		if rec.InviteeID != actorID {
			return ErrNotFound
		}
		if rec.Status == store.InviteStatusAccepted {
			return ErrAlreadyAccepted
		}
		inv, err = invitePayloadFromRecord(rec)
		if err != nil {
			return err
		}

		rec.Status = store.InviteStatusDeclined
		if err := tx.UpdateInvite(ctx, rec); err != nil {
			return fmt.Errorf("failed to mark invite declined: %w", err)
		}

		folder, err := tx.LoadFolder(ctx, rec.FolderID, []string{store.FolderFieldSettings}, nil)
		if errors.Is(err, store.ErrNotFound) {
			return nil // folder gone; nothing to notify
		}
		if err != nil {
			return fmt.Errorf("failed to load folder settings: %w", err)
		}
		folderSettings, err := settings.FromJSON([]byte(folder.Settings))
		if err != nil {
			return fmt.Errorf("folder %s has unreadable settings: %w", rec.FolderID, err)
		}
		notifyInviter = folderSettings.NotifyEnabled(settings.CategoryInviteDeclined)
		return nil
	})
	if err != nil {
		return err
	}

	if notifyInviter {
		n := notifications.Notification{
			UserID:   inv.InviterID,
			FolderID: inv.FolderID,
			ActorID:  actorID,
			Category: notifications.CategoryInviteDeclined,
		}
		if err := s.notify.Dispatch(ctx, n); err != nil {
			s.logger.Warn("failed to notify inviter of decline", "token", token, "error", err)
		}
	}
	return nil
}

// AddBookmarkRequest carries the attributes of a new bookmark.
type AddBookmarkRequest struct {
	URL   string
	Title string
}

// AddBookmark adds a bookmark to a folder as the given actor. The
// folder's max_bookmarks_limit bounds the total; collaborators need the
// add-bookmarks capability, the owner always passes.
func (s *Service) AddBookmark(ctx context.Context, actorID, folderID string, req *AddBookmarkRequest) (*store.Bookmark, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("bookmark url is required: %w", ErrInvalidRequest)
	}

	var (
		bookmark *store.Bookmark
		tasks    []pipeline.DeferredTask
	)
	err := s.store.Transact(ctx, func(tx store.Store) error {
		bookmark = &store.Bookmark{
			ID:        uuid.New().String(),
			FolderID:  folderID,
			URL:       req.URL,
			Title:     req.Title,
			AddedBy:   actorID,
			CreatedAt: s.now().Unix(),
		}
		handlers := []pipeline.Handler{
			ExistenceConstraint{},
			&MembershipConstraint{UserID: actorID},
			&NotSuspendedConstraint{UserID: actorID, Now: s.now},
			&PermissionConstraint{UserID: actorID, Required: uac.Of(uac.CapAddBookmarks)},
			&BookmarkLimitConstraint{Bookmarks: tx},
			&CreateBookmarkEffect{Bookmark: bookmark, Bookmarks: tx},
			&NotifyBookmarkAddedEffect{ActorID: actorID, Bookmark: bookmark, Dispatcher: s.notify},
			&LogActivityEffect{ActorID: actorID, Action: activity.ActionBookmarkAdded, Recorder: s.activities},
		}
		var err error
		_, tasks, err = s.pipeline(tx, handlers).Run(ctx, folderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.drain(ctx, "add bookmark", tasks)
	return bookmark, nil
}

// pipeline builds a pipeline whose loader reads through the given
// transaction-bound store.
func (s *Service) pipeline(tx store.Store, handlers []pipeline.Handler) *pipeline.Pipeline {
	loader := pipeline.LoaderFunc(func(ctx context.Context, folderID string, req pipeline.Requirement) (*store.Folder, error) {
		return tx.LoadFolder(ctx, folderID, req.FieldNames(), req.RelationNames())
	})
	return pipeline.New(loader, s.logger, handlers...)
}

// drain runs deferred tasks after the transaction has committed. Task
// failures only get logged: the core mutation is already durable, and
// notifications or activity entries are not worth failing the call over.
func (s *Service) drain(ctx context.Context, flow string, tasks []pipeline.DeferredTask) {
	if err := pipeline.Drain(ctx, tasks); err != nil {
		s.logger.Warn("deferred tasks failed after commit", "flow", flow, "error", err)
	}
}
