package folders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/foldershare/folderd/internal/components/activity"
	"github.com/foldershare/folderd/internal/components/folders/pipeline"
	"github.com/foldershare/folderd/internal/components/folders/settings"
	"github.com/foldershare/folderd/internal/components/notifications"
	"github.com/foldershare/folderd/internal/store"
)

// passwordRedacted stands in for password values in change records, so
// secrets never reach notifications or the activity log.
const passwordRedacted = "[redacted]"

// ApplyUpdateEffect applies the request against the loaded folder,
// records per-field changes, and persists only the columns that
// actually changed. A request whose every field already matches the
// stored state aborts the run with ErrNoOpMutation.
type ApplyUpdateEffect struct {
	Request *UpdateFolderRequest

	// NewSettings is the validated settings tree when the request
	// replaces settings, nil otherwise. Validation happens before the
	// pipeline runs so a bad tree never costs a load.
	NewSettings *settings.Settings

	Folders    store.FolderStore
	Now        func() time.Time
	BcryptCost int
}

func (e *ApplyUpdateEffect) Requirements() pipeline.Requirement {
	req := pipeline.Requirement{}
	r := e.Request
	if r.Name != nil {
		req = req.Union(pipeline.Fields(store.FolderFieldName))
	}
	if r.Description != nil {
		req = req.Union(pipeline.Fields(store.FolderFieldDescription))
	}
	if r.Visibility != nil {
		// The stored hash is read so it can be cleared when the folder
		// leaves password-protected visibility.
		req = req.Union(pipeline.Fields(store.FolderFieldVisibility, store.FolderFieldPassword))
	}
	if r.Password != nil || r.RemovePassword {
		req = req.Union(pipeline.Fields(store.FolderFieldPassword))
	}
	if r.IconID != nil {
		req = req.Union(pipeline.Fields(store.FolderFieldIcon))
	}
	if r.Settings != nil {
		req = req.Union(pipeline.Fields(store.FolderFieldSettings))
	}
	return req
}

func (e *ApplyUpdateEffect) Execute(ctx context.Context, run *pipeline.Run) error {
	r := e.Request
	f := run.Folder
	updates := map[string]any{}

	if r.Name != nil && *r.Name != f.Name {
		run.MarkChanged(FieldName, f.Name, *r.Name)
		f.Name = *r.Name
		updates[store.FolderFieldName] = f.Name
	}
	if r.Description != nil && *r.Description != f.Description {
		run.MarkChanged(FieldDescription, f.Description, *r.Description)
		f.Description = *r.Description
		updates[store.FolderFieldDescription] = f.Description
	}
	leftProtected := false
	if r.Visibility != nil && string(*r.Visibility) != f.Visibility {
		leftProtected = f.Visibility == store.VisibilityPasswordProtected
		run.MarkChanged(FieldVisibility, f.Visibility, string(*r.Visibility))
		f.Visibility = string(*r.Visibility)
		updates[store.FolderFieldVisibility] = f.Visibility
	}

	switch {
	case r.RemovePassword:
		if f.PasswordHash != "" {
			run.MarkChanged(FieldPassword, passwordRedacted, "")
			f.PasswordHash = ""
			updates[store.FolderFieldPassword] = ""
		}
	case r.Password != nil:
		// A new password always counts as a change; hashes are salted so
		// equality with the stored value is not observable.
		hash, err := bcrypt.GenerateFromPassword([]byte(*r.Password), e.BcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash folder password: %w", err)
		}
		run.MarkChanged(FieldPassword, passwordRedacted, passwordRedacted)
		f.PasswordHash = string(hash)
		updates[store.FolderFieldPassword] = f.PasswordHash
	}

	// A folder that is no longer password-protected keeps no hash around.
	if leftProtected && r.Password == nil && f.PasswordHash != "" {
		run.MarkChanged(FieldPassword, passwordRedacted, "")
		f.PasswordHash = ""
		updates[store.FolderFieldPassword] = ""
	}

	if r.IconID != nil && *r.IconID != f.IconID {
		run.MarkChanged(FieldIcon, f.IconID, *r.IconID)
		f.IconID = *r.IconID
		updates[store.FolderFieldIcon] = f.IconID
	}

	if r.Settings != nil {
		if err := e.applySettings(run, updates); err != nil {
			return err
		}
	}

	if len(updates) == 0 {
		return ErrNoOpMutation
	}

	f.UpdatedAt = e.Now().Unix()
	updates[store.FolderFieldUpdatedAt] = f.UpdatedAt

	if err := e.Folders.UpdateFolderFields(ctx, run.FolderID, updates); err != nil {
		return fmt.Errorf("failed to persist folder update: %w", err)
	}
	return nil
}

// applySettings compares the incoming settings against the stored tree
// by canonical serialization, so key order and numeric spelling in the
// stored raw JSON never produce phantom changes.
func (e *ApplyUpdateEffect) applySettings(run *pipeline.Run, updates map[string]any) error {
	current, err := folderSettings(run)
	if err != nil {
		return err
	}
	currentJSON, err := current.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize stored settings: %w", err)
	}
	newJSON, err := e.NewSettings.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize new settings: %w", err)
	}
	if string(currentJSON) == string(newJSON) {
		return nil
	}

	run.MarkChanged(FieldSettings, string(currentJSON), string(newJSON))
	run.Folder.Settings = string(newJSON)
	updates[store.FolderFieldSettings] = run.Folder.Settings
	// Later handlers read settings through the run cache; hand them the
	// post-update tree.
	run.Cache[settingsCacheKey] = e.NewSettings
	return nil
}

// CreateInviteEffect persists a freshly issued invite.
type CreateInviteEffect struct {
	Invite  InvitePayload
	Invites store.InviteStore
}

func (e *CreateInviteEffect) Execute(ctx context.Context, run *pipeline.Run) error {
	rec := &store.Invite{
		Token:       e.Invite.Token,
		FolderID:    e.Invite.FolderID,
		InviterID:   e.Invite.InviterID,
		InviteeID:   e.Invite.InviteeID,
		Permissions: joinList(e.Invite.Permissions.ToExternal()),
		Roles:       joinList(e.Invite.Roles),
		Status:      store.InviteStatusPending,
		IssuedAt:    e.Invite.IssuedAt.Unix(),
	}
	if !e.Invite.ExpiresAt.IsZero() && e.Invite.ExpiresAt.Unix() > 0 {
		rec.ExpiresAt = e.Invite.ExpiresAt.Unix()
	}
	if err := e.Invites.CreateInvite(ctx, rec); err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

// CreateCollaboratorEffect turns an accepted invite into a collaborator
// row and marks the invite consumed, all inside the transaction.
type CreateCollaboratorEffect struct {
	Invite InvitePayload
	Record *store.Invite

	Collaborators store.CollaboratorStore
	Invites       store.InviteStore
	Now           func() time.Time
}

func (e *CreateCollaboratorEffect) Execute(ctx context.Context, run *pipeline.Run) error {
	now := e.Now()
	collab := &store.Collaborator{
		ID:          uuid.New().String(),
		FolderID:    e.Invite.FolderID,
		UserID:      e.Invite.InviteeID,
		Permissions: joinList(e.Invite.Permissions.ToExternal()),
		Roles:       joinList(e.Invite.Roles),
		InvitedBy:   e.Invite.InviterID,
		CreatedAt:   now.Unix(),
	}
	if err := e.Collaborators.CreateCollaborator(ctx, collab); err != nil {
		return fmt.Errorf("failed to create collaborator: %w", err)
	}

	e.Record.Status = store.InviteStatusAccepted
	e.Record.AcceptedAt = now.Unix()
	if err := e.Invites.UpdateInvite(ctx, e.Record); err != nil {
		return fmt.Errorf("failed to mark invite accepted: %w", err)
	}

	run.Folder.Collaborators = append(run.Folder.Collaborators, *collab)
	return nil
}

// NotifyChangesEffect queues one folder_updated notification to the
// owner per recorded change. The category has no mode filter, so the
// owner is notified of their own updates too; only the global and
// per-category toggles can silence it.
type NotifyChangesEffect struct {
	ActorID    string
	Dispatcher *notifications.Dispatcher
}

func (e *NotifyChangesEffect) Requirements() pipeline.Requirement {
	return pipeline.Fields(store.FolderFieldOwnerID, store.FolderFieldSettings)
}

func (e *NotifyChangesEffect) Execute(ctx context.Context, run *pipeline.Run) error {
	owner := run.Folder.OwnerID
	s, err := folderSettings(run)
	if err != nil {
		return err
	}
	if !s.NotifyEnabled(settings.CategoryFolderUpdated) {
		return nil
	}
	for _, change := range run.Changes() {
		n := notifications.Notification{
			UserID:   owner,
			FolderID: run.FolderID,
			ActorID:  e.ActorID,
			Category: notifications.CategoryFolderUpdated,
			Field:    change.Field,
			Detail:   map[string]any{"before": change.Before, "after": change.After},
		}
		run.Defer(func(ctx context.Context) error {
			return e.Dispatcher.Dispatch(ctx, n)
		})
	}
	return nil
}

// NotifyInviteAcceptedEffect queues one new_collaborator notification
// to the inviter when their invite is accepted. The category's mode can
// only silence it: none queues nothing, while invited-by-me and
// everyone both reach the inviter, who by definition invited the new
// collaborator. The inviter is notified even when the accept-invite
// constraints waived their membership check.
type NotifyInviteAcceptedEffect struct {
	Invite     InvitePayload
	Dispatcher *notifications.Dispatcher
}

func (e *NotifyInviteAcceptedEffect) Requirements() pipeline.Requirement {
	return pipeline.Fields(store.FolderFieldSettings)
}

func (e *NotifyInviteAcceptedEffect) Execute(ctx context.Context, run *pipeline.Run) error {
	s, err := folderSettings(run)
	if err != nil {
		return err
	}
	if !s.NotifyEnabled(settings.CategoryNewCollaborator) {
		return nil
	}
	if s.NotifyMode(settings.CategoryNewCollaborator) == settings.ModeNone {
		return nil
	}

	n := notifications.Notification{
		UserID:   e.Invite.InviterID,
		FolderID: run.FolderID,
		ActorID:  e.Invite.InviteeID,
		Category: notifications.CategoryNewCollaborator,
		Detail:   map[string]any{"invited_by": e.Invite.InviterID},
	}
	run.Defer(func(ctx context.Context) error {
		return e.Dispatcher.Dispatch(ctx, n)
	})
	return nil
}

// CreateBookmarkEffect persists a new bookmark inside the transaction.
type CreateBookmarkEffect struct {
	Bookmark  *store.Bookmark
	Bookmarks store.BookmarkStore
}

func (e *CreateBookmarkEffect) Execute(ctx context.Context, run *pipeline.Run) error {
	if err := e.Bookmarks.CreateBookmark(ctx, e.Bookmark); err != nil {
		return fmt.Errorf("failed to create bookmark: %w", err)
	}
	return nil
}

// NotifyBookmarkAddedEffect queues one new_bookmarks notification to
// the owner. Like folder_updated, the category has no mode filter, so
// the owner hears about their own additions too.
type NotifyBookmarkAddedEffect struct {
	ActorID    string
	Bookmark   *store.Bookmark
	Dispatcher *notifications.Dispatcher
}

func (e *NotifyBookmarkAddedEffect) Requirements() pipeline.Requirement {
	return pipeline.Fields(store.FolderFieldOwnerID, store.FolderFieldSettings)
}

func (e *NotifyBookmarkAddedEffect) Execute(ctx context.Context, run *pipeline.Run) error {
	s, err := folderSettings(run)
	if err != nil {
		return err
	}
	if !s.NotifyEnabled(settings.CategoryNewBookmarks) {
		return nil
	}
	n := notifications.Notification{
		UserID:   run.Folder.OwnerID,
		FolderID: run.FolderID,
		ActorID:  e.ActorID,
		Category: notifications.CategoryNewBookmarks,
		Detail:   map[string]any{"url": e.Bookmark.URL, "title": e.Bookmark.Title},
	}
	run.Defer(func(ctx context.Context) error {
		return e.Dispatcher.Dispatch(ctx, n)
	})
	return nil
}

// LogActivityEffect queues activity records for the run: one per
// recorded change for updates, or a single entry for actions that carry
// no field changes.
type LogActivityEffect struct {
	ActorID  string
	Action   activity.Action
	Recorder *activity.Recorder
}

func (e *LogActivityEffect) Execute(ctx context.Context, run *pipeline.Run) error {
	changes := run.Changes()
	if len(changes) == 0 {
		entry := activity.Entry{
			FolderID: run.FolderID,
			ActorID:  e.ActorID,
			Action:   e.Action,
		}
		run.Defer(func(ctx context.Context) error {
			return e.Recorder.Record(ctx, entry)
		})
		return nil
	}
	for _, change := range changes {
		entry := activity.Entry{
			FolderID: run.FolderID,
			ActorID:  e.ActorID,
			Action:   e.Action,
			Field:    change.Field,
			Before:   change.Before,
			After:    change.After,
		}
		run.Defer(func(ctx context.Context) error {
			return e.Recorder.Record(ctx, entry)
		})
	}
	return nil
}
