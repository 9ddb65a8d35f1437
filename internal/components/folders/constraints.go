package folders

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/foldershare/folderd/internal/components/folders/pipeline"
	"github.com/foldershare/folderd/internal/components/folders/settings"
	"github.com/foldershare/folderd/internal/components/folders/uac"
	"github.com/foldershare/folderd/internal/store"
)

// settingsCacheKey keys the parsed settings tree in the run cache, so
// every handler in one run shares a single parse.
const settingsCacheKey = "settings"

// folderSettings returns the run's resolved folder settings, parsing the
// stored raw JSON at most once per run.
func folderSettings(run *pipeline.Run) (*settings.Settings, error) {
	if v, ok := run.Cache[settingsCacheKey]; ok {
		return v.(*settings.Settings), nil
	}
	if run.Folder == nil {
		return nil, ErrNotFound
	}
	s, err := settings.FromJSON([]byte(run.Folder.Settings))
	if err != nil {
		return nil, fmt.Errorf("folder %s has unreadable settings: %w", run.FolderID, err)
	}
	run.Cache[settingsCacheKey] = s
	return s, nil
}

// collaboratorOf finds a user's collaborator row on the loaded folder.
func collaboratorOf(folder *store.Folder, userID string) *store.Collaborator {
	for i := range folder.Collaborators {
		if folder.Collaborators[i].UserID == userID {
			return &folder.Collaborators[i]
		}
	}
	return nil
}

// ExistenceConstraint maps a missing row to ErrNotFound. It runs first
// in every flow so "not found" is produced uniformly with the other
// constraint failures instead of the loader short-circuiting.
type ExistenceConstraint struct{}

func (ExistenceConstraint) Execute(ctx context.Context, run *pipeline.Run) error {
	if run.Folder == nil {
		return ErrNotFound
	}
	return nil
}

// MembershipConstraint requires the user to currently hold membership in
// the folder (the owner counts). When SkipFlag is set, the folder's
// accept_invite_constraints can waive the check.
type MembershipConstraint struct {
	UserID   string
	SkipFlag settings.AcceptInviteConstraint
}

func (c *MembershipConstraint) Requirements() pipeline.Requirement {
	req := pipeline.Fields(store.FolderFieldOwnerID).Union(pipeline.Relations(store.FolderRelCollaborators))
	if c.SkipFlag != "" {
		req = req.Union(pipeline.Fields(store.FolderFieldSettings))
	}
	return req
}

func (c *MembershipConstraint) Execute(ctx context.Context, run *pipeline.Run) error {
	if c.SkipFlag != "" {
		s, err := folderSettings(run)
		if err != nil {
			return err
		}
		if s.HasAcceptInviteConstraint(c.SkipFlag) {
			return nil
		}
	}
	if run.Folder.OwnerID == c.UserID {
		return nil
	}
	if collaboratorOf(run.Folder, c.UserID) == nil {
		return fmt.Errorf("user %s is not a collaborator of folder %s: %w", c.UserID, run.FolderID, ErrPermissionDenied)
	}
	return nil
}

// NotSuspendedConstraint requires the user not to be under an active,
// non-expired suspension. Missing membership passes; that is the
// membership constraint's concern.
type NotSuspendedConstraint struct {
	UserID   string
	Now      func() time.Time
	SkipFlag settings.AcceptInviteConstraint
}

func (c *NotSuspendedConstraint) Requirements() pipeline.Requirement {
	req := pipeline.Fields(store.FolderFieldOwnerID).Union(pipeline.Relations(store.FolderRelCollaborators))
	if c.SkipFlag != "" {
		req = req.Union(pipeline.Fields(store.FolderFieldSettings))
	}
	return req
}

func (c *NotSuspendedConstraint) Execute(ctx context.Context, run *pipeline.Run) error {
	if c.SkipFlag != "" {
		s, err := folderSettings(run)
		if err != nil {
			return err
		}
		if s.HasAcceptInviteConstraint(c.SkipFlag) {
			return nil
		}
	}
	if run.Folder.OwnerID == c.UserID {
		return nil
	}
	collab := collaboratorOf(run.Folder, c.UserID)
	if collab == nil || !collab.Suspended {
		return nil
	}
	if collab.SuspendedUntil > 0 {
		until := time.Unix(collab.SuspendedUntil, 0)
		if c.Now().After(until) {
			return nil // suspension expired
		}
		return &SuspendedError{Until: until}
	}
	return &SuspendedError{}
}

// PermissionConstraint requires the actor's granted permission set to
// contain every required capability. The required set is computed by the
// flow from the fields actually attempted; assembling this constraint
// with an empty requirement is a caller bug (ContainsAll of the empty
// set is false by contract, so it would reject everyone).
type PermissionConstraint struct {
	UserID   string
	Required uac.PermissionSet
}

func (c *PermissionConstraint) Requirements() pipeline.Requirement {
	return pipeline.Fields(store.FolderFieldOwnerID).Union(pipeline.Relations(store.FolderRelCollaborators))
}

func (c *PermissionConstraint) Execute(ctx context.Context, run *pipeline.Run) error {
	granted := uac.PermissionSet{}
	if run.Folder.OwnerID == c.UserID {
		granted = uac.Full()
	} else if collab := collaboratorOf(run.Folder, c.UserID); collab != nil {
		var err error
		granted, err = uac.FromExternal(splitList(collab.Permissions))
		if err != nil {
			return fmt.Errorf("collaborator %s has bad stored permissions: %w", c.UserID, err)
		}
	}
	if !granted.ContainsAll(c.Required) {
		return fmt.Errorf("user %s lacks %v on folder %s: %w", c.UserID, c.Required.Tokens(), run.FolderID, ErrPermissionDenied)
	}
	return nil
}

// FeatureEnabledConstraint fails when the folder owner has disabled the
// attempted sub-feature. Distinct from a permission failure.
type FeatureEnabledConstraint struct {
	Feature settings.Feature
}

func (c *FeatureEnabledConstraint) Requirements() pipeline.Requirement {
	return pipeline.Fields(store.FolderFieldSettings)
}

func (c *FeatureEnabledConstraint) Execute(ctx context.Context, run *pipeline.Run) error {
	s, err := folderSettings(run)
	if err != nil {
		return err
	}
	if s.FeatureDisabled(c.Feature) {
		return fmt.Errorf("%s: %w", c.Feature, ErrFeatureDisabled)
	}
	return nil
}

// PasswordConstraint guards the transition from a non-public folder to
// public visibility with password removal: the actor must supply and
// verify their own account password.
type PasswordConstraint struct {
	UserID  string
	Request *UpdateFolderRequest
	Users   store.UserStore
}

func (c *PasswordConstraint) Requirements() pipeline.Requirement {
	return pipeline.Fields(store.FolderFieldVisibility, store.FolderFieldPassword)
}

func (c *PasswordConstraint) Execute(ctx context.Context, run *pipeline.Run) error {
	req := c.Request
	if req.Visibility == nil || *req.Visibility != VisibilityPublic {
		return nil
	}
	if run.Folder.Visibility == store.VisibilityPublic {
		return nil
	}
	// Moving a protected folder to public drops its password even
	// without an explicit removal, so both paths are guarded.
	if !req.RemovePassword && run.Folder.PasswordHash == "" {
		return nil
	}
	if req.AccountPassword == "" {
		return fmt.Errorf("account password required to make folder public: %w", ErrInvalidPassword)
	}
	user, err := c.Users.GetUser(ctx, c.UserID)
	if err != nil {
		return fmt.Errorf("failed to load account for password check: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.AccountPassword)) != nil {
		return ErrInvalidPassword
	}
	return nil
}

// ProtectedVisibilityConstraint rejects a new folder password unless
// the folder is, or this request makes it, password-protected. Without
// it a public folder could carry a dormant hash.
type ProtectedVisibilityConstraint struct {
	Request *UpdateFolderRequest
}

func (c *ProtectedVisibilityConstraint) Requirements() pipeline.Requirement {
	return pipeline.Fields(store.FolderFieldVisibility)
}

func (c *ProtectedVisibilityConstraint) Execute(ctx context.Context, run *pipeline.Run) error {
	target := run.Folder.Visibility
	if c.Request.Visibility != nil {
		target = string(*c.Request.Visibility)
	}
	if target != store.VisibilityPasswordProtected {
		return fmt.Errorf("folder password requires password-protected visibility: %w", ErrInvalidRequest)
	}
	return nil
}

// NotAlreadyAcceptedConstraint is the idempotency guard of the
// accept-invite flow: an invite is consumed exactly once.
type NotAlreadyAcceptedConstraint struct {
	Invite InvitePayload
}

func (c *NotAlreadyAcceptedConstraint) Execute(ctx context.Context, run *pipeline.Run) error {
	if c.Invite.Accepted {
		return ErrAlreadyAccepted
	}
	return nil
}

// InviteNotExpiredConstraint rejects invites past their expiry.
type InviteNotExpiredConstraint struct {
	Invite InvitePayload
	Now    func() time.Time
}

func (c *InviteNotExpiredConstraint) Execute(ctx context.Context, run *pipeline.Run) error {
	if c.Invite.ExpiresAt.Unix() > 0 && c.Now().After(c.Invite.ExpiresAt) {
		return ErrInviteExpired
	}
	return nil
}

// PrivatizeConstraint forbids restricting visibility to private or
// password-protected while any collaborator row exists.
type PrivatizeConstraint struct {
	Target Visibility
}

func (c *PrivatizeConstraint) Requirements() pipeline.Requirement {
	return pipeline.Relations(store.FolderRelCollaborators)
}

func (c *PrivatizeConstraint) Execute(ctx context.Context, run *pipeline.Run) error {
	if c.Target.restricted() && len(run.Folder.Collaborators) > 0 {
		return fmt.Errorf("folder %s has %d collaborators: %w", run.FolderID, len(run.Folder.Collaborators), ErrCannotPrivatize)
	}
	return nil
}

// CollaboratorLimitConstraint enforces the folder's configured maximum
// number of collaborators on accept.
type CollaboratorLimitConstraint struct{}

func (CollaboratorLimitConstraint) Requirements() pipeline.Requirement {
	return pipeline.Fields(store.FolderFieldSettings).Union(pipeline.Relations(store.FolderRelCollaborators))
}

func (CollaboratorLimitConstraint) Execute(ctx context.Context, run *pipeline.Run) error {
	s, err := folderSettings(run)
	if err != nil {
		return err
	}
	if len(run.Folder.Collaborators)+1 > s.MaxCollaborators() {
		return fmt.Errorf("folder %s allows %d collaborators: %w", run.FolderID, s.MaxCollaborators(), ErrCollaboratorLimit)
	}
	return nil
}

// BookmarkLimitConstraint enforces the folder's configured maximum
// number of bookmarks on add. Bookmarks are counted in the store rather
// than preloaded; a folder can hold far more rows than it has
// collaborators.
type BookmarkLimitConstraint struct {
	Bookmarks store.BookmarkStore
}

func (c *BookmarkLimitConstraint) Requirements() pipeline.Requirement {
	return pipeline.Fields(store.FolderFieldSettings)
}

func (c *BookmarkLimitConstraint) Execute(ctx context.Context, run *pipeline.Run) error {
	s, err := folderSettings(run)
	if err != nil {
		return err
	}
	count, err := c.Bookmarks.CountBookmarks(ctx, run.FolderID)
	if err != nil {
		return fmt.Errorf("failed to count bookmarks: %w", err)
	}
	if count+1 > int64(s.MaxBookmarks()) {
		return fmt.Errorf("folder %s allows %d bookmarks: %w", run.FolderID, s.MaxBookmarks(), ErrBookmarkLimit)
	}
	return nil
}
