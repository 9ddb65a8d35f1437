package folders

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/foldershare/folderd/internal/components/folders/settings"
	"github.com/foldershare/folderd/internal/store"
	"github.com/foldershare/folderd/internal/store/memory"
)

var testTime = time.Unix(1_700_000_000, 0)

func newTestService(t *testing.T) (*Service, *memory.Driver) {
	t.Helper()
	st := memory.New()
	svc := NewService(st, nil, ServiceConfig{BcryptCost: bcrypt.MinCost})
	svc.now = func() time.Time { return testTime }
	return svc, st
}

func seedUser(t *testing.T, st *memory.Driver, id, password string) {
	t.Helper()
	var hash []byte
	if password != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("hash password: %v", err)
		}
	}
	err := st.CreateUser(context.Background(), &store.User{
		ID:           id,
		Email:        id + "@example.com",
		DisplayName:  "user " + id,
		PasswordHash: string(hash),
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

func seedFolder(t *testing.T, st *memory.Driver, f *store.Folder) {
	t.Helper()
	if f.Visibility == "" {
		f.Visibility = store.VisibilityCollaboratorsOnly
	}
	if err := st.CreateFolder(context.Background(), f); err != nil {
		t.Fatalf("seed folder %s: %v", f.ID, err)
	}
}

func seedCollaborator(t *testing.T, st *memory.Driver, c *store.Collaborator) {
	t.Helper()
	if err := st.CreateCollaborator(context.Background(), c); err != nil {
		t.Fatalf("seed collaborator %s: %v", c.UserID, err)
	}
}

func seedInvite(t *testing.T, st *memory.Driver, inv *store.Invite) {
	t.Helper()
	if inv.Status == "" {
		inv.Status = store.InviteStatusPending
	}
	if err := st.CreateInvite(context.Background(), inv); err != nil {
		t.Fatalf("seed invite %s: %v", inv.Token, err)
	}
}

func notificationsFor(t *testing.T, st *memory.Driver, userID string) []*store.Notification {
	t.Helper()
	out, err := st.ListNotifications(context.Background(), userID)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	return out
}

func activityFor(t *testing.T, st *memory.Driver, folderID string) []*store.ActivityRecord {
	t.Helper()
	out, err := st.ListActivity(context.Background(), folderID)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	return out
}

func strptr(s string) *string { return &s }

func visptr(v Visibility) *Visibility { return &v }

func TestUpdateFolder_NotifiesOwnerOnlyForRealChanges(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "owner", "")
	seedUser(t, st, "carol", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner", Name: "reading", Description: "shared links"})
	seedCollaborator(t, st, &store.Collaborator{ID: "c1", FolderID: "f1", UserID: "carol", Permissions: "updateFolder"})

	res, err := svc.UpdateFolder(ctx, "carol", "f1", &UpdateFolderRequest{
		Name:        strptr("reading list"),
		Description: strptr("shared links"), // unchanged
	})
	if err != nil {
		t.Fatalf("UpdateFolder() error = %v", err)
	}
	if res.NoOp {
		t.Fatal("UpdateFolder() reported no-op for a real change")
	}
	if len(res.Changed) != 1 || res.Changed[0] != FieldName {
		t.Fatalf("Changed = %v, want [%s]", res.Changed, FieldName)
	}

	got, err := st.GetFolder(ctx, "f1")
	if err != nil {
		t.Fatalf("GetFolder() error = %v", err)
	}
	if got.Name != "reading list" {
		t.Errorf("stored name = %q, want %q", got.Name, "reading list")
	}

	notes := notificationsFor(t, st, "owner")
	if len(notes) != 1 {
		t.Fatalf("owner notifications = %d, want 1", len(notes))
	}
	if notes[0].Category != "folder_updated" || notes[0].Field != FieldName {
		t.Errorf("notification = %s/%s, want folder_updated/%s", notes[0].Category, notes[0].Field, FieldName)
	}
	if notes[0].ActorID != "carol" {
		t.Errorf("notification actor = %q, want carol", notes[0].ActorID)
	}

	acts := activityFor(t, st, "f1")
	if len(acts) != 1 {
		t.Fatalf("activity records = %d, want 1", len(acts))
	}
	if acts[0].Action != "folder.updated" || acts[0].Field != FieldName {
		t.Errorf("activity = %s/%s, want folder.updated/%s", acts[0].Action, acts[0].Field, FieldName)
	}
}

func TestUpdateFolder_OwnerUpdateNotifiesOwner(t *testing.T) {
	svc, st := newTestService(t)
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner", Name: "reading", Description: "shared links"})

	res, err := svc.UpdateFolder(context.Background(), "owner", "f1", &UpdateFolderRequest{
		Name:        strptr("links"),
		Description: strptr("shared links"), // unchanged
	})
	if err != nil {
		t.Fatalf("UpdateFolder() error = %v", err)
	}
	if len(res.Changed) != 1 || res.Changed[0] != FieldName {
		t.Fatalf("Changed = %v, want [%s]", res.Changed, FieldName)
	}

	// folder_updated has no mode filter: the owner hears about their
	// own changes too, one notification per changed field.
	notes := notificationsFor(t, st, "owner")
	if len(notes) != 1 {
		t.Fatalf("owner notifications = %d, want exactly 1", len(notes))
	}
	if notes[0].Field != FieldName {
		t.Errorf("notification field = %q, want %q", notes[0].Field, FieldName)
	}
	if notes[0].ActorID != "owner" {
		t.Errorf("notification actor = %q, want owner", notes[0].ActorID)
	}
}

func TestUpdateFolder_NoOp(t *testing.T) {
	svc, st := newTestService(t)
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner", Name: "reading", UpdatedAt: 42})

	res, err := svc.UpdateFolder(context.Background(), "owner", "f1", &UpdateFolderRequest{Name: strptr("reading")})
	if err != nil {
		t.Fatalf("UpdateFolder() error = %v", err)
	}
	if !res.NoOp {
		t.Fatal("UpdateFolder() NoOp = false, want true")
	}

	got, _ := st.GetFolder(context.Background(), "f1")
	if got.UpdatedAt != 42 {
		t.Errorf("UpdatedAt = %d, want untouched 42", got.UpdatedAt)
	}
	if acts := activityFor(t, st, "f1"); len(acts) != 0 {
		t.Errorf("no-op produced %d activity records", len(acts))
	}
}

func TestUpdateFolder_PermissionDenied(t *testing.T) {
	svc, st := newTestService(t)
	seedUser(t, st, "owner", "")
	seedUser(t, st, "carol", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner", Name: "reading"})
	seedCollaborator(t, st, &store.Collaborator{ID: "c1", FolderID: "f1", UserID: "carol", Permissions: "addBookmarks"})

	_, err := svc.UpdateFolder(context.Background(), "carol", "f1", &UpdateFolderRequest{Name: strptr("mine now")})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("UpdateFolder() error = %v, want ErrPermissionDenied", err)
	}

	got, _ := st.GetFolder(context.Background(), "f1")
	if got.Name != "reading" {
		t.Errorf("denied update wrote name %q", got.Name)
	}
}

func TestUpdateFolder_NonMember(t *testing.T) {
	svc, st := newTestService(t)
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner", Name: "reading"})

	_, err := svc.UpdateFolder(context.Background(), "mallory", "f1", &UpdateFolderRequest{Name: strptr("x")})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("UpdateFolder() error = %v, want ErrPermissionDenied", err)
	}
}

func TestUpdateFolder_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.UpdateFolder(context.Background(), "owner", "missing", &UpdateFolderRequest{Name: strptr("x")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateFolder() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateFolder_CannotPrivatizeWithCollaborators(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner", Name: "reading"})
	seedCollaborator(t, st, &store.Collaborator{ID: "c1", FolderID: "f1", UserID: "carol"})

	_, err := svc.UpdateFolder(ctx, "owner", "f1", &UpdateFolderRequest{Visibility: visptr(VisibilityPrivate)})
	if !errors.Is(err, ErrCannotPrivatize) {
		t.Fatalf("UpdateFolder() error = %v, want ErrCannotPrivatize", err)
	}

	if err := st.DeleteCollaborator(ctx, "f1", "carol"); err != nil {
		t.Fatalf("DeleteCollaborator() error = %v", err)
	}
	res, err := svc.UpdateFolder(ctx, "owner", "f1", &UpdateFolderRequest{Visibility: visptr(VisibilityPrivate)})
	if err != nil {
		t.Fatalf("UpdateFolder() after removal error = %v", err)
	}
	if len(res.Changed) != 1 || res.Changed[0] != FieldVisibility {
		t.Fatalf("Changed = %v, want [%s]", res.Changed, FieldVisibility)
	}
}

func TestUpdateFolder_InvalidSettingsFailFast(t *testing.T) {
	svc, st := newTestService(t)
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner", Name: "reading"})

	_, err := svc.UpdateFolder(context.Background(), "owner", "f1", &UpdateFolderRequest{
		Settings: map[string]any{
			"max_collaborators_limit": 0,
			"max_bookmarks_limit":     "many",
			"notifications": map[string]any{
				"new_collaborator": map[string]any{"mode": "sometimes"},
			},
		},
	})
	var invalid *settings.InvalidSettingError
	if !errors.As(err, &invalid) {
		t.Fatalf("UpdateFolder() error = %v, want InvalidSettingError", err)
	}
	if len(invalid.Messages) != 3 {
		t.Errorf("violations = %d (%v), want all 3 reported", len(invalid.Messages), invalid.Messages)
	}
}

func TestUpdateFolder_RemovePasswordToPublic(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("folder-pw"), bcrypt.MinCost)
	seedUser(t, st, "owner", "account-pw")
	seedFolder(t, st, &store.Folder{
		ID: "f1", OwnerID: "owner", Name: "reading",
		Visibility: store.VisibilityPasswordProtected, PasswordHash: string(hash),
	})

	open := func(accountPassword string) error {
		_, err := svc.UpdateFolder(ctx, "owner", "f1", &UpdateFolderRequest{
			Visibility:      visptr(VisibilityPublic),
			RemovePassword:  true,
			AccountPassword: accountPassword,
		})
		return err
	}

	if err := open(""); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("open without account password: error = %v, want ErrInvalidPassword", err)
	}
	if err := open("wrong"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("open with wrong password: error = %v, want ErrInvalidPassword", err)
	}
	if err := open("account-pw"); err != nil {
		t.Fatalf("open with correct password: error = %v", err)
	}

	got, _ := st.GetFolder(ctx, "f1")
	if got.Visibility != store.VisibilityPublic {
		t.Errorf("visibility = %q, want public", got.Visibility)
	}
	if got.PasswordHash != "" {
		t.Error("password hash not cleared")
	}
}

func TestUpdateFolder_LeavingProtectedClearsHash(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("folder-pw"), bcrypt.MinCost)
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{
		ID: "f1", OwnerID: "owner", Name: "reading",
		Visibility: store.VisibilityPasswordProtected, PasswordHash: string(hash),
	})

	res, err := svc.UpdateFolder(ctx, "owner", "f1", &UpdateFolderRequest{
		Visibility: visptr(VisibilityCollaboratorsOnly),
	})
	if err != nil {
		t.Fatalf("UpdateFolder() error = %v", err)
	}
	want := []string{FieldVisibility, FieldPassword}
	if len(res.Changed) != len(want) || res.Changed[0] != want[0] || res.Changed[1] != want[1] {
		t.Errorf("Changed = %v, want %v", res.Changed, want)
	}

	got, _ := st.GetFolder(ctx, "f1")
	if got.PasswordHash != "" {
		t.Error("password hash not cleared when leaving password-protected")
	}
}

func TestUpdateFolder_PublicTransitionNeedsAccountPassword(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("folder-pw"), bcrypt.MinCost)
	seedUser(t, st, "owner", "account-pw")
	seedFolder(t, st, &store.Folder{
		ID: "f1", OwnerID: "owner", Name: "reading",
		Visibility: store.VisibilityPasswordProtected, PasswordHash: string(hash),
	})

	// No explicit removal, but going public still drops the password.
	_, err := svc.UpdateFolder(ctx, "owner", "f1", &UpdateFolderRequest{Visibility: visptr(VisibilityPublic)})
	if !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("UpdateFolder() error = %v, want ErrInvalidPassword", err)
	}

	res, err := svc.UpdateFolder(ctx, "owner", "f1", &UpdateFolderRequest{
		Visibility:      visptr(VisibilityPublic),
		AccountPassword: "account-pw",
	})
	if err != nil {
		t.Fatalf("UpdateFolder() with account password error = %v", err)
	}
	if len(res.Changed) != 2 {
		t.Errorf("Changed = %v, want visibility and password", res.Changed)
	}
	got, _ := st.GetFolder(ctx, "f1")
	if got.PasswordHash != "" {
		t.Error("password hash not cleared")
	}
}

func TestUpdateFolder_PasswordNeedsProtectedVisibility(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{
		ID: "f1", OwnerID: "owner", Name: "reading", Visibility: store.VisibilityPublic,
	})

	_, err := svc.UpdateFolder(ctx, "owner", "f1", &UpdateFolderRequest{Password: strptr("secret")})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("UpdateFolder() error = %v, want ErrInvalidRequest", err)
	}
	got, _ := st.GetFolder(ctx, "f1")
	if got.PasswordHash != "" {
		t.Error("public folder carries a password hash")
	}

	// Becoming protected in the same request is allowed.
	res, err := svc.UpdateFolder(ctx, "owner", "f1", &UpdateFolderRequest{
		Visibility: visptr(VisibilityPasswordProtected),
		Password:   strptr("secret"),
	})
	if err != nil {
		t.Fatalf("UpdateFolder() becoming protected: error = %v", err)
	}
	if len(res.Changed) != 2 {
		t.Errorf("Changed = %v, want visibility and password", res.Changed)
	}
}

func TestUpdateFolder_FeatureDisabled(t *testing.T) {
	svc, st := newTestService(t)
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{
		ID: "f1", OwnerID: "owner", Name: "reading",
		Settings: `{"disabled_features":["update-icon"]}`,
	})

	_, err := svc.UpdateFolder(context.Background(), "owner", "f1", &UpdateFolderRequest{IconID: strptr("icon-7")})
	if !errors.Is(err, ErrFeatureDisabled) {
		t.Fatalf("UpdateFolder() error = %v, want ErrFeatureDisabled", err)
	}
	if errors.Is(err, ErrPermissionDenied) {
		t.Error("feature-disabled must stay distinct from permission-denied")
	}
}

func TestUpdateFolder_SuspendedCollaborator(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner", Name: "reading"})

	tests := []struct {
		name           string
		suspendedUntil int64
		wantErr        bool
	}{
		{"indefinite", 0, true},
		{"active until future", testTime.Add(time.Hour).Unix(), true},
		{"expired", testTime.Add(-time.Hour).Unix(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collabID := "c-" + tt.name
			userID := "u-" + tt.name
			seedCollaborator(t, st, &store.Collaborator{
				ID: collabID, FolderID: "f1", UserID: userID,
				Permissions: "updateFolder", Suspended: true, SuspendedUntil: tt.suspendedUntil,
			})
			defer st.DeleteCollaborator(ctx, "f1", userID)

			_, err := svc.UpdateFolder(ctx, userID, "f1", &UpdateFolderRequest{Name: strptr("renamed by " + userID)})
			if tt.wantErr {
				if !errors.Is(err, ErrPermissionDenied) {
					t.Fatalf("error = %v, want ErrPermissionDenied", err)
				}
				var suspended *SuspendedError
				if !errors.As(err, &suspended) {
					t.Fatalf("error = %v, want *SuspendedError", err)
				}
			} else if err != nil {
				t.Fatalf("expired suspension still blocked: %v", err)
			}
		})
	}
}

func TestUpdateFolder_SettingsChangePersistedOnce(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner", Name: "reading"})

	raw := map[string]any{"max_collaborators_limit": 5}
	res, err := svc.UpdateFolder(ctx, "owner", "f1", &UpdateFolderRequest{Settings: raw})
	if err != nil {
		t.Fatalf("UpdateFolder() error = %v", err)
	}
	if len(res.Changed) != 1 || res.Changed[0] != FieldSettings {
		t.Fatalf("Changed = %v, want [%s]", res.Changed, FieldSettings)
	}

	got, _ := st.GetFolder(ctx, "f1")
	parsed, err := settings.FromJSON([]byte(got.Settings))
	if err != nil {
		t.Fatalf("stored settings unreadable: %v", err)
	}
	if parsed.MaxCollaborators() != 5 {
		t.Errorf("stored max collaborators = %d, want 5", parsed.MaxCollaborators())
	}

	// Submitting the identical tree again is a no-op.
	res, err = svc.UpdateFolder(ctx, "owner", "f1", &UpdateFolderRequest{Settings: raw})
	if err != nil {
		t.Fatalf("second UpdateFolder() error = %v", err)
	}
	if !res.NoOp {
		t.Error("identical settings reported as a change")
	}
}

func TestAcceptInvite(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "owner", "")
	seedUser(t, st, "dave", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner", Name: "reading"})
	seedInvite(t, st, &store.Invite{
		Token: "tok-1", FolderID: "f1", InviterID: "owner", InviteeID: "dave",
		Permissions: "addBookmarks,removeBookmarks", Roles: "contributor",
		IssuedAt: testTime.Add(-time.Hour).Unix(),
	})

	res, err := svc.AcceptInvite(ctx, "dave", "tok-1")
	if err != nil {
		t.Fatalf("AcceptInvite() error = %v", err)
	}
	if res.FolderID != "f1" {
		t.Errorf("FolderID = %q, want f1", res.FolderID)
	}

	collab, err := st.GetCollaborator(ctx, "f1", "dave")
	if err != nil {
		t.Fatalf("collaborator row missing: %v", err)
	}
	if collab.Permissions != "addBookmarks,removeBookmarks" {
		t.Errorf("permissions = %q, want addBookmarks,removeBookmarks", collab.Permissions)
	}
	if collab.Roles != "contributor" {
		t.Errorf("roles = %q, want contributor", collab.Roles)
	}
	if collab.InvitedBy != "owner" {
		t.Errorf("invited_by = %q, want owner", collab.InvitedBy)
	}

	inv, _ := st.GetInvite(ctx, "tok-1")
	if inv.Status != store.InviteStatusAccepted {
		t.Errorf("invite status = %q, want accepted", inv.Status)
	}

	// Consuming the same token twice must fail the second time.
	if _, err := svc.AcceptInvite(ctx, "dave", "tok-1"); !errors.Is(err, ErrAlreadyAccepted) {
		t.Fatalf("second accept: error = %v, want ErrAlreadyAccepted", err)
	}
	collabs, _ := st.ListCollaborators(ctx, "f1")
	if len(collabs) != 1 {
		t.Errorf("collaborator rows = %d after double accept, want 1", len(collabs))
	}
}

func TestAcceptInvite_ScopedToInvitee(t *testing.T) {
	svc, st := newTestService(t)
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner"})
	seedInvite(t, st, &store.Invite{Token: "tok-1", FolderID: "f1", InviterID: "owner", InviteeID: "dave"})

	_, err := svc.AcceptInvite(context.Background(), "mallory", "tok-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign token accept: error = %v, want ErrNotFound", err)
	}
}

func TestAcceptInvite_Expired(t *testing.T) {
	svc, st := newTestService(t)
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner"})
	seedInvite(t, st, &store.Invite{
		Token: "tok-1", FolderID: "f1", InviterID: "owner", InviteeID: "dave",
		ExpiresAt: testTime.Add(-time.Minute).Unix(),
	})

	_, err := svc.AcceptInvite(context.Background(), "dave", "tok-1")
	if !errors.Is(err, ErrInviteExpired) {
		t.Fatalf("AcceptInvite() error = %v, want ErrInviteExpired", err)
	}
}

func TestAcceptInvite_CollaboratorLimit(t *testing.T) {
	svc, st := newTestService(t)
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{
		ID: "f1", OwnerID: "owner",
		Settings: `{"max_collaborators_limit":1}`,
	})
	seedCollaborator(t, st, &store.Collaborator{ID: "c1", FolderID: "f1", UserID: "carol"})
	seedInvite(t, st, &store.Invite{Token: "tok-1", FolderID: "f1", InviterID: "owner", InviteeID: "dave"})

	_, err := svc.AcceptInvite(context.Background(), "dave", "tok-1")
	if !errors.Is(err, ErrCollaboratorLimit) {
		t.Fatalf("AcceptInvite() error = %v, want ErrCollaboratorLimit", err)
	}
}

func TestAcceptInvite_InviterMustStillBeMember(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner"})
	// carol issued the invite but has since left the folder.
	seedInvite(t, st, &store.Invite{Token: "tok-1", FolderID: "f1", InviterID: "carol", InviteeID: "dave"})

	_, err := svc.AcceptInvite(ctx, "dave", "tok-1")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("AcceptInvite() error = %v, want ErrPermissionDenied", err)
	}

	// The folder owner can waive the inviter membership check.
	seedFolder(t, st, &store.Folder{
		ID: "f2", OwnerID: "owner",
		Settings: `{"accept_invite_constraints":["skip-inviter-membership-check"]}`,
	})
	seedInvite(t, st, &store.Invite{Token: "tok-2", FolderID: "f2", InviterID: "carol", InviteeID: "dave"})
	if _, err := svc.AcceptInvite(ctx, "dave", "tok-2"); err != nil {
		t.Fatalf("AcceptInvite() with waiver: error = %v", err)
	}

	// The departed inviter still hears about the acceptance.
	if notes := notificationsFor(t, st, "carol"); len(notes) != 1 {
		t.Errorf("departed inviter notifications = %d, want 1", len(notes))
	}
}

func TestAcceptInvite_NotificationModes(t *testing.T) {
	tests := []struct {
		name     string
		settings string
		want     map[string]int // recipient -> notification count
	}{
		{
			// The notification is addressed to the inviter, never
			// broadcast to the owner or prior collaborators.
			name:     "everyone",
			settings: "",
			want:     map[string]int{"owner": 0, "carol": 0, "inviter": 1, "dave": 0},
		},
		{
			name:     "invited-by-me",
			settings: `{"notifications":{"new_collaborator":{"mode":"invited-by-me"}}}`,
			want:     map[string]int{"owner": 0, "carol": 0, "inviter": 1, "dave": 0},
		},
		{
			name:     "none",
			settings: `{"notifications":{"new_collaborator":{"mode":"none"}}}`,
			want:     map[string]int{"owner": 0, "carol": 0, "inviter": 0, "dave": 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := newTestService(t)
			ctx := context.Background()
			seedUser(t, st, "owner", "")
			seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner", Settings: tt.settings})
			seedCollaborator(t, st, &store.Collaborator{ID: "c1", FolderID: "f1", UserID: "carol"})
			seedCollaborator(t, st, &store.Collaborator{ID: "c2", FolderID: "f1", UserID: "inviter", Permissions: "inviteUser"})
			seedInvite(t, st, &store.Invite{Token: "tok-1", FolderID: "f1", InviterID: "inviter", InviteeID: "dave"})

			if _, err := svc.AcceptInvite(ctx, "dave", "tok-1"); err != nil {
				t.Fatalf("AcceptInvite() error = %v", err)
			}
			for userID, want := range tt.want {
				if got := len(notificationsFor(t, st, userID)); got != want {
					t.Errorf("notifications for %s = %d, want %d", userID, got, want)
				}
			}
		})
	}
}

func TestDeclineInvite(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner"})
	seedInvite(t, st, &store.Invite{Token: "tok-1", FolderID: "f1", InviterID: "owner", InviteeID: "dave"})

	if err := svc.DeclineInvite(ctx, "dave", "tok-1"); err != nil {
		t.Fatalf("DeclineInvite() error = %v", err)
	}
	inv, _ := st.GetInvite(ctx, "tok-1")
	if inv.Status != store.InviteStatusDeclined {
		t.Errorf("invite status = %q, want declined", inv.Status)
	}

	notes := notificationsFor(t, st, "owner")
	if len(notes) != 1 || notes[0].Category != "invite_declined" {
		t.Fatalf("inviter notifications = %v, want one invite_declined", notes)
	}
}

func TestCreateInvite(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "owner", "")
	seedUser(t, st, "carol", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner"})
	seedCollaborator(t, st, &store.Collaborator{ID: "c1", FolderID: "f1", UserID: "carol", Permissions: "addBookmarks"})

	// A collaborator without invite-user cannot issue invites.
	_, err := svc.CreateInvite(ctx, "carol", "f1", &CreateInviteRequest{
		InviteeID: "dave", Permissions: []string{"addBookmarks"},
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("CreateInvite() error = %v, want ErrPermissionDenied", err)
	}

	inv, err := svc.CreateInvite(ctx, "owner", "f1", &CreateInviteRequest{
		InviteeID: "dave", Permissions: []string{"addBookmarks"}, Roles: []string{"contributor"},
	})
	if err != nil {
		t.Fatalf("CreateInvite() error = %v", err)
	}
	rec, err := st.GetInvite(ctx, inv.Token)
	if err != nil {
		t.Fatalf("stored invite missing: %v", err)
	}
	if rec.Status != store.InviteStatusPending {
		t.Errorf("status = %q, want pending", rec.Status)
	}
	if rec.Permissions != "addBookmarks" {
		t.Errorf("permissions = %q, want addBookmarks", rec.Permissions)
	}
}

func TestCreateInvite_FeatureDisabled(t *testing.T) {
	svc, st := newTestService(t)
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{
		ID: "f1", OwnerID: "owner",
		Settings: `{"disabled_features":["invites"]}`,
	})

	_, err := svc.CreateInvite(context.Background(), "owner", "f1", &CreateInviteRequest{InviteeID: "dave"})
	if !errors.Is(err, ErrFeatureDisabled) {
		t.Fatalf("CreateInvite() error = %v, want ErrFeatureDisabled", err)
	}
}

func TestCreateInvite_BadRole(t *testing.T) {
	svc, st := newTestService(t)
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner"})

	_, err := svc.CreateInvite(context.Background(), "owner", "f1", &CreateInviteRequest{
		InviteeID: "dave", Roles: []string{"emperor"},
	})
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("CreateInvite() error = %v, want ErrInvalidRole", err)
	}
}

func TestCreateFolder(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "owner", "")

	folder, err := svc.CreateFolder(ctx, "owner", &CreateFolderRequest{
		Name:       "reading",
		Visibility: VisibilityCollaboratorsOnly,
	})
	if err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	if folder.OwnerID != "owner" {
		t.Errorf("owner = %q, want owner", folder.OwnerID)
	}

	acts := activityFor(t, st, folder.ID)
	if len(acts) != 1 || acts[0].Action != "folder.created" {
		t.Fatalf("activity = %v, want one folder.created", acts)
	}

	if _, err := svc.CreateFolder(ctx, "owner", &CreateFolderRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("nameless folder: error = %v, want ErrInvalidRequest", err)
	}
	_, err = svc.CreateFolder(ctx, "owner", &CreateFolderRequest{
		Name: "locked", Visibility: VisibilityPasswordProtected,
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("password-protected without password: error = %v, want ErrInvalidRequest", err)
	}
	_, err = svc.CreateFolder(ctx, "owner", &CreateFolderRequest{
		Name: "open", Visibility: VisibilityPublic, Password: "secret",
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("password on public folder: error = %v, want ErrInvalidRequest", err)
	}
}

func TestAddBookmark(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "owner", "")
	seedUser(t, st, "carol", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner", Name: "reading"})
	seedCollaborator(t, st, &store.Collaborator{ID: "c1", FolderID: "f1", UserID: "carol", Permissions: "addBookmarks"})

	bm, err := svc.AddBookmark(ctx, "carol", "f1", &AddBookmarkRequest{
		URL: "https://example.com/article", Title: "An article",
	})
	if err != nil {
		t.Fatalf("AddBookmark() error = %v", err)
	}
	if bm.AddedBy != "carol" {
		t.Errorf("AddedBy = %q, want carol", bm.AddedBy)
	}
	if count, _ := st.CountBookmarks(ctx, "f1"); count != 1 {
		t.Errorf("CountBookmarks() = %d, want 1", count)
	}

	notes := notificationsFor(t, st, "owner")
	if len(notes) != 1 || notes[0].Category != "new_bookmarks" {
		t.Fatalf("owner notifications = %v, want one new_bookmarks", notes)
	}

	acts := activityFor(t, st, "f1")
	if len(acts) != 1 || acts[0].Action != "bookmark.added" {
		t.Fatalf("activity = %v, want one bookmark.added", acts)
	}

	if _, err := svc.AddBookmark(ctx, "carol", "f1", &AddBookmarkRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("missing url: error = %v, want ErrInvalidRequest", err)
	}
}

func TestAddBookmark_PermissionDenied(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "owner", "")
	seedUser(t, st, "carol", "")
	seedFolder(t, st, &store.Folder{ID: "f1", OwnerID: "owner", Name: "reading"})
	seedCollaborator(t, st, &store.Collaborator{ID: "c1", FolderID: "f1", UserID: "carol", Permissions: "removeBookmarks"})

	req := &AddBookmarkRequest{URL: "https://example.com"}
	if _, err := svc.AddBookmark(ctx, "carol", "f1", req); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("collaborator without add-bookmarks: error = %v, want ErrPermissionDenied", err)
	}
	if _, err := svc.AddBookmark(ctx, "mallory", "f1", req); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("non-member: error = %v, want ErrPermissionDenied", err)
	}
	if count, _ := st.CountBookmarks(ctx, "f1"); count != 0 {
		t.Errorf("CountBookmarks() = %d, want 0 after denied adds", count)
	}
}

func TestAddBookmark_LimitEnforced(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{
		ID: "f1", OwnerID: "owner", Name: "reading",
		Settings: `{"max_bookmarks_limit":1}`,
	})

	if _, err := svc.AddBookmark(ctx, "owner", "f1", &AddBookmarkRequest{URL: "https://example.com/1"}); err != nil {
		t.Fatalf("AddBookmark() under limit: error = %v", err)
	}
	_, err := svc.AddBookmark(ctx, "owner", "f1", &AddBookmarkRequest{URL: "https://example.com/2"})
	if !errors.Is(err, ErrBookmarkLimit) {
		t.Fatalf("AddBookmark() over limit: error = %v, want ErrBookmarkLimit", err)
	}
	if count, _ := st.CountBookmarks(ctx, "f1"); count != 1 {
		t.Errorf("CountBookmarks() = %d, want 1 after rejected add", count)
	}
}

func TestGetFolder_Visibility(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "owner", "")
	seedFolder(t, st, &store.Folder{ID: "pub", OwnerID: "owner", Visibility: store.VisibilityPublic})
	seedFolder(t, st, &store.Folder{ID: "priv", OwnerID: "owner", Visibility: store.VisibilityCollaboratorsOnly})
	seedCollaborator(t, st, &store.Collaborator{ID: "c1", FolderID: "priv", UserID: "carol"})

	if _, err := svc.GetFolder(ctx, "anyone", "pub"); err != nil {
		t.Errorf("public folder: error = %v", err)
	}
	if _, err := svc.GetFolder(ctx, "carol", "priv"); err != nil {
		t.Errorf("collaborator on restricted folder: error = %v", err)
	}
	if _, err := svc.GetFolder(ctx, "mallory", "priv"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("stranger on restricted folder: error = %v, want ErrPermissionDenied", err)
	}
	if _, err := svc.GetFolder(ctx, "anyone", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing folder: error = %v, want ErrNotFound", err)
	}
}
