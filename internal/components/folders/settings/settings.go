// Package settings implements folder settings resolution: a raw
// user-supplied override tree validated against a schema, preserved
// verbatim for storage, and deep-merged over schema defaults into a
// resolved view backing typed accessors. Defaults are a read-time
// concept; they never leak into what is stored.
package settings

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Version is the schema version injected into serialized settings once
// the caller has supplied any key at all.
const Version = "1"

// Mode filters who triggers a notification in a category.
type Mode string

const (
	ModeEveryone    Mode = "everyone"
	ModeInvitedByMe Mode = "invited-by-me"
	ModeNone        Mode = "none"
)

// AcceptInviteConstraint relaxes a default accept-invite check.
type AcceptInviteConstraint string

const (
	SkipInviterMembershipCheck AcceptInviteConstraint = "skip-inviter-membership-check"
	SkipInviterSuspensionCheck AcceptInviteConstraint = "skip-inviter-suspension-check"
)

// Feature names a sub-feature the folder owner can disable.
type Feature string

const (
	FeatureUpdateIcon     Feature = "update-icon"
	FeatureUpdatePassword Feature = "update-password"
	FeatureInvites        Feature = "invites"
)

// Notification category keys, matching the schema.
const (
	CategoryNewCollaborator     = "new_collaborator"
	CategoryFolderUpdated       = "folder_updated"
	CategoryNewBookmarks        = "new_bookmarks"
	CategoryBookmarksRemoved    = "bookmarks_removed"
	CategoryCollaboratorExit    = "collaborator_exit"
	CategoryCollaboratorRemoved = "collaborator_removed"
	CategoryInviteDeclined      = "invite_declined"
)

// InvalidSettingError aggregates every validation violation found in one
// pass, so a caller can report all problems at once.
type InvalidSettingError struct {
	Messages []string
}

func (e *InvalidSettingError) Error() string {
	return fmt.Sprintf("invalid settings: %s", strings.Join(e.Messages, "; "))
}

// resolved is the fully-merged tree decoded once at construction. Every
// field is guaranteed present, so accessors never fail.
type resolved struct {
	Version                 string            `mapstructure:"version"`
	Notifications           notificationsTree `mapstructure:"notifications"`
	MaxCollaboratorsLimit   int               `mapstructure:"max_collaborators_limit"`
	MaxBookmarksLimit       int               `mapstructure:"max_bookmarks_limit"`
	AcceptInviteConstraints []string          `mapstructure:"accept_invite_constraints"`
	DisabledFeatures        []string          `mapstructure:"disabled_features"`
}

type notificationsTree struct {
	Enabled             bool             `mapstructure:"enabled"`
	NewCollaborator     categoryWithMode `mapstructure:"new_collaborator"`
	FolderUpdated       categoryToggle   `mapstructure:"folder_updated"`
	NewBookmarks        categoryToggle   `mapstructure:"new_bookmarks"`
	BookmarksRemoved    categoryToggle   `mapstructure:"bookmarks_removed"`
	CollaboratorExit    categoryWithMode `mapstructure:"collaborator_exit"`
	CollaboratorRemoved categoryToggle   `mapstructure:"collaborator_removed"`
	InviteDeclined      categoryToggle   `mapstructure:"invite_declined"`
}

type categoryToggle struct {
	Enabled bool `mapstructure:"enabled"`
}

type categoryWithMode struct {
	Enabled bool   `mapstructure:"enabled"`
	Mode    string `mapstructure:"mode"`
}

// Settings holds a validated settings tree. The raw user-supplied subset
// round-trips verbatim through ToRaw/ToJSON; queries always answer from
// the resolved (defaults-merged) view.
type Settings struct {
	raw      map[string]any
	resolved resolved
}

// New validates raw against the schema and builds the resolved view. A
// nil or empty raw is valid and resolves to pure defaults. Validation
// collects every violation before failing.
func New(raw map[string]any) (*Settings, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	if msgs := validate(raw); len(msgs) > 0 {
		return nil, &InvalidSettingError{Messages: msgs}
	}

	merged := deepMerge(Default(), raw)
	var res resolved
	if err := decode(merged, &res); err != nil {
		return nil, fmt.Errorf("failed to decode resolved settings: %w", err)
	}

	return &Settings{
		raw:      copyTree(raw),
		resolved: res,
	}, nil
}

// FromJSON parses stored settings JSON. Empty input resolves to pure
// defaults.
func FromJSON(data []byte) (*Settings, error) {
	if len(data) == 0 {
		return New(nil)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse settings JSON: %w", err)
	}
	return New(raw)
}

// Default returns a copy of the canonical default tree declared by the
// schema.
func Default() map[string]any {
	return buildDefaults(schema)
}

// decode maps the merged tree onto the resolved struct.
func decode(input map[string]any, target *resolved) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "mapstructure",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// ToRaw returns what the caller supplied, plus the injected schema
// version when any key is present. An empty input produces empty output,
// never materialized defaults.
func (s *Settings) ToRaw() map[string]any {
	out := copyTree(s.raw)
	if len(out) > 0 {
		if _, ok := out["version"]; !ok {
			out["version"] = Version
		}
	}
	return out
}

// ToJSON serializes ToRaw.
func (s *Settings) ToJSON() ([]byte, error) {
	return json.Marshal(s.ToRaw())
}

// Typed accessors. All read the resolved tree and cannot fail: after
// successful construction every path is present.

func (s *Settings) NotificationsEnabled() bool { return s.resolved.Notifications.Enabled }

func (s *Settings) NewCollaboratorEnabled() bool {
	return s.resolved.Notifications.NewCollaborator.Enabled
}

func (s *Settings) NewCollaboratorMode() Mode {
	return Mode(s.resolved.Notifications.NewCollaborator.Mode)
}

func (s *Settings) FolderUpdatedEnabled() bool { return s.resolved.Notifications.FolderUpdated.Enabled }

func (s *Settings) NewBookmarksEnabled() bool { return s.resolved.Notifications.NewBookmarks.Enabled }

func (s *Settings) BookmarksRemovedEnabled() bool {
	return s.resolved.Notifications.BookmarksRemoved.Enabled
}

func (s *Settings) CollaboratorExitEnabled() bool {
	return s.resolved.Notifications.CollaboratorExit.Enabled
}

func (s *Settings) CollaboratorExitMode() Mode {
	return Mode(s.resolved.Notifications.CollaboratorExit.Mode)
}

func (s *Settings) CollaboratorRemovedEnabled() bool {
	return s.resolved.Notifications.CollaboratorRemoved.Enabled
}

func (s *Settings) InviteDeclinedEnabled() bool {
	return s.resolved.Notifications.InviteDeclined.Enabled
}

func (s *Settings) MaxCollaborators() int { return s.resolved.MaxCollaboratorsLimit }

func (s *Settings) MaxBookmarks() int { return s.resolved.MaxBookmarksLimit }

// NotifyEnabled reports whether a category is effectively enabled,
// honoring the global toggle.
func (s *Settings) NotifyEnabled(category string) bool {
	if !s.resolved.Notifications.Enabled {
		return false
	}
	switch category {
	case CategoryNewCollaborator:
		return s.resolved.Notifications.NewCollaborator.Enabled
	case CategoryFolderUpdated:
		return s.resolved.Notifications.FolderUpdated.Enabled
	case CategoryNewBookmarks:
		return s.resolved.Notifications.NewBookmarks.Enabled
	case CategoryBookmarksRemoved:
		return s.resolved.Notifications.BookmarksRemoved.Enabled
	case CategoryCollaboratorExit:
		return s.resolved.Notifications.CollaboratorExit.Enabled
	case CategoryCollaboratorRemoved:
		return s.resolved.Notifications.CollaboratorRemoved.Enabled
	case CategoryInviteDeclined:
		return s.resolved.Notifications.InviteDeclined.Enabled
	}
	return false
}

// NotifyMode returns the "who triggered it" filter for a category.
// Categories without a mode leaf always answer ModeEveryone.
func (s *Settings) NotifyMode(category string) Mode {
	switch category {
	case CategoryNewCollaborator:
		return Mode(s.resolved.Notifications.NewCollaborator.Mode)
	case CategoryCollaboratorExit:
		return Mode(s.resolved.Notifications.CollaboratorExit.Mode)
	}
	return ModeEveryone
}

// HasAcceptInviteConstraint reports whether the given accept-invite flag
// is set.
func (s *Settings) HasAcceptInviteConstraint(c AcceptInviteConstraint) bool {
	return contains(s.resolved.AcceptInviteConstraints, string(c))
}

// FeatureDisabled reports whether the owner has disabled a sub-feature.
func (s *Settings) FeatureDisabled(f Feature) bool {
	return contains(s.resolved.DisabledFeatures, string(f))
}
