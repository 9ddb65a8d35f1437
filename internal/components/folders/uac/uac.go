// Package uac implements the folder permission set: an immutable
// capability bitset over a closed vocabulary, with translation between
// the internal tokens and the external wire vocabulary.
package uac

import (
	"errors"
	"fmt"
)

// Capability is an internal permission token.
type Capability string

const (
	CapViewBookmarks   Capability = "view-bookmarks"
	CapAddBookmarks    Capability = "add-bookmarks"
	CapRemoveBookmarks Capability = "remove-bookmarks"
	CapInviteUser      Capability = "invite-user"
	CapUpdateFolder    Capability = "update-folder"
)

// External wire-level tokens. readOnly grants nothing beyond the implicit
// view access; the wildcard expands to the full vocabulary and is mutually
// exclusive with any other token in the same request.
const (
	ExternalAddBookmarks    = "addBookmarks"
	ExternalRemoveBookmarks = "removeBookmarks"
	ExternalInviteUser      = "inviteUser"
	ExternalUpdateFolder    = "updateFolder"
	ExternalReadOnly        = "readOnly"
	ExternalWildcard        = "*"
)

var (
	ErrInvalidCapability   = errors.New("invalid capability")
	ErrDuplicateCapability = errors.New("duplicate capability")
)

// vocabulary lists all capabilities in stable order.
var vocabulary = []Capability{
	CapViewBookmarks,
	CapAddBookmarks,
	CapRemoveBookmarks,
	CapInviteUser,
	CapUpdateFolder,
}

var capBits = map[Capability]uint8{
	CapViewBookmarks:   1 << 0,
	CapAddBookmarks:    1 << 1,
	CapRemoveBookmarks: 1 << 2,
	CapInviteUser:      1 << 3,
	CapUpdateFolder:    1 << 4,
}

var externalToInternal = map[string]Capability{
	ExternalAddBookmarks:    CapAddBookmarks,
	ExternalRemoveBookmarks: CapRemoveBookmarks,
	ExternalInviteUser:      CapInviteUser,
	ExternalUpdateFolder:    CapUpdateFolder,
}

var internalToExternal = map[Capability]string{
	CapAddBookmarks:    ExternalAddBookmarks,
	CapRemoveBookmarks: ExternalRemoveBookmarks,
	CapInviteUser:      ExternalInviteUser,
	CapUpdateFolder:    ExternalUpdateFolder,
}

// PermissionSet is an immutable, deduplicated capability set.
// The zero value is the empty set.
type PermissionSet struct {
	bits uint8
}

// New builds a PermissionSet from internal tokens. It fails with
// ErrInvalidCapability for tokens outside the vocabulary and with
// ErrDuplicateCapability for repeated tokens, regardless of input order.
func New(tokens []string) (PermissionSet, error) {
	var bits uint8
	for _, t := range tokens {
		b, ok := capBits[Capability(t)]
		if !ok {
			return PermissionSet{}, fmt.Errorf("%w: %q", ErrInvalidCapability, t)
		}
		if bits&b != 0 {
			return PermissionSet{}, fmt.Errorf("%w: %q", ErrDuplicateCapability, t)
		}
		bits |= b
	}
	return PermissionSet{bits: bits}, nil
}

// Of builds a PermissionSet from known capabilities, deduplicating
// silently. For trusted internal construction only.
func Of(caps ...Capability) PermissionSet {
	var bits uint8
	for _, c := range caps {
		bits |= capBits[c]
	}
	return PermissionSet{bits: bits}
}

// Full returns the set containing the entire vocabulary.
func Full() PermissionSet {
	return Of(vocabulary...)
}

// Has reports whether the set contains the given capability.
func (s PermissionSet) Has(c Capability) bool {
	return s.bits&capBits[c] != 0
}

// IsEmpty reports whether the set contains no capabilities.
func (s PermissionSet) IsEmpty() bool {
	return s.bits == 0
}

// ContainsAll reports whether every element of other is in s.
// ContainsAll against an empty other returns false: an empty requirement
// is never "fully granted". This asymmetry is deliberate and guards
// against callers accidentally passing no-op constraints.
func (s PermissionSet) ContainsAll(other PermissionSet) bool {
	if other.bits == 0 {
		return false
	}
	return s.bits&other.bits == other.bits
}

// ContainsAny reports whether at least one element of other is in s.
// ContainsAny against an empty other returns false.
func (s PermissionSet) ContainsAny(other PermissionSet) bool {
	return s.bits&other.bits != 0
}

// Union returns the set containing every capability of s and other.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	return PermissionSet{bits: s.bits | other.bits}
}

// Capabilities returns the contained capabilities in vocabulary order.
func (s PermissionSet) Capabilities() []Capability {
	out := make([]Capability, 0, len(vocabulary))
	for _, c := range vocabulary {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Tokens returns the internal string tokens in vocabulary order.
func (s PermissionSet) Tokens() []string {
	caps := s.Capabilities()
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}

// FromExternal builds a PermissionSet from external wire tokens.
// The wildcard expands to the full vocabulary and must appear alone;
// readOnly contributes nothing (view access is implicit, not itself a
// stored capability). Duplicate external tokens fail like internal ones.
func FromExternal(tokens []string) (PermissionSet, error) {
	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if seen[t] {
			return PermissionSet{}, fmt.Errorf("%w: %q", ErrDuplicateCapability, t)
		}
		seen[t] = true
	}

	if seen[ExternalWildcard] {
		if len(tokens) > 1 {
			return PermissionSet{}, fmt.Errorf("%w: %q is mutually exclusive with other values", ErrInvalidCapability, ExternalWildcard)
		}
		return Full(), nil
	}

	var bits uint8
	for _, t := range tokens {
		if t == ExternalReadOnly {
			continue
		}
		c, ok := externalToInternal[t]
		if !ok {
			return PermissionSet{}, fmt.Errorf("%w: %q", ErrInvalidCapability, t)
		}
		bits |= capBits[c]
	}
	return PermissionSet{bits: bits}, nil
}

// ToExternal serializes the set to external wire tokens in vocabulary
// order. The empty set serializes as readOnly; view-bookmarks is dropped
// (implicit on the wire).
func (s PermissionSet) ToExternal() []string {
	var out []string
	for _, c := range vocabulary {
		if !s.Has(c) {
			continue
		}
		if ext, ok := internalToExternal[c]; ok {
			out = append(out, ext)
		}
	}
	if len(out) == 0 {
		return []string{ExternalReadOnly}
	}
	return out
}
