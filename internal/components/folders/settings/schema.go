package settings

import (
	"fmt"
	"sort"
)

// leafType enumerates the value types settings leaves can hold.
type leafType int

const (
	leafBool leafType = iota
	leafInt
	leafEnum
	leafFlagList
)

// leafSpec declares one settings leaf: its type, its schema default, and
// its validation constraints. Every leaf is independently optional.
type leafSpec struct {
	typ   leafType
	def   any
	enum  []string // allowed values for leafEnum
	vocab []string // allowed elements for leafFlagList
	min   int      // bounds for leafInt
	max   int
}

// node is one level of the settings tree: either a leaf or a branch.
type node struct {
	leaf     *leafSpec
	children map[string]node
}

func boolLeaf(def bool) node {
	return node{leaf: &leafSpec{typ: leafBool, def: def}}
}

func intLeaf(def, min, max int) node {
	return node{leaf: &leafSpec{typ: leafInt, def: def, min: min, max: max}}
}

func enumLeaf(def string, values ...string) node {
	return node{leaf: &leafSpec{typ: leafEnum, def: def, enum: values}}
}

func flagListLeaf(vocab ...string) node {
	return node{leaf: &leafSpec{typ: leafFlagList, def: []string{}, vocab: vocab}}
}

func categorySchema() map[string]node {
	return map[string]node{
		"enabled": boolLeaf(true),
	}
}

func categoryWithModeSchema() map[string]node {
	m := categorySchema()
	m["mode"] = enumLeaf(string(ModeEveryone), string(ModeEveryone), string(ModeInvitedByMe), string(ModeNone))
	return m
}

// schema is the full settings tree. Defaults declared here back
// Default() and the resolved view; they are never written to storage.
var schema = node{children: map[string]node{
	"version": enumLeaf(Version, Version),
	"notifications": {children: map[string]node{
		"enabled":              boolLeaf(true),
		"new_collaborator":     {children: categoryWithModeSchema()},
		"folder_updated":       {children: categorySchema()},
		"new_bookmarks":        {children: categorySchema()},
		"bookmarks_removed":    {children: categorySchema()},
		"collaborator_exit":    {children: categoryWithModeSchema()},
		"collaborator_removed": {children: categorySchema()},
		"invite_declined":      {children: categorySchema()},
	}},
	"max_collaborators_limit": intLeaf(50, 1, 500),
	"max_bookmarks_limit":     intLeaf(1000, 1, 100000),
	"accept_invite_constraints": flagListLeaf(
		string(SkipInviterMembershipCheck),
		string(SkipInviterSuspensionCheck),
	),
	"disabled_features": flagListLeaf(
		string(FeatureUpdateIcon),
		string(FeatureUpdatePassword),
		string(FeatureInvites),
	),
}}

// modeDependentPaths lists the category branches whose mode leaf depends
// on the sibling enabled leaf: a non-default mode while enabled is false
// is a contradiction.
var modeDependentPaths = [][]string{
	{"notifications", "new_collaborator"},
	{"notifications", "collaborator_exit"},
}

// validate walks raw against the schema and returns every violation
// found, with dotted paths, sorted. It never stops at the first problem.
func validate(raw map[string]any) []string {
	var msgs []string
	validateNode(raw, schema, "", &msgs)
	msgs = append(msgs, validateDependencies(raw)...)
	sort.Strings(msgs)
	return msgs
}

func validateNode(value map[string]any, n node, path string, msgs *[]string) {
	for key, v := range value {
		child, ok := n.children[key]
		p := joinPath(path, key)
		if !ok {
			*msgs = append(*msgs, fmt.Sprintf("unknown setting %q", p))
			continue
		}
		if child.leaf != nil {
			validateLeaf(v, child.leaf, p, msgs)
			continue
		}
		sub, ok := v.(map[string]any)
		if !ok {
			*msgs = append(*msgs, fmt.Sprintf("setting %q must be an object", p))
			continue
		}
		validateNode(sub, child, p, msgs)
	}
}

func validateLeaf(v any, spec *leafSpec, path string, msgs *[]string) {
	switch spec.typ {
	case leafBool:
		if _, ok := v.(bool); !ok {
			*msgs = append(*msgs, fmt.Sprintf("setting %q must be a boolean", path))
		}
	case leafInt:
		n, ok := asInt(v)
		if !ok {
			*msgs = append(*msgs, fmt.Sprintf("setting %q must be an integer", path))
			return
		}
		if n < spec.min || n > spec.max {
			*msgs = append(*msgs, fmt.Sprintf("setting %q must be between %d and %d", path, spec.min, spec.max))
		}
	case leafEnum:
		s, ok := v.(string)
		if !ok {
			*msgs = append(*msgs, fmt.Sprintf("setting %q must be a string", path))
			return
		}
		if !contains(spec.enum, s) {
			*msgs = append(*msgs, fmt.Sprintf("setting %q has unknown value %q", path, s))
		}
	case leafFlagList:
		items, ok := asStringList(v)
		if !ok {
			*msgs = append(*msgs, fmt.Sprintf("setting %q must be a list of strings", path))
			return
		}
		seen := map[string]bool{}
		for _, item := range items {
			if !contains(spec.vocab, item) {
				*msgs = append(*msgs, fmt.Sprintf("setting %q has unknown flag %q", path, item))
			}
			if seen[item] {
				*msgs = append(*msgs, fmt.Sprintf("setting %q has duplicate flag %q", path, item))
			}
			seen[item] = true
		}
	}
}

// validateDependencies enforces the cross-field rule: a dependent mode
// may not narrow the audience while its sibling enabled leaf is
// effectively false (defaults fill in for absent leaves). "none" with a
// disabled category is redundant, not contradictory, so only
// invited-by-me trips the rule.
func validateDependencies(raw map[string]any) []string {
	var msgs []string
	for _, branch := range modeDependentPaths {
		modePath := append(append([]string{}, branch...), "mode")
		enabledPath := append(append([]string{}, branch...), "enabled")

		mode, modeSet := lookup(raw, modePath)
		if !modeSet {
			continue
		}
		modeStr, ok := mode.(string)
		if !ok || modeStr != string(ModeInvitedByMe) {
			continue
		}

		enabled := true
		if v, ok := lookup(raw, enabledPath); ok {
			if b, isBool := v.(bool); isBool {
				enabled = b
			}
		}
		if !enabled {
			msgs = append(msgs, fmt.Sprintf("setting %q cannot be %q while %q is false",
				dotted(modePath), modeStr, dotted(enabledPath)))
		}
	}
	return msgs
}

// buildDefaults materializes the canonical default tree from the schema.
func buildDefaults(n node) map[string]any {
	out := make(map[string]any, len(n.children))
	for key, child := range n.children {
		if child.leaf != nil {
			out[key] = copyValue(child.leaf.def)
			continue
		}
		out[key] = buildDefaults(child)
	}
	return out
}

// deepMerge returns base with overlay merged over it. Nested maps merge
// recursively; everything else (scalars, lists) overwrites. Leaf values
// from overlay are normalized so the resolved tree always decodes.
func deepMerge(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		if sub, ok := v.(map[string]any); ok {
			if baseSub, ok := out[k].(map[string]any); ok {
				out[k] = deepMerge(baseSub, sub)
				continue
			}
		}
		out[k] = normalize(v)
	}
	return out
}

// normalize converts JSON-decoded values into the types the resolved
// struct expects: integral floats become ints, []any of strings becomes
// []string.
func normalize(v any) any {
	switch t := v.(type) {
	case float64:
		if n, ok := asInt(t); ok {
			return n
		}
	case []any:
		if items, ok := asStringList(t); ok {
			return items
		}
	}
	return v
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

func asStringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func lookup(m map[string]any, path []string) (any, bool) {
	current := any(m)
	for _, key := range path {
		sub, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = sub[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func dotted(path []string) string {
	out := ""
	for _, p := range path {
		out = joinPath(out, p)
	}
	return out
}

// copyTree deep-copies a settings tree so callers cannot mutate internal
// state through a returned or retained map.
func copyTree(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyTree(t)
	case []string:
		return append([]string{}, t...)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	}
	return v
}
