package pipeline

import "sort"

// Requirement is a pure value naming the folder columns and relations a
// handler needs loaded before it runs. It carries no query-builder
// state; only the pipeline's aggregation phase turns requirements into
// an actual load call, through the injected Loader.
//
// The zero value is the empty requirement.
type Requirement struct {
	fields    map[string]struct{}
	relations map[string]struct{}
}

// Fields builds a requirement for the given columns.
func Fields(names ...string) Requirement {
	r := Requirement{}
	for _, n := range names {
		r = r.withField(n)
	}
	return r
}

// Relations builds a requirement for the given relations.
func Relations(names ...string) Requirement {
	r := Requirement{}
	for _, n := range names {
		r = r.withRelation(n)
	}
	return r
}

func (r Requirement) withField(name string) Requirement {
	out := r.clone()
	out.fields[name] = struct{}{}
	return out
}

func (r Requirement) withRelation(name string) Requirement {
	out := r.clone()
	out.relations[name] = struct{}{}
	return out
}

// Union returns the requirement covering both r and other.
func (r Requirement) Union(other Requirement) Requirement {
	out := r.clone()
	for f := range other.fields {
		out.fields[f] = struct{}{}
	}
	for rel := range other.relations {
		out.relations[rel] = struct{}{}
	}
	return out
}

// FieldNames returns the required columns, sorted.
func (r Requirement) FieldNames() []string {
	return sortedKeys(r.fields)
}

// RelationNames returns the required relations, sorted.
func (r Requirement) RelationNames() []string {
	return sortedKeys(r.relations)
}

// HasField reports whether the column is part of the requirement.
func (r Requirement) HasField(name string) bool {
	_, ok := r.fields[name]
	return ok
}

// IsEmpty reports whether the requirement names nothing.
func (r Requirement) IsEmpty() bool {
	return len(r.fields) == 0 && len(r.relations) == 0
}

func (r Requirement) clone() Requirement {
	out := Requirement{
		fields:    make(map[string]struct{}, len(r.fields)),
		relations: make(map[string]struct{}, len(r.relations)),
	}
	for f := range r.fields {
		out.fields[f] = struct{}{}
	}
	for rel := range r.relations {
		out.relations[rel] = struct{}{}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
