package models

import (
	"sort"
	"strings"
)

// FieldKind is the declared storage kind of a content field, optionally
// with parameters, e.g. "Varchar(255)" or "Enum('A','B')".
type FieldKind string

// Base returns the kind without its parameter list.
func (k FieldKind) Base() string {
	s := string(k)
	if i := strings.IndexByte(s, '('); i > 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// FieldSpec declares one content field.
type FieldSpec struct {
	Name string    `toml:"name"`
	Kind FieldKind `toml:"kind"`
}

// TypeSpec describes a content type known to the registry.
type TypeSpec struct {
	Name         string      `toml:"name"`
	Ancestry     []string    `toml:"ancestry,omitempty"`
	Versioned    bool        `toml:"versioned"`
	Hierarchical bool        `toml:"hierarchical"`
	Searchable   bool        `toml:"searchable"`
	Fields       []FieldSpec `toml:"fields"`
	// SearchableFields lists the fields copied into documents. Empty means
	// every declared field.
	SearchableFields []string `toml:"searchable_fields,omitempty"`
}

// FieldKind returns the declared kind of a field.
func (t TypeSpec) FieldKind(name string) (FieldKind, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f.Kind, true
		}
	}
	return "", false
}

// Searchables returns the names of the fields that take part in search.
func (t TypeSpec) Searchables() []string {
	if len(t.SearchableFields) > 0 {
		return t.SearchableFields
	}
	names := make([]string, 0, len(t.Fields))
	for _, f := range t.Fields {
		names = append(names, f.Name)
	}
	return names
}

// ClassHierarchy returns the type ancestry, most general first, always
// ending with the type itself.
func (t TypeSpec) ClassHierarchy() []string {
	out := make([]string, 0, len(t.Ancestry)+1)
	for _, a := range t.Ancestry {
		if a != t.Name {
			out = append(out, a)
		}
	}
	return append(out, t.Name)
}

// Registry is the set of content types the system knows about.
type Registry struct {
	types map[string]TypeSpec
}

// NewRegistry builds a registry from type specs.
func NewRegistry(specs ...TypeSpec) *Registry {
	r := &Registry{types: make(map[string]TypeSpec, len(specs))}
	for _, s := range specs {
		r.types[s.Name] = s
	}
	return r
}

// Spec returns the spec for a type.
func (r *Registry) Spec(name string) (TypeSpec, bool) {
	if r == nil {
		return TypeSpec{}, false
	}
	s, ok := r.types[name]
	return s, ok
}

// Has reports whether a type is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Spec(name)
	return ok
}

// Indexed returns the searchable types sorted by name.
func (r *Registry) Indexed() []TypeSpec {
	if r == nil {
		return nil
	}
	var out []TypeSpec
	for _, s := range r.types {
		if s.Searchable {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Subtypes returns the registered types whose ancestry contains base,
// including base itself when registered.
func (r *Registry) Subtypes(base string) []string {
	if r == nil {
		return nil
	}
	var out []string
	for name, s := range r.types {
		if name == base {
			out = append(out, name)
			continue
		}
		for _, a := range s.Ancestry {
			if a == base {
				out = append(out, name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}
