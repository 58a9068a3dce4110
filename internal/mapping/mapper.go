// Package mapping turns content records into search documents and derives
// the per-type mapping descriptors sent to the search backend.
package mapping

import (
	"context"
	"time"

	"github.com/kilupskalvis/indexsync/internal/models"
)

// Entity is a content record that can be indexed.
type Entity interface {
	EntityType() string
	EntityID() string
	// Get returns the value of a field and whether the record has it.
	Get(field string) (any, bool)
}

// SearchVisibility is implemented by records that decide themselves
// whether they may appear in search.
type SearchVisibility interface {
	CanShowInSearch() bool
}

// ParentLookup resolves the parent id of a record of the given type.
type ParentLookup interface {
	ParentOf(ctx context.Context, typeName, id string) (string, bool)
}

// ParentLookupFunc adapts a function to ParentLookup.
type ParentLookupFunc func(ctx context.Context, typeName, id string) (string, bool)

// ParentOf calls f.
func (f ParentLookupFunc) ParentOf(ctx context.Context, typeName, id string) (string, bool) {
	return f(ctx, typeName, id)
}

// AugmentFunc may add or override document fields before a document is
// finalized.
type AugmentFunc func(e Entity, stage models.Stage, fields map[string]any)

// MappingHook may rewrite the derived field map of a type.
type MappingHook func(typeName string, props map[string]models.FieldMapping)

// Mapper builds documents and mappings. Field derivation runs as a fixed
// pipeline: rule table, then per-type hooks; custom mappings replace the
// derived mapping wholesale; augmenters run last on each document.
type Mapper struct {
	registry   *models.Registry
	parents    ParentLookup
	custom     map[string]*models.Mapping
	hooks      map[string][]MappingHook
	augmenters []AugmentFunc
	now        func() time.Time
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithParentLookup sets the resolver used to walk parent chains.
func WithParentLookup(p ParentLookup) Option {
	return func(m *Mapper) { m.parents = p }
}

// WithCustomMappings registers explicit mapping definitions by type.
func WithCustomMappings(custom map[string]*models.Mapping) Option {
	return func(m *Mapper) {
		for name, def := range custom {
			if def == nil {
				continue
			}
			c := def.Clone()
			c.Type = name
			if _, ok := c.Params["date_detection"]; !ok {
				c.Params["date_detection"] = false
			}
			m.custom[name] = c
		}
	}
}

// WithMappingHook registers a hook for one type. An empty type name
// applies the hook to every type.
func WithMappingHook(typeName string, hook MappingHook) Option {
	return func(m *Mapper) { m.hooks[typeName] = append(m.hooks[typeName], hook) }
}

// WithAugmenter registers a document field augmenter.
func WithAugmenter(fn AugmentFunc) Option {
	return func(m *Mapper) { m.augmenters = append(m.augmenters, fn) }
}

// WithClock overrides the clock used for LastIndexed.
func WithClock(now func() time.Time) Option {
	return func(m *Mapper) { m.now = now }
}

// New creates a Mapper over a type registry.
func New(registry *models.Registry, opts ...Option) *Mapper {
	m := &Mapper{
		registry: registry,
		custom:   make(map[string]*models.Mapping),
		hooks:    make(map[string][]MappingHook),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the current time on the mapper's clock.
func (m *Mapper) Now() time.Time {
	return m.now()
}

// Timestamp formats the current time the way LastIndexed is stored.
func (m *Mapper) Timestamp() string {
	return m.now().Format(models.DateLayout)
}

// Registry returns the type registry.
func (m *Mapper) Registry() *models.Registry {
	return m.registry
}

// HasCustomMapping reports whether an explicit definition exists for a type.
func (m *Mapper) HasCustomMapping(typeName string) bool {
	_, ok := m.custom[typeName]
	return ok
}

// CustomMappings returns the explicit definitions keyed by type.
func (m *Mapper) CustomMappings() map[string]*models.Mapping {
	return m.custom
}

func (m *Mapper) spec(typeName string) models.TypeSpec {
	if s, ok := m.registry.Spec(typeName); ok {
		return s
	}
	return models.TypeSpec{Name: typeName}
}

// Fields derives the field map of a type from its declared fields.
func (m *Mapper) Fields(typeName string) map[string]models.FieldMapping {
	spec := m.spec(typeName)
	props := make(map[string]models.FieldMapping)

	for _, name := range spec.Searchables() {
		fm := models.FieldMapping{}
		if kind, ok := spec.FieldKind(name); ok {
			if rule, ok := RuleFor(kind); ok {
				fm = rule
			}
		}
		props[name] = fm
	}
	for name, fm := range defaultFields {
		props[name] = fm
	}

	for name, fm := range props {
		if fm.Type == models.TypeDate {
			fm.Format = models.DateFormat
			props[name] = fm
		}
	}
	if fm, ok := props[models.FieldContent]; ok && fm.Type != "" {
		store := false
		fm.Store = &store
		props[models.FieldContent] = fm
	}

	for _, hook := range m.hooks[""] {
		hook(typeName, props)
	}
	for _, hook := range m.hooks[typeName] {
		hook(typeName, props)
	}
	return props
}

// BuildMapping returns the mapping descriptor for a type. A custom
// definition for the type bypasses derivation.
func (m *Mapper) BuildMapping(typeName string) *models.Mapping {
	if c, ok := m.custom[typeName]; ok {
		return c.Clone()
	}
	mp := models.NewMapping(typeName)
	mp.Properties = m.Fields(typeName)
	return mp
}

// BuildDocument builds the search document for a record in a stage.
func (m *Mapper) BuildDocument(ctx context.Context, e Entity, stage models.Stage) *models.Document {
	if stage == "" {
		stage = models.StageDraft
	}
	typeName := e.EntityType()
	spec := m.spec(typeName)

	doc := models.NewDocument(DocumentID(typeName, e.EntityID(), stage, spec.Versioned))
	for name := range m.Fields(typeName) {
		if v, ok := e.Get(name); ok {
			doc.Fields[name] = v
		}
	}

	if spec.Versioned {
		doc.Fields[models.FieldStage] = []string{string(stage)}
	} else {
		doc.Fields[models.FieldStage] = []string{string(models.StageDraft), string(models.StagePublished)}
	}

	_, hasParent := e.Get(models.FieldParentID)
	if spec.Hierarchical || hasParent {
		doc.Fields[models.FieldParentsHierarchy] = m.parentsHierarchy(ctx, e)
	}
	if !doc.Has(models.FieldClassNameHierarchy) {
		doc.Fields[models.FieldClassNameHierarchy] = spec.ClassHierarchy()
	}
	if !doc.Has(models.FieldClassName) {
		doc.Fields[models.FieldClassName] = typeName
	}
	if !doc.Has(models.FieldLastIndexed) {
		doc.Fields[models.FieldLastIndexed] = m.Timestamp()
	}

	for _, fn := range m.augmenters {
		fn(e, stage, doc.Fields)
	}
	return doc
}

// parentsHierarchy walks the parent chain nearest-first. The walk stops at
// a missing parent, at the root, or at any id already visited.
func (m *Mapper) parentsHierarchy(ctx context.Context, e Entity) []string {
	parents := []string{}
	seen := map[string]bool{e.EntityID(): true}

	parentID := stringValue(e.Get(models.FieldParentID))
	for !isRootID(parentID) && !seen[parentID] {
		parents = append(parents, parentID)
		seen[parentID] = true
		if m.parents == nil {
			break
		}
		next, ok := m.parents.ParentOf(ctx, e.EntityType(), parentID)
		if !ok {
			break
		}
		parentID = next
	}
	return parents
}

// ShowInSearch applies a record's search visibility predicate. Records
// without one are visible unless their ShowInSearch field is false.
func ShowInSearch(e Entity) bool {
	if sv, ok := e.(SearchVisibility); ok {
		return sv.CanShowInSearch()
	}
	if v, ok := e.Get(models.FieldShowInSearch); ok {
		return Truthy(v)
	}
	return true
}
