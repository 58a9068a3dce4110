package models

// Search field types used in mapping descriptors.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeDouble  = "double"
	TypeFloat   = "float"
	TypeDate    = "date"
)

// FieldMapping holds the backend schema hints for one document field.
// An empty Type means the backend infers the type.
type FieldMapping struct {
	Type   string `toml:"type,omitempty" json:"type,omitempty"`
	Format string `toml:"format,omitempty" json:"format,omitempty"`
	Store  *bool  `toml:"store,omitempty" json:"store,omitempty"`
	Array  bool   `toml:"array,omitempty" json:"array,omitempty"`
}

// Stored reports whether the raw value is retrievable from search results.
func (f FieldMapping) Stored() bool {
	return f.Store == nil || *f.Store
}

// Mapping is the schema descriptor for one document type.
type Mapping struct {
	Type       string                  `toml:"-" json:"type"`
	Properties map[string]FieldMapping `toml:"properties" json:"properties"`
	Params     map[string]any          `toml:"params,omitempty" json:"params,omitempty"`
}

// NewMapping creates an empty mapping for a type.
func NewMapping(typeName string) *Mapping {
	return &Mapping{
		Type:       typeName,
		Properties: make(map[string]FieldMapping),
		Params:     map[string]any{"date_detection": false},
	}
}

// Clone returns a deep copy of the mapping.
func (m *Mapping) Clone() *Mapping {
	out := &Mapping{
		Type:       m.Type,
		Properties: make(map[string]FieldMapping, len(m.Properties)),
		Params:     make(map[string]any, len(m.Params)),
	}
	for k, v := range m.Properties {
		if v.Store != nil {
			store := *v.Store
			v.Store = &store
		}
		out.Properties[k] = v
	}
	for k, v := range m.Params {
		out.Params[k] = v
	}
	return out
}

// IndexSettings configures index creation.
type IndexSettings struct {
	Name         string `toml:"name"`
	Vectorizer   string `toml:"vectorizer,omitempty"`
	Description  string `toml:"description,omitempty"`
	Tokenization string `toml:"tokenization,omitempty"`
}
