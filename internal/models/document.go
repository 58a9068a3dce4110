// Package models defines the data structures shared across indexsync:
// stages, search documents, mapping descriptors, queries and result sets.
package models

// Well-known document fields.
const (
	FieldID                 = "ID"
	FieldParentID           = "ParentID"
	FieldClassName          = "ClassName"
	FieldClassNameHierarchy = "ClassNameHierarchy"
	FieldParentsHierarchy   = "ParentsHierarchy"
	FieldLastIndexed        = "LastIndexed"
	FieldStage              = "Stage"
	FieldContent            = "Content"
	FieldShowInSearch       = "ShowInSearch"
	FieldTitle              = "Title"
	FieldCreated            = "Created"
	FieldLastEdited         = "LastEdited"
)

// DateLayout is the Go layout of every date-typed document value.
// DateFormat is the same layout expressed for the search backend.
const (
	DateLayout = "2006-01-02 15:04:05"
	DateFormat = "yyyy-MM-dd HH:mm:ss"
)

// IDSeparator joins the parts of a document id.
const IDSeparator = "_"

// Document is the unit written to the search index.
type Document struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// NewDocument creates a document with an empty field map.
func NewDocument(id string) *Document {
	return &Document{ID: id, Fields: make(map[string]any)}
}

// Has reports whether the document already carries a field.
func (d *Document) Has(field string) bool {
	_, ok := d.Fields[field]
	return ok
}

// IndexJob is a deferred "index this record in this stage" unit of work.
// It carries only the identity of the record so that the record is
// re-read when the job runs.
type IndexJob struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Stage Stage  `json:"stage,omitempty"`
}
