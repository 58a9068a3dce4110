package models

import "time"

// FilterOp is a comparison supported by search filters.
type FilterOp string

const (
	OpEqual       FilterOp = "Equal"
	OpLessThan    FilterOp = "LessThan"
	OpContainsAny FilterOp = "ContainsAny"
)

// Filter restricts a query to documents whose field matches a value.
// Date fields are compared using values formatted with DateLayout.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Query is a search request against the index. All filters must match.
type Query struct {
	Text    string
	Filters []Filter
	Limit   int
	Offset  int
	// Facets names the fields to aggregate into value buckets.
	Facets []string
}

// Clone returns a copy that can be modified independently.
func (q *Query) Clone() *Query {
	out := *q
	out.Filters = append([]Filter(nil), q.Filters...)
	out.Facets = append([]string(nil), q.Facets...)
	return &out
}

// RawHit is a single document returned by the search backend.
type RawHit struct {
	ID     string
	Type   string
	Score  float64
	Source map[string]any
}

// Bucket is one value of a facet aggregation.
type Bucket struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// RawResultSet is the undecoded response of a search.
type RawResultSet struct {
	Hits         []RawHit
	TotalHits    int
	Took         time.Duration
	Aggregations map[string][]Bucket
}
