package weaviate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kilupskalvis/indexsync/internal/models"
)

// MockClient is an in-memory implementation of ClientInterface for testing.
type MockClient struct {
	// Docs stores document fields by document id
	Docs map[string]map[string]any
	// Exists reports whether the index has been created
	Exists bool
	// Created records every CreateIndex call
	Created []models.IndexSettings
	// Mappings stores the last mapping sent per type; MappingOrder the send order
	Mappings     map[string]*models.Mapping
	MappingOrder []string
	// Refreshes counts Refresh calls
	Refreshes int
	// Calls records the operations performed, in order
	Calls []string

	// Err can be set to make every method return an error
	Err error
	// FailOn makes a single operation fail: "exists", "create", "mapping",
	// "add", "bulk", "delete", "deletes", "delete_by_query", "search", "refresh"
	FailOn map[string]error
	// BulkFailIDs rejects these document ids in AddDocuments
	BulkFailIDs map[string]string
	// DeleteNoop makes DeleteDocuments succeed without deleting anything
	DeleteNoop bool
}

// NewMockClient creates a new MockClient for testing.
func NewMockClient() *MockClient {
	return &MockClient{
		Docs:        make(map[string]map[string]any),
		Mappings:    make(map[string]*models.Mapping),
		FailOn:      make(map[string]error),
		BulkFailIDs: make(map[string]string),
	}
}

func (m *MockClient) fail(op string) error {
	m.Calls = append(m.Calls, op)
	if m.Err != nil {
		return m.Err
	}
	return m.FailOn[op]
}

// Put stores a document directly, bypassing failure knobs.
func (m *MockClient) Put(doc *models.Document) {
	fields := make(map[string]any, len(doc.Fields))
	for k, v := range doc.Fields {
		fields[k] = v
	}
	m.Docs[doc.ID] = fields
}

// DocIDs returns the stored document ids, sorted.
func (m *MockClient) DocIDs() []string {
	ids := make([]string, 0, len(m.Docs))
	for id := range m.Docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CallCount returns how many times an operation was invoked.
func (m *MockClient) CallCount(op string) int {
	n := 0
	for _, c := range m.Calls {
		if c == op {
			n++
		}
	}
	return n
}

// IndexExists reports the Exists flag.
func (m *MockClient) IndexExists(ctx context.Context) (bool, error) {
	if err := m.fail("exists"); err != nil {
		return false, err
	}
	return m.Exists, nil
}

// CreateIndex marks the index as existing.
func (m *MockClient) CreateIndex(ctx context.Context, settings models.IndexSettings) error {
	if err := m.fail("create"); err != nil {
		return err
	}
	m.Exists = true
	m.Created = append(m.Created, settings)
	return nil
}

// PutMapping records the mapping.
func (m *MockClient) PutMapping(ctx context.Context, mapping *models.Mapping) error {
	if err := m.fail("mapping"); err != nil {
		return err
	}
	m.Mappings[mapping.Type] = mapping.Clone()
	m.MappingOrder = append(m.MappingOrder, mapping.Type)
	return nil
}

// AddDocument stores one document, rejecting it as a one-document batch
// when listed in BulkFailIDs.
func (m *MockClient) AddDocument(ctx context.Context, typeName string, doc *models.Document) error {
	if err := m.fail("add"); err != nil {
		return err
	}
	if msg, ok := m.BulkFailIDs[doc.ID]; ok {
		return &BulkError{Type: typeName, Total: 1, Failed: []BulkFailure{{DocumentID: doc.ID, Message: msg}}}
	}
	m.Put(doc)
	return nil
}

// AddDocuments stores documents, rejecting those listed in BulkFailIDs.
func (m *MockClient) AddDocuments(ctx context.Context, typeName string, docs []*models.Document) error {
	if err := m.fail("bulk"); err != nil {
		return err
	}
	var failed []BulkFailure
	for _, doc := range docs {
		if msg, ok := m.BulkFailIDs[doc.ID]; ok {
			failed = append(failed, BulkFailure{DocumentID: doc.ID, Message: msg})
			continue
		}
		m.Put(doc)
	}
	if len(failed) > 0 {
		return &BulkError{Type: typeName, Total: len(docs), Failed: failed}
	}
	return nil
}

// DeleteDocument removes a document; a missing document is an error.
func (m *MockClient) DeleteDocument(ctx context.Context, typeName, docID string) error {
	if err := m.fail("delete"); err != nil {
		return err
	}
	if _, ok := m.Docs[docID]; !ok {
		return &RequestError{Op: "delete document " + docID, Status: 404, Err: fmt.Errorf("not found")}
	}
	delete(m.Docs, docID)
	return nil
}

// DeleteDocuments removes documents by id.
func (m *MockClient) DeleteDocuments(ctx context.Context, typeName string, docIDs []string) error {
	if err := m.fail("deletes"); err != nil {
		return err
	}
	if m.DeleteNoop {
		return nil
	}
	for _, id := range docIDs {
		delete(m.Docs, id)
	}
	return nil
}

// DeleteByQuery removes every document matching the query filters.
func (m *MockClient) DeleteByQuery(ctx context.Context, query *models.Query) (int, error) {
	if err := m.fail("delete_by_query"); err != nil {
		return 0, err
	}
	n := 0
	for _, id := range m.match(query) {
		delete(m.Docs, id)
		n++
	}
	return n, nil
}

// Refresh counts refreshes.
func (m *MockClient) Refresh(ctx context.Context) error {
	if err := m.fail("refresh"); err != nil {
		return err
	}
	m.Refreshes++
	return nil
}

// Search evaluates filters and a case-insensitive substring text match,
// returning hits ordered by document id.
func (m *MockClient) Search(ctx context.Context, query *models.Query) (*models.RawResultSet, error) {
	if err := m.fail("search"); err != nil {
		return nil, err
	}
	ids := m.match(query)

	rs := &models.RawResultSet{TotalHits: len(ids)}
	if len(query.Facets) > 0 {
		rs.Aggregations = make(map[string][]models.Bucket)
		for _, facet := range query.Facets {
			rs.Aggregations[facet] = m.buckets(ids, facet)
		}
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	start := query.Offset
	if start > len(ids) {
		start = len(ids)
	}
	end := start + limit
	if end > len(ids) {
		end = len(ids)
	}

	for _, id := range ids[start:end] {
		source := make(map[string]any)
		for k, v := range m.Docs[id] {
			if m.unstored(k) {
				continue
			}
			source[k] = v
		}
		typ, _ := source[models.FieldClassName].(string)
		rs.Hits = append(rs.Hits, models.RawHit{ID: id, Type: typ, Score: 1, Source: source})
	}
	return rs, nil
}

func (m *MockClient) unstored(field string) bool {
	for _, mp := range m.Mappings {
		if fm, ok := mp.Properties[field]; ok && !fm.Stored() {
			return true
		}
	}
	return false
}

func (m *MockClient) match(query *models.Query) []string {
	var ids []string
	for id, fields := range m.Docs {
		if matchAll(fields, query) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (m *MockClient) buckets(ids []string, facet string) []models.Bucket {
	counts := make(map[string]int)
	for _, id := range ids {
		for _, v := range values(m.Docs[id][facet]) {
			counts[v]++
		}
	}
	buckets := make([]models.Bucket, 0, len(counts))
	for v, n := range counts {
		buckets = append(buckets, models.Bucket{Value: v, Count: n})
	}
	sortBuckets(buckets)
	return buckets
}

func matchAll(fields map[string]any, query *models.Query) bool {
	for _, f := range query.Filters {
		if !matchFilter(fields, f) {
			return false
		}
	}
	if query.Text == "" {
		return true
	}
	needle := strings.ToLower(query.Text)
	for _, v := range fields {
		for _, s := range values(v) {
			if strings.Contains(strings.ToLower(s), needle) {
				return true
			}
		}
	}
	return false
}

func matchFilter(fields map[string]any, f models.Filter) bool {
	have := values(fields[f.Field])
	if len(have) == 0 {
		return false
	}
	want := values(f.Value)

	switch f.Op {
	case models.OpLessThan:
		return len(want) > 0 && less(have[0], want[0])
	case models.OpContainsAny:
		for _, h := range have {
			for _, w := range want {
				if h == w {
					return true
				}
			}
		}
		return false
	default:
		for _, h := range have {
			if len(want) > 0 && h == want[0] {
				return true
			}
		}
		return false
	}
}

func less(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return fa < fb
	}
	return a < b
}

func values(v any) []string {
	switch s := v.(type) {
	case nil:
		return nil
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{fmt.Sprint(s)}
	}
}

// Verify MockClient implements ClientInterface
var _ ClientInterface = (*MockClient)(nil)
