package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kilupskalvis/indexsync/internal/mapping"
	"github.com/kilupskalvis/indexsync/internal/models"
	"github.com/kilupskalvis/indexsync/internal/weaviate"
)

// Result is one translated search hit.
type Result interface {
	mapping.Entity
	// DocumentID is the id of the hit in the index.
	DocumentID() string
	Score() float64
	// Fields returns the hit as a flat field map.
	Fields() map[string]any
}

// Viewable is implemented by records that check who may see them.
type Viewable interface {
	CanView(ctx context.Context) bool
}

// ResolvedEntity is a hit backed by a live record.
type ResolvedEntity struct {
	Entity mapping.Entity
	docID  string
	score  float64
	source map[string]any
}

func (r *ResolvedEntity) EntityType() string { return r.Entity.EntityType() }
func (r *ResolvedEntity) EntityID() string   { return r.Entity.EntityID() }
func (r *ResolvedEntity) DocumentID() string { return r.docID }
func (r *ResolvedEntity) Score() float64     { return r.score }

// Get reads from the live record.
func (r *ResolvedEntity) Get(field string) (any, bool) { return r.Entity.Get(field) }

// Fields returns the record's own fields when it can list them, otherwise
// the stored fields of the hit.
func (r *ResolvedEntity) Fields() map[string]any {
	if m, ok := r.Entity.(interface{ ToMap() map[string]any }); ok {
		return m.ToMap()
	}
	return copyFields(r.source)
}

// SyntheticRecord is a read-only hit built from stored fields, used for
// types no resolver knows.
type SyntheticRecord struct {
	Type   string
	ID     string
	docID  string
	score  float64
	fields map[string]any
}

func (r *SyntheticRecord) EntityType() string     { return r.Type }
func (r *SyntheticRecord) EntityID() string       { return r.ID }
func (r *SyntheticRecord) DocumentID() string     { return r.docID }
func (r *SyntheticRecord) Score() float64         { return r.score }
func (r *SyntheticRecord) Fields() map[string]any { return copyFields(r.fields) }

// Get reads a stored field.
func (r *SyntheticRecord) Get(field string) (any, bool) {
	v, ok := r.fields[field]
	return v, ok
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Translator turns raw hits into results.
type Translator struct {
	registry *models.Registry
	resolver Resolver
	logger   *slog.Logger
}

// NewTranslator creates a translator. Types missing from the registry, and
// every type when resolver is nil, come back as synthetic records.
func NewTranslator(registry *models.Registry, resolver Resolver, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{registry: registry, resolver: resolver, logger: logger}
}

// Translate converts hits in backend order. Hits that cannot be decoded or
// resolved, that belong to another stage, or that the viewer may not see are
// skipped. An empty stage disables the stage check.
func (t *Translator) Translate(ctx context.Context, rs *models.RawResultSet, stage models.Stage, evaluatePermissions bool) []Result {
	if rs == nil {
		return nil
	}
	results := make([]Result, 0, len(rs.Hits))
	for _, hit := range rs.Hits {
		ref := mapping.ParseDocumentID(hit.ID)
		typeName, id, hitStage := ref.Type, ref.ID, ref.Stage
		if ref.Parts != 3 && ref.Parts != 2 {
			typeName = hit.Type
		}
		if hitStage == "" {
			hitStage = stage
		}

		if typeName == "" || id == "" {
			t.logger.Warn("skipping undecodable search hit", "doc_id", hit.ID)
			continue
		}
		if stage != "" && hitStage != stage {
			t.logger.Warn("skipping search hit from another stage",
				"doc_id", hit.ID, "stage", hitStage, "active_stage", stage)
			continue
		}

		result, ok := t.resolve(ctx, hit, typeName, id, hitStage)
		if !ok {
			continue
		}

		if evaluatePermissions {
			if v, ok := resultEntity(result).(Viewable); ok && !v.CanView(ctx) {
				continue
			}
		}
		if !mapping.ShowInSearch(resultEntity(result)) {
			continue
		}
		results = append(results, result)
	}
	return results
}

func (t *Translator) resolve(ctx context.Context, hit models.RawHit, typeName, id string, stage models.Stage) (Result, bool) {
	if t.resolver == nil || !t.registry.Has(typeName) {
		return &SyntheticRecord{Type: typeName, ID: id, docID: hit.ID, score: hit.Score, fields: hit.Source}, true
	}

	if stage == "" {
		stage = models.StageDraft
	}
	e, ok, err := t.resolver.Find(ctx, typeName, id, stage)
	if err != nil {
		t.logger.Warn("skipping unresolvable search hit", "doc_id", hit.ID, "error", err)
		return nil, false
	}
	if !ok {
		t.logger.Info("skipping search hit for missing record", "doc_id", hit.ID)
		return nil, false
	}
	return &ResolvedEntity{Entity: e, docID: hit.ID, score: hit.Score, source: hit.Source}, true
}

// resultEntity unwraps a resolved hit so capability checks see the record.
func resultEntity(r Result) mapping.Entity {
	if re, ok := r.(*ResolvedEntity); ok {
		return re.Entity
	}
	return r
}

// Search starts a query. The active stage of ctx restricts it to that
// stage's documents. Nothing runs until a result accessor is called.
func (s *Service) Search(ctx context.Context, query *models.Query) *ResultList {
	q := query.Clone()
	stage := StageFrom(ctx)
	if stage != "" {
		q.Filters = append(q.Filters, models.Filter{Field: models.FieldStage, Op: models.OpEqual, Value: string(stage)})
	}
	return &ResultList{
		client:     s.client,
		translator: NewTranslator(s.mapper.Registry(), s.resolver, s.logger),
		query:      q,
		stage:      stage,
	}
}

// ResultList is a lazily executed search. Results are computed once.
type ResultList struct {
	client      weaviate.ClientInterface
	translator  *Translator
	query       *models.Query
	stage       models.Stage
	permissions bool

	done    bool
	err     error
	raw     *models.RawResultSet
	results []Result
}

// WithPermissions returns the list with view-permission checks switched on.
func (l *ResultList) WithPermissions() *ResultList {
	out := l.Limit(l.query.Limit, l.query.Offset)
	out.permissions = true
	return out
}

// Query returns a copy of the query being run.
func (l *ResultList) Query() *models.Query { return l.query.Clone() }

// Limit returns a new list over the same query with another window.
func (l *ResultList) Limit(limit, offset int) *ResultList {
	q := l.query.Clone()
	q.Limit = limit
	q.Offset = offset
	return &ResultList{
		client:      l.client,
		translator:  l.translator,
		query:       q,
		stage:       l.stage,
		permissions: l.permissions,
	}
}

func (l *ResultList) run(ctx context.Context) error {
	if l.done {
		return l.err
	}
	l.done = true

	rs, err := l.client.Search(ctx, l.query)
	if err != nil {
		l.err = fmt.Errorf("search: %w", err)
		return l.err
	}
	l.raw = rs
	l.results = l.translator.Translate(ctx, rs, l.stage, l.permissions)
	return nil
}

// Results returns the translated results in relevance order.
func (l *ResultList) Results(ctx context.Context) ([]Result, error) {
	if err := l.run(ctx); err != nil {
		return nil, err
	}
	return l.results, nil
}

// TotalResults returns the backend's total hit count.
func (l *ResultList) TotalResults(ctx context.Context) (int, error) {
	if err := l.run(ctx); err != nil {
		return 0, err
	}
	return l.raw.TotalHits, nil
}

// TimeTaken returns how long the backend query took.
func (l *ResultList) TimeTaken(ctx context.Context) (time.Duration, error) {
	if err := l.run(ctx); err != nil {
		return 0, err
	}
	return l.raw.Took, nil
}

// Aggregations returns facet buckets keyed by field.
func (l *ResultList) Aggregations(ctx context.Context) (map[string][]models.Bucket, error) {
	if err := l.run(ctx); err != nil {
		return nil, err
	}
	return l.raw.Aggregations, nil
}

// Count returns the number of translated results on this window.
func (l *ResultList) Count(ctx context.Context) (int, error) {
	results, err := l.Results(ctx)
	return len(results), err
}

// First returns the first result, or nil when there is none.
func (l *ResultList) First(ctx context.Context) (Result, error) {
	results, err := l.Results(ctx)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return results[0], nil
}

// Last returns the last result, or nil when there is none.
func (l *ResultList) Last(ctx context.Context) (Result, error) {
	results, err := l.Results(ctx)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return results[len(results)-1], nil
}

// Each calls fn for every result until fn returns an error.
func (l *ResultList) Each(ctx context.Context, fn func(Result) error) error {
	results, err := l.Results(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Column returns one field of every result. The ID column holds the raw
// document ids of the hits, read without resolving records.
func (l *ResultList) Column(ctx context.Context, name string) ([]any, error) {
	if name == models.FieldID {
		if err := l.run(ctx); err != nil {
			return nil, err
		}
		ids := make([]any, 0, len(l.raw.Hits))
		for _, hit := range l.raw.Hits {
			ids = append(ids, hit.ID)
		}
		return ids, nil
	}

	results, err := l.Results(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(results))
	for _, r := range results {
		v, _ := r.Get(name)
		out = append(out, v)
	}
	return out, nil
}

// Map returns key field to title field over the results.
func (l *ResultList) Map(ctx context.Context, key, title string) (map[string]any, error) {
	results, err := l.Results(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(results))
	for _, r := range results {
		k, ok := r.Get(key)
		if !ok {
			continue
		}
		v, _ := r.Get(title)
		out[fmt.Sprint(k)] = v
	}
	return out, nil
}

// ToNestedMaps returns every result as a field map with its identity and score.
func (l *ResultList) ToNestedMaps(ctx context.Context) ([]map[string]any, error) {
	results, err := l.Results(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(results))
	for _, r := range results {
		m := r.Fields()
		m[models.FieldID] = r.EntityID()
		m[models.FieldClassName] = r.EntityType()
		m["SearchScore"] = r.Score()
		out = append(out, m)
	}
	return out, nil
}

// Page returns a paginated view of limit results starting at start.
func (l *ResultList) Page(limit, start int) *PaginatedList {
	return &PaginatedList{list: l.Limit(limit, start), limit: limit, start: start}
}

// PaginatedList is a lazily evaluated page of results.
type PaginatedList struct {
	list  *ResultList
	limit int
	start int
}

// Items returns the results on the page.
func (p *PaginatedList) Items(ctx context.Context) ([]Result, error) {
	return p.list.Results(ctx)
}

// TotalItems returns the total number of hits across all pages.
func (p *PaginatedList) TotalItems(ctx context.Context) (int, error) {
	return p.list.TotalResults(ctx)
}

// List returns the result list backing the page.
func (p *PaginatedList) List() *ResultList { return p.list }

// PageLength returns the page size.
func (p *PaginatedList) PageLength() int { return p.limit }

// PageStart returns the offset of the first item on the page.
func (p *PaginatedList) PageStart() int { return p.start }

// CurrentPage returns the 1-based page number.
func (p *PaginatedList) CurrentPage() int {
	if p.limit <= 0 {
		return 1
	}
	return p.start/p.limit + 1
}

// TotalPages returns the number of pages needed for every hit.
func (p *PaginatedList) TotalPages(ctx context.Context) (int, error) {
	total, err := p.TotalItems(ctx)
	if err != nil {
		return 0, err
	}
	if p.limit <= 0 {
		return 1, nil
	}
	return (total + p.limit - 1) / p.limit, nil
}
