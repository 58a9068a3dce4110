// Package weaviate drives a Weaviate class as the search index: index and
// mapping lifecycle, document writes and deletes, and searches that come
// back as raw result sets.
package weaviate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/kilupskalvis/indexsync/internal/models"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	weaviatemodels "github.com/weaviate/weaviate/entities/models"
)

const (
	// documentIDProperty holds the document id; object ids must be UUIDs.
	documentIDProperty = "documentID"
	// unstoredMarker tags properties whose values are never returned.
	unstoredMarker = "indexsync:unstored"
	defaultLimit   = 10
)

// documentNamespace seeds the name-based UUIDs of indexed objects.
var documentNamespace = uuid.MustParse("6f2c1a0e-3b7d-4c59-9a51-2d8e4f7b9c10")

// ObjectID returns the Weaviate object id of a document id.
func ObjectID(docID string) string {
	return uuid.NewSHA1(documentNamespace, []byte(docID)).String()
}

// ServerVersion holds parsed Weaviate version info
type ServerVersion struct {
	Version string // e.g., "1.25.0"
	Major   int
	Minor   int
	Patch   int
}

// parseVersion parses a version string like "1.25.0" into ServerVersion
func parseVersion(version string) (*ServerVersion, error) {
	re := regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)`)
	matches := re.FindStringSubmatch(version)
	if len(matches) < 4 {
		return nil, fmt.Errorf("invalid version format: %s", version)
	}

	major, _ := strconv.Atoi(matches[1])
	minor, _ := strconv.Atoi(matches[2])
	patch, _ := strconv.Atoi(matches[3])

	return &ServerVersion{
		Version: version,
		Major:   major,
		Minor:   minor,
		Patch:   patch,
	}, nil
}

// SupportsFeature checks if the server supports a specific feature
func (v *ServerVersion) SupportsFeature(feature string) bool {
	switch feature {
	case "bm25":
		return v.Major > 1 || (v.Major == 1 && v.Minor >= 17)
	case "contains_any":
		return v.Major > 1 || (v.Major == 1 && v.Minor >= 21)
	default:
		return true
	}
}

// Client is the search client facade over one Weaviate class.
type Client struct {
	client    *weaviate.Client
	url       string
	className string

	mu       sync.Mutex
	names    map[string]string              // property name -> document field
	kinds    map[string]models.FieldMapping // document field -> mapping
	unstored map[string]bool                // document fields never returned
	sent     map[string]bool                // types whose mapping was sent
	props    map[string]bool                // class properties, nil until loaded
}

// NewClient creates a client for the index named indexName.
func NewClient(url, indexName string) (*Client, error) {
	cfg := weaviate.Config{
		Host:   url,
		Scheme: "http",
	}

	// Handle URL parsing
	if strings.HasPrefix(url, "http://") {
		cfg.Host = url[7:]
	} else if strings.HasPrefix(url, "https://") {
		cfg.Host = url[8:]
		cfg.Scheme = "https"
	}

	className := ClassName(indexName)
	if className == "" {
		return nil, fmt.Errorf("invalid index name %q", indexName)
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	return &Client{
		client:    client,
		url:       url,
		className: className,
		names:     make(map[string]string),
		kinds:     make(map[string]models.FieldMapping),
		unstored:  make(map[string]bool),
		sent:      make(map[string]bool),
	}, nil
}

// ClassName turns an index name into a valid Weaviate class name.
func ClassName(indexName string) string {
	var b strings.Builder
	upper := true
	for _, r := range indexName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9' && b.Len() > 0:
			if upper {
				b.WriteString(strings.ToUpper(string(r)))
				upper = false
				continue
			}
			b.WriteRune(r)
		default:
			upper = true
		}
	}
	return b.String()
}

// Index returns the Weaviate class backing the index.
func (c *Client) Index() string {
	return c.className
}

// Ping checks if Weaviate is reachable
func (c *Client) Ping(ctx context.Context) error {
	live, err := c.client.Misc().LiveChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Weaviate: %w", err)
	}
	if !live {
		return fmt.Errorf("weaviate is not live")
	}
	return nil
}

// GetServerVersion fetches and parses the Weaviate server version
func (c *Client) GetServerVersion(ctx context.Context) (*ServerVersion, error) {
	meta, err := c.client.Misc().MetaGetter().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get server metadata: %w", err)
	}
	return parseVersion(meta.Version)
}

// IndexExists reports whether the backing class exists.
func (c *Client) IndexExists(ctx context.Context) (bool, error) {
	ok, err := c.client.Schema().ClassExistenceChecker().WithClassName(c.className).Do(ctx)
	if err != nil {
		return false, classify("index exists", err)
	}
	return ok, nil
}

// CreateIndex creates the backing class with the fixed bookkeeping
// properties every document carries.
func (c *Client) CreateIndex(ctx context.Context, settings models.IndexSettings) error {
	vectorizer := settings.Vectorizer
	if vectorizer == "" {
		vectorizer = "none"
	}
	tokenization := settings.Tokenization
	if tokenization == "" {
		tokenization = "field"
	}

	class := &weaviatemodels.Class{
		Class:       c.className,
		Description: settings.Description,
		Vectorizer:  vectorizer,
		Properties: []*weaviatemodels.Property{
			{Name: documentIDProperty, DataType: []string{"text"}, Tokenization: tokenization},
			{Name: propName(models.FieldClassName), DataType: []string{"text"}, Tokenization: tokenization},
			{Name: propName(models.FieldStage), DataType: []string{"text[]"}, Tokenization: tokenization},
			{Name: propName(models.FieldLastIndexed), DataType: []string{"date"}},
		},
	}

	if err := c.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return classify("create index", err)
	}

	c.mu.Lock()
	c.props = nil
	c.mu.Unlock()
	return nil
}

// PutMapping adds the typed properties of a mapping to the class. A
// type's mapping is sent at most once per client; properties that
// already exist are left untouched.
func (c *Client) PutMapping(ctx context.Context, mapping *models.Mapping) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sent[mapping.Type] {
		return nil
	}
	if err := c.loadSchemaLocked(ctx); err != nil {
		return err
	}

	names := make([]string, 0, len(mapping.Properties))
	for name := range mapping.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fm := mapping.Properties[name]
		if fm.Type == "" {
			continue
		}
		pn := propName(name)
		c.names[pn] = name
		c.kinds[name] = fm
		if !fm.Stored() {
			c.unstored[name] = true
		}
		if c.props[pn] {
			continue
		}

		prop := &weaviatemodels.Property{
			Name:     pn,
			DataType: []string{dataType(fm)},
		}
		if !fm.Stored() {
			prop.Description = unstoredMarker
		}
		err := c.client.Schema().PropertyCreator().
			WithClassName(c.className).
			WithProperty(prop).
			Do(ctx)
		if err != nil {
			return classify("put mapping "+mapping.Type, err)
		}
		c.props[pn] = true
	}

	c.sent[mapping.Type] = true
	return nil
}

// loadSchemaLocked reads the class properties once. c.mu must be held.
func (c *Client) loadSchemaLocked(ctx context.Context) error {
	if c.props != nil {
		return nil
	}
	class, err := c.client.Schema().ClassGetter().WithClassName(c.className).Do(ctx)
	if err != nil {
		return classify("get index schema", err)
	}

	c.props = make(map[string]bool)
	for _, p := range class.Properties {
		c.props[p.Name] = true
		if p.Name == documentIDProperty {
			continue
		}
		field := c.fieldNameLocked(p.Name)
		if _, ok := c.kinds[field]; !ok {
			c.kinds[field] = mappingFromDataType(p.DataType)
		}
		if p.Description == unstoredMarker {
			c.unstored[field] = true
		}
	}
	return nil
}

// AddDocument writes one document, replacing any previous version.
func (c *Client) AddDocument(ctx context.Context, typeName string, doc *models.Document) error {
	return c.AddDocuments(ctx, typeName, []*models.Document{doc})
}

// AddDocuments writes documents in one batch. Objects rejected by the
// backend are reported as a *BulkError.
func (c *Client) AddDocuments(ctx context.Context, typeName string, docs []*models.Document) error {
	if len(docs) == 0 {
		return nil
	}

	c.mu.Lock()
	if err := c.loadSchemaLocked(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	objs := make([]*weaviatemodels.Object, 0, len(docs))
	byObject := make(map[string]string, len(docs))
	for _, doc := range docs {
		id := ObjectID(doc.ID)
		byObject[id] = doc.ID
		objs = append(objs, &weaviatemodels.Object{
			Class:      c.className,
			ID:         strfmt.UUID(id),
			Properties: c.toPropertiesLocked(doc),
		})
	}
	c.mu.Unlock()

	resp, err := c.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return classify("add documents "+typeName, err)
	}

	var failed []BulkFailure
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil || len(r.Result.Errors.Error) == 0 {
			continue
		}
		msgs := make([]string, 0, len(r.Result.Errors.Error))
		for _, e := range r.Result.Errors.Error {
			if e != nil {
				msgs = append(msgs, e.Message)
			}
		}
		failed = append(failed, BulkFailure{
			DocumentID: byObject[r.ID.String()],
			Message:    strings.Join(msgs, ", "),
		})
	}
	if len(failed) > 0 {
		return &BulkError{Type: typeName, Total: len(docs), Failed: failed}
	}
	return nil
}

// DeleteDocument deletes one document by id.
func (c *Client) DeleteDocument(ctx context.Context, typeName, docID string) error {
	err := c.client.Data().Deleter().
		WithClassName(c.className).
		WithID(ObjectID(docID)).
		Do(ctx)
	return classify("delete document "+docID, err)
}

// DeleteDocuments deletes documents by id.
func (c *Client) DeleteDocuments(ctx context.Context, typeName string, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	where := filters.Where().
		WithPath([]string{documentIDProperty}).
		WithOperator(filters.ContainsAny).
		WithValueText(docIDs...)

	failed, _, err := c.deleteWhere(ctx, where)
	if err != nil {
		return classify("delete documents "+typeName, err)
	}
	if failed > 0 {
		return fmt.Errorf("delete documents %s: %d of %d deletes failed", typeName, failed, len(docIDs))
	}
	return nil
}

// DeleteByQuery deletes every document matching the query filters and
// returns the number deleted.
func (c *Client) DeleteByQuery(ctx context.Context, query *models.Query) (int, error) {
	c.mu.Lock()
	where := c.buildWhere(query.Filters)
	c.mu.Unlock()
	if where == nil {
		where = filters.Where().
			WithPath([]string{documentIDProperty}).
			WithOperator(filters.Like).
			WithValueText("*")
	}
	failed, deleted, err := c.deleteWhere(ctx, where)
	if err != nil {
		return 0, classify("delete by query", err)
	}
	if failed > 0 {
		return deleted, fmt.Errorf("delete by query: %d deletes failed", failed)
	}
	return deleted, nil
}

func (c *Client) deleteWhere(ctx context.Context, where *filters.WhereBuilder) (failed int, deleted int, err error) {
	resp, err := c.client.Batch().ObjectsBatchDeleter().
		WithClassName(c.className).
		WithWhere(where).
		WithOutput("minimal").
		Do(ctx)
	if err != nil {
		return 0, 0, err
	}
	if resp == nil || resp.Results == nil {
		return 0, 0, nil
	}
	return int(resp.Results.Failed), int(resp.Results.Successful), nil
}

// Refresh confirms the node is ready to serve. Weaviate makes writes
// visible as soon as the write call returns.
func (c *Client) Refresh(ctx context.Context) error {
	ready, err := c.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return classify("refresh", err)
	}
	if !ready {
		return &TransportError{Op: "refresh", Err: errors.New("weaviate is not ready")}
	}
	return nil
}

// Search runs a query and returns hits in backend order.
func (c *Client) Search(ctx context.Context, query *models.Query) (*models.RawResultSet, error) {
	c.mu.Lock()
	if err := c.loadSchemaLocked(ctx); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	fields := c.resultFieldsLocked()
	where := c.buildWhere(query.Filters)
	c.mu.Unlock()

	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	get := c.client.GraphQL().Get().
		WithClassName(c.className).
		WithFields(fields...).
		WithLimit(limit)
	if query.Offset > 0 {
		get = get.WithOffset(query.Offset)
	}
	if where != nil {
		get = get.WithWhere(where)
	}
	if query.Text != "" {
		get = get.WithBM25(c.client.GraphQL().Bm25ArgBuilder().WithQuery(query.Text))
	}

	start := time.Now()
	resp, err := get.Do(ctx)
	if err != nil {
		return nil, classify("search", err)
	}
	took := time.Since(start)
	if len(resp.Errors) > 0 {
		return nil, &RequestError{Op: "search", Err: errors.New(resp.Errors[0].Message)}
	}

	rs := &models.RawResultSet{Took: took}
	rs.Hits = c.parseHits(extractRows(resp.Data, "Get", c.className))

	if query.Text != "" {
		rs.TotalHits = query.Offset + len(rs.Hits)
	} else {
		total, err := c.count(ctx, where)
		if err != nil {
			return nil, err
		}
		rs.TotalHits = total
	}

	if len(query.Facets) > 0 {
		rs.Aggregations = make(map[string][]models.Bucket, len(query.Facets))
		for _, facet := range query.Facets {
			buckets, err := c.aggregate(ctx, facet, where)
			if err != nil {
				return nil, err
			}
			rs.Aggregations[facet] = buckets
		}
	}
	return rs, nil
}

// count returns the number of objects matching where, using an aggregate query
func (c *Client) count(ctx context.Context, where *filters.WhereBuilder) (int, error) {
	agg := c.client.GraphQL().Aggregate().
		WithClassName(c.className).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}})
	if where != nil {
		agg = agg.WithWhere(where)
	}
	result, err := agg.Do(ctx)
	if err != nil {
		return 0, classify("count", err)
	}

	rows := extractRows(result.Data, "Aggregate", c.className)
	if len(rows) == 0 {
		return 0, nil
	}
	return metaCount(rows[0]), nil
}

// aggregate groups matching objects by a field.
func (c *Client) aggregate(ctx context.Context, field string, where *filters.WhereBuilder) ([]models.Bucket, error) {
	agg := c.client.GraphQL().Aggregate().
		WithClassName(c.className).
		WithGroupBy(propName(field)).
		WithFields(
			graphql.Field{Name: "groupedBy", Fields: []graphql.Field{{Name: "value"}}},
			graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}},
		)
	if where != nil {
		agg = agg.WithWhere(where)
	}
	result, err := agg.Do(ctx)
	if err != nil {
		return nil, classify("aggregate "+field, err)
	}

	var buckets []models.Bucket
	for _, row := range extractRows(result.Data, "Aggregate", c.className) {
		grouped, _ := row["groupedBy"].(map[string]interface{})
		if grouped == nil {
			continue
		}
		buckets = append(buckets, models.Bucket{
			Value: fmt.Sprint(grouped["value"]),
			Count: metaCount(row),
		})
	}
	sortBuckets(buckets)
	return buckets, nil
}

func sortBuckets(buckets []models.Bucket) {
	sort.SliceStable(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Value < buckets[j].Value
	})
}

func metaCount(row map[string]interface{}) int {
	meta, ok := row["meta"].(map[string]interface{})
	if !ok {
		return 0
	}
	count, ok := meta["count"].(float64)
	if !ok {
		return 0
	}
	return int(count)
}

// extractRows digs data[root][class] out of a GraphQL response.
func extractRows(data map[string]weaviatemodels.JSONObject, root, className string) []map[string]interface{} {
	section, ok := data[root].(map[string]interface{})
	if !ok {
		return nil
	}
	list, ok := section[className].([]interface{})
	if !ok {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if row, ok := item.(map[string]interface{}); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func (c *Client) parseHits(rows []map[string]interface{}) []models.RawHit {
	c.mu.Lock()
	defer c.mu.Unlock()

	hits := make([]models.RawHit, 0, len(rows))
	for _, row := range rows {
		hit := models.RawHit{Source: make(map[string]any)}

		if add, ok := row["_additional"].(map[string]interface{}); ok {
			hit.ID, _ = add["id"].(string)
			hit.Score = parseScore(add["score"])
		}
		for key, val := range row {
			switch key {
			case "_additional":
				continue
			case documentIDProperty:
				if id, ok := val.(string); ok && id != "" {
					hit.ID = id
				}
				continue
			}
			field := c.fieldNameLocked(key)
			hit.Source[field] = fromProperty(val, c.kinds[field])
		}
		hit.Type, _ = hit.Source[models.FieldClassName].(string)
		hits = append(hits, hit)
	}
	return hits
}

func parseScore(v interface{}) float64 {
	switch s := v.(type) {
	case float64:
		return s
	case string:
		f, _ := strconv.ParseFloat(s, 64)
		return f
	default:
		return 0
	}
}

// resultFieldsLocked lists the stored properties plus id and score.
func (c *Client) resultFieldsLocked() []graphql.Field {
	names := make([]string, 0, len(c.props))
	for pn := range c.props {
		if c.unstored[c.fieldNameLocked(pn)] {
			continue
		}
		names = append(names, pn)
	}
	sort.Strings(names)

	fields := make([]graphql.Field, 0, len(names)+1)
	for _, n := range names {
		fields = append(fields, graphql.Field{Name: n})
	}
	return append(fields, graphql.Field{
		Name:   "_additional",
		Fields: []graphql.Field{{Name: "id"}, {Name: "score"}},
	})
}

// buildWhere combines filters with And. Callers hold c.mu.
func (c *Client) buildWhere(fs []models.Filter) *filters.WhereBuilder {
	operands := make([]*filters.WhereBuilder, 0, len(fs))
	for _, f := range fs {
		operands = append(operands, c.filterClause(f))
	}
	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().WithOperator(filters.And).WithOperands(operands)
	}
}

func (c *Client) filterClause(f models.Filter) *filters.WhereBuilder {
	w := filters.Where().WithPath([]string{propName(f.Field)})
	switch f.Op {
	case models.OpLessThan:
		w = w.WithOperator(filters.LessThan)
	case models.OpContainsAny:
		w = w.WithOperator(filters.ContainsAny)
	default:
		w = w.WithOperator(filters.Equal)
	}

	if c.kinds[f.Field].Type == models.TypeDate {
		if s, ok := f.Value.(string); ok {
			if t, err := time.ParseInLocation(models.DateLayout, s, time.UTC); err == nil {
				return w.WithValueDate(t)
			}
		}
	}

	switch v := f.Value.(type) {
	case string:
		return w.WithValueText(v)
	case []string:
		return w.WithValueText(v...)
	case int:
		return w.WithValueInt(int64(v))
	case int64:
		return w.WithValueInt(v)
	case float64:
		return w.WithValueNumber(v)
	case bool:
		return w.WithValueBoolean(v)
	case time.Time:
		return w.WithValueDate(v)
	default:
		return w.WithValueText(fmt.Sprint(v))
	}
}

// toPropertiesLocked converts document fields to object properties.
func (c *Client) toPropertiesLocked(doc *models.Document) map[string]interface{} {
	props := make(map[string]interface{}, len(doc.Fields)+1)
	for field, val := range doc.Fields {
		pn := propName(field)
		if _, ok := c.names[pn]; !ok {
			c.names[pn] = field
		}
		props[pn] = toProperty(val, c.kinds[field])
	}
	props[documentIDProperty] = doc.ID
	return props
}

func (c *Client) fieldNameLocked(pn string) string {
	if name, ok := c.names[pn]; ok {
		return name
	}
	return upperFirst(pn)
}
