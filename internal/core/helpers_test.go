package core

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/kilupskalvis/indexsync/internal/mapping"
	"github.com/kilupskalvis/indexsync/internal/models"
	"github.com/kilupskalvis/indexsync/internal/weaviate"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type testEntity struct {
	typ    string
	id     string
	fields map[string]any
}

func (e *testEntity) EntityType() string { return e.typ }
func (e *testEntity) EntityID() string   { return e.id }
func (e *testEntity) Get(field string) (any, bool) {
	if field == models.FieldID {
		return e.id, true
	}
	v, ok := e.fields[field]
	return v, ok
}

func entity(typ, id, title string) *testEntity {
	return &testEntity{typ: typ, id: id, fields: map[string]any{models.FieldTitle: title}}
}

// privateEntity is only visible to admins.
type privateEntity struct{ testEntity }

func (p *privateEntity) CanView(ctx context.Context) bool {
	v, ok := models.ViewerFrom(ctx)
	return ok && v.Admin
}

// fakeSource is an in-memory content store keyed by stage.
type fakeSource struct {
	records map[models.Stage]map[string]*testEntity
	order   map[models.Stage][]string
	// shared types keep one row for both stages
	shared  map[string]bool
	// views replaces what Find returns for a key
	views   map[string]mapping.Entity
	findErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		records: map[models.Stage]map[string]*testEntity{},
		order:   map[models.Stage][]string{},
		shared:  map[string]bool{"File": true},
		views:   map[string]mapping.Entity{},
	}
}

func key(typ, id string) string { return typ + "/" + id }

func (f *fakeSource) put(stage models.Stage, e *testEntity) {
	if f.records[stage] == nil {
		f.records[stage] = map[string]*testEntity{}
	}
	k := key(e.typ, e.id)
	if _, ok := f.records[stage][k]; !ok {
		f.order[stage] = append(f.order[stage], k)
	}
	f.records[stage][k] = e
}

func (f *fakeSource) remove(stage models.Stage, typ, id string) {
	k := key(typ, id)
	delete(f.records[stage], k)
	kept := f.order[stage][:0]
	for _, o := range f.order[stage] {
		if o != k {
			kept = append(kept, o)
		}
	}
	f.order[stage] = kept
}

func (f *fakeSource) Find(ctx context.Context, typeName, id string, stage models.Stage) (mapping.Entity, bool, error) {
	if f.findErr != nil {
		return nil, false, f.findErr
	}
	e, ok := f.records[stage][key(typeName, id)]
	if !ok && f.shared[typeName] {
		e, ok = f.records[models.StageDraft][key(typeName, id)]
	}
	if !ok {
		return nil, false, nil
	}
	if v, ok := f.views[key(typeName, id)]; ok {
		return v, true, nil
	}
	return e, true, nil
}

func (f *fakeSource) ofType(typeName string, stage models.Stage) []*testEntity {
	var out []*testEntity
	for _, k := range f.order[stage] {
		if e := f.records[stage][k]; e.typ == typeName {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeSource) Count(ctx context.Context, typeName string, stage models.Stage) (int, error) {
	return len(f.ofType(typeName, stage)), nil
}

func (f *fakeSource) List(ctx context.Context, typeName string, stage models.Stage, offset, limit int) ([]mapping.Entity, error) {
	all := f.ofType(typeName, stage)
	var out []mapping.Entity
	for i := offset; i < len(all) && i < offset+limit; i++ {
		out = append(out, all[i])
	}
	return out, nil
}

func (f *fakeSource) Children(ctx context.Context, parentID string, stage models.Stage) ([]mapping.Entity, error) {
	var out []mapping.Entity
	for _, k := range f.order[stage] {
		e := f.records[stage][k]
		if p, ok := e.fields[models.FieldParentID]; ok && p == parentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func testRegistry() *models.Registry {
	return models.NewRegistry(
		models.TypeSpec{
			Name:         "Article",
			Ancestry:     []string{"Page"},
			Versioned:    true,
			Hierarchical: true,
			Searchable:   true,
			Fields: []models.FieldSpec{
				{Name: "Title", Kind: "Varchar(255)"},
				{Name: "Content", Kind: "HTMLText"},
			},
		},
		models.TypeSpec{
			Name:       "Page",
			Versioned:  true,
			Searchable: true,
			Fields:     []models.FieldSpec{{Name: "Title", Kind: "Varchar(255)"}},
		},
		models.TypeSpec{
			Name:       "File",
			Searchable: true,
			Fields:     []models.FieldSpec{{Name: "Title", Kind: "Varchar(255)"}},
		},
	)
}

type fixture struct {
	client *weaviate.MockClient
	source *fakeSource
	svc    *Service
	logs   *bytes.Buffer
}

func newFixture() *fixture {
	src := newFakeSource()
	client := weaviate.NewMockClient()
	logs := &bytes.Buffer{}
	mapper := mapping.New(testRegistry(),
		mapping.WithClock(func() time.Time { return fixedNow }),
		mapping.WithParentLookup(mapping.ParentLookupFunc(func(ctx context.Context, typeName, id string) (string, bool) {
			e, ok := src.records[models.StageDraft][key(typeName, id)]
			if !ok {
				return "", false
			}
			p, ok := e.fields[models.FieldParentID].(string)
			return p, ok
		})),
	)
	svc := NewService(client, mapper, Options{
		Enabled:  true,
		Settings: models.IndexSettings{Name: "main"},
		Logger:   slog.New(slog.NewTextHandler(logs, nil)),
		Resolver: src,
	})
	return &fixture{client: client, source: src, svc: svc, logs: logs}
}

// stale seeds a document last indexed before fixedNow.
func (f *fixture) stale(docID, typ string, stages ...string) {
	doc := models.NewDocument(docID)
	doc.Fields[models.FieldClassName] = typ
	doc.Fields[models.FieldLastIndexed] = "2023-12-31 00:00:00"
	doc.Fields[models.FieldStage] = stages
	f.client.Put(doc)
}

func idsOf(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.EntityID())
	}
	return out
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
