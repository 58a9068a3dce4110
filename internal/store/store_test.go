package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/kilupskalvis/indexsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *models.Registry {
	return models.NewRegistry(
		models.TypeSpec{Name: "Page", Versioned: true, Hierarchical: true, Searchable: true},
		models.TypeSpec{Name: "File", Searchable: true},
	)
}

// newTestStore creates a new store in a temp directory for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "content.db")
	st, err := New(dbPath, testRegistry())
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	t.Cleanup(func() { st.Close() })
	return st
}

func page(id, title string) *Record {
	return &Record{Type: "Page", ID: id, Data: map[string]any{"Title": title}}
}

func TestStore_Initialize(t *testing.T) {
	st := newTestStore(t)

	version, err := st.getSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)

	// Initializing twice is harmless
	assert.NoError(t, st.Initialize())
}

func TestStore_SchemaHasViewerGroups(t *testing.T) {
	st := newTestStore(t)

	var cols int
	err := st.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info('records') WHERE name = 'viewer_groups'
	`).Scan(&cols)
	require.NoError(t, err)
	assert.Equal(t, 1, cols)
}

func TestStore_RejectsNewerSchema(t *testing.T) {
	st := newTestStore(t)

	_, err := st.db.Exec("INSERT INTO store_schema_version (version) VALUES (?)", currentSchemaVersion+1)
	require.NoError(t, err)
	assert.Error(t, st.Initialize())
}

func TestStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	rec := page("1", "Home")
	rec.Sort = 3
	require.NoError(t, st.Save(ctx, rec))

	got, err := st.Get(ctx, "Page", "1", models.StageDraft)
	require.NoError(t, err)
	assert.Equal(t, "Home", got.Title())
	assert.Equal(t, 3, got.Sort)
	assert.Equal(t, models.StageDraft, got.Stage)
	assert.False(t, got.Created.IsZero())

	v, ok := got.Get(models.FieldCreated)
	assert.True(t, ok)
	assert.Len(t, v, len(models.DateLayout))

	_, err = st.Get(ctx, "Page", "1", models.StagePublished)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_SaveKeepsCreated(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.Save(ctx, page("1", "Home")))
	first, err := st.Get(ctx, "Page", "1", models.StageDraft)
	require.NoError(t, err)

	require.NoError(t, st.Save(ctx, page("1", "Home v2")))
	second, err := st.Get(ctx, "Page", "1", models.StageDraft)
	require.NoError(t, err)

	assert.Equal(t, first.Created, second.Created)
	assert.Equal(t, "Home v2", second.Title())
}

func TestStore_PublishUnpublish(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.Save(ctx, page("1", "Home")))

	live, err := st.Publish(ctx, "Page", "1")
	require.NoError(t, err)
	assert.Equal(t, models.StagePublished, live.Stage)

	require.NoError(t, st.Save(ctx, page("1", "Draft edit")))
	live, err = st.Get(ctx, "Page", "1", models.StagePublished)
	require.NoError(t, err)
	assert.Equal(t, "Home", live.Title())

	_, err = st.Unpublish(ctx, "Page", "1")
	require.NoError(t, err)
	_, err = st.Get(ctx, "Page", "1", models.StagePublished)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = st.Publish(ctx, "Page", "404")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_UnversionedSharesRow(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.Save(ctx, &Record{Type: "File", ID: "7", Data: map[string]any{"Name": "report.pdf"}}))

	e, ok, err := st.Find(ctx, "File", "7", models.StagePublished)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "7", e.EntityID())

	n, err := st.Count(ctx, "File", models.StagePublished)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = st.Unpublish(ctx, "File", "7")
	assert.Error(t, err)

	removed, err := st.Delete(ctx, "File", "7", models.StagePublished)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", removed.Title())
	_, ok, err = st.Find(ctx, "File", "7", models.StageDraft)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ListAndCount(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	for i := 0; i < 5; i++ {
		rec := page(fmt.Sprint(i), fmt.Sprintf("Page %d", i))
		rec.Sort = 5 - i
		require.NoError(t, st.Save(ctx, rec))
	}

	n, err := st.Count(ctx, "Page", models.StageDraft)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	items, err := st.List(ctx, "Page", models.StageDraft, 1, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "3", items[0].EntityID())
	assert.Equal(t, "2", items[1].EntityID())

	live, err := st.List(ctx, "Page", models.StagePublished, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestStore_ChildrenAndParents(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	root := page("1", "Root")
	child := page("2", "Child")
	child.ParentID = "1"
	file := &Record{Type: "File", ID: "3", ParentID: "1", Data: map[string]any{}}
	for _, r := range []*Record{root, child, file} {
		require.NoError(t, st.Save(ctx, r))
	}

	children, err := st.Children(ctx, "1", models.StageDraft)
	require.NoError(t, err)
	require.Len(t, children, 2)

	parent, ok := st.ParentOf(ctx, "Page", "2")
	assert.True(t, ok)
	assert.Equal(t, "1", parent)

	_, ok = st.ParentOf(ctx, "Page", "1")
	assert.False(t, ok)

	v, ok := children[0].Get(models.FieldParentID)
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestRecord_CanView(t *testing.T) {
	ctx := context.Background()
	open := page("1", "Open")
	assert.True(t, open.CanView(ctx))

	restricted := page("2", "Staff only")
	restricted.ViewerGroups = []string{"staff"}
	assert.False(t, restricted.CanView(ctx))
	assert.False(t, restricted.CanView(models.WithViewer(ctx, models.Viewer{Name: "guest"})))
	assert.True(t, restricted.CanView(models.WithViewer(ctx, models.Viewer{Name: "ann", Groups: []string{"staff"}})))
	assert.True(t, restricted.CanView(models.WithViewer(ctx, models.Viewer{Name: "root", Admin: true})))
}

func TestStore_ViewerGroupsRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	rec := page("1", "Staff")
	rec.ViewerGroups = []string{"staff", "editors"}
	require.NoError(t, st.Save(ctx, rec))

	got, err := st.Get(ctx, "Page", "1", models.StageDraft)
	require.NoError(t, err)
	assert.Equal(t, []string{"staff", "editors"}, got.ViewerGroups)

	m := got.ToMap()
	assert.Equal(t, "Page", m[models.FieldClassName])
	assert.Equal(t, "Staff", m["Title"])
}
