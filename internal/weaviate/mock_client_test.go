package weaviate

import (
	"context"
	"testing"

	"github.com/kilupskalvis/indexsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(m *MockClient, id, class string, fields map[string]any) {
	doc := models.NewDocument(id)
	doc.Fields[models.FieldClassName] = class
	for k, v := range fields {
		doc.Fields[k] = v
	}
	m.Put(doc)
}

func TestMockClient_SearchFilters(t *testing.T) {
	ctx := context.Background()
	m := NewMockClient()
	seed(m, "Page_1_Draft", "Page", map[string]any{
		models.FieldStage: []string{"Draft"}, models.FieldTitle: "Home", models.FieldLastIndexed: "2024-01-01 10:00:00",
	})
	seed(m, "Page_2_Draft", "Page", map[string]any{
		models.FieldStage: []string{"Draft"}, models.FieldTitle: "About", models.FieldLastIndexed: "2024-01-02 10:00:00",
	})
	seed(m, "Page_2_Published", "Page", map[string]any{
		models.FieldStage: []string{"Published"}, models.FieldTitle: "About", models.FieldLastIndexed: "2024-01-02 10:00:00",
	})

	rs, err := m.Search(ctx, &models.Query{Filters: []models.Filter{
		{Field: models.FieldStage, Op: models.OpEqual, Value: "Draft"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, rs.TotalHits)
	assert.Equal(t, "Page_1_Draft", rs.Hits[0].ID)
	assert.Equal(t, "Page", rs.Hits[0].Type)

	rs, err = m.Search(ctx, &models.Query{Filters: []models.Filter{
		{Field: models.FieldLastIndexed, Op: models.OpLessThan, Value: "2024-01-02 00:00:00"},
	}})
	require.NoError(t, err)
	require.Len(t, rs.Hits, 1)
	assert.Equal(t, "Page_1_Draft", rs.Hits[0].ID)

	rs, err = m.Search(ctx, &models.Query{Text: "about", Facets: []string{models.FieldStage}})
	require.NoError(t, err)
	assert.Equal(t, 2, rs.TotalHits)
	assert.Equal(t, []models.Bucket{{Value: "Draft", Count: 1}, {Value: "Published", Count: 1}},
		rs.Aggregations[models.FieldStage])
}

func TestMockClient_OffsetLimit(t *testing.T) {
	m := NewMockClient()
	for _, id := range []string{"a", "b", "c", "d"} {
		seed(m, id, "Page", nil)
	}

	rs, err := m.Search(context.Background(), &models.Query{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, rs.TotalHits)
	require.Len(t, rs.Hits, 2)
	assert.Equal(t, "b", rs.Hits[0].ID)
	assert.Equal(t, "c", rs.Hits[1].ID)
}

func TestMockClient_BulkFailures(t *testing.T) {
	m := NewMockClient()
	m.BulkFailIDs["Page_2_Draft"] = "invalid"

	err := m.AddDocuments(context.Background(), "Page", []*models.Document{
		models.NewDocument("Page_1_Draft"), models.NewDocument("Page_2_Draft"),
	})
	require.Error(t, err)
	assert.True(t, IsBulk(err))
	assert.Equal(t, []string{"Page_1_Draft"}, m.DocIDs())
}

func TestMockClient_UnstoredOmitted(t *testing.T) {
	ctx := context.Background()
	m := NewMockClient()
	store := false
	mapping := models.NewMapping("Page")
	mapping.Properties[models.FieldContent] = models.FieldMapping{Type: models.TypeString, Store: &store}
	require.NoError(t, m.PutMapping(ctx, mapping))
	seed(m, "Page_1_Draft", "Page", map[string]any{models.FieldContent: "secret body"})

	rs, err := m.Search(ctx, &models.Query{Text: "secret"})
	require.NoError(t, err)
	require.Len(t, rs.Hits, 1)
	assert.NotContains(t, rs.Hits[0].Source, models.FieldContent)
}

func TestMockClient_DeleteMissing(t *testing.T) {
	m := NewMockClient()
	err := m.DeleteDocument(context.Background(), "Page", "Page_9_Draft")
	require.Error(t, err)
	assert.False(t, IsTransport(err))
}
