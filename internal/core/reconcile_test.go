package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kilupskalvis/indexsync/internal/models"
	"github.com/kilupskalvis/indexsync/internal/weaviate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReindexAll_RemovesStaleDocuments(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	for _, id := range []string{"1", "2", "3"} {
		f.stale("Article_"+id+"_Draft", "Article", "Draft")
	}
	f.source.put(models.StageDraft, entity("Article", "1", "One"))
	f.source.put(models.StageDraft, entity("Article", "2", "Two"))

	var lines []string
	err := NewReconciler(f.svc, f.source).ReindexAll(ctx, func(msg string) { lines = append(lines, msg) })

	require.NoError(t, err)
	assert.Equal(t, []string{"Article_1_Draft", "Article_2_Draft"}, f.client.DocIDs())
	assert.Equal(t, "2024-01-01 00:00:00", f.client.Docs["Article_1_Draft"][models.FieldLastIndexed])
	assert.Contains(t, strings.Join(lines, "\n"), "Removing 1 stale Article documents")
}

func TestReindexAll_BothStages(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.source.put(models.StageDraft, entity("Article", "1", "Draft title"))
	f.source.put(models.StagePublished, entity("Article", "1", "Live title"))
	f.source.put(models.StageDraft, entity("Article", "2", "Unpublished"))
	f.source.put(models.StageDraft, entity("File", "9", "Report"))

	require.NoError(t, NewReconciler(f.svc, f.source).ReindexAll(ctx, nil))

	assert.Equal(t, []string{"Article_1_Draft", "Article_1_Published", "Article_2_Draft", "File_9"}, f.client.DocIDs())
	assert.Equal(t, "Live title", f.client.Docs["Article_1_Published"][models.FieldTitle])
	assert.Equal(t, []string{"Draft", "Published"}, f.client.Docs["File_9"][models.FieldStage])
}

func TestReindexAll_PagesThroughLargeTypes(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	for i := 0; i < 1500; i++ {
		f.source.put(models.StageDraft, entity("Page", fmt.Sprint(i), "P"))
	}

	require.NoError(t, NewReconciler(f.svc, f.source).ReindexAll(ctx, nil))

	assert.Len(t, f.client.DocIDs(), 1500)
	assert.Equal(t, 2, f.client.CallCount("bulk"))
}

func TestReindexAll_SweepRequeriesUntilEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	for i := 0; i < 2500; i++ {
		f.stale(fmt.Sprintf("Page_%d_Draft", i), "Page", "Draft")
	}
	f.stale("Article_1_Draft", "Article", "Draft")

	require.NoError(t, NewReconciler(f.svc, f.source).ReindexAll(ctx, nil))

	assert.Empty(t, f.client.DocIDs())
	assert.Equal(t, 4, f.client.CallCount("deletes"))
}

func TestReindexAll_SweepKeepsOtherTypes(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.stale("Legacy_1", "Legacy")

	require.NoError(t, NewReconciler(f.svc, f.source).ReindexAll(ctx, nil))
	assert.Equal(t, []string{"Legacy_1"}, f.client.DocIDs())
}

func TestReindexAll_SweepStalls(t *testing.T) {
	f := newFixture()
	f.stale("Article_3_Draft", "Article", "Draft")
	f.client.DeleteNoop = true

	err := NewReconciler(f.svc, f.source).ReindexAll(context.Background(), nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSweepStalled))
	assert.Equal(t, 1, f.client.CallCount("deletes"))
}

func TestReindexAll_SweepDeleteFailureAbortsType(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.stale("Article_3_Draft", "Article", "Draft")
	f.source.put(models.StageDraft, entity("Page", "1", "P"))
	f.client.FailOn["deletes"] = &weaviate.RequestError{Op: "batch delete", Status: 500, Err: errors.New("boom")}

	err := NewReconciler(f.svc, f.source).ReindexAll(ctx, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep Article")
	assert.Contains(t, f.client.DocIDs(), "Page_1_Draft")
}

func TestReindexAll_DisconnectedSkipsSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.stale("Article_3_Draft", "Article", "Draft")
	f.source.put(models.StageDraft, entity("Article", "1", "One"))
	f.client.FailOn["bulk"] = &weaviate.TransportError{Op: "batch", Err: errors.New("down")}

	err := NewReconciler(f.svc, f.source).ReindexAll(ctx, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDisconnected))
	assert.Equal(t, []string{"Article_3_Draft"}, f.client.DocIDs())
	assert.Zero(t, f.client.CallCount("deletes"))
}

func TestReindexAll_BulkFailureSkipsSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.stale("Article_3_Draft", "Article", "Draft")
	f.source.put(models.StageDraft, entity("Article", "1", "One"))
	f.client.BulkFailIDs["Article_1_Draft"] = "rejected"

	err := NewReconciler(f.svc, f.source).ReindexAll(ctx, nil)

	require.Error(t, err)
	assert.True(t, weaviate.IsBulk(err))
	assert.Contains(t, f.client.DocIDs(), "Article_3_Draft")
}

func TestReindexAll_Disabled(t *testing.T) {
	f := newFixture()
	f.svc.enabled = false
	f.stale("Article_3_Draft", "Article", "Draft")

	require.NoError(t, NewReconciler(f.svc, f.source).ReindexAll(context.Background(), nil))
	assert.Empty(t, f.client.Calls)
}

func TestReindexType_DisabledKeepsDocuments(t *testing.T) {
	f := newFixture()
	f.svc.enabled = false
	f.stale("Article_1_Draft", "Article", "Draft")
	f.stale("Article_2_Draft", "Article", "Draft")
	f.source.put(models.StageDraft, entity("Article", "1", "A"))

	spec, ok := testRegistry().Spec("Article")
	require.True(t, ok)
	require.NoError(t, NewReconciler(f.svc, f.source).ReindexType(context.Background(), spec, nil))
	assert.Equal(t, []string{"Article_1_Draft", "Article_2_Draft"}, f.client.DocIDs())
	assert.Empty(t, f.client.Calls)
}

func TestReindexItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	root := entity("Article", "1", "Root")
	child := entity("Article", "2", "Child")
	child.fields[models.FieldParentID] = "1"
	grandchild := entity("Article", "3", "Grandchild")
	grandchild.fields[models.FieldParentID] = "2"
	for _, e := range []*testEntity{root, child, grandchild} {
		f.source.put(models.StageDraft, e)
	}
	f.source.put(models.StagePublished, entity("Article", "1", "Root"))

	r := NewReconciler(f.svc, f.source)
	require.NoError(t, r.ReindexItems(ctx, []string{"1"}, "Page", false, nil))
	assert.Equal(t, []string{"Article_1_Draft", "Article_1_Published"}, f.client.DocIDs())

	require.NoError(t, r.ReindexItems(ctx, []string{"1", "404"}, "Page", true, nil))
	assert.Equal(t, []string{"Article_1_Draft", "Article_1_Published", "Article_2_Draft", "Article_3_Draft"}, f.client.DocIDs())
	assert.Equal(t, []string{"2", "1"}, f.client.Docs["Article_3_Draft"][models.FieldParentsHierarchy])
}

func TestReindexItems_UnknownType(t *testing.T) {
	f := newFixture()
	err := NewReconciler(f.svc, f.source).ReindexItems(context.Background(), []string{"1"}, "Nope", false, nil)
	assert.Error(t, err)
}
