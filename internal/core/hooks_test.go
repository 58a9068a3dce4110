package core

import (
	"context"
	"errors"
	"testing"

	"github.com/kilupskalvis/indexsync/internal/models"
	"github.com/kilupskalvis/indexsync/internal/weaviate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memQueue struct {
	jobs []models.IndexJob
	err  error
}

func (q *memQueue) Enqueue(ctx context.Context, job models.IndexJob) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func TestHooks_WriteIndexesDirectlyWithoutQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	h := NewHooks(f.svc, f.source, nil)

	h.OnAfterWrite(ctx, entity("Article", "1", "A"))
	h.OnAfterWrite(WithStage(ctx, models.StagePublished), entity("Article", "2", "B"))

	assert.Equal(t, []string{"Article_1_Draft", "Article_2_Published"}, f.client.DocIDs())
}

func TestHooks_WriteQueues(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	q := &memQueue{}
	h := NewHooks(f.svc, f.source, q)

	h.OnAfterWrite(ctx, entity("Article", "1", "A"))
	h.OnAfterPublish(ctx, entity("Article", "1", "A"))

	assert.Empty(t, f.client.DocIDs())
	assert.Equal(t, []models.IndexJob{
		{Type: "Article", ID: "1", Stage: models.StageDraft},
		{Type: "Article", ID: "1", Stage: models.StagePublished},
	}, q.jobs)
}

func TestHooks_QueueFailureFallsBack(t *testing.T) {
	f := newFixture()
	h := NewHooks(f.svc, f.source, &memQueue{err: errors.New("queue closed")})

	h.OnAfterWrite(context.Background(), entity("Article", "1", "A"))

	assert.Equal(t, []string{"Article_1_Draft"}, f.client.DocIDs())
	assert.Contains(t, f.logs.String(), "queue closed")
}

func TestHooks_DeleteAndUnpublish(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	h := NewHooks(f.svc, f.source, nil)
	e := entity("Article", "1", "A")

	h.OnAfterWrite(ctx, e)
	h.OnAfterPublish(ctx, e)
	require.Len(t, f.client.DocIDs(), 2)

	h.OnAfterUnpublish(ctx, e)
	assert.Equal(t, []string{"Article_1_Draft"}, f.client.DocIDs())

	assert.True(t, h.OnAfterDelete(ctx, e))
	assert.Empty(t, f.client.DocIDs())
}

func TestHooks_Disabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.svc.enabled = false
	q := &memQueue{}
	h := NewHooks(f.svc, f.source, q)
	e := entity("Article", "1", "A")

	h.OnAfterWrite(ctx, e)
	h.OnAfterPublish(ctx, e)
	h.OnAfterUnpublish(ctx, e)
	assert.False(t, h.OnAfterDelete(ctx, e))

	assert.Empty(t, q.jobs)
	assert.Empty(t, f.client.Calls)
}

func TestHooks_ProcessJobReresolves(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	h := NewHooks(f.svc, f.source, nil)
	f.source.put(models.StagePublished, entity("Article", "1", "Current title"))

	job := models.IndexJob{Type: "Article", ID: "1", Stage: models.StagePublished}
	require.NoError(t, h.ProcessJob(ctx, job))
	assert.Equal(t, "Current title", f.client.Docs["Article_1_Published"][models.FieldTitle])
	assert.Equal(t, `Indexing "Current title" in stage Published`, h.JobTitle(ctx, job))

	f.source.remove(models.StagePublished, "Article", "1")
	require.NoError(t, h.ProcessJob(ctx, models.IndexJob{Type: "Article", ID: "1", Stage: models.StagePublished}))
	assert.Equal(t, `Indexing "Article #1" in stage Published`, h.JobTitle(ctx, job))

	f.source.findErr = errors.New("db gone")
	assert.Error(t, h.ProcessJob(ctx, job))
}

func TestHooks_ProcessJobFailsWhileDisconnected(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	h := NewHooks(f.svc, f.source, nil)
	f.source.put(models.StageDraft, entity("Article", "1", "A"))
	f.source.put(models.StageDraft, entity("Article", "2", "B"))

	f.client.FailOn["add"] = &weaviate.TransportError{Op: "add", Err: errors.New("connection refused")}
	err := h.ProcessJob(ctx, models.IndexJob{Type: "Article", ID: "1", Stage: models.StageDraft})
	assert.ErrorIs(t, err, ErrDisconnected)

	// The backend is back, but this engine stays disconnected for the run.
	delete(f.client.FailOn, "add")
	err = h.ProcessJob(ctx, models.IndexJob{Type: "Article", ID: "2", Stage: models.StageDraft})
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Empty(t, f.client.DocIDs())
}

func TestHooks_ProcessJobFailsWhileDisabled(t *testing.T) {
	f := newFixture()
	f.svc.enabled = false
	h := NewHooks(f.svc, f.source, nil)
	f.source.put(models.StageDraft, entity("Article", "1", "A"))

	err := h.ProcessJob(context.Background(), models.IndexJob{Type: "Article", ID: "1"})
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Empty(t, f.client.Calls)
}
