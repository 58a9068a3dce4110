package core

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/indexsync/internal/mapping"
	"github.com/kilupskalvis/indexsync/internal/models"
)

// Enqueuer defers index jobs to a worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, job models.IndexJob) error
}

// Hooks reacts to content lifecycle events. Writes and publishes are queued
// when a queue is configured and indexed directly otherwise.
type Hooks struct {
	svc      *Service
	resolver Resolver
	queue    Enqueuer
}

// NewHooks creates lifecycle hooks. queue may be nil.
func NewHooks(svc *Service, resolver Resolver, queue Enqueuer) *Hooks {
	return &Hooks{svc: svc, resolver: resolver, queue: queue}
}

// OnAfterWrite indexes a saved record in the active stage.
func (h *Hooks) OnAfterWrite(ctx context.Context, e mapping.Entity) {
	if !h.svc.Enabled() {
		return
	}
	h.index(ctx, e, writeStage(ctx))
}

// OnAfterDelete removes a deleted record from the active stage.
func (h *Hooks) OnAfterDelete(ctx context.Context, e mapping.Entity) bool {
	if !h.svc.Enabled() {
		return false
	}
	return h.svc.Remove(ctx, e, writeStage(ctx))
}

// OnAfterPublish indexes the published version of a record.
func (h *Hooks) OnAfterPublish(ctx context.Context, e mapping.Entity) {
	if !h.svc.Enabled() {
		return
	}
	h.index(ctx, e, models.StagePublished)
}

// OnAfterUnpublish drops the published document and refreshes the draft.
func (h *Hooks) OnAfterUnpublish(ctx context.Context, e mapping.Entity) {
	if !h.svc.Enabled() {
		return
	}
	h.svc.Remove(ctx, e, models.StagePublished)
	h.index(ctx, e, models.StageDraft)
}

func (h *Hooks) index(ctx context.Context, e mapping.Entity, stage models.Stage) {
	if h.queue == nil {
		h.svc.Index(ctx, e, stage)
		return
	}
	job := models.IndexJob{Type: e.EntityType(), ID: e.EntityID(), Stage: stage}
	if err := h.queue.Enqueue(ctx, job); err != nil {
		h.svc.logger.Warn("could not queue index job, indexing now",
			"type", job.Type, "id", job.ID, "stage", stage, "error", err)
		h.svc.Index(ctx, e, stage)
	}
}

// ProcessJob runs a queued job against the current state of its record.
// A record deleted since the job was queued is skipped. Jobs fail while the
// engine is disabled or disconnected so they are not acked as done.
func (h *Hooks) ProcessJob(ctx context.Context, job models.IndexJob) error {
	if !h.svc.Enabled() {
		return ErrDisabled
	}
	if !h.svc.Connected() {
		return ErrDisconnected
	}
	stage := job.Stage
	if stage == "" {
		stage = models.StageDraft
	}
	e, ok, err := h.resolver.Find(ctx, job.Type, job.ID, stage)
	if err != nil {
		return fmt.Errorf("resolve %s #%s: %w", job.Type, job.ID, err)
	}
	if !ok {
		h.svc.logger.Debug("skipping index job for missing record", "type", job.Type, "id", job.ID, "stage", stage)
		return nil
	}
	h.svc.Index(ctx, e, stage)
	if !h.svc.Connected() {
		return fmt.Errorf("index %s #%s: %w", job.Type, job.ID, ErrDisconnected)
	}
	return nil
}

// JobTitle describes a job for operators.
func (h *Hooks) JobTitle(ctx context.Context, job models.IndexJob) string {
	stage := job.Stage
	if stage == "" {
		stage = models.StageDraft
	}
	title := job.Type + " #" + job.ID
	if e, ok, err := h.resolver.Find(ctx, job.Type, job.ID, stage); err == nil && ok {
		if v, ok := e.Get(models.FieldTitle); ok && fmt.Sprint(v) != "" {
			title = fmt.Sprint(v)
		}
	}
	return fmt.Sprintf("Indexing %q in stage %s", title, stage)
}
