package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/kilupskalvis/indexsync/internal/mapping"
	"github.com/kilupskalvis/indexsync/internal/metrics"
	"github.com/kilupskalvis/indexsync/internal/models"
)

const (
	reindexPageSize = 1000
	sweepPageSize   = 1000
	maxSweepBatches = 10000
)

// ErrSweepStalled is returned when stale documents survive their deletion.
var ErrSweepStalled = errors.New("staleness sweep made no progress")

// Resolver looks up a live record. A missing record is reported with
// ok=false rather than an error.
type Resolver interface {
	Find(ctx context.Context, typeName, id string, stage models.Stage) (e mapping.Entity, ok bool, err error)
}

// ContentSource is the content store as seen by the reconciler.
type ContentSource interface {
	Resolver
	Count(ctx context.Context, typeName string, stage models.Stage) (int, error)
	List(ctx context.Context, typeName string, stage models.Stage, offset, limit int) ([]mapping.Entity, error)
	Children(ctx context.Context, parentID string, stage models.Stage) ([]mapping.Entity, error)
}

// ProgressFunc receives one human-readable line per reconciliation step.
type ProgressFunc func(msg string)

// Reconciler rebuilds the index from the content store.
type Reconciler struct {
	svc    *Service
	source ContentSource
}

// NewReconciler creates a reconciler indexing through svc.
func NewReconciler(svc *Service, source ContentSource) *Reconciler {
	return &Reconciler{svc: svc, source: source}
}

// ReindexAll reindexes every indexed type. A failing type does not stop the
// others; all failures are returned joined.
func (r *Reconciler) ReindexAll(ctx context.Context, progress ProgressFunc) error {
	if progress == nil {
		progress = func(string) {}
	}
	if !r.svc.Enabled() {
		progress("Search indexing is disabled, nothing to do")
		return nil
	}

	var errs []error
	for _, spec := range r.svc.Mapper().Registry().Indexed() {
		if err := r.ReindexType(ctx, spec, progress); err != nil {
			r.svc.logger.Error("reindex failed", "type", spec.Name, "error", err)
			progress(fmt.Sprintf("Reindex of %s failed: %v", spec.Name, err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReindexType indexes every record of one type, then deletes the type's
// documents that were not rewritten during this run.
func (r *Reconciler) ReindexType(ctx context.Context, spec models.TypeSpec, progress ProgressFunc) error {
	if progress == nil {
		progress = func(string) {}
	}
	// Nothing is rewritten while disabled, so a sweep would delete everything.
	if !r.svc.Enabled() {
		progress(fmt.Sprintf("Search indexing is disabled, not reindexing %s", spec.Name))
		return nil
	}
	started := time.Now()
	defer func() {
		metrics.ReindexDuration.WithLabelValues(spec.Name).Observe(time.Since(started).Seconds())
	}()

	// Anything not rewritten after t0 is stale.
	t0 := r.svc.Mapper().Timestamp()
	progress(fmt.Sprintf("Indexing %s", spec.Name))

	total, err := r.source.Count(ctx, spec.Name, models.StageDraft)
	if err != nil {
		return fmt.Errorf("count %s: %w", spec.Name, err)
	}
	if spec.Versioned {
		live, err := r.source.Count(ctx, spec.Name, models.StagePublished)
		if err != nil {
			return fmt.Errorf("count published %s: %w", spec.Name, err)
		}
		total = max(total, live)
	}

	for offset := 0; offset < total; offset += reindexPageSize {
		if err := r.indexPage(ctx, spec, offset, progress); err != nil {
			return err
		}
	}

	if !r.svc.Connected() {
		return fmt.Errorf("reindex %s: %w", spec.Name, ErrDisconnected)
	}
	return r.sweep(ctx, spec.Name, t0, progress)
}

func (r *Reconciler) indexPage(ctx context.Context, spec models.TypeSpec, offset int, progress ProgressFunc) error {
	stages := []models.Stage{models.StageDraft}
	if spec.Versioned {
		stages = append(stages, models.StagePublished)
	}

	r.svc.StartBulk()
	for _, stage := range stages {
		items, err := r.source.List(ctx, spec.Name, stage, offset, reindexPageSize)
		if err != nil {
			// Close the cycle so the next one starts clean.
			_ = r.svc.EndBulk(ctx)
			return fmt.Errorf("list %s in %s: %w", spec.Name, stage, err)
		}
		for _, e := range items {
			progress(fmt.Sprintf("  %s #%s (%s)", spec.Name, e.EntityID(), stage))
			r.svc.Index(ctx, e, stage)
		}
	}
	if err := r.svc.EndBulk(ctx); err != nil {
		return fmt.Errorf("reindex %s: %w", spec.Name, err)
	}
	return nil
}

// sweep deletes documents of a type last indexed before t0. Deleted
// documents drop out of the query, so it is re-run rather than paged.
func (r *Reconciler) sweep(ctx context.Context, typeName, t0 string, progress ProgressFunc) error {
	client := r.svc.Client()
	query := &models.Query{
		Filters: []models.Filter{
			{Field: models.FieldClassName, Op: models.OpEqual, Value: typeName},
			{Field: models.FieldLastIndexed, Op: models.OpLessThan, Value: t0},
		},
		Limit: sweepPageSize,
	}

	var previous []string
	removed := 0
	for batch := 0; ; batch++ {
		if batch >= maxSweepBatches {
			return fmt.Errorf("sweep %s: %w after %d batches", typeName, ErrSweepStalled, batch)
		}

		rs, err := client.Search(ctx, query)
		if err != nil {
			return fmt.Errorf("sweep %s: %w", typeName, err)
		}
		if len(rs.Hits) == 0 {
			break
		}

		ids := make([]string, 0, len(rs.Hits))
		for _, hit := range rs.Hits {
			ids = append(ids, hit.ID)
		}
		if slices.Equal(ids, previous) {
			return fmt.Errorf("sweep %s: %w", typeName, ErrSweepStalled)
		}

		progress(fmt.Sprintf("Removing %d stale %s documents", len(ids), typeName))
		if err := client.DeleteDocuments(ctx, typeName, ids); err != nil {
			return fmt.Errorf("sweep %s: delete stale documents: %w", typeName, err)
		}
		if err := client.Refresh(ctx); err != nil {
			return fmt.Errorf("sweep %s: refresh: %w", typeName, err)
		}
		metrics.DocumentsRemoved.WithLabelValues(typeName, "stale").Add(float64(len(ids)))
		removed += len(ids)
		previous = ids
	}

	progress(fmt.Sprintf("Done indexing %s (%d stale removed)", typeName, removed))
	return nil
}

// ReindexItems reindexes specific records of a base type in both stages,
// optionally walking their descendants.
func (r *Reconciler) ReindexItems(ctx context.Context, ids []string, baseType string, recurse bool, progress ProgressFunc) error {
	if progress == nil {
		progress = func(string) {}
	}
	if !r.svc.Enabled() {
		return nil
	}
	types := r.svc.Mapper().Registry().Subtypes(baseType)
	if len(types) == 0 {
		return fmt.Errorf("unknown type %q", baseType)
	}

	seen := make(map[string]bool)
	r.svc.StartBulk()
	for _, id := range ids {
		e, ok, err := r.findAny(ctx, types, id)
		if err != nil {
			_ = r.svc.EndBulk(ctx)
			return err
		}
		if !ok {
			progress(fmt.Sprintf("%s #%s not found", baseType, id))
			continue
		}
		if err := r.reindexTree(ctx, e, recurse, seen, progress); err != nil {
			_ = r.svc.EndBulk(ctx)
			return err
		}
	}
	return r.svc.EndBulk(ctx)
}

func (r *Reconciler) findAny(ctx context.Context, types []string, id string) (mapping.Entity, bool, error) {
	for _, typeName := range types {
		e, ok, err := r.source.Find(ctx, typeName, id, models.StageDraft)
		if err != nil {
			return nil, false, fmt.Errorf("find %s #%s: %w", typeName, id, err)
		}
		if ok {
			return e, true, nil
		}
	}
	return nil, false, nil
}

func (r *Reconciler) reindexTree(ctx context.Context, e mapping.Entity, recurse bool, seen map[string]bool, progress ProgressFunc) error {
	key := e.EntityType() + models.IDSeparator + e.EntityID()
	if seen[key] {
		return nil
	}
	seen[key] = true

	progress(fmt.Sprintf("Indexing %s #%s", e.EntityType(), e.EntityID()))
	r.svc.Index(ctx, e, models.StageDraft)

	spec, _ := r.svc.Mapper().Registry().Spec(e.EntityType())
	if spec.Versioned {
		live, ok, err := r.source.Find(ctx, e.EntityType(), e.EntityID(), models.StagePublished)
		if err != nil {
			return fmt.Errorf("find published %s #%s: %w", e.EntityType(), e.EntityID(), err)
		}
		if ok {
			r.svc.Index(ctx, live, models.StagePublished)
		}
	}

	if !recurse {
		return nil
	}
	children, err := r.source.Children(ctx, e.EntityID(), models.StageDraft)
	if err != nil {
		return fmt.Errorf("children of %s #%s: %w", e.EntityType(), e.EntityID(), err)
	}
	for _, child := range children {
		if err := r.reindexTree(ctx, child, recurse, seen, progress); err != nil {
			return err
		}
	}
	return nil
}
