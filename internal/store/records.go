package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kilupskalvis/indexsync/internal/mapping"
	"github.com/kilupskalvis/indexsync/internal/models"
)

// Record is one content record in one stage.
type Record struct {
	Type     string
	ID       string
	Stage    models.Stage
	ParentID string
	Sort     int
	Data     map[string]any
	// ViewerGroups restricts who may see the record. Empty means everyone.
	ViewerGroups []string
	Created      time.Time
	LastEdited   time.Time
}

func (r *Record) EntityType() string { return r.Type }
func (r *Record) EntityID() string   { return r.ID }

// Get returns a column or data field of the record.
func (r *Record) Get(field string) (any, bool) {
	switch field {
	case models.FieldID:
		return r.ID, true
	case models.FieldParentID:
		if r.ParentID == "" {
			return nil, false
		}
		return r.ParentID, true
	case "Sort":
		return r.Sort, true
	case models.FieldCreated:
		return r.Created.UTC().Format(models.DateLayout), !r.Created.IsZero()
	case models.FieldLastEdited:
		return r.LastEdited.UTC().Format(models.DateLayout), !r.LastEdited.IsZero()
	}
	v, ok := r.Data[field]
	return v, ok
}

// Title returns the Title field, falling back to Name.
func (r *Record) Title() string {
	for _, f := range []string{models.FieldTitle, "Name"} {
		if v, ok := r.Data[f]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}

// CanView reports whether the viewer in ctx may see the record.
func (r *Record) CanView(ctx context.Context) bool {
	if len(r.ViewerGroups) == 0 {
		return true
	}
	v, ok := models.ViewerFrom(ctx)
	if !ok {
		return false
	}
	return v.Admin || v.InGroup(r.ViewerGroups...)
}

// ToMap returns every field of the record.
func (r *Record) ToMap() map[string]any {
	out := make(map[string]any, len(r.Data)+5)
	for k, v := range r.Data {
		out[k] = v
	}
	out[models.FieldID] = r.ID
	out[models.FieldClassName] = r.Type
	out["Sort"] = r.Sort
	if r.ParentID != "" {
		out[models.FieldParentID] = r.ParentID
	}
	if !r.Created.IsZero() {
		out[models.FieldCreated] = r.Created.UTC().Format(models.DateLayout)
	}
	if !r.LastEdited.IsZero() {
		out[models.FieldLastEdited] = r.LastEdited.UTC().Format(models.DateLayout)
	}
	return out
}

const recordColumns = `type, id, stage, parent_id, sort, data, viewer_groups, created, last_edited`

// Save writes the draft of a record. Created is kept from an existing row.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec.Type == "" || rec.ID == "" {
		return fmt.Errorf("record needs a type and an id")
	}
	now := time.Now().UTC()
	if rec.Created.IsZero() {
		rec.Created = now
	}
	rec.LastEdited = now
	rec.Stage = models.StageDraft

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal record data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(type, id, stage) DO UPDATE SET
			parent_id = excluded.parent_id,
			sort = excluded.sort,
			data = excluded.data,
			viewer_groups = excluded.viewer_groups,
			last_edited = excluded.last_edited
	`, rec.Type, rec.ID, string(rec.Stage), rec.ParentID, rec.Sort, string(data),
		strings.Join(rec.ViewerGroups, ","), formatTime(rec.Created), formatTime(rec.LastEdited))
	if err != nil {
		return fmt.Errorf("failed to save %s #%s: %w", rec.Type, rec.ID, err)
	}
	return nil
}

// Publish copies the draft of a record to the published stage.
func (s *Store) Publish(ctx context.Context, typeName, id string) (*Record, error) {
	if _, err := s.Get(ctx, typeName, id, models.StageDraft); err != nil {
		return nil, err
	}
	if !s.versioned(typeName) {
		return s.Get(ctx, typeName, id, models.StagePublished)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO records (`+recordColumns+`)
		SELECT type, id, ?, parent_id, sort, data, viewer_groups, created, last_edited
		FROM records WHERE type = ? AND id = ? AND stage = ?
	`, string(models.StagePublished), typeName, id, string(models.StageDraft))
	if err != nil {
		return nil, fmt.Errorf("failed to publish %s #%s: %w", typeName, id, err)
	}
	return s.Get(ctx, typeName, id, models.StagePublished)
}

// Unpublish removes the published version of a record.
func (s *Store) Unpublish(ctx context.Context, typeName, id string) (*Record, error) {
	if !s.versioned(typeName) {
		return nil, fmt.Errorf("%s is not versioned", typeName)
	}
	rec, err := s.Get(ctx, typeName, id, models.StagePublished)
	if err != nil {
		return nil, err
	}
	if err := s.delete(ctx, typeName, id, models.StagePublished); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes a record from a stage and returns what was removed.
func (s *Store) Delete(ctx context.Context, typeName, id string, stage models.Stage) (*Record, error) {
	rec, err := s.Get(ctx, typeName, id, stage)
	if err != nil {
		return nil, err
	}
	if err := s.delete(ctx, typeName, id, rec.Stage); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) delete(ctx context.Context, typeName, id string, stage models.Stage) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE type = ? AND id = ? AND stage = ?", typeName, id, string(stage))
	if err != nil {
		return fmt.Errorf("failed to delete %s #%s: %w", typeName, id, err)
	}
	return nil
}

// Get returns a record in a stage, or ErrNotFound.
func (s *Store) Get(ctx context.Context, typeName, id string, stage models.Stage) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM records WHERE type = ? AND id = ? AND stage = ?
	`, typeName, id, string(s.rowStage(typeName, stage)))

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s #%s in %s: %w", typeName, id, stage, ErrNotFound)
	}
	return rec, err
}

// Find looks up a record, reporting a missing one with ok=false.
func (s *Store) Find(ctx context.Context, typeName, id string, stage models.Stage) (mapping.Entity, bool, error) {
	rec, err := s.Get(ctx, typeName, id, stage)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Count returns the number of records of a type in a stage.
func (s *Store) Count(ctx context.Context, typeName string, stage models.Stage) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE type = ? AND stage = ?",
		typeName, string(s.rowStage(typeName, stage))).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", typeName, err)
	}
	return n, nil
}

// List returns a page of records of a type in a stage, by sort then id.
func (s *Store) List(ctx context.Context, typeName string, stage models.Stage, offset, limit int) ([]mapping.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE type = ? AND stage = ?
		ORDER BY sort, id
		LIMIT ? OFFSET ?
	`, typeName, string(s.rowStage(typeName, stage)), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", typeName, err)
	}
	return collect(rows)
}

// Children returns the records of any type whose parent is parentID.
func (s *Store) Children(ctx context.Context, parentID string, stage models.Stage) ([]mapping.Entity, error) {
	if stage == "" {
		stage = models.StageDraft
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE parent_id = ? AND stage = ?
		ORDER BY sort, type, id
	`, parentID, string(stage))
	if err != nil {
		return nil, fmt.Errorf("failed to list children of %s: %w", parentID, err)
	}
	return collect(rows)
}

// ParentOf returns the parent id of a draft record. A record of the given
// type is preferred when several types share the id.
func (s *Store) ParentOf(ctx context.Context, typeName, id string) (string, bool) {
	var parentID string
	err := s.db.QueryRowContext(ctx, `
		SELECT parent_id FROM records
		WHERE id = ? AND stage = ?
		ORDER BY (type = ?) DESC
		LIMIT 1
	`, id, string(models.StageDraft), typeName).Scan(&parentID)
	if err != nil || parentID == "" {
		return "", false
	}
	return parentID, true
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var stage, data, groups, created, lastEdited string
	if err := row.Scan(&rec.Type, &rec.ID, &stage, &rec.ParentID, &rec.Sort, &data, &groups, &created, &lastEdited); err != nil {
		return nil, err
	}
	rec.Stage = models.Stage(stage)
	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s #%s: %w", rec.Type, rec.ID, err)
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	if groups != "" {
		rec.ViewerGroups = strings.Split(groups, ",")
	}
	rec.Created = parseTime(created)
	rec.LastEdited = parseTime(lastEdited)
	return &rec, nil
}

func collect(rows *sql.Rows) ([]mapping.Entity, error) {
	defer rows.Close()
	var out []mapping.Entity
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(models.DateLayout)
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(models.DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
