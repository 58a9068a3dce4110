package core

import (
	"context"

	"github.com/kilupskalvis/indexsync/internal/models"
)

type stageKey struct{}

// WithStage returns a context whose active stage is stage.
func WithStage(ctx context.Context, stage models.Stage) context.Context {
	return context.WithValue(ctx, stageKey{}, stage)
}

// StageFrom returns the active stage of ctx, or "" when none is set.
func StageFrom(ctx context.Context) models.Stage {
	stage, _ := ctx.Value(stageKey{}).(models.Stage)
	return stage
}

// writeStage is the stage mutations apply to when the context sets none.
func writeStage(ctx context.Context) models.Stage {
	if stage := StageFrom(ctx); stage != "" {
		return stage
	}
	return models.StageDraft
}
