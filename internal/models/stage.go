package models

import (
	"fmt"
	"strings"
)

// Stage is the lifecycle state a versioned record is indexed under.
type Stage string

const (
	StageDraft     Stage = "Draft"
	StagePublished Stage = "Published"
)

// AllStages lists the stages in indexing order.
var AllStages = []Stage{StageDraft, StagePublished}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	return s == StageDraft || s == StagePublished
}

// String returns the stage name.
func (s Stage) String() string {
	return string(s)
}

// ParseStage parses a stage name. The legacy names "Stage" and "Live" are
// accepted as aliases for Draft and Published.
func ParseStage(name string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "draft", "stage":
		return StageDraft, nil
	case "published", "live":
		return StagePublished, nil
	default:
		return "", fmt.Errorf("unknown stage %q", name)
	}
}
