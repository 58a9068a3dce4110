package mapping

import (
	"strings"

	"github.com/kilupskalvis/indexsync/internal/models"
)

// DocumentID returns the index id of a record. Versioned records get one
// document per stage, so the stage is part of their id.
func DocumentID(typeName, entityID string, stage models.Stage, versioned bool) string {
	if !versioned {
		return typeName + models.IDSeparator + entityID
	}
	if stage == "" {
		stage = models.StageDraft
	}
	return typeName + models.IDSeparator + entityID + models.IDSeparator + string(stage)
}

// DocumentRef is a decoded document id.
type DocumentRef struct {
	Type  string
	ID    string
	Stage models.Stage
	// Parts is the number of separator-delimited parts in the raw id.
	Parts int
}

// ParseDocumentID splits a document id into its parts. Only ids with two
// or three parts decode into a type and id; for any other shape the
// whole id is returned as ID and the caller supplies the type.
func ParseDocumentID(docID string) DocumentRef {
	bits := strings.Split(docID, models.IDSeparator)
	switch len(bits) {
	case 3:
		return DocumentRef{Type: bits[0], ID: bits[1], Stage: models.Stage(bits[2]), Parts: 3}
	case 2:
		return DocumentRef{Type: bits[0], ID: bits[1], Parts: 2}
	default:
		return DocumentRef{ID: docID, Parts: len(bits)}
	}
}
