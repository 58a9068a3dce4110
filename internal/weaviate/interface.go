package weaviate

import (
	"context"

	"github.com/kilupskalvis/indexsync/internal/models"
)

// ClientInterface is the search backend as seen by the sync engine. One
// value is bound to one index.
type ClientInterface interface {
	// Index lifecycle
	IndexExists(ctx context.Context) (bool, error)
	CreateIndex(ctx context.Context, settings models.IndexSettings) error
	PutMapping(ctx context.Context, mapping *models.Mapping) error

	// Document writes
	AddDocument(ctx context.Context, typeName string, doc *models.Document) error
	AddDocuments(ctx context.Context, typeName string, docs []*models.Document) error
	DeleteDocument(ctx context.Context, typeName, docID string) error
	DeleteDocuments(ctx context.Context, typeName string, docIDs []string) error
	DeleteByQuery(ctx context.Context, query *models.Query) (int, error)

	// Reads
	Search(ctx context.Context, query *models.Query) (*models.RawResultSet, error)
	Refresh(ctx context.Context) error
}

// Verify that *Client implements ClientInterface at compile time
var _ ClientInterface = (*Client)(nil)
