// Package core keeps the search index in step with the content store: the
// sync engine, full reindex, result translation and lifecycle hooks.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/kilupskalvis/indexsync/internal/mapping"
	"github.com/kilupskalvis/indexsync/internal/metrics"
	"github.com/kilupskalvis/indexsync/internal/models"
	"github.com/kilupskalvis/indexsync/internal/weaviate"
)

// ErrDisconnected is returned by operations that need the backend after
// the engine has lost it.
var ErrDisconnected = errors.New("search backend disconnected")

// ErrDisabled is returned by queued work that cannot run while indexing is
// switched off.
var ErrDisabled = errors.New("search indexing disabled")

// Options configures a Service.
type Options struct {
	Enabled  bool
	Settings models.IndexSettings
	Logger   *slog.Logger
	// Resolver fetches live records for search results. Without one every
	// hit is returned as a synthetic record.
	Resolver Resolver
	// Role labels the connected gauge of this engine, e.g. "worker".
	Role string
}

// Service is the sync engine. It is not safe for concurrent use: callers
// that index from several goroutines need one Service each.
type Service struct {
	client   weaviate.ClientInterface
	mapper   *mapping.Mapper
	settings models.IndexSettings
	resolver Resolver
	logger   *slog.Logger

	role      string
	enabled   bool
	connected bool
	buffered  bool
	buffer    map[string][]*models.Document
	sent      map[string]bool
}

// NewService creates a connected sync engine.
func NewService(client weaviate.ClientInterface, mapper *mapping.Mapper, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	role := opts.Role
	if role == "" {
		role = "engine"
	}
	metrics.Connected.WithLabelValues(role).Set(1)
	return &Service{
		role:      role,
		client:    client,
		mapper:    mapper,
		settings:  opts.Settings,
		resolver:  opts.Resolver,
		logger:    logger,
		enabled:   opts.Enabled,
		connected: true,
		buffer:    make(map[string][]*models.Document),
		sent:      make(map[string]bool),
	}
}

// Enabled reports whether indexing is switched on.
func (s *Service) Enabled() bool { return s.enabled }

// Connected reports whether the backend is still considered reachable.
func (s *Service) Connected() bool { return s.connected }

// Buffered reports whether a bulk cycle is open.
func (s *Service) Buffered() bool { return s.buffered }

// Pending returns the number of buffered documents.
func (s *Service) Pending() int {
	n := 0
	for _, docs := range s.buffer {
		n += len(docs)
	}
	return n
}

// Mapper returns the document mapper.
func (s *Service) Mapper() *mapping.Mapper { return s.mapper }

// Client returns the search client.
func (s *Service) Client() weaviate.ClientInterface { return s.client }

// Index writes the document of a record in a stage. Records that must not
// show in search are removed instead.
func (s *Service) Index(ctx context.Context, e mapping.Entity, stage models.Stage) {
	if !s.enabled {
		return
	}
	if stage == "" {
		stage = models.StageDraft
	}
	if !mapping.ShowInSearch(e) {
		s.Remove(ctx, e, stage)
		return
	}

	typeName := e.EntityType()
	doc := s.mapper.BuildDocument(ctx, e, stage)
	s.sendMapping(ctx, s.mapper.BuildMapping(typeName))
	s.IndexDocument(ctx, doc, typeName)
}

// IndexDocument writes one document, or buffers it during a bulk cycle.
// Failures are reported and never returned.
func (s *Service) IndexDocument(ctx context.Context, doc *models.Document, typeName string) {
	if !s.enabled || !s.connected {
		return
	}
	if s.buffered {
		s.buffer[typeName] = append(s.buffer[typeName], doc)
		return
	}

	if err := s.client.AddDocument(ctx, typeName, doc); err != nil {
		s.fail("add_document", typeName, doc.ID, err)
		return
	}
	metrics.DocumentsIndexed.WithLabelValues(typeName, "single").Inc()

	if err := s.client.Refresh(ctx); err != nil {
		s.fail("refresh", typeName, doc.ID, err)
	}
}

// StartBulk opens a bulk cycle. Calling it again keeps accumulating.
func (s *Service) StartBulk() {
	s.buffered = true
}

// EndBulk flushes the buffer one batch per type and closes the cycle. A
// batch with rejected documents is returned as an error; transport failures
// disconnect the engine and are only reported. The buffer is always emptied.
func (s *Service) EndBulk(ctx context.Context) error {
	defer func() {
		s.buffered = false
		s.buffer = make(map[string][]*models.Document)
	}()

	if !s.connected {
		return nil
	}

	types := make([]string, 0, len(s.buffer))
	for typeName := range s.buffer {
		types = append(types, typeName)
	}
	sort.Strings(types)

	for _, typeName := range types {
		docs := s.buffer[typeName]
		if len(docs) == 0 {
			continue
		}

		err := s.client.AddDocuments(ctx, typeName, docs)
		if err != nil {
			var bulkErr *weaviate.BulkError
			var reqErr *weaviate.RequestError
			if errors.As(err, &bulkErr) || errors.As(err, &reqErr) {
				s.report("add_documents", typeName, "", err)
				return fmt.Errorf("bulk index %s: %w", typeName, err)
			}
			s.fail("add_documents", typeName, "", err)
			return nil
		}
		metrics.DocumentsIndexed.WithLabelValues(typeName, "bulk").Add(float64(len(docs)))

		if err := s.client.Refresh(ctx); err != nil {
			s.fail("refresh", typeName, "", err)
			return nil
		}
	}
	return nil
}

// Remove deletes the document of a record in a stage and reports whether
// the backend confirmed it.
func (s *Service) Remove(ctx context.Context, e mapping.Entity, stage models.Stage) bool {
	if !s.enabled || !s.connected {
		return false
	}
	typeName := e.EntityType()
	spec, _ := s.mapper.Registry().Spec(typeName)
	docID := mapping.DocumentID(typeName, e.EntityID(), stage, spec.Versioned)

	if err := s.client.DeleteDocument(ctx, typeName, docID); err != nil {
		var reqErr *weaviate.RequestError
		if errors.As(err, &reqErr) && reqErr.Status == http.StatusNotFound {
			s.logger.Debug("no search document to remove", "type", typeName, "doc_id", docID)
			return false
		}
		s.report("delete_document", typeName, docID, err)
		return false
	}
	metrics.DocumentsRemoved.WithLabelValues(typeName, "remove").Inc()
	return true
}

// Purge deletes every document of a type, or only those of one stage when
// stage is set, and returns how many were deleted.
func (s *Service) Purge(ctx context.Context, typeName string, stage models.Stage) (int, error) {
	if !s.enabled {
		return 0, nil
	}
	if !s.connected {
		return 0, ErrDisconnected
	}
	spec, ok := s.mapper.Registry().Spec(typeName)
	if !ok {
		return 0, fmt.Errorf("unknown type %q", typeName)
	}

	query := &models.Query{Filters: []models.Filter{
		{Field: models.FieldClassName, Op: models.OpEqual, Value: typeName},
	}}
	if stage != "" {
		if !spec.Versioned {
			return 0, fmt.Errorf("%s is not versioned, it has no per-stage documents", typeName)
		}
		query.Filters = append(query.Filters, models.Filter{Field: models.FieldStage, Op: models.OpEqual, Value: string(stage)})
	}

	n, err := s.client.DeleteByQuery(ctx, query)
	if err != nil {
		s.fail("delete_by_query", typeName, "", err)
		return n, fmt.Errorf("purge %s: %w", typeName, err)
	}
	metrics.DocumentsRemoved.WithLabelValues(typeName, "purge").Add(float64(n))

	if err := s.client.Refresh(ctx); err != nil {
		s.fail("refresh", typeName, "", err)
		return n, fmt.Errorf("purge %s: %w", typeName, err)
	}
	return n, nil
}

// DefineIndexAndMappings creates the index when missing and sends the
// mapping of every indexed type. Custom mappings always win.
func (s *Service) DefineIndexAndMappings(ctx context.Context) error {
	exists, err := s.client.IndexExists(ctx)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if !exists {
		if err := s.client.CreateIndex(ctx, s.settings); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		s.logger.Info("created search index", "index", s.settings.Name)
	}

	for _, spec := range s.mapper.Registry().Indexed() {
		if s.mapper.HasCustomMapping(spec.Name) {
			continue
		}
		if err := s.putMapping(ctx, s.mapper.BuildMapping(spec.Name)); err != nil {
			return err
		}
	}

	custom := s.mapper.CustomMappings()
	names := make([]string, 0, len(custom))
	for name := range custom {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.putMapping(ctx, s.mapper.BuildMapping(name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) putMapping(ctx context.Context, mp *models.Mapping) error {
	if err := s.client.PutMapping(ctx, mp); err != nil {
		return fmt.Errorf("put mapping %s: %w", mp.Type, err)
	}
	s.sent[mp.Type] = true
	s.logger.Debug("sent mapping", "type", mp.Type, "fields", len(mp.Properties))
	return nil
}

// sendMapping sends a type's mapping the first time the type is indexed.
func (s *Service) sendMapping(ctx context.Context, mp *models.Mapping) {
	if !s.connected || s.sent[mp.Type] {
		return
	}
	if err := s.putMapping(ctx, mp); err != nil {
		s.fail("put_mapping", mp.Type, "", err)
	}
}

// fail reports err and disconnects the engine unless the backend answered
// and rejected the request or some of its documents.
func (s *Service) fail(op, typeName, docID string, err error) {
	s.report(op, typeName, docID, err)
	var reqErr *weaviate.RequestError
	if errors.As(err, &reqErr) || weaviate.IsBulk(err) {
		return
	}
	s.connected = false
	metrics.Connected.WithLabelValues(s.role).Set(0)
	s.logger.Warn("search backend disconnected, indexing suspended for this run")
}

func (s *Service) report(op, typeName, docID string, err error) {
	var reqErr *weaviate.RequestError
	kind := "other"
	switch {
	case weaviate.IsBulk(err):
		kind = "bulk"
	case weaviate.IsTransport(err):
		kind = "transport"
	case errors.As(err, &reqErr):
		kind = "request"
	}
	metrics.BackendErrors.WithLabelValues(op, kind).Inc()
	s.logger.Error("search index operation failed",
		"op", op, "type", typeName, "doc_id", docID, "error", err)
}
