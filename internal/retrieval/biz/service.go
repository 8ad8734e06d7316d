// Package biz implements the retrieval business logic: ingestion,
// cascade deletion, query planning, citation assembly and optional
// answer generation.
package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	"github.com/lumenkb/lumen/internal/model"
	"github.com/lumenkb/lumen/internal/retrieval/index"
	"github.com/lumenkb/lumen/internal/retrieval/metrics"
	"github.com/lumenkb/lumen/internal/retrieval/store"
	"github.com/lumenkb/lumen/pkg/embedding"
	"github.com/lumenkb/lumen/pkg/id"
	"github.com/lumenkb/lumen/pkg/llm"
	"github.com/lumenkb/lumen/pkg/pool"
)

// Service is the retrieval service interface.
type Service interface {
	// Ingest embeds and indexes a document's fragments.
	Ingest(ctx context.Context, req *IngestRequest) (*model.Document, error)

	// DeleteDocument removes a document, its fragments and their index
	// entries, returning the removed fragment ids.
	DeleteDocument(ctx context.Context, documentID string) ([]string, error)

	// Query answers a question with ranked candidates and citations.
	Query(ctx context.Context, question string, opts *QueryOptions) (*model.QueryResult, error)

	// GetDocument returns one document.
	GetDocument(ctx context.Context, documentID string) (*model.Document, error)

	// ListDocuments returns all documents, newest first.
	ListDocuments(ctx context.Context) ([]*model.Document, error)

	// GetStats returns knowledge base and service statistics.
	GetStats(ctx context.Context) (map[string]any, error)
}

// IngestRequest describes one document and its pre-chunked fragments.
type IngestRequest struct {
	Filename  string           `json:"filename"`
	Modality  model.Modality   `json:"modality"`
	Fragments []IngestFragment `json:"fragments"`
}

// IngestFragment is one fragment to embed and index. Exactly one of
// Text, Image or Audio is set, matching Modality.
type IngestFragment struct {
	Modality   model.Modality    `json:"modality"`
	Text       string            `json:"text,omitempty"`
	Image      []byte            `json:"image,omitempty"`
	Audio      []float32         `json:"audio,omitempty"`
	PageNumber *int              `json:"page_number,omitempty"`
	StartMS    *int64            `json:"start_ms,omitempty"`
	EndMS      *int64            `json:"end_ms,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// content returns the tagged content variant for the fragment.
func (f *IngestFragment) content() (embedding.Content, error) {
	switch f.Modality {
	case model.ModalityText:
		if f.Text == "" {
			return nil, model.NewValidationError("fragment.text", "must not be empty for a text fragment")
		}
		return embedding.TextContent(f.Text), nil
	case model.ModalityImage:
		if len(f.Image) == 0 {
			return nil, model.NewValidationError("fragment.image", "must not be empty for an image fragment")
		}
		return embedding.ImageContent(f.Image), nil
	case model.ModalityAudio:
		if len(f.Audio) == 0 {
			return nil, model.NewValidationError("fragment.audio", "must not be empty for an audio fragment")
		}
		return embedding.AudioContent(f.Audio), nil
	}
	return nil, model.NewValidationError("fragment.modality", fmt.Sprintf("unknown modality %q", f.Modality))
}

// ServiceConfig configures the retrieval service.
type ServiceConfig struct {
	AssemblerConfig  *AssemblerConfig
	GeneratorConfig  *GeneratorConfig
	QueryCacheConfig *QueryCacheConfig
	PoolConfig       *pool.Config

	// DefaultTopK overrides DefaultTopK for queries that do not ask
	// for a specific candidate count.
	DefaultTopK int
}

// RetrievalService wires the planner, assembler, generator and cache
// over the registry and the per-modality indexes.
type RetrievalService struct {
	registry    store.Registry
	indexes     *index.Manager
	router      *embedding.Router
	planner     *Planner
	assembler   *Assembler
	generator   *Generator
	cache       *QueryCache
	workers     *pool.Pool
	ids         *id.Generator
	metrics     *metrics.Metrics
	defaultTopK int
}

// NewRetrievalService creates the service.
func NewRetrievalService(
	registry store.Registry,
	indexes *index.Manager,
	router *embedding.Router,
	chatProvider llm.ChatProvider,
	cache *QueryCache,
	config *ServiceConfig,
) (*RetrievalService, error) {
	if config == nil {
		config = &ServiceConfig{}
	}

	workers, err := pool.New(config.PoolConfig)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	if cache == nil {
		cache = NewQueryCache(nil, config.QueryCacheConfig)
	}

	defaultTopK := config.DefaultTopK
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}

	return &RetrievalService{
		registry:    registry,
		indexes:     indexes,
		router:      router,
		planner:     NewPlanner(router, indexes, registry),
		assembler:   NewAssembler(config.AssemblerConfig),
		generator:   NewGenerator(chatProvider, config.GeneratorConfig),
		cache:       cache,
		workers:     workers,
		ids:         id.NewGenerator(),
		metrics:     metrics.Get(),
		defaultTopK: defaultTopK,
	}, nil
}

// Close releases the worker pool.
func (s *RetrievalService) Close() {
	s.workers.Release()
}

// Ingest registers the document, embeds every fragment in parallel, and
// indexes them. Index insert and registry insert are paired per
// fragment: a registry failure rolls the index entry back, so no
// fragment is ever searchable without a registry row. Any embedding
// failure marks the document failed and indexes nothing.
func (s *RetrievalService) Ingest(ctx context.Context, req *IngestRequest) (*model.Document, error) {
	if err := s.validateIngest(req); err != nil {
		return nil, err
	}

	doc := &model.Document{
		ID:       s.ids.Generate(),
		Filename: req.Filename,
		Modality: req.Modality,
		Status:   model.DocumentPending,
	}
	if err := s.registry.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	vectors, err := s.embedFragments(ctx, req.Fragments)
	if err != nil {
		s.failDocument(ctx, doc)
		s.metrics.RecordIngest(0, err)
		return nil, err
	}

	indexed, err := s.indexFragments(ctx, doc, req.Fragments, vectors)
	if err != nil {
		s.failDocument(ctx, doc)
		s.metrics.RecordIngest(0, err)
		return nil, err
	}

	if err := s.registry.SetDocumentStatus(ctx, doc.ID, model.DocumentProcessed, indexed); err != nil {
		return nil, fmt.Errorf("finalize document: %w", err)
	}
	doc.Status = model.DocumentProcessed
	doc.FragmentCount = indexed

	s.metrics.RecordIngest(indexed, nil)
	if err := s.cache.Clear(ctx); err != nil {
		logger.Warnw("failed to invalidate query cache after ingest", "error", err.Error())
	}

	logger.Infow("document ingested",
		"document_id", doc.ID, "filename", doc.Filename,
		"modality", doc.Modality, "fragments", indexed)
	return doc, nil
}

func (s *RetrievalService) validateIngest(req *IngestRequest) error {
	if req == nil {
		return model.NewValidationError("request", "must not be nil")
	}
	if req.Filename == "" {
		return model.NewValidationError("filename", "must not be empty")
	}
	if !req.Modality.Valid() {
		return model.NewValidationError("modality", fmt.Sprintf("unknown modality %q", req.Modality))
	}
	if len(req.Fragments) == 0 {
		return model.NewValidationError("fragments", "must not be empty")
	}

	allowed := make(map[model.Modality]bool)
	for _, m := range model.AllowedFragmentModalities(req.Modality) {
		allowed[m] = true
	}
	for i, frag := range req.Fragments {
		if !allowed[frag.Modality] {
			return model.NewValidationError("fragments",
				fmt.Sprintf("fragment %d: %s fragments are not allowed for a %s document", i, frag.Modality, req.Modality))
		}
		if _, err := frag.content(); err != nil {
			return fmt.Errorf("fragment %d: %w", i, err)
		}
	}
	return nil
}

// embedFragments embeds all fragments on the worker pool. Ingestion is
// all-or-nothing: the first failure fails the batch.
func (s *RetrievalService) embedFragments(ctx context.Context, frags []IngestFragment) ([]model.Vector, error) {
	vectors := make([]model.Vector, len(frags))
	errs := make([]error, len(frags))

	s.workers.Map(len(frags), func(i int) {
		content, err := frags[i].content()
		if err != nil {
			errs[i] = err
			return
		}
		vectors[i], errs[i] = s.router.Route(ctx, content)
	})

	for i, err := range errs {
		if err != nil {
			s.metrics.RecordEmbeddingError()
			return nil, fmt.Errorf("embed fragment %d: %w", i, err)
		}
	}
	return vectors, nil
}

// indexFragments inserts index entries and registry rows pairwise and
// returns the number indexed. On failure it rolls back every index
// entry written so far.
func (s *RetrievalService) indexFragments(ctx context.Context, doc *model.Document, frags []IngestFragment, vectors []model.Vector) (int, error) {
	fragmentIDs := s.ids.GenerateN(len(frags))

	type placed struct {
		modality model.Modality
		id       string
	}
	var done []placed

	rollback := func() {
		for _, p := range done {
			s.indexes.Remove(p.modality, p.id)
		}
	}

	for i, frag := range frags {
		idx, ok := s.indexes.Index(frag.Modality)
		if !ok {
			rollback()
			return 0, model.NewValidationError("fragments",
				fmt.Sprintf("no index configured for modality %q", frag.Modality))
		}

		if err := idx.Insert(fragmentIDs[i], vectors[i]); err != nil {
			rollback()
			return 0, fmt.Errorf("index fragment %d: %w", i, err)
		}
		done = append(done, placed{modality: frag.Modality, id: fragmentIDs[i]})

		row := &model.Fragment{
			ID:         fragmentIDs[i],
			DocumentID: doc.ID,
			Modality:   frag.Modality,
			Content:    frag.Text,
			PageNumber: frag.PageNumber,
			StartMS:    frag.StartMS,
			EndMS:      frag.EndMS,
			Meta:       frag.Meta,
		}
		if err := s.registry.PutFragment(ctx, row); err != nil {
			rollback()
			return 0, fmt.Errorf("register fragment %d: %w", i, err)
		}
	}
	return len(frags), nil
}

// failDocument marks the document failed, keeping the row so the caller
// can inspect what went wrong.
func (s *RetrievalService) failDocument(ctx context.Context, doc *model.Document) {
	if err := s.registry.SetDocumentStatus(ctx, doc.ID, model.DocumentFailed, 0); err != nil {
		logger.Errorw("failed to mark document failed",
			"document_id", doc.ID, "error", err.Error())
	}
}

// DeleteDocument removes the document's index entries first and its
// registry rows second. A fragment missing its index entry is
// harmless; a vector missing its registry row would be an orphan, so
// the order guarantees a failure can only leave the former. A partial
// failure is reported as a CascadeError naming the surviving rows.
func (s *RetrievalService) DeleteDocument(ctx context.Context, documentID string) ([]string, error) {
	if documentID == "" {
		return nil, model.NewValidationError("document_id", "must not be empty")
	}

	frags, err := s.registry.ListFragmentsByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list fragments: %w", err)
	}

	for _, frag := range frags {
		s.indexes.Remove(frag.Modality, frag.ID)
	}

	removed, err := s.registry.DeleteDocumentCascade(ctx, documentID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrNotFound
		}
		remaining := make([]string, 0, len(frags))
		for _, frag := range frags {
			remaining = append(remaining, frag.ID)
		}
		cascadeErr := &model.CascadeError{DocumentID: documentID, Remaining: remaining, Err: err}
		s.metrics.RecordDelete(0, cascadeErr)
		return nil, cascadeErr
	}

	s.metrics.RecordDelete(len(removed), nil)
	if err := s.cache.Clear(ctx); err != nil {
		logger.Warnw("failed to invalidate query cache after delete", "error", err.Error())
	}

	logger.Infow("document deleted", "document_id", documentID, "fragments", len(removed))
	return removed, nil
}

// Query answers a question: cache lookup, plan, assemble, optionally
// generate, cache store.
func (s *RetrievalService) Query(ctx context.Context, question string, opts *QueryOptions) (*model.QueryResult, error) {
	start := time.Now()

	// Canonicalize the candidate count on a copy so equivalent queries
	// share a cache entry and the caller's options stay untouched.
	canonical := QueryOptions{}
	if opts != nil {
		canonical = *opts
	}
	opts = &canonical
	if opts.TopK == 0 {
		opts.TopK = s.defaultTopK
	}

	if cached, err := s.cache.Get(ctx, question, opts); err == nil && cached != nil {
		s.metrics.RecordQuery(time.Since(start), true, len(cached.Candidates) == 0, nil)
		return cached, nil
	}

	candidates, err := s.planner.Plan(ctx, question, opts)
	if err != nil {
		s.metrics.RecordQuery(time.Since(start), false, false, err)
		return nil, err
	}

	result := &model.QueryResult{
		Question:   question,
		Candidates: candidates,
		Citations:  s.assembler.Assemble(candidates),
	}

	if opts.WithAnswer {
		answer, err := s.generator.GenerateAnswer(ctx, question, result.Citations)
		if err != nil {
			s.metrics.RecordQuery(time.Since(start), false, false, err)
			return nil, err
		}
		result.Answer = answer
	}

	s.metrics.RecordQuery(time.Since(start), false, len(candidates) == 0, nil)
	if err := s.cache.Set(ctx, question, opts, result); err != nil {
		logger.Warnw("failed to cache query result", "error", err.Error())
	}
	return result, nil
}

// GetDocument returns one document.
func (s *RetrievalService) GetDocument(ctx context.Context, documentID string) (*model.Document, error) {
	return s.registry.GetDocument(ctx, documentID)
}

// ListDocuments returns all documents, newest first.
func (s *RetrievalService) ListDocuments(ctx context.Context) ([]*model.Document, error) {
	return s.registry.ListDocuments(ctx)
}

// GetStats returns knowledge base, index, cache and counter statistics.
func (s *RetrievalService) GetStats(ctx context.Context) (map[string]any, error) {
	docs, err := s.registry.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	frags, err := s.registry.CountFragments(ctx)
	if err != nil {
		return nil, err
	}

	indexSizes := make(map[string]int, len(s.indexes.Modalities()))
	for _, modality := range s.indexes.Modalities() {
		idx, _ := s.indexes.Index(modality)
		indexSizes[string(modality)] = idx.Len()
	}

	cacheStats, err := s.cache.GetStats(ctx)
	if err != nil {
		logger.Warnw("failed to read cache stats", "error", err.Error())
		cacheStats = map[string]any{"enabled": false}
	}

	return map[string]any{
		"documents": docs,
		"fragments": frags,
		"indexes":   indexSizes,
		"cache":     cacheStats,
		"metrics":   s.metrics.Stats(),
	}, nil
}
