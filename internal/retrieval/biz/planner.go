package biz

import (
	"context"
	"fmt"
	"sort"

	"github.com/kart-io/logger"
	"github.com/lumenkb/lumen/internal/model"
	"github.com/lumenkb/lumen/internal/retrieval/index"
	"github.com/lumenkb/lumen/internal/retrieval/metrics"
	"github.com/lumenkb/lumen/internal/retrieval/store"
	"github.com/lumenkb/lumen/pkg/embedding"
)

// DefaultTopK is the number of candidates returned when the caller does
// not ask for a specific count.
const DefaultTopK = 5

// QueryOptions tunes a single retrieval query.
type QueryOptions struct {
	// TopK is the maximum number of candidates after fusion. Zero
	// means DefaultTopK.
	TopK int `json:"top_k"`

	// Modalities restricts the search to the given vector spaces.
	// Empty means every space the router can serve.
	Modalities []model.Modality `json:"modalities,omitempty"`

	// DocumentIDs restricts candidates to the given documents. Applied
	// after fusion.
	DocumentIDs []string `json:"document_ids,omitempty"`

	// Boosts multiplies per-modality scores before fusion. A missing
	// modality defaults to 1.0.
	Boosts map[model.Modality]float64 `json:"boosts,omitempty"`

	// WithAnswer asks for an LLM-generated answer over the citations.
	WithAnswer bool `json:"with_answer"`
}

func (o *QueryOptions) topK() int {
	if o == nil || o.TopK == 0 {
		return DefaultTopK
	}
	return o.TopK
}

func (o *QueryOptions) boost(m model.Modality) float64 {
	if o == nil || o.Boosts == nil {
		return 1.0
	}
	if b, ok := o.Boosts[m]; ok {
		return b
	}
	return 1.0
}

// Planner turns a question into a fused, hydrated candidate list. It
// fans the question out to every searchable vector space, fuses the
// per-modality hits into one ranking, and drops hits whose fragment no
// longer has a registry row.
type Planner struct {
	router   *embedding.Router
	indexes  *index.Manager
	registry store.Registry
	metrics  *metrics.Metrics
}

// NewPlanner creates a Planner.
func NewPlanner(router *embedding.Router, indexes *index.Manager, registry store.Registry) *Planner {
	return &Planner{
		router:   router,
		indexes:  indexes,
		registry: registry,
		metrics:  metrics.Get(),
	}
}

// scoredHit carries a fused hit before hydration.
type scoredHit struct {
	fragmentID string
	modality   model.Modality
	score      float64
}

// Plan executes the retrieval plan for a question and returns at most
// TopK candidates in deterministic order.
func (p *Planner) Plan(ctx context.Context, question string, opts *QueryOptions) ([]model.Candidate, error) {
	if question == "" {
		return nil, model.NewValidationError("question", "must not be empty")
	}
	if opts != nil && opts.TopK < 0 {
		return nil, model.NewValidationError("top_k", fmt.Sprintf("must not be negative, got %d", opts.TopK))
	}
	for _, m := range p.targetModalities(opts) {
		if !m.Valid() {
			return nil, model.NewValidationError("modalities", fmt.Sprintf("unknown modality %q", m))
		}
	}

	topK := opts.topK()
	hits := p.searchSpaces(ctx, question, opts, topK)
	if len(hits) == 0 {
		return []model.Candidate{}, nil
	}

	fuseHits(hits)

	candidates, err := p.hydrate(ctx, hits, opts, topK)
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// targetModalities returns the vector spaces the query should consider.
func (p *Planner) targetModalities(opts *QueryOptions) []model.Modality {
	if opts != nil && len(opts.Modalities) > 0 {
		return opts.Modalities
	}
	return p.indexes.Modalities()
}

// searchSpaces embeds the question per modality and searches each index.
// A space whose provider cannot encode text queries is skipped silently;
// a space whose provider fails is skipped with a warning. Neither fails
// the query.
func (p *Planner) searchSpaces(ctx context.Context, question string, opts *QueryOptions, topK int) []scoredHit {
	var hits []scoredHit

	for _, modality := range p.targetModalities(opts) {
		idx, ok := p.indexes.Index(modality)
		if !ok {
			continue
		}

		query, ok, err := p.router.QueryVector(ctx, question, modality)
		if err != nil {
			logger.Warnw("excluding vector space after embed failure",
				"modality", modality, "error", err.Error())
			p.metrics.RecordEmbeddingError()
			continue
		}
		if !ok {
			continue
		}

		found, err := idx.Search(query, topK)
		if err != nil {
			logger.Warnw("excluding vector space after search failure",
				"modality", modality, "error", err.Error())
			continue
		}
		p.metrics.RecordSearch(modality)

		boost := opts.boost(modality)
		for _, h := range found {
			hits = append(hits, scoredHit{
				fragmentID: h.FragmentID,
				modality:   modality,
				score:      h.Score * boost,
			})
		}
	}
	return hits
}

// hydrate resolves hits against the registry, dropping orphaned index
// entries, applies the document filter, truncates to topK and fills in
// document metadata.
func (p *Planner) hydrate(ctx context.Context, hits []scoredHit, opts *QueryOptions, topK int) ([]model.Candidate, error) {
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.fragmentID)
	}

	frags, err := p.registry.GetFragments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve fragments: %w", err)
	}

	allowedDocs := documentFilter(opts)
	docs := make(map[string]*model.Document)

	candidates := make([]model.Candidate, 0, topK)
	for _, h := range hits {
		frag, ok := frags[h.fragmentID]
		if !ok {
			// Orphaned index entry: vector survives but the registry
			// row is gone. Never surfaces to callers.
			logger.Warnw("dropping orphaned index entry",
				"fragment_id", h.fragmentID, "modality", h.modality)
			continue
		}
		if allowedDocs != nil && !allowedDocs[frag.DocumentID] {
			continue
		}

		doc, ok := docs[frag.DocumentID]
		if !ok {
			doc, err = p.registry.GetDocument(ctx, frag.DocumentID)
			if err != nil {
				logger.Warnw("dropping fragment of missing document",
					"fragment_id", frag.ID, "document_id", frag.DocumentID)
				continue
			}
			docs[frag.DocumentID] = doc
		}

		candidates = append(candidates, model.Candidate{
			FragmentID: frag.ID,
			DocumentID: frag.DocumentID,
			Filename:   doc.Filename,
			Modality:   frag.Modality,
			Score:      h.score,
			Content:    frag.Content,
			Locator:    frag.Locator(),
			PageNumber: frag.PageNumber,
			StartMS:    frag.StartMS,
			EndMS:      frag.EndMS,
		})
		if len(candidates) == topK {
			break
		}
	}
	return candidates, nil
}

// fuseHits merges the per-modality hit lists into one ranking:
// descending score, ties broken by ascending fragment id. Fragment ids
// are unique across spaces, so fusion never needs to merge duplicates.
func fuseHits(hits []scoredHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].fragmentID < hits[j].fragmentID
	})
}

func documentFilter(opts *QueryOptions) map[string]bool {
	if opts == nil || len(opts.DocumentIDs) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(opts.DocumentIDs))
	for _, id := range opts.DocumentIDs {
		allowed[id] = true
	}
	return allowed
}
