package biz_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/lumenkb/lumen/internal/model"
	"github.com/lumenkb/lumen/internal/retrieval/biz"
	"github.com/lumenkb/lumen/internal/retrieval/index"
	"github.com/lumenkb/lumen/internal/retrieval/store"
	"github.com/lumenkb/lumen/pkg/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// stubTextProvider embeds text by lookup table.
type stubTextProvider struct {
	vectors map[string]model.Vector
}

func (p *stubTextProvider) Name() string { return "stub-text" }
func (p *stubTextProvider) Modalities() []model.Modality {
	return []model.Modality{model.ModalityText}
}

func (p *stubTextProvider) Embed(_ context.Context, content embedding.Content) (model.Vector, error) {
	text, ok := content.(embedding.TextContent)
	if !ok {
		return nil, fmt.Errorf("stub-text got %T", content)
	}
	vec, ok := p.vectors[string(text)]
	if !ok {
		return nil, fmt.Errorf("no stub vector for %q", string(text))
	}
	return vec, nil
}

// stubSharedProvider serves image and audio content and supports text
// queries into the same space.
type stubSharedProvider struct {
	vectors map[string]model.Vector
	queries map[string]model.Vector
}

func (p *stubSharedProvider) Name() string { return "stub-shared" }
func (p *stubSharedProvider) Modalities() []model.Modality {
	return []model.Modality{model.ModalityImage, model.ModalityAudio}
}

func (p *stubSharedProvider) Embed(_ context.Context, content embedding.Content) (model.Vector, error) {
	switch c := content.(type) {
	case embedding.ImageContent:
		if vec, ok := p.vectors[string(c)]; ok {
			return vec, nil
		}
	case embedding.AudioContent:
		key := fmt.Sprintf("audio-%d", len(c))
		if vec, ok := p.vectors[key]; ok {
			return vec, nil
		}
	}
	return nil, fmt.Errorf("no stub vector for %v", content)
}

func (p *stubSharedProvider) EmbedQuery(_ context.Context, text string) (model.Vector, error) {
	vec, ok := p.queries[text]
	if !ok {
		return nil, fmt.Errorf("no stub query vector for %q", text)
	}
	return vec, nil
}

// stubBlindProvider serves image content but cannot encode text
// queries.
type stubBlindProvider struct {
	vectors map[string]model.Vector
}

func (p *stubBlindProvider) Name() string { return "stub-blind" }
func (p *stubBlindProvider) Modalities() []model.Modality {
	return []model.Modality{model.ModalityImage}
}

func (p *stubBlindProvider) Embed(_ context.Context, content embedding.Content) (model.Vector, error) {
	img, ok := content.(embedding.ImageContent)
	if !ok {
		return nil, fmt.Errorf("stub-blind got %T", content)
	}
	vec, ok := p.vectors[string(img)]
	if !ok {
		return nil, fmt.Errorf("no stub vector for image %q", string(img))
	}
	return vec, nil
}

type fixture struct {
	registry store.Registry
	indexes  *index.Manager
	router   *embedding.Router
	planner  *biz.Planner
}

func newFixture(t *testing.T, providers ...embedding.Provider) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	registry, err := store.NewGormRegistry(db)
	require.NoError(t, err)

	indexes, err := index.NewManager(&index.Config{
		Backend: index.BackendFlat,
		Dims: map[model.Modality]int{
			model.ModalityText:  3,
			model.ModalityImage: 3,
			model.ModalityAudio: 3,
		},
	})
	require.NoError(t, err)

	router := embedding.NewRouter()
	for _, p := range providers {
		router.Bind(p)
	}

	return &fixture{
		registry: registry,
		indexes:  indexes,
		router:   router,
		planner:  biz.NewPlanner(router, indexes, registry),
	}
}

func (f *fixture) addDocument(t *testing.T, id, filename string, modality model.Modality) {
	t.Helper()
	require.NoError(t, f.registry.CreateDocument(context.Background(), &model.Document{
		ID: id, Filename: filename, Modality: modality, Status: model.DocumentProcessed,
	}))
}

func (f *fixture) addFragment(t *testing.T, frag *model.Fragment, vec model.Vector) {
	t.Helper()
	require.NoError(t, f.registry.PutFragment(context.Background(), frag))
	idx, ok := f.indexes.Index(frag.Modality)
	require.True(t, ok)
	require.NoError(t, idx.Insert(frag.ID, vec))
}

func TestPlanRetrievesMatchingFragment(t *testing.T) {
	f := newFixture(t, &stubTextProvider{vectors: map[string]model.Vector{
		"How did revenue change?": {1, 0, 0},
	}})

	page := 3
	f.addDocument(t, "D1", "report.pdf", model.ModalityText)
	f.addFragment(t, &model.Fragment{
		ID: "F1", DocumentID: "D1", Modality: model.ModalityText,
		Content: "Revenue grew 10%", PageNumber: &page,
	}, model.Vector{1, 0, 0})

	candidates, err := f.planner.Plan(context.Background(), "How did revenue change?", nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, "F1", c.FragmentID)
	assert.Equal(t, "D1", c.DocumentID)
	assert.Equal(t, "report.pdf", c.Filename)
	assert.Equal(t, "Revenue grew 10%", c.Content)
	assert.Equal(t, "page 3", c.Locator)
	assert.InDelta(t, 1.0, c.Score, 1e-9)
}

func TestPlanAfterDeleteReturnsNothing(t *testing.T) {
	f := newFixture(t, &stubTextProvider{vectors: map[string]model.Vector{
		"How did revenue change?": {1, 0, 0},
	}})

	f.addDocument(t, "D1", "report.pdf", model.ModalityText)
	f.addFragment(t, &model.Fragment{
		ID: "F1", DocumentID: "D1", Modality: model.ModalityText, Content: "Revenue grew 10%",
	}, model.Vector{1, 0, 0})

	removed, err := f.registry.DeleteDocumentCascade(context.Background(), "D1")
	require.NoError(t, err)
	for _, id := range removed {
		f.indexes.Remove(model.ModalityText, id)
	}

	candidates, err := f.planner.Plan(context.Background(), "How did revenue change?", nil)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestPlanDropsOrphanedIndexEntries(t *testing.T) {
	f := newFixture(t, &stubTextProvider{vectors: map[string]model.Vector{
		"q": {1, 0, 0},
	}})

	f.addDocument(t, "D1", "a.txt", model.ModalityText)
	f.addFragment(t, &model.Fragment{
		ID: "F1", DocumentID: "D1", Modality: model.ModalityText, Content: "kept",
	}, model.Vector{1, 0, 0})

	// Vector without a registry row.
	idx, _ := f.indexes.Index(model.ModalityText)
	require.NoError(t, idx.Insert("GHOST", model.Vector{1, 0, 0}))

	candidates, err := f.planner.Plan(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "F1", candidates[0].FragmentID)
}

func TestPlanTieBreaksByFragmentID(t *testing.T) {
	f := newFixture(t, &stubTextProvider{vectors: map[string]model.Vector{
		"q": {1, 0, 0},
	}})

	f.addDocument(t, "D1", "a.txt", model.ModalityText)
	f.addFragment(t, &model.Fragment{ID: "F2", DocumentID: "D1", Modality: model.ModalityText, Content: "b"}, model.Vector{1, 0, 0})
	f.addFragment(t, &model.Fragment{ID: "F1", DocumentID: "D1", Modality: model.ModalityText, Content: "a"}, model.Vector{1, 0, 0})

	candidates, err := f.planner.Plan(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "F1", candidates[0].FragmentID)
	assert.Equal(t, "F2", candidates[1].FragmentID)
}

func TestPlanCrossModalFusion(t *testing.T) {
	f := newFixture(t,
		&stubTextProvider{vectors: map[string]model.Vector{"sunset": {1, 0, 0}}},
		&stubSharedProvider{queries: map[string]model.Vector{"sunset": {0, 1, 0}}},
	)

	f.addDocument(t, "D1", "notes.txt", model.ModalityText)
	f.addDocument(t, "D2", "photo.png", model.ModalityImage)
	f.addFragment(t, &model.Fragment{ID: "F1", DocumentID: "D1", Modality: model.ModalityText, Content: "a sunset"}, model.Vector{1, 0, 0})
	f.addFragment(t, &model.Fragment{ID: "F2", DocumentID: "D2", Modality: model.ModalityImage}, model.Vector{0, 1, 0})

	candidates, err := f.planner.Plan(context.Background(), "sunset", nil)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	// Both spaces matched exactly; the tie breaks on fragment id.
	assert.Equal(t, "F1", candidates[0].FragmentID)
	assert.Equal(t, "F2", candidates[1].FragmentID)
	assert.Equal(t, model.ModalityImage, candidates[1].Modality)
}

func TestPlanExcludesSpaceWithoutQueryEncoder(t *testing.T) {
	blind := &stubBlindProvider{}
	f := newFixture(t,
		&stubTextProvider{vectors: map[string]model.Vector{"q": {1, 0, 0}}},
		blind,
	)

	f.addDocument(t, "D1", "a.txt", model.ModalityText)
	f.addDocument(t, "D2", "b.png", model.ModalityImage)
	f.addFragment(t, &model.Fragment{ID: "F1", DocumentID: "D1", Modality: model.ModalityText, Content: "x"}, model.Vector{1, 0, 0})
	f.addFragment(t, &model.Fragment{ID: "F2", DocumentID: "D2", Modality: model.ModalityImage}, model.Vector{1, 0, 0})

	// The image space is skipped silently, not failed.
	candidates, err := f.planner.Plan(context.Background(), "q", nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "F1", candidates[0].FragmentID)
}

func TestPlanAppliesBoosts(t *testing.T) {
	f := newFixture(t,
		&stubTextProvider{vectors: map[string]model.Vector{"q": {1, 0, 0}}},
		&stubSharedProvider{queries: map[string]model.Vector{"q": {1, 0, 0}}},
	)

	f.addDocument(t, "D1", "a.txt", model.ModalityText)
	f.addDocument(t, "D2", "b.png", model.ModalityImage)
	f.addFragment(t, &model.Fragment{ID: "F1", DocumentID: "D1", Modality: model.ModalityText, Content: "x"}, model.Vector{1, 0, 0})
	f.addFragment(t, &model.Fragment{ID: "F2", DocumentID: "D2", Modality: model.ModalityImage}, model.Vector{1, 0, 0})

	candidates, err := f.planner.Plan(context.Background(), "q", &biz.QueryOptions{
		Boosts: map[model.Modality]float64{model.ModalityImage: 2.0},
	})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "F2", candidates[0].FragmentID)
	assert.InDelta(t, 2.0, candidates[0].Score, 1e-9)
}

func TestPlanDocumentFilter(t *testing.T) {
	f := newFixture(t, &stubTextProvider{vectors: map[string]model.Vector{"q": {1, 0, 0}}})

	f.addDocument(t, "D1", "a.txt", model.ModalityText)
	f.addDocument(t, "D2", "b.txt", model.ModalityText)
	f.addFragment(t, &model.Fragment{ID: "F1", DocumentID: "D1", Modality: model.ModalityText, Content: "x"}, model.Vector{1, 0, 0})
	f.addFragment(t, &model.Fragment{ID: "F2", DocumentID: "D2", Modality: model.ModalityText, Content: "y"}, model.Vector{1, 0, 0})

	candidates, err := f.planner.Plan(context.Background(), "q", &biz.QueryOptions{
		DocumentIDs: []string{"D2"},
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "F2", candidates[0].FragmentID)
}

func TestPlanTopKDefaultAndTruncation(t *testing.T) {
	f := newFixture(t, &stubTextProvider{vectors: map[string]model.Vector{"q": {1, 0, 0}}})

	f.addDocument(t, "D1", "a.txt", model.ModalityText)
	for i := 0; i < 8; i++ {
		f.addFragment(t, &model.Fragment{
			ID:         fmt.Sprintf("F%d", i),
			DocumentID: "D1",
			Modality:   model.ModalityText,
			Content:    "x",
		}, model.Vector{1, 0, 0})
	}

	candidates, err := f.planner.Plan(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Len(t, candidates, biz.DefaultTopK)

	candidates, err = f.planner.Plan(context.Background(), "q", &biz.QueryOptions{TopK: 2})
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
}

func TestPlanValidation(t *testing.T) {
	f := newFixture(t, &stubTextProvider{vectors: map[string]model.Vector{}})

	var verr *model.ValidationError
	_, err := f.planner.Plan(context.Background(), "", nil)
	require.ErrorAs(t, err, &verr)

	_, err = f.planner.Plan(context.Background(), "q", &biz.QueryOptions{TopK: -1})
	require.ErrorAs(t, err, &verr)

	_, err = f.planner.Plan(context.Background(), "q", &biz.QueryOptions{
		Modalities: []model.Modality{"video"},
	})
	require.ErrorAs(t, err, &verr)
}

func TestPlanIsDeterministic(t *testing.T) {
	f := newFixture(t, &stubTextProvider{vectors: map[string]model.Vector{"q": {1, 1, 0}}})

	f.addDocument(t, "D1", "a.txt", model.ModalityText)
	f.addFragment(t, &model.Fragment{ID: "F1", DocumentID: "D1", Modality: model.ModalityText, Content: "a"}, model.Vector{1, 0, 0})
	f.addFragment(t, &model.Fragment{ID: "F2", DocumentID: "D1", Modality: model.ModalityText, Content: "b"}, model.Vector{0, 1, 0})
	f.addFragment(t, &model.Fragment{ID: "F3", DocumentID: "D1", Modality: model.ModalityText, Content: "c"}, model.Vector{0, 0, 1})

	first, err := f.planner.Plan(context.Background(), "q", nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := f.planner.Plan(context.Background(), "q", nil)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
