package embedding_test

import (
	"context"
	"errors"
	"testing"

	"github.com/lumenkb/lumen/internal/model"
	"github.com/lumenkb/lumen/pkg/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name       string
	modalities []model.Modality
	vec        model.Vector
	err        error
}

func (s *stubProvider) Name() string                 { return s.name }
func (s *stubProvider) Modalities() []model.Modality { return s.modalities }

func (s *stubProvider) Embed(context.Context, embedding.Content) (model.Vector, error) {
	return s.vec, s.err
}

type stubSharedSpace struct {
	stubProvider
	queryVec model.Vector
}

func (s *stubSharedSpace) EmbedQuery(context.Context, string) (model.Vector, error) {
	return s.queryVec, nil
}

func TestRouteDispatchesByModality(t *testing.T) {
	r := embedding.NewRouter()
	r.Bind(&stubProvider{name: "text", modalities: []model.Modality{model.ModalityText}, vec: model.Vector{1, 0}})
	r.Bind(&stubProvider{name: "img", modalities: []model.Modality{model.ModalityImage}, vec: model.Vector{0, 1}})

	v, err := r.Route(context.Background(), embedding.TextContent("hello"))
	require.NoError(t, err)
	assert.Equal(t, model.Vector{1, 0}, v)

	v, err = r.Route(context.Background(), embedding.ImageContent{0xff})
	require.NoError(t, err)
	assert.Equal(t, model.Vector{0, 1}, v)
}

func TestRouteUnboundModality(t *testing.T) {
	r := embedding.NewRouter()

	_, err := r.Route(context.Background(), embedding.AudioContent{0.1})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestRouteWrapsProviderFailure(t *testing.T) {
	boom := errors.New("boom")
	r := embedding.NewRouter()
	r.Bind(&stubProvider{name: "text", modalities: []model.Modality{model.ModalityText}, err: boom})

	_, err := r.Route(context.Background(), embedding.TextContent("x"))
	var eerr *model.EmbeddingError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, model.ModalityText, eerr.Modality)
	assert.ErrorIs(t, err, boom)
}

func TestRouteRejectsEmptyVector(t *testing.T) {
	r := embedding.NewRouter()
	r.Bind(&stubProvider{name: "text", modalities: []model.Modality{model.ModalityText}})

	_, err := r.Route(context.Background(), embedding.TextContent("x"))
	var eerr *model.EmbeddingError
	require.ErrorAs(t, err, &eerr)
}

func TestQueryVectorCrossModal(t *testing.T) {
	shared := &stubSharedSpace{
		stubProvider: stubProvider{name: "clip", modalities: []model.Modality{model.ModalityImage}},
		queryVec:     model.Vector{0.5, 0.5},
	}

	r := embedding.NewRouter()
	r.Bind(&stubProvider{name: "text", modalities: []model.Modality{model.ModalityText}, vec: model.Vector{1, 0}})
	r.Bind(shared)

	// Text target always embeds.
	v, ok, err := r.QueryVector(context.Background(), "q", model.ModalityText)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.Vector{1, 0}, v)

	// Image provider supports text queries.
	v, ok, err = r.QueryVector(context.Background(), "q", model.ModalityImage)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.Vector{0.5, 0.5}, v)

	// Audio has no provider bound: silently excluded.
	_, ok, err = r.QueryVector(context.Background(), "q", model.ModalityAudio)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueryVectorProviderWithoutTextQueries(t *testing.T) {
	r := embedding.NewRouter()
	r.Bind(&stubProvider{name: "img", modalities: []model.Modality{model.ModalityImage}, vec: model.Vector{1}})

	_, ok, err := r.QueryVector(context.Background(), "q", model.ModalityImage)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry(t *testing.T) {
	embedding.Register("test-stub", func(map[string]any) (embedding.Provider, error) {
		return &stubProvider{name: "test-stub", modalities: []model.Modality{model.ModalityText}, vec: model.Vector{1}}, nil
	})

	p, err := embedding.New("test-stub", nil)
	require.NoError(t, err)
	assert.Equal(t, "test-stub", p.Name())
	assert.Contains(t, embedding.ListProviders(), "test-stub")

	_, err = embedding.New("nope", nil)
	assert.Error(t, err)
}
