package biz_test

import (
	"context"
	"testing"

	"github.com/lumenkb/lumen/internal/model"
	"github.com/lumenkb/lumen/internal/retrieval/biz"
	"github.com/lumenkb/lumen/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubChat returns a canned answer and records the prompt it saw.
type stubChat struct {
	answer string
	prompt string
	err    error
}

func (c *stubChat) Chat(_ context.Context, _ []llm.Message) (string, error) {
	return c.answer, c.err
}

func (c *stubChat) Generate(_ context.Context, prompt, _ string) (string, error) {
	c.prompt = prompt
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

func (c *stubChat) Name() string { return "stub-chat" }

func newService(t *testing.T, f *fixture, chat llm.ChatProvider) *biz.RetrievalService {
	t.Helper()
	svc, err := biz.NewRetrievalService(f.registry, f.indexes, f.router, chat, nil, nil)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func textFixture(t *testing.T, vectors map[string]model.Vector) *fixture {
	t.Helper()
	return newFixture(t, &stubTextProvider{vectors: vectors})
}

func TestIngestLifecycle(t *testing.T) {
	f := textFixture(t, map[string]model.Vector{
		"revenue grew": {1, 0, 0},
		"costs fell":   {0, 1, 0},
	})
	svc := newService(t, f, &stubChat{})
	ctx := context.Background()

	page3, page4 := 3, 4
	doc, err := svc.Ingest(ctx, &biz.IngestRequest{
		Filename: "report.pdf",
		Modality: model.ModalityText,
		Fragments: []biz.IngestFragment{
			{Modality: model.ModalityText, Text: "revenue grew", PageNumber: &page3},
			{Modality: model.ModalityText, Text: "costs fell", PageNumber: &page4},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, model.DocumentProcessed, doc.Status)
	assert.Equal(t, 2, doc.FragmentCount)
	assert.NotEmpty(t, doc.ID)

	stored, err := svc.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentProcessed, stored.Status)
	assert.Equal(t, 2, stored.FragmentCount)

	assert.Equal(t, 2, f.indexes.Len())

	frags, err := f.registry.ListFragmentsByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, frags, 2)
}

func TestIngestEmbedFailureMarksDocumentFailed(t *testing.T) {
	// Only the first fragment has a stub vector; the second fails.
	f := textFixture(t, map[string]model.Vector{"ok": {1, 0, 0}})
	svc := newService(t, f, &stubChat{})
	ctx := context.Background()

	_, err := svc.Ingest(ctx, &biz.IngestRequest{
		Filename: "bad.txt",
		Modality: model.ModalityText,
		Fragments: []biz.IngestFragment{
			{Modality: model.ModalityText, Text: "ok"},
			{Modality: model.ModalityText, Text: "no vector"},
		},
	})
	var embedErr *model.EmbeddingError
	require.ErrorAs(t, err, &embedErr)
	assert.Equal(t, model.ModalityText, embedErr.Modality)

	// Nothing reached the indexes.
	assert.Equal(t, 0, f.indexes.Len())

	docs, err := svc.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, model.DocumentFailed, docs[0].Status)
	assert.Equal(t, 0, docs[0].FragmentCount)
}

func TestIngestValidation(t *testing.T) {
	f := textFixture(t, nil)
	svc := newService(t, f, &stubChat{})
	ctx := context.Background()

	var verr *model.ValidationError

	_, err := svc.Ingest(ctx, &biz.IngestRequest{Modality: model.ModalityText})
	require.ErrorAs(t, err, &verr)

	_, err = svc.Ingest(ctx, &biz.IngestRequest{Filename: "a", Modality: "video"})
	require.ErrorAs(t, err, &verr)

	_, err = svc.Ingest(ctx, &biz.IngestRequest{Filename: "a", Modality: model.ModalityText})
	require.ErrorAs(t, err, &verr)

	// Image fragments are not allowed for a text document.
	_, err = svc.Ingest(ctx, &biz.IngestRequest{
		Filename: "a.txt",
		Modality: model.ModalityText,
		Fragments: []biz.IngestFragment{
			{Modality: model.ModalityImage, Image: []byte{1}},
		},
	})
	require.ErrorAs(t, err, &verr)

	// Text fragment with no text.
	_, err = svc.Ingest(ctx, &biz.IngestRequest{
		Filename: "a.txt",
		Modality: model.ModalityText,
		Fragments: []biz.IngestFragment{
			{Modality: model.ModalityText},
		},
	})
	require.ErrorAs(t, err, &verr)

	// Nothing was persisted by the failed attempts.
	docs, err := svc.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDeleteDocumentRemovesEverything(t *testing.T) {
	f := textFixture(t, map[string]model.Vector{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
		"q": {1, 0, 0},
	})
	svc := newService(t, f, &stubChat{})
	ctx := context.Background()

	doc, err := svc.Ingest(ctx, &biz.IngestRequest{
		Filename: "a.txt",
		Modality: model.ModalityText,
		Fragments: []biz.IngestFragment{
			{Modality: model.ModalityText, Text: "a"},
			{Modality: model.ModalityText, Text: "b"},
		},
	})
	require.NoError(t, err)

	removed, err := svc.DeleteDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	assert.Equal(t, 0, f.indexes.Len())
	_, err = svc.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	result, err := svc.Query(ctx, "q", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
}

func TestDeleteMissingDocumentIsNotFound(t *testing.T) {
	f := textFixture(t, nil)
	svc := newService(t, f, &stubChat{})

	_, err := svc.DeleteDocument(context.Background(), "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestQueryReturnsCandidatesAndCitations(t *testing.T) {
	f := textFixture(t, map[string]model.Vector{
		"Revenue grew 10%":        {1, 0, 0},
		"How did revenue change?": {1, 0, 0},
	})
	svc := newService(t, f, &stubChat{})
	ctx := context.Background()

	page := 3
	_, err := svc.Ingest(ctx, &biz.IngestRequest{
		Filename: "report.pdf",
		Modality: model.ModalityText,
		Fragments: []biz.IngestFragment{
			{Modality: model.ModalityText, Text: "Revenue grew 10%", PageNumber: &page},
		},
	})
	require.NoError(t, err)

	result, err := svc.Query(ctx, "How did revenue change?", nil)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	require.Len(t, result.Citations, 1)

	cit := result.Citations[0]
	assert.Equal(t, 1, cit.Number)
	assert.Equal(t, "report.pdf", cit.Filename)
	assert.Equal(t, "page 3", cit.Locator)
	assert.Equal(t, "Revenue grew 10%", cit.Excerpt)
	assert.InDelta(t, 1.0, cit.Score, 1e-9)
	assert.Empty(t, result.Answer)
}

func TestQueryWithAnswer(t *testing.T) {
	f := textFixture(t, map[string]model.Vector{
		"fact": {1, 0, 0},
		"q":    {1, 0, 0},
	})
	chat := &stubChat{answer: "Revenue grew, see [1]."}
	svc := newService(t, f, chat)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, &biz.IngestRequest{
		Filename: "facts.txt",
		Modality: model.ModalityText,
		Fragments: []biz.IngestFragment{
			{Modality: model.ModalityText, Text: "fact"},
		},
	})
	require.NoError(t, err)

	result, err := svc.Query(ctx, "q", &biz.QueryOptions{WithAnswer: true})
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew, see [1].", result.Answer)

	// The prompt carries the numbered evidence and the question.
	assert.Contains(t, chat.prompt, "[1] facts.txt")
	assert.Contains(t, chat.prompt, "fact")
	assert.Contains(t, chat.prompt, "Question: q")
}

func TestQueryWithAnswerWhenGenerationDisabled(t *testing.T) {
	f := textFixture(t, map[string]model.Vector{
		"fact": {1, 0, 0},
		"q":    {1, 0, 0},
	})
	svc := newService(t, f, nil)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, &biz.IngestRequest{
		Filename: "facts.txt",
		Modality: model.ModalityText,
		Fragments: []biz.IngestFragment{
			{Modality: model.ModalityText, Text: "fact"},
		},
	})
	require.NoError(t, err)

	// No chat provider wired: asking for an answer is a validation
	// error, not a crash.
	_, err = svc.Query(ctx, "q", &biz.QueryOptions{WithAnswer: true})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)

	// Retrieval-only queries still work.
	result, err := svc.Query(ctx, "q", nil)
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 1)
}

func TestQueryDoesNotMutateCallerOptions(t *testing.T) {
	f := textFixture(t, map[string]model.Vector{"q": {1, 0, 0}})
	svc := newService(t, f, &stubChat{})

	opts := &biz.QueryOptions{}
	_, err := svc.Query(context.Background(), "q", opts)
	require.NoError(t, err)
	assert.Equal(t, 0, opts.TopK)
}

func TestQueryEmptyKnowledgeBaseWithAnswer(t *testing.T) {
	f := textFixture(t, map[string]model.Vector{"q": {1, 0, 0}})
	svc := newService(t, f, &stubChat{answer: "unused"})

	result, err := svc.Query(context.Background(), "q", &biz.QueryOptions{WithAnswer: true})
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	assert.Empty(t, result.Citations)
	assert.Contains(t, result.Answer, "couldn't find")
}

func TestGetStats(t *testing.T) {
	f := textFixture(t, map[string]model.Vector{"a": {1, 0, 0}})
	svc := newService(t, f, &stubChat{})
	ctx := context.Background()

	_, err := svc.Ingest(ctx, &biz.IngestRequest{
		Filename: "a.txt",
		Modality: model.ModalityText,
		Fragments: []biz.IngestFragment{
			{Modality: model.ModalityText, Text: "a"},
		},
	})
	require.NoError(t, err)

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["documents"])
	assert.Equal(t, int64(1), stats["fragments"])

	indexes := stats["indexes"].(map[string]int)
	assert.Equal(t, 1, indexes["text"])

	cache := stats["cache"].(map[string]any)
	assert.Equal(t, false, cache["enabled"])
}
