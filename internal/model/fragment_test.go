package model_test

import (
	"errors"
	"testing"

	"github.com/lumenkb/lumen/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestModalityValid(t *testing.T) {
	assert.True(t, model.ModalityText.Valid())
	assert.True(t, model.ModalityImage.Valid())
	assert.True(t, model.ModalityAudio.Valid())
	assert.False(t, model.Modality("video").Valid())
	assert.False(t, model.Modality("").Valid())
}

func TestAllowedFragmentModalities(t *testing.T) {
	assert.Equal(t, []model.Modality{model.ModalityText}, model.AllowedFragmentModalities(model.ModalityText))
	assert.Contains(t, model.AllowedFragmentModalities(model.ModalityImage), model.ModalityText)
	assert.Contains(t, model.AllowedFragmentModalities(model.ModalityAudio), model.ModalityAudio)
	assert.Nil(t, model.AllowedFragmentModalities(model.Modality("video")))
}

func TestFragmentLocator(t *testing.T) {
	page := 3
	f := &model.Fragment{PageNumber: &page}
	assert.Equal(t, "page 3", f.Locator())

	start, end := int64(12000), int64(45000)
	a := &model.Fragment{StartMS: &start, EndMS: &end}
	assert.Equal(t, "00:12-00:45", a.Locator())

	assert.Equal(t, "", (&model.Fragment{}).Locator())
}

func TestErrorTaxonomy(t *testing.T) {
	dim := &model.DimensionMismatchError{Modality: model.ModalityText, Want: 384, Got: 100}
	assert.Contains(t, dim.Error(), "384")
	assert.Contains(t, dim.Error(), "100")

	inner := errors.New("connection refused")
	emb := &model.EmbeddingError{Modality: model.ModalityImage, Err: inner}
	assert.ErrorIs(t, emb, inner)

	cascade := &model.CascadeError{DocumentID: "D1", Remaining: []string{"F1"}, Err: inner}
	assert.ErrorIs(t, cascade, inner)
	assert.Contains(t, cascade.Error(), "D1")

	val := model.NewValidationError("top_k", "must be at least 1")
	assert.Contains(t, val.Error(), "top_k")
}
