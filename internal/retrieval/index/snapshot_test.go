package index_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lumenkb/lumen/internal/model"
	"github.com/lumenkb/lumen/internal/retrieval/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func managerConfig(dir string) *index.Config {
	return &index.Config{
		Backend: index.BackendFlat,
		Dims: map[model.Modality]int{
			model.ModalityText:  4,
			model.ModalityImage: 3,
		},
		SnapshotDir: dir,
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()

	mgr, err := index.NewManager(managerConfig(dir))
	require.NoError(t, err)

	text, ok := mgr.Index(model.ModalityText)
	require.True(t, ok)
	require.NoError(t, text.Insert("T1", model.Vector{1, 0, 0, 0}))
	require.NoError(t, text.Insert("T2", model.Vector{0, 1, 0, 0}))

	img, ok := mgr.Index(model.ModalityImage)
	require.True(t, ok)
	require.NoError(t, img.Insert("I1", model.Vector{0, 0, 1}))

	require.NoError(t, mgr.Snapshot())

	restored, err := index.NewManager(managerConfig(dir))
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Len())

	text2, _ := restored.Index(model.ModalityText)
	hits, err := text2.Search(model.Vector{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "T1", hits[0].FragmentID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestRestoreWithoutSnapshotFiles(t *testing.T) {
	mgr, err := index.NewManager(managerConfig(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, 0, mgr.Len())
}

func TestRestoreCorruptSnapshotStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "text.idx"), []byte("not a snapshot"), 0o644))

	mgr, err := index.NewManager(managerConfig(dir))
	require.NoError(t, err)
	assert.Equal(t, 0, mgr.Len())
}

func TestRestoreRejectsDimensionChange(t *testing.T) {
	dir := t.TempDir()

	mgr, err := index.NewManager(managerConfig(dir))
	require.NoError(t, err)
	text, _ := mgr.Index(model.ModalityText)
	require.NoError(t, text.Insert("T1", model.Vector{1, 0, 0, 0}))
	require.NoError(t, mgr.Snapshot())

	cfg := managerConfig(dir)
	cfg.Dims[model.ModalityText] = 8

	_, err = index.NewManager(cfg)
	var dimErr *model.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
}

func TestManagerRejectsUnknownBackend(t *testing.T) {
	cfg := managerConfig("")
	cfg.Backend = "quantum"

	_, err := index.NewManager(cfg)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestManagerModalitiesCanonicalOrder(t *testing.T) {
	mgr, err := index.NewManager(managerConfig(""))
	require.NoError(t, err)
	assert.Equal(t, []model.Modality{model.ModalityText, model.ModalityImage}, mgr.Modalities())
}
