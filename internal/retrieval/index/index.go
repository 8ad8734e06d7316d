// Package index implements the per-modality vector indexes: an exact
// brute-force backend and an approximate HNSW backend behind the same
// contract, wrapped by a concurrency-safe Index that owns dimension
// enforcement and score normalization.
package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lumenkb/lumen/internal/model"
)

// Hit is one scored search result. Score is in [0, 1]: normalized
// cosine similarity, so an exact match scores 1.0.
type Hit struct {
	FragmentID string  `json:"fragment_id"`
	Score      float64 `json:"score"`
}

// Backend stores unit-length vectors keyed by fragment id. Backends are
// not safe for concurrent use; Index serializes access.
type Backend interface {
	// Insert stores vec under id, replacing any previous vector.
	Insert(id string, vec model.Vector)

	// Remove deletes id, reporting whether it was present. Removing
	// an absent id is a no-op.
	Remove(id string) bool

	// Search returns up to k hits for the unit-length query, ordered
	// by descending score with ties broken by ascending fragment id.
	Search(query model.Vector, k int) []Hit

	// Len returns the number of stored vectors.
	Len() int

	// Walk visits every stored vector. The callback must not mutate
	// the backend.
	Walk(fn func(id string, vec model.Vector))
}

// sortHits orders hits by descending score, ties by ascending fragment
// id. Every search result in the system passes through this ordering,
// which is what makes result order reproducible across runs.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].FragmentID < hits[j].FragmentID
	})
}

// Index wraps a Backend with an RWMutex and enforces the vector
// dimension of its modality. Reads run concurrently; writes are
// exclusive.
type Index struct {
	mu       sync.RWMutex
	modality model.Modality
	dim      int
	backend  Backend
}

// New creates an Index for the given modality and dimension.
func New(modality model.Modality, dim int, backend Backend) *Index {
	return &Index{
		modality: modality,
		dim:      dim,
		backend:  backend,
	}
}

// Modality returns the modality this index serves.
func (x *Index) Modality() model.Modality {
	return x.modality
}

// Dim returns the enforced vector dimension.
func (x *Index) Dim() int {
	return x.dim
}

// Insert stores vec under id. The vector is normalized to unit length
// on the way in; re-inserting an id replaces its vector. A wrong
// dimension is rejected, never truncated or padded.
func (x *Index) Insert(id string, vec model.Vector) error {
	if len(vec) != x.dim {
		return &model.DimensionMismatchError{Modality: x.modality, Want: x.dim, Got: len(vec)}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.backend.Insert(id, normalize(vec))
	return nil
}

// Remove deletes id from the index, reporting whether it was present.
func (x *Index) Remove(id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.backend.Remove(id)
}

// Search returns up to k hits for the query vector. An empty index
// yields an empty result.
func (x *Index) Search(query model.Vector, k int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, &model.DimensionMismatchError{Modality: x.modality, Want: x.dim, Got: len(query)}
	}
	if k < 1 {
		return nil, model.NewValidationError("k", fmt.Sprintf("must be at least 1, got %d", k))
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.backend.Search(normalize(query), k), nil
}

// Len returns the number of indexed vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.backend.Len()
}

// items returns a stable copy of the index contents for snapshotting.
func (x *Index) items() ([]string, []model.Vector) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ids := make([]string, 0, x.backend.Len())
	vecs := make([]model.Vector, 0, x.backend.Len())
	x.backend.Walk(func(id string, vec model.Vector) {
		ids = append(ids, id)
		vecs = append(vecs, vec)
	})
	return ids, vecs
}

// load bulk-inserts already-normalized vectors, used on snapshot
// restore.
func (x *Index) load(ids []string, vecs []model.Vector) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	for i, id := range ids {
		if len(vecs[i]) != x.dim {
			return &model.DimensionMismatchError{Modality: x.modality, Want: x.dim, Got: len(vecs[i])}
		}
		x.backend.Insert(id, vecs[i])
	}
	return nil
}
