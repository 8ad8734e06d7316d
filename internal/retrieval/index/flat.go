package index

import (
	"github.com/lumenkb/lumen/internal/model"

	"github.com/lumenkb/lumen/internal/pkg/vectormath"
)

// flatBackend is the exact backend: a full scan over all stored
// vectors. Scores are exact, which makes it the reference the
// approximate backend is tested against.
type flatBackend struct {
	vectors map[string]model.Vector
}

// NewFlat creates the exact brute-force backend.
func NewFlat() Backend {
	return &flatBackend{
		vectors: make(map[string]model.Vector),
	}
}

func (b *flatBackend) Insert(id string, vec model.Vector) {
	b.vectors[id] = vec
}

func (b *flatBackend) Remove(id string) bool {
	_, ok := b.vectors[id]
	delete(b.vectors, id)
	return ok
}

func (b *flatBackend) Search(query model.Vector, k int) []Hit {
	hits := make([]Hit, 0, len(b.vectors))
	for id, vec := range b.vectors {
		// Both sides are unit length, so the dot product is the
		// cosine similarity.
		hits = append(hits, Hit{
			FragmentID: id,
			Score:      vectormath.UnitScore(vectormath.Dot(query, vec)),
		})
	}

	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func (b *flatBackend) Len() int {
	return len(b.vectors)
}

func (b *flatBackend) Walk(fn func(id string, vec model.Vector)) {
	for id, vec := range b.vectors {
		fn(id, vec)
	}
}

func normalize(vec model.Vector) model.Vector {
	return model.Vector(vectormath.Normalized(vec))
}
