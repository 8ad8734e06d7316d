package index

import (
	"container/heap"
	"math"
	"math/rand"

	"github.com/lumenkb/lumen/internal/model"
	"github.com/lumenkb/lumen/internal/pkg/vectormath"
)

// HNSWConfig tunes the approximate backend. EfSearch is the
// recall/latency knob: candidate breadth at query time.
type HNSWConfig struct {
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultHNSWConfig returns the default HNSW tuning.
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{
		M:              16,
		EfConstruction: 200,
		EfSearch:       100,
	}
}

// hnswBackend is a hierarchical navigable small world graph. Removed
// nodes become tombstones: they keep routing traffic through the graph
// but never appear in results.
type hnswBackend struct {
	cfg  HNSWConfig
	mult float64
	rng  *rand.Rand

	nodes    []*hnswNode
	byID     map[string]int
	entry    int
	topLevel int
	live     int
}

type hnswNode struct {
	id      string
	vec     model.Vector
	links   [][]int
	deleted bool
}

// NewHNSW creates the approximate backend.
func NewHNSW(cfg HNSWConfig) Backend {
	def := DefaultHNSWConfig()
	if cfg.M <= 0 {
		cfg.M = def.M
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = def.EfConstruction
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = def.EfSearch
	}

	return &hnswBackend{
		cfg:  cfg,
		mult: 1 / math.Log(float64(cfg.M)),
		// Seeded so graph construction is reproducible for a given
		// insert order.
		rng:   rand.New(rand.NewSource(1)),
		byID:  make(map[string]int),
		entry: -1,
	}
}

func (b *hnswBackend) sim(q model.Vector, slot int) float64 {
	return vectormath.Dot(q, b.nodes[slot].vec)
}

func (b *hnswBackend) maxNeighbors(layer int) int {
	if layer == 0 {
		return 2 * b.cfg.M
	}
	return b.cfg.M
}

func (b *hnswBackend) randomLevel() int {
	u := b.rng.Float64()
	if u < 1e-12 {
		u = 1e-12
	}
	return int(math.Floor(-math.Log(u) * b.mult))
}

func (b *hnswBackend) Insert(id string, vec model.Vector) {
	if slot, ok := b.byID[id]; ok {
		// Replace: tombstone the old node and insert fresh.
		b.nodes[slot].deleted = true
		delete(b.byID, id)
		b.live--
	}

	level := b.randomLevel()
	node := &hnswNode{
		id:    id,
		vec:   vec,
		links: make([][]int, level+1),
	}
	slot := len(b.nodes)
	b.nodes = append(b.nodes, node)
	b.byID[id] = slot
	b.live++

	if b.entry < 0 {
		b.entry = slot
		b.topLevel = level
		return
	}

	cur := b.entry
	for l := b.topLevel; l > level; l-- {
		cur = b.greedyClosest(vec, cur, l)
	}

	start := level
	if b.topLevel < start {
		start = b.topLevel
	}
	for l := start; l >= 0; l-- {
		candidates := b.searchLayer(vec, cur, b.cfg.EfConstruction, l)

		limit := b.cfg.M
		if len(candidates) < limit {
			limit = len(candidates)
		}
		neighbors := make([]int, limit)
		for i := 0; i < limit; i++ {
			neighbors[i] = candidates[i].slot
		}
		node.links[l] = neighbors

		for _, n := range neighbors {
			b.nodes[n].links[l] = append(b.nodes[n].links[l], slot)
			b.pruneNeighbors(n, l)
		}

		if len(candidates) > 0 {
			cur = candidates[0].slot
		}
	}

	if level > b.topLevel {
		b.topLevel = level
		b.entry = slot
	}
}

// pruneNeighbors trims an overfull adjacency list to the nearest
// neighbors of its owner.
func (b *hnswBackend) pruneNeighbors(slot, layer int) {
	links := b.nodes[slot].links[layer]
	limit := b.maxNeighbors(layer)
	if len(links) <= limit {
		return
	}

	scored := make([]scoredSlot, len(links))
	for i, n := range links {
		scored[i] = scoredSlot{slot: n, sim: b.sim(b.nodes[slot].vec, n)}
	}
	sortScoredDesc(scored)

	kept := make([]int, limit)
	for i := 0; i < limit; i++ {
		kept[i] = scored[i].slot
	}
	b.nodes[slot].links[layer] = kept
}

func (b *hnswBackend) greedyClosest(q model.Vector, start, layer int) int {
	best := start
	bestSim := b.sim(q, best)
	for {
		improved := false
		for _, nb := range b.nodes[best].links[layer] {
			if s := b.sim(q, nb); s > bestSim {
				best, bestSim = nb, s
				improved = true
			}
		}
		if !improved {
			return best
		}
	}
}

type scoredSlot struct {
	slot int
	sim  float64
}

func sortScoredDesc(s []scoredSlot) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].sim > s[j-1].sim; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

type candidateHeap struct {
	items []scoredSlot
	min   bool
}

func (h *candidateHeap) Len() int { return len(h.items) }
func (h *candidateHeap) Less(i, j int) bool {
	if h.min {
		return h.items[i].sim < h.items[j].sim
	}
	return h.items[i].sim > h.items[j].sim
}
func (h *candidateHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *candidateHeap) Push(x any)    { h.items = append(h.items, x.(scoredSlot)) }
func (h *candidateHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// searchLayer runs best-first search at one layer, returning up to ef
// candidates ordered by descending similarity. Tombstoned nodes are
// traversed and returned; callers filter them.
func (b *hnswBackend) searchLayer(q model.Vector, entry, ef, layer int) []scoredSlot {
	visited := map[int]bool{entry: true}
	entrySim := b.sim(q, entry)

	cand := &candidateHeap{}
	res := &candidateHeap{min: true}
	heap.Push(cand, scoredSlot{entry, entrySim})
	heap.Push(res, scoredSlot{entry, entrySim})

	for cand.Len() > 0 {
		c := heap.Pop(cand).(scoredSlot)
		if res.Len() >= ef && c.sim < res.items[0].sim {
			break
		}
		for _, nb := range b.nodes[c.slot].links[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			s := b.sim(q, nb)
			if res.Len() < ef || s > res.items[0].sim {
				heap.Push(cand, scoredSlot{nb, s})
				heap.Push(res, scoredSlot{nb, s})
				if res.Len() > ef {
					heap.Pop(res)
				}
			}
		}
	}

	out := make([]scoredSlot, len(res.items))
	copy(out, res.items)
	sortScoredDesc(out)
	return out
}

func (b *hnswBackend) Remove(id string) bool {
	slot, ok := b.byID[id]
	if !ok {
		return false
	}
	b.nodes[slot].deleted = true
	delete(b.byID, id)
	b.live--
	return true
}

func (b *hnswBackend) Search(query model.Vector, k int) []Hit {
	if b.entry < 0 || b.live == 0 {
		return []Hit{}
	}

	cur := b.entry
	for l := b.topLevel; l >= 1; l-- {
		cur = b.greedyClosest(query, cur, l)
	}

	ef := b.cfg.EfSearch
	if k > ef {
		ef = k
	}
	candidates := b.searchLayer(query, cur, ef, 0)

	hits := make([]Hit, 0, len(candidates))
	for _, c := range candidates {
		node := b.nodes[c.slot]
		if node.deleted {
			continue
		}
		hits = append(hits, Hit{
			FragmentID: node.id,
			Score:      vectormath.UnitScore(c.sim),
		})
	}

	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func (b *hnswBackend) Len() int {
	return b.live
}

func (b *hnswBackend) Walk(fn func(id string, vec model.Vector)) {
	for _, node := range b.nodes {
		if node.deleted {
			continue
		}
		fn(node.id, node.vec)
	}
}
