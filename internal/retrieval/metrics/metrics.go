// Package metrics collects business metrics for the retrieval service.
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumenkb/lumen/internal/model"
)

// Metrics holds the retrieval service counters.
type Metrics struct {
	queriesTotal      uint64
	queriesCacheHits  uint64
	queriesCacheMiss  uint64
	queriesErrors     uint64
	queriesEmpty      uint64
	searchesText      uint64
	searchesImage     uint64
	searchesAudio     uint64
	documentsIngested uint64
	documentsFailed   uint64
	documentsDeleted  uint64
	fragmentsIndexed  uint64
	fragmentsRemoved  uint64
	embeddingErrors   uint64
	cascadeErrors     uint64

	durationMu    sync.Mutex
	queryDuration float64
	startTime     time.Time
}

var (
	global *Metrics
	once   sync.Once
)

// Get returns the process-wide metrics instance.
func Get() *Metrics {
	once.Do(func() {
		global = &Metrics{startTime: time.Now()}
	})
	return global
}

// RecordQuery records one query with its outcome.
func (m *Metrics) RecordQuery(duration time.Duration, cacheHit, empty bool, err error) {
	atomic.AddUint64(&m.queriesTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.queriesErrors, 1)
		return
	}
	if cacheHit {
		atomic.AddUint64(&m.queriesCacheHits, 1)
	} else {
		atomic.AddUint64(&m.queriesCacheMiss, 1)
	}
	if empty {
		atomic.AddUint64(&m.queriesEmpty, 1)
	}

	m.durationMu.Lock()
	m.queryDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordSearch records one per-modality index search.
func (m *Metrics) RecordSearch(modality model.Modality) {
	switch modality {
	case model.ModalityText:
		atomic.AddUint64(&m.searchesText, 1)
	case model.ModalityImage:
		atomic.AddUint64(&m.searchesImage, 1)
	case model.ModalityAudio:
		atomic.AddUint64(&m.searchesAudio, 1)
	}
}

// RecordIngest records a completed or failed document ingestion.
func (m *Metrics) RecordIngest(fragments int, err error) {
	if err != nil {
		atomic.AddUint64(&m.documentsFailed, 1)
		return
	}
	atomic.AddUint64(&m.documentsIngested, 1)
	atomic.AddUint64(&m.fragmentsIndexed, uint64(fragments))
}

// RecordEmbeddingError records an embedding provider failure.
func (m *Metrics) RecordEmbeddingError() {
	atomic.AddUint64(&m.embeddingErrors, 1)
}

// RecordDelete records a cascade delete.
func (m *Metrics) RecordDelete(fragments int, err error) {
	if err != nil {
		atomic.AddUint64(&m.cascadeErrors, 1)
		return
	}
	atomic.AddUint64(&m.documentsDeleted, 1)
	atomic.AddUint64(&m.fragmentsRemoved, uint64(fragments))
}

// Export renders the counters in Prometheus text format.
func (m *Metrics) Export(namespace string) string {
	var sb strings.Builder

	counter := func(name, help string, v uint64) {
		full := namespace + "_" + name
		sb.WriteString(fmt.Sprintf("# HELP %s %s\n", full, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s counter\n", full))
		sb.WriteString(fmt.Sprintf("%s %d\n\n", full, v))
	}

	counter("queries_total", "Total number of retrieval queries.", atomic.LoadUint64(&m.queriesTotal))
	counter("queries_cache_hits_total", "Queries answered from the cache.", atomic.LoadUint64(&m.queriesCacheHits))
	counter("queries_cache_misses_total", "Queries not found in the cache.", atomic.LoadUint64(&m.queriesCacheMiss))
	counter("queries_errors_total", "Failed queries.", atomic.LoadUint64(&m.queriesErrors))
	counter("queries_empty_total", "Queries with no candidates.", atomic.LoadUint64(&m.queriesEmpty))
	counter("searches_text_total", "Text index searches.", atomic.LoadUint64(&m.searchesText))
	counter("searches_image_total", "Image index searches.", atomic.LoadUint64(&m.searchesImage))
	counter("searches_audio_total", "Audio index searches.", atomic.LoadUint64(&m.searchesAudio))
	counter("documents_ingested_total", "Documents ingested successfully.", atomic.LoadUint64(&m.documentsIngested))
	counter("documents_failed_total", "Document ingestions that failed.", atomic.LoadUint64(&m.documentsFailed))
	counter("documents_deleted_total", "Documents cascade-deleted.", atomic.LoadUint64(&m.documentsDeleted))
	counter("fragments_indexed_total", "Fragments indexed.", atomic.LoadUint64(&m.fragmentsIndexed))
	counter("fragments_removed_total", "Fragments removed.", atomic.LoadUint64(&m.fragmentsRemoved))
	counter("embedding_errors_total", "Embedding provider failures.", atomic.LoadUint64(&m.embeddingErrors))
	counter("cascade_errors_total", "Cascade deletes that left registry rows.", atomic.LoadUint64(&m.cascadeErrors))

	m.durationMu.Lock()
	duration := m.queryDuration
	m.durationMu.Unlock()

	sb.WriteString(fmt.Sprintf("# HELP %s_query_duration_seconds_total Total query duration.\n", namespace))
	sb.WriteString(fmt.Sprintf("# TYPE %s_query_duration_seconds_total counter\n", namespace))
	sb.WriteString(fmt.Sprintf("%s_query_duration_seconds_total %.6f\n\n", namespace, duration))

	sb.WriteString(fmt.Sprintf("# HELP %s_uptime_seconds Service uptime in seconds.\n", namespace))
	sb.WriteString(fmt.Sprintf("# TYPE %s_uptime_seconds gauge\n", namespace))
	sb.WriteString(fmt.Sprintf("%s_uptime_seconds %.2f\n", namespace, time.Since(m.startTime).Seconds()))

	return sb.String()
}

// Stats returns the counters for the stats API.
func (m *Metrics) Stats() map[string]any {
	m.durationMu.Lock()
	duration := m.queryDuration
	m.durationMu.Unlock()

	total := atomic.LoadUint64(&m.queriesTotal)
	avg := 0.0
	if done := total - atomic.LoadUint64(&m.queriesErrors); done > 0 {
		avg = duration / float64(done)
	}

	return map[string]any{
		"queries": map[string]any{
			"total":             total,
			"cache_hits":        atomic.LoadUint64(&m.queriesCacheHits),
			"cache_misses":      atomic.LoadUint64(&m.queriesCacheMiss),
			"errors":            atomic.LoadUint64(&m.queriesErrors),
			"empty":             atomic.LoadUint64(&m.queriesEmpty),
			"avg_duration_secs": avg,
		},
		"searches": map[string]any{
			"text":  atomic.LoadUint64(&m.searchesText),
			"image": atomic.LoadUint64(&m.searchesImage),
			"audio": atomic.LoadUint64(&m.searchesAudio),
		},
		"ingestion": map[string]any{
			"documents_ingested": atomic.LoadUint64(&m.documentsIngested),
			"documents_failed":   atomic.LoadUint64(&m.documentsFailed),
			"fragments_indexed":  atomic.LoadUint64(&m.fragmentsIndexed),
			"embedding_errors":   atomic.LoadUint64(&m.embeddingErrors),
		},
		"deletion": map[string]any{
			"documents_deleted": atomic.LoadUint64(&m.documentsDeleted),
			"fragments_removed": atomic.LoadUint64(&m.fragmentsRemoved),
			"cascade_errors":    atomic.LoadUint64(&m.cascadeErrors),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}

// Reset zeroes all counters. Test helper.
func (m *Metrics) Reset() {
	atomic.StoreUint64(&m.queriesTotal, 0)
	atomic.StoreUint64(&m.queriesCacheHits, 0)
	atomic.StoreUint64(&m.queriesCacheMiss, 0)
	atomic.StoreUint64(&m.queriesErrors, 0)
	atomic.StoreUint64(&m.queriesEmpty, 0)
	atomic.StoreUint64(&m.searchesText, 0)
	atomic.StoreUint64(&m.searchesImage, 0)
	atomic.StoreUint64(&m.searchesAudio, 0)
	atomic.StoreUint64(&m.documentsIngested, 0)
	atomic.StoreUint64(&m.documentsFailed, 0)
	atomic.StoreUint64(&m.documentsDeleted, 0)
	atomic.StoreUint64(&m.fragmentsIndexed, 0)
	atomic.StoreUint64(&m.fragmentsRemoved, 0)
	atomic.StoreUint64(&m.embeddingErrors, 0)
	atomic.StoreUint64(&m.cascadeErrors, 0)

	m.durationMu.Lock()
	m.queryDuration = 0
	m.startTime = time.Now()
	m.durationMu.Unlock()
}
