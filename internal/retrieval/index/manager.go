package index

import (
	"fmt"

	"github.com/kart-io/logger"
	"github.com/lumenkb/lumen/internal/model"
)

// Backend names accepted by Config.Backend.
const (
	BackendFlat = "flat"
	BackendHNSW = "hnsw"
)

// Config configures the index manager.
type Config struct {
	// Backend selects the index implementation for all modalities.
	Backend string

	// Dims maps each served modality to its vector dimension.
	Dims map[model.Modality]int

	// SnapshotDir is where index snapshots are persisted. Empty
	// disables persistence.
	SnapshotDir string

	// HNSW tunes the approximate backend.
	HNSW HNSWConfig
}

// DefaultConfig returns the default manager configuration: exact
// search, 384-dim text, 512-dim image and audio (the shared encoder
// space).
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendFlat,
		Dims: map[model.Modality]int{
			model.ModalityText:  384,
			model.ModalityImage: 512,
			model.ModalityAudio: 512,
		},
		HNSW: DefaultHNSWConfig(),
	}
}

// Manager owns one Index per configured modality.
type Manager struct {
	indexes     map[model.Modality]*Index
	snapshotDir string
}

// NewManager builds the per-modality indexes and restores snapshots
// when a snapshot directory is configured.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	m := &Manager{
		indexes:     make(map[model.Modality]*Index, len(cfg.Dims)),
		snapshotDir: cfg.SnapshotDir,
	}

	for modality, dim := range cfg.Dims {
		if !modality.Valid() {
			return nil, model.NewValidationError("modality", fmt.Sprintf("unknown modality %q", modality))
		}
		if dim < 1 {
			return nil, model.NewValidationError("dim", fmt.Sprintf("%s dimension must be positive, got %d", modality, dim))
		}

		backend, err := newBackend(cfg)
		if err != nil {
			return nil, err
		}
		m.indexes[modality] = New(modality, dim, backend)
	}

	if m.snapshotDir != "" {
		if err := m.restore(); err != nil {
			return nil, fmt.Errorf("restore index snapshots: %w", err)
		}
	}

	return m, nil
}

func newBackend(cfg *Config) (Backend, error) {
	switch cfg.Backend {
	case BackendFlat, "":
		return NewFlat(), nil
	case BackendHNSW:
		return NewHNSW(cfg.HNSW), nil
	default:
		return nil, model.NewValidationError("index.backend", fmt.Sprintf("unknown backend %q", cfg.Backend))
	}
}

// Index returns the index for the given modality.
func (m *Manager) Index(modality model.Modality) (*Index, bool) {
	idx, ok := m.indexes[modality]
	return idx, ok
}

// Modalities returns the served modalities in canonical order.
func (m *Manager) Modalities() []model.Modality {
	out := make([]model.Modality, 0, len(m.indexes))
	for _, modality := range model.AllModalities() {
		if _, ok := m.indexes[modality]; ok {
			out = append(out, modality)
		}
	}
	return out
}

// Len returns the total number of indexed vectors across modalities.
func (m *Manager) Len() int {
	total := 0
	for _, idx := range m.indexes {
		total += idx.Len()
	}
	return total
}

// Remove deletes a fragment id from the index of its modality.
func (m *Manager) Remove(modality model.Modality, id string) bool {
	idx, ok := m.indexes[modality]
	if !ok {
		return false
	}
	return idx.Remove(id)
}

// Close persists snapshots when configured.
func (m *Manager) Close() error {
	if m.snapshotDir == "" {
		return nil
	}
	if err := m.Snapshot(); err != nil {
		logger.Errorw("failed to snapshot indexes on close", "error", err.Error())
		return err
	}
	return nil
}
