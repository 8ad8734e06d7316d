package index

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kart-io/logger"
	"github.com/lumenkb/lumen/internal/model"
)

// snapshot is the on-disk form of one modality's index: ids paired with
// their unit-length vectors.
type snapshot struct {
	Modality model.Modality
	Dim      int
	IDs      []string
	Vectors  []model.Vector
}

func (m *Manager) snapshotPath(modality model.Modality) string {
	return filepath.Join(m.snapshotDir, string(modality)+".idx")
}

// Snapshot writes every index to disk. Each file is written to a temp
// path and renamed, so a crash mid-write never corrupts the previous
// snapshot.
func (m *Manager) Snapshot() error {
	if m.snapshotDir == "" {
		return nil
	}
	if err := os.MkdirAll(m.snapshotDir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	for modality, idx := range m.indexes {
		ids, vecs := idx.items()
		snap := snapshot{
			Modality: modality,
			Dim:      idx.Dim(),
			IDs:      ids,
			Vectors:  vecs,
		}

		if err := writeSnapshot(m.snapshotPath(modality), &snap); err != nil {
			return fmt.Errorf("snapshot %s index: %w", modality, err)
		}
		logger.Infow("index snapshot written", "modality", modality, "vectors", len(ids))
	}
	return nil
}

func writeSnapshot(path string, snap *snapshot) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// restore loads any snapshot files present in the snapshot directory.
// Missing files are fine: the index starts empty. An unreadable or
// corrupt snapshot also starts empty, with a warning. A snapshot whose
// dimension disagrees with the configuration is a configuration error
// and fails startup.
func (m *Manager) restore() error {
	for modality, idx := range m.indexes {
		snap, err := readSnapshot(m.snapshotPath(modality))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			logger.Warnw("starting with an empty index, snapshot unreadable",
				"modality", modality, "error", err.Error())
			continue
		}

		if snap.Dim != idx.Dim() {
			return &model.DimensionMismatchError{Modality: modality, Want: idx.Dim(), Got: snap.Dim}
		}
		if len(snap.IDs) != len(snap.Vectors) {
			logger.Warnw("starting with an empty index, snapshot inconsistent",
				"modality", modality, "ids", len(snap.IDs), "vectors", len(snap.Vectors))
			continue
		}

		if err := idx.load(snap.IDs, snap.Vectors); err != nil {
			return fmt.Errorf("load %s snapshot: %w", modality, err)
		}
		logger.Infow("index snapshot restored", "modality", modality, "vectors", len(snap.IDs))
	}
	return nil
}

func readSnapshot(path string) (*snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
