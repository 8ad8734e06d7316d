// Package index provides configuration options for the vector indexes.
package index

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Options defines configuration options for the per-modality vector
// indexes.
type Options struct {
	// Backend selects the index implementation (flat|hnsw).
	Backend string `json:"backend" mapstructure:"backend"`

	// TextDim, ImageDim and AudioDim fix the vector dimension per
	// modality. Zero disables the modality's index entirely.
	TextDim  int `json:"text-dim" mapstructure:"text-dim"`
	ImageDim int `json:"image-dim" mapstructure:"image-dim"`
	AudioDim int `json:"audio-dim" mapstructure:"audio-dim"`

	// SnapshotDir persists the indexes across restarts. Empty disables
	// persistence.
	SnapshotDir string `json:"snapshot-dir" mapstructure:"snapshot-dir"`

	// HNSW tuning parameters.
	HNSWM              int `json:"hnsw-m" mapstructure:"hnsw-m"`
	HNSWEfConstruction int `json:"hnsw-ef-construction" mapstructure:"hnsw-ef-construction"`
	HNSWEfSearch       int `json:"hnsw-ef-search" mapstructure:"hnsw-ef-search"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Backend:            "flat",
		TextDim:            384,
		ImageDim:           512,
		AudioDim:           512,
		SnapshotDir:        "data/index",
		HNSWM:              16,
		HNSWEfConstruction: 200,
		HNSWEfSearch:       100,
	}
}

// Validate checks if the options are valid.
func (o *Options) Validate() error {
	switch o.Backend {
	case "flat", "hnsw":
	default:
		return fmt.Errorf("index backend must be flat or hnsw, got %q", o.Backend)
	}
	if o.TextDim <= 0 && o.ImageDim <= 0 && o.AudioDim <= 0 {
		return fmt.Errorf("at least one index dimension must be positive")
	}
	if o.Backend == "hnsw" {
		if o.HNSWM < 2 {
			return fmt.Errorf("hnsw-m must be at least 2, got %d", o.HNSWM)
		}
		if o.HNSWEfConstruction < o.HNSWM {
			return fmt.Errorf("hnsw-ef-construction must be at least hnsw-m")
		}
		if o.HNSWEfSearch < 1 {
			return fmt.Errorf("hnsw-ef-search must be positive, got %d", o.HNSWEfSearch)
		}
	}
	return nil
}

// AddFlags adds flags for index options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Backend, "index.backend", o.Backend, "Vector index backend (flat|hnsw)")
	fs.IntVar(&o.TextDim, "index.text-dim", o.TextDim, "Text vector dimension (0 disables)")
	fs.IntVar(&o.ImageDim, "index.image-dim", o.ImageDim, "Image vector dimension (0 disables)")
	fs.IntVar(&o.AudioDim, "index.audio-dim", o.AudioDim, "Audio vector dimension (0 disables)")
	fs.StringVar(&o.SnapshotDir, "index.snapshot-dir", o.SnapshotDir, "Index snapshot directory (empty disables)")
	fs.IntVar(&o.HNSWM, "index.hnsw-m", o.HNSWM, "HNSW max neighbors per node")
	fs.IntVar(&o.HNSWEfConstruction, "index.hnsw-ef-construction", o.HNSWEfConstruction, "HNSW construction beam width")
	fs.IntVar(&o.HNSWEfSearch, "index.hnsw-ef-search", o.HNSWEfSearch, "HNSW search beam width")
}
