// Package retrieval provides configuration options for query planning
// and citation assembly.
package retrieval

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Options defines configuration options for the retrieval pipeline.
type Options struct {
	// TopK is the default candidate count per query.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// ExcerptLimit is the citation excerpt length in runes.
	ExcerptLimit int `json:"excerpt-limit" mapstructure:"excerpt-limit"`

	// DedupOverlapping drops citations whose document and locator
	// duplicate a higher-ranked one.
	DedupOverlapping bool `json:"dedup-overlapping" mapstructure:"dedup-overlapping"`

	// SystemPrompt overrides the answer generation prompt template.
	SystemPrompt string `json:"system-prompt" mapstructure:"system-prompt"`

	// QueryTimeout bounds a query end to end.
	QueryTimeout time.Duration `json:"query-timeout" mapstructure:"query-timeout"`

	// WorkerPoolSize bounds concurrent embedding calls during
	// ingestion.
	WorkerPoolSize int `json:"worker-pool-size" mapstructure:"worker-pool-size"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		TopK:             5,
		ExcerptLimit:     200,
		DedupOverlapping: false,
		QueryTimeout:     60 * time.Second,
		WorkerPoolSize:   32,
	}
}

// Validate checks if the options are valid.
func (o *Options) Validate() error {
	if o.TopK < 1 {
		return fmt.Errorf("retrieval top-k must be positive, got %d", o.TopK)
	}
	if o.ExcerptLimit < 1 {
		return fmt.Errorf("retrieval excerpt-limit must be positive, got %d", o.ExcerptLimit)
	}
	if o.QueryTimeout <= 0 {
		return fmt.Errorf("retrieval query-timeout must be positive, got %s", o.QueryTimeout)
	}
	if o.WorkerPoolSize < 1 {
		return fmt.Errorf("retrieval worker-pool-size must be positive, got %d", o.WorkerPoolSize)
	}
	return nil
}

// AddFlags adds flags for retrieval options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.TopK, "retrieval.top-k", o.TopK, "Default candidate count per query")
	fs.IntVar(&o.ExcerptLimit, "retrieval.excerpt-limit", o.ExcerptLimit, "Citation excerpt length in runes")
	fs.BoolVar(&o.DedupOverlapping, "retrieval.dedup-overlapping", o.DedupOverlapping, "Drop citations overlapping a higher-ranked one")
	fs.StringVar(&o.SystemPrompt, "retrieval.system-prompt", o.SystemPrompt, "Answer generation prompt template")
	fs.DurationVar(&o.QueryTimeout, "retrieval.query-timeout", o.QueryTimeout, "Query timeout")
	fs.IntVar(&o.WorkerPoolSize, "retrieval.worker-pool-size", o.WorkerPoolSize, "Ingestion embedding worker pool size")
}
