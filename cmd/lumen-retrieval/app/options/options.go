// Package options contains the flags and options for initializing the
// retrieval server.
package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/spf13/pflag"

	"github.com/lumenkb/lumen/internal/retrieval"
	cacheopts "github.com/lumenkb/lumen/pkg/options/cache"
	chatopts "github.com/lumenkb/lumen/pkg/options/chat"
	embedopts "github.com/lumenkb/lumen/pkg/options/embedding"
	httpopts "github.com/lumenkb/lumen/pkg/options/http"
	indexopts "github.com/lumenkb/lumen/pkg/options/index"
	logopts "github.com/lumenkb/lumen/pkg/options/logger"
	registryopts "github.com/lumenkb/lumen/pkg/options/registry"
	retrievalopts "github.com/lumenkb/lumen/pkg/options/retrieval"
)

// ServerOptions aggregates the retrieval server options.
type ServerOptions struct {
	LogOptions       *logopts.Options       `json:"log" mapstructure:"log"`
	HTTPOptions      *httpopts.Options      `json:"http" mapstructure:"http"`
	RegistryOptions  *registryopts.Options  `json:"registry" mapstructure:"registry"`
	CacheOptions     *cacheopts.Options     `json:"cache" mapstructure:"cache"`
	EmbeddingOptions *embedopts.Options     `json:"embedding" mapstructure:"embedding"`
	ChatOptions      *chatopts.Options      `json:"chat" mapstructure:"chat"`
	IndexOptions     *indexopts.Options     `json:"index" mapstructure:"index"`
	RetrievalOptions *retrievalopts.Options `json:"retrieval" mapstructure:"retrieval"`
}

// NewServerOptions creates a ServerOptions instance with default
// values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		LogOptions:       logopts.NewOptions(),
		HTTPOptions:      httpopts.NewOptions(),
		RegistryOptions:  registryopts.NewOptions(),
		CacheOptions:     cacheopts.NewOptions(),
		EmbeddingOptions: embedopts.NewOptions(),
		ChatOptions:      chatopts.NewOptions(),
		IndexOptions:     indexopts.NewOptions(),
		RetrievalOptions: retrievalopts.NewOptions(),
	}
}

// AddFlags adds all option flags to the flagset.
func (o *ServerOptions) AddFlags(fs *pflag.FlagSet) {
	o.LogOptions.AddFlags(fs)
	o.HTTPOptions.AddFlags(fs)
	o.RegistryOptions.AddFlags(fs)
	o.CacheOptions.AddFlags(fs)
	o.EmbeddingOptions.AddFlags(fs)
	o.ChatOptions.AddFlags(fs)
	o.IndexOptions.AddFlags(fs)
	o.RetrievalOptions.AddFlags(fs)
}

// Validate validates all options.
func (o *ServerOptions) Validate() error {
	var errs []error

	errs = append(errs, o.LogOptions.Validate())
	errs = append(errs, o.HTTPOptions.Validate())
	errs = append(errs, o.RegistryOptions.Validate())
	errs = append(errs, o.CacheOptions.Validate())
	errs = append(errs, o.EmbeddingOptions.Validate())
	errs = append(errs, o.ChatOptions.Validate())
	errs = append(errs, o.IndexOptions.Validate())
	errs = append(errs, o.RetrievalOptions.Validate())

	return utilerrors.NewAggregate(errs)
}

// Complete fills in defaults the flags left unset.
func (o *ServerOptions) Complete() error {
	return o.LogOptions.Complete()
}

// Config builds the server configuration from the options.
func (o *ServerOptions) Config() (*retrieval.Config, error) {
	return &retrieval.Config{
		Logger:    o.LogOptions,
		HTTP:      o.HTTPOptions,
		Registry:  o.RegistryOptions,
		Cache:     o.CacheOptions,
		Embedding: o.EmbeddingOptions,
		Chat:      o.ChatOptions,
		Index:     o.IndexOptions,
		Retrieval: o.RetrievalOptions,
	}, nil
}
