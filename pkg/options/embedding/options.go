// Package embedding provides configuration options for the embedding
// providers.
package embedding

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Options defines configuration options for the embedding providers:
// the text provider plus the optional multimodal encoder sidecar that
// serves image and audio content.
type Options struct {
	// Provider is the registered text embedding provider name.
	Provider   string        `json:"provider" mapstructure:"provider"`
	BaseURL    string        `json:"base-url" mapstructure:"base-url"`
	Model      string        `json:"model" mapstructure:"model"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max-retries" mapstructure:"max-retries"`

	// EncoderEnabled turns on the multimodal encoder provider.
	EncoderEnabled bool   `json:"encoder-enabled" mapstructure:"encoder-enabled"`
	EncoderName    string `json:"encoder-name" mapstructure:"encoder-name"`
	EncoderBaseURL string `json:"encoder-base-url" mapstructure:"encoder-base-url"`
	EncoderModel   string `json:"encoder-model" mapstructure:"encoder-model"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Provider:       "ollama",
		BaseURL:        "http://localhost:11434",
		Model:          "all-minilm",
		Timeout:        120 * time.Second,
		MaxRetries:     0,
		EncoderEnabled: false,
		EncoderName:    "clip",
		EncoderBaseURL: "http://localhost:8600",
		EncoderModel:   "clip-vit-base-patch32",
	}
}

// Validate checks if the options are valid.
func (o *Options) Validate() error {
	if o.Provider == "" {
		return fmt.Errorf("embedding provider must be set")
	}
	if o.BaseURL == "" {
		return fmt.Errorf("embedding base-url must be set")
	}
	if o.EncoderEnabled && o.EncoderBaseURL == "" {
		return fmt.Errorf("embedding encoder-base-url must be set when the encoder is enabled")
	}
	return nil
}

// ToConfigMap returns the text provider factory configuration.
func (o *Options) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":    o.BaseURL,
		"model":       o.Model,
		"timeout":     o.Timeout,
		"max_retries": o.MaxRetries,
	}
}

// ToEncoderConfigMap returns the encoder provider factory configuration.
func (o *Options) ToEncoderConfigMap() map[string]any {
	return map[string]any{
		"base_url":    o.EncoderBaseURL,
		"model":       o.EncoderModel,
		"timeout":     o.Timeout,
		"max_retries": o.MaxRetries,
	}
}

// AddFlags adds flags for embedding options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Provider, "embedding.provider", o.Provider, "Text embedding provider name")
	fs.StringVar(&o.BaseURL, "embedding.base-url", o.BaseURL, "Text embedding service base URL")
	fs.StringVar(&o.Model, "embedding.model", o.Model, "Text embedding model")
	fs.DurationVar(&o.Timeout, "embedding.timeout", o.Timeout, "Embedding request timeout")
	fs.IntVar(&o.MaxRetries, "embedding.max-retries", o.MaxRetries, "Embedding request max retries (0 disables retrying)")
	fs.BoolVar(&o.EncoderEnabled, "embedding.encoder-enabled", o.EncoderEnabled, "Enable the multimodal encoder provider")
	fs.StringVar(&o.EncoderName, "embedding.encoder-name", o.EncoderName, "Multimodal encoder provider name")
	fs.StringVar(&o.EncoderBaseURL, "embedding.encoder-base-url", o.EncoderBaseURL, "Multimodal encoder service base URL")
	fs.StringVar(&o.EncoderModel, "embedding.encoder-model", o.EncoderModel, "Multimodal encoder model")
}
