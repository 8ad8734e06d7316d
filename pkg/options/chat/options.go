// Package chat provides configuration options for the answer
// generation provider.
package chat

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Options defines configuration options for the chat provider.
type Options struct {
	// Enabled turns on answer generation. Queries asking for an
	// answer fail when it is off.
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	Provider   string        `json:"provider" mapstructure:"provider"`
	BaseURL    string        `json:"base-url" mapstructure:"base-url"`
	Model      string        `json:"model" mapstructure:"model"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max-retries" mapstructure:"max-retries"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Enabled:    true,
		Provider:   "ollama",
		BaseURL:    "http://localhost:11434",
		Model:      "llama3.2",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// Validate checks if the options are valid.
func (o *Options) Validate() error {
	if !o.Enabled {
		return nil
	}
	if o.Provider == "" {
		return fmt.Errorf("chat provider must be set")
	}
	if o.BaseURL == "" {
		return fmt.Errorf("chat base-url must be set")
	}
	return nil
}

// ToConfigMap returns the chat provider factory configuration.
func (o *Options) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":    o.BaseURL,
		"model":       o.Model,
		"timeout":     o.Timeout,
		"max_retries": o.MaxRetries,
	}
}

// AddFlags adds flags for chat options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "chat.enabled", o.Enabled, "Enable answer generation")
	fs.StringVar(&o.Provider, "chat.provider", o.Provider, "Chat provider name")
	fs.StringVar(&o.BaseURL, "chat.base-url", o.BaseURL, "Chat service base URL")
	fs.StringVar(&o.Model, "chat.model", o.Model, "Chat model")
	fs.DurationVar(&o.Timeout, "chat.timeout", o.Timeout, "Chat request timeout")
	fs.IntVar(&o.MaxRetries, "chat.max-retries", o.MaxRetries, "Chat request max retries")
}
