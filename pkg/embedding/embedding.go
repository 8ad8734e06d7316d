// Package embedding provides the multimodal embedding abstraction:
// tagged content variants, the provider registry, and the router that
// dispatches content to the provider for its modality.
package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/lumenkb/lumen/internal/model"
)

// Content is a tagged content variant. Exactly one concrete type exists
// per modality; adding a modality means adding a variant here and a
// provider that handles it.
type Content interface {
	Modality() model.Modality
	isContent()
}

// TextContent is raw text to embed.
type TextContent string

func (TextContent) Modality() model.Modality { return model.ModalityText }
func (TextContent) isContent()               {}

// ImageContent is an encoded image (PNG, JPEG).
type ImageContent []byte

func (ImageContent) Modality() model.Modality { return model.ModalityImage }
func (ImageContent) isContent()               {}

// AudioContent is mono PCM samples.
type AudioContent []float32

func (AudioContent) Modality() model.Modality { return model.ModalityAudio }
func (AudioContent) isContent()               {}

// Provider produces embedding vectors for one or more modalities.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Modalities lists the content modalities this provider accepts.
	Modalities() []model.Modality

	// Embed produces a vector for the given content.
	Embed(ctx context.Context, content Content) (model.Vector, error)
}

// QueryEncoder is implemented by providers whose vector space admits
// text queries, letting a text question be searched against non-text
// indexes (CLIP-style shared spaces).
type QueryEncoder interface {
	// EmbedQuery embeds a text query into the provider's vector space.
	EmbedQuery(ctx context.Context, text string) (model.Vector, error)
}

// Factory builds a provider from a configuration map.
type Factory func(config map[string]any) (Provider, error)

var registry = struct {
	mu        sync.RWMutex
	factories map[string]Factory
}{
	factories: make(map[string]Factory),
}

// Register registers a provider factory under name. Providers register
// themselves from init.
func Register(name string, factory Factory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.factories[name] = factory
}

// New creates a provider by registered name.
func New(name string, config map[string]any) (Provider, error) {
	registry.mu.RLock()
	factory, ok := registry.factories[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown embedding provider: %s", name)
	}
	return factory(config)
}

// ListProviders returns the registered provider names.
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.factories))
	for name := range registry.factories {
		names = append(names, name)
	}
	return names
}
