package embedding

import (
	"context"
	"fmt"

	"github.com/lumenkb/lumen/internal/model"
)

// Router dispatches content to the provider registered for its
// modality. Bindings are fixed at construction time; Route never
// guesses a provider for an unbound modality.
type Router struct {
	providers map[model.Modality]Provider
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		providers: make(map[model.Modality]Provider),
	}
}

// Bind registers provider for every modality it declares.
func (r *Router) Bind(p Provider) {
	for _, m := range p.Modalities() {
		r.providers[m] = p
	}
}

// Provider returns the provider bound to the given modality.
func (r *Router) Provider(m model.Modality) (Provider, bool) {
	p, ok := r.providers[m]
	return p, ok
}

// Route embeds content with the provider for its modality. An unbound
// modality is a validation error; a provider failure is wrapped in
// EmbeddingError with the modality attached.
func (r *Router) Route(ctx context.Context, content Content) (model.Vector, error) {
	m := content.Modality()
	p, ok := r.providers[m]
	if !ok {
		return nil, model.NewValidationError("modality", fmt.Sprintf("no embedding provider bound for %q", m))
	}

	vec, err := p.Embed(ctx, content)
	if err != nil {
		return nil, &model.EmbeddingError{Modality: m, Err: err}
	}
	if len(vec) == 0 {
		return nil, &model.EmbeddingError{Modality: m, Err: fmt.Errorf("provider %s returned empty vector", p.Name())}
	}
	return vec, nil
}

// QueryVector embeds a text question into the vector space of the given
// target modality. For text this is a plain embed. For other modalities
// it requires the bound provider to support text queries; when it does
// not, ok is false and the caller excludes that space from the search
// rather than failing the query.
func (r *Router) QueryVector(ctx context.Context, question string, target model.Modality) (model.Vector, bool, error) {
	if target == model.ModalityText {
		vec, err := r.Route(ctx, TextContent(question))
		if err != nil {
			return nil, true, err
		}
		return vec, true, nil
	}

	p, ok := r.providers[target]
	if !ok {
		return nil, false, nil
	}
	enc, ok := p.(QueryEncoder)
	if !ok {
		return nil, false, nil
	}

	vec, err := enc.EmbedQuery(ctx, question)
	if err != nil {
		return nil, true, &model.EmbeddingError{Modality: target, Err: err}
	}
	return vec, true, nil
}
