// Package clip provides an embedding provider backed by a CLIP-style
// encoder sidecar. Images, audio clips, and text queries all land in
// the same vector space, which is what makes cross-modal retrieval
// work: a text question can be scored against image and audio indexes.
package clip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lumenkb/lumen/internal/model"
	"github.com/lumenkb/lumen/pkg/embedding"
)

const ProviderName = "clip"

func init() {
	embedding.Register(ProviderName, NewProvider)
}

// Config holds the encoder sidecar configuration.
type Config struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	Model      string        `json:"model" mapstructure:"model"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:8600",
		Model:      "clip-vit-base-patch32",
		Timeout:    120 * time.Second,
		MaxRetries: 0,
	}
}

// Provider embeds image and audio content via the encoder sidecar.
type Provider struct {
	config     *Config
	httpClient *http.Client
}

// NewProvider creates a Provider from a configuration map.
func NewProvider(configMap map[string]any) (embedding.Provider, error) {
	cfg := DefaultConfig()

	if v, ok := configMap["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := configMap["model"].(string); ok && v != "" {
		cfg.Model = v
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["max_retries"].(int); ok && v > 0 {
		cfg.MaxRetries = v
	}

	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig creates a Provider from a structured config.
func NewProviderWithConfig(cfg *Config) *Provider {
	return &Provider{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return ProviderName
}

// Modalities returns the modalities this provider accepts.
func (p *Provider) Modalities() []model.Modality {
	return []model.Modality{model.ModalityImage, model.ModalityAudio}
}

type encodeRequest struct {
	Model string    `json:"model"`
	Image string    `json:"image,omitempty"`
	Audio []float32 `json:"audio,omitempty"`
	Text  string    `json:"text,omitempty"`
}

type encodeResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed produces a vector for image or audio content.
func (p *Provider) Embed(ctx context.Context, content embedding.Content) (model.Vector, error) {
	var req encodeRequest
	req.Model = p.config.Model

	switch c := content.(type) {
	case embedding.ImageContent:
		req.Image = base64.StdEncoding.EncodeToString(c)
	case embedding.AudioContent:
		req.Audio = c
	default:
		return nil, fmt.Errorf("clip provider accepts image or audio content, got %s", content.Modality())
	}

	return p.encode(ctx, &req)
}

// EmbedQuery embeds a text query into the shared space, enabling
// cross-modal search against the image and audio indexes.
func (p *Provider) EmbedQuery(ctx context.Context, text string) (model.Vector, error) {
	return p.encode(ctx, &encodeRequest{Model: p.config.Model, Text: text})
}

func (p *Provider) encode(ctx context.Context, encReq *encodeRequest) (model.Vector, error) {
	body, err := json.Marshal(encReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := p.doRequestWithRetry(ctx, p.config.BaseURL+"/v1/encode", body)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("encode request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var encResp encodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&encResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return model.Vector(encResp.Embedding), nil
}

// doRequestWithRetry posts body to url, building a fresh request per
// attempt so a retry never reuses a drained body.
func (p *Provider) doRequestWithRetry(ctx context.Context, url string, body []byte) (*http.Response, error) {
	var lastErr error
	for i := 0; i <= p.config.MaxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.httpClient.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if i < p.config.MaxRetries {
			time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
		}
	}
	return nil, lastErr
}
