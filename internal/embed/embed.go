// Package embed computes content embeddings through an OpenAI-compatible API.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/newsflow/internal/config"
	"github.com/ppiankov/newsflow/internal/logging"
)

// Embedder turns text into vectors
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEmbedder works with OpenAI and any compatible service (TEI, LocalAI, Ollama)
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder from cfg
func NewOpenAIEmbedder(cfg config.EmbeddingConfig, logger *slog.Logger) (*OpenAIEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("embedding base_url is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		// local services accept any key
		apiKey = "unused"
	}

	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logging.OrDefault(logger).With("component", "embedder"),
	}, nil
}

// Embed embeds a single text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedAll(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedAll embeds texts in one request. The result is index-aligned with texts.
func (e *OpenAIEmbedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("service returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(texts) {
			idx = i
		}
		vectors[idx] = d.Embedding
	}

	e.logger.Debug("embedded texts", "count", len(texts), "latency", time.Since(start))
	return vectors, nil
}
