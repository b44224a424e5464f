package gen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const embedTimeout = 30 * time.Second

// Embedder computes text embeddings through an OpenAI-compatible endpoint.
type Embedder struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewEmbedder creates an Embedder. baseURL may point at any
// OpenAI-compatible provider; empty keeps the library default.
func NewEmbedder(apiKey, baseURL, model string, logger *slog.Logger) (*Embedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	return &Embedder{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		logger: logger,
	}, nil
}

// Embed returns the embedding vector for text. Newlines are collapsed to
// spaces before the request; some embedding models degrade on raw newlines.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if text == "" {
		return nil, fmt.Errorf("text is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}

	return resp.Data[0].Embedding, nil
}
