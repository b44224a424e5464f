package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/forexcompass/compass/internal/knowledge"
)

const (
	// searchK is how many nearest neighbors knowledge search considers.
	searchK = 3
	// newsLimit is how many recent news items the news tool returns.
	newsLimit = 5
)

// Embedder computes the query embedding for vector search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// KnowledgeReader is the slice of the knowledge store retrieval needs.
type KnowledgeReader interface {
	SearchNearest(ctx context.Context, embedding []float32, k int) ([]knowledge.Entry, error)
	LatestNews(ctx context.Context, limit int) ([]knowledge.Entry, error)
}

// Retriever resolves prompts into grounding context.
type Retriever struct {
	embedder Embedder
	store    KnowledgeReader
	logger   *slog.Logger
}

// NewRetriever creates a Retriever.
func NewRetriever(embedder Embedder, store KnowledgeReader, logger *slog.Logger) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("knowledge store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, store: store, logger: logger}, nil
}

// Retrieve routes the prompt to a tool and runs it. Tool failures come back
// as a not-found Context rather than an error: the caller always has a
// fallback answer path, so retrieval never aborts a request.
func (r *Retriever) Retrieve(ctx context.Context, prompt string) Context {
	tool := Classify(prompt)
	r.logger.Debug("routed prompt", "tool", tool.String())

	switch tool {
	case ToolLatestNews:
		return r.latestNews(ctx)
	default:
		return r.knowledgeSearch(ctx, prompt)
	}
}

func (r *Retriever) knowledgeSearch(ctx context.Context, prompt string) Context {
	embedding, err := r.embedder.Embed(ctx, prompt)
	if err != nil {
		r.logger.Warn("query embedding failed", "error", err)
		return NotFound("query embedding failed: " + err.Error())
	}

	entries, err := r.store.SearchNearest(ctx, embedding, searchK)
	if err != nil {
		r.logger.Warn("knowledge search failed", "error", err)
		return NotFound("knowledge search failed: " + err.Error())
	}
	if len(entries) == 0 {
		return NotFound("no knowledge entries matched")
	}

	// Each neighbor is rendered with a title header so the model can
	// attribute material to its source lesson. Headers count against the
	// context budget like any other text.
	docs := make([]string, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, fmt.Sprintf("--- Article Title: %s ---\n%s", e.Title, e.Content))
	}
	text := buildBlock(docs)
	if text == "" {
		return NotFound("matched entries were empty")
	}
	return Context{Found: true, Text: text}
}

func (r *Retriever) latestNews(ctx context.Context) Context {
	entries, err := r.store.LatestNews(ctx, newsLimit)
	if err != nil {
		r.logger.Warn("news lookup failed", "error", err)
		return NotFound("news lookup failed: " + err.Error())
	}
	if len(entries) == 0 {
		return NotFound("no news entries available")
	}

	docs := make([]string, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, fmt.Sprintf("- **%s**: %s", e.Title, e.Content))
	}
	text := buildBlock(docs)
	if text == "" {
		return NotFound("news entries were empty")
	}
	return Context{Found: true, Text: text}
}
