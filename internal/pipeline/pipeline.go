// Package pipeline runs one chat request end to end: cache lookup,
// retrieval, answer generation, and persistence. It owns the ordering and
// failure policy; the heavy lifting lives behind its interfaces.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/forexcompass/compass/internal/history"
	"github.com/forexcompass/compass/internal/retrieval"
)

// recentTurns is how many stored turns feed the prompt when the request
// carries no inline history.
const recentTurns = 5

// Cache stores recent answers keyed by the literal prompt.
type Cache interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// Retriever resolves a prompt into grounding context.
type Retriever interface {
	Retrieve(ctx context.Context, prompt string) retrieval.Context
}

// Generator produces the final answer text. On failure the returned text
// is still user-deliverable apology copy; the error marks the answer
// degraded.
type Generator interface {
	Synthesize(ctx context.Context, question, material, history string) (string, error)
	GeneralAnswer(ctx context.Context, question, history string) (string, error)
}

// HistoryStore persists and recalls conversation turns.
type HistoryStore interface {
	Append(ctx context.Context, contextID, userMessage, agentMessage string) error
	Recent(ctx context.Context, contextID string, n int) ([]history.Turn, error)
}

// Pipeline answers chat prompts.
type Pipeline struct {
	cache     Cache
	retriever Retriever
	generator Generator
	history   HistoryStore
	logger    *slog.Logger
}

// New creates a Pipeline. All collaborators are required.
func New(cache Cache, retriever Retriever, generator Generator, hist HistoryStore, logger *slog.Logger) (*Pipeline, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if hist == nil {
		return nil, fmt.Errorf("history store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cache:     cache,
		retriever: retriever,
		generator: generator,
		history:   hist,
		logger:    logger,
	}, nil
}

// Respond answers one prompt. inlineHistory, when non-empty, is a
// pre-rendered conversation block from the request and takes precedence
// over stored history.
//
// Respond always returns user-deliverable text. ok reports whether the
// answer is genuine: generation failures yield apology copy with ok set
// to false so callers can mark the task failed. Degraded answers are
// never cached.
func (p *Pipeline) Respond(ctx context.Context, contextID, prompt, inlineHistory string) (answer string, ok bool) {
	if answer, ok := p.cache.Get(prompt); ok {
		p.logger.Info("cache hit", "context_id", contextID)
		p.persist(ctx, contextID, prompt, answer)
		return answer, true
	}

	hist := inlineHistory
	if hist == "" && contextID != "" {
		turns, err := p.history.Recent(ctx, contextID, recentTurns)
		if err != nil {
			p.logger.Warn("loading history failed", "context_id", contextID, "error", err)
		} else {
			hist = history.Format(turns)
		}
	}

	retrieved := p.retriever.Retrieve(ctx, prompt)

	var genErr error
	if retrieved.Found {
		answer, genErr = p.generator.Synthesize(ctx, prompt, retrieved.Text, hist)
	} else {
		p.logger.Info("no context retrieved, answering from general knowledge",
			"context_id", contextID, "reason", retrieved.Reason)
		answer, genErr = p.generator.GeneralAnswer(ctx, prompt, hist)
	}

	p.persist(ctx, contextID, prompt, answer)
	if genErr != nil {
		return answer, false
	}
	p.cache.Set(prompt, answer)
	return answer, true
}

// persist appends the turn to history. Failures are logged, never fatal:
// the user already has their answer.
func (p *Pipeline) persist(ctx context.Context, contextID, prompt, answer string) {
	if contextID == "" {
		return
	}
	if err := p.history.Append(ctx, contextID, prompt, answer); err != nil {
		p.logger.Error("persisting conversation turn failed",
			"context_id", contextID, "error", err)
	}
}
