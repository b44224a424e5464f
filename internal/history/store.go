// Package history persists the conversation log: one row per user/agent
// exchange, keyed by context id. The log is append-only; it is read back
// only to rebuild recent turns for prompt context.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Turn is one recorded user/agent exchange.
type Turn struct {
	ContextID    string
	UserMessage  string
	AgentMessage string
	CreatedAt    time.Time
}

// Store persists conversation turns in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a history Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Append records one exchange. There is no update or delete path.
func (s *Store) Append(ctx context.Context, contextID, userMessage, agentMessage string) error {
	if contextID == "" {
		return fmt.Errorf("context id is required")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversation_history (context_id, user_message, agent_message)
		VALUES ($1, $2, $3)`,
		contextID, userMessage, agentMessage)
	if err != nil {
		return fmt.Errorf("appending history for %q: %w", contextID, err)
	}

	s.logger.Debug("appended conversation turn", "context_id", contextID)
	return nil
}

// Recent returns the last n turns for the context in chronological order.
func (s *Store) Recent(ctx context.Context, contextID string, n int) ([]Turn, error) {
	if n <= 0 {
		return nil, fmt.Errorf("n must be positive, got %d", n)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT context_id, user_message, agent_message, created_at
		FROM conversation_history
		WHERE context_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, contextID, n)
	if err != nil {
		return nil, fmt.Errorf("loading history for %q: %w", contextID, err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ContextID, &t.UserMessage, &t.AgentMessage, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}

	// Reverse newest-first into chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Format renders turns as the "User: ...\nYou: ..." block consumed by the
// prompt templates.
func Format(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "User: %s\n", t.UserMessage)
		fmt.Fprintf(&b, "You: %s\n", t.AgentMessage)
	}
	return strings.TrimRight(b.String(), "\n")
}
