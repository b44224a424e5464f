package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const entryCols = `id, source_url, title, processed_content, content_type,
	published_at, created_at, updated_at`

// Store persists knowledge entries and serves vector similarity queries.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a knowledge Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Upsert inserts an entry or updates the existing row for the same source
// URL. On conflict the title, text and published date are refreshed; the
// embedding column is written only on insert — embeddings are immutable by
// convention once stored.
func (s *Store) Upsert(ctx context.Context, e Entry) error {
	return s.upsert(ctx, s.pool, e)
}

// UpsertTx is Upsert inside an existing transaction. Used by the ingestion
// processor so the knowledge write and the staging-row flag flip commit
// together.
func (s *Store) UpsertTx(ctx context.Context, tx pgx.Tx, e Entry) error {
	return s.upsert(ctx, tx, e)
}

func (s *Store) upsert(ctx context.Context, q querier, e Entry) error {
	if e.SourceURL == "" {
		return fmt.Errorf("source URL is required")
	}
	if e.ContentType != TypeArticle && e.ContentType != TypeNews {
		return fmt.Errorf("invalid content type %q", e.ContentType)
	}
	if len(e.Embedding) == 0 {
		return fmt.Errorf("embedding is required")
	}

	vec := pgvector.NewVector(e.Embedding)
	_, err := q.Exec(ctx, `
		INSERT INTO processed_content (source_url, title, processed_content, embedding, content_type, published_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_url) DO UPDATE SET
			title = EXCLUDED.title,
			processed_content = EXCLUDED.processed_content,
			content_type = EXCLUDED.content_type,
			published_at = EXCLUDED.published_at,
			updated_at = now()`,
		e.SourceURL, e.Title, e.Content, vec, e.ContentType, e.PublishedAt)
	if err != nil {
		return fmt.Errorf("upserting knowledge entry %q: %w", e.SourceURL, err)
	}

	s.logger.Debug("upserted knowledge entry", "url", e.SourceURL, "type", e.ContentType)
	return nil
}

// SearchNearest returns the k entries closest to the query embedding by L2
// distance, nearest first.
func (s *Store) SearchNearest(ctx context.Context, embedding []float32, k int) ([]Entry, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	vec := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryCols+`
		FROM processed_content
		ORDER BY embedding <-> $1
		LIMIT $2`, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// LatestNews returns the n most recent news entries, newest first.
func (s *Store) LatestNews(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, fmt.Errorf("n must be positive, got %d", n)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+entryCols+`
		FROM processed_content
		WHERE content_type = $1
		ORDER BY published_at DESC NULLS LAST, created_at DESC
		LIMIT $2`, TypeNews, n)
	if err != nil {
		return nil, fmt.Errorf("listing news: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Exists reports whether an entry for the URL is already in the knowledge
// base.
func (s *Store) Exists(ctx context.Context, sourceURL string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_content WHERE source_url = $1)`,
		sourceURL).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking knowledge entry %q: %w", sourceURL, err)
	}
	return exists, nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SourceURL, &e.Title, &e.Content,
			&e.ContentType, &e.PublishedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning knowledge entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating knowledge entries: %w", err)
	}
	return entries, nil
}
