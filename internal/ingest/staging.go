// Package ingest keeps the knowledge base fed: it fetches market news,
// scrapes educational articles, stages everything in a queue table, and
// processes staged items into embedded knowledge entries.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoWork is returned by ClaimOne when no unprocessed item is available.
var ErrNoWork = errors.New("no unprocessed content available")

// Item is one staged piece of content awaiting processing.
type Item struct {
	ID             uuid.UUID
	SourceURL      string
	Title          string
	RawContent     string
	ContentType    string
	PublishedAtStr string
	CreatedAt      time.Time
}

// StagingStore manages the raw_content queue table.
//
// StagingStore is safe for concurrent use by multiple goroutines.
type StagingStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStagingStore creates a StagingStore.
func NewStagingStore(pool *pgxpool.Pool, logger *slog.Logger) (*StagingStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StagingStore{pool: pool, logger: logger}, nil
}

// Stage queues one piece of content. Re-staging an already known URL is a
// no-op, so fetchers can submit overlapping batches freely.
func (s *StagingStore) Stage(ctx context.Context, sourceURL, title, rawContent, contentType, publishedAtStr string) error {
	if sourceURL == "" {
		return fmt.Errorf("source URL is required")
	}
	if rawContent == "" {
		return fmt.Errorf("raw content is required")
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO raw_content (source_url, title, raw_content, content_type, published_at_str)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_url) DO NOTHING`,
		sourceURL, title, rawContent, contentType, publishedAtStr)
	if err != nil {
		return fmt.Errorf("staging %q: %w", sourceURL, err)
	}

	if tag.RowsAffected() > 0 {
		s.logger.Debug("staged content", "url", sourceURL, "type", contentType)
	}
	return nil
}

// Staged reports whether a URL is already queued, processed or not. Used by
// the scraper to avoid re-downloading article pages.
func (s *StagingStore) Staged(ctx context.Context, sourceURL string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM raw_content WHERE source_url = $1)`,
		sourceURL).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking staged content %q: %w", sourceURL, err)
	}
	return exists, nil
}

// Lease is an exclusive claim on one staged item. The row stays locked for
// the life of the lease; exactly one of Complete or Release must be called.
type Lease struct {
	item Item
	tx   pgx.Tx
}

// Item returns the claimed staging row.
func (l *Lease) Item() Item {
	return l.item
}

// ClaimOne locks and returns the oldest unprocessed item. Rows locked by
// concurrent workers are skipped, so parallel processors never contend for
// the same item. Returns ErrNoWork when the queue is empty.
func (s *StagingStore) ClaimOne(ctx context.Context) (WorkLease, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var it Item
	err = tx.QueryRow(ctx, `
		SELECT id, source_url, title, raw_content, content_type, COALESCE(published_at_str, ''), created_at
		FROM raw_content
		WHERE is_processed = FALSE
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`).Scan(
		&it.ID, &it.SourceURL, &it.Title, &it.RawContent, &it.ContentType, &it.PublishedAtStr, &it.CreatedAt)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoWork
		}
		return nil, fmt.Errorf("claiming staged item: %w", err)
	}

	return &Lease{item: it, tx: tx}, nil
}

// Tx exposes the lease transaction so the processor can write the knowledge
// entry in the same commit that flips the processed flag.
func (l *Lease) Tx() pgx.Tx {
	return l.tx
}

// Complete marks the item processed and commits the lease transaction.
func (l *Lease) Complete(ctx context.Context) error {
	_, err := l.tx.Exec(ctx,
		`UPDATE raw_content SET is_processed = TRUE WHERE id = $1`, l.item.ID)
	if err != nil {
		_ = l.tx.Rollback(ctx)
		return fmt.Errorf("marking item %s processed: %w", l.item.ID, err)
	}
	if err := l.tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing claim on %s: %w", l.item.ID, err)
	}
	return nil
}

// Release rolls the lease back, returning the item to the queue untouched.
func (l *Lease) Release(ctx context.Context) {
	_ = l.tx.Rollback(ctx)
}
