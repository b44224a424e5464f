package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forexcompass/compass/internal/knowledge"
)

// Cleaner strips boilerplate from raw scraped text.
type Cleaner interface {
	CleanContent(ctx context.Context, raw string) string
}

// Embedder computes the embedding stored alongside processed content.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// WorkLease is an exclusive claim on one staged item. *Lease satisfies it.
type WorkLease interface {
	Item() Item
	Complete(ctx context.Context) error
	Release(ctx context.Context)
}

// Claimer hands out exclusive leases on staged items.
type Claimer interface {
	ClaimOne(ctx context.Context) (WorkLease, error)
}

// KnowledgeWriter persists the processed entry inside the lease transaction.
type KnowledgeWriter interface {
	UpsertLeased(ctx context.Context, lease WorkLease, e knowledge.Entry) error
}

// storeWriter adapts *knowledge.Store to KnowledgeWriter.
type storeWriter struct {
	store *knowledge.Store
}

// NewKnowledgeWriter wraps a knowledge store for use by the Processor.
func NewKnowledgeWriter(store *knowledge.Store) KnowledgeWriter {
	return &storeWriter{store: store}
}

func (w *storeWriter) UpsertLeased(ctx context.Context, lease WorkLease, e knowledge.Entry) error {
	l, ok := lease.(*Lease)
	if !ok {
		return fmt.Errorf("lease does not carry a transaction")
	}
	return w.store.UpsertTx(ctx, l.Tx(), e)
}

// Processor turns staged raw content into embedded knowledge entries, one
// item per invocation.
type Processor struct {
	claimer  Claimer
	cleaner  Cleaner
	embedder Embedder
	writer   KnowledgeWriter
	logger   *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(claimer Claimer, cleaner Cleaner, embedder Embedder, writer KnowledgeWriter, logger *slog.Logger) (*Processor, error) {
	if claimer == nil {
		return nil, fmt.Errorf("claimer is required")
	}
	if cleaner == nil {
		return nil, fmt.Errorf("cleaner is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if writer == nil {
		return nil, fmt.Errorf("knowledge writer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		claimer:  claimer,
		cleaner:  cleaner,
		embedder: embedder,
		writer:   writer,
		logger:   logger,
	}, nil
}

// ProcessOne claims the oldest staged item, cleans and embeds it, and
// commits the knowledge entry together with the processed flag. Returns
// ErrNoWork when the queue is empty. On failure the item is released back
// to the queue for a later attempt.
func (p *Processor) ProcessOne(ctx context.Context) error {
	lease, err := p.claimer.ClaimOne(ctx)
	if err != nil {
		if errors.Is(err, ErrNoWork) {
			return ErrNoWork
		}
		return fmt.Errorf("claiming work: %w", err)
	}

	item := lease.Item()
	p.logger.Info("processing staged item", "url", item.SourceURL, "type", item.ContentType)

	cleaned := p.cleaner.CleanContent(ctx, item.RawContent)
	if cleaned == "" {
		cleaned = item.RawContent
	}

	embedding, err := p.embedder.Embed(ctx, cleaned)
	if err != nil {
		lease.Release(ctx)
		return fmt.Errorf("embedding %q: %w", item.SourceURL, err)
	}

	entry := knowledge.Entry{
		SourceURL:   item.SourceURL,
		Title:       item.Title,
		Content:     cleaned,
		Embedding:   embedding,
		ContentType: item.ContentType,
		PublishedAt: parsePublishedAt(item.PublishedAtStr),
	}

	if err := p.writer.UpsertLeased(ctx, lease, entry); err != nil {
		lease.Release(ctx)
		return fmt.Errorf("storing %q: %w", item.SourceURL, err)
	}

	if err := lease.Complete(ctx); err != nil {
		return fmt.Errorf("completing %q: %w", item.SourceURL, err)
	}

	p.logger.Info("processed staged item", "url", item.SourceURL)
	return nil
}

// parsePublishedAt reads the staged timestamp string. Fetchers write
// RFC 3339; anything else (including empty) becomes a null publish date.
func parsePublishedAt(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
