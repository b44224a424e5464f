package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// WorkerConfig sets the ingestion cadence.
type WorkerConfig struct {
	// FetchInterval is how often news providers are polled.
	FetchInterval time.Duration
	// ScrapeInterval is how often the course index is re-crawled.
	ScrapeInterval time.Duration
	// ProcessInterval is how often the staging queue is checked.
	ProcessInterval time.Duration
}

// Worker runs the ingestion loops: periodic news fetches, periodic site
// scrapes, and a staging-queue poll.
type Worker struct {
	cfg       WorkerConfig
	fetcher   *Fetcher
	scraper   *Scraper
	processor *Processor
	logger    *slog.Logger
}

// NewWorker creates a Worker. fetcher and scraper may be nil to disable
// that loop; the processor is required.
func NewWorker(cfg WorkerConfig, fetcher *Fetcher, scraper *Scraper, processor *Processor, logger *slog.Logger) (*Worker, error) {
	if processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FetchInterval <= 0 {
		cfg.FetchInterval = 2 * time.Hour
	}
	if cfg.ScrapeInterval <= 0 {
		cfg.ScrapeInterval = 2 * time.Hour
	}
	if cfg.ProcessInterval <= 0 {
		cfg.ProcessInterval = time.Minute
	}
	return &Worker{
		cfg:       cfg,
		fetcher:   fetcher,
		scraper:   scraper,
		processor: processor,
		logger:    logger,
	}, nil
}

// Run starts the ingestion loops and blocks until ctx is canceled. The
// fetch and scrape loops fire once at startup, then on their intervals.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup

	if w.fetcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runPeriodic(ctx, "fetch", w.cfg.FetchInterval, func(ctx context.Context) {
				w.fetcher.FetchNews(ctx)
			})
		}()
	}

	if w.scraper != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runPeriodic(ctx, "scrape", w.cfg.ScrapeInterval, func(ctx context.Context) {
				w.scraper.ScrapeArticles(ctx)
			})
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.runPeriodic(ctx, "process", w.cfg.ProcessInterval, w.processNext)
	}()

	w.logger.Info("ingestion worker started",
		"fetch_interval", w.cfg.FetchInterval,
		"scrape_interval", w.cfg.ScrapeInterval,
		"process_interval", w.cfg.ProcessInterval)

	wg.Wait()
	w.logger.Info("ingestion worker stopped")
}

func (w *Worker) runPeriodic(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("loop stopping", "loop", name)
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// processNext handles at most one staged item. Embedding providers
// rate-limit aggressively, so the queue drains one item per tick rather
// than in bursts.
func (w *Worker) processNext(ctx context.Context) {
	err := w.processor.ProcessOne(ctx)
	if err == nil || errors.Is(err, ErrNoWork) {
		return
	}
	w.logger.Error("processing staged item failed", "error", err)
}
