package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/forexcompass/compass/db"
	"github.com/forexcompass/compass/internal/cache"
	"github.com/forexcompass/compass/internal/config"
	"github.com/forexcompass/compass/internal/gen"
	"github.com/forexcompass/compass/internal/history"
	"github.com/forexcompass/compass/internal/ingest"
	"github.com/forexcompass/compass/internal/knowledge"
	"github.com/forexcompass/compass/internal/log"
	"github.com/forexcompass/compass/internal/pipeline"
	"github.com/forexcompass/compass/internal/retrieval"
)

// Setup initializes the application. Call Close on the returned App to
// release its resources; on error everything already initialized is
// cleaned up before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	generator, err := gen.NewGenerator(g, cfg.ModelName, logger)
	if err != nil {
		return nil, fmt.Errorf("creating generator: %w", err)
	}
	a.Generator = generator

	embedder, err := gen.NewEmbedder(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL, cfg.EmbeddingModel, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	a.Embedder = embedder

	a.Knowledge, err = knowledge.NewStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating knowledge store: %w", err)
	}
	a.History, err = history.NewStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating history store: %w", err)
	}
	a.Staging, err = ingest.NewStagingStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating staging store: %w", err)
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = config.DefaultCacheTTL
	}
	a.Cache = cache.New(ttl)

	retriever, err := retrieval.NewRetriever(embedder, a.Knowledge, logger)
	if err != nil {
		return nil, fmt.Errorf("creating retriever: %w", err)
	}
	a.Pipeline, err = pipeline.New(a.Cache, retriever, generator, a.History, logger)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	return a, nil
}

// IngestWorker builds the ingestion worker from the App's components.
func (a *App) IngestWorker() (*ingest.Worker, error) {
	cfg := a.Config

	fetcher, err := ingest.NewFetcher(ingest.FetcherConfig{
		FinnhubAPIKey:      cfg.FinnhubAPIKey,
		AlphaVantageAPIKey: cfg.AlphaVantageAPIKey,
	}, a.Staging, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating fetcher: %w", err)
	}

	var scraper *ingest.Scraper
	if cfg.ScrapeURL != "" {
		scraper, err = ingest.NewScraper(cfg.ScrapeURL, a.Staging, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("creating scraper: %w", err)
		}
	}

	processor, err := ingest.NewProcessor(a.Staging, a.Generator, a.Embedder,
		ingest.NewKnowledgeWriter(a.Knowledge), a.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating processor: %w", err)
	}

	return ingest.NewWorker(ingest.WorkerConfig{
		FetchInterval:   cfg.FetchInterval,
		ScrapeInterval:  cfg.FetchInterval,
		ProcessInterval: cfg.ProcessInterval,
	}, fetcher, scraper, processor, a.Logger)
}

// provideOtelShutdown wires an OTLP trace exporter into Genkit's tracer
// provider. Tracing is optional: an empty endpoint disables it, and an
// exporter failure logs a warning instead of aborting startup.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if cfg.OTLPEndpoint == "" {
		return func() {}
	}

	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)
	logger.Debug("tracing enabled", "endpoint", cfg.OTLPEndpoint, "service", cfg.ServiceName)

	shutdown := tracing.TracerProvider().Shutdown
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the Google AI plugin. The plugin
// reads GEMINI_API_KEY; the configured key is exported before Init so both
// configuration paths work.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	if cfg.GeminiAPIKey != "" {
		_ = os.Setenv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with gemini provider")
	}
	return g, nil
}

// provideDBPool runs migrations and opens the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
