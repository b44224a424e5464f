// Package app assembles the application: configuration in, a ready-to-run
// serving or ingestion stack out. It owns resource lifecycles; everything
// it creates is released by Close.
package app

import (
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forexcompass/compass/internal/cache"
	"github.com/forexcompass/compass/internal/config"
	"github.com/forexcompass/compass/internal/gen"
	"github.com/forexcompass/compass/internal/history"
	"github.com/forexcompass/compass/internal/ingest"
	"github.com/forexcompass/compass/internal/knowledge"
	"github.com/forexcompass/compass/internal/log"
	"github.com/forexcompass/compass/internal/pipeline"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit    *genkit.Genkit
	Pool      *pgxpool.Pool
	Generator *gen.Generator
	Embedder  *gen.Embedder

	Knowledge *knowledge.Store
	History   *history.Store
	Staging   *ingest.StagingStore

	Cache    *cache.Cache
	Pipeline *pipeline.Pipeline

	otelCleanup func()
}

// Close releases everything Setup created. Safe on a partially built App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
