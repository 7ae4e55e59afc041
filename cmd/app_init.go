package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pimstack/aipopulate/internal/populate"
	"github.com/pimstack/aipopulate/internal/render"
	"github.com/pimstack/aipopulate/internal/settings"
	"github.com/pimstack/aipopulate/internal/store"
)

// appEnv holds the wired service and its stores for the serve, populate,
// and batch commands.
type appEnv struct {
	Service  *populate.Service
	Settings *settings.PostgresStore
	Cache    *settings.Cache
	Jobs     *store.JobStore

	pool *pgxpool.Pool
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Jobs != nil {
		_ = e.Jobs.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
}

// initApp connects the stores and builds the population service. Callers
// should defer env.Close().
func initApp(ctx context.Context) (*appEnv, error) {
	if cfg.Settings.DatabaseURL == "" {
		return nil, eris.New("settings database_url is required (AIPOPULATE_SETTINGS_DATABASE_URL)")
	}
	if cfg.OpenAI.Key == "" {
		zap.L().Warn("no openai key configured, generation requests will fail")
	}

	pool, err := pgxpool.New(ctx, cfg.Settings.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "connect settings database")
	}

	settingsStore := settings.NewPostgresStore(pool)
	if err := settingsStore.Migrate(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "migrate settings store")
	}
	cache := settings.NewCache(settingsStore, time.Duration(cfg.Settings.CacheTTLSecs)*time.Second)

	jobs, err := store.NewSQLite(cfg.Jobs.Path)
	if err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "open job journal")
	}
	if err := jobs.Migrate(ctx); err != nil {
		_ = jobs.Close()
		pool.Close()
		return nil, eris.Wrap(err, "migrate job journal")
	}

	factory := populate.NewFactory(populate.FactoryConfig{
		OpenAIKey:      cfg.OpenAI.Key,
		OpenAIBaseURL:  cfg.OpenAI.BaseURL,
		OpenAIModel:    cfg.OpenAI.Model,
		RateLimitRPS:   cfg.OpenAI.RateLimitRPS,
		RateLimitBurst: cfg.OpenAI.RateLimitBurst,
		AnthropicKey:   cfg.Anthropic.Key,
		Parallelism:    cfg.Batch.Parallelism,
		RequestTimeout: time.Duration(cfg.Batch.RequestTimeoutMS) * time.Millisecond,
		PollInterval:   time.Duration(cfg.Batch.PollIntervalSecs) * time.Second,
		TempDir:        cfg.Batch.TempDir,
		Journal:        jobs,
	})

	return &appEnv{
		Service:  populate.NewService(cache, render.New(), factory),
		Settings: settingsStore,
		Cache:    cache,
		Jobs:     jobs,
		pool:     pool,
	}, nil
}
