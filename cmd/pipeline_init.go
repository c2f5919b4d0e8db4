package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/anivertis/market-pipeline/internal/catalog"
	"github.com/anivertis/market-pipeline/internal/extract"
	"github.com/anivertis/market-pipeline/internal/ingest"
	"github.com/anivertis/market-pipeline/internal/model"
	"github.com/anivertis/market-pipeline/internal/monitoring"
	"github.com/anivertis/market-pipeline/internal/normalize"
	"github.com/anivertis/market-pipeline/internal/resilience"
	"github.com/anivertis/market-pipeline/internal/runner"
	"github.com/anivertis/market-pipeline/internal/store"
	"github.com/anivertis/market-pipeline/internal/strategy"
)

// pipelineEnv holds the store, the source catalog and the wired runner
// needed by the collect/indicator/serve commands.
type pipelineEnv struct {
	Store        store.Store
	Sources      []model.Source
	Runner       *runner.Runner
	Orchestrator *runner.Orchestrator
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, loads the source catalog, and wires the
// acquisition runner. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	sources, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	zap.L().Info("catalog loaded",
		zap.String("path", cfg.Catalog.Path),
		zap.Int("sources", len(sources)),
	)

	factory := strategy.NewFactory(strategy.FactoryConfig{
		FetchTimeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxLinks:          cfg.Fetch.MaxLinks,
		FeedItems:         cfg.Fetch.FeedItems,
		RatePerHost:       float64(cfg.Fetch.RatePerHost),
		NavTimeout:        time.Duration(cfg.Browser.NavTimeoutSecs) * time.Second,
		ChallengeAttempts: cfg.Browser.ChallengeAttempts,
		ChallengeWait:     time.Duration(cfg.Browser.ChallengeWaitSecs) * time.Second,
	})

	retry := resilience.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Retry.InitialBackoffSecs) * time.Second,
	}

	r := runner.New(
		factory,
		extract.NewFetcher(time.Duration(cfg.Fetch.TimeoutSecs)*time.Second),
		normalize.NewConverter(st),
		ingest.New(st),
		monitoring.NewRecorder(st),
		retry,
		runner.NewCache(runner.DefaultCacheTTL),
	)

	return &pipelineEnv{
		Store:        st,
		Sources:      sources,
		Runner:       r,
		Orchestrator: runner.NewOrchestrator(r),
	}, nil
}
