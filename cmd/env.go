package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fleetops/kpi-cli/internal/aggregate"
	"github.com/fleetops/kpi-cli/internal/batch"
	"github.com/fleetops/kpi-cli/internal/db"
	"github.com/fleetops/kpi-cli/internal/dimcache"
	"github.com/fleetops/kpi-cli/internal/fetch"
	"github.com/fleetops/kpi-cli/internal/model"
	"github.com/fleetops/kpi-cli/internal/monitoring"
	"github.com/fleetops/kpi-cli/internal/retry"
	"github.com/fleetops/kpi-cli/internal/store"
	"github.com/fleetops/kpi-cli/internal/viewtier"
	"github.com/fleetops/kpi-cli/pkg/edge"
)

// pipelineEnv bundles everything a command needs. Callers defer env.Close().
type pipelineEnv struct {
	Store         store.Store
	Cache         *dimcache.Cache
	Collector     *monitoring.Collector
	Orchestrators map[model.Family]*fetch.Orchestrator
	RetryCfg      retry.Config

	cacheClose func()
}

// initEnv connects the database, opens the session cache, and wires one
// orchestrator per metric family.
func initEnv(ctx context.Context) (*pipelineEnv, error) {
	if cfg.DB.DatabaseURL == "" {
		return nil, eris.New("KPI_DB_DATABASE_URL is required")
	}

	pool, err := db.Connect(ctx, cfg.DB.DatabaseURL)
	if err != nil {
		return nil, err
	}
	st := store.NewPostgres(pool)

	cache, cacheClose := initCache()

	client := edge.New(cfg.Edge.APIKey, cfg.Edge.BaseURL,
		edge.WithRateLimit(cfg.Edge.RateLimit, cfg.Edge.RateBurst))

	tuning := fetch.DefaultTuning()
	if cfg.TuningPath != "" {
		tuning, err = fetch.LoadTuning(cfg.TuningPath)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	windowDelay := time.Duration(cfg.Batch.WindowDelayMS) * time.Millisecond
	engine := aggregate.New(st,
		aggregate.WithBatchConfigs(
			batch.Config{Size: cfg.Batch.ProfileSize, Window: cfg.Batch.Window, WindowDelay: windowDelay},
			batch.Config{Size: cfg.Batch.DetailSize, Window: cfg.Batch.Window, WindowDelay: windowDelay},
		),
		aggregate.WithRowCaps(cfg.Batch.IdentityRowCap, cfg.Batch.DetailRowCap),
	)
	reader := viewtier.New(st)
	collector := monitoring.NewCollector()

	orchestrators := make(map[model.Family]*fetch.Orchestrator, 3)
	for _, fam := range []model.Family{model.FamilyUTR, model.FamilyCouriers, model.FamilyValues} {
		orchestrators[fam] = fetch.NewOrchestrator(fam, client, reader, engine, tuning, collector)
	}

	retryCfg := retry.DefaultConfig()
	if cfg.Retry.MaxAttempts > 0 {
		retryCfg.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialBackoffMS > 0 {
		retryCfg.InitialBackoff = time.Duration(cfg.Retry.InitialBackoffMS) * time.Millisecond
	}

	return &pipelineEnv{
		Store:         st,
		Cache:         cache,
		Collector:     collector,
		Orchestrators: orchestrators,
		RetryCfg:      retryCfg,
		cacheClose:    cacheClose,
	}, nil
}

// initCache opens the session cache store, degrading to memory when the
// sqlite file cannot be opened. Cache trouble never blocks startup.
func initCache() (*dimcache.Cache, func()) {
	if cfg.Cache.Driver == "sqlite" {
		sqliteStore, err := dimcache.NewSQLite(cfg.Cache.Path)
		if err == nil {
			return dimcache.New(sqliteStore), func() { _ = sqliteStore.Close() }
		}
		zap.L().Warn("session cache unavailable, using memory store", zap.Error(err))
	}
	return dimcache.New(dimcache.NewMemory()), func() {}
}

func (e *pipelineEnv) Close() {
	e.Store.Close()
	e.cacheClose()
}
