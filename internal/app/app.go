// Package app wires the pipeline components from configuration. It is shared
// by the API server and the one-shot batch command.
package app

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"real-estate-valuation/internal/batch"
	"real-estate-valuation/internal/cleanup"
	"real-estate-valuation/internal/config"
	"real-estate-valuation/internal/database"
	"real-estate-valuation/internal/dedup"
	"real-estate-valuation/internal/geocode"
	"real-estate-valuation/internal/normalize"
	"real-estate-valuation/internal/ratelimit"
	"real-estate-valuation/internal/scraper"
	"real-estate-valuation/internal/search"
	"real-estate-valuation/internal/similarity"
	"real-estate-valuation/internal/trust"
	"real-estate-valuation/internal/valuation"
	"real-estate-valuation/internal/vision"
)

// App holds the wired components
type App struct {
	Config  *config.Config
	Store   database.Store
	Runner  *batch.Runner
	Grouper *dedup.Grouper
	Search  *search.SearchClient // nil when search is disabled

	logger  *zap.SugaredLogger
	closers []func() error
}

// Build connects the stores and constructs every component
func Build(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*App, error) {
	a := &App{Config: cfg, logger: logger}

	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	a.Store = store

	var geocoder geocode.Resolver
	if cfg.Geocoding.Enabled {
		geocoder = geocode.NewLimited(
			geocode.NewClient(cfg.GeocodeConfig()),
			ratelimit.NewTokenBucket(cfg.GeocodeBucket()),
			ratelimit.NewCircuitBreaker("geocoding", cfg.Geocoding.FailureThreshold, cfg.Geocoding.BreakerReset(), logger.Named("geocode")),
			logger.Named("geocode"),
		)
		logger.Infow("App: geocoding enabled", "base_url", cfg.Geocoding.BaseURL)
	}
	normalizer := normalize.NewNormalizer(cfg.NormalizeConfig(), geocoder, logger.Named("normalize"))

	// One pacing limiter for every outbound page and photo fetch
	fetchLimiter := cfg.Scraper.FetchLimiter()

	hasher := similarity.NewHasher(cfg.SimilarityConfig(), fetchLimiter, logger.Named("similarity"))
	engine := similarity.NewEngine(cfg.SimilarityConfig(), store, hasher, logger.Named("similarity"))
	a.Grouper = dedup.NewGrouper(store, engine, logger.Named("dedup"))

	valCfg := cfg.ValuationConfig()
	var condition *valuation.ConditionResolver
	if cfg.Vision.Enabled {
		condition = valuation.NewConditionResolver(valCfg.Condition, vision.NewClient(cfg.VisionConfig()), store, logger.Named("valuation"))
		logger.Infow("App: vision condition scoring enabled", "base_url", cfg.Vision.BaseURL)
	}
	suite := valuation.NewSuite(valCfg, condition, logger.Named("valuation"))

	deps := batch.Deps{
		Store:      store,
		Normalizer: normalizer,
		Photos:     engine,
		Grouper:    a.Grouper,
		Valuation:  suite,
		Trust:      trust.NewScorer(cfg.TrustConfig(), store, engine, logger.Named("trust")),
		Scraper:    a.newScraper(fetchLimiter),
		Cleanup:    cleanup.NewService(store, cfg.CleanupConfig(), logger.Named("cleanup")),
	}

	if comps, err := a.openComps(ctx); err != nil {
		logger.Warnw("App: comparables database unavailable, area stats use listings only", "error", err)
	} else if comps != nil {
		deps.Comps = comps
	}

	if ms := cfg.Search.Meilisearch; ms.Enabled {
		a.Search = search.NewSearchClient(
			getEnvOrConfig(ms.Host, "MEILISEARCH_HOST", "http://meilisearch:7700"),
			getEnvOrConfig(ms.APIKey, "MEILISEARCH_KEY", ""),
			ms.Index,
			logger.Named("search"),
		)
		if err := a.Search.InitIndex(); err != nil {
			logger.Warnw("App: failed to initialize search index", "error", err)
		}
		deps.Search = a.Search

		searchClient := a.Search
		a.Grouper.OnMerge(func(targetID, sourceID string) {
			if err := searchClient.DeleteGroup(sourceID); err != nil {
				logger.Warnw("App: failed to drop merged group from search", "group_id", sourceID, "merged_into", targetID, "error", err)
			}
		})
	}

	a.Runner = batch.NewRunner(cfg.BatchConfig(), deps, logger.Named("batch"))
	return a, nil
}

func (a *App) openStore() (database.Store, error) {
	dbType := a.Config.Database.Type
	if dbType == "" {
		dbType = getEnv("DB_TYPE", "mysql")
	}

	switch dbType {
	case "memory":
		a.logger.Warnw("App: using in-memory store, data is lost on exit")
		return database.NewMemoryStore(), nil
	case "mysql":
		m := a.Config.Database.MySQL
		port, err := strconv.Atoi(getEnvOrConfig(portString(m.Port), "DB_PORT", "3306"))
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		gdb, err := database.NewGormDB(
			getEnvOrConfig(m.Host, "DB_HOST", "mysql"),
			port,
			getEnvOrConfig(m.User, "DB_USER", "valuation"),
			getEnvOrConfig(m.Password, "DB_PASSWORD", ""),
			getEnvOrConfig(m.Database, "DB_NAME", "valuation"),
			a.logger.Named("database"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
		}
		a.closers = append(a.closers, gdb.Close)

		// Initialize schema with GORM AutoMigrate
		if err := gdb.InitSchema(); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		a.logger.Infow("App: using MySQL store", "host", m.Host, "database", m.Database)
		return gdb, nil
	}
	return nil, fmt.Errorf("unknown database type %q", dbType)
}

func (a *App) openComps(ctx context.Context) (*database.CompsDB, error) {
	pg := a.Config.Database.Comps
	if !pg.Enabled {
		return nil, nil
	}
	port, err := strconv.Atoi(getEnvOrConfig(portString(pg.Port), "COMPS_DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid COMPS_DB_PORT: %w", err)
	}
	comps, err := database.NewCompsDB(
		getEnvOrConfig(pg.Host, "COMPS_DB_HOST", "comps"),
		port,
		getEnvOrConfig(pg.User, "COMPS_DB_USER", "comps"),
		getEnvOrConfig(pg.Password, "COMPS_DB_PASSWORD", ""),
		getEnvOrConfig(pg.Database, "COMPS_DB_NAME", "comps"),
		pg.SSLMode,
	)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, comps.Close)
	if err := comps.InitSchema(ctx); err != nil {
		a.logger.Warnw("App: failed to initialize comparables schema", "error", err)
	}
	return comps, nil
}

func (a *App) newScraper(limiter *ratelimit.FetchLimiter) *scraper.Scraper {
	sc := a.Config.Scraper
	log := a.logger.Named("scraper")
	var fetcher scraper.Fetcher
	if sc.Browser {
		fetcher = scraper.NewBrowserFetcher(sc.FetcherConfig(), limiter, log)
	} else {
		breaker := ratelimit.NewCircuitBreaker("scraper", sc.FailureThreshold, sc.BreakerReset(), log)
		fetcher = scraper.NewHTTPFetcher(sc.FetcherConfig(), limiter, breaker, log)
	}
	return scraper.NewScraper(fetcher, log)
}

// Close releases database connections
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warnw("App: close failed", "error", err)
		}
	}
}

func portString(port int) string {
	// Handle 0 as empty
	if port > 0 {
		return strconv.Itoa(port)
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrConfig returns config value if set, otherwise falls back to environment variable, then default
func getEnvOrConfig(configValue, envKey, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	return getEnv(envKey, defaultValue)
}
