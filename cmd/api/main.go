package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"real-estate-valuation/internal/app"
	"real-estate-valuation/internal/batch"
	"real-estate-valuation/internal/config"
	"real-estate-valuation/internal/handlers"
	"real-estate-valuation/internal/logging"
	"real-estate-valuation/internal/ratelimit"
	"real-estate-valuation/internal/scheduler"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "/app/config/valuation_config.yaml"
	}
	appConfig, err := config.LoadConfig(configPath)
	configErr := err
	if err != nil {
		appConfig = config.DefaultConfig()
	}

	logger, err := logging.New(appConfig.Logging.Level)
	if err != nil {
		logger = logging.Nop()
	}
	defer logger.Sync()

	if configErr != nil {
		logger.Warnw("Failed to load config, using defaults", "path", configPath, "error", configErr)
	} else {
		logger.Infow("Loaded configuration", "path", configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, appConfig, logger)
	if err != nil {
		logger.Fatalw("Failed to initialize", "error", err)
	}
	defer a.Close()

	deps := handlers.Deps{
		Store:   a.Store,
		Runner:  a.Runner,
		Grouper: a.Grouper,
	}
	if a.Search != nil {
		deps.Search = a.Search
	}

	// Initialize and start scheduler
	if appConfig.Scheduler.Enabled {
		appScheduler := scheduler.NewScheduler(a.Runner, appConfig.Scheduler.Jobs, logger.Named("scheduler"))
		if err := appScheduler.Start(); err != nil {
			logger.Fatalw("Failed to start scheduler", "error", err)
		}
		defer appScheduler.Stop()
		deps.Scheduler = appScheduler

		if interval := appConfig.Scheduler.WorkerIntervalSeconds; interval > 0 {
			queueWorker := scheduler.NewQueueWorker(a.Runner, batch.JobDedupAttach, time.Duration(interval)*time.Second, logger.Named("worker"))
			queueWorker.Start()
			defer queueWorker.Stop()
			deps.Worker = queueWorker
		}
	} else {
		logger.Infow("Scheduler disabled in configuration")
	}

	router := handlers.NewRouter(handlers.NewAdminHandler(deps, logger.Named("api")), handlers.RouterConfig{
		AllowOrigins:  appConfig.Server.AllowOrigins,
		IngestLimiter: ratelimit.NewTokenBucket(appConfig.IngestBucket()),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = appConfig.Server.Port
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infow("Server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("Failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	shutdown(srv, logger)
}

func shutdown(srv *http.Server, logger *zap.SugaredLogger) {
	logger.Infow("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warnw("Server shutdown failed", "error", err)
	}
}
