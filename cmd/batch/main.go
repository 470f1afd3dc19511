package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"real-estate-valuation/internal/app"
	"real-estate-valuation/internal/batch"
	"real-estate-valuation/internal/config"
	"real-estate-valuation/internal/logging"
)

// Runs a single batch job once and prints its result as JSON
func main() {
	configPath := flag.String("config", "config/valuation_config.yaml", "path to the YAML config")
	job := flag.String("job", batch.JobDedupAttach, "job type: "+strings.Join(batch.Jobs, "|"))
	out := flag.String("out", "", "also write the result to this file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to initialize", "error", err)
	}
	defer a.Close()

	result, runErr := a.Runner.Run(ctx, *job)
	if result != nil {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			logger.Errorw("Failed to marshal result", "error", err)
		} else {
			fmt.Println(string(data))
			if *out != "" {
				if err := os.WriteFile(*out, data, 0644); err != nil {
					logger.Errorw("Failed to write result file", "path", *out, "error", err)
				}
			}
		}
	}
	if runErr != nil {
		logger.Errorw("Job failed", "job", *job, "error", runErr)
		a.Close()
		os.Exit(1)
	}
}
