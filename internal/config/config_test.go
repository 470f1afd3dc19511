package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"real-estate-valuation/internal/batch"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Scheduler.Jobs, len(batch.Jobs))
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_OverridesAndConversions(t *testing.T) {
	path := writeConfig(t, `
database:
  type: memory
normalizer:
  ron_per_eur: 5.0
batch:
  batch_size: 30
  concurrency: 8
  recrawl_after_hours: 48
valuation:
  tts:
    high_season_months: [4, 13, 10]
  avm:
    baselines:
      bucuresti-floreasca: 2600
scheduler:
  enabled: true
  jobs:
    cleanup: "03:15"
scraper:
  max_retries: 0
  delay_ms: 250
cleanup:
  version_retention_days: 30
  dry_run: true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Type)
	assert.Equal(t, 5.0, cfg.NormalizeConfig().RonPerEur)

	b := cfg.BatchConfig()
	assert.Equal(t, 30, b.BatchSize)
	assert.Equal(t, 8, b.Concurrency)
	assert.Equal(t, 48*time.Hour, b.RecrawlAfter)
	assert.Equal(t, 24*time.Hour, b.AreaRefresh, "unset keys keep defaults")

	v := cfg.ValuationConfig()
	assert.Equal(t, []time.Month{time.April, time.October}, v.TTS.HighSeasonMonths, "out of range months are dropped")
	assert.Equal(t, 2600.0, v.AVM.Baselines["bucuresti-floreasca"])

	// yaml merges maps into the defaults
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "03:15", cfg.Scheduler.Jobs[batch.JobCleanup])
	assert.Equal(t, "*/10 * * * *", cfg.Scheduler.Jobs[batch.JobDedupAttach])

	f := cfg.Scraper.FetcherConfig()
	assert.Equal(t, 0, f.MaxRetries)
	assert.Equal(t, 30*time.Second, f.Timeout)

	c := cfg.CleanupConfig()
	assert.Equal(t, 30*24*time.Hour, c.VersionRetention)
	assert.Equal(t, 365*24*time.Hour, c.VisitRetention)
	assert.True(t, c.DryRun)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", "batch: [", "failed to parse config file"},
		{"batch size", "batch:\n  batch_size: 10\n", "batch.batch_size"},
		{"exchange rate", "normalizer:\n  ron_per_eur: 0\n", "ron_per_eur"},
		{"hamming", "similarity:\n  hamming_threshold: 70\n", "hamming_threshold"},
		{"condition order", "valuation:\n  condition:\n    renovation_below: 0.8\n", "condition thresholds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBucketConversions(t *testing.T) {
	cfg := DefaultConfig()
	g := cfg.GeocodeBucket()
	assert.Equal(t, 30, g.Capacity)
	assert.Equal(t, time.Minute, g.Window)
	assert.Equal(t, 2*time.Second, g.MaxWait)

	i := cfg.IngestBucket()
	assert.Equal(t, 120, i.Capacity)
	assert.Equal(t, time.Minute, i.Window)
}
