package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"real-estate-valuation/internal/batch"
	"real-estate-valuation/internal/cleanup"
	"real-estate-valuation/internal/geocode"
	"real-estate-valuation/internal/normalize"
	"real-estate-valuation/internal/ratelimit"
	"real-estate-valuation/internal/scraper"
	"real-estate-valuation/internal/similarity"
	"real-estate-valuation/internal/trust"
	"real-estate-valuation/internal/valuation"
	"real-estate-valuation/internal/vision"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Search     SearchConfig     `yaml:"search"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Geocoding  GeocodingConfig  `yaml:"geocoding"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Valuation  ValuationConfig  `yaml:"valuation"`
	Trust      TrustConfig      `yaml:"trust"`
	Vision     VisionConfig     `yaml:"vision"`
	Scraper    ScraperConfig    `yaml:"scraper"`
	Batch      BatchConfig      `yaml:"batch"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Cleanup    CleanupConfig    `yaml:"cleanup"`
	Logging    LoggingConfig    `yaml:"logging"`
	Server     ServerConfig     `yaml:"server"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Type  string         `yaml:"type"` // mysql, memory
	MySQL MySQLConfig    `yaml:"mysql"`
	Comps PostgresConfig `yaml:"comps"`
}

// MySQLConfig contains MySQL connection settings
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PostgresConfig contains connection settings for the analytics database holding comparables
type PostgresConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// SearchConfig contains search engine settings
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
}

// MeilisearchConfig contains Meilisearch connection settings
type MeilisearchConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	APIKey  string `yaml:"api_key"`
	Index   string `yaml:"index"`
}

// NormalizerConfig contains feature normalization settings
type NormalizerConfig struct {
	RonPerEur        float64 `yaml:"ron_per_eur"`
	DefaultCurrency  string  `yaml:"default_currency"`
	WalkMetersPerMin int     `yaml:"walk_meters_per_min"`
}

// GeocodingConfig contains the address resolution service settings
type GeocodingConfig struct {
	Enabled          bool   `yaml:"enabled"`
	BaseURL          string `yaml:"base_url"`
	UserAgent        string `yaml:"user_agent"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	FailureThreshold int    `yaml:"failure_threshold"`
	ResetSeconds     int    `yaml:"reset_seconds"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Geocoding BucketConfig `yaml:"geocoding"`
	Ingest    BucketConfig `yaml:"ingest"`
}

// BucketConfig describes one token bucket
type BucketConfig struct {
	Capacity      int `yaml:"capacity"`
	WindowSeconds int `yaml:"window_seconds"`
	MaxWaitMillis int `yaml:"max_wait_ms"`
}

// SimilarityConfig contains near-duplicate detection settings
type SimilarityConfig struct {
	HammingThreshold    int `yaml:"hamming_threshold"`
	CandidatePool       int `yaml:"candidate_pool"`
	ImageTimeoutSeconds int `yaml:"image_timeout_seconds"`
	MaxImageBytes       int `yaml:"max_image_bytes"`
}

// ValuationConfig contains the model suite settings
type ValuationConfig struct {
	AVM       AVMConfig       `yaml:"avm"`
	TTS       TTSConfig       `yaml:"tts"`
	Yield     YieldConfig     `yaml:"yield"`
	Seismic   SeismicConfig   `yaml:"seismic"`
	Condition ConditionConfig `yaml:"condition"`
}

// AVMConfig contains automated valuation settings
type AVMConfig struct {
	DefaultEurPerM2   float64            `yaml:"default_eur_per_m2"`
	Baselines         map[string]float64 `yaml:"baselines"`
	ConfidenceK       float64            `yaml:"confidence_k"`
	NoStatsConfidence float64            `yaml:"no_stats_confidence"`
	MaxSpread         float64            `yaml:"max_spread"`
	MinSpread         float64            `yaml:"min_spread"`
}

// TTSConfig contains time-to-sell settings
type TTSConfig struct {
	HighSeasonMonths []int   `yaml:"high_season_months"`
	DeltaWeight      float64 `yaml:"delta_weight"`
	DemandWeight     float64 `yaml:"demand_weight"`
	SeasonBonus      float64 `yaml:"season_bonus"`
}

// YieldConfig contains rental yield settings
type YieldConfig struct {
	FallbackRentPerM2 float64 `yaml:"fallback_rent_per_m2"`
	AnnualCostFixed   float64 `yaml:"annual_cost_fixed"`
	AnnualCostPerM2   float64 `yaml:"annual_cost_per_m2"`
	NetThreshold      float64 `yaml:"net_threshold"`
}

// SeismicConfig contains structural risk settings
type SeismicConfig struct {
	CentralMinLat float64 `yaml:"central_min_lat"`
	CentralMaxLat float64 `yaml:"central_max_lat"`
	CentralMinLng float64 `yaml:"central_min_lng"`
	CentralMaxLng float64 `yaml:"central_max_lng"`
	CentralBase   float64 `yaml:"central_base"`
	OuterBase     float64 `yaml:"outer_base"`
}

// ConditionConfig contains condition bucket thresholds
type ConditionConfig struct {
	RenovationBelow float64 `yaml:"renovation_below"`
	ModernFrom      float64 `yaml:"modern_from"`
}

// TrustConfig contains provenance scoring settings
type TrustConfig struct {
	PhotoReusePenalty    float64 `yaml:"photo_reuse_penalty"`
	PhotoReuseCap        float64 `yaml:"photo_reuse_cap"`
	GroupReusePenalty    float64 `yaml:"group_reuse_penalty"`
	PriceSwingThreshold  float64 `yaml:"price_swing_threshold"`
	PriceSwingPenalty    float64 `yaml:"price_swing_penalty"`
	PriceSwingCap        float64 `yaml:"price_swing_cap"`
	LargeGroupSize       int     `yaml:"large_group_size"`
	UnderpricedRatio     float64 `yaml:"underpriced_ratio"`
	RegroupConfidenceHit float64 `yaml:"regroup_confidence_hit"`
	MinConfidence        float64 `yaml:"min_confidence"`
}

// VisionConfig contains the condition scoring service settings
type VisionConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ScraperConfig contains page fetching settings for the recrawl job
type ScraperConfig struct {
	Browser           bool   `yaml:"browser"`
	ChromePath        string `yaml:"chrome_path"`
	UserAgent         string `yaml:"user_agent"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	MaxRetries        int    `yaml:"max_retries"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
	MaxInFlight       int    `yaml:"max_in_flight"`
	DelayMillis       int    `yaml:"delay_ms"`
	JitterMillis      int    `yaml:"jitter_ms"`
	FailureThreshold  int    `yaml:"failure_threshold"`
	ResetSeconds      int    `yaml:"reset_seconds"`
}

// BatchConfig contains batch runner settings
type BatchConfig struct {
	BatchSize         int `yaml:"batch_size"`
	Concurrency       int `yaml:"concurrency"`
	RecrawlAfterHours int `yaml:"recrawl_after_hours"`
	AreaRefreshHours  int `yaml:"area_refresh_hours"`
}

// SchedulerConfig contains one cron spec per job type. Empty disables the job.
type SchedulerConfig struct {
	Enabled bool              `yaml:"enabled"`
	Jobs    map[string]string `yaml:"jobs"`
	// WorkerIntervalSeconds drives the dedup_attach poller; 0 disables it
	WorkerIntervalSeconds int `yaml:"worker_interval_seconds"`
}

// CleanupConfig contains retention settings
type CleanupConfig struct {
	VersionRetentionDays int  `yaml:"version_retention_days"`
	VisitRetentionDays   int  `yaml:"visit_retention_days"`
	MaxDeletions         int  `yaml:"max_deletions"`
	DryRun               bool `yaml:"dry_run"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ServerConfig contains HTTP settings for the operator API
type ServerConfig struct {
	Port         string   `yaml:"port"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Type: "mysql",
			MySQL: MySQLConfig{
				Host:     "localhost",
				Port:     3306,
				User:     "valuation",
				Database: "valuation",
			},
			Comps: PostgresConfig{
				Port:    5432,
				SSLMode: "disable",
			},
		},
		Search: SearchConfig{
			Meilisearch: MeilisearchConfig{
				Host:  "http://localhost:7700",
				Index: "groups",
			},
		},
		Normalizer: NormalizerConfig{
			RonPerEur:        4.95,
			DefaultCurrency:  "EUR",
			WalkMetersPerMin: 80,
		},
		Geocoding: GeocodingConfig{
			Enabled:          false,
			BaseURL:          "https://nominatim.openstreetmap.org",
			UserAgent:        "real-estate-valuation/1.0",
			TimeoutSeconds:   10,
			FailureThreshold: 5,
			ResetSeconds:     300,
		},
		RateLimit: RateLimitConfig{
			Geocoding: BucketConfig{
				Capacity:      30,
				WindowSeconds: 60,
				MaxWaitMillis: 2000,
			},
			Ingest: BucketConfig{
				Capacity:      120,
				WindowSeconds: 60,
			},
		},
		Similarity: SimilarityConfig{
			HammingThreshold:    6,
			CandidatePool:       2000,
			ImageTimeoutSeconds: 15,
			MaxImageBytes:       10 << 20,
		},
		Valuation: ValuationConfig{
			AVM: AVMConfig{
				DefaultEurPerM2:   1800,
				ConfidenceK:       10,
				NoStatsConfidence: 0.2,
				MaxSpread:         0.20,
				MinSpread:         0.10,
			},
			TTS: TTSConfig{
				HighSeasonMonths: []int{3, 4, 5, 9, 10},
				DeltaWeight:      4,
				DemandWeight:     2,
				SeasonBonus:      0.25,
			},
			Yield: YieldConfig{
				FallbackRentPerM2: 9,
				AnnualCostPerM2:   15,
				NetThreshold:      0.05,
			},
			Seismic: SeismicConfig{
				CentralMinLat: 44.40,
				CentralMaxLat: 44.47,
				CentralMinLng: 26.05,
				CentralMaxLng: 26.15,
				CentralBase:   0.5,
				OuterBase:     0.3,
			},
			Condition: ConditionConfig{
				RenovationBelow: 0.35,
				ModernFrom:      0.75,
			},
		},
		Trust: TrustConfig{
			PhotoReusePenalty:    0.15,
			PhotoReuseCap:        0.6,
			GroupReusePenalty:    0.05,
			PriceSwingThreshold:  0.15,
			PriceSwingPenalty:    0.1,
			PriceSwingCap:        0.3,
			LargeGroupSize:       6,
			UnderpricedRatio:     0.7,
			RegroupConfidenceHit: 0.1,
			MinConfidence:        0.2,
		},
		Vision: VisionConfig{
			TimeoutSeconds: 30,
		},
		Scraper: ScraperConfig{
			UserAgent:         "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
			TimeoutSeconds:    30,
			MaxRetries:        2,
			RetryDelaySeconds: 2,
			MaxInFlight:       2,
			DelayMillis:       1500,
			JitterMillis:      1000,
			FailureThreshold:  5,
			ResetSeconds:      600,
		},
		Batch: BatchConfig{
			BatchSize:         40,
			Concurrency:       4,
			RecrawlAfterHours: 72,
			AreaRefreshHours:  24,
		},
		Scheduler: SchedulerConfig{
			Enabled: false,
			Jobs: map[string]string{
				batch.JobDedupAttach:  "*/10 * * * *",
				batch.JobTrustRebuild: "5,35 * * * *",
				batch.JobAreaRefresh:  "0 3 * * *",
				batch.JobRecrawl:      "0 */6 * * *",
				batch.JobCleanup:      "30 4 * * 0",
			},
			WorkerIntervalSeconds: 30,
		},
		Cleanup: CleanupConfig{
			VersionRetentionDays: 180,
			VisitRetentionDays:   365,
			MaxDeletions:         100000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Port:         "8084",
			AllowOrigins: []string{"http://localhost:3000"},
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	// If file doesn't exist, return default config
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects settings the models cannot run with
func (c *Config) Validate() error {
	if c.Normalizer.RonPerEur <= 0 {
		return fmt.Errorf("normalizer.ron_per_eur must be positive, got %v", c.Normalizer.RonPerEur)
	}
	if c.Batch.BatchSize < 30 || c.Batch.BatchSize > 50 {
		return fmt.Errorf("batch.batch_size must be within [30,50], got %d", c.Batch.BatchSize)
	}
	if c.RateLimit.Geocoding.Capacity < 1 || c.RateLimit.Geocoding.WindowSeconds < 1 {
		return fmt.Errorf("rate_limit.geocoding needs a positive capacity and window")
	}
	if c.Similarity.HammingThreshold < 0 || c.Similarity.HammingThreshold > 64 {
		return fmt.Errorf("similarity.hamming_threshold must be within [0,64], got %d", c.Similarity.HammingThreshold)
	}
	if c.Valuation.Condition.RenovationBelow >= c.Valuation.Condition.ModernFrom {
		return fmt.Errorf("valuation.condition thresholds out of order: %v >= %v",
			c.Valuation.Condition.RenovationBelow, c.Valuation.Condition.ModernFrom)
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// NormalizeConfig converts the normalizer section
func (c *Config) NormalizeConfig() normalize.Config {
	return normalize.Config{
		RonPerEur:        c.Normalizer.RonPerEur,
		DefaultCurrency:  c.Normalizer.DefaultCurrency,
		WalkMetersPerMin: c.Normalizer.WalkMetersPerMin,
	}
}

// GeocodeConfig converts the geocoding section
func (c *Config) GeocodeConfig() geocode.Config {
	return geocode.Config{
		BaseURL:   c.Geocoding.BaseURL,
		UserAgent: c.Geocoding.UserAgent,
		Timeout:   seconds(c.Geocoding.TimeoutSeconds),
	}
}

// GeocodeBucket converts the geocoding rate limit
func (c *Config) GeocodeBucket() ratelimit.BucketConfig {
	b := c.RateLimit.Geocoding
	return ratelimit.BucketConfig{
		Capacity: b.Capacity,
		Window:   seconds(b.WindowSeconds),
		MaxWait:  time.Duration(b.MaxWaitMillis) * time.Millisecond,
	}
}

// IngestBucket converts the ingest endpoint rate limit
func (c *Config) IngestBucket() ratelimit.BucketConfig {
	b := c.RateLimit.Ingest
	return ratelimit.BucketConfig{
		Capacity: b.Capacity,
		Window:   seconds(b.WindowSeconds),
	}
}

// SimilarityConfig converts the similarity section
func (c *Config) SimilarityConfig() similarity.Config {
	return similarity.Config{
		HammingThreshold: c.Similarity.HammingThreshold,
		CandidatePool:    c.Similarity.CandidatePool,
		ImageTimeout:     seconds(c.Similarity.ImageTimeoutSeconds),
		MaxImageBytes:    int64(c.Similarity.MaxImageBytes),
	}
}

// ValuationConfig converts the valuation section
func (c *Config) ValuationConfig() valuation.Config {
	v := c.Valuation
	months := make([]time.Month, 0, len(v.TTS.HighSeasonMonths))
	for _, m := range v.TTS.HighSeasonMonths {
		if m >= 1 && m <= 12 {
			months = append(months, time.Month(m))
		}
	}
	return valuation.Config{
		AVM: valuation.AVMConfig{
			DefaultEurPerM2:   v.AVM.DefaultEurPerM2,
			Baselines:         v.AVM.Baselines,
			ConfidenceK:       v.AVM.ConfidenceK,
			NoStatsConfidence: v.AVM.NoStatsConfidence,
			MaxSpread:         v.AVM.MaxSpread,
			MinSpread:         v.AVM.MinSpread,
		},
		TTS: valuation.TTSConfig{
			HighSeasonMonths: months,
			DeltaWeight:      v.TTS.DeltaWeight,
			DemandWeight:     v.TTS.DemandWeight,
			SeasonBonus:      v.TTS.SeasonBonus,
		},
		Yield: valuation.YieldConfig{
			FallbackRentPerM2: v.Yield.FallbackRentPerM2,
			AnnualCostFixed:   v.Yield.AnnualCostFixed,
			AnnualCostPerM2:   v.Yield.AnnualCostPerM2,
			NetThreshold:      v.Yield.NetThreshold,
		},
		Seismic: valuation.SeismicConfig{
			Central: valuation.BBox{
				MinLat: v.Seismic.CentralMinLat,
				MaxLat: v.Seismic.CentralMaxLat,
				MinLng: v.Seismic.CentralMinLng,
				MaxLng: v.Seismic.CentralMaxLng,
			},
			CentralBase: v.Seismic.CentralBase,
			OuterBase:   v.Seismic.OuterBase,
		},
		Condition: valuation.ConditionConfig{
			RenovationBelow: v.Condition.RenovationBelow,
			ModernFrom:      v.Condition.ModernFrom,
		},
	}
}

// TrustConfig converts the trust section
func (c *Config) TrustConfig() trust.Config {
	t := c.Trust
	return trust.Config{
		PhotoReusePenalty:    t.PhotoReusePenalty,
		PhotoReuseCap:        t.PhotoReuseCap,
		GroupReusePenalty:    t.GroupReusePenalty,
		PriceSwingThreshold:  t.PriceSwingThreshold,
		PriceSwingPenalty:    t.PriceSwingPenalty,
		PriceSwingCap:        t.PriceSwingCap,
		LargeGroupSize:       t.LargeGroupSize,
		UnderpricedRatio:     t.UnderpricedRatio,
		RegroupConfidenceHit: t.RegroupConfidenceHit,
		MinConfidence:        t.MinConfidence,
	}
}

// VisionConfig converts the vision section
func (c *Config) VisionConfig() vision.Config {
	return vision.Config{
		BaseURL: c.Vision.BaseURL,
		APIKey:  c.Vision.APIKey,
		Timeout: seconds(c.Vision.TimeoutSeconds),
	}
}

// BatchConfig converts the batch section
func (c *Config) BatchConfig() batch.Config {
	return batch.Config{
		BatchSize:    c.Batch.BatchSize,
		Concurrency:  c.Batch.Concurrency,
		RecrawlAfter: time.Duration(c.Batch.RecrawlAfterHours) * time.Hour,
		AreaRefresh:  time.Duration(c.Batch.AreaRefreshHours) * time.Hour,
	}
}

// CleanupConfig converts the cleanup section
func (c *Config) CleanupConfig() cleanup.Config {
	return cleanup.Config{
		VersionRetention: time.Duration(c.Cleanup.VersionRetentionDays) * 24 * time.Hour,
		VisitRetention:   time.Duration(c.Cleanup.VisitRetentionDays) * 24 * time.Hour,
		MaxDeletions:     c.Cleanup.MaxDeletions,
		DryRun:           c.Cleanup.DryRun,
	}
}

// FetcherConfig converts the scraper section
func (c *ScraperConfig) FetcherConfig() scraper.FetcherConfig {
	cfg := scraper.DefaultFetcherConfig()
	if c.UserAgent != "" {
		cfg.UserAgent = c.UserAgent
	}
	if c.TimeoutSeconds > 0 {
		cfg.Timeout = seconds(c.TimeoutSeconds)
	}
	if c.MaxRetries >= 0 {
		cfg.MaxRetries = c.MaxRetries
	}
	if c.RetryDelaySeconds > 0 {
		cfg.RetryDelay = seconds(c.RetryDelaySeconds)
	}
	cfg.ChromePath = c.ChromePath
	return cfg
}

// FetchLimiter builds the page fetch pacing limiter
func (c *ScraperConfig) FetchLimiter() *ratelimit.FetchLimiter {
	return ratelimit.NewFetchLimiter(c.MaxInFlight,
		time.Duration(c.DelayMillis)*time.Millisecond,
		time.Duration(c.JitterMillis)*time.Millisecond)
}

// BreakerReset returns the fetcher circuit breaker reset timeout
func (c *ScraperConfig) BreakerReset() time.Duration {
	return seconds(c.ResetSeconds)
}

// BreakerReset returns the geocoder circuit breaker reset timeout
func (c *GeocodingConfig) BreakerReset() time.Duration {
	return seconds(c.ResetSeconds)
}
