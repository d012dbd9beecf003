package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Database   DatabaseConfig
	Scraper    ScraperConfig
	Integrator IntegratorConfig
	Places     PlacesConfig
	Embedding  EmbeddingConfig
	Resilience ResilienceConfig
	Logging    LoggingConfig
	Tracing    TracingConfig

	Environment string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
}

type ScraperConfig struct {
	CapPerSource int
	Concurrency  int
	SourcesDir   string
}

type IntegratorConfig struct {
	ChunkSize int
	BatchSize int
	Tick      time.Duration
}

type PlacesConfig struct {
	APIKey          string
	BaseURL         string
	EnrichEnabled   bool
	RefreshDays     int
	RateDelay       time.Duration
	LocationDefault string
}

type EmbeddingConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	SubBatch   int
	BatchLimit int
	Sleep      time.Duration
}

type ResilienceConfig struct {
	RetryMax        int
	RetryWait       time.Duration
	BreakerFailPct  int
	BreakerWindow   int
	BreakerOpenWait time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

// Load builds a Config from environment variables, applying the documented
// defaults. The only hard requirement is DATABASE_URL; external API keys are
// validated by the commands that need them.
func Load() (Config, error) {
	cfg := Config{
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 10),
		},
		Scraper: ScraperConfig{
			CapPerSource: getEnvInt("SCRAPE_CAP_PER_SOURCE", 3000),
			Concurrency:  getEnvInt("SCRAPER_CONCURRENCY", 4),
			SourcesDir:   getEnv("SCRAPER_SOURCES_DIR", "configs/sources"),
		},
		Integrator: IntegratorConfig{
			ChunkSize: getEnvInt("INTEGRATOR_CHUNK", 50),
			BatchSize: getEnvInt("INTEGRATOR_BATCH", 1000),
			Tick:      getEnvDuration("INTEGRATOR_TICK", 10*time.Second),
		},
		Places: PlacesConfig{
			APIKey:        getEnv("GOOGLE_MAPS_API_KEY", ""),
			BaseURL:       getEnv("GOOGLE_MAPS_BASE_URL", "https://maps.googleapis.com/maps/api"),
			EnrichEnabled: getEnvBool("PLACES_ENRICH_ENABLED", false),
			RefreshDays:   getEnvInt("PLACES_REFRESH_DAYS", 30),
			RateDelay:     getEnvDuration("PLACES_RATE_DELAY", 200*time.Millisecond),
		},
		Embedding: EmbeddingConfig{
			APIKey:     getEnv("OPENAI_API_KEY", ""),
			BaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 1536),
			SubBatch:   getEnvInt("EMBEDDING_SUBBATCH", 20),
			BatchLimit: getEnvInt("EMBEDDING_BATCH_LIMIT", 1000),
			Sleep:      getEnvDuration("EMBEDDING_SLEEP", time.Second),
		},
		Resilience: ResilienceConfig{
			RetryMax:        getEnvInt("RETRY_MAX", 3),
			RetryWait:       getEnvDuration("RETRY_WAIT", time.Second),
			BreakerFailPct:  getEnvInt("CB_FAILURE_RATE", 50),
			BreakerWindow:   getEnvInt("CB_WINDOW", 100),
			BreakerOpenWait: getEnvDuration("CB_OPEN_WAIT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "stdout"),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "planzy-server"),
			OTLPEndpoint: getEnv("TRACING_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Embedding.Dimensions <= 0 {
		return Config{}, fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Integrator.ChunkSize <= 0 {
		return Config{}, fmt.Errorf("INTEGRATOR_CHUNK must be positive, got %d", cfg.Integrator.ChunkSize)
	}
	return cfg, nil
}

// PoolSize returns the connection pool size derived from the worker layout:
// one connection per adapter, one for the integrator, one for the embedding
// worker and one for reads.
func (c Config) PoolSize() int {
	size := c.Scraper.Concurrency + 1 + 2
	if size < c.Database.MaxConnections {
		return c.Database.MaxConnections
	}
	return size
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
