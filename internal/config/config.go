package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kitsudo/anime-dashboard/internal/domain"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig       `yaml:"server"`
	Database  DatabaseConfig     `yaml:"database"`
	Redis     RedisConfig        `yaml:"redis"`
	Jikan     JikanConfig        `yaml:"jikan"`
	Loader    LoaderConfig       `yaml:"loader"`
	Scheduler SchedulerConfig    `yaml:"scheduler"`
	Jobs      map[string]JobSpec `yaml:"jobs" validate:"dive"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"gt=0,lte=65535"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url" validate:"required"`
}

// RedisConfig holds the analytics cache settings.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// JikanConfig holds upstream API settings for the extractor.
type JikanConfig struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`
	// Minimum interval in seconds between any two outbound requests, shared
	// across all concurrently running jobs.
	RateLimitInterval float64 `yaml:"rate_limit_interval" validate:"gte=0.1"`
	MaxRetries        int     `yaml:"max_retries" validate:"gte=1,lte=10"`
	BackoffBaseMillis int     `yaml:"backoff_base_millis" validate:"gt=0"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" validate:"gt=0"`
}

// Interval returns the configured minimum inter-request interval.
func (c JikanConfig) Interval() time.Duration {
	return time.Duration(c.RateLimitInterval * float64(time.Second))
}

// Timeout returns the per-request timeout as a duration.
func (c JikanConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffBase returns the initial retry backoff delay.
func (c JikanConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMillis) * time.Millisecond
}

// LoaderConfig holds snapshot loader settings.
type LoaderConfig struct {
	BatchSize int `yaml:"batch_size" validate:"gt=0,lte=1000"`
}

// SchedulerConfig holds automation settings.
type SchedulerConfig struct {
	// Cron expression for the full pipeline run (standard 5-field syntax).
	CronExpr   string `yaml:"cron_expr"`
	RunOnStart bool   `yaml:"run_on_start"`
	// Number of jobs the scheduler runs concurrently per tick.
	Concurrency int `yaml:"concurrency" validate:"gte=1,lte=16"`
}

// JobSpec defines one named ETL job: the snapshot category plus the upstream
// query template.
type JobSpec struct {
	SnapshotType domain.SnapshotType `yaml:"snapshot_type" validate:"required"`
	Params       map[string]string   `yaml:"params"`
	// MaxPages bounds pagination; 0 means "until has_next_page is false",
	// still capped by the extractor's hard safety bound.
	MaxPages    int    `yaml:"max_pages" validate:"gte=0"`
	Description string `yaml:"description"`
}

// DefaultJobs returns the built-in job catalog.
func DefaultJobs() map[string]JobSpec {
	return map[string]JobSpec{
		"top_anime": {
			SnapshotType: domain.SnapshotTop,
			Params: map[string]string{
				"order_by": "score",
				"sort":     "desc",
				"limit":    "25",
				"status":   "complete",
			},
			MaxPages:    2,
			Description: "Top-rated completed anime",
		},
		"seasonal_current": {
			SnapshotType: domain.SnapshotSeasonalCurrent,
			Params: map[string]string{
				"order_by": "score",
				"sort":     "desc",
				"limit":    "25",
				"status":   "airing",
			},
			Description: "Currently airing seasonal anime",
		},
		"seasonal_upcoming": {
			SnapshotType: domain.SnapshotUpcoming,
			Params: map[string]string{
				"order_by": "score",
				"sort":     "desc",
				"limit":    "25",
				"status":   "upcoming",
			},
			Description: "Upcoming anime releases",
		},
		"popular_movies": {
			SnapshotType: domain.SnapshotPopularMovies,
			Params: map[string]string{
				"type":     "movie",
				"order_by": "score",
				"sort":     "desc",
				"limit":    "25",
			},
			MaxPages:    1,
			Description: "Popular anime movies",
		},
	}
}

// JobNames returns the catalog's job names in stable order.
func (c *Config) JobNames() []string {
	names := make([]string, 0, len(c.Jobs))
	for name := range c.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads and parses the configuration file, applies defaults, and
// validates the result. Invalid settings are fatal here, not retried.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) first, so secrets can live in .env
// locally and in real env vars in containers.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("JIKAN_BASE_URL"); v != "" {
		c.Jikan.BaseURL = v
	}
	if v := os.Getenv("JIKAN_RATE_LIMIT_INTERVAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Jikan.RateLimitInterval = f
		}
	}
	if v := os.Getenv("JIKAN_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Jikan.MaxRetries = n
		}
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Jikan.BaseURL == "" {
		c.Jikan.BaseURL = "https://api.jikan.moe/v4"
	}
	if c.Jikan.RateLimitInterval == 0 {
		c.Jikan.RateLimitInterval = 1.5
	}
	if c.Jikan.MaxRetries == 0 {
		c.Jikan.MaxRetries = 3
	}
	if c.Jikan.BackoffBaseMillis == 0 {
		c.Jikan.BackoffBaseMillis = 1000
	}
	if c.Jikan.TimeoutSeconds == 0 {
		c.Jikan.TimeoutSeconds = 30
	}
	if c.Loader.BatchSize == 0 {
		c.Loader.BatchSize = 100
	}
	if c.Scheduler.CronExpr == "" {
		c.Scheduler.CronExpr = "0 2 * * *"
	}
	if c.Scheduler.Concurrency == 0 {
		c.Scheduler.Concurrency = 1
	}
	if len(c.Jobs) == 0 {
		c.Jobs = DefaultJobs()
	}
}

// Validate checks the configuration and returns a descriptive error for the
// first violation found.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
