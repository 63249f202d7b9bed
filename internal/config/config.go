// Package config provides unified configuration loading for the recommendation engine.
// Supports YAML files, .env files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the recommendation engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Vector        VectorConfig        `yaml:"vector"`
	Cache         CacheConfig         `yaml:"cache"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Evaluation    EvaluationConfig    `yaml:"evaluation"`
	Generation    GenerationConfig    `yaml:"generation"`
	Refresh       RefreshConfig       `yaml:"refresh"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds product catalog connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite, postgres, supabase or memory
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
	Supabase SupabaseConfig `yaml:"supabase"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// SupabaseConfig holds Supabase REST settings.
type SupabaseConfig struct {
	URL   string `yaml:"url"`
	Key   string `yaml:"key"`
	Table string `yaml:"table"`
}

// VectorConfig holds vector index settings.
type VectorConfig struct {
	Adapter  string         `yaml:"adapter"` // memory, pgvector or qdrant
	PGVector PGVectorConfig `yaml:"pgvector"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
}

// PGVectorConfig holds pgvector-specific settings.
type PGVectorConfig struct {
	DSN       string `yaml:"dsn"` // falls back to database.postgres.dsn
	Table     string `yaml:"table"`
	IndexType string `yaml:"index_type"`
	Lists     int    `yaml:"lists"`
}

// QdrantConfig holds Qdrant-specific settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // hash, openai, openrouter or ollama
	Model             string        `yaml:"model"`
	Dimension         int           `yaml:"dimension"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	BatchSize         int           `yaml:"batch_size"`
	Timeout           time.Duration `yaml:"timeout"`
	CacheSize         int           `yaml:"cache_size"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// RetrievalConfig holds orchestrator settings.
type RetrievalConfig struct {
	DefaultThreshold         float64 `yaml:"default_threshold"`
	MaxProducts              int     `yaml:"max_products"`
	PrimaryOverFetchFactor   int     `yaml:"primary_over_fetch_factor"`
	PrimaryThresholdFactor   float64 `yaml:"primary_threshold_factor"`
	ExpansionThresholdFactor float64 `yaml:"expansion_threshold_factor"`
	ExpansionK               int     `yaml:"expansion_k"`
	MaxExpansions            int     `yaml:"max_expansions"`
	SparseResultThreshold    int     `yaml:"sparse_result_threshold"`
}

// EvaluationConfig holds context quality cutoffs.
type EvaluationConfig struct {
	LowCutoff       float64 `yaml:"low_cutoff"`
	MidCutoff       float64 `yaml:"mid_cutoff"`
	MaxCategories   int     `yaml:"max_categories"`
	WidePriceSpread float64 `yaml:"wide_price_spread"`
}

// GenerationConfig holds language-generation backend settings.
type GenerationConfig struct {
	Provider    string        `yaml:"provider"` // none, openai, openrouter or ollama
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float32       `yaml:"temperature"`
}

// RefreshConfig holds embedding refresh job settings.
type RefreshConfig struct {
	Concurrency int  `yaml:"concurrency"`
	OnStartup   bool `yaml:"on_startup"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	ServiceName    string `yaml:"service_name"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// Load reads configuration from a YAML file and applies environment overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8086,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			AllowedOrigins:   []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/recommendation-engine.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Supabase: SupabaseConfig{
				Table: "products",
			},
		},
		Vector: VectorConfig{
			Adapter: "memory",
			PGVector: PGVectorConfig{
				Table:     "product_embeddings",
				IndexType: "ivfflat",
				Lists:     100,
			},
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				Collection: "products",
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Embedding: EmbeddingConfig{
			Provider:          "hash",
			Model:             "hash-384",
			Dimension:         384,
			BatchSize:         32,
			Timeout:           30 * time.Second,
			CacheSize:         10000,
			MaxRetries:        3,
			RequestsPerSecond: 10,
		},
		Retrieval: RetrievalConfig{
			DefaultThreshold:         0.2,
			MaxProducts:              10,
			PrimaryOverFetchFactor:   2,
			PrimaryThresholdFactor:   0.8,
			ExpansionThresholdFactor: 0.6,
			ExpansionK:               5,
			MaxExpansions:            5,
			SparseResultThreshold:    3,
		},
		Evaluation: EvaluationConfig{
			LowCutoff:       0.15,
			MidCutoff:       0.4,
			MaxCategories:   3,
			WidePriceSpread: 1000,
		},
		Generation: GenerationConfig{
			Provider:    "none",
			Model:       "llama3",
			Timeout:     30 * time.Second,
			MaxTokens:   500,
			Temperature: 0.7,
		},
		Refresh: RefreshConfig{
			Concurrency: 4,
			OnStartup:   true,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "debug",
			LogFormat:      "json",
			ServiceName:    "recommendation-engine",
			MetricsEnabled: true,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres", "supabase", "memory":
	default:
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	switch c.Vector.Adapter {
	case "memory", "pgvector", "qdrant":
	default:
		return fmt.Errorf("invalid vector adapter: %s", c.Vector.Adapter)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	switch c.Embedding.Provider {
	case "hash", "openai", "openrouter", "ollama":
	default:
		return fmt.Errorf("invalid embedding provider: %s", c.Embedding.Provider)
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}

	switch c.Generation.Provider {
	case "none", "openai", "openrouter", "ollama":
	default:
		return fmt.Errorf("invalid generation provider: %s", c.Generation.Provider)
	}

	if c.Retrieval.DefaultThreshold < 0 || c.Retrieval.DefaultThreshold > 1 {
		return fmt.Errorf("default_threshold must be between 0 and 1")
	}

	if c.Retrieval.MaxProducts < 1 || c.Retrieval.MaxProducts > 50 {
		return fmt.Errorf("max_products must be between 1 and 50")
	}

	if c.Evaluation.LowCutoff < 0 || c.Evaluation.LowCutoff >= c.Evaluation.MidCutoff || c.Evaluation.MidCutoff > 1 {
		return fmt.Errorf("evaluation cutoffs must satisfy 0 <= low (%.2f) < mid (%.2f) <= 1",
			c.Evaluation.LowCutoff, c.Evaluation.MidCutoff)
	}

	return nil
}

// IsDevelopment returns true if running against local storage.
func (c *Config) IsDevelopment() bool {
	return c.Database.Driver == "sqlite" || c.Database.Driver == "memory"
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// VectorDSN returns the connection string for the pgvector index.
func (c *Config) VectorDSN() string {
	if c.Vector.PGVector.DSN != "" {
		return c.Vector.PGVector.DSN
	}
	return c.Database.Postgres.DSN
}

// GenerationEnabled reports whether a language-generation backend is configured.
func (c *Config) GenerationEnabled() bool {
	return c.Generation.Provider != "" && c.Generation.Provider != "none"
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.Database.Supabase.URL = v
	}

	if v := os.Getenv("SUPABASE_KEY"); v != "" {
		cfg.Database.Supabase.Key = v
	}

	if v := os.Getenv("VECTOR_ADAPTER"); v != "" {
		cfg.Vector.Adapter = v
	}

	if v := os.Getenv("QDRANT_URL"); v != "" {
		host, port := splitHostPort(v, cfg.Vector.Qdrant.Port)
		cfg.Vector.Qdrant.Host = host
		cfg.Vector.Qdrant.Port = port
	}

	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		cfg.Vector.Qdrant.APIKey = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		// Parse redis://host:port format
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}

	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.Generation.Provider = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Generation.Model = v
	}

	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.Generation.BaseURL = v
	}

	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" && cfg.Generation.Provider == "ollama" && cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = v
	}

	// Provider keys fill in whichever side has none set explicitly.
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == "openai" {
			cfg.Embedding.APIKey = v
		}
		if cfg.Generation.APIKey == "" && cfg.Generation.Provider == "openai" {
			cfg.Generation.APIKey = v
		}
	}

	if v := os.Getenv("OPEN_ROUTER_API_KEY"); v != "" {
		if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == "openrouter" {
			cfg.Embedding.APIKey = v
		}
		if cfg.Generation.APIKey == "" && cfg.Generation.Provider == "openrouter" {
			cfg.Generation.APIKey = v
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

func splitHostPort(v string, defaultPort int) (string, int) {
	v = strings.TrimPrefix(v, "http://")
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimSuffix(v, "/")
	idx := strings.LastIndex(v, ":")
	if idx < 0 {
		return v, defaultPort
	}
	port, err := strconv.Atoi(v[idx+1:])
	if err != nil {
		return v, defaultPort
	}
	return v[:idx], port
}
