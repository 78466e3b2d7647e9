package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the htsnav API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Tariff    TariffConfig    `yaml:"tariff"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds vector index (Redis) connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// PostgresConfig holds the reference-data store connection settings.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider      string `yaml:"provider"` // label for logs and metrics
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	Dimensions    int    `yaml:"dimensions"`
	SparseDim     int    `yaml:"sparse_dim"` // hashed sparse embedding space size
	CacheTTLHours int    `yaml:"cache_ttl_hours"`
}

// RetrievalConfig holds fusion and rerank settings.
type RetrievalConfig struct {
	Collection      string  `yaml:"collection"`
	TopK            int     `yaml:"top_k"`             // per-arm candidate depth
	RRFK            int     `yaml:"rrf_k"`             // reciprocal rank fusion constant
	RerankURL       string  `yaml:"rerank_url"`        // empty disables reranking
	RerankTopK      int     `yaml:"rerank_top_k"`
	BlendRatio      float64 `yaml:"blend_ratio"`       // rerank score weight in blend
	SparseQueryDims int     `yaml:"sparse_query_dims"` // cap on postings fetched per query
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	ChunkSentences int `yaml:"chunk_sentences"` // sentences per chunk
	BatchSize      int `yaml:"batch_size"`      // chunks per upsert call
	Workers        int `yaml:"workers"`         // concurrent embedding calls
	EmbedRPS       int `yaml:"embed_rps"`       // embedding calls per second, 0 = unlimited
}

// TariffConfig holds tariff resolution settings.
type TariffConfig struct {
	Column2Countries []string `yaml:"column2_countries"`
	MPF              float64  `yaml:"mpf"`
	HMF              float64  `yaml:"hmf"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-ada-002"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.SparseDim <= 0 {
		c.Embedding.SparseDim = 100000
	}
	if c.Embedding.CacheTTLHours <= 0 {
		c.Embedding.CacheTTLHours = 24 * 14
	}
	if c.Retrieval.Collection == "" {
		c.Retrieval.Collection = "tariff_docs"
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 30
	}
	if c.Retrieval.RRFK <= 0 {
		c.Retrieval.RRFK = 60
	}
	if c.Retrieval.RerankTopK <= 0 {
		c.Retrieval.RerankTopK = 10
	}
	if c.Retrieval.BlendRatio <= 0 {
		c.Retrieval.BlendRatio = 0.3
	}
	if c.Retrieval.SparseQueryDims <= 0 {
		c.Retrieval.SparseQueryDims = 64
	}
	if c.Ingest.ChunkSentences <= 0 {
		c.Ingest.ChunkSentences = 3
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = 64
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 4
	}
	if len(c.Tariff.Column2Countries) == 0 {
		c.Tariff.Column2Countries = []string{"Belarus", "Russia", "Cuba", "North Korea"}
	}
	if c.Tariff.MPF <= 0 {
		c.Tariff.MPF = 35.0
	}
	if c.Tariff.HMF <= 0 {
		c.Tariff.HMF = 13.0
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "htsnav:"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.Retrieval.BlendRatio < 0 || c.Retrieval.BlendRatio > 1 {
		return fmt.Errorf("retrieval.blend_ratio must be in [0,1], got %g", c.Retrieval.BlendRatio)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
