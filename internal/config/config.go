// Package config provides application configuration with multi-source priority.
//
// Sources (highest to lowest):
//  1. Environment variables (COMPASS_ prefix)
//  2. Config file (~/.compass/config.yaml)
//  3. Defaults
//
// Sensitive fields (API keys, database password) are masked in MarshalJSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidCacheTTL indicates the response cache TTL is out of range.
	ErrInvalidCacheTTL = errors.New("invalid cache TTL")

	// ErrInvalidInterval indicates a worker interval is out of range.
	ErrInvalidInterval = errors.New("invalid worker interval")

	// ErrInvalidScrapeURL indicates the educational scrape URL is malformed.
	ErrInvalidScrapeURL = errors.New("invalid scrape URL")
)

const (
	// DefaultModelName is the Gemini model used for answer synthesis and
	// content cleaning.
	DefaultModelName = "googleai/gemini-2.5-flash"

	// DefaultEmbeddingModel is the embedding model requested from the
	// OpenAI-compatible endpoint. Its output dimension must match the
	// vector(1536) column in db/migrations.
	DefaultEmbeddingModel = "openai/text-embedding-ada-002"

	// DefaultEmbeddingBaseURL is the OpenAI-compatible endpoint serving
	// embeddings.
	DefaultEmbeddingBaseURL = "https://openrouter.ai/api/v1"

	// DefaultCacheTTL is how long a generated answer stays in the response
	// cache.
	DefaultCacheTTL = 10 * time.Minute

	// DefaultAgentName is the only agent this deployment serves.
	DefaultAgentName = "forex-compass"

	// DefaultScrapeURL is the educational site index crawled by the
	// ingestion worker.
	DefaultScrapeURL = "https://www.babypips.com/learn/forex"
)

// Config stores application configuration.
type Config struct {
	// LLM
	ModelName    string `mapstructure:"model_name" json:"model_name"`
	GeminiAPIKey string `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON

	// Embeddings (OpenAI-compatible endpoint)
	EmbeddingBaseURL string `mapstructure:"embedding_base_url" json:"embedding_base_url"`
	EmbeddingAPIKey  string `mapstructure:"embedding_api_key" json:"embedding_api_key"` // SENSITIVE
	EmbeddingModel   string `mapstructure:"embedding_model" json:"embedding_model"`

	// Storage
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Serving
	ServerAddr string        `mapstructure:"server_addr" json:"server_addr"`
	AgentName  string        `mapstructure:"agent_name" json:"agent_name"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl" json:"cache_ttl"`

	// Ingestion
	FinnhubAPIKey      string        `mapstructure:"finnhub_api_key" json:"finnhub_api_key"`             // SENSITIVE
	AlphaVantageAPIKey string        `mapstructure:"alpha_vantage_api_key" json:"alpha_vantage_api_key"` // SENSITIVE
	ScrapeURL          string        `mapstructure:"scrape_url" json:"scrape_url"`
	FetchInterval      time.Duration `mapstructure:"fetch_interval" json:"fetch_interval"`
	ProcessInterval    time.Duration `mapstructure:"process_interval" json:"process_interval"`

	// Tracing (optional; disabled when endpoint is empty)
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	return load(filepath.Join(home, ".compass"))
}

// load reads configuration from the given directory. Split out for tests.
func load(configDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	v.SetEnvPrefix("COMPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; env vars and defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// GEMINI_API_KEY is the conventional variable read by the googlegenai
	// plugin; honor it when the prefixed form is unset.
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedding_base_url", DefaultEmbeddingBaseURL)
	v.SetDefault("embedding_model", DefaultEmbeddingModel)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "compass")
	v.SetDefault("postgres_db_name", "compass")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("server_addr", "127.0.0.1:8080")
	v.SetDefault("agent_name", DefaultAgentName)
	v.SetDefault("cache_ttl", DefaultCacheTTL)

	v.SetDefault("scrape_url", DefaultScrapeURL)
	v.SetDefault("fetch_interval", 2*time.Hour)
	v.SetDefault("process_interval", time.Minute)

	v.SetDefault("service_name", "forex-compass")
}

// PostgresURL returns a postgres:// URL suitable for golang-migrate and
// pgxpool. The password is URL-escaped.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   c.PostgresDBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// MarshalJSON masks sensitive fields so a Config can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	a := alias(c)
	a.GeminiAPIKey = mask(a.GeminiAPIKey)
	a.EmbeddingAPIKey = mask(a.EmbeddingAPIKey)
	a.PostgresPassword = mask(a.PostgresPassword)
	a.FinnhubAPIKey = mask(a.FinnhubAPIKey)
	a.AlphaVantageAPIKey = mask(a.AlphaVantageAPIKey)
	return json.Marshal(a)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
