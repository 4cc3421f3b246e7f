// Package config loads the engram YAML configuration.
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

// Config holds the engram engine configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Store     StoreConfig     `yaml:"store"`
	Encoder   EncoderConfig   `yaml:"encoder"`
	Search    SearchConfig    `yaml:"search"`
	Summarize SummarizeConfig `yaml:"summarize"`
	Prune     PruneConfig     `yaml:"prune"`
	Auth      AuthConfig      `yaml:"auth"`
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

// StoreConfig holds vector store connection settings.
type StoreConfig struct {
	Driver           string   `yaml:"driver"` // redis, chromem (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
}

// EncoderConfig holds encoder gateway (embedding) settings.
type EncoderConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	Dimensions   int           `yaml:"dimensions"`
	Cache        CacheConfig   `yaml:"cache"`
	Breaker      BreakerConfig `yaml:"breaker"`
	TimeoutSec   int           `yaml:"timeout_sec"`
	ProviderName string        `yaml:"provider_name"` // metrics label (default: openai)
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	LocalEntries int64 `yaml:"local_entries"`  // in-process cache capacity, 0 disables
	StoreTTLSec  int   `yaml:"store_ttl_sec"`  // store-backed cache TTL, 0 = no expiry
	StoreEnabled *bool `yaml:"store_enabled"`  // defaults to true on the redis driver
}

// BreakerConfig holds circuit breaker settings for the encoder gateway.
type BreakerConfig struct {
	MaxRequests      uint32  `yaml:"max_requests"`
	IntervalSec      int     `yaml:"interval_sec"`
	TimeoutSec       int     `yaml:"timeout_sec"`
	MinRequests      uint32  `yaml:"min_requests"`
	FailureThreshold float64 `yaml:"failure_threshold"`
}

// SearchConfig holds tiered search settings.
type SearchConfig struct {
	KRRF           int `yaml:"k_rrf"`            // RRF damping constant (default 60)
	TierTimeoutMS  int `yaml:"tier_timeout_ms"`  // per-tier deadline (default 2000)
	MaxQueryChars  int `yaml:"max_query_chars"`  // queries are truncated beyond this (default 8192)
	DefaultK       int `yaml:"default_k"`
	MaxK           int `yaml:"max_k"`
}

// SummarizeConfig holds summarizer settings.
type SummarizeConfig struct {
	Provider         string `yaml:"provider"` // openai, anthropic
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	Model            string `yaml:"model"`
	MaxTokens        int    `yaml:"max_tokens"`
	Threshold        int    `yaml:"threshold"`          // raw events per thread before a summary is produced
	InputBudgetChars int    `yaml:"input_budget_chars"` // above this, chunk and summarize hierarchically
}

// PruneConfig holds pruner settings.
type PruneConfig struct {
	Threshold      float64 `yaml:"threshold"`       // importance below this is prunable (default 0.2)
	RetentionHours int     `yaml:"retention_hours"` // minimum age before pruning (default 720)
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
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "redis"
	}
	if c.Store.ReadinessTimeout <= 0 {
		c.Store.ReadinessTimeout = 10
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = "engram:"
	}
	if c.Encoder.Dimensions <= 0 {
		c.Encoder.Dimensions = 1536
	}
	if c.Encoder.TimeoutSec <= 0 {
		c.Encoder.TimeoutSec = 10
	}
	if c.Encoder.ProviderName == "" {
		c.Encoder.ProviderName = "openai"
	}
	if c.Encoder.Breaker.MaxRequests == 0 {
		c.Encoder.Breaker.MaxRequests = 3
	}
	if c.Encoder.Breaker.IntervalSec <= 0 {
		c.Encoder.Breaker.IntervalSec = 60
	}
	if c.Encoder.Breaker.TimeoutSec <= 0 {
		c.Encoder.Breaker.TimeoutSec = 30
	}
	if c.Encoder.Breaker.MinRequests == 0 {
		c.Encoder.Breaker.MinRequests = 5
	}
	if c.Encoder.Breaker.FailureThreshold <= 0 {
		c.Encoder.Breaker.FailureThreshold = 0.6
	}
	if c.Search.KRRF <= 0 {
		c.Search.KRRF = 60
	}
	if c.Search.TierTimeoutMS <= 0 {
		c.Search.TierTimeoutMS = 2000
	}
	if c.Search.MaxQueryChars <= 0 {
		c.Search.MaxQueryChars = 8192
	}
	if c.Search.DefaultK <= 0 {
		c.Search.DefaultK = 10
	}
	if c.Search.MaxK <= 0 {
		c.Search.MaxK = 100
	}
	if c.Summarize.Provider == "" {
		c.Summarize.Provider = "openai"
	}
	if c.Summarize.MaxTokens <= 0 {
		c.Summarize.MaxTokens = 1024
	}
	if c.Summarize.Threshold <= 0 {
		c.Summarize.Threshold = 25
	}
	if c.Summarize.InputBudgetChars <= 0 {
		c.Summarize.InputBudgetChars = 24576
	}
	if c.Prune.Threshold <= 0 {
		c.Prune.Threshold = 0.2
	}
	if c.Prune.RetentionHours <= 0 {
		c.Prune.RetentionHours = 720
	}
}

// Validate checks the configuration for correctness. A failure here must
// abort startup: these are exactly the misconfigurations that would
// otherwise surface as confusing request-time errors.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Store.Driver {
	case "redis":
		if len(c.Store.Addrs) == 0 {
			return fmt.Errorf("store.addrs is required for the redis driver")
		}
	case "chromem":
		// embedded, no address
	default:
		return fmt.Errorf("store.driver must be \"redis\" or \"chromem\", got %q", c.Store.Driver)
	}
	if c.Encoder.Model == "" {
		return fmt.Errorf("encoder.model is required")
	}
	if c.Encoder.APIKey == "" && c.Encoder.BaseURL == "" {
		return fmt.Errorf("encoder.api_key or encoder.base_url is required")
	}
	switch c.Summarize.Provider {
	case "openai", "anthropic":
		// ok
	default:
		return fmt.Errorf("summarize.provider must be \"openai\" or \"anthropic\", got %q", c.Summarize.Provider)
	}
	if c.Prune.Threshold > 1 {
		return fmt.Errorf("prune.threshold must be within (0,1], got %f", c.Prune.Threshold)
	}
	return nil
}

// StoreCacheEnabled reports whether the store-backed embedding cache is on.
func (c *Config) StoreCacheEnabled() bool {
	if c.Encoder.Cache.StoreEnabled != nil {
		return *c.Encoder.Cache.StoreEnabled
	}
	return c.Store.Driver == "redis"
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
