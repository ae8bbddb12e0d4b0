package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	Providers   map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Synthesis   SynthesisConfig           `json:"synthesis" yaml:"synthesis"`
}

type BasicConfig struct {
	ServerAddress        string   `json:"server_address" yaml:"server_address"`
	APITokens            []string `json:"api_tokens" yaml:"api_tokens"`
	SweepIntervalMinutes int      `json:"sweep_interval_minutes" yaml:"sweep_interval_minutes"`
	StaleJobMinutes      int      `json:"stale_job_minutes" yaml:"stale_job_minutes"`
	RaceWaitSeconds      int      `json:"race_wait_seconds" yaml:"race_wait_seconds"`
	AITimeoutSeconds     int      `json:"ai_timeout_seconds" yaml:"ai_timeout_seconds"`
	WorkerCount          int      `json:"worker_count" yaml:"worker_count"`
	QueueSize            int      `json:"queue_size" yaml:"queue_size"`
}

// DatabaseConfig holds either a DSN (sqlite) or discrete connection fields (mysql).
type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
	Params   string `json:"params" yaml:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// ProviderConfig describes one LLM backend. APIKeyEnv is resolved once by Load.
type ProviderConfig struct {
	Kind           string `json:"kind" yaml:"kind"`
	BaseURL        string `json:"base_url" yaml:"base_url"`
	Model          string `json:"model" yaml:"model"`
	APIKey         string `json:"api_key" yaml:"api_key"`
	APIKeyEnv      string `json:"api_key_env" yaml:"api_key_env"`
	VertexProject  string `json:"vertex_project" yaml:"vertex_project"`
	VertexLocation string `json:"vertex_location" yaml:"vertex_location"`
}

type SynthesisConfig struct {
	Provider             string   `json:"provider" yaml:"provider"`
	FallbackModel        string   `json:"fallback_model" yaml:"fallback_model"`
	FallbackTemperature  *float64 `json:"fallback_temperature" yaml:"fallback_temperature"`
	FallbackMaxTokens    int      `json:"fallback_max_tokens" yaml:"fallback_max_tokens"`
	Persona              string   `json:"persona" yaml:"persona"`
	TierTwoDocumentType  string   `json:"tier_two_document_type" yaml:"tier_two_document_type"`
	FingerprintAlgorithm string   `json:"fingerprint_algorithm" yaml:"fingerprint_algorithm"`
}

const (
	DefaultFallbackModel       = "gpt-4o"
	DefaultFallbackTemperature = 0.7
	DefaultFallbackMaxTokens   = 4000
	DefaultTierTwoDocumentType = "brand-guidelines"
	DefaultAITimeout           = 2 * time.Minute
	DefaultSweepInterval       = 10 * time.Minute
	DefaultStaleJobAge         = 30 * time.Minute
)

// Load reads configuration from the provided path (defaults to config.json).
// Files ending in .yaml or .yml are decoded as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("at least one database must be configured")
	}
	// relative sqlite files live next to the config file
	for name, db := range cfg.Databases {
		if db.DSN != "" && db.DSN != ":memory:" && !strings.HasPrefix(db.DSN, "file:") && !filepath.IsAbs(db.DSN) && isSQLite(name) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}
	for name, p := range cfg.Providers {
		if p.APIKey == "" && p.APIKeyEnv != "" {
			p.APIKey = strings.TrimSpace(os.Getenv(p.APIKeyEnv))
			cfg.Providers[name] = p
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isSQLite(name string) bool {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}

func (c *Config) applyDefaults() {
	if c.Synthesis.FallbackModel == "" {
		c.Synthesis.FallbackModel = DefaultFallbackModel
	}
	// nil only, an explicit 0 is a valid temperature
	if c.Synthesis.FallbackTemperature == nil {
		temperature := DefaultFallbackTemperature
		c.Synthesis.FallbackTemperature = &temperature
	}
	if c.Synthesis.FallbackMaxTokens == 0 {
		c.Synthesis.FallbackMaxTokens = DefaultFallbackMaxTokens
	}
	if c.Synthesis.TierTwoDocumentType == "" {
		c.Synthesis.TierTwoDocumentType = DefaultTierTwoDocumentType
	}
	if c.Synthesis.FingerprintAlgorithm == "" {
		c.Synthesis.FingerprintAlgorithm = "sha256"
	}
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.BasicConfig.WorkerCount <= 0 {
		c.BasicConfig.WorkerCount = 2
	}
	if c.BasicConfig.QueueSize <= 0 {
		c.BasicConfig.QueueSize = 64
	}
}

// Validate checks cross-field consistency after defaults are applied.
func (c *Config) Validate() error {
	switch c.Synthesis.FingerprintAlgorithm {
	case "sha256", "rolling31":
	default:
		return fmt.Errorf("unsupported fingerprint_algorithm %q", c.Synthesis.FingerprintAlgorithm)
	}
	if c.Synthesis.Provider != "" {
		if _, ok := c.Providers[c.Synthesis.Provider]; !ok {
			return fmt.Errorf("synthesis provider %s not configured", c.Synthesis.Provider)
		}
	}
	return nil
}

// AITimeout is the hard budget for a single provider call.
func (c *Config) AITimeout() time.Duration {
	return minutesOrSeconds(c.BasicConfig.AITimeoutSeconds, time.Second, DefaultAITimeout)
}

func (c *Config) SweepInterval() time.Duration {
	return minutesOrSeconds(c.BasicConfig.SweepIntervalMinutes, time.Minute, DefaultSweepInterval)
}

func (c *Config) StaleJobAge() time.Duration {
	return minutesOrSeconds(c.BasicConfig.StaleJobMinutes, time.Minute, DefaultStaleJobAge)
}

// RaceWait is how long a race loser polls the winner before giving up. Zero disables polling.
func (c *Config) RaceWait() time.Duration {
	if c.BasicConfig.RaceWaitSeconds <= 0 {
		return 0
	}
	return time.Duration(c.BasicConfig.RaceWaitSeconds) * time.Second
}

func minutesOrSeconds(v int, unit, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * unit
}
