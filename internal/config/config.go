// Package config loads the server's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// StoreConfig selects and configures the graph store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "memory" or "postgres"
	DSN     string `yaml:"dsn"`
}

// VectorConfig selects and configures the vector index backend.
type VectorConfig struct {
	Backend    string `yaml:"backend"` // "memory", "qdrant", or "none"
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	UseTLS     bool   `yaml:"use_tls,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	Collection string `yaml:"collection"`
	Dimensions int    `yaml:"dimensions"`
}

// RedisConfig configures the optional Redis-backed processor lock.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// LLMConfig configures the Anthropic-backed LLM adapter.
type LLMConfig struct {
	APIKey         string `yaml:"api_key"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
	EmbeddingHost  string `yaml:"embedding_host,omitempty"`
}

// ProcessorConfig controls the deferred conversation processor.
type ProcessorConfig struct {
	IdleThreshold time.Duration `yaml:"idle_threshold"`
	BatchSize     int           `yaml:"batch_size"`
	LockKey       string        `yaml:"lock_key,omitempty"`
	LockTTL       time.Duration `yaml:"lock_ttl,omitempty"`
}

// Config is the top-level server configuration.
type Config struct {
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	LogLevel  string          `yaml:"log_level"`
	LogPath   string          `yaml:"log_path,omitempty"`
	Store     StoreConfig     `yaml:"store"`
	Vector    VectorConfig    `yaml:"vector"`
	Redis     RedisConfig     `yaml:"redis,omitempty"`
	LLM       LLMConfig       `yaml:"llm"`
	Processor ProcessorConfig `yaml:"processor"`
}

// Load reads configuration from a YAML file, loading a .env file from the
// working directory first (best-effort) so secrets referenced via env
// substitution ($VAR or ${VAR}) in the YAML resolve.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "memory"
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "insights"
	}
	if cfg.Vector.Dimensions == 0 {
		cfg.Vector.Dimensions = 768
	}
	if cfg.LLM.ChatModel == "" {
		cfg.LLM.ChatModel = "claude-3-5-sonnet-latest"
	}
	if cfg.LLM.EmbeddingModel == "" {
		cfg.LLM.EmbeddingModel = "voyage-3"
	}
	if cfg.Processor.IdleThreshold <= 0 {
		cfg.Processor.IdleThreshold = 120 * time.Second
	}
	if cfg.Processor.BatchSize <= 0 {
		cfg.Processor.BatchSize = 10
	}
	if cfg.Processor.LockKey == "" {
		cfg.Processor.LockKey = "convograph:processor:lock"
	}
	if cfg.Processor.LockTTL <= 0 {
		cfg.Processor.LockTTL = 5 * time.Minute
	}
}
