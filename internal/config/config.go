package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	LogConfig logger.LogConfig `json:"log_config"`
	Provider  ProviderConfig   `json:"provider"`
	Model     ModelConfig      `json:"model"`
	Cache     CacheConfig      `json:"cache"`
	Batch     BatchConfig      `json:"batch"`
	Store     StoreConfig      `json:"store"`
	Jobs      JobsConfig       `json:"jobs"`
}

type ProviderConfig struct {
	Type string      `json:"type"`
	Args interface{} `json:"args"`
}

type ModelConfig struct {
	Name       string `json:"name"`
	Dimensions int    `json:"dimensions"`
}

type CacheConfig struct {
	Dir        string `json:"dir"`
	MaxEntries int    `json:"max_entries"`
	Policy     string `json:"policy"`
	TTLSeconds int64  `json:"ttl_seconds"`
	// Optional in-memory front; disabled when either field is zero.
	MemorySize       int   `json:"memory_size"`
	MemoryTTLSeconds int64 `json:"memory_ttl_seconds"`
}

type BatchConfig struct {
	Concurrency   int   `json:"concurrency"`
	RetryAttempts int   `json:"retry_attempts"`
	BaseDelayMS   int64 `json:"base_delay_ms"`
	BatchSize     int   `json:"batch_size"`
	ChunkSize     int   `json:"chunk_size"`
	ChunkOverlap  int   `json:"chunk_overlap"`
}

type StoreConfig struct {
	Type      string       `json:"type"`
	Args      interface{}  `json:"args"`
	Secondary *StoreConfig `json:"secondary,omitempty"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type JobsConfig struct {
	CacheMaxAgeDays  int    `json:"cache_max_age_days"`
	CacheCleanupSpec string `json:"cache_cleanup_spec"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Provider.Type == "" {
		return nil, fmt.Errorf("provider.type is required")
	}
	if cfg.Model.Name == "" {
		return nil, fmt.Errorf("model.name is required")
	}
	if cfg.Cache.Dir == "" {
		return nil, fmt.Errorf("cache.dir is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Cache.Policy == "" {
		cfg.Cache.Policy = "lru"
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = "file"
		if cfg.Store.Args == nil {
			// The file backend needs a root; default it next to the cache.
			cfg.Store.Args = map[string]interface{}{"root": filepath.Join(cfg.Cache.Dir, "vectors")}
		}
	}
	if cfg.Jobs.CacheCleanupSpec == "" {
		cfg.Jobs.CacheCleanupSpec = "0 3 * * *"
	}
	if cfg.Jobs.CacheMaxAgeDays <= 0 {
		cfg.Jobs.CacheMaxAgeDays = 30
	}
	return &cfg, nil
}
