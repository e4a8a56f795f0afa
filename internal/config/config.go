// Package config loads gopherdbd's runtime configuration via viper,
// adapted from the teacher's internal/config.go (NovaSqlConfig), renamed
// and re-scoped to this system's storage-engine-only surface.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is gopherdbd's top-level configuration.
type Config struct {
	DataDir           string `mapstructure:"data_dir"`
	BufferPoolSize    int    `mapstructure:"buffer_pool_size"`
	DeadlockCheckMS   int    `mapstructure:"deadlock_check_interval_ms"`
	DefaultIsolation  string `mapstructure:"default_isolation_level"`
	LogLevel          string `mapstructure:"log_level"`
}

func defaults() Config {
	return Config{
		DataDir:          "./data",
		BufferPoolSize:   256,
		DeadlockCheckMS:  500,
		DefaultIsolation: "REPEATABLE_READ",
		LogLevel:         "info",
	}
}

// Load reads configuration from path (if non-empty) and GOPHERDB_-prefixed
// environment variables, layered over hardcoded defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	cfg := defaults()

	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("buffer_pool_size", cfg.BufferPoolSize)
	v.SetDefault("deadlock_check_interval_ms", cfg.DeadlockCheckMS)
	v.SetDefault("default_isolation_level", cfg.DefaultIsolation)
	v.SetDefault("log_level", cfg.LogLevel)

	v.SetEnvPrefix("GOPHERDB")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
