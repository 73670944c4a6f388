package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds the CLI configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	DBPath     string `json:"db_path"`
	LogLevel   string `json:"log_level"`
	PoolSize   int    `json:"pool_size"`
	CacheLimit int    `json:"cache_limit"`
	Retention  int    `json:"retention"`
}

func defaultConfig() Config {
	return Config{
		DBPath:   filepath.Join(cogniaDir(), "workflows.db"),
		LogLevel: "info",
	}
}

func cogniaDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cognia-workflow"
	}
	return filepath.Join(home, ".cognia-workflow")
}

func settingsPath() string {
	return filepath.Join(cogniaDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("COGNIA_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("COGNIA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("COGNIA_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("COGNIA_CACHE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CacheLimit = n
		}
	}
	if v := os.Getenv("COGNIA_RETENTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retention = n
		}
	}

	return cfg
}
