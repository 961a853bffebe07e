// Package config loads collect's settings from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pevans/collect/category"
	"github.com/pevans/collect/database"
	"github.com/pevans/collect/fetch"
	"github.com/pevans/collect/pipeline"
	"github.com/pevans/collect/server"
)

// Gateway types.
const (
	GatewayContent = "content"
	GatewayHTTP    = "http"
)

// Lock types.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// StorageConfig locates the database and the content store.
type StorageConfig struct {
	Driver     string `yaml:"driver"`
	DSN        string `yaml:"dsn"`
	ContentDir string `yaml:"content_dir"`
}

// GatewayConfig selects where imported records go. Required lists the
// fields each kind must carry for the content gateway.
type GatewayConfig struct {
	Type     string              `yaml:"type"`
	URL      string              `yaml:"url"`
	Token    string              `yaml:"token"`
	Timeout  time.Duration       `yaml:"timeout"`
	Required map[string][]string `yaml:"required"`
}

// PipelineConfig sizes the stage batches.
type PipelineConfig struct {
	ExtractBatch int `yaml:"extract_batch"`
	ImportBatch  int `yaml:"import_batch"`
}

// MappingConfig controls category resolution.
type MappingConfig struct {
	CategoryPolicy   pipeline.CategoryPolicy `yaml:"category_policy"`
	CategoryCacheTTL time.Duration           `yaml:"category_cache_ttl"`
}

// LockConfig selects the per-node lock.
type LockConfig struct {
	Type          string        `yaml:"type"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Prefix        string        `yaml:"prefix"`
	TTL           time.Duration `yaml:"ttl"`
}

// LogConfig selects the log level and an optional rotating log file.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// SchedulerConfig controls unattended runs.
type SchedulerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// Config represents the structure of ~/.collect/config.yaml.
type Config struct {
	Storage    StorageConfig       `yaml:"storage"`
	Gateway    GatewayConfig       `yaml:"gateway"`
	Fetch      fetch.Options       `yaml:"fetch"`
	Pipeline   PipelineConfig      `yaml:"pipeline"`
	Mapping    MappingConfig       `yaml:"mapping"`
	Lock       LockConfig          `yaml:"lock"`
	Log        LogConfig           `yaml:"log"`
	Server     server.Options      `yaml:"server"`
	Scheduler  SchedulerConfig     `yaml:"scheduler"`
	Categories []category.Category `yaml:"categories"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	dir := baseDir()
	return &Config{
		Storage: StorageConfig{
			Driver:     database.DriverCGO,
			DSN:        filepath.Join(dir, "collect.db"),
			ContentDir: filepath.Join(dir, "content"),
		},
		Gateway: GatewayConfig{
			Type:    GatewayContent,
			Timeout: 30 * time.Second,
		},
		Fetch: fetch.Options{
			Timeout: 30 * time.Second,
			Retries: 2,
		},
		Pipeline: PipelineConfig{
			ExtractBatch: pipeline.DefaultExtractBatch,
			ImportBatch:  pipeline.DefaultImportBatch,
		},
		Mapping: MappingConfig{
			CategoryPolicy:   pipeline.CategoryOmit,
			CategoryCacheTTL: 5 * time.Minute,
		},
		Lock: LockConfig{
			Type:   LockLocal,
			Prefix: "collect:lock:",
			TTL:    10 * time.Minute,
		},
		Log: LogConfig{Level: "info"},
		Server: server.Options{
			Addr:         "localhost:8080",
			RefreshDelay: server.DefaultRefreshDelay,
		},
		Scheduler: SchedulerConfig{SyncInterval: time.Minute},
	}
}

// PipelineOptions returns the options for pipeline.New.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		ExtractBatch:   c.Pipeline.ExtractBatch,
		ImportBatch:    c.Pipeline.ImportBatch,
		CategoryPolicy: c.Mapping.CategoryPolicy,
	}
}

// Validate checks the values that have a fixed set of choices.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case database.DriverCGO, database.DriverPureGo:
	default:
		return fmt.Errorf("invalid storage.driver %q: must be %q or %q", c.Storage.Driver, database.DriverCGO, database.DriverPureGo)
	}

	switch c.Gateway.Type {
	case GatewayContent:
	case GatewayHTTP:
		if c.Gateway.URL == "" {
			return fmt.Errorf("gateway.url is required for the http gateway")
		}
	default:
		return fmt.Errorf("invalid gateway.type %q", c.Gateway.Type)
	}

	switch c.Mapping.CategoryPolicy {
	case pipeline.CategoryOmit, pipeline.CategoryHold:
	default:
		return fmt.Errorf("invalid mapping.category_policy %q", c.Mapping.CategoryPolicy)
	}

	switch c.Lock.Type {
	case LockLocal:
	case LockRedis:
		if c.Lock.RedisAddr == "" {
			return fmt.Errorf("lock.redis_addr is required for the redis lock")
		}
	default:
		return fmt.Errorf("invalid lock.type %q", c.Lock.Type)
	}

	return nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() error {
	c.Storage.Driver = getEnv("COLLECT_DB_DRIVER", c.Storage.Driver)
	c.Storage.DSN = getEnv("COLLECT_DB_DSN", c.Storage.DSN)
	c.Storage.ContentDir = getEnv("COLLECT_CONTENT_DIR", c.Storage.ContentDir)
	c.Log.Level = getEnv("COLLECT_LOG_LEVEL", c.Log.Level)
	c.Server.Addr = getEnv("COLLECT_ADDR", c.Server.Addr)

	if v := os.Getenv("COLLECT_GATEWAY_URL"); v != "" {
		c.Gateway.Type = GatewayHTTP
		c.Gateway.URL = v
	}
	c.Gateway.Token = getEnv("COLLECT_GATEWAY_TOKEN", c.Gateway.Token)

	if v := os.Getenv("COLLECT_REDIS_ADDR"); v != "" {
		c.Lock.Type = LockRedis
		c.Lock.RedisAddr = v
	}

	if v := os.Getenv("COLLECT_EXTRACT_BATCH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid COLLECT_EXTRACT_BATCH %q: %w", v, err)
		}
		c.Pipeline.ExtractBatch = n
	}

	return nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// baseDir is ~/.collect, or .collect when there is no home directory.
func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".collect"
	}
	return filepath.Join(home, ".collect")
}
