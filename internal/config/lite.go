// Package config provides configuration management for the analysis servers.
// This file contains the lightweight, environment-only configuration used by the MCP binary.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cbc-analysis-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It reads no config file and never contacts Redis unless CBC_REDIS_URL is set.
type LiteConfig struct {
	// Extraction
	Layout string // header_value_line or labeled_table

	// Classifier
	Backend       string // linear or remote
	AbnormalLabel *int   // must be provided; no default
	ModelPath     string
	ScalerPath    string
	RemoteURL     string

	// Cache settings
	CacheMaxItems int           // Maximum items in memory cache
	CacheTTL      time.Duration // Default cache TTL
	RedisURL      string        // Optional shared cache

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	return &LiteConfig{
		Layout:        string(domain.LayoutHeaderValueLine),
		Backend:       domain.ClassifierBackendLinear,
		ModelPath:     "model/cbc_model.json",
		CacheMaxItems: 1000,
		CacheTTL:      24 * time.Hour,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("CBC_EXTRACTOR_LAYOUT"); v != "" {
		cfg.Layout = v
	}

	// Classifier
	if v := os.Getenv("CBC_CLASSIFIER_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("CBC_CLASSIFIER_ABNORMAL_LABEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AbnormalLabel = &n
		}
	}
	if v := os.Getenv("CBC_CLASSIFIER_MODEL_PATH"); v != "" {
		cfg.ModelPath = v
	}
	cfg.ScalerPath = os.Getenv("CBC_CLASSIFIER_SCALER_PATH")
	cfg.RemoteURL = os.Getenv("CBC_CLASSIFIER_REMOTE_URL")

	// Cache settings
	if v := os.Getenv("CBC_CACHE_MEMORY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("CBC_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}
	cfg.RedisURL = os.Getenv("CBC_CACHE_REDIS_URL")

	// Logging
	if v := os.Getenv("CBC_LOGGING_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CBC_LOGGING_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// ToConfig expands the lite settings into a full configuration, filling the remaining sections
// with the same defaults the file-based Manager uses.
func (c *LiteConfig) ToConfig() *domain.Config {
	return &domain.Config{
		Server: domain.ServerConfig{
			Port:           5000,
			MaxUploadBytes: DefaultMaxUploadBytes,
			AllowedOrigins: []string{"*"},
		},
		Extractor: domain.ExtractorConfig{
			Layout:            c.Layout,
			SectionMarker:     "COMPLETE BLOOD COUNT",
			TableHeaderMarker: "RESULT",
		},
		Classifier: domain.ClassifierConfig{
			Backend:       c.Backend,
			AbnormalLabel: c.AbnormalLabel,
			ModelPath:     c.ModelPath,
			ScalerPath:    c.ScalerPath,
			Remote: domain.RemoteScoringConfig{
				URL:         c.RemoteURL,
				Timeout:     10 * time.Second,
				RateLimit:   10,
				MaxRequests: 3,
				Interval:    60 * time.Second,
				OpenTimeout: 30 * time.Second,
			},
		},
		Cache: domain.CacheConfig{
			MemorySize: c.CacheMaxItems,
			TTL:        c.CacheTTL,
			RedisURL:   c.RedisURL,
		},
		Logging: domain.LoggingConfig{
			Level:  c.LogLevel,
			Format: c.LogFormat,
		},
		MCP: domain.MCPConfig{
			ServerName:    "cbc-analysis-server",
			ServerVersion: "1.0.0",
		},
	}
}
