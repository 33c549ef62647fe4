package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/cbc-analysis-server/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
	paths  []string
}

// Option customises a Manager before the first load
type Option func(*Manager)

// WithConfigPaths replaces the default config search paths.
func WithConfigPaths(paths ...string) Option {
	return func(m *Manager) {
		m.paths = paths
	}
}

// NewManager creates a new configuration manager
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{
		paths: []string{".", "./config", "/etc/cbc-analysis-server/"},
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	// .env is optional; real environment variables take precedence over it
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range m.paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("CBC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// No default exists for the abnormal label, so AutomaticEnv alone would never surface it.
	if err := v.BindEnv("classifier.abnormal_label"); err != nil {
		return fmt.Errorf("error binding classifier.abnormal_label: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.max_upload_bytes", DefaultMaxUploadBytes)
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Extractor defaults
	v.SetDefault("extractor.layout", string(domain.LayoutHeaderValueLine))
	v.SetDefault("extractor.section_marker", "COMPLETE BLOOD COUNT")
	v.SetDefault("extractor.table_header_marker", "RESULT")

	// Classifier defaults
	v.SetDefault("classifier.backend", domain.ClassifierBackendLinear)
	v.SetDefault("classifier.model_path", "model/cbc_model.json")
	v.SetDefault("classifier.scaler_path", "")
	v.SetDefault("classifier.remote.url", "")
	v.SetDefault("classifier.remote.timeout", "10s")
	v.SetDefault("classifier.remote.rate_limit", 10)
	v.SetDefault("classifier.remote.max_requests", 3)
	v.SetDefault("classifier.remote.interval", "60s")
	v.SetDefault("classifier.remote.open_timeout", "30s")

	// Cache defaults
	v.SetDefault("cache.memory_size", 1000)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.redis_url", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// MCP defaults
	v.SetDefault("mcp.server_name", "cbc-analysis-server")
	v.SetDefault("mcp.server_version", "1.0.0")
}

// DefaultMaxUploadBytes is the upload ceiling when none is configured (10 MiB).
const DefaultMaxUploadBytes int64 = 10 << 20

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetClassifierConfig returns classifier configuration
func (m *Manager) GetClassifierConfig() *domain.ClassifierConfig {
	return &m.config.Classifier
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	return ValidateConfig(m.config)
}

// ValidateConfig checks a configuration regardless of where it was loaded from.
func ValidateConfig(config *domain.Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid max upload bytes: %d", config.Server.MaxUploadBytes)
	}

	if _, err := domain.ParseLayout(config.Extractor.Layout); err != nil {
		return fmt.Errorf("invalid extractor layout: %w", err)
	}

	if err := validateClassifier(&config.Classifier); err != nil {
		return err
	}

	if config.Cache.MemorySize < 0 {
		return fmt.Errorf("invalid cache memory size: %d", config.Cache.MemorySize)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

func validateClassifier(c *domain.ClassifierConfig) error {
	if c.AbnormalLabel == nil {
		return fmt.Errorf("classifier.abnormal_label must be set explicitly to 0 or 1")
	}
	if *c.AbnormalLabel != 0 && *c.AbnormalLabel != 1 {
		return fmt.Errorf("invalid classifier.abnormal_label: %d", *c.AbnormalLabel)
	}

	switch c.Backend {
	case domain.ClassifierBackendLinear:
		if c.ModelPath == "" {
			return fmt.Errorf("classifier.model_path is required for the linear backend")
		}
	case domain.ClassifierBackendRemote:
		if c.Remote.URL == "" {
			return fmt.Errorf("classifier.remote.url is required for the remote backend")
		}
		if c.Remote.RateLimit <= 0 {
			return fmt.Errorf("invalid classifier.remote.rate_limit: %d", c.Remote.RateLimit)
		}
	default:
		return fmt.Errorf("unknown classifier backend: %q", c.Backend)
	}
	return nil
}
