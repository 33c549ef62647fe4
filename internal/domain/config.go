package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Extractor  ExtractorConfig  `mapstructure:"extractor"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	MCP        MCPConfig        `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// ExtractorConfig selects the report layout and its table markers
type ExtractorConfig struct {
	Layout            string `mapstructure:"layout"`
	SectionMarker     string `mapstructure:"section_marker"`
	TableHeaderMarker string `mapstructure:"table_header_marker"`
}

// Classifier backends
const (
	ClassifierBackendLinear = "linear"
	ClassifierBackendRemote = "remote"
)

// ClassifierConfig configures the opaque predictor and the meaning of its labels.
// AbnormalLabel has no default: deployments disagree on whether 0 or 1 means abnormal.
type ClassifierConfig struct {
	Backend       string              `mapstructure:"backend"`
	AbnormalLabel *int                `mapstructure:"abnormal_label"`
	ModelPath     string              `mapstructure:"model_path"`
	ScalerPath    string              `mapstructure:"scaler_path"`
	Remote        RemoteScoringConfig `mapstructure:"remote"`
}

// RemoteScoringConfig represents the remote scoring service configuration
type RemoteScoringConfig struct {
	URL         string        `mapstructure:"url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   int           `mapstructure:"rate_limit"`
	MaxRequests uint32        `mapstructure:"max_requests"`
	Interval    time.Duration `mapstructure:"interval"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// CacheConfig represents prediction cache configuration
type CacheConfig struct {
	MemorySize int           `mapstructure:"memory_size"`
	TTL        time.Duration `mapstructure:"ttl"`
	RedisURL   string        `mapstructure:"redis_url"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
