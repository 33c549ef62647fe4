package domain

import (
	"context"
	"time"
)

// Classifier is the opaque pre-trained predictor. It returns a binary label whose meaning is
// deployment configuration (see VerdictPolicy in the service package).
type Classifier interface {
	Predict(ctx context.Context, vector ModelInputVector) (int, error)
}

// SexEncoder maps the categorical sex value to its numeric model encoding.
type SexEncoder interface {
	Encode(sex SexValue) float64
}

// Scaler transforms an encoded vector before classification.
type Scaler interface {
	Transform(vector ModelInputVector) ModelInputVector
}

// PredictionCache stores classifier labels keyed by a stable vector digest
type PredictionCache interface {
	Get(ctx context.Context, key string) (int, bool, error)
	Set(ctx context.Context, key string, label int, ttl time.Duration) error
}

// DocumentTextSource turns an uploaded document into its text layer
type DocumentTextSource interface {
	Text(ctx context.Context, filename string, data []byte) (string, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetClassifierConfig() *ClassifierConfig
	GetRedisConnectionString() string
	Reload() error
	Validate() error
}
