package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/cbc-analysis-server/internal/domain"
)

// ScoringClient calls a remote model-serving endpoint. It implements domain.Classifier.
type ScoringClient struct {
	url        string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// ScoringRequest is the request body: one row per instance, columns in model order.
type ScoringRequest struct {
	Instances [][]float64 `json:"instances"`
}

// ScoringResponse carries one prediction per instance.
type ScoringResponse struct {
	Predictions []float64 `json:"predictions"`
}

// NewScoringClient creates a new remote scoring client
func NewScoringClient(config domain.RemoteScoringConfig, logger *logrus.Logger) *ScoringClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10
	}

	return &ScoringClient{
		url: config.URL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker: newCircuitBreaker("scoring", CircuitBreakerConfig{
			MaxRequests: config.MaxRequests,
			Interval:    config.Interval,
			Timeout:     config.OpenTimeout,
		}, logger),
		logger: logger,
	}
}

// Predict implements domain.Classifier
func (c *ScoringClient) Predict(ctx context.Context, vector domain.ModelInputVector) (int, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait failed: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.score(ctx, vector)
	})
	if err != nil {
		return 0, breakerError("scoring", err)
	}
	return result.(int), nil
}

func (c *ScoringClient) score(ctx context.Context, vector domain.ModelInputVector) (int, error) {
	body, err := json.Marshal(ScoringRequest{Instances: [][]float64{vector.Slice()}})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal scoring request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("scoring request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("scoring service returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out ScoringResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode scoring response: %w", err)
	}
	if len(out.Predictions) != 1 {
		return 0, fmt.Errorf("expected 1 prediction, got %d", len(out.Predictions))
	}

	p := out.Predictions[0]
	if p != math.Trunc(p) {
		return 0, fmt.Errorf("prediction %v: %w", p, domain.ErrInvalidLabel)
	}

	c.logger.WithField("label", int(p)).Debug("Remote scoring succeeded")
	return int(p), nil
}

// State reports the circuit breaker state, for health checks.
func (c *ScoringClient) State() string {
	return c.breaker.State().String()
}
