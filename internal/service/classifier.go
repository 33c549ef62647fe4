package service

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/cbc-analysis-server/internal/domain"
)

// VerdictPolicy maps raw classifier labels to verdicts. Which label means abnormal is a
// deployment decision and is never inferred.
type VerdictPolicy struct {
	AbnormalLabel int
}

// NewVerdictPolicy creates a policy; the abnormal label must be 0 or 1.
func NewVerdictPolicy(abnormalLabel int) (VerdictPolicy, error) {
	if abnormalLabel != 0 && abnormalLabel != 1 {
		return VerdictPolicy{}, fmt.Errorf("abnormal label %d: %w", abnormalLabel, domain.ErrInvalidLabel)
	}
	return VerdictPolicy{AbnormalLabel: abnormalLabel}, nil
}

// Interpret converts a label into a verdict.
func (p VerdictPolicy) Interpret(label int) (domain.Verdict, error) {
	if label != 0 && label != 1 {
		return domain.Verdict{}, fmt.Errorf("label %d: %w", label, domain.ErrInvalidLabel)
	}
	return domain.Verdict{Label: label, Abnormal: label == p.AbnormalLabel}, nil
}

// CacheStats represents prediction cache statistics
type CacheStats struct {
	MemoryHits    int64     `json:"memory_hits"`
	MemoryMisses  int64     `json:"memory_misses"`
	SharedHits    int64     `json:"shared_hits"`
	SharedMisses  int64     `json:"shared_misses"`
	Predictions   int64     `json:"predictions"`
	TotalRequests int64     `json:"total_requests"`
	ErrorCount    int64     `json:"error_count"`
	LastReset     time.Time `json:"last_reset"`
}

// CachedClassifierConfig configures the prediction cache tiers
type CachedClassifierConfig struct {
	MemorySize int
	TTL        time.Duration
}

type cachedLabel struct {
	label   int
	expires time.Time
}

// CachedClassifier wraps a Classifier with an in-memory LRU tier and an optional shared tier
// (Redis). Identical vectors always produce identical labels, so caching is transparent.
type CachedClassifier struct {
	next   domain.Classifier
	memory *lru.Cache[string, cachedLabel]
	shared domain.PredictionCache
	ttl    time.Duration
	logger *logrus.Logger

	statsMu sync.Mutex
	stats   CacheStats
}

// NewCachedClassifier creates a cached classifier. shared may be nil.
func NewCachedClassifier(next domain.Classifier, shared domain.PredictionCache, config CachedClassifierConfig, logger *logrus.Logger) (*CachedClassifier, error) {
	if config.MemorySize <= 0 {
		config.MemorySize = 1000
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}

	memory, err := lru.New[string, cachedLabel](config.MemorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	return &CachedClassifier{
		next:   next,
		memory: memory,
		shared: shared,
		ttl:    config.TTL,
		logger: logger,
		stats:  CacheStats{LastReset: time.Now()},
	}, nil
}

// Predict implements domain.Classifier
func (c *CachedClassifier) Predict(ctx context.Context, vector domain.ModelInputVector) (int, error) {
	c.record(func(s *CacheStats) { s.TotalRequests++ })
	key := VectorKey(vector)

	if entry, ok := c.memory.Get(key); ok && time.Now().Before(entry.expires) {
		c.record(func(s *CacheStats) { s.MemoryHits++ })
		return entry.label, nil
	}
	c.record(func(s *CacheStats) { s.MemoryMisses++ })

	if c.shared != nil {
		label, found, err := c.shared.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.WithError(err).Warn("Shared prediction cache unavailable, falling back to classifier")
		case found:
			c.record(func(s *CacheStats) { s.SharedHits++ })
			c.memory.Add(key, cachedLabel{label: label, expires: time.Now().Add(c.ttl)})
			return label, nil
		default:
			c.record(func(s *CacheStats) { s.SharedMisses++ })
		}
	}

	c.record(func(s *CacheStats) { s.Predictions++ })
	label, err := c.next.Predict(ctx, vector)
	if err != nil {
		c.record(func(s *CacheStats) { s.ErrorCount++ })
		return 0, err
	}

	c.memory.Add(key, cachedLabel{label: label, expires: time.Now().Add(c.ttl)})
	if c.shared != nil {
		if err := c.shared.Set(ctx, key, label, c.ttl); err != nil {
			c.logger.WithError(err).Warn("Failed to store prediction in shared cache")
		}
	}
	return label, nil
}

// Stats returns a snapshot of cache statistics
func (c *CachedClassifier) Stats() CacheStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *CachedClassifier) record(update func(s *CacheStats)) {
	c.statsMu.Lock()
	update(&c.stats)
	c.statsMu.Unlock()
}

// VectorKey is the cache key of a vector: a SHA-256 digest of its IEEE-754 bit patterns.
func VectorKey(vector domain.ModelInputVector) string {
	buf := make([]byte, 8*domain.ModelInputWidth)
	for i, v := range vector {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	sum := sha256.Sum256(buf)
	return "cbc:prediction:" + hex.EncodeToString(sum[:])
}
