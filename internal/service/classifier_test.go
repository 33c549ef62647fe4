package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbc-analysis-server/internal/domain"
)

// fakeClassifier returns a fixed label and counts calls.
type fakeClassifier struct {
	mu    sync.Mutex
	label int
	err   error
	calls int
	last  domain.ModelInputVector
}

func (f *fakeClassifier) Predict(_ context.Context, v domain.ModelInputVector) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = v
	return f.label, f.err
}

// memoryPredictionCache is an in-process domain.PredictionCache.
type memoryPredictionCache struct {
	mu      sync.Mutex
	entries map[string]int
	getErr  error
}

func newMemoryPredictionCache() *memoryPredictionCache {
	return &memoryPredictionCache{entries: map[string]int{}}
}

func (m *memoryPredictionCache) Get(_ context.Context, key string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, false, m.getErr
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *memoryPredictionCache) Set(_ context.Context, key string, label int, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = label
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestVerdictPolicy(t *testing.T) {
	tests := []struct {
		name         string
		abnormal     int
		label        int
		wantAbnormal bool
		wantErr      bool
	}{
		{name: "1 is abnormal, label 1", abnormal: 1, label: 1, wantAbnormal: true},
		{name: "1 is abnormal, label 0", abnormal: 1, label: 0, wantAbnormal: false},
		{name: "0 is abnormal, label 0", abnormal: 0, label: 0, wantAbnormal: true},
		{name: "0 is abnormal, label 1", abnormal: 0, label: 1, wantAbnormal: false},
		{name: "label out of range", abnormal: 1, label: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := NewVerdictPolicy(tt.abnormal)
			require.NoError(t, err)

			verdict, err := policy.Interpret(tt.label)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidLabel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.label, verdict.Label)
			assert.Equal(t, tt.wantAbnormal, verdict.Abnormal)
		})
	}

	_, err := NewVerdictPolicy(-1)
	assert.ErrorIs(t, err, domain.ErrInvalidLabel)
}

func TestCachedClassifier_MemoryTier(t *testing.T) {
	inner := &fakeClassifier{label: 1}
	cached, err := NewCachedClassifier(inner, nil, CachedClassifierConfig{MemorySize: 4}, testLogger())
	require.NoError(t, err)

	v := domain.ModelInputVector{30, 10, 4, 8, 200, 25, 33, 70, 40, 1}
	for i := 0; i < 3; i++ {
		label, err := cached.Predict(context.Background(), v)
		require.NoError(t, err)
		assert.Equal(t, 1, label)
	}

	assert.Equal(t, 1, inner.calls)
	stats := cached.Stats()
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(2), stats.MemoryHits)
	assert.Equal(t, int64(1), stats.Predictions)
}

func TestCachedClassifier_SharedTier(t *testing.T) {
	shared := newMemoryPredictionCache()
	v := domain.ModelInputVector{42, 14, 4.8, 7, 250, 29, 34, 88, 40, 0}

	first, err := NewCachedClassifier(&fakeClassifier{label: 0}, shared, CachedClassifierConfig{}, testLogger())
	require.NoError(t, err)
	_, err = first.Predict(context.Background(), v)
	require.NoError(t, err)
	assert.Contains(t, shared.entries, VectorKey(v))

	// A second process with a cold memory tier reads the shared entry.
	inner := &fakeClassifier{label: 1}
	second, err := NewCachedClassifier(inner, shared, CachedClassifierConfig{}, testLogger())
	require.NoError(t, err)

	label, err := second.Predict(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, 0, label)
	assert.Equal(t, 0, inner.calls)
	assert.Equal(t, int64(1), second.Stats().SharedHits)
}

func TestCachedClassifier_SharedTierFailureFallsBack(t *testing.T) {
	shared := newMemoryPredictionCache()
	shared.getErr = errors.New("connection refused")
	inner := &fakeClassifier{label: 1}

	cached, err := NewCachedClassifier(inner, shared, CachedClassifierConfig{}, testLogger())
	require.NoError(t, err)

	label, err := cached.Predict(context.Background(), domain.ModelInputVector{})
	require.NoError(t, err)
	assert.Equal(t, 1, label)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedClassifier_ErrorsNotCached(t *testing.T) {
	inner := &fakeClassifier{err: domain.ErrClassifierUnavailable}
	cached, err := NewCachedClassifier(inner, nil, CachedClassifierConfig{}, testLogger())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := cached.Predict(context.Background(), domain.ModelInputVector{})
		assert.ErrorIs(t, err, domain.ErrClassifierUnavailable)
	}
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, int64(2), cached.Stats().ErrorCount)
}

func TestVectorKey(t *testing.T) {
	a := domain.ModelInputVector{1, 2, 3, 4, 5, 6, 7, 8, 9, 1}
	b := a
	b[9] = 0

	assert.Equal(t, VectorKey(a), VectorKey(a))
	assert.NotEqual(t, VectorKey(a), VectorKey(b))
	assert.Len(t, VectorKey(a), len("cbc:prediction:")+64)
}
