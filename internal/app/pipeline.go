// Package app assembles the analysis pipeline from configuration. Every binary in cmd/ builds its
// service graph through here so the HTTP server, MCP server and CLI behave identically.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/cbc-analysis-server/internal/domain"
	"github.com/cbc-analysis-server/internal/model"
	"github.com/cbc-analysis-server/internal/service"
	"github.com/cbc-analysis-server/pkg/external"
)

// Pipeline is the wired analysis service plus the resources behind it.
type Pipeline struct {
	Analyzer   *service.AnalysisService
	Classifier *service.CachedClassifier

	remote *external.ScoringClient
	shared *external.CacheClient
	logger *logrus.Logger
}

// NewLogger builds the process logger from the logging section. Output goes to stderr so that
// stdio transports keep stdout to themselves.
func NewLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// Build wires extractor, encoder, classifier backend, caches, rule engine and reporter.
// An unreachable Redis degrades to the in-memory cache only.
func Build(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (*Pipeline, error) {
	if cfg.Classifier.AbnormalLabel == nil {
		return nil, errors.New("classifier.abnormal_label must be set explicitly to 0 or 1")
	}
	policy, err := service.NewVerdictPolicy(*cfg.Classifier.AbnormalLabel)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{logger: logger}

	backend, err := p.newBackend(cfg.Classifier)
	if err != nil {
		return nil, err
	}

	var scaler domain.Scaler
	if cfg.Classifier.ScalerPath != "" {
		standard, err := service.LoadStandardScaler(cfg.Classifier.ScalerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load scaler: %w", err)
		}
		scaler = standard
	}

	var shared domain.PredictionCache
	if cfg.Cache.RedisURL != "" {
		client, err := external.NewCacheClient(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			logger.WithError(err).Warn("Redis prediction cache unavailable, using memory cache only")
		} else {
			p.shared = client
			shared = client
		}
	}

	cached, err := service.NewCachedClassifier(backend, shared, service.CachedClassifierConfig{
		MemorySize: cfg.Cache.MemorySize,
		TTL:        cfg.Cache.TTL,
	}, logger)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to create prediction cache: %w", err)
	}
	p.Classifier = cached

	p.Analyzer = service.NewAnalysisService(
		service.NewExtractor(cfg.Extractor),
		service.NewFeatureEncoder(service.BinarySexEncoder{}, scaler),
		cached,
		policy,
		service.NewRuleEngine(),
		service.NewReporter(),
		logger,
	)

	logger.WithFields(logrus.Fields{
		"backend":      cfg.Classifier.Backend,
		"layout":       cfg.Extractor.Layout,
		"shared_cache": p.shared != nil,
		"scaled":       scaler != nil,
	}).Info("Analysis pipeline ready")

	return p, nil
}

func (p *Pipeline) newBackend(cfg domain.ClassifierConfig) (domain.Classifier, error) {
	switch cfg.Backend {
	case domain.ClassifierBackendLinear, "":
		m, err := model.Load(cfg.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load model: %w", err)
		}
		return m, nil
	case domain.ClassifierBackendRemote:
		if cfg.Remote.URL == "" {
			return nil, errors.New("classifier.remote.url is required for the remote backend")
		}
		p.remote = external.NewScoringClient(cfg.Remote, p.logger)
		return p.remote, nil
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", cfg.Backend)
	}
}

// HealthChecks returns named probes for the dependencies this pipeline actually uses.
func (p *Pipeline) HealthChecks() map[string]func(ctx context.Context) error {
	checks := make(map[string]func(ctx context.Context) error)
	if p.shared != nil {
		checks["redis"] = p.shared.Ping
	}
	if p.remote != nil {
		remote := p.remote
		checks["scoring"] = func(context.Context) error {
			if state := remote.State(); state == "open" {
				return fmt.Errorf("circuit %s", state)
			}
			return nil
		}
	}
	return checks
}

// Close releases the shared cache connection, if any.
func (p *Pipeline) Close() error {
	if p.shared != nil {
		return p.shared.Close()
	}
	return nil
}
