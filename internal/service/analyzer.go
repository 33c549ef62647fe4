package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cbc-analysis-server/internal/domain"
)

// Analysis is the full outcome of one request through the pipeline.
type Analysis struct {
	Record  domain.FeatureRecord    `json:"record"`
	Vector  domain.ModelInputVector `json:"vector"`
	Verdict domain.Verdict          `json:"verdict"`
	Result  domain.AnalysisResult   `json:"result"`
	Report  string                  `json:"report"`
}

// Prediction returns "Yes" for an abnormal verdict and "No" otherwise.
func (a *Analysis) Prediction() string {
	return a.Verdict.Prediction()
}

// AnalysisService orchestrates extraction, classification, rule evaluation and reporting.
type AnalysisService struct {
	extractor  *Extractor
	encoder    *FeatureEncoder
	classifier domain.Classifier
	policy     VerdictPolicy
	rules      *RuleEngine
	reporter   *Reporter
	logger     *logrus.Logger
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(
	extractor *Extractor,
	encoder *FeatureEncoder,
	classifier domain.Classifier,
	policy VerdictPolicy,
	rules *RuleEngine,
	reporter *Reporter,
	logger *logrus.Logger,
) *AnalysisService {
	return &AnalysisService{
		extractor:  extractor,
		encoder:    encoder,
		classifier: classifier,
		policy:     policy,
		rules:      rules,
		reporter:   reporter,
		logger:     logger,
	}
}

// Extract parses report text into a FeatureRecord without classifying it.
func (s *AnalysisService) Extract(ctx context.Context, text string, layout domain.Layout) (domain.FeatureRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.FeatureRecord{}, err
	}
	rec, err := s.extractor.ExtractText(text, layout)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"layout": s.layoutName(layout),
			"error":  err.Error(),
		}).Info("Feature extraction failed")
		return domain.FeatureRecord{}, fmt.Errorf("extracting features: %w", err)
	}
	return rec, nil
}

// AnalyzeText runs the full pipeline on report text.
func (s *AnalysisService) AnalyzeText(ctx context.Context, text string, layout domain.Layout) (*Analysis, error) {
	rec, err := s.Extract(ctx, text, layout)
	if err != nil {
		return nil, err
	}
	return s.analyze(ctx, rec, s.layoutName(layout))
}

// AnalyzeRecord runs classification and reporting on a manually entered record.
func (s *AnalysisService) AnalyzeRecord(ctx context.Context, rec domain.FeatureRecord) (*Analysis, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return s.analyze(ctx, rec, "manual")
}

// Rules lists the rule table.
func (s *AnalysisService) Rules() []RuleInfo {
	return s.rules.Rules()
}

// analyze classifies the record and gates rule evaluation on the verdict. A normal verdict
// renders an empty result, so the healthy template is produced whatever the raw values are.
func (s *AnalysisService) analyze(ctx context.Context, rec domain.FeatureRecord, source string) (*Analysis, error) {
	start := time.Now()

	vector := s.encoder.Encode(rec)
	label, err := s.classifier.Predict(ctx, vector)
	if err != nil {
		s.logger.WithError(err).WithField("source", source).Error("Classifier prediction failed")
		return nil, fmt.Errorf("%w: %w", domain.ErrClassifierUnavailable, err)
	}

	verdict, err := s.policy.Interpret(label)
	if err != nil {
		s.logger.WithError(err).WithField("source", source).Error("Classifier returned an unusable label")
		return nil, fmt.Errorf("%w: %w", domain.ErrClassifierUnavailable, err)
	}

	result := domain.NewAnalysisResult()
	if verdict.Abnormal {
		result = s.rules.Evaluate(rec)
	}
	report := s.reporter.Render(result, rec)

	s.logger.WithFields(logrus.Fields{
		"source":      source,
		"label":       verdict.Label,
		"abnormal":    verdict.Abnormal,
		"conditions":  len(result.Conditions),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Completed blood panel analysis")

	return &Analysis{
		Record:  rec,
		Vector:  vector,
		Verdict: verdict,
		Result:  result,
		Report:  report,
	}, nil
}

func (s *AnalysisService) layoutName(layout domain.Layout) string {
	if layout == "" {
		return s.extractor.DefaultLayout().String()
	}
	return layout.String()
}
