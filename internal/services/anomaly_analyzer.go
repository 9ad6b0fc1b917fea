package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/certification-service/internal/models"
)

// AnalysisInput is the snapshot a classifier judges.
type AnalysisInput struct {
	SessionID         string
	Tier              models.CertificationTier
	IntegrityScore    int
	FlaggedEventCount int
	Duration          time.Duration
	Events            []*models.ProctoringEvent
}

// AnalysisResult is the classifier verdict for a session.
type AnalysisResult struct {
	IntegrityScore     int                   `json:"integrity_score"`
	SuspiciousPatterns []string              `json:"suspicious_patterns"`
	Recommendation     models.Recommendation `json:"recommendation"`
	Reasoning          string                `json:"reasoning"`
}

// AnomalyClassifier judges a session's recorded behavior.
type AnomalyClassifier interface {
	Classify(ctx context.Context, input *AnalysisInput) (*AnalysisResult, error)
}

// AnomalyAnalyzer runs the primary classifier under a timeout and falls back
// to the deterministic classifier on any failure. It never returns an error.
type AnomalyAnalyzer struct {
	primary  AnomalyClassifier
	fallback AnomalyClassifier
	timeout  time.Duration
	logger   *ServiceLogger
}

// NewAnomalyAnalyzer composes the two classifiers. primary may be nil, in
// which case every analysis uses the fallback.
func NewAnomalyAnalyzer(primary, fallback AnomalyClassifier, timeout time.Duration, logger *slog.Logger) *AnomalyAnalyzer {
	if fallback == nil {
		fallback = NewFallbackClassifier()
	}
	if timeout <= 0 {
		timeout = DefaultAnalysisTimeout
	}
	return &AnomalyAnalyzer{
		primary:  primary,
		fallback: fallback,
		timeout:  timeout,
		logger:   NewServiceLogger(logger, LogConfig{Service: "certification", Component: "anomaly_analyzer"}),
	}
}

// Analyze returns the verdict and which classifier produced it.
func (a *AnomalyAnalyzer) Analyze(ctx context.Context, input *AnalysisInput) (*AnalysisResult, models.AnalysisSource) {
	if a.primary != nil {
		result, err := a.classifyPrimary(ctx, input)
		if err == nil {
			return result, models.AnalysisReasoning
		}
		a.logger.LogAuditEvent(ctx, models.AuditEvent{
			Type:         models.AuditAnalysisFallback,
			ResourceID:   input.SessionID,
			ResourceType: "session",
			Action:       "analyze",
			Metadata:     map[string]interface{}{"error": err.Error()},
		})
	}
	return a.Fallback(ctx, input), models.AnalysisFallback
}

// Fallback applies the deterministic classifier only.
func (a *AnomalyAnalyzer) Fallback(ctx context.Context, input *AnalysisInput) *AnalysisResult {
	result, err := a.fallback.Classify(ctx, input)
	if err != nil || result == nil || !result.Recommendation.IsValid() {
		// The deterministic rule itself is unavailable; fail closed.
		a.logger.Logger().ErrorContext(ctx, "Fallback classifier failed",
			"session_id", input.SessionID, "error", err)
		return &AnalysisResult{
			IntegrityScore: input.IntegrityScore,
			Recommendation: models.RecommendationFail,
			Reasoning:      "integrity analysis unavailable",
		}
	}
	return result
}

func (a *AnomalyAnalyzer) classifyPrimary(ctx context.Context, input *AnalysisInput) (result *AnalysisResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("%w: classifier panic: %v", ErrAnalysisUnavailable, r)
		}
	}()

	result, err = a.primary.Classify(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysisUnavailable, err)
	}
	if result == nil || !result.Recommendation.IsValid() {
		return nil, fmt.Errorf("%w: malformed classifier result", ErrAnalysisUnavailable)
	}
	return result, nil
}
