package services

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/certification-service/internal/models"
)

// FallbackClassifier is the deterministic rule used whenever the reasoning
// backend cannot answer.
//
//	pass  score >= 70 and no critical events
//	flag  score in [40,70) or any high events
//	fail  otherwise
type FallbackClassifier struct{}

func NewFallbackClassifier() *FallbackClassifier {
	return &FallbackClassifier{}
}

func (FallbackClassifier) Classify(_ context.Context, input *AnalysisInput) (*AnalysisResult, error) {
	critical := countSeverity(input.Events, models.SeverityCritical)
	high := countSeverity(input.Events, models.SeverityHigh)
	score := input.IntegrityScore

	result := &AnalysisResult{
		IntegrityScore:     score,
		SuspiciousPatterns: fallbackPatterns(input.Events),
	}

	switch {
	case score >= IntegrityPassThreshold && critical == 0:
		result.Recommendation = models.RecommendationPass
	case (score >= IntegrityFlagThreshold && score < IntegrityPassThreshold) || high > 0:
		result.Recommendation = models.RecommendationFlag
	default:
		result.Recommendation = models.RecommendationFail
	}

	result.Reasoning = fmt.Sprintf("deterministic rule: integrity score %d, %d high and %d critical events",
		score, high, critical)
	return result, nil
}

// fallbackPatterns names each event kind that produced penalized events.
func fallbackPatterns(events []*models.ProctoringEvent) []string {
	counts := make(map[models.ProctoringEventType]int)
	var order []models.ProctoringEventType
	for _, e := range events {
		if !IsPenalized(e.Severity) {
			continue
		}
		if counts[e.Type] == 0 {
			order = append(order, e.Type)
		}
		counts[e.Type]++
	}

	patterns := make([]string, 0, len(order))
	for _, t := range order {
		patterns = append(patterns, fmt.Sprintf("%s x%d", t, counts[t]))
	}
	return patterns
}
