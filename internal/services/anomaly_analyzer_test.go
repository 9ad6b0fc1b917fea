package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SAP-F-2025/certification-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type failingClassifier struct{}

func (failingClassifier) Classify(context.Context, *AnalysisInput) (*AnalysisResult, error) {
	return nil, errors.New("rule table missing")
}

type panickingClassifier struct{}

func (panickingClassifier) Classify(context.Context, *AnalysisInput) (*AnalysisResult, error) {
	panic("nil pointer in provider adapter")
}

func analysisInput() *AnalysisInput {
	return &AnalysisInput{
		SessionID:         "s-1",
		Tier:              models.TierBasic,
		IntegrityScore:    90,
		FlaggedEventCount: 2,
		Events:            eventsWith(models.SeverityHigh, models.SeverityHigh),
	}
}

func TestAnomalyAnalyzer_UsesPrimaryVerdict(t *testing.T) {
	primary := &MockClassifier{}
	primary.On("Classify", mock.Anything, anyInput()).Return(&AnalysisResult{
		IntegrityScore:     60,
		SuspiciousPatterns: []string{"repeated tab switching"},
		Recommendation:     models.RecommendationFlag,
		Reasoning:          "pattern resembles reference lookup",
	}, nil).Once()

	analyzer := NewAnomalyAnalyzer(primary, NewFallbackClassifier(), time.Second, discardLogger())
	result, source := analyzer.Analyze(context.Background(), analysisInput())

	assert.Equal(t, models.AnalysisReasoning, source)
	assert.Equal(t, models.RecommendationFlag, result.Recommendation)
	assert.Equal(t, []string{"repeated tab switching"}, result.SuspiciousPatterns)
	primary.AssertExpectations(t)
}

func TestAnomalyAnalyzer_FallsBack(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *MockClassifier)
	}{
		{
			name: "provider error",
			setup: func(m *MockClassifier) {
				m.On("Classify", mock.Anything, anyInput()).Return(nil, errors.New("503 service unavailable"))
			},
		},
		{
			name: "nil result",
			setup: func(m *MockClassifier) {
				m.On("Classify", mock.Anything, anyInput()).Return(nil, nil)
			},
		},
		{
			name: "unknown recommendation",
			setup: func(m *MockClassifier) {
				m.On("Classify", mock.Anything, anyInput()).Return(&AnalysisResult{Recommendation: "maybe"}, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &MockClassifier{}
			tt.setup(primary)

			analyzer := NewAnomalyAnalyzer(primary, NewFallbackClassifier(), time.Second, discardLogger())
			result, source := analyzer.Analyze(context.Background(), analysisInput())

			assert.Equal(t, models.AnalysisFallback, source)
			assert.Equal(t, models.RecommendationPass, result.Recommendation)
			assert.Equal(t, 90, result.IntegrityScore)
		})
	}
}

func TestAnomalyAnalyzer_TimeoutFallsBackWithinBound(t *testing.T) {
	primary := &MockClassifier{}
	primary.On("Classify", mock.Anything, anyInput()).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	analyzer := NewAnomalyAnalyzer(primary, NewFallbackClassifier(), 50*time.Millisecond, discardLogger())

	start := time.Now()
	result, source := analyzer.Analyze(context.Background(), analysisInput())

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, models.AnalysisFallback, source)
	assert.Equal(t, models.RecommendationPass, result.Recommendation)
}

func TestAnomalyAnalyzer_RecoversPrimaryPanic(t *testing.T) {
	analyzer := NewAnomalyAnalyzer(panickingClassifier{}, NewFallbackClassifier(), time.Second, discardLogger())

	result, source := analyzer.Analyze(context.Background(), analysisInput())
	assert.Equal(t, models.AnalysisFallback, source)
	assert.Equal(t, models.RecommendationPass, result.Recommendation)
}

func TestAnomalyAnalyzer_NoPrimary(t *testing.T) {
	analyzer := NewAnomalyAnalyzer(nil, nil, 0, discardLogger())

	input := analysisInput()
	input.IntegrityScore = 55
	result, source := analyzer.Analyze(context.Background(), input)
	assert.Equal(t, models.AnalysisFallback, source)
	assert.Equal(t, models.RecommendationFlag, result.Recommendation)
}

func TestAnomalyAnalyzer_FallbackFailureFailsClosed(t *testing.T) {
	analyzer := NewAnomalyAnalyzer(nil, failingClassifier{}, time.Second, discardLogger())

	result, source := analyzer.Analyze(context.Background(), analysisInput())
	assert.Equal(t, models.AnalysisFallback, source)
	assert.Equal(t, models.RecommendationFail, result.Recommendation)
	assert.Equal(t, 90, result.IntegrityScore)
}
