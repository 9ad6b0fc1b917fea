package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/SAP-F-2025/certification-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReasoningClient struct {
	reply map[string]any
	err   error

	system, user, schemaName string
	schema                   map[string]any
}

func (f *fakeReasoningClient) GenerateJSON(_ context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.system, f.user, f.schemaName, f.schema = system, user, schemaName, schema
	return f.reply, f.err
}

func validVerdict() map[string]any {
	return map[string]any{
		"integrity_score":     float64(80),
		"suspicious_patterns": []any{"second voice near the end"},
		"recommendation":      "flag",
		"reasoning":           "audio events cluster in the final ten minutes",
	}
}

func TestReasoningClassifier_Classify(t *testing.T) {
	client := &fakeReasoningClient{reply: validVerdict()}
	classifier, err := NewReasoningClassifier(client, discardLogger())
	require.NoError(t, err)

	result, err := classifier.Classify(context.Background(), analysisInput())
	require.NoError(t, err)

	assert.Equal(t, models.RecommendationFlag, result.Recommendation)
	assert.Equal(t, 80, result.IntegrityScore)
	assert.Equal(t, []string{"second voice near the end"}, result.SuspiciousPatterns)
	assert.Equal(t, verdictSchemaName, client.schemaName)
	assert.Equal(t, "object", client.schema["type"])
	assert.Equal(t, reasoningInstructions, client.system)
}

func TestReasoningClassifier_RejectsOffSchemaReplies(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(v map[string]any)
	}{
		{"unknown recommendation", func(v map[string]any) { v["recommendation"] = "maybe" }},
		{"score out of range", func(v map[string]any) { v["integrity_score"] = float64(140) }},
		{"missing reasoning", func(v map[string]any) { delete(v, "reasoning") }},
		{"extra field", func(v map[string]any) { v["confidence"] = 0.9 }},
		{"patterns not strings", func(v map[string]any) { v["suspicious_patterns"] = []any{float64(1)} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := validVerdict()
			tt.mutate(reply)
			classifier, err := NewReasoningClassifier(&fakeReasoningClient{reply: reply}, discardLogger())
			require.NoError(t, err)

			result, err := classifier.Classify(context.Background(), analysisInput())
			assert.Error(t, err)
			assert.Nil(t, result)
			assert.Contains(t, err.Error(), "verdict schema")
		})
	}
}

func TestReasoningClassifier_PropagatesClientError(t *testing.T) {
	outage := errors.New("provider outage")
	classifier, err := NewReasoningClassifier(&fakeReasoningClient{err: outage}, discardLogger())
	require.NoError(t, err)

	_, err = classifier.Classify(context.Background(), analysisInput())
	assert.ErrorIs(t, err, outage)
}

func TestBuildAnalysisPrompt(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	input := &AnalysisInput{
		Tier:              models.TierExpert,
		IntegrityScore:    85,
		FlaggedEventCount: 3,
		Duration:          90 * time.Minute,
		Events: []*models.ProctoringEvent{
			{Timestamp: at, Type: models.EventScreenChange, Severity: models.SeverityHigh, Description: " left fullscreen "},
			{Timestamp: at, Type: models.EventEyeMovement, Severity: models.SeverityLow},
		},
	}

	prompt := buildAnalysisPrompt(input)
	assert.Contains(t, prompt, "Certification tier: expert")
	assert.Contains(t, prompt, "Scheduled duration: 1h30m0s")
	assert.Contains(t, prompt, "85/100 (3 penalized events)")
	assert.Contains(t, prompt, "low=1 medium=0 high=1 critical=0")
	assert.Contains(t, prompt, "2026-03-02T09:15:00Z | screen_change | high | left fullscreen\n")

	assert.Contains(t, buildAnalysisPrompt(&AnalysisInput{}), "No proctoring events were recorded.")
}

func TestBuildAnalysisPrompt_TruncatesLongLogs(t *testing.T) {
	log := make([]*models.ProctoringEvent, maxPromptEvents+25)
	for i := range log {
		log[i] = &models.ProctoringEvent{Type: models.EventEyeMovement, Severity: models.SeverityLow, Description: fmt.Sprintf("e%d", i)}
	}

	prompt := buildAnalysisPrompt(&AnalysisInput{Events: log})
	assert.Contains(t, prompt, "... 25 more events omitted")
	assert.Equal(t, maxPromptEvents, strings.Count(prompt, "| eye_movement |"))
}
