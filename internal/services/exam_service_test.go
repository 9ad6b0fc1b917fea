package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/SAP-F-2025/certification-service/internal/events"
	"github.com/SAP-F-2025/certification-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func submission(attemptID, candidateID string, sessionID *string, score float64) *SubmitExamRequest {
	return &SubmitExamRequest{
		AttemptID:   attemptID,
		CandidateID: candidateID,
		ExamID:      "exam-safety-101",
		SessionID:   sessionID,
		Score:       score,
		Answers:     json.RawMessage(`{"q1":"b","q2":"d"}`),
	}
}

func TestExamService_ProviderOutageStillCertifiesCleanPass(t *testing.T) {
	f := newFixture(t, true)
	session := f.startSession(t, "cand-1", true)
	f.record(t, session.ID, models.SeverityHigh, 2)

	f.primary.On("Classify", mock.Anything, anyInput()).Return(nil, errors.New("upstream 503")).Once()

	result, err := f.exams.SubmitExam(context.Background(), submission("att-1", "cand-1", &session.ID, 85))
	require.NoError(t, err)

	require.NotNil(t, result.IntegrityScore)
	assert.Equal(t, 90, *result.IntegrityScore)
	assert.True(t, result.RawPass)
	assert.True(t, result.FinalPass)
	assert.Equal(t, models.ValidityFull, result.CertificateValidity)
	assert.Equal(t, models.ProctoringStatusPassed, result.ProctoringStatus)
	require.NotNil(t, result.CertificateNumber)
	assert.Regexp(t, `^AISC-ADV-`, *result.CertificateNumber)
	assert.Equal(t, messageCertified, result.Message)

	verdict, err := f.sessions.CompleteSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisFallback, verdict.Source)
	f.primary.AssertExpectations(t)
}

func TestExamService_FailVerdictVoidsPassingScore(t *testing.T) {
	f := newFixture(t, true)
	session := f.startSession(t, "cand-1", true)
	f.record(t, session.ID, models.SeverityCritical, 1)

	f.primary.On("Classify", mock.Anything, anyInput()).Return(&AnalysisResult{
		IntegrityScore:     30,
		SuspiciousPatterns: []string{"second person answering"},
		Recommendation:     models.RecommendationFail,
		Reasoning:          "a different face answered the final section",
	}, nil).Once()

	result, err := f.exams.SubmitExam(context.Background(), submission("att-1", "cand-1", &session.ID, 92))
	require.NoError(t, err)

	assert.Equal(t, 95, *result.IntegrityScore)
	assert.True(t, result.RawPass)
	assert.False(t, result.FinalPass)
	assert.Equal(t, models.ValidityInvalid, result.CertificateValidity)
	assert.Equal(t, models.ProctoringStatusFlagged, result.ProctoringStatus)
	assert.Nil(t, result.CertificateNumber)
	assert.Equal(t, messageInvalidated, result.Message)
	assert.NotContains(t, result.Message, "different face")

	cert, err := f.issuer.ForAttempt(context.Background(), "att-1")
	require.NoError(t, err)
	assert.Nil(t, cert)

	flagged := f.publisher.EventsOfType(events.EventExamFlagged)
	assert.Len(t, flagged, 1)
	assert.Len(t, f.publisher.EventsOfType(events.EventExamSubmitted), 1)
}

func TestExamService_FlaggedPassWithholdsCertificate(t *testing.T) {
	f := newFixture(t, true)
	session := f.startSession(t, "cand-1", true)

	f.primary.On("Classify", mock.Anything, anyInput()).Return(&AnalysisResult{
		IntegrityScore: 70, Recommendation: models.RecommendationFlag, SuspiciousPatterns: []string{},
	}, nil)

	result, err := f.exams.SubmitExam(context.Background(), submission("att-1", "cand-1", &session.ID, 80))
	require.NoError(t, err)

	assert.True(t, result.FinalPass)
	assert.Equal(t, models.ValidityFlagged, result.CertificateValidity)
	assert.Equal(t, models.ProctoringStatusFlagged, result.ProctoringStatus)
	assert.Nil(t, result.CertificateNumber)
	assert.Contains(t, result.Message, "contact support")
}

func TestExamService_UnproctoredSession(t *testing.T) {
	tests := []struct {
		score     float64
		finalPass bool
		certified bool
	}{
		{65, false, false},
		{75, true, true},
	}

	for _, tt := range tests {
		f := newFixture(t, true)
		session := f.startSession(t, "cand-1", false)

		result, err := f.exams.SubmitExam(context.Background(), submission("att-1", "cand-1", &session.ID, tt.score))
		require.NoError(t, err)

		assert.Equal(t, models.ValidityFull, result.CertificateValidity)
		assert.Equal(t, result.RawPass, result.FinalPass)
		assert.Equal(t, tt.finalPass, result.FinalPass)
		assert.Equal(t, tt.certified, result.CertificateNumber != nil)
		f.primary.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
	}
}

func TestExamService_UnproctoredSessionOnGormStore(t *testing.T) {
	f := newFixtureOn(t, newGormRepository(t), true)
	f.primary.On("Classify", mock.Anything, anyInput()).Return(&AnalysisResult{
		Recommendation: models.RecommendationFail,
		Reasoning:      "would void the attempt",
	}, nil).Maybe()

	session := f.startSession(t, "cand-1", false)
	assert.False(t, session.RequireProctoring)

	stored, err := f.repo.Session().GetByID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.False(t, stored.RequireProctoring)

	result, err := f.exams.SubmitExam(context.Background(), submission("att-1", "cand-1", &session.ID, 95))
	require.NoError(t, err)

	assert.Equal(t, models.ValidityFull, result.CertificateValidity)
	assert.True(t, result.FinalPass)
	assert.NotNil(t, result.CertificateNumber)
	f.primary.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
}

func TestExamService_NoSession(t *testing.T) {
	f := newFixture(t, false)

	req := submission("att-1", "cand-1", nil, 88)
	req.CertificationTier = models.TierExpert
	result, err := f.exams.SubmitExam(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.FinalPass)
	assert.Nil(t, result.IntegrityScore)
	require.NotNil(t, result.CertificateNumber)
	assert.Regexp(t, `^AISC-EXP-`, *result.CertificateNumber)

	result, err = f.exams.SubmitExam(context.Background(), submission("att-2", "cand-1", nil, 88))
	require.NoError(t, err)
	assert.Regexp(t, `^AISC-BAS-`, *result.CertificateNumber)
}

func TestExamService_ResubmissionReturnsStoredOutcome(t *testing.T) {
	f := newFixture(t, true)
	session := f.startSession(t, "cand-1", true)
	f.primary.On("Classify", mock.Anything, anyInput()).Return(&AnalysisResult{
		IntegrityScore: 100, Recommendation: models.RecommendationPass, SuspiciousPatterns: []string{},
	}, nil).Once()

	first, err := f.exams.SubmitExam(context.Background(), submission("att-1", "cand-1", &session.ID, 90))
	require.NoError(t, err)

	// A different score on resubmission does not change the stored outcome.
	second, err := f.exams.SubmitExam(context.Background(), submission("att-1", "cand-1", &session.ID, 10))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	f.primary.AssertNumberOfCalls(t, "Classify", 1)
	assert.Len(t, f.publisher.EventsOfType(events.EventCertificateIssued), 1)
	assert.Len(t, f.publisher.EventsOfType(events.EventExamSubmitted), 1)
}

func TestExamService_ConcurrentSubmissions(t *testing.T) {
	f := newFixture(t, false)
	session := f.startSession(t, "cand-1", true)

	var wg sync.WaitGroup
	results := make([]*SubmissionResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.exams.SubmitExam(context.Background(), submission("att-1", "cand-1", &session.ID, 90))
			if assert.NoError(t, err) {
				results[i] = r
			}
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.NotNil(t, r)
		require.NotNil(t, r.CertificateNumber)
		assert.Equal(t, *results[0].CertificateNumber, *r.CertificateNumber)
	}
}

func TestExamService_Ownership(t *testing.T) {
	f := newFixture(t, false)
	session := f.startSession(t, "cand-1", true)
	ctx := context.Background()

	_, err := f.exams.SubmitExam(ctx, submission("att-1", "cand-2", &session.ID, 90))
	assert.ErrorIs(t, err, ErrSessionOwnership)

	_, err = f.exams.SubmitExam(ctx, submission("att-1", "cand-1", &session.ID, 90))
	require.NoError(t, err)

	_, err = f.exams.SubmitExam(ctx, submission("att-1", "cand-2", nil, 90))
	assert.True(t, IsUnauthorized(err))
}

func TestExamService_SessionRules(t *testing.T) {
	f := newFixture(t, false)
	session := f.startSession(t, "cand-1", true)
	ctx := context.Background()

	mismatch := submission("att-1", "cand-1", &session.ID, 90)
	mismatch.ExamID = "exam-other"
	_, err := f.exams.SubmitExam(ctx, mismatch)
	assert.True(t, IsBusinessRule(err))

	_, err = f.exams.SubmitExam(ctx, submission("att-1", "cand-1", &session.ID, 90))
	require.NoError(t, err)

	_, err = f.exams.SubmitExam(ctx, submission("att-2", "cand-1", &session.ID, 90))
	assert.ErrorIs(t, err, ErrSessionAlreadySubmitted)
	assert.True(t, IsConflict(err))

	missing := "no-such-session"
	_, err = f.exams.SubmitExam(ctx, submission("att-3", "cand-1", &missing, 90))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestExamService_Validation(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		name   string
		mutate func(r *SubmitExamRequest)
	}{
		{"score above range", func(r *SubmitExamRequest) { r.Score = 101 }},
		{"negative score", func(r *SubmitExamRequest) { r.Score = -1 }},
		{"missing attempt", func(r *SubmitExamRequest) { r.AttemptID = "" }},
		{"missing candidate", func(r *SubmitExamRequest) { r.CandidateID = "" }},
		{"unknown tier", func(r *SubmitExamRequest) { r.CertificationTier = "gold" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := submission("att-1", "cand-1", nil, 90)
			tt.mutate(req)
			_, err := f.exams.SubmitExam(context.Background(), req)
			assert.True(t, IsValidation(err), "got %v", err)
		})
	}
}
