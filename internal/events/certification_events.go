package events

import (
	"time"

	"github.com/SAP-F-2025/certification-service/internal/models"
	"github.com/google/uuid"
)

// EventType represents different types of certification events
type EventType string

const (
	// Session events
	EventSessionStarted   EventType = "session.started"
	EventSessionCompleted EventType = "session.completed"

	// Submission events
	EventExamSubmitted EventType = "exam.submitted"
	EventExamFlagged   EventType = "exam.flagged"

	// Credential events
	EventCertificateIssued EventType = "certificate.issued"
)

const (
	eventSource  = "certification-service"
	eventVersion = "1.0"
)

// CertificationEvent is the envelope for all events published by the service
type CertificationEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Session event payloads

type SessionStartedEvent struct {
	SessionID         string                   `json:"session_id"`
	ExamID            string                   `json:"exam_id"`
	CandidateID       string                   `json:"candidate_id"`
	Tier              models.CertificationTier `json:"tier"`
	RequireProctoring bool                     `json:"require_proctoring"`
	StartTime         time.Time                `json:"start_time"`
	EndTime           time.Time                `json:"end_time"`
}

type SessionCompletedEvent struct {
	SessionID           string                     `json:"session_id"`
	CandidateID         string                     `json:"candidate_id"`
	IntegrityScore      int                        `json:"integrity_score"`
	Recommendation      models.Recommendation      `json:"recommendation"`
	CertificateValidity models.CertificateValidity `json:"certificate_validity"`
	AnalysisSource      models.AnalysisSource      `json:"analysis_source"`
	Reason              models.CompletionReason    `json:"reason"`
	CompletedAt         time.Time                  `json:"completed_at"`
}

// Submission event payloads

type ExamSubmittedEvent struct {
	AttemptID           string                     `json:"attempt_id"`
	ExamID              string                     `json:"exam_id"`
	CandidateID         string                     `json:"candidate_id"`
	SessionID           *string                    `json:"session_id,omitempty"`
	Score               float64                    `json:"score"`
	FinalPass           bool                       `json:"final_pass"`
	ProctoringStatus    models.ProctoringStatus    `json:"proctoring_status"`
	CertificateValidity models.CertificateValidity `json:"certificate_validity"`
	SubmittedAt         time.Time                  `json:"submitted_at"`
}

// ExamFlaggedEvent drives the "contact support" notification for candidates
// whose passing attempt was withheld by the integrity review.
type ExamFlaggedEvent struct {
	AttemptID           string                     `json:"attempt_id"`
	CandidateID         string                     `json:"candidate_id"`
	SessionID           *string                    `json:"session_id,omitempty"`
	CertificateValidity models.CertificateValidity `json:"certificate_validity"`
	Message             string                     `json:"message"`
}

type CertificateIssuedEvent struct {
	CertificateID     string                   `json:"certificate_id"`
	CertificateNumber string                   `json:"certificate_number"`
	HolderID          string                   `json:"holder_id"`
	AttemptID         string                   `json:"attempt_id"`
	Tier              models.CertificationTier `json:"tier"`
	IssuedAt          time.Time                `json:"issued_at"`
	ExpiresAt         time.Time                `json:"expires_at"`
}

// Event factory functions

func newEvent(eventType EventType, data interface{}) *CertificationEvent {
	return &CertificationEvent{
		ID:        GenerateEventID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
		Version:   eventVersion,
		Data:      data,
	}
}

func NewSessionStartedEvent(session *models.ProctoringSession) *CertificationEvent {
	return newEvent(EventSessionStarted, SessionStartedEvent{
		SessionID:         session.ID,
		ExamID:            session.ExamID,
		CandidateID:       session.CandidateID,
		Tier:              session.CertificationTier,
		RequireProctoring: session.RequireProctoring,
		StartTime:         session.StartTime,
		EndTime:           session.EndTime,
	})
}

func NewSessionCompletedEvent(session *models.ProctoringSession) *CertificationEvent {
	data := SessionCompletedEvent{
		SessionID:           session.ID,
		CandidateID:         session.CandidateID,
		IntegrityScore:      session.IntegrityScore,
		Recommendation:      session.Recommendation,
		CertificateValidity: session.CertificateValidity,
		AnalysisSource:      session.AnalysisSource,
	}
	if session.CompletionReason != nil {
		data.Reason = *session.CompletionReason
	}
	if session.CompletedAt != nil {
		data.CompletedAt = *session.CompletedAt
	}
	return newEvent(EventSessionCompleted, data)
}

func NewExamSubmittedEvent(attempt *models.ExamAttempt) *CertificationEvent {
	return newEvent(EventExamSubmitted, ExamSubmittedEvent{
		AttemptID:           attempt.ID,
		ExamID:              attempt.ExamID,
		CandidateID:         attempt.CandidateID,
		SessionID:           attempt.SessionID,
		Score:               attempt.Score,
		FinalPass:           attempt.FinalPass,
		ProctoringStatus:    attempt.ProctoringStatus,
		CertificateValidity: attempt.CertificateValidity,
		SubmittedAt:         attempt.SubmittedAt,
	})
}

func NewExamFlaggedEvent(attempt *models.ExamAttempt, message string) *CertificationEvent {
	return newEvent(EventExamFlagged, ExamFlaggedEvent{
		AttemptID:           attempt.ID,
		CandidateID:         attempt.CandidateID,
		SessionID:           attempt.SessionID,
		CertificateValidity: attempt.CertificateValidity,
		Message:             message,
	})
}

func NewCertificateIssuedEvent(cert *models.Certificate) *CertificationEvent {
	return newEvent(EventCertificateIssued, CertificateIssuedEvent{
		CertificateID:     cert.ID,
		CertificateNumber: cert.CertificateNumber,
		HolderID:          cert.HolderID,
		AttemptID:         cert.AttemptID,
		Tier:              cert.Tier,
		IssuedAt:          cert.IssuedAt,
		ExpiresAt:         cert.ExpiresAt,
	})
}

// GenerateEventID returns a unique event identifier
func GenerateEventID() string {
	return uuid.NewString()
}
