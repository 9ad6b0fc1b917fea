package models

import (
	"time"

	"gorm.io/datatypes"
)

type CertificationTier string

const (
	TierBasic    CertificationTier = "basic"
	TierAdvanced CertificationTier = "advanced"
	TierExpert   CertificationTier = "expert"
)

func (t CertificationTier) IsValid() bool {
	switch t {
	case TierBasic, TierAdvanced, TierExpert:
		return true
	}
	return false
}

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

type CompletionReason string

const (
	CompletionSubmitted CompletionReason = "submitted"
	CompletionExpired   CompletionReason = "expired"
)

type ProctoringEventType string

const (
	EventEyeMovement        ProctoringEventType = "eye_movement"
	EventFaceDetection      ProctoringEventType = "face_detection"
	EventScreenChange       ProctoringEventType = "screen_change"
	EventAudioDetection     ProctoringEventType = "audio_detection"
	EventSuspiciousBehavior ProctoringEventType = "suspicious_behavior"
)

func (t ProctoringEventType) IsValid() bool {
	switch t {
	case EventEyeMovement, EventFaceDetection, EventScreenChange, EventAudioDetection, EventSuspiciousBehavior:
		return true
	}
	return false
}

type EventSeverity string

const (
	SeverityLow      EventSeverity = "low"
	SeverityMedium   EventSeverity = "medium"
	SeverityHigh     EventSeverity = "high"
	SeverityCritical EventSeverity = "critical"
)

func (s EventSeverity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Recommendation is the anomaly analyzer's outcome. The empty value means
// no analysis applies (unproctored session).
type Recommendation string

const (
	RecommendationNone Recommendation = ""
	RecommendationPass Recommendation = "pass"
	RecommendationFlag Recommendation = "flag"
	RecommendationFail Recommendation = "fail"
)

func (r Recommendation) IsValid() bool {
	switch r {
	case RecommendationPass, RecommendationFlag, RecommendationFail:
		return true
	}
	return false
}

type CertificateValidity string

const (
	ValidityUnset   CertificateValidity = ""
	ValidityFull    CertificateValidity = "full"
	ValidityFlagged CertificateValidity = "flagged"
	ValidityInvalid CertificateValidity = "invalid"
)

type AnalysisSource string

const (
	AnalysisReasoning   AnalysisSource = "reasoning"
	AnalysisFallback    AnalysisSource = "fallback"
	AnalysisUnproctored AnalysisSource = "unproctored"
)

type ProctoringSession struct {
	ID                string            `json:"id" gorm:"primaryKey;size:36"`
	ExamID            string            `json:"exam_id" gorm:"not null;size:255;index"`
	CandidateID       string            `json:"candidate_id" gorm:"not null;size:255;index"`
	CertificationTier CertificationTier `json:"certification_tier" gorm:"not null;size:20"`

	// No gorm default: a default tag makes Create skip false and store the default.
	RequireProctoring bool `json:"require_proctoring" gorm:"not null"`
	RecordSession     bool `json:"record_session" gorm:"not null"`

	// Timing
	StartTime time.Time `json:"start_time" gorm:"not null"`
	EndTime   time.Time `json:"end_time" gorm:"not null;index"`

	// Lifecycle
	Status           SessionStatus     `json:"status" gorm:"not null;size:20;index"`
	CompletedAt      *time.Time        `json:"completed_at"`
	CompletionReason *CompletionReason `json:"completion_reason" gorm:"size:20"`

	// Integrity
	IntegrityScore      int                 `json:"integrity_score" gorm:"not null"`
	FlaggedEventCount   int                 `json:"flagged_event_count" gorm:"not null"`
	CertificateValidity CertificateValidity `json:"certificate_validity" gorm:"size:20"`

	// Final analysis
	Recommendation     Recommendation `json:"recommendation" gorm:"size:10"`
	AnalysisSource     AnalysisSource `json:"analysis_source" gorm:"size:20"`
	AnalysisReasoning  string         `json:"analysis_reasoning" gorm:"type:text"`
	SuspiciousPatterns datatypes.JSON `json:"suspicious_patterns" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ProctoringSession) TableName() string {
	return "proctoring_sessions"
}

func (s *ProctoringSession) IsCompleted() bool {
	return s.Status == SessionCompleted
}

// IsExpired reports whether the scheduled window has closed at now.
func (s *ProctoringSession) IsExpired(now time.Time) bool {
	return !now.Before(s.EndTime)
}

type ProctoringEvent struct {
	ID        string              `json:"id" gorm:"primaryKey;size:36"`
	SessionID string              `json:"session_id" gorm:"not null;size:36;index:idx_event_session_seq,priority:1"`
	Sequence  int                 `json:"sequence" gorm:"not null;index:idx_event_session_seq,priority:2"`
	Type      ProctoringEventType `json:"type" gorm:"not null;size:40;index"`
	Severity  EventSeverity       `json:"severity" gorm:"not null;size:20"`

	Description string         `json:"description" gorm:"type:text"`
	Metadata    datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	Timestamp   time.Time      `json:"timestamp" gorm:"column:occurred_at;not null"`

	CreatedAt time.Time `json:"created_at"`
}

func (ProctoringEvent) TableName() string {
	return "proctoring_events"
}
