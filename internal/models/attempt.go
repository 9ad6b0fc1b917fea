package models

import (
	"time"

	"gorm.io/datatypes"
)

type ProctoringStatus string

const (
	ProctoringStatusPassed  ProctoringStatus = "passed"
	ProctoringStatusFlagged ProctoringStatus = "flagged"
	ProctoringStatusFailed  ProctoringStatus = "failed"
)

type ExamAttempt struct {
	ID          string  `json:"id" gorm:"primaryKey;size:255"`
	CandidateID string  `json:"candidate_id" gorm:"not null;size:255;index"`
	ExamID      string  `json:"exam_id" gorm:"not null;size:255;index"`
	SessionID   *string `json:"session_id" gorm:"size:36;uniqueIndex"`

	CertificationTier CertificationTier `json:"certification_tier" gorm:"not null;size:20"`

	// Scoring
	Score   float64 `json:"score" gorm:"not null"`
	RawPass bool    `json:"raw_pass"`

	// Combined outcome
	FinalPass           bool                `json:"final_pass"`
	ProctoringStatus    ProctoringStatus    `json:"proctoring_status" gorm:"size:20"`
	CertificateValidity CertificateValidity `json:"certificate_validity" gorm:"size:20"`

	Answers     datatypes.JSON `json:"answers" gorm:"type:jsonb"`
	SubmittedAt time.Time      `json:"submitted_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ExamAttempt) TableName() string {
	return "exam_attempts"
}
