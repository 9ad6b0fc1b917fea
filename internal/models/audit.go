package models

import "time"

type AuditEventType string

const (
	AuditSessionStarted      AuditEventType = "session_started"
	AuditSessionCompleted    AuditEventType = "session_completed"
	AuditSessionExpired      AuditEventType = "session_expired"
	AuditAnalysisFallback    AuditEventType = "analysis_fallback"
	AuditExamSubmitted       AuditEventType = "exam_submitted"
	AuditCertificateIssued   AuditEventType = "certificate_issued"
	AuditCertificateWithheld AuditEventType = "certificate_withheld"
)

// AuditEvent is a state transition worth keeping in the audit trail.
type AuditEvent struct {
	Type         AuditEventType         `json:"type"`
	ActorID      string                 `json:"actor_id"`
	ResourceID   string                 `json:"resource_id"`
	ResourceType string                 `json:"resource_type"` // session, attempt, certificate
	Action       string                 `json:"action"`
	Timestamp    time.Time              `json:"timestamp"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}
