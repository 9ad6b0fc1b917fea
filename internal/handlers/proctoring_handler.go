package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/SAP-F-2025/certification-service/internal/models"
	"github.com/SAP-F-2025/certification-service/internal/services"
	"github.com/SAP-F-2025/certification-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type StartSessionBody struct {
	ExamID            string                   `json:"examId"`
	CertificationTier models.CertificationTier `json:"certificationTier"`
	RequireProctoring *bool                    `json:"requireProctoring"`
	RecordSession     bool                     `json:"recordSession"`
	DurationMinutes   int                      `json:"durationMinutes"`
}

type StartSessionResponse struct {
	SessionID string    `json:"sessionId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

type RecordEventBody struct {
	SessionID   string                     `json:"sessionId"`
	EventType   models.ProctoringEventType `json:"eventType"`
	Severity    models.EventSeverity       `json:"severity"`
	Description string                     `json:"description"`
	Metadata    map[string]interface{}     `json:"metadata,omitempty"`
	Timestamp   *time.Time                 `json:"timestamp,omitempty"`
}

type RecordEventResponse struct {
	OK             bool   `json:"ok"`
	Ignored        bool   `json:"ignored,omitempty"`
	EventID        string `json:"eventId,omitempty"`
	IntegrityScore *int   `json:"integrityScore,omitempty"`
}

type SuspiciousEvent struct {
	Type        models.ProctoringEventType `json:"type"`
	Severity    models.EventSeverity       `json:"severity"`
	Description string                     `json:"description"`
	Timestamp   time.Time                  `json:"timestamp"`
}

type AnalysisResponse struct {
	SessionID           string                     `json:"sessionId"`
	IntegrityScore      int                        `json:"integrityScore"`
	SuspiciousEvents    []SuspiciousEvent          `json:"suspiciousEvents"`
	SuspiciousPatterns  []string                   `json:"suspiciousPatterns"`
	Recommendation      models.Recommendation      `json:"recommendation"`
	CertificateValidity models.CertificateValidity `json:"certificateValidity"`
	AnalysisSource      models.AnalysisSource      `json:"analysisSource"`
	CompletionReason    models.CompletionReason    `json:"completionReason"`
}

type ProctoringHandler struct {
	BaseHandler
	sessions *services.SessionManager
}

func NewProctoringHandler(sessions *services.SessionManager, logger utils.Logger) *ProctoringHandler {
	return &ProctoringHandler{
		BaseHandler: NewBaseHandler(logger),
		sessions:    sessions,
	}
}

// StartSession opens a timed proctoring session for the calling candidate
// @Router /proctoring/sessions [post]
func (h *ProctoringHandler) StartSession(c *gin.Context) {
	var body StartSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	// Proctoring is on unless explicitly disabled.
	requireProctoring := true
	if body.RequireProctoring != nil {
		requireProctoring = *body.RequireProctoring
	}

	h.LogRequest(c, "Starting proctoring session", "exam_id", body.ExamID, "tier", body.CertificationTier)

	session, err := h.sessions.StartSession(requestContext(c), &services.StartSessionRequest{
		ExamID:            body.ExamID,
		CandidateID:       userID,
		CertificationTier: body.CertificationTier,
		DurationMinutes:   body.DurationMinutes,
		RequireProctoring: requireProctoring,
		RecordSession:     body.RecordSession,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, StartSessionResponse{
		SessionID: session.ID,
		StartTime: session.StartTime,
		EndTime:   session.EndTime,
	})
}

// RecordEvent ingests one telemetry event. Late telemetry is acknowledged
// and ignored.
// @Router /proctoring/events [post]
func (h *ProctoringHandler) RecordEvent(c *gin.Context) {
	var body RecordEventBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
		return
	}
	if body.SessionID == "" {
		h.RespondWithError(c, http.StatusBadRequest, "sessionId is required", nil)
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	event, err := h.sessions.RecordEvent(requestContext(c), body.SessionID, &services.RecordEventRequest{
		Type:        body.EventType,
		Severity:    body.Severity,
		Description: body.Description,
		Metadata:    body.Metadata,
		Timestamp:   body.Timestamp,
		CandidateID: userID,
	})
	if errors.Is(err, services.ErrSessionAlreadyCompleted) {
		h.LogDebug(c, "Ignoring late telemetry", "session_id", body.SessionID)
		c.JSON(http.StatusOK, RecordEventResponse{OK: false, Ignored: true})
		return
	}
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, RecordEventResponse{
		OK:             true,
		EventID:        event.ID,
		IntegrityScore: &event.IntegrityScore,
	})
}

// AnalyzeSession completes the session if needed and returns its verdict
// @Router /proctoring/sessions/{id}/analysis [get]
func (h *ProctoringHandler) AnalyzeSession(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "id")
	if sessionID == "" {
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx := requestContext(c)
	if _, err := h.sessions.AuthorizeCandidate(ctx, sessionID, userID, "analyze"); err != nil {
		h.handleServiceError(c, err)
		return
	}

	analysis, err := h.sessions.Analysis(ctx, sessionID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	suspicious := make([]SuspiciousEvent, 0, len(analysis.SuspiciousEvents))
	for _, e := range analysis.SuspiciousEvents {
		suspicious = append(suspicious, SuspiciousEvent{
			Type:        e.Type,
			Severity:    e.Severity,
			Description: e.Description,
			Timestamp:   e.Timestamp,
		})
	}

	v := analysis.Verdict
	c.JSON(http.StatusOK, AnalysisResponse{
		SessionID:           v.SessionID,
		IntegrityScore:      v.IntegrityScore,
		SuspiciousEvents:    suspicious,
		SuspiciousPatterns:  v.SuspiciousPatterns,
		Recommendation:      v.Recommendation,
		CertificateValidity: v.CertificateValidity,
		AnalysisSource:      v.Source,
		CompletionReason:    v.Reason,
	})
}
