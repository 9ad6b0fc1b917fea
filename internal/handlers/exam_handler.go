package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/SAP-F-2025/certification-service/internal/models"
	"github.com/SAP-F-2025/certification-service/internal/services"
	"github.com/SAP-F-2025/certification-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type SubmitExamBody struct {
	AttemptID         string                   `json:"attemptId"`
	ExamID            string                   `json:"examId"`
	SessionID         *string                  `json:"sessionId,omitempty"`
	CertificationTier models.CertificationTier `json:"certificationTier,omitempty"`
	Score             *float64                 `json:"score"`
	Answers           json.RawMessage          `json:"answers,omitempty"`
}

type SubmitExamResponse struct {
	AttemptID           string                     `json:"attemptId"`
	FinalPass           bool                       `json:"finalPass"`
	ProctoringStatus    models.ProctoringStatus    `json:"proctoringStatus"`
	CertificateValidity models.CertificateValidity `json:"certificateValidity"`
	IntegrityScore      *int                       `json:"integrityScore,omitempty"`
	CertificateID       *string                    `json:"certificateId,omitempty"`
	CertificateNumber   *string                    `json:"certificateNumber,omitempty"`
	Message             string                     `json:"message"`
}

type ExamHandler struct {
	BaseHandler
	exams *services.ExamService
}

func NewExamHandler(exams *services.ExamService, logger utils.Logger) *ExamHandler {
	return &ExamHandler{
		BaseHandler: NewBaseHandler(logger),
		exams:       exams,
	}
}

// SubmitExam finalizes a graded attempt
// @Router /exams/submit [post]
func (h *ExamHandler) SubmitExam(c *gin.Context) {
	var body SubmitExamBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
		return
	}
	if body.Score == nil {
		h.RespondWithError(c, http.StatusBadRequest, "score is required", nil)
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Submitting exam", "attempt_id", body.AttemptID, "exam_id", body.ExamID)

	result, err := h.exams.SubmitExam(requestContext(c), &services.SubmitExamRequest{
		AttemptID:         body.AttemptID,
		CandidateID:       userID,
		ExamID:            body.ExamID,
		SessionID:         body.SessionID,
		CertificationTier: body.CertificationTier,
		Score:             *body.Score,
		Answers:           body.Answers,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SubmitExamResponse{
		AttemptID:           result.AttemptID,
		FinalPass:           result.FinalPass,
		ProctoringStatus:    result.ProctoringStatus,
		CertificateValidity: result.CertificateValidity,
		IntegrityScore:      result.IntegrityScore,
		CertificateID:       result.CertificateID,
		CertificateNumber:   result.CertificateNumber,
		Message:             result.Message,
	})
}
