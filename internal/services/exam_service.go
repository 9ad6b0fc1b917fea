package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/certification-service/internal/events"
	"github.com/SAP-F-2025/certification-service/internal/models"
	"github.com/SAP-F-2025/certification-service/internal/repositories"
	"github.com/SAP-F-2025/certification-service/internal/validator"
	"gorm.io/datatypes"
)

const (
	messageCertified     = "Exam passed. Your certificate has been issued."
	messagePassedNoCert  = "Exam passed."
	messageFlagged       = "Your exam score passed, but the proctoring review flagged this attempt. No certificate was issued; please contact support to request a manual review."
	messageInvalidated   = "Your exam score passed, but the proctoring integrity review did not verify this attempt. No certificate was issued; please contact support."
	messageScoreTooLow   = "Exam score is below the passing threshold."
	messageIntegrityFail = "Exam failed the proctoring integrity review."
)

type SubmitExamRequest struct {
	AttemptID   string  `json:"attempt_id" validate:"required,max=255"`
	CandidateID string  `json:"-" validate:"required,max=255"`
	ExamID      string  `json:"exam_id" validate:"required,max=255"`
	SessionID   *string `json:"session_id,omitempty" validate:"omitempty,max=36"`
	// CertificationTier is used only when no session is linked.
	CertificationTier models.CertificationTier `json:"certification_tier,omitempty" validate:"omitempty,certification_tier"`
	Score             float64                  `json:"score" validate:"gte=0,lte=100"`
	Answers           json.RawMessage          `json:"answers,omitempty"`
}

type SubmissionResult struct {
	AttemptID           string                     `json:"attempt_id"`
	RawPass             bool                       `json:"raw_pass"`
	FinalPass           bool                       `json:"final_pass"`
	ProctoringStatus    models.ProctoringStatus    `json:"proctoring_status"`
	CertificateValidity models.CertificateValidity `json:"certificate_validity"`
	IntegrityScore      *int                       `json:"integrity_score,omitempty"`
	CertificateID       *string                    `json:"certificate_id,omitempty"`
	CertificateNumber   *string                    `json:"certificate_number,omitempty"`
	Message             string                     `json:"message"`
}

// ExamService turns a graded exam into a final, gated outcome.
type ExamService struct {
	attempts  repositories.AttemptRepository
	sessions  *SessionManager
	issuer    *CertificateIssuer
	publisher events.EventPublisher
	validator *validator.Validator
	logger    *ServiceLogger
	now       func() time.Time
}

func NewExamService(
	attempts repositories.AttemptRepository,
	sessions *SessionManager,
	issuer *CertificateIssuer,
	publisher events.EventPublisher,
	validate *validator.Validator,
	logger *slog.Logger,
	opts ...Option,
) *ExamService {
	o := buildOptions(opts)
	if validate == nil {
		validate = validator.New()
	}
	return &ExamService{
		attempts:  attempts,
		sessions:  sessions,
		issuer:    issuer,
		publisher: publisher,
		validator: validate,
		logger:    NewServiceLogger(logger, LogConfig{Service: "certification", Component: "exam_service"}),
		now:       o.now,
	}
}

// SubmitExam completes the linked session, gates the score on its verdict,
// stores the attempt and issues a certificate for an unambiguous pass.
// Resubmitting a stored attempt returns its stored outcome.
func (s *ExamService) SubmitExam(ctx context.Context, req *SubmitExamRequest) (result *SubmissionResult, err error) {
	op := s.logger.WithOperation(ctx, "submit_exam", req.CandidateID)
	defer func() { op.LogResult(req.AttemptID, "attempt", err) }()

	if verr := s.validator.Validate(req); verr != nil {
		return nil, verr
	}

	stored, err := s.attempts.GetByID(ctx, req.AttemptID)
	switch {
	case err == nil:
		return s.storedOutcome(ctx, stored, req.CandidateID)
	case !repositories.IsNotFoundError(err):
		return nil, err
	}

	tier := req.CertificationTier
	if tier == "" {
		tier = models.TierBasic
	}

	recommendation := models.RecommendationNone
	var integrity *int
	if req.SessionID != nil {
		session, err := s.sessions.AuthorizeCandidate(ctx, *req.SessionID, req.CandidateID, "submit")
		if err != nil {
			return nil, err
		}
		if session.ExamID != req.ExamID {
			return nil, NewBusinessRuleError("session_exam_mismatch",
				"session was opened for a different exam",
				map[string]interface{}{"session_exam_id": session.ExamID, "exam_id": req.ExamID})
		}
		if linked, err := s.attempts.GetBySessionID(ctx, session.ID); err == nil && linked.ID != req.AttemptID {
			return nil, ErrSessionAlreadySubmitted
		} else if err != nil && !repositories.IsNotFoundError(err) {
			return nil, err
		}

		verdict, err := s.sessions.CompleteSession(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		recommendation = verdict.Recommendation
		score := verdict.IntegrityScore
		integrity = &score
		tier = session.CertificationTier
	}

	decision := Decide(req.Score, recommendation)
	attempt := &models.ExamAttempt{
		ID:                  req.AttemptID,
		CandidateID:         req.CandidateID,
		ExamID:              req.ExamID,
		SessionID:           req.SessionID,
		CertificationTier:   tier,
		Score:               req.Score,
		RawPass:             decision.RawPass,
		FinalPass:           decision.FinalPass,
		ProctoringStatus:    decision.Status,
		CertificateValidity: decision.CertificateValidity,
		SubmittedAt:         s.now().UTC(),
	}
	if len(req.Answers) > 0 {
		attempt.Answers = datatypes.JSON(req.Answers)
	}

	if err := s.attempts.Create(ctx, attempt); err != nil {
		if !repositories.IsDuplicateError(err) {
			return nil, err
		}
		// A concurrent submission stored first.
		winner, gerr := s.attempts.GetByID(ctx, req.AttemptID)
		if gerr != nil {
			return nil, ErrSessionAlreadySubmitted
		}
		return s.storedOutcome(ctx, winner, req.CandidateID)
	}

	cert, err := s.issuer.IssueIfEligible(ctx, attempt)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewExamSubmittedEvent(attempt))
	message := outcomeMessage(decision, cert != nil)
	if decision.Status == models.ProctoringStatusFlagged {
		s.publish(ctx, events.NewExamFlaggedEvent(attempt, message))
		op.LogAudit(models.AuditCertificateWithheld, attempt.ID, "attempt", map[string]interface{}{
			"certificate_validity": attempt.CertificateValidity,
			"score":                attempt.Score,
		})
	}
	op.LogAudit(models.AuditExamSubmitted, attempt.ID, "attempt", map[string]interface{}{
		"final_pass":        attempt.FinalPass,
		"proctoring_status": attempt.ProctoringStatus,
	})

	return buildResult(attempt, integrity, cert, message), nil
}

func (s *ExamService) storedOutcome(ctx context.Context, attempt *models.ExamAttempt, candidateID string) (*SubmissionResult, error) {
	if attempt.CandidateID != candidateID {
		return nil, NewPermissionError(candidateID, attempt.ID, "attempt", "submit", "not owned by candidate")
	}

	// Idempotent; also finishes issuance if an earlier submission stopped short.
	cert, err := s.issuer.IssueIfEligible(ctx, attempt)
	if err != nil {
		return nil, err
	}

	var integrity *int
	if attempt.SessionID != nil {
		session, err := s.sessions.GetSession(ctx, *attempt.SessionID)
		if err != nil {
			return nil, err
		}
		score := session.IntegrityScore
		integrity = &score
	}

	decision := Decision{
		RawPass:             attempt.RawPass,
		FinalPass:           attempt.FinalPass,
		CertificateValidity: attempt.CertificateValidity,
		Status:              attempt.ProctoringStatus,
	}
	return buildResult(attempt, integrity, cert, outcomeMessage(decision, cert != nil)), nil
}

func (s *ExamService) publish(ctx context.Context, event *events.CertificationEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		s.logger.Logger().WarnContext(ctx, "Failed to publish submission event",
			"event_type", event.Type, "error", err)
	}
}

func buildResult(attempt *models.ExamAttempt, integrity *int, cert *models.Certificate, message string) *SubmissionResult {
	result := &SubmissionResult{
		AttemptID:           attempt.ID,
		RawPass:             attempt.RawPass,
		FinalPass:           attempt.FinalPass,
		ProctoringStatus:    attempt.ProctoringStatus,
		CertificateValidity: attempt.CertificateValidity,
		IntegrityScore:      integrity,
		Message:             message,
	}
	if cert != nil {
		id, number := cert.ID, cert.CertificateNumber
		result.CertificateID = &id
		result.CertificateNumber = &number
	}
	return result
}

func outcomeMessage(d Decision, certified bool) string {
	switch {
	case d.Status == models.ProctoringStatusPassed && certified:
		return messageCertified
	case d.Status == models.ProctoringStatusPassed:
		return messagePassedNoCert
	case d.Status == models.ProctoringStatusFlagged && d.CertificateValidity == models.ValidityInvalid:
		return messageInvalidated
	case d.Status == models.ProctoringStatusFlagged:
		return messageFlagged
	case !d.RawPass:
		return messageScoreTooLow
	default:
		return messageIntegrityFail
	}
}
