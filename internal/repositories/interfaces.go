package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/SAP-F-2025/certification-service/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// IsNotFoundError checks whether err is a missing-record error from any backend
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks whether err is a unique-constraint violation
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// Repository bundles the record stores the certification core depends on.
type Repository interface {
	Session() SessionRepository
	Attempt() AttemptRepository
	Certificate() CertificateRepository
}

// SessionRepository persists proctoring sessions and their append-only event log.
type SessionRepository interface {
	Create(ctx context.Context, session *models.ProctoringSession) error
	GetByID(ctx context.Context, id string) (*models.ProctoringSession, error)
	Update(ctx context.Context, session *models.ProctoringSession) error

	// Active sessions whose scheduled end is at or before cutoff
	ListExpiredActive(ctx context.Context, cutoff time.Time, limit int) ([]*models.ProctoringSession, error)

	// Event store
	AppendEvent(ctx context.Context, event *models.ProctoringEvent) error
	ListEvents(ctx context.Context, sessionID string) ([]*models.ProctoringEvent, error)
}

// AttemptRepository persists exam attempts.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.ExamAttempt) error
	GetByID(ctx context.Context, id string) (*models.ExamAttempt, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.ExamAttempt, error)
}

// CertificateRepository persists issued certificates. Records are insert-only.
type CertificateRepository interface {
	Create(ctx context.Context, cert *models.Certificate) error
	GetByNumber(ctx context.Context, number string) (*models.Certificate, error)
	GetByAttemptID(ctx context.Context, attemptID string) (*models.Certificate, error)
}
