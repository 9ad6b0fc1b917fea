package postgres

import (
	"errors"

	"github.com/SAP-F-2025/certification-service/internal/models"
	"github.com/SAP-F-2025/certification-service/internal/repositories"
	"gorm.io/gorm"
)

type Repository struct {
	session     *SessionPostgreSQL
	attempt     *AttemptPostgreSQL
	certificate *CertificatePostgreSQL
}

// NewRepository expects a *gorm.DB opened with TranslateError enabled so
// unique violations surface as gorm.ErrDuplicatedKey.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		session:     NewSessionPostgreSQL(db),
		attempt:     NewAttemptPostgreSQL(db),
		certificate: NewCertificatePostgreSQL(db),
	}
}

func (r *Repository) Session() repositories.SessionRepository {
	return r.session
}

func (r *Repository) Attempt() repositories.AttemptRepository {
	return r.attempt
}

func (r *Repository) Certificate() repositories.CertificateRepository {
	return r.certificate
}

// AutoMigrate creates or updates the certification tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ProctoringSession{},
		&models.ProctoringEvent{},
		&models.ExamAttempt{},
		&models.Certificate{},
	)
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repositories.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return repositories.ErrDuplicate
	default:
		return err
	}
}
