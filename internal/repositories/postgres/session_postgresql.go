package postgres

import (
	"context"
	"time"

	"github.com/SAP-F-2025/certification-service/internal/models"
	"gorm.io/gorm"
)

type SessionPostgreSQL struct {
	db *gorm.DB
}

func NewSessionPostgreSQL(db *gorm.DB) *SessionPostgreSQL {
	return &SessionPostgreSQL{db: db}
}

func (s *SessionPostgreSQL) Create(ctx context.Context, session *models.ProctoringSession) error {
	return translateError(s.db.WithContext(ctx).Create(session).Error)
}

func (s *SessionPostgreSQL) GetByID(ctx context.Context, id string) (*models.ProctoringSession, error) {
	var session models.ProctoringSession
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		return nil, translateError(err)
	}
	return &session, nil
}

func (s *SessionPostgreSQL) Update(ctx context.Context, session *models.ProctoringSession) error {
	return translateError(s.db.WithContext(ctx).Save(session).Error)
}

func (s *SessionPostgreSQL) ListExpiredActive(ctx context.Context, cutoff time.Time, limit int) ([]*models.ProctoringSession, error) {
	var sessions []*models.ProctoringSession
	query := s.db.WithContext(ctx).
		Where("status = ? AND end_time <= ?", models.SessionActive, cutoff).
		Order("end_time ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&sessions).Error; err != nil {
		return nil, translateError(err)
	}
	return sessions, nil
}

func (s *SessionPostgreSQL) AppendEvent(ctx context.Context, event *models.ProctoringEvent) error {
	return translateError(s.db.WithContext(ctx).Create(event).Error)
}

func (s *SessionPostgreSQL) ListEvents(ctx context.Context, sessionID string) ([]*models.ProctoringEvent, error) {
	var events []*models.ProctoringEvent
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("occurred_at ASC, sequence ASC").
		Find(&events).Error; err != nil {
		return nil, translateError(err)
	}
	return events, nil
}
