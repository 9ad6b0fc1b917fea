package postgres

import (
	"context"

	"github.com/SAP-F-2025/certification-service/internal/models"
	"gorm.io/gorm"
)

type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) *AttemptPostgreSQL {
	return &AttemptPostgreSQL{db: db}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.ExamAttempt) error {
	return translateError(a.db.WithContext(ctx).Create(attempt).Error)
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, id string) (*models.ExamAttempt, error) {
	var attempt models.ExamAttempt
	if err := a.db.WithContext(ctx).Where("id = ?", id).First(&attempt).Error; err != nil {
		return nil, translateError(err)
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetBySessionID(ctx context.Context, sessionID string) (*models.ExamAttempt, error) {
	var attempt models.ExamAttempt
	if err := a.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&attempt).Error; err != nil {
		return nil, translateError(err)
	}
	return &attempt, nil
}
