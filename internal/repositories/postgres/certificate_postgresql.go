package postgres

import (
	"context"

	"github.com/SAP-F-2025/certification-service/internal/models"
	"gorm.io/gorm"
)

type CertificatePostgreSQL struct {
	db *gorm.DB
}

func NewCertificatePostgreSQL(db *gorm.DB) *CertificatePostgreSQL {
	return &CertificatePostgreSQL{db: db}
}

func (c *CertificatePostgreSQL) Create(ctx context.Context, cert *models.Certificate) error {
	return translateError(c.db.WithContext(ctx).Create(cert).Error)
}

func (c *CertificatePostgreSQL) GetByNumber(ctx context.Context, number string) (*models.Certificate, error) {
	var cert models.Certificate
	if err := c.db.WithContext(ctx).Where("certificate_number = ?", number).First(&cert).Error; err != nil {
		return nil, translateError(err)
	}
	return &cert, nil
}

func (c *CertificatePostgreSQL) GetByAttemptID(ctx context.Context, attemptID string) (*models.Certificate, error) {
	var cert models.Certificate
	if err := c.db.WithContext(ctx).Where("attempt_id = ?", attemptID).First(&cert).Error; err != nil {
		return nil, translateError(err)
	}
	return &cert, nil
}
