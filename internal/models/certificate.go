package models

import "time"

type Certificate struct {
	ID                string            `json:"id" gorm:"primaryKey;size:36"`
	CertificateNumber string            `json:"certificate_number" gorm:"uniqueIndex;not null;size:64"`
	HolderID          string            `json:"holder_id" gorm:"not null;size:255;index"`
	Tier              CertificationTier `json:"tier" gorm:"not null;size:20"`
	AttemptID         string            `json:"attempt_id" gorm:"uniqueIndex;not null;size:255"`

	IssuedAt  time.Time `json:"issued_at" gorm:"not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
}

func (Certificate) TableName() string {
	return "certificates"
}

// IsExpired is evaluated at verification time; the stored record never changes.
func (c *Certificate) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
