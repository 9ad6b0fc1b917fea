package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/SAP-F-2025/certification-service/internal/cache"
	"github.com/SAP-F-2025/certification-service/internal/events"
	"github.com/SAP-F-2025/certification-service/internal/models"
	"github.com/SAP-F-2025/certification-service/internal/repositories"
	"github.com/google/uuid"
)

const (
	certificateCacheTTL = time.Hour
	issuerLockStripes   = 64
)

var tierPrefixes = map[models.CertificationTier]string{
	models.TierBasic:    "AISC-BAS",
	models.TierAdvanced: "AISC-ADV",
	models.TierExpert:   "AISC-EXP",
}

// VerificationResult is the public answer to a certificate lookup.
type VerificationResult struct {
	Valid       bool                `json:"valid"`
	Certificate *models.Certificate `json:"certificate,omitempty"`
	Message     string              `json:"message"`
}

// CertificateIssuer issues at most one certificate per attempt and answers
// verification lookups.
type CertificateIssuer struct {
	repo      repositories.CertificateRepository
	cache     cache.CacheService
	publisher events.EventPublisher
	logger    *ServiceLogger
	now       func() time.Time

	// Per-attempt exclusivity without an ever-growing lock map.
	stripes [issuerLockStripes]sync.Mutex
}

// NewCertificateIssuer builds an issuer. cacheService may be nil.
func NewCertificateIssuer(
	repo repositories.CertificateRepository,
	cacheService cache.CacheService,
	publisher events.EventPublisher,
	logger *slog.Logger,
	opts ...Option,
) *CertificateIssuer {
	o := buildOptions(opts)
	return &CertificateIssuer{
		repo:      repo,
		cache:     cacheService,
		publisher: publisher,
		logger:    NewServiceLogger(logger, LogConfig{Service: "certification", Component: "certificate_issuer"}),
		now:       o.now,
	}
}

// IssueIfEligible returns nil when the attempt is not an unambiguous pass.
// Calling it again for a certified attempt returns the stored certificate.
func (i *CertificateIssuer) IssueIfEligible(ctx context.Context, attempt *models.ExamAttempt) (*models.Certificate, error) {
	if !attempt.FinalPass || attempt.CertificateValidity != models.ValidityFull {
		return nil, nil
	}

	lock := i.lockFor(attempt.ID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := i.repo.GetByAttemptID(ctx, attempt.ID)
	if err == nil {
		i.logger.Logger().DebugContext(ctx, "Attempt already certified",
			"attempt_id", attempt.ID,
			"certificate_number", existing.CertificateNumber,
			"error", ErrCertificateAlreadyIssued)
		return existing, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, err
	}

	issuedAt := i.now().UTC()
	cert := &models.Certificate{
		ID:                uuid.NewString(),
		CertificateNumber: NewCertificateNumber(attempt.CertificationTier),
		HolderID:          attempt.CandidateID,
		Tier:              attempt.CertificationTier,
		AttemptID:         attempt.ID,
		IssuedAt:          issuedAt,
		ExpiresAt:         issuedAt.AddDate(CertificateValidityYears, 0, 0),
	}

	if err := i.repo.Create(ctx, cert); err != nil {
		if repositories.IsDuplicateError(err) {
			// Another process won the race for this attempt.
			if stored, rerr := i.repo.GetByAttemptID(ctx, attempt.ID); rerr == nil {
				return stored, nil
			}
		}
		return nil, err
	}

	if i.publisher != nil {
		if err := i.publisher.PublishEvent(ctx, events.NewCertificateIssuedEvent(cert)); err != nil {
			i.logger.Logger().WarnContext(ctx, "Failed to publish certificate event",
				"certificate_id", cert.ID, "error", err)
		}
	}
	i.logger.LogAuditEvent(ctx, models.AuditEvent{
		Type:         models.AuditCertificateIssued,
		ActorID:      cert.HolderID,
		ResourceID:   cert.ID,
		ResourceType: "certificate",
		Action:       "issue_certificate",
		Timestamp:    issuedAt,
		Metadata: map[string]interface{}{
			"attempt_id":         cert.AttemptID,
			"certificate_number": cert.CertificateNumber,
			"tier":               cert.Tier,
			"expires_at":         cert.ExpiresAt,
		},
	})

	return cert, nil
}

// ForAttempt returns the certificate issued for an attempt, if any.
func (i *CertificateIssuer) ForAttempt(ctx context.Context, attemptID string) (*models.Certificate, error) {
	cert, err := i.repo.GetByAttemptID(ctx, attemptID)
	if repositories.IsNotFoundError(err) {
		return nil, nil
	}
	return cert, err
}

// Verify looks a certificate up by number. Expiry is judged now, never at issuance.
func (i *CertificateIssuer) Verify(ctx context.Context, number string) (*VerificationResult, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, ValidationErrors{*NewValidationError("certificate_number", "is required", number)}
	}

	cert, err := i.lookup(ctx, number)
	if repositories.IsNotFoundError(err) {
		return &VerificationResult{Valid: false, Message: "Certificate not found"}, nil
	}
	if err != nil {
		return nil, err
	}

	now := i.now().UTC()
	if cert.IsExpired(now) {
		return &VerificationResult{
			Valid:       false,
			Certificate: cert,
			Message:     fmt.Sprintf("Certificate expired on %s", cert.ExpiresAt.UTC().Format("2006-01-02")),
		}, nil
	}
	return &VerificationResult{
		Valid:       true,
		Certificate: cert,
		Message:     fmt.Sprintf("Certificate is valid until %s", cert.ExpiresAt.UTC().Format("2006-01-02")),
	}, nil
}

// NewCertificateNumber returns a tier prefix followed by 128 bits of uuid v4.
func NewCertificateNumber(tier models.CertificationTier) string {
	prefix, ok := tierPrefixes[tier]
	if !ok {
		prefix = "AISC"
	}
	id := uuid.New()
	return prefix + "-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
}

// lookup is cache-aside; certificates are immutable so entries never go stale.
func (i *CertificateIssuer) lookup(ctx context.Context, number string) (*models.Certificate, error) {
	key := "certificate:" + number
	if i.cache != nil {
		var cached models.Certificate
		if err := i.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	cert, err := i.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	if i.cache != nil {
		if err := i.cache.Set(ctx, key, cert, certificateCacheTTL); err != nil {
			i.logger.Logger().DebugContext(ctx, "Certificate cache fill failed", "error", err)
		}
	}
	return cert, nil
}

func (i *CertificateIssuer) lockFor(attemptID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(attemptID))
	return &i.stripes[h.Sum32()%issuerLockStripes]
}
