package services

import "time"

// Integrity and grading policy. Every threshold the scorer, classifiers,
// gate and issuer apply lives here.
const (
	// MaxIntegrityScore is the score of a session with no penalized events.
	MaxIntegrityScore = 100
	// IntegrityPenalty is subtracted for each event whose severity is not low.
	IntegrityPenalty = 5

	// IntegrityPassThreshold is the lowest integrity score the fallback rule passes.
	IntegrityPassThreshold = 70
	// IntegrityFlagThreshold is the lowest integrity score the fallback rule flags
	// rather than fails.
	IntegrityFlagThreshold = 40

	// PassingExamScore is the raw exam score needed for a raw pass.
	PassingExamScore = 70.0
	MaxExamScore     = 100.0

	DefaultMinSessionMinutes = 30
	DefaultMaxSessionMinutes = 180

	DefaultAnalysisTimeout = 5 * time.Second

	// CertificateValidityYears is the lifetime of an issued certificate.
	CertificateValidityYears = 3
)
