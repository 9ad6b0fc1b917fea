package services

import "github.com/SAP-F-2025/certification-service/internal/models"

// Decision is the combined outcome of an exam score and a proctoring verdict.
type Decision struct {
	RawPass             bool                       `json:"raw_pass"`
	FinalPass           bool                       `json:"final_pass"`
	CertificateValidity models.CertificateValidity `json:"certificate_validity"`
	Status              models.ProctoringStatus    `json:"status"`
}

// CertificateEligible is true only for an unambiguous pass. A flagged attempt
// keeps FinalPass but waits for manual review instead of a certificate.
func (d Decision) CertificateEligible() bool {
	return d.FinalPass && d.CertificateValidity == models.ValidityFull
}

// ValidityFor maps an analyzer recommendation onto a certificate validity.
// No recommendation means the session was never proctored and is trusted.
func ValidityFor(rec models.Recommendation) models.CertificateValidity {
	switch rec {
	case models.RecommendationPass, models.RecommendationNone:
		return models.ValidityFull
	case models.RecommendationFlag:
		return models.ValidityFlagged
	default:
		return models.ValidityInvalid
	}
}

// Decide combines the raw exam score with the analyzer's recommendation.
//
// finalPass = rawPass AND validity != invalid. A raw pass is never reported
// as passed unless the validity is full; it is downgraded to flagged instead.
func Decide(examScore float64, rec models.Recommendation) Decision {
	validity := ValidityFor(rec)
	rawPass := examScore >= PassingExamScore

	d := Decision{
		RawPass:             rawPass,
		FinalPass:           rawPass && validity != models.ValidityInvalid,
		CertificateValidity: validity,
		Status:              models.ProctoringStatusFailed,
	}

	if rawPass {
		if validity == models.ValidityFull {
			d.Status = models.ProctoringStatusPassed
		} else {
			d.Status = models.ProctoringStatusFlagged
		}
	}
	return d
}
