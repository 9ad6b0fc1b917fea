package services

import "github.com/SAP-F-2025/certification-service/internal/models"

// IsPenalized reports whether an event of this severity lowers the integrity score.
func IsPenalized(severity models.EventSeverity) bool {
	return severity != models.SeverityLow
}

// ApplyEvent returns the integrity score after one more event of the given
// severity. It is the O(1) step RecordEvent uses.
func ApplyEvent(current int, severity models.EventSeverity) int {
	if !IsPenalized(severity) {
		return current
	}
	next := current - IntegrityPenalty
	if next < 0 {
		return 0
	}
	return next
}

// ScoreEvents recomputes the integrity score of a whole event log.
// The result does not depend on event order.
func ScoreEvents(events []*models.ProctoringEvent) int {
	return ScoreForPenalized(countPenalized(events))
}

// ScoreForPenalized is max(0, 100 - 5n).
func ScoreForPenalized(n int) int {
	score := MaxIntegrityScore - IntegrityPenalty*n
	if score < 0 {
		return 0
	}
	return score
}

func countPenalized(events []*models.ProctoringEvent) int {
	n := 0
	for _, e := range events {
		if IsPenalized(e.Severity) {
			n++
		}
	}
	return n
}

func countSeverity(events []*models.ProctoringEvent, severity models.EventSeverity) int {
	n := 0
	for _, e := range events {
		if e.Severity == severity {
			n++
		}
	}
	return n
}
