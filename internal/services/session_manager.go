package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SAP-F-2025/certification-service/internal/events"
	"github.com/SAP-F-2025/certification-service/internal/models"
	"github.com/SAP-F-2025/certification-service/internal/repositories"
	"github.com/SAP-F-2025/certification-service/internal/validator"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
)

// completedRetention is how long a completed session stays in the cache.
const completedRetention = 10 * time.Minute

type StartSessionRequest struct {
	ExamID            string                   `json:"exam_id" validate:"required,max=255"`
	CandidateID       string                   `json:"candidate_id" validate:"required,max=255"`
	CertificationTier models.CertificationTier `json:"certification_tier" validate:"required,certification_tier"`
	DurationMinutes   int                      `json:"duration_minutes"`
	RequireProctoring bool                     `json:"require_proctoring"`
	RecordSession     bool                     `json:"record_session"`
}

type RecordEventRequest struct {
	Type        models.ProctoringEventType `json:"event_type" validate:"required,proctoring_event_type"`
	Severity    models.EventSeverity       `json:"severity" validate:"required,event_severity"`
	Description string                     `json:"description" validate:"max=2000"`
	Metadata    map[string]interface{}     `json:"metadata,omitempty"`
	Timestamp   *time.Time                 `json:"timestamp,omitempty"`
	// CandidateID, when set, must own the session.
	CandidateID string `json:"-"`
}

// RecordedEvent is a stored event with the session score right after it.
type RecordedEvent struct {
	models.ProctoringEvent
	IntegrityScore    int `json:"integrity_score"`
	FlaggedEventCount int `json:"flagged_event_count"`
}

// SessionVerdict is the stored outcome of a completed session. Repeated
// completions return the same verdict.
type SessionVerdict struct {
	SessionID           string                     `json:"session_id"`
	RequireProctoring   bool                       `json:"require_proctoring"`
	IntegrityScore      int                        `json:"integrity_score"`
	FlaggedEventCount   int                        `json:"flagged_event_count"`
	Recommendation      models.Recommendation      `json:"recommendation"`
	CertificateValidity models.CertificateValidity `json:"certificate_validity"`
	SuspiciousPatterns  []string                   `json:"suspicious_patterns"`
	Reasoning           string                     `json:"reasoning"`
	Source              models.AnalysisSource      `json:"source"`
	Reason              models.CompletionReason    `json:"reason"`
	CompletedAt         time.Time                  `json:"completed_at"`
}

// SessionAnalysis is a verdict plus the penalized events behind it.
type SessionAnalysis struct {
	Verdict          *SessionVerdict
	SuspiciousEvents []*models.ProctoringEvent
}

type SessionPolicy struct {
	MinDurationMinutes int
	MaxDurationMinutes int
	// ExpiryBatchSize caps how many overdue sessions one sweep completes.
	ExpiryBatchSize int
}

func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{
		MinDurationMinutes: DefaultMinSessionMinutes,
		MaxDurationMinutes: DefaultMaxSessionMinutes,
		ExpiryBatchSize:    100,
	}
}

type sessionEntry struct {
	mu      sync.Mutex
	loaded  bool
	session *models.ProctoringSession
	nextSeq int
	// completing is set while the analysis of this session runs outside the lock.
	completing bool
}

// SessionManager is the only writer of proctoring session state. Each session
// is guarded by its own mutex; different sessions never contend.
type SessionManager struct {
	repo      repositories.SessionRepository
	analyzer  *AnomalyAnalyzer
	publisher events.EventPublisher
	validator *validator.Validator
	logger    *ServiceLogger
	policy    SessionPolicy
	now       func() time.Time

	entries     sync.Map // session id -> *sessionEntry
	completions singleflight.Group
	closed      atomic.Bool
}

func NewSessionManager(
	repo repositories.SessionRepository,
	analyzer *AnomalyAnalyzer,
	publisher events.EventPublisher,
	validate *validator.Validator,
	logger *slog.Logger,
	policy SessionPolicy,
	opts ...Option,
) *SessionManager {
	o := buildOptions(opts)
	if analyzer == nil {
		analyzer = NewAnomalyAnalyzer(nil, nil, 0, logger)
	}
	if validate == nil {
		validate = validator.New()
	}
	if policy.MinDurationMinutes <= 0 || policy.MaxDurationMinutes < policy.MinDurationMinutes {
		defaults := DefaultSessionPolicy()
		policy.MinDurationMinutes, policy.MaxDurationMinutes = defaults.MinDurationMinutes, defaults.MaxDurationMinutes
	}
	if policy.ExpiryBatchSize <= 0 {
		policy.ExpiryBatchSize = DefaultSessionPolicy().ExpiryBatchSize
	}

	return &SessionManager{
		repo:      repo,
		analyzer:  analyzer,
		publisher: publisher,
		validator: validate,
		logger:    NewServiceLogger(logger, LogConfig{Service: "certification", Component: "session_manager"}),
		policy:    policy,
		now:       o.now,
	}
}

// ===== LIFECYCLE =====

func (m *SessionManager) StartSession(ctx context.Context, req *StartSessionRequest) (session *models.ProctoringSession, err error) {
	op := m.logger.WithOperation(ctx, "start_session", req.CandidateID)
	defer func() { op.LogResult(sessionID(session), "session", err) }()

	if m.closed.Load() {
		return nil, ErrServiceClosed
	}
	if verr := m.validator.Validate(req); verr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, verr)
	}
	if req.DurationMinutes < m.policy.MinDurationMinutes || req.DurationMinutes > m.policy.MaxDurationMinutes {
		return nil, newConfigurationError("session_duration",
			fmt.Sprintf("duration must be between %d and %d minutes",
				m.policy.MinDurationMinutes, m.policy.MaxDurationMinutes),
			map[string]interface{}{"duration_minutes": req.DurationMinutes})
	}

	now := m.now().UTC()
	created := &models.ProctoringSession{
		ID:                uuid.NewString(),
		ExamID:            req.ExamID,
		CandidateID:       req.CandidateID,
		CertificationTier: req.CertificationTier,
		RequireProctoring: req.RequireProctoring,
		RecordSession:     req.RecordSession,
		StartTime:         now,
		EndTime:           now.Add(time.Duration(req.DurationMinutes) * time.Minute),
		Status:            models.SessionActive,
		IntegrityScore:    MaxIntegrityScore,
	}

	if err = m.repo.Create(ctx, created); err != nil {
		return nil, err
	}

	m.entries.Store(created.ID, &sessionEntry{loaded: true, session: cloneSession(created)})

	m.publish(ctx, events.NewSessionStartedEvent(created))
	op.LogAudit(models.AuditSessionStarted, created.ID, "session", map[string]interface{}{
		"exam_id":            created.ExamID,
		"tier":               created.CertificationTier,
		"require_proctoring": created.RequireProctoring,
		"end_time":           created.EndTime,
	})

	return cloneSession(created), nil
}

// RecordEvent appends one telemetry event and lowers the running integrity
// score in O(1). Events for a completed or expired session are rejected with
// ErrSessionAlreadyCompleted, which callers treat as a no-op. Ownership,
// the append and the score update all happen under one lock.
func (m *SessionManager) RecordEvent(ctx context.Context, sessionID string, req *RecordEventRequest) (*RecordedEvent, error) {
	if m.closed.Load() {
		return nil, ErrServiceClosed
	}
	if verr := m.validator.Validate(req); verr != nil {
		return nil, verr
	}

	e, err := m.lockEntry(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if req.CandidateID != "" && e.session.CandidateID != req.CandidateID {
		return nil, newOwnershipError(req.CandidateID, sessionID, "record_event")
	}

	now := m.now().UTC()
	if e.session.IsCompleted() || e.completing || e.session.IsExpired(now) {
		return nil, ErrSessionAlreadyCompleted
	}

	event := &models.ProctoringEvent{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Sequence:    e.nextSeq + 1,
		Type:        req.Type,
		Severity:    req.Severity,
		Description: req.Description,
		Timestamp:   now,
	}
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		event.Timestamp = req.Timestamp.UTC()
	}
	if req.Metadata != nil {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, ValidationErrors{*NewValidationError("metadata", "must be a JSON object", nil)}
		}
		event.Metadata = datatypes.JSON(raw)
	}

	if err := m.repo.AppendEvent(ctx, event); err != nil {
		return nil, err
	}
	e.nextSeq = event.Sequence

	if IsPenalized(event.Severity) {
		updated := *e.session
		updated.FlaggedEventCount++
		updated.IntegrityScore = ApplyEvent(updated.IntegrityScore, event.Severity)
		if err := m.repo.Update(ctx, &updated); err != nil {
			// The event is stored but the score is not; reload from the log next time.
			e.loaded = false
			return nil, err
		}
		e.session = &updated
	}

	m.logger.Logger().DebugContext(ctx, "Proctoring event recorded",
		"session_id", sessionID,
		"sequence", event.Sequence,
		"type", event.Type,
		"severity", event.Severity,
		"integrity_score", e.session.IntegrityScore,
		"metadata", SanitizeForLogging(req.Metadata))

	return &RecordedEvent{
		ProctoringEvent:   *event,
		IntegrityScore:    e.session.IntegrityScore,
		FlaggedEventCount: e.session.FlaggedEventCount,
	}, nil
}

// CompleteSession finalizes the session and runs the anomaly analysis exactly
// once. Concurrent and later calls get the stored verdict.
func (m *SessionManager) CompleteSession(ctx context.Context, sessionID string) (*SessionVerdict, error) {
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := m.completions.Do(sessionID, func() (interface{}, error) {
		return m.complete(flightCtx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*SessionVerdict).clone(), nil
}

// Analysis completes the session if needed and returns the verdict with the
// penalized events.
func (m *SessionManager) Analysis(ctx context.Context, sessionID string) (*SessionAnalysis, error) {
	verdict, err := m.CompleteSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	all, err := m.repo.ListEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	suspicious := make([]*models.ProctoringEvent, 0, verdict.FlaggedEventCount)
	for _, e := range all {
		if IsPenalized(e.Severity) {
			suspicious = append(suspicious, e)
		}
	}
	return &SessionAnalysis{Verdict: verdict, SuspiciousEvents: suspicious}, nil
}

func (m *SessionManager) GetSession(ctx context.Context, sessionID string) (*models.ProctoringSession, error) {
	e, err := m.lockEntry(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return cloneSession(e.session), nil
}

// AuthorizeCandidate returns the session if candidateID owns it.
func (m *SessionManager) AuthorizeCandidate(ctx context.Context, sessionID, candidateID, action string) (*models.ProctoringSession, error) {
	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.CandidateID != candidateID {
		return nil, newOwnershipError(candidateID, sessionID, action)
	}
	return session, nil
}

// ExpireOverdue completes every active session whose end time has passed.
// Expired sessions always get the deterministic fallback verdict.
func (m *SessionManager) ExpireOverdue(ctx context.Context) (int, error) {
	now := m.now().UTC()
	overdue, err := m.repo.ListExpiredActive(ctx, now, m.policy.ExpiryBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, s := range overdue {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		if _, err := m.CompleteSession(ctx, s.ID); err != nil {
			m.logger.Logger().WarnContext(ctx, "Failed to expire session", "session_id", s.ID, "error", err)
			continue
		}
		expired++
	}

	m.pruneCompleted(now)
	return expired, nil
}

// RunExpiry sweeps for overdue sessions every interval until ctx is done.
func (m *SessionManager) RunExpiry(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Logger().Info("Session expiry sweeper started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			m.logger.Logger().Info("Session expiry sweeper stopped")
			return nil
		case <-ticker.C:
			n, err := m.ExpireOverdue(ctx)
			if err != nil && ctx.Err() == nil {
				m.logger.Logger().Error("Session expiry sweep failed", "error", err)
			} else if n > 0 {
				m.logger.Logger().Info("Expired overdue sessions", "count", n)
			}
		}
	}
}

// Close stops the manager from accepting new sessions and telemetry and
// drops its cache. Stored state is untouched.
func (m *SessionManager) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.entries.Range(func(key, _ any) bool {
		m.entries.Delete(key)
		return true
	})
	return nil
}

// ===== INTERNALS =====

// lockEntry returns the cached entry for id, locked and loaded.
func (m *SessionManager) lockEntry(ctx context.Context, id string) (*sessionEntry, error) {
	v, _ := m.entries.LoadOrStore(id, &sessionEntry{})
	e := v.(*sessionEntry)
	e.mu.Lock()
	if e.loaded {
		return e, nil
	}

	session, err := m.repo.GetByID(ctx, id)
	if err != nil {
		e.mu.Unlock()
		if repositories.IsNotFoundError(err) {
			m.entries.CompareAndDelete(id, e)
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	log, err := m.repo.ListEvents(ctx, id)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}

	for _, ev := range log {
		if ev.Sequence > e.nextSeq {
			e.nextSeq = ev.Sequence
		}
	}
	// The event log is the source of truth for an active session's score.
	if !session.IsCompleted() {
		session.FlaggedEventCount = countPenalized(log)
		session.IntegrityScore = ScoreForPenalized(session.FlaggedEventCount)
	}

	e.session = session
	e.loaded = true
	return e, nil
}

func (m *SessionManager) complete(ctx context.Context, id string) (*SessionVerdict, error) {
	e, err := m.lockEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.session.IsCompleted() {
		verdict := verdictFrom(e.session)
		e.mu.Unlock()
		return verdict, nil
	}

	// Expiry is decided here, before any analysis starts.
	now := m.now().UTC()
	expired := e.session.IsExpired(now)
	log, err := m.repo.ListEvents(ctx, id)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	snapshot := cloneSession(e.session)
	e.completing = true
	e.mu.Unlock()

	result, source := m.judge(ctx, snapshot, log, expired)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.completing = false

	reason := models.CompletionSubmitted
	if expired {
		reason = models.CompletionExpired
	}
	patterns, _ := json.Marshal(nonNil(result.SuspiciousPatterns))

	completed := *e.session
	completed.Status = models.SessionCompleted
	completed.CompletedAt = &now
	completed.CompletionReason = &reason
	completed.Recommendation = result.Recommendation
	completed.CertificateValidity = ValidityFor(result.Recommendation)
	completed.AnalysisSource = source
	completed.AnalysisReasoning = result.Reasoning
	completed.SuspiciousPatterns = datatypes.JSON(patterns)

	if err := m.repo.Update(ctx, &completed); err != nil {
		return nil, err
	}
	e.session = &completed

	m.publish(ctx, events.NewSessionCompletedEvent(&completed))
	auditType := models.AuditSessionCompleted
	if expired {
		auditType = models.AuditSessionExpired
	}
	m.logger.LogAuditEvent(ctx, models.AuditEvent{
		Type:         auditType,
		ActorID:      completed.CandidateID,
		ResourceID:   completed.ID,
		ResourceType: "session",
		Action:       "complete_session",
		Timestamp:    now,
		Metadata: map[string]interface{}{
			"integrity_score":      completed.IntegrityScore,
			"recommendation":       completed.Recommendation,
			"certificate_validity": completed.CertificateValidity,
			"analysis_source":      completed.AnalysisSource,
		},
	})

	return verdictFrom(&completed), nil
}

func (m *SessionManager) judge(ctx context.Context, s *models.ProctoringSession, log []*models.ProctoringEvent, expired bool) (*AnalysisResult, models.AnalysisSource) {
	input := &AnalysisInput{
		SessionID:         s.ID,
		Tier:              s.CertificationTier,
		IntegrityScore:    s.IntegrityScore,
		FlaggedEventCount: s.FlaggedEventCount,
		Duration:          s.EndTime.Sub(s.StartTime),
		Events:            log,
	}

	switch {
	case expired:
		// Never auto-full; an expired session only gets what the rule grants.
		return m.analyzer.Fallback(ctx, input), models.AnalysisFallback
	case !s.RequireProctoring:
		return &AnalysisResult{
			IntegrityScore: s.IntegrityScore,
			Recommendation: models.RecommendationNone,
			Reasoning:      "session was not proctored",
		}, models.AnalysisUnproctored
	default:
		return m.analyzer.Analyze(ctx, input)
	}
}

func (m *SessionManager) pruneCompleted(now time.Time) {
	m.entries.Range(func(key, v any) bool {
		e := v.(*sessionEntry)
		if !e.mu.TryLock() {
			return true
		}
		if e.loaded && e.session.IsCompleted() && e.session.CompletedAt != nil &&
			now.Sub(*e.session.CompletedAt) > completedRetention {
			m.entries.CompareAndDelete(key, e)
		}
		e.mu.Unlock()
		return true
	})
}

func (m *SessionManager) publish(ctx context.Context, event *events.CertificationEvent) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.PublishEvent(ctx, event); err != nil {
		m.logger.Logger().WarnContext(ctx, "Failed to publish session event",
			"event_type", event.Type, "error", err)
	}
}

func verdictFrom(s *models.ProctoringSession) *SessionVerdict {
	v := &SessionVerdict{
		SessionID:           s.ID,
		RequireProctoring:   s.RequireProctoring,
		IntegrityScore:      s.IntegrityScore,
		FlaggedEventCount:   s.FlaggedEventCount,
		Recommendation:      s.Recommendation,
		CertificateValidity: s.CertificateValidity,
		Reasoning:           s.AnalysisReasoning,
		Source:              s.AnalysisSource,
	}
	if s.CompletionReason != nil {
		v.Reason = *s.CompletionReason
	}
	if s.CompletedAt != nil {
		v.CompletedAt = *s.CompletedAt
	}
	if len(s.SuspiciousPatterns) > 0 {
		_ = json.Unmarshal(s.SuspiciousPatterns, &v.SuspiciousPatterns)
	}
	v.SuspiciousPatterns = nonNil(v.SuspiciousPatterns)
	return v
}

func (v *SessionVerdict) clone() *SessionVerdict {
	c := *v
	c.SuspiciousPatterns = append([]string{}, v.SuspiciousPatterns...)
	return &c
}

func cloneSession(s *models.ProctoringSession) *models.ProctoringSession {
	c := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.CompletionReason != nil {
		r := *s.CompletionReason
		c.CompletionReason = &r
	}
	if s.SuspiciousPatterns != nil {
		c.SuspiciousPatterns = append(datatypes.JSON{}, s.SuspiciousPatterns...)
	}
	return &c
}

func sessionID(s *models.ProctoringSession) string {
	if s == nil {
		return ""
	}
	return s.ID
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
