// Package memory is a map-backed Repository for tests and single-node runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SAP-F-2025/certification-service/internal/models"
	"github.com/SAP-F-2025/certification-service/internal/repositories"
)

type Repository struct {
	sessions     *SessionStore
	attempts     *AttemptStore
	certificates *CertificateStore
}

func NewRepository() *Repository {
	return &Repository{
		sessions:     NewSessionStore(),
		attempts:     NewAttemptStore(),
		certificates: NewCertificateStore(),
	}
}

func (r *Repository) Session() repositories.SessionRepository         { return r.sessions }
func (r *Repository) Attempt() repositories.AttemptRepository         { return r.attempts }
func (r *Repository) Certificate() repositories.CertificateRepository { return r.certificates }

// ===== SESSIONS =====

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]models.ProctoringSession
	events   map[string][]models.ProctoringEvent
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]models.ProctoringSession),
		events:   make(map[string][]models.ProctoringEvent),
	}
}

func (s *SessionStore) Create(ctx context.Context, session *models.ProctoringSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return repositories.ErrDuplicate
	}
	now := time.Now()
	session.CreatedAt, session.UpdatedAt = now, now
	s.sessions[session.ID] = *session
	return nil
}

func (s *SessionStore) GetByID(ctx context.Context, id string) (*models.ProctoringSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &session, nil
}

func (s *SessionStore) Update(ctx context.Context, session *models.ProctoringSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return repositories.ErrNotFound
	}
	session.UpdatedAt = time.Now()
	s.sessions[session.ID] = *session
	return nil
}

func (s *SessionStore) ListExpiredActive(ctx context.Context, cutoff time.Time, limit int) ([]*models.ProctoringSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ProctoringSession
	for _, session := range s.sessions {
		if session.Status == models.SessionActive && !session.EndTime.After(cutoff) {
			sessionCopy := session
			out = append(out, &sessionCopy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SessionStore) AppendEvent(ctx context.Context, event *models.ProctoringEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[event.SessionID]; !ok {
		return repositories.ErrNotFound
	}
	event.CreatedAt = time.Now()
	s.events[event.SessionID] = append(s.events[event.SessionID], *event)
	return nil
}

func (s *SessionStore) ListEvents(ctx context.Context, sessionID string) ([]*models.ProctoringEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.events[sessionID]
	out := make([]*models.ProctoringEvent, len(stored))
	for i := range stored {
		eventCopy := stored[i]
		out[i] = &eventCopy
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// ===== ATTEMPTS =====

type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]models.ExamAttempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{attempts: make(map[string]models.ExamAttempt)}
}

func (a *AttemptStore) Create(ctx context.Context, attempt *models.ExamAttempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.attempts[attempt.ID]; exists {
		return repositories.ErrDuplicate
	}
	if attempt.SessionID != nil {
		for _, existing := range a.attempts {
			if existing.SessionID != nil && *existing.SessionID == *attempt.SessionID {
				return repositories.ErrDuplicate
			}
		}
	}
	now := time.Now()
	attempt.CreatedAt, attempt.UpdatedAt = now, now
	a.attempts[attempt.ID] = *attempt
	return nil
}

func (a *AttemptStore) GetByID(ctx context.Context, id string) (*models.ExamAttempt, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	attempt, ok := a.attempts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &attempt, nil
}

func (a *AttemptStore) GetBySessionID(ctx context.Context, sessionID string) (*models.ExamAttempt, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, attempt := range a.attempts {
		if attempt.SessionID != nil && *attempt.SessionID == sessionID {
			attemptCopy := attempt
			return &attemptCopy, nil
		}
	}
	return nil, repositories.ErrNotFound
}

// ===== CERTIFICATES =====

type CertificateStore struct {
	mu        sync.RWMutex
	byNumber  map[string]models.Certificate
	byAttempt map[string]string
}

func NewCertificateStore() *CertificateStore {
	return &CertificateStore{
		byNumber:  make(map[string]models.Certificate),
		byAttempt: make(map[string]string),
	}
}

func (c *CertificateStore) Create(ctx context.Context, cert *models.Certificate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byNumber[cert.CertificateNumber]; exists {
		return repositories.ErrDuplicate
	}
	if _, exists := c.byAttempt[cert.AttemptID]; exists {
		return repositories.ErrDuplicate
	}
	cert.CreatedAt = time.Now()
	c.byNumber[cert.CertificateNumber] = *cert
	c.byAttempt[cert.AttemptID] = cert.CertificateNumber
	return nil
}

func (c *CertificateStore) GetByNumber(ctx context.Context, number string) (*models.Certificate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cert, ok := c.byNumber[number]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &cert, nil
}

func (c *CertificateStore) GetByAttemptID(ctx context.Context, attemptID string) (*models.Certificate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	number, ok := c.byAttempt[attemptID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cert := c.byNumber[number]
	return &cert, nil
}
