package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/certification-service/internal/cache"
	"github.com/SAP-F-2025/certification-service/internal/events"
	"github.com/SAP-F-2025/certification-service/internal/models"
	"github.com/SAP-F-2025/certification-service/internal/repositories"
	"github.com/SAP-F-2025/certification-service/internal/repositories/memory"
	"github.com/SAP-F-2025/certification-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/certification-service/internal/validator"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MockClassifier is a mock implementation of AnomalyClassifier
type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, input *AnalysisInput) (*AnalysisResult, error) {
	args := m.Called(ctx, input)
	result, _ := args.Get(0).(*AnalysisResult)
	return result, args.Error(1)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCache is an in-process CacheService.
type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
	hits int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (f *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.data[key] = raw
	f.mu.Unlock()
	return nil
}

func (f *fakeCache) Get(_ context.Context, key string, dest interface{}) error {
	f.mu.Lock()
	raw, ok := f.data[key]
	if ok {
		f.hits++
	}
	f.mu.Unlock()
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeCache) Hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

type fixture struct {
	clock     *testClock
	repo      repositories.Repository
	publisher *events.MockEventPublisher
	primary   *MockClassifier
	cache     *fakeCache
	sessions  *SessionManager
	issuer    *CertificateIssuer
	exams     *ExamService
}

// newFixture wires the services over the in-memory store. With withPrimary
// the analyzer consults a MockClassifier before the fallback rule.
func newFixture(t *testing.T, withPrimary bool) *fixture {
	t.Helper()
	return newFixtureOn(t, memory.NewRepository(), withPrimary)
}

// newGormRepository is the gorm store over a private in-memory SQLite database.
func newGormRepository(t *testing.T) *postgres.Repository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, postgres.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return postgres.NewRepository(db)
}

func newFixtureOn(t *testing.T, repo repositories.Repository, withPrimary bool) *fixture {
	t.Helper()

	f := &fixture{
		clock:     newTestClock(),
		repo:      repo,
		publisher: events.NewMockEventPublisher(discardLogger()),
		cache:     newFakeCache(),
	}

	var analyzer *AnomalyAnalyzer
	if withPrimary {
		f.primary = &MockClassifier{}
		analyzer = NewAnomalyAnalyzer(f.primary, NewFallbackClassifier(), time.Second, discardLogger())
	} else {
		analyzer = NewAnomalyAnalyzer(nil, NewFallbackClassifier(), time.Second, discardLogger())
	}

	v := validator.New()
	clock := WithClock(f.clock.Now)
	f.sessions = NewSessionManager(f.repo.Session(), analyzer, f.publisher, v, discardLogger(), DefaultSessionPolicy(), clock)
	f.issuer = NewCertificateIssuer(f.repo.Certificate(), f.cache, f.publisher, discardLogger(), clock)
	f.exams = NewExamService(f.repo.Attempt(), f.sessions, f.issuer, f.publisher, v, discardLogger(), clock)

	t.Cleanup(func() { _ = f.sessions.Close() })
	return f
}

func (f *fixture) startSession(t *testing.T, candidateID string, requireProctoring bool) *models.ProctoringSession {
	t.Helper()
	session, err := f.sessions.StartSession(context.Background(), &StartSessionRequest{
		ExamID:            "exam-safety-101",
		CandidateID:       candidateID,
		CertificationTier: models.TierAdvanced,
		DurationMinutes:   60,
		RequireProctoring: requireProctoring,
	})
	require.NoError(t, err)
	return session
}

func (f *fixture) record(t *testing.T, sessionID string, severity models.EventSeverity, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.sessions.RecordEvent(context.Background(), sessionID, &RecordEventRequest{
			Type:        models.EventFaceDetection,
			Severity:    severity,
			Description: "second face in frame",
		})
		require.NoError(t, err)
	}
}

func anyInput() interface{} {
	return mock.AnythingOfType("*services.AnalysisInput")
}
