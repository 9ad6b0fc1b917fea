package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SAP-F-2025/certification-service/internal/events"
	"github.com/SAP-F-2025/certification-service/internal/repositories/memory"
	"github.com/SAP-F-2025/certification-service/internal/services"
	"github.com/SAP-F-2025/certification-service/internal/utils"
	"github.com/SAP-F-2025/certification-service/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewRepository()
	publisher := events.NewMockEventPublisher(slogger)
	v := validator.New()

	sessions := services.NewSessionManager(repo.Session(), nil, publisher, v, slogger, services.DefaultSessionPolicy())
	issuer := services.NewCertificateIssuer(repo.Certificate(), nil, publisher, slogger)
	exams := services.NewExamService(repo.Attempt(), sessions, issuer, publisher, v, slogger)
	t.Cleanup(func() { _ = sessions.Close() })

	manager := NewHandlerManager(services.NewServiceManager(sessions, exams, issuer), utils.NewSlogLogger(slogger))
	return manager.NewRouter()
}

func doJSON(t *testing.T, router *gin.Engine, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func startSession(t *testing.T, router *gin.Engine, userID string, body map[string]interface{}) string {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v1/proctoring/sessions", userID, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["sessionId"].(string)
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get(utils.RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set(utils.RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(utils.RequestIDHeader))
}

func TestProctoringRoutesRequireUser(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/proctoring/sessions", "", map[string]interface{}{
		"examId": "exam-1", "certificationTier": "basic", "durationMinutes": 60,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/exams/submit", "", map[string]interface{}{"attemptId": "a"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStartSession_InvalidConfiguration(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/proctoring/sessions", "cand-1", map[string]interface{}{
		"examId": "exam-1", "certificationTier": "basic", "durationMinutes": 500,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "session_duration", decode(t, w)["details"].(map[string]interface{})["rule"])

	w = doJSON(t, router, http.MethodPost, "/api/v1/proctoring/sessions", "cand-1", map[string]interface{}{
		"examId": "exam-1", "certificationTier": "diamond", "durationMinutes": 60,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/proctoring/sessions", bytes.NewBufferString("{"))
	req.Header.Set(UserIDHeader, "cand-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCertificationFlow(t *testing.T) {
	router := newTestRouter(t)
	sessionID := startSession(t, router, "cand-1", map[string]interface{}{
		"examId": "exam-1", "certificationTier": "advanced", "durationMinutes": 90,
	})

	w := doJSON(t, router, http.MethodPost, "/api/v1/proctoring/events", "cand-1", map[string]interface{}{
		"sessionId": sessionID, "eventType": "screen_change", "severity": "high", "description": "left fullscreen",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, float64(95), body["integrityScore"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/proctoring/sessions/"+sessionID+"/analysis", "cand-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	analysis := decode(t, w)
	assert.Equal(t, float64(95), analysis["integrityScore"])
	assert.Equal(t, "pass", analysis["recommendation"])
	assert.Equal(t, "full", analysis["certificateValidity"])
	assert.Equal(t, "fallback", analysis["analysisSource"])
	assert.Len(t, analysis["suspiciousEvents"], 1)
	assert.NotContains(t, analysis, "reasoning")

	// Telemetry after completion is acknowledged and dropped.
	w = doJSON(t, router, http.MethodPost, "/api/v1/proctoring/events", "cand-1", map[string]interface{}{
		"sessionId": sessionID, "eventType": "face_detection", "severity": "critical",
	})
	require.Equal(t, http.StatusOK, w.Code)
	late := decode(t, w)
	assert.Equal(t, false, late["ok"])
	assert.Equal(t, true, late["ignored"])

	w = doJSON(t, router, http.MethodPost, "/api/v1/exams/submit", "cand-1", map[string]interface{}{
		"attemptId": "att-1", "examId": "exam-1", "sessionId": sessionID, "score": 85,
		"answers": map[string]string{"q1": "c"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode(t, w)
	assert.Equal(t, true, result["finalPass"])
	assert.Equal(t, "passed", result["proctoringStatus"])
	assert.Equal(t, float64(95), result["integrityScore"])
	number, ok := result["certificateNumber"].(string)
	require.True(t, ok)
	assert.Regexp(t, `^AISC-ADV-`, number)

	w = doJSON(t, router, http.MethodGet, "/api/v1/certificates/verify/"+number, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	verification := decode(t, w)
	assert.Equal(t, true, verification["valid"])
	assert.Equal(t, "cand-1", verification["certificate"].(map[string]interface{})["holder_id"])

	// The session cannot back a second attempt.
	w = doJSON(t, router, http.MethodPost, "/api/v1/exams/submit", "cand-1", map[string]interface{}{
		"attemptId": "att-2", "examId": "exam-1", "sessionId": sessionID, "score": 99,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSessionOwnershipIsEnforced(t *testing.T) {
	router := newTestRouter(t)
	sessionID := startSession(t, router, "cand-1", map[string]interface{}{
		"examId": "exam-1", "certificationTier": "basic", "durationMinutes": 60,
	})

	w := doJSON(t, router, http.MethodGet, "/api/v1/proctoring/sessions/"+sessionID+"/analysis", "cand-2", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/proctoring/events", "cand-2", map[string]interface{}{
		"sessionId": sessionID, "eventType": "eye_movement", "severity": "low",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/exams/submit", "cand-2", map[string]interface{}{
		"attemptId": "att-1", "examId": "exam-1", "sessionId": sessionID, "score": 90,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/proctoring/sessions/"+sessionID+"/analysis", "cand-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// A completed session still refuses telemetry from someone else.
	w = doJSON(t, router, http.MethodPost, "/api/v1/proctoring/events", "cand-2", map[string]interface{}{
		"sessionId": sessionID, "eventType": "eye_movement", "severity": "low",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRecordEvent_Errors(t *testing.T) {
	router := newTestRouter(t)
	sessionID := startSession(t, router, "cand-1", map[string]interface{}{
		"examId": "exam-1", "certificationTier": "expert", "durationMinutes": 60,
	})

	w := doJSON(t, router, http.MethodPost, "/api/v1/proctoring/events", "cand-1", map[string]interface{}{
		"sessionId": "missing", "eventType": "eye_movement", "severity": "low",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/proctoring/events", "cand-1", map[string]interface{}{
		"eventType": "eye_movement", "severity": "low",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/proctoring/events", "cand-1", map[string]interface{}{
		"sessionId": sessionID, "eventType": "mind_reading", "severity": "low",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitExam_Validation(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/exams/submit", "cand-1", map[string]interface{}{
		"attemptId": "att-1", "examId": "exam-1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/exams/submit", "cand-1", map[string]interface{}{
		"attemptId": "att-1", "examId": "exam-1", "score": 150,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyCertificate_Unknown(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/certificates/verify/AISC-BAS-NOPE", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "Certificate not found", body["message"])
}

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", services.ValidationErrors{*services.NewValidationError("score", "is required", nil)}, http.StatusBadRequest},
		{"business rule", services.NewBusinessRuleError("session_exam_mismatch", "wrong exam", nil), http.StatusUnprocessableEntity},
		{"permission", services.NewPermissionError("u", "r", "attempt", "submit", "not owned"), http.StatusForbidden},
		{"not found", services.ErrSessionNotFound, http.StatusNotFound},
		{"completed", services.ErrSessionAlreadyCompleted, http.StatusConflict},
		{"submitted", services.ErrSessionAlreadySubmitted, http.StatusConflict},
		{"closed", services.ErrServiceClosed, http.StatusServiceUnavailable},
		{"unknown", errors.New("connection refused"), http.StatusInternalServerError},
	}

	h := NewBaseHandler(utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			h.handleServiceError(c, tt.err)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
