package handlers

import (
	"errors"
	"net/http"

	"github.com/SAP-F-2025/certification-service/internal/services"
	"github.com/SAP-F-2025/certification-service/internal/utils"
	"github.com/gin-gonic/gin"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides common logging functionality for all handlers
type BaseHandler struct {
	logger utils.Logger
}

// NewBaseHandler creates a new base handler with logging capability
func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{
		logger: logger,
	}
}

// LogRequest logs incoming HTTP requests with context information
func (h *BaseHandler) LogRequest(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := append(h.contextFields(c),
		"remote_addr", c.ClientIP(),
		"user_agent", c.Request.UserAgent(),
	)
	fields = append(fields, additionalFields...)
	h.loggerFor(c).Info(message, fields...)
}

// LogError logs error details with context information
func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	fields := append(h.contextFields(c), additionalFields...)
	h.loggerFor(c).LogError(err, message, fields...)
}

// LogDebug logs debug information with context
func (h *BaseHandler) LogDebug(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := append(h.contextFields(c), additionalFields...)
	h.loggerFor(c).Debug(message, fields...)
}

// LogWarn logs warning messages with context
func (h *BaseHandler) LogWarn(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := append(h.contextFields(c), additionalFields...)
	h.loggerFor(c).Warn(message, fields...)
}

// loggerFor prefers the request-scoped logger, which already carries the
// request id, method and path.
func (h *BaseHandler) loggerFor(c *gin.Context) utils.Logger {
	return utils.GetLoggerFromContext(c, h.logger)
}

func (h *BaseHandler) contextFields(c *gin.Context) []interface{} {
	return []interface{}{"user_id", c.GetString(userIDKey)}
}

// RespondWithError sends a consistent error response and logs it
func (h *BaseHandler) RespondWithError(c *gin.Context, statusCode int, message string, err error, details ...interface{}) {
	errorResp := ErrorResponse{
		Message: message,
	}

	if len(details) > 0 {
		errorResp.Details = details[0]
	}

	if err != nil && statusCode >= http.StatusInternalServerError {
		h.LogError(c, err, message, "status_code", statusCode)
	} else {
		h.LogWarn(c, message, "status_code", statusCode, "error", err)
	}

	c.JSON(statusCode, errorResp)
}

// handleServiceError maps service errors onto HTTP responses.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	// Handle custom error types first
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		h.RespondWithError(c, http.StatusBadRequest, "Validation failed", err, validationErrors)
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, services.ErrInvalidConfiguration) {
			status = http.StatusBadRequest
		}
		h.RespondWithError(c, status, businessRuleError.Message, err, map[string]interface{}{
			"rule":    businessRuleError.Rule,
			"context": businessRuleError.Context,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		h.RespondWithError(c, http.StatusForbidden, "Access denied", err, map[string]interface{}{
			"resource": permissionError.Resource,
			"action":   permissionError.Action,
			"reason":   permissionError.Reason,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrInvalidConfiguration):
		h.RespondWithError(c, http.StatusBadRequest, "Invalid session configuration", err)
	case errors.Is(err, services.ErrSessionNotFound):
		h.RespondWithError(c, http.StatusNotFound, "Proctoring session not found", err)
	case errors.Is(err, services.ErrAttemptNotFound):
		h.RespondWithError(c, http.StatusNotFound, "Attempt not found", err)
	case errors.Is(err, services.ErrSessionAlreadyCompleted):
		h.RespondWithError(c, http.StatusConflict, "Proctoring session already completed", err)
	case errors.Is(err, services.ErrSessionAlreadySubmitted):
		h.RespondWithError(c, http.StatusConflict, "Proctoring session already used by another attempt", err)
	case errors.Is(err, services.ErrServiceClosed):
		h.RespondWithError(c, http.StatusServiceUnavailable, "Service is shutting down", err)
	default:
		h.RespondWithError(c, http.StatusInternalServerError, "Internal server error", err)
	}
}
