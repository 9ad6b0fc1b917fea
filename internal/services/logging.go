package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/SAP-F-2025/certification-service/internal/models"
)

// LogLevel represents different log levels for service operations
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// ServiceLogger provides structured logging for service layer operations
type ServiceLogger struct {
	logger *slog.Logger
	config LogConfig
}

type LogConfig struct {
	Service     string
	Component   string
	EnableDebug bool
}

func NewServiceLogger(logger *slog.Logger, config LogConfig) *ServiceLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceLogger{
		logger: logger.With("service", config.Service, "component", config.Component),
		config: config,
	}
}

// Logger exposes the underlying slog logger with the component attributes attached.
func (l *ServiceLogger) Logger() *slog.Logger {
	return l.logger
}

// ===== OPERATION LOGGING =====

func (l *ServiceLogger) LogOperation(ctx context.Context, operation string, userID string, resourceID string, resourceType string, duration time.Duration, err error) {
	logLevel := LogLevelInfo
	status := "success"

	if err != nil {
		logLevel = LogLevelError
		status = "error"

		// Adjust log level based on error type
		if IsValidation(err) || IsBusinessRule(err) {
			logLevel = LogLevelWarn
			status = "validation_error"
		} else if IsUnauthorized(err) {
			logLevel = LogLevelWarn
			status = "unauthorized"
		} else if IsNotFound(err) {
			logLevel = LogLevelInfo
			status = "not_found"
		} else if IsConflict(err) {
			logLevel = LogLevelInfo
			status = "conflict"
		}
	}

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.String("resource_id", resourceID),
		slog.String("resource_type", resourceType),
		slog.String("status", status),
		slog.Duration("duration", duration),
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))

		var validationErr ValidationErrors
		var businessErr *BusinessRuleError
		var permErr *PermissionError
		switch {
		case errors.As(err, &validationErr):
			attrs = append(attrs, slog.Int("validation_errors_count", len(validationErr)))
		case errors.As(err, &businessErr):
			attrs = append(attrs, slog.String("business_rule", businessErr.Rule))
		case errors.As(err, &permErr):
			attrs = append(attrs, slog.String("permission_action", permErr.Action))
		}
	}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}

	// Add caller information for unexpected errors
	if logLevel == LogLevelError {
		if pc, file, line, ok := runtime.Caller(2); ok {
			if fn := runtime.FuncForPC(pc); fn != nil {
				attrs = append(attrs,
					slog.String("caller_func", fn.Name()),
					slog.String("caller_file", file),
					slog.Int("caller_line", line),
				)
			}
		}
	}

	message := fmt.Sprintf("%s operation %s", operation, status)

	switch logLevel {
	case LogLevelDebug:
		if l.config.EnableDebug {
			l.logger.LogAttrs(ctx, slog.LevelDebug, message, attrs...)
		}
	case LogLevelInfo:
		l.logger.LogAttrs(ctx, slog.LevelInfo, message, attrs...)
	case LogLevelWarn:
		l.logger.LogAttrs(ctx, slog.LevelWarn, message, attrs...)
	case LogLevelError:
		l.logger.LogAttrs(ctx, slog.LevelError, message, attrs...)
	}
}

func (l *ServiceLogger) LogValidationError(ctx context.Context, operation string, userID string, validationErrors ValidationErrors) {
	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.Int("error_count", len(validationErrors)),
	}

	for i, err := range validationErrors {
		if i < 5 { // Limit to first 5 errors to avoid log spam
			attrs = append(attrs, slog.Group(fmt.Sprintf("error_%d", i+1),
				slog.String("field", err.Field),
				slog.String("message", err.Message),
				slog.Any("value", err.Value),
			))
		}
	}

	l.logger.LogAttrs(ctx, slog.LevelWarn, "Validation failed", attrs...)
}

func (l *ServiceLogger) LogBusinessRuleViolation(ctx context.Context, operation string, userID string, rule *BusinessRuleError) {
	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.String("rule", rule.Rule),
		slog.String("message", rule.Message),
	}

	for key, value := range rule.Context {
		attrs = append(attrs, slog.Any(fmt.Sprintf("context_%s", key), value))
	}

	l.logger.LogAttrs(ctx, slog.LevelWarn, "Business rule violation", attrs...)
}

func (l *ServiceLogger) LogPermissionDenied(ctx context.Context, operation string, permError *PermissionError) {
	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("user_id", permError.UserID),
		slog.String("resource_id", permError.ResourceID),
		slog.String("resource_type", permError.Resource),
		slog.String("action", permError.Action),
		slog.String("reason", permError.Reason),
	}

	l.logger.LogAttrs(ctx, slog.LevelWarn, "Permission denied", attrs...)
}

// ===== AUDIT LOGGING =====

func (l *ServiceLogger) LogAuditEvent(ctx context.Context, event models.AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []slog.Attr{
		slog.String("event_type", string(event.Type)),
		slog.String("actor_id", event.ActorID),
		slog.String("resource_id", event.ResourceID),
		slog.String("resource_type", event.ResourceType),
		slog.String("action", event.Action),
		slog.Time("timestamp", event.Timestamp),
	}

	for key, value := range event.Metadata {
		attrs = append(attrs, slog.Any(fmt.Sprintf("meta_%s", key), value))
	}

	l.logger.LogAttrs(ctx, slog.LevelInfo, fmt.Sprintf("Audit: %s %s", event.Action, event.ResourceType), attrs...)
}

// ===== MIDDLEWARE AND HELPERS =====

type contextKey string

// RequestIDKey carries the inbound X-Request-ID through service calls.
const RequestIDKey contextKey = "request_id"

// ContextualLogger wraps operations with automatic logging
type ContextualLogger struct {
	logger    *ServiceLogger
	operation string
	userID    string
	startTime time.Time
	ctx       context.Context
}

func (l *ServiceLogger) WithOperation(ctx context.Context, operation string, userID string) *ContextualLogger {
	return &ContextualLogger{
		logger:    l,
		operation: operation,
		userID:    userID,
		startTime: time.Now(),
		ctx:       ctx,
	}
}

func (cl *ContextualLogger) LogResult(resourceID string, resourceType string, err error) {
	duration := time.Since(cl.startTime)
	cl.logger.LogOperation(cl.ctx, cl.operation, cl.userID, resourceID, resourceType, duration, err)

	// Log specific error types with additional context
	if err != nil {
		var validationErrors ValidationErrors
		var businessErr *BusinessRuleError
		var permErr *PermissionError
		switch {
		case errors.As(err, &validationErrors):
			cl.logger.LogValidationError(cl.ctx, cl.operation, cl.userID, validationErrors)
		case errors.As(err, &businessErr):
			cl.logger.LogBusinessRuleViolation(cl.ctx, cl.operation, cl.userID, businessErr)
		case errors.As(err, &permErr):
			cl.logger.LogPermissionDenied(cl.ctx, cl.operation, permErr)
		}
	}
}

func (cl *ContextualLogger) LogAudit(eventType models.AuditEventType, resourceID string, resourceType string, metadata map[string]interface{}) {
	cl.logger.LogAuditEvent(cl.ctx, models.AuditEvent{
		Type:         eventType,
		ActorID:      cl.userID,
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Action:       cl.operation,
		Timestamp:    time.Now(),
		Metadata:     metadata,
	})
}

// SanitizeForLogging removes sensitive information from data before logging
func SanitizeForLogging(data interface{}) interface{} {
	if data == nil {
		return nil
	}

	switch v := data.(type) {
	case map[string]interface{}:
		return sanitizeMap(v)
	case []interface{}:
		return sanitizeSlice(v)
	default:
		return data
	}
}

func sanitizeMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	sensitiveKeys := []string{"password", "token", "key", "secret", "auth", "credential"}

	for k, v := range m {
		lowerK := strings.ToLower(k)
		sensitive := false

		for _, sensitiveKey := range sensitiveKeys {
			if strings.Contains(lowerK, sensitiveKey) {
				sensitive = true
				break
			}
		}

		if sensitive {
			result[k] = "[REDACTED]"
		} else {
			result[k] = SanitizeForLogging(v)
		}
	}

	return result
}

func sanitizeSlice(s []interface{}) []interface{} {
	result := make([]interface{}, len(s))
	for i, v := range s {
		result[i] = SanitizeForLogging(v)
	}
	return result
}
