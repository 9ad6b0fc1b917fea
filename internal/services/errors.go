package services

import (
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/certification-service/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")
	ErrServiceClosed    = errors.New("service is shut down")

	// Session errors
	ErrInvalidConfiguration    = errors.New("invalid session configuration")
	ErrSessionNotFound         = errors.New("proctoring session not found")
	ErrSessionAlreadyCompleted = errors.New("proctoring session already completed")
	ErrSessionOwnership        = errors.New("proctoring session belongs to another candidate")
	ErrSessionAlreadySubmitted = errors.New("proctoring session already linked to another attempt")

	// Analysis errors. Never surfaced to callers; absorbed into the fallback verdict.
	ErrAnalysisUnavailable = errors.New("anomaly analysis unavailable")

	// Attempt and certificate errors
	ErrAttemptNotFound          = errors.New("attempt not found")
	ErrCertificateAlreadyIssued = errors.New("certificate already issued for attempt")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`

	err error
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

// Unwrap exposes the sentinel the rule was raised for, if any.
func (bre *BusinessRuleError) Unwrap() error {
	return bre.err
}

type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID string `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`

	err error
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %s - %s",
		pe.UserID, pe.Action, pe.Resource, pe.ResourceID, pe.Reason)
}

func (pe *PermissionError) Unwrap() error {
	if pe.err != nil {
		return pe.err
	}
	return ErrForbidden
}

// ===== ERROR HELPERS =====

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

// newConfigurationError is a BusinessRuleError matching ErrInvalidConfiguration.
func newConfigurationError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	bre := NewBusinessRuleError(rule, message, context)
	bre.err = ErrInvalidConfiguration
	return bre
}

func NewPermissionError(userID, resourceID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

func newOwnershipError(userID, sessionID, action string) *PermissionError {
	pe := NewPermissionError(userID, sessionID, "session", action, "not owned by candidate")
	pe.err = ErrSessionOwnership
	return pe
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrAttemptNotFound)
}

// IsUnauthorized checks if error represents a permission failure
func IsUnauthorized(err error) bool {
	var pe *PermissionError
	return errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrSessionOwnership) ||
		errors.As(err, &pe)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) || errors.Is(err, ErrInvalidConfiguration) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

// IsConflict checks if error represents a state conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrSessionAlreadyCompleted) ||
		errors.Is(err, ErrSessionAlreadySubmitted)
}
