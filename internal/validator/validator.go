package validator

import (
	"reflect"
	"strings"

	"github.com/SAP-F-2025/certification-service/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator wraps the struct validator with the certification enum rules registered
type Validator struct {
	structValidator *validator.Validate
}

// New creates a new centralized validator instance
func New() *Validator {
	structValidator := validator.New()

	// Register all custom validators once
	registerCustomValidators(structValidator)

	return &Validator{
		structValidator: structValidator,
	}
}

// ValidateStruct validates struct tags only
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.structValidator.Struct(s)
}

// Validate validates s and converts field failures to ValidationErrors
func (v *Validator) Validate(s interface{}) error {
	if err := v.ValidateStruct(s); err != nil {
		if converted := ToValidationErrors(err); len(converted) > 0 {
			return converted
		}
		return err
	}
	return nil
}

// registerCustomValidators registers all custom validation functions
func registerCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("certification_tier", validateCertificationTier)
	validate.RegisterValidation("proctoring_event_type", validateEventType)
	validate.RegisterValidation("event_severity", validateEventSeverity)

	// Custom tag name function for better error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func validateCertificationTier(fl validator.FieldLevel) bool {
	return models.CertificationTier(fl.Field().String()).IsValid()
}

func validateEventType(fl validator.FieldLevel) bool {
	return models.ProctoringEventType(fl.Field().String()).IsValid()
}

func validateEventSeverity(fl validator.FieldLevel) bool {
	return models.EventSeverity(fl.Field().String()).IsValid()
}
