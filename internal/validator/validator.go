package validator

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator is the main validator instance that combines struct tags and business rules
type Validator struct {
	structValidator   *validator.Validate
	businessValidator *BusinessValidator
}

// New creates a new centralized validator instance
func New() *Validator {
	structValidator := validator.New()

	// Register all custom validators once
	registerCustomValidators(structValidator)

	return &Validator{
		structValidator:   structValidator,
		businessValidator: NewBusinessValidator(),
	}
}

// ValidateStruct validates struct tags only
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.structValidator.Struct(s)
}

// ValidateBusiness validates business rules only
func (v *Validator) ValidateBusiness(s interface{}) ValidationErrors {
	return v.businessValidator.Validate(s)
}

// Validate performs complete validation (struct + business rules)
func (v *Validator) Validate(s interface{}) error {
	if err := v.ValidateStruct(s); err != nil {
		if errs := fieldErrors(err); len(errs) > 0 {
			return errs
		}
		return err
	}

	if errs := v.ValidateBusiness(s); len(errs) > 0 {
		return errs
	}

	return nil
}

// Business returns the business validator
func (v *Validator) Business() *BusinessValidator {
	return v.businessValidator
}

// BusinessRuleChecker is implemented by requests carrying rules that struct tags cannot express.
type BusinessRuleChecker interface {
	BusinessRules() ValidationErrors
}

// BusinessValidator runs BusinessRuleChecker implementations.
type BusinessValidator struct{}

func NewBusinessValidator() *BusinessValidator {
	return &BusinessValidator{}
}

func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	if checker, ok := s.(BusinessRuleChecker); ok {
		return checker.BusinessRules()
	}
	return nil
}

// registerCustomValidators registers all custom validation functions
func registerCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("question_type", validateQuestionType)
	validate.RegisterValidation("violation_type", validateViolationType)
	validate.RegisterValidation("tag_name", validateTagName)

	// Custom tag name function for better error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func validateQuestionType(fl validator.FieldLevel) bool {
	return models.QuestionType(fl.Field().String()).IsValid()
}

// Violation types are open-ended; unknown ones classify as MEDIUM.
func validateViolationType(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" || len(value) > 50 {
		return false
	}
	for _, r := range value {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

func validateTagName(fl validator.FieldLevel) bool {
	value := strings.TrimSpace(fl.Field().String())
	return value != "" && len(value) <= 50 && !strings.Contains(value, ",")
}
