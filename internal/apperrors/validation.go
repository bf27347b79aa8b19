package apperrors

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// RuleInput marks violations raised by struct tag validation.
const RuleInput = "INPUT"

// ValidateStruct runs tag validation and converts failures into ValidationFailed,
// one violation per field.
func ValidateStruct(v *validator.Validate, s any) error {
	if v == nil {
		v = validator.New()
	}
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return Wrap(err, CodeValidationFailed, ErrValidationFailed.Status, "invalid input")
	}
	violations := make([]Violation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		violations = append(violations, Violation{
			Rule:     RuleInput,
			Field:    fe.Field(),
			Message:  msg,
			Severity: SeverityFail,
		})
	}
	return ValidationFailed(violations)
}
