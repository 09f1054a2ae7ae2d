package store

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/chimera-protocol/chimera/apps/state/internal/errs"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks v against its struct tags and converts failures into an
// errs.ErrInvalid error naming each offending field.
func Validate(op string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errs.Invalid(op, err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errs.Invalid(op, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must be at least " + fe.Param() + " characters"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "email":
		return field + " must be a valid email address"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	default:
		return field + " failed " + fe.Tag() + " validation"
	}
}
