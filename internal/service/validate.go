package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// validateRequest checks request against its validate tags and reports the
// first failing field as an ErrValidation.
func validateRequest(request interface{}) error {
	err := validate.Struct(request)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return fmt.Errorf("in internal/service/validate.go/validateRequest(): error while `validate.Struct()` calling: %w", err)
	}

	return newError(ErrValidation, describeFieldError(fieldErrors[0]))
}

func describeFieldError(fieldError validator.FieldError) string {
	field := fieldError.Field()

	switch fieldError.Tag() {
	case "required":
		return field + " missing"
	case "min":
		if fieldError.Param() == "1" {
			return field + " missing"
		}
		return fmt.Sprintf("%s must be at least %s characters long", field, fieldError.Param())
	case "gte":
		return field + " must be a non-negative integer"
	}

	return field + " is invalid"
}
