package core

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"subhub/internal/types"
)

// Validator wraps go-playground/validator for request-body structs.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator with required-struct semantics enabled.
func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ValidateStruct validates dst against its `validate` tags. Violations are
// returned as a single AppError with a per-field detail map, so the client
// sees every failing field at once.
func (v *Validator) ValidateStruct(dst any) error {
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fieldName(fe)] = ruleMessage(fe)
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"invalid request parameters",
		err,
		map[string]any{"fields": fields},
	)
}

// fieldName prefers the json tag path over the Go field name.
func fieldName(fe validator.FieldError) string {
	// Namespace looks like "addOnRequest.UserID"; drop the struct prefix.
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed rule: " + fe.Tag()
	}
}
