package providers

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
)

// ValidationError reports a missing or malformed authorization field.
func ValidationError(field string, message string) error {
	return goerrors.NewValidation("providers: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.IntegrationErrorBadInput)
}
