package transport

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.IntegrationErrorBadInput
	case goerrors.CategoryAuth:
		return core.IntegrationErrorAuthenticationFailed
	case goerrors.CategoryNotFound:
		return core.IntegrationErrorRecordNotFound
	case goerrors.CategoryAuthz, goerrors.CategoryRateLimit, goerrors.CategoryOperation, goerrors.CategoryExternal:
		return core.IntegrationErrorProviderOperationFailed
	default:
		return core.IntegrationErrorInternal
	}
}

// StatusCode reports the HTTP status carried by a transport error, or zero.
func StatusCode(err error) int {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Code
	}
	return 0
}

// IsUnauthorized reports whether err is a vendor 401.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}
