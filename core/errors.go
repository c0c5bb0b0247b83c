package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	IntegrationErrorBadInput                = "INTEGRATION_BAD_INPUT"
	IntegrationErrorModuleNotFound          = "INTEGRATION_MODULE_NOT_FOUND"
	IntegrationErrorRecordNotFound          = "INTEGRATION_RECORD_NOT_FOUND"
	IntegrationErrorAuthenticationFailed    = "INTEGRATION_AUTHENTICATION_FAILED"
	IntegrationErrorAmbiguousRecord         = "INTEGRATION_AMBIGUOUS_RECORD"
	IntegrationErrorProgrammerError         = "INTEGRATION_PROGRAMMER_ERROR"
	IntegrationErrorProviderOperationFailed = "INTEGRATION_PROVIDER_OPERATION_FAILED"
	IntegrationErrorInternal                = "INTEGRATION_INTERNAL_ERROR"
)

var (
	ErrModuleNotFound       = errors.New("core: module not registered")
	ErrRecordNotFound       = errors.New("core: record not found")
	ErrAuthenticationFailed = errors.New("Authentication failed")
	ErrAmbiguousRecord      = errors.New("core: ambiguous record")
	ErrProgrammerError      = errors.New("core: invalid manager state")
)

type RecordKind string

const (
	RecordKindCredential RecordKind = "credential"
	RecordKindEntity     RecordKind = "entity"
)

// AuthenticationError reports that freshly exchanged tokens failed the
// authentication test.
type AuthenticationError struct {
	Vendor string
	Cause  error
}

func (e *AuthenticationError) Error() string {
	return ErrAuthenticationFailed.Error()
}

func (e *AuthenticationError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return ErrAuthenticationFailed
	}
	return errors.Join(ErrAuthenticationFailed, e.Cause)
}

func (e *AuthenticationError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{}
	if e != nil && strings.TrimSpace(e.Vendor) != "" {
		metadata["vendor"] = e.Vendor
	}
	return goerrors.New(ErrAuthenticationFailed.Error(), goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(IntegrationErrorAuthenticationFailed).
		WithMetadata(metadata)
}

// AmbiguousRecordError is returned when a lookup that must match at most one
// record matches several.
type AmbiguousRecordError struct {
	Kind    RecordKind
	KeyName string
	Key     string
	Count   int
}

func (e *AmbiguousRecordError) Error() string {
	if e == nil {
		return ErrAmbiguousRecord.Error()
	}
	noun := "records"
	switch e.Kind {
	case RecordKindEntity:
		noun = "entities"
	case RecordKindCredential:
		noun = "credentials"
	}
	keyName := strings.TrimSpace(e.KeyName)
	if keyName == "" {
		keyName = "key"
	}
	return fmt.Sprintf("Multiple %s found with the same %s: %s", noun, keyName, e.Key)
}

func (e *AmbiguousRecordError) Unwrap() error {
	return ErrAmbiguousRecord
}

func (e *AmbiguousRecordError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{}
	if e != nil {
		metadata["record_kind"] = string(e.Kind)
		metadata["key"] = e.Key
		metadata["count"] = e.Count
	}
	return goerrors.New(e.Error(), goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(IntegrationErrorAmbiguousRecord).
		WithMetadata(metadata)
}

// ProgrammerError signals a Manager reached a state it must not self-heal
// from.
type ProgrammerError struct {
	Message string
}

func (e *ProgrammerError) Error() string {
	if e == nil || strings.TrimSpace(e.Message) == "" {
		return ErrProgrammerError.Error()
	}
	return e.Message
}

func (e *ProgrammerError) Unwrap() error {
	return ErrProgrammerError
}

func (e *ProgrammerError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(IntegrationErrorProgrammerError)
}

type serviceErrorConverter interface {
	ToServiceError() *goerrors.Error
}

func integrationErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureIntegrationErrorEnvelope(richErr)
	}
	var converter serviceErrorConverter
	if errors.As(err, &converter) {
		mapped := converter.ToServiceError()
		if mapped != nil {
			return ensureIntegrationErrorEnvelope(mapped)
		}
	}
	switch {
	case errors.Is(err, ErrModuleNotFound):
		return newIntegrationError(err.Error(), goerrors.CategoryNotFound, IntegrationErrorModuleNotFound)
	case errors.Is(err, ErrRecordNotFound):
		return newIntegrationError(err.Error(), goerrors.CategoryNotFound, IntegrationErrorRecordNotFound)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "module") && strings.Contains(msg, "not registered"):
		return newIntegrationError(err.Error(), goerrors.CategoryNotFound, IntegrationErrorModuleNotFound)
	case strings.Contains(msg, "not found"):
		return newIntegrationError(err.Error(), goerrors.CategoryNotFound, IntegrationErrorRecordNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "disabled"):
		return newIntegrationError(err.Error(), goerrors.CategoryBadInput, IntegrationErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureIntegrationErrorEnvelope(mapped)
}

func newIntegrationError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureIntegrationErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureIntegrationErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = integrationHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultIntegrationTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultIntegrationTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return IntegrationErrorBadInput
	case goerrors.CategoryNotFound:
		return IntegrationErrorRecordNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return IntegrationErrorAuthenticationFailed
	case goerrors.CategoryConflict:
		return IntegrationErrorAmbiguousRecord
	case goerrors.CategoryOperation, goerrors.CategoryExternal:
		return IntegrationErrorProviderOperationFailed
	default:
		return IntegrationErrorInternal
	}
}

func integrationHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func providerOperationError(err error, message string, metadata map[string]any) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(IntegrationErrorProviderOperationFailed).
		WithMetadata(copyAnyMap(metadata))
}

func validationError(field string, message string) error {
	return goerrors.NewValidation("core: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(IntegrationErrorBadInput)
}
