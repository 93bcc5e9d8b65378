package services

import "errors"

type ErrorCode string

const (
	ErrorInvalid   ErrorCode = "invalid"
	ErrorNotFound  ErrorCode = "not_found"
	ErrorConflict  ErrorCode = "conflict"
	ErrorNoContact ErrorCode = "no_contact"
	ErrorProvider  ErrorCode = "provider"
	ErrorInternal  ErrorCode = "internal"
)

// ServiceError carries a stable code alongside the user-facing message.
// Handlers map codes to HTTP statuses in one place; nothing string-matches
// database errors.
type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewNoContactError(msg string) error { return &ServiceError{Code: ErrorNoContact, Message: msg} }
func NewProviderError(msg string) error  { return &ServiceError{Code: ErrorProvider, Message: msg} }
func NewInternalError(msg string) error  { return &ServiceError{Code: ErrorInternal, Message: msg} }

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
