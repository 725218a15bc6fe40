package gateway

import (
	"errors"
	"fmt"

	"github.com/piyushrajyadav/drop-fade/internal/registry"
)

var (
	// ErrNotFound means the code is unknown, expired or deleted.
	ErrNotFound = registry.ErrNotFound
	// ErrAlreadyConsumed means the record exists but was already accessed.
	ErrAlreadyConsumed = registry.ErrAlreadyConsumed
	// ErrVerifyFailed means a freshly inserted record could not be read back.
	ErrVerifyFailed = errors.New("stored record could not be verified")
)

// ValidationError reports bad caller input. Message is safe to show to clients.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// BackendError wraps a failure of the blob backend.
type BackendError struct {
	Op      string
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
