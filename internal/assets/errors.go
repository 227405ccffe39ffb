package assets

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors for HTTP mapping and propagation policy.
type Kind string

const (
	// KindValidation: pre-upload policy failure. Terminal, no store touched.
	KindValidation Kind = "validation"
	// KindNotFound: entity or object missing.
	KindNotFound Kind = "not_found"
	// KindAccessDenied: entitlement resolved to denied.
	KindAccessDenied Kind = "access_denied"
	// KindStorage: object store operation failed.
	KindStorage Kind = "storage"
	// KindMetadata: relational write failed.
	KindMetadata Kind = "metadata"
	// KindConsistency: stores disagree outside the upload race window.
	// Logged, never returned to callers as anything but a 404.
	KindConsistency Kind = "consistency"
)

// Error is the engine's structured error. Code is a machine-readable reason
// ("file_too_large", "upload_failed", ...); Details carries context appended
// during propagation, such as a failed compensating delete.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetail appends a context entry without replacing the original failure.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Wrap attaches an underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// NewError builds a structured engine error.
func NewError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// ValidationError builds a KindValidation error.
func ValidationError(code, message string) *Error {
	return NewError(KindValidation, code, message)
}

// NotFoundError builds a KindNotFound error.
func NotFoundError(code, message string) *Error {
	return NewError(KindNotFound, code, message)
}

// AccessDeniedError builds a KindAccessDenied error.
func AccessDeniedError(message string) *Error {
	return NewError(KindAccessDenied, "access_denied", message)
}

// StorageError builds a KindStorage error.
func StorageError(code, message string) *Error {
	return NewError(KindStorage, code, message)
}

// MetadataError builds a KindMetadata error.
func MetadataError(code, message string) *Error {
	return NewError(KindMetadata, code, message)
}

// KindOf returns the Kind of err if it is (or wraps) an engine *Error,
// or "" otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AsError returns the engine *Error wrapped in err, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
