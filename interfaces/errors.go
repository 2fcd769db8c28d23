package interfaces

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLocator is returned when a storage locator cannot be parsed
	// or is missing required components.
	ErrInvalidLocator = errors.New("invalid storage locator")

	// ErrUnknownScheme is returned when no backend is registered for a
	// locator's scheme.
	ErrUnknownScheme = errors.New("unknown storage scheme")

	// ErrAuthentication is returned when a backend rejects the locator's
	// credentials.
	ErrAuthentication = errors.New("authentication rejected")

	// ErrNotFound is returned when the remote object named by the locator
	// does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrMissingSigningKey is returned by DownloadURL when the backend
	// requires a pre-shared signing key and none is configured on the
	// locator nor passed by the caller.
	ErrMissingSigningKey = errors.New("signing key not configured")

	// ErrDownloadURLBaseUndefined is returned by DownloadURL on backends
	// that serve a static base URL when no download_url_base is configured.
	ErrDownloadURLBaseUndefined = errors.New("download URL base not configured")

	// ErrUnsupportedOperation is returned when a backend has no concept of
	// the requested capability.
	ErrUnsupportedOperation = errors.New("operation not supported by backend")
)

// neverRetryable lists sentinel failures that retrying can never fix:
// resolution and configuration errors, and rejected credentials.
var neverRetryable = []error{
	ErrInvalidLocator,
	ErrUnknownScheme,
	ErrAuthentication,
	ErrMissingSigningKey,
	ErrDownloadURLBaseUndefined,
	ErrUnsupportedOperation,
}

// StorageError wraps a backend failure with the backend name, the operation
// that failed, and the retry marker inspected by the retry executor.
type StorageError struct {
	Backend string
	Op      string

	// DoNotRetry marks failures that must surface immediately instead of
	// being retried, such as rejected credentials.
	DoNotRetry bool

	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// WrapError wraps err as a retryable backend failure.
func WrapError(backend, op string, err error) *StorageError {
	return &StorageError{Backend: backend, Op: op, Err: err}
}

// WrapPermanent wraps err as a failure the retry executor must not retry.
func WrapPermanent(backend, op string, err error) *StorageError {
	return &StorageError{Backend: backend, Op: op, DoNotRetry: true, Err: err}
}

// DoNotRetry reports whether err carries the do-not-retry marker, either as a
// flagged StorageError or as one of the never-retryable sentinels.
func DoNotRetry(err error) bool {
	var serr *StorageError
	if errors.As(err, &serr) && serr.DoNotRetry {
		return true
	}
	for _, sentinel := range neverRetryable {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
