// Package interfaces defines the storage capability contract and the error
// taxonomy shared by every backend, separating interface definitions from
// implementations.
//
// # Storage Contract
//
// The Storage interface is the uniform operation set for transferring files
// to and from heterogeneous backends: upload and download of single objects
// (by filename or stream), recursive directory transfer, deletion of single
// objects and prefixes, time-limited download URL generation, and credential
// redaction for display.
//
// # Error Types
//
// Resolution and configuration failures use sentinel errors suitable for
// errors.Is checks:
//
//   - ErrInvalidLocator: the locator string could not be parsed
//   - ErrUnknownScheme: no backend registered for the scheme
//   - ErrAuthentication: the backend rejected the credentials
//   - ErrNotFound: the remote object does not exist
//   - ErrMissingSigningKey: signed URL requested without a signing key
//   - ErrDownloadURLBaseUndefined: static URL requested without a base
//   - ErrUnsupportedOperation: the backend has no such capability
//
// Backend failures are wrapped in StorageError, whose DoNotRetry field is the
// marker inspected by the retry executor. The DoNotRetry function implements
// that inspection for both the structured field and the sentinels above.
package interfaces
