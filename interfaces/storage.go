package interfaces

import (
	"context"
	"io"
	"time"
)

// DefaultDownloadURLTTL is used by DownloadURL when the caller passes a
// non-positive duration.
const DefaultDownloadURLTTL = 60 * time.Second

// Storage is the capability contract implemented by every backend. An instance
// is bound to a single storage locator and lazily opens its underlying client
// on first use, caching it for the lifetime of the instance.
//
// Instances are not safe for concurrent use: the cached client handle is owned
// by one logical caller at a time. Callers may hold independent instances on
// independent goroutines.
//
// Operations block on network or file I/O and honor the passed context for
// cancellation where the underlying client supports it. Directory operations
// run sequentially in listing order; a mid-operation failure surfaces
// immediately and leaves already-processed entries in place.
type Storage interface {
	// LoadFromFilename uploads the local file at path to the locator's
	// location, streaming it in chunks rather than buffering the whole
	// object in memory.
	LoadFromFilename(ctx context.Context, path string) error

	// LoadFromFile uploads the contents of in. Backends whose client
	// supports chunked body uploads stream directly from the reader;
	// backends without that capability document that they buffer.
	LoadFromFile(ctx context.Context, in io.Reader) error

	// LoadFromDirectory recursively uploads every file under dir. Each
	// file's path relative to dir is joined onto the locator's path to form
	// the remote key; hierarchical backends create intermediate remote
	// directories as needed.
	LoadFromDirectory(ctx context.Context, dir string) error

	// SaveToFilename downloads the object to the local file at path,
	// creating missing parent directories. Returns ErrNotFound if the
	// remote object does not exist; no empty local file is left behind.
	SaveToFilename(ctx context.Context, path string) error

	// SaveToFile downloads the object into out, streaming in chunks.
	SaveToFile(ctx context.Context, out io.Writer) error

	// SaveToDirectory mirrors every remote entry under the locator's path
	// prefix into dir, paginating through the full remote listing and
	// creating local subdirectories as needed.
	SaveToDirectory(ctx context.Context, dir string) error

	// Delete removes the single object named by the locator. Whether
	// deleting an absent object succeeds silently or returns ErrNotFound
	// is backend-specific and documented on each implementation.
	Delete(ctx context.Context) error

	// DeleteDirectory removes every remote entry under the locator's path
	// prefix, batching through the backend's bulk-delete primitive when it
	// has one and issuing per-object deletes otherwise.
	DeleteDirectory(ctx context.Context) error

	// DownloadURL returns a URL granting access to the object for ttl
	// (DefaultDownloadURLTTL when ttl <= 0). signingKey overrides the
	// locator-configured key on backends that need a pre-shared key; both
	// arguments are ignored by backends that serve a static base URL.
	DownloadURL(ctx context.Context, ttl time.Duration, signingKey string) (string, error)

	// SanitizedURI renders the locator without credentials or options.
	SanitizedURI() string

	// Close releases the cached client, if one was opened.
	Close() error
}
