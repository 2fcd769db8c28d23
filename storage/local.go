package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/stordock/stordock/interfaces"
)

func init() {
	Register("file", NewLocalStorage)
}

// LocalStorage stores objects on the local filesystem.
//
// Locator format:
//
//	file:///path/to/a/file.txt?download_url_base=<url-encoded-url>
//	file:///path/to/a/directory
//
// Delete and DeleteDirectory on an absent path return ErrNotFound. If a
// download_url_base option is set, DownloadURL joins it with the object's
// final path segment; the ttl and signing-key arguments are ignored.
type LocalStorage struct {
	loc *Locator
	log *slog.Logger
}

// NewLocalStorage creates a local filesystem backend bound to loc.
func NewLocalStorage(loc *Locator, log *slog.Logger) (interfaces.Storage, error) {
	if loc.Path == "" {
		return nil, fmt.Errorf("%w: file locator requires a path", interfaces.ErrInvalidLocator)
	}
	return &LocalStorage{loc: loc, log: log}, nil
}

func (s *LocalStorage) objectPath() string {
	return filepath.FromSlash(s.loc.Path)
}

// LoadFromFilename copies the local file at path to the locator's path,
// creating missing parent directories.
func (s *LocalStorage) LoadFromFilename(ctx context.Context, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	return s.LoadFromFile(ctx, in)
}

// LoadFromFile writes the contents of in to the locator's path.
func (s *LocalStorage) LoadFromFile(ctx context.Context, in io.Reader) error {
	target := s.objectPath()
	if err := ensureParentDir(target); err != nil {
		return err
	}

	out, err := os.Create(target)
	if err != nil {
		return err
	}

	written, err := copyChunks(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	s.log.Debug("Stored file locally",
		slog.String("path", target),
		slog.Int64("size", written))
	return nil
}

// LoadFromDirectory copies every file under dir into the locator's path,
// preserving relative paths.
func (s *LocalStorage) LoadFromDirectory(ctx context.Context, dir string) error {
	base := s.objectPath()
	return walkLocalTree(dir, func(rel, abs string) error {
		return copyLocalFile(abs, filepath.Join(base, filepath.FromSlash(rel)))
	})
}

// SaveToFilename copies the object to the local file at path. Returns
// ErrNotFound when the object does not exist; no empty destination file is
// created in that case.
func (s *LocalStorage) SaveToFilename(ctx context.Context, path string) error {
	in, err := os.Open(s.objectPath())
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", interfaces.ErrNotFound, s.loc.Path)
		}
		return err
	}
	defer in.Close()

	if err := ensureParentDir(path); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	_, err = copyChunks(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return err
}

// SaveToFile streams the object into out. Returns ErrNotFound when the object
// does not exist.
func (s *LocalStorage) SaveToFile(ctx context.Context, out io.Writer) error {
	in, err := os.Open(s.objectPath())
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", interfaces.ErrNotFound, s.loc.Path)
		}
		return err
	}
	defer in.Close()

	_, err = copyChunks(out, in)
	return err
}

// SaveToDirectory mirrors the locator's directory tree into dir. Returns
// ErrNotFound when the locator's path does not exist.
func (s *LocalStorage) SaveToDirectory(ctx context.Context, dir string) error {
	base := s.objectPath()
	if _, err := os.Stat(base); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", interfaces.ErrNotFound, s.loc.Path)
		}
		return err
	}
	return walkLocalTree(base, func(rel, abs string) error {
		return copyLocalFile(abs, filepath.Join(dir, filepath.FromSlash(rel)))
	})
}

// Delete removes the object. Returns ErrNotFound when it does not exist.
func (s *LocalStorage) Delete(ctx context.Context) error {
	if err := os.Remove(s.objectPath()); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", interfaces.ErrNotFound, s.loc.Path)
		}
		return err
	}
	return nil
}

// DeleteDirectory removes the locator's path and everything under it.
// Returns ErrNotFound when the path does not exist.
func (s *LocalStorage) DeleteDirectory(ctx context.Context) error {
	base := s.objectPath()
	if _, err := os.Stat(base); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", interfaces.ErrNotFound, s.loc.Path)
		}
		return err
	}
	return os.RemoveAll(base)
}

// DownloadURL joins the configured download_url_base with the object's final
// path segment. ttl and signingKey are accepted for contract compatibility
// and ignored.
func (s *LocalStorage) DownloadURL(ctx context.Context, ttl time.Duration, signingKey string) (string, error) {
	return downloadURLFromBase(s.loc.Option(OptionDownloadURLBase), s.loc.ObjectName())
}

// SanitizedURI returns the locator without credentials or options.
func (s *LocalStorage) SanitizedURI() string {
	return s.loc.SanitizedURI()
}

// Close is a no-op: the local backend holds no connection.
func (s *LocalStorage) Close() error {
	return nil
}

func copyLocalFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := ensureParentDir(dst); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	_, err = copyChunks(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return err
}
