package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/stordock/stordock/interfaces"
	"github.com/stordock/stordock/retry"
)

const gcsPageSize = 1000

func init() {
	Register("gs", NewGoogleStorage)
}

// GoogleStorage stores objects in Google Cloud Storage.
//
// Locator format:
//
//	gs://<urlsafe-base64-service-account-json>@bucket/path/to/key
//
// The username component carries the whole service-account key file,
// URL-safe-base64 encoded; there is no password component. Delete on an
// absent key returns ErrNotFound: GCS reports missing objects. Uploads go
// through the client's resumable writer, which sends the body in chunks, so
// LoadFromFile streams from any reader.
type GoogleStorage struct {
	loc         *Locator
	log         *slog.Logger
	credentials []byte

	connectOnce sync.Once
	connectErr  error
	client      *gcs.Client
}

// NewGoogleStorage creates a GCS backend bound to loc. The encoded
// service-account blob is validated at construction so a bad locator fails
// before any network traffic.
func NewGoogleStorage(loc *Locator, log *slog.Logger) (interfaces.Storage, error) {
	if loc.Username == "" {
		return nil, fmt.Errorf("%w: gs locator requires a service account", interfaces.ErrInvalidLocator)
	}
	if loc.Host == "" {
		return nil, fmt.Errorf("%w: gs locator requires a bucket", interfaces.ErrInvalidLocator)
	}

	blob, err := decodeServiceAccount(loc.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: service account blob: %v", interfaces.ErrInvalidLocator, err)
	}

	return &GoogleStorage{loc: loc, log: log, credentials: blob}, nil
}

func decodeServiceAccount(encoded string) ([]byte, error) {
	blob, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		blob, err = base64.RawURLEncoding.DecodeString(encoded)
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(blob) {
		return nil, errors.New("not valid JSON")
	}
	return blob, nil
}

// connect builds the GCS client on first use and caches it for the lifetime
// of the instance.
func (s *GoogleStorage) connect(ctx context.Context) error {
	s.connectOnce.Do(func() {
		if s.client != nil {
			// Client injected for testing.
			return
		}

		client, err := gcs.NewClient(ctx, option.WithCredentialsJSON(s.credentials))
		if err != nil {
			s.connectErr = interfaces.WrapPermanent("gs", "connect",
				fmt.Errorf("%w: %v", interfaces.ErrAuthentication, err))
			return
		}
		s.client = client

		s.log.Debug("Connected GCS client", slog.String("bucket", s.loc.Host))
	})
	return s.connectErr
}

func (s *GoogleStorage) bucket() *gcs.BucketHandle {
	return s.client.Bucket(s.loc.Host)
}

// LoadFromFilename streams the local file at path to the locator's key.
func (s *GoogleStorage) LoadFromFilename(ctx context.Context, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	return s.LoadFromFile(ctx, in)
}

// LoadFromFile streams in to the locator's key through the resumable writer.
func (s *GoogleStorage) LoadFromFile(ctx context.Context, in io.Reader) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	return s.upload(ctx, s.loc.Key(), in)
}

// LoadFromDirectory uploads every file under dir, joining each file's
// relative path onto the locator's key. Per-object uploads are retried with
// backoff.
func (s *GoogleStorage) LoadFromDirectory(ctx context.Context, dir string) error {
	if err := s.connect(ctx); err != nil {
		return err
	}

	base := s.loc.Key()
	return walkLocalTree(dir, func(rel, abs string) error {
		return retry.Attempt(ctx, func() error {
			in, err := os.Open(abs)
			if err != nil {
				return err
			}
			defer in.Close()
			return s.upload(ctx, joinKey(base, rel), in)
		})
	})
}

func (s *GoogleStorage) upload(ctx context.Context, key string, in io.Reader) error {
	w := s.bucket().Object(key).NewWriter(ctx)

	_, err := copyChunks(w, in)
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return s.translate("upload", err)
	}

	s.log.Debug("Uploaded object to GCS",
		slog.String("bucket", s.loc.Host),
		slog.String("key", key))
	return nil
}

// SaveToFilename downloads the object to path, creating missing parent
// directories. Returns ErrNotFound for an absent key; the destination file is
// not created in that case.
func (s *GoogleStorage) SaveToFilename(ctx context.Context, path string) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	return s.download(ctx, s.loc.Key(), path)
}

// SaveToFile streams the object into out. Returns ErrNotFound for an absent
// key.
func (s *GoogleStorage) SaveToFile(ctx context.Context, out io.Writer) error {
	if err := s.connect(ctx); err != nil {
		return err
	}

	r, err := s.bucket().Object(s.loc.Key()).NewReader(ctx)
	if err != nil {
		return s.translate("download", err)
	}
	defer r.Close()

	_, err = copyChunks(out, r)
	return err
}

// SaveToDirectory mirrors every object under the locator's key prefix into
// dir, paging through the listing with explicit page tokens. Returns
// ErrNotFound when the prefix matches nothing. Per-object downloads are
// retried with backoff.
func (s *GoogleStorage) SaveToDirectory(ctx context.Context, dir string) error {
	if err := s.connect(ctx); err != nil {
		return err
	}

	prefix := directoryPrefix(s.loc.Key())
	found := false
	err := s.forEachObject(ctx, prefix, func(key string) error {
		if key == "" || key[len(key)-1] == '/' {
			return nil
		}
		found = true
		target := filepath.Join(dir, filepath.FromSlash(relativeKey(prefix, key)))
		return retry.Attempt(ctx, func() error {
			return s.download(ctx, key, target)
		})
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no objects under prefix %q", interfaces.ErrNotFound, prefix)
	}
	return nil
}

// Delete removes the object. Returns ErrNotFound when it does not exist.
func (s *GoogleStorage) Delete(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	if err := s.bucket().Object(s.loc.Key()).Delete(ctx); err != nil {
		return s.translate("delete", err)
	}
	return nil
}

// DeleteDirectory removes every object under the locator's key prefix. GCS
// has no bulk-delete primitive, so objects are deleted one at a time in
// listing order. Returns ErrNotFound when the prefix matches nothing.
func (s *GoogleStorage) DeleteDirectory(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}

	prefix := directoryPrefix(s.loc.Key())
	deleted := 0
	err := s.forEachObject(ctx, prefix, func(key string) error {
		if err := s.bucket().Object(key).Delete(ctx); err != nil {
			return s.translate("delete_directory", err)
		}
		deleted++
		return nil
	})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return fmt.Errorf("%w: no objects under prefix %q", interfaces.ErrNotFound, prefix)
	}

	s.log.Debug("Deleted GCS prefix",
		slog.String("bucket", s.loc.Host),
		slog.String("prefix", prefix),
		slog.Int("objects", deleted))
	return nil
}

// DownloadURL returns a V4 signed URL valid for ttl, signed with the
// locator's service-account key. signingKey is ignored: the service account
// is the signing identity. Credentials without a private key cannot sign and
// yield ErrUnsupportedOperation.
func (s *GoogleStorage) DownloadURL(ctx context.Context, ttl time.Duration, signingKey string) (string, error) {
	if err := s.connect(ctx); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = interfaces.DefaultDownloadURLTTL
	}

	url, err := s.bucket().SignedURL(s.loc.Key(), &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("%w: signing with service account: %v",
			interfaces.ErrUnsupportedOperation, err)
	}
	return url, nil
}

// SanitizedURI returns the locator without the service-account blob.
func (s *GoogleStorage) SanitizedURI() string {
	return s.loc.SanitizedURI()
}

// Close releases the cached client.
func (s *GoogleStorage) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// forEachObject pages through the prefix listing with explicit page tokens,
// invoking fn for every key in listing order.
func (s *GoogleStorage) forEachObject(ctx context.Context, prefix string, fn func(key string) error) error {
	it := s.bucket().Objects(ctx, &gcs.Query{Prefix: prefix})
	pager := iterator.NewPager(it, gcsPageSize, "")
	for {
		var page []*gcs.ObjectAttrs
		token, err := pager.NextPage(&page)
		if err != nil {
			return s.translate("list", err)
		}
		for _, attrs := range page {
			if err := fn(attrs.Name); err != nil {
				return err
			}
		}
		if token == "" {
			return nil
		}
	}
}

func (s *GoogleStorage) download(ctx context.Context, key, path string) error {
	r, err := s.bucket().Object(key).NewReader(ctx)
	if err != nil {
		return s.translate("download", err)
	}
	defer r.Close()

	if err := ensureParentDir(path); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}

	_, err = copyChunks(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// translate maps GCS client failures onto the shared taxonomy.
func (s *GoogleStorage) translate(op string, err error) error {
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return fmt.Errorf("%w: %v", interfaces.ErrNotFound, err)
	}
	return interfaces.WrapError("gs", op, err)
}
