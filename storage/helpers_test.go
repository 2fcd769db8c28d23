package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseTestLocator(t *testing.T, uri string) *Locator {
	t.Helper()
	loc, err := ParseLocator(uri)
	require.NoError(t, err)
	return loc
}

// stubStorage satisfies the backend contract for registry and resolver tests.
type stubStorage struct {
	name string
	loc  *Locator
}

func (s *stubStorage) LoadFromFilename(ctx context.Context, path string) error { return nil }
func (s *stubStorage) LoadFromFile(ctx context.Context, in io.Reader) error    { return nil }
func (s *stubStorage) LoadFromDirectory(ctx context.Context, dir string) error { return nil }
func (s *stubStorage) SaveToFilename(ctx context.Context, path string) error   { return nil }
func (s *stubStorage) SaveToFile(ctx context.Context, out io.Writer) error     { return nil }
func (s *stubStorage) SaveToDirectory(ctx context.Context, dir string) error   { return nil }
func (s *stubStorage) Delete(ctx context.Context) error                        { return nil }
func (s *stubStorage) DeleteDirectory(ctx context.Context) error               { return nil }
func (s *stubStorage) DownloadURL(ctx context.Context, ttl time.Duration, signingKey string) (string, error) {
	return "", nil
}
func (s *stubStorage) SanitizedURI() string { return s.loc.SanitizedURI() }
func (s *stubStorage) Close() error         { return nil }
