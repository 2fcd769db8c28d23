package storage

import (
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/stordock/stordock/interfaces"
)

// DefaultTimeout bounds connection setup and each data-chunk exchange. It is
// deliberately not a whole-transfer deadline: arbitrarily large objects must
// not time out on size alone.
const DefaultTimeout = 60 * time.Second

// transferChunkSize is the buffer size for manual chunked copies between a
// local file and a remote stream.
const transferChunkSize = 32 * 1024 * 1024

// copyChunks copies src to dst through a fixed-size buffer so whole objects
// are never held in memory.
func copyChunks(dst io.Writer, src io.Reader) (int64, error) {
	return io.CopyBuffer(dst, src, make([]byte, transferChunkSize))
}

// walkLocalTree calls fn for every regular file under root, passing the
// slash-separated path relative to root and the absolute path. Files are
// visited in lexical order.
func walkLocalTree(root string, fn func(rel, abs string) error) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), p)
	})
}

// joinKey appends a slash-separated relative path to a base object key.
// Directory boundaries carry no remote representation on flat-namespace
// backends; the relative path simply becomes a delimiter-joined key suffix.
func joinKey(base, rel string) string {
	return path.Join(strings.Trim(base, "/"), rel)
}

// relativeKey strips the listing prefix from an object key, yielding the
// local relative path a mirrored object lands at.
func relativeKey(prefix, key string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
}

// directoryPrefix renders an object key as a listing prefix ending in the
// delimiter, so "a/bc" never matches under the directory "a/b".
func directoryPrefix(key string) string {
	key = strings.Trim(key, "/")
	if key == "" {
		return ""
	}
	return key + "/"
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

func ensureParentDir(p string) error {
	return os.MkdirAll(filepath.Dir(p), 0755)
}

// listAllPages drives a marker-paginated remote listing to exhaustion,
// invoking fn for every key in listing order. page returns the keys at the
// given marker and the marker of the next page; an empty next marker ends the
// listing. The first error from either function stops the walk.
func listAllPages(page func(marker string) ([]string, string, error), fn func(key string) error) error {
	marker := ""
	for {
		keys, next, err := page(marker)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := fn(key); err != nil {
				return err
			}
		}
		if next == "" {
			return nil
		}
		marker = next
	}
}

// batchKeys splits keys into batches of at most size, for backends that cap
// bulk-delete request sizes.
func batchKeys(keys []string, size int) [][]string {
	var batches [][]string
	for len(keys) > size {
		batches = append(batches, keys[:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		batches = append(batches, keys)
	}
	return batches
}

// downloadURLFromBase joins a configured static base URL with an object name.
// Backends without signed-URL support (local, FTP) serve download URLs this
// way and ignore the ttl and signing-key arguments.
func downloadURLFromBase(base, objectName string) (string, error) {
	if base == "" {
		return "", interfaces.ErrDownloadURLBaseUndefined
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", interfaces.ErrDownloadURLBaseUndefined
	}
	return baseURL.ResolveReference(&url.URL{Path: objectName}).String(), nil
}
