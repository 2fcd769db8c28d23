package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/stordock/stordock/interfaces"
	"github.com/stordock/stordock/retry"
)

func init() {
	Register("s3", NewS3Storage)
}

// s3DeleteBatchLimit is the DeleteObjects request cap imposed by S3.
const s3DeleteBatchLimit = 1000

const s3DefaultRegion = "us-east-1"

// S3Storage stores objects in Amazon S3 or an S3-compatible service.
//
// Locator format:
//
//	s3://access_key:secret_key@bucket/path/to/key?region=us-west-2
//
// Both credential components are percent-decoded, so secrets containing
// reserved characters must be percent-encoded in the URI. Delete on an absent
// key succeeds silently: S3's DeleteObject does not report missing keys.
// Uploads stream through the transfer manager's multipart machinery, so
// LoadFromFile accepts any reader without buffering the whole object.
type S3Storage struct {
	loc *Locator
	log *slog.Logger

	connectOnce sync.Once
	connectErr  error
	client      s3iface.S3API
	uploader    *s3manager.Uploader
}

// NewS3Storage creates an S3 backend bound to loc.
func NewS3Storage(loc *Locator, log *slog.Logger) (interfaces.Storage, error) {
	if loc.Username == "" {
		return nil, fmt.Errorf("%w: s3 locator requires an access key", interfaces.ErrInvalidLocator)
	}
	if !loc.HasPassword {
		return nil, fmt.Errorf("%w: s3 locator requires a secret key", interfaces.ErrInvalidLocator)
	}
	if loc.Host == "" {
		return nil, fmt.Errorf("%w: s3 locator requires a bucket", interfaces.ErrInvalidLocator)
	}
	return &S3Storage{loc: loc, log: log}, nil
}

// connect builds the S3 client on first use and caches it for the lifetime of
// the instance.
func (s *S3Storage) connect() error {
	s.connectOnce.Do(func() {
		if s.client != nil {
			// Client injected for testing.
			if s.uploader == nil {
				s.uploader = s3manager.NewUploaderWithClient(s.client)
			}
			return
		}

		region := s.loc.Option(OptionRegion)
		if region == "" {
			region = s3DefaultRegion
		}

		cfg := aws.NewConfig().
			WithRegion(region).
			WithCredentials(credentials.NewStaticCredentials(s.loc.Username, s.loc.Password, "")).
			WithHTTPClient(newChunkTimeoutClient())

		sess, err := session.NewSession(cfg)
		if err != nil {
			s.connectErr = interfaces.WrapPermanent("s3", "connect", err)
			return
		}

		svc := s3.New(sess)
		s.client = svc
		s.uploader = s3manager.NewUploaderWithClient(svc)

		s.log.Debug("Connected S3 client",
			slog.String("bucket", s.loc.Host),
			slog.String("region", region))
	})
	return s.connectErr
}

// newChunkTimeoutClient bounds dial, TLS and response-header waits without
// imposing a whole-request deadline, so transfer time scales with object size.
func newChunkTimeoutClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   DefaultTimeout,
			ResponseHeaderTimeout: DefaultTimeout,
		},
	}
}

// LoadFromFilename streams the local file at path to the locator's key,
// guessing a Content-Type from the filename extension.
func (s *S3Storage) LoadFromFilename(ctx context.Context, path string) error {
	if err := s.connect(); err != nil {
		return err
	}

	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	return s.upload(ctx, s.loc.Key(), in, mime.TypeByExtension(filepath.Ext(path)))
}

// LoadFromFile streams in to the locator's key. The Content-Type is guessed
// from the key's extension.
func (s *S3Storage) LoadFromFile(ctx context.Context, in io.Reader) error {
	if err := s.connect(); err != nil {
		return err
	}
	return s.upload(ctx, s.loc.Key(), in, mime.TypeByExtension(filepath.Ext(s.loc.Path)))
}

// LoadFromDirectory uploads every file under dir, joining each file's
// relative path onto the locator's key. Each object upload is retried with
// backoff; a failure that survives retrying stops the walk, leaving objects
// already uploaded in place.
func (s *S3Storage) LoadFromDirectory(ctx context.Context, dir string) error {
	if err := s.connect(); err != nil {
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
			return s.upload(ctx, joinKey(base, rel), in, mime.TypeByExtension(filepath.Ext(abs)))
		})
	})
}

func (s *S3Storage) upload(ctx context.Context, key string, in io.Reader, contentType string) error {
	input := &s3manager.UploadInput{
		Bucket: aws.String(s.loc.Host),
		Key:    aws.String(key),
		Body:   in,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return translateS3Error("upload", err)
	}

	s.log.Debug("Uploaded object to S3",
		slog.String("bucket", s.loc.Host),
		slog.String("key", key))
	return nil
}

// SaveToFilename downloads the object to path, creating missing parent
// directories. Returns ErrNotFound for an absent key; a partially written
// destination file is removed on failure.
func (s *S3Storage) SaveToFilename(ctx context.Context, path string) error {
	if err := s.connect(); err != nil {
		return err
	}
	return s.download(ctx, s.loc.Key(), path)
}

// SaveToFile streams the object into out. Returns ErrNotFound for an absent
// key.
func (s *S3Storage) SaveToFile(ctx context.Context, out io.Writer) error {
	if err := s.connect(); err != nil {
		return err
	}

	body, err := s.open(ctx, s.loc.Key())
	if err != nil {
		return err
	}
	defer body.Close()

	_, err = copyChunks(out, body)
	return err
}

// SaveToDirectory mirrors every object under the locator's key prefix into
// dir, paginating through the listing with continuation tokens. Returns
// ErrNotFound when the prefix matches nothing. Each object download is
// retried with backoff.
func (s *S3Storage) SaveToDirectory(ctx context.Context, dir string) error {
	if err := s.connect(); err != nil {
		return err
	}

	prefix := directoryPrefix(s.loc.Key())
	found := false
	err := listAllPages(s.pageLister(ctx, prefix), func(key string) error {
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

// Delete removes the object. Deleting an absent key succeeds silently.
func (s *S3Storage) Delete(ctx context.Context) error {
	if err := s.connect(); err != nil {
		return err
	}

	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.loc.Host),
		Key:    aws.String(s.loc.Key()),
	})
	if err != nil {
		return translateS3Error("delete", err)
	}
	return nil
}

// DeleteDirectory removes every object under the locator's key prefix,
// paginating through the full listing and splitting bulk deletes into batches
// of at most 1000 keys. Returns ErrNotFound when the prefix matches nothing.
func (s *S3Storage) DeleteDirectory(ctx context.Context) error {
	if err := s.connect(); err != nil {
		return err
	}

	prefix := directoryPrefix(s.loc.Key())
	var keys []string
	err := listAllPages(s.pageLister(ctx, prefix), func(key string) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: no objects under prefix %q", interfaces.ErrNotFound, prefix)
	}

	for _, batch := range batchKeys(keys, s3DeleteBatchLimit) {
		identifiers := make([]*s3.ObjectIdentifier, len(batch))
		for i, key := range batch {
			identifiers[i] = &s3.ObjectIdentifier{Key: aws.String(key)}
		}

		_, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.loc.Host),
			Delete: &s3.Delete{Objects: identifiers, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return translateS3Error("delete_directory", err)
		}
	}

	s.log.Debug("Deleted S3 prefix",
		slog.String("bucket", s.loc.Host),
		slog.String("prefix", prefix),
		slog.Int("objects", len(keys)))
	return nil
}

// DownloadURL returns a presigned GET URL valid for ttl. S3 signs with the
// locator's credentials; signingKey is ignored.
func (s *S3Storage) DownloadURL(ctx context.Context, ttl time.Duration, signingKey string) (string, error) {
	if err := s.connect(); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = interfaces.DefaultDownloadURLTTL
	}

	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.loc.Host),
		Key:    aws.String(s.loc.Key()),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", translateS3Error("download_url", err)
	}
	return url, nil
}

// SanitizedURI returns the locator without credentials or options.
func (s *S3Storage) SanitizedURI() string {
	return s.loc.SanitizedURI()
}

// Close is a no-op: the S3 client holds no persistent connection of its own.
func (s *S3Storage) Close() error {
	return nil
}

// pageLister adapts ListObjectsV2 continuation paging to listAllPages.
func (s *S3Storage) pageLister(ctx context.Context, prefix string) func(marker string) ([]string, string, error) {
	return func(marker string) ([]string, string, error) {
		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(s.loc.Host),
			Prefix: aws.String(prefix),
		}
		if marker != "" {
			input.ContinuationToken = aws.String(marker)
		}

		output, err := s.client.ListObjectsV2WithContext(ctx, input)
		if err != nil {
			return nil, "", translateS3Error("list", err)
		}

		keys := make([]string, 0, len(output.Contents))
		for _, object := range output.Contents {
			keys = append(keys, aws.StringValue(object.Key))
		}
		return keys, aws.StringValue(output.NextContinuationToken), nil
	}
}

func (s *S3Storage) open(ctx context.Context, key string) (io.ReadCloser, error) {
	output, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.loc.Host),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, translateS3Error("download", err)
	}
	return output.Body, nil
}

func (s *S3Storage) download(ctx context.Context, key, path string) error {
	body, err := s.open(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := ensureParentDir(path); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}

	_, err = copyChunks(out, body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// translateS3Error maps SDK failures onto the shared taxonomy: missing keys
// become ErrNotFound, rejected credentials become a permanent
// ErrAuthentication, and everything else stays retryable.
func translateS3Error(op string, err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return fmt.Errorf("%w: %v", interfaces.ErrNotFound, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return interfaces.WrapPermanent("s3", op,
				fmt.Errorf("%w: %v", interfaces.ErrAuthentication, err))
		}
	}
	return interfaces.WrapError("s3", op, err)
}
