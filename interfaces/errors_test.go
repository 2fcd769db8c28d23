package interfaces

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError("s3", "upload", cause)

	assert.EqualError(t, err, "s3: upload: connection reset")
	assert.ErrorIs(t, err, cause)
	assert.False(t, err.DoNotRetry)
}

func TestWrapPermanentSetsMarker(t *testing.T) {
	err := WrapPermanent("swift", "authenticate", ErrAuthentication)

	assert.True(t, err.DoNotRetry)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestDoNotRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("timeout"), false},
		{"retryable wrap", WrapError("s3", "upload", errors.New("timeout")), false},
		{"permanent wrap", WrapPermanent("s3", "upload", errors.New("denied")), true},
		{"invalid locator", fmt.Errorf("%w: no scheme", ErrInvalidLocator), true},
		{"unknown scheme", fmt.Errorf("%w: teleport", ErrUnknownScheme), true},
		{"authentication", fmt.Errorf("%w: bad key", ErrAuthentication), true},
		{"missing signing key", ErrMissingSigningKey, true},
		{"download url base", ErrDownloadURLBaseUndefined, true},
		{"unsupported operation", ErrUnsupportedOperation, true},
		{"not found stays retryable", fmt.Errorf("%w: key", ErrNotFound), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DoNotRetry(tt.err))
		})
	}
}

func TestDoNotRetryThroughNesting(t *testing.T) {
	inner := WrapPermanent("ftp", "login", errors.New("530 not logged in"))
	outer := fmt.Errorf("transferring tree: %w", inner)

	assert.True(t, DoNotRetry(outer))

	var serr *StorageError
	require.ErrorAs(t, outer, &serr)
	assert.Equal(t, "ftp", serr.Backend)
	assert.Equal(t, "login", serr.Op)
}
