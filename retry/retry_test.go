package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stordock/stordock/interfaces"
)

// recordingTimer fires immediately and records every backoff duration the
// executor asked to sleep for.
type recordingTimer struct {
	waits []time.Duration
	ch    chan time.Time
}

func (t *recordingTimer) Start(d time.Duration) {
	t.waits = append(t.waits, d)
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	t.ch = ch
}

func (t *recordingTimer) C() <-chan time.Time { return t.ch }

func (t *recordingTimer) Stop() {}

func testExecutor(timer *recordingTimer) *Executor {
	return &Executor{
		Log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Timer: timer,
	}
}

func TestAttemptRetriesUntilSuccess(t *testing.T) {
	timer := &recordingTimer{}
	executor := testExecutor(timer)

	calls := 0
	err := executor.Attempt(context.Background(), func() error {
		calls++
		if calls < 5 {
			return errors.New("transient failure")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}, timer.waits)

	for i := 1; i < len(timer.waits); i++ {
		assert.GreaterOrEqual(t, timer.waits[i], timer.waits[i-1])
	}
}

func TestAttemptReturnsLastErrorUnmodified(t *testing.T) {
	timer := &recordingTimer{}
	executor := testExecutor(timer)

	lastErr := errors.New("still failing")
	calls := 0
	err := executor.Attempt(context.Background(), func() error {
		calls++
		return lastErr
	})

	require.Error(t, err)
	assert.Equal(t, lastErr, err)
	assert.Equal(t, 5, calls)
	assert.Len(t, timer.waits, 4)
}

func TestAttemptDoesNotRetryMarkedFailures(t *testing.T) {
	timer := &recordingTimer{}
	executor := testExecutor(timer)

	permanent := interfaces.WrapPermanent("s3", "upload", errors.New("access denied"))
	calls := 0
	err := executor.Attempt(context.Background(), func() error {
		calls++
		return permanent
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, timer.waits)

	var serr *interfaces.StorageError
	require.ErrorAs(t, err, &serr)
	assert.True(t, serr.DoNotRetry)
}

func TestAttemptDoesNotRetryConfigurationSentinels(t *testing.T) {
	timer := &recordingTimer{}
	executor := testExecutor(timer)

	calls := 0
	err := executor.Attempt(context.Background(), func() error {
		calls++
		return fmt.Errorf("%w: no temp_url_key configured", interfaces.ErrMissingSigningKey)
	})

	require.ErrorIs(t, err, interfaces.ErrMissingSigningKey)
	assert.Equal(t, 1, calls)
	assert.Empty(t, timer.waits)
}

func TestAttemptCapsBackoff(t *testing.T) {
	timer := &recordingTimer{}
	executor := testExecutor(timer)
	executor.InitialBackoff = 1 * time.Second
	executor.MaxBackoff = 3 * time.Second

	err := executor.Attempt(context.Background(), func() error {
		return errors.New("transient failure")
	})

	require.Error(t, err)
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		3 * time.Second,
		3 * time.Second,
	}, timer.waits)
}

func TestAttemptHonorsMaxAttempts(t *testing.T) {
	timer := &recordingTimer{}
	executor := testExecutor(timer)
	executor.MaxAttempts = 2

	calls := 0
	err := executor.Attempt(context.Background(), func() error {
		calls++
		return errors.New("transient failure")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, timer.waits, 1)
}

func TestAttemptValue(t *testing.T) {
	timer := &recordingTimer{}
	previous := Default
	Default = testExecutor(timer)
	defer func() { Default = previous }()

	calls := 0
	value, err := AttemptValue(context.Background(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient failure")
		}
		return "https://example.com/signed", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/signed", value)
	assert.Equal(t, 3, calls)
	assert.Len(t, timer.waits, 2)
}
