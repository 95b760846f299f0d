package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduleDoublesAndCaps(t *testing.T) {
	s := NewSchedule()
	require.Equal(t, time.Second, s.Next())
	require.Equal(t, 2*time.Second, s.Next())
	require.Equal(t, 4*time.Second, s.Next())

	// Advance until the cap is hit.
	for i := 0; i < 10; i++ {
		s.Next()
	}
	require.Equal(t, maxDelay, s.Next())
}

func TestRetrySucceedsEventually(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 5, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 5, func() error {
		return errors.New("always fails")
	})
	require.Error(t, err)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, func() error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, 2, calls)
}
