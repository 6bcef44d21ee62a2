package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/qrng-diode/internal/apperr"
)

func TestExecute_SucceedsImmediately(t *testing.T) {
	p := Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond, Multiplier: 2}
	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecute_RetriesRetryableThenSucceeds(t *testing.T) {
	p := Policy{MaxAttempts: 5, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond, Multiplier: 2}
	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return apperr.New(apperr.Network, "boom")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecute_NonRetryableFailsFast(t *testing.T) {
	p := Policy{MaxAttempts: 5, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond, Multiplier: 2}
	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		return apperr.New(apperr.Validation, "bad input")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecute_ExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond, Multiplier: 2}
	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		return apperr.New(apperr.Timeout, "slow")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecute_ContextCancelled(t *testing.T) {
	p := Policy{MaxAttempts: 5, InitialBackoff: 50 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Execute(ctx, func() error {
		return apperr.New(apperr.Network, "boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute_PlainErrorTreatedNonRetryable(t *testing.T) {
	p := Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond, Multiplier: 2}
	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		return errors.New("plain")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
