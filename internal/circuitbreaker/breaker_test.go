package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceBreakers_TripsAfterConsecutiveFailures(t *testing.T) {
	sb := NewSourceBreakers(3, 50*time.Millisecond)
	cb := sb.Source("https://qrng.example/a")

	failOnce := func() (interface{}, error) { return nil, errors.New("boom") }

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(failOnce)
		require.Error(t, err)
	}

	assert.Equal(t, StateOpen, cb.State())
	_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestSourceBreakers_ResetsAfterTimeout(t *testing.T) {
	sb := NewSourceBreakers(1, 20*time.Millisecond)
	cb := sb.Source("https://qrng.example/a")

	_, _ = cb.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	result, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, StateClosed, cb.State())
}

func TestSourceBreakers_HealthStatus(t *testing.T) {
	sb := NewSourceBreakers(1, time.Minute)
	push := sb.Push()
	_, _ = push.Execute(func() (interface{}, error) { return nil, errors.New("boom") })

	status, details := sb.HealthStatus()
	assert.Equal(t, "DEGRADED", status)
	assert.Equal(t, "OPEN", details["push"])
}
