package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cb := New(&Config{
		Name:        "test",
		MaxRequests: 1,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 2 },
	})

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}

	assert.Equal(t, StateOpen, cb.State())
	_, err := cb.Execute(func() (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerRecoversAfterTimeout(t *testing.T) {
	cb := New(&Config{
		Name:        "test",
		MaxRequests: 1,
		Timeout:     10 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	boom := errors.New("boom")
	_, _ = cb.Execute(func() (interface{}, error) { return nil, boom })
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestManagerGetOrCreateReusesBreaker(t *testing.T) {
	m := NewManager(nil)
	a := m.GetOrCreate("dev-1", &Config{Name: "dev-1", MaxRequests: 1})
	b := m.GetOrCreate("dev-1", &Config{Name: "dev-1", MaxRequests: 5})
	assert.Same(t, a, b)
}
