package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/jelajah/backend/internal/service/retry"
)

type fakeClock struct {
	waits []time.Duration
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func TestPolicyDelay(t *testing.T) {
	tests := []struct {
		name     string
		policy   retry.Policy
		attempt  int
		expected time.Duration
	}{
		{
			name:     "first failure waits base delay",
			policy:   retry.Policy{BaseDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second},
			attempt:  1,
			expected: 100 * time.Millisecond,
		},
		{
			name:     "third failure doubles twice",
			policy:   retry.Policy{BaseDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second},
			attempt:  3,
			expected: 400 * time.Millisecond,
		},
		{
			name:     "capped at max delay",
			policy:   retry.Policy{BaseDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 300 * time.Millisecond},
			attempt:  5,
			expected: 300 * time.Millisecond,
		},
		{
			name:     "multiplier below one is fixed",
			policy:   retry.Policy{BaseDelay: 100 * time.Millisecond, Multiplier: 0},
			attempt:  4,
			expected: 100 * time.Millisecond,
		},
		{
			name:     "high attempt stays at max delay",
			policy:   retry.Policy{BaseDelay: 500 * time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Second},
			attempt:  40,
			expected: 5 * time.Second,
		},
		{
			name:     "attempt past float range stays at max delay",
			policy:   retry.Policy{BaseDelay: 500 * time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Second},
			attempt:  5000,
			expected: 5 * time.Second,
		},
		{
			name:     "no delay before first attempt",
			policy:   retry.DefaultPolicy(),
			attempt:  0,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.policy.Delay(tt.attempt))
		})
	}
}

func TestPolicyDelayJitterBounds(t *testing.T) {
	low := retry.Policy{BaseDelay: time.Second, Multiplier: 2, Jitter: 0.2, Rand: func() float64 { return 0 }}
	high := retry.Policy{BaseDelay: time.Second, Multiplier: 2, Jitter: 0.2, Rand: func() float64 { return 0.999999 }}

	assert.Equal(t, 800*time.Millisecond, low.Delay(1))
	assert.InDelta(t, float64(1200*time.Millisecond), float64(high.Delay(1)), float64(time.Millisecond))
}

func TestPolicyDelayUncappedNeverNegative(t *testing.T) {
	policy := retry.Policy{BaseDelay: 500 * time.Millisecond, Multiplier: 2, Jitter: 1, Rand: func() float64 { return 0.999999 }}

	for _, attempt := range []int{36, 64, 1100} {
		assert.Positive(t, policy.Delay(attempt), "attempt %d", attempt)
	}
}

func TestDoRetriesTransientFailures(t *testing.T) {
	clock := &fakeClock{}
	policy := retry.Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, Multiplier: 2}

	calls := 0
	attempts, err := retry.Do(context.Background(), policy, clock, nil, func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("timeout")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, clock.waits)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	clock := &fakeClock{}
	permanent := retry.Permanent(errors.New("invalid api key"))

	calls := 0
	attempts, err := retry.Do(context.Background(), retry.DefaultPolicy(), clock, nil, func(ctx context.Context, attempt int) error {
		calls++
		return permanent
	})

	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.waits)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	clock := &fakeClock{}
	policy := retry.Policy{MaxAttempts: 4, BaseDelay: time.Millisecond, Multiplier: 2}

	attempts, err := retry.Do(context.Background(), policy, clock, nil, func(ctx context.Context, attempt int) error {
		return errors.New("unavailable")
	})

	require.EqualError(t, err, "unavailable")
	assert.Equal(t, 4, attempts)
	assert.Len(t, clock.waits, 3)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	attempts, err := retry.Do(ctx, retry.DefaultPolicy(), &fakeClock{}, nil, func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, attempts)
	assert.Zero(t, calls)
}

func TestMarkers(t *testing.T) {
	base := errors.New("boom")

	assert.True(t, retry.IsTransient(retry.Transient(base)))
	assert.ErrorIs(t, retry.Permanent(base), base)
	assert.False(t, retry.IsPermanent(base))
	assert.Nil(t, retry.Permanent(nil))
}
