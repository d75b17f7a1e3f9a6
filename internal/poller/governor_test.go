package poller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// governorClock drives a Governor without real sleeping: sleeps advance
// the fake clock and are recorded.
type governorClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newGovernorClock() *governorClock {
	return &governorClock{now: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)}
}

func (c *governorClock) attach(g *Governor) {
	g.now = func() time.Time { return c.now }
	g.sleep = func(ctx context.Context, d time.Duration) error {
		c.sleeps = append(c.sleeps, d)
		c.now = c.now.Add(d)
		return ctx.Err()
	}
	g.windowStart = c.now
}

func TestGovernor_AdmitsUnderCeiling(t *testing.T) {
	clock := newGovernorClock()
	g := NewGovernor(20)
	clock.attach(g)

	require.NoError(t, g.Admit(context.Background(), 15))
	assert.Empty(t, clock.sleeps, "first batch within the ceiling must not wait")
}

func TestGovernor_SecondBatchWaitsOutTheWindow(t *testing.T) {
	clock := newGovernorClock()
	g := NewGovernor(20)
	clock.attach(g)

	ctx := context.Background()
	require.NoError(t, g.Admit(ctx, 15))

	// 15 + 15 > 20: the second batch must wait for the window remainder.
	clock.now = clock.now.Add(10 * time.Second)
	require.NoError(t, g.Admit(ctx, 15))

	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 50*time.Second+governorMargin, clock.sleeps[0])

	// The forced reset started a fresh window holding only the 15 just
	// admitted, so 5 more fit without waiting.
	require.NoError(t, g.Admit(ctx, 5))
	assert.Len(t, clock.sleeps, 1)
}

func TestGovernor_WindowExpiryResetsCounter(t *testing.T) {
	clock := newGovernorClock()
	g := NewGovernor(20)
	clock.attach(g)

	ctx := context.Background()
	require.NoError(t, g.Admit(ctx, 20))

	clock.now = clock.now.Add(61 * time.Second)
	require.NoError(t, g.Admit(ctx, 20))
	assert.Empty(t, clock.sleeps, "a new window admits a full ceiling without waiting")
}

func TestGovernor_OversizedBatchIsNotAnError(t *testing.T) {
	clock := newGovernorClock()
	g := NewGovernor(10)
	clock.attach(g)

	// n above the ceiling still goes through after the wait.
	require.NoError(t, g.Admit(context.Background(), 25))
	require.NoError(t, g.Admit(context.Background(), 25))
	assert.NotEmpty(t, clock.sleeps)
}

func TestGovernor_CancelledWhileWaiting(t *testing.T) {
	g := NewGovernor(1)
	g.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	require.NoError(t, g.Admit(context.Background(), 1))
	err := g.Admit(context.Background(), 1)
	assert.ErrorIs(t, err, context.Canceled)
}
