package poller

import (
	"context"
	"sync"
	"time"
)

const (
	governorWindow = time.Minute
	// Margin added to a forced wait so the provider-side window has
	// certainly rolled over before the retry.
	governorMargin = 250 * time.Millisecond
)

// Governor enforces a rolling per-minute ceiling on provider requests. The
// window is a fixed 60 seconds: on expiry the counter resets and the window
// restarts. Admission is serialized so the contract stays correct even if
// more than one scheduler ever calls it.
type Governor struct {
	mu          sync.Mutex
	ceiling     int
	count       int
	windowStart time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGovernor creates a governor with the given per-minute ceiling.
func NewGovernor(ceiling int) *Governor {
	g := &Governor{
		ceiling: ceiling,
		now:     time.Now,
		sleep:   sleepContext,
	}
	g.windowStart = g.now()
	return g
}

// SetCeiling adjusts the ceiling; applied by the scheduler when the
// configuration snapshot changes.
func (g *Governor) SetCeiling(ceiling int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ceiling = ceiling
}

// Admit blocks until issuing n provider requests would not push the
// current window's counter above the ceiling, then counts them. An
// oversized n is never an error; the caller just waits out the window and
// proceeds against a fresh one.
func (g *Governor) Admit(ctx context.Context, n int) error {
	g.mu.Lock()
	now := g.now()
	if now.Sub(g.windowStart) >= governorWindow {
		g.windowStart = now
		g.count = 0
	}
	if g.count+n <= g.ceiling {
		g.count += n
		g.mu.Unlock()
		return nil
	}
	wait := governorWindow - now.Sub(g.windowStart) + governorMargin
	g.mu.Unlock()

	if err := g.sleep(ctx, wait); err != nil {
		return err
	}

	// The wait covered the remainder of the window; reset it outright and
	// admit into the fresh one.
	g.mu.Lock()
	g.windowStart = g.now()
	g.count = n
	g.mu.Unlock()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
