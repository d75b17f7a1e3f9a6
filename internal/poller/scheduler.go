package poller

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"presence-tracker-backend/config"
	"presence-tracker-backend/internal/model"
	"presence-tracker-backend/internal/provider"
	"presence-tracker-backend/internal/store"
)

// State names the scheduler's connection lifecycle phases.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateIdle         State = "idle"
	StatePolling      State = "polling"
)

// Notifier is the optional capability invoked when a target comes online.
// It is dispatched after the batch commit, so a notifier failure can never
// affect session or event correctness.
type Notifier interface {
	Dispatch(targetID int64)
}

// Scheduler drives the whole engine: it owns the provider client, loads
// the target list each cycle, slices it into batches, and runs governor →
// fetcher → transition planning → bulk writer for each batch.
type Scheduler struct {
	cfg      *config.Holder
	store    store.Store
	client   provider.Client
	governor *Governor
	notifier Notifier

	state   atomic.Value // State
	polling atomic.Bool
}

// NewScheduler wires a scheduler. notifier may be nil.
func NewScheduler(cfg *config.Holder, st store.Store, client provider.Client, notifier Notifier) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		store:    st,
		client:   client,
		governor: NewGovernor(cfg.Current().Poller.RateCeilingPerMin),
		notifier: notifier,
	}
	s.state.Store(StateDisconnected)
	return s
}

// State returns the current lifecycle state for the liveness endpoint.
func (s *Scheduler) State() State {
	return s.state.Load().(State)
}

// Polling reports whether a poll cycle is currently in flight.
func (s *Scheduler) Polling() bool {
	return s.polling.Load()
}

func (s *Scheduler) setState(st State) {
	s.state.Store(st)
}

// Run is the outer loop: connect with exponential backoff, poll until the
// connection drops, tear down, repeat. It returns when ctx is cancelled;
// the current batch always finishes before the loop stops.
func (s *Scheduler) Run(ctx context.Context) {
	p := s.cfg.Current().Poller
	minBackoff := time.Duration(p.ReconnectMinSeconds) * time.Second
	maxBackoff := time.Duration(p.ReconnectMaxSeconds) * time.Second
	backoff := minBackoff

	for ctx.Err() == nil {
		s.setState(StateConnecting)
		if err := s.client.Connect(ctx); err != nil {
			s.setState(StateDisconnected)
			if ctx.Err() != nil {
				return
			}
			log.Printf("Provider connect failed: %v. Retrying in %s.", err, backoff)
			if sleepContext(ctx, backoff) != nil {
				return
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = minBackoff

		err := s.runConnected(ctx)

		if derr := s.client.Disconnect(); derr != nil {
			log.Printf("Provider disconnect: %v", derr)
		}
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			log.Println("Poll scheduler shutting down.")
			return
		}
		log.Printf("Provider connection lost: %v. Reconnecting in %s.", err, backoff)
		if sleepContext(ctx, backoff) != nil {
			return
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		return max
	}
	return cur
}

// runConnected polls in cycles until the connection fails or ctx ends.
// The configuration snapshot is re-read at the top of every cycle.
func (s *Scheduler) runConnected(ctx context.Context) error {
	for {
		cfg := s.cfg.Current().Poller
		s.governor.SetCeiling(cfg.RateCeilingPerMin)

		if !cfg.Enabled {
			s.setState(StateIdle)
			if err := sleepContext(ctx, cfg.CycleDelay()); err != nil {
				return err
			}
			continue
		}

		authorized, err := s.client.IsAuthorized(ctx)
		if err != nil {
			return err
		}
		if !authorized {
			// Re-auth happens outside the engine; keep probing.
			s.setState(StateIdle)
			if err := sleepContext(ctx, time.Duration(cfg.AuthRecheckSeconds)*time.Second); err != nil {
				return err
			}
			continue
		}

		if err := s.PollOnce(ctx); err != nil {
			if errors.Is(err, provider.ErrConnection) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Poll cycle error: %v", err)
		}

		s.pruneEvents(ctx, cfg)

		s.setState(StateIdle)
		if err := sleepContext(ctx, cfg.CycleDelay()); err != nil {
			return err
		}
	}
}

// PollOnce runs a single full cycle over all tracking-enabled targets.
// A connection-kind failure aborts the remainder of the cycle; batches
// committed before it still stand.
func (s *Scheduler) PollOnce(ctx context.Context) error {
	cfg := s.cfg.Current().Poller

	s.setState(StatePolling)
	s.polling.Store(true)
	defer s.polling.Store(false)

	targets, err := s.store.TrackedTargets(ctx)
	if err != nil {
		log.Printf("Failed to load target list: %v", err)
		return nil
	}
	if len(targets) == 0 {
		return nil
	}

	batches := sliceBatches(targets, cfg.BatchSize)
	for i, batch := range batches {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.governor.Admit(ctx, len(batch)); err != nil {
			return err
		}

		now := time.Now().UTC()
		results := Fetch(ctx, s.client, batch)

		floodSeen, connErr := s.commitBatch(ctx, now, results)
		if connErr != nil {
			return connErr
		}

		if i < len(batches)-1 {
			delay := cfg.BatchDelay()
			if floodSeen {
				delay += cfg.FloodDelay()
			}
			if err := sleepContext(ctx, delay); err != nil {
				return err
			}
		}
	}
	return nil
}

// commitBatch plans and persists one batch. Per-target failures are logged
// and skipped; persistence failures leave the batch to be retried on the
// next cycle.
func (s *Scheduler) commitBatch(ctx context.Context, now time.Time, results []Result) (floodSeen bool, connErr error) {
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			ids = append(ids, r.Target.ID)
		}
	}

	open, err := s.store.OpenSessions(ctx, ids)
	if err != nil {
		log.Printf("Failed to fetch open sessions for batch: %v. Batch will be retried next cycle.", err)
		return false, nil
	}

	var changes []store.StagedChange
	var cameOnline []int64
	for _, r := range results {
		if r.Err != nil {
			switch {
			case errors.Is(r.Err, provider.ErrRateLimited):
				floodSeen = true
				log.Printf("Flood control on target %d: %v", r.Target.ID, r.Err)
			case errors.Is(r.Err, provider.ErrConnection):
				connErr = r.Err
			default:
				log.Printf("Lookup failed for target %d: %v", r.Target.ID, r.Err)
			}
			continue
		}

		var openRef *store.OpenSession
		if o, ok := open[r.Target.ID]; ok {
			openRef = &o
		}
		c := Plan(r.Target, r.Entity, openRef, now)
		if c.IsZero() {
			continue
		}
		changes = append(changes, c)
		if c.StatusChanged && c.NewStatus == model.StatusOnline {
			cameOnline = append(cameOnline, r.Target.ID)
		}
	}

	if len(changes) == 0 {
		return floodSeen, connErr
	}

	if err := s.store.ApplyBatch(ctx, now, changes); err != nil {
		log.Printf("Failed to commit batch of %d changes: %v. Batch will be retried next cycle.", len(changes), err)
		return floodSeen, connErr
	}

	if s.notifier != nil {
		for _, id := range cameOnline {
			s.notifier.Dispatch(id)
		}
	}
	return floodSeen, connErr
}

func (s *Scheduler) pruneEvents(ctx context.Context, cfg config.PollerConfig) {
	if cfg.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -cfg.RetentionDays)
	pruned, err := s.store.PruneEvents(ctx, cutoff)
	if err != nil {
		log.Printf("Event retention pruning failed: %v", err)
		return
	}
	if pruned > 0 {
		log.Printf("Pruned %d status events older than %s", pruned, cutoff.Format(time.RFC3339))
	}
}

// sliceBatches partitions targets into batches of at most size each.
func sliceBatches(targets []model.Target, size int) [][]model.Target {
	if size <= 0 {
		size = 1
	}
	var batches [][]model.Target
	for start := 0; start < len(targets); start += size {
		end := start + size
		if end > len(targets) {
			end = len(targets)
		}
		batches = append(batches, targets[start:end])
	}
	return batches
}
