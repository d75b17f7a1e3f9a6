package poller

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"presence-tracker-backend/config"
	"presence-tracker-backend/internal/model"
	"presence-tracker-backend/internal/provider"
	"presence-tracker-backend/internal/store"
)

// fakeStore keeps everything in memory and records the batches it applied.
type fakeStore struct {
	targets []model.Target
	open    map[int64]store.OpenSession
	applied [][]store.StagedChange
	pruned  []time.Time

	openErr  error
	applyErr error
}

func (f *fakeStore) DB() *gorm.DB { return nil }

func (f *fakeStore) TrackedTargets(ctx context.Context) ([]model.Target, error) {
	return f.targets, nil
}

func (f *fakeStore) OpenSessions(ctx context.Context, targetIDs []int64) (map[int64]store.OpenSession, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	result := make(map[int64]store.OpenSession)
	for _, id := range targetIDs {
		if o, ok := f.open[id]; ok {
			result[id] = o
		}
	}
	return result, nil
}

func (f *fakeStore) ApplyBatch(ctx context.Context, now time.Time, changes []store.StagedChange) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, changes)
	return nil
}

func (f *fakeStore) SessionHistory(ctx context.Context, targetID int64, limit int) ([]model.Session, error) {
	return nil, nil
}

func (f *fakeStore) ClosedSessions(ctx context.Context, targetID int64, limit int) ([]model.Session, error) {
	return nil, nil
}

func (f *fakeStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	f.pruned = append(f.pruned, before)
	return 0, nil
}

type fakeNotifier struct {
	dispatched []int64
}

func (f *fakeNotifier) Dispatch(targetID int64) {
	f.dispatched = append(f.dispatched, targetID)
}

func testHolder(batchSize int) *config.Holder {
	return config.NewHolder(&config.Config{
		Poller: config.PollerConfig{
			Enabled:           true,
			BatchSize:         batchSize,
			RateCeilingPerMin: 1000,
		},
	})
}

func TestSliceBatches(t *testing.T) {
	targets := make([]model.Target, 7)
	for i := range targets {
		targets[i].ID = int64(i + 1)
	}

	batches := sliceBatches(targets, 3)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 3)
	assert.Len(t, batches[2], 1)
	assert.Equal(t, int64(7), batches[2][0].ID)

	assert.Len(t, sliceBatches(targets, 100), 1)
	assert.Empty(t, sliceBatches(nil, 3))
	assert.Len(t, sliceBatches(targets, 0), 7, "a non-positive size degrades to one target per batch")
}

func TestNextBackoff(t *testing.T) {
	max := 60 * time.Second
	assert.Equal(t, 4*time.Second, nextBackoff(2*time.Second, max))
	assert.Equal(t, 64*time.Second, nextBackoff(32*time.Second, 120*time.Second))
	assert.Equal(t, max, nextBackoff(40*time.Second, max))
}

func TestPollOnce_CommitsTransitionsAndNotifies(t *testing.T) {
	st := &fakeStore{
		targets: []model.Target{
			{ID: 1, NumericID: int64p(10), CurrentStatus: model.StatusOffline, TrackingEnabled: true},
			{ID: 2, NumericID: int64p(20), CurrentStatus: model.StatusOffline, TrackingEnabled: true},
		},
	}
	client := &fakeClient{
		entities: map[int64]provider.Entity{
			10: {ID: 10, Status: model.StatusOnline},
			20: {ID: 20, Status: model.StatusOffline},
		},
	}
	notifier := &fakeNotifier{}

	s := NewScheduler(testHolder(15), st, client, notifier)
	require.NoError(t, s.PollOnce(context.Background()))

	require.Len(t, st.applied, 1)
	require.Len(t, st.applied[0], 1, "the unchanged target must not be written")
	change := st.applied[0][0]
	assert.Equal(t, int64(1), change.TargetID)
	assert.True(t, change.OpenSession)

	assert.Equal(t, []int64{1}, notifier.dispatched)
}

func TestPollOnce_BatchesWholeTargetList(t *testing.T) {
	st := &fakeStore{}
	client := &fakeClient{entities: map[int64]provider.Entity{}}
	for i := int64(1); i <= 5; i++ {
		st.targets = append(st.targets, model.Target{
			ID: i, NumericID: int64p(i * 10), CurrentStatus: model.StatusOffline, TrackingEnabled: true,
		})
		client.entities[i*10] = provider.Entity{ID: i * 10, Status: model.StatusOnline}
	}

	s := NewScheduler(testHolder(2), st, client, nil)
	require.NoError(t, s.PollOnce(context.Background()))

	assert.Equal(t, 5, client.resolveCount(), "every target is looked up exactly once per cycle")
	require.Len(t, st.applied, 3, "one commit per batch")
}

func TestPollOnce_ConnectionErrorAbortsCycle(t *testing.T) {
	st := &fakeStore{
		targets: []model.Target{
			{ID: 1, NumericID: int64p(10), CurrentStatus: model.StatusOffline, TrackingEnabled: true},
			{ID: 2, NumericID: int64p(20), CurrentStatus: model.StatusOffline, TrackingEnabled: true},
			{ID: 3, NumericID: int64p(30), CurrentStatus: model.StatusOffline, TrackingEnabled: true},
		},
	}
	client := &fakeClient{
		entities: map[int64]provider.Entity{
			30: {ID: 30, Status: model.StatusOnline},
		},
		errs: map[int64]error{
			10: fmt.Errorf("%w: gateway unreachable", provider.ErrConnection),
		},
	}

	s := NewScheduler(testHolder(2), st, client, nil)
	err := s.PollOnce(context.Background())
	assert.ErrorIs(t, err, provider.ErrConnection)
	assert.Equal(t, 2, client.resolveCount(), "the second batch must not run after a connection failure")
}

func TestPollOnce_PersistenceFailureDoesNotAbort(t *testing.T) {
	st := &fakeStore{
		targets: []model.Target{
			{ID: 1, NumericID: int64p(10), CurrentStatus: model.StatusOffline, TrackingEnabled: true},
		},
		applyErr: fmt.Errorf("database is locked"),
	}
	client := &fakeClient{
		entities: map[int64]provider.Entity{
			10: {ID: 10, Status: model.StatusOnline},
		},
	}
	notifier := &fakeNotifier{}

	s := NewScheduler(testHolder(15), st, client, notifier)
	require.NoError(t, s.PollOnce(context.Background()))
	assert.Empty(t, notifier.dispatched, "no pushes for a batch that did not commit")
}

func TestPollOnce_ResolutionFailureSkipsOnlyThatTarget(t *testing.T) {
	st := &fakeStore{
		targets: []model.Target{
			{ID: 1, NumericID: int64p(10), CurrentStatus: model.StatusOffline, TrackingEnabled: true},
			{ID: 2, NumericID: int64p(20), CurrentStatus: model.StatusOffline, TrackingEnabled: true},
		},
	}
	client := &fakeClient{
		entities: map[int64]provider.Entity{
			20: {ID: 20, Status: model.StatusOnline},
		},
		errs: map[int64]error{
			10: fmt.Errorf("%w: deleted account", provider.ErrResolution),
		},
	}

	s := NewScheduler(testHolder(15), st, client, nil)
	require.NoError(t, s.PollOnce(context.Background()))

	require.Len(t, st.applied, 1)
	require.Len(t, st.applied[0], 1)
	assert.Equal(t, int64(2), st.applied[0][0].TargetID)
}

func TestSchedulerState(t *testing.T) {
	s := NewScheduler(testHolder(15), &fakeStore{}, &fakeClient{}, nil)
	assert.Equal(t, StateDisconnected, s.State())
	assert.False(t, s.Polling())

	require.NoError(t, s.PollOnce(context.Background()))
	assert.Equal(t, StatePolling, s.State())
	assert.False(t, s.Polling(), "the in-flight flag clears once the cycle ends")
}
