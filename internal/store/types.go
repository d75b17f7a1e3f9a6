package store

import (
	"time"

	"presence-tracker-backend/internal/model"
)

// OpenSession is the projection of a currently open session used when
// deciding closes: just enough to build the grouped close statement.
type OpenSession struct {
	ID        int64
	TargetID  int64
	Status    string
	StartTime time.Time
}

// StagedChange is the transition engine's verdict for one target in one
// batch. It describes writes without performing any; ApplyBatch turns a
// whole batch of these into a small fixed number of grouped statements.
type StagedChange struct {
	TargetID  int64
	OldStatus model.Status
	NewStatus model.Status

	// StatusChanged gates the status update and the event row. When false
	// the change is a no-op except for a possible numeric-id back-fill.
	StatusChanged bool

	// OpenSession stages a new session starting at the batch timestamp.
	OpenSession bool

	// CloseSessionID, when non-zero, stages closing that session with
	// end = batch timestamp and duration = end - SessionStart.
	CloseSessionID int64
	SessionStart   time.Time

	// SetLastSeen marks a transition out of online; last_seen is updated
	// only on those.
	SetLastSeen bool

	// BackfillNumericID, when non-zero, records the provider id for a
	// target registered by phone or handle.
	BackfillNumericID int64
}

// IsZero reports whether the change stages no writes at all.
func (c StagedChange) IsZero() bool {
	return !c.StatusChanged && !c.OpenSession && c.CloseSessionID == 0 && c.BackfillNumericID == 0
}
