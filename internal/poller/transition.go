package poller

import (
	"time"

	"presence-tracker-backend/internal/model"
	"presence-tracker-backend/internal/provider"
	"presence-tracker-backend/internal/store"
)

// Plan compares a target's stored status against a freshly fetched entity
// and stages the resulting writes. It performs no I/O; the bulk writer
// turns the staged changes of a whole batch into grouped statements.
//
// open is the target's currently open session, or nil. now becomes the
// timestamp of any event, open, or close staged here.
func Plan(target model.Target, ent provider.Entity, open *store.OpenSession, now time.Time) store.StagedChange {
	c := store.StagedChange{
		TargetID:  target.ID,
		OldStatus: target.CurrentStatus,
		NewStatus: target.CurrentStatus,
	}

	// Numeric-id back-fill is independent of status logic.
	if (target.NumericID == nil || *target.NumericID == 0) && ent.ID != 0 {
		c.BackfillNumericID = ent.ID
	}

	fetched := ent.Status
	if !fetched.Valid() {
		fetched = model.StatusUnknown
	}

	// Unchanged status stages nothing; re-polling is idempotent.
	if fetched == target.CurrentStatus {
		return c
	}

	c.StatusChanged = true
	c.NewStatus = fetched

	if fetched == model.StatusOnline {
		// Guard against duplicate opens when a stale read slips through.
		if open == nil {
			c.OpenSession = true
		}
		return c
	}

	// Leaving online pins last_seen to this observation.
	if target.CurrentStatus == model.StatusOnline {
		c.SetLastSeen = true
	}
	// Close any open session once the target is no longer online, even if
	// the stored status had drifted; a target never keeps more than one
	// open session past the next observation.
	if open != nil {
		c.CloseSessionID = open.ID
		c.SessionStart = open.StartTime
	}
	return c
}
