package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"presence-tracker-backend/internal/model"
)

// Store defines the persistence operations the polling engine and the read
// API depend on.
type Store interface {
	DB() *gorm.DB

	// TrackedTargets returns every target with tracking enabled.
	TrackedTargets(ctx context.Context) ([]model.Target, error)

	// OpenSessions fetches the open session (end_time IS NULL) for each of
	// the given targets in a single query.
	OpenSessions(ctx context.Context, targetIDs []int64) (map[int64]OpenSession, error)

	// ApplyBatch commits all staged changes of one batch in one
	// transaction. It either lands completely or not at all.
	ApplyBatch(ctx context.Context, now time.Time, changes []StagedChange) error

	// SessionHistory returns the most recent sessions (open or closed) for
	// a target, newest first.
	SessionHistory(ctx context.Context, targetID int64, limit int) ([]model.Session, error)

	// ClosedSessions returns the most recent closed sessions for a target,
	// newest first.
	ClosedSessions(ctx context.Context, targetID int64, limit int) ([]model.Session, error)

	// PruneEvents deletes status events older than the cutoff and reports
	// how many rows went away.
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) TrackedTargets(ctx context.Context) ([]model.Target, error) {
	var targets []model.Target
	if err := s.db.WithContext(ctx).
		Where("tracking_enabled = ?", true).
		Order("id").
		Find(&targets).Error; err != nil {
		return nil, fmt.Errorf("failed to load tracked targets: %w", err)
	}
	return targets, nil
}

func (s *gormStore) OpenSessions(ctx context.Context, targetIDs []int64) (map[int64]OpenSession, error) {
	result := make(map[int64]OpenSession, len(targetIDs))
	if len(targetIDs) == 0 {
		return result, nil
	}

	var sessions []model.Session
	if err := s.db.WithContext(ctx).
		Where("target_id IN ? AND end_time IS NULL", targetIDs).
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch open sessions: %w", err)
	}

	for _, sess := range sessions {
		result[sess.TargetID] = OpenSession{
			ID:        sess.ID,
			TargetID:  sess.TargetID,
			Status:    sess.Status,
			StartTime: sess.StartTime,
		}
	}
	return result, nil
}

// statusGroup keys the grouped target updates: every target moving to the
// same status with the same last_seen behavior shares one UPDATE.
type statusGroup struct {
	status      model.Status
	setLastSeen bool
}

func (s *gormStore) ApplyBatch(ctx context.Context, now time.Time, changes []StagedChange) error {
	groups := make(map[statusGroup][]int64)
	var opens []model.Session
	var closes []model.Session
	var events []model.StatusEvent
	backfills := make(map[int64]int64)

	for _, c := range changes {
		if c.IsZero() {
			continue
		}

		if c.StatusChanged {
			key := statusGroup{status: c.NewStatus, setLastSeen: c.SetLastSeen}
			groups[key] = append(groups[key], c.TargetID)

			events = append(events, model.StatusEvent{
				TargetID:  c.TargetID,
				Status:    c.NewStatus,
				Timestamp: now,
			})
		}

		if c.OpenSession {
			opens = append(opens, model.Session{
				TargetID:  c.TargetID,
				Status:    model.SessionStatusOnline,
				StartTime: now,
			})
		}

		if c.CloseSessionID != 0 {
			end := now
			closes = append(closes, model.Session{
				ID:              c.CloseSessionID,
				TargetID:        c.TargetID,
				Status:          model.SessionStatusOnline,
				StartTime:       c.SessionStart,
				EndTime:         &end,
				DurationSeconds: int64(now.Sub(c.SessionStart) / time.Second),
			})
		}

		if c.BackfillNumericID != 0 {
			backfills[c.TargetID] = c.BackfillNumericID
		}
	}

	if len(groups) == 0 && len(opens) == 0 && len(closes) == 0 && len(events) == 0 && len(backfills) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, ids := range groups {
			values := map[string]any{"current_status": key.status}
			if key.setLastSeen {
				values["last_seen"] = now
			}
			if err := tx.Model(&model.Target{}).
				Where("id IN ?", ids).
				Updates(values).Error; err != nil {
				return fmt.Errorf("failed to update status for %d targets: %w", len(ids), err)
			}
		}

		if len(closes) > 0 {
			// Rows already exist; the conflict path is the grouped close.
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"end_time", "duration_seconds"}),
			}).Create(&closes).Error; err != nil {
				return fmt.Errorf("failed to close %d sessions: %w", len(closes), err)
			}
		}

		if len(opens) > 0 {
			if err := tx.Create(&opens).Error; err != nil {
				return fmt.Errorf("failed to open %d sessions: %w", len(opens), err)
			}
		}

		if len(events) > 0 {
			if err := tx.Create(&events).Error; err != nil {
				return fmt.Errorf("failed to insert %d status events: %w", len(events), err)
			}
		}

		for targetID, numericID := range backfills {
			if err := tx.Model(&model.Target{}).
				Where("id = ?", targetID).
				Update("numeric_id", numericID).Error; err != nil {
				return fmt.Errorf("failed to back-fill numeric id for target %d: %w", targetID, err)
			}
		}

		return nil
	})
}

func (s *gormStore) SessionHistory(ctx context.Context, targetID int64, limit int) ([]model.Session, error) {
	var sessions []model.Session
	if err := s.db.WithContext(ctx).
		Where("target_id = ?", targetID).
		Order("start_time DESC").
		Limit(limit).
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to load session history for target %d: %w", targetID, err)
	}
	return sessions, nil
}

func (s *gormStore) ClosedSessions(ctx context.Context, targetID int64, limit int) ([]model.Session, error) {
	var sessions []model.Session
	if err := s.db.WithContext(ctx).
		Where("target_id = ? AND end_time IS NOT NULL", targetID).
		Order("start_time DESC").
		Limit(limit).
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to load closed sessions for target %d: %w", targetID, err)
	}
	return sessions, nil
}

func (s *gormStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("timestamp < ?", before).
		Delete(&model.StatusEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune status events: %w", res.Error)
	}
	return res.RowsAffected, nil
}
