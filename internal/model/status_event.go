package model

import "time"

// StatusEvent is one row of the append-only transition log. Events are
// written whenever an observed status differs from the stored one,
// independent of session boundaries, and are only ever removed by
// retention pruning.
type StatusEvent struct {
	ID        int64     `gorm:"primaryKey"`
	TargetID  int64     `gorm:"index;not null"`
	Status    Status    `gorm:"size:16;not null"`
	Timestamp time.Time `gorm:"not null;index"`
}
