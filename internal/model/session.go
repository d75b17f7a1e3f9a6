package model

import "time"

// SessionStatusOnline is the label stored on online sessions.
const SessionStatusOnline = "ONLINE"

// Session is one continuous online interval for a target. EndTime is nil
// while the session is open; at most one open session exists per target.
// DurationSeconds is fixed when the session closes and never recomputed.
type Session struct {
	ID              int64     `gorm:"primaryKey"`
	TargetID        int64     `gorm:"index;not null"`
	Status          string    `gorm:"size:16;not null"`
	StartTime       time.Time `gorm:"not null;index"`
	EndTime         *time.Time
	DurationSeconds int64 `gorm:"not null;default:0"`
}
