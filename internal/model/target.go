package model

import "time"

// Target represents a tracked external account.
//
// A target may be registered by numeric provider id, by phone number, or by
// handle. NumericID is back-filled from the provider on the first successful
// lookup when the target was registered by phone or handle.
type Target struct {
	ID              int64  `gorm:"primaryKey"`
	NumericID       *int64 `gorm:"uniqueIndex"`
	Phone           string `gorm:"size:32"`
	Handle          string `gorm:"size:64"`
	DisplayName     string `gorm:"size:256;not null"`
	CurrentStatus   Status `gorm:"size:16;not null;default:unknown"`
	LastSeen        *time.Time
	TrackingEnabled bool `gorm:"not null;default:true"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	// Associations
	Sessions []Session     `gorm:"foreignKey:TargetID;constraint:OnDelete:CASCADE"`
	Events   []StatusEvent `gorm:"foreignKey:TargetID;constraint:OnDelete:CASCADE"`
}
