// Package heatmap derives hourly activity buckets from session history.
package heatmap

import (
	"time"

	"presence-tracker-backend/internal/model"
)

// BucketCap saturates bucket values for display proportionality. It is a
// presentation clamp, not a data constraint.
const BucketCap = 20

// Buckets walks each closed session hour by hour and increments the bucket
// of every hour the session touches. A session spanning 23:40–00:20
// increments both the 23 and the 0 bucket. Open sessions (nil end) are
// skipped.
func Buckets(sessions []model.Session) [24]int {
	var buckets [24]int
	for _, s := range sessions {
		if s.EndTime == nil || !s.EndTime.After(s.StartTime) {
			continue
		}
		end := *s.EndTime
		for h := s.StartTime.Truncate(time.Hour); h.Before(end); h = h.Add(time.Hour) {
			if buckets[h.Hour()] < BucketCap {
				buckets[h.Hour()]++
			}
		}
	}
	return buckets
}
