package model

import (
	"fmt"
	"time"
)

// PositionFix is a single geolocation sample. Fixes are ephemeral: only the
// most recent one is held for heartbeat retry, nothing is persisted.
type PositionFix struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"`
	CapturedAt time.Time `json:"captured_at"`
}

// Validate checks coordinate ranges and that the fix carries a capture time.
func (f PositionFix) Validate() error {
	if f.Latitude < -90 || f.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", f.Latitude)
	}
	if f.Longitude < -180 || f.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", f.Longitude)
	}
	if f.Accuracy < 0 {
		return fmt.Errorf("accuracy %v must be non-negative", f.Accuracy)
	}
	if f.CapturedAt.IsZero() {
		return fmt.Errorf("captured_at is required")
	}
	return nil
}

// FreshWithin reports whether the fix was captured within window of now.
// Activation requires a fresh fix so the first transmitted position is the
// reporter's actual position, not a stale cached sample.
func (f PositionFix) FreshWithin(window time.Duration, now time.Time) bool {
	if f.CapturedAt.IsZero() {
		return false
	}
	return now.Sub(f.CapturedAt) <= window
}
