// Package visibility implements the rolling marketplace window: only signals
// created within the last N days count toward public listings and stats.
package visibility

import (
	"time"

	"signalmarket/internal/models"
)

// DefaultWindowDays is the marketplace default when config does not override it.
const DefaultWindowDays = 30

// Cutoff returns the earliest CreatedAt still inside the window at now.
func Cutoff(now time.Time, windowDays int) time.Time {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return now.UTC().AddDate(0, 0, -windowDays)
}

// Visible reports whether the signal falls inside the rolling window.
// Closed signals are judged by creation time, not close time, so a position
// opened outside the window ages out even if it closed recently.
func Visible(sig models.Signal, now time.Time, windowDays int) bool {
	return !sig.CreatedAt.Before(Cutoff(now, windowDays))
}

// Filter returns the subset of signals inside the window, preserving order.
func Filter(signals []models.Signal, now time.Time, windowDays int) []models.Signal {
	cutoff := Cutoff(now, windowDays)
	out := make([]models.Signal, 0, len(signals))
	for _, sig := range signals {
		if !sig.CreatedAt.Before(cutoff) {
			out = append(out, sig)
		}
	}
	return out
}
