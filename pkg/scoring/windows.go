package scoring

import "time"

// Window is one rolling time range scores are computed over. Momentum
// compares the two most recent MomentumSlice-sized halves of the
// window (the slice for the longest window is capped rather than a
// true half, matching how the scoreboard is tuned).
type Window struct {
	Name          string
	Duration      time.Duration
	MomentumSlice time.Duration
}

// Canonical window names.
const (
	WindowNow = "now"
	Window24h = "24h"
	Window7d  = "7d"
)

// DefaultWindows returns the standard three windows.
func DefaultWindows() []Window {
	return []Window{
		{Name: WindowNow, Duration: 6 * time.Hour, MomentumSlice: 3 * time.Hour},
		{Name: Window24h, Duration: 24 * time.Hour, MomentumSlice: 12 * time.Hour},
		{Name: Window7d, Duration: 7 * 24 * time.Hour, MomentumSlice: 24 * time.Hour},
	}
}

// DefaultMicroMomentumSlice is the fixed short slice used to detect
// acceleration inside any window.
const DefaultMicroMomentumSlice = 60 * time.Minute

// Shortest reports whether w has the smallest duration among windows.
func Shortest(w Window, windows []Window) bool {
	for _, other := range windows {
		if other.Duration < w.Duration {
			return false
		}
	}
	return true
}

// Longest reports whether w has the largest duration among windows.
func Longest(w Window, windows []Window) bool {
	for _, other := range windows {
		if other.Duration > w.Duration {
			return false
		}
	}
	return true
}
