// Package countdown reconstructs a timed countdown from a snapshot taken when
// it was paused. It is the only place elapsed wall-clock time between process
// runs turns into countdown state.
package countdown

import "time"

// Remaining returns the seconds left on a countdown that had
// remainingAtPause seconds when it was captured at pausedAt.
// Whole elapsed seconds are subtracted; the result never drops below zero.
func Remaining(remainingAtPause int, pausedAt, now time.Time) int {
	return RemainingMillis(remainingAtPause, pausedAt.UnixMilli(), now.UnixMilli())
}

// RemainingMillis is Remaining over epoch-millisecond timestamps.
func RemainingMillis(remainingAtPause int, pausedAtMs, nowMs int64) int {
	if remainingAtPause < 0 {
		remainingAtPause = 0
	}
	elapsed := nowMs - pausedAtMs
	if elapsed < 0 {
		elapsed = 0
	}
	left := int64(remainingAtPause) - elapsed/1000
	if left < 0 {
		return 0
	}
	return int(left)
}

// Deadline converts remaining seconds into an absolute deadline from now.
func Deadline(remaining int, now time.Time) time.Time {
	if remaining < 0 {
		remaining = 0
	}
	return now.Add(time.Duration(remaining) * time.Second)
}

// SecondsUntil returns the whole seconds left until deadline, rounded up so a
// partially elapsed second still counts as available.
func SecondsUntil(deadline, now time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
