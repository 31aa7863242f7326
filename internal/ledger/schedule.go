package ledger

import "time"

const (
	// FirstWeekAllowance is the standard pool size for resets that fall
	// inside a user's first week.
	FirstWeekAllowance = 5
	// WeeklyAllowance is the standard pool size afterwards.
	WeeklyAllowance = 3

	week = 7 * 24 * time.Hour
)

// NextReset returns the first Monday 00:00 UTC strictly after t.
func NextReset(t time.Time) time.Time {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	days := (int(time.Monday) - int(midnight.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return midnight.AddDate(0, 0, days)
}

// Allowance is the standard pool size granted by a reset at instant at for
// an account that signed up at signupAt.
func Allowance(at, signupAt time.Time) int {
	if at.Before(signupAt.Add(week)) {
		return FirstWeekAllowance
	}
	return WeeklyAllowance
}

// dueReset reports the latest reset boundary at or before now on the weekly
// grid anchored at resetAt, and the boundary after it. ok is false when
// resetAt is still in the future.
func dueReset(resetAt, now time.Time) (boundary, next time.Time, ok bool) {
	if now.Before(resetAt) {
		return time.Time{}, resetAt, false
	}
	steps := now.Sub(resetAt) / week
	boundary = resetAt.Add(steps * week)
	return boundary, boundary.Add(week), true
}
