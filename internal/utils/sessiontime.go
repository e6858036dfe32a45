package utils

import (
	"fmt"
	"time"
)

// ValidateJoinWindow checks whether now falls inside the joinable window of a
// booking: from grace before the booked start until the booked end. Returns a
// user-facing message when joining is not allowed.
func ValidateJoinWindow(start, end time.Time, grace time.Duration, now time.Time) (bool, string) {
	opens := start.Add(-grace)
	if now.Before(opens) {
		wait := start.Sub(now).Round(time.Minute)
		return false, fmt.Sprintf("This session starts at %s. You can join up to %d minutes early (in about %s).",
			start.Format("3:04 PM"), int(grace.Minutes()), wait)
	}
	if now.After(end) {
		return false, "This session's booked time has passed."
	}
	return true, ""
}
