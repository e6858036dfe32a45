package utils

import (
	"strings"
	"testing"
	"time"
)

func TestValidateJoinWindow(t *testing.T) {
	start := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	grace := 10 * time.Minute

	tests := []struct {
		name    string
		now     time.Time
		canJoin bool
	}{
		{"well before start", start.Add(-2 * time.Hour), false},
		{"just before grace opens", start.Add(-11 * time.Minute), false},
		{"inside grace", start.Add(-5 * time.Minute), true},
		{"at start", start, true},
		{"mid session", start.Add(30 * time.Minute), true},
		{"after end", end.Add(time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canJoin, msg := ValidateJoinWindow(start, end, grace, tt.now)
			if canJoin != tt.canJoin {
				t.Errorf("canJoin = %v, want %v", canJoin, tt.canJoin)
			}
			if !canJoin && msg == "" {
				t.Error("rejection should carry a user-facing message")
			}
		})
	}
}

func TestValidateJoinWindowWaitUsesGivenClock(t *testing.T) {
	start := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	// The wait estimate must come from the caller's clock, not the wall
	// clock, or the message disagrees with the decision.
	_, msg := ValidateJoinWindow(start, start.Add(time.Hour), 10*time.Minute, start.Add(-2*time.Hour))
	if !strings.Contains(msg, "in about 2h0m0s") {
		t.Errorf("wait estimate not derived from the passed clock: %q", msg)
	}
}
