package domain

import (
	"testing"
	"time"
)

func TestClampRestDays(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-1, 0},
		{0, 0},
		{3, 3},
		{7, 7},
		{8, 7},
		{100, 7},
	}
	for _, tt := range tests {
		if got := ClampRestDays(tt.in); got != tt.want {
			t.Errorf("ClampRestDays(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCalendarDay(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)

	// 23:30 local on March 1 is still March 1, even though it is March 1 16:30 UTC
	late := time.Date(2025, 3, 1, 23, 30, 0, 0, jakarta)
	want := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if got := CalendarDay(late); !got.Equal(want) {
		t.Errorf("CalendarDay(%v) = %v, want %v", late, got, want)
	}

	// 01:00 local on March 2 is March 1 18:00 UTC but calendar day March 2
	early := time.Date(2025, 3, 2, 1, 0, 0, 0, jakarta)
	if got := CalendarDay(early); got.Day() != 2 {
		t.Errorf("CalendarDay(%v) = %v, want day 2", early, got)
	}
}

func TestStreakState_Status(t *testing.T) {
	tests := []struct {
		name  string
		state StreakState
		want  StreakStatus
	}{
		{"never trained", StreakState{}, StreakInactive},
		{"expired", StreakState{CurrentStreak: 0, LongestStreak: 9}, StreakInactive},
		{"active", StreakState{CurrentStreak: 3}, StreakActive},
		{"paused", StreakState{CurrentStreak: 3, IsPaused: true}, StreakPaused},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Status(); got != tt.want {
				t.Errorf("Status() = %v, want %v", got, tt.want)
			}
		})
	}
}
