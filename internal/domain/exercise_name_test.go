package domain

import "testing"

func TestNormalizeExerciseName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bench Press", "bench press"},
		{"  bench   PRESS ", "bench press"},
		{"Développé Couché", "developpe couche"},
		{"DEVELOPPE couche", "developpe couche"},
		{"squat\t(high bar)", "squat (high bar)"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeExerciseName(tt.in); got != tt.want {
				t.Errorf("NormalizeExerciseName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
