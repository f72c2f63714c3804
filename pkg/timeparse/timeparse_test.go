package timeparse

import (
	"errors"
	"testing"
	"time"
)

func TestAtVariants(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{name: "minutes", raw: "5m", want: now.Add(5 * time.Minute)},
		{name: "hours", raw: "2h", want: now.Add(2 * time.Hour)},
		{name: "today future", raw: "15:30", want: time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)},
		{name: "today passed rolls over", raw: "09:00", want: time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)},
		{name: "tomorrow with time", raw: "tomorrow 10:00", want: time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)},
		{name: "tomorrow bare", raw: "tomorrow", want: now.AddDate(0, 0, 1)},
		{name: "case and spacing", raw: "  Tomorrow 10:00 ", want: time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := At(now, tt.raw)
			if err != nil {
				t.Fatalf("At(%q) error: %v", tt.raw, err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("At(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestAtInvalid(t *testing.T) {
	t.Parallel()
	now := time.Now()
	for _, raw := range []string{"", "soon", "25:00", "10:75", "-5m", "0h", "m", "tomorrow ten"} {
		if _, err := At(now, raw); !errors.Is(err, ErrBadFormat) {
			t.Fatalf("At(%q): expected ErrBadFormat, got %v", raw, err)
		}
	}
}
