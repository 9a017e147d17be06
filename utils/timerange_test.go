package utils

import (
	"testing"
	"time"
)

func TestServiceEpochDefault(t *testing.T) {
	t.Setenv("INITIAL_DATE", "")

	got := ServiceEpoch()
	want := time.Date(2025, time.April, 27, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("epoch = %v, want %v", got, want)
	}
}

func TestServiceEpochOverride(t *testing.T) {
	t.Setenv("INITIAL_DATE", "2024-12-01")

	got := ServiceEpoch()
	want := time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("epoch = %v, want %v", got, want)
	}
}

func TestParseTimeRangeClamping(t *testing.T) {
	t.Setenv("INITIAL_DATE", "")
	epoch := ServiceEpoch()

	tests := []struct {
		name     string
		startRaw string
		endRaw   string
		check    func(t *testing.T, start, end time.Time)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, start, end time.Time) {
				if !start.Equal(epoch) {
					t.Errorf("start = %v, want epoch", start)
				}
				if time.Since(end) > time.Minute {
					t.Errorf("end = %v, want ~now", end)
				}
			},
		},
		{
			name:     "start before epoch pulled forward",
			startRaw: "2020-01-01",
			check: func(t *testing.T, start, _ time.Time) {
				if !start.Equal(epoch) {
					t.Errorf("start = %v, want clamped to epoch", start)
				}
			},
		},
		{
			name:   "end in the future pulled back",
			endRaw: "2099-01-01",
			check: func(t *testing.T, _, end time.Time) {
				if time.Since(end) > time.Minute {
					t.Errorf("end = %v, want clamped to ~now", end)
				}
			},
		},
		{
			name:     "valid range kept",
			startRaw: "2025-05-01T00:00:00Z",
			endRaw:   "2025-05-02T00:00:00Z",
			check: func(t *testing.T, start, end time.Time) {
				if !start.Equal(time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)) {
					t.Errorf("start = %v", start)
				}
				if !end.Equal(time.Date(2025, time.May, 2, 0, 0, 0, 0, time.UTC)) {
					t.Errorf("end = %v", end)
				}
			},
		},
		{
			name:     "garbage falls back to defaults",
			startRaw: "not-a-date",
			endRaw:   "also-not-a-date",
			check: func(t *testing.T, start, end time.Time) {
				if !start.Equal(epoch) {
					t.Errorf("start = %v, want epoch", start)
				}
				if time.Since(end) > time.Minute {
					t.Errorf("end = %v, want ~now", end)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := ParseTimeRange(tt.startRaw, tt.endRaw)
			tt.check(t, start, end)
		})
	}
}
