package visibility

import (
	"testing"
	"time"

	"signalmarket/internal/models"
)

func TestVisible(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		ageDays int
		want    bool
	}{
		{"today", 0, true},
		{"29 days old", 29, true},
		{"exactly 30 days old", 30, true},
		{"31 days old", 31, false},
		{"90 days old", 90, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := models.Signal{CreatedAt: now.AddDate(0, 0, -tc.ageDays)}
			if got := Visible(sig, now, DefaultWindowDays); got != tc.want {
				t.Fatalf("Visible=%v want=%v", got, tc.want)
			}
		})
	}
}

func TestVisible_IgnoresCloseTime(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	closedAt := now.AddDate(0, 0, -1)
	sig := models.Signal{
		CreatedAt: now.AddDate(0, 0, -40),
		ClosedAt:  &closedAt,
	}
	if Visible(sig, now, DefaultWindowDays) {
		t.Fatalf("a position opened outside the window must age out even if closed recently")
	}
}

func TestFilter(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	in := []models.Signal{
		{ID: "a", CreatedAt: now.AddDate(0, 0, -5)},
		{ID: "b", CreatedAt: now.AddDate(0, 0, -45)},
		{ID: "c", CreatedAt: now.AddDate(0, 0, -29)},
	}
	out := Filter(in, now, 30)
	if len(out) != 2 || out[0].ID != "a" || out[1].ID != "c" {
		t.Fatalf("unexpected filtered set: %+v", out)
	}
}

func TestCutoff_ZeroWindowFallsBackToDefault(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	if got, want := Cutoff(now, 0), now.AddDate(0, 0, -DefaultWindowDays); !got.Equal(want) {
		t.Fatalf("cutoff=%v want=%v", got, want)
	}
}
