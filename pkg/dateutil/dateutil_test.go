package dateutil

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-14")
	if err != nil {
		t.Fatalf("ParseDate returned error: %v", err)
	}
	if d.Year() != 2025 || d.Month() != time.March || d.Day() != 14 {
		t.Errorf("unexpected date: %v", d)
	}
	if d.Hour() != 0 || d.Minute() != 0 {
		t.Errorf("expected midnight, got %v", d)
	}
}

func TestParseDate_Invalid(t *testing.T) {
	for _, s := range []string{"", "14-03-2025", "2025/03/14", "not-a-date"} {
		if _, err := ParseDate(s); err == nil {
			t.Errorf("ParseDate(%q) expected error", s)
		}
	}
}

func TestDateOnly(t *testing.T) {
	in := time.Date(2025, 6, 1, 17, 45, 30, 999, time.Local)
	got := DateOnly(in)
	want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("DateOnly = %v, want %v", got, want)
	}
}

func TestEndOfDay(t *testing.T) {
	in := time.Date(2025, 6, 1, 9, 0, 0, 0, time.Local)
	got := EndOfDay(in)
	want := time.Date(2025, 6, 2, 0, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("EndOfDay = %v, want %v", got, want)
	}
}

func TestHoursUntil(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	if h := HoursUntil(now, now.Add(36*time.Hour)); h != 36 {
		t.Errorf("HoursUntil future = %d, want 36", h)
	}
	if h := HoursUntil(now, now.Add(-5*time.Hour)); h != -5 {
		t.Errorf("HoursUntil past = %d, want -5", h)
	}
}

func TestAt(t *testing.T) {
	day := time.Date(2025, 6, 1, 23, 59, 0, 0, time.Local)
	got := At(day, 6, 30)
	want := time.Date(2025, 6, 1, 6, 30, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("At = %v, want %v", got, want)
	}
}
