package schedule

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	if err != nil {
		t.Fatalf("ParseClock: %v", err)
	}
	if c.Hour != 9 || c.Minute != 30 {
		t.Fatalf("ParseClock: got %v", c)
	}

	for _, bad := range []string{"", "930", "24:00", "12:60", "ab:cd", "12:34:56"} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestClockOnAndBefore(t *testing.T) {
	day := time.Date(2024, 6, 15, 18, 45, 12, 0, time.UTC)
	c := Clock{Hour: 7, Minute: 5}

	anchored := c.On(day)
	want := time.Date(2024, 6, 15, 7, 5, 0, 0, time.UTC)
	if !anchored.Equal(want) {
		t.Fatalf("On: got %v, want %v", anchored, want)
	}

	if !c.Before(Clock{Hour: 7, Minute: 6}) {
		t.Fatal("07:05 should be before 07:06")
	}
	if c.Before(Clock{Hour: 7, Minute: 5}) {
		t.Fatal("07:05 should not be before itself")
	}
	if c.Before(Clock{Hour: 6, Minute: 59}) {
		t.Fatal("07:05 should not be before 06:59")
	}
}

func TestValidate_Daily(t *testing.T) {
	s := &Schedule{ID: "s1", URL: "https://example.com/live", Daily: true, StartTime: "22:00", EndTime: "01:00"}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	s.EndTime = "25:00"
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for bad end clock")
	}

	s.EndTime = "01:00"
	s.URL = " "
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestValidate_Regular(t *testing.T) {
	s := &Schedule{
		ID:        "s1",
		URL:       "https://example.com/live",
		StartTime: "2024-06-15T10:00:00Z",
		EndTime:   "2024-06-15T12:00:00Z",
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	s.EndTime = s.StartTime
	if err := s.Validate(); err == nil {
		t.Fatal("expected error when end equals start")
	}

	s.EndTime = "15 June 2024"
	if err := s.Validate(); err == nil {
		t.Fatal("expected error for non-RFC3339 end")
	}
}

func TestNormalizeDefaults(t *testing.T) {
	s := &Schedule{}
	s.Normalize()

	if s.Status != StatusPending {
		t.Fatalf("status: got %s", s.Status)
	}
	if s.Resolution != "1080p" || s.Framerate != "any" || s.Format != "mp4" {
		t.Fatalf("defaults: got %s/%s/%s", s.Resolution, s.Framerate, s.Format)
	}

	// Existing values are left alone.
	s2 := &Schedule{Status: StatusActive, Resolution: "720p"}
	s2.Normalize()
	if s2.Status != StatusActive || s2.Resolution != "720p" {
		t.Fatalf("overwrote existing values: %s/%s", s2.Status, s2.Resolution)
	}
}

func TestCloneIsDeep(t *testing.T) {
	next := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	s := &Schedule{ID: "s1", NextCheck: &next}

	c := s.Clone()
	*c.NextCheck = c.NextCheck.Add(time.Hour)

	if !s.NextCheck.Equal(next) {
		t.Fatal("mutating the clone leaked into the original")
	}
}
