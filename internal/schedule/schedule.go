package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a schedule.
type Status string

const (
	// StatusPending means the window has not been entered yet (or was reset).
	StatusPending Status = "pending"
	// StatusActive means the window is open and checks are being dispatched.
	StatusActive Status = "active"
	// StatusDownloadStarted means a dispatched check observed a download in
	// progress; polling is suspended while it stays live.
	StatusDownloadStarted Status = "download_started"
	// StatusCompleted is terminal for one-shot schedules only.
	StatusCompleted Status = "completed"
)

// Schedule is one watched time window over a live source. StartTime and
// EndTime are "HH:MM" wall-clock strings when Daily is set, RFC 3339
// timestamps otherwise.
type Schedule struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Name       string `json:"name,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Framerate  string `json:"framerate,omitempty"`
	Format     string `json:"format,omitempty"`

	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Daily     bool   `json:"daily"`
	Repeat    bool   `json:"repeat"`

	Status          Status     `json:"status"`
	NextCheck       *time.Time `json:"next_check,omitempty"`
	LastCheck       *time.Time `json:"last_check,omitempty"`
	ActiveBrowserID string     `json:"active_browser_id,omitempty"`
	ManualStop      bool       `json:"manual_stop,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the record's shape. Called on load and on add/update so a
// typo in a time string surfaces immediately instead of on some future tick.
func (s *Schedule) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("schedule %s: url is required", s.ID)
	}
	if s.Daily {
		if _, err := ParseClock(s.StartTime); err != nil {
			return fmt.Errorf("schedule %s: start_time: %w", s.ID, err)
		}
		if _, err := ParseClock(s.EndTime); err != nil {
			return fmt.Errorf("schedule %s: end_time: %w", s.ID, err)
		}
		return nil
	}
	start, err := time.Parse(time.RFC3339, s.StartTime)
	if err != nil {
		return fmt.Errorf("schedule %s: start_time: %w", s.ID, err)
	}
	end, err := time.Parse(time.RFC3339, s.EndTime)
	if err != nil {
		return fmt.Errorf("schedule %s: end_time: %w", s.ID, err)
	}
	if !end.After(start) {
		return fmt.Errorf("schedule %s: end_time must be after start_time", s.ID)
	}
	return nil
}

// Normalize fills documented defaults for fields absent from a persisted
// record.
func (s *Schedule) Normalize() {
	if s.Status == "" {
		s.Status = StatusPending
	}
	if s.Resolution == "" {
		s.Resolution = "1080p"
	}
	if s.Framerate == "" {
		s.Framerate = "any"
	}
	if s.Format == "" {
		s.Format = "mp4"
	}
}

// AbsoluteWindow resolves the window of a non-daily schedule.
func (s *Schedule) AbsoluteWindow() (Window, error) {
	start, err := time.Parse(time.RFC3339, s.StartTime)
	if err != nil {
		return Window{}, fmt.Errorf("parse start_time %q: %w", s.StartTime, err)
	}
	end, err := time.Parse(time.RFC3339, s.EndTime)
	if err != nil {
		return Window{}, fmt.Errorf("parse end_time %q: %w", s.EndTime, err)
	}
	return Window{Start: start, End: end}, nil
}

// Clone returns a deep copy so callers can hand records across goroutines
// without aliasing the engine's locked state.
func (s *Schedule) Clone() *Schedule {
	out := *s
	if s.NextCheck != nil {
		t := *s.NextCheck
		out.NextCheck = &t
	}
	if s.LastCheck != nil {
		t := *s.LastCheck
		out.LastCheck = &t
	}
	return &out
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses an "HH:MM" string.
func ParseClock(v string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid clock string %q", v)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, fmt.Errorf("invalid hour in clock string %q", v)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("invalid minute in clock string %q", v)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// ClockOf extracts the wall-clock time of day from t.
func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

// Before reports whether c is strictly earlier in the day than o.
func (c Clock) Before(o Clock) bool {
	if c.Hour != o.Hour {
		return c.Hour < o.Hour
	}
	return c.Minute < o.Minute
}

// On anchors the clock to the calendar day of t, in t's location.
func (c Clock) On(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, 0, 0, t.Location())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}
