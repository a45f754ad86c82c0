package schedule

import (
	"math/rand"
	"time"
)

// Window is a resolved absolute time interval, inclusive on both ends.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// In-window polling runs at a uniformly random 5-8 minute cadence. The
// jitter keeps simultaneously active schedules from polling in lockstep and
// avoids a detectable fixed rhythm against the remote source.
const (
	pollBase   = 5 * time.Minute
	pollJitter = 3 * time.Minute
)

var pollDelay = func() time.Duration {
	return pollBase + time.Duration(rand.Int63n(int64(pollJitter)))
}

// Calculator decides window membership and computes the next poll time for
// one kind of schedule. CheckDue applies status transitions on s as a side
// effect and reports whether a check should be dispatched right now.
type Calculator interface {
	CheckDue(s *Schedule, now time.Time) (bool, error)
	NextCheck(s *Schedule, now time.Time) error
}

// CalculatorFor picks the calculator matching the schedule's window
// semantics.
func CalculatorFor(s *Schedule) Calculator {
	if s.Daily {
		return DailyCalculator{}
	}
	return RegularCalculator{}
}

// DailyCalculator handles "HH:MM" windows that recur every calendar day,
// including windows that span midnight (end clock earlier than start clock).
type DailyCalculator struct{}

// ResolveWindow anchors the schedule's clock window around now. For a
// spanning window, a now before the start clock belongs to yesterday's
// window extending into today; otherwise today's window extends into
// tomorrow.
func (DailyCalculator) ResolveWindow(s *Schedule, now time.Time) (Window, error) {
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return Window{}, err
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return Window{}, err
	}

	w := Window{Start: start.On(now), End: end.On(now)}
	if end.Before(start) { // spans midnight
		if ClockOf(now).Before(start) {
			w.Start = w.Start.AddDate(0, 0, -1)
		} else {
			w.End = w.End.AddDate(0, 0, 1)
		}
	}
	return w, nil
}

func (c DailyCalculator) CheckDue(s *Schedule, now time.Time) (bool, error) {
	w, err := c.ResolveWindow(s, now)
	if err != nil {
		return false, err
	}

	switch {
	case w.Contains(now):
		if s.Status == StatusDownloadStarted {
			return false, nil
		}
		wasPending := s.Status == StatusPending
		s.Status = StatusActive

		if s.NextCheck != nil && s.NextCheck.After(w.End) {
			// Stale from a previous window resolution; recompute without
			// firing.
			return false, c.NextCheck(s, now)
		}
		if wasPending || s.NextCheck == nil || !now.Before(*s.NextCheck) {
			return true, nil
		}
		return false, nil

	case now.Before(w.Start):
		s.Status = StatusPending
		if s.NextCheck == nil || !s.NextCheck.Equal(w.Start) {
			return false, c.NextCheck(s, now)
		}
		return false, nil

	default: // window passed, reset for the next occurrence
		if s.Status == StatusActive || s.Status == StatusDownloadStarted {
			s.Status = StatusPending
			s.LastCheck = nil
			s.ActiveBrowserID = ""
			s.ManualStop = false
			return false, c.NextCheck(s, now)
		}
		// A pending schedule whose window elapsed unobserved (process was
		// down) still needs its pointer moved to the next occurrence.
		if s.NextCheck == nil || !s.NextCheck.After(now) {
			return false, c.NextCheck(s, now)
		}
		return false, nil
	}
}

func (c DailyCalculator) NextCheck(s *Schedule, now time.Time) error {
	w, err := c.ResolveWindow(s, now)
	if err != nil {
		return err
	}

	var next time.Time
	switch {
	case now.Before(w.Start):
		next = w.Start
	case w.Contains(now):
		next = now.Add(pollDelay())
		if next.After(w.End) {
			next = w.End
		}
	default:
		// Window passed. For a spanning window observed before today's
		// start clock, the next occurrence is still today; otherwise
		// tomorrow.
		start, _ := ParseClock(s.StartTime)
		end, _ := ParseClock(s.EndTime)
		if end.Before(start) && ClockOf(now).Before(start) {
			next = start.On(now)
		} else {
			next = start.On(now.AddDate(0, 0, 1))
		}
	}

	s.NextCheck = &next
	return nil
}

// RegularCalculator handles absolute RFC 3339 windows that occur once or
// repeat weekly. It never fires past the window end; rescheduling and
// completion are the execution loop's job.
type RegularCalculator struct{}

func (c RegularCalculator) CheckDue(s *Schedule, now time.Time) (bool, error) {
	w, err := s.AbsoluteWindow()
	if err != nil {
		return false, err
	}

	if now.After(w.End) {
		return false, nil
	}

	if w.Contains(now) {
		if s.Status == StatusDownloadStarted {
			return false, nil
		}
		wasPending := s.Status == StatusPending
		s.Status = StatusActive

		if s.NextCheck != nil && s.NextCheck.After(w.End) {
			return false, c.NextCheck(s, now)
		}
		if wasPending || s.NextCheck == nil || !now.Before(*s.NextCheck) {
			return true, nil
		}
		return false, nil
	}

	// Before the window.
	s.Status = StatusPending
	if s.NextCheck == nil || !s.NextCheck.Equal(w.Start) {
		return false, c.NextCheck(s, now)
	}
	return false, nil
}

func (c RegularCalculator) NextCheck(s *Schedule, now time.Time) error {
	w, err := s.AbsoluteWindow()
	if err != nil {
		return err
	}

	switch {
	case now.Before(w.Start):
		next := w.Start
		s.NextCheck = &next
	case w.Contains(now):
		next := now.Add(pollDelay())
		if next.After(w.End) {
			next = w.End
		}
		s.NextCheck = &next
	default:
		s.NextCheck = nil // rescheduled or completed by the loop
	}
	return nil
}
