package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/streamwatch/streamwatch/internal/pkg/logs"
	"github.com/streamwatch/streamwatch/internal/schedule"
)

// AddRequest carries the caller-supplied fields of a new schedule.
// Everything else (id, status, timestamps) is assigned here.
type AddRequest struct {
	URL        string `json:"url"`
	Name       string `json:"name"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Daily      bool   `json:"daily"`
	Repeat     bool   `json:"repeat"`
	Resolution string `json:"resolution"`
	Framerate  string `json:"framerate"`
	Format     string `json:"format"`
}

// Add validates, normalizes and registers a new schedule, computes its
// first next_check and persists. The returned copy is safe to mutate.
func (e *Engine) Add(ctx context.Context, req AddRequest) (*schedule.Schedule, error) {
	now := e.clock.Now()
	s := &schedule.Schedule{
		ID:         uuid.NewString(),
		URL:        req.URL,
		Name:       req.Name,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		Daily:      req.Daily,
		Repeat:     req.Repeat,
		Resolution: req.Resolution,
		Framerate:  req.Framerate,
		Format:     req.Format,
		Status:     schedule.StatusPending,
		CreatedAt:  now,
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := schedule.CalculatorFor(s).NextCheck(s, now); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.schedules = append(e.schedules, s)
	e.saveLocked()
	e.mu.Unlock()

	logs.CtxInfo(ctx, "[engine] added schedule %s (%s) next_check=%v", s.ID, s.Name, s.NextCheck)
	return s.Clone(), nil
}

// Update rewrites the caller-editable fields of an existing schedule and
// resets it to pending with a freshly computed next_check.
func (e *Engine) Update(ctx context.Context, id string, req AddRequest) (*schedule.Schedule, error) {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.findLocked(id)
	if s == nil {
		return nil, fmt.Errorf("schedule %s not found", id)
	}

	prev := s.Clone()
	s.URL = req.URL
	s.Name = req.Name
	s.StartTime = req.StartTime
	s.EndTime = req.EndTime
	s.Daily = req.Daily
	s.Repeat = req.Repeat
	s.Resolution = req.Resolution
	s.Framerate = req.Framerate
	s.Format = req.Format
	s.Status = schedule.StatusPending
	s.ActiveBrowserID = ""
	s.ManualStop = false
	s.LastCheck = nil
	s.Normalize()

	if err := s.Validate(); err != nil {
		*s = *prev
		return nil, err
	}
	if err := schedule.CalculatorFor(s).NextCheck(s, now); err != nil {
		*s = *prev
		return nil, err
	}

	e.saveLocked()
	logs.CtxInfo(ctx, "[engine] updated schedule %s (%s)", s.ID, s.Name)
	return s.Clone(), nil
}

// Remove deletes a schedule by id.
func (e *Engine) Remove(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, s := range e.schedules {
		if s.ID == id {
			e.schedules = append(e.schedules[:i], e.schedules[i+1:]...)
			e.saveLocked()
			logs.CtxInfo(ctx, "[engine] removed schedule %s", id)
			return nil
		}
	}
	return fmt.Errorf("schedule %s not found", id)
}

// List returns copies of all schedules ordered by next_check ascending,
// schedules without one last.
func (e *Engine) List() []*schedule.Schedule {
	e.mu.Lock()
	out := make([]*schedule.Schedule, 0, len(e.schedules))
	for _, s := range e.schedules {
		out = append(out, s.Clone())
	}
	e.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].NextCheck, out[j].NextCheck
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return out
}

// Get returns a copy of one schedule by id.
func (e *Engine) Get(id string) (*schedule.Schedule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s := e.findLocked(id); s != nil {
		return s.Clone(), nil
	}
	return nil, fmt.Errorf("schedule %s not found", id)
}

// Refresh force-recomputes every schedule from scratch: status back to
// pending, transient fields cleared, next_check recalculated against now.
// Returns the number of schedules touched.
func (e *Engine) Refresh(ctx context.Context) int {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	refreshed := 0
	for _, s := range e.schedules {
		if s.Status == schedule.StatusCompleted && !s.Daily {
			continue
		}
		s.Status = schedule.StatusPending
		s.ActiveBrowserID = ""
		s.ManualStop = false
		s.LastCheck = nil
		if err := schedule.CalculatorFor(s).NextCheck(s, now); err != nil {
			logs.CtxWarn(ctx, "[engine] refresh schedule %s: %v", s.ID, err)
			continue
		}
		refreshed++
	}
	e.saveLocked()
	logs.CtxInfo(ctx, "[engine] refreshed %d schedules", refreshed)
	return refreshed
}

// StopDownload handles a user-initiated stop of a running download. The
// browser slot is released and the owning schedule advances to its next
// slot immediately; a correlation id that no schedule owns is ignored
// beyond releasing the slot.
func (e *Engine) StopDownload(ctx context.Context, correlationID string) error {
	if correlationID == "" {
		return fmt.Errorf("empty correlation id")
	}

	e.launcher.Release(correlationID)

	now := e.clock.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range e.schedules {
		if s.ActiveBrowserID != correlationID {
			continue
		}
		s.ManualStop = true
		e.advanceAfterStop(s, now)
		e.saveLocked()
		logs.CtxInfo(ctx, "[engine] manual stop of %s, schedule %s advanced", correlationID, s.ID)
		return nil
	}

	logs.CtxWarn(ctx, "[engine] manual stop of %s matched no schedule", correlationID)
	return nil
}

func (e *Engine) findLocked(id string) *schedule.Schedule {
	for _, s := range e.schedules {
		if s.ID == id {
			return s
		}
	}
	return nil
}
