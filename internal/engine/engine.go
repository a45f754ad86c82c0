package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/streamwatch/streamwatch/internal/browser"
	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/pkg/logs"
	"github.com/streamwatch/streamwatch/internal/schedule"
)

// cronParser is a standard 5-field cron expression parser (minute hour dom
// month dow), used for the maintenance schedule.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Store is the persistence contract: whole-collection load and save.
// Failures are tolerated; the engine keeps operating on its in-memory copy.
type Store interface {
	Load() ([]*schedule.Schedule, error)
	Save([]*schedule.Schedule) error
}

// Launcher is the slice of the launch coordinator a check task needs.
type Launcher interface {
	Launch(ctx context.Context, req browser.LaunchRequest) (*browser.Session, error)
	Release(correlationID string)
	State(correlationID string) browser.SessionState
}

// Engine owns the schedule list and the execution loop: every tick it
// re-evaluates each schedule's window state and dispatches due checks
// without blocking on their outcome.
type Engine struct {
	store     Store
	launcher  Launcher
	downloads browser.DownloadStatus
	clock     Clock

	tickInterval time.Duration
	pollInterval time.Duration

	cleanupSched cron.Schedule
	retention    time.Duration
	nextCleanup  time.Time

	mu        sync.Mutex
	schedules []*schedule.Schedule

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an engine. The launcher and download status are the external
// collaborators from the browser package; the store failures degrade to
// in-memory operation.
func New(cfg config.EngineConfig, store Store, launcher Launcher, downloads browser.DownloadStatus) (*Engine, error) {
	expr := cfg.CleanupSchedule
	if expr == "" {
		expr = "0 4 * * *"
	}
	cleanup, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cleanup schedule %q: %w", expr, err)
	}

	return &Engine{
		store:        store,
		launcher:     launcher,
		downloads:    downloads,
		clock:        RealClock{},
		tickInterval: cfg.TickInterval(),
		pollInterval: time.Second,
		cleanupSched: cleanup,
		retention:    cfg.Retention(),
	}, nil
}

// Start loads persisted schedules and begins the loop.
func (e *Engine) Start(ctx context.Context) error {
	now := e.clock.Now()

	loaded, err := e.store.Load()
	if err != nil {
		logs.CtxError(ctx, "[engine] load schedules: %v (continuing empty)", err)
		loaded = nil
	}

	e.mu.Lock()
	e.schedules = loaded
	for _, s := range e.schedules {
		if err := s.Validate(); err != nil {
			// Kept, not dropped: it is skipped per tick until fixed via
			// update.
			logs.CtxWarn(ctx, "[engine] loaded malformed schedule: %v", err)
			continue
		}
		if s.NextCheck == nil {
			if err := schedule.CalculatorFor(s).NextCheck(s, now); err != nil {
				logs.CtxWarn(ctx, "[engine] init next_check for %s: %v", s.ID, err)
			}
		}
	}
	count := len(e.schedules)
	e.mu.Unlock()

	e.nextCleanup = e.cleanupSched.Next(now)

	e.runCtx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.loop(e.runCtx)
	}()

	logs.CtxInfo(ctx, "[engine] started with %d schedules (tick=%s)", count, e.tickInterval)
	return nil
}

// Stop cancels the loop and waits for it and any in-flight check tasks,
// bounded by ctx. The final state is persisted.
func (e *Engine) Stop(ctx context.Context) {
	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logs.CtxWarn(ctx, "[engine] stop timed out waiting for check tasks")
	}

	e.mu.Lock()
	e.saveLocked()
	e.mu.Unlock()
	logs.CtxInfo(ctx, "[engine] stopped")
}

func (e *Engine) loop(ctx context.Context) {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	// Evaluate once on startup so schedules loaded mid-window are picked
	// up without waiting out a full tick interval.
	e.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick is one full evaluation + persist cycle over every schedule, under
// the list lock. A malformed schedule is logged and skipped; it never
// aborts the batch.
func (e *Engine) tick(ctx context.Context) {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range e.schedules {
		if s.Status == schedule.StatusCompleted && !s.Daily {
			continue
		}
		if err := e.evaluate(ctx, s, now); err != nil {
			logs.CtxError(ctx, "[engine] evaluate schedule %s: %v", s.ID, err)
		}
	}

	if !now.Before(e.nextCleanup) {
		e.cleanupLocked(now)
		e.nextCleanup = e.cleanupSched.Next(now)
	}

	metricTicks.Inc()
	metricSchedules.Set(float64(len(e.schedules)))
	e.saveLocked()
}

// evaluate applies the per-schedule state machine for one tick. Caller
// holds the list lock.
func (e *Engine) evaluate(ctx context.Context, s *schedule.Schedule, now time.Time) error {
	if !s.Daily {
		w, err := s.AbsoluteWindow()
		if err != nil {
			return err
		}
		if now.After(w.End) {
			return e.windowPassed(s, now)
		}
	}

	if s.Status == schedule.StatusDownloadStarted {
		if e.downloads.Active(s.ActiveBrowserID) {
			return nil // download still live, keep status and skip checks
		}
		if s.ManualStop {
			// User stopped it; advance instead of resuming.
			e.advanceAfterStop(s, now)
			return nil
		}
		logs.CtxInfo(ctx, "[engine] download %s gone for schedule %s, resuming checks", s.ActiveBrowserID, s.ID)
		s.Status = schedule.StatusActive
		s.ActiveBrowserID = ""
	}

	calc := schedule.CalculatorFor(s)
	due, err := calc.CheckDue(s, now)
	if err != nil {
		return err
	}
	if !due {
		return nil
	}

	correlationID := fmt.Sprintf("sched_%s_%d", s.ID, now.Unix())
	e.dispatch(ctx, s.Clone(), correlationID, checkBudget())
	t := now
	s.LastCheck = &t
	metricChecksDispatched.Inc()

	// Advance next_check immediately so the same window does not fire a
	// second task before this one resolves.
	return calc.NextCheck(s, now)
}

// windowPassed handles a non-daily schedule whose end is behind now: weekly
// repeat advances seven days, a one-shot completes. A still-live download
// defers both until the signal is gone.
func (e *Engine) windowPassed(s *schedule.Schedule, now time.Time) error {
	if s.Status == schedule.StatusDownloadStarted && e.downloads.Active(s.ActiveBrowserID) {
		return nil
	}

	if s.Repeat {
		return e.rescheduleWeekly(s, now)
	}

	if s.Status != schedule.StatusCompleted {
		logs.Info("[engine] schedule %s window closed, marking completed", s.ID)
	}
	s.Status = schedule.StatusCompleted
	s.ActiveBrowserID = ""
	s.ManualStop = false
	s.NextCheck = nil
	return nil
}

// rescheduleWeekly advances both window bounds by exactly seven days and
// resets the schedule for the new window.
func (e *Engine) rescheduleWeekly(s *schedule.Schedule, now time.Time) error {
	w, err := s.AbsoluteWindow()
	if err != nil {
		return err
	}

	newStart := w.Start.AddDate(0, 0, 7)
	newEnd := w.End.AddDate(0, 0, 7)
	s.StartTime = newStart.Format(time.RFC3339)
	s.EndTime = newEnd.Format(time.RFC3339)
	s.Status = schedule.StatusPending
	s.ActiveBrowserID = ""
	s.ManualStop = false
	s.LastCheck = nil

	if err := schedule.CalculatorFor(s).NextCheck(s, now); err != nil {
		return err
	}
	logs.Info("[engine] rescheduled %s to next week: %s", s.ID, newStart.Format(time.RFC3339))
	return nil
}

// advanceAfterStop moves a stopped schedule to its next slot: daily to
// tomorrow's window start, weekly repeat seven days ahead, one-shot to
// completed. All paths clear the correlation id and the stop flag.
func (e *Engine) advanceAfterStop(s *schedule.Schedule, now time.Time) {
	stoppedID := s.ActiveBrowserID
	s.ActiveBrowserID = ""
	s.ManualStop = false

	switch {
	case s.Daily:
		s.Status = schedule.StatusPending
		start, err := schedule.ParseClock(s.StartTime)
		if err != nil {
			logs.Warn("[engine] advance stopped daily schedule %s: %v", s.ID, err)
			s.NextCheck = nil
			return
		}
		next := start.On(now.AddDate(0, 0, 1))
		s.NextCheck = &next
		logs.Info("[engine] daily schedule %s moved to %s after stop of %s", s.ID, next.Format(time.RFC3339), stoppedID)
	case s.Repeat:
		if err := e.rescheduleWeekly(s, now); err != nil {
			logs.Warn("[engine] advance stopped weekly schedule %s: %v", s.ID, err)
		}
	default:
		s.Status = schedule.StatusCompleted
		s.NextCheck = nil
		logs.Info("[engine] one-shot schedule %s stopped, marking completed", s.ID)
	}
}

// cleanupLocked purges terminal one-shot schedules whose window closed
// longer than the retention ago. Caller holds the list lock.
func (e *Engine) cleanupLocked(now time.Time) {
	kept := e.schedules[:0]
	removed := 0
	for _, s := range e.schedules {
		if s.Status == schedule.StatusCompleted && !s.Daily && !s.Repeat {
			if w, err := s.AbsoluteWindow(); err == nil && now.Sub(w.End) > e.retention {
				removed++
				continue
			}
		}
		kept = append(kept, s)
	}
	e.schedules = kept
	if removed > 0 {
		logs.Info("[engine] purged %d completed schedules", removed)
	}
}

// saveLocked persists the whole list; store failures degrade to in-memory
// operation. Caller holds the list lock.
func (e *Engine) saveLocked() {
	if err := e.store.Save(e.schedules); err != nil {
		logs.Error("[engine] save schedules: %v", err)
	}
}

// checkBudget returns the per-dispatch monitoring budget, uniform in
// [20s, 60s) so concurrent schedules do not poll in lockstep.
var checkBudget = func() time.Duration {
	return 20*time.Second + time.Duration(rand.Int63n(int64(40*time.Second)))
}
