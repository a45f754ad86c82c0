package engine

import (
	"context"
	"time"

	"github.com/streamwatch/streamwatch/internal/browser"
	"github.com/streamwatch/streamwatch/internal/pkg/logs"
	"github.com/streamwatch/streamwatch/internal/schedule"
)

// dispatch starts one check task in the background. The snapshot is a
// clone, so the task never touches live list state directly; any outcome
// flows back through markDownloadStarted under the list lock.
func (e *Engine) dispatch(ctx context.Context, snap *schedule.Schedule, correlationID string, budget time.Duration) {
	ctx = logs.SetLogID(ctx, logs.NewLogID())
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runCheck(ctx, snap, correlationID, budget)
	}()
}

func (e *Engine) runCheck(ctx context.Context, snap *schedule.Schedule, correlationID string, budget time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			logs.CtxError(ctx, "[check] %s panicked: %v", correlationID, r)
			e.launcher.Release(correlationID)
		}
	}()

	logs.CtxInfo(ctx, "[check] %s launching for %s (budget=%s)", correlationID, snap.Name, budget)

	_, err := e.launcher.Launch(ctx, browser.LaunchRequest{
		URL:           snap.URL,
		CorrelationID: correlationID,
		Prefs: browser.Preferences{
			Name:       snap.Name,
			Resolution: snap.Resolution,
			Framerate:  snap.Framerate,
			Format:     snap.Format,
		},
	})
	if err != nil {
		// The schedule keeps its state; the next cadence slot retries.
		metricLaunchFailures.Inc()
		logs.CtxWarn(ctx, "[check] %s launch failed: %v", correlationID, err)
		return
	}
	defer e.launcher.Release(correlationID)

	deadline := e.clock.Now().Add(budget)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logs.CtxInfo(ctx, "[check] %s cancelled", correlationID)
			return
		case <-ticker.C:
		}

		if e.downloads.Active(correlationID) {
			// The capture runs outside the browser; the detection session
			// can be handed back for closure.
			e.markDownloadStarted(ctx, snap.ID, correlationID)
			logs.CtxInfo(ctx, "[check] %s download detected for %s", correlationID, snap.Name)
			return
		}
		if e.launcher.State(correlationID) == browser.StateAbsent {
			logs.CtxInfo(ctx, "[check] %s session gone before budget elapsed", correlationID)
			return
		}
		if !e.clock.Now().Before(deadline) {
			logs.CtxInfo(ctx, "[check] %s no download within budget for %s", correlationID, snap.Name)
			return
		}
	}
}

// markDownloadStarted flips the owning schedule to download_started and
// records the correlation id so later ticks can watch the download signal.
func (e *Engine) markDownloadStarted(ctx context.Context, scheduleID, correlationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.findLocked(scheduleID)
	if s == nil {
		logs.CtxWarn(ctx, "[check] schedule %s disappeared before download could be recorded", scheduleID)
		return
	}
	s.Status = schedule.StatusDownloadStarted
	s.ActiveBrowserID = correlationID
	e.saveLocked()
	metricDownloadsStarted.Inc()
}
