package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/streamwatch/streamwatch/internal/browser"
	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/schedule"
)

type memStore struct {
	mu        sync.Mutex
	schedules []*schedule.Schedule
	saves     int
}

func (m *memStore) Load() ([]*schedule.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedules, nil
}

func (m *memStore) Save(schedules []*schedule.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules = schedules
	m.saves++
	return nil
}

type stubLauncher struct {
	mu        sync.Mutex
	launchErr error
	state     browser.SessionState
	launched  []string
	released  []string
}

func (l *stubLauncher) Launch(ctx context.Context, req browser.LaunchRequest) (*browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, req.CorrelationID)
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	return &browser.Session{CorrelationID: req.CorrelationID, StartedAt: time.Now()}, nil
}

func (l *stubLauncher) Release(correlationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = append(l.released, correlationID)
}

func (l *stubLauncher) State(correlationID string) browser.SessionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == "" {
		return browser.StateRunning
	}
	return l.state
}

func (l *stubLauncher) releasedIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.released...)
}

type stubDownloads struct {
	mu     sync.Mutex
	active map[string]bool
}

func (d *stubDownloads) Active(correlationID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active[correlationID]
}

func (d *stubDownloads) set(correlationID string, v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		d.active = make(map[string]bool)
	}
	d.active[correlationID] = v
}

type testEngine struct {
	*Engine
	store     *memStore
	launcher  *stubLauncher
	downloads *stubDownloads
	clock     *MockClock
}

func newTestEngine(t *testing.T, now time.Time, schedules ...*schedule.Schedule) *testEngine {
	t.Helper()

	store := &memStore{schedules: schedules}
	launcher := &stubLauncher{}
	downloads := &stubDownloads{}

	e, err := New(config.EngineConfig{}, store, launcher, downloads)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clock := &MockClock{MockTime: now}
	e.clock = clock
	e.pollInterval = time.Millisecond
	e.schedules = schedules
	e.nextCleanup = e.cleanupSched.Next(now)

	return &testEngine{Engine: e, store: store, launcher: launcher, downloads: downloads, clock: clock}
}

func utc(y int, mo time.Month, d, h, mi int) time.Time {
	return time.Date(y, mo, d, h, mi, 0, 0, time.UTC)
}

func TestTick_WeeklyReschedule(t *testing.T) {
	lastCheck := utc(2024, 1, 1, 10, 30)
	s := &schedule.Schedule{
		ID:        "w1",
		URL:       "https://example.com/live",
		Repeat:    true,
		StartTime: "2024-01-01T10:00:00Z",
		EndTime:   "2024-01-01T11:00:00Z",
		Status:    schedule.StatusActive,
		LastCheck: &lastCheck,
	}
	te := newTestEngine(t, utc(2024, 1, 2, 9, 0), s)

	te.tick(context.Background())

	if s.StartTime != "2024-01-08T10:00:00Z" || s.EndTime != "2024-01-08T11:00:00Z" {
		t.Fatalf("window: %s - %s", s.StartTime, s.EndTime)
	}
	if s.Status != schedule.StatusPending {
		t.Fatalf("status: %s", s.Status)
	}
	if s.NextCheck == nil || !s.NextCheck.Equal(utc(2024, 1, 8, 10, 0)) {
		t.Fatalf("next check: %v", s.NextCheck)
	}
	if s.LastCheck != nil {
		t.Fatalf("last check should reset with the window: %v", s.LastCheck)
	}
}

func TestStart_EvaluatesImmediately(t *testing.T) {
	s := &schedule.Schedule{
		ID:        "i1",
		URL:       "https://example.com/live",
		StartTime: "2024-01-01T10:00:00Z",
		EndTime:   "2024-01-01T11:00:00Z",
		Status:    schedule.StatusActive,
	}
	te := newTestEngine(t, utc(2024, 1, 2, 9, 0), s)

	// Default tick interval is 30s, so only the startup evaluation can
	// complete this schedule within the deadline below.
	if err := te.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		te.Stop(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := te.Get("i1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status == schedule.StatusCompleted {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("schedule not evaluated on startup, status: %s", got.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTick_OneShotCompletes(t *testing.T) {
	s := &schedule.Schedule{
		ID:        "o1",
		URL:       "https://example.com/live",
		StartTime: "2024-01-01T10:00:00Z",
		EndTime:   "2024-01-01T11:00:00Z",
		Status:    schedule.StatusActive,
	}
	te := newTestEngine(t, utc(2024, 1, 1, 12, 0), s)

	te.tick(context.Background())

	if s.Status != schedule.StatusCompleted {
		t.Fatalf("status: %s", s.Status)
	}
	if s.NextCheck != nil {
		t.Fatalf("next check should be cleared: %v", s.NextCheck)
	}
	if te.store.saves == 0 {
		t.Fatal("tick should persist")
	}
}

func TestTick_LiveDownloadDefersCompletion(t *testing.T) {
	s := &schedule.Schedule{
		ID:              "o1",
		URL:             "https://example.com/live",
		StartTime:       "2024-01-01T10:00:00Z",
		EndTime:         "2024-01-01T11:00:00Z",
		Status:          schedule.StatusDownloadStarted,
		ActiveBrowserID: "sched_o1_123",
	}
	te := newTestEngine(t, utc(2024, 1, 1, 12, 0), s)
	te.downloads.set("sched_o1_123", true)

	te.tick(context.Background())

	if s.Status != schedule.StatusDownloadStarted {
		t.Fatalf("live download must defer completion, got %s", s.Status)
	}

	// Once the download signal disappears, the next tick completes it.
	te.downloads.set("sched_o1_123", false)
	te.tick(context.Background())

	if s.Status != schedule.StatusCompleted {
		t.Fatalf("status after download ended: %s", s.Status)
	}
}

func TestTick_AutoResumeAfterDownloadGone(t *testing.T) {
	future := utc(2024, 1, 1, 11, 55)
	s := &schedule.Schedule{
		ID:              "d1",
		URL:             "https://example.com/live",
		Daily:           true,
		StartTime:       "10:00",
		EndTime:         "12:00",
		Status:          schedule.StatusDownloadStarted,
		ActiveBrowserID: "sched_d1_123",
		NextCheck:       &future,
	}
	te := newTestEngine(t, utc(2024, 1, 1, 11, 0), s)

	te.tick(context.Background())

	if s.Status != schedule.StatusActive {
		t.Fatalf("status: %s", s.Status)
	}
	if s.ActiveBrowserID != "" {
		t.Fatalf("correlation id not cleared: %s", s.ActiveBrowserID)
	}
}

func TestTick_ManualStopPrecedesResume(t *testing.T) {
	s := &schedule.Schedule{
		ID:              "d1",
		URL:             "https://example.com/live",
		Daily:           true,
		StartTime:       "10:00",
		EndTime:         "12:00",
		Status:          schedule.StatusDownloadStarted,
		ActiveBrowserID: "sched_d1_123",
		ManualStop:      true,
	}
	te := newTestEngine(t, utc(2024, 1, 1, 11, 0), s)

	te.tick(context.Background())

	if s.Status != schedule.StatusPending {
		t.Fatalf("status: %s", s.Status)
	}
	if s.NextCheck == nil || !s.NextCheck.Equal(utc(2024, 1, 2, 10, 0)) {
		t.Fatalf("next check should be tomorrow's start, got %v", s.NextCheck)
	}
	if s.ManualStop || s.ActiveBrowserID != "" {
		t.Fatal("stop bookkeeping not cleared")
	}
}

func TestTick_DispatchesDueCheck(t *testing.T) {
	origBudget := checkBudget
	checkBudget = func() time.Duration { return time.Millisecond }
	t.Cleanup(func() { checkBudget = origBudget })

	s := &schedule.Schedule{
		ID:        "d1",
		URL:       "https://example.com/live",
		Daily:     true,
		StartTime: "10:00",
		EndTime:   "12:00",
		Status:    schedule.StatusPending,
	}
	te := newTestEngine(t, utc(2024, 1, 1, 10, 30), s)
	te.launcher.launchErr = context.Canceled // end the background task fast

	te.tick(context.Background())

	if s.Status != schedule.StatusActive {
		t.Fatalf("status: %s", s.Status)
	}
	if s.LastCheck == nil || !s.LastCheck.Equal(utc(2024, 1, 1, 10, 30)) {
		t.Fatalf("last check: %v", s.LastCheck)
	}
	if s.NextCheck == nil || !s.NextCheck.After(utc(2024, 1, 1, 10, 30)) {
		t.Fatalf("next check not advanced: %v", s.NextCheck)
	}
	te.wg.Wait()
	if got := te.launcher.launched; len(got) != 1 || got[0] != "sched_d1_1704105000" {
		t.Fatalf("launched: %v", got)
	}
}

func TestTick_CleanupPurgesOldCompleted(t *testing.T) {
	old := &schedule.Schedule{
		ID:        "old",
		URL:       "https://example.com/a",
		StartTime: "2024-01-01T10:00:00Z",
		EndTime:   "2024-01-01T11:00:00Z",
		Status:    schedule.StatusCompleted,
	}
	fresh := &schedule.Schedule{
		ID:        "fresh",
		URL:       "https://example.com/b",
		StartTime: "2024-01-19T10:00:00Z",
		EndTime:   "2024-01-19T11:00:00Z",
		Status:    schedule.StatusCompleted,
	}
	te := newTestEngine(t, utc(2024, 1, 20, 9, 0), old, fresh)
	te.nextCleanup = utc(2024, 1, 20, 4, 0) // already due

	te.tick(context.Background())

	list := te.List()
	if len(list) != 1 || list[0].ID != "fresh" {
		t.Fatalf("after cleanup: %v", list)
	}
	if !te.nextCleanup.After(utc(2024, 1, 20, 9, 0)) {
		t.Fatalf("next cleanup not advanced: %v", te.nextCleanup)
	}
}

func TestAddAndList(t *testing.T) {
	te := newTestEngine(t, utc(2024, 1, 1, 9, 0))

	s, err := te.Add(context.Background(), AddRequest{
		URL:       "https://example.com/live",
		Name:      "morning show",
		Daily:     true,
		StartTime: "10:00",
		EndTime:   "12:00",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if s.ID == "" || s.Status != schedule.StatusPending {
		t.Fatalf("added: %+v", s)
	}
	if s.NextCheck == nil || !s.NextCheck.Equal(utc(2024, 1, 1, 10, 0)) {
		t.Fatalf("next check: %v", s.NextCheck)
	}
	if s.Resolution != "1080p" {
		t.Fatalf("defaults not applied: %s", s.Resolution)
	}

	if _, err := te.Add(context.Background(), AddRequest{URL: "", Daily: true, StartTime: "10:00", EndTime: "12:00"}); err == nil {
		t.Fatal("expected validation error for empty url")
	}

	list := te.List()
	if len(list) != 1 || list[0].ID != s.ID {
		t.Fatalf("List: %v", list)
	}
}

func TestList_OrderedByNextCheck(t *testing.T) {
	early := utc(2024, 1, 1, 10, 0)
	late := utc(2024, 1, 1, 15, 0)
	te := newTestEngine(t, utc(2024, 1, 1, 9, 0),
		&schedule.Schedule{ID: "none", URL: "https://example.com/c"},
		&schedule.Schedule{ID: "late", URL: "https://example.com/b", NextCheck: &late},
		&schedule.Schedule{ID: "early", URL: "https://example.com/a", NextCheck: &early},
	)

	list := te.List()
	if len(list) != 3 || list[0].ID != "early" || list[1].ID != "late" || list[2].ID != "none" {
		ids := make([]string, len(list))
		for i, s := range list {
			ids[i] = s.ID
		}
		t.Fatalf("order: %v", ids)
	}
}

func TestUpdateAndRemove(t *testing.T) {
	s := &schedule.Schedule{
		ID:        "u1",
		URL:       "https://example.com/live",
		Daily:     true,
		StartTime: "10:00",
		EndTime:   "12:00",
		Status:    schedule.StatusActive,
	}
	te := newTestEngine(t, utc(2024, 1, 1, 9, 0), s)

	got, err := te.Update(context.Background(), "u1", AddRequest{
		URL:       "https://example.com/other",
		Daily:     true,
		StartTime: "14:00",
		EndTime:   "16:00",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.URL != "https://example.com/other" || got.Status != schedule.StatusPending {
		t.Fatalf("updated: %+v", got)
	}
	if got.NextCheck == nil || !got.NextCheck.Equal(utc(2024, 1, 1, 14, 0)) {
		t.Fatalf("next check: %v", got.NextCheck)
	}

	// Invalid update leaves the record untouched.
	if _, err := te.Update(context.Background(), "u1", AddRequest{URL: "https://example.com/x", Daily: true, StartTime: "bad", EndTime: "16:00"}); err == nil {
		t.Fatal("expected validation error")
	}
	if cur, _ := te.Get("u1"); cur.StartTime != "14:00" {
		t.Fatalf("failed update mutated the record: %s", cur.StartTime)
	}

	if err := te.Remove(context.Background(), "u1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := te.Remove(context.Background(), "u1"); err == nil {
		t.Fatal("expected error removing twice")
	}
}

func TestRefresh_ResetsSchedules(t *testing.T) {
	last := utc(2024, 1, 1, 8, 0)
	s := &schedule.Schedule{
		ID:              "d1",
		URL:             "https://example.com/live",
		Daily:           true,
		StartTime:       "10:00",
		EndTime:         "12:00",
		Status:          schedule.StatusActive,
		ActiveBrowserID: "sched_d1_123",
		LastCheck:       &last,
	}
	done := &schedule.Schedule{
		ID:        "done",
		URL:       "https://example.com/b",
		StartTime: "2023-12-01T10:00:00Z",
		EndTime:   "2023-12-01T11:00:00Z",
		Status:    schedule.StatusCompleted,
	}
	te := newTestEngine(t, utc(2024, 1, 1, 9, 0), s, done)

	n := te.Refresh(context.Background())
	if n != 1 {
		t.Fatalf("refreshed %d, want 1", n)
	}
	if s.Status != schedule.StatusPending || s.ActiveBrowserID != "" || s.LastCheck != nil {
		t.Fatalf("not reset: %+v", s)
	}
	if s.NextCheck == nil || !s.NextCheck.Equal(utc(2024, 1, 1, 10, 0)) {
		t.Fatalf("next check: %v", s.NextCheck)
	}
	if done.Status != schedule.StatusCompleted {
		t.Fatal("completed one-shot should not be revived")
	}
}

func TestStopDownload_AdvancesOwningSchedule(t *testing.T) {
	s := &schedule.Schedule{
		ID:              "o1",
		URL:             "https://example.com/live",
		StartTime:       "2024-01-01T10:00:00Z",
		EndTime:         "2024-01-01T12:00:00Z",
		Status:          schedule.StatusDownloadStarted,
		ActiveBrowserID: "sched_o1_123",
	}
	te := newTestEngine(t, utc(2024, 1, 1, 11, 0), s)

	if err := te.StopDownload(context.Background(), "sched_o1_123"); err != nil {
		t.Fatalf("StopDownload: %v", err)
	}
	if got := te.launcher.releasedIDs(); len(got) != 1 || got[0] != "sched_o1_123" {
		t.Fatalf("released: %v", got)
	}
	if s.Status != schedule.StatusCompleted {
		t.Fatalf("one-shot after stop: %s", s.Status)
	}
}

func TestStopDownload_StaleIDIgnored(t *testing.T) {
	s := &schedule.Schedule{
		ID:              "o1",
		URL:             "https://example.com/live",
		StartTime:       "2024-01-01T10:00:00Z",
		EndTime:         "2024-01-01T12:00:00Z",
		Status:          schedule.StatusDownloadStarted,
		ActiveBrowserID: "sched_o1_123",
	}
	te := newTestEngine(t, utc(2024, 1, 1, 11, 0), s)

	if err := te.StopDownload(context.Background(), "sched_o1_999"); err != nil {
		t.Fatalf("StopDownload: %v", err)
	}
	if s.Status != schedule.StatusDownloadStarted || s.ActiveBrowserID != "sched_o1_123" {
		t.Fatalf("stale stop mutated the schedule: %+v", s)
	}

	if err := te.StopDownload(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty correlation id")
	}
}
