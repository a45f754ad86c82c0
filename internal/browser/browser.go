package browser

import (
	"context"
	"time"
)

// SessionState is the lifecycle of a launch request as seen by status
// queries: waiting in the admission queue, being launched by the worker,
// live, or gone.
type SessionState string

const (
	StateQueued    SessionState = "queued"
	StateLaunching SessionState = "launching"
	StateRunning   SessionState = "running"
	StateAbsent    SessionState = "absent"
)

// Preferences are pass-through targeting hints for the controller; the
// engine never interprets them.
type Preferences struct {
	Name       string
	Resolution string
	Framerate  string
	Format     string
}

// Session is a handle to one live controlled browser.
type Session struct {
	CorrelationID string
	StartedAt     time.Time
}

// Controller drives the underlying browser. Start blocks until the session
// is usable and is only ever called from the coordinator's single worker.
type Controller interface {
	Start(ctx context.Context, url, correlationID string, prefs Preferences) (*Session, error)
	Status(correlationID string) SessionState
	Close(correlationID string) error
}

// DownloadStatus reports whether a download tied to a correlation id is in
// progress. Polled, never pushed.
type DownloadStatus interface {
	Active(correlationID string) bool
}
