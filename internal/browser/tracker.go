package browser

import (
	"sort"
	"sync"
	"time"

	"github.com/bytedance/gg/gmap"
)

// Download is one tracked capture, keyed by the correlation id of the
// session that discovered it.
type Download struct {
	CorrelationID string     `json:"correlation_id"`
	OutputPath    string     `json:"output_path,omitempty"`
	StreamURL     string     `json:"stream_url,omitempty"`
	Resolution    string     `json:"resolution,omitempty"`
	Filename      string     `json:"filename,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Success       bool       `json:"success,omitempty"`
}

// Tracker is an in-memory registry of in-flight and recently finished
// downloads. A download counts as present for the engine's polling while it
// is tracked and has no completion timestamp.
type Tracker struct {
	mu        sync.Mutex
	downloads map[string]*Download
}

func NewTracker() *Tracker {
	return &Tracker{downloads: make(map[string]*Download)}
}

// Add registers a new download. StartedAt defaults to now.
func (t *Tracker) Add(d Download) {
	if d.StartedAt.IsZero() {
		d.StartedAt = time.Now()
	}
	t.mu.Lock()
	t.downloads[d.CorrelationID] = &d
	t.mu.Unlock()
}

// MarkCompleted stamps the download's completion. Unknown ids are ignored.
func (t *Tracker) MarkCompleted(correlationID string, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d, ok := t.downloads[correlationID]; ok {
		now := time.Now()
		d.CompletedAt = &now
		d.Success = success
	}
}

// Remove drops a download from tracking.
func (t *Tracker) Remove(correlationID string) {
	t.mu.Lock()
	delete(t.downloads, correlationID)
	t.mu.Unlock()
}

// Get returns a copy of the tracked download, if any.
func (t *Tracker) Get(correlationID string) (Download, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.downloads[correlationID]
	if !ok {
		return Download{}, false
	}
	return *d, true
}

// Active implements DownloadStatus: present means tracked and not completed.
func (t *Tracker) Active(correlationID string) bool {
	if correlationID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.downloads[correlationID]
	return ok && d.CompletedAt == nil
}

// List returns all tracked downloads, oldest first.
func (t *Tracker) List() []Download {
	t.mu.Lock()
	out := gmap.ToSlice(t.downloads, func(k string, v *Download) Download { return *v })
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
