package schedule

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
)

// Store persists the schedule collection as one ordered JSON document.
// Readers and writers always exchange the whole list; there is no
// per-record I/O, which keeps a crashed write from leaving a partial
// collection behind.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a Store backed by the given file path.
// If the file does not exist it will be created on the first Save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted collection. A missing or empty file yields an
// empty list, not an error. Records get their documented defaults filled.
func (s *Store) Load() ([]*Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // first run, nothing to load
		}
		return nil, fmt.Errorf("read schedules file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var schedules []*Schedule
	if err := sonic.Unmarshal(data, &schedules); err != nil {
		return nil, fmt.Errorf("unmarshal schedules: %w", err)
	}

	for _, sched := range schedules {
		sched.Normalize()
	}
	return schedules, nil
}

// Save writes the whole collection to disk atomically (tmp + rename),
// preserving the caller's ordering.
func (s *Store) Save(schedules []*Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if schedules == nil {
		schedules = []*Schedule{}
	}
	data, err := sonic.Marshal(schedules)
	if err != nil {
		return fmt.Errorf("marshal schedules: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename store: %w", err)
	}
	return nil
}
