package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// HistoryEntry records one finished transfer, ring-bounded by HistoryStore's
// limit (spec §3).
type HistoryEntry struct {
	Source      string    `json:"source"`
	Dest        string    `json:"dest"`
	Bytes       int64     `json:"bytes"`
	Files       int       `json:"files"`
	DurationSec float64   `json:"duration_secs"`
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
}

// HistoryStore persists history.json, holding an exclusive advisory lock
// on a sibling "history.lock" file for its entire lifetime (spec §4.7) so
// two Flux processes never interleave writes.
type HistoryStore struct {
	mu      sync.Mutex
	path    string
	limit   int
	lock    *flock.Flock
	entries []HistoryEntry
}

// NewHistoryStore opens path, acquiring the advisory lock immediately. The
// lock is released by Close.
func NewHistoryStore(path string, limit int) (*HistoryStore, error) {
	if limit <= 0 {
		limit = 500
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("state: acquiring history lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("state: history store already locked by another process")
	}

	s := &HistoryStore{path: path, limit: limit, lock: lock}
	readJSONTolerant(path, &s.entries)
	return s, nil
}

// Add appends an entry, dropping the oldest once the ring-bound limit is
// exceeded, then persists.
func (s *HistoryStore) Add(e HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, e)
	if len(s.entries) > s.limit {
		s.entries = s.entries[len(s.entries)-s.limit:]
	}
	return writeJSONAtomic(s.path, s.entries)
}

// List returns a snapshot of history, most recent last.
func (s *HistoryStore) List() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]HistoryEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Close releases the advisory lock.
func (s *HistoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock.Unlock()
}
