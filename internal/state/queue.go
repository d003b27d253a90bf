package state

import (
	"fmt"
	"sync"
	"time"
)

// QueueStatus is a QueueEntry's lifecycle state (spec §3).
type QueueStatus string

const (
	StatusPending   QueueStatus = "Pending"
	StatusRunning   QueueStatus = "Running"
	StatusPaused    QueueStatus = "Paused"
	StatusCompleted QueueStatus = "Completed"
	StatusFailed    QueueStatus = "Failed"
	StatusCancelled QueueStatus = "Cancelled"
)

func (s QueueStatus) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// QueueEntry is one queued or in-flight transfer.
type QueueEntry struct {
	ID               string      `json:"id"`
	Status           QueueStatus `json:"status"`
	Source           string      `json:"source"`
	Dest             string      `json:"dest"`
	Recursive        bool        `json:"recursive"`
	Verify           bool        `json:"verify"`
	Compress         bool        `json:"compress"`
	AddedAt          time.Time   `json:"added_at"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
	BytesTransferred int64       `json:"bytes_transferred"`
	Error            string      `json:"error,omitempty"`
}

// QueueStore persists the queue.json described in spec §6.
type QueueStore struct {
	mu      sync.Mutex
	path    string
	entries []QueueEntry
}

// NewQueueStore loads path, tolerating a missing or corrupt file as empty.
func NewQueueStore(path string) *QueueStore {
	s := &QueueStore{path: path}
	readJSONTolerant(path, &s.entries)
	return s
}

// Add appends a new Pending entry and persists the queue.
func (s *QueueStore) Add(e QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.Status = StatusPending
	e.AddedAt = time.Now()
	s.entries = append(s.entries, e)
	return s.save()
}

// List returns a snapshot of all entries.
func (s *QueueStore) List() []QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]QueueEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Get returns the entry with the given ID.
func (s *QueueStore) Get(id string) (QueueEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == id {
			return e, true
		}
	}
	return QueueEntry{}, false
}

// Pause transitions Pending|Running→Paused. Idempotent on an
// already-Paused entry; rejects terminal entries (spec §4.7).
func (s *QueueStore) Pause(id string) error {
	return s.transition(id, func(e *QueueEntry) error {
		switch e.Status {
		case StatusPaused:
			return nil
		case StatusPending, StatusRunning:
			e.Status = StatusPaused
			return nil
		default:
			return fmt.Errorf("state: cannot pause entry %s in terminal status %s", id, e.Status)
		}
	})
}

// Resume transitions Paused→Pending. Idempotent on an already-Pending entry.
func (s *QueueStore) Resume(id string) error {
	return s.transition(id, func(e *QueueEntry) error {
		switch e.Status {
		case StatusPending:
			return nil
		case StatusPaused:
			e.Status = StatusPending
			return nil
		default:
			return fmt.Errorf("state: cannot resume entry %s in status %s", id, e.Status)
		}
	})
}

// Cancel transitions any non-terminal status to Cancelled. Idempotent on
// an already-Cancelled entry.
func (s *QueueStore) Cancel(id string) error {
	return s.transition(id, func(e *QueueEntry) error {
		if e.Status == StatusCancelled {
			return nil
		}
		if e.Status.terminal() {
			return fmt.Errorf("state: cannot cancel entry %s in terminal status %s", id, e.Status)
		}
		e.Status = StatusCancelled
		now := time.Now()
		e.CompletedAt = &now
		return nil
	})
}

// PendingEntries returns every entry still in Pending status.
func (s *QueueStore) PendingEntries() []QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []QueueEntry
	for _, e := range s.entries {
		if e.Status == StatusPending {
			out = append(out, e)
		}
	}
	return out
}

// ClearCompleted removes every Completed entry from the queue.
func (s *QueueStore) ClearCompleted() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.Status != StatusCompleted {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return s.save()
}

func (s *QueueStore) transition(id string, fn func(*QueueEntry) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].ID == id {
			if err := fn(&s.entries[i]); err != nil {
				return err
			}
			return s.save()
		}
	}
	return fmt.Errorf("state: no queue entry with id %s", id)
}

func (s *QueueStore) save() error {
	return writeJSONAtomic(s.path, s.entries)
}
