package project

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// previewBudget caps how much of a response a history entry retains.
const previewBudget = 200

// HistoryEntry is one record of the append-only session audit trail.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	Path      string    `json:"path"`
	Preview   string    `json:"preview"`
}

// Session binds a client to a single project. It is destroyed explicitly or
// goes stale when its project is evicted.
type Session struct {
	ID        string
	Root      string
	CreatedAt time.Time

	mu         sync.Mutex
	lastActive time.Time
	stale      bool
	history    []HistoryEntry
}

func newSession(root string) *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.NewString(),
		Root:       root,
		CreatedAt:  now,
		lastActive: now,
	}
}

// Record appends one operation to the session history, trimming the
// response preview to its budget.
func (s *Session) Record(operation, path, preview string) {
	if len(preview) > previewBudget {
		preview = preview[:previewBudget] + "..."
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	s.history = append(s.history, HistoryEntry{
		Timestamp: time.Now(),
		Operation: operation,
		Path:      path,
		Preview:   preview,
	})
}

// History returns the most recent entries, up to limit (0 = all).
func (s *Session) History(limit int) []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := 0
	if limit > 0 && len(s.history) > limit {
		start = len(s.history) - limit
	}
	out := make([]HistoryEntry, len(s.history)-start)
	copy(out, s.history[start:])
	return out
}

func (s *Session) markStale() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

// Stale reports whether the session's project has been evicted.
func (s *Session) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// Info is the listing snapshot of one session.
type Info struct {
	ID           string    `json:"id"`
	Root         string    `json:"root"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActive   time.Time `json:"lastActive"`
	HistoryCount int       `json:"historyCount"`
	Stale        bool      `json:"stale"`
}

// Info snapshots the session for listings.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:           s.ID,
		Root:         s.Root,
		CreatedAt:    s.CreatedAt,
		LastActive:   s.lastActive,
		HistoryCount: len(s.history),
		Stale:        s.stale,
	}
}
