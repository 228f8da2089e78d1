package gate

import (
	"sync"
	"time"

	"cogman/internal/eps"
)

// JournalEntry is one recorded admission decision.
type JournalEntry struct {
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id,omitempty"`
	Verdict   Verdict   `json:"verdict"`
	State     eps.State `json:"state"`
	Reason    string    `json:"reason"`
}

// Journal is the append-only record of gate decisions. It is bounded: once
// maxEntries is reached the oldest entries are dropped, newest kept.
type Journal struct {
	mu         sync.Mutex
	entries    []JournalEntry
	maxEntries int
	dropped    int
}

const defaultJournalCap = 4096

// NewJournal creates a journal holding up to maxEntries decisions.
// maxEntries <= 0 selects the default capacity.
func NewJournal(maxEntries int) *Journal {
	if maxEntries <= 0 {
		maxEntries = defaultJournalCap
	}
	return &Journal{maxEntries: maxEntries}
}

// Record appends a decision.
func (j *Journal) Record(entry JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.entries) >= j.maxEntries {
		drop := len(j.entries) - j.maxEntries + 1
		j.entries = j.entries[drop:]
		j.dropped += drop
	}
	j.entries = append(j.entries, entry)
}

// Snapshot returns a copy of the recorded decisions in call order.
func (j *Journal) Snapshot() []JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]JournalEntry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Len returns the number of retained entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Dropped returns how many entries were evicted by the bound.
func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}
