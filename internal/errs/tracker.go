package errs

import (
	"sync"
	"time"
)

// Occurrence is a single recorded error with its category and timestamp.
type Occurrence struct {
	Category Category
	Message  string
	At       time.Time
}

// maxOccurrences bounds the ring buffer backing the tracker so long-running
// databases don't grow this unbounded.
const maxOccurrences = 64

// ErrorTracker records the most recent errors observed by a Database for
// surfacing via Stats(). It never influences control flow; it is purely
// observational.
type ErrorTracker struct {
	mu          sync.Mutex
	occurrences []Occurrence
	counts      map[Category]uint64
}

// NewErrorTracker returns an empty tracker.
func NewErrorTracker() *ErrorTracker {
	return &ErrorTracker{
		counts: make(map[Category]uint64),
	}
}

// Record appends an occurrence, evicting the oldest once the ring fills.
func (t *ErrorTracker) Record(category Category, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[category]++
	t.occurrences = append(t.occurrences, Occurrence{Category: category, Message: message, At: time.Now()})
	if len(t.occurrences) > maxOccurrences {
		t.occurrences = t.occurrences[len(t.occurrences)-maxOccurrences:]
	}
}

// RecordErr records err under category if err is non-nil; no-op otherwise.
func (t *ErrorTracker) RecordErr(category Category, err error) {
	if err == nil {
		return
	}
	t.Record(category, err.Error())
}

// Count returns how many errors of category have been recorded in total
// (including those since evicted from the ring).
func (t *ErrorTracker) Count(category Category) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[category]
}

// Recent returns a copy of the most recently recorded occurrences, oldest
// first.
func (t *ErrorTracker) Recent() []Occurrence {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Occurrence, len(t.occurrences))
	copy(out, t.occurrences)
	return out
}
