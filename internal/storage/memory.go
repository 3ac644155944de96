package storage

import (
	"sync"
	"time"

	"github.com/leandroasilva/lmcs-db/internal/logentry"
)

// MemoryStorage keeps the entire log in a process-local slice. Nothing
// survives process exit; Flush and Close are no-ops beyond bookkeeping.
type MemoryStorage struct {
	mu             sync.Mutex
	entries        []*logentry.Entry
	lastCompaction time.Time
}

// NewMemoryStorage returns an empty, ready-to-use MemoryStorage. Config
// is accepted for interface symmetry with the other backends but unused.
func NewMemoryStorage(_ Config) *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Initialize() error {
	return nil
}

func (m *MemoryStorage) Append(entry *logentry.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry.Clone())
	return nil
}

func (m *MemoryStorage) ReadStream() (EntryIterator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make([]*logentry.Entry, len(m.entries))
	for i, e := range m.entries {
		snapshot[i] = e.Clone()
	}
	return newSliceIterator(snapshot), nil
}

func (m *MemoryStorage) Flush() error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

// Clear discards every entry, leaving the backend empty but initialized.
func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	return nil
}

// Compact folds the in-memory log down to the latest surviving entry per
// "collection:id" (deletes drop the document, envelopes are ignored),
// replacing the slice with one entry per surviving document in first-seen
// order, mirroring AOLStorage.Compact's fold without any file rewrite.
func (m *MemoryStorage) Compact() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	type docState struct {
		entry   *logentry.Entry
		deleted bool
	}
	latest := make(map[string]*docState)
	order := make([]string, 0)

	for _, e := range m.entries {
		if e.Op.IsEnvelope() {
			continue
		}
		key := stateKey(e.Collection, e.ID)
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		if e.Op == logentry.OpDelete {
			latest[key] = &docState{deleted: true}
		} else {
			latest[key] = &docState{entry: e}
		}
	}

	compacted := make([]*logentry.Entry, 0, len(order))
	for _, key := range order {
		state := latest[key]
		if state.deleted || state.entry == nil {
			continue
		}
		compacted = append(compacted, state.entry)
	}
	m.entries = compacted
	m.lastCompaction = time.Now()
	return nil
}

// LastCompactionTime returns when Compact last ran, or the zero time if it
// never has.
func (m *MemoryStorage) LastCompactionTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCompaction
}
