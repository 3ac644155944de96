// Package storage implements the four pluggable LMCS storage backends
// (memory, JSON snapshot, binary snapshot, append-only log) behind a
// common contract, per spec.md §4.3.
package storage

import (
	"io"
	"time"

	"github.com/leandroasilva/lmcs-db/internal/lmcslog"
	"github.com/leandroasilva/lmcs-db/internal/logentry"
	"github.com/leandroasilva/lmcs-db/internal/vault"
)

// Storage is the contract every backend implements.
type Storage interface {
	// Initialize opens or creates backing state. No other method may be
	// called before Initialize returns successfully.
	Initialize() error

	// Append persists one entry in strict insertion order. May buffer.
	Append(entry *logentry.Entry) error

	// ReadStream produces an iterator over entries in write order; it is
	// restartable only by calling ReadStream again.
	ReadStream() (EntryIterator, error)

	// Flush guarantees every prior Append is durable on disk (or is a
	// no-op for MemoryStorage).
	Flush() error

	// Close flushes and releases resources; the backend is unusable
	// afterwards.
	Close() error
}

// Compactable is implemented by backends that support log compaction.
type Compactable interface {
	Compact() error
}

// Clearable is implemented by backends that support discarding all
// entries outright.
type Clearable interface {
	Clear() error
}

// Sized is implemented by backends whose on-disk footprint is meaningful
// to report (the AOL's file size; snapshot backends rewrite their whole
// file on every flush and have no comparable "log size" to surface).
type Sized interface {
	Size() (int64, error)
}

// CompactionTracker is implemented by backends that remember when they
// last ran Compact, for Database.Stats() to surface.
type CompactionTracker interface {
	LastCompactionTime() time.Time
}

// EntryIterator yields Entry values one at a time; Next returns io.EOF
// when exhausted.
type EntryIterator interface {
	Next() (*logentry.Entry, error)
	Close() error
}

// sliceIterator adapts an in-memory []*logentry.Entry to EntryIterator.
type sliceIterator struct {
	entries []*logentry.Entry
	pos     int
}

func newSliceIterator(entries []*logentry.Entry) *sliceIterator {
	return &sliceIterator{entries: entries}
}

func (it *sliceIterator) Next() (*logentry.Entry, error) {
	if it.pos >= len(it.entries) {
		return nil, io.EOF
	}
	e := it.entries[it.pos]
	it.pos++
	return e, nil
}

func (it *sliceIterator) Close() error { return nil }

// Config is the configuration shared by every backend.
type Config struct {
	// Path is the backing file path (unused by MemoryStorage).
	Path string

	// Vault, when non-nil, enables transparent encryption.
	Vault *vault.Vault

	// Logger receives warnings for crypto failures that are tolerated
	// rather than surfaced as errors (wrong key at initialize, a single
	// undecryptable AOL record). Defaults to a no-op logger if nil.
	Logger *lmcslog.Logger

	// EnableChecksums records whether SHA-256 per-entry checksums are on.
	// Default true. The backends do not read it: entries are signed by
	// their producers before Append, and AOLStorage verifies any non-empty
	// checksum on read.
	EnableChecksums bool

	// BufferSize is the AOL write-buffer threshold before an implicit
	// flush. Default 100.
	BufferSize int

	// CompactionInterval is how often AOL auto-compacts. 0 disables.
	// Default 60s.
	CompactionInterval time.Duration

	// AutosaveInterval is how often JSONStorage autosaves when dirty.
	// 0 disables autosave (every Append flushes immediately instead).
	// Default 5s.
	AutosaveInterval time.Duration
}

// DefaultConfig returns the spec.md §6 defaults.
func DefaultConfig(path string) Config {
	return Config{
		Path:               path,
		EnableChecksums:    true,
		BufferSize:         100,
		CompactionInterval: 60 * time.Second,
		AutosaveInterval:   5 * time.Second,
	}
}

// logger returns cfg.Logger, or a no-op logger if unset.
func (cfg Config) logger() *lmcslog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return lmcslog.Nop()
}

// stateKey is the "collection:id" fingerprint used by compaction folds to
// track last-writer state per document.
func stateKey(collection, id string) string {
	return collection + ":" + id
}
