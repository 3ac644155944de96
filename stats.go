package lmcs

import (
	"time"

	"github.com/leandroasilva/lmcs-db/internal/storage"
)

// Stats summarizes the live state of a Database.
type Stats struct {
	StorageType           string
	CollectionCounts      map[string]int
	TotalDocuments        int
	Closed                bool
	WALSize               int64     // AOL only; 0 for every other backend.
	LastCompaction        time.Time // zero value if Compact has never run.
	CommittedTransactions uint64
	RecentErrors          []ErrorOccurrence
}

// Stats reports per-collection document counts, overall totals, and the
// observability fields (WAL size, last compaction, committed-transaction
// count, recent errors) sourced from the storage backend, transaction
// manager, and error tracker respectively.
func (db *Database) Stats() Stats {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return Stats{StorageType: db.cfg.StorageType, Closed: true}
	}

	counts := make(map[string]int, len(db.collections))
	total := 0
	for name, col := range db.collections {
		n := col.Count()
		counts[name] = n
		total += n
	}

	var walSize int64
	if sized, ok := db.st.(storage.Sized); ok {
		if n, err := sized.Size(); err == nil {
			walSize = n
		}
	}

	var lastCompaction time.Time
	if tracked, ok := db.st.(storage.CompactionTracker); ok {
		lastCompaction = tracked.LastCompactionTime()
	}

	var committed uint64
	if db.txnMgr != nil {
		committed = db.txnMgr.CommittedCount()
	}

	return Stats{
		StorageType:           db.cfg.StorageType,
		CollectionCounts:      counts,
		TotalDocuments:        total,
		Closed:                db.closed,
		WALSize:               walSize,
		LastCompaction:        lastCompaction,
		CommittedTransactions: committed,
		RecentErrors:          db.errTracker.Recent(),
	}
}
