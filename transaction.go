package lmcs

import (
	"sync"
	"time"

	"github.com/leandroasilva/lmcs-db/internal/query"
)

// TransactionFunc is the body passed to Database.Transaction. Returning
// an error rolls the transaction back; returning nil commits it.
type TransactionFunc func(*TransactionContext) error

type stagedEntry struct {
	doc     Document
	deleted bool
	prior   Document
}

// TransactionContext is handed to a TransactionFunc body. Reads routed
// through it see committed state plus the transaction's own pending
// writes, per read-your-writes semantics; writes issued against
// Collections obtained from the surrounding Database while this context
// is active enlist automatically.
type TransactionContext struct {
	mu      sync.Mutex
	txID    string
	staged  map[string]map[string]*stagedEntry
	startAt int64
}

func newTransactionContext(txID string) *TransactionContext {
	return &TransactionContext{
		txID:    txID,
		staged:  make(map[string]map[string]*stagedEntry),
		startAt: time.Now().UnixMilli(),
	}
}

func (tx *TransactionContext) stage(collection, id string, doc Document) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	byID, ok := tx.staged[collection]
	if !ok {
		byID = make(map[string]*stagedEntry)
		tx.staged[collection] = byID
	}
	byID[id] = &stagedEntry{doc: cloneDocument(doc)}
}

func (tx *TransactionContext) stageDelete(collection, id string, prior Document) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	byID, ok := tx.staged[collection]
	if !ok {
		byID = make(map[string]*stagedEntry)
		tx.staged[collection] = byID
	}
	byID[id] = &stagedEntry{deleted: true, prior: cloneDocument(prior)}
}

// getData implements the read-your-writes callback: it reports whether
// the transaction's own staged writes resolve filter (matched=true), in
// which case the committed scan must not run. A matched result with a
// nil Document means the matching document was deleted within this
// transaction.
func (tx *TransactionContext) getData(collection string, filter Document) (Document, bool) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	byID, ok := tx.staged[collection]
	if !ok {
		return nil, false
	}
	q := query.Filter(toRawMap(filter))
	for _, entry := range byID {
		if entry.deleted {
			if query.Matches(toRawMap(entry.prior), q) {
				return nil, true
			}
			continue
		}
		if query.Matches(toRawMap(entry.doc), q) {
			return cloneDocument(entry.doc), true
		}
	}
	return nil, false
}
