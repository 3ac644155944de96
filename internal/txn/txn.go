// Package txn implements TransactionManager: transaction lifecycle
// (begin/addOperation/commit/rollback), recovery of torn transactions on
// restart, and the FIFO serialization gate that funnels every
// transactional scope for a database through a single slot, generalized
// from the teacher's buffered-channel semaphore idiom to a capacity-1
// gate rather than a concurrency-limiting pool.
package txn

import (
	"io"
	"sync"
	"time"

	"github.com/leandroasilva/lmcs-db/internal/docid"
	"github.com/leandroasilva/lmcs-db/internal/errs"
	"github.com/leandroasilva/lmcs-db/internal/logentry"
	"github.com/leandroasilva/lmcs-db/internal/storage"
)

// OpType identifies a logical transaction operation.
type OpType string

const (
	OpInsert OpType = "insert"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// Operation is one logical mutation recorded against a pending
// transaction: the collection and id it targets, its previous value
// (when known) and new value (when applicable).
type Operation struct {
	Type       OpType
	Collection string
	ID         string
	Previous   map[string]interface{}
	New        map[string]interface{}
}

// Status is a transaction's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCommitted Status = "committed"
	StatusAborted   Status = "aborted"
)

// Transaction is the in-memory record of one transaction's lifecycle.
type Transaction struct {
	ID         string
	Operations []Operation
	Status     Status
	CreatedAt  int64
}

// Manager owns every in-flight transaction for one database handle and
// the FIFO gate serializing transactional scopes.
type Manager struct {
	mu        sync.Mutex
	storage   storage.Storage
	checksums bool
	txs       map[string]*Transaction
	gate      chan struct{}
	committed uint64
}

// New returns a Manager writing transaction envelopes to st. checksums
// controls whether appended entries are signed with a checksum.
func New(st storage.Storage, checksums bool) *Manager {
	gate := make(chan struct{}, 1)
	gate <- struct{}{}
	return &Manager{
		storage:   st,
		checksums: checksums,
		txs:       make(map[string]*Transaction),
		gate:      gate,
	}
}

// Begin starts a new transaction: assigns an id, appends a BEGIN
// envelope, and records the transaction in memory as pending.
func (m *Manager) Begin() (*Transaction, error) {
	id := docid.New()
	entry := &logentry.Entry{
		Op:         logentry.OpBegin,
		Collection: logentry.TransactionsCollection,
		ID:         id,
		Timestamp:  time.Now().UnixMilli(),
	}
	if err := m.signAndAppend(entry); err != nil {
		return nil, err
	}

	tx := &Transaction{ID: id, Status: StatusPending, CreatedAt: entry.Timestamp}

	m.mu.Lock()
	m.txs[id] = tx
	m.mu.Unlock()

	return tx, nil
}

// AddOperation appends op to tx's pending operation list.
func (m *Manager) AddOperation(txID string, op Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[txID]
	if !ok {
		return errs.NewTransaction("txn.unknown", "unknown transaction: "+txID)
	}
	if tx.Status != StatusPending {
		return errs.NewTransaction("txn.not_pending", "transaction is no longer pending: "+txID)
	}
	tx.Operations = append(tx.Operations, op)
	return nil
}

// opToLogEntry converts a logical Operation into the real LogEntry
// committed to the log.
func opToLogEntry(txID string, op Operation) *logentry.Entry {
	entry := &logentry.Entry{
		Collection: op.Collection,
		ID:         op.ID,
		TxID:       txID,
		Timestamp:  time.Now().UnixMilli(),
	}
	switch op.Type {
	case OpInsert:
		entry.Op = logentry.OpInsert
		entry.Data = op.New
	case OpUpdate:
		entry.Op = logentry.OpUpdate
		entry.Data = op.New
	case OpDelete:
		entry.Op = logentry.OpDelete
	}
	return entry
}

// Commit materializes every pending operation as a real LogEntry,
// flushes, appends a COMMIT envelope, flushes again, and marks the
// transaction committed. Returns the operation list for the caller to
// apply to in-memory collections.
func (m *Manager) Commit(txID string) ([]Operation, error) {
	m.mu.Lock()
	tx, ok := m.txs[txID]
	if !ok {
		m.mu.Unlock()
		return nil, errs.NewTransaction("txn.unknown", "unknown transaction: "+txID)
	}
	if tx.Status != StatusPending {
		m.mu.Unlock()
		return nil, errs.NewTransaction("txn.not_pending", "transaction is no longer pending: "+txID)
	}
	ops := append([]Operation{}, tx.Operations...)
	m.mu.Unlock()

	for _, op := range ops {
		if err := m.signAndAppend(opToLogEntry(txID, op)); err != nil {
			return nil, err
		}
	}
	if err := m.storage.Flush(); err != nil {
		return nil, err
	}

	commitEntry := &logentry.Entry{
		Op:         logentry.OpCommit,
		Collection: logentry.TransactionsCollection,
		ID:         txID,
		Timestamp:  time.Now().UnixMilli(),
	}
	if err := m.signAndAppend(commitEntry); err != nil {
		return nil, err
	}
	if err := m.storage.Flush(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	tx.Status = StatusCommitted
	m.committed++
	m.mu.Unlock()

	return ops, nil
}

// CommittedCount returns the number of transactions this Manager has
// committed since construction, for Database.Stats() to surface.
func (m *Manager) CommittedCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed
}

// Rollback appends a ROLLBACK envelope and marks the transaction
// aborted. No operations were ever materialized to the log before
// commit, so there is nothing to undo on disk.
func (m *Manager) Rollback(txID string) error {
	m.mu.Lock()
	tx, ok := m.txs[txID]
	if !ok {
		m.mu.Unlock()
		return errs.NewTransaction("txn.unknown", "unknown transaction: "+txID)
	}
	m.mu.Unlock()

	entry := &logentry.Entry{
		Op:         logentry.OpRollback,
		Collection: logentry.TransactionsCollection,
		ID:         txID,
		Timestamp:  time.Now().UnixMilli(),
	}
	if err := m.signAndAppend(entry); err != nil {
		return err
	}
	if err := m.storage.Flush(); err != nil {
		return err
	}

	m.mu.Lock()
	tx.Status = StatusAborted
	m.mu.Unlock()
	return nil
}

func (m *Manager) signAndAppend(entry *logentry.Entry) error {
	if m.checksums {
		if err := logentry.Sign(entry); err != nil {
			return err
		}
	}
	return m.storage.Append(entry)
}

// Acquire blocks until this transaction's turn at the front of the FIFO
// gate, returning a release function the caller must defer.
func (m *Manager) Acquire() func() {
	<-m.gate
	return func() { m.gate <- struct{}{} }
}

// RecoveryResult reports what Recover found: the set of transaction ids
// it rolled back, and the set of committed transaction ids (used by log
// replay to decide which data entries count).
type RecoveryResult struct {
	RolledBack []string
	Committed  map[string]struct{}
}

// Recover streams the log once, tracking every BEGIN that never reached
// a matching COMMIT or ROLLBACK, and synthesizes a ROLLBACK envelope for
// each. Must run before log replay into collections.
func (m *Manager) Recover() (*RecoveryResult, error) {
	it, err := m.storage.ReadStream()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	open := make(map[string]struct{})
	committed := make(map[string]struct{})

	for {
		entry, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if entry.Collection != logentry.TransactionsCollection {
			continue
		}
		switch entry.Op {
		case logentry.OpBegin:
			open[entry.ID] = struct{}{}
		case logentry.OpCommit:
			delete(open, entry.ID)
			committed[entry.ID] = struct{}{}
		case logentry.OpRollback:
			delete(open, entry.ID)
		}
	}

	result := &RecoveryResult{Committed: committed}
	for txID := range open {
		entry := &logentry.Entry{
			Op:         logentry.OpRollback,
			Collection: logentry.TransactionsCollection,
			ID:         txID,
			Timestamp:  time.Now().UnixMilli(),
		}
		if err := m.signAndAppend(entry); err != nil {
			return nil, err
		}
		result.RolledBack = append(result.RolledBack, txID)
	}
	if len(result.RolledBack) > 0 {
		if err := m.storage.Flush(); err != nil {
			return nil, err
		}
	}
	return result, nil
}
