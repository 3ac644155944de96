// Package lmcs implements an embedded, single-process document database:
// pluggable storage backends, a crash-safe append-only log, ACID
// multi-document transactions, hash indexes, and a MongoDB-like filter
// language, orchestrated behind a single Database handle per file.
package lmcs

import (
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/leandroasilva/lmcs-db/internal/errs"
	"github.com/leandroasilva/lmcs-db/internal/filelock"
	"github.com/leandroasilva/lmcs-db/internal/index"
	"github.com/leandroasilva/lmcs-db/internal/lmcslog"
	"github.com/leandroasilva/lmcs-db/internal/logentry"
	"github.com/leandroasilva/lmcs-db/internal/storage"
	"github.com/leandroasilva/lmcs-db/internal/txn"
	"github.com/leandroasilva/lmcs-db/internal/vault"
)

// Database orchestrates one logical database: it constructs the chosen
// storage backend, holds the file lock for the whole lifecycle, and
// exposes collections and the transactional scope.
type Database struct {
	mu     sync.RWMutex
	cfg    Config
	log    *lmcslog.Logger
	st     storage.Storage
	lock   *filelock.FileLock
	idx    *index.Manager
	txnMgr *txn.Manager

	collections map[string]*Collection

	// activeTx is the transaction context visible to collection
	// operations while a transaction body is running, reflecting the
	// cooperative single-threaded scheduling model: at most one
	// transaction body runs at a time for this database.
	activeTx *TransactionContext

	errTracker *errs.ErrorTracker

	initialized bool
	closed      bool
}

// Option configures an optional Database dependency at construction time,
// overriding the sane internal default Open would otherwise build.
type Option func(*Database)

// WithLogger routes a Database's log output through log instead of the
// default internal zap-backed logger.
func WithLogger(log *lmcslog.Logger) Option {
	return func(db *Database) { db.log = log }
}

// WithErrorTracker replaces a Database's error tracker, e.g. to share one
// ring buffer across several Database handles.
func WithErrorTracker(tracker *errs.ErrorTracker) Option {
	return func(db *Database) { db.errTracker = tracker }
}

// Open constructs and initializes a Database per cfg: it validates
// configuration, constructs the storage backend, acquires the file
// lock, recovers torn transactions, and replays the log into
// collections. opts override the default logger and error tracker.
func Open(cfg Config, opts ...Option) (*Database, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	db := &Database{
		cfg:         cfg,
		log:         lmcslog.New(lmcslog.ParseLevel(cfg.LogLevel), "lmcs"),
		idx:         index.New(),
		collections: make(map[string]*Collection),
		errTracker:  errs.NewErrorTracker(),
	}
	for _, opt := range opts {
		opt(db)
	}

	var v *vault.Vault
	if cfg.EncryptionKey != "" {
		v = vault.New(cfg.EncryptionKey)
	}

	scfg := storage.Config{
		EnableChecksums:    cfg.checksumsEnabled(),
		BufferSize:         cfg.bufferSize(),
		CompactionInterval: cfg.compactionInterval(),
		AutosaveInterval:   cfg.autosaveInterval(),
		Vault:              v,
		Logger:             db.log,
	}
	if cfg.StorageType != "memory" {
		scfg.Path = dataFilePath(cfg)
	}

	st, err := storage.New(cfg.StorageType, scfg)
	if err != nil {
		return nil, err
	}
	db.st = st

	if cfg.StorageType != "memory" {
		db.lock = filelock.New(lockFilePath(cfg))
		if err := db.lock.Acquire(filelock.DefaultOptions()); err != nil {
			return nil, err
		}
	}

	if err := db.initialize(); err != nil {
		if db.lock != nil {
			_ = db.lock.Release()
		}
		return nil, err
	}

	return db, nil
}

func dataFilePath(cfg Config) string {
	ext := map[string]string{"json": ".json", "binary": ".bin", "aol": ".aol"}[cfg.StorageType]
	return filepath.Join(cfg.path(), cfg.DatabaseName+ext)
}

func lockFilePath(cfg Config) string {
	return filepath.Join(cfg.path(), cfg.DatabaseName+".lock")
}

func (db *Database) initialize() error {
	if err := db.st.Initialize(); err != nil {
		return err
	}

	db.txnMgr = txn.New(db.st, db.cfg.checksumsEnabled())

	recovery, err := db.txnMgr.Recover()
	if err != nil {
		return err
	}
	for _, rolledBack := range recovery.RolledBack {
		db.log.Warn("rolled back torn transaction %s", rolledBack)
	}

	if err := db.replay(recovery.Committed); err != nil {
		return err
	}

	db.initialized = true
	return nil
}

// replay streams the log and rebuilds in-memory collections, skipping
// the reserved transactions collection and any entry whose txId belongs
// to a transaction that never reached COMMIT.
func (db *Database) replay(committed map[string]struct{}) error {
	it, err := db.st.ReadStream()
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		entry, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if entry.Op.IsEnvelope() || entry.Collection == logentry.TransactionsCollection {
			continue
		}
		if entry.TxID != "" {
			if _, ok := committed[entry.TxID]; !ok {
				continue
			}
		}

		col := db.collectionLocked(entry.Collection)
		switch entry.Op {
		case logentry.OpInsert:
			if err := col.replayInsert(entry.ID, fromRawMap(entry.Data)); err != nil {
				return err
			}
		case logentry.OpUpdate:
			if err := col.replayUpdate(entry.ID, fromRawMap(entry.Data)); err != nil {
				return err
			}
		case logentry.OpDelete:
			col.replayDelete(entry.ID)
		}
	}
	return nil
}

func (db *Database) collectionLocked(name string) *Collection {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.collectionUnsafe(name)
}

func (db *Database) collectionUnsafe(name string) *Collection {
	col, ok := db.collections[name]
	if !ok {
		col = newCollection(name, db.st, db.idx, db.txnMgr, db.cfg.checksumsEnabled(), db.currentTxContext)
		db.collections[name] = col
	}
	return col
}

func (db *Database) currentTxContext() *TransactionContext {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.activeTx
}

// Collection returns a lazily constructed handle for the named
// collection.
func (db *Database) Collection(name string) *Collection {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.collectionUnsafe(name)
}

// Transaction enqueues the caller behind the per-database transaction
// FIFO gate; on its turn, begins a transaction, invokes fn with a
// TransactionContext, then commits (or rolls back on any returned
// error), finally applying the committed operations to in-memory
// collections.
func (db *Database) Transaction(fn TransactionFunc) error {
	if !db.cfg.transactionsEnabled() {
		return errs.NewTransaction("txn.disabled", "transactions are disabled for this database")
	}

	release, err := db.acquireTxSlot()
	if err != nil {
		return err
	}
	defer release()

	tx, err := db.txnMgr.Begin()
	if err != nil {
		return err
	}

	ctx := newTransactionContext(tx.ID)
	db.mu.Lock()
	db.activeTx = ctx
	db.mu.Unlock()

	defer func() {
		db.mu.Lock()
		db.activeTx = nil
		db.mu.Unlock()
	}()

	if err := fn(ctx); err != nil {
		db.errTracker.RecordErr(errs.CategoryTransaction, err)
		if rbErr := db.txnMgr.Rollback(tx.ID); rbErr != nil {
			db.errTracker.RecordErr(errs.CategoryTransaction, rbErr)
		}
		return err
	}

	ops, err := db.txnMgr.Commit(tx.ID)
	if err != nil {
		db.errTracker.RecordErr(errs.CategoryTransaction, err)
		return err
	}

	for _, op := range ops {
		col := db.collectionLocked(op.Collection)
		if err := col.applyCommitted(op); err != nil {
			return err
		}
	}
	return nil
}

func (db *Database) acquireTxSlot() (func(), error) {
	if db.cfg.TransactionQueueTimeout <= 0 {
		return db.txnMgr.Acquire(), nil
	}

	type result struct {
		release func()
	}
	done := make(chan result, 1)
	go func() {
		done <- result{release: db.txnMgr.Acquire()}
	}()

	select {
	case r := <-done:
		return r.release, nil
	case <-time.After(db.cfg.TransactionQueueTimeout):
		go func() {
			r := <-done
			r.release()
		}()
		return nil, errs.NewTransaction("txn.queue_timeout", "timed out waiting for the transaction queue")
	}
}

// Compact delegates to the storage backend's Compact method, if it
// supports one.
func (db *Database) Compact() error {
	if c, ok := db.st.(storage.Compactable); ok {
		return c.Compact()
	}
	return nil
}

// Flush forces durability of any buffered writes.
func (db *Database) Flush() error {
	return db.st.Flush()
}

// Close flushes, closes the storage backend, and releases the file
// lock.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	closeErr := db.st.Close()
	if db.lock != nil {
		if lockErr := db.lock.Release(); lockErr != nil && closeErr == nil {
			closeErr = lockErr
		}
	}
	return closeErr
}
