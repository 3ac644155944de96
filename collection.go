package lmcs

import (
	"sync"
	"time"

	"github.com/leandroasilva/lmcs-db/internal/errs"
	"github.com/leandroasilva/lmcs-db/internal/index"
	"github.com/leandroasilva/lmcs-db/internal/logentry"
	"github.com/leandroasilva/lmcs-db/internal/query"
	"github.com/leandroasilva/lmcs-db/internal/storage"
	"github.com/leandroasilva/lmcs-db/internal/txn"
)

// FindOptions bundles findAll/findStream parameters.
type FindOptions struct {
	Filter Document
	Sort   []SortField
	Skip   int
	Limit  int
}

// SortField is one field/direction pair within a sort request; direction
// is 1 for ascending, -1 for descending.
type SortField struct {
	Field     string
	Direction int
}

// IndexOptions configures a new index.
type IndexOptions struct {
	Unique bool
	Sparse bool
}

// Collection is the in-memory mirror of one named collection: its data
// map, plus shared references to the database's storage and index
// managers.
type Collection struct {
	mu   sync.RWMutex
	name string
	data map[string]Document

	storage   storage.Storage
	indexes   *index.Manager
	txnMgr    *txn.Manager
	checksums bool

	getTxContext func() *TransactionContext
}

func newCollection(name string, st storage.Storage, idx *index.Manager, txMgr *txn.Manager, checksums bool, getTxContext func() *TransactionContext) *Collection {
	return &Collection{
		name:         name,
		data:         make(map[string]Document),
		storage:      st,
		indexes:      idx,
		txnMgr:       txMgr,
		checksums:    checksums,
		getTxContext: getTxContext,
	}
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// Insert resolves or generates "_id", rejects a duplicate id, checks
// unique indexes, optionally enlists in an active transaction, appends
// an INSERT LogEntry, and updates the data map and indexes.
func (c *Collection) Insert(doc Document) (Document, error) {
	full := withID(doc)
	id := idOf(full)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[id]; exists {
		return nil, errs.NewValidation("collection.duplicate_id", "duplicate id: "+id)
	}
	if err := c.indexes.CheckUnique(c.name, id, toRawMap(full)); err != nil {
		return nil, err
	}

	if tx := c.getTxContext(); tx != nil {
		if err := c.txnMgr.AddOperation(tx.txID, txn.Operation{
			Type:       txn.OpInsert,
			Collection: c.name,
			ID:         id,
			New:        toRawMap(full),
		}); err != nil {
			return nil, err
		}
		tx.stage(c.name, id, full)
		return full, nil
	}

	entry := &logentry.Entry{
		Op:         logentry.OpInsert,
		Collection: c.name,
		ID:         id,
		Data:       toRawMap(full),
		Timestamp:  time.Now().UnixMilli(),
	}
	if err := c.appendEntry(entry); err != nil {
		return nil, err
	}

	c.data[id] = full
	if err := c.indexes.IndexDocument(c.name, id, toRawMap(full)); err != nil {
		return nil, err
	}
	return full, nil
}

func (c *Collection) appendEntry(entry *logentry.Entry) error {
	if c.checksums {
		if err := logentry.Sign(entry); err != nil {
			return err
		}
	}
	return c.storage.Append(entry)
}

// applyCommitted is called by Database after a transaction commits, to
// apply its operations to this collection's in-memory state.
func (c *Collection) applyCommitted(op txn.Operation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch op.Type {
	case txn.OpInsert:
		doc := fromRawMap(op.New)
		c.data[op.ID] = doc
		return c.indexes.IndexDocument(c.name, op.ID, op.New)
	case txn.OpUpdate:
		doc := fromRawMap(op.New)
		c.data[op.ID] = doc
		return c.indexes.Reindex(c.name, op.ID, op.Previous, op.New)
	case txn.OpDelete:
		delete(c.data, op.ID)
		c.indexes.RemoveDocument(c.name, op.ID, op.Previous)
	}
	return nil
}

// matchingIDs returns the ids of every document currently matching
// filter, preferring an index lookup for simple equality/$eq/$in
// predicates and falling back to a full linear scan.
func (c *Collection) matchingIDs(filter query.Filter) []string {
	if ids := c.indexCandidates(filter); ids != nil {
		out := ids[:0:0]
		for _, id := range ids {
			if doc, ok := c.data[id]; ok && query.Matches(toRawMap(doc), filter) {
				out = append(out, id)
			}
		}
		return out
	}

	var out []string
	for id, doc := range c.data {
		if query.Matches(toRawMap(doc), filter) {
			out = append(out, id)
		}
	}
	return out
}

// indexCandidates attempts to resolve filter against a registered index
// for simple top-level equality/$eq/$in predicates, intersecting across
// every applicable field. Returns nil if no index applies.
func (c *Collection) indexCandidates(filter query.Filter) []string {
	var candidateSets [][]string
	for field, predicate := range filter {
		if field == "$or" || field == "$and" {
			continue
		}
		switch v := predicate.(type) {
		case map[string]interface{}:
			if eq, ok := v["$eq"]; ok && len(v) == 1 {
				if ids, found := c.indexes.Lookup(c.name, field, eq); found {
					candidateSets = append(candidateSets, ids)
				}
				continue
			}
			if in, ok := v["$in"].([]interface{}); ok && len(v) == 1 {
				if ids, found := c.indexes.LookupIn(c.name, field, in); found {
					candidateSets = append(candidateSets, ids)
				}
				continue
			}
		default:
			if ids, found := c.indexes.Lookup(c.name, field, v); found {
				candidateSets = append(candidateSets, ids)
			}
		}
	}
	if len(candidateSets) == 0 {
		return nil
	}
	return intersect(candidateSets)
}

func intersect(sets [][]string) []string {
	if len(sets) == 1 {
		return sets[0]
	}
	counts := make(map[string]int)
	for _, set := range sets {
		for _, id := range set {
			counts[id]++
		}
	}
	out := make([]string, 0)
	for id, n := range counts {
		if n == len(sets) {
			out = append(out, id)
		}
	}
	return out
}

// FindOne returns the first document matching filter, or nil if none
// match.
func (c *Collection) FindOne(filter Document) (Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if tx := c.getTxContext(); tx != nil {
		if doc, ok := tx.getData(c.name, filter); ok {
			return doc, nil
		}
	}

	ids := c.matchingIDs(query.Filter(toRawMap(filter)))
	if len(ids) == 0 {
		return nil, nil
	}
	return cloneDocument(c.data[ids[0]]), nil
}

// FindAll applies filter, then sort, then skip, then limit, in that
// order, and returns every resulting document.
func (c *Collection) FindAll(opts FindOptions) ([]Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := c.matchingIDs(query.Filter(toRawMap(opts.Filter)))
	docs := make([]map[string]interface{}, 0, len(ids))
	byID := make(map[string]Document, len(ids))
	for _, id := range ids {
		doc := c.data[id]
		docs = append(docs, toRawMap(doc))
		byID[id] = doc
	}

	spec := toSortSpec(opts.Sort)
	query.ApplySort(docs, spec)
	docs = query.ApplySkipLimit(docs, opts.Skip, opts.Limit)

	out := make([]Document, len(docs))
	for i, raw := range docs {
		out[i] = cloneDocument(fromRawMap(raw))
	}
	return out, nil
}

func toSortSpec(fields []SortField) query.SortSpec {
	spec := make(query.SortSpec, len(fields))
	for i, f := range fields {
		spec[i] = query.SortField{Field: f.Field, Direction: f.Direction}
	}
	return spec
}

// FindStreamFunc is called once per matching document by FindStream.
// Returning false stops iteration early.
type FindStreamFunc func(Document) bool

// FindStream yields matching documents to fn without materializing the
// full result array when sorting is absent; with sorting requested, it
// collapses to FindAll internally.
func (c *Collection) FindStream(opts FindOptions, fn FindStreamFunc) error {
	if len(opts.Sort) > 0 {
		docs, err := c.FindAll(opts)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if !fn(doc) {
				return nil
			}
		}
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := c.matchingIDs(query.Filter(toRawMap(opts.Filter)))
	skipped := 0
	yielded := 0
	for _, id := range ids {
		if opts.Skip > 0 && skipped < opts.Skip {
			skipped++
			continue
		}
		if opts.Limit > 0 && yielded >= opts.Limit {
			break
		}
		if !fn(cloneDocument(c.data[id])) {
			return nil
		}
		yielded++
	}
	return nil
}

// Update materializes matches up front, merges updates (shallow) into
// each, forces "_id" preservation, enlists with previous/new values,
// appends an UPDATE entry, and reindexes. Returns the count of updated
// documents.
func (c *Collection) Update(filter Document, updates Document) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := c.matchingIDs(query.Filter(toRawMap(filter)))
	if len(ids) == 0 {
		return 0, nil
	}

	tx := c.getTxContext()
	count := 0
	for _, id := range ids {
		previous := c.data[id]
		merged := cloneDocument(previous)
		for k, v := range updates {
			if k == "_id" {
				continue
			}
			merged[k] = v
		}
		merged["_id"] = id

		if tx != nil {
			if err := c.txnMgr.AddOperation(tx.txID, txn.Operation{
				Type:       txn.OpUpdate,
				Collection: c.name,
				ID:         id,
				Previous:   toRawMap(previous),
				New:        toRawMap(merged),
			}); err != nil {
				return count, err
			}
			tx.stage(c.name, id, merged)
			count++
			continue
		}

		entry := &logentry.Entry{
			Op:         logentry.OpUpdate,
			Collection: c.name,
			ID:         id,
			Data:       toRawMap(merged),
			Timestamp:  time.Now().UnixMilli(),
		}
		if err := c.appendEntry(entry); err != nil {
			return count, err
		}

		c.data[id] = merged
		if err := c.indexes.Reindex(c.name, id, toRawMap(previous), toRawMap(merged)); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Remove materializes matches, enlists with previous value, appends a
// DELETE entry, and drops the document from the map and indexes.
// Returns the count of removed documents.
func (c *Collection) Remove(filter Document) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := c.matchingIDs(query.Filter(toRawMap(filter)))
	if len(ids) == 0 {
		return 0, nil
	}

	tx := c.getTxContext()
	count := 0
	for _, id := range ids {
		previous := c.data[id]

		if tx != nil {
			if err := c.txnMgr.AddOperation(tx.txID, txn.Operation{
				Type:       txn.OpDelete,
				Collection: c.name,
				ID:         id,
				Previous:   toRawMap(previous),
			}); err != nil {
				return count, err
			}
			tx.stageDelete(c.name, id, previous)
			count++
			continue
		}

		entry := &logentry.Entry{
			Op:         logentry.OpDelete,
			Collection: c.name,
			ID:         id,
			Timestamp:  time.Now().UnixMilli(),
		}
		if err := c.appendEntry(entry); err != nil {
			return count, err
		}

		delete(c.data, id)
		c.indexes.RemoveDocument(c.name, id, toRawMap(previous))
		count++
	}
	return count, nil
}

// CreateIndex registers a new index over one or more dot-path fields and
// indexes the documents already in the collection.
func (c *Collection) CreateIndex(fields []string, opts IndexOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.indexes.CreateIndex(c.name, fields, index.Options{Unique: opts.Unique, Sparse: opts.Sparse}); err != nil {
		return err
	}
	for id, doc := range c.data {
		if err := c.indexes.IndexDocument(c.name, id, toRawMap(doc)); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of documents currently in the collection.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// replayInsert and replayDelete apply log-replay mutations directly,
// bypassing the write path (no new LogEntry is appended — the entry
// being replayed already came from the log).
func (c *Collection) replayInsert(id string, doc Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[id] = doc
	return c.indexes.IndexDocument(c.name, id, toRawMap(doc))
}

func (c *Collection) replayUpdate(id string, doc Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous := c.data[id]
	c.data[id] = doc
	return c.indexes.Reindex(c.name, id, toRawMap(previous), toRawMap(doc))
}

func (c *Collection) replayDelete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous, ok := c.data[id]
	if !ok {
		return
	}
	delete(c.data, id)
	c.indexes.RemoveDocument(c.name, id, toRawMap(previous))
}
