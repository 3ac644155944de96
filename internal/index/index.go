// Package index implements IndexManager: per-collection hash indexes over
// one or more document fields, with unique/sparse constraint
// enforcement, generalized from the teacher's sharded primary index down
// to a flatter value-to-id-set structure since LMCS indexes are
// secondary and need no MVCC visibility tracking.
package index

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/leandroasilva/lmcs-db/internal/docpath"
	"github.com/leandroasilva/lmcs-db/internal/errs"
)

// Options configures one index definition.
type Options struct {
	Unique bool
	Sparse bool
}

// Definition describes one registered index.
type Definition struct {
	Name   string
	Fields []string
	Unique bool
	Sparse bool
}

// idSet is a small set of document ids.
type idSet map[string]struct{}

func (s idSet) add(id string)      { s[id] = struct{}{} }
func (s idSet) remove(id string)   { delete(s, id) }
func (s idSet) ids() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// collectionIndex is one registered index within a collection: a hash
// map from the canonically encoded key to the set of document ids
// sharing that key.
type collectionIndex struct {
	def    Definition
	values map[string]idSet
}

// Manager is the IndexManager: it owns every index definition and its
// live value->ids map, scoped per collection.
type Manager struct {
	mu          sync.RWMutex
	collections map[string]map[string]*collectionIndex // collection -> name -> index
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{collections: make(map[string]map[string]*collectionIndex)}
}

// DeriveName joins fields with ":" to form an index's canonical name.
func DeriveName(fields []string) string {
	return strings.Join(fields, ":")
}

// CreateIndex registers a new index definition for collection. It fails
// with a ValidationError if an index under the derived name already
// exists.
func (m *Manager) CreateIndex(collection string, fields []string, opts Options) (Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := DeriveName(fields)
	byName, ok := m.collections[collection]
	if !ok {
		byName = make(map[string]*collectionIndex)
		m.collections[collection] = byName
	}
	if _, exists := byName[name]; exists {
		return Definition{}, errs.NewValidation("index.duplicate", "index already exists: "+name)
	}

	def := Definition{Name: name, Fields: append([]string{}, fields...), Unique: opts.Unique, Sparse: opts.Sparse}
	byName[name] = &collectionIndex{def: def, values: make(map[string]idSet)}
	return def, nil
}

// Definitions returns every registered index for collection.
func (m *Manager) Definitions(collection string) []Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byName := m.collections[collection]
	out := make([]Definition, 0, len(byName))
	for _, ci := range byName {
		out = append(out, ci.def)
	}
	return out
}

// key encodes the values extracted for a compound index's fields into a
// single canonical string, returning ok=false if the index is sparse
// and any component is undefined (a non-sparse index encodes an
// undefined component as null).
func key(ci *collectionIndex, doc map[string]interface{}) (string, bool) {
	values := make([]interface{}, len(ci.def.Fields))
	anyMissing := false
	for i, field := range ci.def.Fields {
		v, exists := docpath.Get(doc, field)
		if !exists {
			anyMissing = true
			values[i] = nil
			continue
		}
		values[i] = v
	}
	if anyMissing {
		if ci.def.Sparse {
			return "", false
		}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", false
	}
	return string(encoded), true
}

// CheckUnique reports a ValidationError if inserting doc under id would
// violate any unique index on collection, without mutating state.
func (m *Manager) CheckUnique(collection, id string, doc map[string]interface{}) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ci := range m.collections[collection] {
		if !ci.def.Unique {
			continue
		}
		k, ok := key(ci, doc)
		if !ok {
			continue
		}
		if existing, found := ci.values[k]; found {
			for existingID := range existing {
				if existingID != id {
					return errs.NewValidation("index.unique_violation", "unique index violation on "+ci.def.Name)
				}
			}
		}
	}
	return nil
}

// IndexDocument adds id to every index's value set derived from doc.
func (m *Manager) IndexDocument(collection, id string, doc map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ci := range m.collections[collection] {
		k, ok := key(ci, doc)
		if !ok {
			continue
		}
		if ci.def.Unique {
			if existing, found := ci.values[k]; found {
				for existingID := range existing {
					if existingID != id {
						return errs.NewValidation("index.unique_violation", "unique index violation on "+ci.def.Name)
					}
				}
			}
		}
		set, found := ci.values[k]
		if !found {
			set = make(idSet)
			ci.values[k] = set
		}
		set.add(id)
	}
	return nil
}

// RemoveDocument undoes IndexDocument for id, dropping empty value sets.
func (m *Manager) RemoveDocument(collection, id string, doc map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ci := range m.collections[collection] {
		k, ok := key(ci, doc)
		if !ok {
			continue
		}
		set, found := ci.values[k]
		if !found {
			continue
		}
		set.remove(id)
		if len(set) == 0 {
			delete(ci.values, k)
		}
	}
}

// Reindex updates a document's index membership after a mutation:
// removes it under oldDoc, then adds it under newDoc.
func (m *Manager) Reindex(collection, id string, oldDoc, newDoc map[string]interface{}) error {
	m.RemoveDocument(collection, id, oldDoc)
	return m.IndexDocument(collection, id, newDoc)
}

// Lookup returns the set of document ids matching field==value on any
// single-field index for collection, and whether such an index exists.
func (m *Manager) Lookup(collection, field string, value interface{}) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ci := range m.collections[collection] {
		if len(ci.def.Fields) != 1 || ci.def.Fields[0] != field {
			continue
		}
		encoded, err := json.Marshal([]interface{}{value})
		if err != nil {
			return nil, false
		}
		set, found := ci.values[string(encoded)]
		if !found {
			return []string{}, true
		}
		return set.ids(), true
	}
	return nil, false
}

// LookupIn returns the union of Lookup results across values, and
// whether an applicable single-field index exists.
func (m *Manager) LookupIn(collection, field string, values []interface{}) ([]string, bool) {
	union := make(idSet)
	anyIndex := false
	for _, v := range values {
		ids, ok := m.Lookup(collection, field, v)
		if !ok {
			continue
		}
		anyIndex = true
		for _, id := range ids {
			union.add(id)
		}
	}
	if !anyIndex {
		return nil, false
	}
	return union.ids(), true
}

// DropCollection removes every index registered for collection.
func (m *Manager) DropCollection(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, collection)
}
