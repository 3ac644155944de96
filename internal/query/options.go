package query

import (
	"sort"

	"github.com/leandroasilva/lmcs-db/internal/docpath"
)

// SortSpec is an ordered list of field/direction pairs; direction is 1
// for ascending, -1 for descending. A slice (rather than a map) keeps
// tie-break order explicit, since spec.md ties sort order to map
// iteration order, which Go's maps do not guarantee.
type SortSpec []SortField

// SortField is one entry of a SortSpec.
type SortField struct {
	Field     string
	Direction int
}

// Options bundles findAll/findStream parameters.
type Options struct {
	Filter Filter
	Sort   SortSpec
	Skip   int
	Limit  int
}

// ApplySort stably sorts docs in place per spec, comparing lexicographically
// in SortSpec order and falling through to the next field on ties.
func ApplySort(docs []map[string]interface{}, spec SortSpec) {
	if len(spec) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, field := range spec {
			vi, _ := docpath.Get(docs[i], field.Field)
			vj, _ := docpath.Get(docs[j], field.Field)
			c := Compare(vi, vj)
			if field.Direction < 0 {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// ApplySkipLimit slices docs per skip/limit semantics: skip<=0 is a
// no-op, limit<=0 means unlimited.
func ApplySkipLimit(docs []map[string]interface{}, skip, limit int) []map[string]interface{} {
	if skip > 0 {
		if skip >= len(docs) {
			return nil
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}
