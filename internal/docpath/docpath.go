// Package docpath implements dot-path traversal into generic documents
// (nested map[string]interface{} trees), shared by the index, query, and
// collection layers.
package docpath

import "strings"

// Get resolves a dot-path such as "address.city" against doc, returning
// the value and whether every path component was defined.
func Get(doc map[string]interface{}, path string) (interface{}, bool) {
	if doc == nil {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var cur interface{} = doc
	for _, part := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, exists := m[part]
		if !exists {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
