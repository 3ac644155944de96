package lmcs

import "github.com/leandroasilva/lmcs-db/internal/docid"

// Document is a mapping from string keys to arbitrary JSON-compatible
// values. Every document carries a string identifier under the reserved
// "_id" key.
type Document map[string]interface{}

func cloneDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Document:
		return cloneDocument(t)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return t
	}
}

// withID returns a copy of doc with "_id" resolved: the existing value
// if doc already has one, otherwise a freshly generated UUIDv7 string.
func withID(doc Document) Document {
	out := cloneDocument(doc)
	if id, ok := out["_id"]; !ok || id == "" || id == nil {
		out["_id"] = docid.New()
	}
	return out
}

func idOf(doc Document) string {
	id, _ := doc["_id"].(string)
	return id
}

func toRawMap(doc Document) map[string]interface{} {
	return map[string]interface{}(doc)
}

func fromRawMap(m map[string]interface{}) Document {
	return Document(m)
}
