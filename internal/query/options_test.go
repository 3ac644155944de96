package query

import "testing"

func TestApplySortMultiField(t *testing.T) {
	docs := []map[string]interface{}{
		{"team": "b", "score": float64(1)},
		{"team": "a", "score": float64(2)},
		{"team": "a", "score": float64(1)},
	}
	ApplySort(docs, SortSpec{{Field: "team", Direction: 1}, {Field: "score", Direction: 1}})

	if docs[0]["team"] != "a" || docs[0]["score"] != float64(1) {
		t.Fatalf("unexpected sort order: %+v", docs)
	}
	if docs[1]["team"] != "a" || docs[1]["score"] != float64(2) {
		t.Fatalf("unexpected sort order: %+v", docs)
	}
	if docs[2]["team"] != "b" {
		t.Fatalf("unexpected sort order: %+v", docs)
	}
}

func TestApplySkipLimit(t *testing.T) {
	docs := []map[string]interface{}{{"n": 1}, {"n": 2}, {"n": 3}, {"n": 4}}
	got := ApplySkipLimit(docs, 1, 2)
	if len(got) != 2 || got[0]["n"] != 2 || got[1]["n"] != 3 {
		t.Fatalf("ApplySkipLimit = %+v", got)
	}
}

func TestApplySkipLimitSkipPastEndReturnsEmpty(t *testing.T) {
	docs := []map[string]interface{}{{"n": 1}}
	got := ApplySkipLimit(docs, 5, 0)
	if len(got) != 0 {
		t.Fatalf("ApplySkipLimit = %+v, want empty", got)
	}
}
