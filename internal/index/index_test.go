package index

import "testing"

func TestCreateIndexRejectsDuplicateName(t *testing.T) {
	m := New()
	if _, err := m.CreateIndex("users", []string{"email"}, Options{}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if _, err := m.CreateIndex("users", []string{"email"}, Options{}); err == nil {
		t.Fatal("expected duplicate index error")
	}
}

func TestUniqueIndexRejectsDuplicateValue(t *testing.T) {
	m := New()
	if _, err := m.CreateIndex("users", []string{"email"}, Options{Unique: true}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	doc1 := map[string]interface{}{"email": "a@example.com"}
	if err := m.IndexDocument("users", "u1", doc1); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}

	doc2 := map[string]interface{}{"email": "a@example.com"}
	if err := m.CheckUnique("users", "u2", doc2); err == nil {
		t.Fatal("expected unique violation")
	}
	if err := m.IndexDocument("users", "u2", doc2); err == nil {
		t.Fatal("expected unique violation on IndexDocument")
	}
}

func TestSparseIndexSkipsUndefinedValues(t *testing.T) {
	m := New()
	if _, err := m.CreateIndex("users", []string{"nickname"}, Options{Unique: true, Sparse: true}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	if err := m.IndexDocument("users", "u1", map[string]interface{}{"name": "ada"}); err != nil {
		t.Fatalf("IndexDocument u1: %v", err)
	}
	if err := m.IndexDocument("users", "u2", map[string]interface{}{"name": "grace"}); err != nil {
		t.Fatalf("IndexDocument u2 (second sparse-absent doc): %v", err)
	}
}

func TestLookupAndLookupIn(t *testing.T) {
	m := New()
	if _, err := m.CreateIndex("users", []string{"role"}, Options{}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	_ = m.IndexDocument("users", "u1", map[string]interface{}{"role": "admin"})
	_ = m.IndexDocument("users", "u2", map[string]interface{}{"role": "owner"})
	_ = m.IndexDocument("users", "u3", map[string]interface{}{"role": "admin"})

	ids, found := m.Lookup("users", "role", "admin")
	if !found {
		t.Fatal("expected index to be found")
	}
	if len(ids) != 2 {
		t.Fatalf("Lookup = %v, want 2 ids", ids)
	}

	union, found := m.LookupIn("users", "role", []interface{}{"admin", "owner"})
	if !found || len(union) != 3 {
		t.Fatalf("LookupIn = %v, found=%v", union, found)
	}
}

func TestRemoveDocumentDropsEmptySets(t *testing.T) {
	m := New()
	_, _ = m.CreateIndex("users", []string{"role"}, Options{})
	doc := map[string]interface{}{"role": "admin"}
	_ = m.IndexDocument("users", "u1", doc)
	m.RemoveDocument("users", "u1", doc)

	ids, found := m.Lookup("users", "role", "admin")
	if !found {
		t.Fatal("expected index to still be found")
	}
	if len(ids) != 0 {
		t.Fatalf("Lookup after remove = %v, want empty", ids)
	}
}

func TestReindexMovesDocumentBetweenValues(t *testing.T) {
	m := New()
	_, _ = m.CreateIndex("users", []string{"role"}, Options{})
	old := map[string]interface{}{"role": "admin"}
	_ = m.IndexDocument("users", "u1", old)

	next := map[string]interface{}{"role": "owner"}
	if err := m.Reindex("users", "u1", old, next); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	if ids, _ := m.Lookup("users", "role", "admin"); len(ids) != 0 {
		t.Fatalf("expected u1 removed from admin bucket, got %v", ids)
	}
	if ids, _ := m.Lookup("users", "role", "owner"); len(ids) != 1 {
		t.Fatalf("expected u1 in owner bucket, got %v", ids)
	}
}

func TestCompoundIndexKey(t *testing.T) {
	m := New()
	if _, err := m.CreateIndex("users", []string{"team", "role"}, Options{Unique: true}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	doc1 := map[string]interface{}{"team": "a", "role": "admin"}
	if err := m.IndexDocument("users", "u1", doc1); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	doc2 := map[string]interface{}{"team": "a", "role": "owner"}
	if err := m.IndexDocument("users", "u2", doc2); err != nil {
		t.Fatalf("distinct compound key should not collide: %v", err)
	}
}
