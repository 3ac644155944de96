package storage

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/leandroasilva/lmcs-db/internal/logentry"
)

func entry(op logentry.Op, collection, id string, data map[string]interface{}) *logentry.Entry {
	e := &logentry.Entry{Op: op, Collection: collection, ID: id, Data: data, Timestamp: 1}
	_ = logentry.Sign(e)
	return e
}

func drain(t *testing.T, it EntryIterator) []*logentry.Entry {
	t.Helper()
	var out []*logentry.Entry
	for {
		e, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, e)
	}
	_ = it.Close()
	return out
}

func testBackendRoundTrip(t *testing.T, st Storage) {
	t.Helper()
	if err := st.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := st.Append(entry(logentry.OpInsert, "users", "u1", map[string]interface{}{"name": "ada"})); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := st.Append(entry(logentry.OpInsert, "users", "u2", map[string]interface{}{"name": "grace"})); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	it, err := st.ReadStream()
	if err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	entries := drain(t, it)
	if len(entries) != 2 {
		t.Fatalf("ReadStream returned %d entries, want 2", len(entries))
	}
	if entries[0].ID != "u1" || entries[1].ID != "u2" {
		t.Fatalf("ReadStream order = %v", entries)
	}

	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestMemoryStorageRoundTrip(t *testing.T) {
	testBackendRoundTrip(t, NewMemoryStorage(Config{}))
}

func TestJSONStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	testBackendRoundTrip(t, NewJSONStorage(Config{Path: dir + "/db.json"}))
}

func TestBinaryStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	testBackendRoundTrip(t, NewBinaryStorage(Config{Path: dir + "/db.bin"}))
}

func TestAOLStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	testBackendRoundTrip(t, NewAOLStorage(Config{Path: dir + "/db.aol", BufferSize: 100}))
}

func TestJSONStoragePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/db.json"

	st := NewJSONStorage(Config{Path: path})
	if err := st.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	_ = st.Append(entry(logentry.OpInsert, "users", "u1", map[string]interface{}{"name": "ada"}))
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2 := NewJSONStorage(Config{Path: path})
	if err := st2.Initialize(); err != nil {
		t.Fatalf("reopen Initialize: %v", err)
	}
	it, err := st2.ReadStream()
	if err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	entries := drain(t, it)
	if len(entries) != 1 || entries[0].ID != "u1" {
		t.Fatalf("entries after reopen = %v", entries)
	}
}

func TestAOLStorageToleratesTruncatedFinalLine(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/db.aol"

	st := NewAOLStorage(Config{Path: path, BufferSize: 100})
	if err := st.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	_ = st.Append(entry(logentry.OpInsert, "users", "u1", map[string]interface{}{"name": "ada"}))
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	_ = st.Close()

	// Simulate a crash mid-write: append a truncated, unparseable line.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open for corruption: %v", err)
	}
	if _, err := f.WriteString(`{"op":"INSERT","collection":"users","id":"u2"`); err != nil {
		t.Fatalf("write corrupt tail: %v", err)
	}
	_ = f.Close()

	st2 := NewAOLStorage(Config{Path: path, BufferSize: 100})
	if err := st2.Initialize(); err != nil {
		t.Fatalf("reopen Initialize: %v", err)
	}
	it, err := st2.ReadStream()
	if err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	entries := drain(t, it)
	if len(entries) != 1 || entries[0].ID != "u1" {
		t.Fatalf("entries after truncated tail = %v, want only u1", entries)
	}
}

func TestAOLStorageRaisesCorruptionOnChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/db.aol"

	st := NewAOLStorage(Config{Path: path, BufferSize: 100})
	if err := st.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	_ = st.Append(entry(logentry.OpInsert, "users", "u1", map[string]interface{}{"name": "ada"}))
	_ = st.Append(entry(logentry.OpInsert, "users", "u2", map[string]interface{}{"name": "grace"}))
	_ = st.Append(entry(logentry.OpInsert, "users", "u3", map[string]interface{}{"name": "hopper"}))
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	_ = st.Close()

	// Corrupt the middle line's data without touching its checksum, so the
	// line still decodes cleanly but fails verification.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	corrupted := []byte(strings.Replace(string(data), `"name":"grace"`, `"name":"mallory"`, 1))
	if err := os.WriteFile(path, corrupted, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	st2 := NewAOLStorage(Config{Path: path, BufferSize: 100})
	if err := st2.Initialize(); err != nil {
		t.Fatalf("reopen Initialize: %v", err)
	}
	if _, err := st2.ReadStream(); err == nil {
		t.Fatal("expected ReadStream to raise an error for a checksum mismatch on a real-data entry")
	}
}

func TestAOLStorageCompactionCollapsesHistory(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/db.aol"

	st := NewAOLStorage(Config{Path: path, BufferSize: 100})
	if err := st.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	_ = st.Append(entry(logentry.OpInsert, "users", "u1", map[string]interface{}{"name": "ada"}))
	_ = st.Append(entry(logentry.OpUpdate, "users", "u1", map[string]interface{}{"name": "ada lovelace"}))
	_ = st.Append(entry(logentry.OpInsert, "users", "u2", map[string]interface{}{"name": "grace"}))
	_ = st.Append(entry(logentry.OpDelete, "users", "u2", nil))
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if err := st.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	it, err := st.ReadStream()
	if err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	entries := drain(t, it)
	if len(entries) != 1 {
		t.Fatalf("entries after compaction = %v, want exactly the surviving u1 update", entries)
	}
	if entries[0].ID != "u1" || entries[0].Data["name"] != "ada lovelace" {
		t.Fatalf("entries after compaction = %+v", entries[0])
	}
}

func TestMemoryStorageCompactionCollapsesHistory(t *testing.T) {
	st := NewMemoryStorage(Config{})
	if err := st.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	_ = st.Append(entry(logentry.OpInsert, "users", "u1", map[string]interface{}{"name": "ada"}))
	_ = st.Append(entry(logentry.OpUpdate, "users", "u1", map[string]interface{}{"name": "ada lovelace"}))
	_ = st.Append(entry(logentry.OpInsert, "users", "u2", map[string]interface{}{"name": "grace"}))
	_ = st.Append(entry(logentry.OpDelete, "users", "u2", nil))

	if err := st.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	it, err := st.ReadStream()
	if err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	entries := drain(t, it)
	if len(entries) != 1 {
		t.Fatalf("entries after compaction = %v, want exactly the surviving u1 update", entries)
	}
	if entries[0].ID != "u1" || entries[0].Data["name"] != "ada lovelace" {
		t.Fatalf("entries after compaction = %+v", entries[0])
	}
}

func TestFactoryRejectsUnknownStorageType(t *testing.T) {
	if _, err := New("does-not-exist", Config{}); err == nil {
		t.Fatal("expected error for unknown storage type")
	}
}

func TestFactoryConstructsEachKnownType(t *testing.T) {
	for _, name := range []string{"memory", "json", "binary", "aol"} {
		if _, err := New(name, Config{Path: t.TempDir() + "/db"}); err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
	}
}
