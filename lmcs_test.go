package lmcs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leandroasilva/lmcs-db/internal/errs"
)

func openMemoryDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(Config{StorageType: "memory"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func openAOLDB(t *testing.T, dir string) *Database {
	t.Helper()
	db, err := Open(Config{StorageType: "aol", DatabaseName: "testdb", CustomPath: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInsertFindOneUpdateRemove(t *testing.T) {
	db := openMemoryDB(t)
	users := db.Collection("users")

	inserted, err := users.Insert(Document{"name": "ada", "role": "admin"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	id := idOf(inserted)
	if id == "" {
		t.Fatal("Insert did not assign _id")
	}

	found, err := users.FindOne(Document{"name": "ada"})
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if found == nil || idOf(found) != id {
		t.Fatalf("FindOne = %v, want document with id %s", found, id)
	}

	n, err := users.Update(Document{"name": "ada"}, Document{"role": "owner"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n != 1 {
		t.Fatalf("Update returned %d, want 1", n)
	}

	updated, _ := users.FindOne(Document{"name": "ada"})
	if updated["role"] != "owner" {
		t.Fatalf("role after update = %v, want owner", updated["role"])
	}
	if idOf(updated) != id {
		t.Fatal("update must preserve _id")
	}

	removed, err := users.Remove(Document{"name": "ada"})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed != 1 {
		t.Fatalf("Remove returned %d, want 1", removed)
	}
	if got, _ := users.FindOne(Document{"name": "ada"}); got != nil {
		t.Fatal("expected no match after Remove")
	}
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	db := openMemoryDB(t)
	users := db.Collection("users")

	if _, err := users.Insert(Document{"_id": "fixed", "name": "ada"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := users.Insert(Document{"_id": "fixed", "name": "grace"}); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestUniqueIndexRejectsViolation(t *testing.T) {
	db := openMemoryDB(t)
	users := db.Collection("users")
	if err := users.CreateIndex([]string{"email"}, IndexOptions{Unique: true}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	if _, err := users.Insert(Document{"email": "a@example.com"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := users.Insert(Document{"email": "a@example.com"}); err == nil {
		t.Fatal("expected unique index violation")
	}
	if users.Count() != 1 {
		t.Fatalf("Count = %d, want 1 (rejected insert must not mutate state)", users.Count())
	}
}

func TestFindAllSortSkipLimit(t *testing.T) {
	db := openMemoryDB(t)
	items := db.Collection("items")
	for _, n := range []float64{3, 1, 2, 5, 4} {
		if _, err := items.Insert(Document{"n": n}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	docs, err := items.FindAll(FindOptions{
		Sort:  []SortField{{Field: "n", Direction: 1}},
		Skip:  1,
		Limit: 2,
	})
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("FindAll returned %d docs, want 2", len(docs))
	}
	if docs[0]["n"] != float64(2) || docs[1]["n"] != float64(3) {
		t.Fatalf("FindAll order = %v, %v", docs[0]["n"], docs[1]["n"])
	}
}

func TestTransactionCommitAppliesAllOperations(t *testing.T) {
	dir := t.TempDir()
	db := openAOLDB(t, dir)

	accounts := db.Collection("accounts")
	if _, err := accounts.Insert(Document{"_id": "alice", "balance": float64(100)}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := accounts.Insert(Document{"_id": "bob", "balance": float64(0)}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	err := db.Transaction(func(tx *TransactionContext) error {
		if _, err := accounts.Update(Document{"_id": "alice"}, Document{"balance": float64(50)}); err != nil {
			return err
		}
		if _, err := accounts.Update(Document{"_id": "bob"}, Document{"balance": float64(50)}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}

	alice, _ := accounts.FindOne(Document{"_id": "alice"})
	bob, _ := accounts.FindOne(Document{"_id": "bob"})
	if alice["balance"] != float64(50) || bob["balance"] != float64(50) {
		t.Fatalf("balances after transfer = alice:%v bob:%v", alice["balance"], bob["balance"])
	}
}

func TestTransactionRollbackLeavesStateUnchanged(t *testing.T) {
	dir := t.TempDir()
	db := openAOLDB(t, dir)

	accounts := db.Collection("accounts")
	if _, err := accounts.Insert(Document{"_id": "alice", "balance": float64(100)}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	wantErr := os.ErrClosed // any sentinel works; only its non-nilness matters here
	err := db.Transaction(func(tx *TransactionContext) error {
		if _, err := accounts.Update(Document{"_id": "alice"}, Document{"balance": float64(999)}); err != nil {
			return err
		}
		return wantErr
	})
	if err == nil {
		t.Fatal("Transaction: want error to trigger rollback, got nil")
	}

	alice, _ := accounts.FindOne(Document{"_id": "alice"})
	if alice["balance"] != float64(100) {
		t.Fatalf("balance after rollback = %v, want unchanged 100", alice["balance"])
	}
}

func TestDatabaseReopenReplaysLogIntoCollections(t *testing.T) {
	dir := t.TempDir()

	db1, err := Open(Config{StorageType: "aol", DatabaseName: "testdb", CustomPath: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	users := db1.Collection("users")
	if _, err := users.Insert(Document{"_id": "u1", "name": "ada"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := users.Insert(Document{"_id": "u2", "name": "grace"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := users.Remove(Document{"_id": "u2"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := db1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db2, err := Open(Config{StorageType: "aol", DatabaseName: "testdb", CustomPath: dir})
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	defer db2.Close()

	reopened := db2.Collection("users")
	if reopened.Count() != 1 {
		t.Fatalf("Count after reopen = %d, want 1", reopened.Count())
	}
	if got, _ := reopened.FindOne(Document{"_id": "u1"}); got == nil {
		t.Fatal("expected u1 to survive reopen")
	}
	if got, _ := reopened.FindOne(Document{"_id": "u2"}); got != nil {
		t.Fatal("expected u2 to remain deleted after reopen")
	}
}

func TestCompactReclaimsSpaceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(Config{StorageType: "aol", DatabaseName: "testdb", CustomPath: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	users := db.Collection("users")
	for i := 0; i < 5; i++ {
		if _, err := users.Update(Document{"_id": "counter"}, Document{"n": i}); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if i == 0 {
			if _, err := users.Insert(Document{"_id": "counter", "n": 0}); err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}
	}
	if err := db.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "testdb.aol"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected compacted log to still contain the surviving document")
	}

	db2, err := Open(Config{StorageType: "aol", DatabaseName: "testdb", CustomPath: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	if got, _ := db2.Collection("users").FindOne(Document{"_id": "counter"}); got == nil {
		t.Fatal("expected counter document to survive compaction and reopen")
	}
}

func TestEncryptedAOLRoundTrip(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(Config{StorageType: "aol", DatabaseName: "secure", CustomPath: dir, EncryptionKey: "s3cret"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	col := db.Collection("secrets")
	if _, err := col.Insert(Document{"_id": "s1", "value": "classified"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A wrong key does not fail Open: the record is undecryptable, so the
	// engine tolerates it and starts that collection empty rather than
	// refusing to open the database.
	wrongKeyDB, err := Open(Config{StorageType: "aol", DatabaseName: "secure", CustomPath: dir, EncryptionKey: "wrong"})
	if err != nil {
		t.Fatalf("Open with wrong encryption key should not fail, got: %v", err)
	}
	if got, _ := wrongKeyDB.Collection("secrets").FindOne(Document{"_id": "s1"}); got != nil {
		t.Fatalf("expected undecryptable record to be absent, got %v", got)
	}
	_ = wrongKeyDB.Close()

	db2, err := Open(Config{StorageType: "aol", DatabaseName: "secure", CustomPath: dir, EncryptionKey: "s3cret"})
	if err != nil {
		t.Fatalf("reopen with correct key: %v", err)
	}
	defer db2.Close()
	got, _ := db2.Collection("secrets").FindOne(Document{"_id": "s1"})
	if got == nil || got["value"] != "classified" {
		t.Fatalf("FindOne after encrypted reopen = %v", got)
	}
}

func TestTransactionsDisabledForMemoryByDefault(t *testing.T) {
	db := openMemoryDB(t)
	err := db.Transaction(func(tx *TransactionContext) error { return nil })
	if err == nil {
		t.Fatal("expected transactions to be disabled by default for memory storage")
	}
}

func TestStatsReportsCollectionCounts(t *testing.T) {
	db := openMemoryDB(t)
	users := db.Collection("users")
	_, _ = users.Insert(Document{"name": "ada"})
	_, _ = users.Insert(Document{"name": "grace"})

	stats := db.Stats()
	if stats.CollectionCounts["users"] != 2 {
		t.Fatalf("Stats().CollectionCounts[users] = %d, want 2", stats.CollectionCounts["users"])
	}
	if stats.TotalDocuments != 2 {
		t.Fatalf("Stats().TotalDocuments = %d, want 2", stats.TotalDocuments)
	}
}

func TestStatsReportsWALSizeAndCompactionForAOL(t *testing.T) {
	dir := t.TempDir()
	db := openAOLDB(t, dir)
	items := db.Collection("items")
	for i := 0; i < 3; i++ {
		if _, err := items.Insert(Document{"n": i}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	before := db.Stats()
	if before.WALSize <= 0 {
		t.Fatalf("Stats().WALSize = %d, want > 0 for a non-empty AOL", before.WALSize)
	}
	if !before.LastCompaction.IsZero() {
		t.Fatalf("Stats().LastCompaction = %v, want zero before any Compact call", before.LastCompaction)
	}

	if err := db.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	after := db.Stats()
	if after.LastCompaction.IsZero() {
		t.Fatal("Stats().LastCompaction is zero after Compact ran")
	}
}

func TestStatsReportsCommittedTransactionCount(t *testing.T) {
	dir := t.TempDir()
	db := openAOLDB(t, dir)
	accounts := db.Collection("accounts")
	if _, err := accounts.Insert(Document{"_id": "alice", "balance": float64(10)}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := db.Transaction(func(tx *TransactionContext) error {
		_, err := accounts.Update(Document{"_id": "alice"}, Document{"balance": float64(20)})
		return err
	}); err != nil {
		t.Fatalf("Transaction: %v", err)
	}

	if got := db.Stats().CommittedTransactions; got != 1 {
		t.Fatalf("Stats().CommittedTransactions = %d, want 1", got)
	}
}

func TestStatsSurfacesRecentTransactionErrors(t *testing.T) {
	dir := t.TempDir()
	db := openAOLDB(t, dir)

	boom := os.ErrClosed
	err := db.Transaction(func(tx *TransactionContext) error { return boom })
	if err == nil {
		t.Fatal("expected Transaction to propagate the body's error")
	}

	recent := db.Stats().RecentErrors
	if len(recent) == 0 {
		t.Fatal("Stats().RecentErrors is empty after a rolled-back transaction")
	}
}

func TestStatsOnClosedDatabaseIsZeroValuedExceptClosed(t *testing.T) {
	db := openMemoryDB(t)
	_, _ = db.Collection("users").Insert(Document{"name": "ada"})
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	stats := db.Stats()
	if !stats.Closed {
		t.Fatal("Stats().Closed = false after Close")
	}
	if stats.TotalDocuments != 0 || stats.CollectionCounts != nil {
		t.Fatalf("Stats() on a closed database = %+v, want zero-valued besides StorageType/Closed", stats)
	}
}

func TestWithErrorTrackerSharesTrackerAcrossOpen(t *testing.T) {
	shared := errs.NewErrorTracker()
	dir := t.TempDir()

	db, err := Open(Config{StorageType: "aol", DatabaseName: "testdb", CustomPath: dir}, WithErrorTracker(shared))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	boom := os.ErrClosed
	_ = db.Transaction(func(tx *TransactionContext) error { return boom })

	if shared.Count(errs.CategoryTransaction) == 0 {
		t.Fatal("expected the shared tracker to observe the rolled-back transaction")
	}
}

func TestCompactOnMemoryBackedDatabaseCollapsesHistory(t *testing.T) {
	db := openMemoryDB(t)
	users := db.Collection("users")
	if _, err := users.Insert(Document{"_id": "u1", "n": 0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	for i := 1; i < 5; i++ {
		if _, err := users.Update(Document{"_id": "u1"}, Document{"n": i}); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	if err := db.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if db.Stats().LastCompaction.IsZero() {
		t.Fatal("expected Stats().LastCompaction to be set after Compact on memory storage")
	}

	got, err := users.FindOne(Document{"_id": "u1"})
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if got == nil || got["n"] != 4 {
		t.Fatalf("FindOne after Compact = %v, want n=4", got)
	}
}
