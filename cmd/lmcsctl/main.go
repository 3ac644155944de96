package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/leandroasilva/lmcs-db"
)

func main() {
	storageType := flag.String("storage", "aol", "Storage backend: memory, json, binary, aol")
	dbName := flag.String("name", "lmcsctl", "Database name")
	dataDir := flag.String("data-dir", "./lmcs-data", "Directory for database files")
	encryptionKey := flag.String("encryption-key", "", "Encryption key (enables CryptoVault when non-empty)")
	flag.Parse()

	cfg := lmcs.Config{
		StorageType:   *storageType,
		DatabaseName:  *dbName,
		CustomPath:    *dataDir,
		EncryptionKey: *encryptionKey,
		LogLevel:      "info",
	}

	db, err := lmcs.Open(cfg)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	users := db.Collection("users")
	doc, err := users.Insert(lmcs.Document{"name": "ada", "role": "admin"})
	if err != nil {
		log.Fatalf("insert failed: %v", err)
	}
	fmt.Printf("inserted %v\n", doc["_id"])

	stats := db.Stats()
	fmt.Printf("collections: %v, total documents: %d\n", stats.CollectionCounts, stats.TotalDocuments)
}
