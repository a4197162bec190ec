// Package main provides a read-only dump of the record collections in a
// badger record store.
//
// Usage:
//
//	DB_PATH=~/FlashDeck/records go run ./cmd/dbinspect
//	DB_PATH=~/FlashDeck/records go run ./cmd/dbinspect -collection decks
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/flashdeck/flashdeck/internal/datauri"
	"github.com/flashdeck/flashdeck/internal/domain"
)

// Must match the key prefix of store.BadgerBackend.
const keyPrefix = "collection:"

var collection = flag.String("collection", "", "Print every record of this collection")

func main() {
	flag.Parse()

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/FlashDeck/records")
	}

	opts := badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	docs := make(map[string][]byte)
	err = db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(iopts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			name := strings.TrimPrefix(string(item.Key()), keyPrefix)
			val, err := item.ValueCopy(nil)
			if err != nil {
				log.Printf("Error reading collection %s: %v", name, err)
				continue
			}
			docs[name] = val
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Error iterating database: %v", err)
	}

	if *collection != "" {
		dumpCollection(*collection, docs[*collection])
		return
	}

	fmt.Println("=== Record Store Inspection ===")
	fmt.Println()

	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	totalBytes := 0
	for _, name := range names {
		records, inline := summarize(docs[name])
		totalBytes += len(docs[name])
		fmt.Printf("%-16s %6d records %10d bytes", name, records, len(docs[name]))
		if inline > 0 {
			fmt.Printf("  (%d inline media values)", inline)
		}
		fmt.Println()
	}

	for _, name := range domain.Collections {
		if _, ok := docs[name]; !ok {
			fmt.Printf("%-16s (not written yet)\n", name)
		}
	}

	fmt.Println()
	fmt.Println("=== Summary ===")
	fmt.Printf("Collections: %d\n", len(docs))
	fmt.Printf("Total bytes: %d\n", totalBytes)
}

// summarize counts the records of a collection document and the string fields
// still holding inline media.
func summarize(doc []byte) (records, inline int) {
	var byID map[string]map[string]any
	if err := json.Unmarshal(doc, &byID); err != nil {
		return 0, 0
	}
	for _, record := range byID {
		inline += countInline(record)
	}
	return len(byID), inline
}

func countInline(v any) int {
	switch val := v.(type) {
	case string:
		if datauri.IsInlineEncoded(val) {
			return 1
		}
	case map[string]any:
		n := 0
		for _, item := range val {
			n += countInline(item)
		}
		return n
	case []any:
		n := 0
		for _, item := range val {
			n += countInline(item)
		}
		return n
	}
	return 0
}

func dumpCollection(name string, doc []byte) {
	if doc == nil {
		log.Fatalf("Collection %s not found", name)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, doc, "", "  "); err != nil {
		log.Fatalf("Collection %s is not valid JSON: %v", name, err)
	}
	out.WriteByte('\n')
	_, _ = out.WriteTo(os.Stdout)
}
