package database

import (
	"fmt"

	"github.com/dgraph-io/badger/v3"
)

// NewBadgerDB opens the embedded durable store used for the local record
// cache, the sync queue and the device identity.
func NewBadgerDB(dataDir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dataDir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger store at %s: %w", dataDir, err)
	}

	return db, nil
}

// NewBadgerInMemory opens a throwaway in-memory store for tests.
func NewBadgerInMemory() (*badger.DB, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening in-memory badger store: %w", err)
	}

	return db, nil
}
