package localstore

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prudhvinik1/floorsync/internal/models"
)

// ErrNotFound is returned when a record is not present in the local cache.
var ErrNotFound = errors.New("record not found in local cache")

const tableKeyPrefix = "local_"

// Store is the durable per-table cache of the latest known version of every
// record. Upserts are keyed by record id, so a table never holds two entries
// with the same id; a tombstoned record is removed rather than retained.
type Store struct {
	db     *badger.DB
	logger *log.Logger

	// regMu serialises read-modify-write of the device registry; record
	// keys need no lock because each write is a single-key transaction.
	regMu sync.Mutex
}

func New(db *badger.DB, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[localstore] ", log.LstdFlags)
	}
	return &Store{db: db, logger: logger}
}

func recordKey(table models.Table, id string) []byte {
	return []byte(tableKeyPrefix + string(table) + "/" + id)
}

func tablePrefix(table models.Table) []byte {
	return []byte(tableKeyPrefix + string(table) + "/")
}

// Upsert inserts or overwrites the cached record for its id. A record carrying
// a tombstone is removed from the cache instead.
func (s *Store) Upsert(table models.Table, rec models.Record) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownTable, table)
	}
	if rec.Meta().DeletedAt != nil {
		return s.Delete(table, rec.RecordID())
	}

	data, err := models.EncodeRecord(rec)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(table, rec.RecordID()), data)
	})
	if err != nil {
		return fmt.Errorf("failed to cache %s record: %w", table, err)
	}
	return nil
}

// Get returns the cached record for the id, or ErrNotFound.
func (s *Store) Get(table models.Table, id string) (models.Record, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(table, id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached %s record: %w", table, err)
	}
	return models.DecodeRecord(table, data)
}

// Delete removes the cached record for the id. Removing an absent id is a
// no-op.
func (s *Store) Delete(table models.Table, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(table, id))
	})
	if err != nil {
		return fmt.Errorf("failed to delete cached %s record: %w", table, err)
	}
	return nil
}

// LoadTable returns every cached record of the table.
func (s *Store) LoadTable(table models.Table) ([]models.Record, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownTable, table)
	}

	var records []models.Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = tablePrefix(table)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := models.DecodeRecord(table, data)
			if err != nil {
				// A record we cannot decode is useless; drop it from the
				// result but keep loading the rest.
				s.logger.Printf("Skipping undecodable %s record: %v", table, err)
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load cached table %s: %w", table, err)
	}
	return records, nil
}

// ReplaceTable swaps the entire cached table for the given records. Used by
// the full-refresh path after a resync.
//
// The swap goes through a write batch, which splits across as many
// transactions as it needs, so a large table never trips the
// single-transaction size limit. That makes the swap non-atomic under a
// crash; the next full refresh reconverges.
func (s *Store) ReplaceTable(table models.Table, records []models.Record) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownTable, table)
	}

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = tablePrefix(table)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan cached table %s: %w", table, err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("failed to replace cached table %s: %w", table, err)
		}
	}
	for _, rec := range records {
		if rec.Meta().DeletedAt != nil {
			continue
		}
		data, err := models.EncodeRecord(rec)
		if err != nil {
			return err
		}
		if err := wb.Set(recordKey(table, rec.RecordID()), data); err != nil {
			return fmt.Errorf("failed to replace cached table %s: %w", table, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to replace cached table %s: %w", table, err)
	}
	return nil
}

// Prune removes cached records whose local timestamp is older than maxAge.
// This is a best-effort space bound, not a correctness guarantee: a pruned
// record reappears on the next full refresh if it still exists remotely.
// Returns the number of records removed.
func (s *Store) Prune(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	pruned := 0

	for _, table := range models.AllTables() {
		var stale [][]byte
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = tablePrefix(table)
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Rewind(); it.Valid(); it.Next() {
				data, err := it.Item().ValueCopy(nil)
				if err != nil {
					return err
				}
				rec, err := models.DecodeRecord(table, data)
				if err != nil {
					// Undecodable entries are pruned too.
					stale = append(stale, it.Item().KeyCopy(nil))
					continue
				}
				ts := rec.Meta().LocalTimestamp
				if ts != 0 && ts < cutoff {
					stale = append(stale, it.Item().KeyCopy(nil))
				}
			}
			return nil
		})
		if err != nil {
			return pruned, fmt.Errorf("failed to scan table %s for pruning: %w", table, err)
		}
		if len(stale) == 0 {
			continue
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			for _, key := range stale {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return pruned, fmt.Errorf("failed to prune table %s: %w", table, err)
		}
		pruned += len(stale)
	}

	if pruned > 0 {
		s.logger.Printf("Pruned %d cached records older than %s", pruned, maxAge)
	}
	return pruned, nil
}
