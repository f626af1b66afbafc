// Package queue implements the durable, ordered log of pending mutations
// awaiting delivery to the remote store.
//
// Invariants: the queue never holds two operations for the same
// (table, record id) pair — a newer operation replaces the older one and
// retry tracking restarts with it. The queue is always sorted by priority
// rank then creation time, so critical operations drain before high before
// normal before low, oldest first within a priority.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prudhvinik1/floorsync/internal/models"
)

const (
	queueKey = "sync_queue"

	// DefaultMaxAge is how long a persisted operation survives across
	// restarts before being discarded unexamined.
	DefaultMaxAge = 24 * time.Hour

	// DefaultMaxRetries is how many failed pushes an operation survives
	// before it is dropped with a terminal log entry.
	DefaultMaxRetries = 5
)

type Queue struct {
	db         *badger.DB
	logger     *log.Logger
	maxAge     time.Duration
	maxRetries int

	mu  sync.Mutex
	ops []models.SyncOperation
}

func New(db *badger.DB, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}
	return &Queue{
		db:         db,
		logger:     logger,
		maxAge:     DefaultMaxAge,
		maxRetries: DefaultMaxRetries,
	}
}

// NewWithLimits overrides the retention and retry limits, for when they come
// from configuration. Non-positive values keep the defaults.
func NewWithLimits(db *badger.DB, logger *log.Logger, maxAge time.Duration, maxRetries int) *Queue {
	q := New(db, logger)
	if maxAge > 0 {
		q.maxAge = maxAge
	}
	if maxRetries > 0 {
		q.maxRetries = maxRetries
	}
	return q
}

// Load reads the persisted queue, discards entries older than the maximum
// age, persists the remainder and returns it. Called once at startup.
func (q *Queue) Load() ([]models.SyncOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var data []byte
	err := q.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(queueKey))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		q.ops = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read persisted queue: %w", err)
	}

	var persisted []models.SyncOperation
	if err := json.Unmarshal(data, &persisted); err != nil {
		// An unreadable queue is unrecoverable; start empty rather than
		// crash. The drop is loud.
		q.logger.Printf("Discarding corrupt persisted queue: %v", err)
		q.ops = nil
		return nil, q.persistLocked()
	}

	cutoff := time.Now().Add(-q.maxAge).UnixMilli()
	kept := persisted[:0]
	discarded := 0
	for _, op := range persisted {
		if op.CreatedAtMillis < cutoff {
			discarded++
			continue
		}
		kept = append(kept, op)
	}
	if discarded > 0 {
		q.logger.Printf("Discarded %d queued operations older than %s", discarded, q.maxAge)
	}

	q.ops = kept
	q.sortLocked()
	if err := q.persistLocked(); err != nil {
		q.logger.Printf("Failed to persist queue after load: %v", err)
	}
	return q.snapshotLocked(), nil
}

// Enqueue admits an operation, collapsing any existing operation for the same
// (table, record id) key so the queue keeps exactly one entry per key, always
// the newest. The full queue is persisted after every admission.
//
// In-memory state is authoritative: a persistence failure is returned but the
// operation stays queued for this session.
func (q *Queue) Enqueue(op models.SyncOperation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := op.Key()
	for i, existing := range q.ops {
		if existing.Key() == key {
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			break
		}
	}
	q.ops = append(q.ops, op)
	q.sortLocked()
	return q.persistLocked()
}

// Remove deletes the operation with the given id, typically after a confirmed
// remote save. Removing an absent id is a no-op, which is what makes the
// immediate-push and drain paths safe to race.
func (q *Queue) Remove(opID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, op := range q.ops {
		if op.ID == opID {
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			return q.persistLocked()
		}
	}
	return nil
}

// MarkFailed increments the operation's retry count after a failed push. Once
// the count reaches the retry cap the operation is dropped permanently with a
// terminal log entry; dropped reports whether that happened.
func (q *Queue) MarkFailed(opID string) (dropped bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.ops {
		if q.ops[i].ID != opID {
			continue
		}
		q.ops[i].RetryCount++
		if q.ops[i].RetryCount >= q.maxRetries {
			op := q.ops[i]
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			q.logger.Printf("DROPPED operation %s (%s %s/%s) after %d failed attempts",
				op.ID, op.Op, op.Table, op.RecordID, op.RetryCount)
			return true, q.persistLocked()
		}
		return false, q.persistLocked()
	}
	return false, nil
}

// Snapshot returns a copy of the queue in drain order.
func (q *Queue) Snapshot() []models.SyncOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

func (q *Queue) snapshotLocked() []models.SyncOperation {
	out := make([]models.SyncOperation, len(q.ops))
	copy(out, q.ops)
	return out
}

func (q *Queue) sortLocked() {
	sort.SliceStable(q.ops, func(i, j int) bool {
		ri, rj := q.ops[i].Priority.Rank(), q.ops[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return q.ops[i].CreatedAtMillis < q.ops[j].CreatedAtMillis
	})
}

// persistLocked writes the whole queue under a single key, so each persist is
// atomic: a reload never observes a partially written queue.
func (q *Queue) persistLocked() error {
	data, err := json.Marshal(q.ops)
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}
	err = q.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(queueKey), data)
	})
	if err != nil {
		return fmt.Errorf("failed to persist queue: %w", err)
	}
	return nil
}
