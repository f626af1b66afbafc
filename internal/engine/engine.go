// Package engine orchestrates queue admission, immediate best-effort pushes,
// batched retry draining and full resynchronization.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/floorsync/internal/localstore"
	"github.com/prudhvinik1/floorsync/internal/models"
	"github.com/prudhvinik1/floorsync/internal/queue"
	"github.com/prudhvinik1/floorsync/internal/remote"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBatchSize is how many pushes a drain issues concurrently.
	DefaultBatchSize = 5

	// DefaultBatchPause separates drain batches to avoid saturating the
	// remote store.
	DefaultBatchPause = 200 * time.Millisecond

	// DefaultCacheMaxAge bounds local cache growth; the defensive prune
	// after storage failures uses it too.
	DefaultCacheMaxAge = 7 * 24 * time.Hour
)

// Params wires an Engine. Store, Queue and Remote are required; Online
// defaults to always-online when nil.
type Params struct {
	Store    *localstore.Store
	Queue    *queue.Queue
	Remote   remote.Store
	Online   func() bool
	DeviceID string
	UserID   string
	Logger   *log.Logger

	BatchSize   int
	BatchPause  time.Duration
	CacheMaxAge time.Duration
}

type Engine struct {
	store       *localstore.Store
	queue       *queue.Queue
	remote      remote.Store
	online      func() bool
	deviceID    string
	userID      string
	logger      *log.Logger
	batchSize   int
	batchPause  time.Duration
	cacheMaxAge time.Duration

	draining atomic.Bool

	mu        sync.Mutex
	listeners []func(models.DataChange)
}

func New(p Params) *Engine {
	if p.Logger == nil {
		p.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	if p.Online == nil {
		p.Online = func() bool { return true }
	}
	if p.BatchSize <= 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.BatchPause <= 0 {
		p.BatchPause = DefaultBatchPause
	}
	if p.CacheMaxAge <= 0 {
		p.CacheMaxAge = DefaultCacheMaxAge
	}
	return &Engine{
		store:       p.Store,
		queue:       p.Queue,
		remote:      p.Remote,
		online:      p.Online,
		deviceID:    p.DeviceID,
		userID:      p.UserID,
		logger:      p.Logger,
		batchSize:   p.BatchSize,
		batchPause:  p.BatchPause,
		cacheMaxAge: p.CacheMaxAge,
	}
}

// RecordMutation applies a local mutation. The caller-visible state is never
// network-gated: the record lands in the local cache and the queue
// synchronously, then a single immediate push is attempted if online. On push
// failure the operation simply stays queued for the next drain.
func (e *Engine) RecordMutation(ctx context.Context, table models.Table, rec models.Record, op models.OpKind, priority models.Priority) error {
	if !table.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownTable, table)
	}
	if !op.Valid() {
		return fmt.Errorf("invalid operation kind %q", op)
	}
	if priority == "" {
		priority = models.PriorityNormal
	}

	now := time.Now()
	meta := rec.Meta()
	meta.LocalTimestamp = now.UnixMilli()
	meta.DeviceID = e.deviceID
	meta.UpdatedBy = e.userID
	if op == models.OpDelete && meta.DeletedAt == nil {
		meta.DeletedAt = &now
	}

	// Local cache first; a storage failure is logged and survived, the
	// mutation still reaches the queue.
	var storeErr error
	if op == models.OpDelete {
		storeErr = e.store.Delete(table, rec.RecordID())
	} else {
		storeErr = e.store.Upsert(table, rec)
	}
	if storeErr != nil {
		e.storageFailure("cache mutation", storeErr)
	}

	payload, err := models.EncodeRecord(rec)
	if err != nil {
		return err
	}
	sop := models.SyncOperation{
		ID:              uuid.New().String(),
		Op:              op,
		Table:           table,
		RecordID:        rec.RecordID(),
		Payload:         payload,
		CreatedAtMillis: now.UnixMilli(),
		DeviceID:        e.deviceID,
		UserID:          e.userID,
		Priority:        priority,
	}
	if err := e.queue.Enqueue(sop); err != nil {
		e.storageFailure("queue admission", err)
	}

	if e.online() {
		if err := e.remote.Save(ctx, table, rec, op); err != nil {
			e.logger.Printf("Immediate push of %s %s/%s failed, leaving queued: %v", op, table, rec.RecordID(), err)
		} else if err := e.queue.Remove(sop.ID); err != nil {
			e.storageFailure("queue confirmation", err)
		}
	}

	e.emit(models.DataChange{
		Table:           table,
		Op:              op,
		Record:          rec,
		DeviceID:        e.deviceID,
		TimestampMillis: now.UnixMilli(),
	})
	return nil
}

// DrainQueue pushes every queued operation in priority order, then refreshes
// the local cache from the remote store if anything succeeded.
func (e *Engine) DrainQueue(ctx context.Context) error {
	return e.drain(ctx, true)
}

// FullResync drains the queue, then reloads every table from the remote
// store, overwriting the local cache. Used at startup, on reconnect and on
// demand.
func (e *Engine) FullResync(ctx context.Context) error {
	if err := e.drain(ctx, false); err != nil {
		return err
	}
	e.refreshAll(ctx)
	return nil
}

// drain is guarded by a single in-progress flag: overlapping calls are no-ops
// and the next heartbeat retries. Within a batch, pushes run concurrently and
// each failure is isolated — one failing push never blocks its siblings.
func (e *Engine) drain(ctx context.Context, refreshOnSuccess bool) error {
	if !e.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer e.draining.Store(false)

	ops := e.queue.Snapshot()
	if len(ops) == 0 {
		return nil
	}
	e.logger.Printf("Draining %d queued operations", len(ops))

	var succeeded atomic.Int64
	for start := 0; start < len(ops); start += e.batchSize {
		end := start + e.batchSize
		if end > len(ops) {
			end = len(ops)
		}

		g := new(errgroup.Group)
		for _, op := range ops[start:end] {
			op := op
			g.Go(func() error {
				e.pushOne(ctx, op, &succeeded)
				return nil
			})
		}
		g.Wait()

		if end < len(ops) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.batchPause):
			}
		}
	}

	if refreshOnSuccess && succeeded.Load() > 0 {
		e.refreshAll(ctx)
	}
	return nil
}

func (e *Engine) pushOne(ctx context.Context, op models.SyncOperation, succeeded *atomic.Int64) {
	rec, err := models.DecodeRecord(op.Table, op.Payload)
	if err != nil {
		// A payload that no longer decodes can never be delivered.
		e.logger.Printf("DROPPED operation %s with undecodable payload: %v", op.ID, err)
		if err := e.queue.Remove(op.ID); err != nil {
			e.storageFailure("queue removal", err)
		}
		return
	}

	if err := e.remote.Save(ctx, op.Table, rec, op.Op); err != nil {
		dropped, qerr := e.queue.MarkFailed(op.ID)
		if qerr != nil {
			e.storageFailure("retry accounting", qerr)
		}
		if !dropped {
			e.logger.Printf("Push of %s %s/%s failed (attempt %d): %v", op.Op, op.Table, op.RecordID, op.RetryCount+1, err)
		}
		return
	}

	if err := e.queue.Remove(op.ID); err != nil {
		e.storageFailure("queue confirmation", err)
	}
	succeeded.Add(1)
}

// refreshAll reloads every table from the remote store and replaces the local
// cache, reconciling any server-side derived state. Per-table failures are
// logged and skipped so one bad table never blocks the rest.
func (e *Engine) refreshAll(ctx context.Context) {
	for _, table := range models.AllTables() {
		records, err := e.remote.LoadAll(ctx, table)
		if err != nil {
			e.logger.Printf("Failed to refresh table %s: %v", table, err)
			continue
		}
		if err := e.store.ReplaceTable(table, records); err != nil {
			e.storageFailure("table refresh", err)
		}
	}
}

// QueueLen reports the pending queue depth.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// OnDataChanged registers an observation-only listener for local mutations.
// Listeners run synchronously on the mutating goroutine and must be cheap.
func (e *Engine) OnDataChanged(fn func(models.DataChange)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *Engine) emit(change models.DataChange) {
	e.mu.Lock()
	listeners := make([]func(models.DataChange), len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(change)
	}
}

// storageFailure logs a local durable-storage error and prunes aged cache
// data in case the failure was storage exhaustion. Never fatal.
func (e *Engine) storageFailure(where string, err error) {
	e.logger.Printf("Storage error during %s: %v", where, err)
	if _, perr := e.store.Prune(e.cacheMaxAge); perr != nil {
		e.logger.Printf("Defensive prune failed: %v", perr)
	}
}
