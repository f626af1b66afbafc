// Package remote holds everything that talks to the network: the remote
// store adapter, the realtime change feed, the health prober and the
// emergency flush client. Every call here is treated as fallible and
// latency-bearing.
package remote

import (
	"context"
	"errors"

	"github.com/prudhvinik1/floorsync/internal/models"
)

// ErrNotFound is returned when a record does not exist in the remote store.
var ErrNotFound = errors.New("record not found")

// Store is the save/load contract the sync engine consumes. Save must be an
// idempotent upsert — pushing the same record twice is safe, which is what
// lets batch pushes complete in any order and lets the immediate-push and
// drain paths overlap.
type Store interface {
	// Save upserts the record (op delete soft-deletes it). Safe to call
	// twice with the same record.
	Save(ctx context.Context, table models.Table, rec models.Record, op models.OpKind) error

	// LoadAll returns every live record of the table.
	LoadAll(ctx context.Context, table models.Table) ([]models.Record, error)
}

// ChangeFeed delivers remote change notifications, one logical subscription
// per table. The feed is advisory: losing it degrades to eventual consistency
// via the next full resync.
type ChangeFeed interface {
	Subscribe(ctx context.Context, table models.Table) (Subscription, error)
}

// Subscription is a live per-table event stream. Events is closed when the
// subscription drops; Err then reports why.
type Subscription interface {
	Events() <-chan models.ChangeEvent
	Err() error
	Close() error
}

// Prober is the lightweight liveness check driving the connectivity monitor.
// It never fetches data.
type Prober interface {
	Probe(ctx context.Context) error
}
