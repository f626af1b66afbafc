package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/floorsync/internal/database"
	"github.com/prudhvinik1/floorsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	db, err := database.NewBadgerInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil)
}

func makeOp(table models.Table, recordID string, priority models.Priority, createdAt time.Time) models.SyncOperation {
	return models.SyncOperation{
		ID:              uuid.New().String(),
		Op:              models.OpUpdate,
		Table:           table,
		RecordID:        recordID,
		Payload:         json.RawMessage(`{"id":"` + recordID + `"}`),
		CreatedAtMillis: createdAt.UnixMilli(),
		DeviceID:        "device-1",
		Priority:        priority,
	}
}

// TestQueue_Enqueue_CollapsesSameKey verifies the queue never holds two
// operations for the same (table, record id) pair.
func TestQueue_Enqueue_CollapsesSameKey(t *testing.T) {
	q := newTestQueue(t)
	now := time.Now()

	first := makeOp(models.TableTasks, "task-1", models.PriorityNormal, now)
	second := makeOp(models.TableTasks, "task-1", models.PriorityNormal, now.Add(time.Second))

	require.NoError(t, q.Enqueue(first))
	require.NoError(t, q.Enqueue(second))

	ops := q.Snapshot()
	require.Len(t, ops, 1)
	assert.Equal(t, second.ID, ops[0].ID, "newest operation should replace the older one")

	// Same record id on a different table is a different key
	other := makeOp(models.TableNotes, "task-1", models.PriorityNormal, now)
	require.NoError(t, q.Enqueue(other))
	assert.Equal(t, 2, q.Len())
}

// TestQueue_Enqueue_PriorityOrdering verifies a critical operation enqueued
// after several normal ones drains first, and ties preserve insertion order.
func TestQueue_Enqueue_PriorityOrdering(t *testing.T) {
	q := newTestQueue(t)
	now := time.Now()

	normalA := makeOp(models.TableTasks, "a", models.PriorityNormal, now)
	normalB := makeOp(models.TableTasks, "b", models.PriorityNormal, now.Add(time.Millisecond))
	low := makeOp(models.TableTasks, "c", models.PriorityLow, now)
	critical := makeOp(models.TableShifts, "s", models.PriorityCritical, now.Add(time.Second))

	require.NoError(t, q.Enqueue(normalA))
	require.NoError(t, q.Enqueue(normalB))
	require.NoError(t, q.Enqueue(low))
	require.NoError(t, q.Enqueue(critical))

	ops := q.Snapshot()
	require.Len(t, ops, 4)
	assert.Equal(t, critical.ID, ops[0].ID, "critical drains first despite being enqueued last")
	assert.Equal(t, normalA.ID, ops[1].ID, "ties within a priority are oldest first")
	assert.Equal(t, normalB.ID, ops[2].ID)
	assert.Equal(t, low.ID, ops[3].ID)
}

// TestQueue_Load_DiscardsStaleEntries verifies entries older than 24 hours
// are discarded unexamined on startup.
func TestQueue_Load_DiscardsStaleEntries(t *testing.T) {
	db, err := database.NewBadgerInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	q := New(db, nil)
	stale := makeOp(models.TableTasks, "old", models.PriorityNormal, time.Now().Add(-25*time.Hour))
	fresh := makeOp(models.TableTasks, "new", models.PriorityNormal, time.Now().Add(-time.Hour))
	require.NoError(t, q.Enqueue(stale))
	require.NoError(t, q.Enqueue(fresh))

	// A second queue over the same store simulates process restart.
	restarted := New(db, nil)
	ops, err := restarted.Load()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "new", ops[0].RecordID)
}

// TestQueue_MarkFailed_DropsAtRetryCap verifies an operation failing 5
// consecutive times is removed, while 4 failures keep it queued.
func TestQueue_MarkFailed_DropsAtRetryCap(t *testing.T) {
	q := newTestQueue(t)
	op := makeOp(models.TableTasks, "task-1", models.PriorityNormal, time.Now())
	require.NoError(t, q.Enqueue(op))

	for i := 0; i < 4; i++ {
		dropped, err := q.MarkFailed(op.ID)
		require.NoError(t, err)
		assert.False(t, dropped, "attempt %d should keep the operation queued", i+1)
	}
	assert.Equal(t, 1, q.Len(), "4 failures keep the operation")

	dropped, err := q.MarkFailed(op.ID)
	require.NoError(t, err)
	assert.True(t, dropped, "5th failure drops the operation")
	assert.Equal(t, 0, q.Len())

	// Marking an absent id is a no-op
	dropped, err = q.MarkFailed(op.ID)
	require.NoError(t, err)
	assert.False(t, dropped)
}

// TestQueue_Remove_Idempotent verifies removing a confirmed operation twice
// is safe — the immediate-push and drain paths may both try.
func TestQueue_Remove_Idempotent(t *testing.T) {
	q := newTestQueue(t)
	op := makeOp(models.TableTasks, "task-1", models.PriorityNormal, time.Now())
	require.NoError(t, q.Enqueue(op))

	require.NoError(t, q.Remove(op.ID))
	require.NoError(t, q.Remove(op.ID))
	assert.Equal(t, 0, q.Len())
}

// TestQueue_ReplacedOperationRestartsRetryTracking verifies collapsing keeps
// the new operation's zero retry count.
func TestQueue_ReplacedOperationRestartsRetryTracking(t *testing.T) {
	q := newTestQueue(t)
	now := time.Now()

	first := makeOp(models.TableTasks, "task-1", models.PriorityNormal, now)
	require.NoError(t, q.Enqueue(first))
	_, err := q.MarkFailed(first.ID)
	require.NoError(t, err)
	require.Equal(t, 1, q.Snapshot()[0].RetryCount)

	second := makeOp(models.TableTasks, "task-1", models.PriorityNormal, now.Add(time.Second))
	require.NoError(t, q.Enqueue(second))

	ops := q.Snapshot()
	require.Len(t, ops, 1)
	assert.Equal(t, 0, ops[0].RetryCount, "retry tracking restarts for a replaced op")
}

// TestQueue_PersistsAcrossRestart verifies the queue survives a reopen in
// drain order.
func TestQueue_PersistsAcrossRestart(t *testing.T) {
	db, err := database.NewBadgerInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	q := New(db, nil)
	high := makeOp(models.TableShifts, "s", models.PriorityHigh, time.Now())
	normal := makeOp(models.TableTasks, "t", models.PriorityNormal, time.Now())
	require.NoError(t, q.Enqueue(normal))
	require.NoError(t, q.Enqueue(high))

	restarted := New(db, nil)
	ops, err := restarted.Load()
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, high.ID, ops[0].ID)
	assert.Equal(t, normal.ID, ops[1].ID)
}
