package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecord_ConcreteTypes(t *testing.T) {
	encoded, err := EncodeRecord(&Shift{
		ID:       "shift-1",
		WorkerID: "worker-9",
		Station:  "press-3",
		Status:   "active",
		StartsAt: time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC),
		SyncMeta: SyncMeta{LocalTimestamp: 1234, DeviceID: "device-1"},
	})
	require.NoError(t, err)

	rec, err := DecodeRecord(TableShifts, encoded)
	require.NoError(t, err)

	shift, ok := rec.(*Shift)
	require.True(t, ok, "shifts decode to *Shift")
	assert.Equal(t, "shift-1", shift.RecordID())
	assert.Equal(t, "press-3", shift.Station)
	assert.Equal(t, int64(1234), shift.Meta().LocalTimestamp)
	assert.Equal(t, "device-1", shift.Meta().DeviceID)
}

func TestDecodeRecord_UnknownTable(t *testing.T) {
	_, err := DecodeRecord(Table("payroll"), []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownTable)

	_, err = NewRecord(Table(""))
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestDecodeRecord_MalformedPayload(t *testing.T) {
	_, err := DecodeRecord(TableNotes, []byte(`{broken`))
	assert.Error(t, err)
}

func TestPriority_Rank(t *testing.T) {
	assert.Less(t, PriorityCritical.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityNormal.Rank())
	assert.Less(t, PriorityNormal.Rank(), PriorityLow.Rank())
	assert.Equal(t, PriorityNormal.Rank(), Priority("bogus").Rank(), "unknown priorities rank as normal")
}

func TestTable_Channel(t *testing.T) {
	assert.Equal(t, "shifts_changes", TableShifts.Channel())
	assert.Equal(t, "checklists_changes", TableChecklists.Channel())
}

func TestSyncOperation_Key(t *testing.T) {
	op := SyncOperation{Table: TableTasks, RecordID: "task-1"}
	other := SyncOperation{Table: TableNotes, RecordID: "task-1"}
	assert.NotEqual(t, op.Key(), other.Key(), "same id on different tables is a different key")
}
