package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownTable is returned when a table name outside the closed set is used.
var ErrUnknownTable = errors.New("unknown table")

// Table identifies one of the synced record tables.
type Table string

const (
	TableShifts     Table = "shifts"
	TableWorkers    Table = "workers"
	TableTasks      Table = "tasks"
	TableNotes      Table = "notes"
	TableChecklists Table = "checklists"
)

// AllTables returns every synced table, in a stable order.
func AllTables() []Table {
	return []Table{TableShifts, TableWorkers, TableTasks, TableNotes, TableChecklists}
}

func (t Table) Valid() bool {
	switch t {
	case TableShifts, TableWorkers, TableTasks, TableNotes, TableChecklists:
		return true
	}
	return false
}

// Channel is the realtime change-feed channel name for the table.
func (t Table) Channel() string {
	return string(t) + "_changes"
}

// SyncMeta is embedded in every synced record. LocalTimestamp and DeviceID are
// stamped on each local write; DeletedAt is the tombstone marker that causes a
// record to be removed from the local cache rather than retained.
type SyncMeta struct {
	LocalTimestamp int64      `json:"_localTimestamp,omitempty"`
	DeviceID       string     `json:"_deviceId,omitempty"`
	UpdatedBy      string     `json:"updated_by,omitempty"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Record is implemented by every synced entity type.
type Record interface {
	RecordID() string
	Meta() *SyncMeta
}

type Shift struct {
	ID       string     `json:"id"`
	WorkerID string     `json:"worker_id"`
	Station  string     `json:"station"`
	Status   string     `json:"status"`
	StartsAt time.Time  `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
	SyncMeta
}

func (s *Shift) RecordID() string { return s.ID }
func (s *Shift) Meta() *SyncMeta  { return &s.SyncMeta }

type Worker struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Badge  string `json:"badge,omitempty"`
	Active bool   `json:"active"`
	SyncMeta
}

func (w *Worker) RecordID() string { return w.ID }
func (w *Worker) Meta() *SyncMeta  { return &w.SyncMeta }

type Task struct {
	ID          string     `json:"id"`
	ShiftID     string     `json:"shift_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	SyncMeta
}

func (t *Task) RecordID() string { return t.ID }
func (t *Task) Meta() *SyncMeta  { return &t.SyncMeta }

type Note struct {
	ID      string `json:"id"`
	ShiftID string `json:"shift_id,omitempty"`
	TaskID  string `json:"task_id,omitempty"`
	Author  string `json:"author"`
	Body    string `json:"body"`
	SyncMeta
}

func (n *Note) RecordID() string { return n.ID }
func (n *Note) Meta() *SyncMeta  { return &n.SyncMeta }

type ChecklistItem struct {
	Label     string     `json:"label"`
	Done      bool       `json:"done"`
	CheckedBy string     `json:"checked_by,omitempty"`
	CheckedAt *time.Time `json:"checked_at,omitempty"`
}

type Checklist struct {
	ID      string          `json:"id"`
	ShiftID string          `json:"shift_id,omitempty"`
	Title   string          `json:"title"`
	Items   []ChecklistItem `json:"items"`
	SyncMeta
}

func (c *Checklist) RecordID() string { return c.ID }
func (c *Checklist) Meta() *SyncMeta  { return &c.SyncMeta }

// NewRecord returns an empty record of the concrete type for the table.
func NewRecord(table Table) (Record, error) {
	switch table {
	case TableShifts:
		return &Shift{}, nil
	case TableWorkers:
		return &Worker{}, nil
	case TableTasks:
		return &Task{}, nil
	case TableNotes:
		return &Note{}, nil
	case TableChecklists:
		return &Checklist{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
}

// DecodeRecord decodes a serialized record into the table's concrete type.
func DecodeRecord(table Table, data []byte) (Record, error) {
	rec, err := NewRecord(table)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to decode %s record: %w", table, err)
	}
	return rec, nil
}

// EncodeRecord serializes a record for storage and transport.
func EncodeRecord(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}
