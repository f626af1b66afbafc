package models

import "encoding/json"

// OpKind is the kind of mutation a queued operation carries.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

func (k OpKind) Valid() bool {
	switch k {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Priority controls drain order. Critical drains before high before normal
// before low; ties within a priority are oldest first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Rank returns the sort rank for the priority; lower drains first.
// Unknown priorities rank as normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// SyncOperation is a pending mutation awaiting delivery to the remote store.
type SyncOperation struct {
	ID              string          `json:"id"`
	Op              OpKind          `json:"op"`
	Table           Table           `json:"table"`
	RecordID        string          `json:"record_id"`
	Payload         json.RawMessage `json:"payload"`
	CreatedAtMillis int64           `json:"created_at_millis"`
	DeviceID        string          `json:"device_id"`
	UserID          string          `json:"user_id,omitempty"`
	RetryCount      int             `json:"retry_count"`
	Priority        Priority        `json:"priority"`
}

// Key identifies the logical record the operation targets. The queue holds at
// most one operation per key.
func (op SyncOperation) Key() string {
	return string(op.Table) + "/" + op.RecordID
}
