package models

import (
	"encoding/json"
	"time"
)

// EventKind is the kind of change announced on the realtime feed.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// ChangeEvent is the wire format published on a table's change-feed channel
// after every confirmed remote save.
type ChangeEvent struct {
	Kind      EventKind       `json:"event_kind"`
	Table     Table           `json:"table"`
	NewRecord json.RawMessage `json:"new_record,omitempty"`
	OldRecord json.RawMessage `json:"old_record,omitempty"`
	DeviceID  string          `json:"device_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// DataChange is emitted to local listeners after every successful local
// mutation. Observation only; nothing depends on it for correctness.
type DataChange struct {
	Table           Table  `json:"table"`
	Op              OpKind `json:"op"`
	Record          Record `json:"record"`
	DeviceID        string `json:"device_id"`
	TimestampMillis int64  `json:"timestamp_millis"`
}

// RealtimeUpdate is emitted after a remote change has been merged into the
// local cache. Observation only.
type RealtimeUpdate struct {
	Table        Table     `json:"table"`
	Kind         EventKind `json:"event_kind"`
	NewRecord    Record    `json:"new_record,omitempty"`
	OldRecord    Record    `json:"old_record,omitempty"`
	TimestampISO string    `json:"timestamp"`
}
