package models

// ConnState is the connectivity monitor's state machine position.
type ConnState string

const (
	ConnUnknown  ConnState = "unknown"
	ConnOnline   ConnState = "online"
	ConnDegraded ConnState = "degraded"
	ConnOffline  ConnState = "offline"
)

// Connectivity is the transient connectivity snapshot, rebuilt every session.
// Online stays true through degraded operation; it flips to false only after
// the retry ceiling is reached, never on the first heartbeat failure.
type Connectivity struct {
	State               ConnState `json:"state"`
	Online              bool      `json:"online"`
	RetryAttempts       int       `json:"retry_attempts"`
	LastHeartbeatMillis int64     `json:"last_heartbeat_millis"`
}
