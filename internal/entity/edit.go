package entity

import "time"

// PendingEdit is one locally edited cell awaiting server confirmation.
type PendingEdit struct {
	SessionID  string
	FileKey    string
	Field      string
	Value      any
	RecordedAt time.Time
}
