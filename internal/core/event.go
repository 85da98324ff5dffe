package core

import "time"

// EventType is the kind of change a TransactionEvent reports.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

func (e EventType) Valid() bool {
	return e == EventCreated || e == EventUpdated || e == EventDeleted
}

// TransactionEvent is emitted after a committed ledger write. For deletes,
// Transaction holds the row as it was before removal.
type TransactionEvent struct {
	Type        EventType
	Transaction TransactionView
	OccurredAt  time.Time
}
