package eventstore

import (
	"time"

	"github.com/ledgerline/payroll-psp/internal/events"
)

// Record is a persisted domain event, with its insertion-order sequence
// number so replay can recover a stable ordering even when two events share
// a timestamp.
type Record struct {
	Sequence int64        `json:"sequence"`
	Event    events.Event `json:"event"`
	StoredAt time.Time    `json:"stored_at"`
}

// Filter selects a subset of the event log for query or replay.
type Filter struct {
	TenantID      string
	From          *time.Time
	To            *time.Time
	CorrelationID string
	CausationID   string
	Category      events.Category
	Type          events.Type
}
