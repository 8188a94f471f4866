package event

import (
	"database/sql"
	"time"
)

// OutboxMessage is one row of the outbox table.
//
// ID is the internal ordering and locking key and is never sent
// downstream. MessageID is the producer-assigned idempotency key and
// becomes the batch entry id on the wire, so consumers can deduplicate
// redeliveries. Body is forwarded verbatim.
type OutboxMessage struct {
	ID             int64          `db:"id"`
	MessageID      string         `db:"message_id"`
	MessageType    string         `db:"message_type"`
	ChannelAddress string         `db:"channel_address"`
	Dispatched     sql.NullTime   `db:"dispatched"`
	Timestamp      time.Time      `db:"timestamp"`
	Body           string         `db:"body"`
	TraceParent    sql.NullString `db:"trace_parent"`
}

// IDs returns the row ids of msgs, in order.
func IDs(msgs []OutboxMessage) []int64 {
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}

	return ids
}
