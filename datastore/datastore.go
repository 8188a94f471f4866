package datastore

import (
	"context"
	"io"

	"github.com/kamal-github/outbox-sweeper/event"
)

// Store is the only gateway to the outbox table.
type Store interface {
	// PendingTopics returns every distinct message_type having at least
	// one undispatched row. An empty slice means there is nothing to do.
	PendingTopics(ctx context.Context) ([]string, error)

	// ClaimBatch claims up to limit undispatched rows for topic, oldest
	// first, locking them against concurrent claims for the lifetime of
	// the returned Batch. Rows locked by another in-flight claim are
	// skipped, not waited for, so concurrent sweepers partition the
	// backlog instead of blocking each other.
	//
	// A claim with no claimable rows is not an error; the returned Batch
	// simply carries no messages.
	ClaimBatch(ctx context.Context, topic string, limit int) (Batch, error)

	io.Closer
}

// Batch is one claim: the rows plus the transaction holding their locks.
// Exactly one of Mark or Release ends the claim. Mark finalizes the rows
// as dispatched; Release returns them to the pending pool.
type Batch interface {
	Messages() []event.OutboxMessage

	// Mark sets dispatched=now() on every claimed row and commits. Call
	// only after the transport confirmed the batch.
	Mark(ctx context.Context) error

	// Release rolls the claim back. Calling it after a successful Mark
	// is a no-op, so it is safe to defer.
	Release() error
}
