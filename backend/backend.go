package backend

import (
	"context"
	"io"

	"github.com/kamal-github/outbox-sweeper/event"
)

const (
	RABBITMQ = "rabbitmq"
	SQS      = "sqs"
	SNS      = "sns"
)

// Dispatcher should be implemented by every messaging backend the sweeper
// can deliver to.
type Dispatcher interface {
	// SendBatch submits one entry per message to address, keyed by the
	// message's MessageID and carrying its Body. The call is
	// all-or-nothing: any rejection, including a partial-batch rejection
	// reported by the remote service, is an error and none of the rows
	// may be marked dispatched.
	SendBatch(ctx context.Context, address string, msgs []event.OutboxMessage) error

	io.Closer
}
