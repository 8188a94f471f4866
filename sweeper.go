package sweeper

import (
	"context"
	"fmt"

	"github.com/kamal-github/outbox-sweeper/backend"
	"github.com/kamal-github/outbox-sweeper/datastore"
	"go.uber.org/zap"
)

// Engine runs one sweep over the outbox: discover pending topics, then
// per topic claim a batch, route it, dispatch it and mark it. The store
// and the dispatchers are shared across concurrently running sweeps and
// must be safe for that.
type Engine struct {
	Store       datastore.Store
	Dispatchers map[string]backend.Dispatcher
	BatchSize   int

	Logger *zap.Logger
}

// Sweep processes every topic that currently has undispatched rows.
//
// An error from topic discovery aborts the sweep. An error within one
// topic is logged and contained; the remaining topics are still swept.
// Sweep holds no state across invocations, so a failed sweep is simply
// retried from scratch on the next tick.
func (e Engine) Sweep(ctx context.Context) error {
	topics, err := e.Store.PendingTopics(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	if len(topics) == 0 {
		e.Logger.Debug("no undispatched messages found")
		return nil
	}

	for _, topic := range topics {
		if err := e.sweepTopic(ctx, topic); err != nil {
			e.Logger.Error("failed while sweeping topic", zap.String("topic", topic), zap.Error(err))
		}
	}

	return nil
}

func (e Engine) sweepTopic(ctx context.Context, topic string) error {
	batch, err := e.Store.ClaimBatch(ctx, topic, e.BatchSize)
	if err != nil {
		return err
	}
	defer batch.Release()

	msgs := batch.Messages()
	if len(msgs) == 0 {
		return nil
	}

	// Topic and destination correlate 1:1 by producer convention, so the
	// first row's address stands for the whole batch. Logged so a
	// violating producer shows up.
	kind, address := backend.Route(msgs[0].ChannelAddress)

	d, ok := e.Dispatchers[kind]
	if !ok {
		return fmt.Errorf("no dispatcher configured for backend %q", kind)
	}

	if err := d.SendBatch(ctx, address, msgs); err != nil {
		// Rows stay pending; the claim lock dies with the rollback and
		// the next sweep picks them up again.
		e.Logger.Error("failed while dispatching batch",
			zap.String("topic", topic),
			zap.String("backend", kind),
			zap.String("address", address),
			zap.Int("messages", len(msgs)),
			zap.Error(err),
		)
		return err
	}

	if err := batch.Mark(ctx); err != nil {
		// Delivered but not marked: the rows WILL be re-sent. Consumers
		// must deduplicate on message_id.
		e.Logger.Error("failed while marking dispatched batch, messages will be redelivered",
			zap.String("topic", topic),
			zap.String("backend", kind),
			zap.Int("messages", len(msgs)),
			zap.Error(err),
		)
		return err
	}

	e.Logger.Info("outbox batch dispatched",
		zap.String("topic", topic),
		zap.String("backend", kind),
		zap.String("address", address),
		zap.Int("messages", len(msgs)),
	)

	return nil
}
