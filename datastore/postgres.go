package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kamal-github/outbox-sweeper/event"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Postgres struct {
	db     *sql.DB
	table  string
	logger *zap.Logger
}

func NewPostgres(db *sql.DB, table string, logger *zap.Logger) (Store, error) {
	if db == nil {
		return Postgres{}, fmt.Errorf("%s: %w", "NewPostgres", errors.New("nil DB"))
	}

	return Postgres{
		db:     db,
		table:  table,
		logger: logger,
	}, nil
}

func (p Postgres) Close() error {
	return p.db.Close()
}

func (p Postgres) PendingTopics(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf(
		"SELECT DISTINCT message_type FROM %s WHERE dispatched IS NULL", p.table,
	)

	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}

	topics := make([]string, 0)

	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			p.logger.Error("error while scan", zap.Error(err))
			return nil, err
		}

		topics = append(topics, t)
	}

	if err := rows.Close(); err != nil {
		return nil, err
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return topics, nil
}

// ClaimBatch opens a transaction and selects the oldest undispatched rows
// for topic with FOR UPDATE SKIP LOCKED. The row locks live until the
// returned Batch is marked or released, so an overlapping sweeper never
// sees the same rows.
func (p Postgres) ClaimBatch(ctx context.Context, topic string, limit int) (Batch, error) {
	const errPrefix = "postgres.ClaimBatch"

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errPrefix, err)
	}

	q := fmt.Sprintf(
		`SELECT id, message_id, message_type, channel_address, dispatched, timestamp, body, trace_parent
		FROM %s
		WHERE dispatched IS NULL AND message_type = $1
		ORDER BY timestamp
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, p.table,
	)

	rows, err := tx.QueryContext(ctx, q, topic, limit)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("%s: %w", errPrefix, err)
	}

	msgs, err := scanMessages(rows)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("%s: %w", errPrefix, err)
	}

	return &pgBatch{
		tx:     tx,
		table:  p.table,
		msgs:   msgs,
		logger: p.logger,
	}, nil
}

func scanMessages(rows *sql.Rows) ([]event.OutboxMessage, error) {
	msgs := make([]event.OutboxMessage, 0)

	for rows.Next() {
		var m event.OutboxMessage
		if err := rows.Scan(
			&m.ID,
			&m.MessageID,
			&m.MessageType,
			&m.ChannelAddress,
			&m.Dispatched,
			&m.Timestamp,
			&m.Body,
			&m.TraceParent,
		); err != nil {
			return nil, err
		}

		msgs = append(msgs, m)
	}

	if err := rows.Close(); err != nil {
		return nil, err
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return msgs, nil
}

type pgBatch struct {
	tx     *sql.Tx
	table  string
	msgs   []event.OutboxMessage
	logger *zap.Logger
}

func (b *pgBatch) Messages() []event.OutboxMessage {
	return b.msgs
}

func (b *pgBatch) Mark(ctx context.Context) error {
	const errPrefix = "postgres.Mark"

	ids := event.IDs(b.msgs)
	if len(ids) == 0 {
		return b.tx.Commit()
	}

	q := fmt.Sprintf(
		`UPDATE %s SET dispatched = NOW() WHERE id = ANY($1)`, b.table,
	)

	res, err := b.tx.ExecContext(ctx, q, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("%s: error while marking rows dispatched: %w", errPrefix, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", errPrefix, err)
	}
	if affected != int64(len(ids)) {
		return fmt.Errorf("%s: marked %d of %d rows", errPrefix, affected, len(ids))
	}

	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", errPrefix, err)
	}

	b.logger.Info("outbox rows marked dispatched", zap.Int64s("outboxIDs", ids))

	return nil
}

func (b *pgBatch) Release() error {
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}

	return nil
}
