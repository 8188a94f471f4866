package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/kamal-github/outbox-sweeper/event"

	"go.uber.org/zap"
)

// MySQLDSN normalizes a DSN for use with the MySQL store. Scanning the
// dispatched and timestamp columns needs the driver to return DATETIME
// values as time.Time, so parseTime is forced on; without it every claim
// would fail at scan time.
func MySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("MySQLDSN: %w", err)
	}

	cfg.ParseTime = true

	return cfg.FormatDSN(), nil
}

// MySQL implements Store on MySQL 8, which supports the same
// FOR UPDATE SKIP LOCKED claim as Postgres.
type MySQL struct {
	db     *sql.DB
	table  string
	logger *zap.Logger
}

func NewMySQL(db *sql.DB, table string, logger *zap.Logger) (Store, error) {
	if db == nil {
		return MySQL{}, fmt.Errorf("%s: %w", "NewMySQL", errors.New("nil DB"))
	}

	return MySQL{
		db:     db,
		table:  table,
		logger: logger,
	}, nil
}

func (m MySQL) Close() error {
	return m.db.Close()
}

func (m MySQL) PendingTopics(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf(
		"SELECT DISTINCT message_type FROM %s WHERE dispatched IS NULL", m.table,
	)

	rows, err := m.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}

	topics := make([]string, 0)

	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			m.logger.Error("error while scan", zap.Error(err))
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

func (m MySQL) ClaimBatch(ctx context.Context, topic string, limit int) (Batch, error) {
	const errPrefix = "mysql.ClaimBatch"

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errPrefix, err)
	}

	q := fmt.Sprintf(
		`SELECT id, message_id, message_type, channel_address, dispatched, timestamp, body, trace_parent
		FROM %s
		WHERE dispatched IS NULL AND message_type = ?
		ORDER BY timestamp
		LIMIT ?
		FOR UPDATE SKIP LOCKED`, m.table,
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

	return &mysqlBatch{
		tx:     tx,
		table:  m.table,
		msgs:   msgs,
		logger: m.logger,
	}, nil
}

func buildPlaceholders(n int) string {
	return "?" + strings.Repeat(",?", n-1)
}

func mapInt64SliceInterfaceSlice(ids []int64) []interface{} {
	var iFaces []interface{}

	for _, id := range ids {
		iFaces = append(iFaces, id)
	}

	return iFaces
}

type mysqlBatch struct {
	tx     *sql.Tx
	table  string
	msgs   []event.OutboxMessage
	logger *zap.Logger
}

func (b *mysqlBatch) Messages() []event.OutboxMessage {
	return b.msgs
}

func (b *mysqlBatch) Mark(ctx context.Context) error {
	const errPrefix = "mysql.Mark"

	ids := event.IDs(b.msgs)
	if len(ids) == 0 {
		return b.tx.Commit()
	}

	q := fmt.Sprintf(
		`UPDATE %s SET dispatched = NOW() WHERE id IN (%s)`, b.table, buildPlaceholders(len(ids)),
	)

	res, err := b.tx.ExecContext(ctx, q, mapInt64SliceInterfaceSlice(ids)...)
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

func (b *mysqlBatch) Release() error {
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}

	return nil
}
