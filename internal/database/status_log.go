package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"canteen/server/internal/models"
)

const statusLogSchema = `
CREATE TABLE IF NOT EXISTS order_status_log (
	id          BIGSERIAL PRIMARY KEY,
	order_id    TEXT        NOT NULL,
	old_status  TEXT        NOT NULL,
	new_status  TEXT        NOT NULL,
	changed_by  TEXT        NOT NULL,
	changed_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS order_status_log_order_id_idx ON order_status_log (order_id, changed_at);
`

// StatusLog is the append-only audit trail of lifecycle transitions.
type StatusLog struct {
	pool *pgxpool.Pool
}

// OpenStatusLog connects to url and makes sure the table exists.
func OpenStatusLog(ctx context.Context, url string) (*StatusLog, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "open status log pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping status log")
	}
	if _, err := pool.Exec(ctx, statusLogSchema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "create order_status_log")
	}
	return &StatusLog{pool: pool}, nil
}

// Record appends one transition.
func (l *StatusLog) Record(ctx context.Context, c models.StatusChange) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO order_status_log (order_id, old_status, new_status, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.OrderID, string(c.From), string(c.To), c.ChangedBy, c.ChangedAt)
	return errors.Wrapf(err, "record status change for %s", c.OrderID)
}

// History returns an order's transitions, oldest first.
func (l *StatusLog) History(ctx context.Context, orderID string) ([]models.StatusChange, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT order_id, old_status, new_status, changed_by, changed_at
		FROM order_status_log
		WHERE order_id = $1
		ORDER BY changed_at, id
	`, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "query history for %s", orderID)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.StatusChange, error) {
		var c models.StatusChange
		var from, to string
		err := row.Scan(&c.OrderID, &from, &to, &c.ChangedBy, &c.ChangedAt)
		c.From, c.To = models.OrderStatus(from), models.OrderStatus(to)
		return c, err
	})
	return out, errors.Wrapf(err, "scan history for %s", orderID)
}

// Close releases the pool.
func (l *StatusLog) Close() {
	if l != nil && l.pool != nil {
		l.pool.Close()
	}
}
