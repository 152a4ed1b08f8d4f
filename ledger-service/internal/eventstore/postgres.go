package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/eaglebank/ledger/shared/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
	position     BIGSERIAL PRIMARY KEY,
	id           TEXT        NOT NULL UNIQUE,
	stream_id    TEXT        NOT NULL,
	version      BIGINT      NOT NULL,
	event_type   TEXT        NOT NULL,
	data         JSONB       NOT NULL,
	occurred_at  TIMESTAMPTZ NOT NULL,
	trace_id     TEXT,
	span_id      TEXT,
	published_at TIMESTAMPTZ,
	UNIQUE (stream_id, version)
);
CREATE INDEX IF NOT EXISTS ledger_events_unpublished_idx
	ON ledger_events (position) WHERE published_at IS NULL;`

const uniqueViolation = "23505"

// PostgresLog stores events in a single table. The published_at column is the
// outbox marker read by the change feed relay.
type PostgresLog struct {
	db *sql.DB
}

func NewPostgresLog(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

// EnsureSchema creates the events table if it is missing.
func (l *PostgresLog) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure event schema: %w", err)
	}
	return nil
}

func (l *PostgresLog) Load(ctx context.Context, streamID string) ([]events.Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, stream_id, version, event_type, data, occurred_at, trace_id, span_id
		FROM ledger_events
		WHERE stream_id = $1
		ORDER BY version`, streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (l *PostgresLog) Append(ctx context.Context, streamID string, expectedVersion int64, records []events.Record) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), -1) FROM ledger_events WHERE stream_id = $1`, streamID,
	).Scan(&current)
	if err != nil {
		return err
	}
	if current != expectedVersion {
		return &ConcurrencyError{StreamID: streamID, ExpectedVersion: expectedVersion}
	}

	for _, r := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_events (id, stream_id, version, event_type, data, occurred_at, trace_id, span_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.ID, r.StreamID, r.Version, r.EventType, []byte(r.Data), r.Timestamp,
			nullString(r.TraceID), nullString(r.SpanID),
		)
		if err != nil {
			// A concurrent writer committed between our version read and insert.
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return &ConcurrencyError{StreamID: streamID, ExpectedVersion: expectedVersion}
			}
			return fmt.Errorf("insert event %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (l *PostgresLog) Pending(ctx context.Context, limit int) ([]events.Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, stream_id, version, event_type, data, occurred_at, trace_id, span_id
		FROM ledger_events
		WHERE published_at IS NULL
		ORDER BY position
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (l *PostgresLog) MarkPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := l.db.ExecContext(ctx,
		`UPDATE ledger_events SET published_at = now() WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

func scanRecords(rows *sql.Rows) ([]events.Record, error) {
	var out []events.Record
	for rows.Next() {
		var (
			r               events.Record
			data            []byte
			traceID, spanID sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.StreamID, &r.Version, &r.EventType, &data, &r.Timestamp, &traceID, &spanID); err != nil {
			return nil, err
		}
		r.Data = data
		r.TraceID = traceID.String
		r.SpanID = spanID.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
