package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/orderflow/internal/database"
	apperrors "github.com/allisson/orderflow/internal/errors"
	"github.com/allisson/orderflow/internal/outbox/domain"
)

// MySQLOutboxRepository handles outbox record persistence for MySQL.
// Uses BINARY(16) for UUID storage.
type MySQLOutboxRepository struct {
	db *sql.DB
}

// NewMySQLOutboxRepository creates a new MySQLOutboxRepository
func NewMySQLOutboxRepository(db *sql.DB) *MySQLOutboxRepository {
	return &MySQLOutboxRepository{
		db: db,
	}
}

// Append stages a record using the transaction carried by ctx. It never commits.
func (r *MySQLOutboxRepository) Append(ctx context.Context, record *domain.OutboxRecord) error {
	querier := database.GetTx(ctx, r.db)

	id, err := record.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal outbox record id")
	}

	query := `INSERT INTO outbox_messages (id, type, payload, occurred_at, correlation_id, attempts, last_error)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(ctx, query, id, record.Type, record.Payload, record.OccurredAt,
		record.CorrelationID, record.Attempts, record.LastError)
	if err != nil {
		return apperrors.Wrap(err, "failed to append outbox record")
	}
	return nil
}

// FetchPendingBatch returns up to limit non-quarantined records, oldest first.
func (r *MySQLOutboxRepository) FetchPendingBatch(ctx context.Context, limit int) ([]*domain.OutboxRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, type, payload, occurred_at, correlation_id, attempts, last_error
			  FROM outbox_messages
			  WHERE quarantined_at IS NULL
			  ORDER BY occurred_at ASC, id ASC
			  LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to fetch pending outbox records")
	}
	defer rows.Close() //nolint:errcheck

	records := make([]*domain.OutboxRecord, 0)
	for rows.Next() {
		var (
			record    domain.OutboxRecord
			id        []byte
			lastError sql.NullString
		)

		err := rows.Scan(&id, &record.Type, &record.Payload, &record.OccurredAt,
			&record.CorrelationID, &record.Attempts, &lastError)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan outbox record")
		}

		if err := record.ID.UnmarshalBinary(id); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal outbox record id")
		}

		records = append(records, finishRecord(&record, lastError))
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outbox records")
	}

	return records, nil
}

// MarkPublished removes a delivered record. Removing a missing record is not an error.
func (r *MySQLOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal outbox record id")
	}

	if _, err := querier.ExecContext(ctx, `DELETE FROM outbox_messages WHERE id = ?`, idBytes); err != nil {
		return apperrors.Wrap(err, "failed to mark outbox record as published")
	}
	return nil
}

// MarkFailed counts a failed attempt and keeps the record pending.
func (r *MySQLOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal outbox record id")
	}

	query := `UPDATE outbox_messages SET attempts = attempts + 1, last_error = ? WHERE id = ?`

	if _, err := querier.ExecContext(ctx, query, truncateReason(reason), idBytes); err != nil {
		return apperrors.Wrap(err, "failed to mark outbox record as failed")
	}
	return nil
}

// Quarantine excludes a record from future batches.
func (r *MySQLOutboxRepository) Quarantine(ctx context.Context, id uuid.UUID, reason string) error {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal outbox record id")
	}

	query := `UPDATE outbox_messages SET quarantined_at = ?, last_error = ? WHERE id = ?`

	if _, err := querier.ExecContext(ctx, query, time.Now().UTC(), truncateReason(reason), idBytes); err != nil {
		return apperrors.Wrap(err, "failed to quarantine outbox record")
	}
	return nil
}

// CountPending returns the number of records still waiting for delivery.
func (r *MySQLOutboxRepository) CountPending(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_messages WHERE quarantined_at IS NULL`).
		Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count pending outbox records")
	}
	return count, nil
}
