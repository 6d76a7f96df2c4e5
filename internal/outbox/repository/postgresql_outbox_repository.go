// Package repository provides the outbox store for PostgreSQL and MySQL. Records are
// appended inside the producer's transaction and removed once the transport confirms delivery.
package repository

import (
	"context"
	"database/sql"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/allisson/orderflow/internal/database"
	apperrors "github.com/allisson/orderflow/internal/errors"
	"github.com/allisson/orderflow/internal/outbox/domain"
)

// PostgreSQLOutboxRepository handles outbox record persistence for PostgreSQL
type PostgreSQLOutboxRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutboxRepository creates a new PostgreSQLOutboxRepository
func NewPostgreSQLOutboxRepository(db *sql.DB) *PostgreSQLOutboxRepository {
	return &PostgreSQLOutboxRepository{
		db: db,
	}
}

// Append stages a record using the transaction carried by ctx. It never commits.
func (r *PostgreSQLOutboxRepository) Append(ctx context.Context, record *domain.OutboxRecord) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_messages (id, type, payload, occurred_at, correlation_id, attempts, last_error)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := querier.ExecContext(ctx, query, record.ID, record.Type, record.Payload, record.OccurredAt,
		record.CorrelationID, record.Attempts, record.LastError)
	if err != nil {
		return apperrors.Wrap(err, "failed to append outbox record")
	}
	return nil
}

// FetchPendingBatch returns up to limit non-quarantined records, oldest first.
func (r *PostgreSQLOutboxRepository) FetchPendingBatch(
	ctx context.Context,
	limit int,
) ([]*domain.OutboxRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, type, payload, occurred_at, correlation_id, attempts, last_error
			  FROM outbox_messages
			  WHERE quarantined_at IS NULL
			  ORDER BY occurred_at ASC, id ASC
			  LIMIT $1`

	rows, err := querier.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to fetch pending outbox records")
	}
	defer rows.Close() //nolint:errcheck

	records := make([]*domain.OutboxRecord, 0)
	for rows.Next() {
		var (
			record    domain.OutboxRecord
			lastError sql.NullString
		)

		err := rows.Scan(&record.ID, &record.Type, &record.Payload, &record.OccurredAt,
			&record.CorrelationID, &record.Attempts, &lastError)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan outbox record")
		}

		records = append(records, finishRecord(&record, lastError))
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outbox records")
	}

	return records, nil
}

// MarkPublished removes a delivered record. Removing a missing record is not an error.
func (r *PostgreSQLOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, r.db)

	if _, err := querier.ExecContext(ctx, `DELETE FROM outbox_messages WHERE id = $1`, id); err != nil {
		return apperrors.Wrap(err, "failed to mark outbox record as published")
	}
	return nil
}

// MarkFailed counts a failed attempt and keeps the record pending.
func (r *PostgreSQLOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_messages SET attempts = attempts + 1, last_error = $1 WHERE id = $2`

	if _, err := querier.ExecContext(ctx, query, truncateReason(reason), id); err != nil {
		return apperrors.Wrap(err, "failed to mark outbox record as failed")
	}
	return nil
}

// Quarantine excludes a record from future batches.
func (r *PostgreSQLOutboxRepository) Quarantine(ctx context.Context, id uuid.UUID, reason string) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_messages SET quarantined_at = $1, last_error = $2 WHERE id = $3`

	if _, err := querier.ExecContext(ctx, query, time.Now().UTC(), truncateReason(reason), id); err != nil {
		return apperrors.Wrap(err, "failed to quarantine outbox record")
	}
	return nil
}

// CountPending returns the number of records still waiting for delivery.
func (r *PostgreSQLOutboxRepository) CountPending(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_messages WHERE quarantined_at IS NULL`).
		Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count pending outbox records")
	}
	return count, nil
}

func finishRecord(record *domain.OutboxRecord, lastError sql.NullString) *domain.OutboxRecord {
	record.OccurredAt = record.OccurredAt.UTC()
	if lastError.Valid {
		msg := lastError.String
		record.LastError = &msg
	}
	return record
}

const maxReasonLength = 2000

// truncateReason cuts reason to at most maxReasonLength bytes without splitting a rune.
func truncateReason(reason string) string {
	if len(reason) <= maxReasonLength {
		return reason
	}
	cut := maxReasonLength
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
