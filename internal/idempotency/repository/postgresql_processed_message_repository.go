// Package repository records which inbound messages already had their effects applied.
// Marking runs inside the caller's transaction so the mark commits or rolls back with the effects.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/orderflow/internal/database"
	apperrors "github.com/allisson/orderflow/internal/errors"
	"github.com/allisson/orderflow/internal/messaging"
)

// Message id errors. Both wrap apperrors.ErrInvalidInput.
var (
	ErrEmptyMessageID   = apperrors.Wrap(apperrors.ErrInvalidInput, "message id is required")
	ErrMessageIDTooLong = apperrors.Wrapf(
		apperrors.ErrInvalidInput,
		"message id exceeds %d bytes",
		messaging.MaxMessageIDLength,
	)
)

// PostgreSQLProcessedMessageRepository implements the processed-message ledger for PostgreSQL.
type PostgreSQLProcessedMessageRepository struct {
	db *sql.DB
}

// NewPostgreSQLProcessedMessageRepository creates a new PostgreSQLProcessedMessageRepository.
func NewPostgreSQLProcessedMessageRepository(db *sql.DB) *PostgreSQLProcessedMessageRepository {
	return &PostgreSQLProcessedMessageRepository{db: db}
}

// TryMarkProcessed records messageID and returns true, or returns false when it was
// already recorded. Concurrent callers with the same id see exactly one true.
func (r *PostgreSQLProcessedMessageRepository) TryMarkProcessed(ctx context.Context, messageID string) (bool, error) {
	if err := checkMessageID(messageID); err != nil {
		return false, err
	}

	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO processed_messages (message_id, processed_at)
			  VALUES ($1, $2)
			  ON CONFLICT (message_id) DO NOTHING`

	result, err := querier.ExecContext(ctx, query, messageID, time.Now().UTC())
	if err != nil {
		return false, apperrors.Wrap(err, "failed to mark message as processed")
	}
	return insertedOne(result)
}

// IsProcessed reports whether messageID was recorded.
func (r *PostgreSQLProcessedMessageRepository) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	if err := checkMessageID(messageID); err != nil {
		return false, err
	}

	querier := database.GetTx(ctx, r.db)

	var exists bool
	err := querier.QueryRowContext(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_messages WHERE message_id = $1)`,
		messageID,
	).Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to check processed message")
	}
	return exists, nil
}

// checkMessageID rejects ids the message_id column would not store verbatim.
func checkMessageID(messageID string) error {
	switch {
	case messageID == "":
		return ErrEmptyMessageID
	case len(messageID) > messaging.MaxMessageIDLength:
		return ErrMessageIDTooLong
	}
	return nil
}

func insertedOne(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read affected rows")
	}
	return affected == 1, nil
}
