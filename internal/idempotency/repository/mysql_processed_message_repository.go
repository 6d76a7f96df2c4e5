package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/orderflow/internal/database"
	apperrors "github.com/allisson/orderflow/internal/errors"
)

// MySQLProcessedMessageRepository implements the processed-message ledger for MySQL.
type MySQLProcessedMessageRepository struct {
	db *sql.DB
}

// NewMySQLProcessedMessageRepository creates a new MySQLProcessedMessageRepository.
func NewMySQLProcessedMessageRepository(db *sql.DB) *MySQLProcessedMessageRepository {
	return &MySQLProcessedMessageRepository{db: db}
}

// TryMarkProcessed records messageID and returns true, or returns false when it was
// already recorded. message_id is VARBINARY, so ids compare byte for byte. A duplicate
// key fails only the statement, leaving the caller's transaction usable.
func (r *MySQLProcessedMessageRepository) TryMarkProcessed(ctx context.Context, messageID string) (bool, error) {
	if err := checkMessageID(messageID); err != nil {
		return false, err
	}

	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO processed_messages (message_id, processed_at) VALUES (?, ?)`

	result, err := querier.ExecContext(ctx, query, messageID, time.Now().UTC())
	if database.IsUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Wrap(err, "failed to mark message as processed")
	}
	return insertedOne(result)
}

// IsProcessed reports whether messageID was recorded.
func (r *MySQLProcessedMessageRepository) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	if err := checkMessageID(messageID); err != nil {
		return false, err
	}

	querier := database.GetTx(ctx, r.db)

	var exists bool
	err := querier.QueryRowContext(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_messages WHERE message_id = ?)`,
		messageID,
	).Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to check processed message")
	}
	return exists, nil
}
