package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/orderflow/internal/database"
	apperrors "github.com/allisson/orderflow/internal/errors"
	orderDomain "github.com/allisson/orderflow/internal/order/domain"
)

// PostgreSQLStatusHistoryRepository implements the append-only status history for PostgreSQL.
type PostgreSQLStatusHistoryRepository struct {
	db *sql.DB
}

// NewPostgreSQLStatusHistoryRepository creates a new PostgreSQLStatusHistoryRepository.
func NewPostgreSQLStatusHistoryRepository(db *sql.DB) *PostgreSQLStatusHistoryRepository {
	return &PostgreSQLStatusHistoryRepository{db: db}
}

// Create appends a history row.
func (r *PostgreSQLStatusHistoryRepository) Create(
	ctx context.Context,
	history *orderDomain.OrderStatusHistory,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO order_status_history
			  (id, order_id, from_status, to_status, occurred_at, correlation_id, source, event_id, reason)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(
		ctx,
		query,
		history.ID,
		history.OrderID,
		nullableStatus(history.FromStatus),
		string(history.ToStatus),
		history.OccurredAt,
		history.CorrelationID,
		string(history.Source),
		history.EventID,
		history.Reason,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create order status history")
	}
	return nil
}

// ListByOrderID returns the timeline of an order, oldest first.
func (r *PostgreSQLStatusHistoryRepository) ListByOrderID(
	ctx context.Context,
	orderID uuid.UUID,
) ([]*orderDomain.OrderStatusHistory, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, order_id, from_status, to_status, occurred_at, correlation_id, source, event_id, reason
			  FROM order_status_history
			  WHERE order_id = $1
			  ORDER BY occurred_at ASC, id ASC`

	rows, err := querier.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list order status history")
	}
	defer rows.Close() //nolint:errcheck

	histories := make([]*orderDomain.OrderStatusHistory, 0)
	for rows.Next() {
		var (
			history    orderDomain.OrderStatusHistory
			fromStatus sql.NullString
			toStatus   string
			source     string
		)
		if err := rows.Scan(
			&history.ID,
			&history.OrderID,
			&fromStatus,
			&toStatus,
			&history.OccurredAt,
			&history.CorrelationID,
			&source,
			&history.EventID,
			&history.Reason,
		); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan order status history")
		}

		if err := finishHistory(&history, fromStatus, toStatus, source); err != nil {
			return nil, err
		}
		histories = append(histories, &history)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate order status history")
	}
	return histories, nil
}

func nullableStatus(status *orderDomain.Status) sql.NullString {
	if status == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*status), Valid: true}
}

func finishHistory(
	history *orderDomain.OrderStatusHistory,
	fromStatus sql.NullString,
	toStatus string,
	source string,
) error {
	if fromStatus.Valid {
		from, err := orderDomain.ParseStatus(fromStatus.String)
		if err != nil {
			return err
		}
		history.FromStatus = &from
	}

	to, err := orderDomain.ParseStatus(toStatus)
	if err != nil {
		return err
	}
	history.ToStatus = to
	history.Source = orderDomain.Source(source)
	history.OccurredAt = history.OccurredAt.UTC()
	return nil
}
