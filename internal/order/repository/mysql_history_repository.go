package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/orderflow/internal/database"
	apperrors "github.com/allisson/orderflow/internal/errors"
	orderDomain "github.com/allisson/orderflow/internal/order/domain"
)

// MySQLStatusHistoryRepository implements the append-only status history for MySQL.
type MySQLStatusHistoryRepository struct {
	db *sql.DB
}

// NewMySQLStatusHistoryRepository creates a new MySQLStatusHistoryRepository.
func NewMySQLStatusHistoryRepository(db *sql.DB) *MySQLStatusHistoryRepository {
	return &MySQLStatusHistoryRepository{db: db}
}

// Create appends a history row.
func (r *MySQLStatusHistoryRepository) Create(ctx context.Context, history *orderDomain.OrderStatusHistory) error {
	querier := database.GetTx(ctx, r.db)

	id, err := history.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal history id")
	}
	orderID, err := history.OrderID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal order id")
	}

	query := `INSERT INTO order_status_history
			  (id, order_id, from_status, to_status, occurred_at, correlation_id, source, event_id, reason)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		orderID,
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
func (r *MySQLStatusHistoryRepository) ListByOrderID(
	ctx context.Context,
	orderID uuid.UUID,
) ([]*orderDomain.OrderStatusHistory, error) {
	querier := database.GetTx(ctx, r.db)

	orderIDBytes, err := orderID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal order id")
	}

	query := `SELECT id, order_id, from_status, to_status, occurred_at, correlation_id, source, event_id, reason
			  FROM order_status_history
			  WHERE order_id = ?
			  ORDER BY occurred_at ASC, id ASC`

	rows, err := querier.QueryContext(ctx, query, orderIDBytes)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list order status history")
	}
	defer rows.Close() //nolint:errcheck

	histories := make([]*orderDomain.OrderStatusHistory, 0)
	for rows.Next() {
		var (
			history    orderDomain.OrderStatusHistory
			id         []byte
			rowOrderID []byte
			fromStatus sql.NullString
			toStatus   string
			source     string
		)
		if err := rows.Scan(
			&id,
			&rowOrderID,
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

		if err := history.ID.UnmarshalBinary(id); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal history id")
		}
		if err := history.OrderID.UnmarshalBinary(rowOrderID); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal order id")
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
