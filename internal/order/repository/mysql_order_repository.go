package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/orderflow/internal/database"
	apperrors "github.com/allisson/orderflow/internal/errors"
	orderDomain "github.com/allisson/orderflow/internal/order/domain"
)

// MySQLOrderRepository implements order persistence for MySQL.
// Uses BINARY(16) for UUID storage; the DSN must enable parseTime.
type MySQLOrderRepository struct {
	db *sql.DB
}

// NewMySQLOrderRepository creates a new MySQLOrderRepository.
func NewMySQLOrderRepository(db *sql.DB) *MySQLOrderRepository {
	return &MySQLOrderRepository{db: db}
}

// Create inserts a new order.
func (r *MySQLOrderRepository) Create(ctx context.Context, order *orderDomain.Order) error {
	querier := database.GetTx(ctx, r.db)

	id, err := order.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal order id")
	}

	query := `INSERT INTO orders (id, customer_name, product, amount, status, created_at, completed_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		order.CustomerName,
		order.Product,
		order.Amount,
		string(order.Status),
		order.CreatedAt,
		order.CompletedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Wrap(apperrors.ErrConflict, "order already exists")
		}
		return apperrors.Wrap(err, "failed to create order")
	}
	return nil
}

// Get retrieves an order by id. Returns ErrOrderNotFound when it does not exist.
func (r *MySQLOrderRepository) Get(ctx context.Context, orderID uuid.UUID) (*orderDomain.Order, error) {
	querier := database.GetTx(ctx, r.db)

	id, err := orderID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal order id")
	}

	query := `SELECT id, customer_name, product, amount, status, created_at, completed_at
			  FROM orders
			  WHERE id = ?`

	order, err := scanMySQLOrder(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orderDomain.ErrOrderNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get order")
	}
	return order, nil
}

// List returns orders newest first.
func (r *MySQLOrderRepository) List(ctx context.Context, offset, limit int) ([]*orderDomain.Order, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, customer_name, product, amount, status, created_at, completed_at
			  FROM orders
			  ORDER BY created_at DESC, id DESC
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list orders")
	}
	defer rows.Close() //nolint:errcheck

	orders := make([]*orderDomain.Order, 0)
	for rows.Next() {
		order, err := scanMySQLOrder(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan order")
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate orders")
	}
	return orders, nil
}

// Exists reports whether an order with the given id exists.
func (r *MySQLOrderRepository) Exists(ctx context.Context, orderID uuid.UUID) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	id, err := orderID.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal order id")
	}

	var exists bool
	err = querier.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to check order existence")
	}
	return exists, nil
}

// MarkProcessingIfPending moves the order from Pending to Processing. It returns true
// only if this call changed the row.
func (r *MySQLOrderRepository) MarkProcessingIfPending(ctx context.Context, orderID uuid.UUID) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	id, err := orderID.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal order id")
	}

	query := `UPDATE orders SET status = ? WHERE id = ? AND status = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(orderDomain.StatusProcessing),
		id,
		string(orderDomain.StatusPending),
	)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to mark order as processing")
	}
	return singleRowAffected(result)
}

// MarkFinalizedIfProcessing moves the order from Processing to Finalized and sets
// completed_at unless it is already set. It returns true only if this call changed the row.
func (r *MySQLOrderRepository) MarkFinalizedIfProcessing(
	ctx context.Context,
	orderID uuid.UUID,
	completedAt time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	id, err := orderID.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal order id")
	}

	query := `UPDATE orders
			  SET status = ?, completed_at = COALESCE(completed_at, ?)
			  WHERE id = ? AND status = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(orderDomain.StatusFinalized),
		completedAt.UTC(),
		id,
		string(orderDomain.StatusProcessing),
	)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to mark order as finalized")
	}
	return singleRowAffected(result)
}

func scanMySQLOrder(row rowScanner) (*orderDomain.Order, error) {
	var (
		order       orderDomain.Order
		id          []byte
		status      string
		completedAt sql.NullTime
	)

	err := row.Scan(
		&id,
		&order.CustomerName,
		&order.Product,
		&order.Amount,
		&status,
		&order.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := order.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal order id")
	}

	return finishOrder(&order, status, completedAt)
}
