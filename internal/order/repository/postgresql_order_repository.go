// Package repository provides PostgreSQL and MySQL persistence for orders and their
// status history. Status changes are compare-and-swap updates keyed on the current status.
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

// PostgreSQLOrderRepository implements order persistence for PostgreSQL.
type PostgreSQLOrderRepository struct {
	db *sql.DB
}

// NewPostgreSQLOrderRepository creates a new PostgreSQLOrderRepository.
func NewPostgreSQLOrderRepository(db *sql.DB) *PostgreSQLOrderRepository {
	return &PostgreSQLOrderRepository{db: db}
}

// Create inserts a new order.
func (r *PostgreSQLOrderRepository) Create(ctx context.Context, order *orderDomain.Order) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO orders (id, customer_name, product, amount, status, created_at, completed_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := querier.ExecContext(
		ctx,
		query,
		order.ID,
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
func (r *PostgreSQLOrderRepository) Get(ctx context.Context, orderID uuid.UUID) (*orderDomain.Order, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, customer_name, product, amount, status, created_at, completed_at
			  FROM orders
			  WHERE id = $1`

	order, err := scanPostgreSQLOrder(querier.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orderDomain.ErrOrderNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get order")
	}
	return order, nil
}

// List returns orders newest first.
func (r *PostgreSQLOrderRepository) List(ctx context.Context, offset, limit int) ([]*orderDomain.Order, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, customer_name, product, amount, status, created_at, completed_at
			  FROM orders
			  ORDER BY created_at DESC, id DESC
			  LIMIT $1 OFFSET $2`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list orders")
	}
	defer rows.Close() //nolint:errcheck

	orders := make([]*orderDomain.Order, 0)
	for rows.Next() {
		order, err := scanPostgreSQLOrder(rows)
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
func (r *PostgreSQLOrderRepository) Exists(ctx context.Context, orderID uuid.UUID) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	var exists bool
	err := querier.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to check order existence")
	}
	return exists, nil
}

// MarkProcessingIfPending moves the order from Pending to Processing. It returns true
// only if this call changed the row.
func (r *PostgreSQLOrderRepository) MarkProcessingIfPending(ctx context.Context, orderID uuid.UUID) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE orders SET status = $1 WHERE id = $2 AND status = $3`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(orderDomain.StatusProcessing),
		orderID,
		string(orderDomain.StatusPending),
	)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to mark order as processing")
	}
	return singleRowAffected(result)
}

// MarkFinalizedIfProcessing moves the order from Processing to Finalized and sets
// completed_at unless it is already set. It returns true only if this call changed the row.
func (r *PostgreSQLOrderRepository) MarkFinalizedIfProcessing(
	ctx context.Context,
	orderID uuid.UUID,
	completedAt time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE orders
			  SET status = $1, completed_at = COALESCE(completed_at, $2)
			  WHERE id = $3 AND status = $4`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(orderDomain.StatusFinalized),
		completedAt.UTC(),
		orderID,
		string(orderDomain.StatusProcessing),
	)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to mark order as finalized")
	}
	return singleRowAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgreSQLOrder(row rowScanner) (*orderDomain.Order, error) {
	var (
		order       orderDomain.Order
		status      string
		completedAt sql.NullTime
	)

	err := row.Scan(
		&order.ID,
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

	return finishOrder(&order, status, completedAt)
}

func finishOrder(order *orderDomain.Order, status string, completedAt sql.NullTime) (*orderDomain.Order, error) {
	parsed, err := orderDomain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	order.Status = parsed
	order.CreatedAt = order.CreatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		order.CompletedAt = &t
	}
	return order, nil
}

func singleRowAffected(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read affected rows")
	}
	return affected == 1, nil
}
