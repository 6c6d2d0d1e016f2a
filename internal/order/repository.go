package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var ErrOrderNotFound = errors.New("order not found")

// Repository owns order records, their id sequence and the status history
// ledger. UpdateOrder is the single per-order critical section: every guarded
// transition funnels through it so that a status change and its ledger append
// either both happen or neither does.
type Repository interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrderByID(ctx context.Context, id int64) (*Order, error)
	GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	ListOrders(ctx context.Context, statusFilter *Status) ([]Order, error)
	UpdateOrder(ctx context.Context, id int64, apply func(o *Order) (Status, error)) (*Order, error)
	GetStatusHistory(ctx context.Context, orderID int64) ([]StatusHistoryEntry, error)
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]int64, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `id, user_id, status, total_amount, shipping_address,
	payment_method, payment_proof, payment_submitted_at, payment_submitted_by,
	reviewed_by, reviewed_at, cancelled_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o           Order
		method      *string
		proof       *string
		submittedAt *time.Time
		submittedBy uuid.NullUUID
		reviewedBy  uuid.NullUUID
	)

	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.Status,
		&o.TotalAmount,
		&o.ShippingAddress,
		&method,
		&proof,
		&submittedAt,
		&submittedBy,
		&reviewedBy,
		&o.ReviewedAt,
		&o.CancelledAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if method != nil && proof != nil && submittedAt != nil && submittedBy.Valid {
		o.Payment = &PaymentConfirmation{
			Method:      *method,
			ProofRef:    *proof,
			SubmittedAt: *submittedAt,
			SubmittedBy: submittedBy.UUID,
		}
	}
	if reviewedBy.Valid {
		id := reviewedBy.UUID
		o.ReviewedBy = &id
	}

	return &o, nil
}

func (r *postgresRepository) CreateOrder(ctx context.Context, orderInput *Order) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("repository: failed to rollback after panic in CreateOrder")
			}
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
				log.Error().Err(rbErr).Msg("repository: failed to rollback CreateOrder transaction")
			}
		}
	}()

	now := time.Now().UTC()
	orderInput.Status = StatusPending
	orderInput.CreatedAt = now
	orderInput.UpdatedAt = now

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, status, total_amount, shipping_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		orderInput.UserID,
		string(orderInput.Status),
		orderInput.TotalAmount,
		orderInput.ShippingAddress,
		orderInput.CreatedAt,
		orderInput.UpdatedAt,
	).Scan(&orderInput.ID)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	for i := range orderInput.Items {
		item := &orderInput.Items[i]
		item.OrderID = orderInput.ID

		err = tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity)
			VALUES ($1, $2, $3)
			RETURNING id
		`,
			item.OrderID,
			item.ProductID,
			item.Quantity,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %d: %w", orderInput.ID, err)
		}
	}

	// First ledger entry, atomic with the order itself.
	_, err = tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, created_at)
		VALUES ($1, $2, $3)
	`, orderInput.ID, string(StatusPending), now)
	if err != nil {
		return fmt.Errorf("repository: failed to insert initial status history for order %d: %w", orderInput.ID, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit CreateOrder transaction: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, id int64) (*Order, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %d: %w", id, err)
	}

	if o.Items, err = r.loadItems(ctx, r.db, id); err != nil {
		return nil, err
	}
	return o, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *postgresRepository) loadItems(ctx context.Context, q querier, orderID int64) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for order id %d: %w", orderID, err)
	}
	defer rows.Close()

	items := make([]OrderItem, 0)
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order id %d: %w", orderID, err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for order id %d: %w", orderID, err)
	}
	return items, nil
}

func (r *postgresRepository) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for user id %s: %w", userID, err)
	}
	defer rows.Close()

	return r.collectOrders(ctx, rows)
}

func (r *postgresRepository) ListOrders(ctx context.Context, statusFilter *Status) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{}
	if statusFilter != nil {
		query += ` WHERE status = $1`
		args = append(args, string(*statusFilter))
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	return r.collectOrders(ctx, rows)
}

func (r *postgresRepository) collectOrders(ctx context.Context, rows pgx.Rows) ([]Order, error) {
	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}
	rows.Close()

	for i := range orders {
		items, err := r.loadItems(ctx, r.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// UpdateOrder runs apply inside a transaction holding the order's row lock,
// so concurrent transitions on one order serialize while other orders proceed
// independently. On success the order row is rewritten and exactly one ledger
// entry with the status returned by apply is appended. An error from apply
// aborts with no state change and no append.
func (r *postgresRepository) UpdateOrder(ctx context.Context, id int64, apply func(o *Order) (Status, error)) (updated *Order, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("repository: failed to rollback after panic in UpdateOrder")
			}
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
				log.Error().Err(rbErr).Int64("order_id", id).Msg("repository: failed to rollback UpdateOrder transaction")
			}
		}
	}()

	row := tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrOrderNotFound
			return nil, err
		}
		err = fmt.Errorf("repository: failed to select order %d for update: %w", id, err)
		return nil, err
	}
	if o.Items, err = r.loadItems(ctx, tx, id); err != nil {
		return nil, err
	}

	appendStatus, err := apply(o)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	o.UpdatedAt = now

	var (
		method      *string
		proof       *string
		submittedAt *time.Time
		submittedBy uuid.NullUUID
		reviewedBy  uuid.NullUUID
	)
	if o.Payment != nil {
		method = &o.Payment.Method
		proof = &o.Payment.ProofRef
		submittedAt = &o.Payment.SubmittedAt
		submittedBy = uuid.NullUUID{UUID: o.Payment.SubmittedBy, Valid: true}
	}
	if o.ReviewedBy != nil {
		reviewedBy = uuid.NullUUID{UUID: *o.ReviewedBy, Valid: true}
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = $1,
			payment_method = $2,
			payment_proof = $3,
			payment_submitted_at = $4,
			payment_submitted_by = $5,
			reviewed_by = $6,
			reviewed_at = $7,
			cancelled_at = $8,
			updated_at = $9
		WHERE id = $10
	`,
		string(o.Status),
		method,
		proof,
		submittedAt,
		submittedBy,
		reviewedBy,
		o.ReviewedAt,
		o.CancelledAt,
		o.UpdatedAt,
		id,
	)
	if err != nil {
		err = fmt.Errorf("repository: failed to update order %d: %w", id, err)
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, created_at)
		VALUES ($1, $2, $3)
	`, id, string(appendStatus), now)
	if err != nil {
		err = fmt.Errorf("repository: failed to append status history for order %d: %w", id, err)
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		err = fmt.Errorf("repository: failed to commit UpdateOrder transaction: %w", err)
		return nil, err
	}
	return o, nil
}

func (r *postgresRepository) GetStatusHistory(ctx context.Context, orderID int64) ([]StatusHistoryEntry, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("repository: failed to check order %d: %w", orderID, err)
	}
	if !exists {
		return nil, ErrOrderNotFound
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, status, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query status history for order %d: %w", orderID, err)
	}
	defer rows.Close()

	entries := make([]StatusHistoryEntry, 0)
	for rows.Next() {
		var e StatusHistoryEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan status history for order %d: %w", orderID, err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating status history for order %d: %w", orderID, err)
	}
	return entries, nil
}

func (r *postgresRepository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM orders
		WHERE status = $1 AND created_at < $2
		ORDER BY id
	`, string(StatusPending), cutoff)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query stale pending orders: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repository: failed to scan stale pending order id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating stale pending orders: %w", err)
	}
	return ids, nil
}
