package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type postgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) StockReserver {
	return &postgresStore{db: db}
}

// Reserve decrements every line inside one transaction. The conditional
// UPDATE takes the row lock, so concurrent reservations contending for the
// same product serialize on it; any failed line rolls the whole batch back.
func (s *postgresStore) Reserve(ctx context.Context, lines []StockLine) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("catalog: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
				log.Error().Err(rbErr).Msg("catalog: failed to rollback stock reservation")
			}
		}
	}()

	for _, line := range lines {
		cmdTag, execErr := tx.Exec(ctx,
			`UPDATE products SET stock = stock - $1, updated_at = now() WHERE id = $2 AND stock >= $1`,
			line.Quantity, line.ProductID,
		)
		if execErr != nil {
			err = fmt.Errorf("catalog: failed to decrement stock for product %s: %w", line.ProductID, execErr)
			return err
		}
		if cmdTag.RowsAffected() == 0 {
			var exists bool
			if scanErr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, line.ProductID).Scan(&exists); scanErr != nil {
				err = fmt.Errorf("catalog: failed to check product %s: %w", line.ProductID, scanErr)
				return err
			}
			if !exists {
				err = fmt.Errorf("catalog: product %s: %w", line.ProductID, ErrProductNotFound)
				return err
			}
			err = fmt.Errorf("catalog: product %s: %w", line.ProductID, ErrOutOfStock)
			return err
		}
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		err = fmt.Errorf("catalog: failed to commit stock reservation: %w", commitErr)
		return err
	}
	return nil
}

// Release puts reserved quantities back. Missing products are ignored here:
// the reservation already proved they existed, and compensation must not fail
// louder than the error it compensates for.
func (s *postgresStore) Release(ctx context.Context, lines []StockLine) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("catalog: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
				log.Error().Err(rbErr).Msg("catalog: failed to rollback stock release")
			}
		}
	}()

	for _, line := range lines {
		if _, err = tx.Exec(ctx,
			`UPDATE products SET stock = stock + $1, updated_at = now() WHERE id = $2`,
			line.Quantity, line.ProductID,
		); err != nil {
			return fmt.Errorf("catalog: failed to restore stock for product %s: %w", line.ProductID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("catalog: failed to commit stock release: %w", err)
	}
	return nil
}
