package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrOutOfStock      = errors.New("not enough stock")
)

type Product struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Price     float64   `json:"price" db:"price"`
	Stock     int       `json:"stock" db:"stock"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// StockLine is one requested decrement within a reservation.
type StockLine struct {
	ProductID uuid.UUID
	Quantity  int
}

// StockReserver is the catalog collaborator contract used during order
// creation. Reserve is all-or-nothing: either every line is checked and
// decremented, or no stock changes at all. Release is the compensation path
// for an order that could not be persisted after a successful Reserve.
type StockReserver interface {
	Reserve(ctx context.Context, lines []StockLine) error
	Release(ctx context.Context, lines []StockLine) error
}
