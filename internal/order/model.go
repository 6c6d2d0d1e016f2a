package order

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusPaid        Status = "PAID"
	StatusRejected    Status = "REJECTED"
	StatusCancelled   Status = "CANCELLED"
)

func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the five known statuses. Used by the
// admin override, which accepts a status value from the outside.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusPaid, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// AllowedPaymentMethods is the whitelist checked on every submission.
var AllowedPaymentMethods = []string{"CashApp", "Zelle", "Venmo", "Bitcoin"}

type OrderItem struct {
	ID        int64     `json:"id" db:"id"`
	OrderID   int64     `json:"order_id" db:"order_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
}

// PaymentConfirmation is the buyer-submitted proof of payment. It is replaced
// wholesale on resubmission; the ledger keeps the transition record.
type PaymentConfirmation struct {
	Method      string    `json:"method" db:"payment_method"`
	ProofRef    string    `json:"proof_ref" db:"payment_proof"`
	SubmittedAt time.Time `json:"submitted_at" db:"payment_submitted_at"`
	SubmittedBy uuid.UUID `json:"submitted_by" db:"payment_submitted_by"`
}

type Order struct {
	ID              int64                `json:"id" db:"id"`
	UserID          uuid.UUID            `json:"user_id" db:"user_id"`
	Status          Status               `json:"status" db:"status"`
	Items           []OrderItem          `json:"items" db:"-"`
	TotalAmount     float64              `json:"total_amount" db:"total_amount"`
	ShippingAddress json.RawMessage      `json:"shipping_address,omitempty" db:"shipping_address"`
	Payment         *PaymentConfirmation `json:"payment,omitempty" db:"-"`
	ReviewedBy      *uuid.UUID           `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt      *time.Time           `json:"reviewed_at,omitempty" db:"reviewed_at"`
	CancelledAt     *time.Time           `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt       time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at" db:"updated_at"`
}

// StatusHistoryEntry is one row of the append-only per-order audit ledger.
// The first entry is written together with the order itself.
type StatusHistoryEntry struct {
	ID        int64     `json:"id" db:"id"`
	OrderID   int64     `json:"order_id" db:"order_id"`
	Status    Status    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
