package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/subcool-seeds/cultivai-orders/internal/auth"
	"github.com/subcool-seeds/cultivai-orders/internal/catalog"
)

// allowedTransitions is the guarded lifecycle graph. PAID and CANCELLED are
// terminal; REJECTED only exits through payment resubmission. The admin
// SetStatus override deliberately bypasses this table.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusUnderReview: true,
		StatusCancelled:   true,
	},
	StatusUnderReview: {
		StatusPaid:     true,
		StatusRejected: true,
	},
	StatusRejected: {
		StatusUnderReview: true,
	},
	StatusPaid:      {},
	StatusCancelled: {},
}

// pendingExpiry is how long an order may sit in PENDING before the sweep
// cancels it.
const pendingExpiry = time.Hour

var (
	ErrUnauthorized         = errors.New("actor is not allowed to perform this action")
	ErrInvalidTransition    = errors.New("invalid order status transition")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrMissingProof         = errors.New("no payment proof submitted")
	ErrInvalidStatus        = errors.New("unknown order status")
	ErrInvalidOrder         = errors.New("invalid order")
)

type CreateOrderInput struct {
	Items           []OrderItem     `json:"items"`
	TotalAmount     float64         `json:"total_amount"`
	ShippingAddress json.RawMessage `json:"shipping_address,omitempty"`
}

type Service interface {
	CreateOrder(ctx context.Context, actor auth.Identity, input CreateOrderInput) (*Order, error)
	GetOrder(ctx context.Context, actor auth.Identity, id int64) (*Order, error)
	ListOrdersForUser(ctx context.Context, actor auth.Identity) ([]Order, error)
	ListAllOrders(ctx context.Context, actor auth.Identity, statusFilter *Status) ([]Order, error)
	SubmitPayment(ctx context.Context, actor auth.Identity, orderID int64, method, proofRef string) (*Order, error)
	AutoReview(ctx context.Context, actor auth.Identity, orderID int64) (*Order, error)
	SetStatus(ctx context.Context, actor auth.Identity, orderID int64, newStatus Status) (*Order, error)
	CancelOrder(ctx context.Context, actor auth.Identity, orderID int64) (*Order, error)
	GetHistory(ctx context.Context, actor auth.Identity, orderID int64) ([]StatusHistoryEntry, error)
	SweepStaleOrders(ctx context.Context, now time.Time) (int, error)
}

type service struct {
	repo  Repository
	stock catalog.StockReserver
}

func NewService(repo Repository, stock catalog.StockReserver) Service {
	return &service{repo: repo, stock: stock}
}

// transition is the one place a guarded status change happens.
func transition(o *Order, to Status) error {
	allowed, ok := allowedTransitions[o.Status]
	if !ok || !allowed[to] {
		return fmt.Errorf("%w: cannot go from %s to %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	return nil
}

func (s *service) CreateOrder(ctx context.Context, actor auth.Identity, input CreateOrderInput) (*Order, error) {
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrInvalidOrder)
	}
	if input.TotalAmount < 0 {
		return nil, fmt.Errorf("%w: total amount cannot be negative", ErrInvalidOrder)
	}

	lines := make([]catalog.StockLine, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for product %s must be greater than zero", ErrInvalidOrder, item.ProductID)
		}
		lines = append(lines, catalog.StockLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	// Check-and-decrement is all-or-nothing inside the catalog collaborator.
	if err := s.stock.Reserve(ctx, lines); err != nil {
		log.Warn().Err(err).Stringer("user_id", actor.UserID).Msg("service: stock reservation failed")
		return nil, err
	}

	o := &Order{
		UserID:          actor.UserID,
		Items:           input.Items,
		TotalAmount:     input.TotalAmount,
		ShippingAddress: input.ShippingAddress,
	}
	if err := s.repo.CreateOrder(ctx, o); err != nil {
		// Put the stock back so a failed insert does not leak decrements.
		if relErr := s.stock.Release(ctx, lines); relErr != nil {
			log.Error().Err(relErr).Msg("service: failed to release stock after create failure")
		}
		log.Error().Err(err).Stringer("user_id", actor.UserID).Msg("service: failed to create order")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().Int64("order_id", o.ID).Stringer("user_id", actor.UserID).Msg("service: order created")
	return o, nil
}

func (s *service) GetOrder(ctx context.Context, actor auth.Identity, id int64) (*Order, error) {
	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Int64("order_id", id).Msg("service: failed to fetch order")
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}
	if o.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, ErrUnauthorized
	}
	return o, nil
}

func (s *service) ListOrdersForUser(ctx context.Context, actor auth.Identity) ([]Order, error) {
	orders, err := s.repo.GetOrdersByUserID(ctx, actor.UserID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", actor.UserID).Msg("service: failed to fetch user orders")
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}
	return orders, nil
}

func (s *service) ListAllOrders(ctx context.Context, actor auth.Identity, statusFilter *Status) ([]Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrUnauthorized
	}
	if statusFilter != nil && !statusFilter.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, *statusFilter)
	}
	orders, err := s.repo.ListOrders(ctx, statusFilter)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list orders")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *service) SubmitPayment(ctx context.Context, actor auth.Identity, orderID int64, method, proofRef string) (*Order, error) {
	if !isAllowedPaymentMethod(method) {
		return nil, fmt.Errorf("%w: %q is not one of: %s",
			ErrInvalidPaymentMethod, method, strings.Join(AllowedPaymentMethods, ", "))
	}

	updated, err := s.repo.UpdateOrder(ctx, orderID, func(o *Order) (Status, error) {
		if o.UserID != actor.UserID && !actor.IsAdmin() {
			return "", ErrUnauthorized
		}
		// PENDING (first submission) and REJECTED (resubmission) are the only
		// states with an edge to UNDER_REVIEW.
		if err := transition(o, StatusUnderReview); err != nil {
			return "", err
		}
		o.Payment = &PaymentConfirmation{
			Method:      method,
			ProofRef:    proofRef,
			SubmittedAt: time.Now().UTC(),
			SubmittedBy: actor.UserID,
		}
		return StatusUnderReview, nil
	})
	if err != nil {
		s.logTransitionFailure(err, orderID, StatusUnderReview, "submit payment")
		return nil, err
	}

	log.Info().Int64("order_id", orderID).Str("method", method).Msg("service: payment submitted, order under review")
	return updated, nil
}

func (s *service) AutoReview(ctx context.Context, actor auth.Identity, orderID int64) (*Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrUnauthorized
	}

	var decided Status
	updated, err := s.repo.UpdateOrder(ctx, orderID, func(o *Order) (Status, error) {
		if o.Payment == nil || o.Payment.ProofRef == "" {
			return "", ErrMissingProof
		}
		decided = StatusRejected
		if approveOnReview(o) {
			decided = StatusPaid
		}
		if err := transition(o, decided); err != nil {
			return "", err
		}
		now := time.Now().UTC()
		reviewer := actor.UserID
		o.ReviewedBy = &reviewer
		o.ReviewedAt = &now
		return decided, nil
	})
	if err != nil {
		s.logTransitionFailure(err, orderID, decided, "auto review")
		return nil, err
	}

	log.Info().Int64("order_id", orderID).Stringer("result", updated.Status).Msg("service: order reviewed")
	return updated, nil
}

// SetStatus is the admin escape hatch: it skips the transition graph so a
// human operator can correct automation errors. It still appends to the
// ledger on every call, even when the status does not change.
func (s *service) SetStatus(ctx context.Context, actor auth.Identity, orderID int64, newStatus Status) (*Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrUnauthorized
	}
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, newStatus)
	}

	updated, err := s.repo.UpdateOrder(ctx, orderID, func(o *Order) (Status, error) {
		o.Status = newStatus
		if newStatus == StatusCancelled && o.CancelledAt == nil {
			now := time.Now().UTC()
			o.CancelledAt = &now
		}
		return newStatus, nil
	})
	if err != nil {
		s.logTransitionFailure(err, orderID, newStatus, "set status")
		return nil, err
	}

	log.Info().Int64("order_id", orderID).Stringer("new_status", newStatus).Stringer("admin_id", actor.UserID).Msg("service: order status overridden")
	return updated, nil
}

func (s *service) CancelOrder(ctx context.Context, actor auth.Identity, orderID int64) (*Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrUnauthorized
	}

	updated, err := s.repo.UpdateOrder(ctx, orderID, func(o *Order) (Status, error) {
		if err := transition(o, StatusCancelled); err != nil {
			return "", err
		}
		now := time.Now().UTC()
		o.CancelledAt = &now
		return StatusCancelled, nil
	})
	if err != nil {
		s.logTransitionFailure(err, orderID, StatusCancelled, "cancel")
		return nil, err
	}

	log.Info().Int64("order_id", orderID).Msg("service: order cancelled by admin")
	return updated, nil
}

func (s *service) GetHistory(ctx context.Context, actor auth.Identity, orderID int64) ([]StatusHistoryEntry, error) {
	if _, err := s.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	entries, err := s.repo.GetStatusHistory(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Int64("order_id", orderID).Msg("service: failed to fetch status history")
		return nil, fmt.Errorf("service: failed to fetch status history: %w", err)
	}
	return entries, nil
}

// SweepStaleOrders cancels every PENDING order created more than an hour
// before now and reports how many it cancelled. An order that leaves PENDING
// between the listing and its own critical section fails the guard and is
// skipped. A second immediate call therefore cancels nothing.
func (s *service) SweepStaleOrders(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-pendingExpiry)

	ids, err := s.repo.ListPendingCreatedBefore(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list stale pending orders")
		return 0, fmt.Errorf("service: failed to list stale pending orders: %w", err)
	}

	count := 0
	for _, id := range ids {
		_, err := s.repo.UpdateOrder(ctx, id, func(o *Order) (Status, error) {
			if !o.CreatedAt.Before(cutoff) {
				return "", fmt.Errorf("%w: order %d is no longer stale", ErrInvalidTransition, o.ID)
			}
			if err := transition(o, StatusCancelled); err != nil {
				return "", err
			}
			cancelledAt := now
			o.CancelledAt = &cancelledAt
			return StatusCancelled, nil
		})
		if err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrOrderNotFound) {
				continue
			}
			return count, fmt.Errorf("service: failed to cancel stale order %d: %w", id, err)
		}
		count++
	}

	if count > 0 {
		log.Info().Int("cancelled", count).Msg("service: stale pending orders swept")
	}
	return count, nil
}

func (s *service) logTransitionFailure(err error, orderID int64, to Status, op string) {
	switch {
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrMissingProof):
		log.Warn().Err(err).Int64("order_id", orderID).Stringer("to_status", to).Str("op", op).Msg("service: transition refused")
	default:
		log.Error().Err(err).Int64("order_id", orderID).Str("op", op).Msg("service: transition failed")
	}
}

func isAllowedPaymentMethod(method string) bool {
	for _, m := range AllowedPaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}
