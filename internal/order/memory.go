package order

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

type memoryRecord struct {
	mu      sync.Mutex
	order   Order
	history []StatusHistoryEntry
}

// MemoryRepository is an in-process Repository used for local development and
// tests. The store mutex guards the id sequence and the record map; each
// record carries its own mutex so transitions on different orders do not
// contend.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*memoryRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1, byID: make(map[int64]*memoryRecord)}
}

func cloneOrder(o Order) Order {
	c := o
	c.Items = make([]OrderItem, len(o.Items))
	copy(c.Items, o.Items)
	if o.Payment != nil {
		p := *o.Payment
		c.Payment = &p
	}
	if o.ReviewedBy != nil {
		id := *o.ReviewedBy
		c.ReviewedBy = &id
	}
	if o.ReviewedAt != nil {
		t := *o.ReviewedAt
		c.ReviewedAt = &t
	}
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		c.CancelledAt = &t
	}
	if o.ShippingAddress != nil {
		c.ShippingAddress = append([]byte(nil), o.ShippingAddress...)
	}
	return c
}

func (r *MemoryRepository) CreateOrder(_ context.Context, orderInput *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	orderInput.ID = r.nextID
	r.nextID++
	orderInput.Status = StatusPending
	orderInput.CreatedAt = now
	orderInput.UpdatedAt = now
	for i := range orderInput.Items {
		orderInput.Items[i].ID = int64(i + 1)
		orderInput.Items[i].OrderID = orderInput.ID
	}

	rec := &memoryRecord{order: cloneOrder(*orderInput)}
	rec.history = append(rec.history, StatusHistoryEntry{
		ID:        1,
		OrderID:   orderInput.ID,
		Status:    StatusPending,
		CreatedAt: now,
	})
	r.byID[orderInput.ID] = rec
	return nil
}

func (r *MemoryRepository) record(id int64) (*memoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return rec, nil
}

func (r *MemoryRepository) GetOrderByID(_ context.Context, id int64) (*Order, error) {
	rec, err := r.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	o := cloneOrder(rec.order)
	return &o, nil
}

func (r *MemoryRepository) GetOrdersByUserID(_ context.Context, userID uuid.UUID) ([]Order, error) {
	return r.list(func(o *Order) bool { return o.UserID == userID })
}

func (r *MemoryRepository) ListOrders(_ context.Context, statusFilter *Status) ([]Order, error) {
	return r.list(func(o *Order) bool {
		return statusFilter == nil || o.Status == *statusFilter
	})
}

func (r *MemoryRepository) list(match func(o *Order) bool) ([]Order, error) {
	r.mu.Lock()
	recs := make([]*memoryRecord, 0, len(r.byID))
	for id := int64(1); id < r.nextID; id++ {
		if rec, ok := r.byID[id]; ok {
			recs = append(recs, rec)
		}
	}
	r.mu.Unlock()

	orders := make([]Order, 0)
	for _, rec := range recs {
		rec.mu.Lock()
		if match(&rec.order) {
			orders = append(orders, cloneOrder(rec.order))
		}
		rec.mu.Unlock()
	}
	return orders, nil
}

func (r *MemoryRepository) UpdateOrder(_ context.Context, id int64, apply func(o *Order) (Status, error)) (*Order, error) {
	rec, err := r.record(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	// Apply against a copy; the record is only replaced when apply succeeds.
	o := cloneOrder(rec.order)
	appendStatus, err := apply(&o)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	o.UpdatedAt = now
	rec.order = cloneOrder(o)
	rec.history = append(rec.history, StatusHistoryEntry{
		ID:        int64(len(rec.history) + 1),
		OrderID:   id,
		Status:    appendStatus,
		CreatedAt: now,
	})
	return &o, nil
}

func (r *MemoryRepository) GetStatusHistory(_ context.Context, orderID int64) ([]StatusHistoryEntry, error) {
	rec, err := r.record(orderID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	entries := make([]StatusHistoryEntry, len(rec.history))
	copy(entries, rec.history)
	return entries, nil
}

func (r *MemoryRepository) ListPendingCreatedBefore(_ context.Context, cutoff time.Time) ([]int64, error) {
	orders, err := r.list(func(o *Order) bool {
		return o.Status == StatusPending && o.CreatedAt.Before(cutoff)
	})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids, nil
}
