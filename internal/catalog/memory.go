package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofrs/uuid"
)

// MemoryStore keeps product stock in memory. Used for local development and
// in tests; the mutex makes every reservation a single critical section.
type MemoryStore struct {
	mu       sync.Mutex
	products map[uuid.UUID]*Product
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{products: make(map[uuid.UUID]*Product)}
}

// AddProduct seeds a product. Replaces any existing entry with the same id.
func (s *MemoryStore) AddProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = &p
}

// Stock returns the current stock for a product, for inspection in tests.
func (s *MemoryStore) Stock(id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return 0, ErrProductNotFound
	}
	return p.Stock, nil
}

func (s *MemoryStore) Reserve(_ context.Context, lines []StockLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check the whole batch before touching anything.
	for _, line := range lines {
		p, ok := s.products[line.ProductID]
		if !ok {
			return fmt.Errorf("catalog: product %s: %w", line.ProductID, ErrProductNotFound)
		}
		if p.Stock < line.Quantity {
			return fmt.Errorf("catalog: product %s: %w", line.ProductID, ErrOutOfStock)
		}
	}

	for _, line := range lines {
		s.products[line.ProductID].Stock -= line.Quantity
	}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, lines []StockLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range lines {
		if p, ok := s.products[line.ProductID]; ok {
			p.Stock += line.Quantity
		}
	}
	return nil
}
