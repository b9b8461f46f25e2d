package inventory

import (
	"context"
	"sync"

	"github.com/shopcore/fulfillment/internal/fault"
)

// MemStore is an in-process catalog + ledger with the same contract as
// the Postgres store. It backs tests and local runs without a database.
type MemStore struct {
	mu    sync.Mutex
	byID  map[string]*Product
	byNum map[int64]string
}

var _ Catalog = (*MemStore)(nil)
var _ Ledger = (*MemStore)(nil)

func NewMemStore(products ...Product) *MemStore {
	s := &MemStore{
		byID:  make(map[string]*Product),
		byNum: make(map[int64]string),
	}
	for _, p := range products {
		s.Put(p)
	}
	return s
}

func (s *MemStore) Put(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.byID[p.ID] = &cp
	if p.NumID != 0 {
		s.byNum[p.NumID] = p.ID
	}
}

func (s *MemStore) Product(ctx context.Context, ref Ref) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.locked(ref)
	if err != nil {
		return Product{}, err
	}
	return *p, nil
}

func (s *MemStore) Reserve(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return fault.Validation("reserve qty must be positive, got %d", qty)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.locked(OpaqueRef(productID))
	if err != nil {
		return err
	}
	if p.Available < qty {
		return fault.InsufficientStock("product %s: requested %d, available %d", productID, qty, p.Available)
	}
	p.Available -= qty
	return nil
}

func (s *MemStore) Release(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return fault.Validation("release qty must be positive, got %d", qty)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.locked(OpaqueRef(productID))
	if err != nil {
		return err
	}
	p.Available += qty
	return nil
}

func (s *MemStore) Adjust(ctx context.Context, productID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.locked(OpaqueRef(productID))
	if err != nil {
		return err
	}
	if p.Available+delta < 0 {
		return fault.Conflict("adjust %s by %d would drive quantity negative", productID, delta)
	}
	p.Available += delta
	return nil
}

// locked resolves a ref; the caller must hold s.mu.
func (s *MemStore) locked(ref Ref) (*Product, error) {
	id := ref.Opaque()
	if ref.Kind() == RefNumeric {
		var ok bool
		id, ok = s.byNum[ref.Numeric()]
		if !ok {
			return nil, fault.NotFound("product %s", ref)
		}
	}
	p, ok := s.byID[id]
	if !ok {
		return nil, fault.NotFound("product %s", ref)
	}
	return p, nil
}
