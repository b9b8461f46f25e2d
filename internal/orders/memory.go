package orders

import (
	"context"
	"sort"
	"sync"

	"github.com/shopcore/fulfillment/internal/fault"
)

// MemRepo keeps orders in process; used by tests and local runs.
type MemRepo struct {
	mu     sync.Mutex
	orders map[string]*Order
}

var _ Repo = (*MemRepo)(nil)

func NewMemRepo() *MemRepo {
	return &MemRepo{orders: make(map[string]*Order)}
}

func (r *MemRepo) Create(ctx context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return fault.Conflict("order %s already exists", o.ID)
	}
	cp := clone(o)
	r.orders[o.ID] = &cp
	return nil
}

func (r *MemRepo) Get(ctx context.Context, id string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, fault.NotFound("order %s", id)
	}
	return clone(*o), nil
}

func (r *MemRepo) ListByOwner(ctx context.Context, owner string) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if o.Owner == owner {
			out = append(out, clone(*o))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *MemRepo) ListAll(ctx context.Context) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, clone(*o))
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *MemRepo) UpdateStatus(ctx context.Context, o Order, from Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[o.ID]
	if !ok {
		return fault.NotFound("order %s", o.ID)
	}
	if cur.Status != from {
		return fault.Conflict("order %s: status changed concurrently", o.ID)
	}
	cur.Status = o.Status
	cur.DeliveredAt = o.DeliveredAt
	cur.PaymentSettled = o.PaymentSettled
	return nil
}

func (r *MemRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[id]; !ok {
		return fault.NotFound("order %s", id)
	}
	delete(r.orders, id)
	return nil
}

func clone(o Order) Order {
	o.Items = append([]Item(nil), o.Items...)
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		o.DeliveredAt = &t
	}
	return o
}

func sortNewestFirst(out []Order) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
}
