package cart

import (
	"context"
	"sync"
	"time"

	"github.com/shopcore/fulfillment/internal/fault"
)

// MemRepo keeps carts in process; used by tests and local runs.
type MemRepo struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

var _ Repo = (*MemRepo)(nil)

func NewMemRepo() *MemRepo {
	return &MemRepo{carts: make(map[string]*Cart)}
}

func (r *MemRepo) Get(ctx context.Context, owner string) (Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[owner]
	if !ok {
		return Cart{}, fault.NotFound("cart for owner %s", owner)
	}
	out := *c
	out.Items = append([]Item(nil), c.Items...)
	return out, nil
}

func (r *MemRepo) Create(ctx context.Context, owner string) (Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.carts[owner]; ok {
		out := *c
		out.Items = append([]Item(nil), c.Items...)
		return out, nil
	}
	now := time.Now().UTC()
	c := &Cart{Owner: owner, CreatedAt: now, UpdatedAt: now}
	r.carts[owner] = c
	return *c, nil
}

func (r *MemRepo) InsertItem(ctx context.Context, owner string, item Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[owner]
	if !ok {
		return fault.NotFound("cart for owner %s", owner)
	}
	c.Items = append(c.Items, item)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemRepo) UpdateItemQty(ctx context.Context, owner, itemID string, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[owner]
	if !ok {
		return fault.NotFound("cart for owner %s", owner)
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items[i].Qty = qty
			c.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fault.NotFound("cart item %s", itemID)
}

func (r *MemRepo) DeleteItem(ctx context.Context, owner, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[owner]
	if !ok {
		return fault.NotFound("cart for owner %s", owner)
	}
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			break
		}
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemRepo) DeleteItems(ctx context.Context, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[owner]
	if !ok {
		return fault.NotFound("cart for owner %s", owner)
	}
	c.Items = nil
	c.UpdatedAt = time.Now().UTC()
	return nil
}
