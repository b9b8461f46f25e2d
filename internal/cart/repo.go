package cart

import "context"

// Repo persists one cart per owner. Get returns fault.NotFound for an
// owner without a cart; DeleteItem is a no-op for an absent item.
type Repo interface {
	Get(ctx context.Context, owner string) (Cart, error)
	Create(ctx context.Context, owner string) (Cart, error)
	InsertItem(ctx context.Context, owner string, item Item) error
	UpdateItemQty(ctx context.Context, owner, itemID string, qty int) error
	DeleteItem(ctx context.Context, owner, itemID string) error
	DeleteItems(ctx context.Context, owner string) error
}
