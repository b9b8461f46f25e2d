package orders

import "context"

// Repo persists order aggregates. Orders are immutable once written
// except for status, delivery timestamp and payment settlement.
type Repo interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	ListByOwner(ctx context.Context, owner string) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
	// UpdateStatus persists o.Status, o.DeliveredAt and o.PaymentSettled,
	// but only while the stored status still equals from; a concurrent
	// transition surfaces as fault.Conflict.
	UpdateStatus(ctx context.Context, o Order, from Status) error
	Delete(ctx context.Context, id string) error
}
