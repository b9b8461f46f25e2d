package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shopcore/fulfillment/internal/fault"
	"github.com/shopcore/fulfillment/internal/inventory"
)

type Service struct {
	repo    Repo
	catalog inventory.Catalog
	log     *zap.Logger
}

func NewService(repo Repo, catalog inventory.Catalog, log *zap.Logger) *Service {
	return &Service{repo: repo, catalog: catalog, log: log}
}

// GetOrCreate never fails for a valid owner: a missing cart is created
// empty on first touch.
func (s *Service) GetOrCreate(ctx context.Context, owner string) (Cart, error) {
	c, err := s.repo.Get(ctx, owner)
	if fault.KindOf(err) == fault.KindNotFound {
		return s.repo.Create(ctx, owner)
	}
	return c, err
}

// AddItem appends a line with the product's current price, or merges
// into an existing line for the same product. The merged quantity is
// validated against current stock as one check; on failure nothing is
// applied.
func (s *Service) AddItem(ctx context.Context, owner string, ref inventory.Ref, qty int) (Cart, error) {
	if qty < 1 {
		return Cart{}, fault.Validation("quantity must be at least 1, got %d", qty)
	}
	p, err := s.catalog.Product(ctx, ref)
	if err != nil {
		return Cart{}, err
	}
	if !p.Active {
		return Cart{}, fault.Conflict("product %s is inactive", p.ID)
	}

	c, err := s.GetOrCreate(ctx, owner)
	if err != nil {
		return Cart{}, err
	}

	if existing := findByProduct(c.Items, p.ID); existing != nil {
		merged := existing.Qty + qty
		if merged > p.Available {
			s.log.Debug("cart add rejected by stock check",
				zap.String("owner", owner), zap.String("product_id", p.ID),
				zap.Int("requested", merged), zap.Int("available", p.Available))
			return Cart{}, fault.InsufficientStock(
				"product %s: requested %d, available %d", p.ID, merged, p.Available)
		}
		if err := s.repo.UpdateItemQty(ctx, owner, existing.ID, merged); err != nil {
			return Cart{}, err
		}
		return s.repo.Get(ctx, owner)
	}

	if qty > p.Available {
		s.log.Debug("cart add rejected by stock check",
			zap.String("owner", owner), zap.String("product_id", p.ID),
			zap.Int("requested", qty), zap.Int("available", p.Available))
		return Cart{}, fault.InsufficientStock(
			"product %s: requested %d, available %d", p.ID, qty, p.Available)
	}
	item := Item{
		ID:        uuid.NewString(),
		ProductID: p.ID,
		Name:      p.Name,
		Qty:       qty,
		UnitPrice: p.Price,
		AddedAt:   time.Now().UTC(),
	}
	if err := s.repo.InsertItem(ctx, owner, item); err != nil {
		return Cart{}, err
	}
	return s.repo.Get(ctx, owner)
}

// UpdateItem replaces a line's quantity after re-checking current stock.
func (s *Service) UpdateItem(ctx context.Context, owner, itemID string, qty int) (Cart, error) {
	if qty < 1 {
		return Cart{}, fault.Validation("quantity must be at least 1, got %d", qty)
	}
	c, err := s.repo.Get(ctx, owner)
	if err != nil {
		return Cart{}, err
	}
	item := findByID(c.Items, itemID)
	if item == nil {
		return Cart{}, fault.NotFound("cart item %s", itemID)
	}
	p, err := s.catalog.Product(ctx, inventory.OpaqueRef(item.ProductID))
	if err != nil {
		return Cart{}, err
	}
	if qty > p.Available {
		s.log.Debug("cart update rejected by stock check",
			zap.String("owner", owner), zap.String("product_id", p.ID),
			zap.Int("requested", qty), zap.Int("available", p.Available))
		return Cart{}, fault.InsufficientStock(
			"product %s: requested %d, available %d", p.ID, qty, p.Available)
	}
	if err := s.repo.UpdateItemQty(ctx, owner, itemID, qty); err != nil {
		return Cart{}, err
	}
	return s.repo.Get(ctx, owner)
}

// RemoveItem is idempotent: removing an absent line is a no-op; only a
// missing cart reports NotFound.
func (s *Service) RemoveItem(ctx context.Context, owner, itemID string) (Cart, error) {
	if _, err := s.repo.Get(ctx, owner); err != nil {
		return Cart{}, err
	}
	if err := s.repo.DeleteItem(ctx, owner, itemID); err != nil {
		return Cart{}, err
	}
	return s.repo.Get(ctx, owner)
}

func (s *Service) Clear(ctx context.Context, owner string) (Cart, error) {
	if _, err := s.repo.Get(ctx, owner); err != nil {
		return Cart{}, err
	}
	if err := s.repo.DeleteItems(ctx, owner); err != nil {
		return Cart{}, err
	}
	return s.repo.Get(ctx, owner)
}

func findByProduct(items []Item, productID string) *Item {
	for i := range items {
		if items[i].ProductID == productID {
			return &items[i]
		}
	}
	return nil
}

func findByID(items []Item, id string) *Item {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}
