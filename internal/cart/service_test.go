package cart

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shopcore/fulfillment/internal/fault"
	"github.com/shopcore/fulfillment/internal/inventory"
)

func newFixture(products ...inventory.Product) (*Service, *inventory.MemStore) {
	store := inventory.NewMemStore(products...)
	svc := NewService(NewMemRepo(), store, zap.NewNop())
	return svc, store
}

func widget(available int) inventory.Product {
	return inventory.Product{
		ID:        "p1",
		NumID:     1,
		Name:      "Widget",
		Price:     decimal.RequireFromString("10.00"),
		Available: available,
		Active:    true,
	}
}

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFixture()

	c, err := svc.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if c.Owner != "u1" || len(c.Items) != 0 {
		t.Errorf("got %+v, want empty cart for u1", c)
	}

	t.Run("concurrent calls converge on one cart", func(t *testing.T) {
		var mu sync.Mutex
		owners := make(map[string]int)
		g, ctx := errgroup.WithContext(ctx)
		for i := 0; i < 20; i++ {
			g.Go(func() error {
				c, err := svc.GetOrCreate(ctx, "u2")
				if err != nil {
					return err
				}
				mu.Lock()
				owners[c.Owner]++
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("concurrent get-or-create: %v", err)
		}
		if len(owners) != 1 || owners["u2"] != 20 {
			t.Errorf("owners = %v, want 20x u2", owners)
		}
	})
}

func TestAddItem(t *testing.T) {
	ctx := context.Background()

	t.Run("captures current price", func(t *testing.T) {
		svc, store := newFixture(widget(10))
		c, err := svc.AddItem(ctx, "u1", inventory.OpaqueRef("p1"), 2)
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		if len(c.Items) != 1 {
			t.Fatalf("items = %d, want 1", len(c.Items))
		}
		if !c.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.00")) {
			t.Errorf("price = %s, want 10.00", c.Items[0].UnitPrice)
		}

		// a later catalog price edit must not rewrite the captured price
		p := widget(10)
		p.Price = decimal.RequireFromString("99.00")
		store.Put(p)
		c, err = svc.GetOrCreate(ctx, "u1")
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if !c.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.00")) {
			t.Errorf("price drifted to %s after catalog edit", c.Items[0].UnitPrice)
		}
	})

	t.Run("merges into one line with a single stock check", func(t *testing.T) {
		svc, _ := newFixture(widget(7))
		if _, err := svc.AddItem(ctx, "u1", inventory.OpaqueRef("p1"), 3); err != nil {
			t.Fatalf("first add: %v", err)
		}
		c, err := svc.AddItem(ctx, "u1", inventory.OpaqueRef("p1"), 4)
		if err != nil {
			t.Fatalf("second add: %v", err)
		}
		if len(c.Items) != 1 || c.Items[0].Qty != 7 {
			t.Errorf("got %d lines, qty %d; want one line of 7", len(c.Items), c.Items[0].Qty)
		}
	})

	t.Run("merge exceeding stock applies nothing", func(t *testing.T) {
		svc, _ := newFixture(widget(6))
		if _, err := svc.AddItem(ctx, "u1", inventory.OpaqueRef("p1"), 3); err != nil {
			t.Fatalf("first add: %v", err)
		}
		_, err := svc.AddItem(ctx, "u1", inventory.OpaqueRef("p1"), 4)
		if fault.KindOf(err) != fault.KindInsufficientStock {
			t.Fatalf("kind = %v, want insufficient_stock", fault.KindOf(err))
		}
		c, _ := svc.GetOrCreate(ctx, "u1")
		if c.Items[0].Qty != 3 {
			t.Errorf("qty = %d, want 3 (merge rolled back whole)", c.Items[0].Qty)
		}
	})

	t.Run("numeric ref resolves", func(t *testing.T) {
		svc, _ := newFixture(widget(5))
		c, err := svc.AddItem(ctx, "u1", inventory.NumericRef(1), 1)
		if err != nil {
			t.Fatalf("add by numeric ref: %v", err)
		}
		if c.Items[0].ProductID != "p1" {
			t.Errorf("product = %s, want p1", c.Items[0].ProductID)
		}
	})

	t.Run("failure modes", func(t *testing.T) {
		inactive := widget(5)
		inactive.Active = false
		svc, _ := newFixture(inactive)

		if _, err := svc.AddItem(ctx, "u1", inventory.OpaqueRef("ghost"), 1); fault.KindOf(err) != fault.KindNotFound {
			t.Errorf("missing product: kind = %v, want not_found", fault.KindOf(err))
		}
		if _, err := svc.AddItem(ctx, "u1", inventory.OpaqueRef("p1"), 1); fault.KindOf(err) != fault.KindConflict {
			t.Errorf("inactive product: kind = %v, want conflict", fault.KindOf(err))
		}
		if _, err := svc.AddItem(ctx, "u1", inventory.OpaqueRef("p1"), 0); fault.KindOf(err) != fault.KindValidation {
			t.Errorf("zero qty: kind = %v, want validation", fault.KindOf(err))
		}
	})
}

func TestUpdateItem(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFixture(widget(5))

	c, err := svc.AddItem(ctx, "u1", inventory.OpaqueRef("p1"), 2)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	itemID := c.Items[0].ID

	c, err = svc.UpdateItem(ctx, "u1", itemID, 5)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if c.Items[0].Qty != 5 {
		t.Errorf("qty = %d, want 5", c.Items[0].Qty)
	}

	if _, err := svc.UpdateItem(ctx, "u1", itemID, 6); fault.KindOf(err) != fault.KindInsufficientStock {
		t.Errorf("over stock: kind = %v, want insufficient_stock", fault.KindOf(err))
	}
	if _, err := svc.UpdateItem(ctx, "u1", "ghost", 1); fault.KindOf(err) != fault.KindNotFound {
		t.Errorf("missing item: kind = %v, want not_found", fault.KindOf(err))
	}
	if _, err := svc.UpdateItem(ctx, "nobody", itemID, 1); fault.KindOf(err) != fault.KindNotFound {
		t.Errorf("missing cart: kind = %v, want not_found", fault.KindOf(err))
	}
}

func TestRemoveItem(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFixture(widget(5))

	c, err := svc.AddItem(ctx, "u1", inventory.OpaqueRef("p1"), 2)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	itemID := c.Items[0].ID

	c, err = svc.RemoveItem(ctx, "u1", itemID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(c.Items) != 0 {
		t.Errorf("items = %d, want 0", len(c.Items))
	}

	// removing the same line again is a no-op success
	if _, err := svc.RemoveItem(ctx, "u1", itemID); err != nil {
		t.Errorf("second remove: %v", err)
	}
	// only an absent cart reports not_found
	if _, err := svc.RemoveItem(ctx, "nobody", itemID); fault.KindOf(err) != fault.KindNotFound {
		t.Errorf("missing cart: kind = %v, want not_found", fault.KindOf(err))
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFixture(widget(5))

	if _, err := svc.AddItem(ctx, "u1", inventory.OpaqueRef("p1"), 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	c, err := svc.Clear(ctx, "u1")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(c.Items) != 0 {
		t.Errorf("items = %d, want 0", len(c.Items))
	}
	if _, err := svc.Clear(ctx, "nobody"); fault.KindOf(err) != fault.KindNotFound {
		t.Errorf("missing cart: kind = %v, want not_found", fault.KindOf(err))
	}
}
