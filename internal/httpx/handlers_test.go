package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopcore/fulfillment/internal/cart"
	"github.com/shopcore/fulfillment/internal/inventory"
	"github.com/shopcore/fulfillment/internal/orders"
)

func newTestServer(products ...inventory.Product) (*chi.Mux, *inventory.MemStore) {
	store := inventory.NewMemStore(products...)
	log := zap.NewNop()
	carts := cart.NewService(cart.NewMemRepo(), store, log)
	svc := orders.NewService(orders.NewMemRepo(), store, store, carts, nil, log, "test")

	r := NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(Authenticate)
		(&CartHandler{Carts: carts}).Register(r)
		(&OrdersHandler{Svc: svc, Log: log}).Register(r)
	})
	return r, store
}

func widget(available int) inventory.Product {
	return inventory.Product{
		ID: "p1", NumID: 1, Name: "Widget",
		Price:     decimal.RequireFromString("10.00"),
		Available: available, Active: true,
	}
}

func do(t *testing.T, h http.Handler, method, path, userID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestAuthentication(t *testing.T) {
	h, _ := newTestServer()

	if rec := do(t, h, http.MethodGet, "/cart", "", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no identity: code = %d, want 401", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/cart", "u1", "owner-of-everything", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown role: code = %d, want 401", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/healthz", "", "", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz should not require identity, code = %d", rec.Code)
	}
}

func TestCartEndpoints(t *testing.T) {
	h, _ := newTestServer(widget(7))

	rec := do(t, h, http.MethodGet, "/cart", "u1", "standard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get cart: code = %d", rec.Code)
	}

	// add twice: merged into one line of 7
	for _, qty := range []int{3, 4} {
		rec = do(t, h, http.MethodPost, "/cart/items", "u1", "standard",
			map[string]any{"product_id": "p1", "quantity": qty})
		if rec.Code != http.StatusCreated {
			t.Fatalf("add qty %d: code = %d body=%s", qty, rec.Code, rec.Body.String())
		}
	}
	c := decode[cart.Cart](t, rec)
	if len(c.Items) != 1 || c.Items[0].Qty != 7 {
		t.Fatalf("cart = %+v, want one line of 7", c.Items)
	}

	// a further merge exceeding stock conflicts
	rec = do(t, h, http.MethodPost, "/cart/items", "u1", "standard",
		map[string]any{"product_id": "p1", "quantity": 1})
	if rec.Code != http.StatusConflict {
		t.Errorf("over stock: code = %d, want 409", rec.Code)
	}

	rec = do(t, h, http.MethodPut, "/cart/items/"+c.Items[0].ID, "u1", "standard",
		map[string]any{"quantity": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("update item: code = %d", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/cart/items/"+c.Items[0].ID, "u1", "standard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove item: code = %d", rec.Code)
	}
	c = decode[cart.Cart](t, rec)
	if len(c.Items) != 0 {
		t.Errorf("items = %d, want 0", len(c.Items))
	}

	rec = do(t, h, http.MethodDelete, "/cart", "u1", "standard", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("clear: code = %d", rec.Code)
	}

	t.Run("numeric product ref", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/cart/items", "u2", "standard",
			map[string]any{"product_id": 1, "quantity": 1})
		if rec.Code != http.StatusCreated {
			t.Fatalf("numeric ref add: code = %d body=%s", rec.Code, rec.Body.String())
		}
		c := decode[cart.Cart](t, rec)
		if c.Items[0].ProductID != "p1" {
			t.Errorf("resolved %q, want p1", c.Items[0].ProductID)
		}
	})
}

func orderBody(items ...map[string]any) map[string]any {
	return map[string]any{
		"items": items,
		"shipping_address": map[string]any{
			"line1": "1 Main St", "city": "Springfield",
			"postal_code": "12345", "country": "US",
		},
		"payment_method": "card",
	}
}

func TestOrderEndpoints(t *testing.T) {
	h, store := newTestServer(widget(5))

	// seed a cart and place implicitly from it
	rec := do(t, h, http.MethodPost, "/cart/items", "u1", "standard",
		map[string]any{"product_id": "p1", "quantity": 2})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed cart: code = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/orders", "u1", "standard", orderBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("place: code = %d body=%s", rec.Code, rec.Body.String())
	}
	o := decode[orders.Order](t, rec)
	if !o.Subtotal.Equal(decimal.RequireFromString("20.00")) {
		t.Errorf("subtotal = %s, want 20.00", o.Subtotal)
	}
	if rec = do(t, h, http.MethodGet, "/cart", "u1", "standard", nil); rec.Code != http.StatusOK {
		t.Fatalf("reload cart: code = %d", rec.Code)
	}
	if c := decode[cart.Cart](t, rec); len(c.Items) != 0 {
		t.Errorf("cart not cleared after placement: %+v", c.Items)
	}

	t.Run("insufficient stock conflicts", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/orders", "u2", "standard",
			orderBody(map[string]any{"product_id": "p1", "qty": 99}))
		if rec.Code != http.StatusConflict {
			t.Errorf("code = %d, want 409", rec.Code)
		}
	})

	t.Run("scoping", func(t *testing.T) {
		if rec := do(t, h, http.MethodGet, "/orders/"+o.ID, "u2", "standard", nil); rec.Code != http.StatusForbidden {
			t.Errorf("foreign get: code = %d, want 403", rec.Code)
		}
		if rec := do(t, h, http.MethodGet, "/orders/"+o.ID, "root", "privileged", nil); rec.Code != http.StatusOK {
			t.Errorf("privileged get: code = %d", rec.Code)
		}
		if rec := do(t, h, http.MethodGet, "/orders/"+o.ID+"/status", "u1", "standard", nil); rec.Code != http.StatusOK {
			t.Errorf("status poll: code = %d", rec.Code)
		}
	})

	t.Run("status updates are privileged", func(t *testing.T) {
		rec := do(t, h, http.MethodPatch, "/orders/"+o.ID+"/status", "u1", "standard",
			map[string]any{"status": "processing"})
		if rec.Code != http.StatusForbidden {
			t.Errorf("standard: code = %d, want 403", rec.Code)
		}
		rec = do(t, h, http.MethodPatch, "/orders/"+o.ID+"/status", "root", "privileged",
			map[string]any{"status": "processing"})
		if rec.Code != http.StatusOK {
			t.Errorf("privileged: code = %d body=%s", rec.Code, rec.Body.String())
		}
		rec = do(t, h, http.MethodPatch, "/orders/"+o.ID+"/status", "root", "privileged",
			map[string]any{"status": "returned"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("unknown status: code = %d, want 400", rec.Code)
		}
		rec = do(t, h, http.MethodPatch, "/orders/"+o.ID+"/status", "root", "privileged",
			map[string]any{"status": "pending"})
		if rec.Code != http.StatusConflict {
			t.Errorf("backward transition: code = %d, want 409", rec.Code)
		}
	})

	t.Run("owner delete cancels and restores stock", func(t *testing.T) {
		rec := do(t, h, http.MethodDelete, "/orders/"+o.ID, "u1", "standard", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("cancel: code = %d body=%s", rec.Code, rec.Body.String())
		}
		res := decode[orders.CancelResult](t, rec)
		if res.Order.Status != orders.StatusCancelled {
			t.Errorf("status = %s, want cancelled", res.Order.Status)
		}
		p, _ := store.Product(context.Background(), inventory.OpaqueRef("p1"))
		if p.Available != 5 {
			t.Errorf("available = %d, want 5", p.Available)
		}
	})

	t.Run("privileged delete removes the order", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/orders", "u3", "standard",
			orderBody(map[string]any{"product_id": "p1", "qty": 1}))
		if rec.Code != http.StatusCreated {
			t.Fatalf("place: code = %d", rec.Code)
		}
		o := decode[orders.Order](t, rec)

		rec = do(t, h, http.MethodDelete, "/orders/"+o.ID, "root", "privileged", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("delete: code = %d", rec.Code)
		}
		if rec = do(t, h, http.MethodGet, "/orders/"+o.ID, "root", "privileged", nil); rec.Code != http.StatusNotFound {
			t.Errorf("after delete: code = %d, want 404", rec.Code)
		}
	})

	t.Run("validation", func(t *testing.T) {
		body := orderBody(map[string]any{"product_id": "p1", "qty": 1})
		body["payment_method"] = "barter"
		if rec := do(t, h, http.MethodPost, "/orders", "u4", "standard", body); rec.Code != http.StatusBadRequest {
			t.Errorf("bad payment method: code = %d, want 400", rec.Code)
		}
	})
}
