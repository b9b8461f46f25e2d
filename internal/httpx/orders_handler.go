package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopcore/fulfillment/internal/identity"
	"github.com/shopcore/fulfillment/internal/orders"
	"github.com/shopcore/fulfillment/internal/redisx"
)

type OrdersHandler struct {
	Svc   *orders.Service
	Redis *redis.Client // nil disables the status cache
	Log   *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.create)
	r.Get("/orders", h.list)
	r.Get("/orders/{id}", h.get)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Delete("/orders/{id}", h.remove)
}

type createOrderReq struct {
	Items           []orders.Line   `json:"items"`
	ShippingAddress orders.Address  `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	Tax             decimal.Decimal `json:"tax"`
	Shipping        decimal.Decimal `json:"shipping"`
	Discount        decimal.Decimal `json:"discount"`
	Notes           string          `json:"notes"`
}

type updateStatusReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	caller, _ := identity.CallerFrom(r.Context())
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{Error: "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.PlaceOrder(ctx, caller.Owner, orders.PlaceInput{
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   orders.PaymentMethod(req.PaymentMethod),
		Tax:             req.Tax,
		Shipping:        req.Shipping,
		Discount:        req.Discount,
		Notes:           req.Notes,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	caller, _ := identity.CallerFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Svc.List(ctx, caller)
	if err != nil {
		writeErr(w, err)
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	caller, _ := identity.CallerFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Svc.Get(ctx, chi.URLParam(r, "id"), caller)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getStatus serves progress polling from the redis snapshot when it is
// warm and falls back to the store, re-warming the cache.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	caller, _ := identity.CallerFrom(r.Context())
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			var cached statusSnapshot
			if json.Unmarshal([]byte(s), &cached) == nil &&
				(cached.Owner == caller.Owner || caller.Role.Privileged()) {
				writeJSON(w, http.StatusOK, map[string]any{"order_id": orderID, "status": cached.Status})
				return
			}
		}
	}

	o, err := h.Svc.Get(ctx, orderID, caller)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, map[string]any{"order_id": o.ID, "status": o.Status})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	caller, _ := identity.CallerFrom(r.Context())
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{Error: "invalid json"})
		return
	}
	next, ok := orders.ParseStatus(req.Status)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errBody{Error: fmt.Sprintf("unknown status %q", req.Status)})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Svc.UpdateStatus(ctx, chi.URLParam(r, "id"), next, caller.Role)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

// remove dispatches the role split: a privileged caller hard-deletes,
// an owner cancels with stock replay.
func (h *OrdersHandler) remove(w http.ResponseWriter, r *http.Request) {
	caller, _ := identity.CallerFrom(r.Context())
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if caller.Role.Privileged() {
		if err := h.Svc.AdminDelete(ctx, orderID, caller.Role); err != nil {
			writeErr(w, err)
			return
		}
		h.dropStatus(ctx, orderID)
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "order_id": orderID})
		return
	}

	res, err := h.Svc.Cancel(ctx, orderID, caller)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, res.Order)
	writeJSON(w, http.StatusOK, res)
}

// statusSnapshot carries the owner so a cache hit can still be scoped
// to the caller.
type statusSnapshot struct {
	Status orders.Status `json:"status"`
	Owner  string        `json:"owner"`
}

// cacheStatus keeps a short-lived status snapshot for readers that only
// poll progress; best-effort, the database stays the source of truth.
func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	body, _ := json.Marshal(statusSnapshot{Status: o.Status, Owner: o.Owner})
	if err := h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err(); err != nil {
		h.Log.Warn("status cache set failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (h *OrdersHandler) dropStatus(ctx context.Context, orderID string) {
	if h.Redis == nil {
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Err()
}
