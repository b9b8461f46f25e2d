package orders

import "github.com/shopspring/decimal"

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderCancelled     = "OrderCancelled"
)

type OrderCreatedPayload struct {
	OrderID string          `json:"order_id"`
	Owner   string          `json:"owner"`
	Items   []Item          `json:"items"`
	Total   decimal.Decimal `json:"total"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}

type OrderCancelledPayload struct {
	OrderID string           `json:"order_id"`
	Owner   string           `json:"owner"`
	Failed  []ReleaseFailure `json:"failed_releases,omitempty"`
}
