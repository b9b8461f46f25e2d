// Package cart implements the per-owner basket. Stock checks here are
// advisory: they keep obviously dead lines out of the cart, but the
// order engine re-checks everything at placement because cart contents
// can go stale between check and checkout.
package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"` // captured at add time
	AddedAt   time.Time       `json:"added_at"`
}

type Cart struct {
	Owner     string    `json:"owner"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
