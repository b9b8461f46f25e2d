// Package inventory owns per-product available quantity. The ledger is
// the only writer of that counter inside this service; product identity,
// naming and pricing belong to the catalog collaborator and are read
// here as snapshots.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string          `json:"id"`
	NumID     int64           `json:"num_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available int             `json:"available"`
	Active    bool            `json:"active"`
}

// Catalog is the read side handed to the cart store and order engine.
type Catalog interface {
	Product(ctx context.Context, ref Ref) (Product, error)
}

// Ledger exposes the only mutations this service performs on a product.
// All three are linearizable per product: a call that would drive the
// counter negative fails with no side effect.
type Ledger interface {
	Reserve(ctx context.Context, productID string, qty int) error
	Release(ctx context.Context, productID string, qty int) error
	Adjust(ctx context.Context, productID string, delta int) error
}

type RefKind int

const (
	RefOpaque RefKind = iota
	RefNumeric
)

// Ref is a typed product reference: callers may address a product by
// its opaque id or by its numeric alias. The two are kept distinct and
// resolved by explicit dispatch, never by inspecting string contents.
type Ref struct {
	kind    RefKind
	opaque  string
	numeric int64
}

func OpaqueRef(id string) Ref { return Ref{kind: RefOpaque, opaque: id} }
func NumericRef(n int64) Ref  { return Ref{kind: RefNumeric, numeric: n} }
func (r Ref) Kind() RefKind   { return r.kind }
func (r Ref) Opaque() string  { return r.opaque }
func (r Ref) Numeric() int64  { return r.numeric }
func (r Ref) IsZero() bool    { return r.kind == RefOpaque && r.opaque == "" }

func (r Ref) String() string {
	if r.kind == RefNumeric {
		return strconv.FormatInt(r.numeric, 10)
	}
	return r.opaque
}

// UnmarshalJSON dispatches on the JSON token type: a number becomes a
// numeric ref, a string an opaque ref. A string of digits stays opaque.
func (r *Ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("empty product ref")
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = OpaqueRef(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("product ref must be a string or an integer: %w", err)
	}
	*r = NumericRef(n)
	return nil
}

func (r Ref) MarshalJSON() ([]byte, error) {
	if r.kind == RefNumeric {
		return json.Marshal(r.numeric)
	}
	return json.Marshal(r.opaque)
}
