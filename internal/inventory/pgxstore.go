package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcore/fulfillment/internal/fault"
)

// Store is the Postgres-backed catalog reader and ledger. Reserve locks
// the product row (FOR UPDATE) so concurrent reservations on the same
// product serialize; release and adjust are single conditional updates.
type Store struct{ DB *pgxpool.Pool }

var _ Catalog = (*Store)(nil)
var _ Ledger = (*Store)(nil)

func (s *Store) Product(ctx context.Context, ref Ref) (Product, error) {
	const cols = `SELECT id, num_id, name, price, available, active FROM products `
	var row pgx.Row
	switch ref.Kind() {
	case RefNumeric:
		row = s.DB.QueryRow(ctx, cols+`WHERE num_id=$1`, ref.Numeric())
	default:
		row = s.DB.QueryRow(ctx, cols+`WHERE id=$1`, ref.Opaque())
	}
	var p Product
	err := row.Scan(&p.ID, &p.NumID, &p.Name, &p.Price, &p.Available, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fault.NotFound("product %s", ref)
	}
	if err != nil {
		return Product{}, fault.Unavailable(err, "load product %s", ref)
	}
	return p, nil
}

func (s *Store) Reserve(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return fault.Validation("reserve qty must be positive, got %d", qty)
	}
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fault.Unavailable(err, "reserve %s", productID)
	}
	defer tx.Rollback(ctx)

	var available int
	err = tx.QueryRow(ctx, `SELECT available FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return fault.NotFound("product %s", productID)
	}
	if err != nil {
		return fault.Unavailable(err, "reserve %s", productID)
	}
	if available < qty {
		return fault.InsufficientStock("product %s: requested %d, available %d", productID, qty, available)
	}
	if _, err := tx.Exec(ctx, `UPDATE products SET available = available - $2 WHERE id=$1`, productID, qty); err != nil {
		return fault.Unavailable(err, "reserve %s", productID)
	}
	if err := tx.Commit(ctx); err != nil {
		return fault.Unavailable(err, "reserve %s", productID)
	}
	return nil
}

// Release credits stock back. It deliberately does not consult a prior
// reservation record: any existing product accepts a release.
func (s *Store) Release(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return fault.Validation("release qty must be positive, got %d", qty)
	}
	ct, err := s.DB.Exec(ctx, `UPDATE products SET available = available + $2 WHERE id=$1`, productID, qty)
	if err != nil {
		return fault.Unavailable(err, "release %s", productID)
	}
	if ct.RowsAffected() == 0 {
		return fault.NotFound("product %s", productID)
	}
	return nil
}

// Adjust applies a signed delta from the catalog's write channel. A
// delta that would drive the counter negative is refused whole.
func (s *Store) Adjust(ctx context.Context, productID string, delta int) error {
	ct, err := s.DB.Exec(ctx,
		`UPDATE products SET available = available + $2 WHERE id=$1 AND available + $2 >= 0`,
		productID, delta)
	if err != nil {
		return fault.Unavailable(err, "adjust %s", productID)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}
	// distinguish a missing row from a refused negative adjustment
	var one int
	err = s.DB.QueryRow(ctx, `SELECT 1 FROM products WHERE id=$1`, productID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fault.NotFound("product %s", productID)
	}
	if err != nil {
		return fault.Unavailable(err, "adjust %s", productID)
	}
	return fault.Conflict("adjust %s by %d would drive quantity negative", productID, delta)
}
