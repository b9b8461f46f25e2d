package cart

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcore/fulfillment/internal/fault"
)

type PgxRepo struct{ DB *pgxpool.Pool }

var _ Repo = (*PgxRepo)(nil)

func (r *PgxRepo) Get(ctx context.Context, owner string) (Cart, error) {
	var c Cart
	err := r.DB.QueryRow(ctx,
		`SELECT owner, created_at, updated_at FROM carts WHERE owner=$1`, owner).
		Scan(&c.Owner, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, fault.NotFound("cart for owner %s", owner)
	}
	if err != nil {
		return Cart{}, fault.Unavailable(err, "load cart for %s", owner)
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, name, qty, unit_price, added_at
		FROM cart_items WHERE cart_owner=$1
		ORDER BY added_at, id`, owner)
	if err != nil {
		return Cart{}, fault.Unavailable(err, "load cart items for %s", owner)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Name, &it.Qty, &it.UnitPrice, &it.AddedAt); err != nil {
			return Cart{}, fault.Unavailable(err, "scan cart item for %s", owner)
		}
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Cart{}, fault.Unavailable(err, "load cart items for %s", owner)
	}
	return c, nil
}

func (r *PgxRepo) Create(ctx context.Context, owner string) (Cart, error) {
	var c Cart
	// ON CONFLICT keeps concurrent get-or-create on one owner convergent
	err := r.DB.QueryRow(ctx, `
		INSERT INTO carts(owner, created_at, updated_at)
		VALUES ($1, now(), now())
		ON CONFLICT (owner) DO UPDATE SET updated_at = carts.updated_at
		RETURNING owner, created_at, updated_at`, owner).
		Scan(&c.Owner, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Cart{}, fault.Unavailable(err, "create cart for %s", owner)
	}
	return c, nil
}

func (r *PgxRepo) InsertItem(ctx context.Context, owner string, item Item) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO cart_items(id, cart_owner, product_id, name, qty, unit_price, added_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		item.ID, owner, item.ProductID, item.Name, item.Qty, item.UnitPrice, item.AddedAt)
	if err != nil {
		return fault.Unavailable(err, "insert cart item for %s", owner)
	}
	return r.touch(ctx, owner)
}

func (r *PgxRepo) UpdateItemQty(ctx context.Context, owner, itemID string, qty int) error {
	ct, err := r.DB.Exec(ctx,
		`UPDATE cart_items SET qty=$3 WHERE cart_owner=$1 AND id=$2`, owner, itemID, qty)
	if err != nil {
		return fault.Unavailable(err, "update cart item %s", itemID)
	}
	if ct.RowsAffected() == 0 {
		return fault.NotFound("cart item %s", itemID)
	}
	return r.touch(ctx, owner)
}

func (r *PgxRepo) DeleteItem(ctx context.Context, owner, itemID string) error {
	_, err := r.DB.Exec(ctx,
		`DELETE FROM cart_items WHERE cart_owner=$1 AND id=$2`, owner, itemID)
	if err != nil {
		return fault.Unavailable(err, "delete cart item %s", itemID)
	}
	return r.touch(ctx, owner)
}

func (r *PgxRepo) DeleteItems(ctx context.Context, owner string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE cart_owner=$1`, owner)
	if err != nil {
		return fault.Unavailable(err, "clear cart for %s", owner)
	}
	return r.touch(ctx, owner)
}

func (r *PgxRepo) touch(ctx context.Context, owner string) error {
	if _, err := r.DB.Exec(ctx,
		`UPDATE carts SET updated_at = now() WHERE owner=$1`, owner); err != nil {
		return fault.Unavailable(err, "touch cart for %s", owner)
	}
	return nil
}
