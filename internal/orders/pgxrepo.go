package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcore/fulfillment/internal/fault"
)

type PgxRepo struct{ DB *pgxpool.Pool }

var _ Repo = (*PgxRepo)(nil)

func (r *PgxRepo) Create(ctx context.Context, o Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fault.Unavailable(err, "create order %s", o.ID)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(
			id, owner, subtotal, tax, shipping, discount, total,
			addr_line1, addr_line2, addr_city, addr_postal_code, addr_country,
			payment_method, payment_settled, status, notes, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		o.ID, o.Owner, o.Subtotal, o.Tax, o.Shipping, o.Discount, o.Total,
		o.ShippingAddress.Line1, o.ShippingAddress.Line2, o.ShippingAddress.City,
		o.ShippingAddress.PostalCode, o.ShippingAddress.Country,
		string(o.PaymentMethod), o.PaymentSettled, string(o.Status), o.Notes, o.CreatedAt)
	if err != nil {
		return fault.Unavailable(err, "create order %s", o.ID)
	}

	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, name, qty, unit_price, line_total)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, it.ProductID, it.Name, it.Qty, it.UnitPrice, it.LineTotal)
		if err != nil {
			return fault.Unavailable(err, "create order %s items", o.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fault.Unavailable(err, "create order %s", o.ID)
	}
	return nil
}

const orderCols = `
	id, owner, subtotal, tax, shipping, discount, total,
	addr_line1, addr_line2, addr_city, addr_postal_code, addr_country,
	payment_method, payment_settled, status, notes, created_at, delivered_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var method, status string
	err := row.Scan(
		&o.ID, &o.Owner, &o.Subtotal, &o.Tax, &o.Shipping, &o.Discount, &o.Total,
		&o.ShippingAddress.Line1, &o.ShippingAddress.Line2, &o.ShippingAddress.City,
		&o.ShippingAddress.PostalCode, &o.ShippingAddress.Country,
		&method, &o.PaymentSettled, &status, &o.Notes, &o.CreatedAt, &o.DeliveredAt)
	if err != nil {
		return Order{}, err
	}
	o.PaymentMethod = PaymentMethod(method)
	o.Status = Status(status)
	return o, nil
}

func (r *PgxRepo) Get(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT`+orderCols+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fault.NotFound("order %s", id)
	}
	if err != nil {
		return Order{}, fault.Unavailable(err, "load order %s", id)
	}
	if err := r.loadItems(ctx, &o); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *PgxRepo) ListByOwner(ctx context.Context, owner string) ([]Order, error) {
	return r.list(ctx, `SELECT`+orderCols+` FROM orders WHERE owner=$1 ORDER BY created_at DESC`, owner)
}

func (r *PgxRepo) ListAll(ctx context.Context) ([]Order, error) {
	return r.list(ctx, `SELECT`+orderCols+` FROM orders ORDER BY created_at DESC`)
}

func (r *PgxRepo) list(ctx context.Context, q string, args ...any) ([]Order, error) {
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, fault.Unavailable(err, "list orders")
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fault.Unavailable(err, "scan order")
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Unavailable(err, "list orders")
	}
	for i := range out {
		if err := r.loadItems(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *PgxRepo) loadItems(ctx context.Context, o *Order) error {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, name, qty, unit_price, line_total
		FROM order_items WHERE order_id=$1
		ORDER BY id`, o.ID)
	if err != nil {
		return fault.Unavailable(err, "load order %s items", o.ID)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Qty, &it.UnitPrice, &it.LineTotal); err != nil {
			return fault.Unavailable(err, "scan order %s item", o.ID)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return fault.Unavailable(err, "load order %s items", o.ID)
	}
	return nil
}

func (r *PgxRepo) UpdateStatus(ctx context.Context, o Order, from Status) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, delivered_at=$3, payment_settled=$4
		WHERE id=$1 AND status=$5`,
		o.ID, string(o.Status), o.DeliveredAt, o.PaymentSettled, string(from))
	if err != nil {
		return fault.Unavailable(err, "update order %s status", o.ID)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}
	// zero rows: the order is gone or its status moved underneath us
	var one int
	err = r.DB.QueryRow(ctx, `SELECT 1 FROM orders WHERE id=$1`, o.ID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fault.NotFound("order %s", o.ID)
	}
	if err != nil {
		return fault.Unavailable(err, "update order %s status", o.ID)
	}
	return fault.Conflict("order %s: status changed concurrently", o.ID)
}

func (r *PgxRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fault.Unavailable(err, "delete order %s", id)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, id); err != nil {
		return fault.Unavailable(err, "delete order %s items", id)
	}
	ct, err := tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return fault.Unavailable(err, "delete order %s", id)
	}
	if ct.RowsAffected() == 0 {
		return fault.NotFound("order %s", id)
	}
	if err := tx.Commit(ctx); err != nil {
		return fault.Unavailable(err, "delete order %s", id)
	}
	return nil
}
