package orders

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopcore/fulfillment/internal/cart"
	"github.com/shopcore/fulfillment/internal/event"
	"github.com/shopcore/fulfillment/internal/fault"
	"github.com/shopcore/fulfillment/internal/identity"
	"github.com/shopcore/fulfillment/internal/inventory"
	"github.com/shopcore/fulfillment/internal/kafka"
)

// Publisher is the slice of the kafka producer the engine needs.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// Carts is the slice of the cart store the engine consumes: the
// implicit item source at placement and the clear that follows it.
type Carts interface {
	GetOrCreate(ctx context.Context, owner string) (cart.Cart, error)
	Clear(ctx context.Context, owner string) (cart.Cart, error)
}

type Service struct {
	repo    Repo
	catalog inventory.Catalog
	ledger  inventory.Ledger
	carts   Carts
	pub     Publisher // nil disables event publishing
	log     *zap.Logger
	name    string
}

func NewService(repo Repo, catalog inventory.Catalog, ledger inventory.Ledger, carts Carts, pub Publisher, log *zap.Logger, serviceName string) *Service {
	return &Service{repo: repo, catalog: catalog, ledger: ledger, carts: carts, pub: pub, log: log, name: serviceName}
}

// Line is one requested order line.
type Line struct {
	ProductRef inventory.Ref `json:"product_id"`
	Qty        int           `json:"qty"`
}

type PlaceInput struct {
	Items           []Line
	ShippingAddress Address
	PaymentMethod   PaymentMethod
	Tax             decimal.Decimal
	Shipping        decimal.Decimal
	Discount        decimal.Decimal
	Notes           string
}

// resolvedLine pairs a requested quantity with its product snapshot.
// UnitPrice may differ from the catalog price when the line came out of
// a cart, where the price was captured at add time.
type resolvedLine struct {
	product   inventory.Product
	qty       int
	unitPrice decimal.Decimal
}

// PlaceOrder converts explicit lines (or the owner's cart when none are
// given) into a pending order, reserving stock for every line
// all-or-nothing. Reservations are taken in ascending product-id order;
// when a line fails, lines already reserved by this call are released
// before the error returns. The owner's cart is cleared best-effort:
// a clear failure never rolls the order back.
func (s *Service) PlaceOrder(ctx context.Context, owner string, in PlaceInput) (Order, error) {
	if err := validateInput(in); err != nil {
		return Order{}, err
	}
	lines, err := s.resolveLines(ctx, owner, in.Items)
	if err != nil {
		return Order{}, err
	}

	subtotal := decimal.Zero
	items := make([]Item, 0, len(lines))
	for _, l := range lines {
		lineTotal := l.unitPrice.Mul(decimal.NewFromInt(int64(l.qty)))
		subtotal = subtotal.Add(lineTotal)
		items = append(items, Item{
			ProductID: l.product.ID,
			Name:      l.product.Name,
			Qty:       l.qty,
			UnitPrice: l.unitPrice,
			LineTotal: lineTotal,
		})
	}
	total := subtotal.Add(in.Tax).Add(in.Shipping).Sub(in.Discount)
	if total.IsNegative() {
		return Order{}, fault.Validation("discount %s exceeds order value", in.Discount)
	}

	if err := s.reserveAll(ctx, lines); err != nil {
		return Order{}, err
	}

	o := Order{
		ID:              uuid.NewString(),
		Owner:           owner,
		Items:           items,
		Subtotal:        subtotal,
		Tax:             in.Tax,
		Shipping:        in.Shipping,
		Discount:        in.Discount,
		Total:           total,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		Status:          StatusPending,
		Notes:           in.Notes,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, o); err != nil {
		// persistence failed after stock was taken: give it back
		s.releaseAll(ctx, lines)
		return Order{}, err
	}

	if _, err := s.carts.Clear(ctx, owner); err != nil && fault.KindOf(err) != fault.KindNotFound {
		s.log.Warn("cart clear after placement failed",
			zap.String("owner", owner), zap.String("order_id", o.ID), zap.Error(err))
	}

	s.publish(TopicOrderCreated, EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID: o.ID, Owner: owner, Items: o.Items, Total: o.Total,
	})
	s.log.Info("order placed",
		zap.String("order_id", o.ID), zap.String("owner", owner),
		zap.Int("lines", len(o.Items)), zap.String("total", o.Total.String()))
	return o, nil
}

// resolveLines fetches a snapshot per line. Cart lines keep their
// captured unit price; explicit lines take the current catalog price.
func (s *Service) resolveLines(ctx context.Context, owner string, requested []Line) ([]resolvedLine, error) {
	if len(requested) == 0 {
		c, err := s.carts.GetOrCreate(ctx, owner)
		if err != nil {
			return nil, err
		}
		if len(c.Items) == 0 {
			return nil, fault.Validation("order has no items and the cart is empty")
		}
		out := make([]resolvedLine, 0, len(c.Items))
		for _, it := range c.Items {
			p, err := s.catalog.Product(ctx, inventory.OpaqueRef(it.ProductID))
			if err != nil {
				return nil, err
			}
			if !p.Active {
				return nil, fault.Conflict("product %s is inactive", p.ID)
			}
			out = append(out, resolvedLine{product: p, qty: it.Qty, unitPrice: it.UnitPrice})
		}
		return out, nil
	}

	out := make([]resolvedLine, 0, len(requested))
	for _, l := range requested {
		if l.Qty < 1 {
			return nil, fault.Validation("quantity must be at least 1, got %d", l.Qty)
		}
		p, err := s.catalog.Product(ctx, l.ProductRef)
		if err != nil {
			return nil, err
		}
		if !p.Active {
			return nil, fault.Conflict("product %s is inactive", p.ID)
		}
		out = append(out, resolvedLine{product: p, qty: l.Qty, unitPrice: p.Price})
	}
	return out, nil
}

func validateInput(in PlaceInput) error {
	if !in.ShippingAddress.Complete() {
		return fault.Validation("shipping address is incomplete")
	}
	if _, ok := ParsePaymentMethod(string(in.PaymentMethod)); !ok {
		return fault.Validation("unknown payment method %q", in.PaymentMethod)
	}
	if in.Tax.IsNegative() || in.Shipping.IsNegative() || in.Discount.IsNegative() {
		return fault.Validation("tax, shipping and discount must not be negative")
	}
	return nil
}

// reserveAll takes reservations in ascending product-id order so two
// placements touching the same products never lock in opposite order.
// On any failure the lines reserved by this call are released first.
func (s *Service) reserveAll(ctx context.Context, lines []resolvedLine) error {
	idx := make([]int, len(lines))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return lines[idx[a]].product.ID < lines[idx[b]].product.ID
	})

	reserved := make([]resolvedLine, 0, len(lines))
	for _, i := range idx {
		l := lines[i]
		if err := s.ledger.Reserve(ctx, l.product.ID, l.qty); err != nil {
			s.releaseAll(ctx, reserved)
			return err
		}
		reserved = append(reserved, l)
	}
	return nil
}

func (s *Service) releaseAll(ctx context.Context, lines []resolvedLine) {
	for _, l := range lines {
		if err := s.ledger.Release(ctx, l.product.ID, l.qty); err != nil {
			s.log.Error("compensating release failed",
				zap.String("product_id", l.product.ID), zap.Int("qty", l.qty), zap.Error(err))
		}
	}
}

// Get returns an order scoped to its owner; a privileged caller may
// read any order.
func (s *Service) Get(ctx context.Context, orderID string, caller identity.Caller) (Order, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Owner != caller.Owner && !caller.Role.Privileged() {
		return Order{}, fault.Forbidden("order %s belongs to another owner", orderID)
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, caller identity.Caller) ([]Order, error) {
	if caller.Role.Privileged() {
		return s.repo.ListAll(ctx)
	}
	return s.repo.ListByOwner(ctx, caller.Owner)
}

// UpdateStatus drives the state machine. Privileged only. Setting
// delivered stamps the delivery timestamp and settles payment.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next Status, role identity.Role) (Order, error) {
	if !role.Privileged() {
		return Order{}, fault.Forbidden("status updates require a privileged role")
	}
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(o.Status, next) {
		return Order{}, fault.InvalidTransition("order %s: %s -> %s", orderID, o.Status, next)
	}
	from := o.Status
	o.Status = next
	if next == StatusDelivered {
		now := time.Now().UTC()
		o.DeliveredAt = &now
		o.PaymentSettled = true
	}
	if err := s.repo.UpdateStatus(ctx, o, from); err != nil {
		return Order{}, err
	}

	s.publish(TopicOrderStatusChanged, EventOrderStatusChanged, o.ID, OrderStatusChangedPayload{
		OrderID: o.ID, From: from, To: next,
	})
	s.log.Info("order status changed",
		zap.String("order_id", o.ID), zap.String("from", string(from)), zap.String("to", string(next)))
	return o, nil
}

type ReleaseFailure struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	Reason    string `json:"reason"`
}

type CancelResult struct {
	Order            Order            `json:"order"`
	AlreadyCancelled bool             `json:"already_cancelled,omitempty"`
	FailedReleases   []ReleaseFailure `json:"failed_releases,omitempty"`
}

// Cancel transitions the order to cancelled and replays its stock into
// the ledger line by line. A line failure does not abort the rest: the
// remaining lines are still released and the failures reported.
// Cancelling an already-cancelled order is a no-op success. The flip is
// a compare-and-swap on the status read earlier, so of two racing
// cancels exactly one replays stock; the loser observes the cancelled
// row and takes the no-op path.
func (s *Service) Cancel(ctx context.Context, orderID string, caller identity.Caller) (CancelResult, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return CancelResult{}, err
	}
	if o.Owner != caller.Owner && !caller.Role.Privileged() {
		return CancelResult{}, fault.Forbidden("order %s belongs to another owner", orderID)
	}
	if o.Status == StatusCancelled {
		return CancelResult{Order: o, AlreadyCancelled: true}, nil
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return CancelResult{}, fault.InvalidTransition("order %s: %s -> %s", orderID, o.Status, StatusCancelled)
	}

	from := o.Status
	o.Status = StatusCancelled
	if err := s.repo.UpdateStatus(ctx, o, from); err != nil {
		if fault.KindOf(err) == fault.KindConflict {
			cur, gerr := s.repo.Get(ctx, orderID)
			if gerr == nil && cur.Status == StatusCancelled {
				return CancelResult{Order: cur, AlreadyCancelled: true}, nil
			}
		}
		return CancelResult{}, err
	}

	var failed []ReleaseFailure
	for _, it := range o.Items {
		if err := s.ledger.Release(ctx, it.ProductID, it.Qty); err != nil {
			failed = append(failed, ReleaseFailure{ProductID: it.ProductID, Qty: it.Qty, Reason: err.Error()})
			s.log.Error("stock release on cancel failed",
				zap.String("order_id", o.ID), zap.String("product_id", it.ProductID),
				zap.Int("qty", it.Qty), zap.Error(err))
		}
	}

	s.publish(TopicOrderCancelled, EventOrderCancelled, o.ID, OrderCancelledPayload{
		OrderID: o.ID, Owner: o.Owner, Failed: failed,
	})
	s.log.Info("order cancelled",
		zap.String("order_id", o.ID), zap.Int("failed_releases", len(failed)))
	return CancelResult{Order: o, FailedReleases: failed}, nil
}

// AdminDelete removes the order outright with no inventory effect.
func (s *Service) AdminDelete(ctx context.Context, orderID string, role identity.Role) error {
	if !role.Privileged() {
		return fault.Forbidden("order deletion requires a privileged role")
	}
	if err := s.repo.Delete(ctx, orderID); err != nil {
		return err
	}
	s.log.Info("order deleted", zap.String("order_id", orderID))
	return nil
}

func (s *Service) publish(topic, eventType, orderID string, payload any) {
	if s.pub == nil {
		return
	}
	env := event.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.name,
		CorrelationID: orderID,
		Payload:       kafka.MustMarshal(payload),
	}
	s.pub.Publish(topic, event.PartitionKey(orderID), kafka.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
