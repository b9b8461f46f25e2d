package inventory

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shopcore/fulfillment/internal/event"
	"github.com/shopcore/fulfillment/internal/fault"
	"github.com/shopcore/fulfillment/internal/kafka"
)

const (
	TopicStockAdjusted = "catalog.stock.adjusted"
	EventStockAdjusted = "StockAdjusted"
)

type StockAdjustedPayload struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
}

// Dedup remembers processed event ids across deliveries.
type Dedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// Adjuster consumes quantity adjustments published by the catalog
// collaborator and replays them into the ledger.
type Adjuster struct {
	Ledger Ledger
	Dedup  Dedup // nil disables dedup
	Log    *zap.Logger
}

// HandleStockAdjusted is wired as a consumer handler. The event id is
// marked processed only after a terminal outcome; a retryable failure
// leaves it unmarked so the redelivered message is applied, not skipped.
func (a *Adjuster) HandleStockAdjusted(ctx context.Context, m kafkago.Message) error {
	var env event.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != EventStockAdjusted {
		return nil // ignore
	}

	if a.Dedup != nil {
		if seen, err := a.Dedup.Seen(ctx, env.EventID); err == nil && seen {
			return nil
		}
	}

	p, err := kafka.UnwrapPayload[StockAdjustedPayload](env.Payload)
	if err != nil {
		return err
	}

	err = a.Ledger.Adjust(ctx, p.ProductID, p.Delta)
	switch fault.KindOf(err) {
	case fault.KindUnknown:
		if err != nil {
			return err
		}
		a.mark(ctx, env.EventID)
		a.Log.Info("stock adjusted",
			zap.String("product_id", p.ProductID), zap.Int("delta", p.Delta))
		return nil
	case fault.KindUnavailable:
		return err // retryable, do not commit the offset
	default:
		// missing product or refused negative delta: log and move on,
		// redelivery cannot fix it
		a.mark(ctx, env.EventID)
		a.Log.Warn("stock adjustment dropped",
			zap.String("product_id", p.ProductID), zap.Int("delta", p.Delta), zap.Error(err))
		return nil
	}
}

func (a *Adjuster) mark(ctx context.Context, eventID string) {
	if a.Dedup == nil {
		return
	}
	if err := a.Dedup.Mark(ctx, eventID); err != nil {
		a.Log.Warn("dedup mark failed", zap.String("event_id", eventID), zap.Error(err))
	}
}
