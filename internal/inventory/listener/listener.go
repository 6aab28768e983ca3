package listener

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/logger"
	"github.com/fekuna/omnipos-inventory-service/internal/resilience"
	"github.com/fekuna/omnipos-inventory-service/internal/variant"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderCancelled = "OrderCancelled"
)

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type InventoryListener struct {
	consumer    MessageReader
	uc          inventory.UseCase
	provider    variant.Provider
	logger      logger.ZapLogger
	retryBase   time.Duration
	readBackoff time.Duration
}

func NewInventoryListener(consumer MessageReader, uc inventory.UseCase, provider variant.Provider, logger logger.ZapLogger) *InventoryListener {
	return &InventoryListener{
		consumer:    consumer,
		uc:          uc,
		provider:    provider,
		logger:      logger,
		retryBase:   100 * time.Millisecond,
		readBackoff: time.Second,
	}
}

func (l *InventoryListener) Start(ctx context.Context) {
	l.logger.Info("Starting Inventory Kafka Listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping Inventory Kafka Listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(l.readBackoff)
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

type OrderEvent struct {
	EventID   string       `json:"event_id"`
	EventType string       `json:"event_type"`
	Payload   OrderPayload `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

type OrderPayload struct {
	ID         string             `json:"id"`
	CustomerID string             `json:"customer_id"`
	Items      []OrderItemPayload `json:"items"`
}

type OrderItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (l *InventoryListener) processMessage(ctx context.Context, value []byte) {
	var event OrderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	var action inventory.Action
	switch event.EventType {
	case EventOrderCreated:
		action = inventory.ActionReserve
	case EventOrderCancelled:
		action = inventory.ActionRelease
	default:
		return
	}

	sel, err := l.provider.Resolve(ctx, variant.Context{
		UserID:    event.Payload.CustomerID,
		SessionID: event.Payload.ID,
		Hour:      event.Timestamp.Hour(),
		CartSize:  len(event.Payload.Items),
	})
	if err != nil {
		l.logger.Error("Failed to resolve variant selection", zap.String("order_id", event.Payload.ID), zap.Error(err))
		return
	}

	l.logger.Info("Processing order event",
		zap.String("event_type", event.EventType),
		zap.String("order_id", event.Payload.ID),
		zap.Int("items", len(event.Payload.Items)))

	for _, item := range event.Payload.Items {
		input := &dto.ApplyActionInput{
			ProductID: item.ProductID,
			Action:    string(action),
			Quantity:  item.Quantity,
			Selection: sel,
		}

		attempts := 0
		err := resilience.Retry(ctx, sel.Retries, l.retryBase, retryable, func(ctx context.Context) error {
			attempts++
			_, err := l.uc.ApplyInventoryAction(ctx, input)
			return err
		})
		if err != nil {
			l.logger.Error("Failed to apply inventory action for order item",
				zap.String("order_id", event.Payload.ID),
				zap.String("product_id", item.ProductID),
				zap.String("action", string(action)),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
		}
	}
}

// retryable reports whether an apply failure may succeed on a later
// attempt. Domain outcomes are final, and a timed out apply may still
// land, so repeating it could apply twice.
func retryable(err error) bool {
	return !inventory.IsDomainError(err) &&
		!errors.Is(err, inventory.ErrTimedOut) &&
		!errors.Is(err, inventory.ErrInvariantViolation) &&
		!errors.Is(err, variant.ErrInvalidSelection)
}
