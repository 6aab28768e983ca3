package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/config"
	"github.com/fekuna/omnipos-inventory-service/internal/broker"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/listener"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	orderCount      int
	orderProducts   []string
	orderQuantity   int
	orderCancelEach int
)

// ordersCmd feeds the order events topic the inventory listener consumes.
var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Publish OrderCreated events to Kafka",
	Long: `Publish synthetic orders to the topic configured by KAFKA_TOPIC_ORDERS.

Examples:
  # 100 orders of 1 unit each for two products
  loadtest orders --count 100 --product p-1 --product p-2

  # Cancel every 5th order right after creating it
  loadtest orders --count 50 --product p-1 --cancel-every 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(orderProducts) == 0 {
			return fmt.Errorf("at least one --product is required")
		}

		cfg, err := config.LoadEnv()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log := newLogger()
		defer log.Sync()

		producer := broker.NewProducer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		defer producer.Close()

		ctx := cmd.Context()
		published := 0
		for i := 0; i < orderCount; i++ {
			order := buildOrder(i)
			if err := publishEvent(cmd, producer, listener.EventOrderCreated, order); err != nil {
				return err
			}
			published++

			if orderCancelEach > 0 && (i+1)%orderCancelEach == 0 {
				if err := publishEvent(cmd, producer, listener.EventOrderCancelled, order); err != nil {
					return err
				}
				published++
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		log.Info("orders published",
			zap.Int("orders", orderCount),
			zap.Int("events", published),
			zap.String("topic", cfg.Kafka.Topic))
		return nil
	},
}

func init() {
	f := ordersCmd.Flags()
	f.IntVar(&orderCount, "count", 10, "Number of orders")
	f.StringSliceVar(&orderProducts, "product", nil, "Product ID to order, repeatable")
	f.IntVar(&orderQuantity, "quantity", 1, "Units per product per order")
	f.IntVar(&orderCancelEach, "cancel-every", 0, "Cancel every Nth order, 0 never cancels")

	rootCmd.AddCommand(ordersCmd)
}

func buildOrder(i int) listener.OrderPayload {
	items := make([]listener.OrderItemPayload, len(orderProducts))
	for j, p := range orderProducts {
		items[j] = listener.OrderItemPayload{ProductID: p, Quantity: orderQuantity}
	}
	return listener.OrderPayload{
		ID:         uuid.New().String(),
		CustomerID: fmt.Sprintf("loadtest-customer-%d", i),
		Items:      items,
	}
}

func publishEvent(cmd *cobra.Command, producer *broker.KafkaProducer, eventType string, order listener.OrderPayload) error {
	value, err := json.Marshal(listener.OrderEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Payload:   order,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := producer.Publish(cmd.Context(), order.ID, value); err != nil {
		return fmt.Errorf("publish %s for order %s: %w", eventType, order.ID, err)
	}
	return nil
}
