package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"restaurant-orders/internal/common/mq"
	"restaurant-orders/internal/domain"
)

const source = "order-service"

// Broker is the part of mq.Client the publisher needs.
type Broker interface {
	Publish(ctx context.Context, exchange, key string, msg mq.Message) error
}

// Publisher sends kitchen tickets to orders_topic and status
// notifications to notifications_fanout.
type Publisher struct {
	broker Broker
}

func NewPublisher(b Broker) *Publisher {
	return &Publisher{broker: b}
}

// RoutingKey is kitchen.{order type}.{priority}, e.g. kitchen.dine_in.10.
func RoutingKey(t domain.KitchenTicket) string {
	return fmt.Sprintf("kitchen.%s.%d", strings.ToLower(string(t.OrderType)), t.Priority)
}

func (p *Publisher) PublishTicket(ctx context.Context, t domain.KitchenTicket) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal kitchen ticket: %w", err)
	}
	return p.broker.Publish(ctx, mq.ExchangeOrders, RoutingKey(t), mq.Message{
		Body:          body,
		Priority:      uint8(t.Priority),
		CorrelationID: t.OrderCode,
		MessageID:     uuid.NewString(),
		Headers:       amqp.Table{"x-source": source},
	})
}

func (p *Publisher) PublishStatus(ctx context.Context, n domain.StatusNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal status notification: %w", err)
	}
	return p.broker.Publish(ctx, mq.ExchangeNotifications, "", mq.Message{
		Body:          body,
		CorrelationID: n.OrderCode,
		MessageID:     uuid.NewString(),
		Headers:       amqp.Table{"x-source": source},
	})
}
