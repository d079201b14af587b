package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/domain"
)

type NotificatorService struct {
	log *logger.Logger
}

func NewNotificatorService(log *logger.Logger) *NotificatorService {
	return &NotificatorService{log: log}
}

// Handle logs one status notification.
func (ns *NotificatorService) Handle(body []byte) (domain.StatusNotification, error) {
	var n domain.StatusNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return n, fmt.Errorf("malformed notification: %w", err)
	}
	if n.OrderCode == "" || n.NewStatus == "" {
		return n, errors.New("notification without order code or status")
	}
	fields := map[string]any{
		"order_code": n.OrderCode,
		"old_status": n.OldStatus,
		"new_status": n.NewStatus,
		"changed_by": n.ChangedBy.String(),
		"at":         n.OccurredAt.Format(time.RFC3339),
	}
	if n.ItemID != nil {
		fields["item_id"] = n.ItemID.String()
	}
	if n.Reason != "" {
		fields["reason"] = n.Reason
	}
	ns.log.Info("notification_received", fields)
	return n, nil
}

func (ns *NotificatorService) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("notification delivery channel closed")
			}
			if _, err := ns.Handle(d.Body); err != nil {
				ns.log.Error("notification_dropped", err, map[string]any{"message_id": d.MessageId})
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
