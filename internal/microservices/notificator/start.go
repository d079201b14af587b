package notificator

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"restaurant-orders/internal/common/config"
	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/common/mq"
	"restaurant-orders/internal/microservices/notificator/service"
)

func Run(ctx context.Context, cfg config.App) error {
	log := logger.New("notification-subscriber")
	if !cfg.Rabbit.Enabled {
		return errors.New("notification-subscriber needs rabbitmq.enabled")
	}

	client, err := mq.Dial(cfg.Rabbit)
	if err != nil {
		return fmt.Errorf("rabbitmq connect: %w", err)
	}
	defer client.Close()
	if err := client.DeclareAll(); err != nil {
		return fmt.Errorf("rabbitmq topology: %w", err)
	}

	deliveries, stop, err := client.Consume(mq.QueueNotifications, "notificator", 10)
	if err != nil {
		return fmt.Errorf("consume %s: %w", mq.QueueNotifications, err)
	}
	defer func() { _ = stop() }()

	ns := service.NewNotificatorService(log)
	closed := client.NotifyClose()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ns.Run(gctx, deliveries) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case e, ok := <-closed:
			if !ok || e == nil {
				return nil
			}
			return fmt.Errorf("rabbitmq connection closed: %s", e.Reason)
		}
	})

	log.Info("service_started", map[string]any{"queue": mq.QueueNotifications})
	return g.Wait()
}
