package kitchen

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"restaurant-orders/internal/common/config"
	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/common/mq"
	"restaurant-orders/internal/domain"
	"restaurant-orders/internal/microservices/kitchen/repository"
	"restaurant-orders/internal/microservices/kitchen/service"
	"restaurant-orders/internal/microservices/order"
)

func Run(ctx context.Context, cfg config.App) error {
	log := logger.New("kitchen-worker")

	if !cfg.Rabbit.Enabled {
		return errors.New("kitchen-worker needs rabbitmq.enabled")
	}
	// an in-process store would hold none of the order-service's orders
	if cfg.Storage.Driver != "postgres" {
		return fmt.Errorf("kitchen-worker needs storage.driver postgres, got %q", cfg.Storage.Driver)
	}
	staffID, err := uuid.Parse(cfg.Kitchen.StaffID)
	if err != nil {
		return fmt.Errorf("kitchen.staff_id must be a staff uuid: %w", err)
	}

	backend, err := order.NewBackend(ctx, cfg, log)
	if err != nil {
		log.Error("startup_failed", err, nil)
		return err
	}
	defer backend.Close()

	repo := repository.New(backend.DB.Pool)
	svc := service.New(backend.Service.OrderService, repo, log, service.Config{
		WorkerName: cfg.Kitchen.WorkerName,
		Identity:   domain.Identity{StaffID: staffID, Role: domain.RoleKitchen},
		CookTime:   cfg.Kitchen.CookTime,
		Stations:   cfg.Kitchen.Stations,
	})

	deliveries, stop, err := backend.MQ.Consume(mq.QueueKitchen, cfg.Kitchen.WorkerName, cfg.Kitchen.Prefetch)
	if err != nil {
		return fmt.Errorf("consume %s: %w", mq.QueueKitchen, err)
	}
	defer func() { _ = stop() }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.KitchenService.Run(gctx, deliveries) })
	g.Go(func() error { return backend.BrokerClosed(gctx) })

	log.Info("service_started", map[string]any{
		"worker":   cfg.Kitchen.WorkerName,
		"prefetch": cfg.Kitchen.Prefetch,
		"queue":    mq.QueueKitchen,
	})
	if err := g.Wait(); err != nil {
		log.Error("service_stopped", err, map[string]any{"worker": cfg.Kitchen.WorkerName})
		return err
	}
	return nil
}
