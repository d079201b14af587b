package order

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"

	"restaurant-orders/internal/common/config"
	"restaurant-orders/internal/common/httpx"
	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/microservices/order/handlers"
)

func Run(ctx context.Context, cfg config.App) error {
	log := logger.New("order-service")

	backend, err := NewBackend(ctx, cfg, log)
	if err != nil {
		log.Error("startup_failed", err, nil)
		return err
	}
	defer backend.Close()

	handler := handlers.New(backend.Service, []byte(cfg.Auth.Secret), log, backend.Health)
	srv := httpx.New(":"+strconv.Itoa(cfg.HTTP.Port), handlers.Router(handler), cfg.HTTP)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return backend.BrokerClosed(gctx) })

	log.Info("service_started", map[string]any{"port": cfg.HTTP.Port, "storage": cfg.Storage.Driver})
	err = g.Wait()
	if err != nil {
		log.Error("service_stopped", err, nil)
		return err
	}
	log.Info("graceful_shutdown", nil)
	return nil
}
