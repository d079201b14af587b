package order

import (
	"context"
	"fmt"

	"restaurant-orders/internal/common/config"
	"restaurant-orders/internal/common/db"
	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/common/mq"
	"restaurant-orders/internal/domain"
	"restaurant-orders/internal/microservices/order/events"
	"restaurant-orders/internal/microservices/order/repository"
	"restaurant-orders/internal/microservices/order/service"
)

// Backend is the storage, broker and workflow engine shared by every mode
// that mutates orders.
type Backend struct {
	DB      *db.Conn   // nil with the memory driver
	MQ      *mq.Client // nil when rabbitmq is disabled
	Repo    *repository.Repository
	Service *service.Service
}

func NewBackend(ctx context.Context, cfg config.App, log *logger.Logger) (*Backend, error) {
	b := &Backend{}

	switch cfg.Storage.Driver {
	case "memory":
		b.Repo = repository.NewMemory()
		if cfg.Storage.MenuFile != "" {
			n, err := b.Repo.CatalogRepo.(*repository.MemoryCatalog).LoadMenuFile(cfg.Storage.MenuFile)
			if err != nil {
				return nil, fmt.Errorf("load menu: %w", err)
			}
			log.Info("menu_loaded", map[string]any{"items": n, "file": cfg.Storage.MenuFile})
		}
		log.Warn("memory_storage", map[string]any{"detail": "orders are lost on restart"})
	default:
		conn, err := db.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		b.DB = conn
		log.Info("db_connected", map[string]any{"host": cfg.Database.Host, "database": cfg.Database.Name})
		if cfg.Storage.Migrate {
			if err := db.Migrate(conn); err != nil {
				b.Close()
				return nil, err
			}
			log.Info("db_migrated", nil)
		}
		b.Repo = repository.New(conn.Pool)
	}

	var pub service.KitchenPublisher = service.NopPublisher{}
	if cfg.Rabbit.Enabled {
		client, err := mq.Dial(cfg.Rabbit)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("rabbitmq connect: %w", err)
		}
		b.MQ = client
		if err := client.DeclareAll(); err != nil {
			b.Close()
			return nil, fmt.Errorf("rabbitmq topology: %w", err)
		}
		log.Info("rabbitmq_connected", map[string]any{"host": cfg.Rabbit.Host})
		pub = events.NewPublisher(client)
	}

	b.Service = service.New(b.Repo, pub, log,
		service.WithCompletionPolicy(domain.CompletionPolicy{AllowNoBillableItems: cfg.Orders.AllowNoBillableCompletion}),
	)
	return b, nil
}

// Health pings every backing connection.
func (b *Backend) Health(ctx context.Context) error {
	if b.DB != nil {
		if err := b.DB.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if b.MQ != nil {
		if err := b.MQ.Ping(); err != nil {
			return err
		}
	}
	return nil
}

// BrokerClosed fails once the broker connection drops; it returns nil when
// ctx ends first or rabbitmq is disabled.
func (b *Backend) BrokerClosed(ctx context.Context) error {
	if b.MQ == nil {
		<-ctx.Done()
		return nil
	}
	closed := b.MQ.NotifyClose()
	select {
	case <-ctx.Done():
		return nil
	case e, ok := <-closed:
		if !ok || e == nil {
			return nil
		}
		return fmt.Errorf("rabbitmq connection closed: %s", e.Reason)
	}
}

func (b *Backend) Close() {
	b.MQ.Close()
	b.DB.Close()
}
