package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/domain"
	"restaurant-orders/internal/microservices/kitchen/repository"
	dto "restaurant-orders/internal/microservices/order/domain/dto"
)

var (
	ErrRequeue = errors.New("requeue")     // nack(requeue=true)
	ErrDLQ     = errors.New("dead_letter") // nack(requeue=false)
)

// ItemUpdater is the slice of the order service the kitchen drives.
type ItemUpdater interface {
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	UpdateItemStatus(ctx context.Context, req dto.UpdateItemStatusRequest) (*domain.Order, error)
}

type KitchenServiceInterface interface {
	Run(ctx context.Context, deliveries <-chan amqp.Delivery) error
	ProcessOne(ctx context.Context, body []byte) error
}

type Config struct {
	WorkerName string
	Identity   domain.Identity
	CookTime   time.Duration
	Stations   map[string]time.Duration
	BeatEvery  time.Duration
}

type KitchenService struct {
	items   ItemUpdater
	workers repository.WorkerRepositoryInterface
	log     *logger.Logger
	cfg     Config

	wait func(ctx context.Context, d time.Duration) error
}

func NewKitchenService(items ItemUpdater, workers repository.WorkerRepositoryInterface, log *logger.Logger, cfg Config) *KitchenService {
	if cfg.BeatEvery <= 0 {
		cfg.BeatEvery = 30 * time.Second
	}
	if cfg.Identity.Role == "" {
		cfg.Identity.Role = domain.RoleKitchen
	}
	return &KitchenService{items: items, workers: workers, log: log, cfg: cfg, wait: sleep}
}

// Run registers the worker and handles deliveries until ctx is done.
func (ks *KitchenService) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	if strings.TrimSpace(ks.cfg.WorkerName) == "" {
		return fmt.Errorf("worker name is empty: pass --worker-name")
	}
	if err := ks.workers.RegisterOrFail(ctx, ks.cfg.WorkerName, ks.cfg.Identity.StaffID); err != nil {
		ks.log.Error("worker_registration_failed", err, map[string]any{"worker": ks.cfg.WorkerName})
		return err
	}
	ks.log.Info("worker_registered", map[string]any{"worker": ks.cfg.WorkerName})
	defer func() {
		if err := ks.workers.SetOffline(context.Background(), ks.cfg.WorkerName); err != nil {
			ks.log.Error("worker_offline_failed", err, map[string]any{"worker": ks.cfg.WorkerName})
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := time.NewTicker(ks.cfg.BeatEvery)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				if err := ks.workers.Heartbeat(gctx, ks.cfg.WorkerName); err != nil {
					ks.log.Warn("heartbeat_failed", map[string]any{"worker": ks.cfg.WorkerName, "error": err.Error()})
				}
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				ks.log.Info("graceful_shutdown", map[string]any{"worker": ks.cfg.WorkerName})
				return nil
			case d, ok := <-deliveries:
				if !ok {
					return errors.New("kitchen delivery channel closed")
				}
				ks.settle(d, ks.ProcessOne(gctx, d.Body))
			}
		}
	})
	return g.Wait()
}

func (ks *KitchenService) settle(d amqp.Delivery, err error) {
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrDLQ):
		ks.log.Warn("ticket_dead_lettered", map[string]any{"message_id": d.MessageId, "error": err.Error()})
		_ = d.Nack(false, false)
	default:
		_ = d.Nack(false, true)
	}
}

// ProcessOne cooks every ticket item that is still waiting in the kitchen.
// Items already past Cooking, or belonging to a closed order, are skipped.
func (ks *KitchenService) ProcessOne(ctx context.Context, body []byte) error {
	var t domain.KitchenTicket
	if err := json.Unmarshal(body, &t); err != nil {
		return fmt.Errorf("%w: %v", ErrDLQ, err)
	}
	if t.OrderID == uuid.Nil || len(t.Items) == 0 {
		return fmt.Errorf("%w: ticket without order or items", ErrDLQ)
	}

	actx := domain.WithIdentity(ctx, ks.cfg.Identity)
	o, err := ks.items.GetOrder(actx, t.OrderID.String())
	if err != nil {
		return ks.classify(err)
	}
	if o.IsTerminal() {
		ks.log.Debug("ticket_skipped", map[string]any{"order_code": o.Code, "status": string(o.Status)})
		return nil
	}

	for _, ti := range t.Items {
		it, err := o.Item(ti.ItemID)
		if err != nil {
			continue
		}
		switch it.Status {
		case domain.ItemStatusPreparing:
			if err := ks.move(actx, t, ti, domain.ItemStatusCooking); err != nil {
				return err
			}
		case domain.ItemStatusCooking:
		default:
			continue
		}

		if err := ks.wait(ctx, ks.cookTime(ti.Station)); err != nil {
			return ErrRequeue
		}
		if err := ks.move(actx, t, ti, domain.ItemStatusReady); err != nil {
			return err
		}
		if err := ks.workers.ItemCooked(ctx, ks.cfg.WorkerName); err != nil {
			ks.log.Warn("worker_counter_failed", map[string]any{"worker": ks.cfg.WorkerName, "error": err.Error()})
		}
	}
	return nil
}

func (ks *KitchenService) move(ctx context.Context, t domain.KitchenTicket, ti domain.TicketItem, to domain.ItemStatus) error {
	_, err := ks.items.UpdateItemStatus(ctx, dto.UpdateItemStatusRequest{
		OrderID: t.OrderID.String(),
		ItemID:  ti.ItemID.String(),
		Status:  string(to),
	})
	fields := map[string]any{
		"order_code": t.OrderCode,
		"item":       ti.ItemName,
		"station":    ti.Station,
		"status":     string(to),
		"worker":     ks.cfg.WorkerName,
	}
	if err != nil {
		// Cancelled or rejected meanwhile: nothing left to cook.
		if domain.KindOf(err) == domain.KindBadRequest || domain.CodeOf(err) == domain.CodeInvalidAction {
			ks.log.Debug("item_skipped", fields)
			return nil
		}
		ks.log.Error("item_status_failed", err, fields)
		return ks.classify(err)
	}
	ks.log.Debug("item_status_changed", fields)
	return nil
}

func (ks *KitchenService) classify(err error) error {
	switch domain.KindOf(err) {
	case domain.KindNotFound, domain.KindValidation, domain.KindForbidden, domain.KindUnauthorized:
		return fmt.Errorf("%w: %v", ErrDLQ, err)
	}
	return fmt.Errorf("%w: %v", ErrRequeue, err)
}

func (ks *KitchenService) cookTime(station string) time.Duration {
	if d, ok := ks.cfg.Stations[station]; ok {
		return d
	}
	return ks.cfg.CookTime
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
