package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/domain"
	dto "restaurant-orders/internal/microservices/order/domain/dto"
	"restaurant-orders/internal/microservices/order/repository"
)

type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, req dto.CreateOrderRequest) (*domain.Order, error)
	SubmitOrder(ctx context.Context, req dto.SubmitOrderRequest) (*domain.Order, error)
	AddItem(ctx context.Context, req dto.AddItemRequest) (*domain.Order, error)
	UpdateItems(ctx context.Context, req dto.UpdateItemsRequest) (*domain.Order, error)
	CancelItem(ctx context.Context, req dto.CancelItemRequest) (*domain.Order, error)
	UpdateItemStatus(ctx context.Context, req dto.UpdateItemStatusRequest) (*domain.Order, error)
	CancelOrder(ctx context.Context, req dto.CancelOrderRequest) (*domain.Order, error)
	CompleteOrder(ctx context.Context, req dto.CompleteOrderRequest) (*domain.Order, error)

	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, f repository.OrderFilter) ([]*domain.Order, error)
	ListAudit(ctx context.Context, orderID string) ([]domain.AuditEntry, error)
}

type OrderService struct {
	orders  repository.OrderRepositoryInterface
	catalog repository.CatalogRepositoryInterface
	pub     KitchenPublisher
	log     *logger.Logger

	clock          Clock
	identity       IdentityResolver
	authz          domain.Authorizer
	itemPolicy     domain.ItemTransitionPolicy
	completion     domain.CompletionPolicy
	newID          func() uuid.UUID
	publishTimeout time.Duration
}

func NewOrderService(
	orders repository.OrderRepositoryInterface,
	catalog repository.CatalogRepositoryInterface,
	pub KitchenPublisher,
	log *logger.Logger,
	opts ...Option,
) OrderServiceInterface {
	s := &OrderService{
		orders:         orders,
		catalog:        catalog,
		pub:            pub,
		log:            log,
		clock:          SystemClock{},
		identity:       ContextIdentity{},
		authz:          domain.DefaultRolePolicy(),
		itemPolicy:     domain.DefaultKitchenPolicy(),
		newID:          uuid.New,
		publishTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pub == nil {
		s.pub = NopPublisher{}
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	return s
}

type orderHeader struct {
	typ      domain.OrderType
	tableID  *uuid.UUID
	note     string
	priority bool
}

type orderState struct {
	Status      domain.OrderStatus `json:"status"`
	TotalAmount string             `json:"total_amount"`
	TableID     *uuid.UUID         `json:"table_id,omitempty"`
}

func stateOf(o *domain.Order) orderState {
	s := orderState{Status: o.Status, TotalAmount: o.TotalAmount.StringFixed(2)}
	if o.TableID != nil {
		t := *o.TableID
		s.TableID = &t
	}
	return s
}

type auditRecord struct {
	action   domain.AuditAction
	oldValue any
	newValue any
	reason   string
}

func (s *OrderService) CreateOrder(ctx context.Context, req dto.CreateOrderRequest) (*domain.Order, error) {
	actor, err := s.actor(ctx, domain.OpCreateOrder)
	if err != nil {
		return nil, err
	}
	head, err := parseHeader(req)
	if err != nil {
		return nil, err
	}

	var created *domain.Order
	err = s.orders.InTx(ctx, func(ctx context.Context, tx repository.OrderTx) error {
		o, err := s.open(ctx, tx, head, actor)
		if err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		if err := s.appendAudit(ctx, tx, o, actor, auditRecord{
			action:   domain.AuditOrderCreated,
			newValue: dto.FromOrder(o),
		}, o.CreatedAt); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, s.fail("create_order", err)
	}

	s.log.Info("order_created", orderFields(created, actor))
	return created, nil
}

func (s *OrderService) SubmitOrder(ctx context.Context, req dto.SubmitOrderRequest) (*domain.Order, error) {
	actor, err := s.actor(ctx, domain.OpSubmitOrder)
	if err != nil {
		return nil, err
	}
	head, err := parseHeader(req.CreateOrderRequest)
	if err != nil {
		return nil, err
	}
	lines, err := parseLines(req.Items, false)
	if err != nil {
		return nil, err
	}
	lines = mergeLines(lines)

	var submitted *domain.Order
	err = s.orders.InTx(ctx, func(ctx context.Context, tx repository.OrderTx) error {
		o, err := s.open(ctx, tx, head, actor)
		if err != nil {
			return err
		}
		for _, l := range lines {
			snap, err := s.snapshot(ctx, o.Type, l)
			if err != nil {
				return err
			}
			if _, err := o.AddItem(s.newID(), l.menuItemID, snap, l.quantity, l.note, o.CreatedAt); err != nil {
				return err
			}
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		if err := s.appendAudit(ctx, tx, o, actor, auditRecord{
			action:   domain.AuditOrderSubmitted,
			newValue: dto.FromOrder(o),
		}, o.CreatedAt); err != nil {
			return err
		}
		submitted = o
		return nil
	})
	if err != nil {
		return nil, s.fail("submit_order", err)
	}

	fields := orderFields(submitted, actor)
	fields["items"] = len(submitted.Items)
	fields["total_amount"] = submitted.TotalAmount.StringFixed(2)
	s.log.Info("order_submitted", fields)
	s.publishTicket(ctx, submitted, submitted.Items, actor)
	return submitted, nil
}

func (s *OrderService) AddItem(ctx context.Context, req dto.AddItemRequest) (*domain.Order, error) {
	actor, err := s.actor(ctx, domain.OpAddItem)
	if err != nil {
		return nil, err
	}
	orderID, err := requireID("order_id", req.OrderID)
	if err != nil {
		return nil, err
	}
	line, err := parseLine("item", req.ItemLineInput, false)
	if err != nil {
		return nil, err
	}

	var added domain.OrderItem
	o, err := s.mutate(ctx, orderID, actor, func(ctx context.Context, o *domain.Order, now time.Time) (auditRecord, error) {
		if err := o.EnsureOpen(); err != nil {
			return auditRecord{}, err
		}
		snap, err := s.snapshot(ctx, o.Type, line)
		if err != nil {
			return auditRecord{}, err
		}
		it, err := o.AddItem(s.newID(), line.menuItemID, snap, line.quantity, line.note, now)
		if err != nil {
			return auditRecord{}, err
		}
		added = *it
		return auditRecord{action: domain.AuditItemAdded, newValue: dto.FromItem(added)}, nil
	})
	if err != nil {
		return nil, s.fail("add_item", err)
	}

	fields := orderFields(o, actor)
	fields["item_id"] = added.ID.String()
	s.log.Info("order_item_added", fields)
	s.publishTicket(ctx, o, []domain.OrderItem{added}, actor)
	return o, nil
}

// UpdateItems edits Preparing items named by id and appends lines without one.
// Items not mentioned are left as they are.
func (s *OrderService) UpdateItems(ctx context.Context, req dto.UpdateItemsRequest) (*domain.Order, error) {
	actor, err := s.actor(ctx, domain.OpUpdateItems)
	if err != nil {
		return nil, err
	}
	orderID, err := requireID("order_id", req.OrderID)
	if err != nil {
		return nil, err
	}
	reason, err := requireText("reason", req.Reason)
	if err != nil {
		return nil, err
	}
	lines, err := parseLines(req.Items, true)
	if err != nil {
		return nil, err
	}

	var changed []domain.OrderItem
	o, err := s.mutate(ctx, orderID, actor, func(ctx context.Context, o *domain.Order, now time.Time) (auditRecord, error) {
		if err := o.EnsureOpen(); err != nil {
			return auditRecord{}, err
		}
		before := dto.FromOrder(o).Items
		changed = changed[:0]
		for _, l := range lines {
			snap, err := s.snapshot(ctx, o.Type, l)
			if err != nil {
				return auditRecord{}, err
			}
			var it *domain.OrderItem
			if l.itemID != nil {
				it, err = o.ResnapshotItem(*l.itemID, l.menuItemID, snap, l.quantity, l.note, now)
			} else {
				it, err = o.AddItem(s.newID(), l.menuItemID, snap, l.quantity, l.note, now)
			}
			if err != nil {
				return auditRecord{}, err
			}
			changed = append(changed, *it)
		}
		return auditRecord{
			action:   domain.AuditItemsUpdated,
			oldValue: before,
			newValue: dto.FromOrder(o).Items,
			reason:   reason,
		}, nil
	})
	if err != nil {
		return nil, s.fail("update_items", err)
	}

	fields := orderFields(o, actor)
	fields["items"] = len(changed)
	fields["reason"] = reason
	s.log.Info("order_items_updated", fields)
	s.publishTicket(ctx, o, changed, actor)
	return o, nil
}

func (s *OrderService) CancelItem(ctx context.Context, req dto.CancelItemRequest) (*domain.Order, error) {
	actor, err := s.actor(ctx, domain.OpCancelItem)
	if err != nil {
		return nil, err
	}
	orderID, err := requireID("order_id", req.OrderID)
	if err != nil {
		return nil, err
	}
	itemID, err := requireID("item_id", req.ItemID)
	if err != nil {
		return nil, err
	}
	reason, err := requireText("reason", req.Reason)
	if err != nil {
		return nil, err
	}

	var from domain.ItemStatus
	o, err := s.mutate(ctx, orderID, actor, func(_ context.Context, o *domain.Order, now time.Time) (auditRecord, error) {
		it, err := o.Item(itemID)
		if err != nil {
			return auditRecord{}, err
		}
		before := dto.FromItem(*it)
		from = it.Status
		if err := o.CancelItem(itemID, now); err != nil {
			return auditRecord{}, err
		}
		it, _ = o.Item(itemID)
		return auditRecord{
			action:   domain.AuditItemCancelled,
			oldValue: before,
			newValue: dto.FromItem(*it),
			reason:   reason,
		}, nil
	})
	if err != nil {
		return nil, s.fail("cancel_item", err)
	}

	fields := orderFields(o, actor)
	fields["item_id"] = itemID.String()
	s.log.Info("order_item_cancelled", fields)
	s.notify(ctx, o, &itemID, string(from), string(domain.ItemStatusCancelled), reason, actor)
	return o, nil
}

// UpdateItemStatus moves an item along the kitchen flow allowed by the item policy.
func (s *OrderService) UpdateItemStatus(ctx context.Context, req dto.UpdateItemStatusRequest) (*domain.Order, error) {
	actor, err := s.actor(ctx, domain.OpUpdateItemStatus)
	if err != nil {
		return nil, err
	}
	orderID, err := requireID("order_id", req.OrderID)
	if err != nil {
		return nil, err
	}
	itemID, err := requireID("item_id", req.ItemID)
	if err != nil {
		return nil, err
	}
	raw, err := requireText("status", req.Status)
	if err != nil {
		return nil, err
	}
	to, ok := domain.ParseItemStatus(raw)
	if !ok {
		return nil, domain.Validation("status", domain.CodeInvalid, fmt.Sprintf("unknown item status %q", raw))
	}
	reason := strings.TrimSpace(req.Reason)

	var from domain.ItemStatus
	o, err := s.mutate(ctx, orderID, actor, func(_ context.Context, o *domain.Order, now time.Time) (auditRecord, error) {
		prev, err := o.TransitionItem(itemID, to, s.itemPolicy, now)
		if err != nil {
			return auditRecord{}, err
		}
		from = prev
		return auditRecord{
			action:   domain.AuditItemStatusChanged,
			oldValue: map[string]any{"item_id": itemID, "status": prev},
			newValue: map[string]any{"item_id": itemID, "status": to},
			reason:   reason,
		}, nil
	})
	if err != nil {
		return nil, s.fail("update_item_status", err)
	}

	fields := orderFields(o, actor)
	fields["item_id"] = itemID.String()
	fields["old_status"] = string(from)
	fields["new_status"] = string(to)
	s.log.Info("order_item_status_changed", fields)
	s.notify(ctx, o, &itemID, string(from), string(to), reason, actor)
	return o, nil
}

func (s *OrderService) CancelOrder(ctx context.Context, req dto.CancelOrderRequest) (*domain.Order, error) {
	actor, err := s.actor(ctx, domain.OpCancelOrder)
	if err != nil {
		return nil, err
	}
	orderID, err := requireID("order_id", req.OrderID)
	if err != nil {
		return nil, err
	}
	raw, err := requireText("status", req.Status)
	if err != nil {
		return nil, err
	}
	if st, _ := domain.ParseOrderStatus(raw); st != domain.OrderStatusCancelled {
		return nil, domain.Validation("status", domain.CodeInvalid,
			fmt.Sprintf("status must be %s, got %q", domain.OrderStatusCancelled, raw))
	}
	reason, err := requireText("reason", req.Reason)
	if err != nil {
		return nil, err
	}

	o, err := s.mutate(ctx, orderID, actor, func(_ context.Context, o *domain.Order, now time.Time) (auditRecord, error) {
		old := stateOf(o)
		if err := o.Cancel(now); err != nil {
			return auditRecord{}, err
		}
		return auditRecord{action: domain.AuditOrderCancelled, oldValue: old, newValue: stateOf(o), reason: reason}, nil
	})
	if err != nil {
		return nil, s.fail("cancel_order", err)
	}

	fields := orderFields(o, actor)
	fields["reason"] = reason
	s.log.Info("order_cancelled", fields)
	s.notify(ctx, o, nil, string(domain.OrderStatusServing), string(domain.OrderStatusCancelled), reason, actor)
	return o, nil
}

func (s *OrderService) CompleteOrder(ctx context.Context, req dto.CompleteOrderRequest) (*domain.Order, error) {
	actor, err := s.actor(ctx, domain.OpCompleteOrder)
	if err != nil {
		return nil, err
	}
	orderID, err := requireID("order_id", req.OrderID)
	if err != nil {
		return nil, err
	}

	o, err := s.mutate(ctx, orderID, actor, func(_ context.Context, o *domain.Order, now time.Time) (auditRecord, error) {
		old := stateOf(o)
		if err := o.Complete(now, s.completion); err != nil {
			return auditRecord{}, err
		}
		return auditRecord{action: domain.AuditOrderCompleted, oldValue: old, newValue: stateOf(o)}, nil
	})
	if err != nil {
		return nil, s.fail("complete_order", err)
	}

	fields := orderFields(o, actor)
	fields["total_amount"] = o.TotalAmount.StringFixed(2)
	s.log.Info("order_completed", fields)
	s.notify(ctx, o, nil, string(domain.OrderStatusServing), string(domain.OrderStatusCompleted), "", actor)
	return o, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if _, err := s.actor(ctx, domain.OpViewOrder); err != nil {
		return nil, err
	}
	id, err := requireID("order_id", orderID)
	if err != nil {
		return nil, err
	}
	o, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, s.fail("get_order", err)
	}
	return o, nil
}

func (s *OrderService) ListOrders(ctx context.Context, f repository.OrderFilter) ([]*domain.Order, error) {
	if _, err := s.actor(ctx, domain.OpViewOrder); err != nil {
		return nil, err
	}
	if f.Offset < 0 {
		return nil, domain.Validation("offset", domain.CodeInvalid, "must not be negative")
	}
	orders, err := s.orders.ListOrders(ctx, f)
	if err != nil {
		return nil, s.fail("list_orders", err)
	}
	return orders, nil
}

// ListAudit returns the order's audit timeline, oldest first.
func (s *OrderService) ListAudit(ctx context.Context, orderID string) ([]domain.AuditEntry, error) {
	if _, err := s.actor(ctx, domain.OpViewOrder); err != nil {
		return nil, err
	}
	id, err := requireID("order_id", orderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.orders.GetOrder(ctx, id); err != nil {
		return nil, s.fail("list_audit", err)
	}
	entries, err := s.orders.ListAudit(ctx, id)
	if err != nil {
		return nil, s.fail("list_audit", err)
	}
	return entries, nil
}

// mutate loads the order under lock, applies fn, then persists the order
// together with the audit entry fn describes.
func (s *OrderService) mutate(
	ctx context.Context,
	orderID uuid.UUID,
	actor domain.Identity,
	fn func(ctx context.Context, o *domain.Order, now time.Time) (auditRecord, error),
) (*domain.Order, error) {
	var out *domain.Order
	err := s.orders.InTx(ctx, func(ctx context.Context, tx repository.OrderTx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		rec, err := fn(ctx, o, now)
		if err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := s.appendAudit(ctx, tx, o, actor, rec, now); err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

// open allocates a code and builds a new Serving order after the occupancy check.
func (s *OrderService) open(ctx context.Context, tx repository.OrderTx, h orderHeader, actor domain.Identity) (*domain.Order, error) {
	if h.typ == domain.OrderTypeDineIn && h.tableID != nil {
		if _, busy, err := tx.ServingOrderOnTable(ctx, *h.tableID); err != nil {
			return nil, err
		} else if busy {
			return nil, domain.BadRequest(domain.CodeTableAlreadyOccupied,
				fmt.Sprintf("table %s already has a serving order", h.tableID))
		}
	}
	now := s.clock.Now()
	latest, err := tx.LatestOrderCode(ctx, domain.OrderCodePrefix(now))
	if err != nil {
		return nil, err
	}
	code, err := domain.NextOrderCode(now, latest)
	if err != nil {
		return nil, err
	}
	return domain.NewOrder(s.newID(), code, h.typ, h.tableID, h.note, h.priority, actor.StaffID, now)
}

func (s *OrderService) snapshot(ctx context.Context, typ domain.OrderType, l itemLine) (domain.Snapshot, error) {
	m, err := s.catalog.GetMenuItem(ctx, l.menuItemID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return domain.Snapshot{}, domain.BadRequest(domain.CodeNotFound,
				fmt.Sprintf("menu item %s not found", l.menuItemID))
		}
		return domain.Snapshot{}, err
	}
	if m.OutOfStock {
		return domain.Snapshot{}, domain.BadRequest(domain.CodeOutOfStock, fmt.Sprintf("%s is out of stock", m.Name))
	}
	return domain.TakeSnapshot(*m, typ, l.options, s.newID)
}

func (s *OrderService) appendAudit(ctx context.Context, tx repository.OrderTx, o *domain.Order, actor domain.Identity, rec auditRecord, now time.Time) error {
	return tx.AppendAudit(ctx, domain.AuditEntry{
		ID:        s.newID(),
		OrderID:   o.ID,
		ActorID:   actor.StaffID,
		Action:    rec.action,
		OldValue:  auditJSON(rec.oldValue),
		NewValue:  auditJSON(rec.newValue),
		Reason:    rec.reason,
		CreatedAt: now,
	})
}

// actor resolves the caller and checks the capability before any storage access.
func (s *OrderService) actor(ctx context.Context, op domain.Operation) (domain.Identity, error) {
	id, err := s.identity.Resolve(ctx)
	if err != nil {
		if _, ok := domain.AsError(err); ok {
			return domain.Identity{}, err
		}
		return domain.Identity{}, &domain.Error{Kind: domain.KindUnauthorized, Code: domain.CodeUnauthorized,
			Message: "cannot resolve the acting staff member", Err: err}
	}
	if err := domain.Authorize(s.authz, id, op); err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

// fail passes domain errors through and reports anything else as a retryable conflict.
func (s *OrderService) fail(action string, err error) error {
	if _, ok := domain.AsError(err); ok {
		return err
	}
	s.log.Error(action+"_failed", err, nil)
	return domain.Conflict(domain.CodeStorage, "the order store could not complete the request, retry", err)
}

func (s *OrderService) publishTicket(ctx context.Context, o *domain.Order, items []domain.OrderItem, actor domain.Identity) {
	if len(items) == 0 {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	t := domain.TicketFor(o, items, actor.StaffID, s.clock.Now())
	if err := s.pub.PublishTicket(pctx, t); err != nil {
		s.log.Error("kitchen_ticket_publish_failed", err, orderFields(o, actor))
	}
}

func (s *OrderService) notify(ctx context.Context, o *domain.Order, itemID *uuid.UUID, from, to, reason string, actor domain.Identity) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	n := domain.StatusNotification{
		OrderID:    o.ID,
		OrderCode:  o.Code,
		ItemID:     itemID,
		OldStatus:  from,
		NewStatus:  to,
		ChangedBy:  actor.StaffID,
		Reason:     reason,
		OccurredAt: s.clock.Now(),
	}
	if err := s.pub.PublishStatus(pctx, n); err != nil {
		s.log.Error("status_notification_publish_failed", err, orderFields(o, actor))
	}
}

func parseHeader(req dto.CreateOrderRequest) (orderHeader, error) {
	typ, err := parseOrderType(req.OrderType)
	if err != nil {
		return orderHeader{}, err
	}
	tableID, err := optionalID("table_id", req.TableID)
	if err != nil {
		return orderHeader{}, err
	}
	if typ == domain.OrderTypeDineIn && tableID == nil {
		return orderHeader{}, domain.BadRequest(domain.CodeSelectTable, "select a table for a dine-in order")
	}
	if typ != domain.OrderTypeDineIn {
		tableID = nil
	}
	return orderHeader{typ: typ, tableID: tableID, note: strings.TrimSpace(req.Note), priority: req.IsPriority}, nil
}

func auditJSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func orderFields(o *domain.Order, actor domain.Identity) map[string]any {
	return map[string]any{
		"order_id":   o.ID.String(),
		"order_code": o.Code,
		"actor":      actor.StaffID.String(),
	}
}
