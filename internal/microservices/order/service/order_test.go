package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/domain"
	dto "restaurant-orders/internal/microservices/order/domain/dto"
	"restaurant-orders/internal/microservices/order/repository"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recordingPublisher struct {
	mu      sync.Mutex
	fail    error
	tickets []domain.KitchenTicket
	events  []domain.StatusNotification
}

func (p *recordingPublisher) PublishTicket(_ context.Context, t domain.KitchenTicket) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.tickets = append(p.tickets, t)
	return nil
}

func (p *recordingPublisher) PublishStatus(_ context.Context, n domain.StatusNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.events = append(p.events, n)
	return nil
}

func (p *recordingPublisher) lastEvent(t *testing.T) domain.StatusNotification {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.events)
	return p.events[len(p.events)-1]
}

// countingRepo records whether the workflow touched storage.
type countingRepo struct {
	*repository.MemoryOrderRepository
	mu  sync.Mutex
	txs int
}

func (r *countingRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.OrderTx) error) error {
	r.mu.Lock()
	r.txs++
	r.mu.Unlock()
	return r.MemoryOrderRepository.InTx(ctx, fn)
}

type brokenRepo struct {
	*repository.MemoryOrderRepository
}

func (brokenRepo) InTx(context.Context, func(ctx context.Context, tx repository.OrderTx) error) error {
	return errors.New("connection reset by peer")
}

type menu struct {
	burger, fries, salad, soda domain.MenuItem
	cheese, bacon              uuid.UUID
}

func newMenu() menu {
	m := menu{cheese: uuid.New(), bacon: uuid.New()}
	m.burger = domain.MenuItem{
		ID: uuid.New(), Code: "BRG", Name: "Burger", Station: "grill",
		DineInPrice: decimal.NewFromInt(100), TakeawayPrice: decimal.NewFromInt(90),
		OptionGroups: []domain.MenuOptionGroup{{
			ID: uuid.New(), Name: "Extras", Type: domain.OptionGroupMulti,
			Items: []domain.MenuOptionItem{
				{ID: m.cheese, Label: "Cheese", ExtraPrice: decimal.NewFromInt(10)},
				{ID: m.bacon, Label: "Bacon", ExtraPrice: decimal.NewFromInt(15)},
			},
		}},
	}
	m.fries = domain.MenuItem{ID: uuid.New(), Code: "FRS", Name: "Fries", Station: "fryer",
		DineInPrice: decimal.NewFromInt(50), TakeawayPrice: decimal.NewFromInt(45)}
	m.salad = domain.MenuItem{ID: uuid.New(), Code: "SLD", Name: "Salad", Station: "cold",
		DineInPrice: decimal.NewFromInt(75), TakeawayPrice: decimal.NewFromInt(75)}
	m.soda = domain.MenuItem{ID: uuid.New(), Code: "SDA", Name: "Soda", Station: "bar",
		DineInPrice: decimal.NewFromInt(20), TakeawayPrice: decimal.NewFromInt(20), OutOfStock: true}
	return m
}

type fixture struct {
	svc    OrderServiceInterface
	orders *countingRepo
	pub    *recordingPublisher
	menu   menu

	waiter, cashier, manager, kitchen context.Context
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		orders: &countingRepo{MemoryOrderRepository: repository.NewMemoryOrderRepository()},
		pub:    &recordingPublisher{},
		menu:   newMenu(),
	}
	catalog := repository.NewMemoryCatalog()
	for _, m := range []domain.MenuItem{f.menu.burger, f.menu.fries, f.menu.salad, f.menu.soda} {
		catalog.Put(m)
	}
	opts = append([]Option{WithClock(fixedClock{t0})}, opts...)
	f.svc = NewOrderService(f.orders, catalog, f.pub, logger.Discard(), opts...)
	f.waiter = as(domain.RoleWaiter)
	f.cashier = as(domain.RoleCashier)
	f.manager = as(domain.RoleManager)
	f.kitchen = as(domain.RoleKitchen)
	return f
}

func as(role domain.Role) context.Context {
	return domain.WithIdentity(context.Background(), domain.Identity{StaffID: uuid.New(), Role: role})
}

func line(m domain.MenuItem, qty int, opts ...uuid.UUID) dto.ItemLineInput {
	in := dto.ItemLineInput{MenuItemID: m.ID.String(), Quantity: qty}
	for _, o := range opts {
		in.Options = append(in.Options, dto.OptionSelectionInput{OptionItemID: o.String()})
	}
	return in
}

func dineInReq(table uuid.UUID) dto.CreateOrderRequest {
	return dto.CreateOrderRequest{OrderType: "DINE_IN", TableID: table.String()}
}

func (f *fixture) submit(t *testing.T, items ...dto.ItemLineInput) *domain.Order {
	t.Helper()
	o, err := f.svc.SubmitOrder(f.waiter, dto.SubmitOrderRequest{CreateOrderRequest: dineInReq(uuid.New()), Items: items})
	require.NoError(t, err)
	return o
}

func (f *fixture) setStatus(t *testing.T, o *domain.Order, idx int, st domain.ItemStatus) *domain.Order {
	t.Helper()
	out, err := f.svc.UpdateItemStatus(f.kitchen, dto.UpdateItemStatusRequest{
		OrderID: o.ID.String(), ItemID: o.Items[idx].ID.String(), Status: string(st),
	})
	require.NoError(t, err)
	return out
}

func (f *fixture) stored(t *testing.T, id uuid.UUID) *domain.Order {
	t.Helper()
	o, err := f.orders.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (f *fixture) actions(t *testing.T, id uuid.UUID) []domain.AuditAction {
	t.Helper()
	entries, err := f.orders.ListAudit(context.Background(), id)
	require.NoError(t, err)
	out := make([]domain.AuditAction, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func assertTotal(t *testing.T, o *domain.Order, want string) {
	t.Helper()
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString(want)), "total %s, want %s", o.TotalAmount, want)
	assert.True(t, o.TotalAmount.Equal(domain.OrderTotal(o.Items)), "stored total drifted from items")
}

func assertCode(t *testing.T, err error, kind domain.Kind, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, domain.KindOf(err), err.Error())
	if code != "" {
		assert.Equal(t, code, domain.CodeOf(err), err.Error())
	}
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	table := uuid.New()

	o, err := f.svc.CreateOrder(f.waiter, dto.CreateOrderRequest{OrderType: "dine_in", TableID: table.String(), Note: " birthday "})
	require.NoError(t, err)
	assert.Equal(t, "ORD-20260101-0001", o.Code)
	assert.Equal(t, domain.OrderStatusServing, o.Status)
	assert.Equal(t, "birthday", o.Note)
	require.NotNil(t, o.TableID)
	assert.Equal(t, table, *o.TableID)
	assertTotal(t, o, "0")
	assert.Equal(t, []domain.AuditAction{domain.AuditOrderCreated}, f.actions(t, o.ID))
	assert.Empty(t, f.pub.tickets, "an empty order sends nothing to the kitchen")

	next, err := f.svc.CreateOrder(f.cashier, dto.CreateOrderRequest{OrderType: "TAKEAWAY", TableID: uuid.NewString()})
	require.NoError(t, err)
	assert.Equal(t, "ORD-20260101-0002", next.Code)
	assert.Nil(t, next.TableID)
}

func TestCreateOrderRejectsBeforeStorage(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrder(f.waiter, dto.CreateOrderRequest{OrderType: "DINE_IN"})
	assertCode(t, err, domain.KindBadRequest, domain.CodeSelectTable)

	_, err = f.svc.CreateOrder(f.waiter, dto.CreateOrderRequest{OrderType: "DELIVERY"})
	assertCode(t, err, domain.KindValidation, domain.CodeInvalid)

	_, err = f.svc.CreateOrder(f.waiter, dto.CreateOrderRequest{OrderType: "DINE_IN", TableID: "table-7"})
	assertCode(t, err, domain.KindValidation, domain.CodeInvalid)

	_, err = f.svc.CreateOrder(context.Background(), dineInReq(uuid.New()))
	assertCode(t, err, domain.KindUnauthorized, "")

	_, err = f.svc.CreateOrder(f.kitchen, dineInReq(uuid.New()))
	assertCode(t, err, domain.KindForbidden, "")

	assert.Zero(t, f.orders.txs)
}

func TestCreateOrderTableOccupied(t *testing.T) {
	f := newFixture(t)
	table := uuid.New()

	first, err := f.svc.CreateOrder(f.waiter, dineInReq(table))
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(f.waiter, dineInReq(table))
	assertCode(t, err, domain.KindBadRequest, domain.CodeTableAlreadyOccupied)

	_, err = f.svc.CancelOrder(f.manager, dto.CancelOrderRequest{OrderID: first.ID.String(), Status: "CANCELLED", Reason: "walked out"})
	require.NoError(t, err)

	again, err := f.svc.CreateOrder(f.waiter, dineInReq(table))
	require.NoError(t, err)
	assert.Equal(t, "ORD-20260101-0002", again.Code)
}

func TestConcurrentSeatingOnOneTable(t *testing.T) {
	f := newFixture(t)
	table := uuid.New()

	const n = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		occupied int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateOrder(f.waiter, dineInReq(table))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrTableAlreadyOccupied):
				occupied++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, occupied)
	serving, err := f.svc.ListOrders(f.waiter, repository.OrderFilter{TableID: &table, Status: domain.OrderStatusServing})
	require.NoError(t, err)
	assert.Len(t, serving, 1)
}

func TestConcurrentOrdersGetUniqueCodes(t *testing.T) {
	f := newFixture(t)

	const n = 20
	codes := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := f.svc.CreateOrder(f.cashier, dto.CreateOrderRequest{OrderType: "TAKEAWAY"})
			if assert.NoError(t, err) {
				codes <- o.Code
			}
		}()
	}
	wg.Wait()
	close(codes)

	seen := make(map[string]bool)
	for c := range codes {
		assert.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}
	assert.Len(t, seen, n)
	for i := 1; i <= n; i++ {
		assert.True(t, seen[fmt.Sprintf("ORD-20260101-%04d", i)])
	}
}

func TestSubmitOrder(t *testing.T) {
	f := newFixture(t)

	o := f.submit(t,
		line(f.menu.fries, 2),
		line(f.menu.burger, 1, f.menu.cheese),
		line(f.menu.fries, 3),
	)
	require.Len(t, o.Items, 2, "identical lines are merged")
	assert.Equal(t, "Fries", o.Items[0].ItemName)
	assert.Equal(t, 5, o.Items[0].Quantity)
	assert.Equal(t, domain.ItemStatusPreparing, o.Items[1].Status)
	assertTotal(t, o, "360")

	assert.Equal(t, []domain.AuditAction{domain.AuditOrderSubmitted}, f.actions(t, o.ID))
	require.Len(t, f.pub.tickets, 1)
	tk := f.pub.tickets[0]
	assert.Equal(t, o.Code, tk.OrderCode)
	assert.Equal(t, domain.PriorityNormal, tk.Priority)
	assert.Len(t, tk.Items, 2)
	assert.Equal(t, []string{"Extras: Cheese"}, tk.Items[1].Options)
}

func TestSubmitOrderPricesOptions(t *testing.T) {
	f := newFixture(t)
	o := f.submit(t, line(f.menu.burger, 1, f.menu.cheese))
	assertTotal(t, o, "110")

	take, err := f.svc.SubmitOrder(f.waiter, dto.SubmitOrderRequest{
		CreateOrderRequest: dto.CreateOrderRequest{OrderType: "TAKEAWAY", IsPriority: true},
		Items:              []dto.ItemLineInput{line(f.menu.burger, 2, f.menu.cheese, f.menu.bacon)},
	})
	require.NoError(t, err)
	assertTotal(t, take, "230")
	assert.Equal(t, domain.PriorityRush, f.pub.tickets[1].Priority)
}

func TestSubmitOrderKeepsDistinctLines(t *testing.T) {
	f := newFixture(t)
	noOnion := line(f.menu.burger, 1)
	noOnion.Note = "no onion"
	o := f.submit(t, line(f.menu.burger, 1), noOnion, line(f.menu.burger, 1, f.menu.cheese))
	assert.Len(t, o.Items, 3)
}

func TestSubmitOrderRejectsBadLines(t *testing.T) {
	f := newFixture(t)
	table := uuid.New()
	req := func(items ...dto.ItemLineInput) dto.SubmitOrderRequest {
		return dto.SubmitOrderRequest{CreateOrderRequest: dineInReq(table), Items: items}
	}

	_, err := f.svc.SubmitOrder(f.waiter, req())
	assertCode(t, err, domain.KindValidation, domain.CodeRequired)

	_, err = f.svc.SubmitOrder(f.waiter, req(line(f.menu.fries, 0)))
	assertCode(t, err, domain.KindValidation, domain.CodeInvalid)

	_, err = f.svc.SubmitOrder(f.waiter, req(line(f.menu.fries, 1), dto.ItemLineInput{MenuItemID: uuid.NewString(), Quantity: 1}))
	assertCode(t, err, domain.KindBadRequest, domain.CodeNotFound)

	_, err = f.svc.SubmitOrder(f.waiter, req(line(f.menu.soda, 1)))
	assertCode(t, err, domain.KindBadRequest, domain.CodeOutOfStock)

	_, err = f.svc.SubmitOrder(f.waiter, req(line(f.menu.fries, 1, f.menu.cheese)))
	assertCode(t, err, domain.KindValidation, domain.CodeInvalid)

	all, err := f.svc.ListOrders(f.manager, repository.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, all, "failed submissions leave nothing behind")
	assert.Empty(t, f.pub.tickets)

	_, err = f.svc.CreateOrder(f.waiter, dineInReq(table))
	assert.NoError(t, err, "the table was never taken")
}

func TestAddItem(t *testing.T) {
	f := newFixture(t)
	o := f.submit(t, line(f.menu.burger, 1))

	o, err := f.svc.AddItem(f.waiter, dto.AddItemRequest{OrderID: o.ID.String(), ItemLineInput: line(f.menu.salad, 2)})
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	assertTotal(t, o, "250")
	assertTotal(t, f.stored(t, o.ID), "250")
	assert.Equal(t, []domain.AuditAction{domain.AuditOrderSubmitted, domain.AuditItemAdded}, f.actions(t, o.ID))

	require.Len(t, f.pub.tickets, 2)
	require.Len(t, f.pub.tickets[1].Items, 1, "only the new line goes to the kitchen")
	assert.Equal(t, "Salad", f.pub.tickets[1].Items[0].ItemName)

	_, err = f.svc.AddItem(f.waiter, dto.AddItemRequest{OrderID: uuid.NewString(), ItemLineInput: line(f.menu.salad, 1)})
	assertCode(t, err, domain.KindNotFound, "")

	_, err = f.svc.CompleteOrder(f.cashier, dto.CompleteOrderRequest{OrderID: o.ID.String()})
	require.NoError(t, err)
	_, err = f.svc.AddItem(f.waiter, dto.AddItemRequest{OrderID: o.ID.String(), ItemLineInput: line(f.menu.salad, 1)})
	assert.True(t, errors.Is(err, domain.ErrInvalidAction))
}

func TestReleasedTableRefusesNewItems(t *testing.T) {
	f := newFixture(t)
	table := uuid.New()
	o, err := f.svc.SubmitOrder(f.waiter, dto.SubmitOrderRequest{
		CreateOrderRequest: dineInReq(table),
		Items:              []dto.ItemLineInput{line(f.menu.burger, 1)},
	})
	require.NoError(t, err)
	o, err = f.svc.CancelItem(f.waiter, dto.CancelItemRequest{OrderID: o.ID.String(), ItemID: o.Items[0].ID.String(), Reason: "x"})
	require.NoError(t, err)
	require.Nil(t, o.TableID)
	tickets := len(f.pub.tickets)

	_, err = f.svc.AddItem(f.waiter, dto.AddItemRequest{OrderID: o.ID.String(), ItemLineInput: line(f.menu.fries, 1)})
	assertCode(t, err, domain.KindConflict, domain.CodeInvalidAction)
	_, err = f.svc.UpdateItems(f.waiter, dto.UpdateItemsRequest{
		OrderID: o.ID.String(), Reason: "more", Items: []dto.ItemLineInput{line(f.menu.fries, 1)},
	})
	assertCode(t, err, domain.KindConflict, domain.CodeInvalidAction)

	stored := f.stored(t, o.ID)
	assert.Len(t, stored.Items, 1)
	assert.Nil(t, stored.TableID)
	assert.Len(t, f.pub.tickets, tickets, "nothing new reaches the kitchen")

	next, err := f.svc.CreateOrder(f.waiter, dineInReq(table))
	require.NoError(t, err)
	require.NotNil(t, next.TableID)
	assert.Equal(t, table, *next.TableID)
}

func TestUpdateItems(t *testing.T) {
	f := newFixture(t)
	o := f.submit(t, line(f.menu.burger, 1), line(f.menu.fries, 1))
	burgerID := o.Items[0].ID

	edit := line(f.menu.burger, 3, f.menu.bacon)
	edit.ItemID = burgerID.String()
	req := dto.UpdateItemsRequest{OrderID: o.ID.String(), Items: []dto.ItemLineInput{edit, line(f.menu.salad, 1)}}

	_, err := f.svc.UpdateItems(f.waiter, req)
	assertCode(t, err, domain.KindValidation, domain.CodeRequired)

	req.Reason = "guest changed their mind"
	o, err = f.svc.UpdateItems(f.waiter, req)
	require.NoError(t, err)
	require.Len(t, o.Items, 3)
	assert.Equal(t, burgerID, o.Items[0].ID)
	assert.Equal(t, 3, o.Items[0].Quantity)
	assertTotal(t, o, "470")

	entries, err := f.svc.ListAudit(f.waiter, o.ID.String())
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, domain.AuditItemsUpdated, last.Action)
	assert.Equal(t, "guest changed their mind", last.Reason)
	assert.NotEmpty(t, last.OldValue)
	assert.Len(t, f.pub.tickets[len(f.pub.tickets)-1].Items, 2)

	o = f.setStatus(t, o, 0, domain.ItemStatusCooking)
	_, err = f.svc.UpdateItems(f.waiter, req)
	assertCode(t, err, domain.KindBadRequest, domain.CodeInvalidActionWithStatus)
	assert.Len(t, f.stored(t, o.ID).Items, 3, "a rejected update changes nothing")
}

func TestCancelItem(t *testing.T) {
	f := newFixture(t)
	o := f.submit(t, line(f.menu.burger, 1), line(f.menu.fries, 1))
	req := dto.CancelItemRequest{OrderID: o.ID.String(), ItemID: o.Items[1].ID.String()}

	_, err := f.svc.CancelItem(f.waiter, req)
	assertCode(t, err, domain.KindValidation, domain.CodeRequired)

	req.Reason = "too slow"
	o, err = f.svc.CancelItem(f.waiter, req)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusCancelled, o.Items[1].Status)
	assertTotal(t, o, "100")

	ev := f.pub.lastEvent(t)
	assert.Equal(t, "PREPARING", ev.OldStatus)
	assert.Equal(t, "CANCELLED", ev.NewStatus)
	require.NotNil(t, ev.ItemID)
	assert.Equal(t, o.Items[1].ID, *ev.ItemID)

	o = f.setStatus(t, o, 0, domain.ItemStatusCooking)
	_, err = f.svc.CancelItem(f.waiter, dto.CancelItemRequest{OrderID: o.ID.String(), ItemID: o.Items[0].ID.String(), Reason: "x"})
	assertCode(t, err, domain.KindBadRequest, domain.CodeInvalidActionWithStatus)

	_, err = f.svc.CancelItem(f.waiter, dto.CancelItemRequest{OrderID: o.ID.String(), ItemID: uuid.NewString(), Reason: "x"})
	assertCode(t, err, domain.KindNotFound, "")
}

func TestUpdateItemStatus(t *testing.T) {
	f := newFixture(t)
	o := f.submit(t, line(f.menu.burger, 1))

	_, err := f.svc.UpdateItemStatus(f.waiter, dto.UpdateItemStatusRequest{
		OrderID: o.ID.String(), ItemID: o.Items[0].ID.String(), Status: "COOKING",
	})
	assertCode(t, err, domain.KindForbidden, "")

	_, err = f.svc.UpdateItemStatus(f.kitchen, dto.UpdateItemStatusRequest{
		OrderID: o.ID.String(), ItemID: o.Items[0].ID.String(), Status: "BURNT",
	})
	assertCode(t, err, domain.KindValidation, domain.CodeInvalid)

	o = f.setStatus(t, o, 0, domain.ItemStatusCooking)
	o = f.setStatus(t, o, 0, domain.ItemStatusReady)
	assert.Equal(t, domain.ItemStatusReady, o.Items[0].Status)
	assert.Equal(t, "COOKING", f.pub.lastEvent(t).OldStatus)

	_, err = f.svc.UpdateItemStatus(f.kitchen, dto.UpdateItemStatusRequest{
		OrderID: o.ID.String(), ItemID: o.Items[0].ID.String(), Status: "COOKING",
	})
	assertCode(t, err, domain.KindBadRequest, domain.CodeInvalidActionWithStatus)

	o = f.setStatus(t, o, 0, domain.ItemStatusCompleted)
	assert.Nil(t, o.TableID, "the table is free once everything is served")
	assert.Equal(t, domain.OrderStatusServing, o.Status)
}

func TestUpdateItemStatusCustomPolicy(t *testing.T) {
	f := newFixture(t, WithItemPolicy(domain.TransitionTable{
		domain.ItemStatusPreparing: {domain.ItemStatusCompleted},
	}))
	o := f.submit(t, line(f.menu.fries, 1))
	o = f.setStatus(t, o, 0, domain.ItemStatusCompleted)
	assert.Equal(t, domain.ItemStatusCompleted, o.Items[0].Status)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	o := f.submit(t, line(f.menu.burger, 1), line(f.menu.fries, 1), line(f.menu.salad, 1))
	o = f.setStatus(t, o, 0, domain.ItemStatusReady)
	o = f.setStatus(t, o, 0, domain.ItemStatusCompleted)
	o = f.setStatus(t, o, 1, domain.ItemStatusCooking)

	req := dto.CancelOrderRequest{OrderID: o.ID.String(), Status: "CANCELLED", Reason: "kitchen fire"}

	_, err := f.svc.CancelOrder(f.waiter, req)
	assertCode(t, err, domain.KindForbidden, "")

	_, err = f.svc.CancelOrder(f.manager, dto.CancelOrderRequest{OrderID: o.ID.String(), Status: "COMPLETED", Reason: "x"})
	assertCode(t, err, domain.KindValidation, domain.CodeInvalid)

	_, err = f.svc.CancelOrder(f.manager, dto.CancelOrderRequest{OrderID: o.ID.String(), Status: "CANCELLED"})
	assertCode(t, err, domain.KindValidation, domain.CodeRequired)

	o, err = f.svc.CancelOrder(f.manager, req)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, o.Status)
	assert.Nil(t, o.TableID)
	require.NotNil(t, o.CancelledAt)
	assert.Equal(t, domain.ItemStatusCompleted, o.Items[0].Status, "served items stay served")
	assert.Equal(t, domain.ItemStatusCancelled, o.Items[1].Status)
	assert.Equal(t, domain.ItemStatusCancelled, o.Items[2].Status)
	assertTotal(t, o, "100")

	ev := f.pub.lastEvent(t)
	assert.Nil(t, ev.ItemID)
	assert.Equal(t, "CANCELLED", ev.NewStatus)
	assert.Equal(t, "kitchen fire", ev.Reason)

	entries, err := f.svc.ListAudit(f.manager, o.ID.String())
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, domain.AuditOrderCancelled, last.Action)
	var state map[string]any
	require.NoError(t, json.Unmarshal(last.NewValue, &state))
	assert.Equal(t, "CANCELLED", state["status"])

	_, err = f.svc.CancelOrder(f.manager, req)
	assert.True(t, errors.Is(err, domain.ErrInvalidAction))
}

func TestCompleteOrder(t *testing.T) {
	t.Run("bills only live items", func(t *testing.T) {
		f := newFixture(t)
		o := f.submit(t, line(f.menu.burger, 1), line(f.menu.fries, 1), line(f.menu.salad, 1))
		o, err := f.svc.CancelItem(f.waiter, dto.CancelItemRequest{OrderID: o.ID.String(), ItemID: o.Items[1].ID.String(), Reason: "x"})
		require.NoError(t, err)
		o = f.setStatus(t, o, 2, domain.ItemStatusRejected)

		o, err = f.svc.CompleteOrder(f.waiter, dto.CompleteOrderRequest{OrderID: o.ID.String()})
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusCompleted, o.Status)
		assert.Nil(t, o.TableID)
		assertTotal(t, o, "100")
		assertTotal(t, f.stored(t, o.ID), "100")
		assert.Equal(t, "COMPLETED", f.pub.lastEvent(t).NewStatus)

		_, err = f.svc.CompleteOrder(f.waiter, dto.CompleteOrderRequest{OrderID: o.ID.String()})
		assert.True(t, errors.Is(err, domain.ErrInvalidAction))
	})

	t.Run("empty order", func(t *testing.T) {
		f := newFixture(t)
		o, err := f.svc.CreateOrder(f.waiter, dineInReq(uuid.New()))
		require.NoError(t, err)
		_, err = f.svc.CompleteOrder(f.waiter, dto.CompleteOrderRequest{OrderID: o.ID.String()})
		assertCode(t, err, domain.KindBadRequest, domain.CodeNoItems)
	})

	t.Run("nothing billable", func(t *testing.T) {
		for _, allow := range []bool{false, true} {
			f := newFixture(t, WithCompletionPolicy(domain.CompletionPolicy{AllowNoBillableItems: allow}))
			o := f.submit(t, line(f.menu.fries, 1))
			o = f.setStatus(t, o, 0, domain.ItemStatusRejected)
			_, err := f.svc.CompleteOrder(f.waiter, dto.CompleteOrderRequest{OrderID: o.ID.String()})
			if allow {
				assert.NoError(t, err)
			} else {
				assertCode(t, err, domain.KindBadRequest, domain.CodeNoBillableItems)
			}
		}
	})
}

func TestAuditTimeline(t *testing.T) {
	f := newFixture(t)
	o := f.submit(t, line(f.menu.burger, 1))
	o, err := f.svc.AddItem(f.waiter, dto.AddItemRequest{OrderID: o.ID.String(), ItemLineInput: line(f.menu.fries, 1)})
	require.NoError(t, err)
	o = f.setStatus(t, o, 0, domain.ItemStatusCooking)
	_, err = f.svc.CancelItem(f.waiter, dto.CancelItemRequest{OrderID: o.ID.String(), ItemID: o.Items[1].ID.String(), Reason: "x"})
	require.NoError(t, err)

	entries, err := f.svc.ListAudit(f.cashier, o.ID.String())
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, []domain.AuditAction{
		domain.AuditOrderSubmitted, domain.AuditItemAdded, domain.AuditItemStatusChanged, domain.AuditItemCancelled,
	}, f.actions(t, o.ID))
	for _, e := range entries {
		assert.Equal(t, o.ID, e.OrderID)
		assert.Equal(t, t0, e.CreatedAt)
		assert.NotEqual(t, uuid.Nil, e.ActorID)
	}

	_, err = f.svc.ListAudit(f.cashier, uuid.NewString())
	assertCode(t, err, domain.KindNotFound, "")
}

func TestReads(t *testing.T) {
	f := newFixture(t)
	o := f.submit(t, line(f.menu.fries, 1))

	got, err := f.svc.GetOrder(f.kitchen, o.ID.String())
	require.NoError(t, err)
	assert.Equal(t, o.Code, got.Code)

	_, err = f.svc.GetOrder(f.kitchen, "not-an-id")
	assertCode(t, err, domain.KindValidation, domain.CodeInvalid)

	_, err = f.svc.GetOrder(context.Background(), o.ID.String())
	assertCode(t, err, domain.KindUnauthorized, "")

	_, err = f.svc.ListOrders(f.waiter, repository.OrderFilter{Offset: -1})
	assertCode(t, err, domain.KindValidation, domain.CodeInvalid)
}

func TestPublishFailureDoesNotUndoCommit(t *testing.T) {
	f := newFixture(t)
	f.pub.fail = errors.New("broker down")

	o := f.submit(t, line(f.menu.burger, 1))
	assert.Equal(t, o.Code, f.stored(t, o.ID).Code)

	_, err := f.svc.CancelOrder(f.manager, dto.CancelOrderRequest{OrderID: o.ID.String(), Status: "CANCELLED", Reason: "x"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, f.stored(t, o.ID).Status)
}

func TestStorageErrorsBecomeConflicts(t *testing.T) {
	svc := NewOrderService(brokenRepo{repository.NewMemoryOrderRepository()}, repository.NewMemoryCatalog(), nil, nil)
	_, err := svc.CreateOrder(as(domain.RoleWaiter), dto.CreateOrderRequest{OrderType: "TAKEAWAY"})
	assertCode(t, err, domain.KindConflict, domain.CodeStorage)
}

func TestCustomIdentityResolver(t *testing.T) {
	staff := uuid.New()
	resolver := resolverFunc(func(context.Context) (domain.Identity, error) {
		return domain.Identity{StaffID: staff, Role: domain.RoleCashier}, nil
	})
	f := newFixture(t, WithIdentityResolver(resolver))

	o, err := f.svc.CreateOrder(context.Background(), dto.CreateOrderRequest{OrderType: "TAKEAWAY"})
	require.NoError(t, err)
	assert.Equal(t, staff, o.CreatedBy)

	failing := newFixture(t, WithIdentityResolver(resolverFunc(func(context.Context) (domain.Identity, error) {
		return domain.Identity{}, errors.New("session store offline")
	})))
	_, err = failing.svc.CreateOrder(context.Background(), dto.CreateOrderRequest{OrderType: "TAKEAWAY"})
	assertCode(t, err, domain.KindUnauthorized, "")
}

type resolverFunc func(context.Context) (domain.Identity, error)

func (f resolverFunc) Resolve(ctx context.Context) (domain.Identity, error) { return f(ctx) }
