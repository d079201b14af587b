package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Order struct {
	ID          uuid.UUID
	Code        string
	Type        OrderType
	Status      OrderStatus
	TableID     *uuid.UUID // only while Serving, DineIn
	Note        string
	TotalAmount decimal.Decimal
	IsPriority  bool
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
	Version     int
	Items       []OrderItem
}

// OrderItem keeps catalog values as they were when the item was taken.
type OrderItem struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	MenuItemID   uuid.UUID
	ItemCode     string
	ItemName     string
	Station      string
	UnitPrice    decimal.Decimal
	Quantity     int
	Status       ItemStatus
	Note         string
	CancelledAt  *time.Time
	CreatedAt    time.Time
	OptionGroups []OrderItemOptionGroup
}

type OrderItemOptionGroup struct {
	ID         uuid.UUID
	GroupName  string
	GroupType  OptionGroupType
	IsRequired bool
	Values     []OrderItemOptionValue
}

type OrderItemOptionValue struct {
	ID           uuid.UUID
	OptionItemID *uuid.UUID // traceability only, never dereferenced
	Label        string
	ExtraPrice   decimal.Decimal
	Quantity     int
	Note         string
}

// CompletionPolicy settles what Complete accepts beyond the fixed rules.
type CompletionPolicy struct {
	// AllowNoBillableItems permits completing an order whose items are all Cancelled/Rejected.
	AllowNoBillableItems bool
}

// NewOrder opens an order in Serving with no items.
func NewOrder(id uuid.UUID, code string, typ OrderType, tableID *uuid.UUID, note string, priority bool, createdBy uuid.UUID, now time.Time) (*Order, error) {
	if !typ.Valid() {
		return nil, Validation("order_type", CodeInvalid, fmt.Sprintf("unknown order type %q", typ))
	}
	if typ == OrderTypeDineIn && tableID == nil {
		return nil, BadRequest(CodeSelectTable, "select a table for a dine-in order")
	}
	if typ != OrderTypeDineIn {
		tableID = nil
	}
	if tableID != nil {
		t := *tableID
		tableID = &t
	}
	return &Order{
		ID:          id,
		Code:        code,
		Type:        typ,
		Status:      OrderStatusServing,
		TableID:     tableID,
		Note:        note,
		TotalAmount: decimal.Zero,
		IsPriority:  priority,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (o *Order) IsTerminal() bool { return o.Status.Terminal() }

// EnsureOpen fails with Conflict/InvalidAction once the order is terminal.
func (o *Order) EnsureOpen() error {
	if o.IsTerminal() {
		return &Error{Kind: KindConflict, Code: CodeInvalidAction,
			Message: fmt.Sprintf("order %s is %s and can no longer be changed", o.Code, o.Status)}
	}
	return nil
}

// Item returns the item with the given id.
func (o *Order) Item(id uuid.UUID) (*OrderItem, error) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i], nil
		}
	}
	return nil, NotFound(fmt.Sprintf("order item %s not found in order %s", id, o.Code))
}

// AddItem appends a new Preparing item built from a snapshot.
func (o *Order) AddItem(id, menuItemID uuid.UUID, snap Snapshot, quantity int, note string, now time.Time) (*OrderItem, error) {
	if err := o.EnsureOpen(); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, Validation("quantity", CodeInvalid, "quantity must be greater than zero")
	}
	if o.Type == OrderTypeDineIn && o.TableID == nil {
		return nil, &Error{Kind: KindConflict, Code: CodeInvalidAction,
			Message: fmt.Sprintf("order %s has released its table, open a new order", o.Code)}
	}
	o.Items = append(o.Items, OrderItem{
		ID:           id,
		OrderID:      o.ID,
		MenuItemID:   menuItemID,
		ItemCode:     snap.ItemCode,
		ItemName:     snap.ItemName,
		Station:      snap.Station,
		UnitPrice:    snap.UnitPrice,
		Quantity:     quantity,
		Status:       ItemStatusPreparing,
		Note:         note,
		CreatedAt:    now,
		OptionGroups: snap.OptionGroups,
	})
	o.touch(now)
	return &o.Items[len(o.Items)-1], nil
}

// ResnapshotItem replaces pricing, options, quantity and note of a Preparing item.
func (o *Order) ResnapshotItem(itemID, menuItemID uuid.UUID, snap Snapshot, quantity int, note string, now time.Time) (*OrderItem, error) {
	if err := o.EnsureOpen(); err != nil {
		return nil, err
	}
	it, err := o.Item(itemID)
	if err != nil {
		return nil, err
	}
	if it.Status != ItemStatusPreparing {
		return nil, invalidItemStatus(it, "update")
	}
	if quantity <= 0 {
		return nil, Validation("quantity", CodeInvalid, "quantity must be greater than zero")
	}
	it.MenuItemID = menuItemID
	it.ItemCode = snap.ItemCode
	it.ItemName = snap.ItemName
	it.Station = snap.Station
	it.UnitPrice = snap.UnitPrice
	it.OptionGroups = snap.OptionGroups
	it.Quantity = quantity
	it.Note = note
	o.touch(now)
	return it, nil
}

// CancelItem cancels a single item that the kitchen has not started.
func (o *Order) CancelItem(itemID uuid.UUID, now time.Time) error {
	if err := o.EnsureOpen(); err != nil {
		return err
	}
	it, err := o.Item(itemID)
	if err != nil {
		return err
	}
	if !it.Status.CancellableIndividually() {
		return invalidItemStatus(it, "cancel")
	}
	it.Status = ItemStatusCancelled
	it.CancelledAt = timePtr(now)
	o.touch(now)
	o.releaseTableIfDone()
	return nil
}

// TransitionItem applies a kitchen-progress move checked against policy.
func (o *Order) TransitionItem(itemID uuid.UUID, to ItemStatus, policy ItemTransitionPolicy, now time.Time) (ItemStatus, error) {
	if err := o.EnsureOpen(); err != nil {
		return "", err
	}
	it, err := o.Item(itemID)
	if err != nil {
		return "", err
	}
	from := it.Status
	if !policy.Allowed(from, to) {
		return from, &Error{Kind: KindBadRequest, Code: CodeInvalidActionWithStatus,
			Message: fmt.Sprintf("order item %s cannot move from %s to %s", it.ID, from, to)}
	}
	it.Status = to
	if to == ItemStatusCancelled {
		it.CancelledAt = timePtr(now)
	}
	o.touch(now)
	o.releaseTableIfDone()
	return from, nil
}

// Cancel closes the order, releases the table and voids every item not yet finished.
func (o *Order) Cancel(now time.Time) error {
	if !CanTransitionOrder(o.Status, OrderStatusCancelled) {
		return o.ensureOpenOr(OrderStatusCancelled)
	}
	for i := range o.Items {
		if o.Items[i].Status.cancelledWithOrder() {
			o.Items[i].Status = ItemStatusCancelled
			o.Items[i].CancelledAt = timePtr(now)
		}
	}
	o.Status = OrderStatusCancelled
	o.CancelledAt = timePtr(now)
	o.TableID = nil
	o.touch(now)
	return nil
}

// Complete settles the order total and closes it.
func (o *Order) Complete(now time.Time, policy CompletionPolicy) error {
	if !CanTransitionOrder(o.Status, OrderStatusCompleted) {
		return o.ensureOpenOr(OrderStatusCompleted)
	}
	if len(o.Items) == 0 {
		return BadRequest(CodeNoItems, fmt.Sprintf("order %s has no items to complete", o.Code))
	}
	if !policy.AllowNoBillableItems && !o.hasBillableItems() {
		return BadRequest(CodeNoBillableItems,
			fmt.Sprintf("every item of order %s is cancelled or rejected; cancel the order instead", o.Code))
	}
	o.Status = OrderStatusCompleted
	o.CompletedAt = timePtr(now)
	o.TableID = nil
	o.touch(now)
	return nil
}

// Recalculate refreshes TotalAmount from the item snapshots.
func (o *Order) Recalculate() decimal.Decimal {
	o.TotalAmount = OrderTotal(o.Items)
	return o.TotalAmount
}

// Clone returns a deep copy; the option snapshot tree is copied by value.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.TableID = clonePtr(o.TableID)
	c.CompletedAt = clonePtr(o.CompletedAt)
	c.CancelledAt = clonePtr(o.CancelledAt)
	if o.Items != nil {
		c.Items = make([]OrderItem, len(o.Items))
		for i, it := range o.Items {
			c.Items[i] = it.clone()
		}
	}
	return &c
}

func (it OrderItem) clone() OrderItem {
	c := it
	c.CancelledAt = clonePtr(it.CancelledAt)
	if it.OptionGroups != nil {
		c.OptionGroups = make([]OrderItemOptionGroup, len(it.OptionGroups))
		for i, g := range it.OptionGroups {
			gc := g
			if g.Values != nil {
				gc.Values = make([]OrderItemOptionValue, len(g.Values))
				for j, v := range g.Values {
					vc := v
					vc.OptionItemID = clonePtr(v.OptionItemID)
					gc.Values[j] = vc
				}
			}
			c.OptionGroups[i] = gc
		}
	}
	return c
}

// AllItemsTerminal is true when the order has items and none is still in the kitchen flow.
func (o *Order) AllItemsTerminal() bool {
	if len(o.Items) == 0 {
		return false
	}
	for _, it := range o.Items {
		if !it.Status.Terminal() {
			return false
		}
	}
	return true
}

func (o *Order) hasBillableItems() bool {
	for _, it := range o.Items {
		if it.Status.Billable() {
			return true
		}
	}
	return false
}

func (o *Order) releaseTableIfDone() {
	if o.TableID != nil && o.AllItemsTerminal() {
		o.TableID = nil
	}
}

func (o *Order) ensureOpenOr(to OrderStatus) error {
	if err := o.EnsureOpen(); err != nil {
		return err
	}
	return &Error{Kind: KindConflict, Code: CodeInvalidAction,
		Message: fmt.Sprintf("order %s cannot move from %s to %s", o.Code, o.Status, to)}
}

func (o *Order) touch(now time.Time) {
	o.Recalculate()
	o.UpdatedAt = now
}

func invalidItemStatus(it *OrderItem, action string) error {
	return &Error{Kind: KindBadRequest, Code: CodeInvalidActionWithStatus,
		Message: fmt.Sprintf("cannot %s order item %s while it is %s", action, it.ItemName, it.Status)}
}

func timePtr(t time.Time) *time.Time { return &t }

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
