package domain

import "strings"

type OrderType string

const (
	OrderTypeDineIn   OrderType = "DINE_IN"
	OrderTypeTakeaway OrderType = "TAKEAWAY"
)

func (t OrderType) Valid() bool {
	return t == OrderTypeDineIn || t == OrderTypeTakeaway
}

// ParseOrderType accepts DINE_IN/TAKEAWAY in any case, also "dine-in" and "DineIn".
func ParseOrderType(s string) (OrderType, bool) {
	t := OrderType(normalizeEnum(s))
	if t == "DINEIN" {
		t = OrderTypeDineIn
	}
	return t, t.Valid()
}

type OrderStatus string

const (
	OrderStatusServing   OrderStatus = "SERVING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusServing, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(normalizeEnum(s))
	return st, st.Valid()
}

// orderTransitions is the whole order state machine.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusServing: {OrderStatusCompleted, OrderStatusCancelled},
}

func CanTransitionOrder(from, to OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type ItemStatus string

const (
	ItemStatusPreparing ItemStatus = "PREPARING"
	ItemStatusCooking   ItemStatus = "COOKING"
	ItemStatusReady     ItemStatus = "READY"
	ItemStatusCompleted ItemStatus = "COMPLETED"
	ItemStatusCancelled ItemStatus = "CANCELLED"
	ItemStatusRejected  ItemStatus = "REJECTED"
)

func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusPreparing, ItemStatusCooking, ItemStatusReady,
		ItemStatusCompleted, ItemStatusCancelled, ItemStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether nothing further will be served for the item.
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusCompleted || s == ItemStatusCancelled || s == ItemStatusRejected
}

// Billable reports whether the item counts towards the order total.
func (s ItemStatus) Billable() bool {
	return s != ItemStatusCancelled && s != ItemStatusRejected
}

// CancellableIndividually: only items the kitchen has not started may be cancelled one by one.
func (s ItemStatus) CancellableIndividually() bool {
	return s == ItemStatusPreparing
}

// cancelledWithOrder: statuses forced to Cancelled when the whole order is cancelled.
func (s ItemStatus) cancelledWithOrder() bool {
	return s == ItemStatusPreparing || s == ItemStatusCooking || s == ItemStatusReady
}

func ParseItemStatus(s string) (ItemStatus, bool) {
	st := ItemStatus(normalizeEnum(s))
	return st, st.Valid()
}

// ItemTransitionPolicy decides which kitchen-progress moves are legal.
type ItemTransitionPolicy interface {
	Allowed(from, to ItemStatus) bool
}

// TransitionTable maps a status to its allowed successors.
type TransitionTable map[ItemStatus][]ItemStatus

func (t TransitionTable) Allowed(from, to ItemStatus) bool {
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DefaultKitchenPolicy returns the stock station workflow.
func DefaultKitchenPolicy() TransitionTable {
	return TransitionTable{
		ItemStatusPreparing: {ItemStatusCooking, ItemStatusReady, ItemStatusRejected},
		ItemStatusCooking:   {ItemStatusReady, ItemStatusRejected},
		ItemStatusReady:     {ItemStatusCompleted},
	}
}

type OptionGroupType string

const (
	OptionGroupSingle OptionGroupType = "SINGLE"
	OptionGroupMulti  OptionGroupType = "MULTI"
	OptionGroupScale  OptionGroupType = "SCALE"
)

func normalizeEnum(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "-", "_")
}
