package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	PriorityNormal = 1
	PriorityRush   = 10
)

// KitchenTicket is published to the kitchen for newly placed or re-priced lines.
type KitchenTicket struct {
	OrderID    uuid.UUID    `json:"order_id"`
	OrderCode  string       `json:"order_code"`
	OrderType  OrderType    `json:"order_type"`
	TableID    *uuid.UUID   `json:"table_id,omitempty"`
	Priority   int          `json:"priority"`
	Items      []TicketItem `json:"items"`
	PlacedBy   uuid.UUID    `json:"placed_by"`
	OccurredAt time.Time    `json:"occurred_at"`
}

type TicketItem struct {
	ItemID   uuid.UUID `json:"item_id"`
	ItemCode string    `json:"item_code"`
	ItemName string    `json:"item_name"`
	Station  string    `json:"station"`
	Quantity int       `json:"quantity"`
	Note     string    `json:"note,omitempty"`
	Options  []string  `json:"options,omitempty"`
}

// StatusNotification announces an order or item status change.
type StatusNotification struct {
	OrderID    uuid.UUID  `json:"order_id"`
	OrderCode  string     `json:"order_code"`
	ItemID     *uuid.UUID `json:"item_id,omitempty"`
	OldStatus  string     `json:"old_status"`
	NewStatus  string     `json:"new_status"`
	ChangedBy  uuid.UUID  `json:"changed_by"`
	Reason     string     `json:"reason,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// TicketFor builds a ticket for the given items of o.
func TicketFor(o *Order, items []OrderItem, placedBy uuid.UUID, now time.Time) KitchenTicket {
	t := KitchenTicket{
		OrderID:    o.ID,
		OrderCode:  o.Code,
		OrderType:  o.Type,
		TableID:    clonePtr(o.TableID),
		Priority:   PriorityNormal,
		PlacedBy:   placedBy,
		OccurredAt: now,
	}
	if o.IsPriority {
		t.Priority = PriorityRush
	}
	for _, it := range items {
		ti := TicketItem{
			ItemID:   it.ID,
			ItemCode: it.ItemCode,
			ItemName: it.ItemName,
			Station:  it.Station,
			Quantity: it.Quantity,
			Note:     it.Note,
		}
		for _, g := range it.OptionGroups {
			for _, v := range g.Values {
				ti.Options = append(ti.Options, g.GroupName+": "+v.Label)
			}
		}
		t.Items = append(t.Items, ti)
	}
	return t
}
