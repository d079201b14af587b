package dto

import (
	"encoding/json"
	"time"

	"restaurant-orders/internal/domain"
)

type CreateOrderRequest struct {
	OrderType  string `json:"order_type"`
	TableID    string `json:"table_id,omitempty"`
	Note       string `json:"note,omitempty"`
	IsPriority bool   `json:"is_priority,omitempty"`
}

// SubmitOrderRequest opens an order and sends its first items to the kitchen in one call.
type SubmitOrderRequest struct {
	CreateOrderRequest
	Items []ItemLineInput `json:"items"`
}

type OptionSelectionInput struct {
	OptionItemID string `json:"option_item_id"`
	Quantity     int    `json:"quantity,omitempty"`
	Note         string `json:"note,omitempty"`
}

// ItemLineInput is one requested line. ItemID is set only when editing an existing item.
type ItemLineInput struct {
	ItemID     string                 `json:"item_id,omitempty"`
	MenuItemID string                 `json:"menu_item_id"`
	Quantity   int                    `json:"quantity"`
	Note       string                 `json:"note,omitempty"`
	Options    []OptionSelectionInput `json:"options,omitempty"`
}

type AddItemRequest struct {
	OrderID string `json:"-"`
	ItemLineInput
}

type UpdateItemsRequest struct {
	OrderID string          `json:"-"`
	Items   []ItemLineInput `json:"items"`
	Reason  string          `json:"reason"`
}

type CancelItemRequest struct {
	OrderID string `json:"-"`
	ItemID  string `json:"-"`
	Reason  string `json:"reason"`
}

type UpdateItemStatusRequest struct {
	OrderID string `json:"-"`
	ItemID  string `json:"-"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}

type CancelOrderRequest struct {
	OrderID string `json:"-"`
	Status  string `json:"status"`
	Reason  string `json:"reason"`
}

type CompleteOrderRequest struct {
	OrderID string `json:"-"`
}

type OptionValueResponse struct {
	OptionItemID string `json:"option_item_id,omitempty"`
	Label        string `json:"label"`
	ExtraPrice   string `json:"extra_price"`
	Quantity     int    `json:"quantity"`
	Note         string `json:"note,omitempty"`
}

type OptionGroupResponse struct {
	GroupName  string                `json:"group_name"`
	GroupType  string                `json:"group_type"`
	IsRequired bool                  `json:"is_required"`
	Values     []OptionValueResponse `json:"values"`
}

type OrderItemResponse struct {
	ID           string                `json:"id"`
	MenuItemID   string                `json:"menu_item_id"`
	ItemCode     string                `json:"item_code"`
	ItemName     string                `json:"item_name"`
	Station      string                `json:"station"`
	UnitPrice    string                `json:"unit_price"`
	Quantity     int                   `json:"quantity"`
	LineTotal    string                `json:"line_total"`
	Status       string                `json:"status"`
	Note         string                `json:"note,omitempty"`
	CancelledAt  *time.Time            `json:"cancelled_at,omitempty"`
	OptionGroups []OptionGroupResponse `json:"option_groups,omitempty"`
}

type OrderResponse struct {
	ID          string              `json:"id"`
	Code        string              `json:"code"`
	OrderType   string              `json:"order_type"`
	Status      string              `json:"status"`
	TableID     string              `json:"table_id,omitempty"`
	Note        string              `json:"note,omitempty"`
	TotalAmount string              `json:"total_amount"`
	IsPriority  bool                `json:"is_priority"`
	CreatedBy   string              `json:"created_by"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	CancelledAt *time.Time          `json:"cancelled_at,omitempty"`
	Items       []OrderItemResponse `json:"items"`
}

type AuditEntryResponse struct {
	ID        string          `json:"id"`
	ActorID   string          `json:"actor_id"`
	Action    string          `json:"action"`
	OldValue  json.RawMessage `json:"old_value,omitempty"`
	NewValue  json.RawMessage `json:"new_value,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// FromOrder renders an order; money is formatted with two decimals.
func FromOrder(o *domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:          o.ID.String(),
		Code:        o.Code,
		OrderType:   string(o.Type),
		Status:      string(o.Status),
		Note:        o.Note,
		TotalAmount: o.TotalAmount.StringFixed(2),
		IsPriority:  o.IsPriority,
		CreatedBy:   o.CreatedBy.String(),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		CompletedAt: o.CompletedAt,
		CancelledAt: o.CancelledAt,
		Items:       make([]OrderItemResponse, 0, len(o.Items)),
	}
	if o.TableID != nil {
		resp.TableID = o.TableID.String()
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, FromItem(it))
	}
	return resp
}

func FromItem(it domain.OrderItem) OrderItemResponse {
	ir := OrderItemResponse{
		ID:          it.ID.String(),
		MenuItemID:  it.MenuItemID.String(),
		ItemCode:    it.ItemCode,
		ItemName:    it.ItemName,
		Station:     it.Station,
		UnitPrice:   it.UnitPrice.StringFixed(2),
		Quantity:    it.Quantity,
		LineTotal:   it.LineTotal().StringFixed(2),
		Status:      string(it.Status),
		Note:        it.Note,
		CancelledAt: it.CancelledAt,
	}
	for _, g := range it.OptionGroups {
		gr := OptionGroupResponse{
			GroupName:  g.GroupName,
			GroupType:  string(g.GroupType),
			IsRequired: g.IsRequired,
			Values:     make([]OptionValueResponse, 0, len(g.Values)),
		}
		for _, v := range g.Values {
			vr := OptionValueResponse{
				Label:      v.Label,
				ExtraPrice: v.ExtraPrice.StringFixed(2),
				Quantity:   v.Quantity,
				Note:       v.Note,
			}
			if v.OptionItemID != nil {
				vr.OptionItemID = v.OptionItemID.String()
			}
			gr.Values = append(gr.Values, vr)
		}
		ir.OptionGroups = append(ir.OptionGroups, gr)
	}
	return ir
}

func FromOrders(orders []*domain.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, FromOrder(o))
	}
	return out
}

func FromAudit(entries []domain.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			ID:        e.ID.String(),
			ActorID:   e.ActorID.String(),
			Action:    string(e.Action),
			OldValue:  e.OldValue,
			NewValue:  e.NewValue,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
