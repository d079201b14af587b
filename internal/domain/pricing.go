package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MenuItem is the read-only catalog view used at snapshot time.
type MenuItem struct {
	ID            uuid.UUID
	Code          string
	Name          string
	Station       string
	DineInPrice   decimal.Decimal
	TakeawayPrice decimal.Decimal
	OutOfStock    bool
	OptionGroups  []MenuOptionGroup
}

type MenuOptionGroup struct {
	ID         uuid.UUID
	Name       string
	Type       OptionGroupType
	IsRequired bool
	Items      []MenuOptionItem
}

type MenuOptionItem struct {
	ID         uuid.UUID
	Label      string
	ExtraPrice decimal.Decimal
}

// OptionSelection is one chosen catalog option.
type OptionSelection struct {
	OptionItemID uuid.UUID
	Quantity     int
	Note         string
}

// Snapshot is the frozen pricing of one order line.
type Snapshot struct {
	ItemCode     string
	ItemName     string
	Station      string
	UnitPrice    decimal.Decimal
	OptionGroups []OrderItemOptionGroup
}

// PriceFor picks the catalog price for the order type.
func PriceFor(m MenuItem, typ OrderType) decimal.Decimal {
	if typ == OrderTypeDineIn {
		return m.DineInPrice
	}
	return m.TakeawayPrice
}

// TakeSnapshot copies price and selected options out of the catalog.
// Groups without a selection are omitted; group order follows the catalog.
func TakeSnapshot(m MenuItem, typ OrderType, selections []OptionSelection, newID func() uuid.UUID) (Snapshot, error) {
	snap := Snapshot{
		ItemCode:  m.Code,
		ItemName:  m.Name,
		Station:   m.Station,
		UnitPrice: PriceFor(m, typ),
	}

	type located struct {
		group int
		item  MenuOptionItem
	}
	index := make(map[uuid.UUID]located)
	for gi, g := range m.OptionGroups {
		for _, oi := range g.Items {
			index[oi.ID] = located{group: gi, item: oi}
		}
	}

	chosen := make(map[int][]OrderItemOptionValue)
	for _, sel := range selections {
		loc, ok := index[sel.OptionItemID]
		if !ok {
			return Snapshot{}, Validation("options", CodeInvalid,
				fmt.Sprintf("option %s is not offered for menu item %s", sel.OptionItemID, m.Name))
		}
		qty := sel.Quantity
		if qty == 0 {
			qty = 1
		}
		if qty < 0 {
			return Snapshot{}, Validation("options", CodeInvalid, "option quantity must be positive")
		}
		optID := loc.item.ID
		chosen[loc.group] = append(chosen[loc.group], OrderItemOptionValue{
			ID:           newID(),
			OptionItemID: &optID,
			Label:        loc.item.Label,
			ExtraPrice:   loc.item.ExtraPrice,
			Quantity:     qty,
			Note:         sel.Note,
		})
	}

	for gi, g := range m.OptionGroups {
		values := chosen[gi]
		if len(values) == 0 {
			if g.IsRequired {
				return Snapshot{}, Validation("options", CodeRequired,
					fmt.Sprintf("option group %q is required for %s", g.Name, m.Name))
			}
			continue
		}
		if g.Type == OptionGroupSingle && len(values) > 1 {
			return Snapshot{}, Validation("options", CodeInvalid,
				fmt.Sprintf("option group %q accepts a single choice", g.Name))
		}
		snap.OptionGroups = append(snap.OptionGroups, OrderItemOptionGroup{
			ID:         newID(),
			GroupName:  g.Name,
			GroupType:  g.Type,
			IsRequired: g.IsRequired,
			Values:     values,
		})
	}
	return snap, nil
}

// OptionsExtra is Σ extraPrice × quantity over the item's option snapshots.
func (it OrderItem) OptionsExtra() decimal.Decimal {
	sum := decimal.Zero
	for _, g := range it.OptionGroups {
		for _, v := range g.Values {
			sum = sum.Add(v.ExtraPrice.Mul(decimal.NewFromInt(int64(v.Quantity))))
		}
	}
	return sum
}

// LineTotal is quantity × (unit price + option extras).
func (it OrderItem) LineTotal() decimal.Decimal {
	return it.UnitPrice.Add(it.OptionsExtra()).Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// OrderTotal sums the line totals of billable items.
func OrderTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		if !it.Status.Billable() {
			continue
		}
		total = total.Add(it.LineTotal())
	}
	return total
}
