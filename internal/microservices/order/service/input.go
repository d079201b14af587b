package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"restaurant-orders/internal/domain"
	dto "restaurant-orders/internal/microservices/order/domain/dto"
)

type itemLine struct {
	itemID     *uuid.UUID
	menuItemID uuid.UUID
	quantity   int
	note       string
	options    []domain.OptionSelection
}

func requireID(field, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, domain.Validation(field, domain.CodeRequired, "is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, domain.Validation(field, domain.CodeInvalid, fmt.Sprintf("%q is not a valid id", raw))
	}
	return id, nil
}

func optionalID(field, raw string) (*uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := requireID(field, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func requireText(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", domain.Validation(field, domain.CodeRequired, "is required")
	}
	return s, nil
}

func parseOrderType(raw string) (domain.OrderType, error) {
	if strings.TrimSpace(raw) == "" {
		return "", domain.Validation("order_type", domain.CodeRequired, "is required")
	}
	t, ok := domain.ParseOrderType(raw)
	if !ok {
		return "", domain.Validation("order_type", domain.CodeInvalid, fmt.Sprintf("unknown order type %q", raw))
	}
	return t, nil
}

func parseLine(field string, in dto.ItemLineInput, allowItemID bool) (itemLine, error) {
	var (
		l   itemLine
		err error
	)
	if allowItemID {
		if l.itemID, err = optionalID(field+".item_id", in.ItemID); err != nil {
			return itemLine{}, err
		}
	}
	if l.menuItemID, err = requireID(field+".menu_item_id", in.MenuItemID); err != nil {
		return itemLine{}, err
	}
	if in.Quantity <= 0 {
		return itemLine{}, domain.Validation(field+".quantity", domain.CodeInvalid, "must be greater than zero")
	}
	l.quantity = in.Quantity
	l.note = strings.TrimSpace(in.Note)
	for i, o := range in.Options {
		of := fmt.Sprintf("%s.options[%d]", field, i)
		id, err := requireID(of+".option_item_id", o.OptionItemID)
		if err != nil {
			return itemLine{}, err
		}
		if o.Quantity < 0 {
			return itemLine{}, domain.Validation(of+".quantity", domain.CodeInvalid, "must not be negative")
		}
		l.options = append(l.options, domain.OptionSelection{OptionItemID: id, Quantity: o.Quantity, Note: strings.TrimSpace(o.Note)})
	}
	return l, nil
}

func parseLines(in []dto.ItemLineInput, allowItemID bool) ([]itemLine, error) {
	if len(in) == 0 {
		return nil, domain.Validation("items", domain.CodeRequired, "at least one item is required")
	}
	lines := make([]itemLine, 0, len(in))
	for i, raw := range in {
		l, err := parseLine(fmt.Sprintf("items[%d]", i), raw, allowItemID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, nil
}

// mergeLines sums quantities of lines that share menu item, note and options.
// The first occurrence keeps its position.
func mergeLines(lines []itemLine) []itemLine {
	out := make([]itemLine, 0, len(lines))
	seen := make(map[string]int, len(lines))
	for _, l := range lines {
		k := l.mergeKey()
		if i, ok := seen[k]; ok {
			out[i].quantity += l.quantity
			continue
		}
		seen[k] = len(out)
		out = append(out, l)
	}
	return out
}

func (l itemLine) mergeKey() string {
	opts := make([]string, 0, len(l.options))
	for _, o := range l.options {
		q := o.Quantity
		if q == 0 {
			q = 1
		}
		opts = append(opts, fmt.Sprintf("%s:%d:%s", o.OptionItemID, q, o.Note))
	}
	sort.Strings(opts)
	return l.menuItemID.String() + "|" + l.note + "|" + strings.Join(opts, ",")
}
