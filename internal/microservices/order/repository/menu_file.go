package repository

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"restaurant-orders/internal/domain"
)

type menuFile struct {
	Items []struct {
		ID            string `yaml:"id"`
		Code          string `yaml:"code"`
		Name          string `yaml:"name"`
		Station       string `yaml:"station"`
		DineInPrice   string `yaml:"dine_in_price"`
		TakeawayPrice string `yaml:"takeaway_price"`
		OutOfStock    bool   `yaml:"out_of_stock"`
		OptionGroups  []struct {
			ID       string `yaml:"id"`
			Name     string `yaml:"name"`
			Type     string `yaml:"type"`
			Required bool   `yaml:"required"`
			Options  []struct {
				ID         string `yaml:"id"`
				Label      string `yaml:"label"`
				ExtraPrice string `yaml:"extra_price"`
			} `yaml:"options"`
		} `yaml:"option_groups"`
	} `yaml:"items"`
}

// LoadMenuFile reads a YAML menu into the catalog.
func (c *MemoryCatalog) LoadMenuFile(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	items, err := ParseMenu(b)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, m := range items {
		c.Put(m)
	}
	return len(items), nil
}

// ParseMenu decodes a YAML menu document.
func ParseMenu(b []byte) ([]domain.MenuItem, error) {
	var f menuFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	out := make([]domain.MenuItem, 0, len(f.Items))
	for i, it := range f.Items {
		id, err := uuid.Parse(it.ID)
		if err != nil {
			return nil, fmt.Errorf("items[%d].id: %w", i, err)
		}
		dine, err := money(it.DineInPrice)
		if err != nil {
			return nil, fmt.Errorf("items[%d].dine_in_price: %w", i, err)
		}
		take, err := money(it.TakeawayPrice)
		if err != nil {
			return nil, fmt.Errorf("items[%d].takeaway_price: %w", i, err)
		}
		m := domain.MenuItem{
			ID:            id,
			Code:          it.Code,
			Name:          it.Name,
			Station:       it.Station,
			DineInPrice:   dine,
			TakeawayPrice: take,
			OutOfStock:    it.OutOfStock,
		}
		for gi, g := range it.OptionGroups {
			gid, err := uuid.Parse(g.ID)
			if err != nil {
				return nil, fmt.Errorf("items[%d].option_groups[%d].id: %w", i, gi, err)
			}
			typ := domain.OptionGroupType(g.Type)
			if typ == "" {
				typ = domain.OptionGroupSingle
			}
			group := domain.MenuOptionGroup{ID: gid, Name: g.Name, Type: typ, IsRequired: g.Required}
			for oi, o := range g.Options {
				oid, err := uuid.Parse(o.ID)
				if err != nil {
					return nil, fmt.Errorf("items[%d].option_groups[%d].options[%d].id: %w", i, gi, oi, err)
				}
				extra, err := money(o.ExtraPrice)
				if err != nil {
					return nil, fmt.Errorf("items[%d].option_groups[%d].options[%d].extra_price: %w", i, gi, oi, err)
				}
				group.Items = append(group.Items, domain.MenuOptionItem{ID: oid, Label: o.Label, ExtraPrice: extra})
			}
			m.OptionGroups = append(m.OptionGroups, group)
		}
		out = append(out, m)
	}
	return out, nil
}

func money(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
