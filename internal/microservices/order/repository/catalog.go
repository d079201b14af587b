package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"restaurant-orders/internal/domain"
)

type CatalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) GetMenuItem(ctx context.Context, id uuid.UUID) (*domain.MenuItem, error) {
	var m domain.MenuItem
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, name, station, dine_in_price, takeaway_price, out_of_stock
		FROM menu_items WHERE id = $1
	`, id).Scan(&m.ID, &m.Code, &m.Name, &m.Station, &m.DineInPrice, &m.TakeawayPrice, &m.OutOfStock)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(fmt.Sprintf("menu item %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load menu item %s: %w", id, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT g.id, g.name, g.group_type, g.is_required, o.id, o.label, o.extra_price
		FROM menu_option_groups g
		LEFT JOIN menu_option_items o ON o.group_id = g.id
		WHERE g.menu_item_id = $1
		ORDER BY g.position, g.id, o.position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load options of %s: %w", m.Name, err)
	}
	defer rows.Close()

	groupIdx := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			g     domain.MenuOptionGroup
			gt    string
			optID *uuid.UUID
			label *string
			extra decimal.NullDecimal
		)
		if err := rows.Scan(&g.ID, &g.Name, &gt, &g.IsRequired, &optID, &label, &extra); err != nil {
			return nil, fmt.Errorf("failed to scan option of %s: %w", m.Name, err)
		}
		idx, ok := groupIdx[g.ID]
		if !ok {
			g.Type = domain.OptionGroupType(gt)
			idx = len(m.OptionGroups)
			groupIdx[g.ID] = idx
			m.OptionGroups = append(m.OptionGroups, g)
		}
		if optID == nil {
			continue
		}
		m.OptionGroups[idx].Items = append(m.OptionGroups[idx].Items, domain.MenuOptionItem{
			ID:         *optID,
			Label:      *label,
			ExtraPrice: extra.Decimal,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &m, nil
}
