package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"restaurant-orders/internal/domain"
)

const (
	uniqueViolation = "23505"

	constraintTableServing = "orders_table_serving_uq"
	constraintOrderCode    = "orders_code_key"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx OrderTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgOrderTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return loadOrder(ctx, r.pool, id, false)
}

func (r *OrderRepository) ListOrders(ctx context.Context, f OrderFilter) ([]*domain.Order, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		conds = append(conds, fmt.Sprintf("order_type = $%d", len(args)))
	}
	if f.TableID != nil {
		args = append(args, *f.TableID)
		conds = append(conds, fmt.Sprintf("table_id = $%d", len(args)))
	}
	q := `SELECT id FROM orders`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.PageSize(), f.Offset)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	out := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		o, err := loadOrder(ctx, r.pool, id, false)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *OrderRepository) ListAudit(ctx context.Context, orderID uuid.UUID) ([]domain.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, actor_id, action, old_value, new_value, reason, created_at
		FROM order_audit_logs WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e          domain.AuditEntry
			action     string
			oldV, newV []byte
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &e.ActorID, &action, &oldV, &newV, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = domain.AuditAction(action)
		e.OldValue = json.RawMessage(oldV)
		e.NewValue = json.RawMessage(newV)
		out = append(out, e)
	}
	return out, rows.Err()
}

type pgOrderTx struct {
	q querier
}

func (t *pgOrderTx) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return loadOrder(ctx, t.q, id, true)
}

func (t *pgOrderTx) ServingOrderOnTable(ctx context.Context, tableID uuid.UUID) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := t.q.QueryRow(ctx, `
		SELECT id FROM orders WHERE table_id = $1 AND status = $2 LIMIT 1
	`, tableID, string(domain.OrderStatusServing)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to check table occupancy: %w", err)
	}
	return id, true, nil
}

func (t *pgOrderTx) LatestOrderCode(ctx context.Context, prefix string) (string, error) {
	var code string
	err := t.q.QueryRow(ctx, `
		SELECT code FROM orders WHERE code LIKE $1 || '%' ORDER BY code DESC LIMIT 1
	`, prefix).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read latest order code: %w", err)
	}
	return code, nil
}

func (t *pgOrderTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO orders
		    (id, code, order_type, status, table_id, note, total_amount, is_priority,
		     created_by, created_at, updated_at, completed_at, cancelled_at, version)
		VALUES
		    ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		o.ID, o.Code, string(o.Type), string(o.Status), o.TableID, o.Note, o.TotalAmount, o.IsPriority,
		o.CreatedBy, o.CreatedAt, o.UpdatedAt, o.CompletedAt, o.CancelledAt, o.Version,
	)
	if err != nil {
		return translate(fmt.Errorf("failed to insert order: %w", err))
	}
	for i := range o.Items {
		if err := upsertItem(ctx, t.q, &o.Items[i], i); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgOrderTx) UpdateOrder(ctx context.Context, o *domain.Order) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE orders SET
		    status = $3, table_id = $4, note = $5, total_amount = $6, is_priority = $7,
		    updated_at = $8, completed_at = $9, cancelled_at = $10, version = version + 1
		WHERE id = $1 AND version = $2
	`,
		o.ID, o.Version, string(o.Status), o.TableID, o.Note, o.TotalAmount, o.IsPriority,
		o.UpdatedAt, o.CompletedAt, o.CancelledAt,
	)
	if err != nil {
		return translate(fmt.Errorf("failed to update order: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return domain.Conflict(domain.CodeConcurrentUpdate,
			fmt.Sprintf("order %s was modified concurrently, reload and retry", o.Code), nil)
	}
	for i := range o.Items {
		if err := upsertItem(ctx, t.q, &o.Items[i], i); err != nil {
			return err
		}
	}
	o.Version++
	return nil
}

func (t *pgOrderTx) AppendAudit(ctx context.Context, e domain.AuditEntry) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO order_audit_logs (id, order_id, actor_id, action, old_value, new_value, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.OrderID, e.ActorID, string(e.Action), rawJSON(e.OldValue), rawJSON(e.NewValue), e.Reason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// upsertItem writes one item and rebuilds its option snapshot rows.
func upsertItem(ctx context.Context, q querier, it *domain.OrderItem, position int) error {
	_, err := q.Exec(ctx, `
		INSERT INTO order_items
		    (id, order_id, menu_item_id, item_code, item_name, station, unit_price,
		     quantity, status, note, cancelled_at, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
		    menu_item_id = EXCLUDED.menu_item_id,
		    item_code    = EXCLUDED.item_code,
		    item_name    = EXCLUDED.item_name,
		    station      = EXCLUDED.station,
		    unit_price   = EXCLUDED.unit_price,
		    quantity     = EXCLUDED.quantity,
		    status       = EXCLUDED.status,
		    note         = EXCLUDED.note,
		    cancelled_at = EXCLUDED.cancelled_at
	`,
		it.ID, it.OrderID, it.MenuItemID, it.ItemCode, it.ItemName, it.Station, it.UnitPrice,
		it.Quantity, string(it.Status), it.Note, it.CancelledAt, position, it.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write order item %s: %w", it.ItemName, err)
	}

	if _, err := q.Exec(ctx, `DELETE FROM order_item_option_groups WHERE order_item_id = $1`, it.ID); err != nil {
		return fmt.Errorf("failed to reset option snapshots of %s: %w", it.ItemName, err)
	}
	for gi, g := range it.OptionGroups {
		if _, err := q.Exec(ctx, `
			INSERT INTO order_item_option_groups (id, order_item_id, group_name, group_type, is_required, position)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, g.ID, it.ID, g.GroupName, string(g.GroupType), g.IsRequired, gi); err != nil {
			return fmt.Errorf("failed to insert option group %s: %w", g.GroupName, err)
		}
		for vi, v := range g.Values {
			if _, err := q.Exec(ctx, `
				INSERT INTO order_item_option_values
				    (id, group_id, option_item_id, label, extra_price, quantity, note, position)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, v.ID, g.ID, v.OptionItemID, v.Label, v.ExtraPrice, v.Quantity, v.Note, vi); err != nil {
				return fmt.Errorf("failed to insert option value %s: %w", v.Label, err)
			}
		}
	}
	return nil
}

func loadOrder(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*domain.Order, error) {
	sql := `
		SELECT id, code, order_type, status, table_id, note, total_amount, is_priority,
		       created_by, created_at, updated_at, completed_at, cancelled_at, version
		FROM orders WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	var (
		o         domain.Order
		typ, st   string
		total     decimal.Decimal
		tableID   *uuid.UUID
		completed *time.Time
		cancelled *time.Time
	)
	err := q.QueryRow(ctx, sql, id).Scan(
		&o.ID, &o.Code, &typ, &st, &tableID, &o.Note, &total, &o.IsPriority,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt, &completed, &cancelled, &o.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(fmt.Sprintf("order %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}
	o.Type = domain.OrderType(typ)
	o.Status = domain.OrderStatus(st)
	o.TotalAmount = total
	o.TableID = tableID
	o.CompletedAt = completed
	o.CancelledAt = cancelled

	items, err := loadItems(ctx, q, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func loadItems(ctx context.Context, q querier, orderID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, menu_item_id, item_code, item_name, station, unit_price,
		       quantity, status, note, cancelled_at, created_at
		FROM order_items WHERE order_id = $1 ORDER BY position
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	var items []domain.OrderItem
	byID := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			it domain.OrderItem
			st string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.ItemCode, &it.ItemName, &it.Station,
			&it.UnitPrice, &it.Quantity, &st, &it.Note, &it.CancelledAt, &it.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		it.Status = domain.ItemStatus(st)
		byID[it.ID] = len(items)
		items = append(items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	rows, err = q.Query(ctx, `
		SELECT g.id, g.order_item_id, g.group_name, g.group_type, g.is_required
		FROM order_item_option_groups g
		JOIN order_items i ON i.id = g.order_item_id
		WHERE i.order_id = $1
		ORDER BY g.order_item_id, g.position
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load option groups: %w", err)
	}
	type groupRef struct{ item, group int }
	groups := make(map[uuid.UUID]groupRef)
	for rows.Next() {
		var (
			g      domain.OrderItemOptionGroup
			itemID uuid.UUID
			gt     string
		)
		if err := rows.Scan(&g.ID, &itemID, &g.GroupName, &gt, &g.IsRequired); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan option group: %w", err)
		}
		g.GroupType = domain.OptionGroupType(gt)
		idx := byID[itemID]
		groups[g.ID] = groupRef{item: idx, group: len(items[idx].OptionGroups)}
		items[idx].OptionGroups = append(items[idx].OptionGroups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, `
		SELECT v.id, v.group_id, v.option_item_id, v.label, v.extra_price, v.quantity, v.note
		FROM order_item_option_values v
		JOIN order_item_option_groups g ON g.id = v.group_id
		JOIN order_items i ON i.id = g.order_item_id
		WHERE i.order_id = $1
		ORDER BY v.group_id, v.position
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load option values: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			v       domain.OrderItemOptionValue
			groupID uuid.UUID
		)
		if err := rows.Scan(&v.ID, &groupID, &v.OptionItemID, &v.Label, &v.ExtraPrice, &v.Quantity, &v.Note); err != nil {
			return nil, fmt.Errorf("failed to scan option value: %w", err)
		}
		ref, ok := groups[groupID]
		if !ok {
			continue
		}
		g := &items[ref.item].OptionGroups[ref.group]
		g.Values = append(g.Values, v)
	}
	return items, rows.Err()
}

// translate maps storage races onto the engine's error taxonomy.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintTableServing:
		return &domain.Error{Kind: domain.KindBadRequest, Code: domain.CodeTableAlreadyOccupied,
			Message: "table already has a serving order", Err: err}
	case constraintOrderCode:
		return domain.Conflict(domain.CodeConcurrentUpdate, "order code already taken, retry", err)
	}
	return domain.Conflict(domain.CodeConcurrentUpdate, "unique constraint violated", err)
}

func rawJSON(v json.RawMessage) any {
	if len(v) == 0 {
		return nil
	}
	return []byte(v)
}
