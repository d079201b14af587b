package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"restaurant-orders/internal/domain"
)

// MemoryOrderRepository keeps orders in process. Transactions run one at a
// time and stage their writes; uniqueness of serving tables and order codes
// is checked again when the stage is applied.
type MemoryOrderRepository struct {
	txMu sync.Mutex

	mu     sync.RWMutex
	orders map[uuid.UUID]*domain.Order
	audit  map[uuid.UUID][]domain.AuditEntry
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders: make(map[uuid.UUID]*domain.Order),
		audit:  make(map[uuid.UUID][]domain.AuditEntry),
	}
}

func (r *MemoryOrderRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx OrderTx) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memOrderTx{repo: r, staged: make(map[uuid.UUID]*domain.Order)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return r.commit(tx)
}

func (r *MemoryOrderRepository) commit(tx *memOrderTx) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[uuid.UUID]*domain.Order, len(r.orders)+len(tx.staged))
	for id, o := range r.orders {
		next[id] = o
	}
	for id, o := range tx.staged {
		next[id] = o
	}

	tables := make(map[uuid.UUID]uuid.UUID)
	codes := make(map[string]uuid.UUID)
	for id, o := range next {
		if other, ok := codes[o.Code]; ok && other != id {
			return domain.Conflict(domain.CodeConcurrentUpdate, "order code already taken, retry", nil)
		}
		codes[o.Code] = id
		if o.Status != domain.OrderStatusServing || o.TableID == nil {
			continue
		}
		if other, ok := tables[*o.TableID]; ok && other != id {
			return &domain.Error{Kind: domain.KindBadRequest, Code: domain.CodeTableAlreadyOccupied,
				Message: "table already has a serving order"}
		}
		tables[*o.TableID] = id
	}

	r.orders = next
	for _, e := range tx.audit {
		r.audit[e.OrderID] = append(r.audit[e.OrderID], e)
	}
	return nil
}

func (r *MemoryOrderRepository) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.NotFound(fmt.Sprintf("order %s not found", id))
	}
	return o.Clone(), nil
}

func (r *MemoryOrderRepository) ListOrders(_ context.Context, f OrderFilter) ([]*domain.Order, error) {
	r.mu.RLock()
	var out []*domain.Order
	for _, o := range r.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Type != "" && o.Type != f.Type {
			continue
		}
		if f.TableID != nil && (o.TableID == nil || *o.TableID != *f.TableID) {
			continue
		}
		out = append(out, o.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code > out[j].Code
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Offset >= len(out) {
		return []*domain.Order{}, nil
	}
	out = out[f.Offset:]
	if n := f.PageSize(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (r *MemoryOrderRepository) ListAudit(_ context.Context, orderID uuid.UUID) ([]domain.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.audit[orderID]
	out := make([]domain.AuditEntry, len(entries))
	copy(out, entries)
	return out, nil
}

type memOrderTx struct {
	repo   *MemoryOrderRepository
	staged map[uuid.UUID]*domain.Order
	audit  []domain.AuditEntry
}

// current returns the order as this transaction sees it, without copying.
func (t *memOrderTx) current(id uuid.UUID) (*domain.Order, bool) {
	if o, ok := t.staged[id]; ok {
		return o, true
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	o, ok := t.repo.orders[id]
	return o, ok
}

func (t *memOrderTx) visible() []*domain.Order {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	out := make([]*domain.Order, 0, len(t.repo.orders)+len(t.staged))
	for id, o := range t.repo.orders {
		if _, ok := t.staged[id]; !ok {
			out = append(out, o)
		}
	}
	for _, o := range t.staged {
		out = append(out, o)
	}
	return out
}

func (t *memOrderTx) GetOrderForUpdate(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := t.current(id)
	if !ok {
		return nil, domain.NotFound(fmt.Sprintf("order %s not found", id))
	}
	return o.Clone(), nil
}

func (t *memOrderTx) ServingOrderOnTable(_ context.Context, tableID uuid.UUID) (uuid.UUID, bool, error) {
	for _, o := range t.visible() {
		if o.Status == domain.OrderStatusServing && o.TableID != nil && *o.TableID == tableID {
			return o.ID, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (t *memOrderTx) LatestOrderCode(_ context.Context, prefix string) (string, error) {
	latest := ""
	for _, o := range t.visible() {
		if strings.HasPrefix(o.Code, prefix) && o.Code > latest {
			latest = o.Code
		}
	}
	return latest, nil
}

func (t *memOrderTx) InsertOrder(_ context.Context, o *domain.Order) error {
	if _, ok := t.current(o.ID); ok {
		return domain.Conflict(domain.CodeConcurrentUpdate, fmt.Sprintf("order %s already exists", o.ID), nil)
	}
	t.staged[o.ID] = o.Clone()
	return nil
}

func (t *memOrderTx) UpdateOrder(_ context.Context, o *domain.Order) error {
	cur, ok := t.current(o.ID)
	if !ok {
		return domain.NotFound(fmt.Sprintf("order %s not found", o.ID))
	}
	if cur.Version != o.Version {
		return domain.Conflict(domain.CodeConcurrentUpdate,
			fmt.Sprintf("order %s was modified concurrently, reload and retry", o.Code), nil)
	}
	o.Version++
	t.staged[o.ID] = o.Clone()
	return nil
}

func (t *memOrderTx) AppendAudit(_ context.Context, e domain.AuditEntry) error {
	t.audit = append(t.audit, e)
	return nil
}

// MemoryCatalog is an in-process menu used by tests and the memory driver.
type MemoryCatalog struct {
	mu    sync.RWMutex
	items map[uuid.UUID]domain.MenuItem
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{items: make(map[uuid.UUID]domain.MenuItem)}
}

// Put adds or replaces a menu item.
func (c *MemoryCatalog) Put(m domain.MenuItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[m.ID] = m
}

func (c *MemoryCatalog) GetMenuItem(_ context.Context, id uuid.UUID) (*domain.MenuItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.items[id]
	if !ok {
		return nil, domain.NotFound(fmt.Sprintf("menu item %s not found", id))
	}
	groups := make([]domain.MenuOptionGroup, len(m.OptionGroups))
	for i, g := range m.OptionGroups {
		g.Items = append([]domain.MenuOptionItem(nil), g.Items...)
		groups[i] = g
	}
	m.OptionGroups = groups
	return &m, nil
}
