package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"restaurant-orders/internal/domain"
)

// OrderRepositoryInterface is the persistence collaborator of the workflow engine.
type OrderRepositoryInterface interface {
	// InTx runs fn as one atomic unit; any error rolls everything back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx OrderTx) error) error

	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]*domain.Order, error)
	ListAudit(ctx context.Context, orderID uuid.UUID) ([]domain.AuditEntry, error)
}

// OrderTx is the view of the store inside a transaction.
type OrderTx interface {
	// GetOrderForUpdate loads the order with its items and locks it until commit.
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// ServingOrderOnTable returns the id of the Serving order seated at table, if any.
	ServingOrderOnTable(ctx context.Context, tableID uuid.UUID) (uuid.UUID, bool, error)
	// LatestOrderCode returns the highest code starting with prefix, or "".
	LatestOrderCode(ctx context.Context, prefix string) (string, error)
	InsertOrder(ctx context.Context, o *domain.Order) error
	// UpdateOrder writes the order and its items; it fails with ConcurrentUpdate
	// when o.Version no longer matches the stored row, and bumps o.Version on success.
	UpdateOrder(ctx context.Context, o *domain.Order) error
	AppendAudit(ctx context.Context, e domain.AuditEntry) error
}

// CatalogRepositoryInterface is the read-only menu lookup used at snapshot time.
type CatalogRepositoryInterface interface {
	GetMenuItem(ctx context.Context, id uuid.UUID) (*domain.MenuItem, error)
}

type OrderFilter struct {
	Status  domain.OrderStatus
	Type    domain.OrderType
	TableID *uuid.UUID
	Limit   int
	Offset  int
}

// PageSize is the limit actually applied: 50 when unset or out of range, at most 200.
func (f OrderFilter) PageSize() int {
	if f.Limit <= 0 || f.Limit > 200 {
		return 50
	}
	return f.Limit
}

type Repository struct {
	OrderRepo   OrderRepositoryInterface
	CatalogRepo CatalogRepositoryInterface
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{
		OrderRepo:   NewOrderRepository(pool),
		CatalogRepo: NewCatalogRepository(pool),
	}
}

func NewMemory() *Repository {
	return &Repository{
		OrderRepo:   NewMemoryOrderRepository(),
		CatalogRepo: NewMemoryCatalog(),
	}
}
