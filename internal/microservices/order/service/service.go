package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/domain"
	"restaurant-orders/internal/microservices/order/repository"
)

type Service struct {
	OrderService OrderServiceInterface
}

func New(repo *repository.Repository, pub KitchenPublisher, log *logger.Logger, opts ...Option) *Service {
	return &Service{
		OrderService: NewOrderService(repo.OrderRepo, repo.CatalogRepo, pub, log, opts...),
	}
}

// Clock supplies "now" for every timestamp the engine writes.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IdentityResolver resolves the acting staff member of a call.
type IdentityResolver interface {
	Resolve(ctx context.Context) (domain.Identity, error)
}

// ContextIdentity reads the identity placed on the context by the transport.
type ContextIdentity struct{}

func (ContextIdentity) Resolve(ctx context.Context) (domain.Identity, error) {
	id, ok := domain.IdentityFromContext(ctx)
	if !ok {
		return domain.Identity{}, domain.Unauthorized("no authenticated staff member on the request")
	}
	return id, nil
}

// KitchenPublisher receives post-commit events. Failures never undo a commit.
type KitchenPublisher interface {
	PublishTicket(ctx context.Context, t domain.KitchenTicket) error
	PublishStatus(ctx context.Context, n domain.StatusNotification) error
}

type NopPublisher struct{}

func (NopPublisher) PublishTicket(context.Context, domain.KitchenTicket) error      { return nil }
func (NopPublisher) PublishStatus(context.Context, domain.StatusNotification) error { return nil }

type Option func(*OrderService)

func WithClock(c Clock) Option { return func(s *OrderService) { s.clock = c } }

func WithIdentityResolver(r IdentityResolver) Option {
	return func(s *OrderService) { s.identity = r }
}

func WithAuthorizer(a domain.Authorizer) Option { return func(s *OrderService) { s.authz = a } }

func WithItemPolicy(p domain.ItemTransitionPolicy) Option {
	return func(s *OrderService) { s.itemPolicy = p }
}

func WithCompletionPolicy(p domain.CompletionPolicy) Option {
	return func(s *OrderService) { s.completion = p }
}

func WithIDGenerator(f func() uuid.UUID) Option { return func(s *OrderService) { s.newID = f } }

func WithPublishTimeout(d time.Duration) Option {
	return func(s *OrderService) { s.publishTimeout = d }
}
