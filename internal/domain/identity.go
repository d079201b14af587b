package domain

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Role string

const (
	RoleManager Role = "MANAGER"
	RoleCashier Role = "CASHIER"
	RoleWaiter  Role = "WAITER"
	RoleKitchen Role = "KITCHEN"
)

// Identity is the acting staff member of a request.
type Identity struct {
	StaffID uuid.UUID
	Role    Role
}

type Operation string

const (
	OpCreateOrder      Operation = "order.create"
	OpSubmitOrder      Operation = "order.submit"
	OpAddItem          Operation = "order.item.add"
	OpUpdateItems      Operation = "order.item.update"
	OpCancelItem       Operation = "order.item.cancel"
	OpUpdateItemStatus Operation = "order.item.status"
	OpCancelOrder      Operation = "order.cancel"
	OpCompleteOrder    Operation = "order.complete"
	OpViewOrder        Operation = "order.view"
)

// Authorizer is the capability predicate consulted before every mutation.
type Authorizer interface {
	Can(role Role, op Operation) bool
}

// RolePolicy grants operations per role.
type RolePolicy map[Role][]Operation

func (p RolePolicy) Can(role Role, op Operation) bool {
	for _, o := range p[role] {
		if o == op {
			return true
		}
	}
	return false
}

func DefaultRolePolicy() RolePolicy {
	floor := []Operation{OpCreateOrder, OpSubmitOrder, OpAddItem, OpUpdateItems, OpCancelItem, OpCompleteOrder, OpViewOrder}
	return RolePolicy{
		RoleManager: {OpCreateOrder, OpSubmitOrder, OpAddItem, OpUpdateItems, OpCancelItem,
			OpUpdateItemStatus, OpCancelOrder, OpCompleteOrder, OpViewOrder},
		RoleCashier: append(append([]Operation{}, floor...), OpCancelOrder),
		RoleWaiter:  floor,
		RoleKitchen: {OpUpdateItemStatus, OpViewOrder},
	}
}

// Authorize turns a denied capability into a Forbidden error.
func Authorize(a Authorizer, id Identity, op Operation) error {
	if !a.Can(id.Role, op) {
		return Forbidden(fmt.Sprintf("role %s may not perform %s", id.Role, op))
	}
	return nil
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || id.StaffID == uuid.Nil {
		return Identity{}, false
	}
	return id, true
}
