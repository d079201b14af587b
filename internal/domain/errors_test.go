package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", BadRequest(CodeTableAlreadyOccupied, "table busy"))

	assert.True(t, errors.Is(err, ErrTableAlreadyOccupied))
	assert.True(t, errors.Is(err, &Error{Kind: KindBadRequest}), "kind-only target matches any code")
	assert.False(t, errors.Is(err, ErrSelectTable))
	assert.False(t, errors.Is(err, ErrConflict))

	assert.Equal(t, KindBadRequest, KindOf(err))
	assert.Equal(t, CodeTableAlreadyOccupied, CodeOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Empty(t, CodeOf(errors.New("boom")))
}

func TestErrorMessage(t *testing.T) {
	v := Validation("quantity", CodeInvalid, "must be positive")
	assert.Equal(t, "quantity: must be positive", v.Error())

	cause := errors.New("deadlock")
	c := Conflict(CodeStorage, "save order", cause)
	assert.Equal(t, "save order: deadlock", c.Error())
	assert.ErrorIs(t, c, cause)

	e, ok := AsError(fmt.Errorf("x: %w", c))
	require.True(t, ok)
	assert.Equal(t, CodeStorage, e.Code)
}

func TestParseEnums(t *testing.T) {
	for _, in := range []string{"DINE_IN", "dine_in", "dine-in", "DineIn", " DINE_IN "} {
		got, ok := ParseOrderType(in)
		assert.True(t, ok, in)
		assert.Equal(t, OrderTypeDineIn, got, in)
	}
	_, ok := ParseOrderType("delivery")
	assert.False(t, ok)

	st, ok := ParseItemStatus("cooking")
	assert.True(t, ok)
	assert.Equal(t, ItemStatusCooking, st)

	ost, ok := ParseOrderStatus("Cancelled")
	assert.True(t, ok)
	assert.Equal(t, OrderStatusCancelled, ost)

	assert.True(t, CanTransitionOrder(OrderStatusServing, OrderStatusCompleted))
	assert.False(t, CanTransitionOrder(OrderStatusCompleted, OrderStatusCancelled))
	assert.False(t, CanTransitionOrder(OrderStatusCancelled, OrderStatusServing))
}

func TestRolePolicy(t *testing.T) {
	p := DefaultRolePolicy()

	assert.True(t, p.Can(RoleManager, OpCancelOrder))
	assert.True(t, p.Can(RoleCashier, OpCancelOrder))
	assert.False(t, p.Can(RoleWaiter, OpCancelOrder))
	assert.True(t, p.Can(RoleWaiter, OpCompleteOrder))
	assert.True(t, p.Can(RoleKitchen, OpUpdateItemStatus))
	assert.False(t, p.Can(RoleKitchen, OpCreateOrder))
	assert.False(t, p.Can(RoleWaiter, OpUpdateItemStatus))
	assert.False(t, p.Can(Role("GUEST"), OpViewOrder))

	err := Authorize(p, Identity{StaffID: uuid.New(), Role: RoleWaiter}, OpCancelOrder)
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.NoError(t, Authorize(p, Identity{StaffID: uuid.New(), Role: RoleManager}, OpCancelOrder))
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	_, ok = IdentityFromContext(WithIdentity(context.Background(), Identity{Role: RoleManager}))
	assert.False(t, ok, "nil staff id is not an identity")

	id := Identity{StaffID: uuid.New(), Role: RoleCashier}
	got, ok := IdentityFromContext(WithIdentity(context.Background(), id))
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestTicketFor(t *testing.T) {
	o := dineIn(t)
	o.IsPriority = true
	it := addItem(t, o, "10", 2)
	it.OptionGroups = []OrderItemOptionGroup{{GroupName: "Size", Values: []OrderItemOptionValue{{Label: "Large"}}}}

	placedBy := uuid.New()
	tk := TicketFor(o, []OrderItem{*it}, placedBy, t0)
	assert.Equal(t, PriorityRush, tk.Priority)
	assert.Equal(t, o.Code, tk.OrderCode)
	assert.Equal(t, placedBy, tk.PlacedBy)
	require.Len(t, tk.Items, 1)
	assert.Equal(t, 2, tk.Items[0].Quantity)
	assert.Equal(t, []string{"Size: Large"}, tk.Items[0].Options)

	*o.TableID = uuid.New()
	assert.NotEqual(t, *o.TableID, *tk.TableID)
}
