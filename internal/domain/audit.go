package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditOrderCreated      AuditAction = "ORDER_CREATED"
	AuditOrderSubmitted    AuditAction = "ORDER_SUBMITTED"
	AuditItemAdded         AuditAction = "ITEM_ADDED"
	AuditItemsUpdated      AuditAction = "ITEMS_UPDATED"
	AuditItemCancelled     AuditAction = "ITEM_CANCELLED"
	AuditItemStatusChanged AuditAction = "ITEM_STATUS_CHANGED"
	AuditOrderCancelled    AuditAction = "ORDER_CANCELLED"
	AuditOrderCompleted    AuditAction = "ORDER_COMPLETED"
)

// AuditEntry is append-only; nothing updates or deletes it.
type AuditEntry struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ActorID   uuid.UUID
	Action    AuditAction
	OldValue  json.RawMessage
	NewValue  json.RawMessage
	Reason    string
	CreatedAt time.Time
}
