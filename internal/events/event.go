// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"colorgarb_portal_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Order Domain Events
// =============================================================================

// OrderStageChanged is published when an order's current stage moves, forward
// or (confirmed) backward.
type OrderStageChanged struct {
	BaseEvent
	OrderID        uuid.UUID `json:"orderId"`
	OrderNumber    string    `json:"orderNumber"`
	OrganizationID uuid.UUID `json:"organizationId"`
	OldStage       string    `json:"oldStage"`
	NewStage       string    `json:"newStage"`
	ActorID        uuid.UUID `json:"actorId"`
	ActorName      string    `json:"actorName"`
	Reason         string    `json:"reason,omitempty"`
}

func (e OrderStageChanged) EventName() string { return "orders.stage.changed" }

// ShipDateRevised is published when a stage transition also moved the
// projected ship date.
type ShipDateRevised struct {
	BaseEvent
	OrderID          uuid.UUID `json:"orderId"`
	OrderNumber      string    `json:"orderNumber"`
	OrganizationID   uuid.UUID `json:"organizationId"`
	PreviousShipDate time.Time `json:"previousShipDate"`
	NewShipDate      time.Time `json:"newShipDate"`
	Reason           string    `json:"reason"`
	ActorID          uuid.UUID `json:"actorId"`
}

func (e ShipDateRevised) EventName() string { return "orders.shipdate.revised" }

// =============================================================================
// Messaging Domain Events
// =============================================================================

// MessageSent is published when a message is posted to an order thread.
type MessageSent struct {
	BaseEvent
	MessageID      uuid.UUID `json:"messageId"`
	OrderID        uuid.UUID `json:"orderId"`
	OrderNumber    string    `json:"orderNumber"`
	OrganizationID uuid.UUID `json:"organizationId"`
	SenderID       uuid.UUID `json:"senderId"`
	SenderName     string    `json:"senderName"`
	RecipientRole  string    `json:"recipientRole,omitempty"`
	Excerpt        string    `json:"excerpt"`
}

func (e MessageSent) EventName() string { return "messages.sent" }

// =============================================================================
// Export Domain Events
// =============================================================================

// ExportJobFinished is published when an async communication-audit export
// reaches a terminal state (Completed or Failed).
type ExportJobFinished struct {
	BaseEvent
	JobID       uuid.UUID `json:"jobId"`
	RequestedBy uuid.UUID `json:"requestedBy"`
	Status      string    `json:"status"`
	RecordCount int       `json:"recordCount"`
	Error       string    `json:"error,omitempty"`
}

func (e ExportJobFinished) EventName() string { return "audit.export.finished" }

// =============================================================================
// Notification Domain Events
// =============================================================================

// NotificationOutboxDue is published by the worker when a notification outbox
// record should be dispatched.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }
