// README: Audit event emitted by state-changing operations.
package audit

import (
	"time"

	"dispatch/internal/types"
)

const (
	ActionStatusChanged    = "order.status_changed"
	ActionDriverReassigned = "order.driver_reassigned"
	ActionDriverAssigned   = "order.driver_assigned"
	ActionRefundRequested  = "order.refund_requested"
	ActionRefundApproved   = "order.refund_approved"
	ActionRefundRejected   = "order.refund_rejected"
)

type Event struct {
	ID         string
	ActorID    types.ID
	Action     string
	EntityType string
	EntityID   types.ID
	From       string
	To         string
	Meta       map[string]any
	CreatedAt  time.Time
}

// Sink records audit events. Record never blocks on persistence and never fails the caller.
type Sink interface {
	Record(e Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(Event) {}
