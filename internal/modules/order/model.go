// README: Order aggregate, status definitions and the dispatch state machine table.
package order

import (
	"fmt"
	"strings"
	"time"

	"dispatch/internal/types"
)

type Status string

const (
	StatusPending        Status = "PENDING"
	StatusPaid           Status = "PAID"
	StatusDispatched     Status = "DISPATCHED"
	StatusReadyForPickup Status = "READY_FOR_PICKUP"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
	StatusRefunded       Status = "REFUNDED"
)

var allStatuses = []Status{
	StatusPending, StatusPaid, StatusDispatched, StatusReadyForPickup,
	StatusCompleted, StatusCancelled, StatusRefunded,
}

// ParseStatus rejects anything outside the closed set. Matching is case-insensitive.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	for _, known := range allStatuses {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", v)
}

// RefundStatus is an independent sub-state. The zero value means no refund was requested.
type RefundStatus string

const (
	RefundNone      RefundStatus = ""
	RefundRequested RefundStatus = "REQUESTED"
	RefundApproved  RefundStatus = "APPROVED"
	RefundRejected  RefundStatus = "REJECTED"
)

type Order struct {
	ID                 types.ID     `json:"id"`
	Number             string       `json:"number"`
	Status             Status       `json:"status"`
	Version            int          `json:"version"`
	DriverID           *types.ID    `json:"driver_id"`
	VendorID           types.ID     `json:"vendor_id"`
	CustomerName       string       `json:"customer_name"`
	Delivery           types.Point  `json:"delivery"`
	Total              types.Money  `json:"total"`
	RefundStatus       RefundStatus `json:"refund_status,omitempty"`
	RefundReason       *string      `json:"refund_reason,omitempty"`
	RefundRejectReason *string      `json:"refund_reject_reason,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	PaidAt             *time.Time   `json:"paid_at,omitempty"`
	AssignedAt         *time.Time   `json:"assigned_at,omitempty"`
	ReadyAt            *time.Time   `json:"ready_at,omitempty"`
	PickedUpAt         *time.Time   `json:"picked_up_at,omitempty"`
	DeliveredAt        *time.Time   `json:"delivered_at,omitempty"`
	CancelledAt        *time.Time   `json:"cancelled_at,omitempty"`
	RefundRequestedAt  *time.Time   `json:"refund_requested_at,omitempty"`
	RefundProcessedAt  *time.Time   `json:"refund_processed_at,omitempty"`

	// Populated by detail reads only.
	Items  []LineItem     `json:"items,omitempty"`
	Vendor *VendorSummary `json:"vendor,omitempty"`
	Driver *DriverSummary `json:"driver,omitempty"`
}

type LineItem struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Quantity  int         `json:"quantity"`
	UnitPrice types.Money `json:"unit_price"`
}

type VendorSummary struct {
	ID   types.ID `json:"id"`
	Name string   `json:"name"`
}

type DriverSummary struct {
	ID         types.ID `json:"id"`
	Name       string   `json:"name"`
	Phone      string   `json:"phone"`
	IsOnline   bool     `json:"is_online"`
	IsVerified bool     `json:"is_verified"`
}

// Event is one row of the order_state_events log.
type Event struct {
	ID         int64     `json:"id"`
	OrderID    types.ID  `json:"order_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorID    *types.ID `json:"actor_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReassignmentEvent is append-only.
type ReassignmentEvent struct {
	ID          int64     `json:"id"`
	OrderID     types.ID  `json:"order_id"`
	OldDriverID *types.ID `json:"old_driver_id"`
	NewDriverID types.ID  `json:"new_driver_id"`
	Reason      *string   `json:"reason"`
	ActorID     types.ID  `json:"actor_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// StuckCandidate is the minimal projection the stuck-order watchdog needs.
type StuckCandidate struct {
	ID        types.ID
	CreatedAt time.Time
}

// AllowedTransitions represents the order state flow (diagram) as code.
// REFUNDED is intentionally absent: it is only reachable through refund approval.
var AllowedTransitions = map[Status][]Status{
	StatusPending:        {StatusPaid, StatusCancelled},
	StatusPaid:           {StatusDispatched, StatusCancelled},
	StatusDispatched:     {StatusReadyForPickup, StatusCancelled},
	StatusReadyForPickup: {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Reassignable reports whether s is a status that carries a bound driver.
// PENDING and PAID orders get their first driver through Dispatch.
func Reassignable(s Status) bool {
	return s == StatusDispatched || s == StatusReadyForPickup
}

// IsTerminal reports whether no main-status transition leaves s.
func IsTerminal(s Status) bool {
	_, ok := AllowedTransitions[s]
	return !ok
}

// stamp sets the timestamp owned by entering status to. Set stamps are never
// overwritten and a new stamp never precedes an existing one.
func (o *Order) stamp(to Status, now time.Time) {
	now = o.notBefore(now)
	switch to {
	case StatusPaid:
		setOnce(&o.PaidAt, now)
	case StatusDispatched:
		setOnce(&o.AssignedAt, now)
	case StatusReadyForPickup:
		setOnce(&o.ReadyAt, now)
	case StatusCompleted:
		setOnce(&o.PickedUpAt, now)
		setOnce(&o.DeliveredAt, now)
	case StatusCancelled:
		setOnce(&o.CancelledAt, now)
	}
}

func (o *Order) notBefore(now time.Time) time.Time {
	latest := o.CreatedAt
	for _, ts := range []*time.Time{
		o.PaidAt, o.AssignedAt, o.ReadyAt, o.PickedUpAt, o.DeliveredAt,
		o.CancelledAt, o.RefundRequestedAt, o.RefundProcessedAt,
	} {
		if ts != nil && ts.After(latest) {
			latest = *ts
		}
	}
	if now.Before(latest) {
		return latest
	}
	return now
}

func setOnce(field **time.Time, now time.Time) {
	if *field == nil {
		t := now
		*field = &t
	}
}
