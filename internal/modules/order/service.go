// README: Order service implements the dispatch state machine, refund sub-machine and driver binding.
package order

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dispatch/internal/clock"
	"dispatch/internal/domainerr"
	"dispatch/internal/metrics"
	"dispatch/internal/modules/audit"
	"dispatch/internal/modules/notification"
	"dispatch/internal/pagination"
	"dispatch/internal/types"
)

// Notifier is the push capability; it only reports the outcome.
type Notifier interface {
	Send(ctx context.Context, msg notification.Message) notification.Outcome
}

type Service struct {
	store    Repository
	audit    audit.Sink
	notifier Notifier
	clock    clock.Clock
	log      *slog.Logger
}

func NewService(store Repository, sink audit.Sink, notifier Notifier, clk clock.Clock, log *slog.Logger) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{store: store, audit: sink, notifier: notifier, clock: clk, log: log}
}

type TransitionCommand struct {
	OrderID types.ID
	To      Status
	ActorID types.ID
}

type DispatchCommand struct {
	OrderID  types.ID
	DriverID types.ID
	ActorID  types.ID
}

type ReassignCommand struct {
	OrderID     types.ID
	NewDriverID types.ID
	Reason      string
	ActorID     types.ID
}

type RefundRequestCommand struct {
	OrderID types.ID
	Reason  string
	ActorID types.ID
}

type RefundCommand struct {
	OrderID types.ID
	Reason  string
	ActorID types.ID
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetDetail(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.GetDetail(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, p pagination.Page) ([]Order, int64, error) {
	return s.store.List(ctx, f, p)
}

func (s *Service) ListReassignments(ctx context.Context, orderID types.ID) ([]ReassignmentEvent, error) {
	if _, err := s.store.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.ListReassignments(ctx, orderID)
}

// Transition moves the order to cmd.To when it is a direct successor of the current status.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	from := o.Status
	if !CanTransition(from, cmd.To) {
		return nil, fmt.Errorf("%s -> %s: %w", from, cmd.To, domainerr.ErrInvalidTransition)
	}

	now := s.clock.Now()
	version := o.Version
	o.Status = cmd.To
	o.stamp(cmd.To, now)

	if err := s.save(ctx, Change{
		Order:           o,
		ExpectedVersion: version,
		Event:           s.event(o.ID, from, cmd.To, cmd.ActorID),
	}); err != nil {
		return nil, err
	}

	s.afterTransition(ctx, o, from, cmd.ActorID)
	return o, nil
}

// Dispatch binds a driver and moves a PAID order to DISPATCHED in one write.
func (s *Service) Dispatch(ctx context.Context, cmd DispatchCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	from := o.Status
	if !CanTransition(from, StatusDispatched) {
		return nil, fmt.Errorf("%s -> %s: %w", from, StatusDispatched, domainerr.ErrInvalidTransition)
	}

	version := o.Version
	driverID := cmd.DriverID
	o.DriverID = &driverID
	o.Status = StatusDispatched
	o.stamp(StatusDispatched, s.clock.Now())

	if err := s.save(ctx, Change{
		Order:           o,
		ExpectedVersion: version,
		Event:           s.event(o.ID, from, StatusDispatched, cmd.ActorID),
	}); err != nil {
		return nil, err
	}

	s.audit.Record(audit.Event{
		ActorID:    cmd.ActorID,
		Action:     audit.ActionDriverAssigned,
		EntityType: "order",
		EntityID:   o.ID,
		To:         string(driverID),
	})
	s.afterTransition(ctx, o, from, cmd.ActorID)
	s.notify(ctx, notification.Message{
		Target: notification.DriverTopic(string(driverID)),
		Title:  "New delivery assigned",
		Body:   fmt.Sprintf("Order %s has been assigned to you", o.Number),
		Data:   map[string]string{"type": "order_assigned", "order_id": string(o.ID)},
	})
	return o, nil
}

// Reassign rebinds the driver of a DISPATCHED or READY_FOR_PICKUP order and appends a
// ReassignmentEvent in the same transaction. Driver eligibility is the caller's concern.
func (s *Service) Reassign(ctx context.Context, cmd ReassignCommand) (*Order, *ReassignmentEvent, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := CheckReassignable(o); err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	ev := &ReassignmentEvent{
		OrderID:     o.ID,
		OldDriverID: o.DriverID,
		NewDriverID: cmd.NewDriverID,
		ActorID:     cmd.ActorID,
		CreatedAt:   now,
	}
	if r := strings.TrimSpace(cmd.Reason); r != "" {
		ev.Reason = &r
	}

	version := o.Version
	newDriver := cmd.NewDriverID
	o.DriverID = &newDriver

	if err := s.save(ctx, Change{Order: o, ExpectedVersion: version, Reassignment: ev}); err != nil {
		return nil, nil, err
	}
	metrics.ReassignmentsTotal.Inc()
	return o, ev, nil
}

// RequestRefund opens the refund sub-machine on a COMPLETED or CANCELLED order.
func (s *Service) RequestRefund(ctx context.Context, cmd RefundRequestCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusCompleted && o.Status != StatusCancelled {
		return nil, fmt.Errorf("refund on %s order: %w", o.Status, domainerr.ErrInvalidTransition)
	}
	if o.RefundStatus != RefundNone {
		return nil, fmt.Errorf("refund is %s: %w", o.RefundStatus, domainerr.ErrAlreadyProcessed)
	}

	version := o.Version
	o.RefundStatus = RefundRequested
	if r := strings.TrimSpace(cmd.Reason); r != "" {
		o.RefundReason = &r
	}
	now := o.notBefore(s.clock.Now())
	o.RefundRequestedAt = &now

	if err := s.save(ctx, Change{Order: o, ExpectedVersion: version}); err != nil {
		return nil, err
	}
	s.audit.Record(audit.Event{
		ActorID:    cmd.ActorID,
		Action:     audit.ActionRefundRequested,
		EntityType: "order",
		EntityID:   o.ID,
		To:         string(RefundRequested),
	})
	return o, nil
}

// ApproveRefund settles a REQUESTED refund and forces the main status to REFUNDED.
func (s *Service) ApproveRefund(ctx context.Context, cmd RefundCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.RefundStatus != RefundRequested {
		return nil, refundNotPending(o)
	}

	version := o.Version
	from := o.Status
	o.RefundStatus = RefundApproved
	now := o.notBefore(s.clock.Now())
	o.RefundProcessedAt = &now
	o.Status = StatusRefunded

	if err := s.save(ctx, Change{
		Order:           o,
		ExpectedVersion: version,
		Event:           s.event(o.ID, from, StatusRefunded, cmd.ActorID),
	}); err != nil {
		return nil, err
	}
	metrics.OrderTransitionsTotal.WithLabelValues(string(from), string(StatusRefunded)).Inc()
	s.audit.Record(audit.Event{
		ActorID:    cmd.ActorID,
		Action:     audit.ActionRefundApproved,
		EntityType: "order",
		EntityID:   o.ID,
		From:       string(from),
		To:         string(StatusRefunded),
	})
	return o, nil
}

// RejectRefund settles a REQUESTED refund as REJECTED; the main status is untouched.
func (s *Service) RejectRefund(ctx context.Context, cmd RefundCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.RefundStatus != RefundRequested {
		return nil, refundNotPending(o)
	}

	version := o.Version
	o.RefundStatus = RefundRejected
	if r := strings.TrimSpace(cmd.Reason); r != "" {
		o.RefundRejectReason = &r
	}
	now := o.notBefore(s.clock.Now())
	o.RefundProcessedAt = &now

	if err := s.save(ctx, Change{Order: o, ExpectedVersion: version}); err != nil {
		return nil, err
	}
	s.audit.Record(audit.Event{
		ActorID:    cmd.ActorID,
		Action:     audit.ActionRefundRejected,
		EntityType: "order",
		EntityID:   o.ID,
		To:         string(RefundRejected),
		Meta:       map[string]any{"reason": cmd.Reason},
	})
	return o, nil
}

// ListStuck exposes the watchdog query.
func (s *Service) ListStuck(ctx context.Context, status Status, createdBefore time.Time) ([]StuckCandidate, error) {
	return s.store.ListStuck(ctx, status, createdBefore)
}

func (s *Service) save(ctx context.Context, c Change) error {
	ok, err := s.store.Save(ctx, c)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("order %s: %w", c.Order.ID, domainerr.ErrConcurrentModification)
	}
	return nil
}

func (s *Service) event(id types.ID, from, to Status, actor types.ID) *Event {
	e := &Event{OrderID: id, FromStatus: from, ToStatus: to, CreatedAt: s.clock.Now()}
	if actor != "" {
		e.ActorID = &actor
	}
	return e
}

func (s *Service) afterTransition(ctx context.Context, o *Order, from Status, actor types.ID) {
	metrics.OrderTransitionsTotal.WithLabelValues(string(from), string(o.Status)).Inc()
	s.audit.Record(audit.Event{
		ActorID:    actor,
		Action:     audit.ActionStatusChanged,
		EntityType: "order",
		EntityID:   o.ID,
		From:       string(from),
		To:         string(o.Status),
	})
	s.notify(ctx, notification.Message{
		Target: notification.OrderTopic(string(o.ID)),
		Title:  "Order update",
		Body:   fmt.Sprintf("Order %s is now %s", o.Number, strings.ReplaceAll(strings.ToLower(string(o.Status)), "_", " ")),
		Data:   map[string]string{"type": "order_status", "order_id": string(o.ID), "status": string(o.Status)},
	})
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	s.notifier.Send(ctx, msg)
}

// CheckReassignable rejects terminal orders and orders that have not been dispatched yet.
func CheckReassignable(o *Order) error {
	if Reassignable(o.Status) {
		return nil
	}
	if IsTerminal(o.Status) {
		return fmt.Errorf("order %s is %s: %w", o.ID, o.Status, domainerr.ErrInvalidTransition)
	}
	return fmt.Errorf("order %s is %s, dispatch it first: %w", o.ID, o.Status, domainerr.ErrInvalidTransition)
}

func refundNotPending(o *Order) error {
	if o.RefundStatus == RefundNone {
		return fmt.Errorf("no refund requested for order %s: %w", o.ID, domainerr.ErrAlreadyProcessed)
	}
	return fmt.Errorf("refund for order %s is already %s: %w", o.ID, o.RefundStatus, domainerr.ErrAlreadyProcessed)
}
