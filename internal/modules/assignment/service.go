// README: Driver assignment: eligibility search, operator reassignment and auto-assign.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dispatch/internal/domainerr"
	"dispatch/internal/modules/audit"
	"dispatch/internal/modules/driver"
	"dispatch/internal/modules/notification"
	"dispatch/internal/modules/order"
	"dispatch/internal/types"
)

// Orders is the slice of the order service that assignment drives.
type Orders interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	Dispatch(ctx context.Context, cmd order.DispatchCommand) (*order.Order, error)
	Reassign(ctx context.Context, cmd order.ReassignCommand) (*order.Order, *order.ReassignmentEvent, error)
}

type Service struct {
	orders   Orders
	drivers  driver.Repository
	radius   RadiusSetting
	audit    audit.Sink
	notifier order.Notifier
	log      *slog.Logger
}

func NewService(orders Orders, drivers driver.Repository, radius RadiusSetting, sink audit.Sink, notifier order.Notifier, log *slog.Logger) *Service {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Service{orders: orders, drivers: drivers, radius: radius, audit: sink, notifier: notifier, log: log}
}

type ReassignCommand struct {
	OrderID     types.ID
	NewDriverID types.ID
	Reason      string
	ActorID     types.ID
}

type AutoAssignCommand struct {
	OrderID types.ID
	ActorID types.ID
}

// Radius returns the live search radius.
func (s *Service) Radius(ctx context.Context) (float64, error) {
	return s.radius.Get(ctx)
}

func (s *Service) SetRadius(ctx context.Context, km float64) error {
	return s.radius.Set(ctx, km)
}

// FindEligibleDrivers ranks eligible drivers around the order's delivery point.
// radiusKm 0 means the live setting. The radius actually applied is returned.
func (s *Service) FindEligibleDrivers(ctx context.Context, o *order.Order, radiusKm float64) ([]driver.Candidate, float64, error) {
	if radiusKm == 0 {
		r, err := s.radius.Get(ctx)
		if err != nil {
			return nil, 0, err
		}
		radiusKm = r
	} else if err := ValidateRadius(radiusKm); err != nil {
		return nil, 0, err
	}

	drivers, err := s.drivers.ListAssignable(ctx)
	if err != nil {
		return nil, 0, err
	}
	return driver.WithinRadius(drivers, o.Delivery, radiusKm), radiusKm, nil
}

// FindEligibleForOrder loads the order then delegates to FindEligibleDrivers.
func (s *Service) FindEligibleForOrder(ctx context.Context, orderID types.ID, radiusKm float64) ([]driver.Candidate, float64, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, 0, err
	}
	return s.FindEligibleDrivers(ctx, o, radiusKm)
}

// Reassign rebinds the order to cmd.NewDriverID. The order is checked before the driver.
func (s *Service) Reassign(ctx context.Context, cmd ReassignCommand) (*order.Order, *order.ReassignmentEvent, error) {
	if cmd.NewDriverID == "" {
		return nil, nil, fmt.Errorf("driver_id is required: %w", domainerr.ErrValidation)
	}
	o, err := s.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if err := order.CheckReassignable(o); err != nil {
		return nil, nil, err
	}
	if o.DriverID != nil && *o.DriverID == cmd.NewDriverID {
		return nil, nil, fmt.Errorf("driver %s is already assigned: %w", cmd.NewDriverID, domainerr.ErrValidation)
	}

	d, err := s.eligibleDriver(ctx, cmd.NewDriverID)
	if err != nil {
		return nil, nil, err
	}
	if !d.IsOnline {
		s.log.WarnContext(ctx, "reassigning to offline driver", "order_id", o.ID, "driver_id", d.ID)
	}

	updated, ev, err := s.orders.Reassign(ctx, order.ReassignCommand{
		OrderID:     cmd.OrderID,
		NewDriverID: cmd.NewDriverID,
		Reason:      cmd.Reason,
		ActorID:     cmd.ActorID,
	})
	if err != nil {
		return nil, nil, err
	}

	e := audit.Event{
		ActorID:    cmd.ActorID,
		Action:     audit.ActionDriverReassigned,
		EntityType: "order",
		EntityID:   updated.ID,
		To:         string(cmd.NewDriverID),
		Meta:       map[string]any{},
	}
	if ev.OldDriverID != nil {
		e.From = string(*ev.OldDriverID)
	}
	if ev.Reason != nil {
		e.Meta["reason"] = *ev.Reason
	}
	s.audit.Record(e)

	if s.notifier != nil {
		s.notifier.Send(ctx, notification.Message{
			Target: notification.DriverTopic(string(cmd.NewDriverID)),
			Title:  "Delivery reassigned to you",
			Body:   fmt.Sprintf("Order %s has been reassigned to you", updated.Number),
			Data:   map[string]string{"type": "order_reassigned", "order_id": string(updated.ID)},
		})
	}
	return updated, ev, nil
}

// AutoAssign dispatches a PAID order to the nearest eligible driver within the live radius.
func (s *Service) AutoAssign(ctx context.Context, cmd AutoAssignCommand) (*order.Order, *driver.Candidate, error) {
	o, err := s.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if !order.CanTransition(o.Status, order.StatusDispatched) {
		return nil, nil, fmt.Errorf("%s -> %s: %w", o.Status, order.StatusDispatched, domainerr.ErrInvalidTransition)
	}

	candidates, radius, err := s.FindEligibleDrivers(ctx, o, 0)
	if err != nil {
		return nil, nil, err
	}
	if len(candidates) == 0 {
		return nil, nil, fmt.Errorf("no eligible driver within %.1f km: %w", radius, domainerr.ErrInvalidDriver)
	}

	best := candidates[0]
	updated, err := s.orders.Dispatch(ctx, order.DispatchCommand{
		OrderID:  o.ID,
		DriverID: best.ID,
		ActorID:  cmd.ActorID,
	})
	if err != nil {
		return nil, nil, err
	}
	s.log.InfoContext(ctx, "order auto-assigned", "order_id", o.ID, "driver_id", best.ID, "distance_km", best.DistanceKm)
	return updated, &best, nil
}

func (s *Service) eligibleDriver(ctx context.Context, id types.ID) (*driver.Driver, error) {
	d, err := s.drivers.Get(ctx, id)
	if errors.Is(err, domainerr.ErrNotFound) {
		return nil, fmt.Errorf("driver %s not found: %w", id, domainerr.ErrInvalidDriver)
	}
	if err != nil {
		return nil, err
	}
	if !d.IsVerified {
		return nil, fmt.Errorf("driver %s is not verified: %w", id, domainerr.ErrInvalidDriver)
	}
	if d.IsBlocked {
		return nil, fmt.Errorf("driver %s is blocked: %w", id, domainerr.ErrInvalidDriver)
	}
	return d, nil
}
