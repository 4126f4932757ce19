// README: Stuck-order watchdog over READY_FOR_PICKUP orders.
package watchdog

import (
	"context"
	"fmt"
	"time"

	"dispatch/internal/modules/alertstate"
	"dispatch/internal/modules/notification"
	"dispatch/internal/modules/order"
)

type StuckSource interface {
	ListStuck(ctx context.Context, status order.Status, createdBefore time.Time) ([]order.StuckCandidate, error)
}

// StuckOrders flags READY_FOR_PICKUP orders created more than After ago.
type StuckOrders struct {
	Orders   StuckSource
	After    time.Duration
	MinCount int
}

func (w *StuckOrders) Type() alertstate.Type { return alertstate.TypeStuckOrders }

func (w *StuckOrders) Measure(ctx context.Context, now time.Time) (Measurement, error) {
	stuck, err := w.Orders.ListStuck(ctx, order.StatusReadyForPickup, now.Add(-w.After))
	if err != nil {
		return Measurement{}, fmt.Errorf("list stuck orders: %w", err)
	}
	m := Measurement{Count: len(stuck), FlaggedIDs: make([]string, 0, len(stuck))}
	for _, c := range stuck {
		m.FlaggedIDs = append(m.FlaggedIDs, string(c.ID))
		if m.OldestCreatedAt == nil || c.CreatedAt.Before(*m.OldestCreatedAt) {
			at := c.CreatedAt
			m.OldestCreatedAt = &at
		}
	}
	return m, nil
}

func (w *StuckOrders) Exceeded(m Measurement) bool {
	return m.Count > 0 && m.Count >= w.MinCount
}

func (w *StuckOrders) Alert(m Measurement) notification.Message {
	return notification.Message{
		Title: "Stuck orders",
		Body:  fmt.Sprintf("%d order(s) waiting for pickup longer than %s", m.Count, w.After),
		Data:  map[string]string{"type": string(w.Type()), "count": fmt.Sprint(m.Count)},
	}
}
