// README: Read-only views over the alert cache and run history. Nothing here scans orders or drivers.
package reporting

import (
	"context"
	"time"

	"dispatch/internal/modules/alertstate"
	"dispatch/internal/pagination"
)

type Summary struct {
	StuckOrdersCount         int        `json:"stuck_orders_count"`
	DriverLocationStaleCount int        `json:"driver_location_stale_count"`
	NotificationFailureRate  float64    `json:"notification_failure_rate"`
	NotificationFailed       int        `json:"notification_failed"`
	NotificationTotal        int        `json:"notification_total"`
	UpdatedAt                *time.Time `json:"updated_at"`
}

type Service struct {
	cache   alertstate.Cache
	history alertstate.History
}

func NewService(cache alertstate.Cache, history alertstate.History) *Service {
	return &Service{cache: cache, history: history}
}

// Summary returns the live numbers; a type that never ran reads as zero.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	entries, err := s.cache.All(ctx)
	if err != nil {
		return Summary{}, err
	}
	var out Summary
	if e := entries[alertstate.TypeStuckOrders]; e != nil {
		out.StuckOrdersCount = e.LastCount
		out.UpdatedAt = latest(out.UpdatedAt, e.LastRun)
	}
	if e := entries[alertstate.TypeDriverLocations]; e != nil {
		out.DriverLocationStaleCount = e.LastCount
		out.UpdatedAt = latest(out.UpdatedAt, e.LastRun)
	}
	if e := entries[alertstate.TypeNotifications]; e != nil {
		out.NotificationFailureRate = e.LastRate
		out.NotificationFailed = e.LastFailed
		out.NotificationTotal = e.LastTotal
		out.UpdatedAt = latest(out.UpdatedAt, e.LastRun)
	}
	return out, nil
}

// Status returns every type's entry, nil for types that never ran.
func (s *Service) Status(ctx context.Context) (map[alertstate.Type]*alertstate.Entry, error) {
	return s.cache.All(ctx)
}

func (s *Service) History(ctx context.Context, t alertstate.Type, p pagination.Page) ([]alertstate.Run, int64, error) {
	return s.history.List(ctx, t, p)
}

func latest(cur *time.Time, t time.Time) *time.Time {
	if cur == nil || t.After(*cur) {
		return &t
	}
	return cur
}
