// README: Stale driver-location watchdog.
package watchdog

import (
	"context"
	"fmt"
	"time"

	"dispatch/internal/modules/alertstate"
	"dispatch/internal/modules/driver"
	"dispatch/internal/modules/notification"
)

type StaleSource interface {
	ListStale(ctx context.Context, before time.Time) ([]driver.StaleCandidate, error)
}

// DriverLocations counts online drivers whose last ping is older than After or missing.
type DriverLocations struct {
	Drivers  StaleSource
	After    time.Duration
	MinCount int
}

func (w *DriverLocations) Type() alertstate.Type { return alertstate.TypeDriverLocations }

func (w *DriverLocations) Measure(ctx context.Context, now time.Time) (Measurement, error) {
	stale, err := w.Drivers.ListStale(ctx, now.Add(-w.After))
	if err != nil {
		return Measurement{}, fmt.Errorf("list stale drivers: %w", err)
	}
	m := Measurement{Count: len(stale), FlaggedIDs: make([]string, 0, len(stale))}
	for _, c := range stale {
		m.FlaggedIDs = append(m.FlaggedIDs, string(c.ID))
		if c.RecordedAt != nil && (m.OldestRecordedAt == nil || c.RecordedAt.Before(*m.OldestRecordedAt)) {
			at := *c.RecordedAt
			m.OldestRecordedAt = &at
		}
	}
	return m, nil
}

func (w *DriverLocations) Exceeded(m Measurement) bool {
	return m.Count > 0 && m.Count >= w.MinCount
}

func (w *DriverLocations) Alert(m Measurement) notification.Message {
	return notification.Message{
		Title: "Stale driver locations",
		Body:  fmt.Sprintf("%d online driver(s) have not reported a location for %s", m.Count, w.After),
		Data:  map[string]string{"type": string(w.Type()), "count": fmt.Sprint(m.Count)},
	}
}
