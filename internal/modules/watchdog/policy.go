// README: Shared measurement type and the cooldown alert policy used by every watchdog.
package watchdog

import (
	"context"
	"time"

	"dispatch/internal/modules/alertstate"
	"dispatch/internal/modules/notification"
)

// Measurement is what one scan observed. Fields a watchdog does not track stay zero.
type Measurement struct {
	Count            int
	Rate             float64
	Total            int
	Failed           int
	OldestCreatedAt  *time.Time
	OldestRecordedAt *time.Time
	FlaggedIDs       []string
}

type Watchdog interface {
	Type() alertstate.Type
	Measure(ctx context.Context, now time.Time) (Measurement, error)
	// Exceeded reports whether m crosses the alert threshold.
	Exceeded(m Measurement) bool
	// Alert builds the ops notification for m.
	Alert(m Measurement) notification.Message
}

// Decide writes the measurement into a fresh entry and reports whether to fire.
// It fires iff exceeded and the type never alerted or the last alert is older than cooldown.
func Decide(t alertstate.Type, prev *alertstate.Entry, m Measurement, exceeded bool, now time.Time, cooldown time.Duration) (alertstate.Entry, bool) {
	next := alertstate.Entry{
		Type:                 t,
		LastRun:              now,
		LastCount:            m.Count,
		LastRate:             m.Rate,
		LastTotal:            m.Total,
		LastFailed:           m.Failed,
		LastOldestCreatedAt:  m.OldestCreatedAt,
		LastOldestRecordedAt: m.OldestRecordedAt,
		FlaggedIDs:           m.FlaggedIDs,
	}
	if prev != nil {
		next.LastAlertAt = prev.LastAlertAt
	}

	fire := exceeded && (next.LastAlertAt == nil || now.Sub(*next.LastAlertAt) > cooldown)
	if fire {
		at := now
		next.LastAlertAt = &at
	}
	return next, fire
}
