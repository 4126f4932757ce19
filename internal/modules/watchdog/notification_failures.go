// README: Push notification failure-rate watchdog.
package watchdog

import (
	"context"
	"fmt"
	"time"

	"dispatch/internal/modules/alertstate"
	"dispatch/internal/modules/notification"
)

type StatsSource interface {
	StatsSince(ctx context.Context, since time.Time) (notification.Stats, error)
}

// NotificationFailures tracks failed/total push deliveries over the trailing Window.
type NotificationFailures struct {
	Stats     StatsSource
	Window    time.Duration
	Threshold float64
	MinSample int
}

func (w *NotificationFailures) Type() alertstate.Type { return alertstate.TypeNotifications }

func (w *NotificationFailures) Measure(ctx context.Context, now time.Time) (Measurement, error) {
	st, err := w.Stats.StatsSince(ctx, now.Add(-w.Window))
	if err != nil {
		return Measurement{}, fmt.Errorf("notification stats: %w", err)
	}
	return Measurement{
		Count:  st.Failed,
		Rate:   st.Rate(),
		Total:  st.Total,
		Failed: st.Failed,
	}, nil
}

func (w *NotificationFailures) Exceeded(m Measurement) bool {
	return m.Total > 0 && m.Total >= w.MinSample && m.Rate > w.Threshold
}

func (w *NotificationFailures) Alert(m Measurement) notification.Message {
	return notification.Message{
		Title: "Push notification failures",
		Body:  fmt.Sprintf("%.1f%% of %d notifications failed in the last %s", m.Rate*100, m.Total, w.Window),
		Data: map[string]string{
			"type":   string(w.Type()),
			"failed": fmt.Sprint(m.Failed),
			"total":  fmt.Sprint(m.Total),
		},
	}
}
