package watchdog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/clock"
	"dispatch/internal/logger"
	"dispatch/internal/modules/alertstate"
	"dispatch/internal/modules/driver"
	"dispatch/internal/modules/notification"
	"dispatch/internal/modules/order"
	"dispatch/internal/pagination"
	"dispatch/internal/types"
)

var T = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type fakeStats struct {
	stats notification.Stats
	since time.Time
}

func (f *fakeStats) StatsSince(_ context.Context, since time.Time) (notification.Stats, error) {
	f.since = since
	return f.stats, nil
}

type brokenWatchdog struct{ *StuckOrders }

func (brokenWatchdog) Measure(context.Context, time.Time) (Measurement, error) {
	return Measurement{}, errors.New("connection refused")
}

type alerts struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (a *alerts) Send(_ context.Context, m notification.Message) notification.Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, m)
	return notification.Delivered
}

func (a *alerts) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sent)
}

type harness struct {
	cache   *alertstate.MemoryCache
	history *alertstate.MemoryHistory
	locker  *alertstate.LocalLocker
	alerts  *alerts
	runner  *Runner
}

func newHarness() *harness {
	h := &harness{
		cache:   alertstate.NewMemoryCache(),
		history: alertstate.NewMemoryHistory(),
		locker:  alertstate.NewLocalLocker(),
		alerts:  &alerts{},
	}
	h.runner = NewRunner(h.cache, h.history, h.locker, h.alerts, RunnerConfig{
		Cooldown:   30 * time.Minute,
		RunTimeout: 5 * time.Second,
		AlertTopic: "ops_alerts",
	}, logger.Discard())
	return h
}

func (h *harness) runs(t *testing.T) []alertstate.Run {
	t.Helper()
	runs, _, err := h.history.List(context.Background(), "", pagination.Page{Page: 1, PerPage: 100})
	require.NoError(t, err)
	return runs
}

func TestDecide(t *testing.T) {
	earlier := T.Add(-10 * time.Minute)
	longAgo := T.Add(-31 * time.Minute)
	cooldown := 30 * time.Minute

	cases := []struct {
		name     string
		prev     *alertstate.Entry
		exceeded bool
		fire     bool
		alertAt  *time.Time
	}{
		{"first run below threshold", nil, false, false, nil},
		{"first run above threshold", nil, true, true, &T},
		{"never alerted before", &alertstate.Entry{LastRun: earlier}, true, true, &T},
		{"inside cooldown", &alertstate.Entry{LastAlertAt: &earlier}, true, false, &earlier},
		{"cooldown elapsed", &alertstate.Entry{LastAlertAt: &longAgo}, true, true, &T},
		{"below threshold keeps last alert", &alertstate.Entry{LastAlertAt: &longAgo}, false, false, &longAgo},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry, fire := Decide(alertstate.TypeStuckOrders, tc.prev, Measurement{Count: 3}, tc.exceeded, T, cooldown)
			assert.Equal(t, tc.fire, fire)
			assert.Equal(t, T, entry.LastRun)
			assert.Equal(t, 3, entry.LastCount)
			if tc.alertAt == nil {
				assert.Nil(t, entry.LastAlertAt)
			} else {
				require.NotNil(t, entry.LastAlertAt)
				assert.True(t, entry.LastAlertAt.Equal(*tc.alertAt))
			}
		})
	}

	exactly := T.Add(-cooldown)
	_, fire := Decide(alertstate.TypeStuckOrders, &alertstate.Entry{LastAlertAt: &exactly}, Measurement{Count: 1}, true, T, cooldown)
	assert.False(t, fire, "cooldown boundary is exclusive")
}

func TestStuckOrdersAgeThreshold(t *testing.T) {
	orders := order.NewMemoryStore()
	orders.Put(order.Order{ID: "o1", Status: order.StatusReadyForPickup, CreatedAt: T})
	orders.Put(order.Order{ID: "pending", Status: order.StatusPending, CreatedAt: T.Add(-time.Hour)})
	w := &StuckOrders{Orders: orders, After: 15 * time.Minute, MinCount: 1}
	ctx := context.Background()

	m, err := w.Measure(ctx, T.Add(14*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Count)
	assert.False(t, w.Exceeded(m))

	m, err = w.Measure(ctx, T.Add(16*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count)
	assert.Equal(t, []string{"o1"}, m.FlaggedIDs)
	require.NotNil(t, m.OldestCreatedAt)
	assert.True(t, m.OldestCreatedAt.Equal(T))
	assert.True(t, w.Exceeded(m))
}

func TestDriverLocationsStaleness(t *testing.T) {
	fresh := driver.Driver{ID: "fresh", IsOnline: true, LastLocation: &driver.Location{RecordedAt: T.Add(5 * time.Minute)}}
	stale := driver.Driver{ID: "stale", IsOnline: true, LastLocation: &driver.Location{RecordedAt: T}}
	silent := driver.Driver{ID: "silent", IsOnline: true}
	offline := driver.Driver{ID: "offline", LastLocation: &driver.Location{RecordedAt: T.Add(-time.Hour)}}
	w := &DriverLocations{Drivers: driver.NewMemoryStore(fresh, stale, silent, offline), After: 10 * time.Minute, MinCount: 1}

	m, err := w.Measure(context.Background(), T.Add(11*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Count)
	assert.ElementsMatch(t, []string{"stale", "silent"}, m.FlaggedIDs)
	require.NotNil(t, m.OldestRecordedAt)
	assert.True(t, m.OldestRecordedAt.Equal(T))
	assert.True(t, w.Exceeded(m))
}

func TestNotificationFailuresRate(t *testing.T) {
	stats := &fakeStats{stats: notification.Stats{Total: 100, Failed: 12}}
	w := &NotificationFailures{Stats: stats, Window: time.Hour, Threshold: 0.1, MinSample: 10}

	m, err := w.Measure(context.Background(), T)
	require.NoError(t, err)
	assert.InDelta(t, 0.12, m.Rate, 1e-9)
	assert.Equal(t, 12, m.Failed)
	assert.Equal(t, 100, m.Total)
	assert.Equal(t, T.Add(-time.Hour), stats.since)
	assert.True(t, w.Exceeded(m))

	assert.False(t, w.Exceeded(Measurement{Rate: 0.5, Total: 4, Failed: 2}), "below minimum sample")
	assert.False(t, w.Exceeded(Measurement{Rate: 0.1, Total: 100, Failed: 10}), "threshold is strict")
	assert.False(t, w.Exceeded(Measurement{}))
}

func TestRunnerNotificationScenarioAlertsOnce(t *testing.T) {
	h := newHarness()
	w := &NotificationFailures{Stats: &fakeStats{stats: notification.Stats{Total: 100, Failed: 12}}, Window: time.Hour, Threshold: 0.1, MinSample: 10}
	ctx := context.Background()

	res, err := h.runner.Run(ctx, w, T)
	require.NoError(t, err)
	assert.True(t, res.Alerted)
	require.Equal(t, 1, h.alerts.count())
	assert.Equal(t, "ops_alerts", h.alerts.sent[0].Target)

	e, err := h.cache.Get(ctx, alertstate.TypeNotifications)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.InDelta(t, 0.12, e.LastRate, 1e-9)
	assert.Equal(t, 12, e.LastFailed)
	assert.Equal(t, 100, e.LastTotal)
	require.NotNil(t, e.LastAlertAt)
	assert.True(t, e.LastAlertAt.Equal(T))
}

func TestRunnerCooldownStillUpdatesLiveNumbers(t *testing.T) {
	h := newHarness()
	orders := order.NewMemoryStore()
	w := &StuckOrders{Orders: orders, After: 15 * time.Minute, MinCount: 1}
	ctx := context.Background()

	orders.Put(order.Order{ID: "o1", Status: order.StatusReadyForPickup, CreatedAt: T})
	res, err := h.runner.Run(ctx, w, T.Add(16*time.Minute))
	require.NoError(t, err)
	assert.True(t, res.Alerted)

	orders.Put(order.Order{ID: "o2", Status: order.StatusReadyForPickup, CreatedAt: T.Add(time.Minute)})
	res, err = h.runner.Run(ctx, w, T.Add(26*time.Minute))
	require.NoError(t, err)
	assert.False(t, res.Alerted, "inside cooldown")

	e, err := h.cache.Get(ctx, alertstate.TypeStuckOrders)
	require.NoError(t, err)
	assert.Equal(t, 2, e.LastCount)
	assert.True(t, e.LastRun.Equal(T.Add(26*time.Minute)))
	assert.True(t, e.LastAlertAt.Equal(T.Add(16*time.Minute)))

	res, err = h.runner.Run(ctx, w, T.Add(47*time.Minute))
	require.NoError(t, err)
	assert.True(t, res.Alerted, "cooldown elapsed")
	assert.Equal(t, 2, h.alerts.count())

	runs := h.runs(t)
	require.Len(t, runs, 3)
	assert.True(t, runs[0].Alerted)
	assert.False(t, runs[1].Alerted)
	assert.Equal(t, 2, runs[1].Count)
}

func TestRunnerRepeatRunWithoutChange(t *testing.T) {
	h := newHarness()
	orders := order.NewMemoryStore()
	w := &StuckOrders{Orders: orders, After: 15 * time.Minute, MinCount: 1}
	ctx := context.Background()
	orders.Put(order.Order{ID: "o1", Status: order.StatusReadyForPickup, CreatedAt: T})
	orders.Put(order.Order{ID: "o2", Status: order.StatusReadyForPickup, CreatedAt: T.Add(time.Minute)})

	_, err := h.runner.Run(ctx, w, T.Add(20*time.Minute))
	require.NoError(t, err)
	first, err := h.cache.Get(ctx, alertstate.TypeStuckOrders)
	require.NoError(t, err)

	_, err = h.runner.Run(ctx, w, T.Add(21*time.Minute))
	require.NoError(t, err)
	second, err := h.cache.Get(ctx, alertstate.TypeStuckOrders)
	require.NoError(t, err)

	assert.Equal(t, 2, first.LastCount)
	assert.Equal(t, first.LastCount, second.LastCount)
	assert.True(t, second.LastRun.After(first.LastRun))
	require.NotNil(t, second.LastOldestCreatedAt)
	assert.True(t, second.LastOldestCreatedAt.Equal(T))
	assert.Equal(t, 1, h.alerts.count())
}

func TestRunnerFailureLeavesCacheUntouched(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	prevAlert := T.Add(-time.Hour)
	prev := alertstate.Entry{Type: alertstate.TypeStuckOrders, LastRun: T.Add(-time.Minute), LastCount: 4, LastAlertAt: &prevAlert}
	require.NoError(t, h.cache.Set(ctx, prev))

	_, err := h.runner.Run(ctx, brokenWatchdog{&StuckOrders{}}, T)
	require.Error(t, err)

	e, err := h.cache.Get(ctx, alertstate.TypeStuckOrders)
	require.NoError(t, err)
	assert.Equal(t, 4, e.LastCount)
	assert.True(t, e.LastRun.Equal(T.Add(-time.Minute)))
	assert.Equal(t, 0, h.alerts.count())

	runs := h.runs(t)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Succeeded)
	assert.Contains(t, runs[0].Error, "connection refused")
}

func TestRunnerHistoryFailureDoesNotFailRun(t *testing.T) {
	h := newHarness()
	h.history.Err = errors.New("db down")
	w := &StuckOrders{Orders: order.NewMemoryStore(), After: 15 * time.Minute, MinCount: 1}

	res, err := h.runner.Run(context.Background(), w, T)
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
	assert.Equal(t, 0, res.Entry.LastCount)
}

func TestRunnerSkipsWhenLockHeld(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	release, ok, err := h.locker.TryLock(ctx, alertstate.TypeStuckOrders)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	w := &StuckOrders{Orders: order.NewMemoryStore(), After: 15 * time.Minute, MinCount: 1}
	res, err := h.runner.Run(ctx, w, T)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	e, err := h.cache.Get(ctx, alertstate.TypeStuckOrders)
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.Empty(t, h.runs(t))
}

func TestSchedulerRunsEachJobUntilCancelled(t *testing.T) {
	h := newHarness()
	orders := order.NewMemoryStore()
	orders.Put(order.Order{ID: types.ID("o1"), Status: order.StatusReadyForPickup, CreatedAt: T})
	stuck := &StuckOrders{Orders: orders, After: 15 * time.Minute, MinCount: 1}
	stale := &DriverLocations{Drivers: driver.NewMemoryStore(), After: 10 * time.Minute, MinCount: 1}

	clk := clock.NewFixed(T.Add(20 * time.Minute))
	s := NewScheduler(h.runner, clk, logger.Discard(),
		Job{Watchdog: stuck, Interval: 10 * time.Millisecond},
		Job{Watchdog: stale, Interval: 10 * time.Millisecond},
		Job{Watchdog: &NotificationFailures{Stats: &fakeStats{}}, Interval: 0},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		a, _ := h.cache.Get(context.Background(), alertstate.TypeStuckOrders)
		b, _ := h.cache.Get(context.Background(), alertstate.TypeDriverLocations)
		return a != nil && b != nil
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	e, err := h.cache.Get(context.Background(), alertstate.TypeNotifications)
	require.NoError(t, err)
	assert.Nil(t, e, "job without interval never runs")
	assert.Equal(t, 1, h.alerts.count(), "stuck order alerts once per cooldown")
}
