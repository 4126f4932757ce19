// README: Runner executes one watchdog scan under its per-type lock and applies the alert policy.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dispatch/internal/metrics"
	"dispatch/internal/modules/alertstate"
	"dispatch/internal/modules/notification"
)

type Notifier interface {
	Send(ctx context.Context, msg notification.Message) notification.Outcome
}

type RunnerConfig struct {
	Cooldown   time.Duration
	RunTimeout time.Duration
	AlertTopic string
}

type Runner struct {
	cache    alertstate.Cache
	history  alertstate.History
	locker   alertstate.Locker
	notifier Notifier
	cfg      RunnerConfig
	log      *slog.Logger
}

func NewRunner(cache alertstate.Cache, history alertstate.History, locker alertstate.Locker, notifier Notifier, cfg RunnerConfig, log *slog.Logger) *Runner {
	return &Runner{cache: cache, history: history, locker: locker, notifier: notifier, cfg: cfg, log: log}
}

// Result describes one Run call.
type Result struct {
	Skipped bool
	Alerted bool
	Entry   *alertstate.Entry
}

// Run scans once at now. A failed scan leaves the cache entry untouched and is
// recorded as a failed run.
func (r *Runner) Run(ctx context.Context, w Watchdog, now time.Time) (Result, error) {
	typ := w.Type()
	release, ok, err := r.locker.TryLock(ctx, typ)
	if err != nil {
		metrics.WatchdogRunsTotal.WithLabelValues(string(typ), "failed").Inc()
		return Result{}, fmt.Errorf("lock %s: %w", typ, err)
	}
	if !ok {
		metrics.WatchdogRunsTotal.WithLabelValues(string(typ), "skipped").Inc()
		r.log.DebugContext(ctx, "watchdog run skipped, previous run still active", "type", typ)
		return Result{Skipped: true}, nil
	}
	defer release()

	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	started := time.Now()
	entry, fire, m, err := r.scan(ctx, w, now)
	elapsed := time.Since(started)
	metrics.WatchdogRunDuration.WithLabelValues(string(typ)).Observe(elapsed.Seconds())

	run := alertstate.Run{Type: typ, RanAt: now, DurationMs: elapsed.Milliseconds()}
	if err != nil {
		metrics.WatchdogRunsTotal.WithLabelValues(string(typ), "failed").Inc()
		r.log.ErrorContext(ctx, "watchdog run failed", "type", typ, "error", err)
		run.Error = err.Error()
		r.appendHistory(ctx, run)
		return Result{}, err
	}

	metrics.WatchdogRunsTotal.WithLabelValues(string(typ), "ok").Inc()
	if typ == alertstate.TypeNotifications {
		metrics.WatchdogMeasure.WithLabelValues(string(typ)).Set(m.Rate)
	} else {
		metrics.WatchdogMeasure.WithLabelValues(string(typ)).Set(float64(m.Count))
	}

	run.Succeeded = true
	run.Alerted = fire
	run.Count = m.Count
	run.Rate = m.Rate
	r.appendHistory(ctx, run)

	if fire {
		metrics.WatchdogAlertsTotal.WithLabelValues(string(typ)).Inc()
		r.log.WarnContext(ctx, "watchdog alert", "type", typ, "count", m.Count, "rate", m.Rate)
		if r.notifier != nil {
			msg := w.Alert(m)
			msg.Target = r.cfg.AlertTopic
			r.notifier.Send(ctx, msg)
		}
	}
	return Result{Alerted: fire, Entry: &entry}, nil
}

func (r *Runner) scan(ctx context.Context, w Watchdog, now time.Time) (alertstate.Entry, bool, Measurement, error) {
	m, err := w.Measure(ctx, now)
	if err != nil {
		return alertstate.Entry{}, false, Measurement{}, err
	}
	prev, err := r.cache.Get(ctx, w.Type())
	if err != nil {
		return alertstate.Entry{}, false, Measurement{}, fmt.Errorf("read alert state: %w", err)
	}
	entry, fire := Decide(w.Type(), prev, m, w.Exceeded(m), now, r.cfg.Cooldown)
	if err := r.cache.Set(ctx, entry); err != nil {
		return alertstate.Entry{}, false, Measurement{}, fmt.Errorf("write alert state: %w", err)
	}
	return entry, fire, m, nil
}

// appendHistory is best effort; the run result never depends on it.
func (r *Runner) appendHistory(ctx context.Context, run alertstate.Run) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := r.history.Append(hctx, run); err != nil {
		r.log.ErrorContext(ctx, "recording watchdog run", "type", run.Type, "error", err)
	}
}
