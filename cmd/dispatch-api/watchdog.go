// README: Watchdog runner and scheduler wiring.
package main

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/clock"
	"dispatch/internal/config"
	"dispatch/internal/modules/alertstate"
	"dispatch/internal/modules/driver"
	"dispatch/internal/modules/notification"
	"dispatch/internal/modules/order"
	"dispatch/internal/modules/watchdog"
)

func newScheduler(
	cfg config.WatchdogConfig,
	orders *order.Service,
	drivers *driver.Store,
	notifications *notification.Store,
	cache alertstate.Cache,
	history alertstate.History,
	redisClient *redis.Client,
	notifier watchdog.Notifier,
	clk clock.Clock,
	log *slog.Logger,
) *watchdog.Scheduler {
	var locker alertstate.Locker
	switch cfg.LockBackend {
	case "local":
		locker = alertstate.NewLocalLocker()
	default:
		locker = alertstate.NewRedisLocker(redisClient, cfg.LockTTL)
	}

	runner := watchdog.NewRunner(cache, history, locker, notifier, watchdog.RunnerConfig{
		Cooldown:   cfg.Cooldown,
		RunTimeout: cfg.RunTimeout,
		AlertTopic: cfg.AlertTopic,
	}, log)

	return watchdog.NewScheduler(runner, clk, log,
		watchdog.Job{
			Watchdog: &watchdog.StuckOrders{Orders: orders, After: cfg.StuckAfter, MinCount: cfg.StuckMinCount},
			Interval: cfg.StuckInterval,
		},
		watchdog.Job{
			Watchdog: &watchdog.DriverLocations{Drivers: drivers, After: cfg.StaleAfter, MinCount: cfg.StaleMinCount},
			Interval: cfg.StaleInterval,
		},
		watchdog.Job{
			Watchdog: &watchdog.NotificationFailures{
				Stats:     notifications,
				Window:    cfg.NotificationWindow,
				Threshold: cfg.FailureRateThreshold,
				MinSample: cfg.FailureMinSample,
			},
			Interval: cfg.NotificationInterval,
		},
	)
}
