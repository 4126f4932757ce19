// README: Entry point; loads config, wires services, starts the HTTP server and the watchdog scheduler.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"

	"dispatch/internal/clock"
	"dispatch/internal/config"
	httptransport "dispatch/internal/http"
	"dispatch/internal/http/middleware"
	"dispatch/internal/infra"
	"dispatch/internal/logger"
	"dispatch/internal/metrics"
	"dispatch/internal/modules/alertstate"
	"dispatch/internal/modules/assignment"
	"dispatch/internal/modules/audit"
	"dispatch/internal/modules/driver"
	"dispatch/internal/modules/health"
	"dispatch/internal/modules/notification"
	"dispatch/internal/modules/order"
	"dispatch/internal/modules/reporting"
	"dispatch/internal/pagination"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := logger.Init(cfg.Log.Format, cfg.Log.Level)
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("dispatch-api stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.Firebase.ProjectID == "" {
		return errors.New("DISPATCH_FIREBASE_PROJECT_ID is required")
	}
	app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		return err
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, app)
	if err != nil {
		return err
	}

	if cfg.DB.MigrateOnBoot {
		if err := infra.Migrate(cfg.DB.MigrationsDir, cfg.DB.DSN); err != nil {
			return err
		}
	}
	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	clk := clock.System()

	var sender notification.Sender
	if fcm, err := infra.NewMessaging(ctx, app); err != nil {
		log.Warn("firebase messaging unavailable, push notifications are logged only", "error", err)
		sender = notification.LogSender{Log: log}
	} else {
		sender = notification.NewFCMSender(fcm)
	}
	notificationStore := notification.NewStore(dbPool)
	notifier := notification.NewPushNotifier(sender, notificationStore, clk, log).
		SkipRecording(cfg.Watchdog.AlertTopic)

	auditSink := audit.NewAsyncSink(audit.NewStore(dbPool), cfg.Audit.Buffer, log)
	// Outlives ctx: requests still in flight during shutdown are audited.
	auditCtx, stopAudit := context.WithCancel(context.Background())
	go auditSink.Run(auditCtx)

	orderSvc := order.NewService(order.NewStore(dbPool), auditSink, notifier, clk, log)
	driverStore := driver.NewStore(dbPool)
	radius := assignment.NewRedisRadius(redisClient, cfg.Assignment.RadiusKm)
	assignmentSvc := assignment.NewService(orderSvc, driverStore, radius, auditSink, notifier, log)

	cache := alertstate.NewRedisCache(redisClient)
	history := alertstate.NewHistoryStore(dbPool)
	reportingSvc := reporting.NewService(cache, history)

	healthSvc := health.NewService(map[string]health.Pinger{
		"database": dbPool,
		"cache":    health.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
	}, cfg.Queue.Backend, clk, log)

	var rateLimit gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		rateLimit, err = middleware.RateLimit(cfg.RateLimit.Rate, redisClient, log)
		if err != nil {
			stopAudit()
			return err
		}
	}

	server := httptransport.NewServer(httptransport.ServerDeps{
		Orders:     orderSvc,
		Drivers:    driverStore,
		Assignment: assignmentSvc,
		Reports:    reportingSvc,
		Health:     healthSvc,
		Verifier:   verifier,
		RateLimit:  rateLimit,
		Pages:      pagination.NewParser(cfg.Pagination.DefaultPerPage, cfg.Pagination.MaxPerPage),
		Log:        log,
	})
	httpServer := &http.Server{Addr: cfg.HTTP.Addr, Handler: server.Routes()}

	var wg sync.WaitGroup
	if cfg.Watchdog.Enabled {
		scheduler := newScheduler(cfg.Watchdog, orderSvc, driverStore, notificationStore, cache, history, redisClient, notifier, clk, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Run(ctx)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stopAudit()
			auditSink.Wait()
			return err
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	wg.Wait()
	stopAudit()
	auditSink.Wait()
	return nil
}
