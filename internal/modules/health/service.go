// README: Dependency reachability for the /health endpoint.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dispatch/internal/clock"
)

// Pinger is satisfied by a pgxpool.Pool or an adapter around a redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Component carries only the status; ping errors go to the log.
type Component struct {
	Status string `json:"status"`
}

type Report struct {
	Status     string               `json:"status"`
	Components map[string]Component `json:"components"`
	Queue      string               `json:"queue"`
	ServerTime time.Time            `json:"server_time"`
}

func (r Report) Healthy() bool { return r.Status == "ok" }

type Service struct {
	checks  map[string]Pinger
	queue   string
	clock   clock.Clock
	log     *slog.Logger
	timeout time.Duration
}

func NewService(checks map[string]Pinger, queue string, clk clock.Clock, log *slog.Logger) *Service {
	return &Service{checks: checks, queue: queue, clock: clk, log: log, timeout: 2 * time.Second}
}

// Check pings every component concurrently. One failure degrades the whole report.
func (s *Service) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = Report{Status: "ok", Components: make(map[string]Component, len(s.checks)), Queue: s.queue}
	)
	for name, p := range s.checks {
		wg.Add(1)
		go func(name string, p Pinger) {
			defer wg.Done()
			c := Component{Status: "ok"}
			if err := p.Ping(ctx); err != nil {
				s.log.WarnContext(ctx, "health check failed", "component", name, "error", err)
				c = Component{Status: "down"}
			}
			mu.Lock()
			out.Components[name] = c
			if c.Status != "ok" {
				out.Status = "degraded"
			}
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()
	out.ServerTime = s.clock.Now()
	return out
}
