// README: Buffered asynchronous audit sink drained by a single writer goroutine.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dispatch/internal/metrics"
)

type Writer interface {
	Append(ctx context.Context, e Event) error
}

type AsyncSink struct {
	writer  Writer
	log     *slog.Logger
	events  chan Event
	timeout time.Duration
	done    chan struct{}
}

func NewAsyncSink(w Writer, buffer int, log *slog.Logger) *AsyncSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &AsyncSink{
		writer:  w,
		log:     log,
		events:  make(chan Event, buffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
}

// Record enqueues e. When the buffer is full the event is dropped and counted.
func (s *AsyncSink) Record(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	select {
	case s.events <- e:
	default:
		metrics.AuditDroppedTotal.Inc()
		s.log.Warn("audit buffer full, dropping event", "action", e.Action, "entity_id", e.EntityID)
	}
}

// Run drains the buffer until ctx is done, then flushes what is left.
func (s *AsyncSink) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return
		case e := <-s.events:
			s.write(e)
		}
	}
}

// Wait blocks until Run has returned.
func (s *AsyncSink) Wait() { <-s.done }

func (s *AsyncSink) flush() {
	for {
		select {
		case e := <-s.events:
			s.write(e)
		default:
			return
		}
	}
}

func (s *AsyncSink) write(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.writer.Append(ctx, e); err != nil {
		s.log.Error("audit write failed", "action", e.Action, "entity_id", e.EntityID, "error", err)
	}
}
