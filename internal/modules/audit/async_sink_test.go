package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"dispatch/internal/logger"
)

type memWriter struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (m *memWriter) Append(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("db down")
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memWriter) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestAsyncSinkFlushesOnShutdown(t *testing.T) {
	w := &memWriter{}
	sink := NewAsyncSink(w, 16, logger.Discard())

	for i := 0; i < 5; i++ {
		sink.Record(Event{Action: ActionStatusChanged, EntityID: "o1"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	go sink.Run(ctx)
	cancel()
	sink.Wait()

	if w.len() != 5 {
		t.Fatalf("expected 5 events written, got %d", w.len())
	}
	for _, e := range w.events {
		if e.ID == "" || e.CreatedAt.IsZero() {
			t.Fatalf("expected id and timestamp to be filled, got %+v", e)
		}
	}
}

func TestAsyncSinkDropsWhenFull(t *testing.T) {
	w := &memWriter{}
	sink := NewAsyncSink(w, 2, logger.Discard())
	for i := 0; i < 5; i++ {
		sink.Record(Event{Action: ActionStatusChanged})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Run(ctx)

	if w.len() != 2 {
		t.Fatalf("expected only the buffered 2 events, got %d", w.len())
	}
}

func TestAsyncSinkWriteFailureDoesNotStop(t *testing.T) {
	w := &memWriter{fail: true}
	sink := NewAsyncSink(w, 4, logger.Discard())
	sink.Record(Event{Action: ActionRefundApproved})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Run(ctx)

	if w.len() != 0 {
		t.Fatalf("expected nothing persisted, got %d", w.len())
	}
}
