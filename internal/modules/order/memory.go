// README: In-memory Repository with the same version semantics as Store; used by tests and local runs.
package order

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dispatch/internal/domainerr"
	"dispatch/internal/pagination"
	"dispatch/internal/types"
)

type MemoryStore struct {
	mu            sync.Mutex
	orders        map[types.ID]*Order
	events        []Event
	reassignments []ReassignmentEvent
	// Err, when set, is returned by every call to simulate an unreachable store.
	Err error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[types.ID]*Order)}
}

// Put inserts or replaces an order as-is.
func (m *MemoryStore) Put(o Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := o
	m.orders[o.ID] = &cp
}

func (m *MemoryStore) Events(orderID types.ID) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, domainerr.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) GetDetail(ctx context.Context, id types.ID) (*Order, error) {
	return m.Get(ctx, id)
}

func (m *MemoryStore) List(_ context.Context, f Filter, p pagination.Page) ([]Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, 0, m.Err
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	var matched []Order
	for _, o := range m.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(o.Number), q) &&
			!strings.Contains(strings.ToLower(o.CustomerName), q) &&
			!strings.Contains(strings.ToLower(string(o.ID)), q) {
			continue
		}
		matched = append(matched, *o)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	start := p.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + p.Limit()
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (m *MemoryStore) Save(_ context.Context, c Change) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	cur, ok := m.orders[c.Order.ID]
	if !ok || cur.Version != c.ExpectedVersion {
		return false, nil
	}
	c.Order.Version = c.ExpectedVersion + 1
	cp := *c.Order
	m.orders[cp.ID] = &cp
	if c.Event != nil {
		e := *c.Event
		e.ID = int64(len(m.events) + 1)
		m.events = append(m.events, e)
	}
	if c.Reassignment != nil {
		c.Reassignment.ID = int64(len(m.reassignments) + 1)
		m.reassignments = append(m.reassignments, *c.Reassignment)
	}
	return true, nil
}

func (m *MemoryStore) ListReassignments(_ context.Context, orderID types.ID) ([]ReassignmentEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []ReassignmentEvent
	for i := len(m.reassignments) - 1; i >= 0; i-- {
		if m.reassignments[i].OrderID == orderID {
			out = append(out, m.reassignments[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) ListStuck(_ context.Context, status Status, createdBefore time.Time) ([]StuckCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []StuckCandidate
	for _, o := range m.orders {
		if o.Status == status && o.CreatedAt.Before(createdBefore) {
			out = append(out, StuckCandidate{ID: o.ID, CreatedAt: o.CreatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
