// README: In-memory Repository for tests and local runs.
package driver

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
	mu      sync.Mutex
	drivers map[types.ID]Driver
	Err     error
}

func NewMemoryStore(drivers ...Driver) *MemoryStore {
	m := &MemoryStore{drivers: make(map[types.ID]Driver)}
	for _, d := range drivers {
		m.drivers[d.ID] = d
	}
	return m
}

func (m *MemoryStore) Put(d Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = d
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	d, ok := m.drivers[id]
	if !ok {
		return nil, fmt.Errorf("driver %s: %w", id, domainerr.ErrNotFound)
	}
	return &d, nil
}

func (m *MemoryStore) List(_ context.Context, f Filter, p pagination.Page) ([]Driver, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, 0, m.Err
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	var matched []Driver
	for _, d := range m.drivers {
		if f.EligibleOnly && !d.Eligible() {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(d.Name), q) && !strings.Contains(d.Phone, q) {
			continue
		}
		matched = append(matched, d)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name == matched[j].Name {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].Name < matched[j].Name
	})
	total := int64(len(matched))
	start := min(p.Offset(), len(matched))
	end := min(start+p.Limit(), len(matched))
	return matched[start:end], total, nil
}

func (m *MemoryStore) ListAssignable(_ context.Context) ([]Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []Driver
	for _, d := range m.drivers {
		if d.Eligible() && d.LastLocation != nil {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ListStale(_ context.Context, before time.Time) ([]StaleCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []StaleCandidate
	for _, d := range m.drivers {
		if !d.IsOnline {
			continue
		}
		if d.LastLocation == nil {
			out = append(out, StaleCandidate{ID: d.ID})
			continue
		}
		if d.LastLocation.RecordedAt.Before(before) {
			at := d.LastLocation.RecordedAt
			out = append(out, StaleCandidate{ID: d.ID, RecordedAt: &at})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
