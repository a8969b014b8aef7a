// README: In-memory route store for tests and local runs without Postgres.
package route

import (
	"context"
	"sort"
	"sync"

	"marketpace/internal/types"
)

type MemoryStore struct {
	mu     sync.Mutex
	routes map[types.ID]*Route
	events map[types.ID][]Event
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		routes: make(map[types.ID]*Route),
		events: make(map[types.ID][]Event),
	}
}

func (m *MemoryStore) Create(ctx context.Context, r *Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[r.ID]; ok {
		return ErrConflict
	}
	m.routes[r.ID] = r.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id types.ID) (*Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryStore) ListByStatus(ctx context.Context, status Status) ([]*Route, error) {
	return m.list(func(r *Route) bool { return r.Status == status }), nil
}

func (m *MemoryStore) ListByDriver(ctx context.Context, driverID types.ID) ([]*Route, error) {
	return m.list(func(r *Route) bool { return r.AssignedTo(driverID) }), nil
}

func (m *MemoryStore) list(keep func(*Route) bool) []*Route {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Route, 0)
	for _, r := range m.routes {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

func (m *MemoryStore) Update(ctx context.Context, r *Route, from Status, version int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.routes[r.ID]
	if !ok {
		return false, ErrNotFound
	}
	if cur.Status != from || cur.StatusVersion != version {
		return false, nil
	}
	next := r.Clone()
	next.StatusVersion = version + 1
	m.routes[r.ID] = next
	return true, nil
}

func (m *MemoryStore) AppendEvent(ctx context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ev := *e
	ev.ID = m.nextID
	ev.StopID = clonePtr(e.StopID)
	ev.ActorID = clonePtr(e.ActorID)
	ev.Reason = clonePtr(e.Reason)
	m.events[e.RouteID] = append(m.events[e.RouteID], ev)
	return nil
}

func (m *MemoryStore) Events(ctx context.Context, routeID types.ID) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events[routeID]...), nil
}
