package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"backend-squadrun/internal/route"

	"github.com/google/uuid"
)

type memoryEntry struct {
	route  route.UserRoute
	points []route.Point
}

// Memory is an in-process Store used by tests and single-node deployments
// without Postgres.
type Memory struct {
	mu    sync.RWMutex
	byKey map[string]*memoryEntry
	byID  map[string]*memoryEntry
	nowFn func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		byKey: map[string]*memoryEntry{},
		byID:  map[string]*memoryEntry{},
		nowFn: time.Now,
	}
}

func memoryKey(sessionID, userID string) string {
	return sessionID + "/" + userID
}

func (m *Memory) Append(_ context.Context, routeID string, points []route.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.byID[routeID]
	if !ok {
		return ErrRouteNotFound
	}
	entry.points = append(entry.points, points...)
	return nil
}

func (m *Memory) UpsertSummary(_ context.Context, r route.UserRoute) (route.UserRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn()
	key := memoryKey(r.SessionID, r.UserID)
	entry, ok := m.byKey[key]
	if !ok {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.CreatedAt = now
		entry = &memoryEntry{}
		m.byKey[key] = entry
		m.byID[r.ID] = entry
	} else {
		if entry.route.Finalized() {
			return route.UserRoute{}, ErrRouteFinalized
		}
		r.ID = entry.route.ID
		r.CreatedAt = entry.route.CreatedAt
	}
	r.UpdatedAt = now
	entry.route = r
	return r, nil
}

func (m *Memory) LoadRoute(_ context.Context, sessionID, userID string) (route.UserRoute, []route.Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.byKey[memoryKey(sessionID, userID)]
	if !ok {
		return route.UserRoute{}, nil, ErrRouteNotFound
	}
	points := make([]route.Point, len(entry.points))
	copy(points, entry.points)
	return entry.route, points, nil
}

func (m *Memory) LoadAllRoutes(_ context.Context, sessionID string) (map[string][]route.Coordinate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := map[string][]route.Coordinate{}
	for _, entry := range m.byKey {
		if entry.route.SessionID != sessionID || len(entry.points) == 0 {
			continue
		}
		coords := make([]route.Coordinate, 0, len(entry.points))
		for _, p := range entry.points {
			coords = append(coords, p.Coordinate())
		}
		out[entry.route.UserID] = coords
	}
	return out, nil
}

func (m *Memory) ListRoutes(_ context.Context, sessionID string) ([]route.UserRoute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var routes []route.UserRoute
	for _, entry := range m.byKey {
		if entry.route.SessionID == sessionID {
			routes = append(routes, entry.route)
		}
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].StartedAt.Before(routes[j].StartedAt)
	})
	return routes, nil
}
