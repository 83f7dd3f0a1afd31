package store

import (
	"context"
	"errors"

	"backend-squadrun/internal/route"
)

var (
	ErrRouteNotFound = errors.New("route not found")
	// ErrRouteFinalized is returned when a summary write targets a route
	// whose end time is already stored.
	ErrRouteFinalized = errors.New("route already finalized")
)

// Store persists one summary record per (session, participant) and an
// append-only point sequence per route. Writes are last-writer-wins per route.
type Store interface {
	// Append adds points to a route in the given order. It never reorders or
	// deduplicates.
	Append(ctx context.Context, routeID string, points []route.Point) error
	// UpsertSummary writes the summary record and returns it with its
	// store-assigned ID. A finalized record is never overwritten.
	UpsertSummary(ctx context.Context, r route.UserRoute) (route.UserRoute, error)
	LoadRoute(ctx context.Context, sessionID, userID string) (route.UserRoute, []route.Point, error)
	// LoadAllRoutes returns every participant's polyline for a session.
	// Participants without persisted points are left out.
	LoadAllRoutes(ctx context.Context, sessionID string) (map[string][]route.Coordinate, error)
	ListRoutes(ctx context.Context, sessionID string) ([]route.UserRoute, error)
}
