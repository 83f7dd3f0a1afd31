package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend-squadrun/internal/db"
	"backend-squadrun/internal/route"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const pointColumns = 7

type Postgres struct {
	db db.Querier
}

func NewPostgres(db db.Querier) *Postgres {
	return &Postgres{db: db}
}

// Append writes all points in one statement so a failed flush leaves no
// partial batch behind.
func (s *Postgres) Append(ctx context.Context, routeID string, points []route.Point) error {
	if len(points) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(`INSERT INTO route_points (route_id, latitude, longitude, altitude_m, speed_mps, horizontal_accuracy_m, recorded_at) VALUES `)
	args := make([]any, 0, len(points)*pointColumns)
	for i, p := range points {
		if i > 0 {
			b.WriteString(",")
		}
		n := i * pointColumns
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7)
		args = append(args, routeID, p.Latitude, p.Longitude, p.Altitude, speedArg(p), p.HorizontalAccuracy, p.Timestamp)
	}

	if _, err := s.db.Exec(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("append route points: %w", err)
	}
	return nil
}

func (s *Postgres) UpsertSummary(ctx context.Context, r route.UserRoute) (route.UserRoute, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO user_routes (id, session_id, user_id, started_at, ended_at, total_distance_m, duration_sec, points_count, average_speed_mps, max_speed_mps)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (session_id, user_id) DO UPDATE
		SET started_at=EXCLUDED.started_at, ended_at=EXCLUDED.ended_at,
		    total_distance_m=EXCLUDED.total_distance_m, duration_sec=EXCLUDED.duration_sec,
		    points_count=EXCLUDED.points_count, average_speed_mps=EXCLUDED.average_speed_mps,
		    max_speed_mps=EXCLUDED.max_speed_mps, updated_at=now()
		WHERE user_routes.ended_at IS NULL
		RETURNING id, created_at, updated_at
	`, r.ID, r.SessionID, r.UserID, r.StartedAt, r.EndedAt, r.TotalDistance, r.Duration, r.PointsCount, r.AverageSpeed, r.MaxSpeed)
	if err := row.Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		// The conflict guard skipped the update: the stored route is closed.
		if errors.Is(err, pgx.ErrNoRows) {
			return route.UserRoute{}, ErrRouteFinalized
		}
		return route.UserRoute{}, fmt.Errorf("upsert route summary: %w", err)
	}
	return r, nil
}

func (s *Postgres) LoadRoute(ctx context.Context, sessionID, userID string) (route.UserRoute, []route.Point, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, session_id, user_id, started_at, ended_at, total_distance_m, duration_sec, points_count, average_speed_mps, max_speed_mps, created_at, updated_at
		FROM user_routes WHERE session_id=$1 AND user_id=$2
	`, sessionID, userID)
	r, err := scanRoute(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return route.UserRoute{}, nil, ErrRouteNotFound
		}
		return route.UserRoute{}, nil, fmt.Errorf("load route: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT latitude, longitude, altitude_m, speed_mps, horizontal_accuracy_m, recorded_at
		FROM route_points WHERE route_id=$1
		ORDER BY id
	`, r.ID)
	if err != nil {
		return route.UserRoute{}, nil, fmt.Errorf("load route points: %w", err)
	}
	defer rows.Close()

	var points []route.Point
	for rows.Next() {
		var p route.Point
		var speed *float64
		if err := rows.Scan(&p.Latitude, &p.Longitude, &p.Altitude, &speed, &p.HorizontalAccuracy, &p.Timestamp); err != nil {
			return route.UserRoute{}, nil, err
		}
		p.Speed = -1
		if speed != nil {
			p.Speed = *speed
		}
		points = append(points, p)
	}
	return r, points, rows.Err()
}

func (s *Postgres) LoadAllRoutes(ctx context.Context, sessionID string) (map[string][]route.Coordinate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT r.user_id, p.latitude, p.longitude
		FROM route_points p
		JOIN user_routes r ON r.id = p.route_id
		WHERE r.session_id=$1
		ORDER BY r.user_id, p.id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session routes: %w", err)
	}
	defer rows.Close()

	out := map[string][]route.Coordinate{}
	for rows.Next() {
		var userID string
		var c route.Coordinate
		if err := rows.Scan(&userID, &c.Latitude, &c.Longitude); err != nil {
			return nil, err
		}
		out[userID] = append(out[userID], c)
	}
	return out, rows.Err()
}

func (s *Postgres) ListRoutes(ctx context.Context, sessionID string) ([]route.UserRoute, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, user_id, started_at, ended_at, total_distance_m, duration_sec, points_count, average_speed_mps, max_speed_mps, created_at, updated_at
		FROM user_routes WHERE session_id=$1
		ORDER BY started_at
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer rows.Close()

	var routes []route.UserRoute
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

func scanRoute(row pgx.Row) (route.UserRoute, error) {
	var r route.UserRoute
	var endedAt *time.Time
	err := row.Scan(&r.ID, &r.SessionID, &r.UserID, &r.StartedAt, &endedAt, &r.TotalDistance, &r.Duration,
		&r.PointsCount, &r.AverageSpeed, &r.MaxSpeed, &r.CreatedAt, &r.UpdatedAt)
	r.EndedAt = endedAt
	return r, err
}

func speedArg(p route.Point) *float64 {
	if !p.HasSpeed() {
		return nil
	}
	speed := p.Speed
	return &speed
}
