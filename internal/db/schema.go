package db

import "context"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS squads (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS squad_members (
		squad_id TEXT NOT NULL REFERENCES squads(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (squad_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS run_sessions (
		id TEXT PRIMARY KEY,
		squad_id TEXT NOT NULL REFERENCES squads(id) ON DELETE CASCADE,
		started_by TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		ended_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS user_routes (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		total_distance_m DOUBLE PRECISION NOT NULL DEFAULT 0,
		duration_sec DOUBLE PRECISION NOT NULL DEFAULT 0,
		points_count INTEGER NOT NULL DEFAULT 0,
		average_speed_mps DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_speed_mps DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (session_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS route_points (
		id BIGSERIAL PRIMARY KEY,
		route_id TEXT NOT NULL REFERENCES user_routes(id),
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		altitude_m DOUBLE PRECISION,
		speed_mps DOUBLE PRECISION,
		horizontal_accuracy_m DOUBLE PRECISION NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS route_points_route_id_idx ON route_points (route_id, id)`,
	`CREATE TABLE IF NOT EXISTS route_exports (
		id TEXT PRIMARY KEY,
		route_id TEXT NOT NULL,
		exporter TEXT NOT NULL,
		location TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the tables used by the service if they do not exist.
func Migrate(ctx context.Context, q Querier) error {
	for _, stmt := range schema {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
