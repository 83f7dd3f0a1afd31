package export

import (
	"context"
	"fmt"
	"time"

	"backend-squadrun/internal/db"

	"github.com/google/uuid"
)

type Record struct {
	ID        string    `json:"id"`
	RouteID   string    `json:"route_id"`
	Exporter  string    `json:"exporter"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger remembers where each route was exported to.
type Ledger struct {
	db db.Querier
}

func NewLedger(db db.Querier) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Save(ctx context.Context, routeID, exporter, location string) (string, error) {
	id := uuid.NewString()
	_, err := l.db.Exec(ctx, `
		INSERT INTO route_exports (id, route_id, exporter, location)
		VALUES ($1,$2,$3,$4)
	`, id, routeID, exporter, location)
	if err != nil {
		return "", fmt.Errorf("save export record: %w", err)
	}
	return id, nil
}

func (l *Ledger) List(ctx context.Context, routeID string) ([]Record, error) {
	rows, err := l.db.Query(ctx, `
		SELECT id, route_id, exporter, location, created_at
		FROM route_exports WHERE route_id=$1
		ORDER BY created_at
	`, routeID)
	if err != nil {
		return nil, fmt.Errorf("list export records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.RouteID, &r.Exporter, &r.Location, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
