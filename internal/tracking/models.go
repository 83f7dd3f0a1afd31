package tracking

import (
	"time"

	"backend-squadrun/internal/route"
)

type BindRequest struct {
	SessionID string `json:"session_id"`
}

// PointRequest is a raw device sample. Speed and altitude are optional;
// a missing timestamp means "now".
type PointRequest struct {
	Latitude           float64    `json:"latitude"`
	Longitude          float64    `json:"longitude"`
	Altitude           *float64   `json:"altitude"`
	Speed              *float64   `json:"speed"`
	HorizontalAccuracy float64    `json:"horizontal_accuracy"`
	Timestamp          *time.Time `json:"timestamp"`
}

func (p PointRequest) Point(now time.Time) route.Point {
	out := route.Point{
		Latitude:           p.Latitude,
		Longitude:          p.Longitude,
		Altitude:           p.Altitude,
		Speed:              -1,
		HorizontalAccuracy: p.HorizontalAccuracy,
		Timestamp:          now,
	}
	if p.Speed != nil && *p.Speed >= 0 {
		out.Speed = *p.Speed
	}
	if p.Timestamp != nil {
		out.Timestamp = *p.Timestamp
	}
	return out
}

type PointResult struct {
	Accepted bool            `json:"accepted"`
	Route    route.UserRoute `json:"route"`
	Error    string          `json:"error,omitempty"`
}

type RouteDetail struct {
	Route   route.UserRoute `json:"route"`
	Summary route.Summary   `json:"summary"`
	Points  []route.Point   `json:"points"`
}
