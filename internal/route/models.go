package route

import "time"

// Point is a single GPS sample. Speed is in meters/second; a negative value
// means the device did not report one.
type Point struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Altitude           *float64  `json:"altitude,omitempty"`
	Speed              float64   `json:"speed"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
	Timestamp          time.Time `json:"timestamp"`
}

func (p Point) HasSpeed() bool {
	return p.Speed >= 0
}

func (p Point) Coordinate() Coordinate {
	return Coordinate{Latitude: p.Latitude, Longitude: p.Longitude}
}

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// UserRoute is one participant's recorded path for one session. It is
// mutable until EndedAt is set.
type UserRoute struct {
	ID            string     `json:"id"`
	SessionID     string     `json:"session_id"`
	UserID        string     `json:"user_id"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	TotalDistance float64    `json:"total_distance_m"`
	Duration      float64    `json:"duration_sec"`
	PointsCount   int        `json:"points_count"`
	AverageSpeed  float64    `json:"average_speed_mps"`
	MaxSpeed      float64    `json:"max_speed_mps"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (r UserRoute) Finalized() bool {
	return r.EndedAt != nil
}

// Summary is the listing projection of a UserRoute.
type Summary struct {
	RouteID           string     `json:"route_id"`
	SessionID         string     `json:"session_id"`
	UserID            string     `json:"user_id"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	DistanceM         float64    `json:"distance_m"`
	DurationSec       float64    `json:"duration_sec"`
	PointsCount       int        `json:"points_count"`
	AverageSpeedMps   float64    `json:"average_speed_mps"`
	MaxSpeedMps       float64    `json:"max_speed_mps"`
	Pace              string     `json:"pace"`
	FormattedDuration string     `json:"formatted_duration"`
}

// Finalized is the read-only snapshot handed to exporters.
type Finalized struct {
	Route  UserRoute `json:"route"`
	Points []Point   `json:"points"`
}
