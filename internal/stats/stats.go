// Package stats derives run statistics from route points. Every function is
// pure so the recorder's live path and historical recomputation share the
// same arithmetic.
package stats

import (
	"fmt"
	"math"
	"time"

	"backend-squadrun/internal/route"
	"backend-squadrun/internal/shared/geo"
)

const noPace = "--:--"

// Segment returns the haversine distance between two consecutive points and
// the speed implied by it.
func Segment(prev, next route.Point) (meters, speed float64) {
	meters = geo.HaversineM(prev.Latitude, prev.Longitude, next.Latitude, next.Longitude)
	dt := next.Timestamp.Sub(prev.Timestamp).Seconds()
	if dt > 0 {
		speed = meters / dt
	}
	return meters, speed
}

// Distance sums the pairwise distances of an ordered point sequence.
func Distance(points []route.Point) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		d, _ := Segment(points[i-1], points[i])
		total += d
	}
	return total
}

func AverageSpeed(distance, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	return distance / duration
}

// Accumulate folds one accepted point into the route. prev is nil for the
// first point of a route.
func Accumulate(r route.UserRoute, prev *route.Point, next route.Point, now time.Time) route.UserRoute {
	r.PointsCount++

	speed := 0.0
	if next.HasSpeed() {
		speed = next.Speed
	}
	if prev != nil {
		d, derived := Segment(*prev, next)
		r.TotalDistance += d
		if !next.HasSpeed() {
			speed = derived
		}
	}
	r.MaxSpeed = math.Max(r.MaxSpeed, speed)

	r.Duration = math.Max(0, now.Sub(r.StartedAt).Seconds())
	r.AverageSpeed = AverageSpeed(r.TotalDistance, r.Duration)
	return r
}

// Recompute rebuilds the statistics of r from its full persisted point
// sequence. Duration runs to EndedAt when the route is finalized, otherwise
// to the last point.
func Recompute(r route.UserRoute, points []route.Point) route.UserRoute {
	r.PointsCount = 0
	r.TotalDistance = 0
	r.MaxSpeed = 0
	r.Duration = 0
	r.AverageSpeed = 0

	for i := range points {
		var prev *route.Point
		if i > 0 {
			prev = &points[i-1]
		}
		r = Accumulate(r, prev, points[i], points[i].Timestamp)
	}

	if r.EndedAt != nil {
		r.Duration = math.Max(0, r.EndedAt.Sub(r.StartedAt).Seconds())
		r.AverageSpeed = AverageSpeed(r.TotalDistance, r.Duration)
	}
	return r
}

// Pace formats minutes per kilometer as M:SS.
func Pace(averageSpeed float64) string {
	if averageSpeed <= 0 || math.IsNaN(averageSpeed) || math.IsInf(averageSpeed, 0) {
		return noPace
	}
	secondsPerKm := int(math.Round(1000 / averageSpeed))
	return fmt.Sprintf("%d:%02d", secondsPerKm/60, secondsPerKm%60)
}

// FormatDuration renders HH:MM:SS from one hour on, MM:SS below it.
func FormatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h >= 1 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func Summarize(r route.UserRoute) route.Summary {
	return route.Summary{
		RouteID:           r.ID,
		SessionID:         r.SessionID,
		UserID:            r.UserID,
		StartedAt:         r.StartedAt,
		EndedAt:           r.EndedAt,
		DistanceM:         r.TotalDistance,
		DurationSec:       r.Duration,
		PointsCount:       r.PointsCount,
		AverageSpeedMps:   r.AverageSpeed,
		MaxSpeedMps:       r.MaxSpeed,
		Pace:              Pace(r.AverageSpeed),
		FormattedDuration: FormatDuration(r.Duration),
	}
}
