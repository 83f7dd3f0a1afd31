package stats

import (
	"testing"
	"time"

	"backend-squadrun/internal/route"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

func threePoints() []route.Point {
	return []route.Point{
		{Latitude: 0, Longitude: 0, Speed: -1, HorizontalAccuracy: 5, Timestamp: t0},
		{Latitude: 0, Longitude: 0.001, Speed: -1, HorizontalAccuracy: 5, Timestamp: t0.Add(10 * time.Second)},
		{Latitude: 0, Longitude: 0.002, Speed: -1, HorizontalAccuracy: 5, Timestamp: t0.Add(20 * time.Second)},
	}
}

func TestDistance(t *testing.T) {
	assert.InDelta(t, 222.39, Distance(threePoints()), 0.1)
	assert.Zero(t, Distance(nil))
	assert.Zero(t, Distance(threePoints()[:1]))
}

func TestSegmentDerivesSpeed(t *testing.T) {
	pts := threePoints()
	meters, speed := Segment(pts[0], pts[1])
	assert.InDelta(t, 111.19, meters, 0.05)
	assert.InDelta(t, 11.119, speed, 0.01)

	same := pts[0]
	_, speed = Segment(pts[0], same)
	assert.Zero(t, speed)
}

func TestAccumulateScenario(t *testing.T) {
	r := route.UserRoute{StartedAt: t0}
	pts := threePoints()
	for i := range pts {
		var prev *route.Point
		if i > 0 {
			prev = &pts[i-1]
		}
		r = Accumulate(r, prev, pts[i], pts[i].Timestamp)
	}

	assert.Equal(t, 3, r.PointsCount)
	assert.InDelta(t, 222.39, r.TotalDistance, 0.1)
	assert.InDelta(t, 20, r.Duration, 1e-9)
	assert.InDelta(t, 11.12, r.AverageSpeed, 0.01)
	assert.InDelta(t, 11.12, r.MaxSpeed, 0.01)
}

func TestAccumulatePrefersReportedSpeed(t *testing.T) {
	pts := threePoints()
	pts[1].Speed = 3.5

	r := Accumulate(route.UserRoute{StartedAt: t0}, nil, pts[0], pts[0].Timestamp)
	r = Accumulate(r, &pts[0], pts[1], pts[1].Timestamp)
	assert.InDelta(t, 3.5, r.MaxSpeed, 1e-9)
}

func TestRecomputeMatchesIncremental(t *testing.T) {
	pts := threePoints()
	live := route.UserRoute{ID: "r1", StartedAt: t0}
	for i := range pts {
		var prev *route.Point
		if i > 0 {
			prev = &pts[i-1]
		}
		live = Accumulate(live, prev, pts[i], pts[i].Timestamp)
	}

	bulk := Recompute(route.UserRoute{ID: "r1", StartedAt: t0, PointsCount: 99}, pts)
	assert.Equal(t, live.PointsCount, bulk.PointsCount)
	assert.InDelta(t, live.TotalDistance, bulk.TotalDistance, 1e-6)
	assert.InDelta(t, live.Duration, bulk.Duration, 1e-6)
	assert.InDelta(t, live.AverageSpeed, bulk.AverageSpeed, 1e-6)
	assert.InDelta(t, live.MaxSpeed, bulk.MaxSpeed, 1e-6)
}

func TestRecomputeUsesEndedAt(t *testing.T) {
	end := t0.Add(40 * time.Second)
	r := Recompute(route.UserRoute{StartedAt: t0, EndedAt: &end}, threePoints())
	assert.InDelta(t, 40, r.Duration, 1e-9)
	assert.InDelta(t, r.TotalDistance/40, r.AverageSpeed, 1e-9)
}

func TestPace(t *testing.T) {
	assert.Equal(t, "--:--", Pace(0))
	assert.Equal(t, "--:--", Pace(-2))
	assert.Equal(t, "6:40", Pace(2.5))
	assert.Equal(t, "1:30", Pace(11.12))
	assert.Equal(t, "5:00", Pace(1000.0/300.0))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00", FormatDuration(0))
	assert.Equal(t, "01:05", FormatDuration(65))
	assert.Equal(t, "59:59", FormatDuration(3599))
	assert.Equal(t, "01:00:00", FormatDuration(3600))
	assert.Equal(t, "01:02:05", FormatDuration(3725.7))
}

func TestSummarize(t *testing.T) {
	s := Summarize(route.UserRoute{ID: "r1", SessionID: "s1", UserID: "u1", TotalDistance: 1000, Duration: 300, AverageSpeed: 1000.0 / 300.0, PointsCount: 4})
	require.Equal(t, "r1", s.RouteID)
	assert.Equal(t, "5:00", s.Pace)
	assert.Equal(t, "05:00", s.FormattedDuration)
	assert.Equal(t, 4, s.PointsCount)
}
