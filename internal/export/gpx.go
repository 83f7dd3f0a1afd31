package export

import (
	"fmt"
	"io"

	"backend-squadrun/internal/route"

	"github.com/tkrajina/gpxgo/gpx"
)

const gpxCreator = "squadrun"

// buildGPX maps a finalized route onto a single-segment track.
func buildGPX(f route.Finalized) *gpx.GPX {
	started := f.Route.StartedAt.UTC()
	segment := gpx.GPXTrackSegment{Points: make([]gpx.GPXPoint, 0, len(f.Points))}
	for _, p := range f.Points {
		pt := gpx.GPXPoint{
			Point:     gpx.Point{Latitude: p.Latitude, Longitude: p.Longitude},
			Timestamp: p.Timestamp.UTC(),
		}
		if p.Altitude != nil {
			pt.Elevation.SetValue(*p.Altitude)
		}
		segment.Points = append(segment.Points, pt)
	}

	return &gpx.GPX{
		Version: "1.1",
		Creator: gpxCreator,
		Time:    &started,
		Tracks: []gpx.GPXTrack{{
			Name:     f.Route.SessionID + "/" + f.Route.UserID,
			Segments: []gpx.GPXTrackSegment{segment},
		}},
	}
}

// WriteGPX encodes a finalized route as a GPX 1.1 track.
func WriteGPX(w io.Writer, f route.Finalized) error {
	body, err := buildGPX(f).ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return fmt.Errorf("encode gpx: %w", err)
	}
	_, err = w.Write(body)
	return err
}
