package live

import (
	"context"
	"encoding/json"
	"time"

	"backend-squadrun/internal/route"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type locationFrame struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Timestamp *time.Time `json:"timestamp"`
}

func RegisterRoutes(r fiber.Router, ch *Channel) {
	r.Get("/ws/:sessionID/:participantID", websocket.New(func(c *websocket.Conn) {
		sessionID := c.Params("sessionID")
		participantID := c.Params("participantID")

		sub := ch.Subscribe(sessionID, participantID)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for loc := range sub.Updates() {
				if err := c.WriteJSON(loc); err != nil {
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			var frame locationFrame
			if err := json.Unmarshal(msg, &frame); err != nil {
				ch.log.WithError(err).WithField("participant_id", participantID).Debug("bad location frame")
				continue
			}
			at := time.Now()
			if frame.Timestamp != nil {
				at = *frame.Timestamp
			}
			ch.Publish(context.Background(), sessionID, participantID,
				route.Coordinate{Latitude: frame.Latitude, Longitude: frame.Longitude}, at)
		}

		ch.Unsubscribe(sub)
		<-done
	}))
}
