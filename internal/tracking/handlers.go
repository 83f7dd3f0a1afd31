package tracking

import (
	"context"
	"errors"
	"time"

	"backend-squadrun/internal/route"
	"backend-squadrun/internal/store"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/participants/:userID/bind", func(c *fiber.Ctx) error {
		var req BindRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.SessionID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "session_id required")
		}
		status, err := svc.Bind(c.UserContext(), c.Params("userID"), req.SessionID)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(status)
	})

	r.Delete("/participants/:userID/bind", func(c *fiber.Ctx) error {
		finalized, err := svc.Unbind(c.UserContext(), c.Params("userID"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(finalized)
	})

	r.Post("/participants/:userID/retry", func(c *fiber.Ctx) error {
		current, err := svc.Retry(c.UserContext(), c.Params("userID"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(current)
	})

	r.Post("/participants/:userID/points", func(c *fiber.Ctx) error {
		var req PointRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		accepted, current, err := svc.Record(c.UserContext(), c.Params("userID"), req.Point(time.Now()))
		if err != nil && !accepted {
			return httpError(err)
		}
		res := PointResult{Accepted: accepted, Route: current}
		if err != nil {
			// Recorded, but the flush behind it failed and will be retried.
			res.Error = err.Error()
			return c.Status(fiber.StatusAccepted).JSON(res)
		}
		if !accepted {
			return c.Status(fiber.StatusAccepted).JSON(res)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})

	r.Get("/participants/:userID/status", func(c *fiber.Ctx) error {
		return c.JSON(svc.Status(c.Params("userID")))
	})

	r.Get("/sessions/:id/routes", func(c *fiber.Ctx) error {
		summaries, err := svc.Routes(c.UserContext(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(summaries)
	})

	r.Get("/sessions/:id/routes/:userID", func(c *fiber.Ctx) error {
		detail, err := svc.Route(c.UserContext(), c.Params("id"), c.Params("userID"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(detail)
	})

	r.Get("/sessions/:id/replay", func(c *fiber.Ctx) error {
		polylines, err := svc.Replay(c.UserContext(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(polylines)
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, store.ErrRouteNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, route.ErrInvalidState), errors.Is(err, route.ErrNoActiveRoute):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, route.ErrTransientIO), errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
