package squad

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/", func(c *fiber.Ctx) error {
		var req Squad
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Name == "" || req.CreatedBy == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name and created_by required")
		}
		sq, err := svc.CreateSquad(c.UserContext(), req)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(sq)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		sq, err := svc.GetSquad(c.UserContext(), c.Params("id"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(sq)
	})

	r.Post("/:id/members", func(c *fiber.Ctx) error {
		var body struct {
			UserID string `json:"user_id"`
			Role   string `json:"role"`
		}
		if err := c.BodyParser(&body); err != nil || body.UserID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "user_id required")
		}
		member, err := svc.AddMember(c.UserContext(), c.Params("id"), body.UserID, body.Role)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(member)
	})

	r.Get("/:id/members", func(c *fiber.Ctx) error {
		members, err := svc.Members(c.UserContext(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(members)
	})

	r.Post("/:id/sessions", func(c *fiber.Ctx) error {
		var body struct {
			StartedBy string `json:"started_by"`
		}
		if err := c.BodyParser(&body); err != nil || body.StartedBy == "" {
			return fiber.NewError(fiber.StatusBadRequest, "started_by required")
		}
		rs, err := svc.StartSession(c.UserContext(), c.Params("id"), body.StartedBy)
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(rs)
	})

	r.Post("/sessions/:sessionID/end", func(c *fiber.Ctx) error {
		res, err := svc.EndSession(c.UserContext(), c.Params("sessionID"))
		if err != nil {
			return httpError(err)
		}
		return c.JSON(res)
	})
}

func httpError(err error) error {
	if errors.Is(err, ErrSquadNotFound) || errors.Is(err, ErrSessionNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
