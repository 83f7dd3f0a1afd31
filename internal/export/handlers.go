package export

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(r fiber.Router, ledger *Ledger) {
	r.Get("/routes/:routeID", func(c *fiber.Ctx) error {
		records, err := ledger.List(c.UserContext(), c.Params("routeID"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(records)
	})
}
