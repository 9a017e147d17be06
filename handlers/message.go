// handlers/message.go
package handlers

import (
	"errors"

	"token-pool-system/middleware"
	"token-pool-system/services"

	"github.com/gofiber/fiber/v2"
)

type messageUpdateRequest struct {
	Message    string `json:"message"`
	MessageEn  string `json:"messageEn"`
	ShowAlways bool   `json:"showAlways"`
}

func SetupMessageRoutes(app *fiber.App, messages *services.MessageService) {
	app.Get("/api/message", func(c *fiber.Ctx) error {
		cfg, err := messages.Get()
		if err != nil {
			return mapTokenError(c, err, "An unknown error occurred")
		}
		return c.JSON(fiber.Map{
			"message":    cfg.Message,
			"timestamp":  cfg.MessageTimestamp,
			"showAlways": cfg.MessageShowAlways,
		})
	})

	admin := app.Group("/api/admin", middleware.AdminAuthMiddleware())

	admin.Get("/message", func(c *fiber.Ctx) error {
		cfg, err := messages.Get()
		if err != nil {
			return mapTokenError(c, err, "An unknown error occurred")
		}
		return c.JSON(fiber.Map{
			"message":    cfg.Message,
			"messageEn":  cfg.MessageEn,
			"timestamp":  cfg.MessageTimestamp,
			"showAlways": cfg.MessageShowAlways,
		})
	})

	admin.Put("/message", func(c *fiber.Ctx) error {
		var body messageUpdateRequest
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("invalid request body")
		}
		if err := messages.Update(body.Message, body.MessageEn, body.ShowAlways); err != nil {
			if errors.Is(err, services.ErrConfigMissing) {
				return c.Status(fiber.StatusInternalServerError).SendString("Configuration not found")
			}
			return mapTokenError(c, err, "An unknown error occurred")
		}
		return c.JSON(fiber.Map{"success": true})
	})
}
