package api

import (
	"github.com/gofiber/fiber/v2"

	"ragchat/config"
	"ragchat/types"
)

type CheckHandler struct{}

func NewCheckHandler() *CheckHandler {
	return &CheckHandler{}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

func (h CheckHandler) HandleRoot(c *fiber.Ctx) error {
	return c.JSON(types.HealthResponse{
		Status:  types.StatusHealthy,
		Message: config.AppName + " is running",
		Version: config.AppVersion,
	})
}

func (h CheckHandler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(types.HealthResponse{
		Status:  types.StatusHealthy,
		Message: "All services are operational",
		Version: config.AppVersion,
	})
}
