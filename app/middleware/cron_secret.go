package middleware

import (
	"crypto/subtle"
	"log"

	"github.com/amirphl/gymdesk/app/dto"
	"github.com/amirphl/gymdesk/config"
	"github.com/gofiber/fiber/v3"
)

// CronSecretHeader carries the shared secret of the external scheduler
const CronSecretHeader = "x-cron-secret"

// CronSecret guards the trigger endpoints. An empty secret rejects every call
// unless unauthenticated triggering was explicitly allowed.
func CronSecret(cfg config.CronConfig) fiber.Handler {
	if cfg.Secret == "" && cfg.AllowUnauthenticated {
		log.Println("WARNING: cron endpoints accept unauthenticated requests")
	}

	return func(c fiber.Ctx) error {
		if cfg.Secret == "" {
			if cfg.AllowUnauthenticated {
				return c.Next()
			}
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Cron secret is not configured",
				Error:   dto.ErrorDetail{Code: "CRON_SECRET_NOT_CONFIGURED"},
			})
		}

		provided := c.Get(CronSecretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(cfg.Secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Unauthorized",
				Error:   dto.ErrorDetail{Code: "INVALID_CRON_SECRET"},
			})
		}
		return c.Next()
	}
}
