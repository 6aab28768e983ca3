package middleware

import (
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/auth"
	"github.com/fekuna/omnipos-inventory-service/internal/logger"
	"github.com/fekuna/omnipos-inventory-service/internal/traffic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
)

// RequestContext is the fiber counterpart of ContextInterceptor.
func RequestContext(monitor *traffic.Monitor, log logger.ZapLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		done := monitor.Begin()
		defer done()

		c.SetUserContext(auth.WithUser(c.UserContext(), auth.UserContext{
			UserID:    utils.CopyString(c.Get(auth.HeaderUserID)),
			SessionID: utils.CopyString(c.Get(auth.HeaderSessionID)),
		}))

		start := time.Now()
		err := c.Next()

		log.Debug("http request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("duration", time.Since(start)))
		return err
	}
}
