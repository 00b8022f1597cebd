package httpserver

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"datacache/internal/telemetry"
)

// instrument records request count and latency per matched route.
func instrument(m *telemetry.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := c.Route().Path
		m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.RequestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		return err
	}
}
