package httpserver

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"datacache/pkg/cfg"
)

// RegisterRoutes wires the service endpoints.
func RegisterRoutes(app *fiber.App, deps Deps) {
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/data", dataHandler(deps.Data, deps.Logger))
	app.Get("/status", statusHandler(deps.Data))

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if cfg.IsDev() {
		app.Get("/debug/config", func(c *fiber.Ctx) error { return c.JSON(deps.Config) })
	}
}
