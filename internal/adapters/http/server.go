// Package http is the fiber front end: the GitHub webhook, build logs,
// health and metrics.
package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// bodyLimit matches GitHub's maximum webhook payload.
const bodyLimit = 25 * 1024 * 1024

type AppOptions struct {
	Webhook  *WebhookHandler
	Logs     *LogHandler
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewApp builds the fiber application with every route registered.
func NewApp(opts AppOptions) *fiber.App {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "github-snap-builder",
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})
	app.Use(recover.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	if opts.Webhook != nil {
		app.Post("/event_handler", opts.Webhook.HandleEvent)
	}
	if opts.Logs != nil {
		app.Get("/logs/*", opts.Logs.GetLog)
	}
	if opts.Gatherer != nil {
		app.Get("/metrics", MetricsHandler(opts.Gatherer))
	}
	return app
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var pErr *pipelineError
		if errors.As(err, &pErr) {
			logger.Error("pipeline failed", zap.Error(pErr.err))
			return c.SendStatus(fiber.StatusOK)
		}

		code := fiber.StatusInternalServerError
		var fErr *fiber.Error
		if errors.As(err, &fErr) {
			code = fErr.Code
		} else {
			logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		}
		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
