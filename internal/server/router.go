package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orion-hotel/offline-hub/internal/metrics"
	"github.com/orion-hotel/offline-hub/internal/worker"
)

// SourceHeader 标记响应来源（cache/network/fallback/offline/passthrough）。
const SourceHeader = "X-Offline-Hub-Source"

// AppOptions 描述构建 Fiber 应用所需的依赖。
type AppOptions struct {
	Logger        *logrus.Logger
	Registration  *worker.Registration
	Upstreams     *Upstreams
	Network       worker.Fetcher
	Notifications *NotificationCenter
	Metrics       *metrics.Collector
}

const contextKeyRequestID = "_offlinehub_request_id"

// NewApp builds the Fiber application: request IDs, panic recovery, control
// endpoints under /-/ and the catch-all interception handler.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registration == nil {
		return nil, errors.New("registration is required")
	}
	if opts.Upstreams == nil {
		return nil, errors.New("upstreams are required")
	}
	if opts.Network == nil {
		return nil, errors.New("network fetcher is required")
	}
	if opts.Notifications == nil {
		opts.Notifications = NewNotificationCenter(opts.Logger)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		BodyLimit:     16 << 20,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	registerControlRoutes(app, opts)

	interceptor := &interceptor{
		logger:       opts.Logger,
		registration: opts.Registration,
		upstreams:    opts.Upstreams,
		network:      opts.Network,
		metrics:      opts.Metrics,
	}
	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return interceptor.Handle(c)
	})

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID 并写入响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
