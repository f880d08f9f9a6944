package routes

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orion-hotel/offline-hub/internal/cache"
	"github.com/orion-hotel/offline-hub/internal/metrics"
	"github.com/orion-hotel/offline-hub/internal/version"
	"github.com/orion-hotel/offline-hub/internal/worker"
)

// DiagnosticsOptions 描述诊断接口依赖。Metrics 为空时不挂载 /-/metrics。
type DiagnosticsOptions struct {
	Registration *worker.Registration
	Caches       cache.Storage
	Metrics      *metrics.Collector
}

// RegisterDiagnostics 暴露 /-/status、/-/caches 与 /-/metrics，供 SRE 查看 worker 与缓存状态。
func RegisterDiagnostics(app *fiber.App, opts DiagnosticsOptions) {
	if app == nil || opts.Registration == nil || opts.Caches == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		names, err := opts.Caches.Keys(requestContext(c))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_list_failed"})
		}
		return c.JSON(statusPayload{
			Version:      version.Full(),
			Registration: opts.Registration.Snapshot(),
			Caches:       names,
		})
	})

	app.Get("/-/caches", func(c fiber.Ctx) error {
		summaries, err := summarizeCaches(requestContext(c), opts.Caches)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_list_failed"})
		}
		return c.JSON(fiber.Map{"caches": summaries})
	})

	app.Get("/-/caches/:name", func(c fiber.Ctx) error {
		name := strings.TrimSpace(c.Params("name"))
		ctx := requestContext(c)
		exists, err := opts.Caches.Has(ctx, name)
		switch {
		case errors.Is(err, cache.ErrInvalidName):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_cache_name"})
		case err != nil:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_lookup_failed"})
		case !exists:
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "cache_not_found"})
		}
		store, err := opts.Caches.Open(ctx, name)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_open_failed"})
		}
		entries, err := store.Entries(ctx)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_list_failed"})
		}
		return c.JSON(fiber.Map{"name": name, "entries": entries})
	})

	if opts.Metrics != nil {
		handler := promhttp.HandlerFor(opts.Metrics.Registry(), promhttp.HandlerOpts{})
		app.Get("/-/metrics", adaptor.HTTPHandler(handler))
	}
}

type statusPayload struct {
	Version      string          `json:"version"`
	Registration worker.Snapshot `json:"registration"`
	Caches       []string        `json:"caches"`
}

type cacheSummary struct {
	Name      string `json:"name"`
	Entries   int    `json:"entries"`
	SizeBytes int64  `json:"size_bytes"`
}

func summarizeCaches(ctx context.Context, storage cache.Storage) ([]cacheSummary, error) {
	names, err := storage.Keys(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]cacheSummary, 0, len(names))
	for _, name := range names {
		store, err := storage.Open(ctx, name)
		if err != nil {
			return nil, err
		}
		entries, err := store.Entries(ctx)
		if err != nil {
			return nil, err
		}
		summary := cacheSummary{Name: name, Entries: len(entries)}
		for _, entry := range entries {
			summary.SizeBytes += entry.SizeBytes
		}
		result = append(result, summary)
	}
	return result, nil
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
