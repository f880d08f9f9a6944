package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/orion-hotel/offline-hub/internal/logging"
	"github.com/orion-hotel/offline-hub/internal/metrics"
	"github.com/orion-hotel/offline-hub/internal/network"
	"github.com/orion-hotel/offline-hub/internal/worker"
)

// interceptor 把 Fiber 请求交给当前 controller；未被接管的请求直接透传到网络。
type interceptor struct {
	logger       *logrus.Logger
	registration *worker.Registration
	upstreams    *Upstreams
	network      worker.Fetcher
	metrics      *metrics.Collector
}

// Handle 处理一次被拦截的请求。
func (h *interceptor) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := RequestID(c)
	req := h.buildRequest(c)

	ctx := requestContext(c)
	if w := h.registration.Controller(); w != nil {
		resp, handled := h.invokeWorker(ctx, w, req, requestID)
		if handled {
			return writeResponse(c, resp)
		}
	}
	return h.passthrough(c, ctx, req, requestID, started)
}

// invokeWorker 调用 worker.Fetch 并吞掉 panic，panic 时按未接管处理。
func (h *interceptor) invokeWorker(ctx context.Context, w *worker.Worker, req *worker.Request, requestID string) (resp *worker.Response, handled bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.WithFields(logrus.Fields{
				"action":     "intercept",
				"url":        req.URL.String(),
				"worker":     w.ID(),
				"request_id": requestID,
				"error":      "worker_panic",
			}).Error(fmt.Sprintf("panic: %v", r))
			resp, handled = nil, false
		}
	}()
	return w.Fetch(ctx, req)
}

// passthrough 模拟未安装 worker 时的浏览器默认行为：原样请求网络。
func (h *interceptor) passthrough(c fiber.Ctx, ctx context.Context, req *worker.Request, requestID string, started time.Time) error {
	resp, err := h.network.Fetch(ctx, req)
	elapsed := time.Since(started)
	fields := logging.RequestFields(req.Method, req.URL.String(), string(req.Mode), string(worker.StrategyBypass), string(worker.SourcePassthrough))
	fields["request_id"] = requestID
	fields["elapsed_ms"] = elapsed.Milliseconds()

	if err != nil {
		h.metrics.ObserveFetch(string(worker.StrategyBypass), "error", elapsed)
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Warn("passthrough_failed")
		c.Set(SourceHeader, string(worker.SourcePassthrough))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_failed"})
	}

	h.metrics.ObserveFetch(string(worker.StrategyBypass), string(worker.SourcePassthrough), elapsed)
	fields["status"] = resp.Status
	h.logger.WithFields(fields).Debug("passthrough")
	resp.Source = worker.SourcePassthrough
	return writeResponse(c, resp)
}

// buildRequest 把 Fiber 上下文转换为 worker.Request。Host 等于 Domain 时映射到 Origin。
func (h *interceptor) buildRequest(c fiber.Ctx) *worker.Request {
	uri := c.Request().URI()
	scheme := strings.TrimSpace(c.Get("X-Forwarded-Proto"))
	if scheme == "" {
		scheme = c.Scheme()
	}
	target := h.upstreams.Resolve(getHostHeader(c), scheme, string(uri.Path()), string(uri.QueryString()))

	return &worker.Request{
		Method: c.Method(),
		URL:    target,
		Mode:   worker.Mode(strings.ToLower(strings.TrimSpace(c.Get("Sec-Fetch-Mode")))),
		Header: fiberHeadersAsHTTP(c),
		Body:   append([]byte(nil), c.Body()...),
	}
}

// writeResponse 写回 worker.Response，并附带 X-Offline-Hub-Source。
func writeResponse(c fiber.Ctx, resp *worker.Response) error {
	copyResponseHeaders(c, resp.Header)
	if resp.Source != "" {
		c.Set(SourceHeader, string(resp.Source))
	}
	return c.Status(resp.Status).Send(resp.Body)
}

func getHostHeader(c fiber.Ctx) string {
	if raw := c.Request().Header.Peek(fiber.HeaderHost); len(raw) > 0 {
		return string(raw)
	}
	return c.Hostname()
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if network.IsHopByHopHeader(key) || strings.EqualFold(key, fiber.HeaderContentLength) {
			continue
		}
		for i, value := range values {
			if i == 0 {
				c.Set(key, value)
				continue
			}
			c.Append(key, value)
		}
	}
}
