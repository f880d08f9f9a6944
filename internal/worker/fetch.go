package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orion-hotel/offline-hub/internal/cache"
	"github.com/orion-hotel/offline-hub/internal/logging"
)

// degradedMessage 是 API 不可用时返回给前端的固定提示。
const degradedMessage = "Service temporarily unavailable. Please try again."

type degradedPayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Offline bool   `json:"offline"`
}

var degradedBody = mustJSON(degradedPayload{Message: degradedMessage, Type: "error", Offline: true})

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// Route 只根据请求本身选择处理策略，不做任何 I/O。
func (w *Worker) Route(req *Request) Strategy {
	if req == nil || req.URL == nil {
		return StrategyBypass
	}
	if req.Method != http.MethodGet || isExtensionScheme(req.URL) {
		return StrategyBypass
	}
	if w.isAPIHost(req) {
		return StrategyAPITimeout
	}
	return StrategyCacheFirst
}

// Fetch 处理一次被拦截的请求。handled 为 false 时调用方应按未拦截处理（直接透传）。
// 返回的响应始终非 nil：网络与缓存失败都会被转换为降级响应。
func (w *Worker) Fetch(ctx context.Context, req *Request) (resp *Response, handled bool) {
	strategy := w.Route(req)
	if strategy == StrategyBypass {
		return nil, false
	}

	start := w.now()
	switch strategy {
	case StrategyAPITimeout:
		resp = w.fetchAPI(ctx, req)
	default:
		resp = w.fetchCacheFirst(ctx, req)
	}

	w.metrics.ObserveFetch(string(strategy), string(resp.Source), w.now().Sub(start))
	w.logger.WithFields(logging.RequestFields(req.Method, req.URL.String(), string(req.Mode), string(strategy), string(resp.Source))).
		WithField("status", resp.Status).
		Debug("fetch")
	return resp, true
}

// isAPIHost 判断请求 host 是否包含任一 API 域名片段（大小写不敏感）。
func (w *Worker) isAPIHost(req *Request) bool {
	host := strings.ToLower(req.URL.Host)
	if host == "" {
		return false
	}
	for _, domain := range w.apiDomains {
		if strings.Contains(host, domain) {
			return true
		}
	}
	return false
}

type fetchResult struct {
	resp *Response
	err  error
}

// fetchAPI 让网络请求与 APITimeout 计时器赛跑；超时后取消上下文，不等待落败的请求。
func (w *Worker) fetchAPI(ctx context.Context, req *Request) *Response {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Global.APITimeout.DurationValue())
	defer cancel()

	done := make(chan fetchResult, 1)
	go func() {
		resp, err := w.network.Fetch(ctx, req)
		done <- fetchResult{resp: resp, err: err}
	}()

	var err error
	select {
	case result := <-done:
		if result.err == nil && result.resp != nil {
			result.resp.Source = SourceNetwork
			return result.resp
		}
		err = result.err
		if err == nil {
			err = errors.New("empty response")
		}
	case <-ctx.Done():
		err = ctx.Err()
	}

	w.requestLog(req, StrategyAPITimeout).WithError(err).Warn("api_request_failed")
	return DegradedResponse()
}

// fetchCacheFirst 先查全部缓存仓库，未命中再走网络并写回运行时缓存，最终失败时走离线兜底。
func (w *Worker) fetchCacheFirst(ctx context.Context, req *Request) *Response {
	key := cache.KeyForURL(req.URL)

	record, err := w.match(ctx, key)
	switch {
	case err == nil:
		return responseFromRecord(record, SourceCache)
	case errors.Is(err, cache.ErrNotFound):
	default:
		w.requestLog(req, StrategyCacheFirst).WithError(err).Warn("cache_match_failed")
		return w.offline(ctx, req)
	}

	runtime, openErr := w.caches.Open(ctx, w.cfg.RuntimeCacheName())
	if openErr != nil {
		w.requestLog(req, StrategyCacheFirst).WithError(openErr).Warn("cache_open_failed")
	}

	resp, err := w.network.Fetch(ctx, req)
	if err != nil || resp == nil {
		w.requestLog(req, StrategyCacheFirst).WithError(err).Info("network_failed")
		return w.offline(ctx, req)
	}
	resp.Source = SourceNetwork

	if resp.Status == http.StatusOK && runtime != nil {
		w.writeThrough(ctx, runtime, key, req, resp.Clone())
	}
	return resp
}

// match 先查当前版本的预缓存与运行时缓存，都未命中时交给 Storage.Match 按名称扫描其余仓库。
func (w *Worker) match(ctx context.Context, key string) (*cache.Record, error) {
	precache, runtime := w.CacheNames()
	for _, name := range []string{precache, runtime} {
		exists, err := w.caches.Has(ctx, name)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		store, err := w.caches.Open(ctx, name)
		if err != nil {
			return nil, err
		}
		record, err := store.Match(ctx, key)
		switch {
		case err == nil:
			return record, nil
		case !errors.Is(err, cache.ErrNotFound):
			return nil, err
		}
	}
	record, _, err := w.caches.Match(ctx, key)
	return record, err
}

// writeThrough 尽力写入运行时缓存；失败只记录日志与指标，不影响返回给调用方的响应。
func (w *Worker) writeThrough(ctx context.Context, store cache.Cache, key string, req *Request, resp *Response) {
	err := store.Put(ctx, key, recordFromResponse(req, resp, w.now()))
	w.metrics.CacheWrite(err == nil)
	if err != nil {
		w.requestLog(req, StrategyCacheFirst).WithError(err).WithField("cache", store.Name()).Warn("cache_put_failed")
	}
}

// offline 在网络与缓存都不可用时兜底：导航请求返回缓存的 OfflineFallback 页面，其余返回 503 文本。
func (w *Worker) offline(ctx context.Context, req *Request) *Response {
	if req.IsNavigation() {
		fallback := cache.KeyForURL(w.resolve(w.cfg.Global.OfflineFallback))
		record, err := w.match(ctx, fallback)
		if err == nil {
			return responseFromRecord(record, SourceFallback)
		}
		if !errors.Is(err, cache.ErrNotFound) {
			w.requestLog(req, StrategyCacheFirst).WithError(err).Warn("fallback_match_failed")
		}
	}
	return OfflineResponse()
}

// DegradedResponse 构造 API 不可用时的 503 JSON 响应，前端据 offline:true 判断稍后重试。
func DegradedResponse() *Response {
	return &Response{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   append([]byte(nil), degradedBody...),
		Source: SourceOffline,
	}
}

// OfflineResponse 构造纯文本 503 "Offline" 响应。
func OfflineResponse() *Response {
	return &Response{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:   []byte("Offline"),
		Source: SourceOffline,
	}
}

func responseFromRecord(record *cache.Record, source Source) *Response {
	header := record.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &Response{
		Status: record.Status,
		Header: header,
		Body:   append([]byte(nil), record.Body...),
		Source: source,
	}
}

func recordFromResponse(req *Request, resp *Response, now time.Time) cache.Record {
	return cache.Record{
		URL:      req.URL.String(),
		Status:   resp.Status,
		Header:   resp.Header,
		Body:     resp.Body,
		StoredAt: now,
	}
}

func (w *Worker) requestLog(req *Request, strategy Strategy) *logrus.Entry {
	return w.logger.WithFields(logrus.Fields{
		"url":      req.URL.String(),
		"mode":     string(req.Mode),
		"strategy": string(strategy),
		"worker":   w.id,
	})
}
