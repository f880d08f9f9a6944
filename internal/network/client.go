package network

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/orion-hotel/offline-hub/internal/config"
	"github.com/orion-hotel/offline-hub/internal/worker"
)

// maxBodyBytes 限制单个响应缓冲进内存的大小，超出时视为网络失败。
const maxBodyBytes = 64 << 20

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// Client 实现 worker.Fetcher：把 worker.Request 发往真实网络并完整缓冲响应。
type Client struct {
	http *http.Client
}

// NewClient 返回使用共享 transport 的单次请求客户端，超时取 UpstreamTimeout。
func NewClient(cfg *config.Config) *Client {
	return &Client{http: &http.Client{
		Timeout:   upstreamTimeout(cfg),
		Transport: defaultTransport.Clone(),
	}}
}

// NewClientWithHTTP 包装调用方提供的 http.Client，主要用于测试注入 transport。
func NewClientWithHTTP(client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{http: client}
}

func upstreamTimeout(cfg *config.Config) time.Duration {
	timeout := 30 * time.Second
	if cfg != nil && cfg.Global.UpstreamTimeout.DurationValue() > 0 {
		timeout = cfg.Global.UpstreamTimeout.DurationValue()
	}
	return timeout
}

// Fetch 执行一次网络请求。只有传输层错误（含超时/取消）返回 error，任何 HTTP 状态码都视为成功响应。
func (c *Client) Fetch(ctx context.Context, req *worker.Request) (*worker.Response, error) {
	if req == nil || req.URL == nil {
		return nil, fmt.Errorf("fetch: request url required")
	}

	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	CopyHeaders(httpReq.Header, req.Header)
	httpReq.Header.Del("Host")
	httpReq.Header.Del("Accept-Encoding")
	httpReq.Header.Del("Content-Length")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	if len(data) > maxBodyBytes {
		return nil, fmt.Errorf("fetch: response body exceeds %d bytes", maxBodyBytes)
	}

	header := http.Header{}
	CopyHeaders(header, resp.Header)
	header.Del("Content-Length")

	return &worker.Response{
		Status: resp.StatusCode,
		Header: header,
		Body:   data,
	}, nil
}

// hopByHopHeaders 定义 RFC 7230 中禁止代理转发的头部。
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Proxy-Connection":    {}, // 非标准字段，但部分代理仍使用
}

// CopyHeaders 将 src 中允许透传的头复制到 dst，自动忽略 hop-by-hop 字段。
func CopyHeaders(dst, src http.Header) {
	for key, values := range src {
		if IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// IsHopByHopHeader reports whether the header should be stripped by proxies.
func IsHopByHopHeader(key string) bool {
	_, ok := hopByHopHeaders[textproto.CanonicalMIMEHeaderKey(key)]
	return ok
}
