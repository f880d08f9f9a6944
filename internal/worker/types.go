package worker

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Mode 对应请求的 fetch mode，来源于 Sec-Fetch-Mode。
type Mode string

const (
	ModeNavigate   Mode = "navigate"
	ModeSameOrigin Mode = "same-origin"
	ModeCORS       Mode = "cors"
	ModeNoCORS     Mode = "no-cors"
)

// Source 标记响应的产生方式，宿主会写入 X-Offline-Hub-Source 响应头。
type Source string

const (
	SourceCache       Source = "cache"
	SourceNetwork     Source = "network"
	SourceFallback    Source = "fallback"
	SourceOffline     Source = "offline"
	SourcePassthrough Source = "passthrough"
)

// Strategy 是路由对一个请求选定的处理策略。
type Strategy string

const (
	StrategyBypass     Strategy = "bypass"
	StrategyAPITimeout Strategy = "api_timeout"
	StrategyCacheFirst Strategy = "cache_first"
)

// Request 是被拦截请求的只读视图。
type Request struct {
	Method string
	URL    *url.URL
	Mode   Mode
	Header http.Header
	Body   []byte
}

// IsNavigation 表示请求是否为页面导航。
func (r *Request) IsNavigation() bool {
	return r != nil && r.Mode == ModeNavigate
}

// Response 是完整缓冲的响应；进入缓存前必须 Clone。
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Source Source
}

// Clone 深拷贝响应，避免缓存与调用方共享 Header/Body。
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	cloned := *r
	cloned.Header = r.Header.Clone()
	if cloned.Header == nil {
		cloned.Header = http.Header{}
	}
	if r.Body != nil {
		cloned.Body = append([]byte(nil), r.Body...)
	}
	return &cloned
}

// Fetcher 抽象网络访问。只有传输失败才返回 error，HTTP 错误状态码仍是正常响应。
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req *Request) (*Response, error)

// Fetch makes FetcherFunc satisfy Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// extensionSchemes 是浏览器扩展使用的协议，这类请求永远不拦截。
var extensionSchemes = map[string]struct{}{
	"chrome-extension":     {},
	"moz-extension":        {},
	"safari-web-extension": {},
}

func isExtensionScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	_, ok := extensionSchemes[strings.ToLower(u.Scheme)]
	return ok
}
