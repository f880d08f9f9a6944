package server

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/orion-hotel/offline-hub/internal/config"
)

// Upstreams 把请求 Host 解析为目标地址：Host 等于 Domain（或为空）时映射到 Origin，
// 其它 Host 按原样转发。配置热更新时通过 Update 原子替换。
type Upstreams struct {
	mu     sync.RWMutex
	domain string
	origin *url.URL
}

// NewUpstreams 根据配置构建 Host 映射。
func NewUpstreams(cfg *config.Config) (*Upstreams, error) {
	u := &Upstreams{}
	if err := u.Update(cfg); err != nil {
		return nil, err
	}
	return u, nil
}

// Update 使用新配置替换 Domain/Origin。
func (u *Upstreams) Update(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	origin, err := url.Parse(cfg.Global.Origin)
	if err != nil {
		return fmt.Errorf("invalid origin: %w", err)
	}
	if (origin.Scheme != "http" && origin.Scheme != "https") || origin.Host == "" {
		return fmt.Errorf("invalid origin: %s", cfg.Global.Origin)
	}
	domain := normalizeDomain(cfg.Global.Domain)
	if domain == "" {
		return fmt.Errorf("invalid domain: %s", cfg.Global.Domain)
	}

	u.mu.Lock()
	u.domain = domain
	u.origin = origin
	u.mu.Unlock()
	return nil
}

// Domain 返回当前对外域名。
func (u *Upstreams) Domain() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.domain
}

// Resolve 计算请求的目标 URL。scheme 只在转发到非本站 Host 时使用。
func (u *Upstreams) Resolve(rawHost, scheme, rawPath, rawQuery string) *url.URL {
	u.mu.RLock()
	domain, origin := u.domain, u.origin
	u.mu.RUnlock()

	clean := path.Clean("/" + rawPath)
	if strings.HasSuffix(rawPath, "/") && clean != "/" {
		clean += "/"
	}
	relative := &url.URL{Path: clean, RawQuery: rawQuery}

	host, _ := normalizeHost(rawHost)
	if host == "" || host == domain {
		return origin.ResolveReference(relative)
	}

	if scheme == "" {
		scheme = "http"
	}
	relative.Scheme = strings.ToLower(scheme)
	relative.Host = strings.ToLower(strings.TrimSpace(rawHost))
	return relative
}

func normalizeDomain(domain string) string {
	host, _ := normalizeHost(domain)
	return host
}

func normalizeHost(raw string) (string, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}

	host := raw
	port := 0

	if strings.Contains(raw, ":") {
		if h, p, err := net.SplitHostPort(raw); err == nil {
			host = h
			if parsedPort, err := strconv.Atoi(p); err == nil {
				port = parsedPort
			}
		} else if idx := strings.LastIndex(raw, ":"); idx > -1 && strings.Count(raw[idx+1:], ":") == 0 {
			if parsedPort, err := strconv.Atoi(raw[idx+1:]); err == nil {
				host = raw[:idx]
				port = parsedPort
			}
		}
	}

	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)
	return host, port
}
