package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if err := validateDomain(g.Domain); err != nil {
		return fmt.Errorf("Global.Domain: %w", err)
	}
	if err := validateOrigin(g.Origin); err != nil {
		return fmt.Errorf("Global.Origin: %w", err)
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if err := validateCacheName(g.Version); err != nil {
		return newFieldError("Global.Version", err.Error())
	}
	if err := validateCacheName(g.PrecacheName); err != nil {
		return newFieldError("Global.PrecacheName", err.Error())
	}
	if err := validateCacheName(g.RuntimeName); err != nil {
		return newFieldError("Global.RuntimeName", err.Error())
	}
	if c.PrecacheCacheName() == c.RuntimeCacheName() {
		return newFieldError("Global.RuntimeName", "不能与 PrecacheName 相同")
	}
	if len(g.PrecacheURLs) == 0 {
		return newFieldError("Global.PrecacheURLs", "至少需要一个预缓存路径")
	}
	for _, raw := range g.PrecacheURLs {
		if !strings.HasPrefix(raw, "/") {
			return newFieldError("Global.PrecacheURLs", fmt.Sprintf("路径必须以 / 开头: %q", raw))
		}
	}
	if !strings.HasPrefix(g.OfflineFallback, "/") {
		return newFieldError("Global.OfflineFallback", "路径必须以 / 开头")
	}
	if g.APITimeout.DurationValue() <= 0 {
		return newFieldError("Global.APITimeout", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.MaxMemoryEntries < 0 {
		return newFieldError("Global.MaxMemoryEntries", "不能为负数")
	}

	if strings.TrimSpace(c.Notification.Title) == "" {
		return newFieldError("Notification.Title", "不能为空")
	}

	seenNames := map[string]struct{}{}
	for i := range c.APIs {
		api := &c.APIs[i]
		if api.Name == "" {
			return newFieldError("API[].Name", "不能为空")
		}
		if _, exists := seenNames[api.Name]; exists {
			return newFieldError(apiField(api.Name, "Name"), "重复")
		}
		seenNames[api.Name] = struct{}{}

		if err := validateDomain(api.Domain); err != nil {
			return fmt.Errorf("%s: %w", apiField(api.Name, "Domain"), err)
		}
	}

	return nil
}

func validateDomain(domain string) error {
	if domain == "" {
		return errors.New("Domain 不能为空")
	}
	if strings.Contains(domain, "/") {
		return errors.New("Domain 不允许包含路径")
	}
	if strings.Contains(domain, " ") {
		return errors.New("Domain 不允许包含空格")
	}
	if strings.HasPrefix(domain, "http") && strings.Contains(domain, ":") {
		return errors.New("Domain 不应包含协议头")
	}
	return nil
}

func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("缺少源站地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，源站: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("源站缺少 Host: %s", raw)
	}
	return nil
}

// validateCacheName 保证缓存名可以安全地映射为单级目录。
func validateCacheName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("不能为空")
	}
	if strings.ContainsAny(name, `/\ `) || name == "." || name == ".." {
		return errors.New("不允许包含路径分隔符或空格")
	}
	return nil
}
