package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "10s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为：监听端口、日志、缓存版本与离线策略参数。
type GlobalConfig struct {
	ListenPort       int      `mapstructure:"ListenPort"`
	Domain           string   `mapstructure:"Domain"`
	Origin           string   `mapstructure:"Origin"`
	LogLevel         string   `mapstructure:"LogLevel"`
	LogFilePath      string   `mapstructure:"LogFilePath"`
	LogMaxSize       int      `mapstructure:"LogMaxSize"`
	LogMaxBackups    int      `mapstructure:"LogMaxBackups"`
	LogCompress      bool     `mapstructure:"LogCompress"`
	StoragePath      string   `mapstructure:"StoragePath"`
	Version          string   `mapstructure:"Version"`
	PrecacheName     string   `mapstructure:"PrecacheName"`
	RuntimeName      string   `mapstructure:"RuntimeName"`
	PrecacheURLs     []string `mapstructure:"PrecacheURLs"`
	OfflineFallback  string   `mapstructure:"OfflineFallback"`
	APITimeout       Duration `mapstructure:"APITimeout"`
	UpstreamTimeout  Duration `mapstructure:"UpstreamTimeout"`
	MaxRetries       int      `mapstructure:"MaxRetries"`
	InitialBackoff   Duration `mapstructure:"InitialBackoff"`
	MaxMemoryEntries int      `mapstructure:"MaxMemoryEntries"`
	BackgroundSync   bool     `mapstructure:"BackgroundSync"`
	SkipWaiting      bool     `mapstructure:"SkipWaiting"`
}

// NotificationConfig 对应 [Notification] 表，决定推送通知的展示方式。
type NotificationConfig struct {
	Title              string `mapstructure:"Title"`
	DefaultBody        string `mapstructure:"DefaultBody"`
	Tag                string `mapstructure:"Tag"`
	Icon               string `mapstructure:"Icon"`
	Badge              string `mapstructure:"Badge"`
	Vibrate            []int  `mapstructure:"Vibrate"`
	RequireInteraction bool   `mapstructure:"RequireInteraction"`
	OpenURL            string `mapstructure:"OpenURL"`
}

// APIConfig 声明一个后端 API 域名，命中后走带超时的直连策略且从不读写缓存。
type APIConfig struct {
	Name   string `mapstructure:"Name"`
	Domain string `mapstructure:"Domain"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global       GlobalConfig       `mapstructure:",squash"`
	Notification NotificationConfig `mapstructure:"Notification"`
	APIs         []APIConfig        `mapstructure:"API"`
}

// PrecacheCacheName 返回当前版本的预缓存仓库名，例如 orion-hotel-chat-v1.0.0。
func (c *Config) PrecacheCacheName() string {
	return versionedName(c.Global.PrecacheName, c.Global.Version)
}

// RuntimeCacheName 返回当前版本的运行时缓存仓库名。
func (c *Config) RuntimeCacheName() string {
	return versionedName(c.Global.RuntimeName, c.Global.Version)
}

// APIDomains 汇总所有 API 域名片段，保持配置中的声明顺序。
func (c *Config) APIDomains() []string {
	if len(c.APIs) == 0 {
		return nil
	}
	result := make([]string, 0, len(c.APIs))
	for _, api := range c.APIs {
		result = append(result, api.Domain)
	}
	return result
}

// APINames 输出 name:domain 摘要，供启动日志使用。
func APINames(apis []APIConfig) []string {
	if len(apis) == 0 {
		return nil
	}
	result := make([]string, len(apis))
	for i, api := range apis {
		result[i] = fmt.Sprintf("%s:%s", api.Name, api.Domain)
	}
	return result
}

func versionedName(prefix, version string) string {
	if version == "" {
		return prefix
	}
	return prefix + "-" + version
}
