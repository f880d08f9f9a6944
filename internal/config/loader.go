package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}
	return decode(v)
}

// decode 将 viper 中的键值映射为 Config，并完成默认值填充、校验与路径归一化。
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyNotificationDefaults(&cfg.Notification)
	if len(cfg.APIs) == 0 {
		cfg.APIs = defaultAPIs()
	}
	for i := range cfg.APIs {
		applyAPIDefaults(&cfg.APIs[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

// defaultNotificationIcon 是通知默认的图标与徽标（🏨 的 SVG data URI）。
const defaultNotificationIcon = "data:image/svg+xml,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'><text y='.9em' font-size='90'>🏨</text></svg>"

// defaultAPIs 在配置未声明任何 [[API]] 时生效：聊天后端、LLM 与天气接口。
func defaultAPIs() []APIConfig {
	return []APIConfig{
		{Name: "chat", Domain: "script.google.com"},
		{Name: "llm", Domain: "generativelanguage.googleapis.com"},
		{Name: "weather", Domain: "openweathermap.org"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("Domain", "localhost")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("Version", "v1.0.0")
	v.SetDefault("PrecacheName", "orion-hotel-chat")
	v.SetDefault("RuntimeName", "orion-runtime")
	v.SetDefault("PrecacheURLs", []string{"/", "/index.html", "/manifest.json"})
	v.SetDefault("OfflineFallback", "/index.html")
	v.SetDefault("APITimeout", "10s")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("MaxRetries", 3)
	v.SetDefault("InitialBackoff", "1s")
	v.SetDefault("MaxMemoryEntries", 1024)
	v.SetDefault("BackgroundSync", true)
	v.SetDefault("SkipWaiting", true)
	v.SetDefault("Notification.Title", "Orion Hotel")
	v.SetDefault("Notification.DefaultBody", "New message from Orion Hotel")
	v.SetDefault("Notification.Tag", "orion-hotel-notification")
	v.SetDefault("Notification.Icon", defaultNotificationIcon)
	v.SetDefault("Notification.Badge", defaultNotificationIcon)
	v.SetDefault("Notification.Vibrate", []int{200, 100, 200})
	v.SetDefault("Notification.OpenURL", "/")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	g.Domain = strings.ToLower(strings.TrimSpace(g.Domain))
	g.Origin = strings.TrimRight(strings.TrimSpace(g.Origin), "/")
	if g.APITimeout.DurationValue() == 0 {
		g.APITimeout = Duration(10 * time.Second)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.InitialBackoff.DurationValue() == 0 {
		g.InitialBackoff = Duration(time.Second)
	}
	if g.OfflineFallback == "" {
		g.OfflineFallback = "/index.html"
	}
	for i, raw := range g.PrecacheURLs {
		g.PrecacheURLs[i] = strings.TrimSpace(raw)
	}
}

func applyNotificationDefaults(n *NotificationConfig) {
	if strings.TrimSpace(n.OpenURL) == "" {
		n.OpenURL = "/"
	}
}

func applyAPIDefaults(api *APIConfig) {
	api.Name = strings.TrimSpace(api.Name)
	api.Domain = strings.ToLower(strings.TrimSpace(api.Domain))
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
