package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch 监听配置文件变更：每次写入后重新解析并回调 onChange，解析失败时 cfg 为 nil。
// 典型用途是修改 Version 后触发新版本 worker 的安装与旧缓存清理。
func Watch(path string, onChange func(cfg *Config, err error)) error {
	if onChange == nil {
		return fmt.Errorf("onChange 回调不能为空")
	}
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("读取配置失败: %w", err)
	}

	v.OnConfigChange(func(evt fsnotify.Event) {
		if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
			return
		}
		onChange(decode(v))
	})
	v.WatchConfig()
	return nil
}
