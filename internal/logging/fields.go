package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供请求方法/地址/模式与命中来源字段，供路由日志复用。
func RequestFields(method, url, mode, strategy, source string) logrus.Fields {
	return logrus.Fields{
		"method":   method,
		"url":      url,
		"mode":     mode,
		"strategy": strategy,
		"source":   source,
	}
}

// LifecycleFields 描述 worker 生命周期事件（install/activate/message 等）的公共字段。
func LifecycleFields(event, version string) logrus.Fields {
	return logrus.Fields{
		"action":  "lifecycle",
		"event":   event,
		"version": version,
	}
}
