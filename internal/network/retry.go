package network

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/orion-hotel/offline-hub/internal/config"
)

// leveledLogrus 将 retryablehttp 的分级日志接到 logrus；中间失败降为 Warn，因为还会重试。
type leveledLogrus struct {
	entry *logrus.Entry
}

func (l leveledLogrus) Error(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).Warn(msg)
}

func (l leveledLogrus) Warn(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).Warn(msg)
}

func (l leveledLogrus) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l leveledLogrus) Debug(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func kvFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return fields
}

// NewRetryingClient 返回带指数退避重试的客户端，用于 install 阶段拉取预缓存资源：
// 连接错误与 5xx（除 501）会按 MaxRetries/InitialBackoff 重试。
func NewRetryingClient(cfg *config.Config, logger *logrus.Logger) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = defaultTransport.Clone()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = time.Second
	if cfg != nil {
		retryClient.RetryMax = cfg.Global.MaxRetries
		if backoff := cfg.Global.InitialBackoff.DurationValue(); backoff > 0 {
			retryClient.RetryWaitMin = backoff
		}
	}
	retryClient.RetryWaitMax = 10 * retryClient.RetryWaitMin
	retryClient.CheckRetry = precacheRetryPolicy
	if logger != nil {
		retryClient.Logger = retryablehttp.LeveledLogger(leveledLogrus{
			entry: logger.WithField("subsystem", "precache_client"),
		})
	} else {
		retryClient.Logger = nil
	}

	client := retryClient.StandardClient()
	client.Timeout = upstreamTimeout(cfg)
	return &Client{http: client}
}

// precacheRetryPolicy 不重试 429，避免在源站限流时放大请求。
func precacheRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
