package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MessageType 是控制通道命令类型。
type MessageType string

const (
	MessageSkipWaiting MessageType = "SKIP_WAITING"
	MessageClearCache  MessageType = "CLEAR_CACHE"
)

// Message 是前台页面通过控制通道发送的命令。
type Message struct {
	Type MessageType `json:"type"`
}

// ParseMessage 解析 JSON 命令；格式错误或缺少 type 的消息返回零值，由 Message 处理时忽略。
func ParseMessage(data []byte) Message {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}
	}
	msg.Type = MessageType(strings.TrimSpace(string(msg.Type)))
	return msg
}

// MessageResult 描述一条命令的处理结果。
type MessageResult struct {
	Type          MessageType `json:"type"`
	Handled       bool        `json:"handled"`
	DeletedCaches []string    `json:"deleted_caches,omitempty"`
}

// Message 处理控制通道命令：SKIP_WAITING 触发立即激活，CLEAR_CACHE 无条件删除全部缓存仓库。
// 未识别的命令被静默忽略。
func (w *Worker) Message(ctx context.Context, msg Message) (MessageResult, error) {
	result := MessageResult{Type: msg.Type}
	switch msg.Type {
	case MessageSkipWaiting:
		if err := w.SkipWaiting(ctx); err != nil {
			return result, err
		}
		result.Handled = true
	case MessageClearCache:
		deleted, err := w.ClearCaches(ctx)
		w.metrics.Lifecycle("clear_cache", err)
		if err != nil {
			return result, err
		}
		result.Handled = true
		result.DeletedCaches = deleted
	default:
		w.lifecycleLog("message").WithField("type", string(msg.Type)).Debug("ignored message")
	}
	return result, nil
}

// ClearCaches 删除现存的全部缓存仓库，不做版本过滤。
func (w *Worker) ClearCaches(ctx context.Context) ([]string, error) {
	names, err := w.caches.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	if err := w.deleteCaches(ctx, "clear_cache", names); err != nil {
		return nil, err
	}
	w.metrics.CachesDeleted(len(names))
	return names, nil
}
