package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orion-hotel/offline-hub/internal/worker"
)

// ErrNotificationNotFound 表示通知不存在或已经关闭。
var ErrNotificationNotFound = errors.New("notification not found")

// maxOpenedWindows 限制 OpenWindow 历史的保留条数。
const maxOpenedWindows = 32

// DisplayedNotification 是通知中心内的一条通知。
type DisplayedNotification struct {
	worker.Notification
	ShownAt time.Time `json:"shown_at"`
}

// OpenedWindow 记录一次打开/聚焦客户端窗口的请求。
type OpenedWindow struct {
	URL      string    `json:"url"`
	OpenedAt time.Time `json:"opened_at"`
}

// NotificationCenter 是进程内的通知展示实现（worker.Notifier），跨 worker 版本共享。
type NotificationCenter struct {
	logger *logrus.Logger
	now    func() time.Time

	mu      sync.Mutex
	order   []string
	shown   map[string]DisplayedNotification
	windows []OpenedWindow
}

// NewNotificationCenter 创建空的通知中心。
func NewNotificationCenter(logger *logrus.Logger) *NotificationCenter {
	return &NotificationCenter{
		logger: logger,
		now:    time.Now,
		shown:  make(map[string]DisplayedNotification),
	}
}

// ShowNotification 展示通知。带 tag 的通知会替换同 tag 的旧通知。
func (n *NotificationCenter) ShowNotification(_ context.Context, notification worker.Notification) (string, error) {
	id := uuid.NewString()
	notification.ID = id

	n.mu.Lock()
	if notification.Tag != "" {
		for _, existing := range n.order {
			if n.shown[existing].Tag == notification.Tag {
				n.removeLocked(existing)
				break
			}
		}
	}
	n.order = append(n.order, id)
	n.shown[id] = DisplayedNotification{Notification: notification, ShownAt: n.now()}
	n.mu.Unlock()

	if n.logger != nil {
		n.logger.WithFields(logrus.Fields{
			"action":       "notification",
			"notification": id,
			"tag":          notification.Tag,
		}).Info("notification shown")
	}
	return id, nil
}

// CloseNotification 关闭通知，不存在时返回 ErrNotificationNotFound。
func (n *NotificationCenter) CloseNotification(_ context.Context, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.shown[id]; !ok {
		return ErrNotificationNotFound
	}
	n.removeLocked(id)
	return nil
}

// OpenWindow 记录打开请求；宿主没有真正的窗口，只保留最近的记录供前端轮询。
func (n *NotificationCenter) OpenWindow(_ context.Context, url string) error {
	n.mu.Lock()
	n.windows = append(n.windows, OpenedWindow{URL: url, OpenedAt: n.now()})
	if len(n.windows) > maxOpenedWindows {
		n.windows = append([]OpenedWindow(nil), n.windows[len(n.windows)-maxOpenedWindows:]...)
	}
	n.mu.Unlock()

	if n.logger != nil {
		n.logger.WithFields(logrus.Fields{"action": "notification", "url": url}).Info("open window requested")
	}
	return nil
}

// Get 返回指定通知。
func (n *NotificationCenter) Get(id string) (DisplayedNotification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	item, ok := n.shown[id]
	return item, ok
}

// List 按展示顺序返回当前仍在显示的通知。
func (n *NotificationCenter) List() []DisplayedNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	result := make([]DisplayedNotification, 0, len(n.order))
	for _, id := range n.order {
		result = append(result, n.shown[id])
	}
	return result
}

// Windows 返回最近的打开窗口请求。
func (n *NotificationCenter) Windows() []OpenedWindow {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]OpenedWindow(nil), n.windows...)
}

func (n *NotificationCenter) removeLocked(id string) {
	delete(n.shown, id)
	for i, existing := range n.order {
		if existing == id {
			n.order = append(n.order[:i], n.order[i+1:]...)
			return
		}
	}
}
