package worker

import (
	"context"
	"fmt"
	"strings"
)

const (
	ActionOpen    = "open"
	ActionDismiss = "dismiss"
)

// NotificationAction 是通知上展示的一个操作按钮。
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification 是交给宿主展示的系统通知。
type Notification struct {
	ID                 string               `json:"id"`
	Title              string               `json:"title"`
	Body               string               `json:"body"`
	Tag                string               `json:"tag,omitempty"`
	Icon               string               `json:"icon,omitempty"`
	Badge              string               `json:"badge,omitempty"`
	Vibrate            []int                `json:"vibrate,omitempty"`
	RequireInteraction bool                 `json:"require_interaction"`
	Actions            []NotificationAction `json:"actions"`
}

// Notifier 是宿主的通知与窗口能力。
type Notifier interface {
	// ShowNotification 展示通知并返回宿主分配的 ID。
	ShowNotification(ctx context.Context, n Notification) (string, error)
	CloseNotification(ctx context.Context, id string) error
	// OpenWindow 打开或聚焦指向 url 的客户端窗口。
	OpenWindow(ctx context.Context, url string) error
}

type discardNotifier struct{}

func (discardNotifier) ShowNotification(context.Context, Notification) (string, error) {
	return "", nil
}
func (discardNotifier) CloseNotification(context.Context, string) error { return nil }
func (discardNotifier) OpenWindow(context.Context, string) error        { return nil }

// ClickResult 描述一次通知点击的处理结果。
type ClickResult struct {
	Action  string `json:"action"`
	Closed  bool   `json:"closed"`
	OpenURL string `json:"open_url,omitempty"`
}

// Push 把推送正文（为空时使用 Notification.DefaultBody）展示为系统通知。
func (w *Worker) Push(ctx context.Context, payload []byte) (Notification, error) {
	n := w.buildNotification(payload)
	id, err := w.notifier.ShowNotification(ctx, n)
	w.metrics.Notification("push")
	if err != nil {
		w.lifecycleLog("push").WithError(err).Error("show notification failed")
		return n, fmt.Errorf("show notification: %w", err)
	}
	n.ID = id
	w.lifecycleLog("push").WithField("notification", id).Info("push notification received")
	return n, nil
}

func (w *Worker) buildNotification(payload []byte) Notification {
	nc := w.cfg.Notification
	body := nc.DefaultBody
	if len(payload) > 0 {
		body = string(payload)
	}
	return Notification{
		Title:              nc.Title,
		Body:               body,
		Tag:                nc.Tag,
		Icon:               nc.Icon,
		Badge:              nc.Badge,
		Vibrate:            append([]int(nil), nc.Vibrate...),
		RequireInteraction: nc.RequireInteraction,
		Actions: []NotificationAction{
			{Action: ActionOpen, Title: "Open Chat"},
			{Action: ActionDismiss, Title: "Dismiss"},
		},
	}
}

// NotificationClick 关闭通知；action 为 open 或为空时打开应用根地址，其它 action 不做额外处理。
func (w *Worker) NotificationClick(ctx context.Context, id, action string) (ClickResult, error) {
	action = strings.TrimSpace(action)
	result := ClickResult{Action: action}
	log := w.lifecycleLog("notificationclick").WithField("notification", id).WithField("click_action", action)
	log.Info("notification clicked")

	if err := w.notifier.CloseNotification(ctx, id); err != nil {
		return result, fmt.Errorf("close notification: %w", err)
	}
	result.Closed = true
	w.metrics.Notification("click")

	if action != ActionOpen && action != "" {
		return result, nil
	}
	target := w.cfg.Notification.OpenURL
	if err := w.notifier.OpenWindow(ctx, target); err != nil {
		return result, fmt.Errorf("open window: %w", err)
	}
	result.OpenURL = target
	return result, nil
}
