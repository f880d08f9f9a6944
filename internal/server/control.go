package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/orion-hotel/offline-hub/internal/worker"
)

type clickRequest struct {
	Action string `json:"action"`
}

type controlHandlers struct {
	logger        *logrus.Logger
	registration  *worker.Registration
	notifications *NotificationCenter
}

// registerControlRoutes 挂载 message/push/sync/notification 控制接口。
func registerControlRoutes(app *fiber.App, opts AppOptions) {
	h := &controlHandlers{
		logger:        opts.Logger,
		registration:  opts.Registration,
		notifications: opts.Notifications,
	}

	app.Post("/-/message", h.message)
	app.Post("/-/push", h.push)
	app.Post("/-/sync", h.sync)
	app.Get("/-/notifications", h.listNotifications)
	app.Post("/-/notifications/:id/click", h.clickNotification)
}

func (h *controlHandlers) message(c fiber.Ctx) error {
	msg := worker.ParseMessage(c.Body())
	result, err := h.registration.Deliver(requestContext(c), msg)
	switch {
	case errors.Is(err, worker.ErrNoController):
		return writeControlError(c, fiber.StatusServiceUnavailable, "no_controller")
	case err != nil:
		h.logControlError(c, "message", err)
		return writeControlError(c, fiber.StatusInternalServerError, "message_failed")
	}
	return c.JSON(result)
}

func (h *controlHandlers) push(c fiber.Ctx) error {
	w := h.registration.Controller()
	if w == nil {
		return writeControlError(c, fiber.StatusServiceUnavailable, "no_controller")
	}
	var payload []byte
	if body := c.Body(); len(body) > 0 {
		payload = append([]byte(nil), body...)
	}
	notification, err := w.Push(requestContext(c), payload)
	if err != nil {
		h.logControlError(c, "push", err)
		return writeControlError(c, fiber.StatusInternalServerError, "push_failed")
	}
	return c.Status(fiber.StatusCreated).JSON(notification)
}

func (h *controlHandlers) sync(c fiber.Ctx) error {
	tag := strings.TrimSpace(c.Query("tag"))
	if tag == "" {
		return writeControlError(c, fiber.StatusBadRequest, "tag_required")
	}
	w := h.registration.Controller()
	if w == nil {
		return writeControlError(c, fiber.StatusServiceUnavailable, "no_controller")
	}
	handled, err := w.Sync(requestContext(c), tag)
	switch {
	case errors.Is(err, worker.ErrSyncUnsupported):
		return writeControlError(c, fiber.StatusNotFound, "sync_unsupported")
	case err != nil:
		h.logControlError(c, "sync", err)
		return writeControlError(c, fiber.StatusInternalServerError, "sync_failed")
	}
	return c.JSON(fiber.Map{"tag": tag, "handled": handled})
}

func (h *controlHandlers) listNotifications(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"notifications": h.notifications.List(),
		"windows":       h.notifications.Windows(),
	})
}

func (h *controlHandlers) clickNotification(c fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if _, ok := h.notifications.Get(id); !ok {
		return writeControlError(c, fiber.StatusNotFound, "notification_not_found")
	}
	w := h.registration.Controller()
	if w == nil {
		return writeControlError(c, fiber.StatusServiceUnavailable, "no_controller")
	}

	var req clickRequest
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return writeControlError(c, fiber.StatusBadRequest, "invalid_json")
		}
	}
	result, err := w.NotificationClick(requestContext(c), id, req.Action)
	switch {
	case errors.Is(err, ErrNotificationNotFound):
		return writeControlError(c, fiber.StatusNotFound, "notification_not_found")
	case err != nil:
		h.logControlError(c, "notificationclick", err)
		return writeControlError(c, fiber.StatusInternalServerError, "click_failed")
	}
	return c.JSON(result)
}

func (h *controlHandlers) logControlError(c fiber.Ctx, event string, err error) {
	h.logger.WithFields(logrus.Fields{
		"action":     "control",
		"event":      event,
		"request_id": RequestID(c),
	}).WithError(err).Error("control_failed")
}

func writeControlError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
