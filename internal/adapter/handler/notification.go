package handler

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/ibrahimkeyboad/ezledger/internal/core/notifications"
)

type NotificationHandler struct {
	Inbox *notifications.Inbox
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	caller, ok := Caller(c)
	if !ok {
		return Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing API Key")
	}
	list, err := h.Inbox.List(c.Context(), caller.ID)
	if err != nil {
		return Error(c, err)
	}
	return OK(c, http.StatusOK, "Notifications", list)
}

func (h *NotificationHandler) Unread(c *fiber.Ctx) error {
	caller, ok := Caller(c)
	if !ok {
		return Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing API Key")
	}
	list, err := h.Inbox.Unread(c.Context(), caller.ID)
	if err != nil {
		return Error(c, err)
	}
	return OK(c, http.StatusOK, "Unread notifications", list)
}

func (h *NotificationHandler) Recent(c *fiber.Ctx) error {
	caller, ok := Caller(c)
	if !ok {
		return Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing API Key")
	}
	list, err := h.Inbox.Recent(c.Context(), caller.ID)
	if err != nil {
		return Error(c, err)
	}
	return OK(c, http.StatusOK, "Recent notifications", list)
}

func (h *NotificationHandler) UnreadCount(c *fiber.Ctx) error {
	caller, ok := Caller(c)
	if !ok {
		return Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing API Key")
	}
	count, err := h.Inbox.UnreadCount(c.Context(), caller.ID)
	if err != nil {
		return Error(c, err)
	}
	return OK(c, http.StatusOK, "Unread count", fiber.Map{"count": count})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	caller, ok := Caller(c)
	if !ok {
		return Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing API Key")
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return Error(c, err)
	}
	if err := h.Inbox.MarkRead(c.Context(), caller.ID, id); err != nil {
		return Error(c, err)
	}
	return OK(c, http.StatusOK, "Notification marked as read", nil)
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	caller, ok := Caller(c)
	if !ok {
		return Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing API Key")
	}
	n, err := h.Inbox.MarkAllRead(c.Context(), caller.ID)
	if err != nil {
		return Error(c, err)
	}
	return OK(c, http.StatusOK, "All notifications marked as read", fiber.Map{"updated": n})
}
