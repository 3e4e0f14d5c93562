package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
)

// LocalsAccount is the fiber.Ctx local holding the authenticated domain.Account.
const LocalsAccount = "account"

// Response is the envelope of every JSON reply.
type Response struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func OK(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Response{Success: true, Code: "OK", Message: message, Data: data})
}

func Fail(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(Response{Success: false, Code: code, Message: message})
}

// StatusFor maps an error onto its HTTP status and machine-readable code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUsernameTaken):
		return http.StatusConflict, "USERNAME_TAKEN"
	case errors.Is(err, domain.ErrNotificationNotFound):
		return http.StatusNotFound, "NOTIFICATION_NOT_FOUND"
	}

	kind := domain.KindOf(err)
	switch kind {
	case domain.KindInvalidAmount, domain.KindInvalidRequest, domain.KindSelfTransfer,
		domain.KindLimitExceeded, domain.KindInsufficientBalance:
		return http.StatusBadRequest, kind.String()
	case domain.KindAccountNotFound:
		return http.StatusNotFound, kind.String()
	case domain.KindConflict:
		return http.StatusConflict, kind.String()
	case domain.KindTimeout:
		return http.StatusServiceUnavailable, kind.String()
	}
	return http.StatusInternalServerError, domain.KindInfrastructure.String()
}

// Error writes err to the client. Internal details of 5xx errors are logged, not returned.
func Error(c *fiber.Ctx, err error) error {
	status, code := StatusFor(err)
	message := err.Error()
	switch {
	case status == http.StatusServiceUnavailable:
		c.Set(fiber.HeaderRetryAfter, "1")
		message = "ledger busy, retry the request"
	case status >= http.StatusInternalServerError:
		slog.Error("❌ Request failed", "error", err, "path", c.Path(), "method", c.Method())
		message = "internal error"
	}
	return Fail(c, status, code, message)
}

// Caller returns the account set by the auth middleware.
func Caller(c *fiber.Ctx) (domain.Account, bool) {
	acct, ok := c.Locals(LocalsAccount).(domain.Account)
	return acct, ok
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, domain.E(domain.KindInvalidRequest, "", "invalid "+name+" format")
	}
	return id, nil
}
