package middleware

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/ibrahimkeyboad/ezledger/internal/adapter/handler"
)

// ResponseCache stores the first response sent for an idempotency key.
type ResponseCache interface {
	LookupResponse(ctx context.Context, key string) (status int, body []byte, found bool, err error)
	SaveResponse(ctx context.Context, key string, status int, body []byte) error
}

// Idempotency replays the cached response when an Idempotency-Key header is
// repeated. Keys are scoped to the caller, so two accounts can use the same
// key. 5xx responses are not cached, so the request can be retried.
func Idempotency(cache ResponseCache) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("Idempotency-Key")
		if key == "" {
			return c.Next()
		}
		if caller, ok := handler.Caller(c); ok {
			key = caller.ID.String() + ":" + key
		}

		status, body, found, err := cache.LookupResponse(c.Context(), key)
		if err != nil {
			slog.Error("❌ Failed to read Idempotency Key", "error", err, "key", key)
		} else if found {
			slog.Info("🛑 Idempotency Hit! Returning cached response", "key", key)
			c.Set("X-Idempotency-Hit", "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(status).Send(body)
		}

		if err := c.Next(); err != nil {
			return err
		}

		resStatus := c.Response().StatusCode()
		if resStatus >= 500 {
			return nil
		}
		resBody := append([]byte(nil), c.Response().Body()...)
		if err := cache.SaveResponse(c.Context(), key, resStatus, resBody); err != nil {
			slog.Error("❌ Failed to save Idempotency Key", "error", err, "key", key)
		} else {
			slog.Info("💾 Idempotency Key Saved", "key", key)
		}
		return nil
	}
}
