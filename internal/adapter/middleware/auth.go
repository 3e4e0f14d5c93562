package middleware

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/ibrahimkeyboad/ezledger/internal/adapter/handler"
	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
	"github.com/ibrahimkeyboad/ezledger/internal/core/security"
)

// KeyStore resolves a hashed API key to its account.
type KeyStore interface {
	AccountByAPIKeyHash(ctx context.Context, keyHash string) (domain.Account, error)
}

// Protected authenticates "Authorization: Bearer <key>" and stores the caller's
// account under handler.LocalsAccount.
func Protected(keys KeyStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return handler.Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing API Key")
		}
		apiKey, ok := security.BearerToken(authHeader)
		if !ok {
			return handler.Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid Header Format")
		}

		// We never compare plain text.
		account, err := keys.AccountByAPIKeyHash(c.Context(), security.HashKey(apiKey))
		if err != nil {
			return handler.Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API Key")
		}

		c.Locals(handler.LocalsAccount, account)
		return c.Next()
	}
}

// RequireAdmin lets only administrator accounts through. It must run after Protected.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, ok := handler.Caller(c)
		if !ok {
			return handler.Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing API Key")
		}
		if !caller.IsAdmin() {
			return handler.Fail(c, http.StatusForbidden, "FORBIDDEN", "administrator role required")
		}
		return c.Next()
	}
}
