// Package server assembles the fiber application: middleware chain and routes.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/ibrahimkeyboad/ezledger/internal/adapter/handler"
	"github.com/ibrahimkeyboad/ezledger/internal/adapter/middleware"
	"github.com/ibrahimkeyboad/ezledger/internal/core/ledger"
	"github.com/ibrahimkeyboad/ezledger/internal/core/metrics"
	"github.com/ibrahimkeyboad/ezledger/internal/core/notifications"
)

// Deps is everything the HTTP layer talks to.
type Deps struct {
	Ledger   *ledger.Service
	Accounts handler.AccountRegistry
	Keys     middleware.KeyStore
	Cache    middleware.ResponseCache
	Inbox    *notifications.Inbox
	Limiter  *middleware.RateLimiter // nil disables rate limiting
	Ping     func(ctx context.Context) error
}

func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			return handler.Fail(c, code, http.StatusText(code), err.Error())
		},
	})

	app.Use(cors.New())
	app.Use(middleware.Metrics())

	accountHandler := &handler.AccountHandler{Repo: d.Accounts}
	transactionHandler := &handler.TransactionHandler{Ledger: d.Ledger}
	notificationHandler := &handler.NotificationHandler{Inbox: d.Inbox}

	limit := func(c *fiber.Ctx) error { return c.Next() }
	if d.Limiter != nil {
		limit = d.Limiter.Handler()
	}
	idempotent := middleware.Idempotency(d.Cache)
	admin := middleware.RequireAdmin()

	api := app.Group("/v1")

	// Public
	api.Get("/health", health(d.Ping))
	api.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	api.Post("/accounts", limit, accountHandler.CreateAccount)

	// Protected: everything registered below requires an API key.
	private := api.Group("", middleware.Protected(d.Keys), limit)
	private.Get("/me", accountHandler.Me)
	private.Post("/accounts/:id/keys", accountHandler.GenerateKey)

	private.Post("/transactions", idempotent, transactionHandler.Transfer)
	private.Get("/transactions", transactionHandler.History)

	// Admin
	private.Post("/transactions/top-up", admin, idempotent, transactionHandler.TopUp)
	private.Get("/transactions/statistics", admin, transactionHandler.Statistics)
	private.Get("/accounts/:id/top-ups", admin, transactionHandler.TopUps)

	private.Get("/notifications", notificationHandler.List)
	private.Get("/notifications/unread", notificationHandler.Unread)
	private.Get("/notifications/recent", notificationHandler.Recent)
	private.Get("/notifications/unread-count", notificationHandler.UnreadCount)
	private.Put("/notifications/read-all", notificationHandler.MarkAllRead)
	private.Put("/notifications/:id/read", notificationHandler.MarkRead)

	return app
}

func health(ping func(ctx context.Context) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				return handler.Fail(c, http.StatusServiceUnavailable, "UNHEALTHY", "database unreachable")
			}
		}
		return handler.OK(c, http.StatusOK, "ok", nil)
	}
}
