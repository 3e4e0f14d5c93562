package handler

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
	"github.com/ibrahimkeyboad/ezledger/internal/core/security"
)

// AccountRegistry creates accounts and stores their API keys.
type AccountRegistry interface {
	CreateAccount(ctx context.Context, username, displayName string, role domain.Role) (domain.Account, error)
	SaveAPIKey(ctx context.Context, accountID uuid.UUID, keyHash, keyPrefix string) error
}

type AccountHandler struct {
	Repo AccountRegistry
}

// CreateAccountRequest defines what the user sends us
type CreateAccountRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// AccountResponse is an account as shown to its owner.
type AccountResponse struct {
	ID          uuid.UUID   `json:"id"`
	Username    string      `json:"username"`
	DisplayName string      `json:"display_name"`
	Balance     Money       `json:"balance"`
	Role        domain.Role `json:"role"`
	CreatedAt   time.Time   `json:"created_at"`
}

func NewAccountResponse(a domain.Account) AccountResponse {
	return AccountResponse{
		ID:          a.ID,
		Username:    a.Username,
		DisplayName: a.DisplayName,
		Balance:     Money(a.Balance),
		Role:        a.Role,
		CreatedAt:   a.CreatedAt,
	}
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,50}$`)

// ValidateUsername rejects names a receiver lookup could confuse with an account id.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return domain.E(domain.KindInvalidRequest, "", "username must be 3-50 letters, digits, '.', '_' or '-'")
	}
	if _, err := uuid.Parse(username); err == nil {
		return domain.E(domain.KindInvalidRequest, "", "username must not be an account id")
	}
	return nil
}

// CreateAccount registers a user account and returns its first API key.
func (h *AccountHandler) CreateAccount(c *fiber.Ctx) error {
	var req CreateAccountRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Warn("Invalid account body", "error", err)
		return Fail(c, http.StatusBadRequest, domain.KindInvalidRequest.String(), "Invalid request body")
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := ValidateUsername(req.Username); err != nil {
		return Error(c, err)
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	account, err := h.Repo.CreateAccount(c.Context(), req.Username, req.DisplayName, domain.RoleUser)
	if err != nil {
		return Error(c, err)
	}

	realKey, err := h.issueKey(c.Context(), account.ID)
	if err != nil {
		return Error(c, err)
	}

	slog.Info("✅ Account Created", "id", account.ID, "username", account.Username)
	return OK(c, http.StatusCreated, "Account created. Save the API key now, it is shown only once.", fiber.Map{
		"account": NewAccountResponse(account),
		"api_key": realKey,
	})
}

// GenerateKey issues another key. Callers may only mint keys for themselves
// unless they are administrators.
func (h *AccountHandler) GenerateKey(c *fiber.Ctx) error {
	accountID, err := paramUUID(c, "id")
	if err != nil {
		return Error(c, err)
	}
	caller, ok := Caller(c)
	if !ok {
		return Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing API Key")
	}
	if caller.ID != accountID && !caller.IsAdmin() {
		return Fail(c, http.StatusForbidden, "FORBIDDEN", "cannot issue keys for another account")
	}

	realKey, err := h.issueKey(c.Context(), accountID)
	if err != nil {
		return Error(c, err)
	}

	slog.Info("🔑 API Key Generated", "account_id", accountID, "issued_by", caller.ID)
	return OK(c, http.StatusCreated, "Save this now! We won't show it again.", fiber.Map{
		"api_key": realKey,
	})
}

func (h *AccountHandler) issueKey(ctx context.Context, accountID uuid.UUID) (string, error) {
	realKey, keyHash, prefix, err := security.GenerateAPIKey()
	if err != nil {
		return "", err
	}
	if err := h.Repo.SaveAPIKey(ctx, accountID, keyHash, prefix); err != nil {
		return "", err
	}
	return realKey, nil
}

// Me returns the caller's account with its current balance.
func (h *AccountHandler) Me(c *fiber.Ctx) error {
	caller, ok := Caller(c)
	if !ok {
		return Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing API Key")
	}
	return OK(c, http.StatusOK, "Account", NewAccountResponse(caller))
}
