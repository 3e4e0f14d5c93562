package handler

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
	"github.com/ibrahimkeyboad/ezledger/internal/core/ledger"
)

type TransactionHandler struct {
	Ledger *ledger.Service
}

// TransferRequest names the receiver by username or account id.
// Amount is in major units, e.g. 25.50.
type TransferRequest struct {
	Receiver string          `json:"receiver"`
	Amount   decimal.Decimal `json:"amount"`
	Memo     string          `json:"memo"`
}

type TopUpRequest struct {
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

type TransactionResponse struct {
	ID               uuid.UUID `json:"id"`
	SenderID         uuid.UUID `json:"sender_id"`
	SenderUsername   string    `json:"sender_username"`
	ReceiverID       uuid.UUID `json:"receiver_id"`
	ReceiverUsername string    `json:"receiver_username"`
	Amount           Money     `json:"amount"`
	Memo             string    `json:"memo,omitempty"`
	Direction        string    `json:"direction,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewTransactionResponse renders rec. Direction is relative to viewer and
// omitted when viewer is uuid.Nil.
func NewTransactionResponse(rec domain.TransactionRecord, viewer uuid.UUID) TransactionResponse {
	out := TransactionResponse{
		ID:               rec.ID,
		SenderID:         rec.SenderID,
		SenderUsername:   rec.SenderUsername,
		ReceiverID:       rec.ReceiverID,
		ReceiverUsername: rec.ReceiverUsername,
		Amount:           Money(rec.Amount),
		Memo:             rec.Memo,
		CreatedAt:        rec.CreatedAt,
	}
	switch viewer {
	case uuid.Nil:
	case rec.SenderID:
		out.Direction = "DEBIT"
	default:
		out.Direction = "CREDIT"
	}
	return out
}

type TopUpResponse struct {
	ID           uuid.UUID `json:"id"`
	AccountID    uuid.UUID `json:"account_id"`
	ActorID      uuid.UUID `json:"actor_id"`
	Amount       Money     `json:"amount"`
	BalanceAfter Money     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewTopUpResponse(rec domain.TopUpRecord) TopUpResponse {
	return TopUpResponse{
		ID:           rec.ID,
		AccountID:    rec.AccountID,
		ActorID:      rec.ActorID,
		Amount:       Money(rec.Amount),
		BalanceAfter: Money(rec.BalanceAfter),
		CreatedAt:    rec.CreatedAt,
	}
}

type TopReceiverResponse struct {
	AccountID        uuid.UUID `json:"account_id"`
	Username         string    `json:"username"`
	DisplayName      string    `json:"display_name"`
	TotalReceived    Money     `json:"total_received"`
	TransactionCount int64     `json:"transaction_count"`
}

type StatisticsResponse struct {
	TotalAmountTransferred Money                 `json:"total_amount_transferred"`
	TotalTransactionCount  int64                 `json:"total_transaction_count"`
	TopReceivers           []TopReceiverResponse `json:"top_receivers"`
}

// Transfer API
func (h *TransactionHandler) Transfer(c *fiber.Ctx) error {
	caller, ok := Caller(c)
	if !ok {
		return Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing API Key")
	}
	var req TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return Fail(c, http.StatusBadRequest, domain.KindInvalidRequest.String(), "Invalid body")
	}
	amount, err := ToMinor(req.Amount)
	if err != nil {
		return Error(c, err)
	}

	rec, err := h.Ledger.Transfer(c.Context(), ledger.TransferRequest{
		SenderID: caller.ID,
		Receiver: req.Receiver,
		Amount:   amount,
		Memo:     req.Memo,
	})
	if err != nil {
		return Error(c, err)
	}
	return OK(c, http.StatusCreated, "Transfer Complete!", NewTransactionResponse(rec, caller.ID))
}

// History lists the caller's transfers, newest first. ?limit= caps the list.
func (h *TransactionHandler) History(c *fiber.Ctx) error {
	caller, ok := Caller(c)
	if !ok {
		return Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing API Key")
	}
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return Fail(c, http.StatusBadRequest, domain.KindInvalidRequest.String(), "limit must not be negative")
	}

	history, err := h.Ledger.HistoryPage(c.Context(), caller.ID, limit)
	if err != nil {
		return Error(c, err)
	}
	out := make([]TransactionResponse, 0, len(history))
	for _, rec := range history {
		out = append(out, NewTransactionResponse(rec, caller.ID))
	}
	return OK(c, http.StatusOK, "Transaction history", out)
}

// TopUp credits an account. Admin only.
func (h *TransactionHandler) TopUp(c *fiber.Ctx) error {
	caller, ok := Caller(c)
	if !ok {
		return Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing API Key")
	}
	var req TopUpRequest
	if err := c.BodyParser(&req); err != nil {
		return Fail(c, http.StatusBadRequest, domain.KindInvalidRequest.String(), "Invalid body")
	}
	amount, err := ToMinor(req.Amount)
	if err != nil {
		return Error(c, err)
	}

	rec, err := h.Ledger.TopUp(c.Context(), ledger.TopUpRequest{
		ActorID: caller.ID,
		Target:  req.Account,
		Amount:  amount,
	})
	if err != nil {
		return Error(c, err)
	}
	return OK(c, http.StatusCreated, "Money Deposited!", NewTopUpResponse(rec))
}

// TopUps lists the top-up audit trail of one account. Admin only.
func (h *TransactionHandler) TopUps(c *fiber.Ctx) error {
	accountID, err := paramUUID(c, "id")
	if err != nil {
		return Error(c, err)
	}
	recs, err := h.Ledger.TopUps(c.Context(), accountID, c.QueryInt("limit", 0))
	if err != nil {
		return Error(c, err)
	}
	out := make([]TopUpResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, NewTopUpResponse(rec))
	}
	return OK(c, http.StatusOK, "Top-up history", out)
}

// Statistics reports totals over the whole transaction log. Admin only.
func (h *TransactionHandler) Statistics(c *fiber.Ctx) error {
	stats, err := h.Ledger.Statistics(c.Context())
	if err != nil {
		return Error(c, err)
	}
	out := StatisticsResponse{
		TotalAmountTransferred: Money(stats.TotalAmountTransferred),
		TotalTransactionCount:  stats.TotalTransactionCount,
		TopReceivers:           make([]TopReceiverResponse, 0, len(stats.TopReceivers)),
	}
	for _, r := range stats.TopReceivers {
		out.TopReceivers = append(out.TopReceivers, TopReceiverResponse{
			AccountID:        r.AccountID,
			Username:         r.Username,
			DisplayName:      r.DisplayName,
			TotalReceived:    Money(r.TotalReceived),
			TransactionCount: r.TransactionCount,
		})
	}
	return OK(c, http.StatusOK, "Transaction statistics", out)
}
