package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Account represents a user's balance. Balance is stored in minor units (cents)
// and Version increases by one on every successful write.
type Account struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Balance     int64     `json:"balance"`
	Role        Role      `json:"role"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (a Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// TransactionRecord is a completed peer-to-peer transfer. Records are append-only.
// Seq is assigned by the transaction log and orders records within it.
type TransactionRecord struct {
	ID               uuid.UUID `json:"id"`
	Seq              int64     `json:"seq"`
	SenderID         uuid.UUID `json:"sender_id"`
	SenderUsername   string    `json:"sender_username"`
	ReceiverID       uuid.UUID `json:"receiver_id"`
	ReceiverUsername string    `json:"receiver_username"`
	Amount           int64     `json:"amount"`
	Memo             string    `json:"memo,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// TopUpRecord is the audit entry written for every privileged credit.
// Top-ups never appear in the transaction log.
type TopUpRecord struct {
	ID           uuid.UUID `json:"id"`
	AccountID    uuid.UUID `json:"account_id"`
	ActorID      uuid.UUID `json:"actor_id"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// Statistics is the aggregate view over the whole transaction log.
type Statistics struct {
	TotalAmountTransferred int64         `json:"total_amount_transferred"`
	TotalTransactionCount  int64         `json:"total_transaction_count"`
	TopReceivers           []TopReceiver `json:"top_receivers"`
}

type TopReceiver struct {
	AccountID        uuid.UUID `json:"account_id"`
	Username         string    `json:"username"`
	DisplayName      string    `json:"display_name"`
	TotalReceived    int64     `json:"total_received"`
	TransactionCount int64     `json:"transaction_count"`
}
