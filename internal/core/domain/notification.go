package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names what happened to an account.
type EventKind string

const (
	EventTransferSent     EventKind = "TRANSFER_SENT"
	EventTransferReceived EventKind = "TRANSFER_RECEIVED"
	EventTopUp            EventKind = "TOP_UP"
)

// Notification is stored for the account owner and read back through the API.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	AccountID uuid.UUID  `json:"account_id"`
	Kind      EventKind  `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	RelatedID *uuid.UUID `json:"related_id,omitempty"`
	Read      bool       `json:"is_read"`
	CreatedAt time.Time  `json:"created_at"`
}

// WebhookJob is a queued outbound delivery of an event payload.
type WebhookJob struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	Payload   []byte    `json:"payload"`
	Attempts  int       `json:"attempts"`
	Status    string    `json:"status"`
	NextRunAt time.Time `json:"next_run_at"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	JobPending    = "PENDING"
	JobProcessing = "PROCESSING"
	JobCompleted  = "COMPLETED"
	JobFailed     = "FAILED"
)

// EventPayload carries the facts of a committed ledger change to the dispatcher.
type EventPayload struct {
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	Amount        int64      `json:"amount"`
	Counterparty  string     `json:"counterparty,omitempty"`
	Memo          string     `json:"memo,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}
