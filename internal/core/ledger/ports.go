package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
)

// AccountStore reads accounts and writes them under an optimistic version check.
// Missing accounts are reported as domain.ErrAccountNotFound, version mismatches
// as domain.ErrConflict.
type AccountStore interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Account, error)
	GetByName(ctx context.Context, username string) (domain.Account, error)
	// CompareAndSave writes acct if the stored version equals expectedVersion and
	// returns the saved account with its new version.
	CompareAndSave(ctx context.Context, acct domain.Account, expectedVersion int64) (domain.Account, error)
}

// TransactionLog is the append-only store of completed transfers.
type TransactionLog interface {
	Append(ctx context.Context, rec domain.TransactionRecord) (domain.TransactionRecord, error)
	// QueryByParticipant returns records where the account is sender or receiver,
	// newest first. limit <= 0 returns everything.
	QueryByParticipant(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TransactionRecord, error)
	// ScanAll calls fn once per record over a consistent snapshot of the log.
	ScanAll(ctx context.Context, fn func(domain.TransactionRecord) error) error
}

// TopUpLog is the audit trail of privileged credits.
type TopUpLog interface {
	AppendTopUp(ctx context.Context, rec domain.TopUpRecord) (domain.TopUpRecord, error)
	ListTopUps(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TopUpRecord, error)
}

// Tx is the store as seen inside one atomic unit of work.
type Tx interface {
	AccountStore
	TransactionLog
	TopUpLog
}

// Store commits account writes and log appends together through WithTx:
// if fn returns an error nothing it wrote is kept.
type Store interface {
	Tx
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Notifier is told about committed changes. Implementations must not block
// and their failures never reach the ledger caller.
type Notifier interface {
	Notify(accountID uuid.UUID, kind domain.EventKind, payload domain.EventPayload)
}

type noopNotifier struct{}

func (noopNotifier) Notify(uuid.UUID, domain.EventKind, domain.EventPayload) {}
