package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
)

const accountColumns = `id, username, display_name, balance, role, version, created_at, updated_at`

type accountRepo struct {
	q querier
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var acc domain.Account
	err := row.Scan(
		&acc.ID, &acc.Username, &acc.DisplayName, &acc.Balance,
		&acc.Role, &acc.Version, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("failed to read account: %w", err)
	}
	return acc, nil
}

// CreateAccount
func (r accountRepo) CreateAccount(ctx context.Context, username, displayName string, role domain.Role) (domain.Account, error) {
	query := `
		INSERT INTO accounts (username, display_name, role, balance)
		VALUES ($1, $2, $3, 0)
		RETURNING ` + accountColumns
	acc, err := scanAccount(r.q.QueryRow(ctx, query, username, displayName, role))
	if isUniqueViolation(err) {
		return domain.Account{}, domain.ErrUsernameTaken
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("failed to create account: %w", err)
	}
	return acc, nil
}

func (r accountRepo) Get(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.q.QueryRow(ctx, query, id))
}

func (r accountRepo) GetByName(ctx context.Context, username string) (domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(username) = lower($1)`
	return scanAccount(r.q.QueryRow(ctx, query, username))
}

// CompareAndSave writes balance and updated_at only if nobody bumped the
// version since acct was read. Inside a transaction the UPDATE also takes the
// row lock until commit.
func (r accountRepo) CompareAndSave(ctx context.Context, acct domain.Account, expectedVersion int64) (domain.Account, error) {
	query := `
		UPDATE accounts
		SET balance = $1, display_name = $2, updated_at = $3, version = version + 1
		WHERE id = $4 AND version = $5
		RETURNING ` + accountColumns
	saved, err := scanAccount(r.q.QueryRow(ctx, query,
		acct.Balance, acct.DisplayName, acct.UpdatedAt, acct.ID, expectedVersion))
	if errors.Is(err, domain.ErrAccountNotFound) {
		// Either the row is gone or the version moved on.
		if _, getErr := r.Get(ctx, acct.ID); getErr != nil {
			return domain.Account{}, getErr
		}
		return domain.Account{}, domain.ErrConflict
	}
	return saved, err
}

// SaveAPIKey stores the hashed key for the account
func (r accountRepo) SaveAPIKey(ctx context.Context, accountID uuid.UUID, keyHash, keyPrefix string) error {
	query := `INSERT INTO api_keys (account_id, key_hash, key_prefix) VALUES ($1, $2, $3)`
	if _, err := r.q.Exec(ctx, query, accountID, keyHash, keyPrefix); err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrAccountNotFound
		}
		return fmt.Errorf("failed to save api key: %w", err)
	}
	return nil
}

// AccountByAPIKeyHash resolves the owner of an active key.
func (r accountRepo) AccountByAPIKeyHash(ctx context.Context, keyHash string) (domain.Account, error) {
	query := `
		SELECT a.id, a.username, a.display_name, a.balance, a.role, a.version, a.created_at, a.updated_at
		FROM api_keys k
		JOIN accounts a ON a.id = k.account_id
		WHERE k.key_hash = $1 AND k.is_active = TRUE`
	return scanAccount(r.q.QueryRow(ctx, query, keyHash))
}
