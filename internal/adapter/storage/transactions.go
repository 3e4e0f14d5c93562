package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
)

const recordColumns = `id, seq, sender_id, sender_username, receiver_id, receiver_username, amount, memo, created_at`

type ledgerRepo struct {
	q querier
}

// Append inserts the transfer and its two double-entry rows.
func (r ledgerRepo) Append(ctx context.Context, rec domain.TransactionRecord) (domain.TransactionRecord, error) {
	err := r.q.QueryRow(ctx, `
		INSERT INTO transactions (id, sender_id, sender_username, receiver_id, receiver_username, amount, memo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq`,
		rec.ID, rec.SenderID, rec.SenderUsername, rec.ReceiverID, rec.ReceiverUsername,
		rec.Amount, rec.Memo, rec.CreatedAt,
	).Scan(&rec.Seq)
	if err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("failed to insert transaction: %w", err)
	}

	if _, err := r.q.Exec(ctx, `INSERT INTO entries (transaction_id, account_id, direction, amount) VALUES ($1, $2, 'DEBIT', $3)`, rec.ID, rec.SenderID, rec.Amount); err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("failed to insert debit entry: %w", err)
	}
	if _, err := r.q.Exec(ctx, `INSERT INTO entries (transaction_id, account_id, direction, amount) VALUES ($1, $2, 'CREDIT', $3)`, rec.ID, rec.ReceiverID, rec.Amount); err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("failed to insert credit entry: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (domain.TransactionRecord, error) {
	var rec domain.TransactionRecord
	err := row.Scan(
		&rec.ID, &rec.Seq, &rec.SenderID, &rec.SenderUsername, &rec.ReceiverID,
		&rec.ReceiverUsername, &rec.Amount, &rec.Memo, &rec.CreatedAt,
	)
	return rec, err
}

// QueryByParticipant fetches the account's transfers, newest first.
func (r ledgerRepo) QueryByParticipant(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TransactionRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM transactions
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC, seq DESC`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	history := []domain.TransactionRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		history = append(history, rec)
	}
	return history, rows.Err()
}

// ScanAll streams the log in seq order. A single SELECT reads one snapshot,
// so transfers committing during the scan are either wholly in or wholly out.
func (r ledgerRepo) ScanAll(ctx context.Context, fn func(domain.TransactionRecord) error) error {
	rows, err := r.q.Query(ctx, `SELECT `+recordColumns+` FROM transactions ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("failed to scan transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return fmt.Errorf("failed to scan transaction: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r ledgerRepo) AppendTopUp(ctx context.Context, rec domain.TopUpRecord) (domain.TopUpRecord, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO top_ups (id, account_id, actor_id, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.AccountID, rec.ActorID, rec.Amount, rec.BalanceAfter, rec.CreatedAt)
	if err != nil {
		return domain.TopUpRecord{}, fmt.Errorf("failed to insert top-up: %w", err)
	}
	return rec, nil
}

func (r ledgerRepo) ListTopUps(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TopUpRecord, error) {
	query := `
		SELECT id, account_id, actor_id, amount, balance_after, created_at
		FROM top_ups
		WHERE account_id = $1
		ORDER BY created_at DESC`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query top-ups: %w", err)
	}
	defer rows.Close()

	out := []domain.TopUpRecord{}
	for rows.Next() {
		var rec domain.TopUpRecord
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.ActorID, &rec.Amount, &rec.BalanceAfter, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan top-up: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
