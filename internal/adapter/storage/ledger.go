package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ibrahimkeyboad/ezledger/internal/core/ledger"
)

// Store is the PostgreSQL implementation of the ledger store. Outside WithTx
// every call runs on the pool in its own implicit transaction.
type Store struct {
	accountRepo
	ledgerRepo
	Db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		accountRepo: accountRepo{q: db},
		ledgerRepo:  ledgerRepo{q: db},
		Db:          db,
	}
}

type pgTx struct {
	accountRepo
	ledgerRepo
}

// WithTx runs fn in one READ COMMITTED transaction. The version check in
// CompareAndSave is what detects lost updates, so a stronger isolation level
// is not needed.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(pgTx{accountRepo: accountRepo{q: tx}, ledgerRepo: ledgerRepo{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Tx    = pgTx{}
)
