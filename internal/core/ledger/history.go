package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
	"github.com/ibrahimkeyboad/ezledger/internal/core/metrics"
)

// History returns every transfer the account took part in, newest first.
func (s *Service) History(ctx context.Context, accountID uuid.UUID) ([]domain.TransactionRecord, error) {
	return s.HistoryPage(ctx, accountID, 0)
}

// HistoryPage is History capped at limit records; limit <= 0 means no cap.
// It takes no account locks and only sees committed records.
func (s *Service) HistoryPage(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TransactionRecord, error) {
	const op = "history"
	start := time.Now()

	recs, err := s.history(ctx, accountID, limit)
	metrics.ObserveLedgerOp(op, outcome(err), time.Since(start))
	if err != nil {
		return nil, classify(op, err)
	}
	return recs, nil
}

func (s *Service) history(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TransactionRecord, error) {
	if _, err := s.store.Get(ctx, accountID); err != nil {
		return nil, err
	}
	recs, err := s.store.QueryByParticipant(ctx, accountID, limit)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []domain.TransactionRecord{}
	}
	return recs, nil
}
