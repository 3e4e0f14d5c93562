package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
	"github.com/ibrahimkeyboad/ezledger/internal/core/metrics"
)

// TopUpRequest credits Target. The caller must already be authorized as an
// administrator; ActorID is kept in the audit trail.
type TopUpRequest struct {
	ActorID uuid.UUID
	Target  string
	Amount  int64
}

// TopUp credits a single account within MaxTopUpAmount and MaxAccountBalance.
// It writes a TopUpRecord to the audit trail, never to the transaction log.
func (s *Service) TopUp(ctx context.Context, req TopUpRequest) (domain.TopUpRecord, error) {
	start := time.Now()
	rec, err := s.topUp(ctx, req)
	metrics.ObserveLedgerOp("top_up", outcome(err), time.Since(start))
	if err != nil {
		if domain.KindOf(err) == domain.KindInfrastructure {
			s.logger.Error("Top-up failed", "error", err, "target", req.Target)
		} else {
			s.logger.Warn("Top-up rejected", "error", err, "target", req.Target, "amount", req.Amount)
		}
		return domain.TopUpRecord{}, err
	}
	metrics.AddMovedAmount("top_up", rec.Amount)
	s.logger.Info("Top-up committed",
		"top_up_id", rec.ID,
		"account_id", rec.AccountID,
		"actor_id", rec.ActorID,
		"amount", rec.Amount,
		"balance_after", rec.BalanceAfter,
	)
	return rec, nil
}

func (s *Service) topUp(ctx context.Context, req TopUpRequest) (domain.TopUpRecord, error) {
	const op = "top-up"

	if req.Amount <= 0 {
		return domain.TopUpRecord{}, domain.E(domain.KindInvalidAmount, op, "amount must be positive")
	}
	if s.cfg.MaxTopUpAmount > 0 && req.Amount > s.cfg.MaxTopUpAmount {
		return domain.TopUpRecord{}, domain.E(domain.KindLimitExceeded, op,
			fmt.Sprintf("top-up amount exceeds maximum limit of %d", s.cfg.MaxTopUpAmount))
	}
	target, err := s.resolve(ctx, op, "target", req.Target)
	if err != nil {
		return domain.TopUpRecord{}, err
	}
	if _, err := s.credit(op, target.Balance, req.Amount); err != nil {
		return domain.TopUpRecord{}, err
	}

	release, err := s.lock(ctx, op, target.ID)
	if err != nil {
		return domain.TopUpRecord{}, err
	}
	defer release()

	var rec domain.TopUpRecord
	err = s.withRetry(ctx, op, func() error {
		return s.store.WithTx(ctx, func(tx Tx) error {
			acct, err := tx.Get(ctx, target.ID)
			if err != nil {
				return err
			}
			balance, err := s.credit(op, acct.Balance, req.Amount)
			if err != nil {
				return err
			}
			acct.Balance = balance
			acct.UpdatedAt = s.clock.Now()
			saved, err := tx.CompareAndSave(ctx, acct, acct.Version)
			if err != nil {
				return err
			}
			rec, err = tx.AppendTopUp(ctx, domain.TopUpRecord{
				ID:           uuid.New(),
				AccountID:    saved.ID,
				ActorID:      req.ActorID,
				Amount:       req.Amount,
				BalanceAfter: saved.Balance,
				CreatedAt:    saved.UpdatedAt,
			})
			return err
		})
	})
	if err != nil {
		return domain.TopUpRecord{}, classify(op, err)
	}

	id := rec.ID
	s.notifier.Notify(rec.AccountID, domain.EventTopUp, domain.EventPayload{
		TransactionID: &id,
		Amount:        rec.Amount,
		OccurredAt:    rec.CreatedAt,
	})
	return rec, nil
}

// credit applies the top-up ceilings to balance + amount.
func (s *Service) credit(op string, balance, amount int64) (int64, error) {
	if s.cfg.MaxTopUpAmount > 0 && amount > s.cfg.MaxTopUpAmount {
		return 0, domain.E(domain.KindLimitExceeded, op,
			fmt.Sprintf("top-up amount exceeds maximum limit of %d", s.cfg.MaxTopUpAmount))
	}
	next, err := domain.Credit(balance, amount, s.cfg.MaxAccountBalance)
	if err != nil {
		return 0, domain.E(domain.KindLimitExceeded, op, "top-up would exceed maximum account balance limit")
	}
	return next, nil
}

// TopUps lists the audit trail of one account, newest first.
func (s *Service) TopUps(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TopUpRecord, error) {
	const op = "top-ups"
	if _, err := s.store.Get(ctx, accountID); err != nil {
		return nil, classify(op, err)
	}
	recs, err := s.store.ListTopUps(ctx, accountID, limit)
	if err != nil {
		return nil, classify(op, err)
	}
	if recs == nil {
		recs = []domain.TopUpRecord{}
	}
	return recs, nil
}
