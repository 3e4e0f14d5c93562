package ledger

import (
	"bytes"
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
	"github.com/ibrahimkeyboad/ezledger/internal/core/metrics"
)

// TransferRequest moves Amount from the caller to Receiver.
// Receiver is an account id or a username.
type TransferRequest struct {
	SenderID uuid.UUID
	Receiver string
	Amount   int64
	Memo     string
}

// Transfer validates and executes a two-party balance movement and appends the
// resulting record to the transaction log. Checks run in this order and stop
// at the first failure: amount, sender, receiver, self-transfer, memo, balance.
// Transfers are not idempotent; repeating a request moves the money again.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (domain.TransactionRecord, error) {
	start := time.Now()
	rec, err := s.transfer(ctx, req)
	metrics.ObserveLedgerOp("transfer", outcome(err), time.Since(start))
	if err != nil {
		if domain.KindOf(err) == domain.KindInfrastructure {
			s.logger.Error("Transfer failed", "error", err, "sender_id", req.SenderID)
		} else {
			s.logger.Warn("Transfer rejected", "error", err, "sender_id", req.SenderID, "amount", req.Amount)
		}
		return domain.TransactionRecord{}, err
	}
	metrics.AddMovedAmount("transfer", rec.Amount)
	s.logger.Info("Transfer committed",
		"transaction_id", rec.ID,
		"sender_id", rec.SenderID,
		"receiver_id", rec.ReceiverID,
		"amount", rec.Amount,
	)
	return rec, nil
}

func (s *Service) transfer(ctx context.Context, req TransferRequest) (domain.TransactionRecord, error) {
	const op = "transfer"

	if req.Amount <= 0 {
		return domain.TransactionRecord{}, domain.E(domain.KindInvalidAmount, op, "amount must be positive")
	}
	if s.cfg.MaxTransferAmount > 0 && req.Amount > s.cfg.MaxTransferAmount {
		return domain.TransactionRecord{}, domain.E(domain.KindInvalidAmount, op,
			fmt.Sprintf("amount %d exceeds maximum %d", req.Amount, s.cfg.MaxTransferAmount))
	}

	sender, err := s.store.Get(ctx, req.SenderID)
	if err != nil {
		if domain.KindOf(err) == domain.KindAccountNotFound {
			return domain.TransactionRecord{}, domain.E(domain.KindAccountNotFound, op, "sender not found")
		}
		return domain.TransactionRecord{}, classify(op, err)
	}
	receiver, err := s.resolve(ctx, op, "receiver", req.Receiver)
	if err != nil {
		return domain.TransactionRecord{}, err
	}
	self := sender.ID == receiver.ID
	if self && !s.cfg.AllowSelfTransfer {
		return domain.TransactionRecord{}, domain.E(domain.KindSelfTransfer, op, "cannot transfer to yourself")
	}
	if n := utf8.RuneCountInString(req.Memo); s.cfg.MaxMemoLength > 0 && n > s.cfg.MaxMemoLength {
		return domain.TransactionRecord{}, domain.E(domain.KindInvalidRequest, op,
			fmt.Sprintf("memo has %d characters, maximum is %d", n, s.cfg.MaxMemoLength))
	}
	if sender.Balance < req.Amount {
		return domain.TransactionRecord{}, insufficient(op, sender.Balance, req.Amount)
	}

	release, err := s.lock(ctx, op, sender.ID, receiver.ID)
	if err != nil {
		return domain.TransactionRecord{}, err
	}
	defer release()

	var rec domain.TransactionRecord
	err = s.withRetry(ctx, op, func() error {
		var cerr error
		rec, cerr = s.commitTransfer(ctx, sender.ID, receiver.ID, req)
		return cerr
	})
	if err != nil {
		return domain.TransactionRecord{}, classify(op, err)
	}

	s.notifyTransfer(rec)
	return rec, nil
}

// commitTransfer re-reads both accounts under the locks, re-checks the balance
// and writes debit, credit and record in one unit of work.
func (s *Service) commitTransfer(ctx context.Context, senderID, receiverID uuid.UUID, req TransferRequest) (domain.TransactionRecord, error) {
	const op = "transfer"
	var rec domain.TransactionRecord

	err := s.store.WithTx(ctx, func(tx Tx) error {
		from, err := tx.Get(ctx, senderID)
		if err != nil {
			return err
		}
		to := from
		if receiverID != senderID {
			if to, err = tx.Get(ctx, receiverID); err != nil {
				return err
			}
		}

		fromBalance, err := domain.Debit(from.Balance, req.Amount)
		if err != nil {
			return insufficient(op, from.Balance, req.Amount)
		}

		if receiverID == senderID {
			// Net zero; the write still bumps the version so the record is ordered
			// against other writers of this account.
			if _, err := tx.CompareAndSave(ctx, from, from.Version); err != nil {
				return err
			}
		} else {
			toBalance, err := domain.Credit(to.Balance, req.Amount, 0)
			if err != nil {
				return domain.E(domain.KindLimitExceeded, op, "receiver balance would overflow")
			}
			now := s.clock.Now()
			debited, credited := from, to
			debited.Balance, debited.UpdatedAt = fromBalance, now
			credited.Balance, credited.UpdatedAt = toBalance, now

			// Same order as the locks, so row locks in a shared database are
			// taken in a consistent order too.
			first, second := debited, credited
			if bytes.Compare(second.ID[:], first.ID[:]) < 0 {
				first, second = second, first
			}
			if _, err := tx.CompareAndSave(ctx, first, first.Version); err != nil {
				return err
			}
			if _, err := tx.CompareAndSave(ctx, second, second.Version); err != nil {
				return err
			}
		}

		appended, err := tx.Append(ctx, domain.TransactionRecord{
			ID:               uuid.New(),
			SenderID:         from.ID,
			SenderUsername:   from.Username,
			ReceiverID:       to.ID,
			ReceiverUsername: to.Username,
			Amount:           req.Amount,
			Memo:             req.Memo,
			CreatedAt:        s.clock.Now(),
		})
		if err != nil {
			return err
		}
		rec = appended
		return nil
	})
	return rec, err
}

func (s *Service) notifyTransfer(rec domain.TransactionRecord) {
	id := rec.ID
	s.notifier.Notify(rec.SenderID, domain.EventTransferSent, domain.EventPayload{
		TransactionID: &id,
		Amount:        rec.Amount,
		Counterparty:  rec.ReceiverUsername,
		Memo:          rec.Memo,
		OccurredAt:    rec.CreatedAt,
	})
	if rec.ReceiverID == rec.SenderID {
		return
	}
	s.notifier.Notify(rec.ReceiverID, domain.EventTransferReceived, domain.EventPayload{
		TransactionID: &id,
		Amount:        rec.Amount,
		Counterparty:  rec.SenderUsername,
		Memo:          rec.Memo,
		OccurredAt:    rec.CreatedAt,
	})
}

func insufficient(op string, balance, amount int64) error {
	return domain.E(domain.KindInsufficientBalance, op,
		fmt.Sprintf("balance %d is below requested amount %d", balance, amount))
}
