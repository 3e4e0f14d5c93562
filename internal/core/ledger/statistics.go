package ledger

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
	"github.com/ibrahimkeyboad/ezledger/internal/core/metrics"
)

type receiverTotals struct {
	id       uuid.UUID
	username string
	total    int64
	count    int64
}

// Statistics scans the whole transaction log once and returns the total volume,
// the record count and the top receivers by amount received. Ties are ordered
// by receiver id ascending. The scan reads a committed snapshot, so a transfer
// committing meanwhile is either fully counted or not at all.
func (s *Service) Statistics(ctx context.Context) (domain.Statistics, error) {
	const op = "statistics"
	start := time.Now()

	stats, err := s.statistics(ctx)
	metrics.ObserveLedgerOp(op, outcome(err), time.Since(start))
	if err != nil {
		return domain.Statistics{}, classify(op, err)
	}
	return stats, nil
}

func (s *Service) statistics(ctx context.Context) (domain.Statistics, error) {
	var (
		total int64
		count int64
		byID  = make(map[uuid.UUID]*receiverTotals)
	)
	err := s.store.ScanAll(ctx, func(rec domain.TransactionRecord) error {
		var ok bool
		if total, ok = domain.AddMinor(total, rec.Amount); !ok {
			return domain.E(domain.KindInfrastructure, "", "total volume overflows int64")
		}
		count++
		r, seen := byID[rec.ReceiverID]
		if !seen {
			r = &receiverTotals{id: rec.ReceiverID, username: rec.ReceiverUsername}
			byID[rec.ReceiverID] = r
		}
		if r.total, ok = domain.AddMinor(r.total, rec.Amount); !ok {
			return domain.E(domain.KindInfrastructure, "", "receiver volume overflows int64")
		}
		r.count++
		return nil
	})
	if err != nil {
		return domain.Statistics{}, err
	}

	top := rankReceivers(byID, TopReceiversLimit)
	out := domain.Statistics{
		TotalAmountTransferred: total,
		TotalTransactionCount:  count,
		TopReceivers:           make([]domain.TopReceiver, 0, len(top)),
	}
	for _, r := range top {
		entry := domain.TopReceiver{
			AccountID:        r.id,
			Username:         r.username,
			TotalReceived:    r.total,
			TransactionCount: r.count,
		}
		if acct, err := s.store.Get(ctx, r.id); err == nil {
			entry.Username = acct.Username
			entry.DisplayName = acct.DisplayName
		} else {
			s.logger.Warn("Statistics: receiver lookup failed", "error", err, "account_id", r.id)
		}
		out.TopReceivers = append(out.TopReceivers, entry)
	}
	return out, nil
}

func rankReceivers(byID map[uuid.UUID]*receiverTotals, n int) []*receiverTotals {
	list := make([]*receiverTotals, 0, len(byID))
	for _, r := range byID {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].total != list[j].total {
			return list[i].total > list[j].total
		}
		return bytes.Compare(list[i].id[:], list[j].id[:]) < 0
	})
	if len(list) > n {
		list = list[:n]
	}
	return list
}
