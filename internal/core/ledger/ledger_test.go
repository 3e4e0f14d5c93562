package ledger_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibrahimkeyboad/ezledger/internal/adapter/storage/memory"
	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
	"github.com/ibrahimkeyboad/ezledger/internal/core/ledger"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

type event struct {
	account uuid.UUID
	kind    domain.EventKind
	payload domain.EventPayload
}

func (n *recordingNotifier) Notify(id uuid.UUID, kind domain.EventKind, p domain.EventPayload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event{id, kind, p})
}

func (n *recordingNotifier) all() []event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]event(nil), n.events...)
}

type fixture struct {
	store    *memory.Store
	svc      *ledger.Service
	notifier *recordingNotifier
}

func newFixture(t *testing.T, mutate ...func(*ledger.Config)) *fixture {
	t.Helper()
	cfg := ledger.DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	store := memory.New()
	n := &recordingNotifier{}
	return &fixture{store: store, svc: ledger.New(store, cfg, ledger.WithNotifier(n)), notifier: n}
}

func (f *fixture) account(t *testing.T, username string, balance int64) domain.Account {
	t.Helper()
	acct := domain.Account{ID: uuid.New(), Username: username, DisplayName: strings.ToUpper(username), Balance: balance, Role: domain.RoleUser}
	f.store.Put(acct)
	got, err := f.store.Get(context.Background(), acct.ID)
	require.NoError(t, err)
	return got
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	acct, err := f.svc.Account(context.Background(), id)
	require.NoError(t, err)
	return acct.Balance
}

// =============================================================================
// Transfer
// =============================================================================

func TestTransferMovesMoneyAndRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, "alice", 10_000)
	b := f.account(t, "bob", 0)

	rec, err := f.svc.Transfer(ctx, ledger.TransferRequest{SenderID: a.ID, Receiver: "bob", Amount: 2_550, Memo: "lunch"})
	require.NoError(t, err)

	assert.Equal(t, int64(7_450), f.balance(t, a.ID))
	assert.Equal(t, int64(2_550), f.balance(t, b.ID))
	assert.Equal(t, a.ID, rec.SenderID)
	assert.Equal(t, b.ID, rec.ReceiverID)
	assert.Equal(t, "alice", rec.SenderUsername)
	assert.Equal(t, "bob", rec.ReceiverUsername)
	assert.Equal(t, "lunch", rec.Memo)
	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		history, err := f.svc.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, rec.ID, history[0].ID)
	}

	events := f.notifier.all()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTransferSent, events[0].kind)
	assert.Equal(t, a.ID, events[0].account)
	assert.Equal(t, "bob", events[0].payload.Counterparty)
	assert.Equal(t, domain.EventTransferReceived, events[1].kind)
	assert.Equal(t, b.ID, events[1].account)
}

func TestTransferByReceiverID(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, "alice", 100)
	b := f.account(t, "bob", 0)

	_, err := f.svc.Transfer(context.Background(), ledger.TransferRequest{SenderID: a.ID, Receiver: b.ID.String(), Amount: 100})
	require.NoError(t, err)
	assert.Zero(t, f.balance(t, a.ID))
	assert.Equal(t, int64(100), f.balance(t, b.ID))
}

func TestTransferOfEntireBalance(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, "alice", 5_000)
	b := f.account(t, "bob", 0)

	_, err := f.svc.Transfer(context.Background(), ledger.TransferRequest{SenderID: a.ID, Receiver: "bob", Amount: 5_000})
	require.NoError(t, err)
	assert.Zero(t, f.balance(t, a.ID))
	assert.Equal(t, int64(5_000), f.balance(t, b.ID))
}

func TestTransferRejections(t *testing.T) {
	longMemo := strings.Repeat("ü", 501)

	tests := []struct {
		name   string
		req    func(a, b domain.Account) ledger.TransferRequest
		target error
	}{
		{
			name:   "zero amount",
			req:    func(a, b domain.Account) ledger.TransferRequest { return ledger.TransferRequest{SenderID: a.ID, Receiver: "bob", Amount: 0} },
			target: domain.ErrInvalidAmount,
		},
		{
			name:   "negative amount",
			req:    func(a, b domain.Account) ledger.TransferRequest { return ledger.TransferRequest{SenderID: a.ID, Receiver: "bob", Amount: -1} },
			target: domain.ErrInvalidAmount,
		},
		{
			name: "above transfer maximum",
			req: func(a, b domain.Account) ledger.TransferRequest {
				return ledger.TransferRequest{SenderID: a.ID, Receiver: "bob", Amount: 100_000_000_000}
			},
			target: domain.ErrInvalidAmount,
		},
		{
			name: "memo too long",
			req: func(a, b domain.Account) ledger.TransferRequest {
				return ledger.TransferRequest{SenderID: a.ID, Receiver: "bob", Amount: 1, Memo: longMemo}
			},
			target: domain.ErrInvalidRequest,
		},
		{
			name:   "empty receiver",
			req:    func(a, b domain.Account) ledger.TransferRequest { return ledger.TransferRequest{SenderID: a.ID, Amount: 1} },
			target: domain.ErrInvalidRequest,
		},
		{
			name: "unknown receiver",
			req: func(a, b domain.Account) ledger.TransferRequest {
				return ledger.TransferRequest{SenderID: a.ID, Receiver: "nobody", Amount: 1}
			},
			target: domain.ErrAccountNotFound,
		},
		{
			name: "unknown sender",
			req: func(a, b domain.Account) ledger.TransferRequest {
				return ledger.TransferRequest{SenderID: uuid.New(), Receiver: "bob", Amount: 1}
			},
			target: domain.ErrAccountNotFound,
		},
		{
			name:   "self transfer",
			req:    func(a, b domain.Account) ledger.TransferRequest { return ledger.TransferRequest{SenderID: a.ID, Receiver: "alice", Amount: 1} },
			target: domain.ErrSelfTransfer,
		},
		{
			name:   "insufficient balance",
			req:    func(a, b domain.Account) ledger.TransferRequest { return ledger.TransferRequest{SenderID: a.ID, Receiver: "bob", Amount: 1_001} },
			target: domain.ErrInsufficientBalance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			a := f.account(t, "alice", 1_000)
			b := f.account(t, "bob", 50)

			_, err := f.svc.Transfer(context.Background(), tt.req(a, b))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.False(t, domain.IsRetryable(err))

			assert.Equal(t, int64(1_000), f.balance(t, a.ID))
			assert.Equal(t, int64(50), f.balance(t, b.ID))
			stats, err := f.svc.Statistics(context.Background())
			require.NoError(t, err)
			assert.Zero(t, stats.TotalTransactionCount)
			assert.Empty(t, f.notifier.all())
		})
	}
}

func TestTransferMemoAtLimitIsAccepted(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, "alice", 10)
	f.account(t, "bob", 0)

	_, err := f.svc.Transfer(context.Background(), ledger.TransferRequest{
		SenderID: a.ID, Receiver: "bob", Amount: 1, Memo: strings.Repeat("ü", 500),
	})
	assert.NoError(t, err)
}

func TestTransferValidationOrder(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, "alice", 0)

	// Invalid amount wins over an unknown receiver and an empty balance.
	_, err := f.svc.Transfer(context.Background(), ledger.TransferRequest{SenderID: a.ID, Receiver: "ghost", Amount: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// Self-transfer is reported before the balance check.
	_, err = f.svc.Transfer(context.Background(), ledger.TransferRequest{SenderID: a.ID, Receiver: "alice", Amount: 5})
	assert.ErrorIs(t, err, domain.ErrSelfTransfer)

	// Unknown parties are reported before an over-long memo.
	longMemo := strings.Repeat("m", 501)
	_, err = f.svc.Transfer(context.Background(), ledger.TransferRequest{SenderID: uuid.New(), Receiver: "alice", Amount: 5, Memo: longMemo})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	_, err = f.svc.Transfer(context.Background(), ledger.TransferRequest{SenderID: a.ID, Receiver: "ghost", Amount: 5, Memo: longMemo})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	// The memo is checked before the balance.
	f.account(t, "bob", 0)
	_, err = f.svc.Transfer(context.Background(), ledger.TransferRequest{SenderID: a.ID, Receiver: "bob", Amount: 5, Memo: longMemo})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestSelfTransferWhenAllowed(t *testing.T) {
	f := newFixture(t, func(c *ledger.Config) { c.AllowSelfTransfer = true })
	a := f.account(t, "alice", 300)

	rec, err := f.svc.Transfer(context.Background(), ledger.TransferRequest{SenderID: a.ID, Receiver: "alice", Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, a.ID, rec.SenderID)
	assert.Equal(t, a.ID, rec.ReceiverID)

	after, err := f.svc.Account(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), after.Balance)
	assert.Equal(t, a.Version+1, after.Version)

	history, err := f.svc.History(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	events := f.notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTransferSent, events[0].kind)

	// Still bounded by the balance.
	_, err = f.svc.Transfer(context.Background(), ledger.TransferRequest{SenderID: a.ID, Receiver: "alice", Amount: 301})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestConcurrentTransfersFromOneAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const n = 50
	a := f.account(t, "alice", n)
	b := f.account(t, "bob", 0)

	var wg sync.WaitGroup
	errs := make(chan error, n*2)
	for i := 0; i < n*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Transfer(ctx, ledger.TransferRequest{SenderID: a.ID, Receiver: "bob", Amount: 1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, insufficient int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, n, ok)
	assert.Equal(t, n, insufficient)
	assert.Zero(t, f.balance(t, a.ID))
	assert.Equal(t, int64(n), f.balance(t, b.ID))

	stats, err := f.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(n), stats.TotalTransactionCount)
	assert.Equal(t, int64(n), stats.TotalAmountTransferred)
}

func TestOppositeTransfersDoNotDeadlock(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a := f.account(t, "alice", 1_000)
	b := f.account(t, "bob", 1_000)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.Transfer(ctx, ledger.TransferRequest{SenderID: a.ID, Receiver: "bob", Amount: 3})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.Transfer(ctx, ledger.TransferRequest{SenderID: b.ID, Receiver: "alice", Amount: 3})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1_000), f.balance(t, a.ID))
	assert.Equal(t, int64(1_000), f.balance(t, b.ID))
}

func TestConservationAcrossManyAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	names := []string{"a", "b", "c", "d", "e"}
	accts := make([]domain.Account, len(names))
	for i, name := range names {
		accts[i] = f.account(t, name, 10_000)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		from := accts[i%len(accts)]
		to := names[(i*3+1)%len(names)]
		wg.Add(1)
		go func(amount int64) {
			defer wg.Done()
			_, _ = f.svc.Transfer(ctx, ledger.TransferRequest{SenderID: from.ID, Receiver: to, Amount: amount})
		}(int64(i%7 + 1))
	}
	wg.Wait()

	var total int64
	for _, acct := range accts {
		bal := f.balance(t, acct.ID)
		assert.GreaterOrEqual(t, bal, int64(0))
		total += bal
	}
	assert.Equal(t, int64(50_000), total)
}

// =============================================================================
// Top-up
// =============================================================================

func TestTopUpCreditsAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.account(t, "root", 0)
	a := f.account(t, "alice", 100)

	rec, err := f.svc.TopUp(ctx, ledger.TopUpRequest{ActorID: admin.ID, Target: "alice", Amount: 900})
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), rec.BalanceAfter)
	assert.Equal(t, admin.ID, rec.ActorID)
	assert.Equal(t, int64(1_000), f.balance(t, a.ID))

	trail, err := f.svc.TopUps(ctx, a.ID, 0)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, rec.ID, trail[0].ID)

	history, err := f.svc.History(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, history, "top-ups never reach the transaction log")

	stats, err := f.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalAmountTransferred)

	events := f.notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTopUp, events[0].kind)
	assert.Equal(t, a.ID, events[0].account)
}

func TestTopUpLimits(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		amount  int64
		target  string
		want    error
	}{
		{name: "zero", amount: 0, target: "alice", want: domain.ErrInvalidAmount},
		{name: "negative", amount: -5, target: "alice", want: domain.ErrInvalidAmount},
		{name: "above top-up ceiling", amount: 1_000_000_001, target: "alice", want: domain.ErrLimitExceeded},
		{name: "ceiling checked before target", amount: 1_000_000_001, target: "ghost", want: domain.ErrLimitExceeded},
		{name: "unknown target", amount: 1, target: "ghost", want: domain.ErrAccountNotFound},
		{name: "balance ceiling", balance: 99_999_999_000, amount: 1_001, target: "alice", want: domain.ErrLimitExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			a := f.account(t, "alice", tt.balance)

			_, err := f.svc.TopUp(context.Background(), ledger.TopUpRequest{ActorID: uuid.New(), Target: tt.target, Amount: tt.amount})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.balance, f.balance(t, a.ID))
		})
	}
}

func TestTopUpUpToBalanceCeiling(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, "alice", 99_999_999_000)

	rec, err := f.svc.TopUp(context.Background(), ledger.TopUpRequest{ActorID: uuid.New(), Target: a.ID.String(), Amount: 999})
	require.NoError(t, err)
	assert.Equal(t, int64(99_999_999_999), rec.BalanceAfter)
}

func TestConcurrentTopUpsRespectBalanceCeiling(t *testing.T) {
	f := newFixture(t, func(c *ledger.Config) { c.MaxAccountBalance = 1_000 })
	a := f.account(t, "alice", 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.TopUp(context.Background(), ledger.TopUpRequest{ActorID: uuid.New(), Target: "alice", Amount: 100})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, succeeded)
	assert.Equal(t, int64(1_000), f.balance(t, a.ID))
}

// =============================================================================
// History and statistics
// =============================================================================

func TestHistoryOrderingAndLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, "alice", 1_000)
	f.account(t, "bob", 1_000)
	f.account(t, "carol", 0)

	var ids []uuid.UUID
	for _, r := range []string{"bob", "carol", "bob"} {
		rec, err := f.svc.Transfer(ctx, ledger.TransferRequest{SenderID: a.ID, Receiver: r, Amount: 10})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	history, err := f.svc.History(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []uuid.UUID{ids[2], ids[1], ids[0]}, []uuid.UUID{history[0].ID, history[1].ID, history[2].ID})
	assert.True(t, history[0].CreatedAt.After(history[1].CreatedAt))

	page, err := f.svc.HistoryPage(ctx, a.ID, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	again, err := f.svc.History(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, history, again)
}

func TestHistoryOfQuietAndUnknownAccounts(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, "alice", 0)

	history, err := f.svc.History(context.Background(), a.ID)
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)

	_, err = f.svc.History(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestStatisticsEmptyLog(t *testing.T) {
	f := newFixture(t)
	stats, err := f.svc.Statistics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalAmountTransferred)
	assert.Zero(t, stats.TotalTransactionCount)
	assert.NotNil(t, stats.TopReceivers)
	assert.Empty(t, stats.TopReceivers)
}

func TestStatisticsRanksReceivers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.account(t, "sender", 1_000_000)
	for _, name := range []string{"r1", "r2", "r3"} {
		f.account(t, name, 0)
	}

	send := func(to string, amount int64) {
		_, err := f.svc.Transfer(ctx, ledger.TransferRequest{SenderID: sender.ID, Receiver: to, Amount: amount})
		require.NoError(t, err)
	}
	send("r1", 100)
	send("r2", 300)
	send("r1", 150)
	send("r3", 50)

	stats, err := f.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(600), stats.TotalAmountTransferred)
	assert.Equal(t, int64(4), stats.TotalTransactionCount)
	require.Len(t, stats.TopReceivers, 3)
	assert.Equal(t, "r2", stats.TopReceivers[0].Username)
	assert.Equal(t, "R2", stats.TopReceivers[0].DisplayName)
	assert.Equal(t, int64(300), stats.TopReceivers[0].TotalReceived)
	assert.Equal(t, "r1", stats.TopReceivers[1].Username)
	assert.Equal(t, int64(250), stats.TopReceivers[1].TotalReceived)
	assert.Equal(t, int64(2), stats.TopReceivers[1].TransactionCount)
	assert.Equal(t, "r3", stats.TopReceivers[2].Username)

	again, err := f.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats, again, "reading statistics changes nothing")
}

func TestStatisticsReportsVolumeOverflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, "alice", 0)
	b := f.account(t, "bob", 0)

	for _, amount := range []int64{math.MaxInt64, 1} {
		_, err := f.store.Append(ctx, domain.TransactionRecord{ID: uuid.New(), SenderID: a.ID, ReceiverID: b.ID, Amount: amount})
		require.NoError(t, err)
	}

	_, err := f.svc.Statistics(ctx)
	assert.ErrorIs(t, err, domain.ErrInfrastructure)
}

func TestStatisticsCapsAndBreaksTies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.account(t, "sender", 1_000_000)

	var receivers []domain.Account
	for i := 0; i < 12; i++ {
		receivers = append(receivers, f.account(t, "r"+string(rune('a'+i)), 0))
	}
	for _, r := range receivers {
		_, err := f.svc.Transfer(ctx, ledger.TransferRequest{SenderID: sender.ID, Receiver: r.Username, Amount: 10})
		require.NoError(t, err)
	}

	stats, err := f.svc.Statistics(ctx)
	require.NoError(t, err)
	require.Len(t, stats.TopReceivers, ledger.TopReceiversLimit)
	for i := 1; i < len(stats.TopReceivers); i++ {
		prev, cur := stats.TopReceivers[i-1].AccountID, stats.TopReceivers[i].AccountID
		assert.Negative(t, strings.Compare(prev.String(), cur.String()), "ties ordered by account id")
	}
	assert.Equal(t, int64(120), stats.TotalAmountTransferred)
}

// =============================================================================
// Failure modes
// =============================================================================

// flakyStore fails the first conflicts units of work with a version conflict.
type flakyStore struct {
	*memory.Store
	mu        sync.Mutex
	conflicts int
	calls     int
}

func (s *flakyStore) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.conflicts
	s.mu.Unlock()
	if fail {
		return domain.ErrConflict
	}
	return s.Store.WithTx(ctx, fn)
}

func TestTransferRetriesConflicts(t *testing.T) {
	store := &flakyStore{Store: memory.New(), conflicts: 2}
	svc := ledger.New(store, ledger.DefaultConfig())
	a := domain.Account{ID: uuid.New(), Username: "alice", Balance: 100}
	b := domain.Account{ID: uuid.New(), Username: "bob"}
	store.Put(a)
	store.Put(b)

	_, err := svc.Transfer(context.Background(), ledger.TransferRequest{SenderID: a.ID, Receiver: "bob", Amount: 40})
	require.NoError(t, err)
	assert.Equal(t, 3, store.calls)
}

func TestTransferGivesUpAfterRetries(t *testing.T) {
	store := &flakyStore{Store: memory.New(), conflicts: 100}
	cfg := ledger.DefaultConfig()
	cfg.CommitRetries = 2
	svc := ledger.New(store, cfg)
	a := domain.Account{ID: uuid.New(), Username: "alice", Balance: 100}
	store.Put(a)
	store.Put(domain.Account{ID: uuid.New(), Username: "bob"})

	_, err := svc.Transfer(context.Background(), ledger.TransferRequest{SenderID: a.ID, Receiver: "bob", Amount: 40})
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, 3, store.calls)

	got, _ := store.Get(context.Background(), a.ID)
	assert.Equal(t, int64(100), got.Balance)
}

// brokenStore fails every unit of work with a low-level error.
type brokenStore struct{ *memory.Store }

func (brokenStore) WithTx(context.Context, func(ledger.Tx) error) error {
	return errors.New("connection reset by peer")
}

func TestStoreFailureIsInfrastructure(t *testing.T) {
	store := brokenStore{memory.New()}
	svc := ledger.New(store, ledger.DefaultConfig())
	a := domain.Account{ID: uuid.New(), Username: "alice", Balance: 100}
	store.Put(a)
	store.Put(domain.Account{ID: uuid.New(), Username: "bob"})

	_, err := svc.Transfer(context.Background(), ledger.TransferRequest{SenderID: a.ID, Receiver: "bob", Amount: 1})
	assert.ErrorIs(t, err, domain.ErrInfrastructure)
	assert.False(t, domain.IsRetryable(err))
}

// blockingStore holds the first unit of work open until release is closed.
type blockingStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingStore) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return s.Store.WithTx(ctx, fn)
}

func TestLockTimeout(t *testing.T) {
	store := &blockingStore{Store: memory.New(), entered: make(chan struct{}), release: make(chan struct{})}
	cfg := ledger.DefaultConfig()
	cfg.LockTimeout = 50 * time.Millisecond
	svc := ledger.New(store, cfg)
	a := domain.Account{ID: uuid.New(), Username: "alice", Balance: 100}
	store.Put(a)
	store.Put(domain.Account{ID: uuid.New(), Username: "bob"})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Transfer(context.Background(), ledger.TransferRequest{SenderID: a.ID, Receiver: "bob", Amount: 10})
		done <- err
	}()
	<-store.entered

	_, err := svc.Transfer(context.Background(), ledger.TransferRequest{SenderID: a.ID, Receiver: "bob", Amount: 10})
	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.True(t, domain.IsRetryable(err))

	close(store.release)
	require.NoError(t, <-done)

	got, _ := store.Get(context.Background(), a.ID)
	assert.Equal(t, int64(90), got.Balance)
}
