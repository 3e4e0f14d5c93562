// Package ledger moves money between account balances.
//
// Every balance mutation happens with the per-account locks of the accounts
// involved held (acquired lowest id first) and inside a single Store.WithTx
// unit, so a debit, its credit and the transaction record commit together or
// not at all. Account writes also carry an optimistic version check, which
// keeps the ledger correct when several processes share one database.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
	"github.com/ibrahimkeyboad/ezledger/internal/core/metrics"
)

// Config holds the policy limits. All amounts are minor units.
type Config struct {
	MaxTransferAmount int64
	MaxTopUpAmount    int64
	MaxAccountBalance int64
	MaxMemoLength     int
	AllowSelfTransfer bool
	LockTimeout       time.Duration
	CommitRetries     int
}

// DefaultConfig mirrors the limits of the EzPay deployment:
// transfers up to 999,999,999.99, top-ups up to 10,000,000.00 and
// balances capped at 999,999,999.99.
func DefaultConfig() Config {
	return Config{
		MaxTransferAmount: 99_999_999_999,
		MaxTopUpAmount:    1_000_000_000,
		MaxAccountBalance: 99_999_999_999,
		MaxMemoLength:     500,
		LockTimeout:       2 * time.Second,
		CommitRetries:     3,
	}
}

// TopReceiversLimit caps the ranked list returned by Statistics.
const TopReceiversLimit = 10

type Service struct {
	store    Store
	notifier Notifier
	cfg      Config
	locks    *lockTable
	clock    *clock
	logger   *slog.Logger
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the wall clock used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.clock = &clock{now: now}
	}
}

func New(store Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:    store,
		notifier: noopNotifier{},
		cfg:      cfg,
		locks:    newLockTable(),
		clock:    &clock{now: time.Now},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Config() Config { return s.cfg }

// Account returns the current state of one account.
func (s *Service) Account(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	acct, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Account{}, classify("account", err)
	}
	return acct, nil
}

// resolve looks an account up by id when ref parses as a UUID, by username otherwise.
func (s *Service) resolve(ctx context.Context, op, role, ref string) (domain.Account, error) {
	if ref == "" {
		return domain.Account{}, domain.E(domain.KindInvalidRequest, op, role+" is required")
	}
	var (
		acct domain.Account
		err  error
	)
	if id, perr := uuid.Parse(ref); perr == nil {
		acct, err = s.store.Get(ctx, id)
	} else {
		acct, err = s.store.GetByName(ctx, ref)
	}
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.Account{}, domain.E(domain.KindAccountNotFound, op, role+" "+ref+" not found")
	}
	if err != nil {
		return domain.Account{}, classify(op, err)
	}
	return acct, nil
}

// lock acquires the account locks within LockTimeout.
func (s *Service) lock(ctx context.Context, op string, ids ...uuid.UUID) (func(), error) {
	lockCtx := ctx
	if s.cfg.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.cfg.LockTimeout)
		defer cancel()
	}
	release, err := s.locks.acquire(lockCtx, ids...)
	if err != nil {
		return nil, domain.Wrap(domain.KindTimeout, op, err)
	}
	return release, nil
}

// withRetry reruns fn while it fails with a version conflict, up to CommitRetries extra times.
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if domain.KindOf(err) != domain.KindConflict || attempt >= s.cfg.CommitRetries {
			return err
		}
		if ctx.Err() != nil {
			return domain.Wrap(domain.KindTimeout, op, ctx.Err())
		}
		metrics.IncCommitRetry()
		s.logger.Debug("Ledger commit conflict, retrying", "op", op, "attempt", attempt+1)
	}
}

// classify turns any error from a store into a ledger error carrying op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var le *domain.Error
	if errors.As(err, &le) {
		if le.Op != "" {
			return err
		}
		return &domain.Error{Kind: le.Kind, Op: op, Msg: le.Msg, Err: le.Err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.Wrap(domain.KindTimeout, op, err)
	}
	return domain.Wrap(domain.KindInfrastructure, op, err)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return domain.KindOf(err).String()
}

// clock stamps records with strictly increasing microsecond timestamps,
// the resolution PostgreSQL keeps.
type clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
