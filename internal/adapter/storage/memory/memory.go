// Package memory keeps every ezledger store in process memory.
// It backs STORAGE=memory and the test suites.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ibrahimkeyboad/ezledger/internal/core/domain"
	"github.com/ibrahimkeyboad/ezledger/internal/core/ledger"
)

type cachedResponse struct {
	status int
	body   []byte
}

// Store implements the ledger store, the account registry, the notification
// inbox, the webhook job queue and the idempotency cache.
type Store struct {
	mu sync.RWMutex

	accounts map[uuid.UUID]domain.Account
	byName   map[string]uuid.UUID
	apiKeys  map[string]uuid.UUID

	records []domain.TransactionRecord
	topUps  []domain.TopUpRecord
	nextSeq int64

	notifications []*domain.Notification
	jobs          []*domain.WebhookJob
	idempotency   map[string]cachedResponse
}

func New() *Store {
	return &Store{
		accounts:    make(map[uuid.UUID]domain.Account),
		byName:      make(map[string]uuid.UUID),
		apiKeys:     make(map[string]uuid.UUID),
		idempotency: make(map[string]cachedResponse),
	}
}

// =============================================================================
// Accounts
// =============================================================================

// CreateAccount registers a new zero-balance account.
func (s *Store) CreateAccount(ctx context.Context, username, displayName string, role domain.Role) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(username)
	if _, taken := s.byName[key]; taken {
		return domain.Account{}, domain.ErrUsernameTaken
	}
	now := time.Now().UTC()
	acct := domain.Account{
		ID:          uuid.New(),
		Username:    username,
		DisplayName: displayName,
		Role:        role,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.accounts[acct.ID] = acct
	s.byName[key] = acct.ID
	return acct, nil
}

// Put inserts or replaces an account exactly as given. Meant for fixtures.
func (s *Store) Put(acct domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct.Version == 0 {
		acct.Version = 1
	}
	s.accounts[acct.ID] = acct
	s.byName[strings.ToLower(acct.Username)] = acct.ID
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return acct, nil
}

func (s *Store) GetByName(ctx context.Context, username string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[strings.ToLower(username)]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return s.accounts[id], nil
}

func (s *Store) CompareAndSave(ctx context.Context, acct domain.Account, expectedVersion int64) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compareAndSaveLocked(acct, expectedVersion)
}

func (s *Store) compareAndSaveLocked(acct domain.Account, expectedVersion int64) (domain.Account, error) {
	cur, ok := s.accounts[acct.ID]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if cur.Version != expectedVersion {
		return domain.Account{}, domain.ErrConflict
	}
	if acct.Balance < 0 {
		return domain.Account{}, fmt.Errorf("account %s: negative balance %d rejected", acct.ID, acct.Balance)
	}
	acct.Version = expectedVersion + 1
	acct.Username, acct.CreatedAt = cur.Username, cur.CreatedAt
	s.accounts[acct.ID] = acct
	return acct, nil
}

func (s *Store) SaveAPIKey(ctx context.Context, accountID uuid.UUID, keyHash, keyPrefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return domain.ErrAccountNotFound
	}
	s.apiKeys[keyHash] = accountID
	return nil
}

func (s *Store) AccountByAPIKeyHash(ctx context.Context, keyHash string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.apiKeys[keyHash]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return s.accounts[id], nil
}

// =============================================================================
// Transaction log and top-up audit trail
// =============================================================================

func (s *Store) Append(ctx context.Context, rec domain.TransactionRecord) (domain.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(rec), nil
}

func (s *Store) appendLocked(rec domain.TransactionRecord) domain.TransactionRecord {
	s.nextSeq++
	rec.Seq = s.nextSeq
	s.records = append(s.records, rec)
	return rec
}

func (s *Store) QueryByParticipant(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.TransactionRecord{}
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec.SenderID != accountID && rec.ReceiverID != accountID {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ScanAll(ctx context.Context, fn func(domain.TransactionRecord) error) error {
	s.mu.RLock()
	snapshot := make([]domain.TransactionRecord, len(s.records))
	copy(snapshot, s.records)
	s.mu.RUnlock()

	for _, rec := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AppendTopUp(ctx context.Context, rec domain.TopUpRecord) (domain.TopUpRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topUps = append(s.topUps, rec)
	return rec, nil
}

func (s *Store) ListTopUps(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TopUpRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.TopUpRecord{}
	for i := len(s.topUps) - 1; i >= 0; i-- {
		if s.topUps[i].AccountID != accountID {
			continue
		}
		out = append(out, s.topUps[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// =============================================================================
// Units of work
// =============================================================================

// WithTx stages every write fn makes and applies them under one lock when fn
// succeeds, so readers never observe part of a unit. Units run concurrently;
// one whose accounts changed since it read them fails with ErrConflict.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx := &memTx{
		store:    s,
		accounts: make(map[uuid.UUID]domain.Account),
		base:     make(map[uuid.UUID]int64),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.apply()
}

type memTx struct {
	store    *Store
	accounts map[uuid.UUID]domain.Account // staged writes
	base     map[uuid.UUID]int64          // version each staged account started from
	records  []domain.TransactionRecord
	topUps   []domain.TopUpRecord
}

func (t *memTx) Get(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	if acct, ok := t.accounts[id]; ok {
		return acct, nil
	}
	return t.store.Get(ctx, id)
}

func (t *memTx) GetByName(ctx context.Context, username string) (domain.Account, error) {
	acct, err := t.store.GetByName(ctx, username)
	if err != nil {
		return acct, err
	}
	return t.Get(ctx, acct.ID)
}

func (t *memTx) CompareAndSave(ctx context.Context, acct domain.Account, expectedVersion int64) (domain.Account, error) {
	cur, err := t.Get(ctx, acct.ID)
	if err != nil {
		return domain.Account{}, err
	}
	if cur.Version != expectedVersion {
		return domain.Account{}, domain.ErrConflict
	}
	if acct.Balance < 0 {
		return domain.Account{}, fmt.Errorf("account %s: negative balance %d rejected", acct.ID, acct.Balance)
	}
	if _, staged := t.base[acct.ID]; !staged {
		t.base[acct.ID] = expectedVersion
	}
	acct.Version = expectedVersion + 1
	acct.Username, acct.CreatedAt = cur.Username, cur.CreatedAt
	t.accounts[acct.ID] = acct
	return acct, nil
}

func (t *memTx) Append(ctx context.Context, rec domain.TransactionRecord) (domain.TransactionRecord, error) {
	t.store.mu.Lock()
	t.store.nextSeq++
	rec.Seq = t.store.nextSeq
	t.store.mu.Unlock()
	t.records = append(t.records, rec)
	return rec, nil
}

func (t *memTx) QueryByParticipant(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TransactionRecord, error) {
	return t.store.QueryByParticipant(ctx, accountID, limit)
}

func (t *memTx) ScanAll(ctx context.Context, fn func(domain.TransactionRecord) error) error {
	return t.store.ScanAll(ctx, fn)
}

func (t *memTx) AppendTopUp(ctx context.Context, rec domain.TopUpRecord) (domain.TopUpRecord, error) {
	t.topUps = append(t.topUps, rec)
	return rec, nil
}

func (t *memTx) ListTopUps(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.TopUpRecord, error) {
	return t.store.ListTopUps(ctx, accountID, limit)
}

func (t *memTx) apply() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	// Writes made outside any unit since fn read the account invalidate it.
	for id, version := range t.base {
		if s.accounts[id].Version != version {
			return domain.ErrConflict
		}
	}
	for id, acct := range t.accounts {
		s.accounts[id] = acct
	}
	for _, rec := range t.records {
		s.insertRecord(rec)
	}
	s.topUps = append(s.topUps, t.topUps...)
	return nil
}

// insertRecord keeps the log in Seq order. A unit that took its seq before a
// faster one committed lands just before it; otherwise this is an append.
func (s *Store) insertRecord(rec domain.TransactionRecord) {
	n := len(s.records)
	if n == 0 || s.records[n-1].Seq < rec.Seq {
		s.records = append(s.records, rec)
		return
	}
	i := sort.Search(n, func(i int) bool { return s.records[i].Seq > rec.Seq })
	s.records = append(s.records, domain.TransactionRecord{})
	copy(s.records[i+1:], s.records[i:])
	s.records[i] = rec
}

var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Tx    = (*memTx)(nil)
)
